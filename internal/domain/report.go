package domain

import (
	"context"
	"fmt"
	"time"
)

type Profile struct {
	Username        string `json:"username" db:"username"`
	ProfilePhotoURL string `json:"profile_photo_url,omitempty" db:"profile_photo_url"`
}

// StatusPending is the status every report is created with.
const StatusPending = "pending"

// Report is one parking-violation observation. Only Status is ever changed
// after insert, and only by the remote store.
type Report struct {
	ID           string    `json:"id" db:"id"`
	UserID       string    `json:"user_id" db:"user_id"`
	Description  string    `json:"description,omitempty" db:"description"`
	LicensePlate string    `json:"license_plate,omitempty" db:"license_plate"`
	PhotoURL     string    `json:"photo_url" db:"photo_url"`
	Latitude     float64   `json:"latitude" db:"latitude"`
	Longitude    float64   `json:"longitude" db:"longitude"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	Status       string    `json:"status,omitempty" db:"status"`
	Profile      *Profile  `json:"profiles,omitempty"`
}

func (r *Report) Coordinates() Coordinates {
	return Coordinates{Latitude: r.Latitude, Longitude: r.Longitude}
}

// Username returns the joined profile name, or "" when the join was empty.
func (r *Report) Username() string {
	if r.Profile == nil {
		return ""
	}
	return r.Profile.Username
}

// NewReport is the insert payload. The store assigns ID and CreatedAt.
type NewReport struct {
	UserID       string
	Description  string
	LicensePlate string
	PhotoURL     string
	Latitude     float64
	Longitude    float64
}

func (n NewReport) Validate() error {
	if n.UserID == "" {
		return fmt.Errorf("%w: user_id is required", ErrInvalidReport)
	}
	if n.PhotoURL == "" {
		return fmt.Errorf("%w: photo_url is required", ErrInvalidReport)
	}
	if err := (Coordinates{Latitude: n.Latitude, Longitude: n.Longitude}).Validate(); err != nil {
		return err
	}
	return nil
}

type LeaderboardEntry struct {
	UserID          string `json:"user_id" db:"user_id"`
	Username        string `json:"username" db:"username"`
	ProfilePhotoURL string `json:"profile_photo_url,omitempty" db:"profile_photo_url"`
	TotalReports    int    `json:"total_reports" db:"total_reports"`
}

type UserRanking struct {
	Rank         int `json:"rank" db:"rank"`
	TotalReports int `json:"total_reports" db:"total_reports"`
}

type ReportRepository interface {
	ListReports(ctx context.Context) ([]*Report, error)
	// GetReport returns (nil, nil) when the row does not exist.
	GetReport(ctx context.Context, id string) (*Report, error)
	InsertReport(ctx context.Context, report NewReport) (*Report, error)
	// DeleteReport removes the row owned by userID and returns the removed rows.
	// An empty result means nothing was deleted.
	DeleteReport(ctx context.Context, id, userID string) ([]*Report, error)
}

type ProfileRepository interface {
	GetProfile(ctx context.Context, userID string) (*Profile, error)
	UpsertProfile(ctx context.Context, userID string, profile Profile) error
}

// LeaderboardRepository is the server-side ranking function. Entries are
// ordered by TotalReports descending.
type LeaderboardRepository interface {
	GetLeaderboard(ctx context.Context) ([]*LeaderboardEntry, error)
	// GetUserRanking returns (nil, nil) for users without reports.
	GetUserRanking(ctx context.Context, userID string) (*UserRanking, error)
}
