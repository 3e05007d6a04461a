package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fardannozami/parking-reporter/internal/domain"
)

// Fixed-width so that created_at sorts correctly as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

const reportColumns = `
	r.id, r.user_id, r.description, r.license_plate, r.photo_url,
	r.latitude, r.longitude, r.created_at, r.status,
	p.username, p.profile_photo_url`

type ReportRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewReportRepository(db *sql.DB) *ReportRepository {
	return &ReportRepository{db: db, now: time.Now}
}

// WithClock replaces the clock used for created_at and updated_at.
func (r *ReportRepository) WithClock(now func() time.Time) *ReportRepository {
	r.now = now
	return r
}

// ListReports returns every report, newest first, joined with its author's
// profile.
func (r *ReportRepository) ListReports(ctx context.Context) ([]*domain.Report, error) {
	query := `SELECT ` + reportColumns + `
		FROM reports r LEFT JOIN profiles p ON p.user_id = r.user_id
		ORDER BY r.created_at DESC, r.id ASC`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reports []*domain.Report
	for rows.Next() {
		report, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		reports = append(reports, report)
	}
	return reports, rows.Err()
}

func (r *ReportRepository) GetReport(ctx context.Context, id string) (*domain.Report, error) {
	query := `SELECT ` + reportColumns + `
		FROM reports r LEFT JOIN profiles p ON p.user_id = r.user_id
		WHERE r.id = ?`
	report, err := scanReport(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return report, nil
}

func (r *ReportRepository) InsertReport(ctx context.Context, n domain.NewReport) (*domain.Report, error) {
	if err := n.Validate(); err != nil {
		return nil, err
	}

	id := uuid.NewString()
	createdAt := r.now().UTC()
	query := `
		INSERT INTO reports (id, user_id, description, license_plate, photo_url, latitude, longitude, created_at, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, query,
		id, n.UserID, n.Description, n.LicensePlate, n.PhotoURL,
		n.Latitude, n.Longitude, createdAt.Format(timeLayout), domain.StatusPending)
	if err != nil {
		return nil, err
	}
	return r.GetReport(ctx, id)
}

// DeleteReport deletes the report only when userID owns it and returns the
// rows actually deleted. A foreign or missing id yields an empty result.
func (r *ReportRepository) DeleteReport(ctx context.Context, id, userID string) ([]*domain.Report, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	query := `SELECT ` + reportColumns + `
		FROM reports r LEFT JOIN profiles p ON p.user_id = r.user_id
		WHERE r.id = ? AND r.user_id = ?`
	rows, err := tx.QueryContext(ctx, query, id, userID)
	if err != nil {
		return nil, err
	}
	var deleted []*domain.Report
	for rows.Next() {
		report, err := scanReport(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		deleted = append(deleted, report)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(deleted) == 0 {
		return nil, nil
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM reports WHERE id = ? AND user_id = ?`, id, userID); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return deleted, nil
}

// ResolveLIDToPhone maps a WhatsApp LID to the phone number whatsmeow has
// recorded for it. Unknown LIDs are returned unchanged.
func (r *ReportRepository) ResolveLIDToPhone(ctx context.Context, lid string) string {
	var pn string
	err := r.db.QueryRowContext(ctx, `SELECT pn FROM whatsmeow_lid_map WHERE lid = ?`, lid).Scan(&pn)
	if err != nil || pn == "" {
		return lid
	}
	return pn
}

func (r *ReportRepository) InitTable(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS profiles (
			user_id TEXT PRIMARY KEY,
			username TEXT NOT NULL DEFAULT '',
			profile_photo_url TEXT NOT NULL DEFAULT '',
			updated_at TEXT
		);
		CREATE TABLE IF NOT EXISTS reports (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			license_plate TEXT NOT NULL DEFAULT '',
			photo_url TEXT NOT NULL,
			latitude REAL NOT NULL,
			longitude REAL NOT NULL,
			created_at TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending'
		);
		CREATE INDEX IF NOT EXISTS idx_reports_created_at ON reports (created_at);
		CREATE INDEX IF NOT EXISTS idx_reports_user_id ON reports (user_id);
	`
	for _, stmt := range strings.Split(query, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanReport(s scanner) (*domain.Report, error) {
	var (
		report    domain.Report
		createdAt string
		username  sql.NullString
		photoURL  sql.NullString
	)
	err := s.Scan(
		&report.ID, &report.UserID, &report.Description, &report.LicensePlate, &report.PhotoURL,
		&report.Latitude, &report.Longitude, &createdAt, &report.Status,
		&username, &photoURL,
	)
	if err != nil {
		return nil, err
	}

	report.CreatedAt, err = time.Parse(timeLayout, createdAt)
	if err != nil {
		return nil, err
	}
	if username.Valid {
		report.Profile = &domain.Profile{Username: username.String, ProfilePhotoURL: photoURL.String}
	}
	return &report, nil
}
