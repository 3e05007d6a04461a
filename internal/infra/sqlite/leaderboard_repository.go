package sqlite

import (
	"context"
	"database/sql"

	"github.com/fardannozami/parking-reporter/internal/domain"
)

func (r *ReportRepository) GetProfile(ctx context.Context, userID string) (*domain.Profile, error) {
	query := `SELECT username, profile_photo_url FROM profiles WHERE user_id = ?`
	var p domain.Profile
	err := r.db.QueryRowContext(ctx, query, userID).Scan(&p.Username, &p.ProfilePhotoURL)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *ReportRepository) UpsertProfile(ctx context.Context, userID string, p domain.Profile) error {
	query := `
		INSERT INTO profiles (user_id, username, profile_photo_url, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			username = excluded.username,
			profile_photo_url = excluded.profile_photo_url,
			updated_at = excluded.updated_at
	`
	_, err := r.db.ExecContext(ctx, query, userID, p.Username, p.ProfilePhotoURL, r.now().UTC().Format(timeLayout))
	return err
}

// GetLeaderboard ranks every user with at least one report by report count.
func (r *ReportRepository) GetLeaderboard(ctx context.Context) ([]*domain.LeaderboardEntry, error) {
	query := `
		SELECT r.user_id, COALESCE(p.username, ''), COALESCE(p.profile_photo_url, ''), COUNT(*) AS total_reports
		FROM reports r LEFT JOIN profiles p ON p.user_id = r.user_id
		GROUP BY r.user_id
		ORDER BY total_reports DESC, r.user_id ASC
	`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*domain.LeaderboardEntry
	for rows.Next() {
		var e domain.LeaderboardEntry
		if err := rows.Scan(&e.UserID, &e.Username, &e.ProfilePhotoURL, &e.TotalReports); err != nil {
			return nil, err
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

// GetUserRanking uses competition ranking: equal totals share a rank.
func (r *ReportRepository) GetUserRanking(ctx context.Context, userID string) (*domain.UserRanking, error) {
	query := `
		SELECT position, total_reports FROM (
			SELECT user_id, COUNT(*) AS total_reports,
				RANK() OVER (ORDER BY COUNT(*) DESC) AS position
			FROM reports
			GROUP BY user_id
		) WHERE user_id = ?
	`
	var ranking domain.UserRanking
	err := r.db.QueryRowContext(ctx, query, userID).Scan(&ranking.Rank, &ranking.TotalReports)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &ranking, nil
}
