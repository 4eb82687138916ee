package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

type ExperienceEntry struct {
	ID        string
	UserID    string
	Message   string
	Category  string
	CreatedAt time.Time
}

// AppendExperience records a message the pipeline judged important enough to
// keep beyond the conversation window.
func (s *Store) AppendExperience(ctx context.Context, userID, message, category string) error {
	userID = strings.TrimSpace(userID)
	message = strings.TrimSpace(message)
	if userID == "" || message == "" {
		return fmt.Errorf("missing required experience fields")
	}

	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO experience_log (id, user_id, message, category, created_at_unix)
		 VALUES (?, ?, ?, ?, ?)`,
		"exp_"+uuid.NewString(),
		userID,
		message,
		nullIfEmpty(strings.TrimSpace(category)),
		time.Now().UTC().Unix(),
	)
	if err != nil {
		return fmt.Errorf("insert experience entry: %w", err)
	}
	return nil
}

// RecentExperience returns the newest entries first, capped at limit.
func (s *Store) RecentExperience(ctx context.Context, limit int) ([]ExperienceEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, user_id, message, category, created_at_unix
		 FROM experience_log
		 ORDER BY created_at_unix DESC, rowid DESC
		 LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query experience entries: %w", err)
	}
	defer rows.Close()

	var entries []ExperienceEntry
	for rows.Next() {
		var (
			entry     ExperienceEntry
			category  sql.NullString
			createdAt int64
		)
		if err := rows.Scan(&entry.ID, &entry.UserID, &entry.Message, &category, &createdAt); err != nil {
			return nil, fmt.Errorf("scan experience entry: %w", err)
		}
		entry.Category = category.String
		entry.CreatedAt = time.Unix(createdAt, 0).UTC()
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate experience entries: %w", err)
	}
	return entries, nil
}
