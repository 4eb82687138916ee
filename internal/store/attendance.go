package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

type AttendanceEntry struct {
	ID         string
	UserID     string
	Day        string
	Kind       string
	RecordedAt time.Time
}

// RecordAttendance stores one attendance event. Repeating the same kind for
// the same user on the same day is a no-op.
func (s *Store) RecordAttendance(ctx context.Context, userID, kind string) error {
	userID = strings.TrimSpace(userID)
	kind = strings.TrimSpace(kind)
	if userID == "" || kind == "" {
		return fmt.Errorf("missing required attendance fields")
	}

	now := time.Now().UTC()
	_, err := s.db.ExecContext(
		ctx,
		`INSERT OR IGNORE INTO attendance_log (id, user_id, day, kind, recorded_at_unix)
		 VALUES (?, ?, ?, ?, ?)`,
		"att_"+uuid.NewString(),
		userID,
		now.Format("2006-01-02"),
		kind,
		now.Unix(),
	)
	if err != nil {
		return fmt.Errorf("insert attendance entry: %w", err)
	}
	return nil
}

// AttendanceForDay lists the events recorded for one calendar day (UTC).
func (s *Store) AttendanceForDay(ctx context.Context, day string) ([]AttendanceEntry, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, user_id, day, kind, recorded_at_unix
		 FROM attendance_log
		 WHERE day = ?
		 ORDER BY recorded_at_unix ASC, rowid ASC`,
		strings.TrimSpace(day),
	)
	if err != nil {
		return nil, fmt.Errorf("query attendance entries: %w", err)
	}
	defer rows.Close()

	var entries []AttendanceEntry
	for rows.Next() {
		var (
			entry      AttendanceEntry
			recordedAt int64
		)
		if err := rows.Scan(&entry.ID, &entry.UserID, &entry.Day, &entry.Kind, &recordedAt); err != nil {
			return nil, fmt.Errorf("scan attendance entry: %w", err)
		}
		entry.RecordedAt = time.Unix(recordedAt, 0).UTC()
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attendance entries: %w", err)
	}
	return entries, nil
}
