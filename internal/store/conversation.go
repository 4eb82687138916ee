package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Speaker values recorded with each conversation entry.
const (
	SpeakerUser      = "user"
	SpeakerAssistant = "assistant"
)

type AppendConversationInput struct {
	UserID   string
	Speaker  string
	Message  string
	Category string
	Status   string
}

type ConversationEntry struct {
	ID        string
	UserID    string
	Speaker   string
	Message   string
	Category  string
	Status    string
	CreatedAt time.Time
}

func (s *Store) AppendConversation(ctx context.Context, input AppendConversationInput) error {
	userID := strings.TrimSpace(input.UserID)
	message := strings.TrimSpace(input.Message)
	if userID == "" || message == "" {
		return fmt.Errorf("missing required conversation fields")
	}
	speaker := strings.TrimSpace(input.Speaker)
	if speaker == "" {
		speaker = SpeakerUser
	}

	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO conversation_log (id, user_id, speaker, message, category, status, created_at_unix)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		"cnv_"+uuid.NewString(),
		userID,
		speaker,
		message,
		nullIfEmpty(strings.TrimSpace(input.Category)),
		nullIfEmpty(strings.TrimSpace(input.Status)),
		time.Now().UTC().Unix(),
	)
	if err != nil {
		return fmt.Errorf("insert conversation entry: %w", err)
	}
	return nil
}

// RecentConversation returns the user's entries inside the window, oldest
// first, capped at limit.
func (s *Store) RecentConversation(ctx context.Context, userID string, window time.Duration, limit int) ([]ConversationEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	since := time.Now().UTC().Add(-window).Unix()
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, user_id, speaker, message, category, status, created_at_unix
		 FROM conversation_log
		 WHERE user_id = ? AND created_at_unix >= ?
		 ORDER BY created_at_unix DESC, rowid DESC
		 LIMIT ?`,
		strings.TrimSpace(userID),
		since,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query recent conversation: %w", err)
	}
	defer rows.Close()

	entries, err := scanConversation(rows)
	if err != nil {
		return nil, err
	}
	reverse(entries)
	return entries, nil
}

// ConversationSince returns every entry across all users newer than the
// cutoff, oldest first. Used by the daily report.
func (s *Store) ConversationSince(ctx context.Context, cutoff time.Time) ([]ConversationEntry, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, user_id, speaker, message, category, status, created_at_unix
		 FROM conversation_log
		 WHERE created_at_unix >= ?
		 ORDER BY created_at_unix ASC, rowid ASC`,
		cutoff.UTC().Unix(),
	)
	if err != nil {
		return nil, fmt.Errorf("query conversation since: %w", err)
	}
	defer rows.Close()
	return scanConversation(rows)
}

func scanConversation(rows *sql.Rows) ([]ConversationEntry, error) {
	var entries []ConversationEntry
	for rows.Next() {
		var (
			entry            ConversationEntry
			category, status sql.NullString
			createdAt        int64
		)
		if err := rows.Scan(&entry.ID, &entry.UserID, &entry.Speaker, &entry.Message, &category, &status, &createdAt); err != nil {
			return nil, fmt.Errorf("scan conversation entry: %w", err)
		}
		entry.Category = category.String
		entry.Status = status.String
		entry.CreatedAt = time.Unix(createdAt, 0).UTC()
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate conversation entries: %w", err)
	}
	return entries, nil
}

func reverse(entries []ConversationEntry) {
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
}
