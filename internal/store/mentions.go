package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// maxTopicNameLen caps stored topic names; longer names are almost always
// extraction noise rather than a topic.
const maxTopicNameLen = 120

// TopicMention is a single raw mention of a topic in a note.
type TopicMention struct {
	ID        int64  `json:"id"`
	UserID    string `json:"user_id"`
	NoteID    int64  `json:"note_id,omitempty"`
	Name      string `json:"name"`
	Type      string `json:"type"`
	CreatedAt int64  `json:"created_at"`
}

// AddMention records a topic mention. noteID may be 0 for mentions with no
// backing note. A zero at means now.
func (db *DB) AddMention(ctx context.Context, userID string, noteID int64, name, typ string, at time.Time) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("add mention: empty name")
	}
	if len(name) > maxTopicNameLen {
		name = name[:maxTopicNameLen]
	}
	if typ == "" {
		typ = "topic"
	}
	if at.IsZero() {
		at = time.Now()
	}

	var note sql.NullInt64
	if noteID > 0 {
		note = sql.NullInt64{Int64: noteID, Valid: true}
	}

	_, err := db.ExecContext(ctx, `
		INSERT INTO topic_mentions (user_id, note_id, name, type, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, userID, note, name, typ, at.UnixMilli())
	if err != nil {
		return fmt.Errorf("add mention: %w", err)
	}
	return nil
}

// MentionsSince returns a user's topic mentions created at or after since,
// oldest first.
func (db *DB) MentionsSince(ctx context.Context, userID string, since time.Time) ([]TopicMention, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, user_id, note_id, name, type, created_at
		FROM topic_mentions WHERE user_id = ? AND created_at >= ?
		ORDER BY created_at ASC, id ASC
	`, userID, since.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("mentions since: %w", err)
	}
	defer rows.Close()

	var mentions []TopicMention
	for rows.Next() {
		var m TopicMention
		var note sql.NullInt64
		if err := rows.Scan(&m.ID, &m.UserID, &note, &m.Name, &m.Type, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan mention: %w", err)
		}
		m.NoteID = note.Int64
		mentions = append(mentions, m)
	}
	return mentions, rows.Err()
}

// CountMentions returns the number of mentions recorded for a user.
func (db *DB) CountMentions(ctx context.Context, userID string) (int, error) {
	var count int
	err := db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM topic_mentions WHERE user_id = ?
	`, userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count mentions: %w", err)
	}
	return count, nil
}
