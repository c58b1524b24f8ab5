package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// Note is a personal note; topic mentions and note vectors hang off it.
type Note struct {
	ID        int64  `json:"id"`
	UserID    string `json:"user_id"`
	Body      string `json:"body"`
	CreatedAt int64  `json:"created_at"`
}

// CreateNote inserts a note. A zero createdAt means now.
func (db *DB) CreateNote(ctx context.Context, userID, body string, createdAt time.Time) (*Note, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, fmt.Errorf("create note: empty body")
	}
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	result, err := db.ExecContext(ctx, `
		INSERT INTO notes (user_id, body, created_at) VALUES (?, ?, ?)
	`, userID, body, createdAt.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("create note: %w", err)
	}

	id, _ := result.LastInsertId()
	return &Note{
		ID:        id,
		UserID:    userID,
		Body:      body,
		CreatedAt: createdAt.UnixMilli(),
	}, nil
}

// GetNote returns a note by ID, or nil if not found.
func (db *DB) GetNote(ctx context.Context, id int64) (*Note, error) {
	var n Note
	err := db.QueryRowContext(ctx, `
		SELECT id, user_id, body, created_at FROM notes WHERE id = ?
	`, id).Scan(&n.ID, &n.UserID, &n.Body, &n.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get note: %w", err)
	}
	return &n, nil
}

// ListNotes returns a user's notes, newest first. A limit <= 0 returns all.
func (db *DB) ListNotes(ctx context.Context, userID string, limit int) ([]Note, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := db.QueryContext(ctx, `
		SELECT id, user_id, body, created_at FROM notes
		WHERE user_id = ? ORDER BY created_at DESC, id DESC LIMIT ?
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list notes: %w", err)
	}
	defer rows.Close()

	return scanNotes(rows)
}

// NotesMissingVectors returns notes with no vector, or whose vector was
// produced by a different model.
func (db *DB) NotesMissingVectors(ctx context.Context, userID, model string) ([]Note, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT n.id, n.user_id, n.body, n.created_at
		FROM notes n LEFT JOIN note_vectors v ON v.note_id = n.id
		WHERE n.user_id = ? AND (v.note_id IS NULL OR v.model != ?)
		ORDER BY n.created_at DESC
	`, userID, model)
	if err != nil {
		return nil, fmt.Errorf("notes missing vectors: %w", err)
	}
	defer rows.Close()

	return scanNotes(rows)
}

// AllNoteBodies returns the body of every note across users. Used to fit the
// TF-IDF fallback embedder.
func (db *DB) AllNoteBodies(ctx context.Context) ([]string, error) {
	rows, err := db.QueryContext(ctx, `SELECT body FROM notes`)
	if err != nil {
		return nil, fmt.Errorf("all note bodies: %w", err)
	}
	defer rows.Close()

	var bodies []string
	for rows.Next() {
		var b string
		if err := rows.Scan(&b); err != nil {
			return nil, fmt.Errorf("scan note body: %w", err)
		}
		bodies = append(bodies, b)
	}
	return bodies, rows.Err()
}

func scanNotes(rows *sql.Rows) ([]Note, error) {
	var notes []Note
	for rows.Next() {
		var n Note
		if err := rows.Scan(&n.ID, &n.UserID, &n.Body, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan note: %w", err)
		}
		notes = append(notes, n)
	}
	return notes, rows.Err()
}
