package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Capability is a scored skill attributed to a user.
type Capability struct {
	ID            int64   `json:"id"`
	UserID        string  `json:"user_id"`
	Name          string  `json:"name"`
	Description   string  `json:"description"`
	Strength      float64 `json:"strength"`       // roughly 0-10
	SourceProject string  `json:"source_project"` // grouping tag
	CreatedAt     int64   `json:"created_at"`
	UpdatedAt     int64   `json:"updated_at"`
}

// UpsertCapability inserts a capability or updates the existing one with the
// same (user, name). The capability's ID is populated on return.
func (db *DB) UpsertCapability(ctx context.Context, userID string, c *Capability) error {
	if c.Name == "" {
		return fmt.Errorf("upsert capability: empty name")
	}
	now := time.Now().UnixMilli()

	_, err := db.ExecContext(ctx, `
		INSERT INTO capabilities (user_id, name, description, strength, source_project, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, name) DO UPDATE SET
			description = excluded.description,
			strength = excluded.strength,
			source_project = excluded.source_project,
			updated_at = excluded.updated_at
	`, userID, c.Name, c.Description, c.Strength, c.SourceProject, now, now)
	if err != nil {
		return fmt.Errorf("upsert capability: %w", err)
	}

	err = db.QueryRowContext(ctx, `
		SELECT id, created_at FROM capabilities WHERE user_id = ? AND name = ?
	`, userID, c.Name).Scan(&c.ID, &c.CreatedAt)
	if err != nil {
		return fmt.Errorf("upsert capability: read back id: %w", err)
	}
	c.UserID = userID
	c.UpdatedAt = now
	return nil
}

// ListCapabilities returns all capabilities for a user, strongest first.
func (db *DB) ListCapabilities(ctx context.Context, userID string) ([]Capability, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, user_id, name, description, strength, source_project, created_at, updated_at
		FROM capabilities WHERE user_id = ?
		ORDER BY strength DESC, id ASC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list capabilities: %w", err)
	}
	defer rows.Close()

	var caps []Capability
	for rows.Next() {
		var c Capability
		if err := rows.Scan(&c.ID, &c.UserID, &c.Name, &c.Description, &c.Strength,
			&c.SourceProject, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan capability: %w", err)
		}
		caps = append(caps, c)
	}
	return caps, rows.Err()
}

// GetCapability returns a capability by ID, or nil if not found.
func (db *DB) GetCapability(ctx context.Context, id int64) (*Capability, error) {
	var c Capability
	err := db.QueryRowContext(ctx, `
		SELECT id, user_id, name, description, strength, source_project, created_at, updated_at
		FROM capabilities WHERE id = ?
	`, id).Scan(&c.ID, &c.UserID, &c.Name, &c.Description, &c.Strength,
		&c.SourceProject, &c.CreatedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get capability: %w", err)
	}
	return &c, nil
}

// DeleteCapability removes a capability owned by the user.
func (db *DB) DeleteCapability(ctx context.Context, userID string, id int64) error {
	result, err := db.ExecContext(ctx, `DELETE FROM capabilities WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("delete capability: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return fmt.Errorf("no capability %d for user %s", id, userID)
	}
	return nil
}
