package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Interest is a recurring topic mined from a user's notes.
type Interest struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Type      string  `json:"type"`
	Strength  float64 `json:"strength"` // mentions / 10
	Mentions  int     `json:"mentions"`
	MemoryIDs []int64 `json:"memory_ids,omitempty"` // notes the mentions came from
}

// SaveInterests replaces the user's interest markers with the given set.
func (db *DB) SaveInterests(ctx context.Context, userID string, interests []Interest) error {
	now := time.Now().UnixMilli()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("save interests: begin: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM interests WHERE user_id = ?`, userID); err != nil {
		tx.Rollback()
		return fmt.Errorf("save interests: clear: %w", err)
	}

	for _, in := range interests {
		memoryIDs, err := json.Marshal(nonNilIDs(in.MemoryIDs))
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("save interests: marshal memory ids: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO interests (id, user_id, name, type, strength, mentions, memory_ids, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, in.ID, userID, in.Name, in.Type, in.Strength, in.Mentions, string(memoryIDs), now); err != nil {
			tx.Rollback()
			return fmt.Errorf("save interest %q: %w", in.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("save interests: commit: %w", err)
	}
	return nil
}

// ListInterests returns the interest markers last written for a user,
// strongest first.
func (db *DB) ListInterests(ctx context.Context, userID string) ([]Interest, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, name, type, strength, mentions, memory_ids
		FROM interests WHERE user_id = ?
		ORDER BY strength DESC, name ASC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list interests: %w", err)
	}
	defer rows.Close()

	var interests []Interest
	for rows.Next() {
		var in Interest
		var memoryIDs string
		if err := rows.Scan(&in.ID, &in.Name, &in.Type, &in.Strength, &in.Mentions, &memoryIDs); err != nil {
			return nil, fmt.Errorf("scan interest: %w", err)
		}
		if in.MemoryIDs, err = decodeIDs(memoryIDs); err != nil {
			return nil, fmt.Errorf("interest %q: %w", in.Name, err)
		}
		interests = append(interests, in)
	}
	return interests, rows.Err()
}

func nonNilIDs(ids []int64) []int64 {
	if ids == nil {
		return []int64{}
	}
	return ids
}

func encodeIDs(ids []int64) (string, error) {
	data, err := json.Marshal(nonNilIDs(ids))
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func decodeIDs(s string) ([]int64, error) {
	if s == "" {
		return nil, nil
	}
	var ids []int64
	if err := json.Unmarshal([]byte(s), &ids); err != nil {
		return nil, fmt.Errorf("decode ids %q: %w", s, err)
	}
	return ids, nil
}
