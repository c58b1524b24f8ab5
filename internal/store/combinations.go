package store

import (
	"context"
	"database/sql"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"
)

// Combination tracks how often a specific set of capabilities has been
// suggested together, and how it was received.
type Combination struct {
	ID                 int64   `json:"id"`
	UserID             string  `json:"user_id"`
	Key                string  `json:"key"`
	CapabilityIDs      []int64 `json:"capability_ids"`
	TimesSuggested     int     `json:"times_suggested"`
	TimesRatedNegative int     `json:"times_rated_negative"`
	PenaltyScore       float64 `json:"penalty_score"`
	FirstSuggestedAt   int64   `json:"first_suggested_at"`
	LastSuggestedAt    int64   `json:"last_suggested_at"`
}

// SortedIDs returns a sorted copy of ids.
func SortedIDs(ids []int64) []int64 {
	sorted := slices.Clone(ids)
	slices.Sort(sorted)
	return sorted
}

// CombinationKey returns the canonical key for a capability set: the sorted
// IDs joined by commas. Order of the input does not matter. An empty set has
// an empty key.
func CombinationKey(ids []int64) string {
	if len(ids) == 0 {
		return ""
	}
	sorted := SortedIDs(ids)
	parts := make([]string, len(sorted))
	for i, id := range sorted {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(parts, ",")
}

const combinationColumns = `id, user_id, capability_key, capability_ids, times_suggested,
	times_rated_negative, penalty_score, first_suggested_at, last_suggested_at`

// GetCombination looks up the combination for a capability set, or returns
// nil if the set has never been suggested.
func (db *DB) GetCombination(ctx context.Context, userID string, ids []int64) (*Combination, error) {
	key := CombinationKey(ids)
	if key == "" {
		return nil, nil
	}

	var c Combination
	var capIDs string
	err := db.QueryRowContext(ctx, `
		SELECT `+combinationColumns+`
		FROM capability_combinations WHERE user_id = ? AND capability_key = ?
	`, userID, key).Scan(&c.ID, &c.UserID, &c.Key, &capIDs, &c.TimesSuggested,
		&c.TimesRatedNegative, &c.PenaltyScore, &c.FirstSuggestedAt, &c.LastSuggestedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get combination: %w", err)
	}
	if c.CapabilityIDs, err = decodeIDs(capIDs); err != nil {
		return nil, fmt.Errorf("combination %s: %w", key, err)
	}
	return &c, nil
}

// RecordCombination creates the combination row with times_suggested = 1, or
// increments times_suggested if it already exists.
func (db *DB) RecordCombination(ctx context.Context, userID string, ids []int64) error {
	key := CombinationKey(ids)
	if key == "" {
		return fmt.Errorf("record combination: empty capability set")
	}
	capIDs, err := encodeIDs(SortedIDs(ids))
	if err != nil {
		return fmt.Errorf("record combination: %w", err)
	}

	now := time.Now().UnixMilli()
	_, err = db.ExecContext(ctx, `
		INSERT INTO capability_combinations (user_id, capability_key, capability_ids,
			times_suggested, first_suggested_at, last_suggested_at)
		VALUES (?, ?, ?, 1, ?, ?)
		ON CONFLICT(user_id, capability_key) DO UPDATE SET
			times_suggested = times_suggested + 1,
			last_suggested_at = excluded.last_suggested_at
	`, userID, key, capIDs, now, now)
	if err != nil {
		return fmt.Errorf("record combination: %w", err)
	}
	return nil
}

// ListCombinations returns every tracked combination for a user, most
// suggested first.
func (db *DB) ListCombinations(ctx context.Context, userID string) ([]Combination, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT `+combinationColumns+`
		FROM capability_combinations WHERE user_id = ?
		ORDER BY times_suggested DESC, capability_key ASC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list combinations: %w", err)
	}
	defer rows.Close()

	var combos []Combination
	for rows.Next() {
		var c Combination
		var capIDs string
		if err := rows.Scan(&c.ID, &c.UserID, &c.Key, &capIDs, &c.TimesSuggested,
			&c.TimesRatedNegative, &c.PenaltyScore, &c.FirstSuggestedAt, &c.LastSuggestedAt); err != nil {
			return nil, fmt.Errorf("scan combination: %w", err)
		}
		if c.CapabilityIDs, err = decodeIDs(capIDs); err != nil {
			return nil, fmt.Errorf("combination %s: %w", c.Key, err)
		}
		combos = append(combos, c)
	}
	return combos, rows.Err()
}

// CapabilityUsage returns, per capability ID, the total number of times any
// combination containing it has been suggested.
func (db *DB) CapabilityUsage(ctx context.Context, userID string) (map[int64]int, error) {
	combos, err := db.ListCombinations(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("capability usage: %w", err)
	}

	usage := make(map[int64]int)
	for _, c := range combos {
		for _, id := range c.CapabilityIDs {
			usage[id] += c.TimesSuggested
		}
	}
	return usage, nil
}
