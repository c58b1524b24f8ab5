package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Suggestion statuses. Only StatusPending is written by synthesis; the others
// belong to rating and build workflows.
const (
	StatusPending   = "pending"
	StatusRated     = "rated"
	StatusBuilt     = "built"
	StatusDismissed = "dismissed"
)

// Suggestion is a scored project idea as persisted.
type Suggestion struct {
	ID               string  `json:"id"`
	UserID           string  `json:"user_id"`
	RunID            string  `json:"run_id,omitempty"`
	Title            string  `json:"title"`
	Description      string  `json:"description"`
	Reasoning        string  `json:"reasoning"`
	CapabilityIDs    []int64 `json:"capability_ids"`
	MemoryIDs        []int64 `json:"memory_ids"`
	NoveltyScore     float64 `json:"novelty_score"`
	FeasibilityScore float64 `json:"feasibility_score"`
	InterestScore    float64 `json:"interest_score"`
	TotalPoints      int     `json:"total_points"`
	IsWildcard       bool    `json:"is_wildcard"`
	SlotType         string  `json:"slot_type"`
	Status           string  `json:"status"`
	CreatedAt        int64   `json:"created_at"`

	// Embedding of title and description, kept so later runs can compare
	// against history without re-embedding it.
	Embedding      []float64 `json:"-"`
	EmbeddingModel string    `json:"-"`
}

// SaveSuggestion persists a suggestion. An empty ID is assigned a new UUID and
// an empty status defaults to pending.
func (db *DB) SaveSuggestion(ctx context.Context, userID string, s *Suggestion) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if s.Status == "" {
		s.Status = StatusPending
	}
	if s.SlotType == "" {
		s.SlotType = "standard"
	}
	if s.CreatedAt == 0 {
		s.CreatedAt = time.Now().UnixMilli()
	}
	s.UserID = userID

	capIDs, err := encodeIDs(s.CapabilityIDs)
	if err != nil {
		return fmt.Errorf("save suggestion: encode capability ids: %w", err)
	}
	memIDs, err := encodeIDs(s.MemoryIDs)
	if err != nil {
		return fmt.Errorf("save suggestion: encode memory ids: %w", err)
	}

	var blob []byte
	var model sql.NullString
	if len(s.Embedding) > 0 {
		blob = encodeEmbedding(s.Embedding)
		model = sql.NullString{String: s.EmbeddingModel, Valid: true}
	}

	wildcard := 0
	if s.IsWildcard {
		wildcard = 1
	}

	var runID sql.NullString
	if s.RunID != "" {
		runID = sql.NullString{String: s.RunID, Valid: true}
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO suggestions (id, user_id, run_id, title, description, reasoning,
			capability_ids, memory_ids, novelty_score, feasibility_score, interest_score,
			total_points, is_wildcard, slot_type, status, embedding, embedding_model, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, s.ID, userID, runID, s.Title, s.Description, s.Reasoning,
		capIDs, memIDs, s.NoveltyScore, s.FeasibilityScore, s.InterestScore,
		s.TotalPoints, wildcard, s.SlotType, s.Status, blob, model, s.CreatedAt)
	if err != nil {
		return fmt.Errorf("save suggestion: %w", err)
	}
	return nil
}

const suggestionColumns = `id, user_id, run_id, title, description, reasoning,
	capability_ids, memory_ids, novelty_score, feasibility_score, interest_score,
	total_points, is_wildcard, slot_type, status, embedding, embedding_model, created_at`

// GetSuggestion returns a suggestion by ID, or nil if not found.
func (db *DB) GetSuggestion(ctx context.Context, id string) (*Suggestion, error) {
	rows, err := db.QueryContext(ctx, `SELECT `+suggestionColumns+` FROM suggestions WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("get suggestion: %w", err)
	}
	defer rows.Close()

	list, err := scanSuggestions(rows)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, nil
	}
	return &list[0], nil
}

// RecentSuggestions returns a user's most recent suggestions, newest first.
func (db *DB) RecentSuggestions(ctx context.Context, userID string, limit int) ([]Suggestion, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.QueryContext(ctx, `
		SELECT `+suggestionColumns+` FROM suggestions
		WHERE user_id = ? ORDER BY created_at DESC, rowid DESC LIMIT ?
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("recent suggestions: %w", err)
	}
	defer rows.Close()

	return scanSuggestions(rows)
}

// SuggestionsForRun returns the suggestions produced by one synthesis run in
// insertion order.
func (db *DB) SuggestionsForRun(ctx context.Context, runID string) ([]Suggestion, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT `+suggestionColumns+` FROM suggestions
		WHERE run_id = ? ORDER BY rowid ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("suggestions for run: %w", err)
	}
	defer rows.Close()

	return scanSuggestions(rows)
}

func scanSuggestions(rows *sql.Rows) ([]Suggestion, error) {
	var list []Suggestion
	for rows.Next() {
		var s Suggestion
		var runID, model sql.NullString
		var capIDs, memIDs string
		var wildcard int
		var blob []byte
		if err := rows.Scan(&s.ID, &s.UserID, &runID, &s.Title, &s.Description, &s.Reasoning,
			&capIDs, &memIDs, &s.NoveltyScore, &s.FeasibilityScore, &s.InterestScore,
			&s.TotalPoints, &wildcard, &s.SlotType, &s.Status, &blob, &model, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan suggestion: %w", err)
		}
		var err error
		if s.CapabilityIDs, err = decodeIDs(capIDs); err != nil {
			return nil, fmt.Errorf("suggestion %s: %w", s.ID, err)
		}
		if s.MemoryIDs, err = decodeIDs(memIDs); err != nil {
			return nil, fmt.Errorf("suggestion %s: %w", s.ID, err)
		}
		s.RunID = runID.String
		s.IsWildcard = wildcard != 0
		if len(blob) > 0 {
			s.Embedding = decodeEmbedding(blob)
			s.EmbeddingModel = model.String
		}
		list = append(list, s)
	}
	return list, rows.Err()
}
