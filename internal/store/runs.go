package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Run statuses.
const (
	RunRunning   = "running"
	RunCompleted = "completed"
	RunFailed    = "failed"
)

// Run records one synthesis run for a user.
type Run struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	StartedAt int64  `json:"started_at"`
	EndedAt   *int64 `json:"ended_at,omitempty"`
	Status    string `json:"status"`
	Requested int    `json:"requested"`
	Accepted  int    `json:"accepted"`
	Skipped   int    `json:"skipped"`
	Error     string `json:"error,omitempty"`
}

// StartRun creates a running synthesis run for a batch of the requested size.
func (db *DB) StartRun(ctx context.Context, userID string, requested int) (*Run, error) {
	now := time.Now().UnixMilli()
	run := &Run{
		ID:        uuid.NewString(),
		UserID:    userID,
		StartedAt: now,
		Status:    RunRunning,
		Requested: requested,
	}

	_, err := db.ExecContext(ctx, `
		INSERT INTO synthesis_runs (id, user_id, started_at, status, requested)
		VALUES (?, ?, ?, ?, ?)
	`, run.ID, userID, now, RunRunning, requested)
	if err != nil {
		return nil, fmt.Errorf("start run: %w", err)
	}
	return run, nil
}

// CompleteRun marks a running run as completed with its final counts.
func (db *DB) CompleteRun(ctx context.Context, runID string, accepted, skipped int) error {
	now := time.Now().UnixMilli()
	result, err := db.ExecContext(ctx, `
		UPDATE synthesis_runs SET status = ?, ended_at = ?, accepted = ?, skipped = ?
		WHERE id = ? AND status = ?
	`, RunCompleted, now, accepted, skipped, runID, RunRunning)
	if err != nil {
		return fmt.Errorf("complete run: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return fmt.Errorf("no running run found for %s", runID)
	}
	return nil
}

// FailRun marks a running run as failed, recording the reason.
func (db *DB) FailRun(ctx context.Context, runID, reason string) error {
	now := time.Now().UnixMilli()
	_, err := db.ExecContext(ctx, `
		UPDATE synthesis_runs SET status = ?, ended_at = ?, error = ?
		WHERE id = ? AND status = ?
	`, RunFailed, now, reason, runID, RunRunning)
	if err != nil {
		return fmt.Errorf("fail run: %w", err)
	}
	return nil
}

// GetRun returns a run by ID, or nil if not found.
func (db *DB) GetRun(ctx context.Context, runID string) (*Run, error) {
	var r Run
	var errMsg sql.NullString
	err := db.QueryRowContext(ctx, `
		SELECT id, user_id, started_at, ended_at, status, requested, accepted, skipped, error
		FROM synthesis_runs WHERE id = ?
	`, runID).Scan(&r.ID, &r.UserID, &r.StartedAt, &r.EndedAt, &r.Status,
		&r.Requested, &r.Accepted, &r.Skipped, &errMsg)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	r.Error = errMsg.String
	return &r, nil
}

// ListRuns returns a user's most recent runs, newest first.
func (db *DB) ListRuns(ctx context.Context, userID string, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.QueryContext(ctx, `
		SELECT id, user_id, started_at, ended_at, status, requested, accepted, skipped, error
		FROM synthesis_runs WHERE user_id = ?
		ORDER BY started_at DESC, rowid DESC LIMIT ?
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var errMsg sql.NullString
		if err := rows.Scan(&r.ID, &r.UserID, &r.StartedAt, &r.EndedAt, &r.Status,
			&r.Requested, &r.Accepted, &r.Skipped, &errMsg); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.Error = errMsg.String
		runs = append(runs, r)
	}
	return runs, rows.Err()
}
