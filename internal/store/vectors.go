package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"time"
)

// VectorRecord is a stored note embedding.
type VectorRecord struct {
	NoteID     int64
	Embedding  []float64
	Model      string
	Dimensions int
	CreatedAt  int64
}

// Embeddings are stored as little-endian float64 blobs.
func encodeEmbedding(vec []float64) []byte {
	buf, _ := binary.Append(make([]byte, 0, len(vec)*8), binary.LittleEndian, vec)
	return buf
}

// decodeEmbedding ignores a trailing partial value.
func decodeEmbedding(buf []byte) []float64 {
	vec := make([]float64, len(buf)/8)
	binary.Decode(buf, binary.LittleEndian, vec)
	return vec
}

// SaveNoteVector stores or replaces the embedding for a note.
func (db *DB) SaveNoteVector(ctx context.Context, noteID int64, embedding []float64, model string) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO note_vectors (note_id, embedding, model, dimensions, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(note_id) DO UPDATE SET
			embedding = excluded.embedding,
			model = excluded.model,
			dimensions = excluded.dimensions,
			created_at = excluded.created_at
	`, noteID, encodeEmbedding(embedding), model, len(embedding), time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("save note vector: %w", err)
	}
	return nil
}

// GetNoteVector returns the embedding for a note, or nil if not found.
func (db *DB) GetNoteVector(ctx context.Context, noteID int64) (*VectorRecord, error) {
	var v VectorRecord
	var blob []byte

	err := db.QueryRowContext(ctx, `
		SELECT note_id, embedding, model, dimensions, created_at
		FROM note_vectors WHERE note_id = ?
	`, noteID).Scan(&v.NoteID, &blob, &v.Model, &v.Dimensions, &v.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get note vector: %w", err)
	}
	v.Embedding = decodeEmbedding(blob)
	return &v, nil
}

// SampleNoteVectors returns up to limit randomly chosen note embeddings for a
// user, restricted to vectors produced by model.
func (db *DB) SampleNoteVectors(ctx context.Context, userID, model string, limit int) ([][]float64, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT v.embedding
		FROM note_vectors v JOIN notes n ON n.id = v.note_id
		WHERE n.user_id = ? AND v.model = ?
		ORDER BY RANDOM() LIMIT ?
	`, userID, model, limit)
	if err != nil {
		return nil, fmt.Errorf("sample note vectors: %w", err)
	}
	defer rows.Close()

	var vecs [][]float64
	for rows.Next() {
		var blob []byte
		if err := rows.Scan(&blob); err != nil {
			return nil, fmt.Errorf("scan note vector: %w", err)
		}
		vecs = append(vecs, decodeEmbedding(blob))
	}
	return vecs, rows.Err()
}
