// Package ingest loads capabilities and notes into the store, either one
// note at a time or from a JSONL import file.
package ingest

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"github.com/lazypower/polymath/internal/engine"
	"github.com/lazypower/polymath/internal/store"
)

const (
	KindCapability = "capability"
	KindNote       = "note"

	defaultTopicType = "topic"
	maxLineBytes     = 1024 * 1024
)

// Record is one line of an import file.
type Record struct {
	Kind string `json:"kind"`

	// capability
	Name          string  `json:"name,omitempty"`
	Description   string  `json:"description,omitempty"`
	Strength      float64 `json:"strength,omitempty"`
	SourceProject string  `json:"source_project,omitempty"`

	// note
	Body      string  `json:"body,omitempty"`
	Topics    []Topic `json:"topics,omitempty"`
	CreatedAt string  `json:"created_at,omitempty"` // RFC3339, empty means now
}

// Topic is a topic mention attached to a note.
type Topic struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// NoteInput is a note with its topic mentions.
type NoteInput struct {
	Body      string    `json:"body"`
	Topics    []Topic   `json:"topics"`
	CreatedAt time.Time `json:"created_at"`
}

// Store is the slice of the store an import writes to.
type Store interface {
	UpsertCapability(ctx context.Context, userID string, c *store.Capability) error
	CreateNote(ctx context.Context, userID, body string, createdAt time.Time) (*store.Note, error)
	AddMention(ctx context.Context, userID string, noteID int64, name, typ string, at time.Time) error
	SaveNoteVector(ctx context.Context, noteID int64, embedding []float64, model string) error
}

// Stats counts what an import wrote and skipped.
type Stats struct {
	Capabilities int `json:"capabilities"`
	Notes        int `json:"notes"`
	Mentions     int `json:"mentions"`
	Embedded     int `json:"embedded"`
	Malformed    int `json:"malformed"`
}

// Importer writes capabilities and notes for a user. A nil Embedder skips
// note vectors.
type Importer struct {
	Store    Store
	Embedder engine.Embedder
	Now      func() time.Time
}

// ParseLine decodes and validates one import line.
func ParseLine(line []byte) (*Record, error) {
	var rec Record
	if err := json.Unmarshal(line, &rec); err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}

	switch rec.Kind {
	case KindCapability:
		if strings.TrimSpace(rec.Name) == "" {
			return nil, errors.New("capability without name")
		}
		if rec.Strength < 0 {
			return nil, fmt.Errorf("capability %q: negative strength", rec.Name)
		}
	case KindNote:
		if strings.TrimSpace(rec.Body) == "" {
			return nil, errors.New("note without body")
		}
		if rec.CreatedAt != "" {
			if _, err := time.Parse(time.RFC3339, rec.CreatedAt); err != nil {
				return nil, fmt.Errorf("note created_at: %w", err)
			}
		}
		for _, t := range rec.Topics {
			if strings.TrimSpace(t.Name) == "" {
				return nil, errors.New("topic without name")
			}
		}
	default:
		return nil, fmt.Errorf("unknown kind %q", rec.Kind)
	}
	return &rec, nil
}

// ImportFile imports a JSONL file for the user.
func (im *Importer) ImportFile(ctx context.Context, userID, path string) (Stats, error) {
	f, err := os.Open(path)
	if err != nil {
		return Stats{}, fmt.Errorf("open import file: %w", err)
	}
	defer f.Close()
	return im.Import(ctx, userID, f)
}

// Import reads JSONL records from r. Malformed lines are counted and skipped;
// a store failure stops the import and returns the stats so far.
func (im *Importer) Import(ctx context.Context, userID string, r io.Reader) (Stats, error) {
	var stats Stats
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, maxLineBytes), maxLineBytes)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		rec, err := ParseLine([]byte(line))
		if err != nil {
			log.Printf("ingest: line %d: %v", lineNo, err)
			stats.Malformed++
			continue
		}

		switch rec.Kind {
		case KindCapability:
			c := store.Capability{
				Name:          strings.TrimSpace(rec.Name),
				Description:   rec.Description,
				Strength:      rec.Strength,
				SourceProject: rec.SourceProject,
			}
			if err := im.Store.UpsertCapability(ctx, userID, &c); err != nil {
				return stats, fmt.Errorf("line %d: %w", lineNo, err)
			}
			stats.Capabilities++

		case KindNote:
			in := NoteInput{Body: rec.Body, Topics: rec.Topics}
			if rec.CreatedAt != "" {
				in.CreatedAt, _ = time.Parse(time.RFC3339, rec.CreatedAt)
			}
			_, embedded, err := im.addNote(ctx, userID, in)
			if err != nil {
				return stats, fmt.Errorf("line %d: %w", lineNo, err)
			}
			stats.Notes++
			stats.Mentions += len(in.Topics)
			if embedded {
				stats.Embedded++
			}
		}
	}

	if err := scanner.Err(); err != nil {
		return stats, fmt.Errorf("scan import file: %w", err)
	}
	return stats, nil
}

// AddNote stores a note with its topic mentions and, when an embedder is
// configured, its vector. An embedding failure is logged and does not fail
// the note.
func (im *Importer) AddNote(ctx context.Context, userID string, in NoteInput) (*store.Note, error) {
	if strings.TrimSpace(in.Body) == "" {
		return nil, errors.New("add note: empty body")
	}
	note, _, err := im.addNote(ctx, userID, in)
	return note, err
}

func (im *Importer) addNote(ctx context.Context, userID string, in NoteInput) (*store.Note, bool, error) {
	at := in.CreatedAt
	if at.IsZero() {
		at = im.now()
	}

	note, err := im.Store.CreateNote(ctx, userID, in.Body, at)
	if err != nil {
		return nil, false, fmt.Errorf("create note: %w", err)
	}

	for _, t := range in.Topics {
		typ := strings.TrimSpace(t.Type)
		if typ == "" {
			typ = defaultTopicType
		}
		if err := im.Store.AddMention(ctx, userID, note.ID, strings.TrimSpace(t.Name), typ, at); err != nil {
			return note, false, fmt.Errorf("add mention %q: %w", t.Name, err)
		}
	}

	if im.Embedder == nil {
		return note, false, nil
	}
	vec, err := im.Embedder.Embed(ctx, note.Body)
	if err != nil {
		log.Printf("ingest: embed note %d: %v", note.ID, err)
		return note, false, nil
	}
	if err := im.Store.SaveNoteVector(ctx, note.ID, vec, im.Embedder.Model()); err != nil {
		log.Printf("ingest: save vector for note %d: %v", note.ID, err)
		return note, false, nil
	}
	return note, true, nil
}

func (im *Importer) now() time.Time {
	if im.Now == nil {
		return time.Now()
	}
	return im.Now()
}
