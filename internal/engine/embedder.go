package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/lazypower/polymath/internal/store"
)

// Embedder generates vector embeddings for text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
	Model() string
	Dimensions() int
}

// BatchEmbedder is an Embedder that can embed several texts in one call.
type BatchEmbedder interface {
	Embedder
	EmbedBatch(ctx context.Context, texts []string) ([][]float64, error)
}

// OllamaEmbedder uses Ollama's /api/embed endpoint.
type OllamaEmbedder struct {
	url    string
	model  string
	dims   atomic.Int64 // learned from the first response
	client *http.Client
}

// NewOllamaEmbedder creates an embedder using Ollama's API. dims is the
// expected width until a response reports the real one.
func NewOllamaEmbedder(url, model string, dims int) *OllamaEmbedder {
	o := &OllamaEmbedder{
		url:    url,
		model:  model,
		client: &http.Client{Timeout: 30 * time.Second},
	}
	o.dims.Store(int64(dims))
	return o
}

func (o *OllamaEmbedder) Model() string  { return "ollama:" + o.model }
func (o *OllamaEmbedder) Dimensions() int { return int(o.dims.Load()) }

type ollamaEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type ollamaEmbedResponse struct {
	Embeddings [][]float64 `json:"embeddings"`
}

// Embed embeds a single text.
func (o *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	vecs, err := o.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds texts in one request. The result has one vector per
// input, in order.
func (o *OllamaEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	body, err := json.Marshal(ollamaEmbedRequest{Model: o.model, Input: texts})
	if err != nil {
		return nil, fmt.Errorf("marshal embed request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.url+"/api/embed", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create embed request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollama embed api: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("ollama embed status %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}

	var result ollamaEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode embed response: %w", err)
	}
	if len(result.Embeddings) != len(texts) {
		return nil, fmt.Errorf("ollama returned %d embeddings for %d inputs", len(result.Embeddings), len(texts))
	}

	o.dims.Store(int64(len(result.Embeddings[0])))
	return result.Embeddings, nil
}

// ProbeOllama checks that Ollama is reachable and serves the embedding
// model. A nil error means the model answered.
func ProbeOllama(ctx context.Context, url, model string) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	_, err := NewOllamaEmbedder(url, model, 0).Embed(ctx, "probe")
	return err
}

// NoteVectorStore is the slice of the store EmbedMissingNotes needs.
type NoteVectorStore interface {
	NotesMissingVectors(ctx context.Context, userID, model string) ([]store.Note, error)
	SaveNoteVector(ctx context.Context, noteID int64, embedding []float64, model string) error
}

const embedBatchSize = 32

// EmbedMissingNotes embeds every note for the user that has no vector or
// whose vector came from a different model. Batch-capable embedders are
// called embedBatchSize notes at a time; a failed batch is retried note by
// note. Individual failures are logged and skipped.
func EmbedMissingNotes(ctx context.Context, db NoteVectorStore, emb Embedder, userID string) (int, error) {
	if emb == nil {
		return 0, nil
	}

	notes, err := db.NotesMissingVectors(ctx, userID, emb.Model())
	if err != nil {
		return 0, fmt.Errorf("list notes missing vectors: %w", err)
	}

	embedded := 0
	batcher, _ := emb.(BatchEmbedder)
	for start := 0; start < len(notes); start += embedBatchSize {
		chunk := notes[start:min(start+embedBatchSize, len(notes))]
		vecs := embedChunk(ctx, emb, batcher, chunk)
		for i, n := range chunk {
			if vecs[i] == nil {
				continue
			}
			if err := db.SaveNoteVector(ctx, n.ID, vecs[i], emb.Model()); err != nil {
				log.Printf("embed missing: save note %d: %v", n.ID, err)
				continue
			}
			embedded++
		}
	}
	return embedded, nil
}

// embedChunk returns one vector per note, nil where embedding failed.
func embedChunk(ctx context.Context, emb Embedder, batcher BatchEmbedder, notes []store.Note) [][]float64 {
	if batcher != nil && len(notes) > 1 {
		texts := make([]string, len(notes))
		for i, n := range notes {
			texts[i] = n.Body
		}
		vecs, err := batcher.EmbedBatch(ctx, texts)
		if err == nil {
			return vecs
		}
		log.Printf("embed missing: batch of %d: %v, embedding one at a time", len(notes), err)
	}

	vecs := make([][]float64, len(notes))
	for i, n := range notes {
		vec, err := emb.Embed(ctx, n.Body)
		if err != nil {
			log.Printf("embed missing: note %d: %v", n.ID, err)
			continue
		}
		vecs[i] = vec
	}
	return vecs
}
