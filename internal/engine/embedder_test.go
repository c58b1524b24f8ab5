package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"slices"
	"sync"
	"testing"
	"time"
)

func TestOllamaEmbedder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embed" {
			t.Errorf("path = %s, want /api/embed", r.URL.Path)
		}
		var req map[string]any
		json.NewDecoder(r.Body).Decode(&req)
		if req["model"] != "nomic-embed-text" {
			t.Errorf("model = %v", req["model"])
		}
		w.Write([]byte(`{"embeddings":[[0.1,0.2,0.3]]}`))
	}))
	defer srv.Close()

	emb := NewOllamaEmbedder(srv.URL, "nomic-embed-text", 0)
	vec, err := emb.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vec) != 3 || emb.Dimensions() != 3 {
		t.Errorf("vec = %v, dims = %d", vec, emb.Dimensions())
	}
	if emb.Model() != "ollama:nomic-embed-text" {
		t.Errorf("model = %q", emb.Model())
	}
	if err := ProbeOllama(context.Background(), srv.URL, "nomic-embed-text"); err != nil {
		t.Errorf("ProbeOllama against a healthy server: %v", err)
	}
}

func TestOllamaEmbedderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer srv.Close()

	emb := NewOllamaEmbedder(srv.URL, "missing", 0)
	if _, err := emb.Embed(context.Background(), "hello"); err == nil {
		t.Error("expected error on 404")
	}
	if err := ProbeOllama(context.Background(), srv.URL, "missing"); err == nil {
		t.Error("ProbeOllama should report a missing model")
	}
}

// fakeOllama serves /api/embed, answering each input with [len(input)] and
// failing any request with more than maxBatch inputs.
func fakeOllama(t *testing.T, maxBatch int) (*httptest.Server, *[]int) {
	t.Helper()
	var mu sync.Mutex
	var sizes []int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req ollamaEmbedRequest
		json.NewDecoder(r.Body).Decode(&req)
		mu.Lock()
		sizes = append(sizes, len(req.Input))
		mu.Unlock()
		if len(req.Input) > maxBatch {
			http.Error(w, "batch too large", http.StatusBadRequest)
			return
		}
		var resp ollamaEmbedResponse
		for _, in := range req.Input {
			resp.Embeddings = append(resp.Embeddings, []float64{float64(len(in)), 1})
		}
		json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return srv, &sizes
}

func TestOllamaEmbedBatch(t *testing.T) {
	srv, sizes := fakeOllama(t, 10)
	emb := NewOllamaEmbedder(srv.URL, "m", 768)

	vecs, err := emb.EmbedBatch(context.Background(), []string{"a", "bb", "ccc"})
	if err != nil {
		t.Fatalf("EmbedBatch: %v", err)
	}
	if len(vecs) != 3 || vecs[2][0] != 3 {
		t.Errorf("vecs = %v", vecs)
	}
	if emb.Dimensions() != 2 {
		t.Errorf("dims = %d, want learned width 2", emb.Dimensions())
	}
	if len(*sizes) != 1 {
		t.Errorf("requests = %v, want one batched call", *sizes)
	}
}

func TestEmbedMissingNotesBatches(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	for i := range embedBatchSize + 3 {
		db.CreateNote(ctx, "u1", fmt.Sprintf("note %d", i), time.Time{})
	}

	srv, sizes := fakeOllama(t, embedBatchSize)
	n, err := EmbedMissingNotes(ctx, db, NewOllamaEmbedder(srv.URL, "m", 0), "u1")
	if err != nil {
		t.Fatalf("EmbedMissingNotes: %v", err)
	}
	if n != embedBatchSize+3 {
		t.Errorf("embedded %d, want %d", n, embedBatchSize+3)
	}
	if !slices.Equal(*sizes, []int{embedBatchSize, 3}) {
		t.Errorf("batch sizes = %v", *sizes)
	}
}

func TestEmbedMissingNotesBatchFallback(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	for i := range 3 {
		db.CreateNote(ctx, "u1", fmt.Sprintf("note %d", i), time.Time{})
	}

	srv, sizes := fakeOllama(t, 1)
	n, err := EmbedMissingNotes(ctx, db, NewOllamaEmbedder(srv.URL, "m", 0), "u1")
	if err != nil {
		t.Fatalf("EmbedMissingNotes: %v", err)
	}
	if n != 3 {
		t.Errorf("embedded %d, want 3", n)
	}
	if !slices.Equal(*sizes, []int{3, 1, 1, 1}) {
		t.Errorf("request sizes = %v, want failed batch then singles", *sizes)
	}
}

func TestEmbedMissingNotes(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	n1, _ := db.CreateNote(ctx, "u1", "first note", time.Time{})
	n2, _ := db.CreateNote(ctx, "u1", "second note", time.Time{})
	db.CreateNote(ctx, "u2", "someone else", time.Time{})

	emb := newFakeEmbedder()
	n, err := EmbedMissingNotes(ctx, db, emb, "u1")
	if err != nil {
		t.Fatalf("EmbedMissingNotes: %v", err)
	}
	if n != 2 {
		t.Errorf("embedded %d, want 2", n)
	}
	for _, id := range []int64{n1.ID, n2.ID} {
		rec, _ := db.GetNoteVector(ctx, id)
		if rec == nil || rec.Model != emb.Model() {
			t.Errorf("note %d vector = %+v", id, rec)
		}
	}

	// Second pass has nothing to do
	n, _ = EmbedMissingNotes(ctx, db, emb, "u1")
	if n != 0 {
		t.Errorf("second pass embedded %d, want 0", n)
	}

	// Failures are skipped, not fatal
	db.CreateNote(ctx, "u1", "third note", time.Time{})
	emb.err = errors.New("offline")
	n, err = EmbedMissingNotes(ctx, db, emb, "u1")
	if err != nil || n != 0 {
		t.Errorf("EmbedMissingNotes with failing embedder = %d, %v; want 0, nil", n, err)
	}
}

func TestEmbedMissingNotesNoEmbedder(t *testing.T) {
	db := testDB(t)
	n, err := EmbedMissingNotes(context.Background(), db, nil, "u1")
	if n != 0 || err != nil {
		t.Errorf("got %d, %v; want 0, nil", n, err)
	}
}
