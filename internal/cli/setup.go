package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/lazypower/polymath/internal/config"
	"github.com/lazypower/polymath/internal/engine"
	"github.com/lazypower/polymath/internal/llm"
	"github.com/lazypower/polymath/internal/store"
)

const (
	ollamaEmbeddingDims = 768
	tfidfMaxTerms       = 512
)

// loadConfig reads the config from --config or the default location.
func loadConfig() (config.Config, error) {
	path := configPath
	if path == "" {
		path = config.DefaultPath()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return cfg, fmt.Errorf("load config %s: %w", path, err)
	}
	return cfg, nil
}

// openDB opens the configured database, or the default one.
func openDB(cfg config.Config) (*store.DB, error) {
	dbPath := cfg.Database.Path
	if dbPath == "" {
		var err error
		dbPath, err = store.DefaultDBPath()
		if err != nil {
			return nil, fmt.Errorf("resolve db path: %w", err)
		}
	}
	db, err := store.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return db, nil
}

// newEmbedder prefers Ollama when an embedding model is configured and
// reachable, and otherwise fits TF-IDF on the stored notes.
func newEmbedder(ctx context.Context, cfg config.Config, db *store.DB, logw io.Writer) engine.Embedder {
	if model := cfg.LLM.EmbeddingModel; model != "" {
		url := cfg.LLM.OllamaURL
		if url == "" {
			url = "http://localhost:11434"
		}
		err := engine.ProbeOllama(ctx, url, model)
		if err == nil {
			fmt.Fprintf(logw, "  embedder: ollama (%s)\n", model)
			return engine.NewOllamaEmbedder(url, model, ollamaEmbeddingDims)
		}
		fmt.Fprintf(logw, "warning: ollama embedding model %s unavailable (%v), using tfidf\n", model, err)
	}

	emb, err := engine.FitTFIDF(ctx, db, tfidfMaxTerms)
	if err != nil {
		fmt.Fprintf(logw, "warning: tfidf embedder init failed (%v), comparing ideas by text\n", err)
		return nil
	}
	fmt.Fprintf(logw, "  embedder: tfidf (%d terms)\n", emb.Dimensions())
	return emb
}

// newEngine wires the LLM client, embedder and options from config.
func newEngine(ctx context.Context, cfg config.Config, db *store.DB) (*engine.Engine, error) {
	client, err := llm.NewClient(cfg.LLM)
	if err != nil {
		return nil, fmt.Errorf("llm client: %w", err)
	}

	eng := engine.New(db, client, engine.OptionsFromConfig(cfg.Synthesis, cfg.Interests))
	if emb := newEmbedder(ctx, cfg, db, os.Stderr); emb != nil {
		eng.SetEmbedder(emb)
	}
	return eng, nil
}
