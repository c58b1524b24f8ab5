package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/lazypower/polymath/internal/engine"
	"github.com/lazypower/polymath/internal/metrics"
	"github.com/lazypower/polymath/internal/server"
	"github.com/lazypower/polymath/internal/store"
	"github.com/lazypower/polymath/internal/telemetry"
)

const (
	shutdownGrace  = 10 * time.Second
	backfillBudget = 5 * time.Minute
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (overrides server.bind and server.port)")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	shutdownTracing, err := telemetry.Init(ctx, cfg.Telemetry, Version)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: tracing disabled: %v\n", err)
		shutdownTracing = func(context.Context) error { return nil }
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		shutdownTracing(ctx)
	}()

	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	eng, err := newEngine(ctx, cfg, db)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: LLM not configured (%v), generation disabled\n", err)
		eng = nil
	} else {
		eng.Metrics = metrics.NewMetrics()
		fmt.Fprintf(os.Stderr, "  llm: %s (%s)\n", cfg.LLM.Provider, cfg.LLM.Model)
		go backfillVectors(ctx, db, eng.Embedder)
	}

	addr := serveAddr
	if addr == "" {
		addr = cfg.ListenAddr()
	}
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           server.New(db, eng, VersionString()),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "polymath serving on %s (db: %s)\n", addr, db.Path)
		errc <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	fmt.Fprintln(os.Stderr, "\nshutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

// backfillVectors embeds notes stored before the current embedder was
// configured. It stops when the server does.
func backfillVectors(ctx context.Context, db *store.DB, emb engine.Embedder) {
	if emb == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, backfillBudget)
	defer cancel()

	n, err := engine.EmbedMissingNotes(ctx, db, emb, userID)
	switch {
	case err != nil:
		fmt.Fprintf(os.Stderr, "embed missing: %v\n", err)
	case n > 0:
		fmt.Fprintf(os.Stderr, "  embedded %d missing notes with %s\n", n, emb.Model())
	}
}
