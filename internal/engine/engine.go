package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand/v2"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/lazypower/polymath/internal/llm"
	"github.com/lazypower/polymath/internal/metrics"
	"github.com/lazypower/polymath/internal/store"
)

const tracerName = "github.com/lazypower/polymath/internal/engine"

// Store is everything a synthesis run reads and writes. *store.DB satisfies
// it.
type Store interface {
	ListCapabilities(ctx context.Context, userID string) ([]store.Capability, error)
	MentionSource
	NoteVectorSource
	CombinationLookup
	RecordCombination(ctx context.Context, userID string, ids []int64) error
	CapabilityUsage(ctx context.Context, userID string) (map[int64]int, error)
	SaveSuggestion(ctx context.Context, userID string, s *store.Suggestion) error
	RecentSuggestions(ctx context.Context, userID string, limit int) ([]store.Suggestion, error)
	StartRun(ctx context.Context, userID string, requested int) (*store.Run, error)
	CompleteRun(ctx context.Context, runID string, accepted, skipped int) error
	FailRun(ctx context.Context, runID, reason string) error
}

// Engine runs suggestion synthesis for a user.
type Engine struct {
	Store    Store
	LLM      llm.Client
	Embedder Embedder         // nil falls back to text similarity
	Metrics  *metrics.Metrics // nil disables metrics
	Options  Options
	Rand     *rand.Rand
	Now      func() time.Time
}

// New creates an Engine with a time-seeded random source.
func New(st Store, client llm.Client, opts Options) *Engine {
	now := time.Now()
	return &Engine{
		Store:   st,
		LLM:     client,
		Options: opts,
		Rand:    rand.New(rand.NewPCG(uint64(now.UnixNano()), uint64(now.Unix()))),
		Now:     time.Now,
	}
}

// SetEmbedder configures the embedding provider.
func (e *Engine) SetEmbedder(emb Embedder) {
	e.Embedder = emb
}

// Result is the outcome of one run.
type Result struct {
	RunID       string             `json:"run_id"`
	Suggestions []store.Suggestion `json:"suggestions"`
	Skipped     int                `json:"skipped"`
}

// runInputs are loaded once per run and read by every slot.
type runInputs struct {
	userID       string
	capabilities []store.Capability
	interests    []store.Interest
	usage        map[int64]int
	history      []Candidate
}

// Run generates, admits and persists one batch of suggestions. It returns an
// error wrapping ErrFatalPrecondition when the user has fewer than two
// capabilities; every other failure is contained to its slot or suggestion
// and logged. A batch shorter than requested, even empty, is not an error.
func (e *Engine) Run(ctx context.Context, userID string) (*Result, error) {
	opts := e.Options.withDefaults()
	started := e.now()

	ctx, span := otel.Tracer(tracerName).Start(ctx, "synthesis.run",
		trace.WithAttributes(
			attribute.String("user.id", userID),
			attribute.Int("batch.size", opts.BatchSize),
		))
	defer span.End()

	runID := ""
	if run, err := e.Store.StartRun(ctx, userID, opts.BatchSize); err != nil {
		log.Printf("engine: %v", &ServiceError{Service: "store", Op: "start run", Err: err})
	} else {
		runID = run.ID
	}

	in, err := e.loadInputs(ctx, userID, opts)
	if err != nil {
		log.Printf("engine: run %s aborted: %v", runID, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if runID != "" {
			if ferr := e.Store.FailRun(ctx, runID, err.Error()); ferr != nil {
				log.Printf("engine: %v", &ServiceError{Service: "store", Op: "fail run", Err: ferr})
			}
		}
		e.Metrics.RecordRun(store.RunFailed, e.now().Sub(started))
		return nil, err
	}

	gen := &Generator{
		LLM:                 e.LLM,
		Rand:                e.rng(),
		Temperature:         opts.Temperature,
		CreativeTemperature: opts.CreativeTemperature,
		MaxTokens:           opts.MaxTokens,
		MaxContextInterests: opts.MaxContextInterests,
	}
	scorer := &Scorer{
		Combinations:   e.Store,
		Notes:          e.Store,
		Embedder:       e.Embedder,
		NoteSampleSize: opts.NoteSampleSize,
	}
	enforcer := NewEnforcer(opts)

	state := NewBatchState()
	skipped := 0
	schedule := SlotSchedule(opts.BatchSize, opts.WildcardFrequency, opts.CreativeFrequency, len(in.interests))
	for i, slot := range schedule {
		cand, ok := e.runSlot(ctx, in, i, slot, gen, scorer, enforcer, state)
		if !ok {
			skipped++
			continue
		}
		state.Accept(*cand)
	}

	result := &Result{RunID: runID, Skipped: skipped}
	result.Suggestions = e.persist(ctx, userID, runID, state.Accepted)

	if runID != "" {
		if err := e.Store.CompleteRun(ctx, runID, len(state.Accepted), skipped); err != nil {
			log.Printf("engine: %v", &ServiceError{Service: "store", Op: "complete run", Err: err})
		}
	}

	span.SetAttributes(
		attribute.Int("batch.accepted", len(state.Accepted)),
		attribute.Int("batch.skipped", skipped),
	)
	e.Metrics.RecordRun(store.RunCompleted, e.now().Sub(started))
	log.Printf("engine: run %s for %s: %d accepted, %d skipped", runID, userID, len(state.Accepted), skipped)
	return result, nil
}

// Interests extracts the user's current interests using the engine's window
// and mention threshold.
func (e *Engine) Interests(ctx context.Context, userID string) ([]store.Interest, error) {
	opts := e.Options.withDefaults()
	return ExtractInterests(ctx, e.Store, userID, e.now(), opts.InterestWindow, opts.MinMentions)
}

// loadInputs reads capabilities, interests, capability usage and history.
// Only the capability precondition is fatal.
func (e *Engine) loadInputs(ctx context.Context, userID string, opts Options) (*runInputs, error) {
	caps, err := e.Store.ListCapabilities(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: load capabilities: %v", ErrFatalPrecondition, err)
	}
	if len(caps) < 2 {
		return nil, fmt.Errorf("%w: user %s has %d capabilities, need at least 2", ErrFatalPrecondition, userID, len(caps))
	}

	in := &runInputs{userID: userID, capabilities: caps}

	in.interests, err = e.Interests(ctx, userID)
	if err != nil {
		log.Printf("engine: interests unavailable, scoring neutral: %v", err)
		in.interests = nil
	}

	in.usage, err = e.Store.CapabilityUsage(ctx, userID)
	if err != nil {
		log.Printf("engine: %v", &ServiceError{Service: "store", Op: "capability usage", Err: err})
		in.usage = map[int64]int{}
	}

	in.history = e.loadHistory(ctx, userID, opts.HistoryLimit)
	return in, nil
}

// loadHistory returns the user's recent suggestions as candidates. Stored
// vectors from another model are re-embedded; when that fails the entry is
// compared by text only.
func (e *Engine) loadHistory(ctx context.Context, userID string, limit int) []Candidate {
	recent, err := e.Store.RecentSuggestions(ctx, userID, limit)
	if err != nil {
		log.Printf("engine: %v", &ServiceError{Service: "store", Op: "recent suggestions", Err: err})
		return nil
	}

	history := make([]Candidate, len(recent))
	for i, s := range recent {
		history[i] = Candidate{Suggestion: s}
		if e.Embedder == nil {
			history[i].Embedding = nil
			continue
		}
		if len(s.Embedding) > 0 && s.EmbeddingModel == e.Embedder.Model() {
			continue
		}
		history[i].Embedding = e.embedIdea(ctx, s.Title, s.Description)
	}
	return history
}

// runSlot drives generate → score → enforce for one slot, returning the
// admitted candidate or false when the slot is skipped.
func (e *Engine) runSlot(ctx context.Context, in *runInputs, index int, slot SlotType,
	gen *Generator, scorer *Scorer, enforcer Enforcer, state *BatchState) (*Candidate, bool) {

	ctx, span := otel.Tracer(tracerName).Start(ctx, "synthesis.slot",
		trace.WithAttributes(
			attribute.Int("slot.index", index),
			attribute.String("slot.type", string(slot)),
		))
	defer span.End()

	finish := func(outcome string, attempts int) {
		span.SetAttributes(
			attribute.String("slot.outcome", outcome),
			attribute.Int("slot.attempts", attempts),
		)
		e.Metrics.RecordSlot(string(slot), outcome, attempts)
	}

	var lastRejected *Candidate
	var lastErr error
	for attempt := 1; attempt <= enforcer.MaxAttempts; attempt++ {
		cand, err := e.generateCandidate(ctx, in, index, slot, gen, scorer, state)
		if err != nil {
			lastErr = err
			e.Metrics.RecordGenerationFailure(failureKind(err))
			log.Printf("engine: slot %d attempt %d: %v", index+1, attempt, err)

			if attempt == enforcer.MaxAttempts && lastRejected != nil {
				log.Printf("engine: slot %d: final attempt failed, force-accepting %q", index+1, lastRejected.Title)
				finish("forced", attempt)
				return lastRejected, true
			}
			continue
		}

		v := enforcer.Evaluate(state, cand, in.history, attempt)
		if v.Accepted {
			outcome := "accepted"
			switch {
			case v.Forced:
				outcome = "forced"
				log.Printf("engine: slot %d attempt %d: force-accepting %q (%s)", index+1, attempt, cand.Title, v.Reason)
			case v.Relaxed:
				outcome = "relaxed"
				log.Printf("engine: slot %d attempt %d: accepted %q under relaxed history threshold (history %.2f)",
					index+1, attempt, cand.Title, v.HistorySim)
			}
			finish(outcome, attempt)
			return cand, true
		}

		e.Metrics.RecordRejection(v.Reason)
		log.Printf("engine: slot %d attempt %d: rejected %q: %s (history %.2f, batch %.2f)",
			index+1, attempt, cand.Title, v.Reason, v.HistorySim, v.BatchSim)
		lastRejected = cand
	}

	log.Printf("engine: slot %d (%s) skipped after %d attempts: %v", index+1, slot, enforcer.MaxAttempts, lastErr)
	finish("skipped", enforcer.MaxAttempts)
	return nil, false
}

// generateCandidate selects capabilities, generates a fresh draft, embeds it
// and scores it.
func (e *Engine) generateCandidate(ctx context.Context, in *runInputs, index int, slot SlotType,
	gen *Generator, scorer *Scorer, state *BatchState) (*Candidate, error) {

	caps, _ := gen.SelectCapabilities(slot, index, in.capabilities, in.usage, state.HasKey)

	draft, err := gen.Generate(ctx, slot, caps, in.interests)
	if err != nil {
		return nil, err
	}

	cand := &Candidate{
		Suggestion: store.Suggestion{
			UserID:        in.userID,
			Title:         draft.Title,
			Description:   draft.Description,
			Reasoning:     draft.Reasoning,
			CapabilityIDs: store.SortedIDs(capabilityIDs(caps)),
			MemoryIDs:     memoryIDs(gen.ContextInterests(in.interests)),
			IsWildcard:    slot == SlotWildcard,
			SlotType:      string(slot),
			Status:        store.StatusPending,
		},
		Capabilities: caps,
	}
	if vec := e.embedIdea(ctx, draft.Title, draft.Description); vec != nil {
		cand.Embedding = vec
		cand.EmbeddingModel = e.Embedder.Model()
	}

	scorer.Score(ctx, in.userID, cand, in.interests)
	return cand, nil
}

// embedIdea embeds title and description, returning nil when there is no
// embedder or the call fails.
func (e *Engine) embedIdea(ctx context.Context, title, description string) []float64 {
	if e.Embedder == nil {
		return nil
	}
	vec, err := e.Embedder.Embed(ctx, title+"\n"+description)
	if err != nil {
		log.Printf("engine: %v", &ServiceError{Service: "embedder", Op: "embed idea", Err: err})
		return nil
	}
	return vec
}

// persist writes accepted candidates as pending suggestions and records their
// capability combinations. Failures are per suggestion and never roll back
// earlier writes. Every accepted suggestion is returned.
func (e *Engine) persist(ctx context.Context, userID, runID string, accepted []Candidate) []store.Suggestion {
	out := make([]store.Suggestion, 0, len(accepted))
	for _, c := range accepted {
		s := c.Suggestion
		s.RunID = runID
		s.Status = store.StatusPending

		if err := e.Store.SaveSuggestion(ctx, userID, &s); err != nil {
			log.Printf("engine: %v", &ServiceError{Service: "store", Op: "save suggestion " + s.Title, Err: err})
		} else {
			e.Metrics.RecordPersisted()
		}

		if len(s.CapabilityIDs) > 0 {
			if err := e.Store.RecordCombination(ctx, userID, s.CapabilityIDs); err != nil {
				log.Printf("engine: %v", &ServiceError{Service: "store", Op: "record combination " + store.CombinationKey(s.CapabilityIDs), Err: err})
			}
		}
		out = append(out, s)
	}
	return out
}

func (e *Engine) now() time.Time {
	if e.Now == nil {
		return time.Now()
	}
	return e.Now()
}

func (e *Engine) rng() *rand.Rand {
	if e.Rand == nil {
		e.Rand = rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0))
	}
	return e.Rand
}

// failureKind labels a generation failure for metrics.
func failureKind(err error) string {
	var pf *ParseFailure
	if errors.As(err, &pf) {
		return "parse"
	}
	return "llm"
}

// memoryIDs unions the note IDs behind the given interests.
func memoryIDs(interests []store.Interest) []int64 {
	seen := make(map[int64]bool)
	var ids []int64
	for _, in := range interests {
		for _, id := range in.MemoryIDs {
			if !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
	}
	return ids
}
