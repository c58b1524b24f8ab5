package engine

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/lazypower/polymath/internal/llm"
	"github.com/lazypower/polymath/internal/store"
)

func testEngine(db Store, client llm.Client, opts Options) (*Engine, *fakeEmbedder) {
	e := New(db, client, opts)
	e.Rand = testRand()
	emb := newFakeEmbedder()
	e.SetEmbedder(emb)
	return e, emb
}

func unitVec(cos float64) []float64 {
	return []float64{cos, math.Sqrt(1 - cos*cos)}
}

func TestRunFatalPrecondition(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	seedCapabilities(t, db, "u1", 1)

	client := scriptedClient()
	e, _ := testEngine(db, client, Options{})

	result, err := e.Run(ctx, "u1")
	if !errors.Is(err, ErrFatalPrecondition) {
		t.Fatalf("err = %v, want ErrFatalPrecondition", err)
	}
	if result != nil {
		t.Errorf("result = %+v, want nil", result)
	}
	if client.calls() != 0 {
		t.Errorf("generator called %d times before precondition check", client.calls())
	}

	runs, _ := db.ListRuns(ctx, "u1", 0)
	if len(runs) != 1 || runs[0].Status != store.RunFailed {
		t.Errorf("runs = %+v, want one failed run", runs)
	}
}

// brokenCapabilities fails to list capabilities.
type brokenCapabilities struct{ *store.DB }

func (brokenCapabilities) ListCapabilities(context.Context, string) ([]store.Capability, error) {
	return nil, errors.New("connection reset")
}

func TestRunCapabilityLoadFailureIsFatal(t *testing.T) {
	db := testDB(t)
	e, _ := testEngine(brokenCapabilities{db}, scriptedClient(), Options{})

	_, err := e.Run(context.Background(), "u1")
	if !errors.Is(err, ErrFatalPrecondition) {
		t.Fatalf("err = %v, want ErrFatalPrecondition", err)
	}
}

func TestRunProducesFullBatch(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	seedCapabilities(t, db, "u1", 8)

	client := scriptedClient()
	e, _ := testEngine(db, client, Options{})

	result, err := e.Run(ctx, "u1")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(result.Suggestions) != 10 || result.Skipped != 0 {
		t.Fatalf("got %d suggestions, %d skipped; want 10, 0", len(result.Suggestions), result.Skipped)
	}

	keys := map[string]bool{}
	for i, s := range result.Suggestions {
		want := CompositePoints(s.NoveltyScore, s.FeasibilityScore, s.InterestScore)
		if s.TotalPoints != want {
			t.Errorf("suggestion %d total = %d, want %d", i, s.TotalPoints, want)
		}
		if s.NoveltyScore != 1.0 {
			t.Errorf("suggestion %d novelty = %f, want 1.0 for a fresh user", i, s.NoveltyScore)
		}
		if s.InterestScore != 0.5 {
			t.Errorf("suggestion %d interest = %f, want neutral 0.5", i, s.InterestScore)
		}
		key := store.CombinationKey(s.CapabilityIDs)
		if key == "" {
			t.Errorf("suggestion %d has no capabilities without interests", i)
		}
		if keys[key] {
			t.Errorf("capability set %s appears twice in the batch", key)
		}
		keys[key] = true
		if s.Status != store.StatusPending || s.RunID != result.RunID {
			t.Errorf("suggestion %d status/run = %s/%s", i, s.Status, s.RunID)
		}
	}

	// No interests: slots 4 and 8 are wildcard, the rest standard.
	for i, s := range result.Suggestions {
		wantWildcard := i == 3 || i == 7
		if s.IsWildcard != wantWildcard {
			t.Errorf("suggestion %d wildcard = %v, want %v", i, s.IsWildcard, wantWildcard)
		}
		if s.SlotType == string(SlotCreative) {
			t.Errorf("suggestion %d is creative without interests", i)
		}
	}

	stored, _ := db.RecentSuggestions(ctx, "u1", 0)
	if len(stored) != 10 {
		t.Errorf("persisted %d suggestions, want 10", len(stored))
	}
	for _, s := range stored {
		if s.EmbeddingModel != "fake" || len(s.Embedding) != fakeDims {
			t.Errorf("suggestion %q stored without its embedding", s.Title)
		}
	}

	combos, _ := db.ListCombinations(ctx, "u1")
	if len(combos) != 10 {
		t.Errorf("recorded %d combinations, want 10", len(combos))
	}
	for _, c := range combos {
		if c.TimesSuggested != 1 {
			t.Errorf("combination %s times_suggested = %d, want 1", c.Key, c.TimesSuggested)
		}
	}

	run, _ := db.GetRun(ctx, result.RunID)
	if run == nil || run.Status != store.RunCompleted || run.Accepted != 10 || run.Skipped != 0 {
		t.Errorf("run = %+v, want completed 10/0", run)
	}
}

func TestRunWithInterestsSchedulesCreativeSlots(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	seedCapabilities(t, db, "u1", 8)
	now := time.Now()
	breadNotes := addMentions(t, db, "u1", "sourdough", "topic", 4, now.Add(-time.Hour))
	addMentions(t, db, "u1", "jazz", "topic", 3, now.Add(-time.Hour))

	client := scriptedClient()
	e, _ := testEngine(db, client, Options{})

	result, err := e.Run(ctx, "u1")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(result.Suggestions) != 10 {
		t.Fatalf("got %d suggestions, want 10", len(result.Suggestions))
	}

	for _, i := range []int{2, 5, 8} {
		s := result.Suggestions[i]
		if s.SlotType != string(SlotCreative) {
			t.Errorf("slot %d type = %s, want creative", i+1, s.SlotType)
			continue
		}
		if len(s.CapabilityIDs) != 0 {
			t.Errorf("creative slot %d has capabilities %v", i+1, s.CapabilityIDs)
		}
		if s.NoveltyScore != 0.8 || s.FeasibilityScore != 0.9 || s.InterestScore != 1.0 || s.TotalPoints != 90 {
			t.Errorf("creative slot %d scores = %.2f/%.2f/%.2f (%d)", i+1,
				s.NoveltyScore, s.FeasibilityScore, s.InterestScore, s.TotalPoints)
		}
		if len(s.MemoryIDs) < len(breadNotes) {
			t.Errorf("creative slot %d memory ids = %v, want provenance from interest notes", i+1, s.MemoryIDs)
		}
	}

	creative := 0
	for _, req := range client.requests {
		if strings.Contains(req.Prompt, "non-technical") {
			creative++
			if req.Temperature != DefaultCreativeTemperature {
				t.Errorf("creative temperature = %f, want %f", req.Temperature, DefaultCreativeTemperature)
			}
		} else if req.Temperature != DefaultTemperature {
			t.Errorf("standard temperature = %f, want %f", req.Temperature, DefaultTemperature)
		}
	}
	if creative != 3 {
		t.Errorf("creative prompts = %d, want 3", creative)
	}

	combos, _ := db.ListCombinations(ctx, "u1")
	if len(combos) != 7 {
		t.Errorf("recorded %d combinations, want 7 (creative ideas are not tracked)", len(combos))
	}

	saved, _ := db.ListInterests(ctx, "u1")
	if len(saved) != 2 {
		t.Errorf("interest markers written = %d, want 2", len(saved))
	}
}

func TestRunRejectsNearDuplicateInBatch(t *testing.T) {
	db := testDB(t)
	seedCapabilities(t, db, "u1", 8)

	client := scriptedClient("Alpha", "Beta", "Gamma")
	e, emb := testEngine(db, client, Options{BatchSize: 2})
	emb.fixed["Alpha"] = unitVec(1)
	emb.fixed["Beta"] = unitVec(0.95)
	emb.fixed["Gamma"] = []float64{0, 0, 1}

	result, err := e.Run(context.Background(), "u1")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(result.Suggestions) != 2 {
		t.Fatalf("got %d suggestions, want 2", len(result.Suggestions))
	}
	if result.Suggestions[0].Title != "Alpha" {
		t.Errorf("first = %q, want Alpha", result.Suggestions[0].Title)
	}
	for _, s := range result.Suggestions {
		if s.Title == "Beta" {
			t.Error("Beta is 0.95 similar to Alpha and must be rejected before the final attempt")
		}
	}
	if client.calls() < 3 {
		t.Errorf("calls = %d, want at least 3", client.calls())
	}
}

func saveHistory(t *testing.T, db *store.DB, userID, title string, vec []float64) {
	t.Helper()
	s := &store.Suggestion{
		Title:          title,
		Description:    "Build " + title + " end to end",
		CapabilityIDs:  []int64{99},
		TotalPoints:    50,
		Embedding:      append(vec, make([]float64, fakeDims-len(vec))...),
		EmbeddingModel: "fake",
	}
	if err := db.SaveSuggestion(context.Background(), userID, s); err != nil {
		t.Fatalf("SaveSuggestion: %v", err)
	}
}

func TestRunRelaxesHistoryThreshold(t *testing.T) {
	db := testDB(t)
	seedCapabilities(t, db, "u1", 4)
	saveHistory(t, db, "u1", "Old idea", unitVec(1))

	client := &funcClient{fn: func(int, llm.Request) (string, error) {
		return ideaJSON("Echo"), nil
	}}
	e, emb := testEngine(db, client, Options{BatchSize: 1})
	emb.fixed["Echo"] = unitVec(0.88)

	result, err := e.Run(context.Background(), "u1")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(result.Suggestions) != 1 || result.Suggestions[0].Title != "Echo" {
		t.Fatalf("suggestions = %+v, want Echo", result.Suggestions)
	}
	if client.calls() != DefaultRelaxAfterAttempt {
		t.Errorf("calls = %d, want acceptance on attempt %d", client.calls(), DefaultRelaxAfterAttempt)
	}
}

func TestRunForcesAcceptanceOnFinalAttempt(t *testing.T) {
	db := testDB(t)
	seedCapabilities(t, db, "u1", 4)
	saveHistory(t, db, "u1", "Old idea", unitVec(1))

	client := &funcClient{fn: func(int, llm.Request) (string, error) {
		return ideaJSON("Copy"), nil
	}}
	e, emb := testEngine(db, client, Options{BatchSize: 1})
	emb.fixed["Copy"] = unitVec(1)

	result, err := e.Run(context.Background(), "u1")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(result.Suggestions) != 1 {
		t.Fatalf("got %d suggestions, want forced 1", len(result.Suggestions))
	}
	if client.calls() != DefaultMaxAttempts {
		t.Errorf("calls = %d, want %d", client.calls(), DefaultMaxAttempts)
	}
}

func TestRunSkipsUnparsableSlots(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	seedCapabilities(t, db, "u1", 4)

	client := &funcClient{fn: func(int, llm.Request) (string, error) {
		return "I'm sorry, I can't help with that.", nil
	}}
	e, _ := testEngine(db, client, Options{BatchSize: 4, MaxAttempts: 3, RelaxAfterAttempt: 2})

	result, err := e.Run(ctx, "u1")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(result.Suggestions) != 0 || result.Skipped != 4 {
		t.Errorf("got %d suggestions, %d skipped; want 0, 4", len(result.Suggestions), result.Skipped)
	}
	if client.calls() != 12 {
		t.Errorf("calls = %d, want 4 slots x 3 attempts", client.calls())
	}

	run, _ := db.GetRun(ctx, result.RunID)
	if run.Status != store.RunCompleted || run.Skipped != 4 {
		t.Errorf("run = %+v, want completed with 4 skipped", run)
	}
}

func TestRunSurvivesGeneratorErrors(t *testing.T) {
	db := testDB(t)
	seedCapabilities(t, db, "u1", 8)

	client := &funcClient{fn: func(n int, _ llm.Request) (string, error) {
		if n%2 == 0 {
			return "", errors.New("503 overloaded")
		}
		return ideaJSON("Idea " + strings.Repeat("x", n)), nil
	}}
	e, _ := testEngine(db, client, Options{BatchSize: 3})

	result, err := e.Run(context.Background(), "u1")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(result.Suggestions) != 3 {
		t.Errorf("got %d suggestions, want 3", len(result.Suggestions))
	}
}

func TestRunForceAcceptsLastRejectedWhenFinalAttemptFails(t *testing.T) {
	db := testDB(t)
	seedCapabilities(t, db, "u1", 2) // both standard slots must reuse the same pair

	client := scriptedClient("Alpha", "Beta", "!not json")
	e, _ := testEngine(db, client, Options{BatchSize: 2, MaxAttempts: 2, RelaxAfterAttempt: 2})

	result, err := e.Run(context.Background(), "u1")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(result.Suggestions) != 2 || result.Skipped != 0 {
		t.Fatalf("got %d suggestions, %d skipped; want 2, 0", len(result.Suggestions), result.Skipped)
	}
	if result.Suggestions[1].Title != "Beta" {
		t.Errorf("second = %q, want force-accepted Beta", result.Suggestions[1].Title)
	}
}

func TestRunNoveltyDropsAcrossRuns(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	seedCapabilities(t, db, "u1", 2)

	e, _ := testEngine(db, scriptedClient("First"), Options{BatchSize: 1})
	if _, err := e.Run(ctx, "u1"); err != nil {
		t.Fatalf("Run: %v", err)
	}

	e, _ = testEngine(db, scriptedClient("Second"), Options{BatchSize: 1})
	result, err := e.Run(ctx, "u1")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	want := 1 / (1 + math.Log(2))
	if got := result.Suggestions[0].NoveltyScore; !approx(got, want) {
		t.Errorf("novelty on repeat = %f, want %f", got, want)
	}

	combos, _ := db.ListCombinations(ctx, "u1")
	if len(combos) != 1 || combos[0].TimesSuggested != 2 {
		t.Errorf("combinations = %+v, want one set suggested twice", combos)
	}
}

// failingSaves rejects every suggestion write.
type failingSaves struct{ *store.DB }

func (failingSaves) SaveSuggestion(context.Context, string, *store.Suggestion) error {
	return errors.New("readonly database")
}

func TestRunReturnsSuggestionsWhenPersistenceFails(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	seedCapabilities(t, db, "u1", 6)

	e, _ := testEngine(failingSaves{db}, scriptedClient(), Options{BatchSize: 3})
	result, err := e.Run(ctx, "u1")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(result.Suggestions) != 3 {
		t.Errorf("got %d suggestions, want 3", len(result.Suggestions))
	}
	stored, _ := db.RecentSuggestions(ctx, "u1", 0)
	if len(stored) != 0 {
		t.Errorf("stored %d, want 0", len(stored))
	}
}

func TestRunWithoutEmbedderUsesTextSimilarity(t *testing.T) {
	db := testDB(t)
	seedCapabilities(t, db, "u1", 8)

	client := scriptedClient("Sourdough timer", "Sourdough timer", "Bike light")
	e := New(db, client, Options{BatchSize: 2})
	e.Rand = testRand()

	result, err := e.Run(context.Background(), "u1")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(result.Suggestions) != 2 {
		t.Fatalf("got %d suggestions, want 2", len(result.Suggestions))
	}
	if result.Suggestions[1].Title == "Sourdough timer" {
		t.Error("duplicate title accepted without embeddings")
	}
}

func TestRunAfterTFIDFRefitStillRejectsRepeat(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	seedCapabilities(t, db, "u1", 2)
	addNotes := func(bodies ...string) {
		for _, b := range bodies {
			if _, err := db.CreateNote(ctx, "u1", b, time.Time{}); err != nil {
				t.Fatalf("CreateNote: %v", err)
			}
		}
	}
	run := func(emb Embedder, client llm.Client) *Result {
		e := New(db, client, Options{BatchSize: 1})
		e.Rand = testRand()
		e.SetEmbedder(emb)
		result, err := e.Run(ctx, "u1")
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
		return result
	}

	addNotes(
		"garden sensor build notes",
		"garden sensor soil moisture",
		"garden tomatoes sensor",
		"build raised garden bed",
	)
	first, err := FitTFIDF(ctx, db, 8)
	if err != nil {
		t.Fatalf("FitTFIDF: %v", err)
	}
	result := run(first, scriptedClient("Garden sensor"))
	if len(result.Suggestions) != 1 || result.Suggestions[0].Title != "Garden sensor" {
		t.Fatalf("first run = %+v", result.Suggestions)
	}

	// the grown corpus reorders the vocabulary at the same width
	addNotes(
		"woodworking bench plans",
		"woodworking chisel bench",
		"woodworking lathe bench",
		"woodworking shop bench",
	)
	second, err := FitTFIDF(ctx, db, 8)
	if err != nil {
		t.Fatalf("FitTFIDF: %v", err)
	}
	if second.Dimensions() != first.Dimensions() || second.Model() == first.Model() {
		t.Fatalf("refit dims %d/%d models %s/%s", first.Dimensions(), second.Dimensions(), first.Model(), second.Model())
	}

	client := scriptedClient("Garden sensor")
	result = run(second, client)
	if len(result.Suggestions) != 1 {
		t.Fatalf("second run = %+v", result.Suggestions)
	}
	if got := result.Suggestions[0].Title; got == "Garden sensor" {
		t.Errorf("repeated idea accepted after refit")
	}
	if client.calls() != 2 {
		t.Errorf("calls = %d, want 2 (repeat rejected, then a fresh idea)", client.calls())
	}
}
