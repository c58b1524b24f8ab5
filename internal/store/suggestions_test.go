package store

import (
	"context"
	"testing"
)

func TestSaveAndGetSuggestion(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	s := &Suggestion{
		Title:            "Sourdough timer",
		Description:      "A CLI that schedules feeding reminders",
		Reasoning:        "Combines Go with baking",
		CapabilityIDs:    []int64{3, 1},
		MemoryIDs:        []int64{7},
		NoveltyScore:     1.0,
		FeasibilityScore: 0.85,
		InterestScore:    0.5,
		TotalPoints:      79,
		IsWildcard:       true,
		SlotType:         "wildcard",
		Embedding:        []float64{0.1, 0.9},
		EmbeddingModel:   "test",
	}
	if err := db.SaveSuggestion(ctx, "u1", s); err != nil {
		t.Fatalf("SaveSuggestion: %v", err)
	}
	if s.ID == "" {
		t.Fatal("expected generated ID")
	}
	if s.Status != StatusPending {
		t.Errorf("status = %q, want pending", s.Status)
	}

	got, err := db.GetSuggestion(ctx, s.ID)
	if err != nil {
		t.Fatalf("GetSuggestion: %v", err)
	}
	if got == nil {
		t.Fatal("expected suggestion, got nil")
	}
	if got.TotalPoints != 79 || !got.IsWildcard || got.SlotType != "wildcard" {
		t.Errorf("round trip mismatch: %+v", got)
	}
	if len(got.CapabilityIDs) != 2 || got.CapabilityIDs[0] != 3 {
		t.Errorf("capability ids = %v, want [3 1]", got.CapabilityIDs)
	}
	if len(got.Embedding) != 2 || got.EmbeddingModel != "test" {
		t.Errorf("embedding = %v (%s), want 2 dims from test", got.Embedding, got.EmbeddingModel)
	}
}

func TestSaveSuggestionWithoutEmbedding(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	s := &Suggestion{Title: "Poetry zine", Description: "Monthly zine", TotalPoints: 90}
	if err := db.SaveSuggestion(ctx, "u1", s); err != nil {
		t.Fatalf("SaveSuggestion: %v", err)
	}
	got, _ := db.GetSuggestion(ctx, s.ID)
	if got.Embedding != nil {
		t.Errorf("expected nil embedding, got %v", got.Embedding)
	}
	if len(got.CapabilityIDs) != 0 {
		t.Errorf("expected empty capability ids, got %v", got.CapabilityIDs)
	}
}

func TestRecentSuggestions(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	for i, title := range []string{"one", "two", "three"} {
		s := &Suggestion{Title: title, Description: "d", TotalPoints: 50, CreatedAt: int64(1000 + i)}
		if err := db.SaveSuggestion(ctx, "u1", s); err != nil {
			t.Fatalf("SaveSuggestion: %v", err)
		}
	}
	db.SaveSuggestion(ctx, "u2", &Suggestion{Title: "foreign", Description: "d", TotalPoints: 50})

	recent, err := db.RecentSuggestions(ctx, "u1", 2)
	if err != nil {
		t.Fatalf("RecentSuggestions: %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("expected 2, got %d", len(recent))
	}
	if recent[0].Title != "three" || recent[1].Title != "two" {
		t.Errorf("order = %s, %s; want three, two", recent[0].Title, recent[1].Title)
	}
}

func TestSuggestionsForRun(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	run, err := db.StartRun(ctx, "u1", 2)
	if err != nil {
		t.Fatalf("StartRun: %v", err)
	}
	db.SaveSuggestion(ctx, "u1", &Suggestion{RunID: run.ID, Title: "a", Description: "d", TotalPoints: 1})
	db.SaveSuggestion(ctx, "u1", &Suggestion{RunID: run.ID, Title: "b", Description: "d", TotalPoints: 2})
	db.SaveSuggestion(ctx, "u1", &Suggestion{Title: "unrelated", Description: "d", TotalPoints: 3})

	list, err := db.SuggestionsForRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("SuggestionsForRun: %v", err)
	}
	if len(list) != 2 || list[0].Title != "a" {
		t.Errorf("SuggestionsForRun = %+v, want a, b", list)
	}
}
