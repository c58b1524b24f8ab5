package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/lazypower/polymath/internal/store"
)

func addMentions(t *testing.T, db *store.DB, userID, name, typ string, n int, at time.Time) []int64 {
	t.Helper()
	ctx := context.Background()
	var notes []int64
	for i := 0; i < n; i++ {
		note, err := db.CreateNote(ctx, userID, "note about "+name, at)
		if err != nil {
			t.Fatalf("CreateNote: %v", err)
		}
		if err := db.AddMention(ctx, userID, note.ID, name, typ, at); err != nil {
			t.Fatalf("AddMention: %v", err)
		}
		notes = append(notes, note.ID)
	}
	return notes
}

func TestExtractInterests(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	now := time.Now()

	breadNotes := addMentions(t, db, "u1", "sourdough", "topic", 5, now.Add(-time.Hour))
	addMentions(t, db, "u1", "jazz", "topic", 3, now.Add(-24*time.Hour))
	addMentions(t, db, "u1", "Ada", "person", 2, now.Add(-time.Hour))              // below threshold
	addMentions(t, db, "u1", "woodworking", "topic", 9, now.Add(-40*24*time.Hour)) // outside window
	addMentions(t, db, "u2", "sourdough", "topic", 4, now)                         // other user

	interests, err := ExtractInterests(ctx, db, "u1", now, 30*24*time.Hour, 3)
	if err != nil {
		t.Fatalf("ExtractInterests: %v", err)
	}
	if len(interests) != 2 {
		t.Fatalf("got %d interests, want 2: %+v", len(interests), interests)
	}

	top := interests[0]
	if top.Name != "sourdough" || top.Mentions != 5 || top.Strength != 0.5 {
		t.Errorf("top interest = %+v, want sourdough with 5 mentions, strength 0.5", top)
	}
	if len(top.MemoryIDs) != len(breadNotes) {
		t.Errorf("memory ids = %v, want %v", top.MemoryIDs, breadNotes)
	}
	if interests[1].Name != "jazz" || interests[1].Strength != 0.3 {
		t.Errorf("second interest = %+v", interests[1])
	}
	if top.ID != InterestID("u1", "sourdough", "topic") {
		t.Errorf("interest id not deterministic: %s", top.ID)
	}

	saved, err := db.ListInterests(ctx, "u1")
	if err != nil {
		t.Fatalf("ListInterests: %v", err)
	}
	if len(saved) != 2 {
		t.Errorf("written back %d interests, want 2", len(saved))
	}
}

func TestExtractInterestsGroupsByType(t *testing.T) {
	db := testDB(t)
	now := time.Now()
	addMentions(t, db, "u1", "Mercury", "topic", 2, now)
	addMentions(t, db, "u1", "Mercury", "place", 2, now)

	interests, err := ExtractInterests(context.Background(), db, "u1", now, 0, 0)
	if err != nil {
		t.Fatalf("ExtractInterests: %v", err)
	}
	if len(interests) != 0 {
		t.Errorf("same name with different types must not merge: %+v", interests)
	}
}

func TestExtractInterestsEmpty(t *testing.T) {
	db := testDB(t)
	interests, err := ExtractInterests(context.Background(), db, "nobody", time.Now(), 0, 0)
	if err != nil {
		t.Fatalf("ExtractInterests: %v", err)
	}
	if len(interests) != 0 {
		t.Errorf("expected no interests, got %+v", interests)
	}
}

func TestInterestIDStable(t *testing.T) {
	a := InterestID("u1", "jazz", "topic")
	if a != InterestID("u1", "jazz", "topic") {
		t.Error("InterestID not stable")
	}
	if a == InterestID("u2", "jazz", "topic") || a == InterestID("u1", "jazz", "genre") {
		t.Error("InterestID collides across users or types")
	}
}

// failingWriteBack rejects interest write-back.
type failingWriteBack struct{ *store.DB }

func (f failingWriteBack) SaveInterests(context.Context, string, []store.Interest) error {
	return errors.New("disk full")
}

func TestExtractInterestsWriteBackFailureIsNonFatal(t *testing.T) {
	db := testDB(t)
	now := time.Now()
	addMentions(t, db, "u1", "jazz", "topic", 3, now)

	interests, err := ExtractInterests(context.Background(), failingWriteBack{db}, "u1", now, 0, 0)
	if err != nil {
		t.Fatalf("write-back failure must not fail extraction: %v", err)
	}
	if len(interests) != 1 {
		t.Errorf("got %d interests, want 1", len(interests))
	}
}
