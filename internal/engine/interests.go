package engine

import (
	"context"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/lazypower/polymath/internal/store"
)

// MentionSource supplies raw topic mentions and accepts the derived interest
// markers.
type MentionSource interface {
	MentionsSince(ctx context.Context, userID string, since time.Time) ([]store.TopicMention, error)
	SaveInterests(ctx context.Context, userID string, interests []store.Interest) error
}

// interestNamespace scopes the deterministic interest IDs.
var interestNamespace = uuid.MustParse("6f1c0a2e-5d0b-4c55-9a57-0b8e3f7d2c41")

// InterestID derives a stable ID for a user's (name, type) interest so the
// same topic keeps its ID across runs.
func InterestID(userID, name, typ string) string {
	return uuid.NewSHA1(interestNamespace, []byte(userID+"\x00"+name+"\x00"+typ)).String()
}

// ExtractInterests groups the user's topic mentions from the trailing window
// by (name, type) and keeps the groups with at least minMentions occurrences.
// Strength is mentions/10. The result is sorted by strength, descending.
//
// Writing the markers back is best effort: a failure is logged and the
// interests are still returned.
func ExtractInterests(ctx context.Context, src MentionSource, userID string, now time.Time, window time.Duration, minMentions int) ([]store.Interest, error) {
	if window <= 0 {
		window = DefaultInterestWindow
	}
	if minMentions <= 0 {
		minMentions = DefaultMinMentions
	}

	mentions, err := src.MentionsSince(ctx, userID, now.Add(-window))
	if err != nil {
		return nil, fmt.Errorf("load mentions: %w", err)
	}

	type group struct {
		name, typ string
		count     int
		notes     []int64
		seen      map[int64]bool
	}
	groups := make(map[[2]string]*group)
	var order [][2]string
	for _, m := range mentions {
		key := [2]string{m.Name, m.Type}
		g, ok := groups[key]
		if !ok {
			g = &group{name: m.Name, typ: m.Type, seen: make(map[int64]bool)}
			groups[key] = g
			order = append(order, key)
		}
		g.count++
		if m.NoteID != 0 && !g.seen[m.NoteID] {
			g.seen[m.NoteID] = true
			g.notes = append(g.notes, m.NoteID)
		}
	}

	var interests []store.Interest
	for _, key := range order {
		g := groups[key]
		if g.count < minMentions {
			continue
		}
		interests = append(interests, store.Interest{
			ID:        InterestID(userID, g.name, g.typ),
			Name:      g.name,
			Type:      g.typ,
			Strength:  float64(g.count) / 10,
			Mentions:  g.count,
			MemoryIDs: g.notes,
		})
	}

	sort.SliceStable(interests, func(i, j int) bool {
		return interests[i].Strength > interests[j].Strength
	})

	if err := src.SaveInterests(ctx, userID, interests); err != nil {
		log.Printf("interests: data integrity: write-back for %s failed: %v", userID, err)
	}

	return interests, nil
}
