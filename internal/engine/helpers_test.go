package engine

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"testing"

	"github.com/lazypower/polymath/internal/llm"
	"github.com/lazypower/polymath/internal/store"
)

func testDB(t *testing.T) *store.DB {
	t.Helper()
	db, err := store.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func testRand() *rand.Rand {
	return rand.New(rand.NewPCG(1, 2))
}

// seedCapabilities stores n capabilities for the user, all in one project,
// with descending strength.
func seedCapabilities(t *testing.T, db *store.DB, userID string, n int) []store.Capability {
	t.Helper()
	names := []string{"Go", "SQL", "Woodworking", "Photography", "Rust", "Electronics", "Cooking", "Drawing", "Audio", "Kubernetes"}
	var caps []store.Capability
	for i := 0; i < n; i++ {
		c := store.Capability{
			Name:          names[i%len(names)] + strings.Repeat("+", i/len(names)),
			Strength:      float64(9 - i%9),
			SourceProject: "workshop",
		}
		if err := db.UpsertCapability(context.Background(), userID, &c); err != nil {
			t.Fatalf("UpsertCapability: %v", err)
		}
		caps = append(caps, c)
	}
	return caps
}

// ideaJSON renders a generator response for the given title.
func ideaJSON(title string) string {
	return fmt.Sprintf(`{"title": %q, "description": "Build %s end to end", "reasoning": "Fits the skills"}`, title, title)
}

// funcClient is an llm.Client whose response is computed per call.
type funcClient struct {
	mu       sync.Mutex
	requests []llm.Request
	fn       func(n int, req llm.Request) (string, error)
}

func (f *funcClient) Complete(_ context.Context, req llm.Request) (*llm.Response, error) {
	f.mu.Lock()
	n := len(f.requests)
	f.requests = append(f.requests, req)
	f.mu.Unlock()

	content, err := f.fn(n, req)
	if err != nil {
		return nil, err
	}
	return &llm.Response{Content: content, Provider: "func"}, nil
}

func (f *funcClient) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

// scriptedClient returns the scripted titles in order, then unique titles.
func scriptedClient(titles ...string) *funcClient {
	return &funcClient{fn: func(n int, _ llm.Request) (string, error) {
		if n < len(titles) {
			if strings.HasPrefix(titles[n], "!") {
				return titles[n][1:], nil // raw, unparsed output
			}
			return ideaJSON(titles[n]), nil
		}
		return ideaJSON(fmt.Sprintf("Unique idea %d", n)), nil
	}}
}

const fakeDims = 256

// fakeEmbedder embeds by the text's first line. Lines registered in fixed get
// those vectors; every other distinct line gets its own orthogonal one-hot
// vector.
type fakeEmbedder struct {
	mu    sync.Mutex
	fixed map[string][]float64
	index map[string]int
	err   error
}

func newFakeEmbedder() *fakeEmbedder {
	return &fakeEmbedder{fixed: map[string][]float64{}, index: map[string]int{}}
}

func (f *fakeEmbedder) Model() string  { return "fake" }
func (f *fakeEmbedder) Dimensions() int { return fakeDims }

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}

	key, _, _ := strings.Cut(text, "\n")
	vec := make([]float64, fakeDims)
	if v, ok := f.fixed[key]; ok {
		copy(vec, v)
		return vec, nil
	}
	i, ok := f.index[key]
	if !ok {
		// dims 0-7 are reserved for fixed vectors
		i = 8 + len(f.index)%(fakeDims-8)
		f.index[key] = i
	}
	vec[i] = 1
	return vec, nil
}
