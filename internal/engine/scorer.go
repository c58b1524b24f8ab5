package engine

import (
	"context"
	"log"
	"math"
	"strings"

	"github.com/lazypower/polymath/internal/store"
)

// Component weights of the composite score.
const (
	noveltyWeight     = 0.3
	feasibilityWeight = 0.4
	interestWeight    = 0.3
)

// Fixed scores for pure-interest (creative) ideas, which use no capabilities.
const (
	creativeNovelty     = 0.8
	creativeFeasibility = 0.9
	creativeInterest    = 1.0
)

// neutralInterest is the alignment score when the user has no interests.
const neutralInterest = 0.5

// CombinationLookup finds the history of a capability set.
type CombinationLookup interface {
	GetCombination(ctx context.Context, userID string, ids []int64) (*store.Combination, error)
}

// NoteVectorSource samples stored note embeddings.
type NoteVectorSource interface {
	SampleNoteVectors(ctx context.Context, userID, model string, limit int) ([][]float64, error)
}

// Scorer rates candidates on novelty, feasibility and interest alignment.
type Scorer struct {
	Combinations   CombinationLookup
	Notes          NoteVectorSource // may be nil
	Embedder       Embedder         // may be nil
	NoteSampleSize int
}

// CompositePoints folds the three scores into a 0-100 integer.
func CompositePoints(novelty, feasibility, interest float64) int {
	return int(math.Round(100 * (novelty*noveltyWeight + feasibility*feasibilityWeight + interest*interestWeight)))
}

// NoveltyFromCombination scores a capability set from its history. A set
// that has never been suggested scores 1.0. Otherwise the score decays with
// the log of times suggested, minus negative-rating and stored penalties,
// clamped to [0.1, 1.0].
func NoveltyFromCombination(c *store.Combination) float64 {
	if c == nil {
		return 1.0
	}
	base := 1 / (1 + math.Log(float64(c.TimesSuggested)+1))
	penalty := float64(c.TimesRatedNegative)*0.2 + c.PenaltyScore
	return clamp(base-penalty, 0.1, 1.0)
}

// Novelty looks up the capability set's history. Pure-interest ideas (no
// capabilities) are never tracked and score a fixed 0.8. A failed lookup is
// treated as an unseen combination.
func (s *Scorer) Novelty(ctx context.Context, userID string, ids []int64) float64 {
	if len(ids) == 0 {
		return creativeNovelty
	}
	combo, err := s.Combinations.GetCombination(ctx, userID, ids)
	if err != nil {
		log.Printf("scorer: novelty lookup for %s: %v", store.CombinationKey(ids), err)
		return 1.0
	}
	return NoveltyFromCombination(combo)
}

// Feasibility rates how buildable a capability set is: half from average
// strength, 0.3 if every capability comes from the same source project, and
// 0.2 shrinking with each capability beyond two. Pure-interest ideas score a
// fixed 0.9.
func Feasibility(caps []store.Capability) float64 {
	if len(caps) == 0 {
		return creativeFeasibility
	}

	var sum float64
	for _, c := range caps {
		sum += c.Strength
	}
	avg := sum / float64(len(caps))
	strength := math.Min(avg/10, 1)

	sameProject := 0.0
	if project := caps[0].SourceProject; project != "" {
		sameProject = 1.0
		for _, c := range caps[1:] {
			if c.SourceProject != project {
				sameProject = 0
				break
			}
		}
	}

	complexity := 1 - clamp(float64(len(caps)-2)*0.1, 0, 0.3)

	return 0.5*strength + 0.3*sameProject + 0.2*complexity
}

// InterestAlignment rates how well a description matches the user's
// interests. With no interests it returns a neutral 0.5. Otherwise it takes
// the best cosine similarity of the description against a sample of the
// user's note embeddings, or falls back to matching interest names in the
// text when embeddings are unavailable. A boost from average interest
// strength is added and the total capped at 1.0.
func (s *Scorer) InterestAlignment(ctx context.Context, userID, description string, interests []store.Interest) float64 {
	if len(interests) == 0 {
		return neutralInterest
	}

	base, ok := s.semanticAlignment(ctx, userID, description)
	if !ok {
		base = keywordAlignment(description, interests)
	}

	var sum float64
	for _, in := range interests {
		sum += in.Strength
	}
	boost := math.Min(sum/float64(len(interests))/10, 0.3)

	return math.Min(base+boost, 1.0)
}

// semanticAlignment returns the max similarity of the description against
// sampled note vectors. ok is false when no embedder, no sample, or an
// embedding failure leaves nothing to compare.
func (s *Scorer) semanticAlignment(ctx context.Context, userID, description string) (float64, bool) {
	if s.Embedder == nil || s.Notes == nil {
		return 0, false
	}

	limit := s.NoteSampleSize
	if limit <= 0 {
		limit = DefaultNoteSampleSize
	}
	sample, err := s.Notes.SampleNoteVectors(ctx, userID, s.Embedder.Model(), limit)
	if err != nil {
		log.Printf("scorer: %v", &ServiceError{Service: "store", Op: "sample note vectors", Err: err})
		return 0, false
	}
	if len(sample) == 0 {
		return 0, false
	}

	vec, err := s.Embedder.Embed(ctx, description)
	if err != nil {
		log.Printf("scorer: %v", &ServiceError{Service: "embedder", Op: "embed description", Err: err})
		return 0, false
	}

	best := 0.0
	for _, v := range sample {
		if sim := CosineSimilarity(vec, v); sim > best {
			best = sim
		}
	}
	return best, true
}

// keywordAlignment scores by the strongest interest whose name appears in
// the text, case-insensitively.
func keywordAlignment(text string, interests []store.Interest) float64 {
	lower := strings.ToLower(text)
	best := 0.0
	for _, in := range interests {
		name := strings.ToLower(strings.TrimSpace(in.Name))
		if name == "" || !strings.Contains(lower, name) {
			continue
		}
		if score := math.Min(in.Strength/10, 1); score > best {
			best = score
		}
	}
	return best
}

// Score fills in the three scores and total points for a candidate.
func (s *Scorer) Score(ctx context.Context, userID string, c *Candidate, interests []store.Interest) {
	if len(c.Capabilities) == 0 {
		c.NoveltyScore = creativeNovelty
		c.FeasibilityScore = creativeFeasibility
		c.InterestScore = creativeInterest
	} else {
		c.NoveltyScore = s.Novelty(ctx, userID, c.CapabilityIDs)
		c.FeasibilityScore = Feasibility(c.Capabilities)
		c.InterestScore = s.InterestAlignment(ctx, userID, c.Description, interests)
	}
	c.TotalPoints = CompositePoints(c.NoveltyScore, c.FeasibilityScore, c.InterestScore)
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
