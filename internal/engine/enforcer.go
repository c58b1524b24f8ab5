package engine

import (
	"github.com/lazypower/polymath/internal/store"
)

// Rejection reasons reported by the Enforcer.
const (
	ReasonDuplicateKey      = "duplicate_key"
	ReasonHistorySimilarity = "history_similarity"
	ReasonBatchSimilarity   = "batch_similarity"
)

// Candidate is a generated, scored idea awaiting admission to a batch.
// Suggestion.Embedding holds the title+description vector, nil when no
// embedding was available.
type Candidate struct {
	store.Suggestion
	Capabilities []store.Capability `json:"-"`
}

// Key is the sorted capability key, empty for pure-interest ideas.
func (c *Candidate) Key() string {
	return store.CombinationKey(c.CapabilityIDs)
}

// BatchState is the mutable state of one run: the capability keys already
// used and the candidates accepted so far. Each slot reads it and, on
// acceptance, extends it for the slots after.
type BatchState struct {
	UsedKeys map[string]bool
	Accepted []Candidate
}

// NewBatchState returns an empty batch.
func NewBatchState() *BatchState {
	return &BatchState{UsedKeys: make(map[string]bool)}
}

// HasKey reports whether a non-empty capability key is already in the batch.
func (b *BatchState) HasKey(key string) bool {
	return key != "" && b.UsedKeys[key]
}

// Accept records a candidate as part of the batch.
func (b *BatchState) Accept(c Candidate) {
	if key := c.Key(); key != "" {
		b.UsedKeys[key] = true
	}
	b.Accepted = append(b.Accepted, c)
}

// Verdict is the Enforcer's decision on one attempt.
type Verdict struct {
	Accepted   bool
	Reason     string // first check that tripped; may be set on a relaxed or forced accept
	HistorySim float64
	BatchSim   float64
	Relaxed    bool // accepted under the relaxed history threshold
	Forced     bool // accepted because it was the final attempt
}

// Enforcer admits candidates that are unique within the batch and not too
// close to history. Checks run in stages: strict thresholds first, a relaxed
// history threshold from RelaxAfterAttempt on, and unconditional acceptance
// on MaxAttempts.
type Enforcer struct {
	MaxAttempts             int
	RelaxAfterAttempt       int
	HistoryThreshold        float64
	BatchThreshold          float64
	RelaxedHistoryThreshold float64
}

// NewEnforcer builds an Enforcer from run options.
func NewEnforcer(o Options) Enforcer {
	o = o.withDefaults()
	return Enforcer{
		MaxAttempts:             o.MaxAttempts,
		RelaxAfterAttempt:       o.RelaxAfterAttempt,
		HistoryThreshold:        o.HistoryThreshold,
		BatchThreshold:          o.BatchThreshold,
		RelaxedHistoryThreshold: o.RelaxedHistoryThreshold,
	}
}

// Evaluate judges a candidate on the given 1-based attempt against the batch
// so far and the user's prior suggestions.
func (e Enforcer) Evaluate(state *BatchState, c *Candidate, history []Candidate, attempt int) Verdict {
	v := Verdict{
		HistorySim: maxSimilarity(c, history),
		BatchSim:   maxSimilarity(c, state.Accepted),
	}
	duplicate := state.HasKey(c.Key())

	switch {
	case duplicate:
		v.Reason = ReasonDuplicateKey
	case v.HistorySim > e.HistoryThreshold:
		v.Reason = ReasonHistorySimilarity
	case v.BatchSim > e.BatchThreshold:
		v.Reason = ReasonBatchSimilarity
	default:
		v.Accepted = true
		return v
	}

	if attempt >= e.RelaxAfterAttempt && !duplicate &&
		v.BatchSim <= e.BatchThreshold && v.HistorySim <= e.RelaxedHistoryThreshold {
		v.Accepted = true
		v.Relaxed = true
		return v
	}

	if attempt >= e.MaxAttempts {
		v.Accepted = true
		v.Forced = true
	}
	return v
}
