package engine

import (
	"math"
	"testing"
)

func candidate(title string, vec []float64, ids ...int64) Candidate {
	var c Candidate
	c.Title = title
	c.Description = title
	c.Embedding = vec
	c.CapabilityIDs = ids
	return c
}

func defaultEnforcer() Enforcer {
	return NewEnforcer(Options{})
}

func TestNewEnforcerDefaults(t *testing.T) {
	e := defaultEnforcer()
	if e.MaxAttempts != 10 || e.RelaxAfterAttempt != 7 {
		t.Errorf("attempts = %d/%d, want 10/7", e.MaxAttempts, e.RelaxAfterAttempt)
	}
	if e.HistoryThreshold != 0.85 || e.BatchThreshold != 0.75 || e.RelaxedHistoryThreshold != 0.90 {
		t.Errorf("thresholds = %+v", e)
	}
}

func TestEvaluateAcceptsUniqueCandidate(t *testing.T) {
	state := NewBatchState()
	c := candidate("A", []float64{1, 0}, 1, 2)

	v := defaultEnforcer().Evaluate(state, &c, nil, 1)
	if !v.Accepted || v.Relaxed || v.Forced || v.Reason != "" {
		t.Errorf("verdict = %+v, want plain accept", v)
	}
}

func TestEvaluateDuplicateKey(t *testing.T) {
	state := NewBatchState()
	state.Accept(candidate("A", []float64{1, 0}, 1, 2))

	c := candidate("B", []float64{0, 1}, 2, 1)
	v := defaultEnforcer().Evaluate(state, &c, nil, 8)
	if v.Accepted || v.Reason != ReasonDuplicateKey {
		t.Errorf("verdict = %+v, want duplicate_key rejection even when relaxed", v)
	}
}

func TestEvaluateEmptyKeysAreExempt(t *testing.T) {
	state := NewBatchState()
	state.Accept(candidate("Zine", []float64{1, 0}))

	c := candidate("Quilt", []float64{0, 1})
	if v := defaultEnforcer().Evaluate(state, &c, nil, 1); !v.Accepted {
		t.Errorf("creative candidates share the empty key, should not collide: %+v", v)
	}
	if len(state.UsedKeys) != 0 {
		t.Errorf("empty key recorded: %v", state.UsedKeys)
	}
}

func TestEvaluateHistoryThreshold(t *testing.T) {
	history := []Candidate{candidate("Old", []float64{1, 0})}
	state := NewBatchState()

	// cos = 0.88: above 0.85, below relaxed 0.90
	c := candidate("New", []float64{0.88, math.Sqrt(1 - 0.88*0.88)}, 1, 2)
	e := defaultEnforcer()

	for attempt := 1; attempt < e.RelaxAfterAttempt; attempt++ {
		v := e.Evaluate(state, &c, history, attempt)
		if v.Accepted || v.Reason != ReasonHistorySimilarity {
			t.Fatalf("attempt %d: verdict = %+v, want history rejection", attempt, v)
		}
	}
	v := e.Evaluate(state, &c, history, e.RelaxAfterAttempt)
	if !v.Accepted || !v.Relaxed {
		t.Errorf("attempt %d: verdict = %+v, want relaxed accept", e.RelaxAfterAttempt, v)
	}
}

func TestEvaluateRelaxationKeepsBatchCheck(t *testing.T) {
	history := []Candidate{candidate("Old", []float64{1, 0, 0})}
	state := NewBatchState()
	state.Accept(candidate("Mate", []float64{1, 0, 0}, 5, 6))

	c := candidate("New", []float64{0.88, math.Sqrt(1 - 0.88*0.88), 0}, 1, 2)
	v := defaultEnforcer().Evaluate(state, &c, history, 8)
	if v.Accepted {
		t.Errorf("batch similarity %.2f must still reject under relaxation: %+v", v.BatchSim, v)
	}
}

func TestEvaluateRelaxedThresholdStillRejectsVeryClose(t *testing.T) {
	history := []Candidate{candidate("Old", []float64{1, 0})}
	c := candidate("New", []float64{0.95, math.Sqrt(1 - 0.95*0.95)}, 1, 2)

	v := defaultEnforcer().Evaluate(NewBatchState(), &c, history, 9)
	if v.Accepted {
		t.Errorf("0.95 history similarity above relaxed 0.90 should reject before the final attempt: %+v", v)
	}
}

func TestEvaluateForcedOnFinalAttempt(t *testing.T) {
	state := NewBatchState()
	state.Accept(candidate("A", []float64{1, 0}, 1, 2))
	c := candidate("A again", []float64{1, 0}, 1, 2)

	v := defaultEnforcer().Evaluate(state, &c, nil, 10)
	if !v.Accepted || !v.Forced || v.Reason != ReasonDuplicateKey {
		t.Errorf("verdict = %+v, want forced accept with reason kept", v)
	}
}

func TestNearDuplicateInBatchIsRejected(t *testing.T) {
	state := NewBatchState()
	state.Accept(candidate("First", []float64{1, 0}, 1, 2))

	second := candidate("Second", []float64{0.95, math.Sqrt(1 - 0.95*0.95)}, 3, 4)
	e := defaultEnforcer()

	rejections := 0
	for attempt := 1; attempt <= e.MaxAttempts; attempt++ {
		v := e.Evaluate(state, &second, nil, attempt)
		if !v.Accepted {
			rejections++
			if v.Reason != ReasonBatchSimilarity {
				t.Errorf("attempt %d reason = %s, want batch_similarity", attempt, v.Reason)
			}
			continue
		}
		if !v.Forced {
			t.Errorf("attempt %d accepted without force: %+v", attempt, v)
		}
	}
	if rejections != e.MaxAttempts-1 {
		t.Errorf("rejections = %d, want %d", rejections, e.MaxAttempts-1)
	}
}

func TestEvaluateTextFallbackWithoutVectors(t *testing.T) {
	state := NewBatchState()
	state.Accept(candidate("Sourdough timer", nil, 1, 2))

	c := candidate("Sourdough timer", nil, 3, 4)
	if v := defaultEnforcer().Evaluate(state, &c, nil, 1); v.Accepted || v.Reason != ReasonBatchSimilarity {
		t.Errorf("identical titles without vectors: %+v, want batch rejection", v)
	}
}

func TestBatchStateAccept(t *testing.T) {
	state := NewBatchState()
	state.Accept(candidate("A", nil, 3, 1))
	if !state.HasKey("1,3") {
		t.Error("expected key 1,3 to be used")
	}
	if state.HasKey("") {
		t.Error("empty key must never be reported as used")
	}
	if len(state.Accepted) != 1 {
		t.Errorf("accepted = %d, want 1", len(state.Accepted))
	}
}
