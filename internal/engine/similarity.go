package engine

import (
	"math"
	"strings"
	"unicode"
)

// CosineSimilarity computes the cosine similarity between two vectors.
// Returns 0 on length mismatch, empty input, or a zero-norm vector.
func CosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}

	denom := math.Sqrt(normA) * math.Sqrt(normB)
	if denom == 0 {
		return 0
	}
	return dot / denom
}

// normalizeText lowercases, maps punctuation to spaces and collapses runs of
// whitespace.
func normalizeText(s string) string {
	var b strings.Builder
	space := true
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			space = false
			continue
		}
		if !space {
			b.WriteByte(' ')
			space = true
		}
	}
	return strings.TrimSpace(b.String())
}

// bigrams returns the set of adjacent character pairs in s.
func bigrams(s string) map[string]bool {
	runes := []rune(s)
	set := make(map[string]bool, len(runes))
	for i := 0; i+1 < len(runes); i++ {
		set[string(runes[i:i+2])] = true
	}
	return set
}

// TextSimilarity is the fallback idea similarity when vectors are missing:
// 1.0 when one normalized title contains the other, otherwise the Jaccard
// index over character bigrams of title and description.
func TextSimilarity(titleA, textA, titleB, textB string) float64 {
	ta, tb := normalizeText(titleA), normalizeText(titleB)
	if ta != "" && tb != "" && (strings.Contains(ta, tb) || strings.Contains(tb, ta)) {
		return 1.0
	}

	ga := bigrams(normalizeText(titleA + " " + textA))
	gb := bigrams(normalizeText(titleB + " " + textB))
	if len(ga) == 0 || len(gb) == 0 {
		return 0
	}

	inter := 0
	for g := range ga {
		if gb[g] {
			inter++
		}
	}
	union := len(ga) + len(gb) - inter
	return float64(inter) / float64(union)
}

// ideaSimilarity compares two candidates by embedding when both have
// vectors of the same length, falling back to text similarity otherwise.
func ideaSimilarity(a, b *Candidate) float64 {
	if len(a.Embedding) > 0 && len(a.Embedding) == len(b.Embedding) {
		return CosineSimilarity(a.Embedding, b.Embedding)
	}
	return TextSimilarity(a.Title, a.Description, b.Title, b.Description)
}

// maxSimilarity returns the highest similarity of c against any of others.
func maxSimilarity(c *Candidate, others []Candidate) float64 {
	best := 0.0
	for i := range others {
		if sim := ideaSimilarity(c, &others[i]); sim > best {
			best = sim
		}
	}
	return best
}
