package engine

import (
	"cmp"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"slices"
	"strings"
	"unicode"
)

// TFIDFEmbedder embeds text as a TF-IDF bag of words over a vocabulary fitted
// on the user's notes. It is the fallback when no embedding model is
// reachable.
type TFIDFEmbedder struct {
	vocab map[string]int     // term to vector index
	idf   map[string]float64 // smoothed inverse document frequency
	dims  int
	model string
}

// NewTFIDFEmbedder fits a TF-IDF embedder on docs, keeping the maxTerms
// terms with the highest document frequency.
func NewTFIDFEmbedder(docs []string, maxTerms int) *TFIDFEmbedder {
	if maxTerms <= 0 {
		maxTerms = 512
	}

	df := make(map[string]int)
	for _, doc := range docs {
		terms := tokenize(doc)
		slices.Sort(terms)
		for _, term := range slices.Compact(terms) {
			df[term]++
		}
	}

	// Ties break alphabetically so the vocabulary is stable across fits.
	terms := make([]string, 0, len(df))
	for term := range df {
		terms = append(terms, term)
	}
	slices.SortFunc(terms, func(a, b string) int {
		return cmp.Or(cmp.Compare(df[b], df[a]), strings.Compare(a, b))
	})
	terms = terms[:min(maxTerms, len(terms))]

	numDocs := float64(max(len(docs), 1))
	t := &TFIDFEmbedder{
		vocab: make(map[string]int, len(terms)),
		idf:   make(map[string]float64, len(terms)),
		dims:  max(len(terms), 1),
		model: vocabModel(terms),
	}
	for i, term := range terms {
		t.vocab[term] = i
		t.idf[term] = math.Log(numDocs/float64(df[term])) + 1
	}
	return t
}

// vocabModel names a fit by its ordered vocabulary. Two fits share a name
// only when every term maps to the same vector index.
func vocabModel(terms []string) string {
	h := sha256.New()
	for _, term := range terms {
		h.Write([]byte(term))
		h.Write([]byte{0})
	}
	return "tfidf:" + hex.EncodeToString(h.Sum(nil)[:6])
}

// NoteCorpus supplies the documents a TF-IDF embedder is fitted on.
type NoteCorpus interface {
	AllNoteBodies(ctx context.Context) ([]string, error)
}

// FitTFIDF fits a TF-IDF embedder on every stored note, across all users.
func FitTFIDF(ctx context.Context, corpus NoteCorpus, maxTerms int) (*TFIDFEmbedder, error) {
	docs, err := corpus.AllNoteBodies(ctx)
	if err != nil {
		return nil, fmt.Errorf("load notes for tfidf: %w", err)
	}
	return NewTFIDFEmbedder(docs, maxTerms), nil
}

// Model identifies the fitted vocabulary. Vectors stored under another
// model are not comparable and get re-embedded.
func (t *TFIDFEmbedder) Model() string  { return t.model }
func (t *TFIDFEmbedder) Dimensions() int { return t.dims }

// Embed returns the L2-normalized TF-IDF vector for text, using augmented
// term frequency so long texts are not favored.
func (t *TFIDFEmbedder) Embed(_ context.Context, text string) ([]float64, error) {
	vec := make([]float64, t.dims)

	tf := make(map[string]int)
	maxTF := 0
	for _, tok := range tokenize(text) {
		tf[tok]++
		maxTF = max(maxTF, tf[tok])
	}

	for term, count := range tf {
		i, ok := t.vocab[term]
		if !ok {
			continue
		}
		vec[i] = (0.5 + 0.5*float64(count)/float64(maxTF)) * t.idf[term]
	}

	normalize(vec)
	return vec, nil
}

// tokenize lowercases text and splits it on anything that is not a letter,
// digit, hyphen or underscore. Single-rune tokens are dropped.
func tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '-' && r != '_'
	})
	tokens := fields[:0]
	for _, f := range fields {
		if len([]rune(f)) > 1 {
			tokens = append(tokens, f)
		}
	}
	return tokens
}

// normalize scales vec to unit length in place. Zero vectors are left alone.
func normalize(vec []float64) {
	var sum float64
	for _, v := range vec {
		sum += v * v
	}
	if sum == 0 {
		return
	}
	norm := math.Sqrt(sum)
	for i := range vec {
		vec[i] /= norm
	}
}
