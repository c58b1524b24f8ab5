package engine

import (
	"context"
	"errors"
	"math/rand/v2"

	"github.com/lazypower/polymath/internal/llm"
	"github.com/lazypower/polymath/internal/store"
)

// Generator selects capabilities for a slot and asks the LLM for one idea.
type Generator struct {
	LLM                 llm.Client
	Rand                *rand.Rand
	Temperature         float64
	CreativeTemperature float64
	MaxTokens           int
	MaxContextInterests int
}

// SelectCapabilities picks the capability subset for a slot. Creative slots
// use none. Wildcard slots follow the rotation for their index, and the
// least-used strategy skips pairs for which used returns true.
func (g *Generator) SelectCapabilities(slot SlotType, index int, caps []store.Capability, usage map[int64]int, used func(key string) bool) ([]store.Capability, WildcardStrategy) {
	switch slot {
	case SlotCreative:
		return nil, 0
	case SlotWildcard:
		strategy := WildcardStrategyFor(index)
		switch strategy {
		case LeastUsedPair:
			return selectLeastUsed(caps, usage, used), strategy
		case LowStrengthPair:
			return selectLowStrength(g.Rand, caps), strategy
		default:
			return selectRandomPair(g.Rand, caps), strategy
		}
	default:
		return selectStandard(g.Rand, caps), 0
	}
}

// ContextInterests returns the top interests passed to the prompt.
func (g *Generator) ContextInterests(interests []store.Interest) []store.Interest {
	n := g.MaxContextInterests
	if n <= 0 {
		n = DefaultMaxContextInterests
	}
	return interests[:min(n, len(interests))]
}

// Generate produces one draft. Generation failures come back as
// *ServiceError and unusable output as *ParseFailure.
func (g *Generator) Generate(ctx context.Context, slot SlotType, caps []store.Capability, interests []store.Interest) (IdeaDraft, error) {
	contextInterests := promptInterests(g.ContextInterests(interests))

	req := llm.Request{
		System:      llm.IdeaSystemPrompt,
		Temperature: g.Temperature,
		MaxTokens:   g.MaxTokens,
		JSON:        true,
	}
	if slot == SlotCreative {
		req.Prompt = llm.CreativeIdeaPrompt(contextInterests)
		req.Temperature = g.CreativeTemperature
	} else {
		req.Prompt = llm.IdeaPrompt(promptCapabilities(caps), contextInterests, slot == SlotWildcard)
	}

	resp, err := g.LLM.Complete(ctx, req)
	if err != nil {
		return IdeaDraft{}, &ServiceError{Service: "llm", Op: "generate idea", Err: err}
	}
	if resp == nil {
		return IdeaDraft{}, &ParseFailure{Reason: "empty response"}
	}

	draft, err := ParseDraft(resp.Content)
	var pf *ParseFailure
	if resp.Truncated && errors.As(err, &pf) {
		pf.Reason = "output hit max tokens: " + pf.Reason
	}
	return draft, err
}

func promptCapabilities(caps []store.Capability) []llm.PromptCapability {
	out := make([]llm.PromptCapability, len(caps))
	for i, c := range caps {
		out[i] = llm.PromptCapability{
			Name:          c.Name,
			Description:   c.Description,
			Strength:      c.Strength,
			SourceProject: c.SourceProject,
		}
	}
	return out
}

func promptInterests(interests []store.Interest) []llm.PromptInterest {
	out := make([]llm.PromptInterest, len(interests))
	for i, in := range interests {
		out[i] = llm.PromptInterest{Name: in.Name, Type: in.Type, Strength: in.Strength}
	}
	return out
}
