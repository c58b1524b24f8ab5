package llm

import (
	"context"
	"fmt"

	"github.com/lazypower/polymath/internal/config"
)

// Client is the interface for LLM providers.
type Client interface {
	Complete(ctx context.Context, req Request) (*Response, error)
}

// Request is a single completion request.
type Request struct {
	System      string
	Prompt      string
	Temperature float64 // 0 uses the provider default
	MaxTokens   int     // 0 uses the provider default

	// JSON asks the provider to constrain output to a single JSON object
	// where it can.
	JSON bool
}

// Response holds the result of an LLM completion.
type Response struct {
	Content    string
	Provider   string
	TokensUsed int
	Truncated  bool // generation stopped at MaxTokens
}

const (
	defaultTemperature = 0.7
	defaultMaxTokens   = 1024
)

func (r Request) temperature() float64 {
	if r.Temperature <= 0 {
		return defaultTemperature
	}
	return r.Temperature
}

func (r Request) maxTokens() int {
	if r.MaxTokens <= 0 {
		return defaultMaxTokens
	}
	return r.MaxTokens
}

// NewClient creates an LLM client based on the config provider setting,
// wrapped in a rate limiter when requests_per_min is set.
func NewClient(cfg config.LLMConfig) (Client, error) {
	var c Client
	switch cfg.Provider {
	case "claude-cli":
		model := cfg.Model
		if model == "" {
			model = "haiku"
		}
		c = NewClaudeCLI(model)
	case "anthropic":
		if cfg.AnthropicKey == "" {
			return nil, fmt.Errorf("anthropic provider requires ANTHROPIC_API_KEY or config")
		}
		model := cfg.Model
		if model == "" || model == "haiku" {
			model = "claude-haiku-4-5-20251001"
		}
		c = NewAnthropic(cfg.AnthropicKey, model)
	case "ollama":
		url := cfg.OllamaURL
		if url == "" {
			url = "http://localhost:11434"
		}
		model := cfg.OllamaModel
		if model == "" {
			model = "llama3.2"
		}
		c = NewOllama(url, model)
	default:
		return nil, fmt.Errorf("unknown LLM provider: %q", cfg.Provider)
	}

	if cfg.RequestsPerMin > 0 {
		c = NewRateLimited(c, cfg.RequestsPerMin, cfg.Burst)
	}
	return c, nil
}
