package llm

import (
	"context"
	"net/http"
	"time"
)

// Ollama calls a local Ollama instance.
type Ollama struct {
	url    string
	model  string
	client *http.Client
}

// NewOllama creates a new Ollama client.
func NewOllama(url, model string) *Ollama {
	return &Ollama{
		url:    url,
		model:  model,
		client: &http.Client{Timeout: 120 * time.Second},
	}
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict"`
}

type ollamaRequest struct {
	Model   string        `json:"model"`
	Prompt  string        `json:"prompt"`
	System  string        `json:"system,omitempty"`
	Format  string        `json:"format,omitempty"`
	Stream  bool          `json:"stream"`
	Options ollamaOptions `json:"options"`
}

type ollamaResponse struct {
	Response        string `json:"response"`
	DoneReason      string `json:"done_reason"`
	PromptEvalCount int    `json:"prompt_eval_count"`
	EvalCount       int    `json:"eval_count"`
}

// Complete sends a prompt to Ollama's generate endpoint. JSON requests use
// Ollama's constrained "json" format.
func (o *Ollama) Complete(ctx context.Context, r Request) (*Response, error) {
	req := ollamaRequest{
		Model:  o.model,
		Prompt: r.Prompt,
		System: r.System,
		Options: ollamaOptions{
			Temperature: r.temperature(),
			NumPredict:  r.maxTokens(),
		},
	}
	if r.JSON {
		req.Format = "json"
	}

	var result ollamaResponse
	if err := postJSON(ctx, o.client, "ollama", o.url+"/api/generate", nil, req, &result); err != nil {
		return nil, err
	}

	return &Response{
		Content:    result.Response,
		Provider:   "ollama",
		TokensUsed: result.PromptEvalCount + result.EvalCount,
		Truncated:  result.DoneReason == "length",
	}, nil
}
