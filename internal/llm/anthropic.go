package llm

import (
	"context"
	"net/http"
	"strings"
	"time"
)

const (
	anthropicAPI     = "https://api.anthropic.com/v1/messages"
	anthropicVersion = "2023-06-01"
)

// Anthropic calls the Anthropic Messages API directly.
type Anthropic struct {
	apiKey string
	model  string
	url    string
	client *http.Client
}

// NewAnthropic creates a new Anthropic API client.
func NewAnthropic(apiKey, model string) *Anthropic {
	return &Anthropic{
		apiKey: apiKey,
		model:  model,
		url:    anthropicAPI,
		client: &http.Client{Timeout: 120 * time.Second},
	}
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature float64            `json:"temperature"`
	System      string             `json:"system,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// Complete sends a prompt to the Anthropic API. JSON requests prefill the
// assistant turn with "{" so the reply starts inside the object.
func (a *Anthropic) Complete(ctx context.Context, r Request) (*Response, error) {
	req := anthropicRequest{
		Model:       a.model,
		MaxTokens:   r.maxTokens(),
		Temperature: r.temperature(),
		System:      r.System,
		Messages:    []anthropicMessage{{Role: "user", Content: r.Prompt}},
	}
	if r.JSON {
		req.Messages = append(req.Messages, anthropicMessage{Role: "assistant", Content: "{"})
	}

	var result anthropicResponse
	headers := map[string]string{
		"x-api-key":         a.apiKey,
		"anthropic-version": anthropicVersion,
	}
	if err := postJSON(ctx, a.client, "anthropic", a.url, headers, req, &result); err != nil {
		return nil, err
	}

	var text strings.Builder
	if r.JSON {
		text.WriteString("{")
	}
	for _, block := range result.Content {
		if block.Type == "" || block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	return &Response{
		Content:    text.String(),
		Provider:   "anthropic",
		TokensUsed: result.Usage.InputTokens + result.Usage.OutputTokens,
		Truncated:  result.StopReason == "max_tokens",
	}, nil
}
