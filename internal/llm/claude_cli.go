package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"
)

// ClaudeCLI calls the Claude CLI (`claude -p`) as a subprocess.
type ClaudeCLI struct {
	model   string
	binary  string
	timeout time.Duration
}

// NewClaudeCLI creates a new Claude CLI client.
func NewClaudeCLI(model string) *ClaudeCLI {
	return &ClaudeCLI{
		model:   model,
		binary:  "claude",
		timeout: 120 * time.Second,
	}
}

// cliResult is the envelope printed by --output-format json.
type cliResult struct {
	Result  string `json:"result"`
	IsError bool   `json:"is_error"`
	Usage   struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

func (c *ClaudeCLI) args(r Request) []string {
	args := []string{"-p", "--model", c.model, "--max-turns", "1", "--output-format", "json"}
	if r.System != "" {
		args = append(args, "--append-system-prompt", r.System)
	}
	return args
}

// Complete sends a prompt to the Claude CLI and returns the response. The CLI
// does not expose sampling controls, so Temperature and MaxTokens are ignored.
func (c *ClaudeCLI) Complete(ctx context.Context, r Request) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, c.binary, c.args(r)...)
	cmd.Stdin = strings.NewReader(r.Prompt)
	cmd.Env = filterEnv(os.Environ())

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("claude cli: %w (stderr: %s)", err, stderr.String())
	}
	return parseCLIOutput(stdout.Bytes())
}

// parseCLIOutput reads the JSON envelope, falling back to raw text for CLI
// versions that ignore --output-format.
func parseCLIOutput(out []byte) (*Response, error) {
	var env cliResult
	if err := json.Unmarshal(out, &env); err != nil || (env.Result == "" && !env.IsError) {
		return &Response{
			Content:  strings.TrimSpace(string(out)),
			Provider: "claude-cli",
		}, nil
	}
	if env.IsError {
		return nil, fmt.Errorf("claude cli: %s", env.Result)
	}
	return &Response{
		Content:    strings.TrimSpace(env.Result),
		Provider:   "claude-cli",
		TokensUsed: env.Usage.InputTokens + env.Usage.OutputTokens,
	}, nil
}

// filterEnv removes CLAUDE_* variables so the child does not attach to the
// parent's session.
func filterEnv(env []string) []string {
	filtered := make([]string, 0, len(env))
	for _, e := range env {
		if !strings.HasPrefix(e, "CLAUDE_") {
			filtered = append(filtered, e)
		}
	}
	return filtered
}
