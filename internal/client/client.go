// Package client talks to a running polymath server.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/lazypower/polymath/internal/engine"
	"github.com/lazypower/polymath/internal/store"
)

const (
	DefaultServerURL = "http://127.0.0.1:37778"

	// a full batch is ten sequential LLM calls or more
	generateTimeout = 10 * time.Minute
	healthTimeout   = 2 * time.Second
)

// Client is an HTTP client for the polymath API.
type Client struct {
	http      *http.Client
	serverURL string
}

// New creates a client for serverURL. An empty serverURL uses POLYMATH_URL,
// falling back to DefaultServerURL.
func New(serverURL string) *Client {
	if serverURL == "" {
		serverURL = os.Getenv("POLYMATH_URL")
	}
	if serverURL == "" {
		serverURL = DefaultServerURL
	}
	return &Client{
		http:      &http.Client{Timeout: generateTimeout},
		serverURL: serverURL,
	}
}

// StatusError is a non-2xx response from the server.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Msg    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.Code, e.Msg)
}

// Unwrap maps 422 to engine.ErrFatalPrecondition.
func (e *StatusError) Unwrap() error {
	if e.Code == http.StatusUnprocessableEntity {
		return engine.ErrFatalPrecondition
	}
	return nil
}

// Generate runs a synthesis batch for the user on the server.
func (c *Client) Generate(ctx context.Context, userID string) (*engine.Result, error) {
	var result engine.Result
	if err := c.do(ctx, http.MethodPost, userPath(userID, "suggestions/generate"), nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Suggestions returns the user's most recent suggestions.
func (c *Client) Suggestions(ctx context.Context, userID string, limit int) ([]store.Suggestion, error) {
	var resp struct {
		Suggestions []store.Suggestion `json:"suggestions"`
	}
	if err := c.do(ctx, http.MethodGet, userPath(userID, "suggestions")+limitQuery(limit), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Suggestions, nil
}

// Runs returns the user's most recent synthesis runs.
func (c *Client) Runs(ctx context.Context, userID string, limit int) ([]store.Run, error) {
	var resp struct {
		Runs []store.Run `json:"runs"`
	}
	if err := c.do(ctx, http.MethodGet, userPath(userID, "runs")+limitQuery(limit), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Runs, nil
}

// AddCapability creates or updates a capability on the server.
func (c *Client) AddCapability(ctx context.Context, userID string, capability store.Capability) (*store.Capability, error) {
	body, err := json.Marshal(capability)
	if err != nil {
		return nil, fmt.Errorf("encode capability: %w", err)
	}
	var out store.Capability
	if err := c.do(ctx, http.MethodPost, userPath(userID, "capabilities"), body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Healthy checks if the server is reachable.
func (c *Client) Healthy(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.serverURL+"/api/health", nil)
	if err != nil {
		return false
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.serverURL+path, reader)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response %s: %w", path, err)
	}
	if resp.StatusCode >= 400 {
		msg := string(data)
		var e struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(data, &e) == nil && e.Error != "" {
			msg = e.Error
		}
		return &StatusError{Method: method, Path: path, Code: resp.StatusCode, Msg: msg}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response %s: %w", path, err)
	}
	return nil
}

func userPath(userID, rest string) string {
	return "/api/users/" + url.PathEscape(userID) + "/" + rest
}

func limitQuery(limit int) string {
	if limit <= 0 {
		return ""
	}
	return "?limit=" + strconv.Itoa(limit)
}
