package llm

import (
	"context"
	"sync"
)

// MockClient is a test double for the LLM Client interface.
// Queued Responses are returned in order; once exhausted, Response is
// returned for every further call.
type MockClient struct {
	Response  *Response
	Responses []string
	Err       error
	Calls     []string  // records prompts sent
	Requests  []Request // records full requests

	mu sync.Mutex
}

// Complete records the call and returns the next scripted response.
func (m *MockClient) Complete(ctx context.Context, req Request) (*Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Calls = append(m.Calls, req.Prompt)
	m.Requests = append(m.Requests, req)
	if m.Err != nil {
		return nil, m.Err
	}
	if len(m.Responses) > 0 {
		next := m.Responses[0]
		m.Responses = m.Responses[1:]
		return &Response{Content: next, Provider: "mock"}, nil
	}
	return m.Response, nil
}
