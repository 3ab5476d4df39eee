// Package mock provides a scripted language-model provider for testing.
package mock

import (
	"context"
	"sync"

	"github.com/GoCodeAlone/taskpilot/provider"
)

const defaultResponse = "Got it. How else can I help with your tasks?"

// MockProvider implements provider.Provider for testing.
// It returns scripted responses in order and records what it was sent.
type MockProvider struct {
	// Err, when set, is returned from every Chat call.
	Err error

	mu        sync.Mutex
	responses []string
	idx       int
	calls     [][]provider.Message
}

// New creates a MockProvider that cycles through the given responses.
func New(responses ...string) *MockProvider {
	return &MockProvider{responses: responses}
}

// Name returns the provider identifier.
func (m *MockProvider) Name() string { return "mock" }

// Chat returns the next scripted response, cycling through the queue.
func (m *MockProvider) Chat(ctx context.Context, messages []provider.Message) (*provider.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = append(m.calls, append([]provider.Message(nil), messages...))
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if m.Err != nil {
		return nil, m.Err
	}
	if len(m.responses) == 0 {
		return &provider.Response{Content: defaultResponse, Model: "mock"}, nil
	}
	resp := m.responses[m.idx%len(m.responses)]
	m.idx++
	return &provider.Response{Content: resp, Model: "mock"}, nil
}

// Calls returns the message lists received so far, oldest first.
func (m *MockProvider) Calls() [][]provider.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]provider.Message(nil), m.calls...)
}
