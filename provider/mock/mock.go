// Package mock provides a scripted AI provider for testing.
package mock

import (
	"context"

	"github.com/focuslock/cooagent/provider"
)

const defaultResponse = "Acknowledged."

// MockProvider implements provider.Provider for testing. It returns
// scripted responses and can simulate call failures.
type MockProvider struct {
	responses []string
	errs      []error
	idx       int

	// Calls records the message lists passed to Chat, in order.
	Calls [][]provider.Message
}

// New creates a MockProvider that cycles through the given responses.
func New(responses ...string) *MockProvider {
	return &MockProvider{responses: responses}
}

// NewFailing creates a MockProvider whose calls return the given errors
// in order before falling back to scripted responses.
func NewFailing(errs ...error) *MockProvider {
	return &MockProvider{errs: errs}
}

// Name returns the provider identifier.
func (m *MockProvider) Name() string { return "mock" }

// Chat returns the next scripted response, cycling through the queue.
func (m *MockProvider) Chat(_ context.Context, messages []provider.Message) (*provider.Response, error) {
	m.Calls = append(m.Calls, messages)
	if len(m.errs) > 0 {
		err := m.errs[0]
		m.errs = m.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	if len(m.responses) == 0 {
		return &provider.Response{Content: defaultResponse}, nil
	}
	resp := m.responses[m.idx%len(m.responses)]
	m.idx++
	return &provider.Response{Content: resp}, nil
}

// Embed returns a fixed small vector so memory code paths can run in tests.
func (m *MockProvider) Embed(_ context.Context, text string) ([]float32, error) {
	v := make([]float32, 8)
	for i, r := range text {
		v[i%8] += float32(r%13) / 13
	}
	return v, nil
}

// Transcribe returns a fixed transcript.
func (m *MockProvider) Transcribe(_ context.Context, _ []byte, _ string) (string, error) {
	return "transcribed voice note", nil
}
