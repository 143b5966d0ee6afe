package reason

import (
	"context"
	"sync"
)

// Mock implements Provider for testing.
// All methods can be customized via function fields.
type Mock struct {
	// GenerateFunc is called when Generate is invoked.
	// If nil, echoes the question back.
	GenerateFunc func(ctx context.Context, question string, image []byte) (string, error)

	// HealthFunc is called when Health is invoked.
	// If nil, returns nil (healthy).
	HealthFunc func(ctx context.Context) error

	mu    sync.Mutex
	calls []MockCall
}

// MockCall records one Generate invocation for verification.
type MockCall struct {
	Question string
	Image    []byte
}

// NewMock creates a mock that returns a fixed answer.
func NewMock(answer string) *Mock {
	return &Mock{
		GenerateFunc: func(context.Context, string, []byte) (string, error) {
			return answer, nil
		},
	}
}

// MockError creates a mock whose Generate always fails with err.
func MockError(err error) *Mock {
	return &Mock{
		GenerateFunc: func(context.Context, string, []byte) (string, error) {
			return "", err
		},
		HealthFunc: func(context.Context) error {
			return err
		},
	}
}

// Generate calls GenerateFunc and records the call.
func (m *Mock) Generate(ctx context.Context, question string, image []byte) (string, error) {
	m.mu.Lock()
	m.calls = append(m.calls, MockCall{Question: question, Image: image})
	m.mu.Unlock()
	if m.GenerateFunc != nil {
		return m.GenerateFunc(ctx, question, image)
	}
	return question, nil
}

// Health calls HealthFunc.
func (m *Mock) Health(ctx context.Context) error {
	if m.HealthFunc != nil {
		return m.HealthFunc(ctx)
	}
	return nil
}

// Close is a no-op.
func (m *Mock) Close() error {
	return nil
}

// Calls returns all recorded Generate invocations.
func (m *Mock) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]MockCall, len(m.calls))
	copy(out, m.calls)
	return out
}

// LastCall returns the most recent invocation, or nil if none.
func (m *Mock) LastCall() *MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.calls) == 0 {
		return nil
	}
	call := m.calls[len(m.calls)-1]
	return &call
}

// Verify Mock implements Provider at compile time.
var _ Provider = (*Mock)(nil)
