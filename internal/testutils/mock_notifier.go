package testutils

import (
	"context"
	"sync"
)

// MockNotifier captures notification texts.
type MockNotifier struct {
	mu       sync.Mutex
	messages []string
	Err      error
}

func NewMockNotifier() *MockNotifier { return &MockNotifier{} }

func (n *MockNotifier) Notify(_ context.Context, text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, text)
	return n.Err
}

// Messages returns a copy of all captured texts.
func (n *MockNotifier) Messages() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, len(n.messages))
	copy(out, n.messages)
	return out
}
