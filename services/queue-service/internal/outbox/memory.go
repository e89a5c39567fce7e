package outbox

import (
	"context"
	"sync"
)

// MemoryWriter keeps events in process when no database is configured.
type MemoryWriter struct {
	mu     sync.Mutex
	events []Event
}

func NewMemoryWriter() *MemoryWriter {
	return &MemoryWriter{}
}

func (m *MemoryWriter) Write(_ context.Context, evt Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, evt)
	return nil
}

// Events returns a copy of everything written so far.
func (m *MemoryWriter) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Event(nil), m.events...)
}

var (
	_ Writer = (*MemoryWriter)(nil)
	_ Writer = (*Repository)(nil)
)
