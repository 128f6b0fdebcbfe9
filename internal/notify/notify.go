// Package notify defines the outbound notification interface for nudge.
package notify

import (
	"context"
	"log/slog"
	"sync"
)

// Notifier delivers a reminder text to an owner.
type Notifier interface {
	// Name returns the notifier identifier.
	Name() string

	// Send delivers text to owner. A returned error means the reminder was not delivered.
	Send(ctx context.Context, owner, text string) error
}

// Log writes reminders to a structured logger instead of delivering them.
type Log struct {
	logger *slog.Logger
}

// NewLog creates a logging notifier.
func NewLog(logger *slog.Logger) *Log {
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{logger: logger}
}

// Name returns the notifier identifier.
func (l *Log) Name() string { return "log" }

// Send logs the reminder.
func (l *Log) Send(ctx context.Context, owner, text string) error {
	l.logger.InfoContext(ctx, "reminder", "owner", owner, "text", text)
	return nil
}

// Message is a reminder captured by Memory.
type Message struct {
	Owner string
	Text  string
}

// Memory keeps every reminder in memory. Failing owners are rejected with Err.
type Memory struct {
	mu       sync.Mutex
	messages []Message
	failing  map[string]error
}

// NewMemory creates an in-memory notifier.
func NewMemory() *Memory {
	return &Memory{failing: make(map[string]error)}
}

// Name returns the notifier identifier.
func (m *Memory) Name() string { return "memory" }

// Send records the reminder, or returns the failure registered for owner.
func (m *Memory) Send(ctx context.Context, owner, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err, ok := m.failing[owner]; ok {
		return err
	}
	m.messages = append(m.messages, Message{Owner: owner, Text: text})
	return nil
}

// FailFor makes every Send to owner fail with err. A nil err clears it.
func (m *Memory) FailFor(owner string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.failing, owner)
		return
	}
	m.failing[owner] = err
}

// Messages returns a copy of the delivered reminders.
func (m *Memory) Messages() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Message, len(m.messages))
	copy(out, m.messages)
	return out
}
