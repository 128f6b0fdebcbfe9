// Package reminder implements the reminder state machine: which tasks are due,
// what a delivered notification does to a task, crash reconciliation,
// quarantine recovery and grouped acknowledgements.
package reminder

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/fentz26/nudge/internal/clock"
	"github.com/fentz26/nudge/internal/models"
)

var (
	// ErrNothingToResolve is returned when an acknowledgement matches no task.
	ErrNothingToResolve = errors.New("nothing to resolve")
	// ErrNotPending is returned when an outcome arrives for a task that left pending.
	ErrNotPending = errors.New("task is not pending")
	// ErrInvalidTransition is returned when a user action does not apply to the task's status.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrInvalidStatus is returned for a status outside the known set.
	ErrInvalidStatus = errors.New("invalid task status")
)

// Store is the persistence the engine needs. *store.Store satisfies it.
type Store interface {
	ListFirstDue(ctx context.Context, now time.Time, limit int) ([]models.Task, error)
	ListRetryDue(ctx context.Context, cutoff time.Time, maxAttempts, limit int) ([]models.Task, error)
	CountFirstDue(ctx context.Context, now time.Time) (int, error)
	MutateTask(ctx context.Context, owner, id string, fn func(*models.Task) error) (*models.Task, error)
	ResetStaleNotified(ctx context.Context, now time.Time) (int64, error)
	RecoverQuarantined(ctx context.Context) (int64, error)
	ListQuarantinedNotified(ctx context.Context, owner string, limit int) ([]models.Task, error)
	ListRecentlyNotified(ctx context.Context, owner string, since *time.Time, limit int) ([]models.Task, error)
}

// Auditor records state-mutating decisions. *audit.Recorder satisfies it.
type Auditor interface {
	Record(ctx context.Context, action string, inputs interface{}, outcome, taskID, owner, details string) (*models.AuditEntry, error)
}

// Engine applies the reminder state machine against a Store.
type Engine struct {
	store  Store
	clock  clock.Clock
	policy Policy
	audit  Auditor
	logger *slog.Logger
}

// NewEngine creates an engine. A nil auditor disables decision records and a
// nil logger falls back to slog.Default.
func NewEngine(s Store, c clock.Clock, p Policy, a Auditor, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		store:  s,
		clock:  c,
		policy: p.withDefaults(),
		audit:  a,
		logger: logger.With("component", "reminder"),
	}
}

// Policy returns the effective policy.
func (e *Engine) Policy() Policy {
	return e.policy
}

// Now returns the engine clock's current time.
func (e *Engine) Now() time.Time {
	return e.clock.Now()
}

func (e *Engine) record(ctx context.Context, action string, inputs interface{}, outcome, taskID, owner, details string) {
	if e.audit == nil {
		return
	}
	if _, err := e.audit.Record(ctx, action, inputs, outcome, taskID, owner, details); err != nil {
		e.logger.Warn("audit record failed", "action", action, "task_id", taskID, "error", err)
	}
}
