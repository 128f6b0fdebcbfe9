package reminder

import (
	"context"
	"fmt"
	"time"

	"github.com/fentz26/nudge/internal/audit"
	"github.com/fentz26/nudge/internal/models"
	"github.com/fentz26/nudge/internal/recurrence"
)

// RecordOutcome applies a delivered notification to the task in one store
// transaction and returns the updated task.
func (e *Engine) RecordOutcome(ctx context.Context, task models.Task) (*models.Task, error) {
	now := e.clock.Now()
	updated, err := e.store.MutateTask(ctx, task.Owner, task.ID, func(t *models.Task) error {
		return e.ApplyOutcome(t, now)
	})
	if err != nil {
		return nil, err
	}

	details := fmt.Sprintf("attempt=%d status=%s", updated.RetryCount, updated.Status)
	e.record(ctx, audit.ActionNotify, map[string]interface{}{"task_id": task.ID, "at": now.Unix()}, "success", task.ID, task.Owner, details)
	if updated.Status == models.TaskStatusFailed {
		e.logger.Info("task quarantined after retries", "task_id", task.ID, "owner", task.Owner, "attempts", updated.RetryCount)
	}
	return updated, nil
}

// ApplyOutcome mutates t as one delivered notification at now. Only pending
// tasks accept an outcome.
func (e *Engine) ApplyOutcome(t *models.Task, now time.Time) error {
	switch t.Status {
	case models.TaskStatusPending:
	case models.TaskStatusDone, models.TaskStatusFailed:
		return fmt.Errorf("task %s is %s: %w", t.ID, t.Status, ErrNotPending)
	default:
		return fmt.Errorf("task %s: %w: %q", t.ID, ErrInvalidStatus, t.Status)
	}

	count := t.RetryCount + 1
	status := t.Status
	if count >= e.policy.MaxAttempts {
		status = models.TaskStatusFailed
	}
	next, recurring := e.nextOccurrence(t, now)

	notifiedAt := now
	t.RetryCount = count
	t.LastNotifiedAt = &notifiedAt
	t.Notified = true
	t.Status = status

	if next != nil {
		t.RemindAt = next
	}
	if recurring {
		// remind_at now names an occurrence nobody has been notified about.
		t.Notified = false
	}
	return nil
}

// nextOccurrence returns the occurrence following the one that has arrived,
// or nil when remind_at is still ahead of now. The second result reports
// whether the task is a valid recurring task with a remind_at.
func (e *Engine) nextOccurrence(t *models.Task, now time.Time) (*time.Time, bool) {
	if !t.Recurring() || t.RemindAt == nil {
		return nil, false
	}
	if !t.Recurrence.Valid() {
		e.logger.Error("stored recurrence rule is invalid, treating task as one-shot",
			"task_id", t.ID, "rule", string(t.Recurrence))
		return nil, false
	}
	if t.RemindAt.After(now) {
		return nil, true
	}

	next, err := recurrence.NextAfter(t.RemindAt.In(e.policy.Location), t.Recurrence, now)
	if err != nil {
		e.logger.Error("next occurrence failed, treating task as one-shot", "task_id", t.ID, "error", err)
		return nil, false
	}
	return &next, true
}
