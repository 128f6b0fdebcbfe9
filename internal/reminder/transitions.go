package reminder

import (
	"fmt"
	"time"

	"github.com/fentz26/nudge/internal/models"
)

// Rearm clears the notification state so the task re-enters first-due evaluation.
func Rearm(t *models.Task) {
	t.Notified = false
	t.RetryCount = 0
	t.LastNotifiedAt = nil
}

// Acknowledge closes the current occurrence of t. Recurring tasks return to
// pending with counters cleared; one-shot tasks become done.
func Acknowledge(t *models.Task, now time.Time) error {
	switch t.Status {
	case models.TaskStatusPending, models.TaskStatusFailed:
	case models.TaskStatusDone:
		return fmt.Errorf("task %s is already done: %w", t.ID, ErrInvalidTransition)
	default:
		return fmt.Errorf("task %s: %w: %q", t.ID, ErrInvalidStatus, t.Status)
	}

	if t.Recurring() {
		t.Status = models.TaskStatusPending
		t.CompletedAt = nil
		Rearm(t)
		return nil
	}
	completed := now
	t.Status = models.TaskStatusDone
	t.CompletedAt = &completed
	return nil
}

// Complete is the user-facing form of Acknowledge. Completing a one-shot task
// that is already done succeeds without changes.
func Complete(t *models.Task, now time.Time) error {
	if t.Status == models.TaskStatusDone && !t.Recurring() {
		return nil
	}
	if t.Status == models.TaskStatusDone {
		// A recurring task never stays done.
		t.Status = models.TaskStatusPending
	}
	return Acknowledge(t, now)
}

// Reset releases a quarantined task back to pending.
func Reset(t *models.Task) error {
	switch t.Status {
	case models.TaskStatusFailed:
		t.Status = models.TaskStatusPending
		Rearm(t)
		return nil
	case models.TaskStatusPending, models.TaskStatusDone:
		return fmt.Errorf("task %s is %s, only failed tasks can be reset: %w", t.ID, t.Status, ErrInvalidTransition)
	default:
		return fmt.Errorf("task %s: %w: %q", t.ID, ErrInvalidStatus, t.Status)
	}
}

// Undo reopens a done task as pending, keeping its id and schedule.
func Undo(t *models.Task) error {
	switch t.Status {
	case models.TaskStatusDone:
		t.Status = models.TaskStatusPending
		t.CompletedAt = nil
		Rearm(t)
		return nil
	case models.TaskStatusPending, models.TaskStatusFailed:
		return fmt.Errorf("task %s is %s, only done tasks can be undone: %w", t.ID, t.Status, ErrInvalidTransition)
	default:
		return fmt.Errorf("task %s: %w: %q", t.ID, ErrInvalidStatus, t.Status)
	}
}

// SetRecurrence replaces the repeat rule. A changed rule begins a new
// occurrence, and a done task that now recurs is reopened, since a recurring
// task never stays done.
func SetRecurrence(t *models.Task, rule models.Recurrence) error {
	if !rule.Valid() {
		return fmt.Errorf("task %s: invalid recurrence %q", t.ID, rule)
	}
	switch t.Status {
	case models.TaskStatusPending, models.TaskStatusFailed, models.TaskStatusDone:
	default:
		return fmt.Errorf("task %s: %w: %q", t.ID, ErrInvalidStatus, t.Status)
	}
	if t.Recurrence == rule {
		return nil
	}
	t.Recurrence = rule
	if t.Recurring() && t.Status == models.TaskStatusDone {
		t.Status = models.TaskStatusPending
		t.CompletedAt = nil
	}
	Rearm(t)
	return nil
}

// Reschedule sets a new remind_at (nil clears it) and begins a new
// occurrence. A quarantined task is reopened; a done task keeps its status.
func Reschedule(t *models.Task, remindAt *time.Time) error {
	switch t.Status {
	case models.TaskStatusFailed:
		t.Status = models.TaskStatusPending
	case models.TaskStatusPending, models.TaskStatusDone:
	default:
		return fmt.Errorf("task %s: %w: %q", t.ID, ErrInvalidStatus, t.Status)
	}
	if remindAt != nil {
		at := *remindAt
		t.RemindAt = &at
	} else {
		t.RemindAt = nil
	}
	Rearm(t)
	return nil
}
