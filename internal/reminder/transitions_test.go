package reminder

import (
	"testing"
	"time"

	"github.com/fentz26/nudge/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func notifiedTask(status models.TaskStatus, rule models.Recurrence) *models.Task {
	return &models.Task{
		ID:             "t1",
		Status:         status,
		Recurrence:     rule,
		RemindAt:       ptr(t0),
		Notified:       true,
		RetryCount:     2,
		LastNotifiedAt: ptr(t0),
	}
}

func TestComplete(t *testing.T) {
	now := t0.Add(time.Hour)

	t.Run("recurring returns to pending", func(t *testing.T) {
		task := notifiedTask(models.TaskStatusPending, models.RecurrenceDaily)
		require.NoError(t, Complete(task, now))
		assert.Equal(t, models.TaskStatusPending, task.Status)
		assert.Zero(t, task.RetryCount)
		assert.False(t, task.Notified)
		assert.Nil(t, task.LastNotifiedAt)
		assert.Nil(t, task.CompletedAt)
	})

	t.Run("recurring failed returns to pending", func(t *testing.T) {
		task := notifiedTask(models.TaskStatusFailed, models.RecurrenceWeekly)
		require.NoError(t, Complete(task, now))
		assert.Equal(t, models.TaskStatusPending, task.Status)
	})

	t.Run("one-shot becomes done", func(t *testing.T) {
		task := notifiedTask(models.TaskStatusPending, models.RecurrenceNone)
		require.NoError(t, Complete(task, now))
		assert.Equal(t, models.TaskStatusDone, task.Status)
		require.NotNil(t, task.CompletedAt)
		assert.Equal(t, now, *task.CompletedAt)
	})

	t.Run("done one-shot is a no-op", func(t *testing.T) {
		task := notifiedTask(models.TaskStatusDone, models.RecurrenceNone)
		task.CompletedAt = ptr(t0)
		require.NoError(t, Complete(task, now))
		assert.Equal(t, t0, *task.CompletedAt)
	})

	t.Run("unknown status", func(t *testing.T) {
		task := notifiedTask(models.TaskStatus("archived"), models.RecurrenceNone)
		assert.ErrorIs(t, Complete(task, now), ErrInvalidStatus)
	})
}

func TestAcknowledge_RejectsDone(t *testing.T) {
	task := notifiedTask(models.TaskStatusDone, models.RecurrenceNone)
	assert.ErrorIs(t, Acknowledge(task, t0), ErrInvalidTransition)
}

func TestReset(t *testing.T) {
	task := notifiedTask(models.TaskStatusFailed, models.RecurrenceNone)
	require.NoError(t, Reset(task))
	assert.Equal(t, models.TaskStatusPending, task.Status)
	assert.Zero(t, task.RetryCount)
	assert.False(t, task.Notified)

	for _, st := range []models.TaskStatus{models.TaskStatusPending, models.TaskStatusDone} {
		assert.ErrorIs(t, Reset(notifiedTask(st, models.RecurrenceNone)), ErrInvalidTransition)
	}
}

func TestUndo(t *testing.T) {
	task := notifiedTask(models.TaskStatusDone, models.RecurrenceNone)
	task.CompletedAt = ptr(t0)
	require.NoError(t, Undo(task))
	assert.Equal(t, models.TaskStatusPending, task.Status)
	assert.Nil(t, task.CompletedAt)
	assert.Equal(t, "t1", task.ID)
	assert.Equal(t, t0, *task.RemindAt)

	assert.ErrorIs(t, Undo(notifiedTask(models.TaskStatusPending, models.RecurrenceNone)), ErrInvalidTransition)
}

func TestReschedule(t *testing.T) {
	task := notifiedTask(models.TaskStatusFailed, models.RecurrenceNone)
	when := t0.Add(24 * time.Hour)
	require.NoError(t, Reschedule(task, &when))
	assert.Equal(t, models.TaskStatusPending, task.Status)
	assert.Equal(t, when, *task.RemindAt)
	assert.Zero(t, task.RetryCount)
	assert.False(t, task.Notified)

	require.NoError(t, Reschedule(task, nil))
	assert.Nil(t, task.RemindAt)
}

func TestSetRecurrence(t *testing.T) {
	t.Run("done task that now recurs is reopened", func(t *testing.T) {
		task := notifiedTask(models.TaskStatusDone, models.RecurrenceNone)
		task.CompletedAt = ptr(t0)
		require.NoError(t, SetRecurrence(task, models.RecurrenceWeekly))
		assert.Equal(t, models.TaskStatusPending, task.Status)
		assert.Nil(t, task.CompletedAt)
		assert.Zero(t, task.RetryCount)
		assert.False(t, task.Notified)
	})

	t.Run("cleared rule rearms", func(t *testing.T) {
		task := notifiedTask(models.TaskStatusPending, models.RecurrenceDaily)
		require.NoError(t, SetRecurrence(task, models.RecurrenceNone))
		assert.Equal(t, models.TaskStatusPending, task.Status)
		assert.Zero(t, task.RetryCount)
		assert.Nil(t, task.LastNotifiedAt)
	})

	t.Run("same rule changes nothing", func(t *testing.T) {
		task := notifiedTask(models.TaskStatusPending, models.RecurrenceDaily)
		require.NoError(t, SetRecurrence(task, models.RecurrenceDaily))
		assert.Equal(t, 2, task.RetryCount)
		assert.True(t, task.Notified)
	})

	t.Run("done one-shot stays done when rule cleared", func(t *testing.T) {
		task := notifiedTask(models.TaskStatusDone, models.RecurrenceNone)
		require.NoError(t, SetRecurrence(task, models.RecurrenceNone))
		assert.Equal(t, models.TaskStatusDone, task.Status)
	})

	t.Run("unknown rule rejected", func(t *testing.T) {
		task := notifiedTask(models.TaskStatusPending, models.RecurrenceNone)
		assert.Error(t, SetRecurrence(task, models.Recurrence("yearly")))
	})
}

func TestPolicyDefaults(t *testing.T) {
	p := Policy{AckWindow: -time.Second}.withDefaults()
	assert.Equal(t, 3, p.MaxAttempts)
	assert.Equal(t, 10*time.Minute, p.RetryInterval)
	assert.Equal(t, 50, p.PageSize)
	assert.Zero(t, p.AckWindow)
	assert.NotNil(t, p.Location)
}
