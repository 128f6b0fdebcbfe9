package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/fentz26/nudge/internal/models"
	"github.com/fentz26/nudge/internal/reminder"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestTick_ConcurrentCompletion completes tasks while a tick is dispatching
// them. Every completed task must end done, whichever side wins each race.
func TestTick_ConcurrentCompletion(t *testing.T) {
	h := newHarness(t, nil, nil)
	ctx := context.Background()

	const numTasks = 20
	tasks := make([]models.Task, numTasks)
	for i := range tasks {
		tasks[i] = h.create(t, models.Task{RemindAt: ptr(t0.Add(-time.Duration(i) * time.Second))})
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		h.sch.Tick(ctx)
	}()
	errs := make(chan error, numTasks)
	go func() {
		defer wg.Done()
		for _, task := range tasks {
			_, err := h.store.MutateTask(ctx, task.Owner, task.ID, func(t *models.Task) error {
				return reminder.Complete(t, h.clock.Now())
			})
			errs <- err
		}
	}()
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	for _, task := range tasks {
		got := h.get(t, task)
		assert.Equal(t, models.TaskStatusDone, got.Status, "task %s", task.ID)
		assert.LessOrEqual(t, got.RetryCount, 1)
	}

	// Nothing is left to notify.
	assert.Zero(t, h.sch.Tick(ctx).Due)
}
