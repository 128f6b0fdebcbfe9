package reminder

import (
	"context"
	"fmt"
	"time"

	"github.com/fentz26/nudge/internal/models"
)

// DueSet returns the tasks eligible for a notification attempt at now:
// first-due tasks followed by retry-due tasks, each class capped at the page
// size. A task matching both classes appears once, in its first-due position.
func (e *Engine) DueSet(ctx context.Context, now time.Time) ([]models.Task, error) {
	first, err := e.store.ListFirstDue(ctx, now, e.policy.PageSize)
	if err != nil {
		return nil, fmt.Errorf("first-due query: %w", err)
	}

	retry, err := e.store.ListRetryDue(ctx, now.Add(-e.policy.RetryInterval), e.policy.MaxAttempts, e.policy.PageSize)
	if err != nil {
		return nil, fmt.Errorf("retry-due query: %w", err)
	}

	due := make([]models.Task, 0, len(first)+len(retry))
	seen := make(map[string]struct{}, len(first)+len(retry))
	for _, batch := range [][]models.Task{first, retry} {
		for _, t := range batch {
			if _, dup := seen[t.ID]; dup {
				continue
			}
			seen[t.ID] = struct{}{}
			due = append(due, t)
		}
	}
	return due, nil
}
