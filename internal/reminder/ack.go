package reminder

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fentz26/nudge/internal/audit"
	"github.com/fentz26/nudge/internal/models"
	"github.com/fentz26/nudge/internal/store"
)

// Strategy names the resolver branch that produced a Resolution.
type Strategy string

const (
	StrategyQuarantine Strategy = "quarantine"
	StrategyRecent     Strategy = "recent"
)

// Resolution is the outcome of a grouped acknowledgement.
type Resolution struct {
	Strategy Strategy      `json:"strategy"`
	Tasks    []models.Task `json:"tasks"`
}

var errStale = errors.New("task changed since it was selected")

// Resolve maps a bare acknowledgement from owner to the tasks it closes and
// applies it. Quarantined tasks win over the most recently notified batch.
// A window above zero restricts the batch to tasks notified within it.
func (e *Engine) Resolve(ctx context.Context, owner string, window time.Duration) (*Resolution, error) {
	now := e.clock.Now()

	failed, err := e.store.ListQuarantinedNotified(ctx, owner, e.policy.PageSize)
	if err != nil {
		return nil, fmt.Errorf("resolve quarantined: %w", err)
	}
	if len(failed) > 0 {
		done, err := e.acknowledgeAll(ctx, failed, models.TaskStatusFailed, now)
		if err != nil {
			return nil, err
		}
		if len(done) > 0 {
			return &Resolution{Strategy: StrategyQuarantine, Tasks: done}, nil
		}
	}

	var since *time.Time
	if window > 0 {
		s := now.Add(-window)
		since = &s
	}
	recent, err := e.store.ListRecentlyNotified(ctx, owner, since, e.policy.PageSize)
	if err != nil {
		return nil, fmt.Errorf("resolve recent: %w", err)
	}

	done, err := e.acknowledgeAll(ctx, Cohort(recent), models.TaskStatusPending, now)
	if err != nil {
		return nil, err
	}
	if len(done) == 0 {
		return nil, ErrNothingToResolve
	}
	return &Resolution{Strategy: StrategyRecent, Tasks: done}, nil
}

// Cohort returns the tasks notified in the same second as the most recently
// notified one.
func Cohort(tasks []models.Task) []models.Task {
	var latest time.Time
	for _, t := range tasks {
		if t.LastNotifiedAt == nil {
			continue
		}
		if sec := t.LastNotifiedAt.Truncate(time.Second); sec.After(latest) {
			latest = sec
		}
	}
	if latest.IsZero() {
		return nil
	}

	var cohort []models.Task
	for _, t := range tasks {
		if t.LastNotifiedAt != nil && t.LastNotifiedAt.Truncate(time.Second).Equal(latest) {
			cohort = append(cohort, t)
		}
	}
	return cohort
}

// acknowledgeAll acknowledges each task, re-checking that it still has the
// expected status. Tasks changed or deleted in the meantime are skipped.
func (e *Engine) acknowledgeAll(ctx context.Context, tasks []models.Task, expect models.TaskStatus, now time.Time) ([]models.Task, error) {
	var done []models.Task
	for _, candidate := range tasks {
		updated, err := e.store.MutateTask(ctx, candidate.Owner, candidate.ID, func(t *models.Task) error {
			if t.Status != expect {
				return errStale
			}
			return Acknowledge(t, now)
		})
		if errors.Is(err, errStale) || errors.Is(err, store.ErrNotFound) {
			e.logger.Debug("acknowledgement skipped changed task", "task_id", candidate.ID)
			continue
		}
		if err != nil {
			return done, fmt.Errorf("acknowledge %s: %w", candidate.ID, err)
		}

		e.record(ctx, audit.ActionAck, map[string]interface{}{"task_id": updated.ID, "from": expect}, "success",
			updated.ID, updated.Owner, fmt.Sprintf("status=%s", updated.Status))
		done = append(done, *updated)
	}
	return done, nil
}
