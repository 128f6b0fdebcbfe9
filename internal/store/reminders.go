package store

import (
	"context"
	"fmt"
	"time"

	"github.com/fentz26/nudge/internal/models"
)

// --- Reminder Queries ---

// ListFirstDue returns pending tasks that have never been notified for their
// current occurrence and whose remind_at is at or before now.
func (s *Store) ListFirstDue(ctx context.Context, now time.Time, limit int) ([]models.Task, error) {
	return s.queryTasks(ctx,
		`SELECT `+taskColumns+` FROM tasks
		 WHERE status = ? AND notified = 0 AND remind_at IS NOT NULL AND remind_at <= ?
		 ORDER BY remind_at ASC, id LIMIT ?`,
		models.TaskStatusPending, dbTime(now), limit)
}

// ListRetryDue returns pending tasks below maxAttempts whose last
// notification happened at or before cutoff.
func (s *Store) ListRetryDue(ctx context.Context, cutoff time.Time, maxAttempts, limit int) ([]models.Task, error) {
	return s.queryTasks(ctx,
		`SELECT `+taskColumns+` FROM tasks
		 WHERE status = ? AND retry_count < ? AND last_notified_at IS NOT NULL AND last_notified_at <= ?
		 ORDER BY last_notified_at ASC, id LIMIT ?`,
		models.TaskStatusPending, maxAttempts, dbTime(cutoff), limit)
}

// CountFirstDue counts pending tasks eligible for a first notification at now.
func (s *Store) CountFirstDue(ctx context.Context, now time.Time) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM tasks WHERE status = ? AND notified = 0 AND remind_at IS NOT NULL AND remind_at <= ?`,
		models.TaskStatusPending, dbTime(now),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count first due: %w", err)
	}
	return n, nil
}

// ResetStaleNotified rearms every pending task that was notified for an
// occurrence already in the past, recurring or not.
func (s *Store) ResetStaleNotified(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET notified = 0, retry_count = 0, last_notified_at = NULL, updated_at = ?
		 WHERE status = ? AND notified = 1 AND remind_at IS NOT NULL AND remind_at < ?`,
		dbTime(s.now()), models.TaskStatusPending, dbTime(now))
	if err != nil {
		return 0, fmt.Errorf("reset stale notified: %w", err)
	}
	return res.RowsAffected()
}

// RecoverQuarantined moves every failed recurring task back to pending with
// cleared counters. One-shot failed tasks are left alone.
func (s *Store) RecoverQuarantined(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET status = ?, retry_count = 0, last_notified_at = NULL, notified = 0, updated_at = ?
		 WHERE status = ? AND recurrence <> ''`,
		models.TaskStatusPending, dbTime(s.now()), models.TaskStatusFailed)
	if err != nil {
		return 0, fmt.Errorf("recover quarantined: %w", err)
	}
	return res.RowsAffected()
}

// ListQuarantinedNotified returns an owner's failed tasks that were notified
// at least once, most recently notified first.
func (s *Store) ListQuarantinedNotified(ctx context.Context, owner string, limit int) ([]models.Task, error) {
	return s.queryTasks(ctx,
		`SELECT `+taskColumns+` FROM tasks
		 WHERE owner = ? AND status = ? AND last_notified_at IS NOT NULL
		 ORDER BY last_notified_at DESC, id LIMIT ?`,
		owner, models.TaskStatusFailed, limit)
}

// ListRecentlyNotified returns an owner's pending tasks with a notification
// at or after since (nil means any time), most recently notified first.
func (s *Store) ListRecentlyNotified(ctx context.Context, owner string, since *time.Time, limit int) ([]models.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks
		 WHERE owner = ? AND status = ? AND last_notified_at IS NOT NULL`
	args := []interface{}{owner, models.TaskStatusPending}
	if since != nil {
		query += ` AND last_notified_at >= ?`
		args = append(args, dbTime(*since))
	}
	query += ` ORDER BY last_notified_at DESC, id LIMIT ?`
	args = append(args, limit)
	return s.queryTasks(ctx, query, args...)
}
