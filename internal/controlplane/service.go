// Package controlplane provides the HTTP API and service layer for nudge.
package controlplane

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"github.com/fentz26/nudge/internal/audit"
	"github.com/fentz26/nudge/internal/clock"
	"github.com/fentz26/nudge/internal/logging"
	"github.com/fentz26/nudge/internal/models"
	"github.com/fentz26/nudge/internal/reminder"
	"github.com/fentz26/nudge/internal/store"
)

// MaxTitleLength is the longest stored title, in characters.
const MaxTitleLength = 128

// MinIDPrefix is the shortest id prefix accepted when referencing a task.
const MinIDPrefix = 4

// Service provides the control plane business logic.
type Service struct {
	store  *store.Store
	engine *reminder.Engine
	pdr    *audit.Recorder
	clock  clock.Clock
}

// NewService creates a new control plane service.
func NewService(s *store.Store, e *reminder.Engine, pdr *audit.Recorder, c clock.Clock) *Service {
	return &Service{
		store:  s,
		engine: e,
		pdr:    pdr,
		clock:  c,
	}
}

// Location returns the zone used for day boundaries and displayed times.
func (s *Service) Location() *time.Location {
	return s.engine.Policy().Location
}

// Now returns the service clock's current time.
func (s *Service) Now() time.Time {
	return s.clock.Now()
}

// Ping checks the database connection.
func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// EnsureOwner registers owner, updating the nickname when one is given.
func (s *Service) EnsureOwner(ctx context.Context, owner, nickname string) (*models.Owner, error) {
	owner = strings.TrimSpace(owner)
	if owner == "" {
		return nil, fmt.Errorf("%w: owner is required", ErrValidation)
	}
	return s.store.EnsureOwner(ctx, owner, strings.TrimSpace(nickname))
}

// --- Task Operations ---

// CreateTaskInput describes a new task.
type CreateTaskInput struct {
	Title      string
	Note       string
	RemindAt   *time.Time
	Recurrence string
}

// CreateTask creates a new pending task.
func (s *Service) CreateTask(ctx context.Context, owner string, in CreateTaskInput) (*models.Task, error) {
	title, err := cleanTitle(in.Title)
	if err != nil {
		return nil, err
	}
	rule, err := parseRule(in.Recurrence)
	if err != nil {
		return nil, err
	}
	if rule != models.RecurrenceNone && in.RemindAt == nil {
		return nil, fmt.Errorf("%w: a recurring task needs a reminder time", ErrValidation)
	}

	task := &models.Task{
		Owner:      owner,
		Title:      title,
		Note:       strings.TrimSpace(in.Note),
		Status:     models.TaskStatusPending,
		RemindAt:   in.RemindAt,
		Recurrence: rule,
	}
	if err := s.store.CreateTask(ctx, task); err != nil {
		return nil, err
	}

	s.record(ctx, audit.ActionCreate, map[string]interface{}{"title": title, "remind_at": in.RemindAt, "recurrence": rule},
		task.ID, owner, "")
	return task, nil
}

// GetTask retrieves a task by id or unique id prefix.
func (s *Service) GetTask(ctx context.Context, owner, ref string) (*models.Task, error) {
	return s.resolve(ctx, owner, ref)
}

// ListTasks returns filtered tasks. The pending filter (the default) also
// includes quarantined tasks since both still need attention.
func (s *Service) ListTasks(ctx context.Context, owner, filter string, limit int) ([]models.Task, error) {
	var statuses []models.TaskStatus
	switch strings.ToLower(strings.TrimSpace(filter)) {
	case "", "pending":
		statuses = []models.TaskStatus{models.TaskStatusPending, models.TaskStatusFailed}
	case "all":
	case "done":
		statuses = []models.TaskStatus{models.TaskStatusDone}
	case "failed":
		statuses = []models.TaskStatus{models.TaskStatusFailed}
	default:
		return nil, fmt.Errorf("%w: unknown filter %q", ErrValidation, filter)
	}
	return s.store.ListTasks(ctx, owner, store.TaskFilter{Statuses: statuses, Limit: limit})
}

// ListForDay returns pending tasks whose reminder falls on day's local date.
func (s *Service) ListForDay(ctx context.Context, owner string, day time.Time) ([]models.Task, error) {
	d := day.In(s.Location())
	start := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, d.Location())
	end := start.AddDate(0, 0, 1).Add(-time.Second)
	return s.store.ListScheduledBetween(ctx, owner, start, end, s.engine.Policy().PageSize)
}

// EditTaskInput lists the fields to change. Nil fields are left alone.
type EditTaskInput struct {
	Title           *string
	Note            *string
	RemindAt        *time.Time
	ClearRemind     bool
	Recurrence      *string
	ClearRecurrence bool
}

func (in EditTaskInput) empty() bool {
	return in.Title == nil && in.Note == nil && in.RemindAt == nil && !in.ClearRemind &&
		in.Recurrence == nil && !in.ClearRecurrence
}

// EditTask updates a task. A new reminder time starts a new occurrence.
func (s *Service) EditTask(ctx context.Context, owner, ref string, in EditTaskInput) (*models.Task, error) {
	if in.empty() {
		return nil, fmt.Errorf("%w: nothing to change", ErrValidation)
	}
	if in.RemindAt != nil && in.ClearRemind {
		return nil, fmt.Errorf("%w: remind_at and clear_remind are exclusive", ErrValidation)
	}

	var title string
	if in.Title != nil {
		t, err := cleanTitle(*in.Title)
		if err != nil {
			return nil, err
		}
		title = t
	}
	rule := models.RecurrenceNone
	if in.Recurrence != nil && !in.ClearRecurrence {
		r, err := parseRule(*in.Recurrence)
		if err != nil {
			return nil, err
		}
		rule = r
	}

	return s.mutate(ctx, owner, ref, audit.ActionEdit, in, func(t *models.Task) error {
		if in.Title != nil {
			t.Title = title
		}
		if in.Note != nil {
			t.Note = strings.TrimSpace(*in.Note)
		}
		if in.Recurrence != nil || in.ClearRecurrence {
			if err := reminder.SetRecurrence(t, rule); err != nil {
				return err
			}
		}
		switch {
		case in.RemindAt != nil:
			if err := reminder.Reschedule(t, in.RemindAt); err != nil {
				return err
			}
		case in.ClearRemind:
			if err := reminder.Reschedule(t, nil); err != nil {
				return err
			}
		}
		if t.Recurring() && t.RemindAt == nil {
			return fmt.Errorf("%w: a recurring task needs a reminder time", ErrValidation)
		}
		return nil
	})
}

// CompleteTask marks a task done, or closes the current occurrence of a
// recurring task.
func (s *Service) CompleteTask(ctx context.Context, owner, ref string) (*models.Task, error) {
	now := s.clock.Now()
	return s.mutate(ctx, owner, ref, audit.ActionComplete, nil, func(t *models.Task) error {
		return reminder.Complete(t, now)
	})
}

// ResetTask releases a quarantined task.
func (s *Service) ResetTask(ctx context.Context, owner, ref string) (*models.Task, error) {
	return s.mutate(ctx, owner, ref, audit.ActionReset, nil, reminder.Reset)
}

// UndoTask reopens a done task.
func (s *Service) UndoTask(ctx context.Context, owner, ref string) (*models.Task, error) {
	return s.mutate(ctx, owner, ref, audit.ActionUndo, nil, reminder.Undo)
}

// DeleteTask removes a task and returns what was deleted.
func (s *Service) DeleteTask(ctx context.Context, owner, ref string) (*models.Task, error) {
	task, err := s.resolve(ctx, owner, ref)
	if err != nil {
		return nil, err
	}
	if err := s.store.DeleteTask(ctx, owner, task.ID); err != nil {
		return nil, mapStoreError(err)
	}
	s.record(ctx, audit.ActionDelete, map[string]string{"task_id": task.ID}, task.ID, owner, "")
	return task, nil
}

// Acknowledge resolves a bare acknowledgement from owner.
func (s *Service) Acknowledge(ctx context.Context, owner string) (*reminder.Resolution, error) {
	return s.engine.Resolve(ctx, owner, s.engine.Policy().AckWindow)
}

// TaskAudit returns the decision records for a task, newest first.
func (s *Service) TaskAudit(ctx context.Context, owner, ref string, limit int) ([]models.AuditEntry, error) {
	task, err := s.resolve(ctx, owner, ref)
	if err != nil {
		return nil, err
	}
	return s.store.ListAuditForTask(ctx, owner, task.ID, limit)
}

// resolve finds a task by exact id, then by unique prefix.
func (s *Service) resolve(ctx context.Context, owner, ref string) (*models.Task, error) {
	ref = strings.ToLower(strings.TrimSpace(ref))
	if ref == "" {
		return nil, fmt.Errorf("%w: task id is required", ErrValidation)
	}

	task, err := s.store.GetTask(ctx, owner, ref)
	if err == nil {
		return task, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	if len(ref) < MinIDPrefix {
		return nil, fmt.Errorf("%w: id prefix must be at least %d characters", ErrValidation, MinIDPrefix)
	}

	task, err = s.store.FindTaskByPrefix(ctx, owner, ref)
	if err != nil {
		return nil, mapStoreError(err)
	}
	return task, nil
}

func (s *Service) mutate(ctx context.Context, owner, ref, action string, inputs interface{}, fn func(*models.Task) error) (*models.Task, error) {
	task, err := s.resolve(ctx, owner, ref)
	if err != nil {
		return nil, err
	}
	from := task.Status

	updated, err := s.store.MutateTask(ctx, owner, task.ID, fn)
	if err != nil {
		return nil, mapStoreError(err)
	}

	s.record(ctx, action, inputs, updated.ID, owner, fmt.Sprintf("%s->%s", from, updated.Status))
	return updated, nil
}

func (s *Service) record(ctx context.Context, action string, inputs interface{}, taskID, owner, details string) {
	if s.pdr == nil {
		return
	}
	// Audit failures never fail the user action.
	if _, err := s.pdr.Record(ctx, action, inputs, "success", taskID, owner, details); err != nil {
		logging.FromContext(ctx).Warn("audit record failed",
			"action", action, "task_id", taskID, "error", err)
	}
}

func mapStoreError(err error) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return fmt.Errorf("%w: %v", ErrTaskNotFound, err)
	case errors.Is(err, store.ErrAmbiguous):
		return fmt.Errorf("%w: %v", ErrAmbiguousID, err)
	default:
		return err
	}
}

// cleanTitle returns title in NFC form, trimmed and cut to MaxTitleLength runes.
func cleanTitle(title string) (string, error) {
	title = strings.TrimSpace(norm.NFC.String(title))
	if title == "" {
		return "", fmt.Errorf("%w: title is required", ErrValidation)
	}
	if utf8.RuneCountInString(title) > MaxTitleLength {
		title = strings.TrimSpace(string([]rune(title)[:MaxTitleLength]))
	}
	return title, nil
}

func parseRule(s string) (models.Recurrence, error) {
	rule, err := models.ParseRecurrence(s)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidRecurrence, err)
	}
	return rule, nil
}
