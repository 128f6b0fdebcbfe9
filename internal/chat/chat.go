package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/fentz26/nudge/internal/models"
	"github.com/fentz26/nudge/internal/reminder"
)

// ListLimit caps the tasks shown by list and today.
const ListLimit = 20

// Backend is the task service the chat handler drives.
type Backend interface {
	EnsureOwner(ctx context.Context, owner, nickname string) (*models.Owner, error)
	AddTask(ctx context.Context, owner, title string, remindAt *time.Time, rule string) (*models.Task, error)
	ListTasks(ctx context.Context, owner, filter string, limit int) ([]models.Task, error)
	ListForDay(ctx context.Context, owner string, day time.Time) ([]models.Task, error)
	CompleteTask(ctx context.Context, owner, ref string) (*models.Task, error)
	DeleteTask(ctx context.Context, owner, ref string) (*models.Task, error)
	ResetTask(ctx context.Context, owner, ref string) (*models.Task, error)
	UndoTask(ctx context.Context, owner, ref string) (*models.Task, error)
	Acknowledge(ctx context.Context, owner string) (*reminder.Resolution, error)
	Now() time.Time
	Location() *time.Location
}

// Reply is the handler's answer. Handled is false for messages that are not
// addressed to the todo handler.
type Reply struct {
	Handled bool   `json:"handled"`
	Text    string `json:"text,omitempty"`
}

// Handler turns chat messages into task operations.
type Handler struct {
	backend Backend
	logger  *slog.Logger
}

// NewHandler creates a chat handler.
func NewHandler(b Backend, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{backend: b, logger: logger.With("component", "chat")}
}

// Handle processes one message from owner. Failures of a recognised command
// become an error reply; only a failure to register the owner is returned.
func (h *Handler) Handle(ctx context.Context, owner, nickname, text string) (Reply, error) {
	loc := h.backend.Location()
	cmd, err := Parse(text, loc)
	if err != nil {
		return Reply{Handled: true, Text: "❌ " + err.Error()}, nil
	}
	if cmd.Kind == KindNone {
		return Reply{}, nil
	}

	if _, err := h.backend.EnsureOwner(ctx, owner, nickname); err != nil {
		return Reply{}, fmt.Errorf("ensure owner: %w", err)
	}

	out, err := h.run(ctx, owner, cmd, loc)
	if err != nil {
		if errors.Is(err, reminder.ErrNothingToResolve) {
			return Reply{Handled: true, Text: "Nothing to acknowledge."}, nil
		}
		h.logger.Warn("chat command failed", "owner", owner, "command", cmd.Kind.String(), "error", err)
		return Reply{Handled: true, Text: "❌ " + err.Error()}, nil
	}
	return Reply{Handled: true, Text: out}, nil
}

func (h *Handler) run(ctx context.Context, owner string, cmd Command, loc *time.Location) (string, error) {
	switch cmd.Kind {
	case KindHelp:
		return HelpText, nil

	case KindAdd:
		t, err := h.backend.AddTask(ctx, owner, cmd.Title, cmd.RemindAt, cmd.Recurrence)
		if err != nil {
			return "", err
		}
		when := "no reminder"
		if t.RemindAt != nil {
			when = t.RemindAt.In(loc).Format("2006-01-02 15:04")
			if t.Recurring() {
				when += ", " + string(t.Recurrence)
			}
		}
		return fmt.Sprintf("📝 Created [%s] %s (reminder: %s)", ShortID(t.ID), t.Title, when), nil

	case KindList:
		tasks, err := h.backend.ListTasks(ctx, owner, cmd.Arg, ListLimit)
		if err != nil {
			return "", err
		}
		if len(tasks) == 0 {
			return "📋 No tasks", nil
		}
		return formatList("📋 Tasks:", tasks, loc, "01-02 15:04"), nil

	case KindToday:
		tasks, err := h.backend.ListForDay(ctx, owner, h.backend.Now())
		if err != nil {
			return "", err
		}
		if len(tasks) == 0 {
			return "📅 Nothing scheduled today", nil
		}
		return formatList("📅 Today:", tasks, loc, "15:04"), nil

	case KindDone:
		t, err := h.backend.CompleteTask(ctx, owner, cmd.Arg)
		if err != nil {
			return "", err
		}
		if t.Recurring() && t.RemindAt != nil {
			return fmt.Sprintf("✅ Done: %s (next: %s)", t.Title, t.RemindAt.In(loc).Format("2006-01-02 15:04")), nil
		}
		return "✅ Done: " + t.Title, nil

	case KindDelete:
		t, err := h.backend.DeleteTask(ctx, owner, cmd.Arg)
		if err != nil {
			return "", err
		}
		return "🗑 Deleted: " + t.Title, nil

	case KindReset:
		t, err := h.backend.ResetTask(ctx, owner, cmd.Arg)
		if err != nil {
			return "", err
		}
		return "🔄 Reset: " + t.Title, nil

	case KindUndo:
		t, err := h.backend.UndoTask(ctx, owner, cmd.Arg)
		if err != nil {
			return "", err
		}
		return "↩️ Reopened: " + t.Title, nil

	case KindAck:
		res, err := h.backend.Acknowledge(ctx, owner)
		if err != nil {
			return "", err
		}
		if len(res.Tasks) == 1 {
			return "✅ Done: " + res.Tasks[0].Title, nil
		}
		lines := []string{fmt.Sprintf("✅ Done %d tasks:", len(res.Tasks))}
		for _, t := range res.Tasks {
			lines = append(lines, "  • "+t.Title)
		}
		return strings.Join(lines, "\n"), nil
	}
	return "", fmt.Errorf("unsupported command %s", cmd.Kind)
}

// HelpText describes the chat commands.
const HelpText = `📝 Todo commands:

Create:   #todo <text>
At time:  #todo <text> /at 2025-01-20 09:00
Repeat:   #todo <text> /at 2025-01-20 09:00 /every daily|workday|weekly|monthly
No alarm: #todo <text> /noremind
List:     #todo list [all|done|failed]
Today:    #todo today
Done:     #todo done <id>
Delete:   #todo del <id>
Reset:    #todo reset <id>
Undo:     #todo undo <id>

Reply 1 after a reminder to complete it.`

func formatList(header string, tasks []models.Task, loc *time.Location, layout string) string {
	lines := []string{header}
	for _, t := range tasks {
		line := fmt.Sprintf("%s %s %s", statusIcon(t.Status), ShortID(t.ID), t.Title)
		if t.RemindAt != nil {
			line += " (" + t.RemindAt.In(loc).Format(layout) + ")"
		}
		if t.Recurring() {
			line += " 🔁"
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

func statusIcon(s models.TaskStatus) string {
	switch s {
	case models.TaskStatusDone:
		return "✅"
	case models.TaskStatusFailed:
		return "⚠️"
	default:
		return "⏳"
	}
}

// ShortID returns the id prefix shown to users.
func ShortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
