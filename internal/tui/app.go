// Package tui provides the interactive terminal UI for nudge.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/fentz26/nudge/internal/chat"
	"github.com/fentz26/nudge/internal/client"
	"github.com/fentz26/nudge/internal/models"
	"github.com/fentz26/nudge/internal/scheduler"
)

var (
	// Colors
	primaryColor   = lipgloss.Color("#7C3AED")
	secondaryColor = lipgloss.Color("#6366F1")
	successColor   = lipgloss.Color("#10B981")
	warningColor   = lipgloss.Color("#F59E0B")
	errorColor     = lipgloss.Color("#EF4444")
	mutedColor     = lipgloss.Color("#6B7280")
	fgColor        = lipgloss.Color("#F9FAFB")
	cyanColor      = lipgloss.Color("#06B6D4")

	// Styles
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor).
			Padding(0, 1)

	statusBarStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("#374151")).
			Foreground(fgColor).
			Padding(0, 1)

	inputBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(primaryColor).
			Padding(0, 1)

	taskItemStyle = lipgloss.NewStyle().
			Padding(0, 2)

	selectedStyle = lipgloss.NewStyle().
			Background(primaryColor).
			Foreground(fgColor).
			Bold(true).
			Padding(0, 2)

	helpStyle = lipgloss.NewStyle().
			Foreground(mutedColor).
			Italic(true)

	onlineStyle = lipgloss.NewStyle().
			Foreground(successColor).
			Bold(true)

	offlineStyle = lipgloss.NewStyle().
			Foreground(errorColor)
)

const (
	modeList      = "list"
	modeDetail    = "detail"
	modeScheduler = "scheduler"
)

var filters = []string{"pending", "today", "all", "done", "failed"}
var filterNames = []string{"OPEN", "TODAY", "ALL", "DONE", "FAILED"}

// requestTimeout bounds each API call made by the UI.
const requestTimeout = 5 * time.Second

// API is the subset of the nudge client the UI drives.
type API interface {
	Health(ctx context.Context) (*client.HealthResponse, error)
	ListTasks(ctx context.Context, status string, limit int) ([]models.Task, error)
	Today(ctx context.Context, date string) ([]models.Task, error)
	GetTask(ctx context.Context, id string) (*models.Task, error)
	TaskAudit(ctx context.Context, id string, limit int) ([]models.AuditEntry, error)
	Chat(ctx context.Context, text, nickname string) (*chat.Reply, error)
	SetNickname(ctx context.Context, nickname string) (*models.Owner, error)
	SchedulerStats(ctx context.Context) (*scheduler.Stats, error)
}

// App is the main TUI application model.
type App struct {
	api          API
	owner        string
	loc          *time.Location
	tasks        []models.Task
	selectedIdx  int
	input        textinput.Model
	width        int
	height       int
	mode         string
	currentTask  *models.Task
	auditTrail   []models.AuditEntry
	message      string
	filterIdx    int
	loading      bool
	daemonOnline bool
	suggestions  *Suggestions
	stats        *scheduler.Stats
}

// New creates a new TUI application for owner.
func New(api API, owner string, loc *time.Location) *App {
	ti := textinput.New()
	ti.Placeholder = "Type: add <text> /at 2025-01-20 09:00 | done | ack | / for commands"
	ti.Focus()
	ti.CharLimit = 256
	ti.Width = 80

	if loc == nil {
		loc = time.Local
	}

	return &App{
		api:         api,
		owner:       owner,
		loc:         loc,
		input:       ti,
		mode:        modeList,
		suggestions: NewSuggestions(),
	}
}

// Run starts the TUI application.
func (a *App) Run() error {
	p := tea.NewProgram(a, tea.WithAltScreen())
	_, err := p.Run()
	return err
}

// Init implements tea.Model
func (a *App) Init() tea.Cmd {
	return tea.Batch(
		textinput.Blink,
		a.fetchTasks(),
		a.checkDaemon(),
	)
}

// Update implements tea.Model
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			return a, tea.Quit

		case "esc":
			if a.mode != modeList {
				a.mode = modeList
				a.currentTask = nil
				a.auditTrail = nil
				return a, a.fetchTasks()
			}
			a.input.SetValue("")
			a.suggestions.Update("")
			return a, nil

		case "up":
			if a.suggestions.IsVisible() {
				a.suggestions.Prev()
			} else if a.mode == modeList && a.selectedIdx > 0 {
				a.selectedIdx--
			}
			return a, nil

		case "down":
			if a.suggestions.IsVisible() {
				a.suggestions.Next()
			} else if a.mode == modeList && a.selectedIdx < len(a.tasks)-1 {
				a.selectedIdx++
			}
			return a, nil

		case "tab":
			if a.suggestions.IsVisible() {
				a.input.SetValue(a.suggestions.Completion())
				a.input.CursorEnd()
				a.suggestions.Update("")
				return a, nil
			}
			a.mode = modeList
			a.filterIdx = (a.filterIdx + 1) % len(filters)
			return a, a.fetchTasks()

		case "enter":
			if a.suggestions.IsVisible() {
				a.input.SetValue(a.suggestions.Completion())
				a.input.CursorEnd()
				a.suggestions.Update("")
				return a, nil
			}
			line := strings.TrimSpace(a.input.Value())
			if line != "" {
				a.input.SetValue("")
				return a, a.executeCommand(line)
			}
			if a.mode == modeList && len(a.tasks) > 0 {
				a.mode = modeDetail
				return a, a.fetchTaskDetail(a.tasks[a.selectedIdx].ID)
			}
			return a, nil

		case "ctrl+r":
			return a, a.refresh()

		case "ctrl+s":
			a.mode = modeScheduler
			return a, a.fetchStats()
		}

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.input.Width = msg.Width - 4

	case tasksLoadedMsg:
		a.loading = false
		a.tasks = msg.tasks
		if a.selectedIdx >= len(a.tasks) {
			a.selectedIdx = max(0, len(a.tasks)-1)
		}

	case taskDetailLoadedMsg:
		a.currentTask = msg.task
		a.auditTrail = msg.audit

	case daemonStatusMsg:
		a.daemonOnline = msg.online

	case statsFetchedMsg:
		a.stats = msg.stats
		if a.mode == modeScheduler {
			// Schedule the next tick only after the current fetch is complete.
			cmds = append(cmds, a.tickCmd())
		}

	case tickMsg:
		if a.mode == modeScheduler {
			return a, a.fetchStats()
		}
		return a, nil

	case commandResultMsg:
		a.message = msg.message
		return a, a.refresh()

	case errMsg:
		a.loading = false
		a.message = "Error: " + msg.err.Error()
	}

	var cmd tea.Cmd
	a.input, cmd = a.input.Update(msg)
	cmds = append(cmds, cmd)

	a.suggestions.Update(a.input.Value())
	if strings.HasPrefix(a.input.Value(), "@") {
		ids := make([]string, len(a.tasks))
		titles := make([]string, len(a.tasks))
		for i, t := range a.tasks {
			ids[i] = chat.ShortID(t.ID)
			titles[i] = t.Title
		}
		a.suggestions.SetTasks(ids, titles)
	}

	return a, tea.Batch(cmds...)
}

// View implements tea.Model
func (a *App) View() string {
	var b strings.Builder

	daemonStatus := onlineStyle.Render("● DAEMON")
	if !a.daemonOnline {
		daemonStatus = offlineStyle.Render("○ DAEMON")
	}

	header := titleStyle.Render("⏰ NUDGE")
	header += "  " + daemonStatus
	header += "  " + lipgloss.NewStyle().Foreground(cyanColor).Render(a.owner)

	b.WriteString(header + "\n")
	b.WriteString(strings.Repeat("─", a.width) + "\n")

	contentHeight := a.height - 8
	if contentHeight < 5 {
		contentHeight = 5
	}

	switch a.mode {
	case modeList:
		filterLabel := fmt.Sprintf(" Filter: [%s]", filterNames[a.filterIdx])
		b.WriteString(lipgloss.NewStyle().Foreground(mutedColor).Render(filterLabel) + "\n")
		b.WriteString(a.renderTaskList(contentHeight - 1))
	case modeDetail:
		b.WriteString(a.renderTaskDetail())
	case modeScheduler:
		b.WriteString(a.renderSchedulerPanel())
	}

	if a.message != "" {
		msgStyle := lipgloss.NewStyle().Foreground(successColor)
		if strings.HasPrefix(a.message, "Error") || strings.HasPrefix(a.message, "❌") {
			msgStyle = lipgloss.NewStyle().Foreground(errorColor)
		}
		b.WriteString("\n" + msgStyle.Render(a.message))
	} else {
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(inputBoxStyle.Render(a.input.View()))

	// Suggestions render below the input.
	if a.suggestions.IsVisible() {
		b.WriteString("\n")
		b.WriteString(a.suggestions.Render(a.width))
	}
	b.WriteString("\n")

	var status string
	switch a.mode {
	case modeList:
		status = fmt.Sprintf(" Tasks: %d | ↑↓:nav | Enter:detail | Tab:filter | Ctrl+S:scheduler | Ctrl+R:refresh | Ctrl+C:quit", len(a.tasks))
	case modeScheduler:
		status = " Esc:back | Ctrl+R:refresh"
	default:
		status = " Esc:back | Enter:command | Ctrl+C:quit"
	}
	b.WriteString(statusBarStyle.Width(a.width).Render(status))

	return b.String()
}

func (a *App) renderTaskList(height int) string {
	if a.loading && len(a.tasks) == 0 {
		return "\n  Loading tasks...\n"
	}
	if len(a.tasks) == 0 {
		return "\n  No tasks found. Type: add <text> to create one.\n"
	}

	lines := make([]string, 0, len(a.tasks))
	for i, task := range a.tasks {
		when := ""
		if task.RemindAt != nil {
			when = "  " + task.RemindAt.In(a.loc).Format("01-02 15:04")
		}
		repeat := ""
		if task.Recurring() {
			repeat = " 🔁"
		}
		short := chat.ShortID(task.ID)

		if i == a.selectedIdx {
			lines = append(lines, selectedStyle.Render(fmt.Sprintf("▶ %s %s  %s%s%s",
				formatStatusPlain(task.Status), short, task.Title, when, repeat)))
		} else {
			lines = append(lines, taskItemStyle.Render(fmt.Sprintf("  %s %s  %s%s%s",
				formatStatus(task.Status), short, task.Title, when, repeat)))
		}
	}

	// Limit visible lines
	if len(lines) > height {
		start := max(0, a.selectedIdx-height/2)
		end := start + height
		if end > len(lines) {
			end = len(lines)
			start = max(0, end-height)
		}
		lines = lines[start:end]
	}

	return strings.Join(lines, "\n")
}

func (a *App) renderTaskDetail() string {
	if a.currentTask == nil {
		return "\n  Loading...\n"
	}

	var b strings.Builder
	t := a.currentTask

	b.WriteString(fmt.Sprintf("\n  📋 %s\n", lipgloss.NewStyle().Bold(true).Render(t.Title)))
	b.WriteString(fmt.Sprintf("  ID: %s\n", chat.ShortID(t.ID)))
	b.WriteString(fmt.Sprintf("  Status: %s\n", formatStatus(t.Status)))
	if t.Note != "" {
		b.WriteString(fmt.Sprintf("  Note: %s\n", t.Note))
	}
	if t.RemindAt != nil {
		b.WriteString(fmt.Sprintf("  Remind at: %s\n", t.RemindAt.In(a.loc).Format("2006-01-02 15:04")))
	}
	if t.Recurring() {
		b.WriteString(fmt.Sprintf("  Repeats: %s\n", t.Recurrence))
	}
	if t.RetryCount > 0 {
		b.WriteString(fmt.Sprintf("  Notifications sent: %d\n", t.RetryCount))
	}
	if t.LastNotifiedAt != nil {
		b.WriteString(fmt.Sprintf("  Last notified: %s\n", t.LastNotifiedAt.In(a.loc).Format("2006-01-02 15:04:05")))
	}
	if t.CompletedAt != nil {
		b.WriteString(fmt.Sprintf("  Completed: %s\n", t.CompletedAt.In(a.loc).Format("2006-01-02 15:04")))
	}

	if len(a.auditTrail) > 0 {
		b.WriteString("\n  📜 History:\n")
		for i, e := range a.auditTrail {
			if i >= 5 {
				break
			}
			line := fmt.Sprintf("    • %s %s", e.Timestamp.In(a.loc).Format("01-02 15:04"), e.Action)
			if e.Details != "" {
				line += " " + helpStyle.Render(e.Details)
			}
			b.WriteString(line + "\n")
		}
	}

	return b.String()
}

func (a *App) renderSchedulerPanel() string {
	var b strings.Builder

	b.WriteString("\n  ⚙️  Scheduler\n")
	b.WriteString("  " + strings.Repeat("─", 50) + "\n\n")

	if a.stats == nil {
		b.WriteString("  Loading...\n")
		return b.String()
	}
	st := a.stats

	running := offlineStyle.Render("stopped")
	if st.Running {
		running = onlineStyle.Render("running")
	}
	b.WriteString(fmt.Sprintf("  State:     %s (%s)\n", running, st.Notifier))
	b.WriteString(fmt.Sprintf("  Ticks:     %d\n", st.Ticks))
	b.WriteString(fmt.Sprintf("  Sent:      %d\n", st.Sent))
	failStyle := lipgloss.NewStyle().Foreground(successColor)
	if st.SendFailures > 0 || st.OutcomeFailures > 0 {
		failStyle = lipgloss.NewStyle().Foreground(warningColor)
	}
	b.WriteString(fmt.Sprintf("  Failures:  %s\n", failStyle.Render(fmt.Sprintf("%d send, %d outcome", st.SendFailures, st.OutcomeFailures))))
	b.WriteString(fmt.Sprintf("  Recovered: %d\n", st.Recovered))
	if st.LastTick != nil {
		b.WriteString(fmt.Sprintf("  Last tick: %s\n", st.LastTick.In(a.loc).Format("15:04:05")))
	}
	b.WriteString(fmt.Sprintf("  Startup:   %d stale reset, %d due\n", st.Reconcile.Reset, st.Reconcile.Due))

	b.WriteString("\n  " + helpStyle.Render("Press Esc to go back") + "\n")
	return b.String()
}

func formatStatus(status models.TaskStatus) string {
	switch status {
	case models.TaskStatusPending:
		return lipgloss.NewStyle().Foreground(warningColor).Render("○ PENDING")
	case models.TaskStatusDone:
		return lipgloss.NewStyle().Foreground(successColor).Render("● DONE")
	case models.TaskStatusFailed:
		return lipgloss.NewStyle().Foreground(errorColor).Render("✗ FAILED")
	default:
		return string(status)
	}
}

func formatStatusPlain(status models.TaskStatus) string {
	switch status {
	case models.TaskStatusPending:
		return "○"
	case models.TaskStatusDone:
		return "●"
	case models.TaskStatusFailed:
		return "✗"
	default:
		return "?"
	}
}

func (a *App) refresh() tea.Cmd {
	switch a.mode {
	case modeDetail:
		if a.currentTask != nil {
			return a.fetchTaskDetail(a.currentTask.ID)
		}
	case modeScheduler:
		return a.fetchStats()
	}
	return a.fetchTasks()
}

func (a *App) fetchTasks() tea.Cmd {
	a.loading = true
	filter := filters[a.filterIdx]
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()

		var tasks []models.Task
		var err error
		if filter == "today" {
			tasks, err = a.api.Today(ctx, "")
		} else {
			tasks, err = a.api.ListTasks(ctx, filter, 0)
		}
		if err != nil {
			return errMsg{err}
		}
		return tasksLoadedMsg{tasks}
	}
}

func (a *App) fetchTaskDetail(taskID string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()

		task, err := a.api.GetTask(ctx, taskID)
		if err != nil {
			return errMsg{err}
		}
		trail, _ := a.api.TaskAudit(ctx, taskID, 10)
		return taskDetailLoadedMsg{task, trail}
	}
}

func (a *App) fetchStats() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()

		stats, err := a.api.SchedulerStats(ctx)
		if err != nil {
			return errMsg{err}
		}
		return statsFetchedMsg{stats}
	}
}

func (a *App) checkDaemon() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()

		health, err := a.api.Health(ctx)
		return daemonStatusMsg{online: err == nil && health != nil && health.OK}
	}
}

func (a *App) tickCmd() tea.Cmd {
	return tea.Tick(2*time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// executeCommand runs a typed command. Task commands are forwarded to the
// chat endpoint so the UI speaks the same language as chat clients.
func (a *App) executeCommand(input string) tea.Cmd {
	parts := strings.Fields(input)
	if len(parts) == 0 {
		return nil
	}
	cmd := strings.ToLower(strings.TrimPrefix(parts[0], "/"))
	args := parts[1:]

	var selected string
	if a.mode == modeDetail && a.currentTask != nil {
		selected = a.currentTask.ID
	} else if len(a.tasks) > 0 && a.selectedIdx < len(a.tasks) {
		selected = a.tasks[a.selectedIdx].ID
	}

	var text string
	switch cmd {
	case "q", "quit", "exit":
		return tea.Quit

	case "add":
		if len(args) == 0 {
			return func() tea.Msg { return commandResultMsg{"Usage: add <text> [/at YYYY-MM-DD HH:MM] [/every rule]"} }
		}
		text = chat.Prefix + " " + strings.Join(args, " ")

	case "done", "del", "rm", "reset", "undo":
		id := selected
		if len(args) > 0 {
			id = strings.TrimPrefix(args[0], "@")
		}
		if id == "" {
			return func() tea.Msg { return commandResultMsg{"No task selected"} }
		}
		text = fmt.Sprintf("%s %s %s", chat.Prefix, cmd, id)

	case "ack", chat.AckReply:
		text = chat.AckReply

	case "nick":
		nickname := strings.Join(args, " ")
		return func() tea.Msg {
			ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
			defer cancel()
			if _, err := a.api.SetNickname(ctx, nickname); err != nil {
				return commandResultMsg{"Error: " + err.Error()}
			}
			return commandResultMsg{"✓ Nickname set"}
		}

	default:
		return func() tea.Msg {
			return commandResultMsg{fmt.Sprintf("Unknown: %s (try: add, done, del, reset, undo, ack)", cmd)}
		}
	}

	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		reply, err := a.api.Chat(ctx, text, "")
		if err != nil {
			return commandResultMsg{"Error: " + err.Error()}
		}
		// The list view shows the result, so keep the first line only.
		msg, _, _ := strings.Cut(reply.Text, "\n")
		return commandResultMsg{msg}
	}
}

type commandResultMsg struct {
	message string
}

type errMsg struct {
	err error
}

type tasksLoadedMsg struct {
	tasks []models.Task
}

type taskDetailLoadedMsg struct {
	task  *models.Task
	audit []models.AuditEntry
}

type daemonStatusMsg struct {
	online bool
}

type statsFetchedMsg struct {
	stats *scheduler.Stats
}

type tickMsg time.Time
