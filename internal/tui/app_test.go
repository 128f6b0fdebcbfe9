package tui

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fentz26/nudge/internal/chat"
	"github.com/fentz26/nudge/internal/client"
	"github.com/fentz26/nudge/internal/models"
	"github.com/fentz26/nudge/internal/scheduler"
)

type fakeAPI struct {
	tasks    []models.Task
	chatText []string
	nickname string
	listed   []string
	failList bool
}

func (f *fakeAPI) Health(ctx context.Context) (*client.HealthResponse, error) {
	return &client.HealthResponse{OK: true, DB: "ok"}, nil
}

func (f *fakeAPI) ListTasks(ctx context.Context, status string, limit int) ([]models.Task, error) {
	f.listed = append(f.listed, status)
	if f.failList {
		return nil, errors.New("boom")
	}
	return f.tasks, nil
}

func (f *fakeAPI) Today(ctx context.Context, date string) ([]models.Task, error) {
	f.listed = append(f.listed, "today")
	return f.tasks, nil
}

func (f *fakeAPI) GetTask(ctx context.Context, id string) (*models.Task, error) {
	for i := range f.tasks {
		if f.tasks[i].ID == id {
			return &f.tasks[i], nil
		}
	}
	return nil, &client.APIError{Status: 404, Message: "task not found"}
}

func (f *fakeAPI) TaskAudit(ctx context.Context, id string, limit int) ([]models.AuditEntry, error) {
	return []models.AuditEntry{{Action: "create", TaskID: id}}, nil
}

func (f *fakeAPI) Chat(ctx context.Context, text, nickname string) (*chat.Reply, error) {
	f.chatText = append(f.chatText, text)
	return &chat.Reply{Handled: true, Text: "✅ ok\nsecond line"}, nil
}

func (f *fakeAPI) SetNickname(ctx context.Context, nickname string) (*models.Owner, error) {
	f.nickname = nickname
	return &models.Owner{ID: "alice", Nickname: nickname}, nil
}

func (f *fakeAPI) SchedulerStats(ctx context.Context) (*scheduler.Stats, error) {
	return &scheduler.Stats{Running: true, Notifier: "log", Ticks: 3}, nil
}

func sampleTasks() []models.Task {
	at := time.Date(2025, time.May, 1, 9, 0, 0, 0, time.UTC)
	return []models.Task{
		{ID: "aaaaaaaa-1111", Owner: "alice", Title: "water plants", Status: models.TaskStatusPending, RemindAt: &at},
		{ID: "bbbbbbbb-2222", Owner: "alice", Title: "standup", Status: models.TaskStatusFailed, Recurrence: models.RecurrenceWorkday, RemindAt: &at},
	}
}

func newTestApp(api *fakeAPI) *App {
	a := New(api, "alice", time.UTC)
	a.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	return a
}

func typeText(a *App, s string) {
	for _, r := range s {
		a.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}})
	}
}

func TestApp_LoadsTasks(t *testing.T) {
	api := &fakeAPI{tasks: sampleTasks()}
	a := newTestApp(api)

	msg := a.fetchTasks()()
	a.Update(msg)
	require.Len(t, a.tasks, 2)
	assert.Equal(t, []string{"pending"}, api.listed)

	view := a.View()
	assert.Contains(t, view, "water plants")
	assert.Contains(t, view, "aaaaaaaa")
	assert.Contains(t, view, "OPEN")
}

func TestApp_FilterCycle(t *testing.T) {
	api := &fakeAPI{tasks: sampleTasks()}
	a := newTestApp(api)

	_, cmd := a.Update(tea.KeyMsg{Type: tea.KeyTab})
	require.NotNil(t, cmd)
	assert.Equal(t, 1, a.filterIdx)
	a.fetchTasks()()
	assert.Equal(t, []string{"today"}, api.listed)
}

func TestApp_ListError(t *testing.T) {
	a := newTestApp(&fakeAPI{failList: true})
	a.Update(a.fetchTasks()())
	assert.True(t, strings.HasPrefix(a.message, "Error: boom"))
}

func TestApp_DetailAndBack(t *testing.T) {
	api := &fakeAPI{tasks: sampleTasks()}
	a := newTestApp(api)
	a.Update(a.fetchTasks()())

	a.Update(tea.KeyMsg{Type: tea.KeyDown})
	assert.Equal(t, 1, a.selectedIdx)

	_, cmd := a.Update(tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, cmd)
	assert.Equal(t, modeDetail, a.mode)

	a.Update(a.fetchTaskDetail(a.tasks[1].ID)())
	view := a.View()
	assert.Contains(t, view, "standup")
	assert.Contains(t, view, "workday")
	assert.Contains(t, view, "History")

	a.Update(tea.KeyMsg{Type: tea.KeyEsc})
	assert.Equal(t, modeList, a.mode)
	assert.Nil(t, a.currentTask)
}

func TestApp_CommandsGoThroughChat(t *testing.T) {
	api := &fakeAPI{tasks: sampleTasks()}
	a := newTestApp(api)
	a.Update(a.fetchTasks()())

	msg := a.executeCommand("add buy milk /at 2025-05-02 08:00")()
	assert.Equal(t, commandResultMsg{"✅ ok"}, msg)

	a.executeCommand("done")()
	a.executeCommand("del @bbbbbbbb")()
	a.executeCommand("ack")()

	assert.Equal(t, []string{
		"#todo buy milk /at 2025-05-02 08:00",
		"#todo done aaaaaaaa-1111",
		"#todo del bbbbbbbb",
		"1",
	}, api.chatText)
}

func TestApp_CommandUsage(t *testing.T) {
	api := &fakeAPI{}
	a := newTestApp(api)

	assert.Equal(t, commandResultMsg{"No task selected"}, a.executeCommand("done")())
	res := a.executeCommand("frobnicate")().(commandResultMsg)
	assert.Contains(t, res.message, "Unknown: frobnicate")
	res = a.executeCommand("add")().(commandResultMsg)
	assert.Contains(t, res.message, "Usage")
	assert.Empty(t, api.chatText)

	a.executeCommand("nick Ally")()
	assert.Equal(t, "Ally", api.nickname)
}

func TestApp_SchedulerPanel(t *testing.T) {
	a := newTestApp(&fakeAPI{})
	_, cmd := a.Update(tea.KeyMsg{Type: tea.KeyCtrlS})
	require.NotNil(t, cmd)
	assert.Equal(t, modeScheduler, a.mode)

	a.Update(a.fetchStats()())
	view := a.View()
	assert.Contains(t, view, "running")
	assert.Contains(t, view, "log")
}

func TestApp_TaskSuggestions(t *testing.T) {
	a := newTestApp(&fakeAPI{tasks: sampleTasks()})
	a.Update(a.fetchTasks()())

	typeText(a, "@stand")
	require.True(t, a.suggestions.IsVisible())
	assert.Equal(t, "done bbbbbbbb", a.suggestions.Completion())

	a.Update(tea.KeyMsg{Type: tea.KeyTab})
	assert.Equal(t, "done bbbbbbbb", a.input.Value())
	assert.False(t, a.suggestions.IsVisible())
}

func TestApp_DaemonStatus(t *testing.T) {
	a := newTestApp(&fakeAPI{})
	a.Update(a.checkDaemon()())
	assert.True(t, a.daemonOnline)
	assert.Contains(t, a.View(), "● DAEMON")
}
