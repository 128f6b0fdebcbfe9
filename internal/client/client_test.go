package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fentz26/nudge/internal/audit"
	"github.com/fentz26/nudge/internal/clock"
	"github.com/fentz26/nudge/internal/controlplane"
	"github.com/fentz26/nudge/internal/logging"
	"github.com/fentz26/nudge/internal/models"
	"github.com/fentz26/nudge/internal/reminder"
	"github.com/fentz26/nudge/internal/store"
)

var t0 = time.Date(2025, time.May, 1, 9, 0, 0, 0, time.UTC)

func newTestAPI(t *testing.T) (*httptest.Server, *store.Store) {
	t.Helper()
	st, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	clk := clock.NewFake(t0)
	st.SetNowFunc(clk.Now)
	rec := audit.NewRecorder(st)
	engine := reminder.NewEngine(st, clk, reminder.Policy{Location: time.UTC}, rec, logging.Discard())
	server := controlplane.NewServer(controlplane.NewService(st, engine, rec, clk), st, "")
	server.SetLogger(logging.Discard())

	ts := httptest.NewServer(server.Handler())
	t.Cleanup(ts.Close)
	return ts, st
}

func TestClient_TaskRoundTrip(t *testing.T) {
	ts, _ := newTestAPI(t)
	c := New(ts.URL, WithOwner("alice"))
	ctx := context.Background()

	health, err := c.Health(ctx)
	require.NoError(t, err)
	assert.True(t, health.OK)

	at := t0.Add(time.Hour)
	task, err := c.CreateTask(ctx, CreateTaskRequest{Title: "standup", RemindAt: &at, Recurrence: "workday"})
	require.NoError(t, err)
	assert.Equal(t, "alice", task.Owner)

	got, err := c.GetTask(ctx, task.ID[:8])
	require.NoError(t, err)
	assert.Equal(t, task.ID, got.ID)

	note := "room 4"
	edited, err := c.EditTask(ctx, task.ID, EditTaskRequest{Note: &note})
	require.NoError(t, err)
	assert.Equal(t, note, edited.Note)

	tasks, err := c.ListTasks(ctx, "", 10)
	require.NoError(t, err)
	assert.Len(t, tasks, 1)

	today, err := c.Today(ctx, "")
	require.NoError(t, err)
	assert.Len(t, today, 1)

	done, err := c.CompleteTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusPending, done.Status)

	entries, err := c.TaskAudit(ctx, task.ID, 10)
	require.NoError(t, err)
	assert.Len(t, entries, 3)

	_, err = c.DeleteTask(ctx, task.ID)
	require.NoError(t, err)

	_, err = c.GetTask(ctx, task.ID)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.Status)
	assert.Contains(t, apiErr.Message, "task not found")
}

func TestClient_TransitionsAndChat(t *testing.T) {
	ts, _ := newTestAPI(t)
	c := New(ts.URL, WithOwner("bob"))
	ctx := context.Background()

	reply, err := c.Chat(ctx, "#todo buy milk", "Bob")
	require.NoError(t, err)
	assert.True(t, reply.Handled)

	tasks, err := c.ListTasks(ctx, "pending", 0)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	id := tasks[0].ID

	_, err = c.CompleteTask(ctx, id)
	require.NoError(t, err)
	undone, err := c.UndoTask(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusPending, undone.Status)

	_, err = c.ResetTask(ctx, id)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusConflict, apiErr.Status)

	_, err = c.Acknowledge(ctx)
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.Status)

	owner, err := c.SetNickname(ctx, "Bobby")
	require.NoError(t, err)
	assert.Equal(t, "Bobby", owner.Nickname)

	me, err := c.Me(ctx)
	require.NoError(t, err)
	assert.Equal(t, "bob", me.ID)
	assert.Equal(t, "Bobby", me.Nickname)

	_, err = c.SchedulerStats(ctx)
	assert.Error(t, err)
}

func TestClient_NoOwner(t *testing.T) {
	ts, _ := newTestAPI(t)
	_, err := New(ts.URL).ListTasks(context.Background(), "", 0)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
}

func TestClient_HealthUnavailable(t *testing.T) {
	ts, st := newTestAPI(t)
	st.Close()

	health, err := New(ts.URL).Health(context.Background())
	require.Error(t, err)
	require.NotNil(t, health)
	assert.False(t, health.OK)
}

func TestClient_TokenHeader(t *testing.T) {
	var gotAuth, gotOwner string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotOwner = r.Header.Get("X-Owner")
		w.Write([]byte(`[]`))
	}))
	defer ts.Close()

	_, err := New(ts.URL, WithToken("tok"), WithOwner("alice")).ListTasks(context.Background(), "", 0)
	require.NoError(t, err)
	assert.Equal(t, "Bearer tok", gotAuth)
	assert.Empty(t, gotOwner)
}
