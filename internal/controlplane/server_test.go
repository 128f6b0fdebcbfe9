package controlplane

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fentz26/nudge/internal/audit"
	"github.com/fentz26/nudge/internal/auth"
	"github.com/fentz26/nudge/internal/chat"
	"github.com/fentz26/nudge/internal/clock"
	"github.com/fentz26/nudge/internal/logging"
	"github.com/fentz26/nudge/internal/models"
	"github.com/fentz26/nudge/internal/reminder"
	"github.com/fentz26/nudge/internal/store"
)

var t0 = time.Date(2025, time.May, 1, 9, 0, 0, 0, time.UTC)

type testEnv struct {
	server  *Server
	service *Service
	engine  *reminder.Engine
	store   *store.Store
	clock   *clock.Fake
	handler http.Handler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	st, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	clk := clock.NewFake(t0)
	st.SetNowFunc(clk.Now)
	rec := audit.NewRecorder(st)
	engine := reminder.NewEngine(st, clk, reminder.Policy{Location: time.UTC}, rec, logging.Discard())
	service := NewService(st, engine, rec, clk)
	server := NewServer(service, st, "127.0.0.1:0")
	server.SetLogger(logging.Discard())

	return &testEnv{server: server, service: service, engine: engine, store: st, clock: clk, handler: server.Handler()}
}

func newTestServer(t *testing.T) (*Server, func()) {
	env := newTestEnv(t)
	return env.server, func() {}
}

func (e *testEnv) do(t *testing.T, method, path, owner string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if owner != "" {
		req.Header.Set(OwnerHeader, owner)
	}
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, req)
	return w
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(w.Body).Decode(&v), w.Body.String())
	return v
}

func TestHealthEndpoint_OK(t *testing.T) {
	s, cleanup := newTestServer(t)
	defer cleanup()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()

	s.handleHealth(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}

	var health HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if !health.OK {
		t.Error("Expected health.OK to be true")
	}
	if health.DB != "ok" {
		t.Errorf("Expected DB status 'ok', got '%s'", health.DB)
	}
	if health.Version == "" {
		t.Error("Expected version to be set")
	}
	if health.Time == "" {
		t.Error("Expected time to be set")
	}
}

func TestHealthEndpoint_MethodNotAllowed(t *testing.T) {
	s, cleanup := newTestServer(t)
	defer cleanup()

	req := httptest.NewRequest(http.MethodPost, "/health", nil)
	w := httptest.NewRecorder()

	s.handleHealth(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("Expected status 405, got %d", resp.StatusCode)
	}
}

func TestHealthEndpoint_DBError(t *testing.T) {
	env := newTestEnv(t)

	// Close the store to simulate DB error
	env.store.Close()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()

	env.server.handleHealth(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("Expected status 503, got %d", resp.StatusCode)
	}

	var health HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if health.OK {
		t.Error("Expected health.OK to be false when DB is down")
	}
	if health.DB == "ok" {
		t.Error("Expected DB status to indicate error")
	}
}

func TestAPI_RequiresOwner(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, http.MethodGet, "/api/todos", "", nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401, got %d", w.Code)
	}
	if msg := decodeBody[errorResponse](t, w).Error; !strings.Contains(msg, "owner is required") {
		t.Errorf("Unexpected error message: %q", msg)
	}

	w = env.do(t, http.MethodGet, "/api/todos?owner=alice", "", nil)
	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200 with owner query, got %d", w.Code)
	}
}

func TestAPI_TaskLifecycle(t *testing.T) {
	env := newTestEnv(t)
	at := t0.Add(time.Hour)

	w := env.do(t, http.MethodPost, "/api/todos", "alice", map[string]interface{}{
		"title": "  pay rent ", "remind_at": at, "recurrence": "monthly",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decodeBody[models.Task](t, w)
	assert.Equal(t, "pay rent", created.Title)
	assert.Equal(t, models.RecurrenceMonthly, created.Recurrence)

	short := created.ID[:8]
	w = env.do(t, http.MethodGet, "/api/todos/"+short, "alice", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, created.ID, decodeBody[models.Task](t, w).ID)

	// Other owners cannot see it.
	w = env.do(t, http.MethodGet, "/api/todos/"+short, "bob", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(t, http.MethodGet, "/api/todos", "alice", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decodeBody[[]models.Task](t, w), 1)

	// Recurring completion rearms and stays pending.
	w = env.do(t, http.MethodPost, "/api/todos/"+short+"/complete", "alice", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.TaskStatusPending, decodeBody[models.Task](t, w).Status)

	w = env.do(t, http.MethodPost, "/api/todos/"+short+"/reset", "alice", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = env.do(t, http.MethodGet, "/api/todos/"+short+"/audit", "alice", nil)
	require.Equal(t, http.StatusOK, w.Code)
	entries := decodeBody[[]models.AuditEntry](t, w)
	require.Len(t, entries, 2)
	assert.Equal(t, audit.ActionComplete, entries[0].Action)
	assert.Equal(t, audit.ActionCreate, entries[1].Action)

	w = env.do(t, http.MethodDelete, "/api/todos/"+short, "alice", nil)
	require.Equal(t, http.StatusOK, w.Code)
	w = env.do(t, http.MethodGet, "/api/todos/"+created.ID, "alice", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAPI_OneShotCompleteAndUndo(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, http.MethodPost, "/api/todos", "alice", map[string]interface{}{"title": "buy milk"})
	require.Equal(t, http.StatusCreated, w.Code)
	id := decodeBody[models.Task](t, w).ID

	w = env.do(t, http.MethodPost, "/api/todos/"+id+"/complete", "alice", nil)
	require.Equal(t, http.StatusOK, w.Code)
	done := decodeBody[models.Task](t, w)
	assert.Equal(t, models.TaskStatusDone, done.Status)
	require.NotNil(t, done.CompletedAt)

	w = env.do(t, http.MethodGet, "/api/todos?status=done", "alice", nil)
	assert.Len(t, decodeBody[[]models.Task](t, w), 1)
	w = env.do(t, http.MethodGet, "/api/todos", "alice", nil)
	assert.Empty(t, decodeBody[[]models.Task](t, w))

	w = env.do(t, http.MethodPost, "/api/todos/"+id+"/undo", "alice", nil)
	require.Equal(t, http.StatusOK, w.Code)
	undone := decodeBody[models.Task](t, w)
	assert.Equal(t, id, undone.ID)
	assert.Equal(t, models.TaskStatusPending, undone.Status)
	assert.Nil(t, undone.CompletedAt)
}

func TestAPI_CreateValidation(t *testing.T) {
	env := newTestEnv(t)
	tests := []struct {
		name string
		body interface{}
	}{
		{"missing title", map[string]interface{}{"note": "x"}},
		{"blank title", map[string]interface{}{"title": "   "}},
		{"bad rule", map[string]interface{}{"title": "x", "recurrence": "hourly", "remind_at": t0}},
		{"rule without time", map[string]interface{}{"title": "x", "recurrence": "daily"}},
		{"unknown field", map[string]interface{}{"title": "x", "priority": 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodPost, "/api/todos", "alice", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
		})
	}

	w := env.do(t, http.MethodGet, "/api/todos?status=weird", "alice", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAPI_EditReschedulesFailedTask(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	task, err := env.service.CreateTask(ctx, "alice", CreateTaskInput{Title: "stretch", RemindAt: &t0})
	require.NoError(t, err)
	_, err = env.store.MutateTask(ctx, "alice", task.ID, func(tk *models.Task) error {
		tk.Status = models.TaskStatusFailed
		tk.Notified = true
		tk.RetryCount = 3
		return nil
	})
	require.NoError(t, err)

	later := t0.Add(2 * time.Hour)
	w := env.do(t, http.MethodPatch, "/api/todos/"+task.ID, "alice", map[string]interface{}{
		"title": "stretch more", "remind_at": later,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	edited := decodeBody[models.Task](t, w)
	assert.Equal(t, "stretch more", edited.Title)
	assert.Equal(t, models.TaskStatusPending, edited.Status)
	assert.False(t, edited.Notified)
	assert.Zero(t, edited.RetryCount)
	require.NotNil(t, edited.RemindAt)
	assert.True(t, edited.RemindAt.Equal(later))

	w = env.do(t, http.MethodPatch, "/api/todos/"+task.ID, "alice", map[string]interface{}{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAPI_Today(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	today := t0.Add(3 * time.Hour)
	tomorrow := t0.Add(24 * time.Hour)
	_, err := env.service.CreateTask(ctx, "alice", CreateTaskInput{Title: "today", RemindAt: &today})
	require.NoError(t, err)
	_, err = env.service.CreateTask(ctx, "alice", CreateTaskInput{Title: "tomorrow", RemindAt: &tomorrow})
	require.NoError(t, err)

	w := env.do(t, http.MethodGet, "/api/todos/today", "alice", nil)
	require.Equal(t, http.StatusOK, w.Code)
	tasks := decodeBody[[]models.Task](t, w)
	require.Len(t, tasks, 1)
	assert.Equal(t, "today", tasks[0].Title)

	w = env.do(t, http.MethodGet, "/api/todos/today?date=2025-05-02", "alice", nil)
	tasks = decodeBody[[]models.Task](t, w)
	require.Len(t, tasks, 1)
	assert.Equal(t, "tomorrow", tasks[0].Title)

	w = env.do(t, http.MethodGet, "/api/todos/today?date=May", "alice", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAPI_Acknowledge(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	w := env.do(t, http.MethodPost, "/api/ack", "alice", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	task, err := env.service.CreateTask(ctx, "alice", CreateTaskInput{Title: "call mom", RemindAt: &t0})
	require.NoError(t, err)
	_, err = env.store.MutateTask(ctx, "alice", task.ID, func(tk *models.Task) error {
		now := t0
		tk.Notified = true
		tk.RetryCount = 1
		tk.LastNotifiedAt = &now
		return nil
	})
	require.NoError(t, err)
	env.clock.Advance(time.Minute)

	w = env.do(t, http.MethodPost, "/api/ack", "alice", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	res := decodeBody[reminder.Resolution](t, w)
	assert.Equal(t, reminder.StrategyRecent, res.Strategy)
	require.Len(t, res.Tasks, 1)
	assert.Equal(t, models.TaskStatusDone, res.Tasks[0].Status)
}

func TestAPI_Chat(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/chat", "alice", map[string]string{
		"text": "#todo standup /at 2025-05-01 10:00 /every workday", "nickname": "Alice",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	reply := decodeBody[chat.Reply](t, w)
	assert.True(t, reply.Handled)
	assert.Contains(t, reply.Text, "standup")

	owner, err := env.store.GetOwner(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, "Alice", owner.Nickname)

	w = env.do(t, http.MethodPost, "/api/chat", "alice", map[string]string{"text": "#todo today"})
	reply = decodeBody[chat.Reply](t, w)
	assert.Contains(t, reply.Text, "standup")

	w = env.do(t, http.MethodPost, "/api/chat", "alice", map[string]string{"text": "hi"})
	reply = decodeBody[chat.Reply](t, w)
	assert.False(t, reply.Handled)
}

func TestAPI_Me(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, http.MethodPut, "/api/me", "alice", map[string]string{"nickname": "Al"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Al", decodeBody[models.Owner](t, w).Nickname)

	// Reading keeps the stored nickname.
	w = env.do(t, http.MethodGet, "/api/me", "alice", nil)
	require.Equal(t, http.StatusOK, w.Code)
	me := decodeBody[models.Owner](t, w)
	assert.Equal(t, "alice", me.ID)
	assert.Equal(t, "Al", me.Nickname)
}

func TestAPI_SchedulerStats(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, http.MethodGet, "/api/scheduler", "alice", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAPI_TokenAuth(t *testing.T) {
	env := newTestEnv(t)
	tokens, err := auth.NewTokenService("0123456789abcdef0123456789abcdef", time.Hour)
	require.NoError(t, err)
	env.server.SetAuth(tokens)
	env.handler = env.server.Handler()

	// The owner header is ignored once tokens are required.
	w := env.do(t, http.MethodGet, "/api/todos", "alice", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	token, _, err := tokens.Issue("alice")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/todos", bytes.NewBufferString(`{"title":"secret"}`))
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "alice", decodeBody[models.Task](t, rec).Owner)

	req = httptest.NewRequest(http.MethodGet, "/api/todos", nil)
	req.Header.Set("Authorization", "Bearer nope")
	rec = httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/todos", nil)
	req.Header.Set("Authorization", "Basic abc")
	rec = httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
