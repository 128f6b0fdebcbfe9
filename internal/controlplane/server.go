package controlplane

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"

	"github.com/fentz26/nudge/internal/auth"
	"github.com/fentz26/nudge/internal/chat"
	"github.com/fentz26/nudge/internal/logging"
	"github.com/fentz26/nudge/internal/models"
	"github.com/fentz26/nudge/internal/scheduler"
)

// Version is reported by the health endpoint.
var Version = "dev"

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 1 << 20

// Pinger checks backing storage.
type Pinger interface {
	Ping(ctx context.Context) error
}

// StatsSource reports scheduler state. *scheduler.Scheduler satisfies it.
type StatsSource interface {
	Stats() scheduler.Stats
}

// Server provides the HTTP API for nudge.
type Server struct {
	service   *Service
	pinger    Pinger
	chat      *chat.Handler
	scheduler StatsSource
	tokens    *auth.TokenService
	validate  *validator.Validate
	logger    *slog.Logger
	addr      string
	server    *http.Server
}

// NewServer creates a new HTTP server.
func NewServer(service *Service, pinger Pinger, addr string) *Server {
	logger := slog.Default().With("component", "controlplane")
	return &Server{
		service:  service,
		pinger:   pinger,
		chat:     chat.NewHandler(chatBackend{service}, logger),
		validate: validator.New(),
		logger:   logger,
		addr:     addr,
	}
}

// SetLogger replaces the server logger.
func (s *Server) SetLogger(logger *slog.Logger) {
	s.logger = logger.With("component", "controlplane")
	s.chat = chat.NewHandler(chatBackend{s.service}, logger)
}

// SetScheduler exposes scheduler stats at /api/scheduler.
func (s *Server) SetScheduler(src StatsSource) {
	s.scheduler = src
}

// SetAuth requires bearer tokens issued by tokens on every /api route.
func (s *Server) SetAuth(tokens *auth.TokenService) {
	s.tokens = tokens
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.HandleFunc("/health", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Use(s.withOwner)

		r.Route("/todos", func(r chi.Router) {
			r.Get("/", s.listTasks)
			r.Post("/", s.createTask)
			r.Get("/today", s.listToday)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.getTask)
				r.Patch("/", s.editTask)
				r.Delete("/", s.deleteTask)
				r.Post("/complete", s.transition(s.service.CompleteTask))
				r.Post("/reset", s.transition(s.service.ResetTask))
				r.Post("/undo", s.transition(s.service.UndoTask))
				r.Get("/audit", s.taskAudit)
			})
		})

		r.Post("/ack", s.acknowledge)
		r.Post("/chat", s.handleChat)
		r.Get("/me", s.getMe)
		r.Put("/me", s.updateMe)
		r.Get("/scheduler", s.schedulerStats)
	})

	return r
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	s.logger.Info("starting nudge daemon", "addr", s.addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	OK      bool   `json:"ok"`
	DB      string `json:"db"`
	Version string `json:"version"`
	Time    string `json:"time"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	resp := HealthResponse{
		OK:      true,
		DB:      "ok",
		Version: Version,
		Time:    time.Now().UTC().Format(time.RFC3339),
	}
	status := http.StatusOK

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.pinger.Ping(ctx); err != nil {
		resp.OK = false
		resp.DB = "error: " + err.Error()
		status = http.StatusServiceUnavailable
	}

	writeJSON(w, status, resp)
}

// --- Task Handlers ---

type createTaskRequest struct {
	Title      string     `json:"title" validate:"required,max=1024"`
	Note       string     `json:"note" validate:"max=4096"`
	RemindAt   *time.Time `json:"remind_at"`
	Recurrence string     `json:"recurrence"`
}

func (s *Server) createTask(w http.ResponseWriter, r *http.Request) {
	var req createTaskRequest
	if !s.decode(w, r, &req) {
		return
	}

	owner, _ := OwnerFromContext(r.Context())
	task, err := s.service.CreateTask(r.Context(), owner, CreateTaskInput{
		Title:      req.Title,
		Note:       req.Note,
		RemindAt:   req.RemindAt,
		Recurrence: req.Recurrence,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, task)
}

func (s *Server) listTasks(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	owner, _ := OwnerFromContext(r.Context())
	tasks, err := s.service.ListTasks(r.Context(), owner, r.URL.Query().Get("status"), limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if tasks == nil {
		tasks = []models.Task{}
	}
	writeJSON(w, http.StatusOK, tasks)
}

func (s *Server) listToday(w http.ResponseWriter, r *http.Request) {
	day := s.service.Now()
	if d := r.URL.Query().Get("date"); d != "" {
		parsed, err := time.ParseInLocation("2006-01-02", d, s.service.Location())
		if err != nil {
			s.writeError(w, r, fmt.Errorf("%w: date must be YYYY-MM-DD", ErrValidation))
			return
		}
		day = parsed
	}

	owner, _ := OwnerFromContext(r.Context())
	tasks, err := s.service.ListForDay(r.Context(), owner, day)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if tasks == nil {
		tasks = []models.Task{}
	}
	writeJSON(w, http.StatusOK, tasks)
}

func (s *Server) getTask(w http.ResponseWriter, r *http.Request) {
	owner, _ := OwnerFromContext(r.Context())
	task, err := s.service.GetTask(r.Context(), owner, chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

type editTaskRequest struct {
	Title           *string    `json:"title" validate:"omitempty,max=1024"`
	Note            *string    `json:"note" validate:"omitempty,max=4096"`
	RemindAt        *time.Time `json:"remind_at"`
	ClearRemind     bool       `json:"clear_remind"`
	Recurrence      *string    `json:"recurrence"`
	ClearRecurrence bool       `json:"clear_recurrence"`
}

func (s *Server) editTask(w http.ResponseWriter, r *http.Request) {
	var req editTaskRequest
	if !s.decode(w, r, &req) {
		return
	}

	owner, _ := OwnerFromContext(r.Context())
	task, err := s.service.EditTask(r.Context(), owner, chi.URLParam(r, "id"), EditTaskInput{
		Title:           req.Title,
		Note:            req.Note,
		RemindAt:        req.RemindAt,
		ClearRemind:     req.ClearRemind,
		Recurrence:      req.Recurrence,
		ClearRecurrence: req.ClearRecurrence,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (s *Server) deleteTask(w http.ResponseWriter, r *http.Request) {
	owner, _ := OwnerFromContext(r.Context())
	task, err := s.service.DeleteTask(r.Context(), owner, chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (s *Server) transition(fn func(ctx context.Context, owner, ref string) (*models.Task, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		owner, _ := OwnerFromContext(r.Context())
		task, err := fn(r.Context(), owner, chi.URLParam(r, "id"))
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, task)
	}
}

func (s *Server) taskAudit(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 50)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	owner, _ := OwnerFromContext(r.Context())
	entries, err := s.service.TaskAudit(r.Context(), owner, chi.URLParam(r, "id"), limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if entries == nil {
		entries = []models.AuditEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) acknowledge(w http.ResponseWriter, r *http.Request) {
	owner, _ := OwnerFromContext(r.Context())
	res, err := s.service.Acknowledge(r.Context(), owner)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// --- Chat and owner handlers ---

type chatRequest struct {
	Text     string `json:"text" validate:"required,max=4096"`
	Nickname string `json:"nickname" validate:"max=64"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if !s.decode(w, r, &req) {
		return
	}

	owner, _ := OwnerFromContext(r.Context())
	reply, err := s.chat.Handle(r.Context(), owner, req.Nickname, req.Text)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reply)
}

// getMe registers the caller on first contact and returns it.
func (s *Server) getMe(w http.ResponseWriter, r *http.Request) {
	owner, _ := OwnerFromContext(r.Context())
	o, err := s.service.EnsureOwner(r.Context(), owner, "")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

type updateMeRequest struct {
	Nickname string `json:"nickname" validate:"max=64"`
}

func (s *Server) updateMe(w http.ResponseWriter, r *http.Request) {
	var req updateMeRequest
	if !s.decode(w, r, &req) {
		return
	}

	owner, _ := OwnerFromContext(r.Context())
	o, err := s.service.EnsureOwner(r.Context(), owner, req.Nickname)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (s *Server) schedulerStats(w http.ResponseWriter, r *http.Request) {
	if s.scheduler == nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "scheduler not running"})
		return
	}
	writeJSON(w, http.StatusOK, s.scheduler.Stats())
}

// --- helpers ---

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		s.writeError(w, r, fmt.Errorf("%w: invalid json: %v", ErrValidation, err))
		return false
	}
	if err := s.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			err = fmt.Errorf("%s failed on %q", fe.Field(), fe.Tag())
		}
		s.writeError(w, r, fmt.Errorf("%w: %v", ErrValidation, err))
		return false
	}
	return true
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusForError(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		logging.FromContext(r.Context()).Error("request failed", "path", r.URL.Path, "error", err)
		msg = "internal error"
	}
	writeJSON(w, status, errorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: %s must be a non-negative integer", ErrValidation, key)
	}
	return n, nil
}

// chatBackend adapts Service to the chat handler.
type chatBackend struct {
	*Service
}

func (b chatBackend) AddTask(ctx context.Context, owner, title string, remindAt *time.Time, rule string) (*models.Task, error) {
	return b.CreateTask(ctx, owner, CreateTaskInput{Title: title, RemindAt: remindAt, Recurrence: rule})
}
