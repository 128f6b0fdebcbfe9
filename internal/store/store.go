// Package store provides SQLite-backed persistence for nudge.
package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fentz26/nudge/internal/models"
	"github.com/google/uuid"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

var (
	// ErrNotFound indicates the task or owner does not exist for the given owner scope.
	ErrNotFound = errors.New("not found")
	// ErrAmbiguous indicates an id prefix matches more than one task.
	ErrAmbiguous = errors.New("ambiguous id prefix")
)

// Store provides access to the nudge SQLite database.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// New creates a new Store and runs migrations.
func New(dbPath string) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	// WAL lets API readers proceed while the scheduler writes.
	dsn := dbPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)&_time_format=sqlite"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	// SQLite only supports one writer at a time; one connection also
	// serializes every transaction issued by this process.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Store{db: db, now: time.Now}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

// SetNowFunc overrides the time source used for created_at/updated_at stamps.
func (s *Store) SetNowFunc(now func() time.Time) {
	s.now = now
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

//go:embed migrations/*.sql
var migrationsFS embed.FS

// migrate applies the embedded goose migrations that have not run yet.
func (s *Store) migrate() error {
	fsys, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return err
	}
	provider, err := goose.NewProvider(goose.DialectSQLite3, s.db, fsys)
	if err != nil {
		return fmt.Errorf("goose provider: %w", err)
	}
	_, err = provider.Up(context.Background())
	return err
}

// SchemaVersion returns the latest applied migration version.
func (s *Store) SchemaVersion(ctx context.Context) (int64, error) {
	fsys, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return 0, err
	}
	provider, err := goose.NewProvider(goose.DialectSQLite3, s.db, fsys)
	if err != nil {
		return 0, err
	}
	return provider.GetDBVersion(ctx)
}

// withTx runs fn inside a transaction. The transaction is committed when fn
// returns nil and rolled back otherwise, so no partial change is persisted.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// dbTime normalizes timestamps to whole UTC seconds so that the text
// encoding sorts chronologically and co-notified tasks compare equal.
func dbTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Second)
}

func nullableTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return dbTime(*t)
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time.UTC()
	return &t
}

// --- Owner Operations ---

// EnsureOwner creates the owner on first contact. A non-empty nickname
// replaces the stored one.
func (s *Store) EnsureOwner(ctx context.Context, id, nickname string) (*models.Owner, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("owner id is required")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO owners (id, nickname, created_at) VALUES (?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET nickname = CASE WHEN excluded.nickname <> '' THEN excluded.nickname ELSE owners.nickname END`,
		id, nickname, dbTime(s.now()),
	)
	if err != nil {
		return nil, fmt.Errorf("upsert owner: %w", err)
	}
	return s.GetOwner(ctx, id)
}

// GetOwner retrieves an owner by ID.
func (s *Store) GetOwner(ctx context.Context, id string) (*models.Owner, error) {
	o := &models.Owner{}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, nickname, created_at FROM owners WHERE id = ?`, id,
	).Scan(&o.ID, &o.Nickname, &o.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("owner %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query owner: %w", err)
	}
	return o, nil
}

// --- Task Operations ---

const taskColumns = `id, owner, title, note, status, remind_at, recurrence, notified, retry_count, last_notified_at, completed_at, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTask(row rowScanner) (*models.Task, error) {
	var (
		task                              models.Task
		remindAt, lastNotified, completed sql.NullTime
	)
	err := row.Scan(&task.ID, &task.Owner, &task.Title, &task.Note, &task.Status, &remindAt,
		&task.Recurrence, &task.Notified, &task.RetryCount, &lastNotified, &completed,
		&task.CreatedAt, &task.UpdatedAt)
	if err != nil {
		return nil, err
	}
	task.RemindAt = timePtr(remindAt)
	task.LastNotifiedAt = timePtr(lastNotified)
	task.CompletedAt = timePtr(completed)
	task.CreatedAt = task.CreatedAt.UTC()
	task.UpdatedAt = task.UpdatedAt.UTC()
	return &task, nil
}

func (s *Store) queryTasks(ctx context.Context, query string, args ...interface{}) ([]models.Task, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query tasks: %w", err)
	}
	defer rows.Close()

	var tasks []models.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, *task)
	}
	return tasks, rows.Err()
}

// CreateTask inserts a new task, assigning its ID and timestamps. The
// owner row is created if missing.
func (s *Store) CreateTask(ctx context.Context, task *models.Task) error {
	now := dbTime(s.now())
	task.ID = uuid.New().String()
	task.CreatedAt = now
	task.UpdatedAt = now
	if task.Status == "" {
		task.Status = models.TaskStatusPending
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO owners (id, nickname, created_at) VALUES (?, '', ?) ON CONFLICT(id) DO NOTHING`,
			task.Owner, now,
		); err != nil {
			return fmt.Errorf("ensure owner: %w", err)
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO tasks (`+taskColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			task.ID, task.Owner, task.Title, task.Note, task.Status, nullableTime(task.RemindAt),
			task.Recurrence, task.Notified, task.RetryCount, nullableTime(task.LastNotifiedAt),
			nullableTime(task.CompletedAt), task.CreatedAt, task.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert task: %w", err)
		}
		return nil
	})
}

// GetTask retrieves a task by ID within an owner's scope.
func (s *Store) GetTask(ctx context.Context, owner, id string) (*models.Task, error) {
	task, err := scanTask(s.db.QueryRowContext(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE id = ? AND owner = ?`, id, owner))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("task %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query task: %w", err)
	}
	return task, nil
}

// FindTaskByPrefix resolves a full ID or a unique ID prefix within an owner's scope.
func (s *Store) FindTaskByPrefix(ctx context.Context, owner, prefix string) (*models.Task, error) {
	prefix = strings.ToLower(strings.TrimSpace(prefix))
	if prefix == "" || strings.ContainsAny(prefix, "%_") {
		return nil, fmt.Errorf("task %q: %w", prefix, ErrNotFound)
	}
	tasks, err := s.queryTasks(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE owner = ? AND id LIKE ? ORDER BY created_at DESC LIMIT 2`,
		owner, prefix+"%")
	if err != nil {
		return nil, err
	}
	switch len(tasks) {
	case 0:
		return nil, fmt.Errorf("task %q: %w", prefix, ErrNotFound)
	case 1:
		return &tasks[0], nil
	default:
		return nil, fmt.Errorf("task %q: %w", prefix, ErrAmbiguous)
	}
}

// TaskFilter narrows ListTasks. An empty Statuses slice matches every status.
type TaskFilter struct {
	Statuses []models.TaskStatus
	Limit    int
}

// ListTasks returns an owner's tasks, newest first.
func (s *Store) ListTasks(ctx context.Context, owner string, filter TaskFilter) ([]models.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE owner = ?`
	args := []interface{}{owner}

	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, st := range filter.Statuses {
			placeholders[i] = "?"
			args = append(args, st)
		}
		query += ` AND status IN (` + strings.Join(placeholders, ", ") + `)`
	}
	query += ` ORDER BY created_at DESC, id`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}
	return s.queryTasks(ctx, query, args...)
}

// ListScheduledBetween returns an owner's pending tasks whose remind_at lies in [start, end].
func (s *Store) ListScheduledBetween(ctx context.Context, owner string, start, end time.Time, limit int) ([]models.Task, error) {
	return s.queryTasks(ctx,
		`SELECT `+taskColumns+` FROM tasks
		 WHERE owner = ? AND status = ? AND remind_at IS NOT NULL AND remind_at >= ? AND remind_at <= ?
		 ORDER BY remind_at ASC, created_at ASC LIMIT ?`,
		owner, models.TaskStatusPending, dbTime(start), dbTime(end), limit)
}

// MutateTask loads a task, applies fn and writes the result back in a single
// transaction. The write is conditional on id and owner. If fn returns an
// error nothing is written and the error is returned unchanged.
func (s *Store) MutateTask(ctx context.Context, owner, id string, fn func(task *models.Task) error) (*models.Task, error) {
	var result *models.Task
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		task, err := scanTask(tx.QueryRowContext(ctx,
			`SELECT `+taskColumns+` FROM tasks WHERE id = ? AND owner = ?`, id, owner))
		if err == sql.ErrNoRows {
			return fmt.Errorf("task %s: %w", id, ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("query task: %w", err)
		}

		if err := fn(task); err != nil {
			return err
		}
		task.UpdatedAt = dbTime(s.now())

		res, err := tx.ExecContext(ctx,
			`UPDATE tasks SET title = ?, note = ?, status = ?, remind_at = ?, recurrence = ?, notified = ?,
			 retry_count = ?, last_notified_at = ?, completed_at = ?, updated_at = ?
			 WHERE id = ? AND owner = ?`,
			task.Title, task.Note, task.Status, nullableTime(task.RemindAt), task.Recurrence, task.Notified,
			task.RetryCount, nullableTime(task.LastNotifiedAt), nullableTime(task.CompletedAt), task.UpdatedAt,
			id, owner,
		)
		if err != nil {
			return fmt.Errorf("update task: %w", err)
		}
		if n, err := res.RowsAffected(); err != nil {
			return fmt.Errorf("check rows affected: %w", err)
		} else if n == 0 {
			return fmt.Errorf("task %s: %w", id, ErrNotFound)
		}

		result = task
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// DeleteTask removes a task within an owner's scope.
func (s *Store) DeleteTask(ctx context.Context, owner, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ? AND owner = ?`, id, owner)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("task %s: %w", id, ErrNotFound)
	}
	return nil
}
