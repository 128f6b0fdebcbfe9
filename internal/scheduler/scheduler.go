package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/fentz26/nudge/internal/audit"
	"github.com/fentz26/nudge/internal/chat"
	"github.com/fentz26/nudge/internal/clock"
	"github.com/fentz26/nudge/internal/models"
	"github.com/fentz26/nudge/internal/notify"
	"github.com/fentz26/nudge/internal/reminder"
)

// Auditor records failed deliveries. *audit.Recorder satisfies it.
type Auditor interface {
	Record(ctx context.Context, action string, inputs interface{}, outcome, taskID, owner, details string) (*models.AuditEntry, error)
}

// Stats is a snapshot of scheduler counters.
type Stats struct {
	Running         bool                     `json:"running"`
	Notifier        string                   `json:"notifier"`
	Ticks           int64                    `json:"ticks"`
	Sent            int64                    `json:"sent"`
	SendFailures    int64                    `json:"send_failures"`
	OutcomeFailures int64                    `json:"outcome_failures"`
	Recovered       int64                    `json:"recovered"`
	LastTick        *time.Time               `json:"last_tick,omitempty"`
	LastRecovery    *time.Time               `json:"last_recovery,omitempty"`
	Reconcile       reminder.ReconcileResult `json:"reconcile"`
}

// TickResult summarizes one loop iteration.
type TickResult struct {
	Due       int
	Sent      int
	Failed    int
	Recovered int64
}

// Scheduler polls the engine for due reminders and dispatches them.
type Scheduler struct {
	engine   *reminder.Engine
	notifier notify.Notifier
	clock    clock.Clock
	config   *Config
	audit    Auditor
	logger   *slog.Logger

	mu      sync.Mutex
	stats   Stats
	running bool

	// Control
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a new scheduler. A nil auditor skips failure records.
func New(engine *reminder.Engine, n notify.Notifier, c clock.Clock, cfg *Config, a Auditor, logger *slog.Logger) *Scheduler {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		engine:   engine,
		notifier: n,
		clock:    c,
		config:   cfg.withDefaults(),
		audit:    a,
		logger:   logger.With("component", "scheduler"),
		stats:    Stats{Notifier: n.Name()},
	}
}

// Start reconciles state left by a previous run, then begins the loop.
// Reconciliation errors are logged; the loop starts regardless.
func (sch *Scheduler) Start(parent context.Context) {
	sch.mu.Lock()
	if sch.running {
		sch.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(parent)
	sch.cancel = cancel
	sch.running = true
	sch.mu.Unlock()

	res, err := sch.engine.Reconcile(ctx)
	if err != nil {
		sch.logger.Error("startup reconciliation failed", "error", err)
	}
	sch.mu.Lock()
	sch.stats.Reconcile = res
	sch.mu.Unlock()

	sch.wg.Add(1)
	go sch.loop(ctx)
	sch.logger.Info("scheduler started", "tick", sch.config.Tick, "notifier", sch.notifier.Name())
}

// Stop cancels the loop and waits for the in-flight tick to finish.
func (sch *Scheduler) Stop() {
	sch.mu.Lock()
	cancel := sch.cancel
	sch.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	sch.wg.Wait()

	sch.mu.Lock()
	sch.running = false
	sch.cancel = nil
	sch.mu.Unlock()
	sch.logger.Info("scheduler stopped")
}

func (sch *Scheduler) loop(ctx context.Context) {
	defer sch.wg.Done()

	ticker := time.NewTicker(sch.config.Tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sch.Tick(ctx)
		}
	}
}

// Tick runs one iteration: gated quarantine recovery, then one notification
// attempt per due task in due-set order. No single failure stops the tick.
func (sch *Scheduler) Tick(ctx context.Context) TickResult {
	var res TickResult
	if ctx.Err() != nil {
		return res
	}

	now := sch.clock.Now()
	sch.mu.Lock()
	sch.stats.Ticks++
	sch.stats.LastTick = &now
	sch.mu.Unlock()

	res.Recovered = sch.maybeRecover(ctx, now)

	due, err := sch.engine.DueSet(ctx, now)
	if err != nil {
		sch.logger.Error("due-set query failed", "error", err)
		return res
	}
	res.Due = len(due)
	if len(due) > 0 {
		sch.logger.Info("found due reminders", "count", len(due))
	}

	for _, task := range due {
		if ctx.Err() != nil {
			break
		}
		if sch.dispatch(ctx, task, now) {
			res.Sent++
		} else {
			res.Failed++
		}
	}
	return res
}

// dispatch sends one reminder and records its outcome. It reports whether
// the reminder was delivered.
func (sch *Scheduler) dispatch(ctx context.Context, task models.Task, now time.Time) bool {
	text := Message(task, now, sch.config.Location)

	sendCtx, cancel := context.WithTimeout(ctx, sch.config.NotifyTimeout)
	err := sch.notifier.Send(sendCtx, task.Owner, text)
	cancel()
	if err != nil {
		sch.logger.Warn("reminder delivery failed", "task_id", task.ID, "owner", task.Owner, "error", err)
		sch.incr(func(s *Stats) { s.SendFailures++ })
		if sch.audit != nil {
			if _, aerr := sch.audit.Record(ctx, audit.ActionNotifyFail, map[string]interface{}{"task_id": task.ID, "at": now.Unix()},
				"failure", task.ID, task.Owner, err.Error()); aerr != nil {
				sch.logger.Warn("audit record failed", "error", aerr)
			}
		}
		return false
	}
	sch.incr(func(s *Stats) { s.Sent++ })

	updated, err := sch.engine.RecordOutcome(ctx, task)
	switch {
	case errors.Is(err, reminder.ErrNotPending):
		sch.logger.Debug("task left pending before its outcome was recorded", "task_id", task.ID)
	case err != nil:
		sch.logger.Error("record outcome failed", "task_id", task.ID, "error", err)
		sch.incr(func(s *Stats) { s.OutcomeFailures++ })
	default:
		sch.logger.Info("sent reminder", "task_id", task.ID, "owner", task.Owner, "attempt", updated.RetryCount, "status", updated.Status)
	}
	return true
}

// maybeRecover runs quarantine recovery when now is inside the daily window
// and the previous run is at least RecoveryMinSpacing old.
func (sch *Scheduler) maybeRecover(ctx context.Context, now time.Time) int64 {
	if !sch.config.InRecoveryWindow(now) {
		return 0
	}
	sch.mu.Lock()
	last := sch.stats.LastRecovery
	if last != nil && now.Sub(*last) < sch.config.RecoveryMinSpacing {
		sch.mu.Unlock()
		return 0
	}
	sch.mu.Unlock()

	n, err := sch.engine.RecoverQuarantined(ctx)
	if err != nil {
		sch.logger.Error("quarantine recovery failed", "error", err)
		return 0
	}
	sch.incr(func(s *Stats) {
		s.Recovered += n
		s.LastRecovery = &now
	})
	return n
}

func (sch *Scheduler) incr(fn func(*Stats)) {
	sch.mu.Lock()
	fn(&sch.stats)
	sch.mu.Unlock()
}

// Stats returns current scheduler statistics.
func (sch *Scheduler) Stats() Stats {
	sch.mu.Lock()
	defer sch.mu.Unlock()
	s := sch.stats
	s.Running = sch.running
	return s
}

// Message renders the reminder text for task. The scheduled time is shown
// only while it names the occurrence being notified.
func Message(task models.Task, now time.Time, loc *time.Location) string {
	msg := fmt.Sprintf("⏰ Reminder: %s", task.Title)
	if task.RemindAt != nil && !task.RemindAt.After(now) {
		msg += fmt.Sprintf("\nTime: %s", task.RemindAt.In(loc).Format("2006-01-02 15:04"))
	}
	if task.RetryCount > 0 {
		msg += fmt.Sprintf("\nAttempt %d", task.RetryCount+1)
	}
	msg += fmt.Sprintf("\n\nReply %s to acknowledge, or %s done %s", chat.AckReply, chat.Prefix, chat.ShortID(task.ID))
	return msg
}
