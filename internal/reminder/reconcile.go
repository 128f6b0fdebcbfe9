package reminder

import (
	"context"
	"fmt"

	"github.com/fentz26/nudge/internal/audit"
)

// ReconcileResult reports what a startup reconciliation changed.
type ReconcileResult struct {
	Reset int64 `json:"reset"`
	Due   int   `json:"due"`
}

// Reconcile rearms every pending task that was notified for an occurrence
// already in the past, so a crash between dispatch and re-arm is re-notified
// rather than lost. Running it twice is a no-op the second time.
func (e *Engine) Reconcile(ctx context.Context) (ReconcileResult, error) {
	now := e.clock.Now()
	n, err := e.store.ResetStaleNotified(ctx, now)
	if err != nil {
		return ReconcileResult{}, fmt.Errorf("reconcile: %w", err)
	}

	due, err := e.store.CountFirstDue(ctx, now)
	if err != nil {
		return ReconcileResult{Reset: n}, fmt.Errorf("reconcile: %w", err)
	}

	e.logger.Info("startup reconciliation complete", "reset", n, "due", due)
	if n > 0 {
		e.record(ctx, audit.ActionReconcile, map[string]interface{}{"at": now.Unix()}, "success", "", "", fmt.Sprintf("reset=%d", n))
	}
	return ReconcileResult{Reset: n, Due: due}, nil
}

// RecoverQuarantined returns every quarantined recurring task to pending.
// One-shot failed tasks stay failed until a user resets them.
func (e *Engine) RecoverQuarantined(ctx context.Context) (int64, error) {
	n, err := e.store.RecoverQuarantined(ctx)
	if err != nil {
		return 0, fmt.Errorf("recover quarantined: %w", err)
	}
	e.logger.Info("quarantine recovery complete", "recovered", n)
	if n > 0 {
		e.record(ctx, audit.ActionRecover, map[string]interface{}{"at": e.clock.Now().Unix()}, "success", "", "", fmt.Sprintf("recovered=%d", n))
	}
	return n, nil
}
