// Package audit writes decision records for every state-mutating action in nudge.
package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/fentz26/nudge/internal/models"
)

// Action names recorded in the audit log.
const (
	ActionCreate     = "task.create"
	ActionEdit       = "task.edit"
	ActionComplete   = "task.complete"
	ActionDelete     = "task.delete"
	ActionReset      = "task.reset"
	ActionUndo       = "task.undo"
	ActionAck        = "task.ack"
	ActionNotify     = "reminder.notify"
	ActionNotifyFail = "reminder.notify_failed"
	ActionReconcile  = "engine.reconcile"
	ActionRecover    = "engine.recover"
)

// Sink persists audit entries. *store.Store satisfies it.
type Sink interface {
	WriteAudit(ctx context.Context, action, inputsHash, outcome, taskID, owner, details string) (*models.AuditEntry, error)
}

// Recorder writes decision records for audit trails.
type Recorder struct {
	sink Sink
}

// NewRecorder creates a recorder that writes to sink.
func NewRecorder(sink Sink) *Recorder {
	return &Recorder{sink: sink}
}

// Record writes an entry for a state-mutating action. The inputs are hashed,
// not stored, so the log never holds task text.
func (r *Recorder) Record(ctx context.Context, action string, inputs interface{}, outcome, taskID, owner, details string) (*models.AuditEntry, error) {
	return r.sink.WriteAudit(ctx, action, hashInputs(inputs), outcome, taskID, owner, details)
}

// hashInputs creates a SHA256 hash of the inputs for reproducibility.
func hashInputs(inputs interface{}) string {
	data, err := json.Marshal(inputs)
	if err != nil {
		return "hash_error"
	}
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}
