package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/fentz26/nudge/internal/models"
	"github.com/google/uuid"
)

// --- Audit Operations ---

// WriteAudit appends a decision record.
func (s *Store) WriteAudit(ctx context.Context, action, inputsHash, outcome, taskID, owner, details string) (*models.AuditEntry, error) {
	entry := &models.AuditEntry{
		ID:         uuid.New().String(),
		Action:     action,
		InputsHash: inputsHash,
		Outcome:    outcome,
		TaskID:     taskID,
		Owner:      owner,
		Details:    details,
		Timestamp:  dbTime(s.now()),
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit_log (id, action, inputs_hash, outcome, task_id, owner, details, timestamp) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.Action, entry.InputsHash, entry.Outcome, entry.TaskID, entry.Owner, entry.Details, entry.Timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("insert audit entry: %w", err)
	}
	return entry, nil
}

// ListAuditForTask returns the decision records for a task, newest first.
func (s *Store) ListAuditForTask(ctx context.Context, owner, taskID string, limit int) ([]models.AuditEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, action, inputs_hash, outcome, task_id, owner, details, timestamp
		 FROM audit_log WHERE task_id = ? AND owner = ? ORDER BY timestamp DESC, rowid DESC LIMIT ?`,
		taskID, owner, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query audit: %w", err)
	}
	defer rows.Close()

	var entries []models.AuditEntry
	for rows.Next() {
		var e models.AuditEntry
		var taskIDCol, ownerCol, details sql.NullString
		if err := rows.Scan(&e.ID, &e.Action, &e.InputsHash, &e.Outcome, &taskIDCol, &ownerCol, &details, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan audit: %w", err)
		}
		e.TaskID = taskIDCol.String
		e.Owner = ownerCol.String
		e.Details = details.String
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
