// Package models defines the core domain types for nudge.
package models

import (
	"fmt"
	"strings"
	"time"
)

// TaskStatus represents the current state of a task.
type TaskStatus string

const (
	TaskStatusPending TaskStatus = "pending"
	TaskStatusDone    TaskStatus = "done"
	// TaskStatusFailed is the quarantine state entered after retries are exhausted.
	TaskStatusFailed TaskStatus = "failed"
)

// Valid reports whether s is one of the known statuses.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusPending, TaskStatusDone, TaskStatusFailed:
		return true
	}
	return false
}

// ParseTaskStatus converts a user supplied string into a TaskStatus.
func ParseTaskStatus(s string) (TaskStatus, error) {
	st := TaskStatus(strings.ToLower(strings.TrimSpace(s)))
	if !st.Valid() {
		return "", fmt.Errorf("unknown task status %q", s)
	}
	return st, nil
}

// Recurrence is the repeat rule of a task. The zero value means one-shot.
type Recurrence string

const (
	RecurrenceNone    Recurrence = ""
	RecurrenceDaily   Recurrence = "daily"
	RecurrenceWorkday Recurrence = "workday"
	RecurrenceWeekly  Recurrence = "weekly"
	RecurrenceMonthly Recurrence = "monthly"
)

// Recurrences lists every repeat rule in display order.
var Recurrences = []Recurrence{RecurrenceDaily, RecurrenceWorkday, RecurrenceWeekly, RecurrenceMonthly}

// Valid reports whether r is a known rule or none.
func (r Recurrence) Valid() bool {
	switch r {
	case RecurrenceNone, RecurrenceDaily, RecurrenceWorkday, RecurrenceWeekly, RecurrenceMonthly:
		return true
	}
	return false
}

// ParseRecurrence converts a user supplied rule. Empty input yields RecurrenceNone.
func ParseRecurrence(s string) (Recurrence, error) {
	r := Recurrence(strings.ToLower(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", fmt.Errorf("unknown recurrence rule %q", s)
	}
	return r, nil
}

// Task is a single reminder item owned by one user.
type Task struct {
	ID             string     `json:"id"`
	Owner          string     `json:"owner"`
	Title          string     `json:"title"`
	Note           string     `json:"note,omitempty"`
	Status         TaskStatus `json:"status"`
	RemindAt       *time.Time `json:"remind_at,omitempty"`
	Recurrence     Recurrence `json:"recurrence,omitempty"`
	Notified       bool       `json:"notified"`
	RetryCount     int        `json:"retry_count"`
	LastNotifiedAt *time.Time `json:"last_notified_at,omitempty"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// Recurring reports whether the task repeats.
func (t *Task) Recurring() bool {
	return t.Recurrence != RecurrenceNone
}

// Owner is a person that receives reminders. ID is the address used by the notifier.
type Owner struct {
	ID        string    `json:"id"`
	Nickname  string    `json:"nickname,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// AuditEntry records a state-mutating decision taken by the engine or a user action.
type AuditEntry struct {
	ID         string    `json:"id"`
	Action     string    `json:"action"`
	InputsHash string    `json:"inputs_hash"`
	Outcome    string    `json:"outcome"`
	TaskID     string    `json:"task_id,omitempty"`
	Owner      string    `json:"owner,omitempty"`
	Details    string    `json:"details,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}
