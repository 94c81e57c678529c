package database

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TriggerType identifies one of the time-triggered actions bound to a task.
type TriggerType string

// Trigger types. Pester recurs; reminder and overdue fire once.
const (
	TriggerPester   TriggerType = "pester"
	TriggerReminder TriggerType = "reminder"
	TriggerOverdue  TriggerType = "overdue"
)

// TriggerTypes lists every trigger type in registration order.
var TriggerTypes = []TriggerType{TriggerPester, TriggerReminder, TriggerOverdue}

// Recurring reports whether triggers of this type fire repeatedly.
func (t TriggerType) Recurring() bool {
	return t == TriggerPester
}

// Valid reports whether t is a known trigger type.
func (t TriggerType) Valid() bool {
	switch t {
	case TriggerPester, TriggerReminder, TriggerOverdue:
		return true
	}
	return false
}

// ParseTriggerType converts a stored or user supplied name into a TriggerType.
func ParseTriggerType(s string) (TriggerType, error) {
	t := TriggerType(s)
	if !t.Valid() {
		return "", fmt.Errorf("unknown trigger type %q", s)
	}
	return t, nil
}

// Task is a to-do item owned by a list. Only the fields the scheduler and
// notifier need are modelled here.
type Task struct {
	ID        uuid.UUID      `db:"id"`
	ListID    uuid.UUID      `db:"list_id"`
	UserID    int64          `db:"user_id"`
	Title     string         `db:"title"`
	Content   sql.NullString `db:"content"`
	Checked   bool           `db:"checked"`
	Pester    sql.NullInt32  `db:"pester"` // recurrence interval in the configured unit
	DueAt     sql.NullInt64  `db:"due_at"` // unix seconds
	CreatedAt time.Time      `db:"created_at"`
	UpdatedAt time.Time      `db:"updated_at"`
}

// Interval returns the pester interval and whether one is set.
func (t *Task) Interval() (int, bool) {
	if !t.Pester.Valid {
		return 0, false
	}
	return int(t.Pester.Int32), true
}

// Due returns the due instant and whether one is set.
func (t *Task) Due() (time.Time, bool) {
	if !t.DueAt.Valid {
		return time.Time{}, false
	}
	return time.Unix(t.DueAt.Int64, 0).UTC(), true
}

// TriggerRecord maps each trigger type of a task to the id of its registered
// trigger. A nil id means no trigger of that type is registered.
type TriggerRecord struct {
	TaskID   uuid.UUID  `json:"task_id"`
	Pester   *uuid.UUID `json:"pester"`
	Reminder *uuid.UUID `json:"reminder"`
	Overdue  *uuid.UUID `json:"overdue"`
}

// Get returns the id stored for t.
func (r TriggerRecord) Get(t TriggerType) *uuid.UUID {
	switch t {
	case TriggerPester:
		return r.Pester
	case TriggerReminder:
		return r.Reminder
	case TriggerOverdue:
		return r.Overdue
	}
	return nil
}

// Set stores id for t.
func (r *TriggerRecord) Set(t TriggerType, id *uuid.UUID) {
	switch t {
	case TriggerPester:
		r.Pester = id
	case TriggerReminder:
		r.Reminder = id
	case TriggerOverdue:
		r.Overdue = id
	}
}

// Populated returns the trigger types with a non-nil id, in TriggerTypes order.
func (r TriggerRecord) Populated() []TriggerType {
	var out []TriggerType
	for _, t := range TriggerTypes {
		if r.Get(t) != nil {
			out = append(out, t)
		}
	}
	return out
}

// Any reports whether at least one trigger id is set.
func (r TriggerRecord) Any() bool {
	return len(r.Populated()) > 0
}

// jobRow is one row of task_jobs joined against tasks.
type jobRow struct {
	TaskID  uuid.UUID      `db:"task_id"`
	JobType sql.NullString `db:"job_type"`
	JobID   uuid.NullUUID  `db:"job_id"`
}
