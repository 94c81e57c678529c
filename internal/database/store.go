package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/edgard/shamebot/internal/errs"
	"github.com/edgard/shamebot/internal/logger"
)

// ErrNotFound is returned when the requested task does not exist.
var ErrNotFound = errors.New("not found")

// requiredTables must all exist for the store to report healthy.
var requiredTables = []string{"tasks", "task_jobs"}

// Store defines the database operations used by the scheduler, the notifier
// and the task write path. Methods accept context.Context for cancellation.
type Store interface {
	// Ping checks the connection and that the expected tables exist.
	Ping(ctx context.Context) error

	// GetTask returns the task with the given id, or ErrNotFound.
	GetTask(ctx context.Context, id uuid.UUID) (*Task, error)

	// SaveTask inserts or updates a task.
	SaveTask(ctx context.Context, task *Task) error

	// SetTaskChecked marks a task complete or incomplete.
	SetTaskChecked(ctx context.Context, id uuid.UUID, checked bool) error

	// DeleteTask removes a task; its trigger rows are removed with it.
	DeleteTask(ctx context.Context, id uuid.UUID) error

	// GetTriggerRecord returns the trigger ids stored for a task, or ErrNotFound
	// when the task does not exist.
	GetTriggerRecord(ctx context.Context, taskID uuid.UUID) (TriggerRecord, error)

	// SetTriggerID stores (or clears, when id is nil) the trigger id of one type.
	// Only the (task, type) row is written.
	SetTriggerID(ctx context.Context, taskID uuid.UUID, triggerType TriggerType, id *uuid.UUID) error

	// ListTasksWithAnyTrigger returns the record of every task holding at least
	// one non-nil trigger id.
	ListTasksWithAnyTrigger(ctx context.Context) ([]TriggerRecord, error)

	// RunMaintenance prunes cleared trigger rows and compacts the database.
	// It returns the number of rows pruned.
	RunMaintenance(ctx context.Context) (int64, error)
}

// sqlxStore implements Store using sqlx.
type sqlxStore struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewStore creates a Store backed by sqlx.
func NewStore(db *sqlx.DB, log *slog.Logger) Store {
	if log == nil {
		log = logger.Discard()
	}
	return &sqlxStore{
		db:     db,
		logger: log.With("component", "store"),
	}
}

// Ping checks the database connection and the schema.
func (s *sqlxStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return errs.NewDatabaseError("ping failed", err)
	}

	query, args, err := sqlx.In(`SELECT count(*) FROM sqlite_master WHERE type = 'table' AND name IN (?)`, requiredTables)
	if err != nil {
		return errs.NewDatabaseError("failed to build schema check", err)
	}

	var count int
	if err := s.db.GetContext(ctx, &count, s.db.Rebind(query), args...); err != nil {
		return errs.NewDatabaseError("schema check failed", err)
	}
	if count != len(requiredTables) {
		return errs.NewDatabaseError(fmt.Sprintf("expected %d tables, found %d", len(requiredTables), count), nil)
	}
	return nil
}

// GetTask returns a task by id.
func (s *sqlxStore) GetTask(ctx context.Context, id uuid.UUID) (*Task, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	var task Task
	query := `SELECT id, list_id, user_id, title, content, checked, pester, due_at, created_at, updated_at
	          FROM tasks WHERE id = ?`

	err := s.db.GetContext(ctx, &task, query, id)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		s.logger.DebugContext(ctx, "No task found", "task_id", id)
		return nil, ErrNotFound

	case errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled):
		s.logger.WarnContext(ctx, "Context timeout or cancellation while fetching task", "task_id", id, "error", err)
		return nil, err

	case err != nil:
		s.logger.ErrorContext(ctx, "Error getting task", "task_id", id, "error", err)
		return nil, errs.NewDatabaseError(fmt.Sprintf("failed to get task %s", id), err)
	}

	return &task, nil
}

// SaveTask inserts or updates a task. A zero ID is replaced with a new one.
func (s *sqlxStore) SaveTask(ctx context.Context, task *Task) error {
	if task == nil {
		return errs.NewValidationError("cannot save nil task", nil)
	}
	if task.Title == "" {
		return errs.NewValidationError("task must have a title", nil)
	}
	if task.ID == uuid.Nil {
		task.ID = uuid.New()
	}

	now := time.Now().UTC()
	if task.CreatedAt.IsZero() {
		task.CreatedAt = now
	}
	task.UpdatedAt = now

	query := `
		INSERT INTO tasks (id, list_id, user_id, title, content, checked, pester, due_at, created_at, updated_at)
		VALUES (:id, :list_id, :user_id, :title, :content, :checked, :pester, :due_at, :created_at, :updated_at)
		ON CONFLICT (id) DO UPDATE SET
			list_id = excluded.list_id,
			user_id = excluded.user_id,
			title = excluded.title,
			content = excluded.content,
			checked = excluded.checked,
			pester = excluded.pester,
			due_at = excluded.due_at,
			updated_at = excluded.updated_at`

	if _, err := s.db.NamedExecContext(ctx, query, task); err != nil {
		s.logger.ErrorContext(ctx, "Error saving task", "task_id", task.ID, "error", err)
		return errs.NewDatabaseError(fmt.Sprintf("failed to save task %s", task.ID), err)
	}

	s.logger.DebugContext(ctx, "Task saved", "task_id", task.ID)
	return nil
}

// SetTaskChecked updates the completion flag.
func (s *sqlxStore) SetTaskChecked(ctx context.Context, id uuid.UUID, checked bool) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET checked = ?, updated_at = ? WHERE id = ?`, checked, time.Now().UTC(), id)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error updating task", "task_id", id, "error", err)
		return errs.NewDatabaseError(fmt.Sprintf("failed to update task %s", id), err)
	}
	return requireAffected(res, id)
}

// DeleteTask removes a task and, via ON DELETE CASCADE, its trigger rows.
func (s *sqlxStore) DeleteTask(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error deleting task", "task_id", id, "error", err)
		return errs.NewDatabaseError(fmt.Sprintf("failed to delete task %s", id), err)
	}
	return requireAffected(res, id)
}

// GetTriggerRecord returns the trigger ids stored for a task.
func (s *sqlxStore) GetTriggerRecord(ctx context.Context, taskID uuid.UUID) (TriggerRecord, error) {
	var rows []jobRow
	query := `
		SELECT t.id AS task_id, j.job_type, j.job_id
		FROM tasks t
		LEFT JOIN task_jobs j ON j.task_id = t.id
		WHERE t.id = ?`

	if err := s.db.SelectContext(ctx, &rows, query, taskID); err != nil {
		s.logger.ErrorContext(ctx, "Error getting trigger record", "task_id", taskID, "error", err)
		return TriggerRecord{}, errs.NewDatabaseError(fmt.Sprintf("failed to get trigger record for task %s", taskID), err)
	}
	if len(rows) == 0 {
		return TriggerRecord{}, ErrNotFound
	}

	records := s.groupRows(ctx, rows)
	return records[0], nil
}

// SetTriggerID upserts the single (task, type) row.
func (s *sqlxStore) SetTriggerID(ctx context.Context, taskID uuid.UUID, triggerType TriggerType, id *uuid.UUID) error {
	if !triggerType.Valid() {
		return errs.NewValidationError(fmt.Sprintf("unknown trigger type %q", triggerType), nil)
	}

	var jobID uuid.NullUUID
	if id != nil {
		jobID = uuid.NullUUID{UUID: *id, Valid: true}
	}

	query := `
		INSERT INTO task_jobs (task_id, job_type, job_id, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (task_id, job_type) DO UPDATE SET
			job_id = excluded.job_id,
			updated_at = excluded.updated_at`

	if _, err := s.db.ExecContext(ctx, query, taskID, string(triggerType), jobID, time.Now().UTC()); err != nil {
		s.logger.ErrorContext(ctx, "Error setting trigger id",
			"task_id", taskID, "trigger_type", triggerType, "error", err)
		return errs.NewDatabaseError(fmt.Sprintf("failed to set %s trigger for task %s", triggerType, taskID), err)
	}

	s.logger.DebugContext(ctx, "Trigger id stored", "task_id", taskID, "trigger_type", triggerType, "trigger_id", jobID)
	return nil
}

// ListTasksWithAnyTrigger returns every task record holding a trigger id.
func (s *sqlxStore) ListTasksWithAnyTrigger(ctx context.Context) ([]TriggerRecord, error) {
	var rows []jobRow
	query := `
		SELECT task_id, job_type, job_id
		FROM task_jobs
		WHERE job_id IS NOT NULL
		ORDER BY task_id, job_type`

	if err := s.db.SelectContext(ctx, &rows, query); err != nil {
		s.logger.ErrorContext(ctx, "Error listing trigger records", "error", err)
		return nil, errs.NewDatabaseError("failed to list trigger records", err)
	}

	return s.groupRows(ctx, rows), nil
}

// groupRows folds ordered rows into one record per task, preserving order.
func (s *sqlxStore) groupRows(ctx context.Context, rows []jobRow) []TriggerRecord {
	var records []TriggerRecord
	index := make(map[uuid.UUID]int)

	for _, row := range rows {
		i, ok := index[row.TaskID]
		if !ok {
			records = append(records, TriggerRecord{TaskID: row.TaskID})
			i = len(records) - 1
			index[row.TaskID] = i
		}
		if !row.JobType.Valid || !row.JobID.Valid {
			continue
		}
		t, err := ParseTriggerType(row.JobType.String)
		if err != nil {
			s.logger.WarnContext(ctx, "Skipping trigger row with unknown type", "task_id", row.TaskID, "error", err)
			continue
		}
		id := row.JobID.UUID
		records[i].Set(t, &id)
	}

	return records
}

// RunMaintenance deletes task_jobs rows whose id was cleared, then runs VACUUM
// and PRAGMA optimize. VACUUM must run outside a transaction.
func (s *sqlxStore) RunMaintenance(ctx context.Context) (int64, error) {
	if ctx.Err() != nil {
		return 0, ctx.Err()
	}

	res, err := s.db.ExecContext(ctx, `DELETE FROM task_jobs WHERE job_id IS NULL`)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to prune cleared trigger rows", "error", err)
		return 0, errs.NewDatabaseError("failed to prune cleared trigger rows", err)
	}
	pruned, err := res.RowsAffected()
	if err != nil {
		return 0, errs.NewDatabaseError("failed to read pruned row count", err)
	}

	_, err = s.db.ExecContext(ctx, "VACUUM;")
	switch {
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled):
		s.logger.WarnContext(ctx, "VACUUM timed out or was cancelled", "error", err)
		return pruned, fmt.Errorf("database maintenance (VACUUM) timed out: %w", err)
	case err != nil:
		s.logger.ErrorContext(ctx, "VACUUM failed", "error", err)
		return pruned, errs.NewDatabaseError("failed to execute VACUUM", err)
	}

	if _, err := s.db.ExecContext(ctx, "PRAGMA optimize;"); err != nil {
		s.logger.WarnContext(ctx, "PRAGMA optimize failed", "error", err)
	}

	s.logger.InfoContext(ctx, "Database maintenance completed", "pruned_rows", pruned)
	return pruned, nil
}

func requireAffected(res sql.Result, id uuid.UUID) error {
	n, err := res.RowsAffected()
	if err != nil {
		return errs.NewDatabaseError(fmt.Sprintf("failed to read affected rows for task %s", id), err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
