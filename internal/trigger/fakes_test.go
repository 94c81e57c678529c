package trigger_test

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/edgard/shamebot/internal/database"
	"github.com/edgard/shamebot/internal/trigger"
)

// memStore is an in-memory task and job store.
type memStore struct {
	mu      sync.Mutex
	tasks   map[uuid.UUID]database.Task
	records map[uuid.UUID]database.TriggerRecord

	setErr error
}

func newMemStore() *memStore {
	return &memStore{
		tasks:   make(map[uuid.UUID]database.Task),
		records: make(map[uuid.UUID]database.TriggerRecord),
	}
}

func (s *memStore) put(task database.Task) uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	if task.ID == uuid.Nil {
		task.ID = uuid.New()
	}
	s.tasks[task.ID] = task
	return task.ID
}

func (s *memStore) failWrites(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setErr = err
}

func (s *memStore) GetTask(_ context.Context, id uuid.UUID) (*database.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	return &t, nil
}

func (s *memStore) GetTriggerRecord(_ context.Context, taskID uuid.UUID) (database.TriggerRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[taskID]; !ok {
		if r, ok := s.records[taskID]; ok {
			return r, nil
		}
		return database.TriggerRecord{}, database.ErrNotFound
	}
	r := s.records[taskID]
	r.TaskID = taskID
	return r, nil
}

func (s *memStore) SetTriggerID(_ context.Context, taskID uuid.UUID, t database.TriggerType, id *uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.setErr != nil {
		return s.setErr
	}
	r := s.records[taskID]
	r.TaskID = taskID
	r.Set(t, id)
	s.records[taskID] = r
	return nil
}

func (s *memStore) ListTasksWithAnyTrigger(_ context.Context) ([]database.TriggerRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []database.TriggerRecord
	for _, r := range s.records {
		if r.Any() {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *memStore) record(taskID uuid.UUID) database.TriggerRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.records[taskID]
}

type firing struct {
	TaskID uuid.UUID
	Type   database.TriggerType
}

// recordingNotifier remembers every firing and optionally fails.
type recordingNotifier struct {
	mu     sync.Mutex
	fired  []firing
	failOn error
}

func (n *recordingNotifier) add(taskID uuid.UUID, t database.TriggerType) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.fired = append(n.fired, firing{taskID, t})
	return n.failOn
}

func (n *recordingNotifier) OnPesterFired(_ context.Context, id uuid.UUID) error {
	return n.add(id, database.TriggerPester)
}

func (n *recordingNotifier) OnReminderFired(_ context.Context, id uuid.UUID) error {
	return n.add(id, database.TriggerReminder)
}

func (n *recordingNotifier) OnOverdueFired(_ context.Context, id uuid.UUID) error {
	return n.add(id, database.TriggerOverdue)
}

func (n *recordingNotifier) count(taskID uuid.UUID, t database.TriggerType) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := 0
	for _, f := range n.fired {
		if f.TaskID == taskID && f.Type == t {
			c++
		}
	}
	return c
}

var errBoom = errors.New("boom")

func newTestScheduler(t *testing.T, store *memStore, notifier trigger.Notifier, opts trigger.Options) *trigger.Scheduler {
	t.Helper()
	s, err := trigger.NewScheduler(store, store, notifier, opts)
	require.NoError(t, err)
	s.Start()
	t.Cleanup(func() { _ = s.Stop() })
	return s
}

func pesterTask(interval int32, due *time.Time, checked bool) database.Task {
	task := database.Task{
		ListID:  uuid.New(),
		UserID:  42,
		Title:   "water the plants",
		Checked: checked,
	}
	if interval != 0 {
		task.Pester = sql.NullInt32{Int32: interval, Valid: true}
	}
	if due != nil {
		task.DueAt = sql.NullInt64{Int64: due.Unix(), Valid: true}
	}
	return task
}

func ptr[T any](v T) *T { return &v }
