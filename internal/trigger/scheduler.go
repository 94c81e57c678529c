package trigger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/edgard/shamebot/internal/database"
	"github.com/edgard/shamebot/internal/errs"
	"github.com/edgard/shamebot/internal/logger"
)

// ErrSchedulerStopped is returned by registration calls after Stop.
var ErrSchedulerStopped = errors.New("scheduler stopped")

// TaskReader loads task snapshots.
type TaskReader interface {
	GetTask(ctx context.Context, id uuid.UUID) (*database.Task, error)
}

// JobStore persists trigger ids across restarts.
type JobStore interface {
	GetTriggerRecord(ctx context.Context, taskID uuid.UUID) (database.TriggerRecord, error)
	SetTriggerID(ctx context.Context, taskID uuid.UUID, triggerType database.TriggerType, id *uuid.UUID) error
	ListTasksWithAnyTrigger(ctx context.Context) ([]database.TriggerRecord, error)
}

// Notifier performs the externally visible action when a trigger fires.
// Implementations must treat a deleted task as a no-op and bound their own
// call duration.
type Notifier interface {
	OnPesterFired(ctx context.Context, taskID uuid.UUID) error
	OnReminderFired(ctx context.Context, taskID uuid.UUID) error
	OnOverdueFired(ctx context.Context, taskID uuid.UUID) error
}

// Recorder receives scheduler events for metrics.
type Recorder interface {
	TriggerRegistered(t database.TriggerType)
	TriggerRemoved(t database.TriggerType)
	TriggerFired(t database.TriggerType, err error)
	RegistrationFailed(t database.TriggerType)
	ActiveTriggers(n int)
}

type nopRecorder struct{}

func (nopRecorder) TriggerRegistered(database.TriggerType) {}
func (nopRecorder) TriggerRemoved(database.TriggerType) {}
func (nopRecorder) TriggerFired(database.TriggerType, error) {}
func (nopRecorder) RegistrationFailed(database.TriggerType) {}
func (nopRecorder) ActiveTriggers(int) {}

// ActiveTrigger is a live trigger of the running process. It is never persisted.
type ActiveTrigger struct {
	ID       uuid.UUID
	TaskID   uuid.UUID
	Type     database.TriggerType
	Calendar Calendar
}

type triggerKey struct {
	taskID uuid.UUID
	typ    database.TriggerType
}

// Options configures a Scheduler. Zero values fall back to defaults.
type Options struct {
	Logger        *slog.Logger
	Clock         clockwork.Clock
	Location      *time.Location
	PesterUnit    time.Duration
	NotifyTimeout time.Duration
	// FireMissed fires one-shot triggers whose instant already passed
	// immediately instead of skipping them.
	FireMissed bool
	Recorder   Recorder
}

const defaultNotifyTimeout = 15 * time.Second

// Scheduler owns the live trigger registry and the gocron dispatch loop.
type Scheduler struct {
	cron     gocron.Scheduler
	tasks    TaskReader
	store    JobStore
	notifier Notifier
	builder  Builder
	clock    clockwork.Clock
	logger   *slog.Logger
	recorder Recorder

	notifyTimeout time.Duration
	fireMissed    bool

	baseCtx context.Context
	cancel  context.CancelFunc

	mu     sync.Mutex
	active map[uuid.UUID]ActiveTrigger
	byKey  map[triggerKey]uuid.UUID

	locks   taskLocks
	started atomic.Bool
	stopped atomic.Bool
}

// NewScheduler creates a scheduler. The dispatch loop does not run until Start.
func NewScheduler(tasks TaskReader, store JobStore, notifier Notifier, opts Options) (*Scheduler, error) {
	if tasks == nil || store == nil || notifier == nil {
		return nil, errors.New("scheduler requires a task reader, job store and notifier")
	}

	log := opts.Logger
	if log == nil {
		log = logger.Discard()
	}
	clock := opts.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}
	timeout := opts.NotifyTimeout
	if timeout <= 0 {
		timeout = defaultNotifyTimeout
	}
	rec := opts.Recorder
	if rec == nil {
		rec = nopRecorder{}
	}

	cron, err := gocron.NewScheduler(
		gocron.WithLocation(loc),
		gocron.WithClock(clock),
		gocron.WithLogger(logger.NewGocronLogger(log)),
		gocron.WithStopTimeout(timeout+5*time.Second),
	)
	if err != nil {
		return nil, errs.NewSchedulerError("failed to create gocron scheduler", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		cron:          cron,
		tasks:         tasks,
		store:         store,
		notifier:      notifier,
		builder:       NewBuilder(opts.PesterUnit),
		clock:         clock,
		logger:        log.With("component", "scheduler"),
		recorder:      rec,
		notifyTimeout: timeout,
		fireMissed:    opts.FireMissed,
		baseCtx:       ctx,
		cancel:        cancel,
		active:        make(map[uuid.UUID]ActiveTrigger),
		byKey:         make(map[triggerKey]uuid.UUID),
		locks:         taskLocks{locks: make(map[uuid.UUID]*taskLock)},
	}, nil
}

// Start launches the dispatch loop.
func (s *Scheduler) Start() {
	if s.stopped.Load() {
		s.logger.Warn("Start called on a stopped scheduler")
		return
	}
	if s.started.Swap(true) {
		return
	}
	s.cron.Start()
	s.logger.Info("Scheduler started")
}

// Healthy reports whether the dispatch loop has finished initializing and is running.
func (s *Scheduler) Healthy() bool {
	return s.started.Load() && !s.stopped.Load()
}

// Stop shuts the dispatch loop down, waiting for running callbacks.
func (s *Scheduler) Stop() error {
	if s.stopped.Swap(true) {
		return nil
	}
	s.cancel()

	s.logger.Debug("Stopping scheduler gracefully (waiting for jobs)...")
	if err := s.cron.Shutdown(); err != nil {
		s.logger.Error("Error during scheduler shutdown", "error", err)
		return errs.NewSchedulerError("failed to shut down scheduler", err)
	}
	s.logger.Info("Scheduler stopped gracefully.")
	return nil
}

// Builder returns the expression builder used for registration.
func (s *Scheduler) Builder() Builder {
	return s.builder
}

// RegisterAll recomputes every trigger type of a task from its current state.
// Each type is removed and, when the builder emits an expression for it,
// registered again; the resulting ids are persisted and returned.
//
// A failure to create one trigger is logged and leaves that type empty; the
// other types are still attempted. A store failure aborts the call.
func (s *Scheduler) RegisterAll(ctx context.Context, taskID uuid.UUID) (database.TriggerRecord, error) {
	if s.stopped.Load() {
		return database.TriggerRecord{}, ErrSchedulerStopped
	}

	unlock := s.locks.lock(taskID)
	defer unlock()

	log := s.logger.With("task_id", taskID)

	task, err := s.tasks.GetTask(ctx, taskID)
	if errors.Is(err, database.ErrNotFound) {
		s.cancelTask(taskID)
		log.InfoContext(ctx, "Task not found, cancelled its live triggers")
		return database.TriggerRecord{}, err
	}
	if err != nil {
		log.ErrorContext(ctx, "Failed to load task", "error", err)
		return database.TriggerRecord{}, fmt.Errorf("failed to load task %s: %w", taskID, err)
	}

	previous, err := s.store.GetTriggerRecord(ctx, taskID)
	if err != nil {
		log.ErrorContext(ctx, "Failed to load trigger record", "error", err)
		return database.TriggerRecord{}, fmt.Errorf("failed to load trigger record for task %s: %w", taskID, err)
	}

	now := s.clock.Now()
	expressions := make(map[database.TriggerType]Expression, len(database.TriggerTypes))
	for _, expr := range s.builder.Build(now, InputFromTask(task)) {
		expressions[expr.Type] = expr
	}

	result := database.TriggerRecord{TaskID: taskID}
	for _, t := range database.TriggerTypes {
		old := previous.Get(t)
		if old != nil {
			s.cancelTrigger(*old)
		}
		if live, ok := s.liveID(taskID, t); ok {
			s.cancelTrigger(live)
		}

		var id *uuid.UUID
		if expr, ok := expressions[t]; ok {
			id, err = s.schedule(ctx, taskID, expr)
			if err != nil {
				s.recorder.RegistrationFailed(t)
				log.ErrorContext(ctx, "Failed to register trigger", "trigger_type", t, "calendar", expr.Calendar.String(), "error", err)
				id = nil
			}
		}

		if old != nil || id != nil {
			if err := s.store.SetTriggerID(ctx, taskID, t, id); err != nil {
				if id != nil {
					s.cancelTrigger(*id)
				}
				log.ErrorContext(ctx, "Failed to persist trigger id", "trigger_type", t, "error", err)
				return result, fmt.Errorf("failed to persist %s trigger for task %s: %w", t, taskID, err)
			}
		}
		result.Set(t, id)
	}

	log.InfoContext(ctx, "Registered triggers", "types", result.Populated())
	return result, nil
}

// GetJobs returns the persisted trigger record of a task, or database.ErrNotFound.
func (s *Scheduler) GetJobs(ctx context.Context, taskID uuid.UUID) (database.TriggerRecord, error) {
	record, err := s.store.GetTriggerRecord(ctx, taskID)
	if err != nil {
		if !errors.Is(err, database.ErrNotFound) {
			s.logger.ErrorContext(ctx, "Failed to load trigger record", "task_id", taskID, "error", err)
		}
		return database.TriggerRecord{}, err
	}
	return record, nil
}

// Remove cancels a live trigger and clears its persisted id if the record still
// holds it. Removing an id that is no longer live is not an error.
func (s *Scheduler) Remove(ctx context.Context, taskID, triggerID uuid.UUID, t database.TriggerType) error {
	unlock := s.locks.lock(taskID)
	defer unlock()

	return s.discard(ctx, taskID, triggerID, t)
}

// Active returns the live triggers of a task.
func (s *Scheduler) Active(taskID uuid.UUID) []ActiveTrigger {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []ActiveTrigger
	for _, t := range database.TriggerTypes {
		if id, ok := s.byKey[triggerKey{taskID, t}]; ok {
			out = append(out, s.active[id])
		}
	}
	return out
}

// ActiveCount returns the number of live triggers.
func (s *Scheduler) ActiveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}

// AddPeriodic runs task on a 6-field crontab schedule alongside the triggers.
// Periodic jobs are not part of the live trigger registry and never overlap
// with themselves.
func (s *Scheduler) AddPeriodic(name, crontab string, task func(ctx context.Context) error) error {
	if s.stopped.Load() {
		return ErrSchedulerStopped
	}

	log := s.logger.With("task_name", name)
	_, err := s.cron.NewJob(
		gocron.CronJob(crontab, true),
		gocron.NewTask(func() {
			log.Info("Running scheduled task")
			start := time.Now()
			if err := task(s.baseCtx); err != nil {
				log.Error("Scheduled task failed", "error", err, "duration", time.Since(start))
				return
			}
			log.Info("Finished scheduled task", "duration", time.Since(start))
		}),
		gocron.WithName(name),
		gocron.WithTags("periodic"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return errs.NewSchedulerError(fmt.Sprintf("failed to schedule %s", name), err)
	}

	log.Info("Scheduled task", "schedule", crontab)
	return nil
}

// discard cancels a trigger and clears the persisted field when it still holds
// triggerID. Callers hold the task lock.
func (s *Scheduler) discard(ctx context.Context, taskID, triggerID uuid.UUID, t database.TriggerType) error {
	s.cancelTrigger(triggerID)

	record, err := s.store.GetTriggerRecord(ctx, taskID)
	if errors.Is(err, database.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load trigger record for task %s: %w", taskID, err)
	}

	current := record.Get(t)
	if current == nil || *current != triggerID {
		return nil
	}
	if err := s.store.SetTriggerID(ctx, taskID, t, nil); err != nil {
		return fmt.Errorf("failed to clear %s trigger for task %s: %w", t, taskID, err)
	}
	return nil
}

// schedule creates the gocron job for one expression. It returns a nil id when
// an elapsed one-shot is skipped.
func (s *Scheduler) schedule(ctx context.Context, taskID uuid.UUID, expr Expression) (*uuid.UUID, error) {
	if expr.Calendar.OneShot() && expr.Elapsed && !s.fireMissed {
		s.logger.DebugContext(ctx, "Skipping elapsed one-shot trigger",
			"task_id", taskID, "trigger_type", expr.Type, "at", expr.Calendar.Instant)
		return nil, nil
	}

	id := uuid.New()
	options := []gocron.JobOption{
		gocron.WithIdentifier(id),
		gocron.WithName(fmt.Sprintf("%s:%s", expr.Type, taskID)),
		gocron.WithTags(taskID.String(), string(expr.Type)),
	}
	if expr.Type.Recurring() {
		options = append(options, gocron.WithSingletonMode(gocron.LimitModeReschedule))
	}

	// Track before creating the job so an immediately firing one-shot finds itself.
	s.track(ActiveTrigger{ID: id, TaskID: taskID, Type: expr.Type, Calendar: expr.Calendar})

	_, err := s.cron.NewJob(
		s.definition(expr),
		gocron.NewTask(s.fire, taskID, expr.Type, id),
		options...,
	)
	if err != nil {
		s.untrack(id)
		return nil, errs.NewSchedulerError(fmt.Sprintf("failed to schedule %s trigger", expr.Type), err)
	}

	s.recorder.TriggerRegistered(expr.Type)
	s.logger.DebugContext(ctx, "Trigger scheduled",
		"task_id", taskID, "trigger_type", expr.Type, "trigger_id", id, "calendar", expr.Calendar.String())
	return &id, nil
}

// definition converts a calendar to the gocron job definition.
//
//nolint:ireturn // gocron job definitions are interfaces
func (s *Scheduler) definition(expr Expression) gocron.JobDefinition {
	cal := expr.Calendar
	switch {
	case cal.OneShot() && expr.Elapsed:
		return gocron.OneTimeJob(gocron.OneTimeJobStartImmediately())
	case cal.OneShot():
		return gocron.OneTimeJob(gocron.OneTimeJobStartDateTime(cal.Instant))
	case cal.CronAligned():
		return gocron.CronJob(cal.Crontab(), true)
	default:
		return gocron.DurationJob(cal.Period)
	}
}

// fire runs on the gocron executor when a trigger is due.
func (s *Scheduler) fire(taskID uuid.UUID, t database.TriggerType, id uuid.UUID) {
	log := s.logger.With("task_id", taskID, "trigger_type", t, "trigger_id", id)

	ctx, cancel := context.WithTimeout(s.baseCtx, s.notifyTimeout)
	err := s.notify(ctx, taskID, t)
	cancel()

	s.recorder.TriggerFired(t, err)
	if err != nil {
		log.Error("Notifier failed", "error", err)
	} else {
		log.Info("Trigger fired")
	}

	if t.Recurring() {
		return
	}

	// One-shot triggers remove themselves even when the notifier failed.
	rmCtx, rmCancel := context.WithTimeout(context.Background(), s.notifyTimeout)
	defer rmCancel()
	if err := s.Remove(rmCtx, taskID, id, t); err != nil {
		log.Error("Failed to remove fired one-shot trigger", "error", err)
	}
}

func (s *Scheduler) notify(ctx context.Context, taskID uuid.UUID, t database.TriggerType) error {
	switch t {
	case database.TriggerPester:
		return s.notifier.OnPesterFired(ctx, taskID)
	case database.TriggerReminder:
		return s.notifier.OnReminderFired(ctx, taskID)
	case database.TriggerOverdue:
		return s.notifier.OnOverdueFired(ctx, taskID)
	}
	return fmt.Errorf("unknown trigger type %q", t)
}

func (s *Scheduler) track(a ActiveTrigger) {
	s.mu.Lock()
	s.active[a.ID] = a
	s.byKey[triggerKey{a.TaskID, a.Type}] = a.ID
	n := len(s.active)
	s.mu.Unlock()

	s.recorder.ActiveTriggers(n)
}

func (s *Scheduler) untrack(id uuid.UUID) (ActiveTrigger, bool) {
	s.mu.Lock()
	a, ok := s.active[id]
	if ok {
		delete(s.active, id)
		k := triggerKey{a.TaskID, a.Type}
		if s.byKey[k] == id {
			delete(s.byKey, k)
		}
	}
	n := len(s.active)
	s.mu.Unlock()

	s.recorder.ActiveTriggers(n)
	return a, ok
}

func (s *Scheduler) liveID(taskID uuid.UUID, t database.TriggerType) (uuid.UUID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byKey[triggerKey{taskID, t}]
	return id, ok
}

// cancelTrigger drops a trigger from the registry and the dispatch loop.
// Unknown ids are ignored.
func (s *Scheduler) cancelTrigger(id uuid.UUID) {
	a, tracked := s.untrack(id)

	err := s.cron.RemoveJob(id)
	switch {
	case err == nil:
		if tracked {
			s.recorder.TriggerRemoved(a.Type)
		}
	case errors.Is(err, gocron.ErrJobNotFound):
	default:
		s.logger.Warn("Failed to remove job from dispatch loop", "trigger_id", id, "error", err)
	}
}

func (s *Scheduler) cancelTask(taskID uuid.UUID) {
	for _, a := range s.Active(taskID) {
		s.cancelTrigger(a.ID)
	}
}

// taskLocks serializes registration and removal per task id.
type taskLocks struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*taskLock
}

type taskLock struct {
	sync.Mutex
	refs int
}

func (l *taskLocks) lock(id uuid.UUID) func() {
	l.mu.Lock()
	tl, ok := l.locks[id]
	if !ok {
		tl = &taskLock{}
		l.locks[id] = tl
	}
	tl.refs++
	l.mu.Unlock()

	tl.Lock()

	return func() {
		tl.Unlock()

		l.mu.Lock()
		tl.refs--
		if tl.refs == 0 {
			delete(l.locks, id)
		}
		l.mu.Unlock()
	}
}
