package trigger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/edgard/shamebot/internal/database"
	"github.com/edgard/shamebot/internal/logger"
)

const defaultReconcileConcurrency = 4

// ReconcileReport summarizes one reconciliation pass.
type ReconcileReport struct {
	Tasks      int // tasks holding at least one stale id
	Discarded  int // stale ids cleared
	Registered int // triggers registered afresh
	Failed     int // tasks whose re-registration failed
	Duration   time.Duration
}

// Reconciler rebuilds live triggers from persisted records after a restart.
// The previous process's registry is gone, so every persisted id is stale:
// it is cleared without notifying anyone and the task is registered again
// from its current state.
type Reconciler struct {
	sched       *Scheduler
	store       JobStore
	logger      *slog.Logger
	concurrency int
}

// NewReconciler creates a reconciler processing up to concurrency tasks at once.
func NewReconciler(sched *Scheduler, store JobStore, log *slog.Logger, concurrency int) *Reconciler {
	if log == nil {
		log = logger.Discard()
	}
	if concurrency <= 0 {
		concurrency = defaultReconcileConcurrency
	}
	return &Reconciler{
		sched:       sched,
		store:       store,
		logger:      log.With("component", "reconciler"),
		concurrency: concurrency,
	}
}

// Run performs one reconciliation pass. Per-task failures are logged and
// counted; only a failure to list records or a cancelled context is returned.
func (r *Reconciler) Run(ctx context.Context) (ReconcileReport, error) {
	start := time.Now()
	r.logger.InfoContext(ctx, "Attempting to resume existing triggers")

	records, err := r.store.ListTasksWithAnyTrigger(ctx)
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to list persisted triggers", "error", err)
		return ReconcileReport{Duration: time.Since(start)}, fmt.Errorf("failed to list persisted triggers: %w", err)
	}

	report := ReconcileReport{Tasks: len(records)}
	if len(records) == 0 {
		r.logger.InfoContext(ctx, "No existing triggers found to resume")
		report.Duration = time.Since(start)
		return report, nil
	}

	var discarded, registered, failed atomic.Int64

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)

	for _, record := range records {
		g.Go(func() error {
			if gCtx.Err() != nil {
				return gCtx.Err()
			}
			d, n, err := r.reconcileTask(gCtx, record)
			discarded.Add(int64(d))
			registered.Add(int64(n))
			if err != nil {
				failed.Add(1)
				r.logger.ErrorContext(gCtx, "Failed to reconcile task", "task_id", record.TaskID, "error", err)
			}
			return nil
		})
	}

	waitErr := g.Wait()

	report.Discarded = int(discarded.Load())
	report.Registered = int(registered.Load())
	report.Failed = int(failed.Load())
	report.Duration = time.Since(start)

	if waitErr != nil {
		return report, waitErr
	}
	if err := ctx.Err(); err != nil {
		return report, err
	}

	r.logger.InfoContext(ctx, "Reconciliation finished",
		"tasks", report.Tasks,
		"discarded", report.Discarded,
		"registered", report.Registered,
		"failed", report.Failed,
		"duration", report.Duration)
	return report, nil
}

// reconcileTask clears every stale id of one task, then registers it afresh.
func (r *Reconciler) reconcileTask(ctx context.Context, record database.TriggerRecord) (int, int, error) {
	discarded := 0
	for _, t := range record.Populated() {
		if err := r.sched.Remove(ctx, record.TaskID, *record.Get(t), t); err != nil {
			return discarded, 0, err
		}
		discarded++
	}

	fresh, err := r.sched.RegisterAll(ctx, record.TaskID)
	if errors.Is(err, database.ErrNotFound) {
		r.logger.InfoContext(ctx, "Task no longer exists, nothing to resume", "task_id", record.TaskID)
		return discarded, 0, nil
	}
	return discarded, len(fresh.Populated()), err
}
