package trigger_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgard/shamebot/internal/database"
	"github.com/edgard/shamebot/internal/trigger"
)

func TestReconcilerReplacesStaleIDs(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newMemStore()
	s := newTestScheduler(t, store, &recordingNotifier{}, trigger.Options{})

	due := time.Now().Add(48 * time.Hour)
	stale := make(map[uuid.UUID]database.TriggerRecord)
	for i := 0; i < 12; i++ {
		taskID := store.put(pesterTask(1, &due, false))
		for _, typ := range database.TriggerTypes {
			require.NoError(t, store.SetTriggerID(ctx, taskID, typ, ptr(uuid.New())))
		}
		stale[taskID] = store.record(taskID)
	}

	report, err := trigger.NewReconciler(s, store, nil, 3).Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, 12, report.Tasks)
	assert.Equal(t, 36, report.Discarded)
	assert.Equal(t, 36, report.Registered)
	assert.Zero(t, report.Failed)

	for taskID, old := range stale {
		fresh := store.record(taskID)
		assert.Equal(t, old.Populated(), fresh.Populated())
		for _, typ := range old.Populated() {
			assert.NotEqual(t, *old.Get(typ), *fresh.Get(typ))
		}
	}
	assert.Equal(t, 36, s.ActiveCount())
}

func TestReconcilerDropsTypesNoLongerEmitted(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newMemStore()
	s := newTestScheduler(t, store, &recordingNotifier{}, trigger.Options{})

	// Finished while the previous process was down.
	taskID := store.put(pesterTask(1, nil, true))
	require.NoError(t, store.SetTriggerID(ctx, taskID, database.TriggerPester, ptr(uuid.New())))

	report, err := trigger.NewReconciler(s, store, nil, 0).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Discarded)
	assert.Zero(t, report.Registered)
	assert.False(t, store.record(taskID).Any())
}

func TestReconcilerSkipsDeletedTasks(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newMemStore()
	s := newTestScheduler(t, store, &recordingNotifier{}, trigger.Options{})

	orphan := uuid.New()
	require.NoError(t, store.SetTriggerID(ctx, orphan, database.TriggerReminder, ptr(uuid.New())))

	report, err := trigger.NewReconciler(s, store, nil, 2).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Tasks)
	assert.Zero(t, report.Failed)
	assert.Zero(t, s.ActiveCount())
}

func TestReconcilerEmpty(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	s := newTestScheduler(t, store, &recordingNotifier{}, trigger.Options{})

	report, err := trigger.NewReconciler(s, store, nil, 2).Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, report.Tasks)
}

func TestReconcilerCancelled(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	s := newTestScheduler(t, store, &recordingNotifier{}, trigger.Options{})
	store.put(pesterTask(1, nil, false))
	for id := range store.tasks {
		require.NoError(t, store.SetTriggerID(context.Background(), id, database.TriggerPester, ptr(uuid.New())))
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := trigger.NewReconciler(s, store, nil, 1).Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
