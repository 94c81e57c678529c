package notify

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/google/uuid"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgard/shamebot/internal/database"
	"github.com/edgard/shamebot/internal/errs"
)

type fakeSender struct {
	mu   sync.Mutex
	sent []*bot.SendMessageParams
	err  error
}

func (s *fakeSender) SendMessage(_ context.Context, p *bot.SendMessageParams) (*models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	s.sent = append(s.sent, p)
	return &models.Message{ID: len(s.sent)}, nil
}

func (s *fakeSender) texts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.sent))
	for _, p := range s.sent {
		out = append(out, p.Text)
	}
	return out
}

type fakeTasks struct {
	tasks map[uuid.UUID]*database.Task
	err   error
}

func (f fakeTasks) GetTask(_ context.Context, id uuid.UUID) (*database.Task, error) {
	if f.err != nil {
		return nil, f.err
	}
	t, ok := f.tasks[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	return t, nil
}

func testTask(mutate func(*database.Task)) *database.Task {
	t := &database.Task{
		ID:     uuid.MustParse("0b9c3f8e-6c57-4bb8-9d53-0a4bb0a1c001"),
		UserID: 4242,
		Title:  "taxes <2024>",
	}
	if mutate != nil {
		mutate(t)
	}
	return t
}

func newTestNotifier(t *testing.T, sender Sender, tasks ...*database.Task) *Telegram {
	t.Helper()
	src := fakeTasks{tasks: make(map[uuid.UUID]*database.Task)}
	for _, task := range tasks {
		src.tasks[task.ID] = task
	}
	n, err := NewTelegram(sender, src, TelegramOptions{
		ChatID: -1001,
		AppURL: "https://shamebot.example.com/",
	})
	require.NoError(t, err)
	return n
}

func TestNewTelegramValidation(t *testing.T) {
	t.Parallel()

	_, err := NewTelegram(nil, fakeTasks{}, TelegramOptions{ChatID: 1})
	assert.True(t, errs.Is(err, errs.CodeValidation))
	_, err = NewTelegram(&fakeSender{}, nil, TelegramOptions{ChatID: 1})
	assert.True(t, errs.Is(err, errs.CodeValidation))
	_, err = NewTelegram(&fakeSender{}, fakeTasks{}, TelegramOptions{})
	assert.True(t, errs.Is(err, errs.CodeValidation))
}

func TestOnPesterFired(t *testing.T) {
	t.Parallel()

	task := testTask(func(task *database.Task) {
		task.DueAt = sql.NullInt64{Int64: 1700000000, Valid: true}
	})
	sender := &fakeSender{}
	n := newTestNotifier(t, sender, task)

	require.NoError(t, n.OnPesterFired(context.Background(), task.ID))

	texts := sender.texts()
	require.Len(t, texts, 1)
	assert.Equal(t,
		`hey <a href="tg://user?id=4242">there</a>! <b>taxes &lt;2024&gt;</b> still isn't finished yet &gt;:c`+
			"\n\nyou have until Tue Nov 14 22:13 UTC. use your time wisely.",
		texts[0])
	assert.Equal(t, int64(-1001), sender.sent[0].ChatID)
	assert.Equal(t, models.ParseModeHTML, sender.sent[0].ParseMode)
}

func TestOnReminderFired(t *testing.T) {
	t.Parallel()

	task := testTask(func(task *database.Task) {
		task.Content = sql.NullString{String: "file before the deadline", Valid: true}
	})
	sender := &fakeSender{}
	n := newTestNotifier(t, sender, task)

	require.NoError(t, n.OnReminderFired(context.Background(), task.ID))

	texts := sender.texts()
	require.Len(t, texts, 2)
	assert.Equal(t, `hey <a href="tg://user?id=4242">there</a>! you have <i>one hour</i> to finish the following task:`, texts[0])
	assert.Equal(t,
		`<a href="https://shamebot.example.com/tasks/0b9c3f8e-6c57-4bb8-9d53-0a4bb0a1c001"><b>taxes &lt;2024&gt;</b></a>`+
			"\nfile before the deadline\nFinished: ⬜\n\nfor "+`<a href="tg://user?id=4242">there</a>`,
		texts[1])
}

func TestOnOverdueFired(t *testing.T) {
	t.Parallel()

	task := testTask(nil)
	sender := &fakeSender{}
	n := newTestNotifier(t, sender, task)

	require.NoError(t, n.OnOverdueFired(context.Background(), task.ID))

	texts := sender.texts()
	require.Len(t, texts, 2)
	assert.Equal(t,
		`your time to complete <b>taxes &lt;2024&gt;</b> is up, <a href="tg://user?id=4242">there</a>. i am very disappointed in you.`,
		texts[0])
	assert.Contains(t, texts[1], "Finished: ⬜")
}

func TestSkipsFinishedAndDeletedTasks(t *testing.T) {
	t.Parallel()

	finished := testTask(func(task *database.Task) { task.Checked = true })
	sender := &fakeSender{}
	n := newTestNotifier(t, sender, finished)
	ctx := context.Background()

	assert.NoError(t, n.OnPesterFired(ctx, finished.ID))
	assert.NoError(t, n.OnReminderFired(ctx, finished.ID))
	assert.NoError(t, n.OnOverdueFired(ctx, finished.ID))
	assert.NoError(t, n.OnOverdueFired(ctx, uuid.New()), "deleted task is a no-op")
	assert.Empty(t, sender.texts())
}

func TestNotifyErrors(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")

	n, err := NewTelegram(&fakeSender{}, fakeTasks{err: boom}, TelegramOptions{ChatID: 1})
	require.NoError(t, err)
	err = n.OnPesterFired(context.Background(), uuid.New())
	assert.True(t, errs.Is(err, errs.CodeNotify))
	assert.ErrorIs(t, err, boom)

	task := testTask(nil)
	n = newTestNotifier(t, &fakeSender{err: boom}, task)
	err = n.OnOverdueFired(context.Background(), task.ID)
	assert.True(t, errs.Is(err, errs.CodeNotify))
	assert.ErrorIs(t, err, boom)
}

func TestSendRespectsDeadlineWhileBusy(t *testing.T) {
	t.Parallel()

	task := testTask(nil)
	sender := &fakeSender{}
	n := newTestNotifier(t, sender, task)

	n.sem <- struct{}{} // another firing is mid-send
	defer func() { <-n.sem }()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := n.OnOverdueFired(ctx, task.ID)
	assert.True(t, errs.Is(err, errs.CodeNotify))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Empty(t, sender.texts())
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	t.Parallel()

	boom := errors.New("bad gateway")
	task := testTask(nil)
	sender := &countingSender{err: boom}
	n, err := NewTelegram(sender, fakeTasks{tasks: map[uuid.UUID]*database.Task{task.ID: task}}, TelegramOptions{
		ChatID:      1,
		MaxFailures: 2,
		Cooldown:    time.Hour,
	})
	require.NoError(t, err)

	ctx := context.Background()
	for range 2 {
		assert.ErrorIs(t, n.OnPesterFired(ctx, task.ID), boom)
	}
	err = n.OnPesterFired(ctx, task.ID)
	assert.True(t, errs.Is(err, errs.CodeNotify))
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, 2, sender.calls, "open breaker skips the api")
}

func TestBreakerIgnoresCancellation(t *testing.T) {
	t.Parallel()

	task := testTask(nil)
	sender := &countingSender{err: context.Canceled}
	n, err := NewTelegram(sender, fakeTasks{tasks: map[uuid.UUID]*database.Task{task.ID: task}}, TelegramOptions{
		ChatID:      1,
		MaxFailures: 1,
	})
	require.NoError(t, err)

	for range 3 {
		assert.ErrorIs(t, n.OnPesterFired(context.Background(), task.ID), context.Canceled)
	}
	assert.Equal(t, 3, sender.calls)
}

type countingSender struct {
	calls int
	err   error
}

func (s *countingSender) SendMessage(context.Context, *bot.SendMessageParams) (*models.Message, error) {
	s.calls++
	return nil, s.err
}

func TestSummaryWithoutAppURL(t *testing.T) {
	t.Parallel()

	msg := summaryMessage(testTask(func(task *database.Task) { task.Checked = true }), "")
	assert.Equal(t, "<b>taxes &lt;2024&gt;</b>\nFinished: ✅\n\nfor "+mention(4242), msg)
}

func TestLogNotifier(t *testing.T) {
	t.Parallel()

	n := NewLog(nil)
	ctx := context.Background()
	assert.NoError(t, n.OnPesterFired(ctx, uuid.New()))
	assert.NoError(t, n.OnReminderFired(ctx, uuid.New()))
	assert.NoError(t, n.OnOverdueFired(ctx, uuid.New()))
}
