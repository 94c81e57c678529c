package telegram

import (
	"context"
	"strings"
	"testing"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgard/shamebot/internal/database"
	"github.com/edgard/shamebot/internal/logger"
)

type fakeJobs struct{}

func (fakeJobs) GetJobs(context.Context, uuid.UUID) (database.TriggerRecord, error) {
	return database.TriggerRecord{}, nil
}

func (fakeJobs) RegisterAll(context.Context, uuid.UUID) (database.TriggerRecord, error) {
	return database.TriggerRecord{}, nil
}

func TestParseTaskID(t *testing.T) {
	t.Parallel()

	id := uuid.New()

	got, err := parseTaskID("/jobs " + id.String())
	require.NoError(t, err)
	assert.Equal(t, id, got)

	got, err = parseTaskID("/jobs@shame_bot   " + id.String() + "  ")
	require.NoError(t, err)
	assert.Equal(t, id, got)

	for _, bad := range []string{"/jobs", "/jobs nope", "/jobs " + id.String() + " extra", ""} {
		_, err := parseTaskID(bad)
		assert.Error(t, err, bad)
	}
}

func TestFormatRecord(t *testing.T) {
	t.Parallel()

	taskID := uuid.MustParse("11111111-1111-1111-1111-111111111111")
	overdue := uuid.MustParse("22222222-2222-2222-2222-222222222222")

	got := formatRecord(database.TriggerRecord{TaskID: taskID, Overdue: &overdue})
	assert.Equal(t, strings.Join([]string{
		"triggers for 11111111-1111-1111-1111-111111111111",
		"pester: none",
		"reminder: none",
		"overdue: 22222222-2222-2222-2222-222222222222",
	}, "\n"), got)
}

func TestRegisterAllCommands(t *testing.T) {
	t.Parallel()

	cmds := RegisterAllCommands(HandlerDeps{Logger: logger.Discard(), AdminUserID: 7, Jobs: fakeJobs{}})
	require.Len(t, cmds, 2)

	for _, name := range []string{"/jobs", "/reschedule"} {
		h, ok := cmds[name]
		require.True(t, ok, name)
		assert.Equal(t, strings.TrimPrefix(name, "/"), h.Pattern)
		assert.Equal(t, bot.MatchTypeCommandStartOnly, h.MatchType)
		assert.Len(t, h.Middleware, 1, "admin only")
		assert.NotNil(t, h.Handler)
	}
}

func TestAdminOnlyPassesAdmin(t *testing.T) {
	t.Parallel()

	called := false
	next := func(context.Context, *bot.Bot, *models.Update) { called = true }
	h := AdminOnly(HandlerDeps{Logger: logger.Discard(), AdminUserID: 7})(next)

	h(context.Background(), nil, &models.Update{Message: &models.Message{
		From: &models.User{ID: 7},
		Chat: models.Chat{ID: 7},
	}})
	assert.True(t, called)
}

func TestAdminOnlyIgnoresNonMessages(t *testing.T) {
	t.Parallel()

	called := false
	next := func(context.Context, *bot.Bot, *models.Update) { called = true }
	h := AdminOnly(HandlerDeps{Logger: logger.Discard(), AdminUserID: 7})(next)

	h(context.Background(), nil, &models.Update{})
	assert.False(t, called)
}

func TestApplyMiddlewareOrder(t *testing.T) {
	t.Parallel()

	var order []string
	mw := func(name string) bot.Middleware {
		return func(next bot.HandlerFunc) bot.HandlerFunc {
			return func(ctx context.Context, b *bot.Bot, u *models.Update) {
				order = append(order, name)
				next(ctx, b, u)
			}
		}
	}
	h := applyMiddleware(func(context.Context, *bot.Bot, *models.Update) {
		order = append(order, "handler")
	}, []bot.Middleware{mw("outer"), mw("inner")})

	h(context.Background(), nil, &models.Update{})
	assert.Equal(t, []string{"outer", "inner", "handler"}, order)
}

func TestNewTelegramBotRequiresToken(t *testing.T) {
	t.Parallel()

	_, err := NewTelegramBot("", logger.Discard())
	assert.Error(t, err)
	assert.Equal(t, "***", tokenPrefix("short"))
	assert.Equal(t, "12345678...", tokenPrefix("12345678:secret"))
}
