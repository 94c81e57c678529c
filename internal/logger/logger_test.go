package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/go-co-op/gocron/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgard/shamebot/internal/errs"
)

func TestParseLevel(t *testing.T) {
	t.Parallel()

	assert.Equal(t, slog.LevelDebug, ParseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warn"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("info"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("verbose"))
}

func TestNewLoggerToJSON(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := NewLoggerTo(&buf, "warn", true)
	log.Info("dropped")
	log.Warn("kept", "task_id", "abc")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "kept", entry["msg"])
	assert.Equal(t, "abc", entry["task_id"])
}

func TestProcessSchedulerArgs(t *testing.T) {
	t.Parallel()

	args := processSchedulerArgs("job", "pester", "error", gocron.ErrJobNotFound, "dangling")
	require.Len(t, args, 5)
	assert.Equal(t, "pester", args[1])
	assert.True(t, errs.Is(args[3].(error), errs.CodeScheduler))
	assert.Equal(t, "dangling", args[4])

	args = processSchedulerArgs("error", errors.New("boom"))
	assert.True(t, errs.Is(args[1].(error), errs.CodeScheduler))

	args = processSchedulerArgs("error", "not an error value")
	assert.Equal(t, "not an error value", args[1])
}

func TestGocronLoggerForwards(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	l := NewGocronLogger(NewLoggerTo(&buf, "debug", true))
	l.Error("job failed", "error", errors.New("boom"))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "gocron", entry["component"])
	assert.Equal(t, "scheduler error: boom", entry["error"])
}

func TestTruncateString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "short", truncateString("short", 10))
	assert.Equal(t, "abc...", truncateString("abcdefghij", 6))
	assert.Equal(t, "...", truncateString("abcdef", 2))
}
