package trigger_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/edgard/shamebot/internal/trigger"
)

func TestFieldString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "*", trigger.Any().String())
	assert.Equal(t, "7", trigger.At(7).String())
	assert.Equal(t, "0", trigger.At(0).String())
	assert.Equal(t, "0/5", trigger.Every(0, 5).String())
}

func TestCronAligned(t *testing.T) {
	t.Parallel()

	tests := []struct {
		unit    time.Duration
		n       int
		aligned bool
	}{
		{time.Hour, 1, true},
		{time.Hour, 6, true},
		{time.Hour, 7, false},
		{time.Hour, 48, false},
		{time.Minute, 15, true},
		{time.Minute, 45, false},
		{time.Second, 30, true},
		{time.Second, 90, false},
	}

	for _, tc := range tests {
		exprs := trigger.NewBuilder(tc.unit).Build(time.Now(), trigger.BuildInput{Interval: ptr(tc.n)})
		assert.Equal(t, tc.aligned, exprs[0].Calendar.CronAligned(), "every %d x %s", tc.n, tc.unit)
	}
}

func TestCalendarStringOneShot(t *testing.T) {
	t.Parallel()

	due := time.Unix(1700000000, 0).UTC()
	exprs := trigger.NewBuilder(time.Hour).Build(due.Add(-24*time.Hour), trigger.BuildInput{DueAt: &due})

	assert.Equal(t, "20 13 21 14 11 * (at 2023-11-14T21:13:20Z)", exprs[0].Calendar.String())
	assert.True(t, exprs[0].Calendar.CronAligned())
}
