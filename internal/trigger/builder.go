package trigger

import (
	"math"
	"time"

	"github.com/edgard/shamebot/internal/database"
)

// Offsets of the one-shot triggers relative to the due instant.
const (
	ReminderLead  = time.Hour
	OverdueGrace  = 5 * time.Minute
	DefaultPester = time.Hour
)

// BuildInput is the subset of task state the builder reads.
type BuildInput struct {
	Interval  *int       // pester interval in PesterUnit, nil when unset
	DueAt     *time.Time // nil when unset
	Completed bool
}

// InputFromTask extracts builder input from a stored task.
func InputFromTask(t *database.Task) BuildInput {
	in := BuildInput{Completed: t.Checked}
	if n, ok := t.Interval(); ok {
		in.Interval = &n
	}
	if due, ok := t.Due(); ok {
		in.DueAt = &due
	}
	return in
}

// Builder computes trigger expressions. It performs no I/O.
type Builder struct {
	// PesterUnit is the length of one pester interval step.
	PesterUnit time.Duration
}

// NewBuilder returns a builder counting pester intervals in unit.
// Units other than second and minute are treated as hours.
func NewBuilder(unit time.Duration) Builder {
	if unit != time.Second && unit != time.Minute {
		unit = DefaultPester
	}
	return Builder{PesterUnit: unit}
}

// Build emits zero to three expressions for the given input. Expressions for
// instants at or before now are still emitted, flagged Elapsed; the caller
// decides whether to fire or skip them.
func (b Builder) Build(now time.Time, in BuildInput) []Expression {
	var out []Expression

	if in.Interval != nil && b.validInterval(*in.Interval) && !in.Completed {
		out = append(out, Expression{
			Type:     database.TriggerPester,
			Calendar: everyCalendar(*in.Interval, b.PesterUnit),
		})
	}

	if in.DueAt != nil {
		due := in.DueAt.UTC().Truncate(time.Second)
		out = append(out,
			oneShot(now, database.TriggerReminder, due.Add(-ReminderLead)),
			oneShot(now, database.TriggerOverdue, due.Add(OverdueGrace)),
		)
	}

	return out
}

// validInterval reports whether n units form a positive period that fits in a
// time.Duration. Longer intervals never fire within any representable time.
func (b Builder) validInterval(n int) bool {
	return n > 0 && int64(n) <= math.MaxInt64/int64(b.PesterUnit)
}

func oneShot(now time.Time, t database.TriggerType, at time.Time) Expression {
	cal := instantCalendar(at)
	return Expression{
		Type:     t,
		Calendar: cal,
		Elapsed:  !cal.Instant.After(now),
	}
}
