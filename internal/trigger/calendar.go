// Package trigger turns a task's deadline and recurrence settings into live
// scheduled triggers, keeps their ids in the job store, and rebuilds them after
// a restart.
package trigger

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/edgard/shamebot/internal/database"
)

// Field is one position of a calendar expression.
// The zero value matches every value ("*").
type Field struct {
	Value int
	Step  int
	Fixed bool
}

// Any matches every value of the field.
func Any() Field { return Field{} }

// At matches exactly v.
func At(v int) Field { return Field{Value: v, Fixed: true} }

// Every matches start, start+step, start+2*step, ...
func Every(start, step int) Field { return Field{Value: start, Step: step, Fixed: true} }

func (f Field) String() string {
	switch {
	case !f.Fixed:
		return "*"
	case f.Step > 0:
		return strconv.Itoa(f.Value) + "/" + strconv.Itoa(f.Step)
	default:
		return strconv.Itoa(f.Value)
	}
}

// Calendar is a structured calendar expression with second granularity.
// For one-shot triggers Instant holds the absolute fire time and the fields
// mirror it; recurring triggers leave Instant zero and set Period.
type Calendar struct {
	Second     Field
	Minute     Field
	Hour       Field
	DayOfMonth Field
	Month      Field
	DayOfWeek  Field

	Instant time.Time
	Period  time.Duration
}

// CronAligned reports whether a recurring calendar's step divides its field's
// cycle, so the crontab form fires exactly every Period. A step that does not
// divide the cycle (e.g. every 7 hours) would restart at each wrap.
func (c Calendar) CronAligned() bool {
	if c.OneShot() {
		return true
	}
	for _, f := range []struct {
		field Field
		cycle int
	}{{c.Second, 60}, {c.Minute, 60}, {c.Hour, 24}} {
		if f.field.Step > 0 {
			return f.field.Step <= f.cycle && f.cycle%f.field.Step == 0
		}
	}
	return true
}

// OneShot reports whether the calendar describes a single instant.
func (c Calendar) OneShot() bool {
	return !c.Instant.IsZero()
}

// Crontab serializes the calendar to the 6-field (seconds first) crontab text
// understood by the scheduling primitive.
func (c Calendar) Crontab() string {
	return strings.Join([]string{
		c.Second.String(),
		c.Minute.String(),
		c.Hour.String(),
		c.DayOfMonth.String(),
		c.Month.String(),
		c.DayOfWeek.String(),
	}, " ")
}

func (c Calendar) String() string {
	if c.OneShot() {
		return fmt.Sprintf("%s (at %s)", c.Crontab(), c.Instant.Format(time.RFC3339))
	}
	return c.Crontab()
}

// instantCalendar pins every field to t (in UTC, truncated to the second).
func instantCalendar(t time.Time) Calendar {
	t = t.UTC().Truncate(time.Second)
	return Calendar{
		Second:     At(t.Second()),
		Minute:     At(t.Minute()),
		Hour:       At(t.Hour()),
		DayOfMonth: At(t.Day()),
		Month:      At(int(t.Month())),
		DayOfWeek:  Any(),
		Instant:    t,
	}
}

// everyCalendar fires every n units. Units coarser than a second pin the finer
// fields to zero so the trigger fires at the top of the unit.
func everyCalendar(n int, unit time.Duration) Calendar {
	c := Calendar{
		Second:     At(0),
		Minute:     Any(),
		Hour:       Any(),
		DayOfMonth: Any(),
		Month:      Any(),
		DayOfWeek:  Any(),
		Period:     time.Duration(n) * unit,
	}
	switch unit {
	case time.Second:
		c.Second = Every(0, n)
	case time.Minute:
		c.Minute = Every(0, n)
	default:
		c.Minute = At(0)
		c.Hour = Every(0, n)
	}
	return c
}

// Expression is a calendar bound to the trigger type it schedules.
type Expression struct {
	Type     database.TriggerType
	Calendar Calendar
	// Elapsed is set on one-shot expressions whose instant is not after the
	// reference time passed to Build.
	Elapsed bool
}
