// Package schedule provides fluent creation and tenant-scoped management of
// engine schedules. Creation from workflow code transparently delegates to a
// pre-registered schedule activity for the cron and interval subset;
// calendar specs are only valid outside workflows.
package schedule

import (
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/xians-ai/sdk-go/runtime/engine"
)

// ErrUnsupportedInWorkflow reports a schedule operation that cannot be
// expressed as an activity, attempted from workflow code.
var ErrUnsupportedInWorkflow = errors.New("schedule operation not supported inside a workflow")

// Spec kinds carried by the activity-serializable descriptor.
const (
	kindCron     = "cron"
	kindInterval = "interval"
	kindCalendar = "calendar"
)

// SpecDescriptor is the JSON-serializable form of a schedule spec, used as
// activity input and re-expanded on the worker.
type SpecDescriptor struct {
	Kind       string        `json:"kind"`
	Expression string        `json:"expression,omitempty"`
	Timezone   string        `json:"timezone,omitempty"`
	Every      time.Duration `json:"every,omitempty"`
	Offset     time.Duration `json:"offset,omitempty"`
	At         time.Time     `json:"at,omitempty"`
}

// cronParser accepts standard five-field expressions.
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Validate checks the descriptor without touching the engine.
func (d SpecDescriptor) Validate() error {
	switch d.Kind {
	case kindCron:
		if _, err := cronParser.Parse(d.Expression); err != nil {
			return fmt.Errorf("%w: cron expression %q: %v", engine.ErrInvalidScheduleSpec, d.Expression, err)
		}
		if d.Timezone != "" {
			if _, err := time.LoadLocation(d.Timezone); err != nil {
				return fmt.Errorf("%w: timezone %q: %v", engine.ErrInvalidScheduleSpec, d.Timezone, err)
			}
		}
		return nil
	case kindInterval:
		if d.Every <= 0 {
			return fmt.Errorf("%w: interval must be positive", engine.ErrInvalidScheduleSpec)
		}
		if d.Offset < 0 || d.Offset >= d.Every {
			return fmt.Errorf("%w: offset must be in [0, every)", engine.ErrInvalidScheduleSpec)
		}
		return nil
	case kindCalendar:
		if d.At.IsZero() {
			return fmt.Errorf("%w: calendar instant is required", engine.ErrInvalidScheduleSpec)
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown kind %q", engine.ErrInvalidScheduleSpec, d.Kind)
	}
}

// ActivitySafe reports whether the spec may be created through the schedule
// activity from workflow code.
func (d SpecDescriptor) ActivitySafe() bool {
	return d.Kind == kindCron || d.Kind == kindInterval
}

// ToEngine expands the descriptor into the engine spec type.
func (d SpecDescriptor) ToEngine() engine.ScheduleSpec {
	switch d.Kind {
	case kindCron:
		return engine.CronSpec{Expression: d.Expression, Timezone: d.Timezone}
	case kindInterval:
		return engine.IntervalSpec{Every: d.Every, Offset: d.Offset}
	case kindCalendar:
		return engine.CalendarSpec{At: d.At, Timezone: d.Timezone}
	default:
		return nil
	}
}
