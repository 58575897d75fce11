package engine

import (
	"context"
	"errors"
	"fmt"
	"time"
)

type (
	// ScheduleSpec is one of CronSpec, IntervalSpec, or CalendarSpec.
	ScheduleSpec interface {
		isScheduleSpec()
	}

	// CronSpec fires on a five-field cron expression. An empty timezone
	// means UTC.
	CronSpec struct {
		Expression string
		Timezone   string
	}

	// IntervalSpec fires every Every, optionally phase-shifted by Offset.
	// Intervals are timezone-free.
	IntervalSpec struct {
		Every  time.Duration
		Offset time.Duration
	}

	// CalendarSpec fires once at the given instant. An empty timezone means
	// UTC.
	CalendarSpec struct {
		At       time.Time
		Timezone string
	}

	// OverlapPolicy decides what happens when a scheduled run would start
	// while the previous one is still running.
	OverlapPolicy int

	// ScheduleRequest creates a schedule that starts workflow executions.
	ScheduleRequest struct {
		// ID is the schedule identifier, already tenant-prefixed by the
		// caller.
		ID string
		// Spec decides when the schedule fires.
		Spec ScheduleSpec
		// Action describes the workflow each firing starts.
		Action ScheduleAction
		// Overlap defaults to OverlapSkip.
		Overlap OverlapPolicy
		// Paused creates the schedule without firing.
		Paused bool
		// Note annotates the schedule state (e.g. the pause reason).
		Note string
	}

	// ScheduleAction is the workflow started by each schedule firing.
	ScheduleAction struct {
		WorkflowID       string
		Workflow         string
		TaskQueue        string
		Input            []any
		Memo             map[string]any
		RetryPolicy      RetryPolicy
		ExecutionTimeout time.Duration
	}

	// ScheduleHandle manages one schedule.
	ScheduleHandle interface {
		ID() string
		Describe(ctx context.Context) (ScheduleDescription, error)
		Pause(ctx context.Context, note string) error
		Unpause(ctx context.Context, note string) error
		Trigger(ctx context.Context) error
		Delete(ctx context.Context) error
		// Backfill replays the firings the spec would have produced in
		// [start, end].
		Backfill(ctx context.Context, start, end time.Time) error
	}

	// ScheduleDescription is a snapshot of schedule state.
	ScheduleDescription struct {
		ID             string
		Spec           ScheduleSpec
		Paused         bool
		Note           string
		NextActionTime time.Time
		RecentActions  int
	}

	// ScheduleListEntry summarizes one schedule in a listing.
	ScheduleListEntry struct {
		ID     string
		Paused bool
	}
)

const (
	// OverlapSkip drops a firing while the previous run is open.
	OverlapSkip OverlapPolicy = iota
	// OverlapAllow starts runs unconditionally.
	OverlapAllow
	// OverlapBufferOne queues at most one firing behind the open run.
	OverlapBufferOne
	// OverlapCancelOther cancels the open run, then starts the new one.
	OverlapCancelOther
	// OverlapTerminateOther terminates the open run, then starts the new one.
	OverlapTerminateOther
)

func (CronSpec) isScheduleSpec()     {}
func (IntervalSpec) isScheduleSpec() {}
func (CalendarSpec) isScheduleSpec() {}

// Schedule API sentinel errors. Adapters normalize backend errors onto these
// so callers can use errors.Is; ScheduleAlreadyExistsError additionally
// carries the colliding ID.
var (
	ErrScheduleAlreadyExists = errors.New("schedule already exists")
	ErrScheduleNotFound      = errors.New("schedule not found")
	ErrInvalidScheduleSpec   = errors.New("invalid schedule spec")
)

// ScheduleAlreadyExistsError reports an ID collision on schedule creation.
type ScheduleAlreadyExistsError struct {
	ScheduleID string
}

// Error implements error.
func (e *ScheduleAlreadyExistsError) Error() string {
	return fmt.Sprintf("schedule %q already exists", e.ScheduleID)
}

// Is makes the error match ErrScheduleAlreadyExists.
func (e *ScheduleAlreadyExistsError) Is(target error) bool {
	return target == ErrScheduleAlreadyExists
}
