package temporal

import (
	"context"
	"errors"
	"fmt"
	"time"

	enumspb "go.temporal.io/api/enums/v1"
	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/client"

	"github.com/xians-ai/sdk-go/runtime/engine"
)

type scheduleHandle struct {
	handle client.ScheduleHandle
}

// CreateSchedule registers a schedule with the Temporal schedule service.
// ID collisions normalize onto engine.ScheduleAlreadyExistsError.
func (e *Engine) CreateSchedule(ctx context.Context, req engine.ScheduleRequest) (engine.ScheduleHandle, error) {
	spec, err := convertSpec(req.Spec)
	if err != nil {
		return nil, err
	}
	opts := client.ScheduleOptions{
		ID:   req.ID,
		Spec: *spec,
		Action: &client.ScheduleWorkflowAction{
			ID:                       req.Action.WorkflowID,
			Workflow:                 req.Action.Workflow,
			TaskQueue:                req.Action.TaskQueue,
			Args:                     req.Action.Input,
			Memo:                     req.Action.Memo,
			RetryPolicy:              convertRetryPolicy(req.Action.RetryPolicy),
			WorkflowExecutionTimeout: req.Action.ExecutionTimeout,
		},
		Overlap: convertOverlapPolicy(req.Overlap),
		Paused:  req.Paused,
		Note:    req.Note,
	}
	handle, err := e.client.ScheduleClient().Create(ctx, opts)
	if err != nil {
		if isAlreadyExists(err) {
			return nil, &engine.ScheduleAlreadyExistsError{ScheduleID: req.ID}
		}
		return nil, err
	}
	return &scheduleHandle{handle: handle}, nil
}

// GetScheduleHandle wraps a handle to an existing schedule.
func (e *Engine) GetScheduleHandle(scheduleID string) engine.ScheduleHandle {
	return &scheduleHandle{handle: e.client.ScheduleClient().GetHandle(context.Background(), scheduleID)}
}

// ListSchedules pages through the schedule listing, forwarding the optional
// visibility query.
func (e *Engine) ListSchedules(ctx context.Context, query string) ([]engine.ScheduleListEntry, error) {
	iter, err := e.client.ScheduleClient().List(ctx, client.ScheduleListOptions{Query: query})
	if err != nil {
		return nil, err
	}
	var entries []engine.ScheduleListEntry
	for iter.HasNext() {
		entry, err := iter.Next()
		if err != nil {
			return nil, err
		}
		entries = append(entries, engine.ScheduleListEntry{ID: entry.ID, Paused: entry.Paused})
	}
	return entries, nil
}

func (h *scheduleHandle) ID() string { return h.handle.GetID() }

func (h *scheduleHandle) Describe(ctx context.Context) (engine.ScheduleDescription, error) {
	desc, err := h.handle.Describe(ctx)
	if err != nil {
		return engine.ScheduleDescription{}, normalizeScheduleError(err, h.handle.GetID())
	}
	out := engine.ScheduleDescription{
		ID:            h.handle.GetID(),
		RecentActions: len(desc.Info.RecentActions),
	}
	if desc.Schedule.State != nil {
		out.Paused = desc.Schedule.State.Paused
		out.Note = desc.Schedule.State.Note
	}
	if desc.Schedule.Spec != nil {
		out.Spec = reverseSpec(desc.Schedule.Spec)
	}
	if len(desc.Info.NextActionTimes) > 0 {
		out.NextActionTime = desc.Info.NextActionTimes[0]
	}
	return out, nil
}

func (h *scheduleHandle) Pause(ctx context.Context, note string) error {
	err := h.handle.Pause(ctx, client.SchedulePauseOptions{Note: note})
	return normalizeScheduleError(err, h.handle.GetID())
}

func (h *scheduleHandle) Unpause(ctx context.Context, note string) error {
	err := h.handle.Unpause(ctx, client.ScheduleUnpauseOptions{Note: note})
	return normalizeScheduleError(err, h.handle.GetID())
}

func (h *scheduleHandle) Trigger(ctx context.Context) error {
	err := h.handle.Trigger(ctx, client.ScheduleTriggerOptions{})
	return normalizeScheduleError(err, h.handle.GetID())
}

func (h *scheduleHandle) Delete(ctx context.Context) error {
	return normalizeScheduleError(h.handle.Delete(ctx), h.handle.GetID())
}

func (h *scheduleHandle) Backfill(ctx context.Context, start, end time.Time) error {
	err := h.handle.Backfill(ctx, client.ScheduleBackfillOptions{
		Backfill: []client.ScheduleBackfill{{Start: start, End: end}},
	})
	return normalizeScheduleError(err, h.handle.GetID())
}

func normalizeScheduleError(err error, scheduleID string) error {
	if err == nil {
		return nil
	}
	var notFound *serviceerror.NotFound
	if errors.As(err, &notFound) {
		return fmt.Errorf("%w: %q", engine.ErrScheduleNotFound, scheduleID)
	}
	return err
}

func convertSpec(spec engine.ScheduleSpec) (*client.ScheduleSpec, error) {
	switch s := spec.(type) {
	case engine.CronSpec:
		out := &client.ScheduleSpec{CronExpressions: []string{s.Expression}}
		out.TimeZoneName = s.Timezone
		if out.TimeZoneName == "" {
			out.TimeZoneName = "UTC"
		}
		return out, nil
	case engine.IntervalSpec:
		if s.Every <= 0 {
			return nil, fmt.Errorf("%w: interval must be positive", engine.ErrInvalidScheduleSpec)
		}
		return &client.ScheduleSpec{
			Intervals: []client.ScheduleIntervalSpec{{Every: s.Every, Offset: s.Offset}},
		}, nil
	case engine.CalendarSpec:
		tz := s.Timezone
		if tz == "" {
			tz = "UTC"
		}
		loc, err := time.LoadLocation(tz)
		if err != nil {
			return nil, fmt.Errorf("%w: timezone %q: %v", engine.ErrInvalidScheduleSpec, tz, err)
		}
		at := s.At.In(loc)
		return &client.ScheduleSpec{
			Calendars:    []client.ScheduleCalendarSpec{calendarAt(at)},
			TimeZoneName: tz,
		}, nil
	default:
		return nil, fmt.Errorf("%w: unsupported spec %T", engine.ErrInvalidScheduleSpec, spec)
	}
}

// calendarAt pins every calendar field to the instant so the schedule fires
// exactly once.
func calendarAt(at time.Time) client.ScheduleCalendarSpec {
	return client.ScheduleCalendarSpec{
		Second:     []client.ScheduleRange{{Start: at.Second()}},
		Minute:     []client.ScheduleRange{{Start: at.Minute()}},
		Hour:       []client.ScheduleRange{{Start: at.Hour()}},
		DayOfMonth: []client.ScheduleRange{{Start: at.Day()}},
		Month:      []client.ScheduleRange{{Start: int(at.Month())}},
		Year:       []client.ScheduleRange{{Start: at.Year()}},
	}
}

// reverseSpec maps a described Temporal spec back onto the engine types for
// display; lossy for specs not produced by convertSpec.
func reverseSpec(spec *client.ScheduleSpec) engine.ScheduleSpec {
	switch {
	case len(spec.CronExpressions) > 0:
		return engine.CronSpec{Expression: spec.CronExpressions[0], Timezone: spec.TimeZoneName}
	case len(spec.Intervals) > 0:
		return engine.IntervalSpec{Every: spec.Intervals[0].Every, Offset: spec.Intervals[0].Offset}
	default:
		return nil
	}
}

func convertOverlapPolicy(p engine.OverlapPolicy) enumspb.ScheduleOverlapPolicy {
	switch p {
	case engine.OverlapAllow:
		return enumspb.SCHEDULE_OVERLAP_POLICY_ALLOW_ALL
	case engine.OverlapBufferOne:
		return enumspb.SCHEDULE_OVERLAP_POLICY_BUFFER_ONE
	case engine.OverlapCancelOther:
		return enumspb.SCHEDULE_OVERLAP_POLICY_CANCEL_OTHER
	case engine.OverlapTerminateOther:
		return enumspb.SCHEDULE_OVERLAP_POLICY_TERMINATE_OTHER
	default:
		return enumspb.SCHEDULE_OVERLAP_POLICY_SKIP
	}
}
