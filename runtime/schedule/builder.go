package schedule

import (
	"context"
	"fmt"
	"time"

	"github.com/xians-ai/sdk-go/runtime/engine"
	"github.com/xians-ai/sdk-go/runtime/executor"
	"github.com/xians-ai/sdk-go/runtime/identifier"
	"github.com/xians-ai/sdk-go/runtime/runctx"
)

// Builder accumulates a schedule definition. Helpers return the builder for
// chaining; configuration errors are latched and surfaced by Start.
type Builder struct {
	m *Manager

	id           string
	spec         SpecDescriptor
	hasSpec      bool
	workflowType string
	input        []any
	memo         map[string]any
	retry        engine.RetryPolicy
	timeout      time.Duration
	overlap      engine.OverlapPolicy
	paused       bool
	note         string

	err error
}

func (b *Builder) setSpec(d SpecDescriptor) *Builder {
	if b.err != nil {
		return b
	}
	if b.hasSpec {
		b.err = fmt.Errorf("%w: schedule spec set twice", engine.ErrInvalidScheduleSpec)
		return b
	}
	if err := d.Validate(); err != nil {
		b.err = err
		return b
	}
	b.spec = d
	b.hasSpec = true
	return b
}

// Daily fires every day at the given hour, minute zero, UTC.
func (b *Builder) Daily(hour int) *Builder {
	return b.DailyAt(hour, 0)
}

// DailyAt fires every day at hour:minute UTC.
func (b *Builder) DailyAt(hour, minute int) *Builder {
	return b.setSpec(SpecDescriptor{Kind: kindCron, Expression: fmt.Sprintf("%d %d * * *", minute, hour)})
}

// Weekly fires on the given weekday at the hour, minute zero.
func (b *Builder) Weekly(day time.Weekday, hour int) *Builder {
	return b.WeeklyAt(day, hour, 0)
}

// WeeklyAt fires on the given weekday at hour:minute.
func (b *Builder) WeeklyAt(day time.Weekday, hour, minute int) *Builder {
	return b.setSpec(SpecDescriptor{Kind: kindCron, Expression: fmt.Sprintf("%d %d * * %d", minute, hour, int(day))})
}

// Monthly fires on the given day of month at the hour, minute zero.
func (b *Builder) Monthly(dayOfMonth, hour int) *Builder {
	return b.MonthlyAt(dayOfMonth, hour, 0)
}

// MonthlyAt fires on the given day of month at hour:minute.
func (b *Builder) MonthlyAt(dayOfMonth, hour, minute int) *Builder {
	return b.setSpec(SpecDescriptor{Kind: kindCron, Expression: fmt.Sprintf("%d %d %d * *", minute, hour, dayOfMonth)})
}

// Hourly fires every hour at the given minute.
func (b *Builder) Hourly(minute int) *Builder {
	return b.setSpec(SpecDescriptor{Kind: kindCron, Expression: fmt.Sprintf("%d * * * *", minute)})
}

// Weekdays fires Monday through Friday at the hour, minute zero.
func (b *Builder) Weekdays(hour int) *Builder {
	return b.WeekdaysAt(hour, 0)
}

// WeekdaysAt fires Monday through Friday at hour:minute.
func (b *Builder) WeekdaysAt(hour, minute int) *Builder {
	return b.setSpec(SpecDescriptor{Kind: kindCron, Expression: fmt.Sprintf("%d %d * * 1-5", minute, hour)})
}

// EverySeconds fires every n seconds.
func (b *Builder) EverySeconds(n int) *Builder {
	return b.setSpec(SpecDescriptor{Kind: kindInterval, Every: time.Duration(n) * time.Second})
}

// EveryMinutes fires every n minutes.
func (b *Builder) EveryMinutes(n int) *Builder {
	return b.setSpec(SpecDescriptor{Kind: kindInterval, Every: time.Duration(n) * time.Minute})
}

// EveryHours fires every n hours.
func (b *Builder) EveryHours(n int) *Builder {
	return b.setSpec(SpecDescriptor{Kind: kindInterval, Every: time.Duration(n) * time.Hour})
}

// EveryDays fires every n days.
func (b *Builder) EveryDays(n int) *Builder {
	return b.setSpec(SpecDescriptor{Kind: kindInterval, Every: time.Duration(n) * 24 * time.Hour})
}

// WithCronSchedule uses a five-field cron expression verbatim.
func (b *Builder) WithCronSchedule(expression string) *Builder {
	return b.setSpec(SpecDescriptor{Kind: kindCron, Expression: expression})
}

// WithIntervalSchedule fires every `every`, phase-shifted by offset.
func (b *Builder) WithIntervalSchedule(every, offset time.Duration) *Builder {
	return b.setSpec(SpecDescriptor{Kind: kindInterval, Every: every, Offset: offset})
}

// WithCalendarSchedule fires once at the given instant. Not available from
// workflow code.
func (b *Builder) WithCalendarSchedule(at time.Time) *Builder {
	return b.setSpec(SpecDescriptor{Kind: kindCalendar, At: at})
}

// InTimezone sets the timezone of a cron or calendar spec. Call after the
// timing helper.
func (b *Builder) InTimezone(tz string) *Builder {
	if b.err != nil {
		return b
	}
	if !b.hasSpec {
		b.err = fmt.Errorf("%w: set the timing before the timezone", engine.ErrInvalidScheduleSpec)
		return b
	}
	if b.spec.Kind == kindInterval {
		b.err = fmt.Errorf("%w: interval schedules are timezone-free", engine.ErrInvalidScheduleSpec)
		return b
	}
	if _, err := time.LoadLocation(tz); err != nil {
		b.err = fmt.Errorf("%w: timezone %q: %v", engine.ErrInvalidScheduleSpec, tz, err)
		return b
	}
	b.spec.Timezone = tz
	return b
}

// ForWorkflow overrides the workflow type the schedule starts. Defaults to
// the agent's default workflow.
func (b *Builder) ForWorkflow(workflowType string) *Builder {
	b.workflowType = workflowType
	return b
}

// WithInput sets the arguments delivered to each started workflow.
func (b *Builder) WithInput(args ...any) *Builder {
	b.input = args
	return b
}

// WithMemo attaches extra memo fields to started workflows. Tenant and
// system-scope fields are stamped regardless.
func (b *Builder) WithMemo(memo map[string]any) *Builder {
	b.memo = memo
	return b
}

// WithRetryPolicy sets the started workflow's retry policy.
func (b *Builder) WithRetryPolicy(policy engine.RetryPolicy) *Builder {
	b.retry = policy
	return b
}

// WithTimeout bounds each started workflow execution.
func (b *Builder) WithTimeout(d time.Duration) *Builder {
	b.timeout = d
	return b
}

// SkipIfRunning drops firings while the previous run is open. The default.
func (b *Builder) SkipIfRunning() *Builder { b.overlap = engine.OverlapSkip; return b }

// AllowOverlap starts runs unconditionally.
func (b *Builder) AllowOverlap() *Builder { b.overlap = engine.OverlapAllow; return b }

// BufferOne queues at most one firing behind the open run.
func (b *Builder) BufferOne() *Builder { b.overlap = engine.OverlapBufferOne; return b }

// CancelOther cancels the open run before starting the new one.
func (b *Builder) CancelOther() *Builder { b.overlap = engine.OverlapCancelOther; return b }

// TerminateOther terminates the open run before starting the new one.
func (b *Builder) TerminateOther() *Builder { b.overlap = engine.OverlapTerminateOther; return b }

// WithOverlapPolicy sets the overlap policy explicitly.
func (b *Builder) WithOverlapPolicy(p engine.OverlapPolicy) *Builder {
	b.overlap = p
	return b
}

// StartPaused creates the schedule in paused state with a note.
func (b *Builder) StartPaused(paused bool, note string) *Builder {
	b.paused = paused
	b.note = note
	return b
}

// Start creates the schedule. From workflow code the cron/interval subset is
// created through the pre-registered schedule activity and creation is
// idempotent; outside, the engine is called directly and an ID collision
// surfaces as engine.ScheduleAlreadyExistsError carrying the qualified ID.
func (b *Builder) Start(ctx context.Context) (*Handle, error) {
	if b.err != nil {
		return nil, b.err
	}
	if !b.hasSpec {
		return nil, fmt.Errorf("%w: no timing configured", engine.ErrInvalidScheduleSpec)
	}

	qualified, scope, err := b.m.qualify(ctx, b.id)
	if err != nil {
		return nil, err
	}
	workflowType := b.workflowType
	if workflowType == "" {
		workflowType = b.m.workflowType
	}
	taskQueue, err := identifier.TaskQueue(workflowType, b.m.systemScoped, scope.TenantID)
	if err != nil {
		return nil, err
	}

	memo := map[string]any{
		engine.MemoTenantKey:       scope.TenantID,
		engine.MemoSystemScopedKey: b.m.systemScoped,
	}
	for k, v := range b.memo {
		memo[k] = v
	}

	in := CreateInput{
		ScheduleID:       qualified,
		WorkflowType:     workflowType,
		TaskQueue:        taskQueue,
		ActionWorkflowID: identifier.Build(scope.TenantID, workflowType, "schedule", b.id),
		Spec:             b.spec,
		Input:            b.input,
		Memo:             memo,
		RetryPolicy:      b.retry,
		Timeout:          b.timeout,
		Overlap:          b.overlap,
		Paused:           b.paused,
		Note:             b.note,
	}

	if runctx.IsInWorkflow(ctx) && !in.Spec.ActivitySafe() {
		return nil, fmt.Errorf("%w: %s schedules", ErrUnsupportedInWorkflow, in.Spec.Kind)
	}

	result, err := executor.Execute(ctx, ActivityCreateIfNotExists, in,
		func(c context.Context) (CreateResult, error) {
			return b.m.create(c, in)
		})
	if err != nil {
		return nil, err
	}
	return &Handle{m: b.m, id: result.ScheduleID}, nil
}
