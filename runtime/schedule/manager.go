package schedule

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/xians-ai/sdk-go/runtime/agentscope"
	"github.com/xians-ai/sdk-go/runtime/engine"
	"github.com/xians-ai/sdk-go/runtime/executor"
	"github.com/xians-ai/sdk-go/runtime/identifier"
	"github.com/xians-ai/sdk-go/runtime/telemetry"
)

type (
	// Manager creates and manages schedules for one agent. Every schedule ID
	// is rewritten to "{tenant}:{id}" on create and on all management calls,
	// and listings are filtered to the current tenant, so tenants cannot see
	// or touch each other's schedules.
	Manager struct {
		client   engine.Client
		resolver agentscope.Resolver
		// workflowType is the agent's default workflow started by schedule
		// firings when the builder does not override it.
		workflowType string
		systemScoped bool
		logger       telemetry.Logger
		metrics      telemetry.Metrics
	}

	// ManagerOptions configures a Manager.
	ManagerOptions struct {
		Client       engine.Client
		Resolver     agentscope.Resolver
		WorkflowType string
		SystemScoped bool
		Logger       telemetry.Logger
		Metrics      telemetry.Metrics
	}

	// Handle manages one created schedule.
	Handle struct {
		m  *Manager
		id string // qualified
	}
)

// NewManager builds the per-agent schedule manager.
func NewManager(opts ManagerOptions) *Manager {
	logger := opts.Logger
	if logger == nil {
		logger = telemetry.NewNoopLogger()
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = telemetry.NewNoopMetrics()
	}
	return &Manager{
		client:       opts.Client,
		resolver:     opts.Resolver,
		workflowType: opts.WorkflowType,
		systemScoped: opts.SystemScoped,
		logger:       logger,
		metrics:      metrics,
	}
}

// Create starts a fluent schedule definition for the user-supplied ID.
func (m *Manager) Create(id string) *Builder {
	b := &Builder{m: m, id: id, overlap: engine.OverlapSkip}
	if id == "" {
		b.err = fmt.Errorf("%w: schedule id is required", engine.ErrInvalidScheduleSpec)
	}
	return b
}

// qualify prefixes the user-supplied ID with the ambient tenant.
func (m *Manager) qualify(ctx context.Context, id string) (string, agentscope.Scope, error) {
	scope, err := m.resolver.Resolve(ctx)
	if err != nil {
		return "", agentscope.Scope{}, err
	}
	return scope.TenantID + identifier.Separator + id, scope, nil
}

// Describe reports the schedule state.
func (m *Manager) Describe(ctx context.Context, id string) (engine.ScheduleDescription, error) {
	qualified, _, err := m.qualify(ctx, id)
	if err != nil {
		return engine.ScheduleDescription{}, err
	}
	result, err := executor.Execute(ctx, ActivityDescribe, ManageInput{ScheduleID: qualified},
		func(c context.Context) (DescribeResult, error) {
			return m.describe(c, qualified)
		})
	if err != nil {
		return engine.ScheduleDescription{}, err
	}
	return result.toDescription(), nil
}

// describe fetches and flattens the engine description.
func (m *Manager) describe(ctx context.Context, qualifiedID string) (DescribeResult, error) {
	desc, err := m.client.GetScheduleHandle(qualifiedID).Describe(ctx)
	if err != nil {
		return DescribeResult{}, err
	}
	return DescribeResult{
		ID:             desc.ID,
		Spec:           descriptorFromSpec(desc.Spec),
		Paused:         desc.Paused,
		Note:           desc.Note,
		NextActionTime: desc.NextActionTime,
		RecentActions:  desc.RecentActions,
	}, nil
}

// descriptorFromSpec flattens an engine spec onto the wire descriptor.
func descriptorFromSpec(spec engine.ScheduleSpec) SpecDescriptor {
	switch s := spec.(type) {
	case engine.CronSpec:
		return SpecDescriptor{Kind: kindCron, Expression: s.Expression, Timezone: s.Timezone}
	case engine.IntervalSpec:
		return SpecDescriptor{Kind: kindInterval, Every: s.Every, Offset: s.Offset}
	case engine.CalendarSpec:
		return SpecDescriptor{Kind: kindCalendar, At: s.At, Timezone: s.Timezone}
	default:
		return SpecDescriptor{}
	}
}

// toDescription expands the wire result back onto the public type.
func (r DescribeResult) toDescription() engine.ScheduleDescription {
	return engine.ScheduleDescription{
		ID:             r.ID,
		Spec:           r.Spec.ToEngine(),
		Paused:         r.Paused,
		Note:           r.Note,
		NextActionTime: r.NextActionTime,
		RecentActions:  r.RecentActions,
	}
}

// Pause suspends firings, recording note.
func (m *Manager) Pause(ctx context.Context, id, note string) error {
	return m.manage(ctx, id, "pause", note, time.Time{}, time.Time{})
}

// Unpause resumes firings, recording note.
func (m *Manager) Unpause(ctx context.Context, id, note string) error {
	return m.manage(ctx, id, "unpause", note, time.Time{}, time.Time{})
}

// Trigger fires the schedule action immediately.
func (m *Manager) Trigger(ctx context.Context, id string) error {
	return m.manage(ctx, id, "trigger", "", time.Time{}, time.Time{})
}

// Delete removes the schedule.
func (m *Manager) Delete(ctx context.Context, id string) error {
	return m.manage(ctx, id, "delete", "", time.Time{}, time.Time{})
}

// Backfill replays firings the spec would have produced in [start, end].
func (m *Manager) Backfill(ctx context.Context, id string, start, end time.Time) error {
	return m.manage(ctx, id, "backfill", "", start, end)
}

func (m *Manager) manage(ctx context.Context, id, op, note string, start, end time.Time) error {
	qualified, _, err := m.qualify(ctx, id)
	if err != nil {
		return err
	}
	in := ManageInput{ScheduleID: qualified, Op: op, Note: note, Start: start, End: end}
	return executor.Run(ctx, ActivityManage, in, func(c context.Context) error {
		return m.applyManage(c, in)
	})
}

func (m *Manager) applyManage(ctx context.Context, in ManageInput) error {
	handle := m.client.GetScheduleHandle(in.ScheduleID)
	switch in.Op {
	case "pause":
		return handle.Pause(ctx, in.Note)
	case "unpause":
		return handle.Unpause(ctx, in.Note)
	case "trigger":
		return handle.Trigger(ctx)
	case "delete":
		return handle.Delete(ctx)
	case "backfill":
		return handle.Backfill(ctx, in.Start, in.End)
	default:
		return fmt.Errorf("unknown schedule operation %q", in.Op)
	}
}

// List returns the current tenant's schedules. IDs come back qualified.
func (m *Manager) List(ctx context.Context) ([]engine.ScheduleListEntry, error) {
	qualifiedPrefix, _, err := m.qualify(ctx, "")
	if err != nil {
		return nil, err
	}
	in := ManageInput{ScheduleID: qualifiedPrefix, Op: "list"}
	return executor.Execute(ctx, ActivityList, in, func(c context.Context) ([]engine.ScheduleListEntry, error) {
		return m.listWithPrefix(c, qualifiedPrefix)
	})
}

func (m *Manager) listWithPrefix(ctx context.Context, prefix string) ([]engine.ScheduleListEntry, error) {
	entries, err := m.client.ListSchedules(ctx, fmt.Sprintf(`ScheduleId STARTS_WITH %q`, prefix))
	if err != nil {
		return nil, err
	}
	// The engine query is advisory; enforce the tenant boundary here.
	filtered := entries[:0]
	for _, entry := range entries {
		if strings.HasPrefix(entry.ID, prefix) {
			filtered = append(filtered, entry)
		}
	}
	return filtered, nil
}

// create is the direct (non-workflow) creation path.
func (m *Manager) create(ctx context.Context, in CreateInput) (CreateResult, error) {
	if err := in.Spec.Validate(); err != nil {
		return CreateResult{}, err
	}
	_, err := m.client.CreateSchedule(ctx, engine.ScheduleRequest{
		ID:   in.ScheduleID,
		Spec: in.Spec.ToEngine(),
		Action: engine.ScheduleAction{
			WorkflowID:       in.ActionWorkflowID,
			Workflow:         in.WorkflowType,
			TaskQueue:        in.TaskQueue,
			Input:            in.Input,
			Memo:             in.Memo,
			RetryPolicy:      in.RetryPolicy,
			ExecutionTimeout: in.Timeout,
		},
		Overlap: in.Overlap,
		Paused:  in.Paused,
		Note:    in.Note,
	})
	if err != nil {
		return CreateResult{}, err
	}
	m.metrics.IncCounter("schedules_created", 1)
	return CreateResult{ScheduleID: in.ScheduleID, Created: true}, nil
}

// ID returns the qualified schedule identifier.
func (h *Handle) ID() string { return h.id }

// Describe reports the schedule state.
func (h *Handle) Describe(ctx context.Context) (engine.ScheduleDescription, error) {
	result, err := executor.Execute(ctx, ActivityDescribe, ManageInput{ScheduleID: h.id},
		func(c context.Context) (DescribeResult, error) {
			return h.m.describe(c, h.id)
		})
	if err != nil {
		return engine.ScheduleDescription{}, err
	}
	return result.toDescription(), nil
}

// Pause suspends firings.
func (h *Handle) Pause(ctx context.Context, note string) error {
	return h.op(ctx, "pause", note)
}

// Unpause resumes firings.
func (h *Handle) Unpause(ctx context.Context, note string) error {
	return h.op(ctx, "unpause", note)
}

// Trigger fires the action immediately.
func (h *Handle) Trigger(ctx context.Context) error {
	return h.op(ctx, "trigger", "")
}

// Delete removes the schedule.
func (h *Handle) Delete(ctx context.Context) error {
	return h.op(ctx, "delete", "")
}

func (h *Handle) op(ctx context.Context, op, note string) error {
	in := ManageInput{ScheduleID: h.id, Op: op, Note: note}
	return executor.Run(ctx, ActivityManage, in, func(c context.Context) error {
		return h.m.applyManage(c, in)
	})
}
