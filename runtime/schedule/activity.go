package schedule

import (
	"context"
	"errors"
	"time"

	"github.com/xians-ai/sdk-go/runtime/engine"
	"github.com/xians-ai/sdk-go/runtime/telemetry"
)

// Activity names registered on every worker.
const (
	ActivityCreateIfNotExists = "ScheduleActivity.CreateIfNotExists"
	ActivityManage            = "ScheduleActivity.Manage"
	ActivityDescribe          = "ScheduleActivity.Describe"
	ActivityList              = "ScheduleActivity.List"
)

type (
	// CreateInput carries a fully resolved schedule definition. IDs are
	// qualified with the tenant before this point.
	CreateInput struct {
		ScheduleID       string               `json:"scheduleId"`
		WorkflowType     string               `json:"workflowType"`
		TaskQueue        string               `json:"taskQueue"`
		ActionWorkflowID string               `json:"actionWorkflowId"`
		Spec             SpecDescriptor       `json:"spec"`
		Input            []any                `json:"input,omitempty"`
		Memo             map[string]any       `json:"memo,omitempty"`
		RetryPolicy      engine.RetryPolicy   `json:"retryPolicy,omitempty"`
		Timeout          time.Duration        `json:"timeout,omitempty"`
		Overlap          engine.OverlapPolicy `json:"overlap,omitempty"`
		Paused           bool                 `json:"paused,omitempty"`
		Note             string               `json:"note,omitempty"`
	}

	// CreateResult reports the outcome of an idempotent create.
	CreateResult struct {
		ScheduleID string `json:"scheduleId"`
		Created    bool   `json:"created"`
	}

	// ManageInput drives management operations against an existing
	// schedule.
	ManageInput struct {
		ScheduleID string    `json:"scheduleId"`
		Op         string    `json:"op"`
		Note       string    `json:"note,omitempty"`
		Start      time.Time `json:"start,omitempty"`
		End        time.Time `json:"end,omitempty"`
	}

	// DescribeResult is the wire-safe form of a schedule description: the
	// engine's spec interface cannot cross the activity boundary, the flat
	// descriptor can.
	DescribeResult struct {
		ID             string         `json:"id"`
		Spec           SpecDescriptor `json:"spec"`
		Paused         bool           `json:"paused"`
		Note           string         `json:"note,omitempty"`
		NextActionTime time.Time      `json:"nextActionTime,omitempty"`
		RecentActions  int            `json:"recentActions,omitempty"`
	}

	// Activities exposes schedule operations as worker activities so
	// workflow code can create and manage schedules deterministically.
	Activities struct {
		m      *Manager
		logger telemetry.Logger
	}
)

// NewActivities binds the activity set to a manager.
func NewActivities(m *Manager, logger telemetry.Logger) *Activities {
	if logger == nil {
		logger = telemetry.NewNoopLogger()
	}
	return &Activities{m: m, logger: logger}
}

// CreateIfNotExists creates the schedule, treating an existing one with the
// same ID as success. This is the workflow-side path: a workflow retrying
// after a crash must not fail on its own earlier create.
func (a *Activities) CreateIfNotExists(ctx context.Context, in CreateInput) (CreateResult, error) {
	result, err := a.m.create(ctx, in)
	if err != nil {
		if errors.Is(err, engine.ErrScheduleAlreadyExists) {
			a.logger.Debug(ctx, "schedule already exists", "schedule_id", in.ScheduleID)
			return CreateResult{ScheduleID: in.ScheduleID, Created: false}, nil
		}
		return CreateResult{}, err
	}
	return result, nil
}

// Manage applies a pause/unpause/trigger/delete/backfill operation.
func (a *Activities) Manage(ctx context.Context, in ManageInput) error {
	return a.m.applyManage(ctx, in)
}

// Describe reports the schedule state.
func (a *Activities) Describe(ctx context.Context, in ManageInput) (DescribeResult, error) {
	return a.m.describe(ctx, in.ScheduleID)
}

// List returns schedules with the input's ID as prefix.
func (a *Activities) List(ctx context.Context, in ManageInput) ([]engine.ScheduleListEntry, error) {
	return a.m.listWithPrefix(ctx, in.ScheduleID)
}
