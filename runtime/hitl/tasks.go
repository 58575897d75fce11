package hitl

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/xians-ai/sdk-go/runtime/agentscope"
	"github.com/xians-ai/sdk-go/runtime/engine"
	"github.com/xians-ai/sdk-go/runtime/identifier"
	"github.com/xians-ai/sdk-go/runtime/runctx"
	"github.com/xians-ai/sdk-go/runtime/telemetry"
)

type (
	// Tasks creates task workflows for one agent and opens facades onto
	// running ones.
	Tasks struct {
		client       engine.Client
		resolver     agentscope.Resolver
		workflowType string // "{agent}:Task Workflow"
		systemScoped bool
		logger       telemetry.Logger
	}

	// TasksOptions configures the per-agent task service.
	TasksOptions struct {
		Client       engine.Client
		Resolver     agentscope.Resolver
		AgentName    string
		SystemScoped bool
		Logger       telemetry.Logger
	}

	// HitlTask is the external facade onto one task workflow. Its methods
	// speak to the engine directly and are meant for callers outside
	// workflow code; the creating workflow interacts with its task through
	// the child handle instead.
	HitlTask struct {
		tasks      *Tasks
		workflowID string
		taskID     string
		// run is set when this process started the task and allows
		// awaiting the result.
		run   engine.WorkflowRun
		child engine.ChildWorkflowHandle
	}
)

// NewTasks builds the per-agent task service.
func NewTasks(opts TasksOptions) *Tasks {
	logger := opts.Logger
	if logger == nil {
		logger = telemetry.NewNoopLogger()
	}
	return &Tasks{
		client:       opts.Client,
		resolver:     opts.Resolver,
		workflowType: opts.AgentName + identifier.Separator + TaskWorkflowName,
		systemScoped: opts.SystemScoped,
		logger:       logger,
	}
}

// WorkflowType returns the agent's task workflow type.
func (t *Tasks) WorkflowType() string { return t.workflowType }

// Create starts a task workflow. From workflow code the task is started as
// an abandoned child workflow so it survives the parent; outside it is
// started directly on the engine.
func (t *Tasks) Create(ctx context.Context, req TaskRequest) (*HitlTask, error) {
	scope, err := t.resolver.Resolve(ctx)
	if err != nil {
		return nil, err
	}

	info, ambientErr := runctx.FromContext(ctx)
	inWorkflow := ambientErr == nil && info.Kind == runctx.KindWorkflow

	taskID := req.TaskID
	if taskID == "" {
		if inWorkflow {
			taskID = info.Workflow.NewUUID()
		} else {
			taskID = uuid.NewString()
		}
		req.TaskID = taskID
	}

	workflowID := identifier.Build(scope.TenantID, t.workflowType, taskID)
	taskQueue, err := identifier.TaskQueue(t.workflowType, t.systemScoped, scope.TenantID)
	if err != nil {
		return nil, err
	}
	memo := map[string]any{
		engine.MemoTenantKey:       scope.TenantID,
		engine.MemoSystemScopedKey: t.systemScoped,
	}

	task := &HitlTask{tasks: t, workflowID: workflowID, taskID: taskID}

	if inWorkflow {
		child, err := info.Workflow.StartChildWorkflow(engine.ChildWorkflowRequest{
			ID:                workflowID,
			Workflow:          t.workflowType,
			TaskQueue:         taskQueue,
			Input:             req,
			Memo:              memo,
			ParentClosePolicy: engine.ParentCloseAbandon,
		})
		if err != nil {
			return nil, err
		}
		// The child must be accepted before the parent may complete,
		// otherwise abandonment can lose the start.
		if err := child.WaitForStart(); err != nil {
			return nil, err
		}
		task.child = child
		return task, nil
	}

	run, err := t.client.StartWorkflow(ctx, engine.StartWorkflowRequest{
		ID:        workflowID,
		Workflow:  t.workflowType,
		TaskQueue: taskQueue,
		Input:     req,
		Memo:      memo,
	})
	if err != nil {
		return nil, err
	}
	task.run = run
	return task, nil
}

// FromWorkflowID opens a facade onto an existing task workflow, validating
// the identifier shape and the workflow type.
func (t *Tasks) FromWorkflowID(workflowID string) (*HitlTask, error) {
	parsed, err := identifier.Parse(workflowID)
	if err != nil {
		return nil, err
	}
	if parsed.WorkflowType != t.workflowType {
		return nil, fmt.Errorf("workflow %q is not a %q task", workflowID, t.workflowType)
	}
	taskID := ""
	if len(parsed.Suffixes) > 0 {
		taskID = parsed.Suffixes[0]
	}
	return &HitlTask{tasks: t, workflowID: workflowID, taskID: taskID}, nil
}

// ForTask opens a facade by task ID in the ambient tenant.
func (t *Tasks) ForTask(ctx context.Context, taskID string) (*HitlTask, error) {
	scope, err := t.resolver.Resolve(ctx)
	if err != nil {
		return nil, err
	}
	return &HitlTask{
		tasks:      t,
		workflowID: identifier.Build(scope.TenantID, t.workflowType, taskID),
		taskID:     taskID,
	}, nil
}

// TaskID returns the task identifier.
func (h *HitlTask) TaskID() string { return h.taskID }

// WorkflowID returns the canonical task workflow identifier.
func (h *HitlTask) WorkflowID() string { return h.workflowID }

// GetInfo queries the live task snapshot.
func (h *HitlTask) GetInfo(ctx context.Context) (TaskInfo, error) {
	var info TaskInfo
	if err := h.tasks.client.QueryWorkflow(ctx, h.workflowID, "", QueryGetTaskInfo, nil, &info); err != nil {
		return TaskInfo{}, err
	}
	return info, nil
}

// UpdateDraft replaces the draft while the task is pending.
func (h *HitlTask) UpdateDraft(ctx context.Context, text string) error {
	return h.tasks.client.SignalWorkflow(ctx, h.workflowID, "", SignalUpdateDraft, UpdateDraftRequest{Text: text})
}

// PerformAction performs one of the allowed actions with an optional
// comment.
func (h *HitlTask) PerformAction(ctx context.Context, action, comment string) error {
	return h.tasks.client.SignalWorkflow(ctx, h.workflowID, "", SignalPerformAction, ActionRequest{Action: action, Comment: comment})
}

// Approve performs the approve action.
func (h *HitlTask) Approve(ctx context.Context, comment string) error {
	return h.PerformAction(ctx, ActionApprove, comment)
}

// Reject performs the reject action.
func (h *HitlTask) Reject(ctx context.Context, comment string) error {
	return h.PerformAction(ctx, ActionReject, comment)
}

// IsCompleted reports whether the task reached its terminal state.
func (h *HitlTask) IsCompleted(ctx context.Context) (bool, error) {
	info, err := h.GetInfo(ctx)
	if err != nil {
		return false, err
	}
	return info.IsCompleted, nil
}

// Await blocks until the task workflow returns its result. Only available
// on the handle returned by Create.
func (h *HitlTask) Await(ctx context.Context) (Result, error) {
	var result Result
	switch {
	case h.child != nil:
		if err := h.child.Get(&result); err != nil {
			return Result{}, err
		}
	case h.run != nil:
		if err := h.run.Get(ctx, &result); err != nil {
			return Result{}, err
		}
	default:
		return Result{}, fmt.Errorf("task %q was not started by this process", h.taskID)
	}
	return result, nil
}
