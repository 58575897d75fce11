// Package engine defines the durable workflow engine abstractions consumed by
// the runtime. It provides a pluggable interface so the runtime can target
// Temporal, custom engines, or in-memory implementations without modification.
// The engine itself (history, timers, replay) is an external collaborator;
// only the surface below is assumed.
package engine

import (
	"context"
	"time"
)

type (
	// Engine combines the client surface with worker construction. One Engine
	// is created per platform and shared by all services.
	Engine interface {
		Client

		// NewWorker creates a worker polling the given task queue. Workflows
		// and activities must be registered before Run is called.
		NewWorker(taskQueue string, opts WorkerOptions) Worker
	}

	// Client exposes the engine operations available outside workflow code:
	// starting executions, signaling, querying, updating, and managing
	// schedules.
	Client interface {
		// StartWorkflow initiates a workflow execution and returns a run
		// handle. The workflow ID in req must be unique per engine scope
		// unless the reuse policy allows duplicates.
		StartWorkflow(ctx context.Context, req StartWorkflowRequest) (WorkflowRun, error)

		// SignalWorkflow delivers a fire-and-forget signal to a running
		// workflow. An empty runID targets the latest run.
		SignalWorkflow(ctx context.Context, workflowID, runID, name string, arg any) error

		// SignalWithStartWorkflow delivers a signal, starting the workflow
		// first if no run is open.
		SignalWithStartWorkflow(ctx context.Context, req StartWorkflowRequest, signalName string, signalArg any) (WorkflowRun, error)

		// QueryWorkflow invokes a read-only query handler on a running
		// workflow and decodes the answer into result.
		QueryWorkflow(ctx context.Context, workflowID, runID, name string, arg any, result any) error

		// UpdateWorkflow invokes an update handler on a running workflow,
		// waits for its durable result, and decodes it into result. The
		// target's validator (if registered) may reject the update before
		// any state is persisted.
		UpdateWorkflow(ctx context.Context, workflowID, runID, name string, arg any, result any) error

		// DescribeWorkflow reports whether the workflow execution exists and
		// whether it is still running.
		DescribeWorkflow(ctx context.Context, workflowID, runID string) (WorkflowStatus, error)

		// CreateSchedule registers a new schedule. Returns
		// ErrScheduleAlreadyExists when the schedule ID is taken.
		CreateSchedule(ctx context.Context, req ScheduleRequest) (ScheduleHandle, error)

		// GetScheduleHandle returns a handle for an existing schedule without
		// verifying its existence; operations on the handle surface
		// ErrScheduleNotFound.
		GetScheduleHandle(scheduleID string) ScheduleHandle

		// ListSchedules returns the schedules visible to the client. An empty
		// query lists everything.
		ListSchedules(ctx context.Context, query string) ([]ScheduleListEntry, error)

		// CheckHealth verifies connectivity with the engine backend.
		CheckHealth(ctx context.Context) error

		// Close releases the underlying connection.
		Close()
	}

	// Worker hosts workflow and activity executions for one task queue.
	Worker interface {
		// RegisterWorkflow binds a workflow type name to its handler.
		RegisterWorkflow(name string, fn WorkflowFunc)

		// RegisterActivity binds an activity name to a handler of the form
		// func(context.Context, In) (Out, error). Instance-bound methods are
		// registered by passing the bound method value.
		RegisterActivity(name string, fn any)

		// Run polls the task queue until ctx is cancelled. It returns the
		// first fatal polling error, or nil on graceful shutdown.
		Run(ctx context.Context) error
	}

	// WorkflowFunc is the engine-agnostic workflow entry point. Input decodes
	// the start payload; the returned value is serialized as the workflow
	// result. The function must be deterministic and perform all I/O through
	// the WorkflowContext.
	WorkflowFunc func(wctx WorkflowContext, input Payload) (any, error)

	// Payload is a lazily decoded argument. Workflow and handler inputs are
	// delivered as payloads so one registration path serves all types.
	Payload interface {
		// Decode unmarshals the payload into the pointed-to value.
		Decode(into any) error
	}

	// WorkflowRun identifies a started workflow execution.
	WorkflowRun interface {
		ID() string
		RunID() string
		// Get blocks until the workflow completes and decodes its result.
		Get(ctx context.Context, result any) error
	}

	// WorkflowStatus describes an execution as seen by DescribeWorkflow.
	WorkflowStatus struct {
		Exists  bool
		Running bool
	}

	// IDReusePolicy controls workflow ID collisions on start.
	IDReusePolicy int

	// ParentClosePolicy controls what happens to a child workflow when its
	// parent closes.
	ParentClosePolicy int

	// StartWorkflowRequest describes how to launch a workflow execution.
	StartWorkflowRequest struct {
		// ID is the workflow identifier, canonical form
		// "tenant:workflowType[:suffix...]".
		ID string
		// Workflow names the registered workflow type to execute.
		Workflow string
		// TaskQueue routes the execution to a worker pool.
		TaskQueue string
		// Input is serialized and delivered to the handler as a Payload.
		Input any
		// Memo propagates small metadata (tenant, system scope) alongside the
		// execution so downstream validators need not reparse IDs.
		Memo map[string]any
		// SearchAttributes captures indexed metadata for visibility queries.
		SearchAttributes map[string]any
		// IDReusePolicy controls collisions with closed executions.
		IDReusePolicy IDReusePolicy
		// RetryPolicy restarts the whole workflow on failure. Zero disables.
		RetryPolicy RetryPolicy
		// ExecutionTimeout bounds the whole execution. Zero means unbounded.
		ExecutionTimeout time.Duration
	}

	// RetryPolicy defines retry semantics shared by workflows and activities.
	// Zero-valued fields fall back to engine defaults.
	RetryPolicy struct {
		MaxAttempts        int
		InitialInterval    time.Duration
		BackoffCoefficient float64
		MaxInterval        time.Duration
		NonRetryableErrors []string
	}

	// WorkerOptions tunes a worker created by NewWorker.
	WorkerOptions struct {
		// Identity labels the worker in engine diagnostics.
		Identity string
		// MaxConcurrentActivities caps parallel activity executions.
		// Zero uses the engine default.
		MaxConcurrentActivities int
		// MaxConcurrentWorkflowTasks caps parallel workflow tasks.
		// Zero uses the engine default.
		MaxConcurrentWorkflowTasks int
	}
)

const (
	// IDReusePolicyAllowDuplicate permits restarting a closed workflow under
	// the same ID.
	IDReusePolicyAllowDuplicate IDReusePolicy = iota
	// IDReusePolicyRejectDuplicate rejects any reuse of a known ID.
	IDReusePolicyRejectDuplicate
	// IDReusePolicyAllowDuplicateFailedOnly permits reuse only after failure.
	IDReusePolicyAllowDuplicateFailedOnly
)

const (
	// ParentCloseAbandon lets the child keep running after the parent closes.
	ParentCloseAbandon ParentClosePolicy = iota
	// ParentCloseTerminate terminates the child with the parent.
	ParentCloseTerminate
	// ParentCloseRequestCancel requests child cancellation.
	ParentCloseRequestCancel
)

// MemoTenantKey and MemoSystemScopedKey name the memo fields every start
// request stamps so downstream validators can read tenancy without reparsing
// workflow IDs.
const (
	MemoTenantKey       = "tenantId"
	MemoSystemScopedKey = "systemScoped"
)
