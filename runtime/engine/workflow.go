package engine

import (
	"time"

	"github.com/xians-ai/sdk-go/runtime/telemetry"
)

type (
	// WorkflowContext exposes engine operations to workflow handlers inside
	// the deterministic execution environment. It wraps engine-specific
	// contexts (Temporal workflow.Context, in-memory schedulers) behind a
	// uniform API.
	//
	// Determinism: all time, randomness, and I/O available here is
	// replay-safe. Workflow code must not touch wall clocks, OS threads, or
	// perform direct I/O; capability services route I/O through
	// ExecuteActivity.
	//
	// A WorkflowContext is bound to a single execution and must not escape
	// the workflow function scope.
	WorkflowContext interface {
		// WorkflowID returns the canonical workflow identifier.
		WorkflowID() string

		// RunID returns the engine-assigned run identifier.
		RunID() string

		// WorkflowType returns the registered workflow type name.
		WorkflowType() string

		// TaskQueue returns the queue this execution was dispatched on.
		TaskQueue() string

		// Memo returns the propagated start metadata. Values are decoded
		// into plain Go types (string, bool, float64, ...).
		Memo() map[string]any

		// Now returns the deterministic workflow time.
		Now() time.Time

		// NewUUID returns a deterministic, replay-stable UUID string.
		NewUUID() string

		// Sleep suspends the workflow for d of engine time.
		Sleep(d time.Duration) error

		// Await suspends until cond returns true. Cond is re-evaluated after
		// every workflow event and must be side-effect free.
		Await(cond func() bool) error

		// AwaitWithTimeout is Await bounded by d of engine time. It reports
		// whether cond became true (false means the timer fired first).
		AwaitWithTimeout(d time.Duration, cond func() bool) (bool, error)

		// SetSignalHandler registers fn, of the form func(T) or
		// func(T) error, to be invoked on the workflow scheduler for every
		// delivery of the named signal. Handler errors are logged, never
		// surfaced to the sender: signals have no return channel.
		SetSignalHandler(name string, fn any) error

		// SetQueryHandler registers fn, of the form func(T) (R, error) or
		// func() (R, error), answering the named query without mutating
		// workflow state.
		SetQueryHandler(name string, fn any) error

		// SetUpdateHandler registers fn, of the form func(T) (R, error), as
		// the durable update handler for name. A non-nil validator of the
		// form func(T) error runs before the update is accepted into
		// history; its rejection reaches the caller synchronously.
		SetUpdateHandler(name string, fn any, validator any) error

		// ExecuteActivity schedules the named activity and blocks until its
		// result decodes into result.
		ExecuteActivity(req ActivityRequest, result any) error

		// StartChildWorkflow launches a child execution. The child inherits
		// nothing implicitly; tenancy flows through req.Memo.
		StartChildWorkflow(req ChildWorkflowRequest) (ChildWorkflowHandle, error)

		// SignalExternal delivers a signal to another workflow by ID.
		SignalExternal(workflowID, name string, arg any) error

		// SideEffect records the result of fn in history so replays observe
		// the original value. The recorded value decodes into result.
		SideEffect(fn func() any, result any) error

		// Logger returns a replay-safe logger scoped to this execution.
		Logger() telemetry.Logger
	}

	// ActivityRequest schedules one activity invocation from a workflow.
	ActivityRequest struct {
		// Name identifies a registered activity.
		Name string
		// Input is serialized and handed to the activity handler.
		Input any
		// TaskQueue optionally overrides the workflow's queue.
		TaskQueue string
		// StartToCloseTimeout bounds a single attempt. Zero uses
		// DefaultActivityOptions.
		StartToCloseTimeout time.Duration
		// RetryPolicy overrides the default activity retry policy.
		RetryPolicy RetryPolicy
	}

	// ChildWorkflowRequest launches a child execution from a workflow.
	ChildWorkflowRequest struct {
		ID                string
		Workflow          string
		TaskQueue         string
		Input             any
		Memo              map[string]any
		ParentClosePolicy ParentClosePolicy
		ExecutionTimeout  time.Duration
		RetryPolicy       RetryPolicy
	}

	// ChildWorkflowHandle tracks a started child execution.
	ChildWorkflowHandle interface {
		// WaitForStart blocks until the engine has accepted the child
		// execution, guaranteeing it survives the parent when abandoned.
		WaitForStart() error

		// Get blocks until the child completes and decodes its result.
		Get(result any) error
	}
)

// DefaultActivityOptions are applied when an ActivityRequest leaves its
// timeout or retry policy zero-valued.
func DefaultActivityOptions() ActivityRequest {
	return ActivityRequest{
		StartToCloseTimeout: 2 * time.Minute,
		RetryPolicy: RetryPolicy{
			MaxAttempts:        3,
			InitialInterval:    5 * time.Second,
			BackoffCoefficient: 2,
		},
	}
}
