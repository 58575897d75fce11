package temporal

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"time"

	"github.com/google/uuid"
	enumspb "go.temporal.io/api/enums/v1"
	"go.temporal.io/sdk/converter"
	sdklog "go.temporal.io/sdk/log"
	"go.temporal.io/sdk/workflow"

	"github.com/xians-ai/sdk-go/runtime/engine"
	"github.com/xians-ai/sdk-go/runtime/telemetry"
)

type (
	wfCtx struct {
		eng        *Engine
		ctx        workflow.Context
		workflowID string
		runID      string
		wfType     string
		taskQueue  string
		logger     telemetry.Logger
	}

	childHandle struct {
		future workflow.ChildWorkflowFuture
		ctx    workflow.Context
	}

	// workflowLogger adapts Temporal's replay-safe logger onto the
	// telemetry.Logger interface. The ctx argument is ignored; Temporal
	// scopes the logger to the execution already.
	workflowLogger struct {
		l sdklog.Logger
	}
)

var _ engine.WorkflowContext = (*wfCtx)(nil)

func newWorkflowContext(e *Engine, tctx workflow.Context) *wfCtx {
	info := workflow.GetInfo(tctx)
	return &wfCtx{
		eng:        e,
		ctx:        tctx,
		workflowID: info.WorkflowExecution.ID,
		runID:      info.WorkflowExecution.RunID,
		wfType:     info.WorkflowType.Name,
		taskQueue:  info.TaskQueueName,
		logger:     workflowLogger{l: workflow.GetLogger(tctx)},
	}
}

func (w *wfCtx) WorkflowID() string   { return w.workflowID }
func (w *wfCtx) RunID() string        { return w.runID }
func (w *wfCtx) WorkflowType() string { return w.wfType }
func (w *wfCtx) TaskQueue() string    { return w.taskQueue }

// Memo decodes the execution memo into plain Go values.
func (w *wfCtx) Memo() map[string]any {
	info := workflow.GetInfo(w.ctx)
	fields := info.Memo.GetFields()
	if len(fields) == 0 {
		return nil
	}
	dc := converter.GetDefaultDataConverter()
	memo := make(map[string]any, len(fields))
	for name, payload := range fields {
		var value any
		if err := dc.FromPayload(payload, &value); err != nil {
			continue
		}
		memo[name] = value
	}
	return memo
}

func (w *wfCtx) Now() time.Time { return workflow.Now(w.ctx) }

// NewUUID generates a UUID through a side effect so replays observe the
// recorded value.
func (w *wfCtx) NewUUID() string {
	var id string
	if err := workflow.SideEffect(w.ctx, func(workflow.Context) any {
		return uuid.NewString()
	}).Get(&id); err != nil {
		// SideEffect decode can only fail on converter misconfiguration.
		panic(fmt.Sprintf("temporal engine: decode uuid side effect: %v", err))
	}
	return id
}

func (w *wfCtx) Sleep(d time.Duration) error {
	return workflow.Sleep(w.ctx, d)
}

func (w *wfCtx) Await(cond func() bool) error {
	return workflow.Await(w.ctx, cond)
}

func (w *wfCtx) AwaitWithTimeout(d time.Duration, cond func() bool) (bool, error) {
	return workflow.AwaitWithTimeout(w.ctx, d, cond)
}

// SetSignalHandler drains the named signal channel on a workflow goroutine,
// decoding each delivery into the handler's argument type. Handler errors
// are logged and swallowed: signals have no return channel.
func (w *wfCtx) SetSignalHandler(name string, fn any) error {
	if err := engine.ValidateHandler(fn); err != nil {
		return fmt.Errorf("signal %q: %w", name, err)
	}
	argType := engine.HandlerArgType(fn)
	fv := reflect.ValueOf(fn)
	logger := w.logger

	workflow.Go(w.ctx, func(gctx workflow.Context) {
		ch := workflow.GetSignalChannel(gctx, name)
		for {
			var args []reflect.Value
			if argType != nil {
				ptr := reflect.New(argType)
				if more := ch.Receive(gctx, ptr.Interface()); !more {
					return
				}
				args = append(args, ptr.Elem())
			} else {
				if more := ch.Receive(gctx, nil); !more {
					return
				}
			}
			for _, out := range fv.Call(args) {
				if out.Type().Implements(errInterface) && !out.IsNil() {
					logger.Warn(context.Background(), "signal handler failed",
						"signal", name, "err", out.Interface().(error))
				}
			}
		}
	})
	return nil
}

var errInterface = reflect.TypeOf((*error)(nil)).Elem()

func (w *wfCtx) SetQueryHandler(name string, fn any) error {
	return workflow.SetQueryHandler(w.ctx, name, fn)
}

var (
	workflowCtxType = reflect.TypeOf((*workflow.Context)(nil)).Elem()
	anyType         = reflect.TypeOf((*any)(nil)).Elem()
)

// SetUpdateHandler registers fn as a durable update handler. Temporal
// requires handlers to take workflow.Context as their first parameter, so
// the ctx-less engine handler is wrapped accordingly; validators may omit
// the context and pass through unchanged.
func (w *wfCtx) SetUpdateHandler(name string, fn any, validator any) error {
	if err := engine.ValidateHandler(fn); err != nil {
		return fmt.Errorf("update %q: %w", name, err)
	}
	fv := reflect.ValueOf(fn)
	in := []reflect.Type{workflowCtxType}
	if argType := engine.HandlerArgType(fn); argType != nil {
		in = append(in, argType)
	}
	wrappedType := reflect.FuncOf(in, []reflect.Type{anyType, errInterface}, false)
	wrapped := reflect.MakeFunc(wrappedType, func(args []reflect.Value) []reflect.Value {
		outs := fv.Call(args[1:])
		result := reflect.Zero(anyType)
		errOut := reflect.Zero(errInterface)
		for _, out := range outs {
			if out.Type().Implements(errInterface) {
				if !out.IsNil() {
					ev := reflect.New(errInterface).Elem()
					ev.Set(out)
					errOut = ev
				}
				continue
			}
			rv := reflect.New(anyType).Elem()
			rv.Set(out)
			result = rv
		}
		return []reflect.Value{result, errOut}
	})

	opts := workflow.UpdateHandlerOptions{}
	if validator != nil {
		opts.Validator = validator
	}
	return workflow.SetUpdateHandlerWithOptions(w.ctx, name, wrapped.Interface(), opts)
}

// ExecuteActivity schedules the activity with merged defaults and blocks on
// its result.
func (w *wfCtx) ExecuteActivity(req engine.ActivityRequest, result any) error {
	if req.Name == "" {
		return errors.New("activity name is required")
	}
	defaults := engine.DefaultActivityOptions()
	timeout := req.StartToCloseTimeout
	if timeout == 0 {
		timeout = defaults.StartToCloseTimeout
	}
	policy := req.RetryPolicy
	if policy.MaxAttempts == 0 && policy.InitialInterval == 0 && policy.BackoffCoefficient == 0 {
		policy = defaults.RetryPolicy
	}

	actx := workflow.WithActivityOptions(w.ctx, workflow.ActivityOptions{
		TaskQueue:           req.TaskQueue,
		StartToCloseTimeout: timeout,
		RetryPolicy:         convertRetryPolicy(policy),
	})
	fut := workflow.ExecuteActivity(actx, req.Name, req.Input)
	if result == nil {
		return fut.Get(actx, nil)
	}
	return fut.Get(actx, result)
}

func (w *wfCtx) StartChildWorkflow(req engine.ChildWorkflowRequest) (engine.ChildWorkflowHandle, error) {
	if req.Workflow == "" {
		return nil, errors.New("child workflow name is required")
	}
	cctx := workflow.WithChildOptions(w.ctx, workflow.ChildWorkflowOptions{
		WorkflowID:               req.ID,
		TaskQueue:                req.TaskQueue,
		Memo:                     req.Memo,
		ParentClosePolicy:        convertParentClosePolicy(req.ParentClosePolicy),
		WorkflowExecutionTimeout: req.ExecutionTimeout,
		RetryPolicy:              convertRetryPolicy(req.RetryPolicy),
	})
	fut := workflow.ExecuteChildWorkflow(cctx, req.Workflow, req.Input)
	return &childHandle{future: fut, ctx: cctx}, nil
}

func (w *wfCtx) SignalExternal(workflowID, name string, arg any) error {
	return workflow.SignalExternalWorkflow(w.ctx, workflowID, "", name, arg).Get(w.ctx, nil)
}

func (w *wfCtx) SideEffect(fn func() any, result any) error {
	return workflow.SideEffect(w.ctx, func(workflow.Context) any {
		return fn()
	}).Get(result)
}

func (w *wfCtx) Logger() telemetry.Logger { return w.logger }

// WaitForStart blocks until the child execution is accepted by the server.
// Required before the parent returns when the child is abandoned, otherwise
// the start may be lost with the parent.
func (h *childHandle) WaitForStart() error {
	return h.future.GetChildWorkflowExecution().Get(h.ctx, nil)
}

func (h *childHandle) Get(result any) error {
	if result == nil {
		return h.future.Get(h.ctx, nil)
	}
	return h.future.Get(h.ctx, result)
}

func convertParentClosePolicy(p engine.ParentClosePolicy) enumspb.ParentClosePolicy {
	switch p {
	case engine.ParentCloseTerminate:
		return enumspb.PARENT_CLOSE_POLICY_TERMINATE
	case engine.ParentCloseRequestCancel:
		return enumspb.PARENT_CLOSE_POLICY_REQUEST_CANCEL
	default:
		return enumspb.PARENT_CLOSE_POLICY_ABANDON
	}
}

func (l workflowLogger) Debug(_ context.Context, msg string, keyvals ...any) {
	l.l.Debug(msg, keyvals...)
}

func (l workflowLogger) Info(_ context.Context, msg string, keyvals ...any) {
	l.l.Info(msg, keyvals...)
}

func (l workflowLogger) Warn(_ context.Context, msg string, keyvals ...any) {
	l.l.Warn(msg, keyvals...)
}

func (l workflowLogger) Error(_ context.Context, msg string, keyvals ...any) {
	l.l.Error(msg, keyvals...)
}
