package inmem

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"time"

	"github.com/google/uuid"

	"github.com/xians-ai/sdk-go/runtime/engine"
	"github.com/xians-ai/sdk-go/runtime/telemetry"
)

// retryBackoffCap compresses activity retry backoff so failing-activity
// tests do not sleep through full production delays.
const retryBackoffCap = 50 * time.Millisecond

var _ engine.WorkflowContext = (*wfCtx)(nil)

func (w *wfCtx) WorkflowID() string   { return w.r.workflowID }
func (w *wfCtx) RunID() string        { return w.r.runID }
func (w *wfCtx) WorkflowType() string { return w.r.workflowType }
func (w *wfCtx) TaskQueue() string    { return w.r.taskQueue }

func (w *wfCtx) Memo() map[string]any { return w.r.memo }

func (w *wfCtx) Now() time.Time { return time.Now() }

func (w *wfCtx) NewUUID() string { return uuid.NewString() }

func (w *wfCtx) Sleep(d time.Duration) error {
	_, err := w.AwaitWithTimeout(d, func() bool { return false })
	return err
}

func (w *wfCtx) Await(cond func() bool) error {
	if cond == nil {
		return errors.New("await condition is required")
	}
	w.r.mu.Lock()
	defer w.r.mu.Unlock()
	for !cond() {
		w.r.cond.Wait()
	}
	return nil
}

func (w *wfCtx) AwaitWithTimeout(d time.Duration, cond func() bool) (bool, error) {
	if cond == nil {
		return false, errors.New("await condition is required")
	}
	if d <= 0 {
		w.r.mu.Lock()
		defer w.r.mu.Unlock()
		return cond(), nil
	}

	expired := false
	timer := time.AfterFunc(d, func() {
		w.r.mu.Lock()
		expired = true
		w.r.cond.Broadcast()
		w.r.mu.Unlock()
	})
	defer timer.Stop()

	w.r.mu.Lock()
	defer w.r.mu.Unlock()
	for !cond() && !expired {
		w.r.cond.Wait()
	}
	return cond(), nil
}

func (w *wfCtx) SetSignalHandler(name string, fn any) error {
	if err := engine.ValidateHandler(fn); err != nil {
		return fmt.Errorf("signal %q: %w", name, err)
	}
	w.r.mu.Lock()
	defer w.r.mu.Unlock()
	w.r.signalHandlers[name] = fn
	// Replay deliveries that arrived before registration.
	for _, payload := range w.r.pendingSignals[name] {
		if _, err := engine.InvokeHandler(fn, payload); err != nil {
			w.r.eng.logger.Warn(context.Background(), "signal handler failed",
				"workflow_id", w.r.workflowID, "signal", name, "err", err)
		}
	}
	delete(w.r.pendingSignals, name)
	w.r.cond.Broadcast()
	return nil
}

func (w *wfCtx) SetQueryHandler(name string, fn any) error {
	if err := engine.ValidateHandler(fn); err != nil {
		return fmt.Errorf("query %q: %w", name, err)
	}
	w.r.mu.Lock()
	defer w.r.mu.Unlock()
	w.r.queryHandlers[name] = fn
	return nil
}

func (w *wfCtx) SetUpdateHandler(name string, fn any, validator any) error {
	if err := engine.ValidateHandler(fn); err != nil {
		return fmt.Errorf("update %q: %w", name, err)
	}
	if validator != nil {
		if err := engine.ValidateHandler(validator); err != nil {
			return fmt.Errorf("update validator %q: %w", name, err)
		}
	}
	w.r.mu.Lock()
	defer w.r.mu.Unlock()
	w.r.updateHandlers[name] = handlerSet{fn: fn, validator: validator}
	return nil
}

// ExecuteActivity invokes the registered activity inline, honoring the retry
// policy with compressed backoff.
func (w *wfCtx) ExecuteActivity(req engine.ActivityRequest, result any) error {
	fn, ok := w.r.eng.activity(req.Name)
	if !ok {
		return fmt.Errorf("inmem engine: activity %q is not registered", req.Name)
	}
	input, err := engine.MarshalPayload(req.Input)
	if err != nil {
		return err
	}

	defaults := engine.DefaultActivityOptions()
	policy := req.RetryPolicy
	if policy.MaxAttempts == 0 {
		policy = defaults.RetryPolicy
	}

	actx := engine.WithActivityInfo(context.Background(), engine.ActivityInfo{
		ActivityName: req.Name,
		WorkflowID:   w.r.workflowID,
		RunID:        w.r.runID,
		WorkflowType: w.r.workflowType,
		TaskQueue:    w.r.taskQueue,
	})

	backoff := policy.InitialInterval
	if backoff > retryBackoffCap {
		backoff = retryBackoffCap
	}
	var lastErr error
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		out, invokeErr := invokeActivity(fn, actx, input)
		if invokeErr == nil {
			return reencode(out, result)
		}
		lastErr = invokeErr
		if attempt < policy.MaxAttempts {
			time.Sleep(backoff)
			if policy.BackoffCoefficient > 1 {
				backoff = time.Duration(float64(backoff) * policy.BackoffCoefficient)
				if backoff > retryBackoffCap {
					backoff = retryBackoffCap
				}
			}
		}
	}
	return lastErr
}

// invokeActivity calls a typed activity handler
// func(context.Context, In) (Out, error), decoding input into In.
func invokeActivity(fn any, ctx context.Context, input engine.JSONPayload) (any, error) {
	fv := reflect.ValueOf(fn)
	ft := fv.Type()
	if ft.Kind() != reflect.Func || ft.NumIn() < 1 || ft.NumIn() > 2 {
		return nil, fmt.Errorf("activity handler has unsupported shape %T", fn)
	}

	args := []reflect.Value{reflect.ValueOf(ctx)}
	if ft.NumIn() == 2 {
		argPtr := reflect.New(ft.In(1))
		if err := input.Decode(argPtr.Interface()); err != nil {
			return nil, fmt.Errorf("decode activity input: %w", err)
		}
		args = append(args, argPtr.Elem())
	}

	outs := fv.Call(args)
	var result any
	var err error
	for _, out := range outs {
		if out.Type().Implements(errType) {
			if !out.IsNil() {
				err = out.Interface().(error)
			}
			continue
		}
		result = out.Interface()
	}
	return result, err
}

var errType = reflect.TypeOf((*error)(nil)).Elem()

func (w *wfCtx) StartChildWorkflow(req engine.ChildWorkflowRequest) (engine.ChildWorkflowHandle, error) {
	started, err := w.r.eng.StartWorkflow(context.Background(), engine.StartWorkflowRequest{
		ID:               req.ID,
		Workflow:         req.Workflow,
		TaskQueue:        req.TaskQueue,
		Input:            req.Input,
		Memo:             req.Memo,
		ExecutionTimeout: req.ExecutionTimeout,
		RetryPolicy:      req.RetryPolicy,
	})
	if err != nil {
		return nil, err
	}
	return &childHandle{inner: started}, nil
}

func (w *wfCtx) SignalExternal(workflowID, name string, arg any) error {
	return w.r.eng.SignalWorkflow(context.Background(), workflowID, "", name, arg)
}

func (w *wfCtx) SideEffect(fn func() any, result any) error {
	if fn == nil {
		return errors.New("side effect function is required")
	}
	return reencode(fn(), result)
}

func (w *wfCtx) Logger() telemetry.Logger { return w.r.eng.logger }

func (h *childHandle) WaitForStart() error { return nil }

func (h *childHandle) Get(result any) error {
	return h.inner.Get(context.Background(), result)
}
