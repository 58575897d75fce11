// Package temporal adapts the Temporal Go SDK to the runtime's engine
// abstraction. One Engine wraps one Temporal client; workers are created per
// task queue and owned by the platform.
package temporal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	enumspb "go.temporal.io/api/enums/v1"
	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/client"
	temporalotel "go.temporal.io/sdk/contrib/opentelemetry"
	"go.temporal.io/sdk/converter"
	sdktemporal "go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"

	"github.com/xians-ai/sdk-go/runtime/engine"
	"github.com/xians-ai/sdk-go/runtime/telemetry"
)

type (
	// Options configures the Temporal adapter. Either a pre-built Client or
	// ClientOptions must be provided; the adapter wires OTEL instrumentation
	// into clients it builds itself.
	Options struct {
		// Client is an optional pre-configured Temporal client.
		Client client.Client

		// ClientOptions describe how to build a lazy client when Client is
		// nil. Only connection fields need to be set.
		ClientOptions *client.Options

		// DisableTracing skips the OTEL tracing interceptor.
		DisableTracing bool

		// DisableMetrics skips the OTEL metrics handler.
		DisableMetrics bool

		// Logger receives adapter diagnostics. Nil means noop.
		Logger telemetry.Logger
	}

	// Engine implements engine.Engine on Temporal.
	Engine struct {
		client      client.Client
		closeClient bool
		logger      telemetry.Logger
	}

	tworker struct {
		eng   *Engine
		w     worker.Worker
		queue string
	}

	workflowRun struct {
		run client.WorkflowRun
	}
)

// New constructs the adapter. The client is lazy: connectivity failures
// surface on first use, not here.
func New(opts Options) (*Engine, error) {
	logger := opts.Logger
	if logger == nil {
		logger = telemetry.NewNoopLogger()
	}

	cli := opts.Client
	closeClient := false
	if cli == nil {
		if opts.ClientOptions == nil {
			return nil, errors.New("temporal engine: client options are required when Client is nil")
		}
		clientOpts := *opts.ClientOptions
		if !opts.DisableTracing {
			tracer, err := temporalotel.NewTracingInterceptor(temporalotel.TracerOptions{})
			if err != nil {
				return nil, fmt.Errorf("temporal engine: configure tracing interceptor: %w", err)
			}
			clientOpts.Interceptors = append(clientOpts.Interceptors, tracer)
		}
		if !opts.DisableMetrics && clientOpts.MetricsHandler == nil {
			clientOpts.MetricsHandler = temporalotel.NewMetricsHandler(temporalotel.MetricsHandlerOptions{})
		}
		var err error
		cli, err = client.NewLazyClient(clientOpts)
		if err != nil {
			return nil, fmt.Errorf("temporal engine: create client: %w", err)
		}
		closeClient = true
	}

	return &Engine{client: cli, closeClient: closeClient, logger: logger}, nil
}

var _ engine.Engine = (*Engine)(nil)

// NewWorker creates a Temporal worker polling taskQueue.
func (e *Engine) NewWorker(taskQueue string, opts engine.WorkerOptions) engine.Worker {
	w := worker.New(e.client, taskQueue, worker.Options{
		Identity:                               opts.Identity,
		MaxConcurrentActivityExecutionSize:     opts.MaxConcurrentActivities,
		MaxConcurrentWorkflowTaskExecutionSize: opts.MaxConcurrentWorkflowTasks,
	})
	return &tworker{eng: e, w: w, queue: taskQueue}
}

// RegisterWorkflow wraps the engine-agnostic handler so Temporal delivers
// raw JSON which the handler decodes itself. json.RawMessage keeps the
// default JSON converter from interpreting the input as base64 bytes.
func (t *tworker) RegisterWorkflow(name string, fn engine.WorkflowFunc) {
	wrapped := func(tctx workflow.Context, input json.RawMessage) (any, error) {
		wctx := newWorkflowContext(t.eng, tctx)
		return fn(wctx, engine.JSONPayload(input))
	}
	t.w.RegisterWorkflowWithOptions(wrapped, workflow.RegisterOptions{Name: name})
}

// RegisterActivity registers a typed activity handler, wrapped so its
// context carries engine.ActivityInfo.
func (t *tworker) RegisterActivity(name string, fn any) {
	t.w.RegisterActivityWithOptions(wrapActivity(name, fn), activity.RegisterOptions{Name: name})
}

// wrapActivity rebuilds fn with identical signature but a context enriched
// with the invoking workflow's identity.
func wrapActivity(name string, fn any) any {
	fv := reflect.ValueOf(fn)
	ft := fv.Type()
	if ft.Kind() != reflect.Func || ft.NumIn() == 0 || ft.In(0) != reflect.TypeOf((*context.Context)(nil)).Elem() {
		panic(fmt.Sprintf("activity %q must be func(context.Context, ...)", name))
	}
	wrapper := reflect.MakeFunc(ft, func(args []reflect.Value) []reflect.Value {
		ctx := args[0].Interface().(context.Context)
		info := activity.GetInfo(ctx)
		ctx = engine.WithActivityInfo(ctx, engine.ActivityInfo{
			ActivityName: info.ActivityType.Name,
			WorkflowID:   info.WorkflowExecution.ID,
			RunID:        info.WorkflowExecution.RunID,
			WorkflowType: info.WorkflowType.Name,
			TaskQueue:    info.TaskQueue,
		})
		args[0] = reflect.ValueOf(ctx)
		return fv.Call(args)
	})
	return wrapper.Interface()
}

// Run starts the worker and blocks until ctx is cancelled.
func (t *tworker) Run(ctx context.Context) error {
	if err := t.w.Start(); err != nil {
		return fmt.Errorf("temporal worker %q: %w", t.queue, err)
	}
	<-ctx.Done()
	t.w.Stop()
	return nil
}

// StartWorkflow launches an execution with tenancy memo attached.
func (e *Engine) StartWorkflow(ctx context.Context, req engine.StartWorkflowRequest) (engine.WorkflowRun, error) {
	run, err := e.client.ExecuteWorkflow(ctx, startOptions(req), req.Workflow, req.Input)
	if err != nil {
		return nil, err
	}
	return &workflowRun{run: run}, nil
}

func startOptions(req engine.StartWorkflowRequest) client.StartWorkflowOptions {
	return client.StartWorkflowOptions{
		ID:                       req.ID,
		TaskQueue:                req.TaskQueue,
		Memo:                     req.Memo,
		SearchAttributes:         req.SearchAttributes,
		WorkflowIDReusePolicy:    convertIDReusePolicy(req.IDReusePolicy),
		RetryPolicy:              convertRetryPolicy(req.RetryPolicy),
		WorkflowExecutionTimeout: req.ExecutionTimeout,
	}
}

// SignalWorkflow delivers a fire-and-forget signal.
func (e *Engine) SignalWorkflow(ctx context.Context, workflowID, runID, name string, arg any) error {
	return e.client.SignalWorkflow(ctx, workflowID, runID, name, arg)
}

// SignalWithStartWorkflow signals, starting the workflow when no run is
// open.
func (e *Engine) SignalWithStartWorkflow(ctx context.Context, req engine.StartWorkflowRequest, signalName string, signalArg any) (engine.WorkflowRun, error) {
	run, err := e.client.SignalWithStartWorkflow(ctx, req.ID, signalName, signalArg, startOptions(req), req.Workflow, req.Input)
	if err != nil {
		return nil, err
	}
	return &workflowRun{run: run}, nil
}

// QueryWorkflow invokes a query handler and decodes the answer.
func (e *Engine) QueryWorkflow(ctx context.Context, workflowID, runID, name string, arg any, result any) error {
	var value converter.EncodedValue
	var err error
	if arg == nil {
		value, err = e.client.QueryWorkflow(ctx, workflowID, runID, name)
	} else {
		value, err = e.client.QueryWorkflow(ctx, workflowID, runID, name, arg)
	}
	if err != nil {
		return err
	}
	if result == nil {
		return nil
	}
	return value.Get(result)
}

// UpdateWorkflow runs a durable update and waits for its completed result.
func (e *Engine) UpdateWorkflow(ctx context.Context, workflowID, runID, name string, arg any, result any) error {
	opts := client.UpdateWorkflowOptions{
		WorkflowID:   workflowID,
		RunID:        runID,
		UpdateName:   name,
		WaitForStage: client.WorkflowUpdateStageCompleted,
	}
	if arg != nil {
		opts.Args = []any{arg}
	}
	handle, err := e.client.UpdateWorkflow(ctx, opts)
	if err != nil {
		return err
	}
	if result == nil {
		var discard any
		return handle.Get(ctx, &discard)
	}
	return handle.Get(ctx, result)
}

// DescribeWorkflow reports execution existence and running state.
func (e *Engine) DescribeWorkflow(ctx context.Context, workflowID, runID string) (engine.WorkflowStatus, error) {
	resp, err := e.client.DescribeWorkflowExecution(ctx, workflowID, runID)
	if err != nil {
		var notFound *serviceerror.NotFound
		if errors.As(err, &notFound) {
			return engine.WorkflowStatus{}, nil
		}
		return engine.WorkflowStatus{}, err
	}
	status := resp.GetWorkflowExecutionInfo().GetStatus()
	return engine.WorkflowStatus{
		Exists:  true,
		Running: status == enumspb.WORKFLOW_EXECUTION_STATUS_RUNNING,
	}, nil
}

// CheckHealth verifies connectivity with the Temporal frontend.
func (e *Engine) CheckHealth(ctx context.Context) error {
	_, err := e.client.CheckHealth(ctx, &client.CheckHealthRequest{})
	return err
}

// Close releases the client when the adapter owns it.
func (e *Engine) Close() {
	if e.closeClient {
		e.client.Close()
	}
}

func (r *workflowRun) ID() string    { return r.run.GetID() }
func (r *workflowRun) RunID() string { return r.run.GetRunID() }

func (r *workflowRun) Get(ctx context.Context, result any) error {
	return r.run.Get(ctx, result)
}

func convertIDReusePolicy(p engine.IDReusePolicy) enumspb.WorkflowIdReusePolicy {
	switch p {
	case engine.IDReusePolicyRejectDuplicate:
		return enumspb.WORKFLOW_ID_REUSE_POLICY_REJECT_DUPLICATE
	case engine.IDReusePolicyAllowDuplicateFailedOnly:
		return enumspb.WORKFLOW_ID_REUSE_POLICY_ALLOW_DUPLICATE_FAILED_ONLY
	default:
		return enumspb.WORKFLOW_ID_REUSE_POLICY_ALLOW_DUPLICATE
	}
}

func convertRetryPolicy(r engine.RetryPolicy) *sdktemporal.RetryPolicy {
	if r.MaxAttempts == 0 && r.InitialInterval == 0 && r.BackoffCoefficient == 0 {
		return nil
	}
	policy := &sdktemporal.RetryPolicy{}
	if r.MaxAttempts > 0 {
		policy.MaximumAttempts = int32(r.MaxAttempts)
	}
	if r.InitialInterval > 0 {
		policy.InitialInterval = r.InitialInterval
	}
	if r.BackoffCoefficient > 0 {
		policy.BackoffCoefficient = r.BackoffCoefficient
	}
	if r.MaxInterval > 0 {
		policy.MaximumInterval = r.MaxInterval
	}
	if len(r.NonRetryableErrors) > 0 {
		policy.NonRetryableErrorTypes = r.NonRetryableErrors
	}
	return policy
}

// isAlreadyExists reports whether err indicates a schedule or workflow ID
// collision on the server.
func isAlreadyExists(err error) bool {
	var already *serviceerror.AlreadyExists
	if errors.As(err, &already) {
		return true
	}
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "already")
}
