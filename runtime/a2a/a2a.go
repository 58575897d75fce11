// Package a2a implements agent-to-agent messaging: signals, read-only
// queries, and synchronous updates against another workflow, plus the
// built-in chat convention that runs a target workflow's user-message
// handler in an isolated activity and captures its first reply.
//
// Every dispatch stamps the caller's tenant on the outbound envelope.
// Cross-tenant dispatch is refused unless the calling agent is
// system-scoped.
package a2a

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/xians-ai/sdk-go/runtime/agentscope"
	"github.com/xians-ai/sdk-go/runtime/engine"
	"github.com/xians-ai/sdk-go/runtime/executor"
	"github.com/xians-ai/sdk-go/runtime/identifier"
	"github.com/xians-ai/sdk-go/runtime/runctx"
	"github.com/xians-ai/sdk-go/runtime/telemetry"
)

type (
	// Target addresses a destination workflow either by full identifier or
	// by (workflow type, tenant, suffix). An empty Tenant means the
	// caller's own tenant.
	Target struct {
		WorkflowID   string   `json:"workflowId,omitempty"`
		WorkflowType string   `json:"workflowType,omitempty"`
		Tenant       string   `json:"tenant,omitempty"`
		Suffixes     []string `json:"suffixes,omitempty"`
	}

	// Dispatcher sends signals, queries, and updates on behalf of one
	// agent.
	Dispatcher struct {
		client       engine.Client
		resolver     agentscope.Resolver
		systemScoped bool
		invoker      ChatInvoker
		logger       telemetry.Logger
	}

	// DispatcherOptions configures a Dispatcher.
	DispatcherOptions struct {
		Client       engine.Client
		Resolver     agentscope.Resolver
		SystemScoped bool
		// ChatInvoker runs built-in chat handlers in-process; the platform
		// provides it.
		ChatInvoker ChatInvoker
		Logger      telemetry.Logger
	}
)

// NewDispatcher builds the per-agent dispatcher.
func NewDispatcher(opts DispatcherOptions) *Dispatcher {
	logger := opts.Logger
	if logger == nil {
		logger = telemetry.NewNoopLogger()
	}
	return &Dispatcher{
		client:       opts.Client,
		resolver:     opts.Resolver,
		systemScoped: opts.SystemScoped,
		invoker:      opts.ChatInvoker,
		logger:       logger,
	}
}

// resolve turns a target into a concrete workflow identifier and enforces
// the tenant boundary: the destination tenant must equal the caller's unless
// the caller is system-scoped.
func (d *Dispatcher) resolve(ctx context.Context, target Target) (string, error) {
	scope, err := d.resolver.Resolve(ctx)
	if err != nil {
		return "", err
	}

	workflowID := target.WorkflowID
	if workflowID == "" {
		if target.WorkflowType == "" {
			return "", fmt.Errorf("a2a: target needs a workflow id or type")
		}
		tenant := target.Tenant
		if tenant == "" {
			tenant = scope.TenantID
		}
		workflowID = identifier.Build(tenant, target.WorkflowType, target.Suffixes...)
	}

	parsed, err := identifier.Parse(workflowID)
	if err != nil {
		return "", err
	}
	if parsed.Tenant != scope.TenantID && !d.systemScoped {
		d.logger.Warn(ctx, "cross-tenant dispatch refused",
			"caller_tenant", scope.TenantID, "target_tenant", parsed.Tenant)
		return "", fmt.Errorf("a2a: tenant %q may not dispatch to tenant %q", scope.TenantID, parsed.Tenant)
	}
	return workflowID, nil
}

// SendSignal delivers a fire-and-forget signal to the target workflow.
func (d *Dispatcher) SendSignal(ctx context.Context, target Target, name string, arg any) error {
	workflowID, err := d.resolve(ctx, target)
	if err != nil {
		return err
	}
	in, err := newEnvelope(ctx, workflowID, name, arg)
	if err != nil {
		return err
	}
	return executor.Run(ctx, ActivitySignal, in, func(c context.Context) error {
		return d.signal(c, in)
	})
}

// Query invokes a read-only query handler on the target workflow and decodes
// the answer into result.
func (d *Dispatcher) Query(ctx context.Context, target Target, name string, arg any, result any) error {
	workflowID, err := d.resolve(ctx, target)
	if err != nil {
		return err
	}
	in, err := newEnvelope(ctx, workflowID, name, arg)
	if err != nil {
		return err
	}
	raw, err := executor.Execute(ctx, ActivityQuery, in, func(c context.Context) (json.RawMessage, error) {
		return d.query(c, in)
	})
	if err != nil {
		return err
	}
	return decodeRaw(raw, result)
}

// Update invokes a durable update handler on the target workflow, waiting
// for its result. The target's validator may reject the update before any
// state is persisted; the rejection reaches the caller.
func (d *Dispatcher) Update(ctx context.Context, target Target, name string, arg any, result any) error {
	workflowID, err := d.resolve(ctx, target)
	if err != nil {
		return err
	}
	in, err := newEnvelope(ctx, workflowID, name, arg)
	if err != nil {
		return err
	}
	raw, err := executor.Execute(ctx, ActivityUpdate, in, func(c context.Context) (json.RawMessage, error) {
		return d.update(c, in)
	})
	if err != nil {
		return err
	}
	return decodeRaw(raw, result)
}

// SendChatToBuiltIn runs the named workflow's user-message handler in an
// isolated activity on the target's task queue and returns its first reply.
func (d *Dispatcher) SendChatToBuiltIn(ctx context.Context, workflowType, message string) (string, error) {
	scope, err := d.resolver.Resolve(ctx)
	if err != nil {
		return "", err
	}
	info, err := runctx.FromContext(ctx)
	if err != nil {
		return "", err
	}
	in := ChatInput{
		WorkflowType:  workflowType,
		TenantID:      scope.TenantID,
		ParticipantID: info.WorkflowID,
		Text:          message,
	}
	queue, err := identifier.TaskQueue(workflowType, d.systemScoped, scope.TenantID)
	if err != nil {
		return "", err
	}

	// Workflow path: explicit queue override so the activity lands on a
	// worker hosting the target workflow's registrations.
	if info.Kind == runctx.KindWorkflow {
		var out ChatResult
		if err := info.Workflow.ExecuteActivity(engine.ActivityRequest{
			Name:      ActivityChat,
			Input:     in,
			TaskQueue: queue,
		}, &out); err != nil {
			return "", err
		}
		return out.Reply, nil
	}
	out, err := d.chat(ctx, in)
	if err != nil {
		return "", err
	}
	return out.Reply, nil
}

func newEnvelope(ctx context.Context, workflowID, name string, arg any) (Envelope, error) {
	scope := ""
	if info, err := runctx.FromContext(ctx); err == nil {
		scope = info.TenantID
	}
	payload, err := engine.MarshalPayload(arg)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{
		WorkflowID:   workflowID,
		Name:         name,
		Arg:          json.RawMessage(payload),
		CallerTenant: scope,
	}, nil
}

func decodeRaw(raw json.RawMessage, result any) error {
	if result == nil || len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, result)
}
