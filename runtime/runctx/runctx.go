// Package runctx carries the ambient execution context installed by the
// worker for every workflow and activity invocation. Capability services read
// tenancy, the current workflow registration, and the engine workflow context
// from here instead of having callers thread them through.
//
// The context travels on context.Context under a private key: workers install
// it when an invocation starts and it dies with the invocation. Outside
// workflow and activity code the accessors fail with ErrNoAmbientContext.
package runctx

import (
	"context"
	"errors"

	"github.com/xians-ai/sdk-go/runtime/engine"
)

// ErrNoAmbientContext reports use of a tenant-scoped API outside workflow or
// activity code.
var ErrNoAmbientContext = errors.New("no ambient workflow or activity context")

type (
	// Kind distinguishes workflow from activity invocations.
	Kind int

	// Registry resolves agent and workflow registrations. The platform owns
	// the single implementation; services hold it as a non-owning reference.
	Registry interface {
		// WorkflowByType returns the registration for a workflow type.
		WorkflowByType(workflowType string) (RegisteredWorkflow, bool)
		// AgentByName returns a registered agent.
		AgentByName(name string) (RegisteredAgent, bool)
	}

	// RegisteredAgent is the read side of an agent registration.
	RegisteredAgent interface {
		Name() string
		SystemScoped() bool
		// DefaultTenant is the tenant from the agent's credentials; empty
		// for system-scoped agents outside an invocation.
		DefaultTenant() string
	}

	// RegisteredWorkflow is the read side of a workflow registration.
	RegisteredWorkflow interface {
		Type() string
		Agent() RegisteredAgent
		IsTask() bool
		IsDefault() bool
	}

	// Info is the ambient state of one invocation.
	Info struct {
		Kind         Kind
		TenantID     string
		AgentName    string
		WorkflowType string
		WorkflowID   string
		RunID        string
		SystemScoped bool
		// Registry locates the current workflow and sibling agents.
		Registry Registry
		// Workflow is the engine workflow context; non-nil only when
		// Kind == KindWorkflow.
		Workflow engine.WorkflowContext
	}

	ctxKey struct{}
)

const (
	// KindNone marks a context with no ambient invocation.
	KindNone Kind = iota
	// KindWorkflow marks workflow code.
	KindWorkflow
	// KindActivity marks activity code.
	KindActivity
)

// Install returns a child context carrying info. Workers call this when an
// invocation starts; everything downstream reads it via FromContext.
func Install(ctx context.Context, info *Info) context.Context {
	return context.WithValue(ctx, ctxKey{}, info)
}

// FromContext returns the ambient invocation info, or ErrNoAmbientContext
// when ctx does not originate from a workflow or activity invocation.
func FromContext(ctx context.Context) (*Info, error) {
	info, ok := ctx.Value(ctxKey{}).(*Info)
	if !ok || info == nil || info.Kind == KindNone {
		return nil, ErrNoAmbientContext
	}
	return info, nil
}

// TenantID returns the ambient tenant.
func TenantID(ctx context.Context) (string, error) {
	info, err := FromContext(ctx)
	if err != nil {
		return "", err
	}
	return info.TenantID, nil
}

// IsInWorkflow reports whether ctx is workflow code.
func IsInWorkflow(ctx context.Context) bool {
	info, err := FromContext(ctx)
	return err == nil && info.Kind == KindWorkflow
}

// IsInActivity reports whether ctx is activity code.
func IsInActivity(ctx context.Context) bool {
	info, err := FromContext(ctx)
	return err == nil && info.Kind == KindActivity
}

// CurrentWorkflow returns the registration matching the ambient workflow
// type.
func CurrentWorkflow(ctx context.Context) (RegisteredWorkflow, error) {
	info, err := FromContext(ctx)
	if err != nil {
		return nil, err
	}
	if info.Registry == nil {
		return nil, errors.New("ambient context carries no registry")
	}
	wf, ok := info.Registry.WorkflowByType(info.WorkflowType)
	if !ok {
		return nil, errors.New("workflow type " + info.WorkflowType + " is not registered")
	}
	return wf, nil
}

// TryGetAgent looks up a registered agent by name from the ambient registry.
func TryGetAgent(ctx context.Context, name string) (RegisteredAgent, bool) {
	info, err := FromContext(ctx)
	if err != nil || info.Registry == nil {
		return nil, false
	}
	return info.Registry.AgentByName(name)
}
