package xians

import (
	"context"
	"errors"
	"fmt"

	"github.com/xians-ai/sdk-go/runtime/a2a"
	"github.com/xians-ai/sdk-go/runtime/document"
	"github.com/xians-ai/sdk-go/runtime/hitl"
	"github.com/xians-ai/sdk-go/runtime/identifier"
	"github.com/xians-ai/sdk-go/runtime/knowledge"
	"github.com/xians-ai/sdk-go/runtime/messaging"
	"github.com/xians-ai/sdk-go/runtime/runctx"
	"github.com/xians-ai/sdk-go/runtime/schedule"
	"github.com/xians-ai/sdk-go/runtime/secret"
)

type (
	// Handler reacts to one user message delivered to a workflow. The
	// handler runs inside workflow code: all I/O must go through the
	// capability facades, which route through activities automatically.
	Handler func(ctx context.Context, msg *messaging.IncomingMessage) error

	// Agent is a registered runtime unit owning workflow definitions and
	// capability facades. Register agents and workflows before Platform
	// Start; registrations are immutable afterwards.
	Agent struct {
		platform     *Platform
		name         string
		systemScoped bool

		workflows []*Workflow

		// Capability facades, wired during platform assembly.
		Knowledge *knowledge.Facade
		Documents *document.Facade
		Secrets   *secret.Facade
		Schedules *schedule.Manager
		Messenger *messaging.Messenger
		Tasks     *hitl.Tasks
		A2A       *a2a.Dispatcher
	}

	// Workflow is one registered workflow definition.
	Workflow struct {
		agent     *Agent
		shortName string
		wfType    string
		workers   int
		isDefault bool
		isTask    bool
		handler   Handler
	}

	// AgentOption configures agent registration.
	AgentOption func(*Agent)

	// WorkflowOption configures workflow registration.
	WorkflowOption func(*Workflow)
)

// WithSystemScoped marks the agent's workers as shared across all tenants:
// task queues lose their tenant prefix and tenant isolation checks pass for
// any tenant.
func WithSystemScoped() AgentOption {
	return func(a *Agent) { a.systemScoped = true }
}

// WithWorkers sets how many concurrent workers poll the workflow's queue.
func WithWorkers(n int) WorkflowOption {
	return func(w *Workflow) {
		if n >= 1 {
			w.workers = n
		}
	}
}

// AsDefault marks the workflow as the agent's default, targeted by schedule
// firings and built-in chat when no type is named.
func AsDefault() WorkflowOption {
	return func(w *Workflow) { w.isDefault = true }
}

// Name returns the agent name.
func (a *Agent) Name() string { return a.name }

// SystemScoped reports whether the agent's workers serve all tenants.
func (a *Agent) SystemScoped() bool { return a.systemScoped }

// DefaultTenant returns the tenant from the platform credentials; empty for
// platforms without one.
func (a *Agent) DefaultTenant() string { return a.platform.tenant }

var _ runctx.RegisteredAgent = (*Agent)(nil)

// RegisterWorkflow adds a named workflow hosting a user-message handler.
// The workflow type is "{agentName}:{shortName}".
func (a *Agent) RegisterWorkflow(shortName string, handler Handler, opts ...WorkflowOption) (*Workflow, error) {
	if a.platform.isStarted() {
		return nil, errors.New("workflow registration after platform start")
	}
	if shortName == "" {
		return nil, errors.New("workflow short name is required")
	}
	if handler == nil {
		return nil, errors.New("workflow handler is required")
	}
	w := &Workflow{
		agent:     a,
		shortName: shortName,
		wfType:    a.name + identifier.Separator + shortName,
		workers:   1,
		handler:   handler,
	}
	for _, opt := range opts {
		opt(w)
	}
	for _, existing := range a.workflows {
		if existing.wfType == w.wfType {
			return nil, fmt.Errorf("workflow %q already registered", w.wfType)
		}
		if existing.isDefault && w.isDefault {
			return nil, fmt.Errorf("agent %q already has a default workflow", a.name)
		}
	}
	a.workflows = append(a.workflows, w)
	return w, nil
}

// taskWorkflow returns the implicit task workflow registration; every agent
// hosts one.
func (a *Agent) taskWorkflow() *Workflow {
	return &Workflow{
		agent:     a,
		shortName: hitl.TaskWorkflowName,
		wfType:    a.name + identifier.Separator + hitl.TaskWorkflowName,
		workers:   1,
		isTask:    true,
	}
}

// defaultWorkflow returns the workflow marked default, or the first
// registered one.
func (a *Agent) defaultWorkflow() *Workflow {
	for _, w := range a.workflows {
		if w.isDefault {
			return w
		}
	}
	if len(a.workflows) > 0 {
		return a.workflows[0]
	}
	return nil
}

// Type returns the full workflow type.
func (w *Workflow) Type() string { return w.wfType }

// Agent returns the owning agent.
func (w *Workflow) Agent() runctx.RegisteredAgent { return w.agent }

// IsTask reports whether this is the agent's task workflow.
func (w *Workflow) IsTask() bool { return w.isTask }

// IsDefault reports whether this is the agent's default workflow.
func (w *Workflow) IsDefault() bool { return w.isDefault }

var _ runctx.RegisteredWorkflow = (*Workflow)(nil)
