// Package identifier is the single source of truth for the workflow
// identifier wire format and for task queue derivation.
//
// Identifiers follow the grammar
//
//	tenant ":" workflowType (":" suffix)*
//
// where workflowType itself is "{agentName}:{shortName}", so a fully
// qualified identifier such as "acme:MyAgent:Chat:run-123" carries four raw
// colon components: tenant, agent, workflow short name, suffix.
package identifier

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/xians-ai/sdk-go/runtime/telemetry"
)

// Separator joins identifier components on the wire.
const Separator = ":"

// ErrInvalidWorkflowID reports an identifier that does not satisfy the
// grammar. Use errors.Is to detect it across wrapping.
var ErrInvalidWorkflowID = errors.New("invalid workflow id")

// Parsed is the decomposition of a workflow identifier.
type Parsed struct {
	// Tenant is the first component.
	Tenant string
	// WorkflowType is the "{agent}:{name}" pair when the identifier carries
	// at least three components, or the bare second component otherwise.
	WorkflowType string
	// Suffixes are the remaining components, possibly empty.
	Suffixes []string
	// Full is the identifier as given.
	Full string
}

// Parse validates id against the grammar and decomposes it.
func Parse(id string) (Parsed, error) {
	parts := strings.Split(id, Separator)
	if len(parts) < 2 {
		return Parsed{}, fmt.Errorf("%w: %q has fewer than two components", ErrInvalidWorkflowID, id)
	}
	if parts[0] == "" {
		return Parsed{}, fmt.Errorf("%w: %q has an empty tenant component", ErrInvalidWorkflowID, id)
	}
	if parts[1] == "" {
		return Parsed{}, fmt.Errorf("%w: %q has an empty workflow type component", ErrInvalidWorkflowID, id)
	}
	p := Parsed{Tenant: parts[0], Full: id}
	if len(parts) >= 3 && parts[2] != "" {
		p.WorkflowType = parts[1] + Separator + parts[2]
		p.Suffixes = parts[3:]
	} else {
		p.WorkflowType = parts[1]
		p.Suffixes = parts[2:]
	}
	if len(p.Suffixes) == 0 {
		p.Suffixes = nil
	}
	return p, nil
}

// ExtractTenant returns the tenant component of id.
func ExtractTenant(id string) (string, error) {
	p, err := Parse(id)
	if err != nil {
		return "", err
	}
	return p.Tenant, nil
}

// ExtractWorkflowType returns the workflow type component of id.
func ExtractWorkflowType(id string) (string, error) {
	p, err := Parse(id)
	if err != nil {
		return "", err
	}
	return p.WorkflowType, nil
}

// Build assembles an identifier from tenant, workflow type, and optional
// suffixes. Empty suffixes are omitted.
func Build(tenant, workflowType string, suffixes ...string) string {
	parts := make([]string, 0, 2+len(suffixes))
	parts = append(parts, tenant, workflowType)
	for _, s := range suffixes {
		if s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, Separator)
}

// TaskQueue derives the engine routing key for a workflow type. System-scoped
// agents share one queue per workflow type across all tenants; tenant-bound
// agents get a queue prefixed with their tenant.
func TaskQueue(workflowType string, systemScoped bool, tenant string) (string, error) {
	if workflowType == "" {
		return "", fmt.Errorf("%w: workflow type is required", ErrInvalidWorkflowID)
	}
	if systemScoped {
		return workflowType, nil
	}
	if tenant == "" {
		return "", errors.New("task queue: tenant is required for tenant-scoped workflows")
	}
	return tenant + Separator + workflowType, nil
}

// ValidateIsolation reports whether a workflow execution with idTenant may be
// processed by a worker registered for expectedTenant. System-scoped workers
// accept any tenant. A mismatch is logged as a warning when a logger is
// provided.
func ValidateIsolation(ctx context.Context, idTenant, expectedTenant string, systemScoped bool, logger telemetry.Logger) bool {
	if systemScoped {
		return true
	}
	if idTenant == expectedTenant {
		return true
	}
	if logger != nil {
		logger.Warn(ctx, "tenant isolation violation",
			"workflow_tenant", idTenant,
			"agent_tenant", expectedTenant,
		)
	}
	return false
}
