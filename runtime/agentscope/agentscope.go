// Package agentscope resolves the tenant+agent scope every capability call
// operates under. Inside workflow or activity code the tenant is ambient;
// outside, tenant-bound agents fall back to their credential tenant while
// system-scoped agents have no tenant to fall back to and fail.
package agentscope

import (
	"context"
	"errors"

	"github.com/xians-ai/sdk-go/runtime/runctx"
)

type (
	// Scope qualifies a capability call.
	Scope struct {
		TenantID string
		Agent    string
	}

	// Resolver derives scopes for one agent's facades.
	Resolver struct {
		AgentName     string
		SystemScoped  bool
		DefaultTenant string
	}
)

// Resolve returns the scope for ctx. System-scoped agents outside an
// invocation get runctx.ErrNoAmbientContext; tenant-bound agents without a
// configured tenant get a configuration error.
func (r Resolver) Resolve(ctx context.Context) (Scope, error) {
	if info, err := runctx.FromContext(ctx); err == nil {
		return Scope{TenantID: info.TenantID, Agent: r.AgentName}, nil
	}
	if r.SystemScoped {
		return Scope{}, runctx.ErrNoAmbientContext
	}
	if r.DefaultTenant == "" {
		return Scope{}, errors.New("agent " + r.AgentName + " has no tenant configured")
	}
	return Scope{TenantID: r.DefaultTenant, Agent: r.AgentName}, nil
}
