// Package secret provides scoped access to the secret vault. Secrets live
// at tenant, agent, or user scope; fetch-by-key is a strict scope match, so
// an agent-scoped secret is invisible to tenant- or user-scoped reads.
// Values are opaque to the runtime.
package secret

import (
	"context"

	"github.com/xians-ai/sdk-go/runtime/agentscope"
)

// ScopeKind places a secret at tenant, agent, or user level.
type ScopeKind string

const (
	// ScopeTenant shares the secret across the tenant.
	ScopeTenant ScopeKind = "tenant"
	// ScopeAgent restricts the secret to the owning agent.
	ScopeAgent ScopeKind = "agent"
	// ScopeUser restricts the secret to one participant.
	ScopeUser ScopeKind = "user"
)

type (
	// Ref addresses one secret within a tenant+agent scope.
	Ref struct {
		Kind          ScopeKind `json:"kind"`
		ParticipantID string    `json:"participantId,omitempty"`
		Key           string    `json:"key"`
	}

	// Secret is a stored key-value pair.
	Secret struct {
		Ref   Ref    `json:"ref"`
		Value string `json:"value"`
	}

	// Provider is the backing vault seam.
	Provider interface {
		// Get returns the secret, or nil when absent at the exact scope.
		Get(ctx context.Context, scope agentscope.Scope, ref Ref) (*Secret, error)
		// Set creates or replaces the secret.
		Set(ctx context.Context, scope agentscope.Scope, secret Secret) error
		// Delete removes the secret, reporting whether it existed.
		Delete(ctx context.Context, scope agentscope.Scope, ref Ref) (bool, error)
		// List returns the keys visible at the given kind and participant.
		List(ctx context.Context, scope agentscope.Scope, kind ScopeKind, participantID string) ([]string, error)
	}
)
