// Package knowledge provides tenant+agent scoped access to the agent
// knowledge store. A Provider abstracts the backing store: the server
// provider speaks to the backend over HTTP, the local provider serves YAML
// seeds with an in-memory overlay for local mode.
package knowledge

import (
	"context"
	"time"

	"github.com/xians-ai/sdk-go/runtime/agentscope"
)

type (
	// Knowledge is one named knowledge entry.
	Knowledge struct {
		Name      string    `json:"name"`
		Content   string    `json:"content"`
		Type      string    `json:"type,omitempty"`
		Agent     string    `json:"agent,omitempty"`
		TenantID  string    `json:"tenantId,omitempty"`
		UpdatedAt time.Time `json:"updatedAt,omitempty"`
	}

	// Provider is the backing store seam. Implementations are scoped per
	// call: the same provider serves every tenant and agent.
	Provider interface {
		// Get returns the latest entry, or nil when absent.
		Get(ctx context.Context, scope agentscope.Scope, name string) (*Knowledge, error)
		// Upsert creates or replaces an entry.
		Upsert(ctx context.Context, scope agentscope.Scope, k Knowledge) error
		// Delete removes an entry, reporting whether it existed.
		Delete(ctx context.Context, scope agentscope.Scope, name string) (bool, error)
		// List returns all entries in scope.
		List(ctx context.Context, scope agentscope.Scope) ([]Knowledge, error)
	}
)
