package knowledge

import (
	"context"
	"errors"
	"net/url"

	"github.com/xians-ai/sdk-go/runtime/agentscope"
	"github.com/xians-ai/sdk-go/runtime/httpx"
)

const (
	latestPath = "/api/agent/knowledge/latest"
	upsertPath = "/api/agent/knowledge"
	listPath   = "/api/agent/knowledge/list"
)

// ServerProvider stores knowledge through the backend HTTP surface. Tenant
// scoping rides on the X-Tenant-Id header stamped by the shared client.
type ServerProvider struct {
	http *httpx.Client
}

// NewServerProvider builds the HTTP-backed provider.
func NewServerProvider(http *httpx.Client) *ServerProvider {
	return &ServerProvider{http: http}
}

var _ Provider = (*ServerProvider)(nil)

// Get fetches the latest entry; a backend 404 maps to nil.
func (p *ServerProvider) Get(ctx context.Context, scope agentscope.Scope, name string) (*Knowledge, error) {
	query := url.Values{"name": {name}, "agent": {scope.Agent}}
	var out Knowledge
	if err := p.http.Get(ctx, latestPath, query, &out); err != nil {
		if errors.Is(err, httpx.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &out, nil
}

// Upsert creates or replaces the entry.
func (p *ServerProvider) Upsert(ctx context.Context, scope agentscope.Scope, k Knowledge) error {
	body := Knowledge{
		Name:     k.Name,
		Content:  k.Content,
		Type:     k.Type,
		Agent:    scope.Agent,
		TenantID: scope.TenantID,
	}
	return p.http.Post(ctx, upsertPath, body, nil)
}

// Delete removes the entry; a backend 404 maps to false.
func (p *ServerProvider) Delete(ctx context.Context, scope agentscope.Scope, name string) (bool, error) {
	query := url.Values{"name": {name}, "agent": {scope.Agent}}
	if err := p.http.Delete(ctx, upsertPath, query); err != nil {
		if errors.Is(err, httpx.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// List returns every entry for the agent in the scoped tenant.
func (p *ServerProvider) List(ctx context.Context, scope agentscope.Scope) ([]Knowledge, error) {
	query := url.Values{"agent": {scope.Agent}}
	var out []Knowledge
	if err := p.http.Get(ctx, listPath, query, &out); err != nil {
		if errors.Is(err, httpx.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return out, nil
}
