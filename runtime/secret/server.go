package secret

import (
	"context"
	"errors"
	"net/url"

	"github.com/xians-ai/sdk-go/runtime/agentscope"
	"github.com/xians-ai/sdk-go/runtime/httpx"
)

const secretsPath = "/api/agent/secrets"

type (
	// ServerProvider stores secrets through the backend HTTP surface.
	ServerProvider struct {
		http *httpx.Client
	}

	secretEnvelope struct {
		Agent  string `json:"agent"`
		Secret Secret `json:"secret"`
	}
)

// NewServerProvider builds the HTTP-backed vault.
func NewServerProvider(http *httpx.Client) *ServerProvider {
	return &ServerProvider{http: http}
}

var _ Provider = (*ServerProvider)(nil)

func refQuery(scope agentscope.Scope, ref Ref) url.Values {
	query := url.Values{
		"agent": {scope.Agent},
		"scope": {string(ref.Kind)},
		"key":   {ref.Key},
	}
	if ref.ParticipantID != "" {
		query.Set("participant", ref.ParticipantID)
	}
	return query
}

func (p *ServerProvider) Get(ctx context.Context, scope agentscope.Scope, ref Ref) (*Secret, error) {
	var out Secret
	if err := p.http.Get(ctx, secretsPath, refQuery(scope, ref), &out); err != nil {
		if errors.Is(err, httpx.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &out, nil
}

func (p *ServerProvider) Set(ctx context.Context, scope agentscope.Scope, secret Secret) error {
	return p.http.Post(ctx, secretsPath, secretEnvelope{Agent: scope.Agent, Secret: secret}, nil)
}

func (p *ServerProvider) Delete(ctx context.Context, scope agentscope.Scope, ref Ref) (bool, error) {
	if err := p.http.Delete(ctx, secretsPath, refQuery(scope, ref)); err != nil {
		if errors.Is(err, httpx.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (p *ServerProvider) List(ctx context.Context, scope agentscope.Scope, kind ScopeKind, participantID string) ([]string, error) {
	query := url.Values{"agent": {scope.Agent}, "scope": {string(kind)}}
	if participantID != "" {
		query.Set("participant", participantID)
	}
	var out []string
	if err := p.http.Get(ctx, secretsPath+"/list", query, &out); err != nil {
		if errors.Is(err, httpx.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return out, nil
}
