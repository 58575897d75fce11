package document

import (
	"context"
	"errors"
	"net/url"
	"strings"

	"github.com/xians-ai/sdk-go/runtime/agentscope"
	"github.com/xians-ai/sdk-go/runtime/httpx"
)

const documentsPath = "/api/agent/documents"

type (
	// ServerProvider stores documents through the backend HTTP surface.
	ServerProvider struct {
		http *httpx.Client
	}

	saveEnvelope struct {
		Agent    string      `json:"agent"`
		Document Document    `json:"document"`
		Options  SaveOptions `json:"options"`
	}

	queryEnvelope struct {
		Agent  string `json:"agent"`
		Filter Filter `json:"filter"`
	}

	deleteManyResponse struct {
		Deleted int `json:"deleted"`
	}
)

// NewServerProvider builds the HTTP-backed provider.
func NewServerProvider(http *httpx.Client) *ServerProvider {
	return &ServerProvider{http: http}
}

var _ Provider = (*ServerProvider)(nil)

func (p *ServerProvider) Save(ctx context.Context, scope agentscope.Scope, doc Document, opts SaveOptions) (Document, error) {
	var out Document
	body := saveEnvelope{Agent: scope.Agent, Document: doc, Options: opts}
	if err := p.http.Post(ctx, documentsPath, body, &out); err != nil {
		return Document{}, err
	}
	return out, nil
}

func (p *ServerProvider) Get(ctx context.Context, scope agentscope.Scope, id string) (*Document, error) {
	query := url.Values{"id": {id}, "agent": {scope.Agent}}
	var out Document
	if err := p.http.Get(ctx, documentsPath, query, &out); err != nil {
		if errors.Is(err, httpx.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &out, nil
}

func (p *ServerProvider) GetByKey(ctx context.Context, scope agentscope.Scope, docType, key string) (*Document, error) {
	query := url.Values{"type": {docType}, "key": {key}, "agent": {scope.Agent}}
	var out Document
	if err := p.http.Get(ctx, documentsPath, query, &out); err != nil {
		if errors.Is(err, httpx.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &out, nil
}

func (p *ServerProvider) Query(ctx context.Context, scope agentscope.Scope, filter Filter) ([]Document, error) {
	var out []Document
	body := queryEnvelope{Agent: scope.Agent, Filter: filter}
	if err := p.http.Post(ctx, documentsPath+"/query", body, &out); err != nil {
		if errors.Is(err, httpx.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return out, nil
}

func (p *ServerProvider) Update(ctx context.Context, scope agentscope.Scope, doc Document) (bool, error) {
	body := saveEnvelope{Agent: scope.Agent, Document: doc}
	if err := p.http.Put(ctx, documentsPath, body, nil); err != nil {
		if errors.Is(err, httpx.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (p *ServerProvider) Delete(ctx context.Context, scope agentscope.Scope, id string) (bool, error) {
	query := url.Values{"id": {id}, "agent": {scope.Agent}}
	if err := p.http.Delete(ctx, documentsPath, query); err != nil {
		if errors.Is(err, httpx.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (p *ServerProvider) DeleteMany(ctx context.Context, scope agentscope.Scope, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	query := url.Values{"ids": {strings.Join(ids, ",")}, "agent": {scope.Agent}}
	if err := p.http.Delete(ctx, documentsPath, query); err != nil {
		if errors.Is(err, httpx.ErrNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return len(ids), nil
}
