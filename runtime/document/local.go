package document

import (
	"context"
	"reflect"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/xians-ai/sdk-go/runtime/agentscope"
)

// LocalProvider keeps documents in memory for local mode and tests. State is
// per tenant+agent, thread-safe, and not persisted across restarts. Expired
// documents are filtered lazily on read.
type LocalProvider struct {
	mu   sync.RWMutex
	docs map[string]map[string]Document // scope key -> id -> doc
}

// NewLocalProvider builds an empty in-memory store.
func NewLocalProvider() *LocalProvider {
	return &LocalProvider{docs: make(map[string]map[string]Document)}
}

var _ Provider = (*LocalProvider)(nil)

func scopeKey(scope agentscope.Scope) string {
	return scope.TenantID + "/" + scope.Agent
}

func (p *LocalProvider) bucket(scope agentscope.Scope) map[string]Document {
	key := scopeKey(scope)
	if b, ok := p.docs[key]; ok {
		return b
	}
	b := make(map[string]Document)
	p.docs[key] = b
	return b
}

func (p *LocalProvider) Save(ctx context.Context, scope agentscope.Scope, doc Document, opts SaveOptions) (Document, error) {
	now := time.Now().UTC()
	p.mu.Lock()
	defer p.mu.Unlock()
	b := p.bucket(scope)

	if opts.UseKeyAsIdentifier && doc.Key != "" {
		for id, existing := range b {
			if existing.Type == doc.Type && existing.Key == doc.Key {
				doc.ID = id
				doc.CreatedAt = existing.CreatedAt
				break
			}
		}
	}
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	doc.UpdatedAt = now
	if opts.TTL > 0 {
		expires := now.Add(opts.TTL)
		doc.ExpiresAt = &expires
	}
	b[doc.ID] = doc
	return doc, nil
}

func (p *LocalProvider) Get(ctx context.Context, scope agentscope.Scope, id string) (*Document, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	doc, ok := p.docs[scopeKey(scope)][id]
	if !ok || doc.Expired(time.Now()) {
		return nil, nil
	}
	return &doc, nil
}

func (p *LocalProvider) GetByKey(ctx context.Context, scope agentscope.Scope, docType, key string) (*Document, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	now := time.Now()
	for _, doc := range p.docs[scopeKey(scope)] {
		if doc.Type == docType && doc.Key == key && !doc.Expired(now) {
			d := doc
			return &d, nil
		}
	}
	return nil, nil
}

func (p *LocalProvider) Query(ctx context.Context, scope agentscope.Scope, filter Filter) ([]Document, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	now := time.Now()
	var out []Document
	for _, doc := range p.docs[scopeKey(scope)] {
		if doc.Expired(now) {
			continue
		}
		if filter.Type != "" && doc.Type != filter.Type {
			continue
		}
		if filter.Key != "" && doc.Key != filter.Key {
			continue
		}
		if !metadataMatches(doc.Metadata, filter.MetadataEquals) {
			continue
		}
		out = append(out, doc)
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out, nil
}

func metadataMatches(metadata, wanted map[string]any) bool {
	for k, v := range wanted {
		if !reflect.DeepEqual(metadata[k], v) {
			return false
		}
	}
	return true
}

func (p *LocalProvider) Update(ctx context.Context, scope agentscope.Scope, doc Document) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	b := p.docs[scopeKey(scope)]
	existing, ok := b[doc.ID]
	if !ok || existing.Expired(time.Now()) {
		return false, nil
	}
	doc.CreatedAt = existing.CreatedAt
	doc.UpdatedAt = time.Now().UTC()
	if doc.ExpiresAt == nil {
		doc.ExpiresAt = existing.ExpiresAt
	}
	b[doc.ID] = doc
	return true, nil
}

func (p *LocalProvider) Delete(ctx context.Context, scope agentscope.Scope, id string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	b := p.docs[scopeKey(scope)]
	if _, ok := b[id]; !ok {
		return false, nil
	}
	delete(b, id)
	return true, nil
}

func (p *LocalProvider) DeleteMany(ctx context.Context, scope agentscope.Scope, ids []string) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	b := p.docs[scopeKey(scope)]
	deleted := 0
	for _, id := range ids {
		if _, ok := b[id]; ok {
			delete(b, id)
			deleted++
		}
	}
	return deleted, nil
}
