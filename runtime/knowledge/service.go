package knowledge

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/xians-ai/sdk-go/runtime/agentscope"
	"github.com/xians-ai/sdk-go/runtime/executor"
	"github.com/xians-ai/sdk-go/runtime/telemetry"
)

const (
	// DefaultCacheTTL bounds staleness of cached reads.
	DefaultCacheTTL = 5 * time.Minute

	defaultCacheSize = 1024
)

type (
	// Cache is the read-cache seam. The default is an in-process expirable
	// LRU; features/cache/redis provides a shared alternative.
	Cache interface {
		Get(ctx context.Context, key string) (*Knowledge, bool)
		Add(ctx context.Context, key string, k *Knowledge)
		Remove(ctx context.Context, key string)
	}

	// Service wraps a provider with a TTL read cache. Mutations invalidate
	// the touched entry so subsequent reads observe them immediately.
	Service struct {
		provider Provider
		cache    Cache
		logger   telemetry.Logger
	}

	// ServiceOptions tunes the service.
	ServiceOptions struct {
		// CacheTTL overrides DefaultCacheTTL. Negative disables caching.
		CacheTTL time.Duration
		// CacheSize caps cached entries of the default cache. Zero means
		// 1024.
		CacheSize int
		// Cache overrides the default in-process cache.
		Cache  Cache
		Logger telemetry.Logger
	}

	lruCache struct {
		lru *expirable.LRU[string, *Knowledge]
	}
)

// NewService builds the cached service over a provider.
func NewService(provider Provider, opts ServiceOptions) *Service {
	ttl := opts.CacheTTL
	if ttl == 0 {
		ttl = DefaultCacheTTL
	}
	size := opts.CacheSize
	if size <= 0 {
		size = defaultCacheSize
	}
	logger := opts.Logger
	if logger == nil {
		logger = telemetry.NewNoopLogger()
	}
	s := &Service{provider: provider, logger: logger}
	switch {
	case opts.Cache != nil:
		s.cache = opts.Cache
	case ttl > 0:
		s.cache = &lruCache{lru: expirable.NewLRU[string, *Knowledge](size, nil, ttl)}
	}
	return s
}

func (c *lruCache) Get(_ context.Context, key string) (*Knowledge, bool) {
	return c.lru.Get(key)
}

func (c *lruCache) Add(_ context.Context, key string, k *Knowledge) {
	c.lru.Add(key, k)
}

func (c *lruCache) Remove(_ context.Context, key string) {
	c.lru.Remove(key)
}

func cacheKey(scope agentscope.Scope, name string) string {
	return scope.TenantID + "/" + scope.Agent + "/" + name
}

// Get returns the entry, or nil when absent. Hits serve from cache within
// the TTL.
func (s *Service) Get(ctx context.Context, scope agentscope.Scope, name string) (*Knowledge, error) {
	key := cacheKey(scope, name)
	if s.cache != nil {
		if cached, ok := s.cache.Get(ctx, key); ok {
			return cached, nil
		}
	}
	k, err := s.provider.Get(ctx, scope, name)
	if err != nil {
		return nil, err
	}
	if s.cache != nil && k != nil {
		s.cache.Add(ctx, key, k)
	}
	return k, nil
}

// Update upserts the entry and drops it from the cache.
func (s *Service) Update(ctx context.Context, scope agentscope.Scope, k Knowledge) error {
	if err := s.provider.Upsert(ctx, scope, k); err != nil {
		return err
	}
	if s.cache != nil {
		s.cache.Remove(ctx, cacheKey(scope, k.Name))
	}
	return nil
}

// Delete removes the entry and drops it from the cache.
func (s *Service) Delete(ctx context.Context, scope agentscope.Scope, name string) (bool, error) {
	deleted, err := s.provider.Delete(ctx, scope, name)
	if err != nil {
		return false, err
	}
	if s.cache != nil {
		s.cache.Remove(ctx, cacheKey(scope, name))
	}
	return deleted, nil
}

// List returns every entry in scope. Listings bypass the cache.
func (s *Service) List(ctx context.Context, scope agentscope.Scope) ([]Knowledge, error) {
	return s.provider.List(ctx, scope)
}

// Activity names registered on every worker.
const (
	ActivityGet    = "KnowledgeActivity.Get"
	ActivityUpdate = "KnowledgeActivity.Update"
	ActivityDelete = "KnowledgeActivity.Delete"
	ActivityList   = "KnowledgeActivity.List"
)

type (
	// Activities exposes the service as worker activities.
	Activities struct {
		svc *Service
	}

	// GetRequest is the activity input for reads.
	GetRequest struct {
		Scope agentscope.Scope `json:"scope"`
		Name  string           `json:"name"`
	}

	// UpdateRequest is the activity input for upserts.
	UpdateRequest struct {
		Scope     agentscope.Scope `json:"scope"`
		Knowledge Knowledge        `json:"knowledge"`
	}

	// ListRequest is the activity input for listings.
	ListRequest struct {
		Scope agentscope.Scope `json:"scope"`
	}

	// Facade is the context-aware entry point owned by one agent. Workflow
	// calls run as activities; everything else goes straight to the
	// service.
	Facade struct {
		svc      *Service
		resolver agentscope.Resolver
	}
)

// NewActivities binds the activity set to the service.
func NewActivities(svc *Service) *Activities {
	return &Activities{svc: svc}
}

// Get handles ActivityGet.
func (a *Activities) Get(ctx context.Context, req GetRequest) (*Knowledge, error) {
	return a.svc.Get(ctx, req.Scope, req.Name)
}

// Update handles ActivityUpdate.
func (a *Activities) Update(ctx context.Context, req UpdateRequest) error {
	return a.svc.Update(ctx, req.Scope, req.Knowledge)
}

// Delete handles ActivityDelete.
func (a *Activities) Delete(ctx context.Context, req GetRequest) (bool, error) {
	return a.svc.Delete(ctx, req.Scope, req.Name)
}

// List handles ActivityList.
func (a *Activities) List(ctx context.Context, req ListRequest) ([]Knowledge, error) {
	return a.svc.List(ctx, req.Scope)
}

// NewFacade builds the per-agent facade.
func NewFacade(svc *Service, resolver agentscope.Resolver) *Facade {
	return &Facade{svc: svc, resolver: resolver}
}

// Get returns the named entry for the ambient scope, nil when absent.
func (f *Facade) Get(ctx context.Context, name string) (*Knowledge, error) {
	scope, err := f.resolver.Resolve(ctx)
	if err != nil {
		return nil, err
	}
	return executor.Execute(ctx, ActivityGet, GetRequest{Scope: scope, Name: name},
		func(c context.Context) (*Knowledge, error) {
			return f.svc.Get(c, scope, name)
		})
}

// Update upserts the named entry.
func (f *Facade) Update(ctx context.Context, name, content, contentType string) error {
	scope, err := f.resolver.Resolve(ctx)
	if err != nil {
		return err
	}
	req := UpdateRequest{Scope: scope, Knowledge: Knowledge{Name: name, Content: content, Type: contentType}}
	return executor.Run(ctx, ActivityUpdate, req, func(c context.Context) error {
		return f.svc.Update(c, scope, req.Knowledge)
	})
}

// Delete removes the named entry, reporting whether it existed.
func (f *Facade) Delete(ctx context.Context, name string) (bool, error) {
	scope, err := f.resolver.Resolve(ctx)
	if err != nil {
		return false, err
	}
	return executor.Execute(ctx, ActivityDelete, GetRequest{Scope: scope, Name: name},
		func(c context.Context) (bool, error) {
			return f.svc.Delete(c, scope, name)
		})
}

// List returns every entry in the ambient scope.
func (f *Facade) List(ctx context.Context) ([]Knowledge, error) {
	scope, err := f.resolver.Resolve(ctx)
	if err != nil {
		return nil, err
	}
	return executor.Execute(ctx, ActivityList, ListRequest{Scope: scope},
		func(c context.Context) ([]Knowledge, error) {
			return f.svc.List(c, scope)
		})
}
