package knowledge

import (
	"context"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xians-ai/sdk-go/runtime/agentscope"
	"github.com/xians-ai/sdk-go/runtime/runctx"
)

var testScope = agentscope.Scope{TenantID: "acme", Agent: "MyAgent"}

// countingProvider wraps the local provider and counts reads.
type countingProvider struct {
	Provider
	gets int
}

func (p *countingProvider) Get(ctx context.Context, scope agentscope.Scope, name string) (*Knowledge, error) {
	p.gets++
	return p.Provider.Get(ctx, scope, name)
}

func seedFS() fstest.MapFS {
	return fstest.MapFS{
		"myagent.yaml": &fstest.MapFile{Data: []byte(`
agent: MyAgent
entries:
  - name: greeting
    content: Hello there
    type: text
  - name: policy
    content: Be nice
`)},
	}
}

func TestLocalProviderSeedsAndOverlay(t *testing.T) {
	t.Parallel()

	provider, err := NewLocalProvider(seedFS())
	require.NoError(t, err)
	ctx := context.Background()

	k, err := provider.Get(ctx, testScope, "greeting")
	require.NoError(t, err)
	require.NotNil(t, k)
	assert.Equal(t, "Hello there", k.Content)
	assert.Equal(t, "acme", k.TenantID)

	// Overlay shadows the seed per tenant.
	require.NoError(t, provider.Upsert(ctx, testScope, Knowledge{Name: "greeting", Content: "Hi"}))
	k, err = provider.Get(ctx, testScope, "greeting")
	require.NoError(t, err)
	assert.Equal(t, "Hi", k.Content)

	otherTenant := agentscope.Scope{TenantID: "contoso", Agent: "MyAgent"}
	k, err = provider.Get(ctx, otherTenant, "greeting")
	require.NoError(t, err)
	assert.Equal(t, "Hello there", k.Content, "overlay must not leak across tenants")

	// Deleting hides the seed behind a tombstone.
	deleted, err := provider.Delete(ctx, testScope, "greeting")
	require.NoError(t, err)
	assert.True(t, deleted)
	k, err = provider.Get(ctx, testScope, "greeting")
	require.NoError(t, err)
	assert.Nil(t, k)

	list, err := provider.List(ctx, testScope)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "policy", list[0].Name)
}

func TestServiceCachesReads(t *testing.T) {
	t.Parallel()

	local, err := NewLocalProvider(seedFS())
	require.NoError(t, err)
	provider := &countingProvider{Provider: local}
	svc := NewService(provider, ServiceOptions{CacheTTL: time.Minute})
	ctx := context.Background()

	for range 3 {
		k, err := svc.Get(ctx, testScope, "greeting")
		require.NoError(t, err)
		require.NotNil(t, k)
	}
	assert.Equal(t, 1, provider.gets, "repeat reads must hit the cache")
}

func TestServiceInvalidatesOnMutation(t *testing.T) {
	t.Parallel()

	local, err := NewLocalProvider(seedFS())
	require.NoError(t, err)
	provider := &countingProvider{Provider: local}
	svc := NewService(provider, ServiceOptions{CacheTTL: time.Minute})
	ctx := context.Background()

	_, err = svc.Get(ctx, testScope, "greeting")
	require.NoError(t, err)

	require.NoError(t, svc.Update(ctx, testScope, Knowledge{Name: "greeting", Content: "v2"}))
	k, err := svc.Get(ctx, testScope, "greeting")
	require.NoError(t, err)
	assert.Equal(t, "v2", k.Content, "update must invalidate the cached entry")

	deleted, err := svc.Delete(ctx, testScope, "greeting")
	require.NoError(t, err)
	assert.True(t, deleted)
	k, err = svc.Get(ctx, testScope, "greeting")
	require.NoError(t, err)
	assert.Nil(t, k, "delete must invalidate the cached entry")
}

func TestFacadeScopeResolution(t *testing.T) {
	t.Parallel()

	local, err := NewLocalProvider(seedFS())
	require.NoError(t, err)
	svc := NewService(local, ServiceOptions{})

	t.Run("tenant-bound agent falls back to default tenant", func(t *testing.T) {
		facade := NewFacade(svc, agentscope.Resolver{AgentName: "MyAgent", DefaultTenant: "acme"})
		k, err := facade.Get(context.Background(), "greeting")
		require.NoError(t, err)
		require.NotNil(t, k)
		assert.Equal(t, "acme", k.TenantID)
	})

	t.Run("system-scoped agent needs ambient context", func(t *testing.T) {
		facade := NewFacade(svc, agentscope.Resolver{AgentName: "MyAgent", SystemScoped: true})
		_, err := facade.Get(context.Background(), "greeting")
		require.ErrorIs(t, err, runctx.ErrNoAmbientContext)

		ctx := runctx.Install(context.Background(), &runctx.Info{
			Kind:     runctx.KindActivity,
			TenantID: "contoso",
		})
		k, err := facade.Get(ctx, "greeting")
		require.NoError(t, err)
		require.NotNil(t, k)
		assert.Equal(t, "contoso", k.TenantID)
	})
}
