package document

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xians-ai/sdk-go/runtime/agentscope"
)

var testScope = agentscope.Scope{TenantID: "acme", Agent: "MyAgent"}

func TestLocalSaveAndGet(t *testing.T) {
	t.Parallel()

	p := NewLocalProvider()
	ctx := context.Background()

	saved, err := p.Save(ctx, testScope, Document{
		Type:    "note",
		Content: map[string]any{"text": "hello"},
	}, SaveOptions{})
	require.NoError(t, err)
	assert.NotEmpty(t, saved.ID)
	assert.False(t, saved.CreatedAt.IsZero())

	got, err := p.Get(ctx, testScope, saved.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "note", got.Type)

	other, err := p.Get(ctx, agentscope.Scope{TenantID: "contoso", Agent: "MyAgent"}, saved.ID)
	require.NoError(t, err)
	assert.Nil(t, other, "documents must not leak across tenants")
}

func TestLocalUseKeyAsIdentifier(t *testing.T) {
	t.Parallel()

	p := NewLocalProvider()
	ctx := context.Background()
	opts := SaveOptions{UseKeyAsIdentifier: true}

	first, err := p.Save(ctx, testScope, Document{Type: "profile", Key: "u1", Content: "v1"}, opts)
	require.NoError(t, err)
	second, err := p.Save(ctx, testScope, Document{Type: "profile", Key: "u1", Content: "v2"}, opts)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID, "(type, key) acts as the primary key")

	got, err := p.GetByKey(ctx, testScope, "profile", "u1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "v2", got.Content)

	all, err := p.Query(ctx, testScope, Filter{Type: "profile"})
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestLocalTTLExpiry(t *testing.T) {
	t.Parallel()

	p := NewLocalProvider()
	ctx := context.Background()

	saved, err := p.Save(ctx, testScope, Document{Type: "ephemeral"}, SaveOptions{TTL: 10 * time.Millisecond})
	require.NoError(t, err)

	got, err := p.Get(ctx, testScope, saved.ID)
	require.NoError(t, err)
	require.NotNil(t, got)

	time.Sleep(20 * time.Millisecond)
	got, err = p.Get(ctx, testScope, saved.ID)
	require.NoError(t, err)
	assert.Nil(t, got, "expired documents read as absent")
}

func TestLocalQueryFilters(t *testing.T) {
	t.Parallel()

	p := NewLocalProvider()
	ctx := context.Background()

	for _, doc := range []Document{
		{Type: "order", Key: "o1", Metadata: map[string]any{"status": "open"}},
		{Type: "order", Key: "o2", Metadata: map[string]any{"status": "closed"}},
		{Type: "invoice", Key: "i1", Metadata: map[string]any{"status": "open"}},
	} {
		_, err := p.Save(ctx, testScope, doc, SaveOptions{})
		require.NoError(t, err)
	}

	orders, err := p.Query(ctx, testScope, Filter{Type: "order"})
	require.NoError(t, err)
	assert.Len(t, orders, 2)

	open, err := p.Query(ctx, testScope, Filter{MetadataEquals: map[string]any{"status": "open"}})
	require.NoError(t, err)
	assert.Len(t, open, 2)

	one, err := p.Query(ctx, testScope, Filter{Type: "order", MetadataEquals: map[string]any{"status": "open"}})
	require.NoError(t, err)
	require.Len(t, one, 1)
	assert.Equal(t, "o1", one[0].Key)
}

func TestLocalUpdateAndDelete(t *testing.T) {
	t.Parallel()

	p := NewLocalProvider()
	ctx := context.Background()

	saved, err := p.Save(ctx, testScope, Document{Type: "note", Content: "v1"}, SaveOptions{})
	require.NoError(t, err)

	saved.Content = "v2"
	ok, err := p.Update(ctx, testScope, saved)
	require.NoError(t, err)
	assert.True(t, ok)

	missing := saved
	missing.ID = "nope"
	ok, err = p.Update(ctx, testScope, missing)
	require.NoError(t, err)
	assert.False(t, ok)

	deleted, err := p.Delete(ctx, testScope, saved.ID)
	require.NoError(t, err)
	assert.True(t, deleted)
	deleted, err = p.Delete(ctx, testScope, saved.ID)
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestLocalDeleteMany(t *testing.T) {
	t.Parallel()

	p := NewLocalProvider()
	ctx := context.Background()

	var ids []string
	for range 3 {
		saved, err := p.Save(ctx, testScope, Document{Type: "bulk"}, SaveOptions{})
		require.NoError(t, err)
		ids = append(ids, saved.ID)
	}

	n, err := p.DeleteMany(ctx, testScope, append(ids[:2], "missing"))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	remaining, err := p.Query(ctx, testScope, Filter{Type: "bulk"})
	require.NoError(t, err)
	assert.Len(t, remaining, 1)
}
