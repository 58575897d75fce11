package xians

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xians-ai/sdk-go/runtime/httpx"
)

func TestFlowServerSettingsCached(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, flowServerPath, r.URL.Path)
		calls.Add(1)
		_ = json.NewEncoder(w).Encode(FlowServerSettings{
			HostPort:  "temporal.example.com:7233",
			Namespace: "agents",
		})
	}))
	t.Cleanup(server.Close)

	client := httpx.New(httpx.Config{BaseURL: server.URL, APIKey: "k"})
	svc := NewSettingsService(client, CacheOptions{})

	for range 3 {
		settings, err := svc.FlowServer(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "temporal.example.com:7233", settings.HostPort)
		assert.Equal(t, "agents", settings.Namespace)
	}
	assert.Equal(t, int32(1), calls.Load(), "settings must be served from cache within the TTL")
}

func TestFlowServerSettingsCacheDisabled(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_ = json.NewEncoder(w).Encode(FlowServerSettings{HostPort: "h:1"})
	}))
	t.Cleanup(server.Close)

	client := httpx.New(httpx.Config{BaseURL: server.URL, APIKey: "k"})
	svc := NewSettingsService(client, CacheOptions{Disabled: true})

	for range 2 {
		_, err := svc.FlowServer(context.Background())
		require.NoError(t, err)
	}
	assert.Equal(t, int32(2), calls.Load())
}
