package xians

import (
	"context"
	"sync"
	"time"

	"go.temporal.io/sdk/client"

	"github.com/xians-ai/sdk-go/runtime/engine"
	"github.com/xians-ai/sdk-go/runtime/engine/temporal"
	"github.com/xians-ai/sdk-go/runtime/httpx"
)

const flowServerPath = "/api/agent/settings/flowserver"

// defaultSettingsTTL bounds staleness of the cached engine connection
// settings.
const defaultSettingsTTL = 5 * time.Minute

type (
	// FlowServerSettings is the engine connection configuration served by
	// the backend.
	FlowServerSettings struct {
		HostPort  string `json:"hostPort"`
		Namespace string `json:"namespace"`
		// APIKey authenticates against a cloud engine frontend; empty for
		// plain deployments.
		APIKey string `json:"apiKey,omitempty"`
	}

	// SettingsService fetches backend-managed settings with a TTL cache.
	SettingsService struct {
		http *httpx.Client
		ttl  time.Duration

		mu        sync.Mutex
		cached    FlowServerSettings
		fetchedAt time.Time
	}
)

// NewSettingsService builds the settings fetcher.
func NewSettingsService(http *httpx.Client, cache CacheOptions) *SettingsService {
	return &SettingsService{http: http, ttl: cache.TTL(defaultSettingsTTL)}
}

// FlowServer returns the engine connection settings, cached for the
// configured TTL.
func (s *SettingsService) FlowServer(ctx context.Context) (FlowServerSettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ttl > 0 && !s.fetchedAt.IsZero() && time.Since(s.fetchedAt) < s.ttl {
		return s.cached, nil
	}
	var settings FlowServerSettings
	if err := s.http.Get(ctx, flowServerPath, nil, &settings); err != nil {
		return FlowServerSettings{}, err
	}
	s.cached = settings
	s.fetchedAt = time.Now()
	return settings, nil
}

// ConnectTemporal fetches the flow server settings from the backend and
// builds a Temporal engine from them. Use this when the engine connection
// is backend-managed; pass a pre-built engine to New otherwise.
func ConnectTemporal(ctx context.Context, settings *SettingsService) (engine.Engine, error) {
	cfg, err := settings.FlowServer(ctx)
	if err != nil {
		return nil, err
	}
	opts := &client.Options{
		HostPort:  cfg.HostPort,
		Namespace: cfg.Namespace,
	}
	if cfg.APIKey != "" {
		opts.Credentials = client.NewAPIKeyStaticCredentials(cfg.APIKey)
	}
	return temporal.New(temporal.Options{ClientOptions: opts})
}
