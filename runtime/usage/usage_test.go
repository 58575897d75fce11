package usage

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xians-ai/sdk-go/runtime/httpx"
)

func TestReportFireAndForget(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	var records []Record
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var rec Record
		require.NoError(t, json.NewDecoder(r.Body).Decode(&rec))
		mu.Lock()
		records = append(records, rec)
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(server.Close)

	client := httpx.New(httpx.Config{BaseURL: server.URL, APIKey: "k"})
	reporter := NewReporter(client, ReporterOptions{})

	reporter.Report(context.Background(), Record{Kind: "tokens", Quantity: 42, TenantID: "acme"})

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(records) == 1
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "tokens", records[0].Kind)
	assert.False(t, records[0].OccurredAt.IsZero(), "timestamp is stamped when missing")
}

func TestReportFailureDoesNotPropagate(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(server.Close)

	client := httpx.New(httpx.Config{BaseURL: server.URL, APIKey: "k", MaxAttempts: 1})
	reporter := NewReporter(client, ReporterOptions{})

	// Must not panic or block; failures are swallowed.
	reporter.Report(context.Background(), Record{Kind: "tokens", Quantity: 1})
	time.Sleep(50 * time.Millisecond)
}

func TestRateLimitSheds(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	received := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		received++
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(server.Close)

	client := httpx.New(httpx.Config{BaseURL: server.URL, APIKey: "k"})
	reporter := NewReporter(client, ReporterOptions{ReportsPerSecond: 1})

	// Burst far beyond the limit; excess reports are shed synchronously.
	for i := 0; i < 50; i++ {
		reporter.Report(context.Background(), Record{Kind: "burst"})
	}
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return received >= 1
	}, 2*time.Second, 10*time.Millisecond)

	time.Sleep(100 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.Less(t, received, 50, "rate limit must shed most of the burst")
}
