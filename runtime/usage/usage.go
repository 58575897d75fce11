// Package usage reports metered usage records to the backend. Reporting is
// fire-and-forget: failures are logged as warnings and never surface to the
// caller, and a rate limiter sheds excess load instead of queueing
// unboundedly.
package usage

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"github.com/xians-ai/sdk-go/runtime/httpx"
	"github.com/xians-ai/sdk-go/runtime/telemetry"
)

const reportPath = "/api/agent/usage/report"

type (
	// Record is one usage measurement.
	Record struct {
		TenantID     string         `json:"tenantId,omitempty"`
		Agent        string         `json:"agent,omitempty"`
		WorkflowType string         `json:"workflowType,omitempty"`
		Kind         string         `json:"kind"`
		Quantity     float64        `json:"quantity"`
		Metadata     map[string]any `json:"metadata,omitempty"`
		OccurredAt   time.Time      `json:"occurredAt,omitempty"`
	}

	// Reporter posts records in the background.
	Reporter struct {
		http    *httpx.Client
		logger  telemetry.Logger
		limiter *rate.Limiter
	}

	// ReporterOptions tunes the reporter.
	ReporterOptions struct {
		// ReportsPerSecond caps background posts. Zero means 10.
		ReportsPerSecond float64
		Logger           telemetry.Logger
	}
)

// NewReporter builds the reporter on the shared HTTP client.
func NewReporter(http *httpx.Client, opts ReporterOptions) *Reporter {
	rps := opts.ReportsPerSecond
	if rps <= 0 {
		rps = 10
	}
	logger := opts.Logger
	if logger == nil {
		logger = telemetry.NewNoopLogger()
	}
	return &Reporter{
		http:    http,
		logger:  logger,
		limiter: rate.NewLimiter(rate.Limit(rps), int(rps)+1),
	}
}

// Report posts the record without blocking the caller. Records beyond the
// rate limit are dropped with a warning; delivery failures are warnings too.
func (r *Reporter) Report(ctx context.Context, record Record) {
	if record.OccurredAt.IsZero() {
		record.OccurredAt = time.Now().UTC()
	}
	if !r.limiter.Allow() {
		r.logger.Warn(ctx, "usage report dropped by rate limit", "kind", record.Kind)
		return
	}
	go func() {
		postCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if err := r.http.Post(postCtx, reportPath, record, nil); err != nil {
			r.logger.Warn(postCtx, "usage report failed", "kind", record.Kind, "err", err)
		}
	}()
}
