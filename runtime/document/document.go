// Package document provides tenant+agent scoped structured document storage.
// Documents carry an arbitrary JSON content payload plus queryable type, key,
// and metadata fields; a TTL marks them for expiry. The server provider
// speaks to the backend, the local provider keeps documents in memory, and
// features/document/mongo persists them in MongoDB.
package document

import (
	"context"
	"time"

	"github.com/xians-ai/sdk-go/runtime/agentscope"
)

type (
	// Document is one stored record.
	Document struct {
		ID        string         `json:"id"`
		Type      string         `json:"type"`
		Key       string         `json:"key,omitempty"`
		Content   any            `json:"content"`
		Metadata  map[string]any `json:"metadata,omitempty"`
		CreatedAt time.Time      `json:"createdAt,omitempty"`
		UpdatedAt time.Time      `json:"updatedAt,omitempty"`
		ExpiresAt *time.Time     `json:"expiresAt,omitempty"`
	}

	// SaveOptions tunes document creation.
	SaveOptions struct {
		// UseKeyAsIdentifier makes (type, key) the primary key: saving an
		// existing pair replaces the document instead of creating one.
		UseKeyAsIdentifier bool `json:"useKeyAsIdentifier,omitempty"`
		// TTL expires the document after the duration. Zero keeps it
		// indefinitely.
		TTL time.Duration `json:"ttl,omitempty"`
	}

	// Filter selects documents in Query. Zero fields match everything.
	Filter struct {
		Type string `json:"type,omitempty"`
		Key  string `json:"key,omitempty"`
		// MetadataEquals requires exact matches on metadata fields.
		MetadataEquals map[string]any `json:"metadataEquals,omitempty"`
		Limit          int            `json:"limit,omitempty"`
	}

	// Provider is the backing store seam.
	Provider interface {
		Save(ctx context.Context, scope agentscope.Scope, doc Document, opts SaveOptions) (Document, error)
		Get(ctx context.Context, scope agentscope.Scope, id string) (*Document, error)
		GetByKey(ctx context.Context, scope agentscope.Scope, docType, key string) (*Document, error)
		Query(ctx context.Context, scope agentscope.Scope, filter Filter) ([]Document, error)
		Update(ctx context.Context, scope agentscope.Scope, doc Document) (bool, error)
		Delete(ctx context.Context, scope agentscope.Scope, id string) (bool, error)
		DeleteMany(ctx context.Context, scope agentscope.Scope, ids []string) (int, error)
	}
)

// Expired reports whether the document's TTL has elapsed at now.
func (d Document) Expired(now time.Time) bool {
	return d.ExpiresAt != nil && now.After(*d.ExpiresAt)
}
