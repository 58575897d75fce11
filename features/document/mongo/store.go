// Package mongo provides a MongoDB-backed document provider. Deployments
// that own their document storage plug it into the document facade in place
// of the backend HTTP provider.
package mongo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xians-ai/sdk-go/runtime/agentscope"
	"github.com/xians-ai/sdk-go/runtime/document"
)

type (
	// Options configures the store.
	Options struct {
		// Collection holds the documents. Required. Create a TTL index on
		// "expiresAt" so Mongo reaps expired documents.
		Collection *mongo.Collection
	}

	// Store implements document.Provider on a Mongo collection. Documents
	// are partitioned by tenant and agent fields on every query.
	Store struct {
		coll *mongo.Collection
	}

	record struct {
		ID        string         `bson:"_id"`
		TenantID  string         `bson:"tenantId"`
		Agent     string         `bson:"agent"`
		Type      string         `bson:"type"`
		Key       string         `bson:"key,omitempty"`
		Content   any            `bson:"content"`
		Metadata  map[string]any `bson:"metadata,omitempty"`
		CreatedAt time.Time      `bson:"createdAt"`
		UpdatedAt time.Time      `bson:"updatedAt"`
		ExpiresAt *time.Time     `bson:"expiresAt,omitempty"`
	}
)

// NewStore builds the provider.
func NewStore(opts Options) (*Store, error) {
	if opts.Collection == nil {
		return nil, errors.New("mongo document store: collection is required")
	}
	return &Store{coll: opts.Collection}, nil
}

var _ document.Provider = (*Store)(nil)

func scopeFilter(scope agentscope.Scope) bson.M {
	return bson.M{"tenantId": scope.TenantID, "agent": scope.Agent}
}

func toRecord(scope agentscope.Scope, doc document.Document) record {
	return record{
		ID:        doc.ID,
		TenantID:  scope.TenantID,
		Agent:     scope.Agent,
		Type:      doc.Type,
		Key:       doc.Key,
		Content:   doc.Content,
		Metadata:  doc.Metadata,
		CreatedAt: doc.CreatedAt,
		UpdatedAt: doc.UpdatedAt,
		ExpiresAt: doc.ExpiresAt,
	}
}

func (r record) toDocument() document.Document {
	return document.Document{
		ID:        r.ID,
		Type:      r.Type,
		Key:       r.Key,
		Content:   r.Content,
		Metadata:  r.Metadata,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
		ExpiresAt: r.ExpiresAt,
	}
}

func (s *Store) Save(ctx context.Context, scope agentscope.Scope, doc document.Document, opts document.SaveOptions) (document.Document, error) {
	now := time.Now().UTC()
	if opts.UseKeyAsIdentifier && doc.Key != "" {
		existing, err := s.GetByKey(ctx, scope, doc.Type, doc.Key)
		if err != nil {
			return document.Document{}, err
		}
		if existing != nil {
			doc.ID = existing.ID
			doc.CreatedAt = existing.CreatedAt
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

	filter := scopeFilter(scope)
	filter["_id"] = doc.ID
	_, err := s.coll.ReplaceOne(ctx, filter, toRecord(scope, doc), options.Replace().SetUpsert(true))
	if err != nil {
		return document.Document{}, err
	}
	return doc, nil
}

func (s *Store) Get(ctx context.Context, scope agentscope.Scope, id string) (*document.Document, error) {
	filter := scopeFilter(scope)
	filter["_id"] = id
	return s.findOne(ctx, filter)
}

func (s *Store) GetByKey(ctx context.Context, scope agentscope.Scope, docType, key string) (*document.Document, error) {
	filter := scopeFilter(scope)
	filter["type"] = docType
	filter["key"] = key
	return s.findOne(ctx, filter)
}

func (s *Store) findOne(ctx context.Context, filter bson.M) (*document.Document, error) {
	var r record
	err := s.coll.FindOne(ctx, filter).Decode(&r)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, err
	}
	doc := r.toDocument()
	if doc.Expired(time.Now()) {
		return nil, nil
	}
	return &doc, nil
}

func (s *Store) Query(ctx context.Context, scope agentscope.Scope, filter document.Filter) ([]document.Document, error) {
	q := scopeFilter(scope)
	if filter.Type != "" {
		q["type"] = filter.Type
	}
	if filter.Key != "" {
		q["key"] = filter.Key
	}
	for k, v := range filter.MetadataEquals {
		q["metadata."+k] = v
	}

	findOpts := options.Find()
	if filter.Limit > 0 {
		findOpts.SetLimit(int64(filter.Limit))
	}
	cursor, err := s.coll.Find(ctx, q, findOpts)
	if err != nil {
		return nil, err
	}
	defer func() { _ = cursor.Close(ctx) }()

	now := time.Now()
	var out []document.Document
	for cursor.Next(ctx) {
		var r record
		if err := cursor.Decode(&r); err != nil {
			return nil, err
		}
		doc := r.toDocument()
		if doc.Expired(now) {
			continue
		}
		out = append(out, doc)
	}
	return out, cursor.Err()
}

func (s *Store) Update(ctx context.Context, scope agentscope.Scope, doc document.Document) (bool, error) {
	existing, err := s.Get(ctx, scope, doc.ID)
	if err != nil {
		return false, err
	}
	if existing == nil {
		return false, nil
	}
	doc.CreatedAt = existing.CreatedAt
	doc.UpdatedAt = time.Now().UTC()
	if doc.ExpiresAt == nil {
		doc.ExpiresAt = existing.ExpiresAt
	}
	filter := scopeFilter(scope)
	filter["_id"] = doc.ID
	_, err = s.coll.ReplaceOne(ctx, filter, toRecord(scope, doc))
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) Delete(ctx context.Context, scope agentscope.Scope, id string) (bool, error) {
	filter := scopeFilter(scope)
	filter["_id"] = id
	res, err := s.coll.DeleteOne(ctx, filter)
	if err != nil {
		return false, err
	}
	return res.DeletedCount > 0, nil
}

func (s *Store) DeleteMany(ctx context.Context, scope agentscope.Scope, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	filter := scopeFilter(scope)
	filter["_id"] = bson.M{"$in": ids}
	res, err := s.coll.DeleteMany(ctx, filter)
	if err != nil {
		return 0, err
	}
	return int(res.DeletedCount), nil
}
