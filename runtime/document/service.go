package document

import (
	"context"

	"github.com/xians-ai/sdk-go/runtime/agentscope"
	"github.com/xians-ai/sdk-go/runtime/executor"
)

// Activity names registered on every worker.
const (
	ActivitySave       = "DocumentActivity.Save"
	ActivityGet        = "DocumentActivity.Get"
	ActivityGetByKey   = "DocumentActivity.GetByKey"
	ActivityQuery      = "DocumentActivity.Query"
	ActivityUpdate     = "DocumentActivity.Update"
	ActivityDelete     = "DocumentActivity.Delete"
	ActivityDeleteMany = "DocumentActivity.DeleteMany"
)

type (
	// SaveInput is the activity input for Save.
	SaveInput struct {
		Scope    agentscope.Scope `json:"scope"`
		Document Document         `json:"document"`
		Options  SaveOptions      `json:"options"`
	}

	// GetInput is the activity input for Get and Delete.
	GetInput struct {
		Scope agentscope.Scope `json:"scope"`
		ID    string           `json:"id"`
	}

	// KeyInput is the activity input for GetByKey.
	KeyInput struct {
		Scope agentscope.Scope `json:"scope"`
		Type  string           `json:"type"`
		Key   string           `json:"key"`
	}

	// QueryInput is the activity input for Query.
	QueryInput struct {
		Scope  agentscope.Scope `json:"scope"`
		Filter Filter           `json:"filter"`
	}

	// UpdateInput is the activity input for Update.
	UpdateInput struct {
		Scope    agentscope.Scope `json:"scope"`
		Document Document         `json:"document"`
	}

	// DeleteManyInput is the activity input for DeleteMany.
	DeleteManyInput struct {
		Scope agentscope.Scope `json:"scope"`
		IDs   []string         `json:"ids"`
	}

	// Activities exposes the provider as worker activities.
	Activities struct {
		provider Provider
	}

	// Facade is the context-aware per-agent entry point.
	Facade struct {
		provider Provider
		resolver agentscope.Resolver
	}
)

// NewActivities binds the activity set to a provider.
func NewActivities(provider Provider) *Activities {
	return &Activities{provider: provider}
}

func (a *Activities) Save(ctx context.Context, in SaveInput) (Document, error) {
	return a.provider.Save(ctx, in.Scope, in.Document, in.Options)
}

func (a *Activities) Get(ctx context.Context, in GetInput) (*Document, error) {
	return a.provider.Get(ctx, in.Scope, in.ID)
}

func (a *Activities) GetByKey(ctx context.Context, in KeyInput) (*Document, error) {
	return a.provider.GetByKey(ctx, in.Scope, in.Type, in.Key)
}

func (a *Activities) Query(ctx context.Context, in QueryInput) ([]Document, error) {
	return a.provider.Query(ctx, in.Scope, in.Filter)
}

func (a *Activities) Update(ctx context.Context, in UpdateInput) (bool, error) {
	return a.provider.Update(ctx, in.Scope, in.Document)
}

func (a *Activities) Delete(ctx context.Context, in GetInput) (bool, error) {
	return a.provider.Delete(ctx, in.Scope, in.ID)
}

func (a *Activities) DeleteMany(ctx context.Context, in DeleteManyInput) (int, error) {
	return a.provider.DeleteMany(ctx, in.Scope, in.IDs)
}

// NewFacade builds the per-agent facade.
func NewFacade(provider Provider, resolver agentscope.Resolver) *Facade {
	return &Facade{provider: provider, resolver: resolver}
}

// Save stores the document and returns it with identifiers and timestamps
// assigned.
func (f *Facade) Save(ctx context.Context, doc Document, opts SaveOptions) (Document, error) {
	scope, err := f.resolver.Resolve(ctx)
	if err != nil {
		return Document{}, err
	}
	return executor.Execute(ctx, ActivitySave, SaveInput{Scope: scope, Document: doc, Options: opts},
		func(c context.Context) (Document, error) {
			return f.provider.Save(c, scope, doc, opts)
		})
}

// Get returns the document by ID, or nil when absent or expired.
func (f *Facade) Get(ctx context.Context, id string) (*Document, error) {
	scope, err := f.resolver.Resolve(ctx)
	if err != nil {
		return nil, err
	}
	return executor.Execute(ctx, ActivityGet, GetInput{Scope: scope, ID: id},
		func(c context.Context) (*Document, error) {
			return f.provider.Get(c, scope, id)
		})
}

// GetByKey returns the document with the (type, key) pair, or nil.
func (f *Facade) GetByKey(ctx context.Context, docType, key string) (*Document, error) {
	scope, err := f.resolver.Resolve(ctx)
	if err != nil {
		return nil, err
	}
	return executor.Execute(ctx, ActivityGetByKey, KeyInput{Scope: scope, Type: docType, Key: key},
		func(c context.Context) (*Document, error) {
			return f.provider.GetByKey(c, scope, docType, key)
		})
}

// Query returns documents matching the filter.
func (f *Facade) Query(ctx context.Context, filter Filter) ([]Document, error) {
	scope, err := f.resolver.Resolve(ctx)
	if err != nil {
		return nil, err
	}
	return executor.Execute(ctx, ActivityQuery, QueryInput{Scope: scope, Filter: filter},
		func(c context.Context) ([]Document, error) {
			return f.provider.Query(c, scope, filter)
		})
}

// Update replaces the stored document, reporting whether it existed.
func (f *Facade) Update(ctx context.Context, doc Document) (bool, error) {
	scope, err := f.resolver.Resolve(ctx)
	if err != nil {
		return false, err
	}
	return executor.Execute(ctx, ActivityUpdate, UpdateInput{Scope: scope, Document: doc},
		func(c context.Context) (bool, error) {
			return f.provider.Update(c, scope, doc)
		})
}

// Delete removes the document by ID, reporting whether it existed.
func (f *Facade) Delete(ctx context.Context, id string) (bool, error) {
	scope, err := f.resolver.Resolve(ctx)
	if err != nil {
		return false, err
	}
	return executor.Execute(ctx, ActivityDelete, GetInput{Scope: scope, ID: id},
		func(c context.Context) (bool, error) {
			return f.provider.Delete(c, scope, id)
		})
}

// DeleteMany removes documents by ID, returning how many were deleted.
func (f *Facade) DeleteMany(ctx context.Context, ids []string) (int, error) {
	scope, err := f.resolver.Resolve(ctx)
	if err != nil {
		return 0, err
	}
	return executor.Execute(ctx, ActivityDeleteMany, DeleteManyInput{Scope: scope, IDs: ids},
		func(c context.Context) (int, error) {
			return f.provider.DeleteMany(c, scope, ids)
		})
}

// Exists reports whether the document is present and unexpired.
func (f *Facade) Exists(ctx context.Context, id string) (bool, error) {
	doc, err := f.Get(ctx, id)
	if err != nil {
		return false, err
	}
	return doc != nil, nil
}
