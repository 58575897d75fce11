package secret

import (
	"context"

	"github.com/xians-ai/sdk-go/runtime/agentscope"
	"github.com/xians-ai/sdk-go/runtime/executor"
)

// Activity names registered on every worker.
const (
	ActivityGet    = "SecretActivity.Get"
	ActivitySet    = "SecretActivity.Set"
	ActivityDelete = "SecretActivity.Delete"
	ActivityList   = "SecretActivity.List"
)

type (
	// RefInput is the activity input for Get and Delete.
	RefInput struct {
		Scope agentscope.Scope `json:"scope"`
		Ref   Ref              `json:"ref"`
	}

	// SetInput is the activity input for Set.
	SetInput struct {
		Scope  agentscope.Scope `json:"scope"`
		Secret Secret           `json:"secret"`
	}

	// ListInput is the activity input for List.
	ListInput struct {
		Scope         agentscope.Scope `json:"scope"`
		Kind          ScopeKind        `json:"kind"`
		ParticipantID string           `json:"participantId,omitempty"`
	}

	// Activities exposes the vault as worker activities.
	Activities struct {
		provider Provider
	}

	// Facade builds scoped accessors for one agent.
	Facade struct {
		provider Provider
		resolver agentscope.Resolver
	}

	// Scoped is the CRUD surface at one scope kind.
	Scoped struct {
		facade        *Facade
		kind          ScopeKind
		participantID string
	}
)

// NewActivities binds the activity set to a provider.
func NewActivities(provider Provider) *Activities {
	return &Activities{provider: provider}
}

func (a *Activities) Get(ctx context.Context, in RefInput) (*Secret, error) {
	return a.provider.Get(ctx, in.Scope, in.Ref)
}

func (a *Activities) Set(ctx context.Context, in SetInput) error {
	return a.provider.Set(ctx, in.Scope, in.Secret)
}

func (a *Activities) Delete(ctx context.Context, in RefInput) (bool, error) {
	return a.provider.Delete(ctx, in.Scope, in.Ref)
}

func (a *Activities) List(ctx context.Context, in ListInput) ([]string, error) {
	return a.provider.List(ctx, in.Scope, in.Kind, in.ParticipantID)
}

// NewFacade builds the per-agent facade.
func NewFacade(provider Provider, resolver agentscope.Resolver) *Facade {
	return &Facade{provider: provider, resolver: resolver}
}

// Tenant scopes subsequent operations to the tenant level.
func (f *Facade) Tenant() *Scoped {
	return &Scoped{facade: f, kind: ScopeTenant}
}

// Agent scopes subsequent operations to the agent level.
func (f *Facade) Agent() *Scoped {
	return &Scoped{facade: f, kind: ScopeAgent}
}

// User scopes subsequent operations to one participant.
func (f *Facade) User(participantID string) *Scoped {
	return &Scoped{facade: f, kind: ScopeUser, participantID: participantID}
}

func (s *Scoped) ref(key string) Ref {
	return Ref{Kind: s.kind, ParticipantID: s.participantID, Key: key}
}

// Get returns the secret value, reporting false when absent.
func (s *Scoped) Get(ctx context.Context, key string) (string, bool, error) {
	scope, err := s.facade.resolver.Resolve(ctx)
	if err != nil {
		return "", false, err
	}
	in := RefInput{Scope: scope, Ref: s.ref(key)}
	secret, err := executor.Execute(ctx, ActivityGet, in, func(c context.Context) (*Secret, error) {
		return s.facade.provider.Get(c, scope, in.Ref)
	})
	if err != nil {
		return "", false, err
	}
	if secret == nil {
		return "", false, nil
	}
	return secret.Value, true, nil
}

// Set creates or replaces the secret.
func (s *Scoped) Set(ctx context.Context, key, value string) error {
	scope, err := s.facade.resolver.Resolve(ctx)
	if err != nil {
		return err
	}
	in := SetInput{Scope: scope, Secret: Secret{Ref: s.ref(key), Value: value}}
	return executor.Run(ctx, ActivitySet, in, func(c context.Context) error {
		return s.facade.provider.Set(c, scope, in.Secret)
	})
}

// Delete removes the secret, reporting whether it existed.
func (s *Scoped) Delete(ctx context.Context, key string) (bool, error) {
	scope, err := s.facade.resolver.Resolve(ctx)
	if err != nil {
		return false, err
	}
	in := RefInput{Scope: scope, Ref: s.ref(key)}
	return executor.Execute(ctx, ActivityDelete, in, func(c context.Context) (bool, error) {
		return s.facade.provider.Delete(c, scope, in.Ref)
	})
}

// List returns the keys stored at this scope.
func (s *Scoped) List(ctx context.Context) ([]string, error) {
	scope, err := s.facade.resolver.Resolve(ctx)
	if err != nil {
		return nil, err
	}
	in := ListInput{Scope: scope, Kind: s.kind, ParticipantID: s.participantID}
	return executor.Execute(ctx, ActivityList, in, func(c context.Context) ([]string, error) {
		return s.facade.provider.List(c, scope, in.Kind, in.ParticipantID)
	})
}
