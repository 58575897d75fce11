package secret

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/xians-ai/sdk-go/runtime/agentscope"
)

// LocalProvider keeps secrets in memory for local mode and tests.
// Thread-safe, not persisted.
type LocalProvider struct {
	mu      sync.RWMutex
	secrets map[string]string
}

// NewLocalProvider builds an empty in-memory vault.
func NewLocalProvider() *LocalProvider {
	return &LocalProvider{secrets: make(map[string]string)}
}

var _ Provider = (*LocalProvider)(nil)

func localKey(scope agentscope.Scope, ref Ref) string {
	return strings.Join([]string{scope.TenantID, scope.Agent, string(ref.Kind), ref.ParticipantID, ref.Key}, "\x00")
}

func (p *LocalProvider) Get(ctx context.Context, scope agentscope.Scope, ref Ref) (*Secret, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	value, ok := p.secrets[localKey(scope, ref)]
	if !ok {
		return nil, nil
	}
	return &Secret{Ref: ref, Value: value}, nil
}

func (p *LocalProvider) Set(ctx context.Context, scope agentscope.Scope, secret Secret) error {
	p.mu.Lock()
	p.secrets[localKey(scope, secret.Ref)] = secret.Value
	p.mu.Unlock()
	return nil
}

func (p *LocalProvider) Delete(ctx context.Context, scope agentscope.Scope, ref Ref) (bool, error) {
	key := localKey(scope, ref)
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.secrets[key]; !ok {
		return false, nil
	}
	delete(p.secrets, key)
	return true, nil
}

func (p *LocalProvider) List(ctx context.Context, scope agentscope.Scope, kind ScopeKind, participantID string) ([]string, error) {
	prefix := strings.Join([]string{scope.TenantID, scope.Agent, string(kind), participantID, ""}, "\x00")
	p.mu.RLock()
	defer p.mu.RUnlock()
	var keys []string
	for key := range p.secrets {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, strings.TrimPrefix(key, prefix))
		}
	}
	sort.Strings(keys)
	return keys, nil
}
