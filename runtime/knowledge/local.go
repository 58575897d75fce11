package knowledge

import (
	"context"
	"fmt"
	"io/fs"
	"path"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/xians-ai/sdk-go/runtime/agentscope"
)

type (
	// LocalProvider serves knowledge from YAML seed files with an in-memory
	// overlay for mutations. The seed index is built once at construction
	// and immutable afterwards; the overlay is per tenant+agent,
	// thread-safe, and lost on process exit.
	LocalProvider struct {
		seeds map[string]Knowledge // key: scopeKey + "/" + name

		mu      sync.RWMutex
		overlay map[string]*Knowledge // nil value marks a deletion
	}

	seedFile struct {
		Agent   string      `yaml:"agent"`
		Entries []seedEntry `yaml:"entries"`
	}

	seedEntry struct {
		Name    string `yaml:"name"`
		Content string `yaml:"content"`
		Type    string `yaml:"type"`
	}
)

// NewLocalProvider indexes every *.yaml / *.yml file under root. Seed files
// declare the owning agent and a list of entries; seeded knowledge is
// visible to every tenant.
func NewLocalProvider(root fs.FS) (*LocalProvider, error) {
	p := &LocalProvider{
		seeds:   make(map[string]Knowledge),
		overlay: make(map[string]*Knowledge),
	}
	if root == nil {
		return p, nil
	}
	err := fs.WalkDir(root, ".", func(fpath string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		ext := strings.ToLower(path.Ext(fpath))
		if ext != ".yaml" && ext != ".yml" {
			return nil
		}
		raw, err := fs.ReadFile(root, fpath)
		if err != nil {
			return fmt.Errorf("read seed %s: %w", fpath, err)
		}
		var file seedFile
		if err := yaml.Unmarshal(raw, &file); err != nil {
			return fmt.Errorf("parse seed %s: %w", fpath, err)
		}
		for _, e := range file.Entries {
			if e.Name == "" {
				continue
			}
			p.seeds[file.Agent+"/"+e.Name] = Knowledge{
				Name:    e.Name,
				Content: e.Content,
				Type:    e.Type,
				Agent:   file.Agent,
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

var _ Provider = (*LocalProvider)(nil)

func overlayKey(scope agentscope.Scope, name string) string {
	return scope.TenantID + "/" + scope.Agent + "/" + name
}

// Get prefers the overlay over the seed index; a nil overlay entry hides a
// deleted seed.
func (p *LocalProvider) Get(ctx context.Context, scope agentscope.Scope, name string) (*Knowledge, error) {
	p.mu.RLock()
	entry, overlaid := p.overlay[overlayKey(scope, name)]
	p.mu.RUnlock()
	if overlaid {
		if entry == nil {
			return nil, nil
		}
		copied := *entry
		return &copied, nil
	}
	if seed, ok := p.seeds[scope.Agent+"/"+name]; ok {
		seed.TenantID = scope.TenantID
		return &seed, nil
	}
	return nil, nil
}

// Upsert writes into the overlay only; seeds stay pristine.
func (p *LocalProvider) Upsert(ctx context.Context, scope agentscope.Scope, k Knowledge) error {
	stored := Knowledge{
		Name:      k.Name,
		Content:   k.Content,
		Type:      k.Type,
		Agent:     scope.Agent,
		TenantID:  scope.TenantID,
		UpdatedAt: time.Now().UTC(),
	}
	p.mu.Lock()
	p.overlay[overlayKey(scope, k.Name)] = &stored
	p.mu.Unlock()
	return nil
}

// Delete records a tombstone in the overlay. Reports whether an entry was
// visible beforehand.
func (p *LocalProvider) Delete(ctx context.Context, scope agentscope.Scope, name string) (bool, error) {
	existing, err := p.Get(ctx, scope, name)
	if err != nil {
		return false, err
	}
	p.mu.Lock()
	p.overlay[overlayKey(scope, name)] = nil
	p.mu.Unlock()
	return existing != nil, nil
}

// List merges seeds with the overlay, honoring tombstones.
func (p *LocalProvider) List(ctx context.Context, scope agentscope.Scope) ([]Knowledge, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	merged := make(map[string]*Knowledge)
	for key, seed := range p.seeds {
		if !strings.HasPrefix(key, scope.Agent+"/") {
			continue
		}
		copied := seed
		copied.TenantID = scope.TenantID
		merged[seed.Name] = &copied
	}
	prefix := scope.TenantID + "/" + scope.Agent + "/"
	for key, entry := range p.overlay {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		name := strings.TrimPrefix(key, prefix)
		if entry == nil {
			delete(merged, name)
			continue
		}
		copied := *entry
		merged[name] = &copied
	}

	out := make([]Knowledge, 0, len(merged))
	for _, k := range merged {
		out = append(out, *k)
	}
	return out, nil
}
