// Package synthesis coordinates the synthesis pipeline: provider registry,
// health-aware selection, the result cache and the fallback loop live here.
package synthesis

import (
	"sync"

	"chorus-server-go/internal/contracts/providers"
	"chorus-server-go/internal/platform/errors"
)

// Registry holds the active synthesis providers. Registration order is
// significant: it is the tie-break order used when scores are equal.
type Registry struct {
	mu     sync.RWMutex
	order  []string
	byName map[string]providers.SynthesisProvider
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]providers.SynthesisProvider)}
}

// Register adds an already-initialized provider under its own name.
func (r *Registry) Register(p providers.SynthesisProvider) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := p.Name()
	if _, exists := r.byName[name]; exists {
		return errors.New(errors.KindConfig, "registry.Register", "provider already registered: "+name)
	}
	r.byName[name] = p
	r.order = append(r.order, name)
	return nil
}

// Get resolves a provider by tag.
func (r *Registry) Get(name string) (providers.SynthesisProvider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.byName[name]
	return p, ok
}

// Order returns the provider tags in registration order.
func (r *Registry) Order() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Capabilities resolves a provider tag to its static capabilities. Satisfies
// the selector's capability view.
func (r *Registry) Capabilities(name string) (providers.Capabilities, bool) {
	p, ok := r.Get(name)
	if !ok {
		return providers.Capabilities{}, false
	}
	return p.Capabilities(), true
}

// Voices aggregates the builtin voice catalogs of every registered provider,
// in registration order.
func (r *Registry) Voices() []providers.Voice {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []providers.Voice
	for _, name := range r.order {
		out = append(out, r.byName[name].Voices()...)
	}
	return out
}

// CleanupAll tears down every provider, returning the first failure.
func (r *Registry) CleanupAll() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var first error
	for _, name := range r.order {
		if err := r.byName[name].Cleanup(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
