package auth

import (
	"fmt"
	"slices"

	"github.com/BlackMission/credlink/internal/domain"
)

// Registry maps provider names to their implementations and remembers
// registration order.
type Registry struct {
	providers map[string]Provider
	order     []string
}

// NewRegistry creates an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[string]Provider),
	}
}

// Register adds a provider to the registry.
func (r *Registry) Register(p Provider) error {
	name := p.Name()
	if _, exists := r.providers[name]; exists {
		return fmt.Errorf("%w: %s", domain.ErrDuplicateProvider, name)
	}
	r.providers[name] = p
	r.order = append(r.order, name)
	return nil
}

// Get returns a provider by name.
func (r *Registry) Get(name string) (Provider, error) {
	p, ok := r.providers[name]
	if !ok {
		return nil, domain.ErrProviderNotFound
	}
	return p, nil
}

// Names returns the registered provider names in registration order.
func (r *Registry) Names() []string {
	return slices.Clone(r.order)
}

// Require checks that every name is registered.
func (r *Registry) Require(names ...string) error {
	for _, name := range names {
		if _, ok := r.providers[name]; !ok {
			return fmt.Errorf("%w: %s", domain.ErrProviderNotFound, name)
		}
	}
	return nil
}
