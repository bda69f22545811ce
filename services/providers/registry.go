package providers

import (
	"errors"
	"fmt"
	"sort"
)

var (
	// ErrProviderNotFound is returned when a provider is not registered
	ErrProviderNotFound = errors.New("provider not found")

	// ErrNoProviders is returned when a registry is built without providers
	ErrNoProviders = errors.New("at least one provider is required")
)

// Descriptor describes one registered provider. Descriptors are immutable
// after registry construction.
type Descriptor struct {
	// Name uniquely identifies the provider
	Name string

	// Priority determines fallback order; lower values are tried first
	Priority int

	// SupportsStreaming indicates whether the backend can stream fragments
	SupportsStreaming bool

	// Provider is the backend adapter handle
	Provider Provider
}

// Registry holds the priority-ordered provider list. It is built once from
// configuration and never mutated, so every call observes the same
// deterministic order: priority ascending, then registration order.
type Registry struct {
	descriptors []Descriptor
	byName      map[string]Descriptor
}

// NewRegistry builds a registry from the given descriptors. Names must be
// unique and non-empty; every descriptor needs a backend adapter.
func NewRegistry(descriptors []Descriptor) (*Registry, error) {
	if len(descriptors) == 0 {
		return nil, ErrNoProviders
	}

	byName := make(map[string]Descriptor, len(descriptors))
	ordered := make([]Descriptor, len(descriptors))
	copy(ordered, descriptors)

	for _, d := range ordered {
		if d.Name == "" {
			return nil, errors.New("provider name cannot be empty")
		}
		if d.Provider == nil {
			return nil, fmt.Errorf("provider %q has no backend adapter", d.Name)
		}
		if _, exists := byName[d.Name]; exists {
			return nil, fmt.Errorf("duplicate provider name %q", d.Name)
		}
		byName[d.Name] = d
	}

	// Stable sort preserves registration order among equal priorities.
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Priority < ordered[j].Priority
	})

	return &Registry{descriptors: ordered, byName: byName}, nil
}

// Descriptors returns the providers in fallback order. The returned slice is
// a copy; callers cannot mutate registry state through it.
func (r *Registry) Descriptors() []Descriptor {
	out := make([]Descriptor, len(r.descriptors))
	copy(out, r.descriptors)
	return out
}

// Get retrieves a descriptor by provider name
func (r *Registry) Get(name string) (Descriptor, error) {
	d, exists := r.byName[name]
	if !exists {
		return Descriptor{}, ErrProviderNotFound
	}
	return d, nil
}

// Names returns provider names in fallback order
func (r *Registry) Names() []string {
	names := make([]string, len(r.descriptors))
	for i, d := range r.descriptors {
		names[i] = d.Name
	}
	return names
}

// Len returns the number of registered providers
func (r *Registry) Len() int {
	return len(r.descriptors)
}
