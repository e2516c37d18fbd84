package publisher

import (
	"fmt"
	"sort"
	"sync"

	log "github.com/sirupsen/logrus"
)

// Factory constructs a publisher. It is called at most once per Handle.
type Factory func() (Publisher, error)

// Registry maps publisher names to their factories. It is safe for
// concurrent use.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds or replaces the factory of a publisher name.
func (r *Registry) Register(name string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.factories[name]; ok {
		log.Infof("Replacing %s publisher factory", name)
	}

	r.factories[name] = f
}

// Names returns the registered publisher names in order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for n := range r.factories {
		names = append(names, n)
	}

	sort.Strings(names)
	return names
}

// Create resolves the name and constructs the publisher. It does not
// call Init.
func (r *Registry) Create(name string) (Publisher, error) {
	r.mu.RLock()
	f, ok := r.factories[name]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPublisher, name)
	}

	p, err := f()
	if err != nil {
		return nil, fmt.Errorf("failed to create publisher %q: %w", name, err)
	}

	if p == nil {
		return nil, fmt.Errorf("failed to create publisher %q: factory returned nil", name)
	}

	return p, nil
}
