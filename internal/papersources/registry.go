package papersources

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/helixir/citation-network-service/internal/domain"
)

// Registry maps backend names such as "pubmed" to providers so the active
// backend can be chosen from configuration. It is safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[string]Provider),
	}
}

// Register adds p under name. Names are case-insensitive; registering an
// existing name replaces the previous provider.
func (r *Registry) Register(name string, p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[normalizeName(name)] = p
}

// Get returns the provider registered under name, or a configuration error
// listing the known names.
func (r *Registry) Get(name string) (Provider, error) {
	r.mu.RLock()
	p, ok := r.providers[normalizeName(name)]
	r.mu.RUnlock()
	if !ok {
		return nil, domain.NewConfigurationError("provider",
			fmt.Sprintf("unknown provider %q (available: %s)", name, strings.Join(r.Names(), ", ")))
	}
	return p, nil
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
