// Package provider defines the contract every place-data source adapter
// implements, plus the shared plumbing adapters build on.
package provider

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sells-group/leadgen-cli/internal/model"
)

// RateLimit is the self-imposed request budget of an adapter.
type RateLimit struct {
	Requests int           `json:"requests"`
	Per      time.Duration `json:"per"`
}

func (r RateLimit) String() string {
	return fmt.Sprintf("%d/%s", r.Requests, r.Per)
}

// Provider is a place-data source.
type Provider interface {
	// ID returns the stable identifier used in config and usage maps.
	ID() string
	// Name returns the human-readable source name tagged on leads.
	Name() string
	// Search returns at most limit leads for category in location.
	Search(ctx context.Context, location, category string, limit int) ([]model.RawLead, error)
	// CalculateCredits returns the quota cost of a search that asked for
	// limit results and got count.
	CalculateCredits(limit, count int) int
	// RateLimit returns the adapter's own request budget.
	RateLimit() RateLimit
	// Available reports whether the adapter is enabled and configured.
	Available() bool
}

// Registry holds adapters in registration order.
type Registry struct {
	mu        sync.RWMutex
	order     []string
	providers map[string]Provider
}

// NewRegistry creates an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[string]Provider),
	}
}

// Register adds a provider. Re-registering an ID replaces the adapter but
// keeps its original position.
func (r *Registry) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.providers[p.ID()]; !ok {
		r.order = append(r.order, p.ID())
	}
	r.providers[p.ID()] = p
}

// Get returns a provider by ID, or nil if not found.
func (r *Registry) Get(id string) Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.providers[id]
}

// All returns every provider in registration order.
func (r *Registry) All() []Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Provider, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.providers[id])
	}
	return out
}

// IDs returns every registered ID in registration order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// Pages returns how many pages of size are needed for count items.
func Pages(count, size int) int {
	if count <= 0 || size <= 0 {
		return 0
	}
	return (count + size - 1) / size
}
