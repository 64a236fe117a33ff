package breaker

import (
	"sort"
	"sync"

	apperrors "github.com/asaCurry/prescriber-point-sub001/pkg/errors"
)

// Operation names shared by generation callers.
const (
	OperationEnrichment   = "enrichment"
	OperationRelatedDrugs = "related_drugs"
)

// Registry owns one breaker per operation name for the lifetime of the process.
type Registry struct {
	settings Settings

	mu       sync.RWMutex
	breakers map[string]*Breaker
}

// NewRegistry creates a registry whose breakers share the given settings.
func NewRegistry(settings Settings) *Registry {
	return &Registry{
		settings: settings,
		breakers: make(map[string]*Breaker),
	}
}

// Get returns the breaker for name, creating it on first use.
func (r *Registry) Get(name string) *Breaker {
	r.mu.RLock()
	b, ok := r.breakers[name]
	r.mu.RUnlock()
	if ok {
		return b
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok = r.breakers[name]; ok {
		return b
	}
	b = New(name, r.settings)
	r.breakers[name] = b
	return b
}

// Reset closes the named breaker.
func (r *Registry) Reset(name string) error {
	r.mu.RLock()
	b, ok := r.breakers[name]
	r.mu.RUnlock()
	if !ok {
		return apperrors.NewNotFoundError("no breaker registered for operation " + name)
	}
	b.Reset()
	return nil
}

// ResetAll closes every breaker.
func (r *Registry) ResetAll() {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, b := range r.breakers {
		b.Reset()
	}
}

// Snapshot lists every breaker ordered by name.
func (r *Registry) Snapshot() []Snapshot {
	r.mu.RLock()
	out := make([]Snapshot, 0, len(r.breakers))
	for _, b := range r.breakers {
		out = append(out, b.Snapshot())
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
