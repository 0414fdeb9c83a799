// Package registry tracks the subject identifiers produced so far within
// one task execution and their paradigm memberships. Document and event
// generators look identifiers up here, which is what enforces that every
// reference points at a profile or archive record produced earlier in the
// same task.
//
// A Registry is owned exclusively by the orchestrator for the lifetime of
// one task execution and rebuilt deterministically on resume.
package registry

import (
	"sync"

	"github.com/xraph/simbank"
)

// View is the read-only surface handed to generators for dependency
// lookups. Generators must be pure with respect to it.
type View interface {
	// Has reports whether the identifier was produced under the entity type.
	Has(et simbank.EntityType, baseID string) bool

	// IDs returns every identifier produced under the entity type, in
	// production order. The returned slice must not be mutated.
	IDs(et simbank.EntityType) []string

	// Count returns how many identifiers the entity type has produced.
	Count(et simbank.EntityType) int
}

// Registry is the task-scoped identifier set. Safe for concurrent use:
// independent entity types within one ordering stage may register
// concurrently.
type Registry struct {
	mu      sync.RWMutex
	byType  map[simbank.EntityType][]string
	members map[simbank.EntityType]map[string]struct{}
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{
		byType:  make(map[simbank.EntityType][]string),
		members: make(map[simbank.EntityType]map[string]struct{}),
	}
}

// Register records identifiers produced under the entity type, preserving
// production order. Duplicate registrations are ignored.
func (r *Registry) Register(et simbank.EntityType, baseIDs ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	set := r.members[et]
	if set == nil {
		set = make(map[string]struct{})
		r.members[et] = set
	}
	for _, baseID := range baseIDs {
		if _, dup := set[baseID]; dup {
			continue
		}
		set[baseID] = struct{}{}
		r.byType[et] = append(r.byType[et], baseID)
	}
}

// Has reports whether the identifier was produced under the entity type.
func (r *Registry) Has(et simbank.EntityType, baseID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.members[et][baseID]
	return ok
}

// IDs returns every identifier produced under the entity type, in
// production order.
func (r *Registry) IDs(et simbank.EntityType) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byType[et]
}

// Count returns how many identifiers the entity type has produced.
func (r *Registry) Count(et simbank.EntityType) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byType[et])
}

var _ View = (*Registry)(nil)
