// Package deps is the bidirectional dependency index between entities
// and callers (spec component C3). It owns no entity data itself —
// only the edges — and is safe for concurrent use since the coordinator
// may be driving several callers' fast paths from pool workers at once.
package deps

import (
	"sync"

	"github.com/shashiranjanraj/graphcache/internal/store"
)

// Index is the dependency graph. normalized maps a caller to the set of
// entities its last denormalization touched; denormalized is the exact
// inverse, so invariant I2 ("T.i" in normalized[c] iff c in
// denormalized[T][i]) can be checked directly from the two maps.
type Index struct {
	mu           sync.RWMutex
	normalized   map[store.CallerKey]map[string]struct{}
	denormalized map[string]map[store.CallerKey]struct{} // "type.id" -> callers
}

// New returns an empty Index.
func New() *Index {
	return &Index{
		normalized:   map[store.CallerKey]map[string]struct{}{},
		denormalized: map[string]map[store.CallerKey]struct{}{},
	}
}

// AddDeps records that caller's denormalization touched exactly the
// entities in refs, replacing whatever set was recorded for it before.
// Edges present before the call but absent from refs are removed from
// both maps; new edges are added to both — this is what keeps the two
// structures consistent inverses (I2).
func (idx *Index) AddDeps(caller store.CallerKey, refs []store.Ref) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	next := make(map[string]struct{}, len(refs))
	for _, r := range refs {
		next[r.Key()] = struct{}{}
	}

	prev := idx.normalized[caller]
	for key := range prev {
		if _, stillPresent := next[key]; !stillPresent {
			idx.removeEdge(caller, key)
		}
	}
	for key := range next {
		idx.addEdge(caller, key)
	}

	if len(next) == 0 {
		delete(idx.normalized, caller)
		return
	}
	idx.normalized[caller] = next
}

func (idx *Index) addEdge(caller store.CallerKey, key string) {
	if idx.normalized[caller] == nil {
		idx.normalized[caller] = map[string]struct{}{}
	}
	idx.normalized[caller][key] = struct{}{}

	if idx.denormalized[key] == nil {
		idx.denormalized[key] = map[store.CallerKey]struct{}{}
	}
	idx.denormalized[key][caller] = struct{}{}
}

func (idx *Index) removeEdge(caller store.CallerKey, key string) {
	delete(idx.normalized[caller], key)
	if callers := idx.denormalized[key]; callers != nil {
		delete(callers, caller)
		if len(callers) == 0 {
			delete(idx.denormalized, key)
		}
	}
}

// FlushDependencies returns every caller (other than origin) whose
// dependency set intersects changed — the set of callers whose cached
// denormalized response must be cleared because one of its entities
// just changed. The origin caller is excluded per I5/4.3: the
// coordinator already replaces the origin's own cached response in the
// same pass, so flushing it too would be redundant work, not a
// correctness requirement.
func (idx *Index) FlushDependencies(changed []store.Ref, origin store.CallerKey) []store.CallerKey {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	seen := map[store.CallerKey]struct{}{}
	var out []store.CallerKey
	for _, ref := range changed {
		for caller := range idx.denormalized[ref.Key()] {
			if caller == origin {
				continue
			}
			if _, already := seen[caller]; already {
				continue
			}
			seen[caller] = struct{}{}
			out = append(out, caller)
		}
	}
	return out
}

// DepsOf returns the entity refs currently recorded for caller, mostly
// useful from tests asserting I2 directly.
func (idx *Index) DepsOf(caller store.CallerKey) []string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	keys := make([]string, 0, len(idx.normalized[caller]))
	for k := range idx.normalized[caller] {
		keys = append(keys, k)
	}
	return keys
}

// CallersOf returns every caller currently depending on the entity
// identified by key ("type.id").
func (idx *Index) CallersOf(key string) []store.CallerKey {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	out := make([]store.CallerKey, 0, len(idx.denormalized[key]))
	for c := range idx.denormalized[key] {
		out = append(out, c)
	}
	return out
}

// Forget drops every edge for caller — used when a caller unsubscribes.
func (idx *Index) Forget(caller store.CallerKey) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	for key := range idx.normalized[caller] {
		idx.removeEdge(caller, key)
	}
	delete(idx.normalized, caller)
}
