// Package store holds the normalized cache's data model and its pure
// reducer. Nothing in this package performs I/O, and nothing here
// mutates in place: Reduce always returns a new State built from deep
// copies of the parts it touched, the same discipline a Redux-style
// reducer from the host application would expect.
package store

import "fmt"

// Ref is a stable reference to an entity: its GraphQL typename plus the
// value of its identity field. Everything downstream — the dependency
// index, the denormalizer, the mutation engine — addresses entities
// through a Ref rather than holding a pointer to the entity body, so
// cyclic references between entities are free.
type Ref struct {
	Type string
	ID   string
}

// Key renders the Ref in the "type.id" form the dependency index and
// log lines use.
func (r Ref) Key() string { return fmt.Sprintf("%s.%s", r.Type, r.ID) }

func (r Ref) IsZero() bool { return r.Type == "" && r.ID == "" }

// Entity is one normalized object: its Ref plus its field values. A
// field value is one of: a scalar (string/float64/bool/nil), a Ref, a
// []Ref, a nested map[string]any for an inline (identity-less) object,
// or a []any of any of the above.
type Entity struct {
	Ref    Ref
	Fields map[string]any
}

// CallerKey names one denormalized response: a logical query consumer
// plus an optional instance key (the list-item identity analogue).
// An empty InstanceKey means "unkeyed" — the common case of a caller
// with a single response, not one per list item.
type CallerKey struct {
	CallerID    string
	InstanceKey string
}

func (c CallerKey) String() string {
	if c.InstanceKey == "" {
		return c.CallerID
	}
	return c.CallerID + "#" + c.InstanceKey
}

// EntityTable is the normalized store's entity section: typeName ->
// idValue -> field values.
type EntityTable map[string]map[string]map[string]any

// State is the whole of what the reducer owns. The host application's
// Store implementation is expected to hold exactly one State value and
// swap it on every Dispatch, the same way a Redux store swaps its root
// state.
type State struct {
	Entities  EntityTable
	Result    map[CallerKey]any
	Variables map[CallerKey]map[string]any
	Error     error
}

// NewState returns an empty, ready-to-use State.
func NewState() State {
	return State{
		Entities:  EntityTable{},
		Result:    map[CallerKey]any{},
		Variables: map[CallerKey]map[string]any{},
	}
}

// GetEntity looks up the raw field map for ref, returning ok=false when
// the entity is absent from the store — the normal, non-error "missing
// data" case described by invariant I1.
func (s State) GetEntity(ref Ref) (map[string]any, bool) {
	byID, ok := s.Entities[ref.Type]
	if !ok {
		return nil, false
	}
	fields, ok := byID[ref.ID]
	return fields, ok
}
