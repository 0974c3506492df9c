package graphcache

import (
	"context"
	"encoding/json"

	"github.com/shashiranjanraj/graphcache/internal/store"
	"github.com/shashiranjanraj/graphcache/schema"
)

// Store is the host application's observable state container — exactly
// one store.State, swapped on every Dispatch. reduxstore.Store is the
// reference implementation; any other Redux-style store works as long
// as Dispatch/GetState round-trip through internal/store's pure reducer.
type Store interface {
	Dispatch(store.Action)
	GetState() store.State
}

// Transport ships a minimized query, a literal mutation document, or a
// subscription handshake to wherever the schema is actually served.
// transport/httptransport, transport/wstransport and
// transport/redistransport are the reference implementations.
type Transport interface {
	Execute(ctx context.Context, query string, variables map[string]any) (json.RawMessage, error)
}

// SchemaSource is the field-type lookup every walk in this module needs
// — the same shape as normalize.SchemaSource, restated here so callers
// building a Config never need to import an internal package.
// *schema.Builder satisfies it directly.
type SchemaSource interface {
	TypeInfo(name string) (schema.TypeInfo, bool)
	FieldReturnType(parentType, fieldName, typename string) (schema.TypeInfo, error)
}

// PaginationWords renames the four reserved cursor argument names for
// schemas that don't follow the Relay before/after/first/last
// convention. Fields left empty keep their Relay default.
type PaginationWords struct {
	Before, After, First, Last string
}

// Config is the argument to New and to the package-level Configure. It
// mirrors spec.md §6's configuration table; Store, Schema and Transport
// are the only fields with no usable zero value.
type Config struct {
	Store     Store        `json:"store" validate:"required"`
	Schema    SchemaSource `json:"schema" validate:"required"`
	Transport Transport    `json:"transport" validate:"required"`

	// PriorityTransport, when non-nil, overrides Transport for every
	// operation — e.g. a websocket transport that subscriptions already
	// hold open, used for queries and mutations too rather than paying
	// for a second connection.
	PriorityTransport Transport `json:"priorityTransport"`

	// GetToState maps the host store to the cache's slice of its state,
	// for hosts that nest the cache state inside a larger tree. Nil
	// means Store.GetState() already returns the cache slice.
	GetToState func(Store) store.State `json:"-"`

	// Pagination renames the reserved cursor argument names. The zero
	// value keeps the Relay defaults.
	Pagination PaginationWords `json:"pagination"`

	// Debug forces the process-wide log level to DEBUG regardless of
	// LOG_LEVEL.
	Debug bool `json:"debug"`

	// QueryTypeName and MutationTypeName name the schema's root
	// operation types, used as the synthetic parent type for top-level
	// selections. QueryTypeName defaults to "Query". MutationTypeName
	// is informational only today: internal/mutation decides which
	// fields of a caller's own query to fold into a combined mutation
	// request by matching each Handler's declared GetType() against
	// that query's field return types (internal/mutation.buildPlan),
	// not by cross-checking against this root type name.
	QueryTypeName    string `json:"queryTypeName"`
	MutationTypeName string `json:"mutationTypeName"`

	// IDField names the identity field entities are keyed by. Defaults
	// to "id".
	IDField string `json:"idField"`

	// PoolSize bounds the worker pool used for fire-and-forget query
	// fetches. Zero disables the pool: fetches run on a bare goroutine
	// per call instead, fine for tests and small embeddings.
	PoolSize int `json:"poolSize"`
}

func (c Config) withDefaults() Config {
	if c.QueryTypeName == "" {
		c.QueryTypeName = "Query"
	}
	if c.MutationTypeName == "" {
		c.MutationTypeName = "Mutation"
	}
	if c.IDField == "" {
		c.IDField = "id"
	}
	if c.Pagination.Before == "" {
		c.Pagination.Before = "before"
	}
	if c.Pagination.After == "" {
		c.Pagination.After = "after"
	}
	if c.Pagination.First == "" {
		c.Pagination.First = "first"
	}
	if c.Pagination.Last == "" {
		c.Pagination.Last = "last"
	}
	return c
}
