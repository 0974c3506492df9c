// Package graphcache is a client-side, normalized GraphQL cache and
// query coordinator: one store of entities keyed by (typename, id),
// denormalized per caller, kept in sync across queries, mutations and
// subscription patches without ever re-fetching data the store already
// has complete.
//
// A Cache wires together the three engines that do the actual work —
// internal/coordinator for queries, internal/mutation for mutations,
// internal/subscription for subscriptions — around one Store and one
// Transport. Build one with New, or use the package-level
// Configure/Query/Mutate/Subscribe/ApplyPatch wrappers for a
// process-wide singleton instance.
package graphcache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shashiranjanraj/graphcache/internal/coordinator"
	"github.com/shashiranjanraj/graphcache/internal/mutation"
	"github.com/shashiranjanraj/graphcache/internal/normalize"
	"github.com/shashiranjanraj/graphcache/internal/store"
	"github.com/shashiranjanraj/graphcache/internal/subscription"
	"github.com/shashiranjanraj/graphcache/pkg/logger"
	"github.com/shashiranjanraj/graphcache/pkg/validate"
	"github.com/shashiranjanraj/graphcache/pkg/workerpool"
)

// Cache is the embeddable facade over the three engines. Its zero value
// is not usable; build one with New.
type Cache struct {
	coord *coordinator.Coordinator
	mut   *mutation.Engine
	sub   *subscription.Engine
	pool  *workerpool.Pool
}

// New validates cfg and wires a Cache around it. The returned Cache's
// coordinator, mutation engine and subscription engine share cfg.Store
// and a single dependency index, so a mutation's authoritative pass or
// a subscription patch correctly flushes any query caller whose cached
// response depended on an entity either one just changed.
func New(cfg Config) (*Cache, error) {
	if errs := validate.Struct(cfg); validate.HasErrors(errs) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, errs)
	}
	cfg = cfg.withDefaults()

	if cfg.Debug {
		logger.SetLevel(slog.LevelDebug)
	}

	var pool *workerpool.Pool
	if cfg.PoolSize > 0 {
		pool = workerpool.New(cfg.PoolSize)
	}

	transport := cfg.Transport
	if cfg.PriorityTransport != nil {
		transport = cfg.PriorityTransport
	}

	storeHandle := cfg.Store
	if cfg.GetToState != nil {
		storeHandle = stateView{Store: cfg.Store, toState: cfg.GetToState}
	}

	words := normalize.PaginationWords(cfg.Pagination)

	coord := coordinator.New(storeHandle, adaptSchema(cfg.Schema), transport, cfg.IDField, cfg.QueryTypeName, pool)
	coord.SetPaginationWords(words)
	mut := mutation.New(storeHandle, adaptSchema(cfg.Schema), transport, coord, cfg.IDField)
	mut.SetPaginationWords(words)
	coord.OnNewCaller = mut.InvalidateForNewCaller
	sub := subscription.New(storeHandle, adaptSchema(cfg.Schema), cfg.IDField, cfg.QueryTypeName)
	sub.SetPaginationWords(words)

	return &Cache{coord: coord, mut: mut, sub: sub, pool: pool}, nil
}

// stateView routes GetState through a Config's GetToState mapping while
// dispatching straight to the underlying store — the getToState
// collaborator of spec.md §6.
type stateView struct {
	Store
	toState func(Store) store.State
}

func (v stateView) GetState() store.State { return v.toState(v.Store) }

// schemaAdapter lets a Config's SchemaSource satisfy
// normalize.SchemaSource without this package importing internal
// types into Config's own public surface.
type schemaAdapter struct{ SchemaSource }

func adaptSchema(s SchemaSource) normalize.SchemaSource { return schemaAdapter{s} }

// Close releases the worker pool backing fire-and-forget query fetches,
// if one was configured. Safe to call on a Cache built with
// PoolSize == 0.
func (c *Cache) Close() {
	if c.pool != nil {
		c.pool.Shutdown()
	}
}

// Query runs one caller's query against the cache: the fast path
// returns a cached denormalized response without touching the
// transport; the cold path returns whatever the store already has and
// fetches the rest in the background.
func (c *Cache) Query(ctx context.Context, callerID, document string, variables map[string]any) (json.RawMessage, error) {
	return c.coord.Query(ctx, callerID, document, coordinator.Options{Variables: variables})
}

// QueryWithOptions exposes the coordinator's full Options bag (instance
// keys, ForceFetch, LocalOnly) for callers that need more than the
// common case Query covers.
func (c *Cache) QueryWithOptions(ctx context.Context, callerID, document string, opts coordinator.Options) (json.RawMessage, error) {
	return c.coord.Query(ctx, callerID, document, opts)
}

// Refetch re-issues callerID's last query with ForceFetch set.
func (c *Cache) Refetch(callerID, instanceKey string) {
	c.coord.Refetch(store.CallerKey{CallerID: callerID, InstanceKey: instanceKey})
}

// RegisterMutationHandler binds h as callerID's handler for
// mutationName — h.Optimistic runs immediately when that mutation
// fires, h.Authoritative runs once the server responds.
func (c *Cache) RegisterMutationHandler(mutationName, callerID string, h mutation.Handler) {
	c.mut.RegisterHandler(mutationName, store.CallerKey{CallerID: callerID}, h)
}

// Mutate runs the optimistic/server/authoritative pipeline for
// mutationName and returns the server's raw response.
func (c *Cache) Mutate(ctx context.Context, mutationName, document string, variables map[string]any) (json.RawMessage, error) {
	resp, err := c.mut.Mutate(ctx, mutationName, document, variables, mutation.Options{})
	if errors.Is(err, mutation.ErrNoHandler) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownMutation, mutationName)
	}
	return resp, err
}

// Subscribe registers callerID's interest in a subscription document.
// ApplyPatch fans inbound patches out to every subscribed caller.
func (c *Cache) Subscribe(callerID, subscriptionText string, variables map[string]any) error {
	return c.sub.Subscribe(store.CallerKey{CallerID: callerID}, subscriptionText, variables)
}

// Unsubscribe drops callerID's subscription entry.
func (c *Cache) Unsubscribe(callerID string) {
	c.sub.Unsubscribe(store.CallerKey{CallerID: callerID})
}

// ApplyPatch folds one inbound add/update/remove event into every
// currently subscribed caller's view, the way a single pub/sub message
// reaches every listener on its topic rather than naming one. A patch
// whose path doesn't apply to a given subscriber's own selection set
// simply errors for that subscriber without affecting the others.
func (c *Cache) ApplyPatch(ctx context.Context, patch subscription.Patch) error {
	var firstErr error
	for _, caller := range c.sub.Callers() {
		err := c.sub.ApplyPatch(ctx, caller, patch, c.coord.FlushDependencies, c.coord.ClearCachedResponse)
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if errors.Is(firstErr, subscription.ErrPathRequired) {
		return fmt.Errorf("%w: %v", ErrBadPatchPath, firstErr)
	}
	return firstErr
}

// SubscriptionError records a transport-level subscription error
// against the store (SET_ERROR) without tearing down any subscriber.
func (c *Cache) SubscriptionError(err error) {
	c.sub.SetError(err)
}
