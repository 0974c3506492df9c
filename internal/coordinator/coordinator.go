// Package coordinator implements the query coordinator (spec component
// C5): the per-caller fast/cold path, in-flight request dedupe, and the
// merge of a server response back into the store.
package coordinator

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/shashiranjanraj/graphcache/internal/deps"
	"github.com/shashiranjanraj/graphcache/internal/gqlast"
	"github.com/shashiranjanraj/graphcache/internal/normalize"
	"github.com/shashiranjanraj/graphcache/internal/plan"
	"github.com/shashiranjanraj/graphcache/internal/store"
	"github.com/shashiranjanraj/graphcache/pkg/logger"
	"github.com/shashiranjanraj/graphcache/pkg/metrics"
	"github.com/shashiranjanraj/graphcache/pkg/workerpool"
)

// Transport is the collaborator that actually ships a minimized query
// and its variables to a GraphQL server.
type Transport interface {
	Execute(ctx context.Context, query string, variables map[string]any) (json.RawMessage, error)
}

// StoreHandle is the host-side observable state container the
// coordinator dispatches actions into and reads snapshots from.
type StoreHandle interface {
	Dispatch(store.Action)
	GetState() store.State
}

// cachedQuery is the coordinator's private bookkeeping for one caller —
// spec's CachedQuery, minus the refetch closure, which is derivable
// from the stored document, selections and variables.
type cachedQuery struct {
	document   *gqlast.Document
	selections []gqlast.Selection
	parentType string
	variables  map[string]any
	response   any
	isComplete bool
	firstRun   bool
	err        error
}

type waiter struct {
	caller    store.CallerKey
	variables map[string]any
}

type pendingEntry struct {
	waiters []waiter
}

// NewCallerHook is invoked whenever the coordinator registers a brand
// new caller, so the mutation engine can fold it into (or drop it from)
// any mutation whose activeComponentsObj would now include it — spec
// 4.5 step 2's invalidateMutationsOnNewQuery. Wiring this as a function
// field rather than a named collaborator interface keeps the mutation
// package from needing to import this one.
type NewCallerHook func(caller store.CallerKey, selections []gqlast.Selection, parentType string)

// Coordinator is the C5 implementation.
type Coordinator struct {
	store         StoreHandle
	schema        normalize.SchemaSource
	transport     Transport
	pool          *workerpool.Pool
	idField       string
	queryTypeName string
	pagination    normalize.PaginationWords

	deps *deps.Index

	mu      sync.Mutex
	queries map[store.CallerKey]*cachedQuery
	pending map[string]*pendingEntry

	OnNewCaller NewCallerHook
}

// New builds a Coordinator. queryTypeName is the schema's root query
// type name, used as the synthetic parent type for top-level
// selections.
func New(storeHandle StoreHandle, sch normalize.SchemaSource, transport Transport, idField, queryTypeName string, pool *workerpool.Pool) *Coordinator {
	return &Coordinator{
		store:         storeHandle,
		schema:        sch,
		transport:     transport,
		pool:          pool,
		idField:       idField,
		queryTypeName: queryTypeName,
		pagination:    normalize.DefaultPaginationWords(),
		deps:          deps.New(),
		queries:       map[store.CallerKey]*cachedQuery{},
		pending:       map[string]*pendingEntry{},
	}
}

// SetPaginationWords renames the four reserved cursor argument names
// for every context this coordinator builds. Call before the first
// Query; the words are read without the mutex on the hot path.
func (c *Coordinator) SetPaginationWords(w normalize.PaginationWords) {
	c.pagination = w
}

// Options configure one Query call — spec 4.5's `options` bag.
type Options struct {
	InstanceKey string
	ForceFetch  bool
	LocalOnly   bool
	Variables   map[string]any
}

// Query implements the fast/cold path of spec 4.5. queryText is parsed
// on every cold-path call; the document stored when the caller is first
// registered is the one Refetch reuses.
func (c *Coordinator) Query(ctx context.Context, callerID, queryText string, opts Options) (json.RawMessage, error) {
	caller := store.CallerKey{CallerID: callerID, InstanceKey: opts.InstanceKey}

	c.mu.Lock()
	cached, exists := c.queries[caller]
	if exists && !opts.ForceFetch {
		resp := cached.response
		isComplete := cached.isComplete
		c.mu.Unlock()
		if isComplete {
			return encodeResult(resp)
		}
	} else {
		c.mu.Unlock()
	}

	return c.coldPath(ctx, caller, queryText, opts)
}

func (c *Coordinator) coldPath(ctx context.Context, caller store.CallerKey, queryText string, opts Options) (json.RawMessage, error) {
	doc, err := gqlast.Parse(queryText)
	if err != nil {
		return nil, fmt.Errorf("coordinator: parse query: %w", err)
	}

	c.mu.Lock()
	cq, exists := c.queries[caller]
	if !exists {
		cq = &cachedQuery{document: doc, selections: doc.Selections, parentType: c.queryTypeName, firstRun: true}
		c.queries[caller] = cq
		c.mu.Unlock()
		if c.OnNewCaller != nil {
			c.OnNewCaller(caller, doc.Selections, c.queryTypeName)
		}
	} else {
		c.mu.Unlock()
	}

	mergedVars := c.mergeVariables(caller, opts.Variables)

	snapshot := c.store.GetState()
	execCtx := normalize.NewExecContext(doc, c.schema, mergedVars, c.idField)
	execCtx.PaginationWords = c.pagination

	root := rootSkeleton(snapshot, caller)
	denorm := normalize.Denormalize(execCtx, snapshot, doc.Selections, c.queryTypeName, root)

	c.mu.Lock()
	wasFirstRun := cq.firstRun
	cq.variables = mergedVars
	cq.response = denorm.Data
	cq.isComplete = denorm.IsComplete
	cq.firstRun = false
	c.mu.Unlock()

	if !wasFirstRun {
		c.deps.AddDeps(caller, denorm.Refs)
	}

	if denorm.IsComplete {
		metrics.QueryHits.Inc()
		return encodeResult(denorm.Data)
	}

	metrics.QueryMisses.Inc()
	if !opts.LocalOnly {
		c.fireAndForgetFetch(caller, execCtx, doc)
	}

	return encodeResult(denorm.Data)
}

// fireAndForgetFetch runs queryServer on the worker pool; its result
// reaches callers only through the store update it dispatches, per the
// single suspension-point model in §5.
func (c *Coordinator) fireAndForgetFetch(caller store.CallerKey, execCtx *normalize.ExecContext, doc *gqlast.Document) {
	submit := func() { c.queryServer(context.Background(), caller, execCtx, doc) }
	if c.pool == nil {
		go submit()
		return
	}
	if err := c.pool.Submit(submit); err != nil {
		logger.Warn("coordinator: fetch dropped, pool full", "caller", caller.String(), "err", err)
	}
}

// queryServer implements spec 4.5's queryServer contract: minimize,
// dedupe against pendingQueries, await the transport, then merge.
func (c *Coordinator) queryServer(ctx context.Context, caller store.CallerKey, execCtx *normalize.ExecContext, doc *gqlast.Document) {
	snapshot := c.store.GetState()
	root := rootSkeleton(snapshot, caller)
	denorm := normalize.Denormalize(execCtx, snapshot, doc.Selections, c.queryTypeName, root)
	rootData, _ := denorm.Data.(map[string]any)

	missing := plan.Minimize(execCtx, doc.Selections, c.queryTypeName, rootData)
	if len(missing) == 0 {
		return
	}
	variables := plan.PruneVariables(doc.Variables, missing)
	minimized := plan.Print(doc.OperationName, doc.Name, variables, missing)

	c.mu.Lock()
	entry, already := c.pending[minimized]
	if already {
		for _, w := range entry.waiters {
			if w.caller == caller {
				c.mu.Unlock()
				return // identical entry already queued: dedupe
			}
		}
		entry.waiters = append(entry.waiters, waiter{caller: caller, variables: execCtx.Variables})
		c.mu.Unlock()
		metrics.DedupedJoins.Inc()
		return
	}
	entry = &pendingEntry{waiters: []waiter{{caller: caller, variables: execCtx.Variables}}}
	c.pending[minimized] = entry
	metrics.PendingInFlight.Inc()
	c.mu.Unlock()

	resp, err := c.transport.Execute(ctx, minimized, flattenVariables(execCtx.Variables))

	c.mu.Lock()
	delete(c.pending, minimized)
	metrics.PendingInFlight.Dec()
	waiters := entry.waiters
	c.mu.Unlock()

	if err != nil {
		c.applyTransportError(waiters, err)
		return
	}

	c.applyServerResponse(execCtx, doc, waiters, resp)
}

func (c *Coordinator) applyTransportError(waiters []waiter, err error) {
	c.mu.Lock()
	for _, w := range waiters {
		if cq, ok := c.queries[w.caller]; ok {
			cq.err = err
		}
	}
	c.mu.Unlock()
	c.store.Dispatch(store.SetError{Err: err})
	logger.Warn("coordinator: transport error", "err", err)
}

func (c *Coordinator) applyServerResponse(execCtx *normalize.ExecContext, doc *gqlast.Document, waiters []waiter, resp json.RawMessage) {
	var data map[string]any
	if err := json.Unmarshal(resp, &data); err != nil {
		c.applyTransportError(waiters, fmt.Errorf("coordinator: decode server response: %w", err))
		return
	}

	out := normalize.Normalize(execCtx, data, doc.Selections, c.queryTypeName)
	newSkeleton, _ := out.Result.(map[string]any)
	snapshot := c.store.GetState()
	shortened := shortenAgainstStore(out.Entities, snapshot)

	skeletonByCaller := map[store.CallerKey]any{}
	for _, w := range waiters {
		priorSkeleton := rootSkeleton(snapshot, w.caller)
		skeletonByCaller[w.caller] = mergeResultTrees(priorSkeleton, newSkeleton)
	}

	c.store.Dispatch(store.InsertQuery{
		Response:  store.NormalizedResponse{Entities: shortened, Result: skeletonByCaller},
		Variables: variablesByCaller(waiters),
	})

	changedRefs := refsFromTable(shortened)
	flushed := c.flushExcludingWaiters(changedRefs, waiters)
	fresh := c.store.GetState()

	c.mu.Lock()
	for _, w := range waiters {
		root := rootSkeleton(fresh, w.caller)
		denorm := normalize.Denormalize(execCtx, fresh, doc.Selections, c.queryTypeName, root)
		if cq, ok := c.queries[w.caller]; ok {
			cq.response = denorm.Data
			cq.isComplete = denorm.IsComplete
			cq.err = nil
		}
		c.deps.AddDeps(w.caller, denorm.Refs)
	}
	for _, caller := range flushed {
		if cq, ok := c.queries[caller]; ok {
			cq.response = nil
			cq.isComplete = false
			metrics.DependencyFlushes.Inc()
		}
	}
	c.mu.Unlock()
}

// flushExcludingWaiters runs the dependency flush for every waiter in
// the batch, excluding the whole batch from the result: each waiter is
// its own origin, and every other waiter gets a fresh response in the
// same pass, so clearing any of them here would wipe the response this
// very server round just produced. A non-waiter can still surface
// through any one waiter's flush — those are returned, deduped.
func (c *Coordinator) flushExcludingWaiters(changed []store.Ref, waiters []waiter) []store.CallerKey {
	inBatch := make(map[store.CallerKey]struct{}, len(waiters))
	for _, w := range waiters {
		inBatch[w.caller] = struct{}{}
	}

	seen := map[store.CallerKey]struct{}{}
	var out []store.CallerKey
	for _, w := range waiters {
		for _, caller := range c.deps.FlushDependencies(changed, w.caller) {
			if _, isWaiter := inBatch[caller]; isWaiter {
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

func (c *Coordinator) mergeVariables(caller store.CallerKey, userVars map[string]any) map[string]any {
	snapshot := c.store.GetState()
	merged := map[string]any{}
	for k, v := range snapshot.Variables[caller] {
		merged[k] = v
	}
	for k, v := range userVars {
		merged[k] = v
	}
	return merged
}

// Refetch re-issues caller's last query with forceFetch set, per
// invalidate()'s contract in the mutation engine (4.6) and a
// subscription's own refetch needs.
func (c *Coordinator) Refetch(caller store.CallerKey) {
	c.mu.Lock()
	cq, ok := c.queries[caller]
	c.mu.Unlock()
	if !ok {
		return
	}
	text := plan.Print(cq.document.OperationName, cq.document.Name, cq.document.Variables, cq.selections)
	_, _ = c.Query(context.Background(), caller.CallerID, text, Options{InstanceKey: caller.InstanceKey, ForceFetch: true, Variables: cq.variables})
}

// Callers lists every caller currently registered with the
// coordinator — the mutation engine's view of "callers that might
// care about this mutation's return type".
func (c *Coordinator) Callers() []store.CallerKey {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]store.CallerKey, 0, len(c.queries))
	for caller := range c.queries {
		out = append(out, caller)
	}
	return out
}

// CallerQuery exposes the selection set and parent type caller last
// queried with, so the mutation engine can normalize a handler's
// returned data the same way the coordinator would.
func (c *Coordinator) CallerQuery(caller store.CallerKey) ([]gqlast.Selection, string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cq, ok := c.queries[caller]
	if !ok {
		return nil, "", false
	}
	return cq.selections, cq.parentType, true
}

// CachedResponse returns caller's current denormalized response, the
// "current data" a mutation handler is invoked with.
func (c *Coordinator) CachedResponse(caller store.CallerKey) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cq, ok := c.queries[caller]
	if !ok {
		return nil, false
	}
	return cq.response, true
}

// FlushDependencies exposes the dependency index to collaborators
// outside this package (the subscription engine, after applying a
// patch) that need to know which query callers must drop their cached
// response because one of the entities they depend on just changed.
func (c *Coordinator) FlushDependencies(changed []store.Ref, origin store.CallerKey) []store.CallerKey {
	return c.deps.FlushDependencies(changed, origin)
}

// ClearCachedResponse drops caller's cached response so its next Query
// call falls through to the cold path — used by a dependency flush
// originating outside a query round trip (a subscription patch).
func (c *Coordinator) ClearCachedResponse(caller store.CallerKey) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cq, ok := c.queries[caller]; ok {
		cq.response = nil
		cq.isComplete = false
		metrics.DependencyFlushes.Inc()
	}
}

func encodeResult(data any) (json.RawMessage, error) {
	if data == nil {
		return json.RawMessage(`null`), nil
	}
	return json.Marshal(data)
}

func rootSkeleton(snapshot store.State, caller store.CallerKey) map[string]any {
	result, ok := snapshot.Result[caller]
	if !ok {
		return map[string]any{}
	}
	if m, ok := result.(map[string]any); ok {
		return m
	}
	return map[string]any{}
}

func flattenVariables(vars map[string]any) map[string]any {
	if vars == nil {
		return map[string]any{}
	}
	return vars
}

func variablesByCaller(waiters []waiter) map[store.CallerKey]map[string]any {
	out := make(map[store.CallerKey]map[string]any, len(waiters))
	for _, w := range waiters {
		out[w.caller] = w.variables
	}
	return out
}

// mergeResultTrees folds a minimized server response's skeleton into
// the caller's prior local skeleton — spec 4.5's fullNormalizedResponse
// merge. Lists append refs the local side doesn't already hold, so a
// paginated bucket accumulates pages instead of a later page replacing
// the earlier ones.
func mergeResultTrees(local, server map[string]any) map[string]any {
	out := make(map[string]any, len(local)+len(server))
	for k, v := range local {
		out[k] = v
	}
	for k, v := range server {
		existing, ok := out[k]
		if !ok {
			out[k] = v
			continue
		}
		out[k] = mergeResultValue(existing, v)
	}
	return out
}

func mergeResultValue(existing, incoming any) any {
	switch inc := incoming.(type) {
	case map[string]any:
		if ex, ok := existing.(map[string]any); ok {
			return mergeResultTrees(ex, inc)
		}
		return inc
	case []any:
		ex, ok := existing.([]any)
		if !ok {
			return inc
		}
		return appendNewRefs(ex, inc)
	default:
		return incoming
	}
}

func appendNewRefs(existing, incoming []any) []any {
	seen := make(map[store.Ref]struct{}, len(existing))
	for _, item := range existing {
		if r, ok := item.(store.Ref); ok {
			seen[r] = struct{}{}
		}
	}
	out := append(make([]any, 0, len(existing)+len(incoming)), existing...)
	for _, item := range incoming {
		if r, ok := item.(store.Ref); ok {
			if _, dup := seen[r]; dup {
				continue
			}
		}
		out = append(out, item)
	}
	return out
}

func refsFromTable(table store.EntityTable) []store.Ref {
	var out []store.Ref
	for typeName, byID := range table {
		for id := range byID {
			out = append(out, store.Ref{Type: typeName, ID: id})
		}
	}
	return out
}

// shortenAgainstStore drops entity diffs that already equal what's
// stored — spec's "shorten" operation (glossary), used after a server
// round trip so the resulting dispatch only carries genuinely new data.
func shortenAgainstStore(incoming store.EntityTable, snapshot store.State) store.EntityTable {
	out := store.EntityTable{}
	for typeName, byID := range incoming {
		for id, fields := range byID {
			existing, _ := snapshot.GetEntity(store.Ref{Type: typeName, ID: id})
			diff := diffFields(existing, fields)
			if len(diff) == 0 {
				continue
			}
			if out[typeName] == nil {
				out[typeName] = map[string]map[string]any{}
			}
			out[typeName][id] = diff
		}
	}
	return out
}

func diffFields(existing, incoming map[string]any) map[string]any {
	out := map[string]any{}
	for k, v := range incoming {
		if old, ok := existing[k]; !ok || !equalValue(old, v) {
			out[k] = v
		}
	}
	return out
}

func equalValue(a, b any) bool {
	aj, aerr := json.Marshal(a)
	bj, berr := json.Marshal(b)
	if aerr != nil || berr != nil {
		return false
	}
	return string(aj) == string(bj)
}
