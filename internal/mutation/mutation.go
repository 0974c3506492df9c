// Package mutation implements the mutation engine (spec component C6):
// an optimistic pass applied immediately, a server round trip, and an
// authoritative pass that folds the real response into every caller
// that registered a Handler for the mutation.
//
// The round trip itself is spec.md §4.6's CachedMutation: one combined,
// alias-namespaced mutation document built from every active caller's
// own projection of the mutation's return type, restated here as plain
// Go values (mutationPlan) instead of a dynamically assembled AST. A
// caller becomes active by registering a Handler for the mutation name
// (RegisterHandler) — only a Handler can fold a result into a caller's
// cache, so registration stays the gate on participation. What a
// registered caller's own cached query (when the coordinator has one
// for it) buys it is the SHAPE of its slice of the combined request:
// buildPlan walks that query for fields returning Handler.GetType() and
// reuses their own sub-selection, so two callers asking for different
// fields off the same mutation get their own aliased sub-selection
// instead of colliding on one shared shape. A caller with no tracked
// query (for example this repo's cmd/graphcache CLI, which mutates
// without ever issuing a matching Query first) falls back to the
// triggering document's own selection.
//
// One corner is deliberately left unhandled: a variable reference
// nested inside a caller's projected sub-selection (not the mutation's
// own top-level arguments) is dropped rather than renamed, because its
// type is declared on that caller's own query document, not on this
// mutation's — there is nowhere safe to re-declare it on the combined
// request. See stripUnresolvableArgs.
package mutation

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/shashiranjanraj/graphcache/internal/gqlast"
	"github.com/shashiranjanraj/graphcache/internal/normalize"
	"github.com/shashiranjanraj/graphcache/internal/plan"
	"github.com/shashiranjanraj/graphcache/internal/store"
	"github.com/shashiranjanraj/graphcache/pkg/collection"
	"github.com/shashiranjanraj/graphcache/pkg/logger"
	"github.com/shashiranjanraj/graphcache/pkg/metrics"
)

// OutcomeKind tags what a Handler decided to do with one caller's copy
// of a mutation's result, replacing the original's invalidate()
// side-channel flag with a single explicit return value.
type OutcomeKind int

const (
	// Noop leaves the caller's cached response untouched.
	Noop OutcomeKind = iota
	// Replace folds Data into the caller's denormalized response.
	Replace
	// Invalidate discards any Data and triggers a refetch instead.
	Invalidate
)

// Outcome is a Handler's verdict for one caller, for one pass.
type Outcome struct {
	Kind OutcomeKind
	Data any
}

// TypeLookup gives a Handler cross-reference access to every entity of
// a given type currently in the store — the spec's `getType`.
type TypeLookup func(typeName string) []map[string]any

// Handler is what a caller registers for one mutation name. Optimistic
// is invoked immediately with the caller-supplied variables and no
// server data; Authoritative is invoked once the server has responded,
// with the decoded data sliced out of the combined response under that
// caller's alias.
type Handler interface {
	Optimistic(variables map[string]any, currentData any, lookup TypeLookup) Outcome
	Authoritative(serverData any, currentData any, lookup TypeLookup) Outcome
	// GetType names the GraphQL type the mutation's response represents,
	// used to project each caller's own query onto the combined request.
	GetType() string
}

// Transport is the collaborator the engine sends the combined mutation
// document to.
type Transport interface {
	Execute(ctx context.Context, query string, variables map[string]any) (json.RawMessage, error)
}

// StoreHandle is the host state container, same shape the coordinator
// depends on.
type StoreHandle interface {
	Dispatch(store.Action)
	GetState() store.State
}

// CallerRegistry is the subset of the coordinator's bookkeeping the
// mutation engine needs: which callers exist, what they queried, and
// how to read/replace/refetch their cached response. Defined here
// rather than imported as a concrete type so this package never needs
// to import internal/coordinator — *coordinator.Coordinator implements
// this interface directly, and the root package wires the two
// together.
type CallerRegistry interface {
	Callers() []store.CallerKey
	CallerQuery(caller store.CallerKey) (selections []gqlast.Selection, parentType string, ok bool)
	CachedResponse(caller store.CallerKey) (any, bool)
	Refetch(caller store.CallerKey)
	// FlushDependencies and ClearCachedResponse let an authoritative
	// merge cascade to query callers that never registered a handler
	// for the mutation but depend on an entity it changed — the same
	// pair the subscription engine is handed for its patches.
	FlushDependencies(changed []store.Ref, origin store.CallerKey) []store.CallerKey
	ClearCachedResponse(caller store.CallerKey)
}

// Engine is the C6 implementation.
type Engine struct {
	store      StoreHandle
	schema     normalize.SchemaSource
	transport  Transport
	registry   CallerRegistry
	idField    string
	pagination normalize.PaginationWords

	mu       sync.Mutex
	handlers map[string]map[store.CallerKey]Handler
}

// New builds an Engine. registry is typically the same *Coordinator the
// root package also constructs for queries.
func New(storeHandle StoreHandle, sch normalize.SchemaSource, transport Transport, registry CallerRegistry, idField string) *Engine {
	return &Engine{
		store:      storeHandle,
		schema:     sch,
		transport:  transport,
		registry:   registry,
		idField:    idField,
		pagination: normalize.DefaultPaginationWords(),
		handlers:   map[string]map[store.CallerKey]Handler{},
	}
}

// SetPaginationWords renames the four reserved cursor argument names
// for every context this engine builds when normalizing a handler's
// returned data. Call before the first Mutate.
func (e *Engine) SetPaginationWords(w normalize.PaginationWords) {
	e.pagination = w
}

// RegisterHandler binds h as caller's handler for mutationName. A
// caller with no registered handler for a mutation that runs is simply
// excluded from that mutation's active set — it never sees the result
// folded into its cache, matching a caller that never asked to care
// about this mutation.
func (e *Engine) RegisterHandler(mutationName string, caller store.CallerKey, h Handler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.handlers[mutationName] == nil {
		e.handlers[mutationName] = map[store.CallerKey]Handler{}
	}
	e.handlers[mutationName][caller] = h
}

// InvalidateForNewCaller does nothing: the engine keeps no cached
// mutation plan, since buildPlan rebuilds the combined request from the
// registered handlers and the registry's current queries on every
// Mutate, so there is nothing to invalidate. It exists as a
// coordinator.NewCallerHook-compatible method so the root package can
// wire it in without the two packages depending on each other's
// concrete types.
func (e *Engine) InvalidateForNewCaller(store.CallerKey, []gqlast.Selection, string) {}

// Options narrows which callers participate in one Mutate call — the
// spec's `components` option.
type Options struct {
	Components []store.CallerKey
}

// mutationPlan is the combined, alias-namespaced request built from
// every active caller's own projection — spec.md §4.6's
// CachedMutation{fullMutation, singles, variableSet, variableEnhancers}.
type mutationPlan struct {
	document  string
	variables map[string]any
	aliasOf   map[store.CallerKey]string
}

// Mutate runs the full optimistic/server/authoritative pipeline and
// returns the server's raw (aliased) response.
func (e *Engine) Mutate(ctx context.Context, mutationName, document string, variables map[string]any, opts Options) (json.RawMessage, error) {
	e.mu.Lock()
	byCaller := e.handlers[mutationName]
	e.mu.Unlock()
	if len(byCaller) == 0 {
		return nil, fmt.Errorf("mutation: %q: %w", mutationName, ErrNoHandler)
	}

	active := e.activeComponents(byCaller, opts.Components)
	if len(active) == 0 {
		return nil, fmt.Errorf("mutation: %q: %w", mutationName, ErrNoHandler)
	}
	lookup := e.typeLookup()

	e.runPass(mutationName, "optimistic", active, func(_ store.CallerKey, h Handler, currentData any) Outcome {
		return h.Optimistic(variables, currentData, lookup)
	})

	doc, err := gqlast.Parse(document)
	if err != nil {
		return nil, fmt.Errorf("mutation: %q: parse document: %w", mutationName, err)
	}

	combined, err := e.buildPlan(doc, variables, active, byCaller)
	if err != nil {
		return nil, fmt.Errorf("mutation: %q: %w", mutationName, err)
	}

	resp, err := e.transport.Execute(ctx, combined.document, combined.variables)
	if err != nil {
		e.store.Dispatch(store.SetError{Err: err})
		logger.Warn("mutation: transport error", "mutation", mutationName, "err", err)
		return nil, fmt.Errorf("mutation: %q: %w", mutationName, err)
	}

	var aliased map[string]json.RawMessage
	if err := json.Unmarshal(resp, &aliased); err != nil {
		return nil, fmt.Errorf("mutation: %q: decode server response: %w", mutationName, err)
	}

	e.runPass(mutationName, "authoritative", active, func(caller store.CallerKey, h Handler, currentData any) Outcome {
		raw, ok := aliased[combined.aliasOf[caller]]
		if !ok {
			return Outcome{Kind: Noop}
		}
		var serverData any
		if err := json.Unmarshal(raw, &serverData); err != nil {
			logger.Warn("mutation: decode caller slice", "mutation", mutationName, "caller", caller.String(), "err", err)
			return Outcome{Kind: Noop}
		}
		return h.Authoritative(serverData, currentData, lookup)
	})

	return resp, nil
}

// buildPlan builds the combined request: one aliased copy of doc's root
// field per active caller, each carrying that caller's own projection
// of the mutation's return type as its sub-selection, and the root
// field's own variable-bound arguments renamed per caller so the
// combined document never collides two callers' values under one
// variable name (the spec's variableEnhancers chain, scoped to the
// arguments this module actually owns the type of).
func (e *Engine) buildPlan(doc *gqlast.Document, variables map[string]any, active []store.CallerKey, byCaller map[store.CallerKey]Handler) (*mutationPlan, error) {
	if len(doc.Selections) == 0 {
		return nil, fmt.Errorf("document has no selection")
	}
	root := doc.Selections[0]

	varDefsByName := make(map[string]gqlast.VariableDefinition, len(doc.Variables))
	for _, vd := range doc.Variables {
		varDefsByName[vd.Name] = vd
	}

	fields := make([]gqlast.Selection, 0, len(active))
	var varDefs []gqlast.VariableDefinition
	combinedVars := map[string]any{}
	aliasOf := make(map[store.CallerKey]string, len(active))

	for _, caller := range active {
		alias := aliasFor(caller)
		aliasOf[caller] = alias

		selections := e.projectCallerSelections(caller, byCaller[caller].GetType(), root.Selections)

		args := make([]gqlast.Argument, len(root.Arguments))
		for i, a := range root.Arguments {
			ref, isVar := a.Value.(gqlast.VariableRef)
			if !isVar {
				args[i] = a
				continue
			}
			namespaced := alias + "_" + ref.Name
			combinedVars[namespaced] = variables[ref.Name]
			args[i] = gqlast.Argument{Name: a.Name, Value: gqlast.VariableRef{Name: namespaced}}
			if vd, ok := varDefsByName[ref.Name]; ok {
				varDefs = append(varDefs, gqlast.VariableDefinition{Name: namespaced, TypeName: vd.TypeName, DefaultValue: vd.DefaultValue})
			}
		}

		fields = append(fields, gqlast.Selection{
			Kind:       gqlast.KindField,
			Alias:      alias,
			Name:       root.Name,
			Arguments:  args,
			Selections: selections,
		})
	}

	return &mutationPlan{
		document:  plan.Print(doc.OperationName, doc.Name, varDefs, fields),
		variables: combinedVars,
		aliasOf:   aliasOf,
	}, nil
}

// projectCallerSelections returns caller's own query projected onto
// targetType: the union of sub-selections under every field in its
// registered query whose return type is targetType — the per-caller
// "single" selection spec.md §4.6 folds into the combined request. A
// caller with no query on file, or none of whose fields return
// targetType, falls back to fallback (the triggering document's own
// selection), so a solo caller still gets a sensible request.
func (e *Engine) projectCallerSelections(caller store.CallerKey, targetType string, fallback []gqlast.Selection) []gqlast.Selection {
	if targetType == "" {
		return stripUnresolvableArgs(fallback)
	}

	selections, parentType, ok := e.registry.CallerQuery(caller)
	if !ok {
		return stripUnresolvableArgs(fallback)
	}

	var projected []gqlast.Selection
	for _, sel := range selections {
		if sel.Kind != gqlast.KindField {
			continue
		}
		retType, err := e.schema.FieldReturnType(parentType, sel.Name, "")
		if err != nil || retType.Name != targetType {
			continue
		}
		projected = append(projected, sel.Selections...)
	}
	if len(projected) == 0 {
		return stripUnresolvableArgs(fallback)
	}

	unique := collection.UniqueBy(projected, func(s gqlast.Selection) string { return s.ResponseKey() })
	return stripUnresolvableArgs(unique)
}

// stripUnresolvableArgs clones selections, dropping any argument that
// reads from a variable: nested variable references come from a
// document this function wasn't given the type declarations for (the
// caller's own query, or a sub-selection arbitrarily deep in the
// triggering document), so there is no safe way to re-declare them on
// the combined request. A field with such an argument folds in with
// its default behavior instead of the caller's exact one.
func stripUnresolvableArgs(selections []gqlast.Selection) []gqlast.Selection {
	if len(selections) == 0 {
		return nil
	}
	out := make([]gqlast.Selection, len(selections))
	for i, s := range selections {
		clone := s
		clone.Arguments = collection.Filter(s.Arguments, func(a gqlast.Argument) bool {
			_, isVar := a.Value.(gqlast.VariableRef)
			return !isVar
		})
		clone.Selections = stripUnresolvableArgs(s.Selections)
		out[i] = clone
	}
	return out
}

// aliasFor derives a GraphQL-identifier-safe, caller-deterministic
// alias. It depends only on caller's own identity, never on iteration
// order, so a combined request's aliasing is reproducible across runs
// and predictable for anyone hand-writing a fixture against it.
func aliasFor(caller store.CallerKey) string {
	var b strings.Builder
	b.WriteString("m_")
	writeSanitized(&b, caller.CallerID)
	if caller.InstanceKey != "" {
		b.WriteByte('_')
		writeSanitized(&b, caller.InstanceKey)
	}
	return b.String()
}

func writeSanitized(b *strings.Builder, s string) {
	for _, r := range s {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
}

// activeComponents is the closure of work: callers with a registered
// handler for this mutation, intersected with the caller-supplied
// component list when one was given.
func (e *Engine) activeComponents(byCaller map[store.CallerKey]Handler, components []store.CallerKey) []store.CallerKey {
	if len(components) == 0 {
		out := make([]store.CallerKey, 0, len(byCaller))
		for c := range byCaller {
			out = append(out, c)
		}
		return out
	}
	return collection.Filter(components, func(c store.CallerKey) bool {
		_, ok := byCaller[c]
		return ok
	})
}

// runPass implements _processMutationHandlers for one pass (optimistic
// or authoritative): invoke each active caller's handler, apply Replace
// outcomes as an accumulated store diff, and trigger Invalidate
// outcomes as refetches.
func (e *Engine) runPass(mutationName, phase string, active []store.CallerKey, invoke func(store.CallerKey, Handler, any) Outcome) {
	if len(active) == 0 {
		return
	}

	e.mu.Lock()
	byCaller := e.handlers[mutationName]
	e.mu.Unlock()

	entities := store.EntityTable{}
	results := map[store.CallerKey]any{}
	applied := false

	for _, caller := range active {
		h, ok := byCaller[caller]
		if !ok {
			continue
		}
		current, ok := e.registry.CachedResponse(caller)
		if !ok {
			logger.Error("mutation: caller has no cached response, skipping", "caller", caller.String(), "mutation", mutationName)
			continue
		}

		outcome := invoke(caller, h, current)
		switch outcome.Kind {
		case Noop:
			continue
		case Invalidate:
			metrics.MutationInvalidations.Inc()
			e.registry.Refetch(caller)
			continue
		case Replace:
			selections, parentType, ok := e.registry.CallerQuery(caller)
			if !ok {
				continue
			}
			data, ok := outcome.Data.(map[string]any)
			if !ok {
				continue
			}
			execCtx := normalize.NewExecContext(&gqlast.Document{Selections: selections}, e.schema, nil, e.idField)
			execCtx.PaginationWords = e.pagination
			out := normalize.Normalize(execCtx, data, selections, parentType)
			mergeEntityTablesInto(entities, out.Entities)
			results[caller] = out.Result
			applied = true
		}
	}

	if !applied {
		return
	}

	snapshot := e.store.GetState()
	shortened := shortenAgainstStore(entities, snapshot)
	if len(shortened) == 0 && len(results) == 0 {
		return
	}

	e.store.Dispatch(store.InsertMutation{
		Response: store.NormalizedResponse{Entities: shortened, Result: results},
	})
	metrics.MutationsApplied.WithLabelValues(phase).Inc()

	// Only the authoritative pass cascades: an optimistic guess must
	// not tear down other callers' dependency state before the server
	// has confirmed anything.
	if phase == "authoritative" {
		e.flushInactiveCallers(refsFromTable(shortened), active)
	}
}

// flushInactiveCallers clears the cached response of every caller that
// depends on one of the changed entities but has no handler in this
// mutation's active set — the active callers already had their response
// replaced (or refetched) by runPass itself, so clearing them again
// would wipe the result this same mutation just folded in.
func (e *Engine) flushInactiveCallers(changed []store.Ref, active []store.CallerKey) {
	activeSet := make(map[store.CallerKey]struct{}, len(active))
	for _, caller := range active {
		activeSet[caller] = struct{}{}
	}

	seen := map[store.CallerKey]struct{}{}
	for _, caller := range active {
		for _, other := range e.registry.FlushDependencies(changed, caller) {
			if _, isActive := activeSet[other]; isActive {
				continue
			}
			if _, already := seen[other]; already {
				continue
			}
			seen[other] = struct{}{}
			e.registry.ClearCachedResponse(other)
		}
	}
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

func (e *Engine) typeLookup() TypeLookup {
	return func(typeName string) []map[string]any {
		snapshot := e.store.GetState()
		byID := snapshot.Entities[typeName]
		out := make([]map[string]any, 0, len(byID))
		for _, fields := range byID {
			out = append(out, fields)
		}
		return out
	}
}

func mergeEntityTablesInto(dst, src store.EntityTable) {
	for typeName, byID := range src {
		if dst[typeName] == nil {
			dst[typeName] = map[string]map[string]any{}
		}
		for id, fields := range byID {
			existing := dst[typeName][id]
			if existing == nil {
				dst[typeName][id] = fields
				continue
			}
			for k, v := range fields {
				existing[k] = v
			}
		}
	}
}

func shortenAgainstStore(incoming store.EntityTable, snapshot store.State) store.EntityTable {
	out := store.EntityTable{}
	for typeName, byID := range incoming {
		for id, fields := range byID {
			existing, _ := snapshot.GetEntity(store.Ref{Type: typeName, ID: id})
			diff := map[string]any{}
			for k, v := range fields {
				if old, ok := existing[k]; !ok || !equalJSON(old, v) {
					diff[k] = v
				}
			}
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

func equalJSON(a, b any) bool {
	aj, aerr := json.Marshal(a)
	bj, berr := json.Marshal(b)
	return aerr == nil && berr == nil && string(aj) == string(bj)
}
