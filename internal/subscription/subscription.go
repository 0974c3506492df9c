// Package subscription implements the subscription engine (spec
// component C7): per-subscription denormalized views updated by
// add/update/remove patches at a dotted path, folded back into the
// store through the same normalize -> shorten -> flush -> INSERT_QUERY
// pipeline a query round trip uses.
package subscription

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/shashiranjanraj/graphcache/internal/gqlast"
	"github.com/shashiranjanraj/graphcache/internal/normalize"
	"github.com/shashiranjanraj/graphcache/internal/store"
	"github.com/shashiranjanraj/graphcache/pkg/logger"
	"github.com/shashiranjanraj/graphcache/pkg/metrics"
)

// PatchKind tags one subscription patch operation.
type PatchKind int

const (
	Add PatchKind = iota
	Update
	Remove
)

func (k PatchKind) String() string {
	switch k {
	case Add:
		return "add"
	case Update:
		return "update"
	case Remove:
		return "remove"
	default:
		return "unknown"
	}
}

// Kind parses a scenario file's lowercase patch kind name into a
// PatchKind, defaulting unknown values to Add.
func Kind(s string) PatchKind {
	switch s {
	case "update":
		return Update
	case "remove":
		return Remove
	default:
		return Add
	}
}

// Patch is one inbound subscription event: Path is a dotted path within
// the subscription's result shape (e.g. "messages" or "thread.messages"),
// empty only when the subscription has exactly one top-level field.
// Data is the new/changed node for Add and Update; Ref names the entity
// being addressed when Data carries no identity field of its own (the
// common case for Remove).
type Patch struct {
	Kind PatchKind
	Path string
	Data map[string]any
	Ref  store.Ref
}

// StoreHandle mirrors the coordinator's view of the host state
// container.
type StoreHandle interface {
	Dispatch(store.Action)
	GetState() store.State
}

type subscriptionEntry struct {
	document   *gqlast.Document
	selections []gqlast.Selection
	caller     store.CallerKey
	variables  map[string]any
}

// Engine is the C7 implementation.
type Engine struct {
	store         StoreHandle
	schema        normalize.SchemaSource
	idField       string
	queryTypeName string
	pagination    normalize.PaginationWords

	mu      sync.Mutex
	entries map[store.CallerKey]*subscriptionEntry
}

// New builds an Engine.
func New(storeHandle StoreHandle, sch normalize.SchemaSource, idField, queryTypeName string) *Engine {
	return &Engine{
		store:         storeHandle,
		schema:        sch,
		idField:       idField,
		queryTypeName: queryTypeName,
		pagination:    normalize.DefaultPaginationWords(),
		entries:       map[store.CallerKey]*subscriptionEntry{},
	}
}

// SetPaginationWords renames the four reserved cursor argument names
// for every context this engine builds. Call before the first
// Subscribe.
func (e *Engine) SetPaginationWords(w normalize.PaginationWords) {
	e.pagination = w
}

// Subscribe registers caller's interest in subscriptionText, parsed
// once and reused by every subsequent ApplyPatch call for this caller.
// Calling it again for an already-subscribed caller is a no-op, mirroring
// the spec's "already subscribed, return the cached handle" step.
func (e *Engine) Subscribe(caller store.CallerKey, subscriptionText string, variables map[string]any) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.entries[caller]; ok {
		return nil
	}
	doc, err := gqlast.Parse(subscriptionText)
	if err != nil {
		return fmt.Errorf("subscription: parse: %w", err)
	}
	e.entries[caller] = &subscriptionEntry{document: doc, selections: doc.Selections, caller: caller, variables: variables}
	return nil
}

// Unsubscribe drops caller's subscription entry.
func (e *Engine) Unsubscribe(caller store.CallerKey) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.entries, caller)
}

// Callers lists every caller currently subscribed — the root package's
// fan-out list for an inbound patch that doesn't name a specific
// subscriber, the way a pub/sub transport delivers one event per topic
// rather than per listener.
func (e *Engine) Callers() []store.CallerKey {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]store.CallerKey, 0, len(e.entries))
	for caller := range e.entries {
		out = append(out, caller)
	}
	return out
}

// ApplyPatch runs one inbound add/update/remove event through to the
// store. deps is consulted to flush any other caller whose cached
// query overlaps the entities this patch touches.
func (e *Engine) ApplyPatch(ctx context.Context, caller store.CallerKey, patch Patch, flush func(changed []store.Ref, origin store.CallerKey) []store.CallerKey, clearCaller func(store.CallerKey)) error {
	e.mu.Lock()
	entry, ok := e.entries[caller]
	e.mu.Unlock()
	if !ok {
		return fmt.Errorf("subscription: %w", ErrNotSubscribed)
	}

	if patch.Path == "" && len(entry.selections) > 1 {
		return fmt.Errorf("subscription: %w", ErrPathRequired)
	}

	snapshot := e.store.GetState()
	execCtx := normalize.NewExecContext(entry.document, e.schema, entry.variables, e.idField)
	execCtx.PaginationWords = e.pagination
	root := rootSkeleton(snapshot, caller)

	newRoot, err := applyPatchToSkeleton(root, entry.selections, patch)
	if err != nil {
		return err
	}

	data, err := denormalizeThenRenormalize(execCtx, snapshot, entry.selections, e.queryTypeName, newRoot)
	if err != nil {
		return err
	}

	out := normalize.Normalize(execCtx, data, entry.selections, e.queryTypeName)
	outResult, _ := out.Result.(map[string]any)
	shortened := shortenAgainstStore(out.Entities, snapshot)

	merged := mergeSkeletons(root, outResult)

	if flush != nil {
		changed := refsFromTable(shortened)
		for _, other := range flush(changed, caller) {
			if clearCaller != nil {
				clearCaller(other)
			}
		}
	}

	e.store.Dispatch(store.InsertQuery{
		Response:  store.NormalizedResponse{Entities: shortened, Result: map[store.CallerKey]any{caller: merged}},
		Variables: map[store.CallerKey]map[string]any{caller: entry.variables},
	})

	metrics.SubscriptionPatches.WithLabelValues(patch.Kind.String()).Inc()
	return nil
}

// SetError dispatches SET_ERROR and leaves the subscription registered
// — the spec's Open Question resolved as a deliberate divergence from
// the original's silent no-op.
func (e *Engine) SetError(err error) {
	e.store.Dispatch(store.SetError{Err: err})
	logger.Warn("subscription: error", "err", err)
}

func rootSkeleton(snapshot store.State, caller store.CallerKey) map[string]any {
	if v, ok := snapshot.Result[caller]; ok {
		if m, ok := v.(map[string]any); ok {
			return m
		}
	}
	return map[string]any{}
}

// applyPatchToSkeleton walks to path within root (a dotted sequence of
// field response keys) and replaces/mutates/deletes the addressed node,
// returning a new top-level skeleton. The walk operates on the stored
// skeleton shape (leaves are store.Ref or scalars), not a denormalized
// tree, since that is what's cheaply available without a full
// round trip through the store.
func applyPatchToSkeleton(root map[string]any, selections []gqlast.Selection, patch Patch) (map[string]any, error) {
	segments := pathSegments(patch.Path, selections)
	if len(segments) == 0 {
		return nil, fmt.Errorf("subscription: %w", ErrPathRequired)
	}

	clone := shallowCopyMap(root)
	if err := setAtPath(clone, segments, patch); err != nil {
		return nil, err
	}
	return clone, nil
}

func pathSegments(path string, selections []gqlast.Selection) []string {
	if path != "" {
		return strings.Split(path, ".")
	}
	if len(selections) == 1 {
		return []string{selections[0].ResponseKey()}
	}
	return nil
}

func setAtPath(node map[string]any, segments []string, patch Patch) error {
	key := segments[0]
	if len(segments) > 1 {
		child, _ := node[key].(map[string]any)
		if child == nil {
			child = map[string]any{}
		}
		child = shallowCopyMap(child)
		if err := setAtPath(child, segments[1:], patch); err != nil {
			return err
		}
		node[key] = child
		return nil
	}

	switch patch.Kind {
	case Add:
		list, _ := node[key].([]any)
		node[key] = append(append([]any{}, list...), dataAsLeaf(patch))
	case Update:
		list, ok := node[key].([]any)
		if !ok {
			node[key] = dataAsLeaf(patch)
			return nil
		}
		node[key] = replaceMatching(list, patch)
	case Remove:
		list, ok := node[key].([]any)
		if !ok {
			delete(node, key)
			return nil
		}
		node[key] = removeMatching(list, patch)
	default:
		return fmt.Errorf("subscription: unknown patch kind %v", patch.Kind)
	}
	return nil
}

func dataAsLeaf(patch Patch) any {
	if !patch.Ref.IsZero() {
		return patch.Ref
	}
	return copyFields(patch.Data)
}

func replaceMatching(list []any, patch Patch) []any {
	target := refOf(patch)
	out := make([]any, len(list))
	copy(out, list)
	for i, item := range out {
		if sameEntity(item, target) {
			out[i] = dataAsLeaf(patch)
		}
	}
	return out
}

func removeMatching(list []any, patch Patch) []any {
	target := refOf(patch)
	out := make([]any, 0, len(list))
	for _, item := range list {
		if sameEntity(item, target) {
			continue
		}
		out = append(out, item)
	}
	return out
}

func refOf(patch Patch) store.Ref {
	if !patch.Ref.IsZero() {
		return patch.Ref
	}
	if patch.Data != nil {
		if id, ok := patch.Data["id"]; ok {
			return store.Ref{ID: scalarToKey(id)}
		}
	}
	return store.Ref{}
}

// scalarToKey renders a patch's identity field the same way the
// normalizer does, so an id arriving as a JSON-decoded float64 still
// matches the string keys entities are stored under.
func scalarToKey(v any) string {
	if f, ok := v.(float64); ok {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	return fmt.Sprintf("%v", v)
}

func sameEntity(item any, target store.Ref) bool {
	if target.IsZero() {
		return false
	}
	switch v := item.(type) {
	case store.Ref:
		return v.ID == target.ID && (target.Type == "" || v.Type == target.Type)
	case map[string]any:
		return scalarToKey(v["id"]) == target.ID
	default:
		return false
	}
}

func shallowCopyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func copyFields(m map[string]any) map[string]any {
	return shallowCopyMap(m)
}

// denormalizeThenRenormalize walks newRoot back into a plain response
// shape (resolving any store.Ref leaves through the snapshot, same as a
// query would) so the result can be fed back through normalize.Normalize
// exactly like a transport response would be — the spec's "re-normalize"
// step after the patch walk.
func denormalizeThenRenormalize(ctx *normalize.ExecContext, snapshot store.State, selections []gqlast.Selection, parentType string, newRoot map[string]any) (map[string]any, error) {
	denorm := normalize.Denormalize(ctx, snapshot, selections, parentType, newRoot)
	data, ok := denorm.Data.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("subscription: patch produced a non-object result")
	}
	return data, nil
}

func mergeSkeletons(prior, next map[string]any) map[string]any {
	out := shallowCopyMap(prior)
	for k, v := range next {
		out[k] = v
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
