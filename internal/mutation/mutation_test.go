package mutation

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"

	"github.com/shashiranjanraj/graphcache/internal/gqlast"
	"github.com/shashiranjanraj/graphcache/internal/store"
	"github.com/shashiranjanraj/graphcache/schema"
)

type fakeStore struct {
	mu    sync.Mutex
	state store.State
}

func newFakeStore() *fakeStore {
	return &fakeStore{state: store.NewState()}
}

func (f *fakeStore) Dispatch(a store.Action) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state = store.Reduce(f.state, a)
}

func (f *fakeStore) GetState() store.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

type fakeSchema struct{}

func (fakeSchema) TypeInfo(name string) (schema.TypeInfo, bool) { return schema.TypeInfo{Name: name}, true }
func (fakeSchema) FieldReturnType(parentType, fieldName, typename string) (schema.TypeInfo, error) {
	if fieldName == "user" {
		return schema.TypeInfo{Name: "User"}, nil
	}
	return schema.TypeInfo{}, nil
}

type fakeRegistry struct {
	selections map[store.CallerKey][]gqlast.Selection
	parentType map[store.CallerKey]string
	responses  map[store.CallerKey]any
	refetched  []store.CallerKey

	// deps simulates the coordinator's dependency index: caller -> the
	// "type.id" keys it depends on. cleared records ClearCachedResponse
	// calls.
	deps    map[store.CallerKey][]string
	cleared []store.CallerKey
}

func (r *fakeRegistry) Callers() []store.CallerKey {
	out := make([]store.CallerKey, 0, len(r.selections))
	for c := range r.selections {
		out = append(out, c)
	}
	return out
}

func (r *fakeRegistry) CallerQuery(caller store.CallerKey) ([]gqlast.Selection, string, bool) {
	sels, ok := r.selections[caller]
	return sels, r.parentType[caller], ok
}

func (r *fakeRegistry) CachedResponse(caller store.CallerKey) (any, bool) {
	v, ok := r.responses[caller]
	return v, ok
}

func (r *fakeRegistry) Refetch(caller store.CallerKey) {
	r.refetched = append(r.refetched, caller)
}

func (r *fakeRegistry) FlushDependencies(changed []store.Ref, origin store.CallerKey) []store.CallerKey {
	changedKeys := map[string]struct{}{}
	for _, ref := range changed {
		changedKeys[ref.Key()] = struct{}{}
	}
	var out []store.CallerKey
	for caller, keys := range r.deps {
		if caller == origin {
			continue
		}
		for _, key := range keys {
			if _, ok := changedKeys[key]; ok {
				out = append(out, caller)
				break
			}
		}
	}
	return out
}

func (r *fakeRegistry) ClearCachedResponse(caller store.CallerKey) {
	r.cleared = append(r.cleared, caller)
}

type fakeTransport struct {
	response json.RawMessage
	err      error
	calls    int
}

func (f *fakeTransport) Execute(ctx context.Context, query string, variables map[string]any) (json.RawMessage, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.response, nil
}

type recordingHandler struct {
	optimisticData     map[string]any
	authoritativeData  map[string]any
}

func (h *recordingHandler) Optimistic(variables map[string]any, currentData any, lookup TypeLookup) Outcome {
	return Outcome{Kind: Replace, Data: h.optimisticData}
}

func (h *recordingHandler) Authoritative(serverData any, currentData any, lookup TypeLookup) Outcome {
	return Outcome{Kind: Replace, Data: h.authoritativeData}
}

func (h *recordingHandler) GetType() string { return "User" }

func selectionsFor(t *testing.T, q string) []gqlast.Selection {
	t.Helper()
	doc, err := gqlast.Parse(q)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return doc.Selections
}

func TestMutate_AppliesOptimisticThenAuthoritative(t *testing.T) {
	caller := store.CallerKey{CallerID: "widget1"}
	registry := &fakeRegistry{
		selections: map[store.CallerKey][]gqlast.Selection{caller: selectionsFor(t, `{ user { id name } }`)},
		parentType: map[store.CallerKey]string{caller: "Query"},
		responses:  map[store.CallerKey]any{caller: map[string]any{}},
	}
	transport := &fakeTransport{response: json.RawMessage(`{"m_widget1":{"id":"1","name":"Ada Authoritative"}}`)}
	st := newFakeStore()
	e := New(st, fakeSchema{}, transport, registry, "id")

	h := &recordingHandler{
		optimisticData:    map[string]any{"user": map[string]any{"id": "1", "name": "Ada Optimistic"}},
		authoritativeData: map[string]any{"user": map[string]any{"id": "1", "name": "Ada Authoritative"}},
	}
	e.RegisterHandler("renameUser", caller, h)

	_, err := e.Mutate(context.Background(), "renameUser", `mutation { renameUser(id: 1, name: "Ada") { id name } }`, map[string]any{"id": 1, "name": "Ada"}, Options{})
	if err != nil {
		t.Fatalf("mutate: %v", err)
	}
	if transport.calls != 1 {
		t.Fatalf("expected exactly one transport call, got %d", transport.calls)
	}

	snapshot := st.GetState()

	// The authoritative pass should have the final say on the stored name.
	userFields, ok := snapshot.Entities["User"]["1"]
	if !ok {
		t.Fatalf("expected User.1 to be merged into the store, got %v", snapshot.Entities)
	}
	if userFields["name"] != "Ada Authoritative" {
		t.Errorf("expected authoritative pass to win, got %v", userFields["name"])
	}
}

func TestMutate_AuthoritativePassClearsInactiveDependentCaller(t *testing.T) {
	active := store.CallerKey{CallerID: "widget1"}
	dependent := store.CallerKey{CallerID: "widget2"}   // no handler, depends on User.1
	unrelated := store.CallerKey{CallerID: "widget3"}   // no handler, depends on something else
	registry := &fakeRegistry{
		selections: map[store.CallerKey][]gqlast.Selection{
			active:    selectionsFor(t, `{ user { id name } }`),
			dependent: selectionsFor(t, `{ user { id } }`),
			unrelated: selectionsFor(t, `{ user { id } }`),
		},
		parentType: map[store.CallerKey]string{active: "Query", dependent: "Query", unrelated: "Query"},
		responses:  map[store.CallerKey]any{active: map[string]any{}, dependent: map[string]any{}, unrelated: map[string]any{}},
		deps: map[store.CallerKey][]string{
			dependent: {"User.1"},
			unrelated: {"Post.9"},
		},
	}
	transport := &fakeTransport{response: json.RawMessage(`{"m_widget1":{"id":"1","name":"Ada2"}}`)}
	st := newFakeStore()
	e := New(st, fakeSchema{}, transport, registry, "id")

	h := &recordingHandler{
		authoritativeData: map[string]any{"user": map[string]any{"id": "1", "name": "Ada2"}},
	}
	e.RegisterHandler("renameUser", active, h)

	_, err := e.Mutate(context.Background(), "renameUser", `mutation { renameUser(id: 1) { id name } }`, map[string]any{"id": 1}, Options{})
	if err != nil {
		t.Fatalf("mutate: %v", err)
	}

	// Only the dependent caller is cleared, exactly once (the optimistic
	// pass must not cascade), and the unrelated caller stays untouched.
	if len(registry.cleared) != 1 || registry.cleared[0] != dependent {
		t.Fatalf("expected exactly [widget2] cleared after the authoritative pass, got %v", registry.cleared)
	}
}

func TestMutate_NoHandlerReturnsError(t *testing.T) {
	st := newFakeStore()
	registry := &fakeRegistry{selections: map[store.CallerKey][]gqlast.Selection{}, parentType: map[store.CallerKey]string{}, responses: map[store.CallerKey]any{}}
	e := New(st, fakeSchema{}, &fakeTransport{}, registry, "id")

	_, err := e.Mutate(context.Background(), "unknown", `mutation { x }`, nil, Options{})
	if err == nil {
		t.Fatal("expected an error for a mutation with no registered handler")
	}
}

func TestMutate_InvalidateOutcomeTriggersRefetchInsteadOfMerge(t *testing.T) {
	caller := store.CallerKey{CallerID: "widget1"}
	registry := &fakeRegistry{
		selections: map[store.CallerKey][]gqlast.Selection{caller: selectionsFor(t, `{ user { id name } }`)},
		parentType: map[store.CallerKey]string{caller: "Query"},
		responses:  map[store.CallerKey]any{caller: map[string]any{}},
	}
	transport := &fakeTransport{response: json.RawMessage(`{"id":"1"}`)}
	st := newFakeStore()
	e := New(st, fakeSchema{}, transport, registry, "id")

	h := &invalidatingHandler{}
	e.RegisterHandler("deleteUser", caller, h)

	_, err := e.Mutate(context.Background(), "deleteUser", `mutation { deleteUser(id: 1) { id } }`, map[string]any{"id": 1}, Options{})
	if err != nil {
		t.Fatalf("mutate: %v", err)
	}
	if len(registry.refetched) == 0 {
		t.Fatal("expected the invalidate outcome to trigger a refetch")
	}
}

// TestBuildPlan_AliasNamespacesPerCallerProjection checks the combined
// request's shape: two callers with overlapping-but-different field
// sets on one mutation get their own aliased sub-selection (their own
// projection of the mutation's return type, not a shared shape) and
// non-colliding variables in a single combined document.
func TestBuildPlan_AliasNamespacesPerCallerProjection(t *testing.T) {
	widget1 := store.CallerKey{CallerID: "widget1"}
	widget2 := store.CallerKey{CallerID: "widget2"}
	registry := &fakeRegistry{
		selections: map[store.CallerKey][]gqlast.Selection{
			widget1: selectionsFor(t, `{ user { id name } }`),
			widget2: selectionsFor(t, `{ user { id email } }`),
		},
		parentType: map[store.CallerKey]string{widget1: "Query", widget2: "Query"},
		responses:  map[store.CallerKey]any{widget1: map[string]any{}, widget2: map[string]any{}},
	}
	st := newFakeStore()
	e := New(st, fakeSchema{}, &fakeTransport{}, registry, "id")

	h1 := &recordingHandler{}
	h2 := &recordingHandler{}
	e.RegisterHandler("renameUser", widget1, h1)
	e.RegisterHandler("renameUser", widget2, h2)

	doc, err := gqlast.Parse(`mutation($id: ID!, $name: String) { renameUser(id: $id, name: $name) { id name email } }`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	byCaller := map[store.CallerKey]Handler{widget1: h1, widget2: h2}
	active := []store.CallerKey{widget1, widget2}
	combined, err := e.buildPlan(doc, map[string]any{"id": "1", "name": "Ada2"}, active, byCaller)
	if err != nil {
		t.Fatalf("buildPlan: %v", err)
	}

	if !strings.Contains(combined.document, "m_widget1: renameUser") {
		t.Errorf("expected an aliased renameUser field for widget1, got %s", combined.document)
	}
	if !strings.Contains(combined.document, "m_widget2: renameUser") {
		t.Errorf("expected an aliased renameUser field for widget2, got %s", combined.document)
	}
	if !strings.Contains(combined.document, "name") {
		t.Errorf("expected widget1's own projection (name) in the combined document, got %s", combined.document)
	}
	if !strings.Contains(combined.document, "email") {
		t.Errorf("expected widget2's own projection (email) in the combined document, got %s", combined.document)
	}

	if combined.variables["m_widget1_id"] != "1" || combined.variables["m_widget2_id"] != "1" {
		t.Errorf("expected both callers' id argument namespaced under its own alias, got %v", combined.variables)
	}
	if combined.aliasOf[widget1] == combined.aliasOf[widget2] {
		t.Fatal("expected distinct aliases per caller")
	}
}

type invalidatingHandler struct{}

func (invalidatingHandler) Optimistic(map[string]any, any, TypeLookup) Outcome {
	return Outcome{Kind: Invalidate}
}
func (invalidatingHandler) Authoritative(any, any, TypeLookup) Outcome {
	return Outcome{Kind: Invalidate}
}
func (invalidatingHandler) GetType() string { return "User" }
