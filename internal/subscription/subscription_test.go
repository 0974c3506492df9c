package subscription

import (
	"context"
	"sync"
	"testing"

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
	if fieldName == "messages" {
		return schema.TypeInfo{Name: "Message"}, nil
	}
	return schema.TypeInfo{}, nil
}

func TestApplyPatch_AddAppendsNewListItem(t *testing.T) {
	st := newFakeStore()
	e := New(st, fakeSchema{}, "id", "Query")
	caller := store.CallerKey{CallerID: "widget1"}

	if err := e.Subscribe(caller, `subscription { messages { id text } }`, nil); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	patch := Patch{Kind: Add, Path: "messages", Data: map[string]any{"id": "1", "text": "hi"}}
	if err := e.ApplyPatch(context.Background(), caller, patch, nil, nil); err != nil {
		t.Fatalf("apply patch: %v", err)
	}

	snapshot := st.GetState()
	if _, ok := snapshot.Entities["Message"]["1"]; !ok {
		t.Fatalf("expected Message.1 to be stored, got %v", snapshot.Entities)
	}
}

func TestApplyPatch_UpdateReplacesMatchingListItem(t *testing.T) {
	st := newFakeStore()
	e := New(st, fakeSchema{}, "id", "Query")
	caller := store.CallerKey{CallerID: "widget1"}
	_ = e.Subscribe(caller, `subscription { messages { id text } }`, nil)

	add := Patch{Kind: Add, Path: "messages", Data: map[string]any{"id": "1", "text": "hi"}}
	if err := e.ApplyPatch(context.Background(), caller, add, nil, nil); err != nil {
		t.Fatalf("add: %v", err)
	}

	update := Patch{Kind: Update, Path: "messages", Data: map[string]any{"id": "1", "text": "edited"}}
	if err := e.ApplyPatch(context.Background(), caller, update, nil, nil); err != nil {
		t.Fatalf("update: %v", err)
	}

	snapshot := st.GetState()
	if snapshot.Entities["Message"]["1"]["text"] != "edited" {
		t.Errorf("expected text to be updated, got %v", snapshot.Entities["Message"]["1"])
	}
}

func TestApplyPatch_MultiFieldSubscriptionRequiresPath(t *testing.T) {
	st := newFakeStore()
	e := New(st, fakeSchema{}, "id", "Query")
	caller := store.CallerKey{CallerID: "widget1"}
	_ = e.Subscribe(caller, `subscription { messages { id } typingUsers { id } }`, nil)

	patch := Patch{Kind: Add, Data: map[string]any{"id": "1"}}
	err := e.ApplyPatch(context.Background(), caller, patch, nil, nil)
	if err == nil {
		t.Fatal("expected an error for a missing path on a multi-field subscription")
	}
}

func TestApplyPatch_FlushesOtherCallersDependingOnTheSameEntity(t *testing.T) {
	st := newFakeStore()
	e := New(st, fakeSchema{}, "id", "Query")
	caller := store.CallerKey{CallerID: "widget1"}
	_ = e.Subscribe(caller, `subscription { messages { id text } }`, nil)

	var cleared []store.CallerKey
	flush := func(changed []store.Ref, origin store.CallerKey) []store.CallerKey {
		return []store.CallerKey{{CallerID: "other"}}
	}
	clear := func(c store.CallerKey) { cleared = append(cleared, c) }

	patch := Patch{Kind: Add, Path: "messages", Data: map[string]any{"id": "1", "text": "hi"}}
	if err := e.ApplyPatch(context.Background(), caller, patch, flush, clear); err != nil {
		t.Fatalf("apply patch: %v", err)
	}

	if len(cleared) != 1 || cleared[0].CallerID != "other" {
		t.Errorf("expected the 'other' caller to be cleared, got %v", cleared)
	}
}
