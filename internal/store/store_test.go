package store_test

import (
	"errors"
	"testing"

	"github.com/shashiranjanraj/graphcache/internal/store"
)

func TestReduce_InsertQuery_MergesEntitiesAndClearsError(t *testing.T) {
	state := store.NewState()
	state.Error = errors.New("stale error")

	caller := store.CallerKey{CallerID: "userQuery"}
	resp := store.NormalizedResponse{
		Entities: store.EntityTable{
			"User": {"1": {"id": "1", "name": "Ada"}},
		},
		Result: map[store.CallerKey]any{
			caller: store.Ref{Type: "User", ID: "1"},
		},
	}

	next := store.Reduce(state, store.InsertQuery{
		Response:  resp,
		Variables: map[store.CallerKey]map[string]any{caller: {"id": "1"}},
	})

	got, ok := next.GetEntity(store.Ref{Type: "User", ID: "1"})
	if !ok {
		t.Fatalf("expected User.1 to be present after insert")
	}
	if got["name"] != "Ada" {
		t.Errorf("expected name=Ada, got %v", got["name"])
	}
	if next.Error != nil {
		t.Errorf("expected error cleared, got %v", next.Error)
	}
	if next.Variables[caller]["id"] != "1" {
		t.Errorf("expected caller variables installed, got %v", next.Variables[caller])
	}
}

func TestReduce_ScalarLastWriteWins(t *testing.T) {
	state := store.NewState()
	state.Entities = store.EntityTable{
		"User": {"1": {"name": "Ada", "age": 30.0}},
	}

	next := store.Reduce(state, store.InsertQuery{
		Response: store.NormalizedResponse{
			Entities: store.EntityTable{"User": {"1": {"name": "Ada Lovelace"}}},
		},
	})

	got, _ := next.GetEntity(store.Ref{Type: "User", ID: "1"})
	if got["name"] != "Ada Lovelace" {
		t.Errorf("expected last write to win, got %v", got["name"])
	}
	if got["age"] != 30.0 {
		t.Errorf("expected untouched scalar field to survive the merge, got %v", got["age"])
	}
}

func TestReduce_ArraysReplaceWholesale(t *testing.T) {
	state := store.NewState()
	state.Entities = store.EntityTable{
		"User": {"1": {"tags": []any{"a", "b", "c"}}},
	}

	next := store.Reduce(state, store.InsertMutation{
		Response: store.NormalizedResponse{
			Entities: store.EntityTable{"User": {"1": {"tags": []any{"z"}}}},
		},
	})

	got, _ := next.GetEntity(store.Ref{Type: "User", ID: "1"})
	tags, ok := got["tags"].([]any)
	if !ok || len(tags) != 1 || tags[0] != "z" {
		t.Errorf("expected array to be replaced wholesale, got %v", got["tags"])
	}
}

func TestReduce_SetError_LeavesDataUntouched(t *testing.T) {
	state := store.NewState()
	state.Entities = store.EntityTable{"User": {"1": {"name": "Ada"}}}

	next := store.Reduce(state, store.SetError{Err: errors.New("boom")})

	if next.Error == nil || next.Error.Error() != "boom" {
		t.Errorf("expected error to be set, got %v", next.Error)
	}
	got, ok := next.GetEntity(store.Ref{Type: "User", ID: "1"})
	if !ok || got["name"] != "Ada" {
		t.Errorf("expected entity data untouched by SetError, got %v ok=%v", got, ok)
	}
}

func TestReduce_IsPure_DoesNotMutateInputState(t *testing.T) {
	state := store.NewState()
	state.Entities = store.EntityTable{"User": {"1": {"name": "Ada"}}}

	_ = store.Reduce(state, store.InsertQuery{
		Response: store.NormalizedResponse{
			Entities: store.EntityTable{"User": {"1": {"name": "Changed"}}},
		},
	})

	got, _ := state.GetEntity(store.Ref{Type: "User", ID: "1"})
	if got["name"] != "Ada" {
		t.Errorf("Reduce must not mutate its input state, got %v", got["name"])
	}
}

// Idempotent merge (P2): merging the same normalized response twice
// equals merging it once.
func TestReduce_IdempotentMerge(t *testing.T) {
	state := store.NewState()
	resp := store.NormalizedResponse{
		Entities: store.EntityTable{"User": {"1": {"name": "Ada"}}},
	}

	once := store.Reduce(state, store.InsertQuery{Response: resp})
	twice := store.Reduce(once, store.InsertQuery{Response: resp})

	onceEntity, _ := once.GetEntity(store.Ref{Type: "User", ID: "1"})
	twiceEntity, _ := twice.GetEntity(store.Ref{Type: "User", ID: "1"})
	if onceEntity["name"] != twiceEntity["name"] {
		t.Errorf("expected idempotent merge, got %v then %v", onceEntity, twiceEntity)
	}
}
