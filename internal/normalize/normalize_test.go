package normalize_test

import (
	"testing"

	"github.com/shashiranjanraj/graphcache/internal/gqlast"
	"github.com/shashiranjanraj/graphcache/internal/normalize"
	"github.com/shashiranjanraj/graphcache/internal/store"
	"github.com/shashiranjanraj/graphcache/schema"
)

// fakeSchema is a hand-built SchemaSource stub so these tests don't need
// a real *graphql.Schema — only the field-return-type lookups the
// normalizer and denormalizer actually call.
type fakeSchema struct {
	fieldTypes map[string]string // "ParentType.field" -> child type name
}

func (f fakeSchema) TypeInfo(name string) (schema.TypeInfo, bool) {
	return schema.TypeInfo{Name: name}, true
}

func (f fakeSchema) FieldReturnType(parentType, fieldName, typename string) (schema.TypeInfo, error) {
	if tn, ok := f.fieldTypes[parentType+"."+fieldName]; ok {
		return schema.TypeInfo{Name: tn}, nil
	}
	return schema.TypeInfo{}, nil
}

func buildCtx(t *testing.T, query string) (*normalize.ExecContext, []gqlast.Selection) {
	t.Helper()
	doc, err := gqlast.Parse(query)
	if err != nil {
		t.Fatalf("parse query: %v", err)
	}
	sch := fakeSchema{fieldTypes: map[string]string{
		"Query.user": "User",
	}}
	ctx := normalize.NewExecContext(doc, sch, nil, "id")
	return ctx, doc.Selections
}

func TestNormalize_ExtractsEntityAndResultSkeleton(t *testing.T) {
	ctx, sels := buildCtx(t, `{ user(id: 1) { id name email } }`)

	data := map[string]any{
		"user": map[string]any{
			"__typename": "User",
			"id":         "1",
			"name":       "Ada",
			"email":      "ada@example.com",
		},
	}

	out := normalize.Normalize(ctx, data, sels, "Query")

	userFields, ok := out.Entities["User"]["1"]
	if !ok {
		t.Fatalf("expected User.1 entity, got entities=%v", out.Entities)
	}
	if userFields["name"] != "Ada" || userFields["email"] != "ada@example.com" {
		t.Errorf("unexpected entity fields: %v", userFields)
	}

	result, ok := out.Result.(map[string]any)
	if !ok {
		t.Fatalf("expected result to be a map, got %T", out.Result)
	}
	ref, ok := result["user"].(store.Ref)
	if !ok || ref != (store.Ref{Type: "User", ID: "1"}) {
		t.Errorf("expected result.user to be a User.1 ref, got %v", result["user"])
	}
}

func TestDenormalize_RoundTrip(t *testing.T) {
	ctx, sels := buildCtx(t, `{ user(id: 1) { id name email } }`)

	data := map[string]any{
		"user": map[string]any{
			"__typename": "User",
			"id":         "1",
			"name":       "Ada",
			"email":      "ada@example.com",
		},
	}

	out := normalize.Normalize(ctx, data, sels, "Query")

	state := store.NewState()
	state.Entities = out.Entities

	root := out.Result.(map[string]any)
	denorm := normalize.Denormalize(ctx, state, sels, "Query", root)

	if !denorm.IsComplete {
		t.Fatalf("expected denormalization to be complete, got %+v", denorm)
	}

	result, ok := denorm.Data.(map[string]any)
	if !ok {
		t.Fatalf("expected map result, got %T", denorm.Data)
	}
	user, ok := result["user"].(map[string]any)
	if !ok {
		t.Fatalf("expected user sub-object, got %T", result["user"])
	}
	if user["name"] != "Ada" || user["email"] != "ada@example.com" {
		t.Errorf("round-trip mismatch: %v", user)
	}
}

func TestDenormalize_MissingEntityIsIncomplete(t *testing.T) {
	ctx, sels := buildCtx(t, `{ user(id: 1) { id name } }`)

	state := store.NewState() // empty — User.1 absent

	root := map[string]any{"user": store.Ref{Type: "User", ID: "1"}}
	denorm := normalize.Denormalize(ctx, state, sels, "Query", root)

	if denorm.IsComplete {
		t.Errorf("expected isComplete=false when an entity is missing")
	}
}

func TestCollectRefs_FindsAllNestedRefs(t *testing.T) {
	tree := map[string]any{
		"user": store.Ref{Type: "User", ID: "1"},
		"posts": []any{
			store.Ref{Type: "Post", ID: "7"},
			store.Ref{Type: "Post", ID: "8"},
		},
	}

	refs := normalize.CollectRefs(tree)
	if len(refs) != 3 {
		t.Fatalf("expected 3 refs, got %v", refs)
	}
}
