package plan_test

import (
	"strconv"
	"strings"
	"testing"

	"github.com/shashiranjanraj/graphcache/internal/gqlast"
	"github.com/shashiranjanraj/graphcache/internal/normalize"
	"github.com/shashiranjanraj/graphcache/internal/plan"
	"github.com/shashiranjanraj/graphcache/schema"
)

type stubSchema struct{}

func (stubSchema) TypeInfo(name string) (schema.TypeInfo, bool) { return schema.TypeInfo{Name: name}, true }
func (stubSchema) FieldReturnType(parentType, fieldName, typename string) (schema.TypeInfo, error) {
	if fieldName == "user" {
		return schema.TypeInfo{Name: "User"}, nil
	}
	return schema.TypeInfo{}, nil
}

func parse(t *testing.T, q string) (*normalize.ExecContext, []gqlast.Selection) {
	t.Helper()
	doc, err := gqlast.Parse(q)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	ctx := normalize.NewExecContext(doc, stubSchema{}, nil, "id")
	// populate OriginalArgs as normalize would on a prior pass
	var stash func([]gqlast.Selection)
	stash = func(sels []gqlast.Selection) {
		for _, s := range sels {
			ctx.OriginalArgs[s.ResponseKey()] = s.Arguments
			stash(s.Selections)
		}
	}
	stash(doc.Selections)
	return ctx, doc.Selections
}

func TestMinimize_FullySatisfiedReturnsEmpty(t *testing.T) {
	ctx, sels := parse(t, `{ user(id: 1) { id name } }`)

	root := map[string]any{
		"user": map[string]any{"id": "1", "name": "Ada"},
	}

	missing := plan.Minimize(ctx, sels, "Query", root)
	if len(missing) != 0 {
		t.Errorf("expected no missing selections, got %v", missing)
	}
}

func TestMinimize_PartialReturnsOnlyMissingSubfield(t *testing.T) {
	ctx, sels := parse(t, `{ user(id: 1) { id name email } }`)

	root := map[string]any{
		"user": map[string]any{"id": "1", "name": "Ada"}, // email missing
	}

	missing := plan.Minimize(ctx, sels, "Query", root)
	if len(missing) != 1 || missing[0].Name != "user" {
		t.Fatalf("expected one missing 'user' selection, got %v", missing)
	}
	if len(missing[0].Selections) != 1 || missing[0].Selections[0].Name != "email" {
		t.Fatalf("expected only 'email' to survive pruning, got %v", missing[0].Selections)
	}
}

func TestMinimize_MissingEntirely(t *testing.T) {
	ctx, sels := parse(t, `{ user(id: 1) { id name } }`)

	missing := plan.Minimize(ctx, sels, "Query", map[string]any{})
	if len(missing) != 1 || missing[0].Name != "user" {
		t.Fatalf("expected the whole 'user' field missing, got %v", missing)
	}
}

func TestMinimize_Pagination_RequestsOnlyRemainder(t *testing.T) {
	ctx, sels := parse(t, `{ posts(first: 20) { id title } }`)

	have := make([]any, 15)
	for i := range have {
		have[i] = map[string]any{"id": "100", "title": "x"}
	}
	root := map[string]any{"posts": have}

	missing := plan.Minimize(ctx, sels, "Query", root)
	if len(missing) != 1 {
		t.Fatalf("expected one missing 'posts' selection, got %v", missing)
	}

	var first, after string
	for _, a := range missing[0].Arguments {
		switch a.Name {
		case "first":
			first = printValueForTest(a.Value)
		case "after":
			after = printValueForTest(a.Value)
		}
	}
	if first != "5" {
		t.Errorf("expected first=5, got %s", first)
	}
	if after != "100" {
		t.Errorf("expected after=100 (cursor of last stored post), got %s", after)
	}
}

func TestMinimize_BackwardPagination_RequestsOnlyRemainder(t *testing.T) {
	ctx, sels := parse(t, `{ posts(last: 20) { id title } }`)

	// The cached items are the tail of the list; "42" is the earliest
	// one held, so the missing slice lies before it.
	have := make([]any, 15)
	for i := range have {
		have[i] = map[string]any{"id": "42", "title": "x"}
	}
	root := map[string]any{"posts": have}

	missing := plan.Minimize(ctx, sels, "Query", root)
	if len(missing) != 1 {
		t.Fatalf("expected one missing 'posts' selection, got %v", missing)
	}

	var last, before string
	for _, a := range missing[0].Arguments {
		switch a.Name {
		case "last":
			last = printValueForTest(a.Value)
		case "before":
			before = printValueForTest(a.Value)
		}
	}
	if last != "5" {
		t.Errorf("expected last=5, got %s", last)
	}
	if before != "42" {
		t.Errorf("expected before=42 (cursor of earliest stored post), got %s", before)
	}
}

func printValueForTest(v any) string {
	switch t := v.(type) {
	case int:
		return strconv.Itoa(t)
	case string:
		return t
	default:
		return ""
	}
}

func TestPrint_RendersQueryText(t *testing.T) {
	ctx, sels := parse(t, `{ user(id: 1) { id name } }`)
	missing := plan.Minimize(ctx, sels, "Query", map[string]any{})

	out := plan.Print("query", "", nil, missing)
	if !strings.Contains(out, "user(id: 1)") {
		t.Errorf("expected printed query to contain user(id: 1), got %q", out)
	}
	if !strings.Contains(out, "name") {
		t.Errorf("expected printed query to contain name field, got %q", out)
	}
}
