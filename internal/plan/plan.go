// Package plan implements the query planner (spec component C4): given
// a parsed query, the current store, and a prior (possibly partial)
// denormalization, it computes the smallest selection set the server
// still needs to answer, rewrites pagination arguments to request only
// the missing slice, and prints the result back to GraphQL text.
//
// Fragments are inlined during planning rather than preserved as
// spreads in the minimized output: by the time a query reaches the
// planner its shape is already fully resolved against the store, so
// there is no benefit to re-deriving which fragment a surviving field
// came from, and printing flat field selections keeps the printer in
// this package simple and independent of graphql-go's own printer.
package plan

import (
	"github.com/shashiranjanraj/graphcache/internal/gqlast"
	"github.com/shashiranjanraj/graphcache/internal/normalize"
	"github.com/shashiranjanraj/graphcache/pkg/collection"
)

// Minimize computes the selections the server still needs. root is the
// caller's current (possibly partial) denormalized data for selections,
// as produced by normalize.Denormalize. A nil return means every
// selection is already satisfied locally.
func Minimize(ctx *normalize.ExecContext, selections []gqlast.Selection, parentType string, root map[string]any) []gqlast.Selection {
	flat := normalize.FlattenSelections(ctx.Document, selections, "")

	var missing []gqlast.Selection
	for _, field := range flat {
		m := planField(ctx, field, parentType, root)
		if m != nil {
			missing = append(missing, *m)
		}
	}
	return missing
}

// planField returns nil when field is fully satisfied by root, or a
// (possibly argument-rewritten, possibly selection-pruned) copy of
// field describing what the server still needs.
func planField(ctx *normalize.ExecContext, field gqlast.Selection, parentType string, root map[string]any) *gqlast.Selection {
	// root is denormalized data, keyed by response key — the arg-bucket
	// keys exist only in the store-side skeleton the denormalizer
	// already resolved through.
	value, present := root[field.ResponseKey()]
	if !present {
		return originalField(ctx, field)
	}

	if len(field.Selections) == 0 {
		// Scalar leaf: present means satisfied.
		return nil
	}

	switch v := value.(type) {
	case map[string]any:
		sub := Minimize(ctx, field.Selections, childType(ctx, parentType, field), v)
		if len(sub) == 0 {
			return nil
		}
		clone := field
		clone.Selections = sub
		clone.Arguments = originalArgs(ctx, field)
		return &clone
	case []any:
		return planListField(ctx, field, parentType, v)
	default:
		return nil
	}
}

// planListField handles a list-valued field, applying pagination-aware
// minimization per design note 4.4: when the store already has some of
// a requested page, rewrite `first`/`after` — or `last`/`before`, in
// whichever form the original operation used — to ask only for the
// remainder instead of refetching the whole page.
func planListField(ctx *normalize.ExecContext, field gqlast.Selection, parentType string, have []any) *gqlast.Selection {
	args := ctx.ResolvedArgs(field.Arguments)
	w := ctx.PaginationWords

	firstArg, hasFirst := args[w.First]
	lastArg, hasLast := args[w.Last]
	if !hasFirst && !hasLast {
		// No pagination on this field — treat the presence of any data as
		// satisfied: a non-empty list counts as complete, and the items'
		// sub-selections are not checked.
		if len(have) == 0 {
			return originalField(ctx, field)
		}
		return nil
	}

	wanted := toInt(firstArg)
	if hasLast {
		wanted = toInt(lastArg)
	}
	if len(have) >= wanted {
		return nil
	}
	remaining := wanted - len(have)

	clone := field
	if hasLast {
		// A `last N` page grows backward: the cached items are the tail
		// of the list, so ask for the missing slice before the earliest
		// cached item.
		clone.Arguments = rewriteBackwardPaginationArgs(field.Arguments, w, remaining, firstItemCursor(ctx, have))
	} else {
		clone.Arguments = rewritePaginationArgs(field.Arguments, w, remaining, lastItemCursor(ctx, have))
	}
	return &clone
}

func rewritePaginationArgs(original []gqlast.Argument, w normalize.PaginationWords, first int, after string) []gqlast.Argument {
	out := make([]gqlast.Argument, 0, len(original)+1)
	sawAfter := false
	for _, a := range original {
		switch a.Name {
		case w.First:
			out = append(out, gqlast.Argument{Name: w.First, Value: first})
		case w.After:
			out = append(out, gqlast.Argument{Name: w.After, Value: after})
			sawAfter = true
		default:
			out = append(out, a)
		}
	}
	if !sawAfter && after != "" {
		out = append(out, gqlast.Argument{Name: w.After, Value: after})
	}
	return out
}

func rewriteBackwardPaginationArgs(original []gqlast.Argument, w normalize.PaginationWords, last int, before string) []gqlast.Argument {
	out := make([]gqlast.Argument, 0, len(original)+1)
	sawBefore := false
	for _, a := range original {
		switch a.Name {
		case w.Last:
			out = append(out, gqlast.Argument{Name: w.Last, Value: last})
		case w.Before:
			out = append(out, gqlast.Argument{Name: w.Before, Value: before})
			sawBefore = true
		default:
			out = append(out, a)
		}
	}
	if !sawBefore && before != "" {
		out = append(out, gqlast.Argument{Name: w.Before, Value: before})
	}
	return out
}

func lastItemCursor(ctx *normalize.ExecContext, items []any) string {
	if len(items) == 0 {
		return ""
	}
	return itemCursor(ctx, items[len(items)-1])
}

func firstItemCursor(ctx *normalize.ExecContext, items []any) string {
	if len(items) == 0 {
		return ""
	}
	return itemCursor(ctx, items[0])
}

func itemCursor(ctx *normalize.ExecContext, item any) string {
	fields, ok := item.(map[string]any)
	if !ok {
		return ""
	}
	if id, ok := fields[ctx.IDFieldName]; ok {
		if s, ok := id.(string); ok {
			return s
		}
	}
	return ""
}

func toInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	case string:
		var i int
		for _, r := range n {
			if r < '0' || r > '9' {
				return 0
			}
			i = i*10 + int(r-'0')
		}
		return i
	default:
		return 0
	}
}

func originalField(ctx *normalize.ExecContext, field gqlast.Selection) *gqlast.Selection {
	clone := field
	clone.Arguments = originalArgs(ctx, field)
	return &clone
}

func originalArgs(ctx *normalize.ExecContext, field gqlast.Selection) []gqlast.Argument {
	if orig, ok := ctx.OriginalArgs[field.ResponseKey()]; ok {
		return orig
	}
	return field.Arguments
}

func childType(ctx *normalize.ExecContext, parentType string, field gqlast.Selection) string {
	info, err := ctx.Schema.FieldReturnType(parentType, field.Name, "")
	if err != nil {
		return ""
	}
	return info.Name
}

// ReferencedVariables returns the set of variable names used anywhere
// in selections, so PruneVariables can drop unreferenced ones.
func ReferencedVariables(selections []gqlast.Selection) map[string]struct{} {
	out := map[string]struct{}{}
	var walk func([]gqlast.Selection)
	walk = func(sels []gqlast.Selection) {
		for _, s := range sels {
			for _, a := range s.Arguments {
				if ref, ok := a.Value.(gqlast.VariableRef); ok {
					out[ref.Name] = struct{}{}
				}
			}
			walk(s.Selections)
		}
	}
	walk(selections)
	return out
}

// PruneVariables returns only the variable definitions referenced by
// selections, preserving their original order.
func PruneVariables(defs []gqlast.VariableDefinition, selections []gqlast.Selection) []gqlast.VariableDefinition {
	used := ReferencedVariables(selections)
	return collection.Filter(defs, func(d gqlast.VariableDefinition) bool {
		_, ok := used[d.Name]
		return ok
	})
}
