// Package normalize implements the normalizer/denormalizer pair (spec
// component C2): the walk that flattens a server response into
// {entities, result} and its inverse, the walk that reconstructs a
// response shape from the store.
//
// Both walks share one ExecContext and both switch on gqlast.Selection
// kind through the same small set of cases — the tagged-variant walker
// called for in the design notes, replacing the type-branching a direct
// port of a dynamically-typed walker would otherwise need.
package normalize

import (
	"github.com/shashiranjanraj/graphcache/internal/gqlast"
	"github.com/shashiranjanraj/graphcache/schema"
)

// PaginationWords names the four reserved cursor arguments so an
// application can rename them if its schema uses different
// conventions.
type PaginationWords struct {
	Before, After, First, Last string
}

// DefaultPaginationWords returns the Relay-style defaults.
func DefaultPaginationWords() PaginationWords {
	return PaginationWords{Before: "before", After: "after", First: "first", Last: "last"}
}

// SchemaSource is the subset of schema.Builder both walks depend on.
// Defined here, rather than imported as a concrete type, so a test can
// substitute a hand-built stub without constructing a *graphql.Schema.
type SchemaSource interface {
	TypeInfo(name string) (schema.TypeInfo, bool)
	FieldReturnType(parentType, fieldName, typename string) (schema.TypeInfo, error)
}

// ExecContext is the one execution context both walks read from.
// Variables are never reset or rewritten after use (see SPEC_FULL §4.2
// on the elided variable-reset step); the normalizer fills OriginalArgs
// as it walks, and the planner's argument rewriting (internal/plan)
// only reads OriginalArgs and builds new argument slices from it.
type ExecContext struct {
	Document        *gqlast.Document
	Schema          SchemaSource
	Variables       map[string]any
	PaginationWords PaginationWords
	IDFieldName     string

	// OriginalArgs stashes each field's as-written argument list, keyed
	// by the field's response key, so the planner can restore unmutated
	// arguments after computing a minimized request — see internal/plan.
	OriginalArgs map[string][]gqlast.Argument
}

// NewExecContext builds a ready-to-use context with the default
// pagination words and a fresh OriginalArgs stash.
func NewExecContext(doc *gqlast.Document, sch SchemaSource, variables map[string]any, idField string) *ExecContext {
	return &ExecContext{
		Document:        doc,
		Schema:          sch,
		Variables:       variables,
		PaginationWords: DefaultPaginationWords(),
		IDFieldName:     idField,
		OriginalArgs:    map[string][]gqlast.Argument{},
	}
}

// resolveArgValue resolves a single argument's value, following
// VariableRef indirection into ctx.Variables.
func (ctx *ExecContext) resolveArgValue(v any) any {
	if ref, ok := v.(gqlast.VariableRef); ok {
		return ctx.Variables[ref.Name]
	}
	return v
}

// ResolvedArgs resolves every argument on a field selection into a
// plain map, variables substituted.
func (ctx *ExecContext) ResolvedArgs(args []gqlast.Argument) map[string]any {
	out := make(map[string]any, len(args))
	for _, a := range args {
		out[a.Name] = ctx.resolveArgValue(a.Value)
	}
	return out
}

// ArgBucketKey builds the storage key for a field's result. Fields
// whose arguments carry no pagination words store under their plain
// response key — response keys are unique within a selection set, so
// non-pagination arguments need no disambiguation in a per-caller
// skeleton. Paginated fields store once per distinct non-pagination
// argument set, with the cursor state folded away, so different pages
// of the same field+filters page through one shared bucket — e.g.
// `posts(first:5)` and `posts(first:5, after:"c1")` both land in the
// same `posts` bucket and accumulate rather than stomping each other.
func (ctx *ExecContext) ArgBucketKey(fieldName string, args map[string]any) string {
	if !ctx.hasPaginationWord(args) {
		return fieldName
	}
	key := fieldName
	for _, argName := range sortedKeys(args) {
		if ctx.isPaginationWord(argName) {
			continue
		}
		key += "|" + argName + "=" + toKeyString(args[argName])
	}
	return key
}

func (ctx *ExecContext) hasPaginationWord(args map[string]any) bool {
	for name := range args {
		if ctx.isPaginationWord(name) {
			return true
		}
	}
	return false
}

func (ctx *ExecContext) isPaginationWord(name string) bool {
	w := ctx.PaginationWords
	return name == w.Before || name == w.After || name == w.First || name == w.Last
}
