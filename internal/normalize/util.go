package normalize

import (
	"fmt"
	"sort"

	"github.com/shashiranjanraj/graphcache/internal/gqlast"
)

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func toKeyString(v any) string {
	return fmt.Sprintf("%v", v)
}

// trimFloat renders a JSON-decoded numeric ID without a trailing ".0",
// since entity identity is compared as a string key throughout this
// module.
func trimFloat(f float64) string {
	if f == float64(int64(f)) {
		return fmt.Sprintf("%d", int64(f))
	}
	return fmt.Sprintf("%g", f)
}

// FlattenSelections expands fragment spreads and resolves inline
// fragments against the concrete type the data was stamped with
// (typename), returning a flat, ordered list of field selections.
// typename may be empty when the walk has no __typename to check
// against (non-polymorphic selection sets); in that case every inline
// fragment is included, since there is nothing to discriminate on.
func FlattenSelections(doc *gqlast.Document, sels []gqlast.Selection, typename string) []gqlast.Selection {
	var out []gqlast.Selection
	for _, s := range sels {
		switch s.Kind {
		case gqlast.KindField:
			out = append(out, s)
		case gqlast.KindFragmentSpread:
			frag, ok := doc.Fragments[s.FragmentName]
			if !ok {
				continue
			}
			if typename == "" || frag.TypeCondition == "" || frag.TypeCondition == typename {
				out = append(out, FlattenSelections(doc, frag.Selections, typename)...)
			}
		case gqlast.KindInlineFragment:
			if typename == "" || s.TypeCondition == "" || s.TypeCondition == typename {
				out = append(out, FlattenSelections(doc, s.Selections, typename)...)
			}
		}
	}
	return out
}
