package plan

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shashiranjanraj/graphcache/internal/gqlast"
)

// Print renders operationName ("query"|"mutation"|"subscription"),
// variable definitions and a selection set back to GraphQL document
// text. It is deliberately independent of graphql-go's own printer:
// the minimizer already did the one job a printer needs to get right
// for this module — deciding exactly which fields and arguments survive
// — so printing them back out is a small, fully-owned piece of code
// rather than a dependency on another package's exact return type.
func Print(operationName, opName string, variables []gqlast.VariableDefinition, selections []gqlast.Selection) string {
	var b strings.Builder

	b.WriteString(operationName)
	if opName != "" {
		b.WriteString(" ")
		b.WriteString(opName)
	}
	if len(variables) > 0 {
		b.WriteString("(")
		for i, v := range variables {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString("$")
			b.WriteString(v.Name)
			b.WriteString(": ")
			b.WriteString(v.TypeName)
			if v.DefaultValue != nil {
				b.WriteString(" = ")
				b.WriteString(printValue(v.DefaultValue))
			}
		}
		b.WriteString(")")
	}
	b.WriteString(" ")
	printSelectionSet(&b, selections, 0)
	return b.String()
}

func printSelectionSet(b *strings.Builder, selections []gqlast.Selection, depth int) {
	if len(selections) == 0 {
		return
	}
	b.WriteString("{\n")
	indent := strings.Repeat("  ", depth+1)
	for _, s := range selections {
		b.WriteString(indent)
		printSelection(b, s, depth)
		b.WriteString("\n")
	}
	b.WriteString(strings.Repeat("  ", depth))
	b.WriteString("}")
}

func printSelection(b *strings.Builder, s gqlast.Selection, depth int) {
	switch s.Kind {
	case gqlast.KindFragmentSpread:
		b.WriteString("...")
		b.WriteString(s.FragmentName)
		return
	case gqlast.KindInlineFragment:
		b.WriteString("... on ")
		b.WriteString(s.TypeCondition)
		b.WriteString(" ")
		printSelectionSet(b, s.Selections, depth)
		return
	}

	if s.Alias != "" {
		b.WriteString(s.Alias)
		b.WriteString(": ")
	}
	b.WriteString(s.Name)
	if len(s.Arguments) > 0 {
		b.WriteString("(")
		for i, a := range s.Arguments {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(a.Name)
			b.WriteString(": ")
			b.WriteString(printValue(a.Value))
		}
		b.WriteString(")")
	}
	if len(s.Selections) > 0 {
		b.WriteString(" ")
		printSelectionSet(b, s.Selections, depth+1)
	}
}

func printValue(v any) string {
	switch val := v.(type) {
	case nil:
		return "null"
	case gqlast.VariableRef:
		return "$" + val.Name
	case string:
		return strconv.Quote(val)
	case bool:
		return fmt.Sprintf("%t", val)
	case int:
		return strconv.Itoa(val)
	case float64:
		if val == float64(int64(val)) {
			return strconv.FormatInt(int64(val), 10)
		}
		return strconv.FormatFloat(val, 'g', -1, 64)
	case []any:
		parts := make([]string, 0, len(val))
		for _, item := range val {
			parts = append(parts, printValue(item))
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case map[string]any:
		parts := make([]string, 0, len(val))
		for k, item := range val {
			parts = append(parts, fmt.Sprintf("%s: %s", k, printValue(item)))
		}
		return "{" + strings.Join(parts, ", ") + "}"
	default:
		return fmt.Sprintf("%v", val)
	}
}
