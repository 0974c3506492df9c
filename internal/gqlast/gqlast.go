// Package gqlast converts a graphql-go parsed document into a small,
// self-contained AST that the rest of this module walks. Concentrating
// every touch of github.com/graphql-go/graphql/language/ast here means
// the tagged-variant walker used by internal/normalize and internal/plan
// never imports graphql-go directly — it only ever sees the Selection
// variants below.
package gqlast

import (
	"fmt"
	"strconv"

	"github.com/graphql-go/graphql/language/ast"
	"github.com/graphql-go/graphql/language/parser"
)

// SelectionKind tags the one union type every walker in this module
// switches on, replacing the ad hoc type assertions graphql-go's own
// tree requires at every call site.
type SelectionKind int

const (
	// KindField is a plain or aliased field selection, scalar or object.
	KindField SelectionKind = iota
	// KindInlineFragment is `... on Type { ... }`.
	KindInlineFragment
	// KindFragmentSpread is `...FragmentName`.
	KindFragmentSpread
)

// Selection is one entry in a SelectionSet. Exactly the fields relevant
// to its Kind are populated.
type Selection struct {
	Kind SelectionKind

	// KindField
	Alias        string
	Name         string
	Arguments    []Argument
	Selections   []Selection // empty for scalar leaves

	// KindInlineFragment
	TypeCondition string

	// KindFragmentSpread
	FragmentName string
}

// ResponseKey is the key this selection occupies in a response/result
// map: the alias if present, else the field name.
func (s Selection) ResponseKey() string {
	if s.Alias != "" {
		return s.Alias
	}
	return s.Name
}

// Argument is one field argument; Value is either a literal Go value
// (string/float64/bool/nil/[]any/map[string]any) or a VariableRef.
type Argument struct {
	Name  string
	Value any
}

// VariableRef marks an argument value that reads from the operation's
// variables bag rather than being a literal.
type VariableRef struct {
	Name string
}

// VariableDefinition is one operation-level `$name: Type = default`.
type VariableDefinition struct {
	Name         string
	TypeName     string
	DefaultValue any
}

// Document is one parsed operation plus the fragment definitions it may
// reference, flattened out of graphql-go's ast.Document.
type Document struct {
	OperationName string // "query" | "mutation" | "subscription"
	Name          string // operation name, may be empty
	Variables     []VariableDefinition
	Selections    []Selection
	Fragments     map[string]FragmentDefinition
}

// FragmentDefinition is a named `fragment F on Type { ... }`.
type FragmentDefinition struct {
	Name          string
	TypeCondition string
	Selections    []Selection
}

// Parse parses a GraphQL document string and flattens it into a
// Document. It requires exactly one operation definition; documents
// with more than one (rare for this module's callers, which issue one
// query/mutation/subscription string at a time) return an error.
func Parse(query string) (*Document, error) {
	astDoc, err := parser.Parse(parser.ParseParams{Source: query})
	if err != nil {
		return nil, fmt.Errorf("gqlast: parse: %w", err)
	}

	doc := &Document{Fragments: map[string]FragmentDefinition{}}
	var op *ast.OperationDefinition

	for _, def := range astDoc.Definitions {
		switch d := def.(type) {
		case *ast.OperationDefinition:
			if op != nil {
				return nil, fmt.Errorf("gqlast: document has more than one operation")
			}
			op = d
		case *ast.FragmentDefinition:
			frag := FragmentDefinition{
				Name:          nameOf(d.Name),
				TypeCondition: namedTypeName(d.TypeCondition),
				Selections:    convertSelectionSet(d.GetSelectionSet()),
			}
			doc.Fragments[frag.Name] = frag
		}
	}

	if op == nil {
		return nil, fmt.Errorf("gqlast: document has no operation definition")
	}

	doc.OperationName = op.Operation
	doc.Name = nameOf(op.Name)
	doc.Selections = convertSelectionSet(op.GetSelectionSet())
	for _, vd := range op.VariableDefinitions {
		doc.Variables = append(doc.Variables, VariableDefinition{
			Name:         nameOf(vd.Variable.Name),
			TypeName:     typeName(vd.Type),
			DefaultValue: convertValue(vd.DefaultValue),
		})
	}

	return doc, nil
}

func convertSelectionSet(set *ast.SelectionSet) []Selection {
	if set == nil {
		return nil
	}
	out := make([]Selection, 0, len(set.Selections))
	for _, sel := range set.Selections {
		switch s := sel.(type) {
		case *ast.Field:
			out = append(out, Selection{
				Kind:       KindField,
				Alias:      nameOf(s.Alias),
				Name:       nameOf(s.Name),
				Arguments:  convertArguments(s.Arguments),
				Selections: convertSelectionSet(s.SelectionSet),
			})
		case *ast.InlineFragment:
			out = append(out, Selection{
				Kind:          KindInlineFragment,
				TypeCondition: namedTypeName(s.TypeCondition),
				Selections:    convertSelectionSet(s.SelectionSet),
			})
		case *ast.FragmentSpread:
			out = append(out, Selection{
				Kind:         KindFragmentSpread,
				FragmentName: nameOf(s.Name),
			})
		}
	}
	return out
}

func convertArguments(args []*ast.Argument) []Argument {
	out := make([]Argument, 0, len(args))
	for _, a := range args {
		out = append(out, Argument{Name: nameOf(a.Name), Value: convertValue(a.Value)})
	}
	return out
}

func convertValue(v ast.Value) any {
	if v == nil {
		return nil
	}
	switch val := v.(type) {
	case *ast.Variable:
		return VariableRef{Name: nameOf(val.Name)}
	case *ast.IntValue:
		if i, err := strconv.Atoi(val.Value); err == nil {
			return i
		}
		return val.Value
	case *ast.FloatValue:
		if f, err := strconv.ParseFloat(val.Value, 64); err == nil {
			return f
		}
		return val.Value
	case *ast.StringValue:
		return val.Value
	case *ast.BooleanValue:
		return val.Value
	case *ast.EnumValue:
		if val.Value == "null" {
			return nil
		}
		return val.Value
	case *ast.ListValue:
		list := make([]any, 0, len(val.Values))
		for _, item := range val.Values {
			list = append(list, convertValue(item))
		}
		return list
	case *ast.ObjectValue:
		obj := make(map[string]any, len(val.Fields))
		for _, f := range val.Fields {
			obj[nameOf(f.Name)] = convertValue(f.Value)
		}
		return obj
	default:
		return nil
	}
}

func nameOf(n *ast.Name) string {
	if n == nil {
		return ""
	}
	return n.Value
}

func namedTypeName(n *ast.Named) string {
	if n == nil {
		return ""
	}
	return nameOf(n.Name)
}

func typeName(t ast.Type) string {
	switch tt := t.(type) {
	case *ast.Named:
		return nameOf(tt.Name)
	case *ast.NonNull:
		return typeName(tt.Type) + "!"
	case *ast.List:
		return "[" + typeName(tt.Type) + "]"
	default:
		return ""
	}
}
