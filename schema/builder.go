// Package schema wraps a *graphql.Schema (github.com/graphql-go/graphql)
// with the lookups the normalizer, planner and mutation engine need:
// field types, list-ness, and which GraphQL type a selection's
// identity-less union/interface resolves to. graphql-go's schema
// doesn't expose possible-types introspection in a form this module
// wants to depend on, so union/interface membership is supplied
// explicitly at Builder construction — a real server already knows
// this statically, so it costs the embedding application nothing to
// pass it in once.
package schema

import (
	"fmt"

	"github.com/graphql-go/graphql"
)

// FieldInfo describes one field of an object type as the normalizer and
// planner need to see it: is it a list, and what's the named type of
// the thing (or list element) it returns.
type FieldInfo struct {
	Name     string
	TypeName string
	IsList   bool
	IsObject bool
}

// TypeInfo is the field map for one object type in the schema.
type TypeInfo struct {
	Name   string
	Fields map[string]FieldInfo
}

// Builder is the schema facade this module's components depend on
// through graphcache.SchemaSource.
type Builder struct {
	schema       *graphql.Schema
	types        map[string]TypeInfo
	unionMembers map[string][]string
}

// NewBuilder walks s's query and mutation root objects (and any object
// types reachable from them) and indexes their fields.
func NewBuilder(s *graphql.Schema) *Builder {
	b := &Builder{
		schema:       s,
		types:        map[string]TypeInfo{},
		unionMembers: map[string][]string{},
	}

	seen := map[string]bool{}
	if q := s.QueryType(); q != nil {
		b.indexObject(q, seen)
	}
	if m := s.MutationType(); m != nil {
		b.indexObject(m, seen)
	}
	return b
}

// RegisterUnion records which concrete object types a union or
// interface name may resolve to, for denormalization of polymorphic
// selections. Returns b for chaining.
func (b *Builder) RegisterUnion(name string, memberTypeNames ...string) *Builder {
	b.unionMembers[name] = memberTypeNames
	return b
}

// TypeInfo returns the indexed field map for a named object type.
func (b *Builder) TypeInfo(name string) (TypeInfo, bool) {
	t, ok := b.types[name]
	return t, ok
}

// MutationTypeName returns the schema's root mutation type name, or ""
// when the schema has none. The mutation engine does not call it.
func (b *Builder) MutationTypeName() string {
	if m := b.schema.MutationType(); m != nil {
		return m.Name()
	}
	return ""
}

// QueryTypeName returns the schema's root query type name.
func (b *Builder) QueryTypeName() string {
	if q := b.schema.QueryType(); q != nil {
		return q.Name()
	}
	return ""
}

// PossibleTypes returns the concrete object type names a union or
// interface name was registered with via RegisterUnion.
func (b *Builder) PossibleTypes(name string) []string {
	return b.unionMembers[name]
}

// FieldReturnType resolves the concrete (post-union/interface)
// TypeInfo a field selection on parentType should denormalize against,
// given the __typename actually stored for that object. For a
// non-polymorphic field, typename is ignored and the field's own
// TypeName is used directly.
func (b *Builder) FieldReturnType(parentType, fieldName, typename string) (TypeInfo, error) {
	parent, ok := b.TypeInfo(parentType)
	if !ok {
		return TypeInfo{}, fmt.Errorf("schema: unknown type %q", parentType)
	}
	field, ok := parent.Fields[fieldName]
	if !ok {
		return TypeInfo{}, fmt.Errorf("schema: type %q has no field %q", parentType, fieldName)
	}

	target := field.TypeName
	if typename != "" {
		if _, isPolymorphic := b.unionMembers[target]; isPolymorphic {
			target = typename
		}
	}

	info, ok := b.TypeInfo(target)
	if !ok {
		// Field returns a scalar or an otherwise unindexed type — callers
		// treat a missing TypeInfo as "this field has no selection set".
		return TypeInfo{Name: target}, nil
	}
	return info, nil
}

func (b *Builder) indexObject(obj *graphql.Object, seen map[string]bool) {
	if obj == nil || seen[obj.Name()] {
		return
	}
	seen[obj.Name()] = true

	fields := TypeInfo{Name: obj.Name(), Fields: map[string]FieldInfo{}}
	for name, fd := range obj.Fields() {
		typeName, isList := unwrapType(fd.Type)
		fields.Fields[name] = FieldInfo{
			Name:     name,
			TypeName: typeName,
			IsList:   isList,
			IsObject: isObjectLike(fd.Type),
		}

		if next, ok := fd.Type.(*graphql.Object); ok {
			b.indexObject(next, seen)
		} else if list, ok := fd.Type.(*graphql.List); ok {
			if nextObj, ok := unwrap(list.OfType).(*graphql.Object); ok {
				b.indexObject(nextObj, seen)
			}
		}
	}
	b.types[obj.Name()] = fields
}

// unwrapType strips NonNull/List wrappers and reports the named type
// underneath plus whether a List wrapper was present anywhere in the
// chain.
func unwrapType(t graphql.Type) (name string, isList bool) {
	cur := t
	for {
		switch v := cur.(type) {
		case *graphql.NonNull:
			cur = v.OfType
		case *graphql.List:
			isList = true
			cur = v.OfType
		default:
			if named, ok := cur.(graphql.Type); ok && named != nil {
				return named.Name(), isList
			}
			return "", isList
		}
	}
}

func unwrap(t graphql.Type) graphql.Type {
	cur := t
	for {
		switch v := cur.(type) {
		case *graphql.NonNull:
			cur = v.OfType
		case *graphql.List:
			cur = v.OfType
		default:
			return cur
		}
	}
}

func isObjectLike(t graphql.Type) bool {
	switch unwrap(t).(type) {
	case *graphql.Object, *graphql.Union, *graphql.Interface:
		return true
	default:
		return false
	}
}
