package normalize

import (
	"github.com/shashiranjanraj/graphcache/internal/gqlast"
	"github.com/shashiranjanraj/graphcache/internal/store"
)

// Output is what one Normalize call produces: every entity discovered
// anywhere in the walk, plus the result skeleton for the walked
// selection set (references in leaf position, exactly §3's "result"
// shape for one caller).
type Output struct {
	Entities store.EntityTable
	Result   any
}

// Normalize walks data (a decoded JSON object, as returned by a
// transport) guided by selections and parentType, producing {entities,
// result}. parentType is the schema type the selections are fields of
// (e.g. the root Query type, or an object type reached by a prior
// field).
func Normalize(ctx *ExecContext, data map[string]any, selections []gqlast.Selection, parentType string) Output {
	entities := store.EntityTable{}
	result := normalizeObject(ctx, data, selections, parentType, entities)
	return Output{Entities: entities, Result: result}
}

func normalizeObject(ctx *ExecContext, data map[string]any, selections []gqlast.Selection, parentType string, entities store.EntityTable) map[string]any {
	if data == nil {
		return nil
	}
	typename, _ := data["__typename"].(string)
	flat := FlattenSelections(ctx.Document, selections, typename)

	out := make(map[string]any, len(flat))
	for _, field := range flat {
		args := ctx.ResolvedArgs(field.Arguments)
		key := ctx.ArgBucketKey(field.ResponseKey(), args)
		ctx.OriginalArgs[field.ResponseKey()] = field.Arguments

		raw, present := data[field.ResponseKey()]
		if !present {
			continue
		}

		returnType, err := ctx.Schema.FieldReturnType(parentType, field.Name, typename)
		var fieldTypeName string
		if err == nil {
			fieldTypeName = returnType.Name
		}

		out[key] = normalizeValue(ctx, raw, field.Selections, fieldTypeName, entities)
	}
	return out
}

// normalizeValue dispatches on the shape of raw: scalar, list, or
// object (entity or inline). This is the walk's single tagged-variant
// switch over runtime data shape, mirrored in denormalize.go's switch
// over stored value shape.
func normalizeValue(ctx *ExecContext, raw any, selections []gqlast.Selection, fieldType string, entities store.EntityTable) any {
	switch v := raw.(type) {
	case nil:
		return nil
	case []any:
		out := make([]any, 0, len(v))
		for _, item := range v {
			out = append(out, normalizeValue(ctx, item, selections, fieldType, entities))
		}
		return out
	case map[string]any:
		if len(selections) == 0 {
			// Scalar-shaped leaf with no sub-selection (e.g. a JSON scalar).
			return v
		}
		idValue, hasID := scalarString(v[ctx.IDFieldName])
		if !hasID {
			// Inline (identity-less) object: embed directly, still
			// recursing so any nested entities within it are still
			// extracted and replaced with refs.
			return normalizeObject(ctx, v, selections, fieldType, entities)
		}

		ref := store.Ref{Type: entityTypeName(v, fieldType), ID: idValue}
		fields := normalizeObject(ctx, v, selections, ref.Type, entities)
		mergeEntity(entities, ref, fields)
		return ref
	default:
		return v
	}
}

func entityTypeName(data map[string]any, fallback string) string {
	if tn, ok := data["__typename"].(string); ok && tn != "" {
		return tn
	}
	return fallback
}

func scalarString(v any) (string, bool) {
	switch t := v.(type) {
	case nil:
		return "", false
	case string:
		return t, true
	case float64:
		return trimFloat(t), true
	default:
		return "", false
	}
}

func mergeEntity(entities store.EntityTable, ref store.Ref, fields map[string]any) {
	if entities[ref.Type] == nil {
		entities[ref.Type] = map[string]map[string]any{}
	}
	existing := entities[ref.Type][ref.ID]
	if existing == nil {
		entities[ref.Type][ref.ID] = fields
		return
	}
	for k, v := range fields {
		existing[k] = v
	}
}
