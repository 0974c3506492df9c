package normalize

import (
	"github.com/shashiranjanraj/graphcache/internal/gqlast"
	"github.com/shashiranjanraj/graphcache/internal/store"
)

// DenormalizeResult is the inverse walk's output: the reconstructed
// response shape plus whether every selection in it was satisfiable
// from the store.
type DenormalizeResult struct {
	Data       any
	IsComplete bool
	// Refs is every store.Ref the walk resolved through, in encounter
	// order — the set the coordinator needs to register as this
	// caller's dependencies even before the server has responded.
	Refs []store.Ref
}

// Denormalize reconstructs a response for selections against snapshot,
// starting from root — the caller's stored result skeleton, walked as an
// object of type parentType (typically the schema's query type name) —
// so the root is walked with the same code as any nested entity.
func Denormalize(ctx *ExecContext, snapshot store.State, selections []gqlast.Selection, parentType string, root map[string]any) DenormalizeResult {
	complete := true
	var refs []store.Ref
	data := denormalizeObject(ctx, snapshot, selections, parentType, root, &complete, &refs)
	return DenormalizeResult{Data: data, IsComplete: complete, Refs: refs}
}

// DenormalizeRef resolves ref from the snapshot and denormalizes it
// against selections, used when a result skeleton's leaf is itself a
// store.Ref (the common case for any non-root entity).
func DenormalizeRef(ctx *ExecContext, snapshot store.State, selections []gqlast.Selection, ref store.Ref) DenormalizeResult {
	fields, ok := snapshot.GetEntity(ref)
	if !ok {
		return DenormalizeResult{Data: nil, IsComplete: false}
	}
	complete := true
	refs := []store.Ref{ref}
	data := denormalizeObject(ctx, snapshot, selections, ref.Type, fields, &complete, &refs)
	return DenormalizeResult{Data: data, IsComplete: complete, Refs: refs}
}

func denormalizeObject(ctx *ExecContext, snapshot store.State, selections []gqlast.Selection, parentType string, fields map[string]any, complete *bool, refs *[]store.Ref) map[string]any {
	if fields == nil {
		*complete = false
		return nil
	}

	typename, _ := fields["__typename"].(string)
	flat := FlattenSelections(ctx.Document, selections, typename)

	out := make(map[string]any, len(flat))
	for _, field := range flat {
		args := ctx.ResolvedArgs(field.Arguments)
		key := ctx.ArgBucketKey(field.ResponseKey(), args)

		raw, present := fields[key]
		if !present {
			*complete = false
			continue
		}

		out[field.ResponseKey()] = denormalizeValue(ctx, snapshot, raw, field.Selections, complete, refs)
	}
	return out
}

func denormalizeValue(ctx *ExecContext, snapshot store.State, raw any, selections []gqlast.Selection, complete *bool, refs *[]store.Ref) any {
	switch v := raw.(type) {
	case nil:
		return nil
	case store.Ref:
		fields, ok := snapshot.GetEntity(v)
		if !ok {
			*complete = false
			return nil
		}
		*refs = append(*refs, v)
		return denormalizeObject(ctx, snapshot, selections, v.Type, fields, complete, refs)
	case []any:
		out := make([]any, 0, len(v))
		for _, item := range v {
			out = append(out, denormalizeValue(ctx, snapshot, item, selections, complete, refs))
		}
		return out
	case map[string]any:
		if len(selections) == 0 {
			return v
		}
		return denormalizeObject(ctx, snapshot, selections, "", v, complete, refs)
	default:
		return v
	}
}

// CollectRefs walks a result skeleton (as stored in State.Result or
// produced by Normalize) and returns every store.Ref it reaches. The
// coordinator takes a caller's dependencies from DenormalizeResult.Refs
// instead; CollectRefs is called only from tests.
func CollectRefs(data any) []store.Ref {
	var out []store.Ref
	collectRefs(data, &out)
	return out
}

func collectRefs(data any, out *[]store.Ref) {
	switch v := data.(type) {
	case store.Ref:
		*out = append(*out, v)
	case map[string]any:
		for _, val := range v {
			collectRefs(val, out)
		}
	case []any:
		for _, item := range v {
			collectRefs(item, out)
		}
	}
}
