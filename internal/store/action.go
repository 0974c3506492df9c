package store

// Action is the closed set of three things the reducer understands.
// Keeping it a sealed interface (an unexported marker method) instead of
// a generic string-tagged action is the Go stand-in for the spec's
// namespaced action-type literals: the compiler, not a string constant,
// keeps the set closed.
type Action interface {
	action()
}

// NormalizedResponse is what the normalizer (C2) hands the reducer: the
// entities it discovered plus the per-caller result skeleton(s) those
// entities were found while normalizing.
type NormalizedResponse struct {
	Entities EntityTable
	Result   map[CallerKey]any
}

// InsertQuery merges a query response into the store. Scalars are
// last-write-wins; arrays are replaced wholesale (never element-merged),
// matching the normalizer's own "arrays map recursively, as a unit"
// behavior.
type InsertQuery struct {
	Response  NormalizedResponse
	Variables map[CallerKey]map[string]any
}

func (InsertQuery) action() {}

// InsertMutation merges a mutation response the same way InsertQuery
// does, except the merge runs in mutation mode: arrays in the incoming
// response are authoritative replacements even for list fields a prior
// query populated. Scalars and structure merge identically in both
// modes; only the array-replace policy's justification differs.
type InsertMutation struct {
	Response  NormalizedResponse
	Variables map[CallerKey]map[string]any
}

func (InsertMutation) action() {}

// SetError records the last transport error without touching any data.
// A nil Err clears the error.
type SetError struct {
	Err error
}

func (SetError) action() {}

// Reduce is the store's one pure transition function. It never mutates
// its state argument; every returned State is independent of the input.
func Reduce(state State, a Action) State {
	switch act := a.(type) {
	case InsertQuery:
		return applyInsert(state, act.Response, act.Variables, false)
	case InsertMutation:
		return applyInsert(state, act.Response, act.Variables, true)
	case SetError:
		next := shallowCopyState(state)
		next.Error = act.Err
		return next
	default:
		return state
	}
}

func applyInsert(state State, resp NormalizedResponse, vars map[CallerKey]map[string]any, mutationMode bool) State {
	next := shallowCopyState(state)
	next.Entities = mergeEntityTables(state.Entities, resp.Entities, mutationMode)
	for caller, result := range resp.Result {
		next.Result[caller] = result
	}
	for caller, v := range vars {
		next.Variables[caller] = v
	}
	next.Error = nil
	return next
}

func shallowCopyState(state State) State {
	entities := state.Entities
	result := make(map[CallerKey]any, len(state.Result))
	for k, v := range state.Result {
		result[k] = v
	}
	variables := make(map[CallerKey]map[string]any, len(state.Variables))
	for k, v := range state.Variables {
		variables[k] = v
	}
	return State{
		Entities:  entities,
		Result:    result,
		Variables: variables,
		Error:     state.Error,
	}
}
