package graphcache_test

import (
	"testing"

	"github.com/shashiranjanraj/graphcache"
	"github.com/shashiranjanraj/graphcache/internal/mutation"
	"github.com/shashiranjanraj/graphcache/internal/store"
	"github.com/shashiranjanraj/graphcache/pkg/testkit"
	"github.com/shashiranjanraj/graphcache/reduxstore"
	"github.com/shashiranjanraj/graphcache/schema"
)

var _ testkit.CacheBuilder = buildScenarioCache

type stubSchema struct{}

func (stubSchema) TypeInfo(name string) (schema.TypeInfo, bool) { return schema.TypeInfo{Name: name}, true }
func (stubSchema) FieldReturnType(parentType, fieldName, typename string) (schema.TypeInfo, error) {
	switch fieldName {
	case "user":
		return schema.TypeInfo{Name: "User"}, nil
	case "messages":
		return schema.TypeInfo{Name: "Message"}, nil
	}
	return schema.TypeInfo{}, nil
}

// foldHandler folds whatever the server returns straight into the
// registered caller's cache, the simplest Handler a scenario fixture
// needs to exercise the authoritative pass end to end.
type foldHandler struct{}

func (foldHandler) Optimistic(map[string]any, any, mutation.TypeLookup) mutation.Outcome {
	return mutation.Outcome{Kind: mutation.Noop}
}

func (foldHandler) Authoritative(serverData, _ any, _ mutation.TypeLookup) mutation.Outcome {
	data, ok := serverData.(map[string]any)
	if !ok {
		return mutation.Outcome{Kind: mutation.Noop}
	}
	return mutation.Outcome{Kind: mutation.Replace, Data: data}
}

func (foldHandler) GetType() string { return "User" }

// buildScenarioCache is the testkit.CacheBuilder for this package's
// fixtures: it seeds the store with the scenario's entities, then wires
// a foldHandler for "renameUser" under caller "widget1" so a mutate
// scenario always has somewhere to fold its authoritative result.
func buildScenarioCache(transport *testkit.FakeTransport, seed []store.Entity) (*graphcache.Cache, error) {
	st := reduxstore.New()
	if len(seed) > 0 {
		entities := store.EntityTable{}
		for _, e := range seed {
			if entities[e.Ref.Type] == nil {
				entities[e.Ref.Type] = map[string]map[string]any{}
			}
			entities[e.Ref.Type][e.Ref.ID] = e.Fields
		}
		st.Dispatch(store.InsertQuery{Response: store.NormalizedResponse{Entities: entities}})
	}

	c, err := graphcache.New(graphcache.Config{
		Store:         st,
		Schema:        stubSchema{},
		Transport:     transport,
		QueryTypeName: "Query",
	})
	if err != nil {
		return nil, err
	}
	c.RegisterMutationHandler("renameUser", "widget1", foldHandler{})
	return c, nil
}

func TestScenarios(t *testing.T) {
	testkit.RunDir(t, buildScenarioCache, "testdata")
}
