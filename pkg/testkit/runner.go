// Package testkit — runner.go
//
// Run() executes a single scenario against a freshly built Cache.
// RunDir() discovers all *.json files in a directory and runs them as
// subtests.
package testkit

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/shashiranjanraj/graphcache"
	"github.com/shashiranjanraj/graphcache/internal/store"
	"github.com/shashiranjanraj/graphcache/internal/subscription"
)

// CacheBuilder constructs the Cache under test, wiring the scenario's
// FakeTransport and seed entities however the caller's own Config needs
// (schema, mutation handlers, pagination words, …).
type CacheBuilder func(transport *FakeTransport, seed []store.Entity) (*graphcache.Cache, error)

// Run executes a single scenario from a JSON file against a Cache built
// by build.
func Run(t *testing.T, build CacheBuilder, scenarioPath string) {
	t.Helper()

	s, err := LoadScenario(scenarioPath)
	if err != nil {
		t.Fatalf("testkit: load scenario %q: %v", scenarioPath, err)
	}

	t.Run(s.Name, func(t *testing.T) {
		runScenario(t, build, s)
	})
}

// RunDir discovers every *.json file in dir and runs each as a t.Run
// subtest.
func RunDir(t *testing.T, build CacheBuilder, dir string) {
	t.Helper()

	pattern := filepath.Join(dir, "*.json")
	entries, err := filepath.Glob(pattern)
	if err != nil || len(entries) == 0 {
		t.Fatalf("testkit: no scenario files found in %q", dir)
	}

	for _, path := range entries {
		path := path
		s, err := LoadScenario(path)
		if err != nil {
			t.Errorf("testkit: load %q: %v", path, err)
			continue
		}
		t.Run(s.Name, func(t *testing.T) {
			runScenario(t, build, s)
		})
	}
}

func runScenario(t *testing.T, build CacheBuilder, s *Scenario) {
	t.Helper()

	seed := make([]store.Entity, 0, len(s.Seed))
	for _, se := range s.Seed {
		seed = append(seed, store.Entity{
			Ref:    store.Ref{Type: se.Type, ID: se.ID},
			Fields: se.Fields,
		})
	}

	transport := NewFakeTransport(s.TransportSteps)

	cache, err := build(transport, seed)
	if err != nil {
		t.Fatalf("[%s] build cache: %v", s.Name, err)
	}

	ctx := context.Background()

	var (
		result json.RawMessage
		opErr  error
	)

	switch s.Operation {
	case "query":
		result, opErr = cache.Query(ctx, s.CallerID, s.Document, s.Variables)
	case "mutate":
		result, opErr = cache.Mutate(ctx, s.MutationName, s.Document, s.Variables)
	case "subscribe":
		opErr = applySubscriptionPatch(cache, s.SubscriptionPatch)
	}

	if s.ExpectErrorContains != "" {
		AssertErrorContains(t, s, opErr, s.ExpectErrorContains)
	} else if opErr != nil {
		t.Fatalf("[%s] operation failed: %v", s.Name, opErr)
	}

	if p := s.ExpectedResultPath(); p != "" && opErr == nil {
		expected, err := os.ReadFile(p)
		if err != nil {
			t.Errorf("[%s] read expected result file %q: %v", s.Name, p, err)
		} else {
			AssertJSONEqual(t, s, expected, result)
		}
	}

	AssertTransportCalled(t, s, transport)
}

func applySubscriptionPatch(cache *graphcache.Cache, p *PatchStep) error {
	patch := subscription.Patch{
		Kind: subscription.Kind(p.Kind),
		Path: p.Path,
		Data: p.Data,
	}
	if p.EntityRef != nil {
		patch.Ref = store.Ref{Type: p.EntityRef.Type, ID: p.EntityRef.ID}
	}
	return cache.ApplyPatch(context.Background(), patch)
}
