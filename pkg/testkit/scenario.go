// Package testkit provides a JSON-scenario-driven test harness for a
// graphcache.Cache.
//
// Each scenario is a JSON file describing:
//   - A seed store state (entities to pre-populate, as if normalized
//     already)
//   - One operation to run against the cache (query, mutation, or
//     subscription patch)
//   - The expected denormalized result
//   - The canned transport responses the scenario's FakeTransport should
//     hand back, plus which of them must actually be called
//
// Scenario files live next to their *_test.go files:
//
//	testdata/
//	  fetch_user.json
//
// Example _test.go:
//
//	func TestFetchUser(t *testing.T) {
//	    testkit.RunDir(t, buildCache, "testdata")
//	}
package testkit

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Scenario describes a single cache test case loaded from a JSON file.
type Scenario struct {
	Name        string `json:"name"`
	Description string `json:"description"`

	// Seed pre-populates the store before the operation runs, as if these
	// entities had already been normalized from an earlier query.
	Seed []SeedEntity `json:"seed"`

	// Operation is "query", "mutate", or "subscribe".
	Operation string `json:"operation"`

	CallerID     string            `json:"callerId"`
	MutationName string            `json:"mutationName"`
	Document     string            `json:"document"`
	Variables    map[string]any    `json:"variables"`
	Headers      map[string]string `json:"headers"`

	// SubscriptionPatch is only read when Operation == "subscribe".
	SubscriptionPatch *PatchStep `json:"subscriptionPatch"`

	// ExpectedResultFile, relative to the scenario's directory, holds the
	// expected denormalized JSON result. Optional — omit to skip the
	// assertion (useful for scenarios that only check transport calls or
	// store side effects).
	ExpectedResultFile string `json:"expectedResultFile"`

	// ExpectErrorContains, when set, asserts the operation returned an
	// error whose message contains this substring instead of a result.
	ExpectErrorContains string `json:"expectErrorContains"`

	// TransportSteps are the canned responses the scenario's transport
	// hands back, matched in order against the query text the cache
	// actually issues.
	TransportSteps []TransportStep `json:"transportSteps"`

	dir string
}

// SeedEntity pre-populates the normalized store with one entity.
type SeedEntity struct {
	Type   string         `json:"type"`
	ID     string         `json:"id"`
	Fields map[string]any `json:"fields"`
}

// PatchStep describes an inbound subscription patch to apply.
type PatchStep struct {
	Kind      string         `json:"kind"` // "add" | "update" | "remove"
	Path      string         `json:"path"`
	Data      map[string]any `json:"data"`
	EntityRef *EntityRefJSON `json:"entityRef"`
}

// EntityRefJSON is the JSON shape of a store.Ref used in fixtures.
type EntityRefJSON struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// TransportStep is one canned response a FakeTransport returns for a
// query matching MatchSubstr (or any query, when MatchSubstr is empty).
type TransportStep struct {
	MatchSubstr string          `json:"matchSubstr"`
	ReturnData  json.RawMessage `json:"returnData"`
	ReturnError string          `json:"returnError"`
	// MustBeCalled fails the scenario if this step was never matched.
	MustBeCalled bool `json:"mustBeCalled"`
}

// LoadScenario reads and validates a scenario from a JSON file.
func LoadScenario(path string) (*Scenario, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("testkit: resolve path %q: %w", path, err)
	}

	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("testkit: read %q: %w", abs, err)
	}

	var s Scenario
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("testkit: parse %q: %w", abs, err)
	}

	if err := s.validate(); err != nil {
		return nil, fmt.Errorf("testkit: invalid scenario %q: %w", abs, err)
	}

	s.dir = filepath.Dir(abs)
	return &s, nil
}

func (s *Scenario) validate() error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	switch s.Operation {
	case "query", "mutate":
		if s.Document == "" {
			return fmt.Errorf("document is required for operation %q", s.Operation)
		}
	case "subscribe":
		if s.SubscriptionPatch == nil {
			return fmt.Errorf("subscriptionPatch is required for operation %q", s.Operation)
		}
	default:
		return fmt.Errorf("operation must be one of query|mutate|subscribe, got %q", s.Operation)
	}
	return nil
}

// ExpectedResultPath resolves ExpectedResultFile relative to the
// scenario's own directory. Returns "" when unset.
func (s *Scenario) ExpectedResultPath() string {
	if s.ExpectedResultFile == "" {
		return ""
	}
	if filepath.IsAbs(s.ExpectedResultFile) {
		return s.ExpectedResultFile
	}
	return filepath.Join(s.dir, s.ExpectedResultFile)
}

// LoadAllFromDir loads every *.json file in dir as a Scenario.
func LoadAllFromDir(dir string) ([]*Scenario, []error) {
	entries, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil || len(entries) == 0 {
		return nil, []error{fmt.Errorf("testkit: no scenario files found in %q", dir)}
	}

	var scenarios []*Scenario
	var errs []error
	for _, path := range entries {
		s, err := LoadScenario(path)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		scenarios = append(scenarios, s)
	}
	return scenarios, errs
}

// DumpScenario prints a human-readable summary, useful while authoring
// fixtures.
func DumpScenario(s *Scenario) {
	fmt.Printf("Scenario: %s\n", s.Name)
	fmt.Printf("  operation: %s  caller: %s  mutation: %s\n", s.Operation, s.CallerID, s.MutationName)
	fmt.Printf("  seed entities: %d  transport steps: %d\n", len(s.Seed), len(s.TransportSteps))
}
