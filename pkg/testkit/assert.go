package testkit

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// AssertJSONEqual deep-compares actual response bytes against the expected
// file contents using testify's assert.Equal after normalising both
// through JSON unmarshal (so key order and whitespace never matter).
func AssertJSONEqual(t *testing.T, scenario *Scenario, expected, actual []byte) {
	t.Helper()
	if len(expected) == 0 {
		return
	}

	var expVal, actVal interface{}

	require.NoError(t,
		json.Unmarshal(expected, &expVal),
		"[%s] expected result file is not valid JSON", scenario.Name,
	)

	if !assert.NoError(t,
		json.Unmarshal(actual, &actVal),
		"[%s] actual result is not valid JSON\nbody: %s", scenario.Name, string(actual),
	) {
		return
	}

	assert.Equal(t, expVal, actVal, "[%s] result mismatch", scenario.Name)
}

// AssertErrorContains fails unless err is non-nil and its message contains
// substr.
func AssertErrorContains(t *testing.T, scenario *Scenario, err error, substr string) {
	t.Helper()
	if !assert.Error(t, err, "[%s] expected an error containing %q", scenario.Name, substr) {
		return
	}
	assert.True(t, strings.Contains(err.Error(), substr),
		"[%s] error %q does not contain %q", scenario.Name, err.Error(), substr)
}

// AssertTransportCalled fails the test if any MustBeCalled transport step
// was never matched.
func AssertTransportCalled(t *testing.T, scenario *Scenario, ft *FakeTransport) {
	t.Helper()
	for _, err := range ft.AssertAllCalled() {
		assert.NoError(t, err, "[%s]", scenario.Name)
	}
}
