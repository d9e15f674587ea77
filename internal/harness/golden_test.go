package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/factdb/internal/ffi"
	"github.com/roach88/factdb/internal/ir"
)

func TestFormatTrace(t *testing.T) {
	trace := []TraceEvent{
		{Seq: 1, Op: ffi.OpCreateDatabase, Status: StatusOK, Output: `""`},
		{Seq: 2, Op: ffi.OpQuery, Status: StatusError, Code: ir.CodeQuery},
	}

	want := "scenario: demo\n" +
		"1 create-database ok \"\"\n" +
		"2 query error QUERY\n"
	assert.Equal(t, want, string(FormatTrace("demo", trace)))
	assert.Equal(t, "scenario: empty\n", string(FormatTrace("empty", nil)))
}

func TestFormatTrace_Deterministic(t *testing.T) {
	scenario, err := LoadScenario(scenarioPath("formats"))
	require.NoError(t, err)

	first, err := Run(scenario)
	require.NoError(t, err)
	second, err := Run(scenario)
	require.NoError(t, err)

	assert.Equal(t, FormatTrace(scenario.Name, first.Trace), FormatTrace(scenario.Name, second.Trace))
}

func TestAssertGolden_FromResult(t *testing.T) {
	scenario, err := LoadScenario(scenarioPath("people"))
	require.NoError(t, err)

	result, err := Run(scenario)
	require.NoError(t, err)

	AssertGolden(t, "people", result)
}
