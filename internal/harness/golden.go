package harness

import (
	"fmt"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
)

// FormatTrace renders a scenario trace as stable text, one step per line:
//
//	scenario: people
//	1 create-database ok ""
//	2 transact ok {:tempids {"alice" 3}, :tx-id 536870914}
//	3 query error QUERY
func FormatTrace(scenarioName string, trace []TraceEvent) []byte {
	var buf strings.Builder
	fmt.Fprintf(&buf, "scenario: %s\n", scenarioName)
	for _, event := range trace {
		buf.WriteString(formatEvent(event))
		buf.WriteByte('\n')
	}
	return []byte(buf.String())
}

func formatEvent(e TraceEvent) string {
	if e.Status == StatusError {
		return fmt.Sprintf("%d %s error %s", e.Seq, e.Op, e.Code)
	}
	return fmt.Sprintf("%d %s ok %s", e.Seq, e.Op, e.Output)
}

// RunWithGolden executes a scenario and compares the trace against a golden file.
// The golden file is stored in testdata/scenarios/golden/{scenario.Name}.golden,
// next to the scenario files, where `factdb test` also looks for it.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns error if scenario execution fails.
// Test failure (via goldie) occurs if trace doesn't match golden file.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	AssertGolden(t, scenario.Name, result)
	return result, nil
}

// AssertGolden compares the given result's trace against a golden file
// without re-running the scenario.
func AssertGolden(t *testing.T, scenarioName string, result *Result) {
	t.Helper()

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/scenarios/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, FormatTrace(scenarioName, result.Trace))
}
