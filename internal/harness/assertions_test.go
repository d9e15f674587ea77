package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/factdb/internal/ffi"
	"github.com/roach88/factdb/internal/ir"
)

func sampleTrace() []TraceEvent {
	result := NewResult()
	result.AddOK(ffi.OpCreateDatabase, `""`)
	result.AddOK(ffi.OpTransact, `{:tempids {"a" 2}, :tx-id 536870913}`)
	result.AddFailure(ffi.OpTransact, ir.CodeSchemaViolation)
	result.AddOK(ffi.OpQuery, `#{["Ann"]}`)
	return result.Trace
}

func TestAssertTraceContains(t *testing.T) {
	tests := []struct {
		name     string
		op       ffi.Op
		contains string
		pass     bool
	}{
		{"found", ffi.OpQuery, "Ann", true},
		{"empty contains matches any success", ffi.OpCreateDatabase, "", true},
		{"wrong output", ffi.OpQuery, "Bob", false},
		{"op never ran", ffi.OpPull, "", false},
		{"failed steps never match", ffi.OpTransact, "SCHEMA_VIOLATION", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := assertTraceContains(sampleTrace(), &Assertion{Type: AssertTraceContains, Op: tt.op, Contains: tt.contains})
			if tt.pass {
				assert.NoError(t, err)
				return
			}
			var ae *AssertionError
			require.ErrorAs(t, err, &ae)
			assert.Equal(t, AssertTraceContains, ae.Type)
		})
	}
}

func TestAssertTraceCount(t *testing.T) {
	tests := []struct {
		name  string
		op    ffi.Op
		count int
		pass  bool
	}{
		{"exact counts failures too", ffi.OpTransact, 2, true},
		{"too few", ffi.OpTransact, 3, false},
		{"too many", ffi.OpTransact, 1, false},
		{"zero", ffi.OpPull, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := assertTraceCount(sampleTrace(), &Assertion{Type: AssertTraceCount, Op: tt.op, Count: tt.count})
			if tt.pass {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestAssertQueryResult(t *testing.T) {
	base := Scenario{
		Name:        "state",
		Description: "Final state",
		Config:      testConfig,
		Steps: []Step{
			{Op: ffi.OpCreateDatabase},
			{Op: ffi.OpTransact, Data: `[{:name "Ann"} {:name "Ben"}]`},
		},
	}

	tests := []struct {
		name      string
		assertion Assertion
		pass      bool
	}{
		{"match", Assertion{Query: `[:find ?n :where [_ :name ?n]]`, Expect: `#{["Ben"] ["Ann"]}`}, true},
		{"scalar", Assertion{Query: `[:find (count ?e) . :where [?e :name]]`, Expect: `2`}, true},
		{"mismatch", Assertion{Query: `[:find ?n :where [_ :name ?n]]`, Expect: `#{["Ann"]}`}, false},
		{"query fails", Assertion{Query: `[:find ?n :where [_ :name ?n]]`, Inputs: []InputSpec{{Format: "asof"}}, Expect: `#{}`}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			scenario := base
			tt.assertion.Type = AssertQueryResult
			scenario.Assertions = []Assertion{tt.assertion}

			result, err := Run(&scenario)
			require.NoError(t, err)
			assert.Equal(t, tt.pass, result.Pass, "errors=%v", result.Errors)
			if !tt.pass {
				require.Len(t, result.Errors, 1)
				assert.Contains(t, result.Errors[0], "assertions[0]: Assertion failed: query_result")
			}
		})
	}
}

func TestAssertDatabaseExists(t *testing.T) {
	scenario := &Scenario{
		Name:        "exists",
		Description: "Database existence",
		Config:      testConfig,
		Steps:       []Step{{Op: ffi.OpCreateDatabase}, {Op: ffi.OpDeleteDatabase}},
		Assertions: []Assertion{
			{Type: AssertDatabaseExists, Expect: "false"},
			{Type: AssertDatabaseExists, Expect: "true"},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "assertions[1]")
	assert.Contains(t, result.Errors[0], "database-exists false")
}

func TestAssertionError_ErrorFormat(t *testing.T) {
	err := &AssertionError{
		Type:     AssertTraceCount,
		Expected: "transact executed 3 times",
		Actual:   "executed 2 times",
		Trace:    sampleTrace()[:3],
	}

	want := `Assertion failed: trace_count
  Expected: transact executed 3 times
  Actual: executed 2 times

Full trace:
  1 create-database ok ""
  2 transact ok {:tempids {"a" 2}, :tx-id 536870913}
  3 transact error SCHEMA_VIOLATION
`
	assert.Equal(t, want, err.Error())
}
