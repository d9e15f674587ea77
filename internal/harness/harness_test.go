package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/factdb/internal/ffi"
	"github.com/roach88/factdb/internal/ir"
)

const testConfig = `{:store {:backend :memory :id "harness"} :schema-flexibility :write}`

func ptr(s string) *string { return &s }

func TestRun_MinimalScenario(t *testing.T) {
	scenario := &Scenario{
		Name:        "minimal",
		Description: "Minimal test scenario",
		Config:      testConfig,
		Steps: []Step{
			{Op: ffi.OpCreateDatabase},
		},
		Assertions: []Assertion{
			{Type: AssertDatabaseExists, Expect: "true"},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.True(t, result.Pass)
	assert.Empty(t, result.Errors)
	require.Len(t, result.Trace, 1)
	assert.Equal(t, TraceEvent{Seq: 1, Op: ffi.OpCreateDatabase, Status: StatusOK, Output: `""`}, result.Trace[0])
}

func TestRun_TransactIsSummarized(t *testing.T) {
	scenario := &Scenario{
		Name:        "summary",
		Description: "Transaction reports keep tempids and tx id",
		Config:      testConfig,
		Steps: []Step{
			{Op: ffi.OpCreateDatabase},
			{Op: ffi.OpTransact, Data: `[{:db/id "x" :name "Ann"}]`},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	require.True(t, result.Pass, "errors=%v", result.Errors)

	out := result.Trace[1].Output
	assert.Contains(t, out, `:tempids {"x" `)
	assert.Contains(t, out, ":tx-id 536870913")
	assert.NotContains(t, out, "datoms-added")
}

func TestRun_WithExpect(t *testing.T) {
	tests := []struct {
		name   string
		expect string
		output string
		pass   bool
	}{
		{"edn by value", `#{["Ann"]}`, "", true},
		{"edn spacing ignored", `#{ [ "Ann" ] }`, "edn", true},
		{"edn mismatch", `#{["Bob"]}`, "", false},
		{"json as text", `[["Ann"]]`, "json", true},
		{"json mismatch", `[[ "Ann" ]]`, "json", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			scenario := &Scenario{
				Name:        "expect",
				Description: "Step expectations",
				Config:      testConfig,
				Steps: []Step{
					{Op: ffi.OpCreateDatabase},
					{Op: ffi.OpTransact, Data: `[{:name "Ann"}]`},
					{Op: ffi.OpQuery, Query: `[:find ?n :where [_ :name ?n]]`, Output: tt.output, Expect: ptr(tt.expect)},
				},
			}

			result, err := Run(scenario)
			require.NoError(t, err)
			assert.Equal(t, tt.pass, result.Pass, "errors=%v", result.Errors)
		})
	}
}

func TestRun_WithErrorExpect(t *testing.T) {
	scenario := &Scenario{
		Name:        "errors",
		Description: "Expected and unexpected failures",
		Config:      testConfig,
		Steps: []Step{
			{Op: ffi.OpTransact, Data: `[{:name "Ann"}]`, ExpectError: string(ir.CodeNotFound)},
			{Op: ffi.OpCreateDatabase},
			{Op: ffi.OpCreateDatabase, ExpectError: string(ir.CodeAlreadyExists)},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors=%v", result.Errors)

	assert.Equal(t, StatusError, result.Trace[0].Status)
	assert.Equal(t, ir.CodeNotFound, result.Trace[0].Code)
	assert.Equal(t, StatusOK, result.Trace[1].Status)
	assert.Equal(t, ir.CodeAlreadyExists, result.Trace[2].Code)
}

func TestRun_FailuresDoNotStopScenario(t *testing.T) {
	scenario := &Scenario{
		Name:        "continue",
		Description: "Every step runs",
		Config:      testConfig,
		Steps: []Step{
			{Op: ffi.OpQuery, Query: `[:find ?n :where [_ :name ?n]]`},
			{Op: ffi.OpCreateDatabase, ExpectError: string(ir.CodeConfig)},
			{Op: ffi.OpDatabaseExists, Expect: ptr("true")},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	assert.Len(t, result.Trace, 3)
	require.Len(t, result.Errors, 2)
	assert.Contains(t, result.Errors[0], "unexpected error")
	assert.Contains(t, result.Errors[1], "expected error CONFIG, step succeeded")
}

func TestRun_FreshEnginePerRun(t *testing.T) {
	scenario := &Scenario{
		Name:        "fresh",
		Description: "Memory databases do not leak between runs",
		Config:      testConfig,
		Steps: []Step{
			{Op: ffi.OpCreateDatabase},
		},
	}

	for i := 0; i < 2; i++ {
		result, err := Run(scenario)
		require.NoError(t, err)
		assert.True(t, result.Pass, "run %d: errors=%v", i, result.Errors)
	}
}

func TestRun_StepConfigOverride(t *testing.T) {
	other := `{:store {:backend :memory :id "other"} :schema-flexibility :write}`
	scenario := &Scenario{
		Name:        "override",
		Description: "A step may name its own database",
		Config:      testConfig,
		Steps: []Step{
			{Op: ffi.OpCreateDatabase, Config: other},
			{Op: ffi.OpDatabaseExists, Config: other, Expect: ptr("true")},
			{Op: ffi.OpDatabaseExists, Expect: ptr("false")},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors=%v", result.Errors)
}

func TestRun_InspectionOps(t *testing.T) {
	scenario := &Scenario{
		Name:        "inspect",
		Description: "Read operations default to the current database",
		Config:      testConfig,
		Steps: []Step{
			{Op: ffi.OpCreateDatabase},
			{Op: ffi.OpTransact, Data: `[{:db/ident :name :db/valueType :db.type/string :db/cardinality :db.cardinality/one}]`},
			{Op: ffi.OpTransact, Data: `[{:db/id "a" :name "Ann"} {:db/id "b" :name "Ben"}]`},
			{Op: ffi.OpEntity, EID: "2", Expect: ptr(`{:db/id 2 :name "Ann"}`)},
			{Op: ffi.OpPullMany, Selector: "[:name]", EIDs: "[2 3]", Expect: ptr(`[{:name "Ann"} {:name "Ben"}]`)},
			{Op: ffi.OpDatoms, Index: ":eavt", Components: "[3]", Expect: ptr(`[[3 :name "Ben" 536870914 true]]`)},
			{Op: ffi.OpSchema},
			{Op: ffi.OpReverseSchema},
			{Op: ffi.OpMetrics},
		},
		Assertions: []Assertion{
			{Type: AssertTraceContains, Op: ffi.OpSchema, Contains: ":db.type/string"},
			{Type: AssertQueryResult, Query: `[:find ?n :in $ :where [_ :name ?n]]`, Inputs: []InputSpec{{Format: "history"}}, Expect: `#{["Ann"] ["Ben"]}`},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors=%v", result.Errors)
}

func TestInputs(t *testing.T) {
	assert.Equal(t, []ffi.Input{ffi.DB("cfg")}, inputs(nil, "cfg"))
	assert.Equal(t,
		[]ffi.Input{{Format: "asof:5", Raw: "cfg"}, {Format: "edn", Raw: "[1]"}},
		inputs([]InputSpec{{Format: "asof:5"}, {Format: "edn", Raw: "[1]"}}, "cfg"))
}

func TestResult_AddError(t *testing.T) {
	result := NewResult()
	assert.True(t, result.Pass)

	result.AddError("boom")
	assert.False(t, result.Pass)
	assert.Equal(t, []string{"boom"}, result.Errors)
}

func TestResult_AddTrace(t *testing.T) {
	result := NewResult()
	result.AddOK(ffi.OpCreateDatabase, `""`)
	result.AddFailure(ffi.OpQuery, ir.CodeQuery)

	require.Len(t, result.Trace, 2)
	assert.Equal(t, 1, result.Trace[0].Seq)
	assert.Equal(t, 2, result.Trace[1].Seq)
	assert.Equal(t, ir.CodeQuery, result.Trace[1].Code)
	assert.True(t, result.Pass, "recording a failure does not fail the result")
}
