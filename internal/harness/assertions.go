package harness

import (
	"fmt"
	"strings"

	"github.com/roach88/factdb/internal/edn"
	"github.com/roach88/factdb/internal/ffi"
	"github.com/roach88/factdb/internal/ir"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	fmt.Fprintf(&buf, "\nFull trace:\n")
	for _, event := range e.Trace {
		fmt.Fprintf(&buf, "  %s\n", formatEvent(event))
	}

	return buf.String()
}

func (r *runner) assert(result *Result, a *Assertion) error {
	switch a.Type {
	case AssertTraceContains:
		return assertTraceContains(result.Trace, a)
	case AssertTraceCount:
		return assertTraceCount(result.Trace, a)
	case AssertQueryResult:
		return r.assertQueryResult(result.Trace, a)
	case AssertDatabaseExists:
		return r.assertDatabaseExists(result.Trace, a)
	}
	return fmt.Errorf("unknown assertion type %q", a.Type)
}

// assertTraceContains checks that a step of the given op succeeded with an
// output containing the expected text.
func assertTraceContains(trace []TraceEvent, a *Assertion) error {
	for _, event := range trace {
		if event.Op == a.Op && event.Status == StatusOK && strings.Contains(event.Output, a.Contains) {
			return nil
		}
	}
	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: fmt.Sprintf("successful %s with output containing %q", a.Op, a.Contains),
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertTraceCount checks that the op ran exactly the specified number of
// times, successful or not.
func assertTraceCount(trace []TraceEvent, a *Assertion) error {
	count := 0
	for _, event := range trace {
		if event.Op == a.Op {
			count++
		}
	}
	if count != a.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%s executed %d times", a.Op, a.Count),
			Actual:   fmt.Sprintf("executed %d times", count),
			Trace:    trace,
		}
	}
	return nil
}

// assertQueryResult runs a query against the final state and compares the
// result by value.
func (r *runner) assertQueryResult(trace []TraceEvent, a *Assertion) error {
	want, err := edn.Read(a.Expect)
	if err != nil {
		return fmt.Errorf("expect is not valid edn: %w", err)
	}
	text, err := r.api.Do(r.ctx, r.h, ffi.Call{
		Op:     ffi.OpQuery,
		Query:  a.Query,
		Inputs: inputs(a.Inputs, r.scenario.Config),
	})
	if err != nil {
		return &AssertionError{
			Type:     AssertQueryResult,
			Expected: edn.Print(want),
			Actual:   err.Error(),
			Trace:    trace,
		}
	}
	got, err := edn.Read(text)
	if err != nil {
		return err
	}
	if !ir.Equal(want, got) {
		return &AssertionError{
			Type:     AssertQueryResult,
			Expected: edn.Print(want),
			Actual:   edn.Print(got),
			Trace:    trace,
		}
	}
	return nil
}

func (r *runner) assertDatabaseExists(trace []TraceEvent, a *Assertion) error {
	text, err := r.api.Do(r.ctx, r.h, ffi.Call{Op: ffi.OpDatabaseExists, Config: r.scenario.Config})
	if err != nil {
		return err
	}
	if text != a.Expect {
		return &AssertionError{
			Type:     AssertDatabaseExists,
			Expected: "database-exists " + a.Expect,
			Actual:   "database-exists " + text,
			Trace:    trace,
		}
	}
	return nil
}
