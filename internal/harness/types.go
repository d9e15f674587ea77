package harness

import (
	"github.com/roach88/factdb/internal/ffi"
	"github.com/roach88/factdb/internal/ir"
)

// Step outcomes recorded in the trace.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// TraceEvent records one executed step.
type TraceEvent struct {
	Seq    int     `json:"seq"`
	Op     ffi.Op  `json:"op"`
	Status string  `json:"status"`           // StatusOK or StatusError
	Output string  `json:"output,omitempty"` // result text; transact reports are summarized
	Code   ir.Code `json:"code,omitempty"`   // error code when Status is StatusError
}

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass indicates overall test success.
	// True if every step and assertion matched.
	Pass bool `json:"pass"`

	// Trace contains every executed step in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddOK records a step that succeeded.
func (r *Result) AddOK(op ffi.Op, output string) {
	r.Trace = append(r.Trace, TraceEvent{
		Seq:    len(r.Trace) + 1,
		Op:     op,
		Status: StatusOK,
		Output: output,
	})
}

// AddFailure records a step that failed with code.
func (r *Result) AddFailure(op ffi.Op, code ir.Code) {
	r.Trace = append(r.Trace, TraceEvent{
		Seq:    len(r.Trace) + 1,
		Op:     op,
		Status: StatusError,
		Code:   code,
	})
}
