package harness

import (
	"context"
	"fmt"
	"strings"

	"github.com/roach88/factdb/internal/codec"
	"github.com/roach88/factdb/internal/edn"
	"github.com/roach88/factdb/internal/engine"
	"github.com/roach88/factdb/internal/ffi"
	"github.com/roach88/factdb/internal/ir"
	"github.com/roach88/factdb/internal/testutil"
)

// Run executes a scenario against a fresh engine and returns the result.
//
// The engine is stamped by a deterministic clock, so transaction instants
// and ids are identical across runs. Every step runs even when an earlier
// one fails; mismatches are collected in Result.Errors.
func Run(scenario *Scenario) (*Result, error) {
	e := engine.New(engine.WithClock(testutil.NewDeterministicClock()), engine.WithWorkers(1))
	defer e.Shutdown()

	api := ffi.New(e)
	h, err := api.CreateContext()
	if err != nil {
		return nil, fmt.Errorf("failed to create context: %w", err)
	}
	defer api.TearDown(h)

	r := &runner{ctx: context.Background(), api: api, h: h, scenario: scenario}
	result := NewResult()
	for i, step := range scenario.Steps {
		r.step(result, i, &step)
	}
	for i, a := range scenario.Assertions {
		if err := r.assert(result, &a); err != nil {
			result.AddError(fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return result, nil
}

type runner struct {
	ctx      context.Context
	api      *ffi.API
	h        engine.Handle
	scenario *Scenario
}

func (r *runner) config(override string) string {
	if override != "" {
		return override
	}
	return r.scenario.Config
}

// inputs resolves input specs against cfg. An empty list means the current
// revision of the database.
func inputs(specs []InputSpec, cfg string) []ffi.Input {
	if len(specs) == 0 {
		return []ffi.Input{ffi.DB(cfg)}
	}
	out := make([]ffi.Input, len(specs))
	for i, s := range specs {
		raw := s.Raw
		if raw == "" {
			raw = cfg
		}
		out[i] = ffi.Input{Format: s.Format, Raw: raw}
	}
	return out
}

func (r *runner) call(s *Step) (ffi.Call, error) {
	cfg := r.config(s.Config)
	c := ffi.Call{
		Op:           s.Op,
		Config:       cfg,
		Data:         s.Data,
		DataFormat:   s.Format,
		Query:        s.Query,
		Selector:     s.Selector,
		EIDs:         s.EIDs,
		Index:        s.Index,
		Components:   s.Components,
		OutputFormat: s.Output,
	}
	switch s.Op {
	case ffi.OpCreateDatabase, ffi.OpDatabaseExists, ffi.OpDeleteDatabase, ffi.OpTransact:
	default:
		c.Inputs = inputs(s.Inputs, cfg)
	}
	if s.EID != "" {
		eid, err := edn.Read(s.EID)
		if err != nil {
			return c, err
		}
		c.EID = eid
	}
	return c, nil
}

func (r *runner) step(result *Result, i int, s *Step) {
	c, err := r.call(s)
	var text string
	if err == nil {
		text, err = r.api.Do(r.ctx, r.h, c)
	}

	if err != nil {
		code := ir.CodeOf(err)
		if code == "" {
			code = ir.CodeInitialization
		}
		result.AddFailure(s.Op, code)
		switch {
		case s.ExpectError == "":
			result.AddError(fmt.Sprintf("steps[%d] %s: unexpected error: %v", i, s.Op, err))
		case ir.Code(s.ExpectError) != code:
			result.AddError(fmt.Sprintf("steps[%d] %s: expected error %s, got %v", i, s.Op, s.ExpectError, err))
		}
		return
	}

	output := text
	if s.Op == ffi.OpTransact {
		if output, err = summarizeReport(text, s.Output); err != nil {
			result.AddError(fmt.Sprintf("steps[%d] %s: %v", i, s.Op, err))
		}
	}
	result.AddOK(s.Op, output)

	if s.ExpectError != "" {
		result.AddError(fmt.Sprintf("steps[%d] %s: expected error %s, step succeeded", i, s.Op, s.ExpectError))
		return
	}
	if s.Expect != nil {
		if err := matchOutput(*s.Expect, text, s.Output); err != nil {
			result.AddError(fmt.Sprintf("steps[%d] %s: %v", i, s.Op, err))
		}
	}
}

// summarizeReport reduces a transaction report to the parts that identify
// what was written: the tempid mapping and the transaction id.
func summarizeReport(text, format string) (string, error) {
	f, err := codec.ParseFormat(format)
	if err != nil {
		return "", err
	}
	v, err := codec.Decode(text, f)
	if err != nil {
		return "", err
	}
	report, ok := v.(ir.Map)
	if !ok {
		return "", fmt.Errorf("transaction report is a %s", v.Kind())
	}
	tempids, _ := report.Get(ir.KW("tempids"))
	txID, _ := report.Get(ir.KW("tx-id"))
	return edn.Print(ir.NewMap(
		ir.E(ir.KW("tempids"), tempids),
		ir.E(ir.KW("tx-id"), txID),
	)), nil
}

// matchOutput compares edn results by value and everything else as text.
func matchOutput(expected, actual, format string) error {
	if format == "" || format == string(codec.FormatEDN) {
		want, err := edn.Read(expected)
		if err != nil {
			return fmt.Errorf("expect is not valid edn: %w", err)
		}
		got, err := edn.Read(actual)
		if err != nil {
			return fmt.Errorf("result is not valid edn: %w", err)
		}
		if !ir.Equal(want, got) {
			return fmt.Errorf("result mismatch\n  Expected: %s\n  Actual:   %s", edn.Print(want), edn.Print(got))
		}
		return nil
	}
	if strings.TrimSpace(expected) != strings.TrimSpace(actual) {
		return fmt.Errorf("result mismatch\n  Expected: %s\n  Actual:   %s", strings.TrimSpace(expected), actual)
	}
	return nil
}
