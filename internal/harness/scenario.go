package harness

import (
	"bytes"
	"fmt"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/roach88/factdb/internal/edn"
	"github.com/roach88/factdb/internal/ffi"
)

// Scenario defines a conformance test scenario: a sequence of operations
// against one database, with expectations per step and assertions on the
// final state.
type Scenario struct {
	// Name uniquely identifies this scenario.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Config is the edn database configuration every step uses unless the
	// step names its own.
	Config string `yaml:"config"`

	// Steps run in order. A failing step does not stop the scenario.
	Steps []Step `yaml:"steps"`

	// Assertions validate the trace and the final database state.
	// Supported types: trace_contains, trace_count, query_result, database_exists
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// Step is one boundary operation.
type Step struct {
	// Op is the operation name (e.g., "transact", "query").
	Op ffi.Op `yaml:"op"`

	// Config overrides the scenario configuration for this step.
	Config string `yaml:"config,omitempty"`

	// Data is the transact payload and Format its format (edn when empty).
	Data   string `yaml:"data,omitempty"`
	Format string `yaml:"format,omitempty"`

	// Query and Inputs are the query text and its inputs. Inputs default to
	// the current revision of the scenario database.
	Query  string      `yaml:"query,omitempty"`
	Inputs []InputSpec `yaml:"inputs,omitempty"`

	// Selector, EID and EIDs are the pull arguments, as edn.
	Selector string `yaml:"selector,omitempty"`
	EID      string `yaml:"eid,omitempty"`
	EIDs     string `yaml:"eids,omitempty"`

	// Index and Components are the datoms arguments.
	Index      string `yaml:"index,omitempty"`
	Components string `yaml:"components,omitempty"`

	// Output is the result format (edn when empty).
	Output string `yaml:"output,omitempty"`

	// Expect is the expected result. Edn results compare by value, others
	// as text. If nil, only success is checked.
	Expect *string `yaml:"expect,omitempty"`

	// ExpectError is the expected error code (e.g., "UNIQUE_CONSTRAINT").
	ExpectError string `yaml:"expect_error,omitempty"`
}

// InputSpec is one query or pull input. In YAML it is either a bare format
// tag, whose raw text is the step's configuration:
//
//	- history
//	- asof:1704067201000
//
// or a map with explicit raw text:
//
//	- {format: edn, raw: '"Alice"'}
type InputSpec struct {
	Format string `yaml:"format"`
	Raw    string `yaml:"raw,omitempty"`
}

// UnmarshalYAML accepts the scalar shorthand.
func (in *InputSpec) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		in.Format = node.Value
		return nil
	}
	type plain InputSpec
	return node.Decode((*plain)(in))
}

// Assertion validates the trace or the final state.
type Assertion struct {
	// Type specifies the assertion type:
	// - "trace_contains": a step of Op succeeded with output containing Contains
	// - "trace_count": exactly Count steps of Op were executed
	// - "query_result": Query over Inputs returns Expect (by value)
	// - "database_exists": databaseExists of the scenario config returns Expect
	Type string `yaml:"type"`

	Op       ffi.Op `yaml:"op,omitempty"`
	Contains string `yaml:"contains,omitempty"`
	Count    int    `yaml:"count,omitempty"`

	Query  string      `yaml:"query,omitempty"`
	Inputs []InputSpec `yaml:"inputs,omitempty"`
	Expect string      `yaml:"expect,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceContains  = "trace_contains"
	AssertTraceCount     = "trace_count"
	AssertQueryResult    = "query_result"
	AssertDatabaseExists = "database_exists"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	// Strict field validation catches typos like "assertion:" vs "assertions:".
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Config == "" {
		return fmt.Errorf("config is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	for i, step := range s.Steps {
		if err := validateStep(i, &step); err != nil {
			return err
		}
	}
	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(index int, s *Step) error {
	if s.Op == "" {
		return fmt.Errorf("steps[%d]: op is required", index)
	}
	if !slices.Contains(ffi.Ops, s.Op) {
		return fmt.Errorf("steps[%d]: unknown op %q", index, s.Op)
	}
	if s.Expect != nil && s.ExpectError != "" {
		return fmt.Errorf("steps[%d]: expect and expect_error are mutually exclusive", index)
	}

	switch s.Op {
	case ffi.OpTransact:
		if s.Data == "" {
			return fmt.Errorf("steps[%d]: data is required for transact", index)
		}
	case ffi.OpQuery:
		if s.Query == "" {
			return fmt.Errorf("steps[%d]: query is required for query", index)
		}
	case ffi.OpPull, ffi.OpPullMany:
		if s.Selector == "" {
			return fmt.Errorf("steps[%d]: selector is required for %s", index, s.Op)
		}
	case ffi.OpDatoms:
		if s.Index == "" {
			return fmt.Errorf("steps[%d]: index is required for datoms", index)
		}
	}

	if s.EID != "" {
		if _, err := edn.Read(s.EID); err != nil {
			return fmt.Errorf("steps[%d]: eid: %w", index, err)
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertTraceContains:
		if a.Op == "" {
			return fmt.Errorf("assertions[%d]: op is required for trace_contains", index)
		}
	case AssertTraceCount:
		if a.Op == "" {
			return fmt.Errorf("assertions[%d]: op is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertQueryResult:
		if a.Query == "" || a.Expect == "" {
			return fmt.Errorf("assertions[%d]: query and expect are required for query_result", index)
		}
	case AssertDatabaseExists:
		if a.Expect != "true" && a.Expect != "false" {
			return fmt.Errorf("assertions[%d]: expect must be true or false for database_exists", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
