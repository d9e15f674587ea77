// Package harness provides conformance testing for factdb databases.
//
// The harness executes YAML scenarios through the same boundary calls the
// shared library exposes, records a trace of every step, and validates
// step expectations and final-state assertions.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	config: '{:store {:backend :memory :id "people"} :keep-history? true}'
//	steps:
//	  - op: create-database
//	  - op: transact
//	    data: '[{:db/id "alice" :name "Alice"}]'
//	  - op: query
//	    query: '[:find ?n :where [_ :name ?n]]'
//	    expect: '#{["Alice"]}'
//	  - op: transact
//	    data: '[[:db/add 99 :nope 1]]'
//	    expect_error: SCHEMA_VIOLATION
//	assertions:
//	  - type: query_result
//	    query: '[:find (count ?e) . :where [?e :name]]'
//	    expect: '1'
//
// Inputs are format tags (db, history, since:<ms>, asof:<ms>, edn, json,
// cbor). A bare tag uses the scenario configuration as its raw text.
//
// # Assertion Types
//
// The following assertion types are supported:
//
//   - trace_contains: a successful step of an op has output containing text
//   - trace_count: an op ran exactly N times
//   - query_result: a query over the final state returns the expected value
//   - database_exists: the scenario database exists, or not
//
// # Deterministic Testing
//
// Every scenario runs on a fresh engine whose transaction clock is a
// testutil.DeterministicClock: the n-th transaction is stamped
// 2024-01-01T00:00:00Z plus n seconds. Entity and transaction ids are
// allocated from fixed bases, so traces are identical across runs and can
// be compared against golden files.
//
// # Usage
//
//	scenario, err := harness.LoadScenario("testdata/scenarios/people.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	result, err := harness.Run(scenario)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if !result.Pass {
//	    for _, err := range result.Errors {
//	        log.Println(err)
//	    }
//	}
package harness
