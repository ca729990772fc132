// Package harness runs conformance scenarios against the compiler: each
// scenario lowers a kernel, runs it on concrete data in the interpreter and
// checks what the run produced.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: union_add
//	description: "What this scenario validates"
//	kernel:
//	  expr: "a(i) = b(i) + c(i)"
//	  tensors:
//	    - {name: a, shape: [5], format: d}
//	    - {name: b, shape: [5], format: s}
//	    - {name: c, shape: [5], format: d}
//	  schedule:
//	    - parallelize: {index: i, kind: parallel_static}
//	  instrument: true
//	inputs:
//	  b:
//	    entries:
//	      - {at: [1], value: 10}
//	  c:
//	    dense: [1, 2, 3, 4, 5]
//	expect:
//	  visits: {"i:{b,c}": 1}
//	  total_visits: 5
//	  strategies: {i: [lattice]}
//	golden: true
//
// The kernel block mirrors the CUE kernel schema. Outputs without an
// explicit expectation are compared against a dense evaluation of the
// kernel's expression.
//
// # Deterministic Testing
//
// Runs are deterministic: the interpreter executes parallel loops serially,
// in reverse when reverse_parallel is set. Golden snapshots hold canonical
// JSON of the lowering decisions, visit counts and outputs, so identical
// runs produce identical bytes.
//
// # Usage
//
//	scenario, err := harness.LoadScenario("testdata/scenarios/a_union_add.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	result, err := harness.Run(scenario)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if !result.Pass {
//	    for _, e := range result.Errors {
//	        log.Println(e)
//	    }
//	}
package harness
