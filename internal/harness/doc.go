// Package harness runs dispatch scenarios: a fixture type is proxied under
// an interception plan and called through the virtual machine, and the
// outcome of every call is checked and snapshotted.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: calculator_write_back
//	description: "What this scenario validates"
//	fixture: calculator
//	interceptors:
//	  audit: {}
//	  seven:
//	    set_input: {index: 1, value: 7}
//	plan: |
//	  intercept: "Calculator.Add(int,&int)": ["audit", "seven"]
//	calls:
//	  - member: "Calculator.Add(int,&int)"
//	    args: [5, 100]
//	    expect:
//	      result: 12
//	      refs: {1: 7}
//	assertions:
//	  - type: trace_order
//	    entries: [audit.before, seven.before]
//
// The plan is CUE, compiled by package plan against a catalog holding the
// scenario's interceptors. Every scripted interceptor records
// "<name>.before" and "<name>.after"; greeter fixture members record "call".
//
// # Assertion Types
//
//   - trace_contains: Verifies an entry appears in the trace
//   - trace_order: Verifies entries first appear in the specified order
//   - trace_count: Verifies an entry appears exactly N times
//
// # Deterministic Testing
//
// Each scenario runs on a fresh loop and machine. The proxy is always named
// "<Base>_proxy", so snapshots are identical across runs.
//
// # Usage
//
//	scenario, err := harness.LoadScenario("testdata/scenarios/calculator_write_back.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	result, err := harness.Run(ctx, scenario)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if !result.Pass {
//	    fmt.Println(result.Errors)
//	}
//
// # Golden Files
//
// RunWithGolden compares the JSON snapshot of a run with
// testdata/golden/{name}.golden. Regenerate with:
//
//	go test ./internal/harness -update
package harness
