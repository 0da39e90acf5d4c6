// Package harness runs scenario files against real actors.
//
// A scenario names CUE spec files and a machine in them, then drives one actor
// of that machine through an ordered list of steps:
//
//	name: toggle_counts
//	description: INC only counts while active
//	specs: [toggle.cue]
//	machine: toggle
//	steps:
//	  - start: true
//	  - send: INC
//	    expect: {ignored: true, version: 0}
//	  - send: TOGGLE
//	    expect: {state: active, version: 1}
//	  - send: INC
//	    times: 10
//	    expect: {context: {count: 10}, version: 11}
//	assertions:
//	  - type: final_state
//	    state: active
//
// Each run gets a fresh in-memory store and sequential actor IDs, so the
// journal, and the trace read back from it, is the same on every run. Step
// expectations and assertions are collected into Result.Errors rather than
// stopping the run.
//
// Golden traces live in testdata/golden and are compared with goldie:
//
//	go test ./internal/harness -update
package harness
