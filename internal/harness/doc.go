// Package harness runs end-to-end automation scenarios against the real
// engine.
//
// A scenario compiles a project, seeds it, replays a flow of user actions
// and checks the derived invocations and the final state:
//
//	name: double_estimate
//	description: "The double function follows the estimate"
//	project: ../projects/tasks.cue
//	fixture: ../fixtures/people.yaml
//	flow:
//	  - action: create
//	    ref: t1
//	    collection: tasks
//	    data: {title: "write", estimate: 3}
//	  - action: patch
//	    document: t1
//	    attribute: estimate
//	    value: 4
//	assertions:
//	  - type: trace_contains
//	    trigger: updated
//	    schema: tasks
//	    entity: t1
//	  - type: final_state
//	    document: t1
//	    expect: {double: 8}
//
// # Assertion Types
//
//   - trace_contains: a derived invocation matches trigger, schema, entity
//     and changed attributes (unset fields match anything)
//   - trace_count: exactly count invocations match
//   - trace_order: the events ("<trigger> <schema> <entity>") appear in order
//   - final_state: a document holds the expected values, or is removed
//   - document_count / link_count: counters and stored rows agree on count
//   - message: a user message with text (and level) was surfaced
//   - task_error: some task failure contains the text
//
// # Deterministic Testing
//
// Every scenario runs in a fresh SQLite database with sequence-generated
// ids ("id-0001", ...), a stepping clock and a single synchronous drain
// after each action, so traces are identical across runs and can be
// compared against golden files.
package harness
