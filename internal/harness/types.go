package harness

import (
	"fmt"

	"github.com/roach88/automaton/internal/operation"
)

// TraceEvent is one derived invocation. Entities are named by their
// scenario ref when they have one, by stored id otherwise.
type TraceEvent struct {
	Trigger string   `json:"trigger"`
	Kind    string   `json:"kind"`
	Schema  string   `json:"schema"`
	Entity  string   `json:"entity"`
	Changed []string `json:"changed,omitempty"`
	Depth   int      `json:"depth"`
}

// String renders the event the way trace_order assertions name it.
func (e TraceEvent) String() string {
	return fmt.Sprintf("%s %s %s", e.Trigger, e.Schema, e.Entity)
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every step and assertion held.
	Pass bool `json:"pass"`

	// Trace lists derived invocations in submission order.
	Trace []TraceEvent `json:"trace"`

	// Messages are the user messages surfaced by interactive actions.
	Messages []operation.UserMessage `json:"messages,omitempty"`

	// TaskErrors are the failures reported while processing invocations.
	TaskErrors []string `json:"task_errors,omitempty"`

	// Errors contains step and assertion failures.
	Errors []string `json:"errors,omitempty"`

	// Refs maps scenario refs to stored ids.
	Refs map[string]string `json:"refs,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
		Refs:   make(map[string]string),
	}
}

// AddError adds a failure and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
