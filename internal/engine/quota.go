package engine

import (
	"errors"
	"fmt"
)

// QuotaEnforcer counts the invocations processed for one root flow and
// enforces a maximum.
//
// It complements the CycleDetector: cycle detection catches a rule
// re-firing on the same state (A → B → A), the quota catches long linear
// chains of distinct firings (A → B → C → ... → Z). Together they bound
// every cascade.
//
// A QuotaEnforcer is not safe for concurrent use; the Engine guards it.
type QuotaEnforcer struct {
	maxSteps int
	current  int
}

// NewQuotaEnforcer creates a quota enforcer with the given limit.
func NewQuotaEnforcer(maxSteps int) *QuotaEnforcer {
	return &QuotaEnforcer{maxSteps: maxSteps}
}

// Check counts one step and returns a StepsExceededError once the limit is
// passed.
func (q *QuotaEnforcer) Check(rootID string) error {
	q.current++
	if q.current > q.maxSteps {
		return &StepsExceededError{
			RootID: rootID,
			Steps:  q.current,
			Limit:  q.maxSteps,
		}
	}
	return nil
}

// Reset sets the step counter back to 0.
func (q *QuotaEnforcer) Reset() {
	q.current = 0
}

// Current returns the step count.
func (q *QuotaEnforcer) Current() int {
	return q.current
}

// MaxSteps returns the limit.
func (q *QuotaEnforcer) MaxSteps() int {
	return q.maxSteps
}

// StepsExceededError stops a root flow that ran more invocations than its
// quota allows. Unlike a cycle, which skips a single firing, it ends the
// flow: every later invocation of the same root is dropped.
type StepsExceededError struct {
	RootID string
	Steps  int
	Limit  int
}

// Error implements the error interface.
func (e *StepsExceededError) Error() string {
	return fmt.Sprintf("flow %s exceeded max steps quota: %d steps > %d limit",
		e.RootID, e.Steps, e.Limit)
}

// IsStepsExceededError reports whether err is or wraps a StepsExceededError.
func IsStepsExceededError(err error) bool {
	var se *StepsExceededError
	return errors.As(err, &se)
}
