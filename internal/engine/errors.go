package engine

import (
	"errors"
	"fmt"
)

// RuntimeError is an error detected while processing an invocation.
//
// Runtime errors include:
//   - Cycle detection: the same task would run twice on the same state
//   - Quota exceeded: the root flow ran more invocations than max_steps
//   - Script failure: a rule or function script failed
//   - Not found: the schema object of an invocation is gone
type RuntimeError struct {
	// Code identifies the error category.
	Code RuntimeErrorCode

	// Message is a human-readable description.
	Message string

	// RootID identifies the affected flow.
	RootID string

	// TaskID identifies the rule or function (task-level errors).
	TaskID string

	// StateHash identifies the entity state (cycle errors).
	StateHash string

	// Details contains additional context.
	Details map[string]string

	// Cause is the underlying error, if any.
	Cause error
}

// RuntimeErrorCode categorizes runtime errors.
type RuntimeErrorCode string

const (
	// ErrCodeCycleDetected indicates a task would run twice on one state.
	ErrCodeCycleDetected RuntimeErrorCode = "CYCLE_DETECTED"

	// ErrCodeQuotaExceeded indicates the flow exceeded max steps.
	ErrCodeQuotaExceeded RuntimeErrorCode = "QUOTA_EXCEEDED"

	// ErrCodeScriptFailed indicates a rule or function script failed.
	ErrCodeScriptFailed RuntimeErrorCode = "SCRIPT_FAILED"

	// ErrCodeNotFound indicates a collection, link type or entity is gone.
	ErrCodeNotFound RuntimeErrorCode = "NOT_FOUND"
)

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	switch {
	case e.RootID != "" && e.TaskID != "":
		msg = fmt.Sprintf("%s (flow=%s, task=%s)", msg, e.RootID, e.TaskID)
	case e.RootID != "":
		msg = fmt.Sprintf("%s (flow=%s)", msg, e.RootID)
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *RuntimeError) Unwrap() error {
	return e.Cause
}

func hasCode(err error, code RuntimeErrorCode) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == code
	}
	return false
}

// IsCycleError returns true if the error is a cycle detection error.
func IsCycleError(err error) bool {
	return hasCode(err, ErrCodeCycleDetected)
}

// IsQuotaError returns true for a quota RuntimeError or a
// StepsExceededError.
func IsQuotaError(err error) bool {
	if hasCode(err, ErrCodeQuotaExceeded) {
		return true
	}
	var se *StepsExceededError
	return errors.As(err, &se)
}

// IsScriptFailure returns true if the error is a failed script run.
func IsScriptFailure(err error) bool {
	return hasCode(err, ErrCodeScriptFailed)
}

// IsNotFound returns true if the error is a not-found RuntimeError.
func IsNotFound(err error) bool {
	return hasCode(err, ErrCodeNotFound)
}

// NewCycleError creates a RuntimeError for cycle detection.
func NewCycleError(rootID, taskID, stateHash string) *RuntimeError {
	return &RuntimeError{
		Code:      ErrCodeCycleDetected,
		Message:   "task would run twice on the same state in flow",
		RootID:    rootID,
		TaskID:    taskID,
		StateHash: stateHash,
	}
}

// NewQuotaError creates a RuntimeError for quota exceeded.
func NewQuotaError(rootID string, steps, maxSteps int, cause error) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeQuotaExceeded,
		Message: fmt.Sprintf("flow exceeded max steps (%d > %d)", steps, maxSteps),
		RootID:  rootID,
		Details: map[string]string{
			"steps":     fmt.Sprintf("%d", steps),
			"max_steps": fmt.Sprintf("%d", maxSteps),
		},
		Cause: cause,
	}
}

// NewScriptError creates a RuntimeError for a failed task.
func NewScriptError(rootID, taskID string, cause error) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeScriptFailed,
		Message: "task failed",
		RootID:  rootID,
		TaskID:  taskID,
		Cause:   cause,
	}
}

// NewNotFoundError creates a RuntimeError for a missing schema object or
// entity.
func NewNotFoundError(rootID, what string, cause error) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeNotFound,
		Message: what + " not found",
		RootID:  rootID,
		Cause:   cause,
	}
}
