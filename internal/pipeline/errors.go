package pipeline

import (
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/automaton/internal/operation"
)

// ValidationError rejects a whole batch before anything is persisted. It
// lists every problem found, not just the first.
type ValidationError struct {
	Violations []operation.Violation
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		parts[i] = v.String()
	}
	return fmt.Sprintf("invalid batch (%d violations): %s", len(e.Violations), strings.Join(parts, "; "))
}

// CommitError reports a persistence failure part way through a commit.
// Operations applied before the failure stay applied.
type CommitError struct {
	// Step is the pipeline step that failed.
	Step string
	// Cause is the underlying storage error.
	Cause error
	// Uncommitted lists the operations that were never applied, in batch
	// order.
	Uncommitted []operation.Operation
}

// Error implements the error interface.
func (e *CommitError) Error() string {
	return fmt.Sprintf("commit failed at %s (%d operations uncommitted): %v", e.Step, len(e.Uncommitted), e.Cause)
}

// Unwrap returns the underlying storage error.
func (e *CommitError) Unwrap() error {
	return e.Cause
}

// IsValidationError checks if an error is a ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsCommitError checks if an error is a CommitError.
func IsCommitError(err error) bool {
	var ce *CommitError
	return errors.As(err, &ce)
}
