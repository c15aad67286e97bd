package models

import "fmt"

// ValidationError reports a structurally invalid plan or request: a cycle in a
// custom DAG, an unknown upstream handle, an empty seed list. Planning is
// all-or-nothing, so no partial state is committed when one is returned.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation: " + e.Reason
}

// Validationf builds a ValidationError with a formatted reason.
func Validationf(format string, args ...any) *ValidationError {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// InvalidStateError reports an operation illegal for the entity's current
// state, such as retrying a job that is not in error. No state is mutated.
type InvalidStateError struct {
	Op    string
	State string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("%s: illegal in state %q", e.Op, e.State)
}

// ScoringError reports a failed or unparseable external LLM scoring call. It
// is recorded on the owning job and never propagates to unrelated jobs.
type ScoringError struct {
	TemplateID string
	Err        error
}

func (e *ScoringError) Error() string {
	return fmt.Sprintf("scoring with template %s: %v", e.TemplateID, e.Err)
}

func (e *ScoringError) Unwrap() error { return e.Err }

// LookupError reports a failed citation or patent-record lookup for one
// patent during expansion. The patent is skipped and counted, not fatal.
type LookupError struct {
	PatentID string
	Err      error
}

func (e *LookupError) Error() string {
	return fmt.Sprintf("lookup %s: %v", e.PatentID, e.Err)
}

func (e *LookupError) Unwrap() error { return e.Err }
