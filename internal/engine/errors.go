package engine

import "fmt"

// IllegalTransitionError reports a rejected state machine edge.
type IllegalTransitionError struct {
	Entity string
	From   string
	To     string
}

func (e IllegalTransitionError) Error() string {
	return fmt.Sprintf("invalid %s state transition %s -> %s", e.Entity, e.From, e.To)
}

// ConflictError reports an operation that clashes with existing state, such
// as delegating a work item under a session key that is already active.
type ConflictError struct {
	Message string
}

func (e ConflictError) Error() string { return e.Message }

// InvalidError reports rejected input parameters.
type InvalidError struct {
	Message string
}

func (e InvalidError) Error() string { return e.Message }

func invalidf(format string, args ...any) error {
	return InvalidError{Message: fmt.Sprintf(format, args...)}
}

func conflictf(format string, args ...any) error {
	return ConflictError{Message: fmt.Sprintf(format, args...)}
}
