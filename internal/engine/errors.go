package engine

import "fmt"

// ValidationError flags missing or malformed input.
type ValidationError struct {
	Field  string
	Reason string
}

func (e ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// PermissionError flags an actor without the standing an operation needs,
// including self-approval attempts.
type PermissionError struct {
	Reason string
}

func (e PermissionError) Error() string { return e.Reason }

// StateError flags an operation that is illegal in the entity's current
// state. Nothing is mutated when one is returned.
type StateError struct {
	Op     string
	Reason string
}

func (e StateError) Error() string {
	if e.Op == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Reason)
}

// ConflictError flags a lost race against a concurrent writer. The whole
// operation is safe to retry from a fresh read.
type ConflictError struct {
	Reason string
}

func (e ConflictError) Error() string { return e.Reason }
