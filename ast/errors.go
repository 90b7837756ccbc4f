package ast

import "fmt"

// ConstructionError reports a pipeline that cannot be built: an unknown stage
// or operator, a missing or invalid parameter, or an unresolvable source.
// It is always returned before any record is processed.
type ConstructionError struct {
	Stage int    // index of the offending top-level stage, -1 for the document itself
	Op    string // stage name, if known
	Err   error
}

func (e *ConstructionError) Error() string {
	if e.Stage < 0 {
		return fmt.Sprintf("invalid pipeline: %v", e.Err)
	}
	if e.Op == "" {
		return fmt.Sprintf("invalid pipeline: stage %d: %v", e.Stage, e.Err)
	}
	return fmt.Sprintf("invalid pipeline: stage %d (%s): %v", e.Stage, e.Op, e.Err)
}

func (e *ConstructionError) Unwrap() error {
	return e.Err
}
