package engine

import (
	"errors"
	"fmt"

	"github.com/razeghi71/streamagg/ast"
)

// ConstructionError is returned for pipelines rejected before any record is
// processed.
type ConstructionError = ast.ConstructionError

// ErrDivisionByZero is wrapped by evaluation errors raised by $divide.
var ErrDivisionByZero = errors.New("division by zero")

// EvaluationError aborts a run. It names the stage, the record being
// processed and the field whose expression failed.
type EvaluationError struct {
	Stage  int
	Op     string
	Record string // content_id, _id, or "#n" input ordinal
	Field  string
	Err    error
}

func (e *EvaluationError) Error() string {
	msg := fmt.Sprintf("stage %d (%s)", e.Stage, e.Op)
	if e.Record != "" {
		msg += fmt.Sprintf(", record %s", e.Record)
	}
	if e.Field != "" {
		msg += fmt.Sprintf(", field %q", e.Field)
	}
	return msg + ": " + e.Err.Error()
}

func (e *EvaluationError) Unwrap() error {
	return e.Err
}

// nestError attributes a failure inside a sub-pipeline to the enclosing
// top-level stage, keeping the inner record and field.
func nestError(stage int, op string, err error) error {
	var ee *EvaluationError
	if errors.As(err, &ee) {
		return &EvaluationError{Stage: stage, Op: op, Record: ee.Record, Field: ee.Field, Err: err}
	}
	return err
}
