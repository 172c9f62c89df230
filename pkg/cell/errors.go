package cell

import (
	"errors"
	"fmt"
)

// ErrRecompute is matched by every error a derived cell records when its
// function panics.
var ErrRecompute = errors.New("cell: recompute failed")

// RecomputeError describes a failed derived evaluation. The derived cell keeps
// its previous value; the error is logged, reported to the Observer and
// returned by Derived.Err.
type RecomputeError struct {
	// Cell is the label of the derived cell.
	Cell string

	// Value is what the function panicked with.
	Value any
}

// Error implements the error interface.
func (e *RecomputeError) Error() string {
	return fmt.Sprintf("cell: recompute of %s failed: %v", e.Cell, e.Value)
}

// Unwrap exposes ErrRecompute and, when the panic value was an error, that
// error as well.
func (e *RecomputeError) Unwrap() []error {
	errs := []error{ErrRecompute}
	if err, ok := e.Value.(error); ok {
		errs = append(errs, err)
	}
	return errs
}
