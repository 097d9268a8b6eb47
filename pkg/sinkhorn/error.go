package sinkhorn

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Axis names a matrix axis.
type Axis int

const (
	// Rows is the row axis.
	Rows Axis = iota
	// Columns is the column axis.
	Columns
)

func (a Axis) String() string {
	switch a {
	case Rows:
		return "row"
	case Columns:
		return "column"
	default:
		return fmt.Sprintf("Axis(%d)", int(a))
	}
}

// InvalidInputError signals an input matrix that cannot be processed,
// ex: a non-square or empty matrix, or one with NaN/Inf entries.
//
// It is detected before any iteration begins.
type InvalidInputError struct {
	Rows, Cols int
	Reason     string
}

func (e InvalidInputError) Error() string {
	return fmt.Sprintf("invalid %dx%d input matrix: %s",
		e.Rows, e.Cols, e.Reason)
}

// NegativeValueError signals a negative-valued entry was encountered
// where disallowed.
type NegativeValueError struct {
	Row, Col int
	Value    float64
}

func (e NegativeValueError) Error() string {
	return fmt.Sprintf("negative value %#v at (%d, %d) not allowed",
		e.Value, e.Row, e.Col)
}

// NumericDegeneracyError signals that a row or column sum became
// unusable as a scale divisor (zero, negative, or non-finite),
// or that scaling produced a non-finite entry.
type NumericDegeneracyError struct {
	Iteration int
	Axis      Axis
	Index     int
	Sum       float64
}

func (e NumericDegeneracyError) Error() string {
	return fmt.Sprintf("numeric degeneracy at iteration %d: %s %d sums to %v",
		e.Iteration, e.Axis, e.Index, e.Sum)
}

// InvalidConfigError signals a bad algorithm parameter.
type InvalidConfigError struct {
	Param  string
	Value  any
	Reason string
}

func (e InvalidConfigError) Error() string {
	return fmt.Sprintf("invalid %s=%#v: %s", e.Param, e.Value, e.Reason)
}

// SquareDim asserts m is a non-empty square matrix and returns its dimension.
func SquareDim(m mat.Matrix) (int, error) {
	if m == nil {
		return 0, InvalidInputError{Reason: "nil matrix"}
	}
	r, c := m.Dims()
	switch {
	case r == 0 || c == 0:
		return 0, InvalidInputError{Rows: r, Cols: c, Reason: "empty matrix"}
	case r != c:
		return 0, InvalidInputError{Rows: r, Cols: c, Reason: "not square"}
	}
	return r, nil
}
