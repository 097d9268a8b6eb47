package sinkhorn

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// DoublyStochasticError measures how far m is from being doubly stochastic.
//
// It returns the mean, over the n row sums and n column sums of m,
// of the absolute deviation |1 - sum|.
// The result is exactly zero iff every row and column of m sums to one.
// It looks only at sums, so it is not a matrix norm:
// entry signs and magnitudes are otherwise ignored.
func DoublyStochasticError(m mat.Matrix) (float64, error) {
	n, err := SquareDim(m)
	if err != nil {
		return 0, err
	}
	var total KBNSummer
	for _, s := range RowSums(m) {
		total.Add(math.Abs(1 - s))
	}
	for _, s := range ColSums(m) {
		total.Add(math.Abs(1 - s))
	}
	return total.Sum() / float64(2*n), nil
}

// Distance returns the Frobenius norm of a - b.
//
// Use it to compare an approximation against an exact baseline.
func Distance(a, b mat.Matrix) (float64, error) {
	ar, ac := a.Dims()
	br, bc := b.Dims()
	if ar != br || ac != bc {
		return 0, InvalidInputError{
			Rows: br, Cols: bc, Reason: "shape differs from the reference",
		}
	}
	if ar == 0 || ac == 0 {
		return 0, nil
	}
	var d mat.Dense
	d.Sub(a, b)
	return mat.Norm(&d, 2), nil
}
