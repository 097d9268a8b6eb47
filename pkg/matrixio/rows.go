package matrixio

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
	"k3l.io/go-sinkhorn/pkg/sinkhorn"
)

// FromRows builds a matrix from row slices.
// Rows must be non-empty and all of the same length.
func FromRows(rows [][]float64) (*mat.Dense, error) {
	if len(rows) == 0 || len(rows[0]) == 0 {
		return nil, sinkhorn.InvalidInputError{
			Rows: len(rows), Reason: "empty matrix",
		}
	}
	cols := len(rows[0])
	data := make([]float64, 0, len(rows)*cols)
	for i, row := range rows {
		if len(row) != cols {
			return nil, sinkhorn.InvalidInputError{
				Rows: len(rows), Cols: cols,
				Reason: fmt.Sprintf("row %d has %d columns", i, len(row)),
			}
		}
		data = append(data, row...)
	}
	return mat.NewDense(len(rows), cols, data), nil
}

// ToRows copies m into row slices.
func ToRows(m mat.Matrix) [][]float64 {
	r, c := m.Dims()
	rows := make([][]float64, r)
	for i := range rows {
		rows[i] = make([]float64, c)
		mat.Row(rows[i], i, m)
	}
	return rows
}
