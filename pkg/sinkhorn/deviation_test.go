package sinkhorn

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestDoublyStochasticError(t *testing.T) {
	tests := []struct {
		name    string
		m       mat.Matrix
		want    float64
		wantErr bool
	}{
		{
			name: "Halves",
			m:    mat.NewDense(2, 2, []float64{0.5, 0.5, 0.5, 0.5}),
			want: 0,
		},
		{
			name: "Identity",
			m:    mat.NewDiagDense(3, []float64{1, 1, 1}),
			want: 0,
		},
		{
			name: "Permutation",
			m: mat.NewDense(3, 3, []float64{
				0, 1, 0,
				0, 0, 1,
				1, 0, 0,
			}),
			want: 0,
		},
		{
			name: "Ones",
			// every sum is 2
			m:    mat.NewDense(2, 2, []float64{1, 1, 1, 1}),
			want: 1,
		},
		{
			name: "HalfEmpty",
			// row sums 1, 0; column sums 1, 0
			m:    mat.NewDense(2, 2, []float64{1, 0, 0, 0}),
			want: 0.5,
		},
		{
			name: "RowsOnly",
			// rows sum to 1, columns to 1.5 and 0.5
			m:    mat.NewDense(2, 2, []float64{0.75, 0.25, 0.75, 0.25}),
			want: 0.25,
		},
		{
			name:    "NotSquare",
			m:       mat.NewDense(2, 3, nil),
			wantErr: true,
		},
		{
			name:    "Empty",
			m:       &mat.Dense{},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DoublyStochasticError(tt.m)
			if tt.wantErr {
				var inputErr InvalidInputError
				assert.True(t, errors.As(err, &inputErr), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDistance(t *testing.T) {
	identity := mat.NewDiagDense(2, []float64{1, 1})
	zero := mat.NewDense(2, 2, nil)
	got, err := Distance(identity, zero)
	require.NoError(t, err)
	assert.InDelta(t, math.Sqrt2, got, 1e-15)

	got, err = Distance(identity, identity)
	require.NoError(t, err)
	assert.Equal(t, 0.0, got)

	_, err = Distance(identity, mat.NewDense(3, 3, nil))
	var inputErr InvalidInputError
	assert.True(t, errors.As(err, &inputErr))
}
