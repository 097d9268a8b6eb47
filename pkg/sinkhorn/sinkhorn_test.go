package sinkhorn

import (
	"bytes"
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// uniformMatrix returns an n x n matrix drawn from U[lo, hi).
func uniformMatrix(n int, seed uint64, lo, hi float64) *mat.Dense {
	dist := distuv.Uniform{Min: lo, Max: hi, Src: rand.NewPCG(seed, seed)}
	data := make([]float64, n*n)
	for i := range data {
		data[i] = dist.Rand()
	}
	return mat.NewDense(n, n, data)
}

// slowMatrix converges very slowly: its cross ratio is 1e6.
func slowMatrix() *mat.Dense {
	return mat.NewDense(2, 2, []float64{1, 1e-3, 1e-3, 1})
}

func TestNormalize_AllOnes(t *testing.T) {
	tests := []struct {
		name          string
		maxIterations int
		colScale      []float64
	}{
		// row normalization already yields the fixed point
		{"OneIteration", 1, []float64{1, 1}},
		{"FiveIterations", 5, []float64{1, 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			x := mat.NewDense(2, 2, []float64{1, 1, 1, 1})
			res, err := Normalize(context.Background(), x, tt.maxIterations)
			require.NoError(t, err)
			assert.Equal(t, []float64{0.5, 0.5, 0.5, 0.5},
				res.Matrix.RawMatrix().Data)
			assert.Equal(t, tt.colScale, res.ColScale.RawVector().Data)
			assert.Equal(t, tt.maxIterations, res.Iterations)
			assert.True(t, res.Converged)
			assert.Equal(t, 0.0, res.Error)
		})
	}
}

func TestNormalize_AllOnesFirstRowScale(t *testing.T) {
	x := mat.NewDense(2, 2, []float64{1, 1, 1, 1})
	res, err := Normalize(context.Background(), x, 1)
	require.NoError(t, err)
	assert.Equal(t, []float64{0.5, 0.5}, res.RowScale.RawVector().Data)
}

func TestNormalize_IdentityIsFixedPoint(t *testing.T) {
	x := mat.NewDiagDense(3, []float64{1, 1, 1})
	for _, iters := range []int{1, 2, 10, 50} {
		res, err := Normalize(context.Background(), x, iters)
		require.NoError(t, err)
		for i := 0; i < 3; i++ {
			for j := 0; j < 3; j++ {
				assert.InDelta(t, x.At(i, j), res.Matrix.At(i, j), 1e-9,
					"iters=%d (%d, %d)", iters, i, j)
			}
		}
		assert.Equal(t, 0.0, res.Error)
	}
}

func TestNormalize_DoublyStochasticIsStable(t *testing.T) {
	x, err := Normalize(context.Background(), uniformMatrix(4, 7, 0.5, 1.5), 100)
	require.NoError(t, err)
	res, err := Normalize(context.Background(), x.Matrix, 25)
	require.NoError(t, err)
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			assert.InDelta(t, x.Matrix.At(i, j), res.Matrix.At(i, j), 1e-9)
		}
	}
}

func TestNormalize_DoesNotMutateInput(t *testing.T) {
	x := uniformMatrix(5, 1, 0, 1)
	orig := mat.DenseCopyOf(x)
	res, err := Normalize(context.Background(), x, 10)
	require.NoError(t, err)
	assert.True(t, mat.Equal(orig, x))
	assert.NotSame(t, x, res.Matrix)
}

func TestNormalize_PositiveStaysPositive(t *testing.T) {
	for n := 2; n <= 11; n++ {
		x := uniformMatrix(n, uint64(n), 1e-3, 1)
		res, err := Normalize(context.Background(), x, 10)
		require.NoError(t, err)
		for _, v := range res.Matrix.RawMatrix().Data {
			assert.Greater(t, v, 0.0, "n=%d", n)
		}
		for _, s := range ColSums(res.Matrix) {
			assert.InDelta(t, 1, s, 1e-12, "n=%d", n)
		}
	}
}

func TestNormalize_ErrorShrinksWithIterations(t *testing.T) {
	for seed := uint64(0); seed < 10; seed++ {
		x := uniformMatrix(6, seed, 0.5, 1.5)
		one, err := Normalize(context.Background(), x, 1)
		require.NoError(t, err)
		twenty, err := Normalize(context.Background(), x, 20)
		require.NoError(t, err)
		assert.LessOrEqual(t, twenty.Error, one.Error, "seed=%d", seed)
	}
}

func TestNormalize_RandomTrials(t *testing.T) {
	const trials = 10
	for n := 2; n <= 11; n++ {
		var total float64
		for trial := 0; trial < trials; trial++ {
			x := uniformMatrix(n, uint64(100*n+trial), 0.5, 1.5)
			res, err := Normalize(context.Background(), x, 10)
			require.NoError(t, err)
			total += res.Error
		}
		assert.Less(t, total/trials, 1e-4, "n=%d", n)
	}
}

func TestNormalize_Degeneracy(t *testing.T) {
	tests := []struct {
		name string
		x    *mat.Dense
		want NumericDegeneracyError
	}{
		{
			"ZeroRow",
			mat.NewDense(2, 2, []float64{0, 0, 1, 1}),
			NumericDegeneracyError{Iteration: 0, Axis: Rows, Index: 0, Sum: 0},
		},
		{
			"ZeroColumn",
			mat.NewDense(2, 2, []float64{1, 0, 1, 0}),
			NumericDegeneracyError{Iteration: 0, Axis: Columns, Index: 1, Sum: 0},
		},
		{
			"AllZero",
			mat.NewDense(3, 3, nil),
			NumericDegeneracyError{Iteration: 0, Axis: Rows, Index: 0, Sum: 0},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := Normalize(context.Background(), tt.x, 10)
			assert.Nil(t, res)
			var got NumericDegeneracyError
			require.True(t, errors.As(err, &got), "got %v", err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalize_NegativeSumDegeneracy(t *testing.T) {
	// rows sum to 1 and 3; after row scaling the second column sums negative
	x := mat.NewDense(2, 2, []float64{2, -1, 1, 2})
	_, err := Normalize(context.Background(), x, 1, WithAllowNegative())
	var got NumericDegeneracyError
	require.True(t, errors.As(err, &got), "got %v", err)
	assert.Equal(t, Columns, got.Axis)
	assert.Equal(t, 1, got.Index)
	assert.Less(t, got.Sum, 0.0)
}

func TestNormalize_InvalidInput(t *testing.T) {
	tests := []struct {
		name      string
		x         mat.Matrix
		opts      []NormalizeOpt
		wantInput bool
		wantNeg   bool
	}{
		{name: "NotSquare", x: mat.NewDense(2, 3, nil), wantInput: true},
		{name: "Empty", x: &mat.Dense{}, wantInput: true},
		{
			name:      "NaN",
			x:         mat.NewDense(2, 2, []float64{1, math.NaN(), 1, 1}),
			wantInput: true,
		},
		{
			name:      "Inf",
			x:         mat.NewDense(2, 2, []float64{1, 1, math.Inf(1), 1}),
			wantInput: true,
		},
		{
			name:    "Negative",
			x:       mat.NewDense(2, 2, []float64{3, -1, 1, 3}),
			wantNeg: true,
		},
		{
			name: "NegativeAllowed",
			x:    mat.NewDense(2, 2, []float64{3, -1, 1, 3}),
			opts: []NormalizeOpt{WithAllowNegative()},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Normalize(context.Background(), tt.x, 1, tt.opts...)
			var inputErr InvalidInputError
			var negErr NegativeValueError
			assert.Equal(t, tt.wantInput, errors.As(err, &inputErr), "got %v", err)
			assert.Equal(t, tt.wantNeg, errors.As(err, &negErr), "got %v", err)
			if !tt.wantInput && !tt.wantNeg {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNormalize_InvalidConfig(t *testing.T) {
	x := mat.NewDense(2, 2, []float64{1, 2, 3, 4})
	tests := []struct {
		name          string
		maxIterations int
		opts          []NormalizeOpt
		param         string
	}{
		{"ZeroIterations", 0, nil, "maxIterations"},
		{"NegativeIterations", -3, nil, "maxIterations"},
		{"ZeroTolerance", 10, []NormalizeOpt{WithTolerance(0)}, "tolerance"},
		{"NaNTolerance", 10, []NormalizeOpt{WithTolerance(math.NaN())}, "tolerance"},
		{"ZeroCheckFreq", 10, []NormalizeOpt{WithCheckFreq(0)}, "checkFreq"},
		{"ZeroMinIterations", 10, []NormalizeOpt{WithMinIterations(0)}, "minIterations"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Normalize(context.Background(), x, tt.maxIterations,
				tt.opts...)
			var configErr InvalidConfigError
			require.True(t, errors.As(err, &configErr), "got %v", err)
			assert.Equal(t, tt.param, configErr.Param)
		})
	}
}

func TestNormalize_Tolerance(t *testing.T) {
	x := uniformMatrix(5, 3, 0.5, 1.5)
	var stats Stats
	res, err := Normalize(context.Background(), x, 1000,
		WithTolerance(1e-10), WithStats(&stats))
	require.NoError(t, err)
	assert.True(t, res.Converged)
	assert.Less(t, res.Iterations, 1000)
	assert.LessOrEqual(t, res.Error, 1e-10)
	assert.Equal(t, 5, stats.Dim)
	assert.Equal(t, res.Iterations, stats.Iterations)
	assert.True(t, stats.Converged)
	require.Len(t, stats.Checks, res.Iterations)
	last := stats.Checks[len(stats.Checks)-1]
	assert.Equal(t, res.Iterations, last.Iteration)
	assert.Equal(t, res.Error, last.Error)
}

func TestNormalize_ToleranceNotReached(t *testing.T) {
	res, err := Normalize(context.Background(), slowMatrix(), 3,
		WithTolerance(1e-12))
	require.NoError(t, err)
	assert.False(t, res.Converged)
	assert.Equal(t, 3, res.Iterations)
	assert.Greater(t, res.Error, 1e-12)
}

func TestNormalize_CheckCadence(t *testing.T) {
	var stats Stats
	_, err := Normalize(context.Background(), slowMatrix(), 22,
		WithTolerance(1e-12), WithMinIterations(10), WithCheckFreq(5),
		WithStats(&stats))
	require.NoError(t, err)
	var iters []int
	for _, c := range stats.Checks {
		iters = append(iters, c.Iteration)
	}
	assert.Equal(t, []int{10, 15, 20}, iters)
	assert.Equal(t, 22, stats.Iterations)
}

func TestNormalize_ResultIn(t *testing.T) {
	var y mat.Dense
	x := mat.NewDense(2, 2, []float64{1, 2, 3, 4})
	res, err := Normalize(context.Background(), x, 10, WithResultIn(&y))
	require.NoError(t, err)
	assert.Same(t, &y, res.Matrix)
	r, c := y.Dims()
	assert.Equal(t, 2, r)
	assert.Equal(t, 2, c)
}

func TestNormalize_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Normalize(ctx, mat.NewDense(2, 2, []float64{1, 2, 3, 4}), 10)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNormalize_LogsCompletion(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf).Level(zerolog.DebugLevel)
	ctx := logger.WithContext(context.Background())
	_, err := Normalize(ctx, slowMatrix(), 2, WithTolerance(1e-12))
	require.NoError(t, err)
	assert.Contains(t, buf.String(), `"message":"finished"`)
	assert.Contains(t, buf.String(), `"level":"warn"`)
}
