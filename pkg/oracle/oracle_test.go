package oracle

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
	"k3l.io/go-sinkhorn/pkg/sinkhorn"
)

func uniformMatrix(n int, seed uint64, lo, hi float64) *mat.Dense {
	dist := distuv.Uniform{Min: lo, Max: hi, Src: rand.NewPCG(seed, seed)}
	data := make([]float64, n*n)
	for i := range data {
		data[i] = dist.Rand()
	}
	return mat.NewDense(n, n, data)
}

var solvers = []struct {
	name string
	new  func(opts ...Opt) Solver
}{
	{"Dykstra", func(opts ...Opt) Solver { return NewDykstra(opts...) }},
	{"QP", func(opts ...Opt) Solver { return NewQP(opts...) }},
}

func TestSolvers_KnownProjections(t *testing.T) {
	tests := []struct {
		name string
		x    *mat.Dense
		want []float64
	}{
		{
			name: "AlreadyDoublyStochastic",
			x:    mat.NewDense(2, 2, []float64{0.25, 0.75, 0.75, 0.25}),
			want: []float64{0.25, 0.75, 0.75, 0.25},
		},
		{
			name: "AffineProjectionIsNonnegative",
			x:    mat.NewDense(2, 2, []float64{1, 2, 3, 4}),
			want: []float64{0.5, 0.5, 0.5, 0.5},
		},
		{
			name: "Ones",
			x:    mat.NewDense(2, 2, []float64{1, 1, 1, 1}),
			want: []float64{0.5, 0.5, 0.5, 0.5},
		},
		{
			// closest point is a vertex of the polytope
			name: "ClippedToIdentity",
			x:    mat.NewDense(2, 2, []float64{2, -1, -1, 2}),
			want: []float64{1, 0, 0, 1},
		},
	}
	for _, solver := range solvers {
		for _, tt := range tests {
			t.Run(solver.name+"/"+tt.name, func(t *testing.T) {
				got, err := solver.new().Solve(context.Background(), tt.x)
				require.NoError(t, err)
				assert.InDeltaSlice(t, tt.want, got.RawMatrix().Data, 1e-7)
			})
		}
	}
}

func TestDykstra_RandomIsFeasible(t *testing.T) {
	ctx := context.Background()
	for n := 2; n <= 8; n++ {
		x := uniformMatrix(n, uint64(n), 0, 1)
		got, err := NewDykstra().Solve(ctx, x)
		require.NoError(t, err, "n=%d", n)
		for _, v := range got.RawMatrix().Data {
			assert.GreaterOrEqual(t, v, 0.0)
		}
		e, err := sinkhorn.DoublyStochasticError(got)
		require.NoError(t, err)
		assert.Less(t, e, 1e-6, "n=%d", n)
	}
}

func TestDykstra_NoFartherThanSinkhorn(t *testing.T) {
	ctx := context.Background()
	for n := 2; n <= 8; n++ {
		x := uniformMatrix(n, 100+uint64(n), 0.5, 1.5)
		closest, err := NewDykstra().Solve(ctx, x)
		require.NoError(t, err)
		res, err := sinkhorn.Normalize(ctx, x, 100)
		require.NoError(t, err)
		dOracle, err := sinkhorn.Distance(x, closest)
		require.NoError(t, err)
		dSinkhorn, err := sinkhorn.Distance(x, res.Matrix)
		require.NoError(t, err)
		assert.LessOrEqual(t, dOracle, dSinkhorn+1e-6, "n=%d", n)
	}
}

func TestDykstra_NotConverged(t *testing.T) {
	x := mat.NewDense(2, 2, []float64{2, -1, -1, 2})
	_, err := NewDykstra(WithMaxIterations(3)).Solve(context.Background(), x)
	assert.True(t, errors.Is(err, ErrNotConverged), "got %v", err)
}

func TestSolvers_Invalid(t *testing.T) {
	tests := []struct {
		name      string
		x         mat.Matrix
		opts      []Opt
		inputErr  bool
		configErr bool
	}{
		{name: "NotSquare", x: mat.NewDense(2, 3, nil), inputErr: true},
		{name: "Nil", x: nil, inputErr: true},
		{
			name:     "NaN",
			x:        mat.NewDense(2, 2, []float64{1, math.NaN(), 1, 1}),
			inputErr: true,
		},
		{
			name:      "ZeroIterations",
			x:         mat.NewDense(2, 2, nil),
			opts:      []Opt{WithMaxIterations(0)},
			configErr: true,
		},
		{
			name:      "ZeroTolerance",
			x:         mat.NewDense(2, 2, nil),
			opts:      []Opt{WithTolerance(0)},
			configErr: true,
		},
	}
	for _, solver := range solvers {
		for _, tt := range tests {
			t.Run(solver.name+"/"+tt.name, func(t *testing.T) {
				_, err := solver.new(tt.opts...).Solve(context.Background(), tt.x)
				var inputErr sinkhorn.InvalidInputError
				var configErr sinkhorn.InvalidConfigError
				assert.Equal(t, tt.inputErr, errors.As(err, &inputErr), "got %v", err)
				assert.Equal(t, tt.configErr, errors.As(err, &configErr), "got %v", err)
			})
		}
	}
}

func TestSolvers_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	for _, solver := range solvers {
		t.Run(solver.name, func(t *testing.T) {
			_, err := solver.new().Solve(ctx,
				mat.NewDense(2, 2, []float64{1, 2, 3, 4}))
			assert.ErrorIs(t, err, context.Canceled)
		})
	}
}

func TestSolverFunc(t *testing.T) {
	called := false
	var s Solver = SolverFunc(
		func(ctx context.Context, x mat.Matrix) (*mat.Dense, error) {
			called = true
			return mat.DenseCopyOf(x), nil
		})
	got, err := s.Solve(context.Background(), mat.NewDiagDense(2, []float64{1, 1}))
	require.NoError(t, err)
	assert.True(t, called)
	assert.Equal(t, []float64{1, 0, 0, 1}, got.RawMatrix().Data)
}
