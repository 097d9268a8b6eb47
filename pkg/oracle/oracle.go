// Package oracle computes exact closest doubly stochastic matrices,
// for use as a baseline against Sinkhorn-Knopp approximations.
package oracle

import (
	"context"
	"fmt"
	"math"

	"github.com/go-faster/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gonum.org/v1/gonum/mat"
	"k3l.io/go-sinkhorn/pkg/sinkhorn"
)

// ErrNotConverged signals that a solver exhausted its iteration budget.
var ErrNotConverged = errors.New("solver did not converge")

var tracer = otel.Tracer("k3l.io/go-sinkhorn/pkg/oracle")

// Solver computes the doubly stochastic matrix closest to x
// in Frobenius norm,
// i.e. the Euclidean projection of x onto the Birkhoff polytope.
type Solver interface {
	Solve(ctx context.Context, x mat.Matrix) (*mat.Dense, error)
}

// SolverFunc adapts an ordinary function into a Solver.
type SolverFunc func(ctx context.Context, x mat.Matrix) (*mat.Dense, error)

// Solve calls f(ctx, x).
func (f SolverFunc) Solve(ctx context.Context, x mat.Matrix) (*mat.Dense, error) {
	return f(ctx, x)
}

// Method names a built-in Solver.
type Method string

const (
	// MethodQP solves the projection as a quadratic program (see QP).
	MethodQP Method = "qp"
	// MethodDykstra uses Dykstra's alternating projections (see Dykstra).
	MethodDykstra Method = "dykstra"
)

// Settings are the limits shared by the built-in solvers.
type Settings struct {
	// MaxIterations caps the solver's major iterations.
	MaxIterations int
	// Tolerance is the solver's stopping threshold.
	Tolerance float64
}

// Opt is one solver option.
type Opt func(*Settings)

// WithMaxIterations sets the iteration cap.
func WithMaxIterations(n int) Opt {
	return func(s *Settings) { s.MaxIterations = n }
}

// WithTolerance sets the stopping threshold.
func WithTolerance(e float64) Opt {
	return func(s *Settings) { s.Tolerance = e }
}

func newSettings(maxIterations int, tolerance float64, opts []Opt) Settings {
	s := Settings{MaxIterations: maxIterations, Tolerance: tolerance}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

// New returns the built-in solver for method.
// Zero maxIterations or tolerance keeps that solver's default.
func New(method Method, maxIterations int, tolerance float64) (Solver, error) {
	var opts []Opt
	if maxIterations != 0 {
		opts = append(opts, WithMaxIterations(maxIterations))
	}
	if tolerance != 0 {
		opts = append(opts, WithTolerance(tolerance))
	}
	switch method {
	case MethodQP, "":
		return NewQP(opts...), nil
	case MethodDykstra:
		return NewDykstra(opts...), nil
	default:
		return nil, sinkhorn.InvalidConfigError{
			Param: "method", Value: string(method),
			Reason: "must be qp or dykstra",
		}
	}
}

// check validates the settings and x, and returns the dimension of x.
func (s Settings) check(x mat.Matrix) (int, error) {
	n, err := sinkhorn.SquareDim(x)
	if err != nil {
		return 0, err
	}
	if s.MaxIterations <= 0 {
		return 0, sinkhorn.InvalidConfigError{
			Param: "maxIterations", Value: s.MaxIterations,
			Reason: "must be positive",
		}
	}
	if !(s.Tolerance > 0) {
		return 0, sinkhorn.InvalidConfigError{
			Param: "tolerance", Value: s.Tolerance, Reason: "must be positive",
		}
	}
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if v := x.At(i, j); math.IsNaN(v) || math.IsInf(v, 0) {
				return 0, sinkhorn.InvalidInputError{
					Rows: n, Cols: n,
					Reason: fmt.Sprintf("non-finite value %v at (%d, %d)",
						v, i, j),
				}
			}
		}
	}
	return n, nil
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
