package oracle

import (
	"context"
	"math"
	"time"

	"github.com/go-faster/errors"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"
	"k3l.io/go-sinkhorn/pkg/sinkhorn"
)

const (
	// DefaultQPMaxIterations is the default QP iteration cap.
	DefaultQPMaxIterations = 10000
	// DefaultQPTolerance is the default bound on the largest
	// row or column sum deviation of a QP solution.
	DefaultQPTolerance = 1e-9
)

// QP solves the projection onto the Birkhoff polytope
// as the quadratic program
//
//	minimize ½‖Y − X‖²  subject to  Y1 = 1, Yᵀ1 = 1, Y ≥ 0
//
// through its Lagrange dual.
// With multipliers u for the row sums and v for the column sums,
// the minimizer for fixed (u, v) is Y[i,j] = max(0, X[i,j] + u[i] + v[j]),
// and the dual objective
//
//	½ Σ Y[i,j]² − Σ u − Σ v
//
// is convex and continuously differentiable.
// Its gradient is the vector of row and column sums of Y minus one,
// so driving it to zero makes Y feasible; L-BFGS does the minimizing.
//
// Solve succeeds once every row and column sum is within Tolerance of one.
// The result is nonnegative by construction.
type QP struct {
	Settings
}

// NewQP returns a QP solver with default settings
// modified by the given options.
func NewQP(opts ...Opt) *QP {
	return &QP{newSettings(DefaultQPMaxIterations, DefaultQPTolerance, opts)}
}

// Solve returns the projection of x onto the Birkhoff polytope.
func (q *QP) Solve(
	ctx context.Context, x mat.Matrix,
) (res *mat.Dense, err error) {
	ctx, span := tracer.Start(ctx, "oracle.QP.Solve")
	defer func() { endSpan(span, err) }()
	n, err := q.check(x)
	if err != nil {
		return nil, err
	}
	if err = ctx.Err(); err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int("oracle.dim", n))
	logger := zerolog.Ctx(ctx)
	tm0 := time.Now()
	xd := mat.DenseCopyOf(x)
	y := mat.NewDense(n, n, nil)
	primal := func(w []float64) {
		u, v := w[:n], w[n:]
		y.Apply(func(i, j int, xv float64) float64 {
			return math.Max(0, xv+u[i]+v[j])
		}, xd)
	}
	problem := optimize.Problem{
		Func: func(w []float64) float64 {
			primal(w)
			var f sinkhorn.KBNSummer
			for _, yv := range y.RawMatrix().Data {
				f.Add(yv * yv / 2)
			}
			for _, wv := range w {
				f.Add(-wv)
			}
			return f.Sum()
		},
		Grad: func(grad, w []float64) {
			primal(w)
			residuals(grad, y)
		},
		Status: func() (optimize.Status, error) {
			if err := ctx.Err(); err != nil {
				return optimize.Failure, err
			}
			return optimize.NotTerminated, nil
		},
	}
	result, err := optimize.Minimize(problem, dualStart(xd), &optimize.Settings{
		GradientThreshold: q.Tolerance,
		MajorIterations:   q.MaxIterations,
		Converger:         optimize.NeverTerminate{},
	}, &optimize.LBFGS{})
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	if result == nil {
		return nil, errors.Wrap(err, "cannot set up QP")
	}
	// A line search can give up short of the threshold yet
	// at a point whose sums are already within tolerance.
	primal(result.X)
	grad := make([]float64, 2*n)
	residuals(grad, y)
	residual := 0.0
	for _, g := range grad {
		residual = math.Max(residual, math.Abs(g))
	}
	if residual > q.Tolerance {
		if err != nil {
			return nil, errors.Wrapf(ErrNotConverged,
				"QP after %d iterations (%v, residual %g): %v",
				result.MajorIterations, result.Status, residual, err)
		}
		return nil, errors.Wrapf(ErrNotConverged,
			"QP after %d iterations (%v, residual %g)",
			result.MajorIterations, result.Status, residual)
	}
	logger.Debug().
		Int("dim", n).
		Int("iterations", result.MajorIterations).
		Int("funcEvaluations", result.FuncEvaluations).
		Str("status", result.Status.String()).
		Float64("residual", residual).
		Dur("dur", time.Since(tm0)).
		Msg("finished")
	span.SetAttributes(
		attribute.Int("oracle.iterations", result.MajorIterations))
	return y, nil
}

// residuals stores in dst the row sums of y minus one,
// followed by the column sums of y minus one.
func residuals(dst []float64, y mat.Matrix) {
	n, _ := y.Dims()
	for i, s := range sinkhorn.RowSums(y) {
		dst[i] = s - 1
	}
	for j, s := range sinkhorn.ColSums(y) {
		dst[n+j] = s - 1
	}
}

// dualStart returns multipliers whose Y is the projection of x onto the
// affine set of unit row and column sums, before clipping.
// They are optimal whenever that projection is already nonnegative.
func dualStart(x mat.Matrix) []float64 {
	n, _ := x.Dims()
	fn := float64(n)
	rows := sinkhorn.RowSums(x)
	cols := sinkhorn.ColSums(x)
	half := sinkhorn.Sum(rows) / (2 * fn * fn)
	w := make([]float64, 2*n)
	for i, r := range rows {
		w[i] = (1-r)/fn + half
	}
	for j, c := range cols {
		w[n+j] = -c/fn + half
	}
	return w
}

var _ Solver = (*QP)(nil)
