// Package sinkhorn implements Sinkhorn-Knopp doubly stochastic normalization
// and the doubly stochastic error metric.
package sinkhorn

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Result is the outcome of Normalize.
type Result struct {
	// Matrix is the approximately doubly stochastic result.
	Matrix *mat.Dense
	// RowScale and ColScale are the diagonal scale vectors
	// applied in the last iteration.
	RowScale, ColScale *mat.VecDense
	// Iterations is the number of iterations run.
	Iterations int
	// Converged is false only if a tolerance was given and not reached.
	Converged bool
	// Error is DoublyStochasticError(Matrix).
	Error float64
}

// ConvergenceChecker checks a normalization series against a tolerance.
//
// Create one with NewConvergenceChecker, then for each check,
// call Update() followed by Converged() to determine convergence.
type ConvergenceChecker struct {
	iter   int
	d      float64
	e      float64
	logger *zerolog.Logger
}

// NewConvergenceChecker creates a new convergence checker
// with e as the error tolerance.
func NewConvergenceChecker(e float64, logger *zerolog.Logger) ConvergenceChecker {
	return ConvergenceChecker{
		d:      math.Inf(1),
		e:      e,
		logger: logger,
	}
}

// Update updates the checker with the matrix from iteration iter.
func (c *ConvergenceChecker) Update(iter int, y mat.Matrix) error {
	d, err := DoublyStochasticError(y)
	if err != nil {
		return err
	}
	c.logger.Trace().
		Int("iteration", iter).
		Float64("error", d).
		Float64("log10dPace", math.Log10(d/c.d)).
		Float64("log10dRemaining", math.Log10(d/c.e)).
		Msg("convergence check")
	c.iter = iter
	c.d = d
	return nil
}

// Converged returns true iff the last updated matrix is within tolerance.
func (c *ConvergenceChecker) Converged() bool { return c.d <= c.e }

// Deviation returns the error computed as of the last Update call.
func (c *ConvergenceChecker) Deviation() float64 { return c.d }

// Normalize approximates a doubly stochastic matrix from x
// by Sinkhorn-Knopp iteration.
//
// Each iteration divides every row by its sum, then every column by its sum,
// so column sums are one after each iteration
// and row sums approach one as iterations accumulate.
// x is copied and never modified.
//
// Normalize runs exactly maxIterations iterations,
// unless WithTolerance enables early stopping.
//
// x must be square, non-empty and finite, and unless WithAllowNegative is
// given, nonnegative; otherwise Normalize returns InvalidInputError or
// NegativeValueError.  Convergence is guaranteed for strictly positive x.
// If a row or column sum becomes zero, negative or non-finite,
// Normalize aborts with NumericDegeneracyError.
func Normalize(
	ctx context.Context, x mat.Matrix, maxIterations int,
	opts ...NormalizeOpt,
) (res *Result, err error) {
	o := NormalizeOpts{}
	for _, opt := range opts {
		opt(&o)
	}
	r := 0
	if x != nil {
		r, _ = x.Dims()
	}
	ctx, span := startSpan(ctx, "sinkhorn.Normalize",
		attribute.Int("sinkhorn.dim", r),
		attribute.Int("sinkhorn.maxIterations", maxIterations))
	defer func() { endSpan(span, err) }()
	res, err = normalize(ctx, x, maxIterations, &o)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(
		attribute.Int("sinkhorn.iterations", res.Iterations),
		attribute.Float64("sinkhorn.error", res.Error))
	recordRun(ctx, res)
	return res, nil
}

func normalize(
	ctx context.Context, x mat.Matrix, maxIterations int, o *NormalizeOpts,
) (*Result, error) {
	logger := zerolog.Ctx(ctx)
	tm0 := time.Now()
	if maxIterations <= 0 {
		return nil, InvalidConfigError{
			Param: "maxIterations", Value: maxIterations,
			Reason: "must be positive",
		}
	}
	n, err := validateInput(x, o.allowNegative)
	if err != nil {
		return nil, err
	}
	useTolerance := o.tolerance != nil
	tolerance := 0.0
	if useTolerance {
		tolerance = *o.tolerance
		if !(tolerance > 0) || math.IsInf(tolerance, 0) {
			return nil, InvalidConfigError{
				Param: "tolerance", Value: tolerance,
				Reason: "must be positive and finite",
			}
		}
	}
	checkFreq := 1
	if o.checkFreq != nil {
		checkFreq = *o.checkFreq
	}
	if checkFreq < 1 {
		return nil, InvalidConfigError{
			Param: "checkFreq", Value: checkFreq, Reason: "must be positive",
		}
	}
	minIters := checkFreq
	if o.minIterations != nil {
		minIters = *o.minIterations
	}
	if minIters <= 0 {
		return nil, InvalidConfigError{
			Param: "minIterations", Value: minIters,
			Reason: "must be at least 1",
		}
	}
	y := o.result
	if y == nil {
		y = &mat.Dense{}
	}
	y.CloneFrom(x)
	raw := y.RawMatrix()
	row := func(i int) []float64 {
		return raw.Data[i*raw.Stride : i*raw.Stride+n]
	}
	rowScale := make([]float64, n)
	colScale := make([]float64, n)
	colSummers := make([]KBNSummer, n)
	checker := NewConvergenceChecker(tolerance, logger)
	var checks []Check
	converged := !useTolerance
	tm1 := time.Now()
	durPrep, tm0 := tm1.Sub(tm0), tm1
	iter := 0
	for iter < maxIterations {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		// Y' = diag(rowScale) Y
		for i := 0; i < n; i++ {
			if rowScale[i], err = inverseSum(Sum(row(i)), iter, Rows, i); err != nil {
				return nil, err
			}
			floats.Scale(rowScale[i], row(i))
		}
		// Y = Y' diag(colScale)
		for j := range colSummers {
			colSummers[j].Reset()
		}
		for i := 0; i < n; i++ {
			for j, v := range row(i) {
				colSummers[j].Add(v)
			}
		}
		for j := range colSummers {
			if colScale[j], err = inverseSum(colSummers[j].Sum(), iter, Columns, j); err != nil {
				return nil, err
			}
		}
		for i := 0; i < n; i++ {
			floats.Mul(row(i), colScale)
			if !allFinite(row(i)) {
				return nil, NumericDegeneracyError{
					Iteration: iter, Axis: Rows, Index: i, Sum: Sum(row(i)),
				}
			}
		}
		iter++
		if useTolerance && iter >= minIters && (iter-minIters)%checkFreq == 0 {
			if err = checker.Update(iter, y); err != nil {
				return nil, err
			}
			checks = append(checks, Check{
				Iteration: iter, Error: checker.Deviation(),
			})
			if checker.Converged() {
				converged = true
				break
			}
		}
	}
	deviation, err := DoublyStochasticError(y)
	if err != nil {
		return nil, err
	}
	tm1 = time.Now()
	durIter := tm1.Sub(tm0)
	logger.Debug().
		Int("dim", n).
		Int("maxIterations", maxIterations).
		Int("iterations", iter).
		Bool("converged", converged).
		Float64("error", deviation).
		Dur("durPrep", durPrep).
		Dur("durIter", durIter).
		Msg("finished")
	if !converged {
		logger.Warn().
			Int("iterations", iter).
			Float64("error", deviation).
			Float64("tolerance", tolerance).
			Msg("tolerance not reached within maxIterations")
	}
	if o.stats != nil {
		*o.stats = Stats{
			Dim:          n,
			Iterations:   iter,
			Converged:    converged,
			Checks:       checks,
			PrepDuration: durPrep,
			IterDuration: durIter,
		}
	}
	return &Result{
		Matrix:     y,
		RowScale:   mat.NewVecDense(n, rowScale),
		ColScale:   mat.NewVecDense(n, colScale),
		Iterations: iter,
		Converged:  converged,
		Error:      deviation,
	}, nil
}

// validateInput checks Normalize preconditions and returns the dimension.
func validateInput(x mat.Matrix, allowNegative bool) (int, error) {
	n, err := SquareDim(x)
	if err != nil {
		return 0, err
	}
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			v := x.At(i, j)
			switch {
			case math.IsNaN(v) || math.IsInf(v, 0):
				return 0, InvalidInputError{
					Rows: n, Cols: n,
					Reason: fmt.Sprintf("non-finite value %v at (%d, %d)",
						v, i, j),
				}
			case v < 0 && !allowNegative:
				return 0, NegativeValueError{Row: i, Col: j, Value: v}
			}
		}
	}
	return n, nil
}

// inverseSum returns 1/s, or an error if s cannot serve as a scale divisor.
func inverseSum(s float64, iter int, axis Axis, index int) (float64, error) {
	if s > 0 && !math.IsInf(s, 0) {
		if scale := 1 / s; !math.IsInf(scale, 0) {
			return scale, nil
		}
	}
	return 0, NumericDegeneracyError{
		Iteration: iter, Axis: axis, Index: index, Sum: s,
	}
}

func allFinite(values []float64) bool {
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
