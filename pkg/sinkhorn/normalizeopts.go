package sinkhorn

import (
	"time"

	"gonum.org/v1/gonum/mat"
)

// DefaultIterations is the conventional fixed iteration count
// for callers that do not choose one.
const DefaultIterations = 10

// NormalizeOpts contains options for the Normalize function.
type NormalizeOpts struct {
	tolerance     *float64
	minIterations *int
	checkFreq     *int
	allowNegative bool
	result        *mat.Dense
	stats         *Stats
}

// NormalizeOpt is one Normalize option.
type NormalizeOpt func(*NormalizeOpts)

// WithTolerance enables early stopping:
// Normalize stops as soon as DoublyStochasticError of the running result
// falls to e or below.
//
// maxIterations stays a hard cap; see Result.Converged for the outcome.
// Without this option, Normalize always runs exactly maxIterations times.
func WithTolerance(e float64) NormalizeOpt {
	return func(o *NormalizeOpts) { o.tolerance = &e }
}

// WithMinIterations tells Normalize not to check for early stopping
// before n iterations have run.  Defaults to the check frequency.
func WithMinIterations(n int) NormalizeOpt {
	return func(o *NormalizeOpts) { o.minIterations = &n }
}

// WithCheckFreq tells Normalize to check for early stopping
// every n iterations (default 1).
//
// Each check costs one extra pass over the matrix.
func WithCheckFreq(n int) NormalizeOpt {
	return func(o *NormalizeOpts) { o.checkFreq = &n }
}

// WithAllowNegative disables the negative-entry precondition check.
//
// Negative entries void the convergence guarantee;
// a sum that turns non-positive still fails with NumericDegeneracyError.
func WithAllowNegative() NormalizeOpt {
	return func(o *NormalizeOpts) { o.allowNegative = true }
}

// WithResultIn tells Normalize to store the result in y
// instead of allocating a new matrix.
//
// y is resized as needed.  Its contents are undefined if Normalize fails.
func WithResultIn(y *mat.Dense) NormalizeOpt {
	return func(o *NormalizeOpts) { o.result = y }
}

// WithStats tells Normalize to populate the given struct
// with run statistics upon completion.
func WithStats(stats *Stats) NormalizeOpt {
	return func(o *NormalizeOpts) { o.stats = stats }
}

// Check is one early-stopping check.
type Check struct {
	Iteration int
	Error     float64
}

// Stats holds statistics of one Normalize run.
type Stats struct {
	Dim          int
	Iterations   int
	Converged    bool
	Checks       []Check
	PrepDuration time.Duration
	IterDuration time.Duration
}
