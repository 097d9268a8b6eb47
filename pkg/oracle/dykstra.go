package oracle

import (
	"context"
	"math"
	"time"

	"github.com/go-faster/errors"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"gonum.org/v1/gonum/mat"
	"k3l.io/go-sinkhorn/pkg/sinkhorn"
)

const (
	// DefaultDykstraMaxIterations is the default Dykstra iteration cap.
	DefaultDykstraMaxIterations = 100000
	// DefaultDykstraTolerance is the default Dykstra stopping threshold.
	DefaultDykstraTolerance = 1e-10
)

// Dykstra projects onto the Birkhoff polytope
// with Dykstra's alternating projection algorithm.
//
// The polytope is the intersection of the affine set of matrices whose rows
// and columns all sum to one, which has a closed-form projection,
// and the nonnegative orthant, projected onto by clipping.
// Unlike plain alternating projection, Dykstra's correction term makes the
// iterates converge to the nearest point of the intersection,
// not just to some point in it.
//
// Iteration stops when both the change between successive iterates and the
// gap between the two sets' iterates fall to Tolerance (Frobenius norm).
type Dykstra struct {
	Settings
}

// NewDykstra returns a Dykstra solver with default settings
// modified by the given options.
func NewDykstra(opts ...Opt) *Dykstra {
	return &Dykstra{newSettings(
		DefaultDykstraMaxIterations, DefaultDykstraTolerance, opts)}
}

// Solve returns the projection of x onto the Birkhoff polytope.
//
// The result is nonnegative;
// its row and column sums are one to within about Tolerance.
func (d *Dykstra) Solve(
	ctx context.Context, x mat.Matrix,
) (res *mat.Dense, err error) {
	ctx, span := tracer.Start(ctx, "oracle.Dykstra.Solve")
	defer func() { endSpan(span, err) }()
	n, err := d.check(x)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int("oracle.dim", n))
	logger := zerolog.Ctx(ctx)
	tm0 := time.Now()
	var (
		cur  = mat.DenseCopyOf(x)      // iterate in the orthant
		prev = mat.NewDense(n, n, nil) // previous cur
		aff  = mat.NewDense(n, n, nil) // iterate in the affine set
		corr = mat.NewDense(n, n, nil) // Dykstra correction for the orthant
		work = mat.NewDense(n, n, nil)
	)
	// The affine set needs no correction term:
	// its correction always lies in the set's normal space,
	// which its projection annihilates.
	for iter := 1; iter <= d.MaxIterations; iter++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		prev.Copy(cur)
		projectAffine(aff, cur)
		work.Add(aff, corr)
		cur.Apply(clipNegative, work)
		corr.Sub(work, cur)
		work.Sub(cur, prev)
		change := mat.Norm(work, 2)
		work.Sub(cur, aff)
		gap := mat.Norm(work, 2)
		if change <= d.Tolerance && gap <= d.Tolerance {
			logger.Debug().
				Int("dim", n).
				Int("iterations", iter).
				Float64("change", change).
				Float64("gap", gap).
				Dur("dur", time.Since(tm0)).
				Msg("finished")
			span.SetAttributes(attribute.Int("oracle.iterations", iter))
			return cur, nil
		}
	}
	return nil, errors.Wrapf(ErrNotConverged,
		"Dykstra projection after %d iterations", d.MaxIterations)
}

func clipNegative(_, _ int, v float64) float64 { return math.Max(v, 0) }

// projectAffine stores in dst the projection of m onto the affine set
// of square matrices whose rows and columns all sum to one.
//
// With row sums r, column sums c and total s,
// dst[i,j] = m[i,j] + 1/n - r[i]/n - c[j]/n + s/n².
func projectAffine(dst *mat.Dense, m mat.Matrix) {
	n, _ := m.Dims()
	fn := float64(n)
	rows := sinkhorn.RowSums(m)
	cols := sinkhorn.ColSums(m)
	total := sinkhorn.Sum(rows)
	base := 1/fn + total/(fn*fn)
	dst.Apply(func(i, j int, v float64) float64 {
		return v + base - rows[i]/fn - cols[j]/fn
	}, m)
}

var _ Solver = (*Dykstra)(nil)
