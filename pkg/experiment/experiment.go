// Package experiment compares Sinkhorn-Knopp normalization against the
// exact closest doubly stochastic matrix over batches of random matrices.
package experiment

import (
	"context"
	"math/rand/v2"
	"runtime"
	"time"

	"github.com/go-faster/errors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
	"k3l.io/go-sinkhorn/pkg/oracle"
	"k3l.io/go-sinkhorn/pkg/sinkhorn"
)

// Config describes one experiment.
type Config struct {
	// MinSize and MaxSize bound the matrix sizes tried, inclusive.
	MinSize int `yaml:"minSize"`
	MaxSize int `yaml:"maxSize"`
	// Trials is the number of random matrices per size.
	Trials int `yaml:"trials"`
	// Iterations is the fixed Sinkhorn-Knopp iteration count.
	Iterations int `yaml:"iterations"`
	// Seed makes runs reproducible.
	Seed uint64 `yaml:"seed"`
	// Low and High bound the uniform entry distribution, [Low, High).
	Low  float64 `yaml:"low"`
	High float64 `yaml:"high"`
	// Parallelism caps concurrent trials; 0 means GOMAXPROCS.
	Parallelism int `yaml:"parallelism"`
}

// DefaultConfig returns the standard batch:
// sizes 2 through 11, ten trials each, ten iterations, entries from U[0, 1).
func DefaultConfig() Config {
	return Config{
		MinSize:    2,
		MaxSize:    11,
		Trials:     10,
		Iterations: sinkhorn.DefaultIterations,
		Seed:       1,
		Low:        0,
		High:       1,
	}
}

// Validate checks c for consistency.
func (c Config) Validate() error {
	switch {
	case c.MinSize <= 0:
		return sinkhorn.InvalidConfigError{
			Param: "minSize", Value: c.MinSize, Reason: "must be positive",
		}
	case c.MaxSize < c.MinSize:
		return sinkhorn.InvalidConfigError{
			Param: "maxSize", Value: c.MaxSize, Reason: "less than minSize",
		}
	case c.Trials <= 0:
		return sinkhorn.InvalidConfigError{
			Param: "trials", Value: c.Trials, Reason: "must be positive",
		}
	case c.Iterations <= 0:
		return sinkhorn.InvalidConfigError{
			Param: "iterations", Value: c.Iterations, Reason: "must be positive",
		}
	case !(c.Low >= 0) || !(c.High > c.Low):
		return sinkhorn.InvalidConfigError{
			Param:  "low/high",
			Value:  [2]float64{c.Low, c.High},
			Reason: "need 0 <= low < high",
		}
	case c.Parallelism < 0:
		return sinkhorn.InvalidConfigError{
			Param: "parallelism", Value: c.Parallelism,
			Reason: "must not be negative",
		}
	}
	return nil
}

// RandomMatrix returns an n-by-n matrix with entries drawn from U[lo, hi),
// using a PCG source seeded with seed and stream.
func RandomMatrix(n int, seed, stream uint64, lo, hi float64) *mat.Dense {
	dist := distuv.Uniform{Min: lo, Max: hi, Src: rand.NewPCG(seed, stream)}
	data := make([]float64, n*n)
	for i := range data {
		data[i] = dist.Rand()
	}
	return mat.NewDense(n, n, data)
}

// Trial is the outcome of one random matrix.
type Trial struct {
	SinkhornError    float64
	SinkhornDistance float64
	OracleError      float64
	OracleDistance   float64
}

func trialStream(size, trial int) uint64 {
	return uint64(size)<<32 | uint64(trial)
}

func runTrial(
	ctx context.Context, cfg Config, size, trial int, solver oracle.Solver,
) (t Trial, err error) {
	x := RandomMatrix(size, cfg.Seed, trialStream(size, trial),
		cfg.Low, cfg.High)
	res, err := sinkhorn.Normalize(ctx, x, cfg.Iterations)
	if err != nil {
		return t, errors.Wrapf(err, "size %d trial %d: normalize", size, trial)
	}
	t.SinkhornError = res.Error
	if t.SinkhornDistance, err = sinkhorn.Distance(x, res.Matrix); err != nil {
		return t, err
	}
	if solver == nil {
		return t, nil
	}
	closest, err := solver.Solve(ctx, x)
	if err != nil {
		return t, errors.Wrapf(err, "size %d trial %d: solve", size, trial)
	}
	if t.OracleError, err = sinkhorn.DoublyStochasticError(closest); err != nil {
		return t, err
	}
	if t.OracleDistance, err = sinkhorn.Distance(x, closest); err != nil {
		return t, err
	}
	return t, nil
}

// Run performs the experiment described by cfg.
// If solver is nil, only Sinkhorn-Knopp results are reported.
func Run(
	ctx context.Context, cfg Config, solver oracle.Solver,
) (*Report, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := zerolog.Ctx(ctx)
	tm0 := time.Now()
	numSizes := cfg.MaxSize - cfg.MinSize + 1
	trials := make([][]Trial, numSizes)
	for i := range trials {
		trials[i] = make([]Trial, cfg.Trials)
	}
	parallelism := cfg.Parallelism
	if parallelism == 0 {
		parallelism = runtime.GOMAXPROCS(0)
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallelism)
	for i := range trials {
		size := cfg.MinSize + i
		for trial := range trials[i] {
			g.Go(func() (err error) {
				trials[i][trial], err = runTrial(gctx, cfg, size, trial, solver)
				return err
			})
		}
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	report := &Report{Config: cfg, HasOracle: solver != nil}
	for i, sizeTrials := range trials {
		summary := summarize(cfg.MinSize+i, sizeTrials)
		logger.Debug().
			Int("size", summary.Size).
			Float64("sinkhornError", summary.SinkhornError).
			Float64("oracleError", summary.OracleError).
			Msg("size finished")
		report.Sizes = append(report.Sizes, summary)
	}
	report.SinkhornError = mean(report.Sizes,
		func(s SizeSummary) float64 { return s.SinkhornError })
	report.OracleError = mean(report.Sizes,
		func(s SizeSummary) float64 { return s.OracleError })
	logger.Debug().
		Int("sizes", numSizes).
		Int("trials", cfg.Trials).
		Bool("oracle", report.HasOracle).
		Dur("dur", time.Since(tm0)).
		Msg("experiment finished")
	return report, nil
}

func summarize(size int, trials []Trial) SizeSummary {
	return SizeSummary{
		Size:             size,
		Trials:           len(trials),
		SinkhornError:    mean(trials, func(t Trial) float64 { return t.SinkhornError }),
		SinkhornDistance: mean(trials, func(t Trial) float64 { return t.SinkhornDistance }),
		OracleError:      mean(trials, func(t Trial) float64 { return t.OracleError }),
		OracleDistance:   mean(trials, func(t Trial) float64 { return t.OracleDistance }),
	}
}

func mean[T any](items []T, f func(T) float64) float64 {
	if len(items) == 0 {
		return 0
	}
	var s sinkhorn.KBNSummer
	for _, item := range items {
		s.Add(f(item))
	}
	return s.Sum() / float64(len(items))
}
