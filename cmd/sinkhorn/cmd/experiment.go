package cmd

import (
	"github.com/spf13/cobra"
	"k3l.io/go-sinkhorn/pkg/experiment"
	"k3l.io/go-sinkhorn/pkg/oracle"
)

var (
	experimentCmd = &cobra.Command{
		Use:   "experiment",
		Short: "Compare Sinkhorn-Knopp with the exact closest matrix.",
		Long: `Normalize batches of random matrices of each size with a fixed
iteration count, optionally find their exact closest doubly stochastic
matrices, and report per-size mean errors and distances as JSON.`,
		Args: cobra.NoArgs,
		RunE: runExperiment,
	}
	experimentFlags    experiment.Config
	withOracle         bool
	experimentFilename string
)

func runExperiment(cmd *cobra.Command, _ []string) error {
	ctx := commandContext(cmd)
	c := cfg.Experiment
	c.MinSize = pick(cmd, "min-size", experimentFlags.MinSize, c.MinSize)
	c.MaxSize = pick(cmd, "max-size", experimentFlags.MaxSize, c.MaxSize)
	c.Trials = pick(cmd, "trials", experimentFlags.Trials, c.Trials)
	c.Iterations = pick(cmd, "iterations",
		experimentFlags.Iterations, c.Iterations)
	c.Seed = pick(cmd, "seed", experimentFlags.Seed, c.Seed)
	c.Low = pick(cmd, "low", experimentFlags.Low, c.Low)
	c.High = pick(cmd, "high", experimentFlags.High, c.High)
	c.Parallelism = pick(cmd, "parallelism",
		experimentFlags.Parallelism, c.Parallelism)
	var solver oracle.Solver
	if withOracle {
		var err error
		if solver, err = newSolver(cmd); err != nil {
			return err
		}
	}
	report, err := experiment.Run(ctx, c, solver)
	if err != nil {
		logger.Err(err).Msg("experiment failed")
		return err
	}
	logger.Info().
		Float64("sinkhornError", report.SinkhornError).
		Float64("oracleError", report.OracleError).
		Msg("experiment finished")
	file, err := storage.Create(ctx, experimentFilename)
	if err != nil {
		logger.Err(err).Msg("cannot open report file")
		return err
	}
	if err = report.WriteJSON(file); err != nil {
		_ = file.Close()
		return err
	}
	return file.Close()
}

func init() {
	rootCmd.AddCommand(experimentCmd)
	d := experiment.DefaultConfig()
	f := experimentCmd.Flags()
	f.IntVar(&experimentFlags.MinSize, "min-size", d.MinSize,
		`Smallest matrix size.`)
	f.IntVar(&experimentFlags.MaxSize, "max-size", d.MaxSize,
		`Largest matrix size.`)
	f.IntVar(&experimentFlags.Trials, "trials", d.Trials,
		`Random matrices per size.`)
	f.IntVarP(&experimentFlags.Iterations, "iterations", "n", d.Iterations,
		`Sinkhorn-Knopp iterations per matrix.`)
	f.Uint64Var(&experimentFlags.Seed, "seed", d.Seed,
		`Random seed.`)
	f.Float64Var(&experimentFlags.Low, "low", d.Low,
		`Lower bound (inclusive) of the uniform entry distribution.`)
	f.Float64Var(&experimentFlags.High, "high", d.High,
		`Upper bound (exclusive) of the uniform entry distribution.`)
	f.IntVar(&experimentFlags.Parallelism, "parallelism", 0,
		`Concurrent trials; 0 (default) uses GOMAXPROCS.`)
	f.BoolVar(&withOracle, "oracle", true,
		`Also find the exact closest doubly stochastic matrices.`)
	f.StringVarP(&experimentFilename, "output", "o", "-",
		`Report output URI (JSON).
"" suppresses output; "-" (default) uses standard output`)
	addOracleFlags(experimentCmd)
}
