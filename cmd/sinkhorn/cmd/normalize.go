package cmd

import (
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/spf13/cobra"
	"k3l.io/go-sinkhorn/pkg/matrixio"
	"k3l.io/go-sinkhorn/pkg/sinkhorn"
)

var (
	normalizeCmd = &cobra.Command{
		Use:   "normalize",
		Short: "Scale a matrix toward doubly stochastic form.",
		Long: `Scale a nonnegative square matrix toward doubly stochastic form
with the Sinkhorn-Knopp algorithm.

By default exactly --iterations iterations are run.
A positive --tolerance stops early once the doubly stochastic error
falls to the tolerance.`,
		Args: cobra.NoArgs,
		RunE: runNormalize,
	}
	inputURI      string
	outputURI     string
	inputFormat   string
	maxDim        int
	outputFormat  string
	iterations    int
	tolerance     float64
	minIterations int
	checkFreq     int
	allowNegative bool
	statsFilename string
)

func matrixFormats(cmd *cobra.Command) (in, out matrixio.Format, err error) {
	if in, err = matrixio.ParseFormat(
		pick(cmd, "format", inputFormat, cfg.Normalize.Format),
	); err != nil {
		return
	}
	out, err = matrixio.ParseFormat(outputFormat)
	return
}

func runNormalize(cmd *cobra.Command, _ []string) error {
	ctx := commandContext(cmd)
	inFormat, outFormat, err := matrixFormats(cmd)
	if err != nil {
		return err
	}
	x, err := storage.LoadMatrix(ctx, inputURI, inFormat,
		matrixio.WithMaxDim(maxDim))
	if err != nil {
		logger.Err(err).Msg("cannot load input matrix")
		return err
	}
	var stats sinkhorn.Stats
	opts := []sinkhorn.NormalizeOpt{sinkhorn.WithStats(&stats)}
	if e := pick(cmd, "tolerance", tolerance, cfg.Normalize.Tolerance); e != 0 {
		opts = append(opts, sinkhorn.WithTolerance(e))
	}
	if cmd.Flags().Changed("min-iterations") {
		opts = append(opts, sinkhorn.WithMinIterations(minIterations))
	}
	if cmd.Flags().Changed("check-freq") {
		opts = append(opts, sinkhorn.WithCheckFreq(checkFreq))
	}
	if allowNegative {
		opts = append(opts, sinkhorn.WithAllowNegative())
	}
	res, err := sinkhorn.Normalize(ctx, x,
		pick(cmd, "iterations", iterations, cfg.Normalize.Iterations),
		opts...)
	if err != nil {
		logger.Err(err).Msg("cannot normalize")
		return err
	}
	logger.Info().
		Int("dim", stats.Dim).
		Int("iterations", res.Iterations).
		Bool("converged", res.Converged).
		Float64("error", res.Error).
		Msg("normalized")
	if err = storage.SaveMatrix(ctx, outputURI, res.Matrix, outFormat); err != nil {
		logger.Err(err).Msg("cannot write output matrix")
		return err
	}
	if err = writeStats(cmd, res, &stats); err != nil {
		logger.Err(err).Msg("cannot write stats")
		return err
	}
	return nil
}

func writeStats(
	cmd *cobra.Command, res *sinkhorn.Result, stats *sinkhorn.Stats,
) error {
	file, err := storage.Create(commandContext(cmd), statsFilename)
	if err != nil {
		return errors.Wrap(err, "cannot open stats file for writing")
	}
	var e jx.Encoder
	e.SetIdent(2)
	e.ObjStart()
	e.FieldStart("dim")
	e.Int(stats.Dim)
	e.FieldStart("iterations")
	e.Int(stats.Iterations)
	e.FieldStart("converged")
	e.Bool(stats.Converged)
	e.FieldStart("error")
	e.Float64(res.Error)
	e.FieldStart("rowScale")
	e.ArrStart()
	for _, v := range res.RowScale.RawVector().Data {
		e.Float64(v)
	}
	e.ArrEnd()
	e.FieldStart("colScale")
	e.ArrStart()
	for _, v := range res.ColScale.RawVector().Data {
		e.Float64(v)
	}
	e.ArrEnd()
	e.FieldStart("checks")
	e.ArrStart()
	for _, check := range stats.Checks {
		e.ObjStart()
		e.FieldStart("iteration")
		e.Int(check.Iteration)
		e.FieldStart("error")
		e.Float64(check.Error)
		e.ObjEnd()
	}
	e.ArrEnd()
	e.FieldStart("prepDuration")
	e.Str(stats.PrepDuration.String())
	e.FieldStart("iterDuration")
	e.Str(stats.IterDuration.String())
	e.ObjEnd()
	if _, err = file.Write(append(e.Bytes(), '\n')); err != nil {
		_ = file.Close()
		return err
	}
	return file.Close()
}

func addInputFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&inputURI, "input", "i", "-",
		`Input matrix URI: a path, file: URI, or s3://bucket/key.
"-" (default) reads standard input.`)
	cmd.Flags().StringVarP(&inputFormat, "format", "f", "auto",
		`Input matrix format: csv (one row per record), coo (row,col,value),
json (array of rows), or auto (by file extension; csv otherwise).`)
	cmd.Flags().IntVar(&maxDim, "max-dim", matrixio.DefaultMaxDim,
		`Largest accepted dimension of a coo input matrix.`)
}

func addOutputFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&outputURI, "output", "o", "-",
		`Output matrix URI: a path, file: URI, or s3://bucket/key.
"" suppresses output; "-" (default) uses standard output;
"!" uses standard error.`)
	cmd.Flags().StringVar(&outputFormat, "output-format", "auto",
		`Output matrix format: csv, coo, json, or auto (by file extension).`)
}

func init() {
	rootCmd.AddCommand(normalizeCmd)
	addInputFlags(normalizeCmd)
	addOutputFlags(normalizeCmd)
	normalizeCmd.Flags().IntVarP(&iterations, "iterations", "n",
		sinkhorn.DefaultIterations,
		`Maximum (and, without --tolerance, exact) iteration count.`)
	normalizeCmd.Flags().Float64VarP(&tolerance, "tolerance", "e", 0,
		`Early-stopping threshold on the doubly stochastic error.
0 (default) runs a fixed number of iterations.`)
	normalizeCmd.Flags().IntVar(&minIterations, "min-iterations", 1,
		`Iterations to run before the first early-stopping check.`)
	normalizeCmd.Flags().IntVar(&checkFreq, "check-freq", 1,
		`Iterations between early-stopping checks.`)
	normalizeCmd.Flags().BoolVar(&allowNegative, "allow-negative", false,
		`Accept negative entries (convergence is no longer guaranteed).`)
	normalizeCmd.Flags().StringVar(&statsFilename, "stats", "",
		`Run statistics output file name (JSON).
"" (default) suppresses output; "-" uses standard output`)
}
