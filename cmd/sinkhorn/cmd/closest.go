package cmd

import (
	"github.com/spf13/cobra"
	"k3l.io/go-sinkhorn/pkg/matrixio"
	"k3l.io/go-sinkhorn/pkg/sinkhorn"
)

var closestCmd = &cobra.Command{
	Use:   "closest",
	Short: "Find the closest doubly stochastic matrix.",
	Long: `Find the doubly stochastic matrix closest to the input
in Frobenius norm, by quadratic programming (default)
or Dykstra's alternating projections.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
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
		solver, err := newSolver(cmd)
		if err != nil {
			return err
		}
		closest, err := solver.Solve(ctx, x)
		if err != nil {
			logger.Err(err).Msg("cannot find closest matrix")
			return err
		}
		e, err := sinkhorn.DoublyStochasticError(closest)
		if err != nil {
			return err
		}
		d, err := sinkhorn.Distance(x, closest)
		if err != nil {
			return err
		}
		logger.Info().
			Float64("error", e).
			Float64("distance", d).
			Msg("found closest matrix")
		if err = storage.SaveMatrix(ctx, outputURI, closest, outFormat); err != nil {
			logger.Err(err).Msg("cannot write output matrix")
			return err
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(closestCmd)
	addInputFlags(closestCmd)
	addOutputFlags(closestCmd)
	addOracleFlags(closestCmd)
}
