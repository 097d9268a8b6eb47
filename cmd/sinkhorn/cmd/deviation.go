package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
	"k3l.io/go-sinkhorn/pkg/matrixio"
	"k3l.io/go-sinkhorn/pkg/sinkhorn"
)

var deviationCmd = &cobra.Command{
	Use:   "deviation",
	Short: "Print how far a matrix is from doubly stochastic.",
	Long: `Print the doubly stochastic error of a square matrix:
the mean absolute deviation of its row and column sums from one.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := commandContext(cmd)
		inFormat, _, err := matrixFormats(cmd)
		if err != nil {
			return err
		}
		m, err := storage.LoadMatrix(ctx, inputURI, inFormat,
			matrixio.WithMaxDim(maxDim))
		if err != nil {
			logger.Err(err).Msg("cannot load input matrix")
			return err
		}
		e, err := sinkhorn.DoublyStochasticError(m)
		if err != nil {
			logger.Err(err).Msg("cannot compute deviation")
			return err
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(),
			strconv.FormatFloat(e, 'g', -1, 64))
		return err
	},
}

func init() {
	rootCmd.AddCommand(deviationCmd)
	addInputFlags(deviationCmd)
}
