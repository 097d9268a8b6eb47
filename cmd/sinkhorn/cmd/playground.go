package cmd

import (
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"k3l.io/go-sinkhorn/internal/playground"
)

var (
	playgroundAddress string
	playgroundCmd     = &cobra.Command{
		Use:   "playground",
		Short: "Serve the web playground",
		Long: `Serve a web page where a matrix file can be uploaded,
normalized, and compared with its closest doubly stochastic matrix.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			solver, err := newSolver(cmd)
			if err != nil {
				return err
			}
			gr := gin.Default()
			playground.LoadTemplates(gr)
			playground.AddRoutes(gr, solver)
			addr := pick(cmd, "listen-address", playgroundAddress,
				cfg.Playground.ListenAddress)
			logger.Info().Str("addr", addr).Msg("serving playground")
			if err = gr.Run(addr); err != nil {
				logger.Err(err).Msg("playground server failed")
				return err
			}
			return nil
		},
	}
)

func init() {
	rootCmd.AddCommand(playgroundCmd)
	playgroundCmd.Flags().StringVar(&playgroundAddress, "listen-address",
		":8080", "playground listen address to bind to")
	addOracleFlags(playgroundCmd)
}
