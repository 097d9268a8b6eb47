package cmd

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-faster/errors"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"k3l.io/go-sinkhorn/pkg/config"
	"k3l.io/go-sinkhorn/pkg/matrixio"
	"k3l.io/go-sinkhorn/pkg/oracle"
)

const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

var (
	rootCmd = &cobra.Command{
		Use:   "sinkhorn",
		Short: "Sinkhorn-Knopp CLI",
		Long: `Sinkhorn-Knopp CLI scales nonnegative square matrices
toward doubly stochastic form, measures how far a matrix is from
doubly stochastic, and serves the same operations over HTTP.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if cfg, err = config.Load(cfgFile); err != nil {
				return err
			}
			var logWriter io.Writer
			switch logFile {
			case "-":
				logWriter = os.Stdout
			case "":
				logWriter = zerolog.NewConsoleWriter(
					func(w *zerolog.ConsoleWriter) {
						w.Out = os.Stderr
						w.TimeFormat = timeFormat
					})
			default:
				w, err := os.OpenFile(logFile,
					os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o0666)
				if err != nil {
					return errors.Wrap(err, "cannot open log file")
				}
				logWriter = w
			}
			levelName := cfg.LogLevel
			if cmd.Flags().Changed("log-level") {
				levelName = logLevel
			}
			level, err := zerolog.ParseLevel(levelName)
			if err != nil {
				return errors.Wrapf(err, "invalid log level %#v", levelName)
			}
			logger = zerolog.New(logWriter).Level(level).
				With().Timestamp().Logger()
			zerolog.DefaultContextLogger = &logger
			storage = matrixio.NewStorage()
			return nil
		},
	}
	cfgFile  string
	logFile  string
	logLevel string
	logger   zerolog.Logger
	cfg      config.Config
	storage  *matrixio.Storage
)

func Execute() {
	zerolog.TimeFieldFormat = timeFormat
	ctx, stop := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

// commandContext returns the command's context carrying the logger.
func commandContext(cmd *cobra.Command) context.Context {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return logger.WithContext(ctx)
}

// pick returns the flag value if the user set the flag,
// and the config file value otherwise.
func pick[T any](cmd *cobra.Command, name string, flag, fromConfig T) T {
	if cmd.Flags().Changed(name) {
		return flag
	}
	return fromConfig
}

func newSolver(cmd *cobra.Command) (oracle.Solver, error) {
	return oracle.New(
		oracle.Method(pick(cmd, "oracle", oracleMethod, cfg.Oracle.Method)),
		pick(cmd, "oracle-max-iterations",
			oracleMaxIterations, cfg.Oracle.MaxIterations),
		pick(cmd, "oracle-tolerance", oracleTolerance, cfg.Oracle.Tolerance),
	)
}

var (
	oracleMethod        string
	oracleMaxIterations int
	oracleTolerance     float64
)

func addOracleFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&oracleMethod, "oracle", string(oracle.MethodQP),
		`Closest-matrix solver: qp (quadratic program via its dual)
or dykstra (alternating projections).`)
	cmd.Flags().IntVar(&oracleMaxIterations, "oracle-max-iterations", 0,
		`Iteration cap of the closest-matrix solver (0: solver default).`)
	cmd.Flags().Float64Var(&oracleTolerance, "oracle-tolerance", 0,
		`Stopping threshold of the closest-matrix solver (0: solver default).`)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default is $HOME/"+config.DefaultFileName+")")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "",
		"log file (- means stdout; default: colorized stderr)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info",
		"log level (trace, debug, info, warn, error)")
}
