package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/go-faster/errors"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/spf13/cobra"
	"github.com/ziflex/lecho/v3"
	"k3l.io/go-sinkhorn/pkg/server"
)

var (
	listenAddress string
	tls           bool
	certPathname  string
	keyPathname   string
	serveCmd      = &cobra.Command{
		Use:   "serve",
		Short: "Serve the Sinkhorn-Knopp API",
		Long:  `Serve the Sinkhorn-Knopp API.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e := echo.New()
			e.HideBanner = true
			eLogger := lecho.From(logger)
			e.Logger = eLogger
			e.Use(
				middleware.RequestID(),
				middleware.CORS(),
				lecho.Middleware(lecho.Config{Logger: eLogger, NestKey: "req"}),
			)
			solver, err := newSolver(cmd)
			if err != nil {
				return err
			}
			core := server.NewCore(logger)
			core.Solver = solver
			core.DefaultIterations = cfg.Normalize.Iterations
			server.NewServer(core).RegisterHandlersWithBaseURL(e, "/v1")
			useTLS := pick(cmd, "tls", tls, cfg.Serve.TLS)
			addr := pick(cmd, "listen-address", listenAddress,
				cfg.Serve.ListenAddress)
			if addr == "" {
				port := 80
				if useTLS {
					port = 443
				}
				if os.Geteuid() != 0 {
					port += 8000
				}
				addr = fmt.Sprintf(":%d", port)
			}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(),
					10*time.Second)
				defer cancel()
				_ = e.Shutdown(ctx)
			}()
			if useTLS {
				err = e.StartTLS(addr,
					pick(cmd, "tls-cert", certPathname, cfg.Serve.TLSCert),
					pick(cmd, "tls-key", keyPathname, cfg.Serve.TLSKey))
			} else {
				err = e.Start(addr)
			}
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Err(err).Msg("server did not start or shut down gracefully")
				return err
			}
			return nil
		},
	}
)

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&listenAddress, "listen-address",
		"", `server listen address to bind to
(default: automatically choose based upon --tls and effective user ID)`)
	serveCmd.Flags().BoolVar(&tls, "tls", false, "serve over TLS")
	serveCmd.Flags().StringVar(&certPathname, "tls-cert",
		"server.crt",
		"TLS server certificate pathname")
	serveCmd.Flags().StringVar(&keyPathname, "tls-key", "server.key",
		"TLS server private key pathname")
	addOracleFlags(serveCmd)
}
