// Package serve runs the HTTP API server.
package serve

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"vulnlab/api"
	"vulnlab/cmd/vulnlab/cmdutil"
	"vulnlab/config"
	"vulnlab/internal/logging"
)

func Cmd() *cobra.Command {
	var (
		root   string
		listen string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the environment registry over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if root != "" {
				cfg.Root = root
			}
			if listen != "" {
				cfg.Listen = listen
			}
			if err := logging.Configure(cfg.LogLevel, cfg.LogFormat); err != nil {
				return err
			}

			provider := sdktrace.NewTracerProvider()
			otel.SetTracerProvider(provider)

			deps, err := cmdutil.BuildWith(cfg)
			if err != nil {
				return err
			}
			defer deps.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			defer func() { _ = provider.Shutdown(context.Background()) }()

			server := api.New(deps.Registry)
			if err := server.ListenAndServe(ctx, cfg.Listen); err != nil {
				return fmt.Errorf("api server: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&root, "root", "", "Scan root (overrides config)")
	cmd.Flags().StringVar(&listen, "listen", "", "HTTP bind address (overrides config)")
	return cmd
}
