package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"vulnlab/cmd/vulnlab/cachecmd"
	envcmd "vulnlab/cmd/vulnlab/env"
	"vulnlab/cmd/vulnlab/serve"
	"vulnlab/cmd/vulnlab/ui"
	"vulnlab/internal/logging"
)

func main() {
	var debug bool

	if err := logging.Configure(logging.LevelWarn, logging.FormatText); err != nil {
		_, _ = os.Stderr.WriteString("configure logger: " + err.Error() + "\n")
		os.Exit(1)
	}

	root := &cobra.Command{
		Use:           "vulnlab",
		Short:         "Registry and lifecycle manager for compose-based vulnerability environments",
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			ui.ConfigureColors()

			level := logging.LevelWarn
			if debug {
				level = logging.LevelDebug
			}
			return logging.Configure(level, logging.FormatText)
		},
	}
	root.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")

	root.AddCommand(serve.Cmd())
	root.AddCommand(envcmd.Cmd())
	root.AddCommand(cachecmd.Cmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
