package env

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"vulnlab/cmd/vulnlab/cmdutil"
	"vulnlab/cmd/vulnlab/ui"
	"vulnlab/internal/compose"
)

func startCmd() *cobra.Command {
	var wait int

	cmd := &cobra.Command{
		Use:   "start <environment>",
		Short: "Start an environment with compose",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			deps, err := cmdutil.Build()
			if err != nil {
				return err
			}
			defer deps.Close()

			id := args[0]
			if err := deps.Registry.Start(cmd.Context(), id); err != nil {
				var opErr *compose.OpError
				if errors.As(err, &opErr) && opErr.PortConflict {
					fmt.Println(ui.ErrorMsg("%s", opErr.Diagnostic))
					fmt.Println(ui.WarnMsg("a host port is taken; stop the conflicting service or edit the manifest's port mapping"))
					return errors.New("start failed")
				}
				return err
			}
			fmt.Println(ui.SuccessMsg("%s started", id))

			if wait > 0 {
				ready, err := deps.Registry.WaitReady(cmd.Context(), id, time.Duration(wait)*time.Second)
				if err != nil {
					return err
				}
				if ready.Ready {
					fmt.Println(ui.SuccessMsg("service answering on http://127.0.0.1:%d", ready.Port))
				} else if ready.Port != 0 {
					fmt.Println(ui.WarnMsg("port %d published but not answering yet", ready.Port))
				} else {
					fmt.Println(ui.WarnMsg("no published port discovered"))
				}
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&wait, "wait", 0, "Seconds to wait for the service to answer")
	return cmd
}
