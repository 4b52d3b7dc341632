package env

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"vulnlab/cmd/vulnlab/cmdutil"
	"vulnlab/cmd/vulnlab/ui"
)

func showCmd() *cobra.Command {
	var withExploits bool

	cmd := &cobra.Command{
		Use:   "show <environment>",
		Short: "Show one environment's manifest and artifacts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			deps, err := cmdutil.Build()
			if err != nil {
				return err
			}
			defer deps.Close()

			detail, err := deps.Registry.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			fmt.Println(ui.Bold(detail.ID))
			fmt.Printf("  %s %s\n", ui.Muted("category:"), detail.Category)
			fmt.Printf("  %s %s\n", ui.Muted("status:  "), ui.Status(detail.Status))
			fmt.Printf("  %s %s\n", ui.Muted("services:"), strings.Join(detail.Services, ", "))
			fmt.Printf("  %s %s\n", ui.Muted("exploit: "), ui.Bool(detail.HasExploit))
			if len(detail.ImageFiles) > 0 {
				fmt.Printf("  %s %s\n", ui.Muted("figures: "), strings.Join(detail.ImageFiles, ", "))
			}

			if detail.Compose != "" {
				fmt.Println()
				fmt.Println(ui.Accent("docker-compose.yml"))
				fmt.Println(detail.Compose)
			}

			if len(detail.Exploits) > 0 {
				fmt.Println(ui.Accent("exploit artifacts"))
				for _, e := range detail.Exploits {
					line := fmt.Sprintf("  %s (%d lines)", e.Path, e.Lines)
					if e.Usage != "" {
						line += "  " + ui.Muted(e.Usage)
					}
					fmt.Println(line)
					if withExploits {
						fmt.Println(e.Content)
					}
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&withExploits, "exploits", false, "Print exploit file contents")
	return cmd
}
