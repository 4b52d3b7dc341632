package env

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"vulnlab"
	"vulnlab/cmd/vulnlab/cmdutil"
	"vulnlab/cmd/vulnlab/ui"
)

func listCmd() *cobra.Command {
	var (
		category string
		rescan   bool
		stats    bool
	)

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List environments under the scan root",
		RunE: func(cmd *cobra.Command, args []string) error {
			deps, err := cmdutil.Build()
			if err != nil {
				return err
			}
			defer deps.Close()

			snap, err := deps.Registry.List(cmd.Context(), rescan)
			if err != nil {
				return err
			}
			if category != "" {
				filtered := snap[:0]
				for _, e := range snap {
					if e.Category == category {
						filtered = append(filtered, e)
					}
				}
				snap = filtered
			}
			if len(snap) == 0 {
				fmt.Println(ui.Muted("no environments found"))
				return nil
			}

			rows := make([][]string, len(snap))
			for i, e := range snap {
				rows[i] = []string{
					e.ID,
					ui.Status(e.Status),
					strings.Join(e.Services, ", "),
					portSummary(e),
					ui.Bool(e.HasExploit),
					ui.Bool(e.HasLocalImages),
				}
			}
			fmt.Println(ui.Table(
				[]string{"Environment", "Status", "Services", "Ports", "Exploit", "Images"},
				rows,
			))

			if stats {
				printStats(vulnlab.ComputeStats(snap))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&category, "category", "", "Only list one category")
	cmd.Flags().BoolVar(&rescan, "rescan", false, "Ignore the cache and rescan")
	cmd.Flags().BoolVar(&stats, "stats", false, "Print aggregate counts after the table")
	return cmd
}

func portSummary(e vulnlab.Environment) string {
	if len(e.Ports) == 0 {
		return "-"
	}
	parts := make([]string, 0, len(e.Ports))
	for svc, port := range e.Ports {
		parts = append(parts, svc+":"+port)
	}
	sort.Strings(parts)
	return strings.Join(parts, " ")
}

func printStats(st vulnlab.Stats) {
	fmt.Println(ui.InfoMsg("%d environments, %d running, %d with exploits, %d with local images",
		st.Total, st.Running, st.WithExploit, st.WithLocalImages))

	categories := make([]string, 0, len(st.Categories))
	for c := range st.Categories {
		categories = append(categories, c)
	}
	sort.Strings(categories)
	for _, c := range categories {
		fmt.Printf("  %s %d\n", ui.Muted(c), st.Categories[c])
	}
}
