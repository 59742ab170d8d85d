package commands

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/BrianJOC/app-provisioner/phases"
	"github.com/BrianJOC/app-provisioner/pkg/phasedapp"
	"github.com/BrianJOC/app-provisioner/utils/journal"
)

func newHistoryCommand(g *globals) *cobra.Command {
	var (
		limit   int
		verbose bool
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List previous provisioning runs",
		Example: `  provision history
  provision history -n 5 --steps`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg, err := g.loadConfig()
			if err != nil {
				return err
			}
			if !cfg.Journal.Enabled {
				return fmt.Errorf("run history is disabled in the configuration")
			}

			store, err := journal.Open(ctx, cfg.Journal.Path)
			if err != nil {
				return err
			}
			defer store.Close()

			runs, err := store.Recent(ctx, limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(runs) == 0 {
				fmt.Fprintln(out, "No runs recorded yet.")
				return nil
			}

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "STARTED\tSTATUS\tEXIT\tDURATION\tPROJECT\tRUN")
			for _, run := range runs {
				fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\t%s\n",
					run.StartedAt.Local().Format(time.DateTime),
					run.Status,
					run.ExitCode,
					run.FinishedAt.Sub(run.StartedAt).Round(time.Second),
					run.ProjectDir,
					run.ID,
				)
				if !verbose {
					continue
				}
				for _, step := range run.Steps {
					line := fmt.Sprintf("  %d. %s\t%s\t\t%s\t", step.Position, step.Title,
						phasedapp.OutcomeLabel(phases.Outcome(step.Outcome)), step.Duration.Round(time.Millisecond))
					if step.Error != "" {
						line += step.Error
					} else {
						line += step.Detail
					}
					fmt.Fprintln(tw, line)
				}
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of runs to show")
	cmd.Flags().BoolVar(&verbose, "steps", false, "include each step's outcome")
	return cmd
}
