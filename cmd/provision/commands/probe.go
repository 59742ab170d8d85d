package commands

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/BrianJOC/app-provisioner/phases"
	"github.com/BrianJOC/app-provisioner/pkg/phasedapp"
	"github.com/BrianJOC/app-provisioner/pkg/phasedapp/bundles/appstack"
	"github.com/BrianJOC/app-provisioner/utils/probe"
)

func newProbeCommand(g *globals) *cobra.Command {
	var tag string
	cmd := &cobra.Command{
		Use:   "probe",
		Short: "Report installed dependencies and pending steps without changing anything",
		Example: `  provision probe
  provision probe --tag install`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()
			runner := g.commandRunner()

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "DEPENDENCY\tSTATUS\tVERSION")
			prober := probe.New(runner)
			for _, dep := range appstack.Dependencies() {
				status := prober.Probe(ctx, dep)
				state := "installed"
				if !status.Present {
					state = "missing"
					if status.Missing != "" {
						state = fmt.Sprintf("missing (%s)", status.Missing)
					}
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\n", status.Dependency, state, status.Version)
			}
			if err := tw.Flush(); err != nil {
				return err
			}

			cfg, err := g.loadConfig()
			if err != nil {
				return err
			}
			list, err := appstack.Bundle(cfg, appstack.Deps{Runner: runner})
			if err != nil {
				return err
			}
			var filters []phasedapp.PhaseFilter
			if tag != "" {
				filters = append(filters, phasedapp.WithTag(tag))
			}

			fmt.Fprintln(out)
			tw = tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "STEP\tSTATE\tELEVATION\tDETAIL")
			phaseCtx := phases.NewContext()
			for _, phase := range phasedapp.SelectPhases(list, filters...) {
				meta := phase.Metadata()
				if meta.Deferred {
					continue
				}
				res, err := phase.Check(ctx, phaseCtx)
				state, detail := "pending", res.Detail
				switch {
				case err != nil:
					state, detail = "unknown", err.Error()
				case res.Satisfied:
					state = "done"
				}
				elevation := ""
				if meta.RequiresElevation {
					elevation = "required"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", meta.ID, state, elevation, detail)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&tag, "tag", "", "only show steps carrying this tag")
	return cmd
}
