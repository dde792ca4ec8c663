package commands

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"intake/internal/documents"
)

func pathwaysCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pathways",
		Short: "List activity types and how many steps each shows",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ACTIVITY\tPATHWAY\tNAME\tSTEPS\tMINUTES")
			for _, t := range registry.ActivityTypes() {
				pc, err := registry.Config(t)
				if err != nil {
					return err
				}
				steps, err := registry.VisibleSteps(t)
				if err != nil {
					return err
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\n", t, pc.Letter, pc.Name, len(steps), pc.EstimatedMinutes)
			}
			return tw.Flush()
		},
	}
}

func stepsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "steps <activity-type>",
		Short: "Show the visible steps of a pathway in order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := parseActivity(args[0])
			if err != nil {
				return err
			}
			resolver, err := registry.Resolver(t)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "#\tSTEP\tTITLE\tREQUIRED")
			for _, s := range resolver.VisibleSteps() {
				fmt.Fprintf(tw, "%d\t%s\t%s\t%t\n", resolver.StepNumber(s.ID), s.ID, s.Title, resolver.IsRequired(s.ID))
			}
			return tw.Flush()
		},
	}
}

func documentsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "documents <activity-type>",
		Short: "List the supporting documents a pathway asks for",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := parseActivity(args[0])
			if err != nil {
				return err
			}
			reqs, err := documents.NewResolver(registry).Requirements(t)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), reqs)
		},
	}
}
