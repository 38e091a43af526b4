package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Veraticus/tariff/internal/cli"
	"github.com/Veraticus/tariff/internal/confidence"
)

func exceptionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "exceptions",
		Aliases: []string{"queue"},
		Short:   "List classifications below your confidence threshold",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			userID, err := a.userID()
			if err != nil {
				return err
			}
			items, err := a.queue().Derive(ctx, userID)
			if err != nil {
				return err
			}
			threshold, err := a.store.GetUserThreshold(ctx, userID)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, cli.RenderQueue(items))
			fmt.Fprintln(out, cli.SubtleStyle.Render(fmt.Sprintf("Threshold %s. Review an item with: tariff review <id>", confidence.Percent(threshold))))
			return nil
		},
	}
}

func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show dashboard statistics and recent activity",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			userID, err := a.userID()
			if err != nil {
				return err
			}
			q := a.queue()
			stats, err := q.Stats(ctx, userID)
			if err != nil {
				return err
			}
			recent, err := q.RecentActivity(ctx, userID)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, cli.RenderStats(stats))
			fmt.Fprintln(out, cli.BoldStyle.Render("Recent activity"))
			fmt.Fprintln(out, cli.RenderRecent(recent))
			return nil
		},
	}
}

func settingsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "View or change your settings",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "threshold [value]",
		Short: "Show or set the auto-approval confidence threshold (0.80 to 1.00)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			userID, err := a.userID()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if len(args) == 0 {
				threshold, err := a.store.GetUserThreshold(ctx, userID)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Auto-approval threshold: %s\n", confidence.Percent(threshold))
				return nil
			}

			threshold, err := parseThreshold(args[0])
			if err != nil {
				return err
			}
			if err := a.store.SetUserThreshold(ctx, userID, threshold); err != nil {
				return err
			}
			fmt.Fprintln(out, cli.FormatSuccess("Threshold set to "+confidence.Percent(threshold)))
			return nil
		},
	})
	return cmd
}
