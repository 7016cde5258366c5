package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nhle/slawatch/internal/monitor"
	"github.com/nhle/slawatch/internal/ui/dashboard"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Evaluate every active task once",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEnv(rootCtx, true)
		if err != nil {
			return err
		}
		defer e.Close()

		res, err := e.svc.SyncNow(rootCtx, cfg.Loop.SyncTimeout)
		if err != nil {
			var serr *monitor.SyncError
			if errors.As(err, &serr) {
				return fmt.Errorf("%d tasks evaluated before failure: %w", serr.Evaluated, err)
			}
			return err
		}

		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), res)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "evaluated %d tasks, emitted %d events\n",
			res.TasksEvaluated, res.EventsEmitted)
		return nil
	},
}

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Show notification and escalation counts",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEnv(rootCtx, false)
		if err != nil {
			return err
		}
		defer e.Close()

		summary, err := e.svc.Dashboard(rootCtx)
		if err != nil {
			return err
		}

		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), summary)
		}
		fmt.Fprintln(cmd.OutOrStdout(), dashboard.Render(summary, 48))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(syncCmd, dashboardCmd)
}
