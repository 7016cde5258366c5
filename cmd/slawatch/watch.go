package main

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/nhle/slawatch/internal/app"
	appsync "github.com/nhle/slawatch/internal/sync"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Open the notification console",
	Long: `Open the terminal notification console.

The console runs its own evaluation loop, so it stays current even when no
server is running. Logs go to stderr; redirect them to keep the screen clean.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if actor == "" {
			return usageError{"actor is required (--actor or SLAWATCH_ACTOR)"}
		}

		e, err := openEnv(rootCtx, true)
		if err != nil {
			return err
		}
		defer e.Close()

		poller := appsync.New(e.svc, cfg.Loop,
			appsync.WithLogger(logger),
			appsync.WithMetrics(e.metrics),
		)
		defer poller.Stop()

		m := app.New(e.svc, poller, actor, cfg.Policy.MinJustificationLength)
		p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(rootCtx))
		_, err = p.Run()
		return err
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)
}
