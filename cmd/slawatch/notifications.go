package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/nhle/slawatch/internal/model"
	"github.com/nhle/slawatch/internal/store"
)

var (
	notifKind   string
	notifStatus string
	notifTask   string
	notifSince  time.Duration
	notifLimit  int
	notifOffset int
)

var notificationsCmd = &cobra.Command{
	Use:     "notifications",
	Aliases: []string{"notif", "ls"},
	Short:   "List notifications with live task status",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		filter := store.NotificationFilter{
			Status: notifStatus,
			Limit:  notifLimit,
			Offset: notifOffset,
		}
		if notifKind != "" {
			kind := model.EventKind(strings.ToUpper(notifKind))
			filter.Kind = &kind
		}
		if notifTask != "" {
			filter.TaskID = &notifTask
		}

		e, err := openEnv(rootCtx, false)
		if err != nil {
			return err
		}
		defer e.Close()

		if notifSince > 0 {
			from := e.svc.Now().Add(-notifSince)
			filter.From = &from
		}

		views, err := e.svc.ListNotifications(rootCtx, filter)
		if err != nil {
			return err
		}

		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), views)
		}

		loc := e.policy.Location
		rows := make([][]string, 0, len(views))
		for _, v := range views {
			state := "unread"
			switch {
			case v.Archived():
				state = "archived"
			case v.Read():
				state = "read"
			}
			rows = append(rows, []string{
				v.ID,
				v.CreatedAt.In(loc).Format("01-02 15:04"),
				string(v.Kind),
				v.TaskName,
				string(v.Status),
				v.Countdown,
				state,
			})
		}
		printTable(cmd.OutOrStdout(),
			[]string{"ID", "Created", "Kind", "Task", "Status", "Countdown", "State"},
			rows,
		)
		return nil
	},
}

var readCmd = &cobra.Command{
	Use:   "read <notification-id>...",
	Short: "Mark notifications as read",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEnv(rootCtx, false)
		if err != nil {
			return err
		}
		defer e.Close()

		for _, id := range args {
			if err := e.svc.AcknowledgeRead(rootCtx, id, actor); err != nil {
				return fmt.Errorf("%s: %w", id, err)
			}
		}
		return nil
	},
}

var archiveCmd = &cobra.Command{
	Use:   "archive <notification-id>...",
	Short: "Archive notifications",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEnv(rootCtx, false)
		if err != nil {
			return err
		}
		defer e.Close()

		for _, id := range args {
			if err := e.svc.Archive(rootCtx, id, actor); err != nil {
				return fmt.Errorf("%s: %w", id, err)
			}
		}
		return nil
	},
}

func init() {
	f := notificationsCmd.Flags()
	f.StringVar(&notifKind, "kind", "", "PRE_START, MISSED_START, ESCALATED or JUSTIFICATION_REQUIRED")
	f.StringVar(&notifStatus, "status", store.NotificationsActive, "active, unread, read, archived or all")
	f.StringVar(&notifTask, "task", "", "only this task id")
	f.DurationVar(&notifSince, "since", 0, "only notifications created within this duration")
	f.IntVar(&notifLimit, "limit", 50, "maximum rows")
	f.IntVar(&notifOffset, "offset", 0, "rows to skip")

	rootCmd.AddCommand(notificationsCmd, readCmd, archiveCmd)
}
