package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
)

var justifyText string

var justifyCmd = &cobra.Command{
	Use:   "justify <task-id>",
	Short: "Record why an escalated task is late",
	Long: `Record a justification for an escalated task, moving it to ACKNOWLEDGED.

The task is re-evaluated first, so a task that crossed its escalation
deadline since the last tick can be justified immediately. Text is read
from --text, or from stdin when --text is "-".`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		text := justifyText
		if text == "-" {
			data, err := io.ReadAll(cmd.InOrStdin())
			if err != nil {
				return fmt.Errorf("reading justification: %w", err)
			}
			text = string(data)
		}
		if strings.TrimSpace(text) == "" {
			return usageError{"justification text is required (--text)"}
		}
		if actor == "" {
			return usageError{"actor is required (--actor or SLAWATCH_ACTOR)"}
		}

		e, err := openEnv(rootCtx, true)
		if err != nil {
			return err
		}
		defer e.Close()

		rec, err := e.svc.SubmitJustification(rootCtx, args[0], text, actor)
		if err != nil {
			return err
		}

		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), rec)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s acknowledged by %s\n", rec.TaskID, rec.SubmittedBy)
		return nil
	},
}

var justificationsCmd = &cobra.Command{
	Use:   "justifications <task-id>",
	Short: "List justifications recorded for a task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEnv(rootCtx, false)
		if err != nil {
			return err
		}
		defer e.Close()

		recs, err := e.svc.Justifications(rootCtx, args[0])
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), recs)
		}

		loc := e.policy.Location
		rows := make([][]string, 0, len(recs))
		for _, r := range recs {
			rows = append(rows, []string{
				r.EscalatedAt.In(loc).Format("2006-01-02 15:04"),
				r.SubmittedAt.In(loc).Format("2006-01-02 15:04"),
				r.SubmittedBy,
				r.Text,
			})
		}
		printTable(cmd.OutOrStdout(), []string{"Escalated", "Submitted", "By", "Text"}, rows)
		return nil
	},
}

func init() {
	justifyCmd.Flags().StringVarP(&justifyText, "text", "t", "", `justification text, or "-" for stdin`)
	rootCmd.AddCommand(justifyCmd, justificationsCmd)
}
