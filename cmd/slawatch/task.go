package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/nhle/slawatch/internal/model"
	"github.com/nhle/slawatch/internal/monitor"
	"github.com/nhle/slawatch/internal/sla"
	"github.com/nhle/slawatch/internal/store"
)

var (
	taskName       string
	taskStart      string
	taskSLAMinutes int
	taskAt         string
	taskAll        bool
)

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Manage monitored tasks",
}

var taskAddCmd = &cobra.Command{
	Use:   "add <task-id>",
	Short: "Register or update a monitored task",
	Long: `Register a task, or update the name and SLA of an existing one.

--start is a wall-clock time "YYYY-MM-DD HH:MM" in the configured timezone.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if taskStart == "" {
			return usageError{"--start is required"}
		}

		e, err := openEnv(rootCtx, true)
		if err != nil {
			return err
		}
		defer e.Close()

		start, err := e.policy.ParseSchedule(taskStart)
		if err != nil {
			return usageError{err.Error()}
		}
		slaMinutes := taskSLAMinutes
		if slaMinutes == 0 {
			slaMinutes = cfg.Policy.DefaultSLAMinutes
		}
		name := taskName
		if name == "" {
			name = args[0]
		}

		ev, err := e.svc.RegisterTask(rootCtx, model.MonitoredTask{
			ID:             args[0],
			Name:           name,
			ScheduledStart: start,
			SLAMinutes:     slaMinutes,
		})
		if err != nil {
			return err
		}
		return printEvaluation(cmd, e.policy.Location, ev)
	},
}

var taskCompleteCmd = &cobra.Command{
	Use:   "complete <task-id>",
	Short: "Record that a task finished",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEnv(rootCtx, true)
		if err != nil {
			return err
		}
		defer e.Close()

		var at time.Time
		if taskAt != "" {
			at, err = e.policy.ParseSchedule(taskAt)
			if err != nil {
				return usageError{err.Error()}
			}
		}

		ev, err := e.svc.CompleteTask(rootCtx, args[0], at)
		if err != nil {
			return err
		}
		return printEvaluation(cmd, e.policy.Location, ev)
	},
}

var taskRescheduleCmd = &cobra.Command{
	Use:   "reschedule <task-id>",
	Short: "Move a task to its next occurrence",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if taskStart == "" {
			return usageError{"--start is required"}
		}

		e, err := openEnv(rootCtx, true)
		if err != nil {
			return err
		}
		defer e.Close()

		next, err := e.policy.ParseSchedule(taskStart)
		if err != nil {
			return usageError{err.Error()}
		}

		ev, err := e.svc.RescheduleTask(rootCtx, args[0], next)
		if err != nil {
			return err
		}
		return printEvaluation(cmd, e.policy.Location, ev)
	},
}

var taskListCmd = &cobra.Command{
	Use:   "list",
	Short: "List monitored tasks with their live status",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEnv(rootCtx, false)
		if err != nil {
			return err
		}
		defer e.Close()

		tasks, err := e.svc.Tasks(rootCtx, store.TaskFilter{ExcludeCompleted: !taskAll})
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), tasks)
		}

		loc := e.policy.Location
		now := e.svc.Now()
		rows := make([][]string, 0, len(tasks))
		for _, t := range tasks {
			rows = append(rows, []string{
				t.ID,
				t.Name,
				t.ScheduledStart.In(loc).Format("2006-01-02 15:04"),
				fmt.Sprintf("%dm", t.SLAMinutes),
				string(t.Status),
				sla.Countdown(t, t.Status, now, e.policy),
			})
		}
		printTable(cmd.OutOrStdout(), []string{"ID", "Name", "Start", "SLA", "Status", "Countdown"}, rows)
		return nil
	},
}

var taskShowCmd = &cobra.Command{
	Use:   "show <task-id>",
	Short: "Show a task's deadlines and justification history",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEnv(rootCtx, false)
		if err != nil {
			return err
		}
		defer e.Close()

		d, err := e.svc.TaskDetail(rootCtx, args[0])
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), d)
		}

		loc := e.policy.Location
		stamp := func(t time.Time) string { return t.In(loc).Format("2006-01-02 15:04") }
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%s  %s  %s  %s\n", d.Task.ID, d.Task.Name, d.Task.Status, d.Countdown)
		printTable(out, []string{"Pre-start", "Start", "Breach", "Escalation"}, [][]string{{
			stamp(d.Thresholds.PreStartAt),
			stamp(d.Thresholds.Start),
			stamp(d.Thresholds.BreachAt),
			stamp(d.Thresholds.EscalateAt),
		}})
		for _, j := range d.Justifications {
			fmt.Fprintf(out, "%s by %s: %s\n", stamp(j.SubmittedAt), j.SubmittedBy, j.Text)
		}
		return nil
	},
}

func printEvaluation(cmd *cobra.Command, loc *time.Location, ev *monitor.Evaluation) error {
	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), ev)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s  %s  start %s  status %s\n",
		ev.Task.ID, ev.Task.Name,
		ev.Task.ScheduledStart.In(loc).Format("2006-01-02 15:04"),
		ev.Task.Status,
	)
	if len(ev.Emitted) > 0 {
		kinds := make([]string, len(ev.Emitted))
		for i, n := range ev.Emitted {
			kinds[i] = string(n.Kind)
		}
		fmt.Fprintf(out, "emitted: %s\n", strings.Join(kinds, ", "))
	}
	return nil
}

func init() {
	taskAddCmd.Flags().StringVar(&taskName, "name", "", "display name (defaults to the id)")
	taskAddCmd.Flags().StringVar(&taskStart, "start", "", `scheduled start "YYYY-MM-DD HH:MM"`)
	taskAddCmd.Flags().IntVar(&taskSLAMinutes, "sla", 0, "SLA window in minutes (defaults to policy.default_sla_minutes)")

	taskCompleteCmd.Flags().StringVar(&taskAt, "at", "", `completion time "YYYY-MM-DD HH:MM" (defaults to now)`)

	taskRescheduleCmd.Flags().StringVar(&taskStart, "start", "", `next scheduled start "YYYY-MM-DD HH:MM"`)

	taskListCmd.Flags().BoolVar(&taskAll, "all", false, "include completed tasks")

	taskCmd.AddCommand(taskAddCmd, taskCompleteCmd, taskRescheduleCmd, taskListCmd, taskShowCmd)
	rootCmd.AddCommand(taskCmd)
}
