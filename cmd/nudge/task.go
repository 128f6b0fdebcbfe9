package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/fentz26/nudge/internal/chat"
	"github.com/fentz26/nudge/internal/client"
	"github.com/fentz26/nudge/internal/models"
)

// timeLayout is the CLI input format for reminder times, in local time.
const timeLayout = "2006-01-02 15:04"

var taskCmd = &cobra.Command{
	Use:     "task",
	Aliases: []string{"todo"},
	Short:   "Manage tasks",
}

var taskAddCmd = &cobra.Command{
	Use:   "add [title]",
	Short: "Add a new task",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runTaskAdd,
}

var taskListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List tasks",
	RunE:    runTaskList,
}

var taskShowCmd = &cobra.Command{
	Use:   "show [task-id]",
	Short: "Show task details and history",
	Args:  cobra.ExactArgs(1),
	RunE:  runTaskShow,
}

var taskEditCmd = &cobra.Command{
	Use:   "edit [task-id]",
	Short: "Edit a task",
	Args:  cobra.ExactArgs(1),
	RunE:  runTaskEdit,
}

var taskDoneCmd = &cobra.Command{
	Use:   "done [task-id]",
	Short: "Complete a task",
	Args:  cobra.ExactArgs(1),
	RunE:  transitionCmd("Done", (*client.Client).CompleteTask),
}

var taskResetCmd = &cobra.Command{
	Use:   "reset [task-id]",
	Short: "Release a quarantined task",
	Args:  cobra.ExactArgs(1),
	RunE:  transitionCmd("Reset", (*client.Client).ResetTask),
}

var taskUndoCmd = &cobra.Command{
	Use:   "undo [task-id]",
	Short: "Reopen a done task",
	Args:  cobra.ExactArgs(1),
	RunE:  transitionCmd("Reopened", (*client.Client).UndoTask),
}

var taskRmCmd = &cobra.Command{
	Use:     "rm [task-id]",
	Aliases: []string{"del"},
	Short:   "Delete a task",
	Args:    cobra.ExactArgs(1),
	RunE:    transitionCmd("Deleted", (*client.Client).DeleteTask),
}

var todayCmd = &cobra.Command{
	Use:   "today [YYYY-MM-DD]",
	Short: "List open tasks scheduled for a day",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runToday,
}

var ackCmd = &cobra.Command{
	Use:   "ack",
	Short: "Acknowledge the latest reminders",
	RunE:  runAck,
}

var (
	taskNote       string
	taskAt         string
	taskEvery      string
	taskStatus     string
	taskLimit      int
	editTitle      string
	clearRemind    bool
	clearRecurring bool
)

func init() {
	taskCmd.AddCommand(taskAddCmd, taskListCmd, taskShowCmd, taskEditCmd, taskDoneCmd, taskResetCmd, taskUndoCmd, taskRmCmd)

	taskAddCmd.Flags().StringVar(&taskNote, "note", "", "Task note")
	taskAddCmd.Flags().StringVar(&taskAt, "at", "", "Reminder time (YYYY-MM-DD HH:MM, local time)")
	taskAddCmd.Flags().StringVar(&taskEvery, "every", "", "Repeat rule (daily, workday, weekly, monthly)")

	taskListCmd.Flags().StringVar(&taskStatus, "status", "", "Filter by status (pending, all, done, failed)")
	taskListCmd.Flags().IntVar(&taskLimit, "limit", 0, "Maximum number of tasks")

	taskEditCmd.Flags().StringVar(&editTitle, "title", "", "New title")
	taskEditCmd.Flags().StringVar(&taskNote, "note", "", "New note")
	taskEditCmd.Flags().StringVar(&taskAt, "at", "", "New reminder time (YYYY-MM-DD HH:MM)")
	taskEditCmd.Flags().StringVar(&taskEvery, "every", "", "New repeat rule")
	taskEditCmd.Flags().BoolVar(&clearRemind, "no-remind", false, "Remove the reminder time")
	taskEditCmd.Flags().BoolVar(&clearRecurring, "no-repeat", false, "Remove the repeat rule")
}

func parseLocalTime(s string) (*time.Time, error) {
	t, err := time.ParseInLocation(timeLayout, strings.TrimSpace(s), time.Local)
	if err != nil {
		return nil, fmt.Errorf("invalid time %q, want YYYY-MM-DD HH:MM", s)
	}
	return &t, nil
}

func runTaskAdd(cmd *cobra.Command, args []string) error {
	req := client.CreateTaskRequest{
		Title:      strings.Join(args, " "),
		Note:       taskNote,
		Recurrence: taskEvery,
	}
	if taskAt != "" {
		at, err := parseLocalTime(taskAt)
		if err != nil {
			return err
		}
		req.RemindAt = at
	}

	task, err := newAPIClient().CreateTask(cmd.Context(), req)
	if err != nil {
		return err
	}
	fmt.Printf("Created task %s: %s\n", chat.ShortID(task.ID), task.Title)
	return nil
}

func runTaskList(cmd *cobra.Command, args []string) error {
	tasks, err := newAPIClient().ListTasks(cmd.Context(), taskStatus, taskLimit)
	if err != nil {
		return err
	}
	printTasks(os.Stdout, tasks)
	return nil
}

func runToday(cmd *cobra.Command, args []string) error {
	date := ""
	if len(args) == 1 {
		date = args[0]
	}
	tasks, err := newAPIClient().Today(cmd.Context(), date)
	if err != nil {
		return err
	}
	printTasks(os.Stdout, tasks)
	return nil
}

func printTasks(out io.Writer, tasks []models.Task) {
	if len(tasks) == 0 {
		fmt.Fprintln(out, "No tasks found")
		return
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTITLE\tSTATUS\tREMIND AT\tREPEAT")
	for _, t := range tasks {
		when := ""
		if t.RemindAt != nil {
			when = t.RemindAt.Local().Format(timeLayout)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			chat.ShortID(t.ID), truncate(t.Title, 40), t.Status, when, t.Recurrence)
	}
	w.Flush()
}

func runTaskShow(cmd *cobra.Command, args []string) error {
	c := newAPIClient()
	task, err := c.GetTask(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	fmt.Printf("ID:          %s\n", task.ID)
	fmt.Printf("Title:       %s\n", task.Title)
	if task.Note != "" {
		fmt.Printf("Note:        %s\n", task.Note)
	}
	fmt.Printf("Status:      %s\n", task.Status)
	if task.RemindAt != nil {
		fmt.Printf("Remind At:   %s\n", task.RemindAt.Local().Format(timeLayout))
	}
	if task.Recurring() {
		fmt.Printf("Repeats:     %s\n", task.Recurrence)
	}
	fmt.Printf("Sent:        %d\n", task.RetryCount)
	fmt.Printf("Created:     %s\n", task.CreatedAt.Local().Format(time.RFC3339))
	fmt.Printf("Updated:     %s\n", task.UpdatedAt.Local().Format(time.RFC3339))

	entries, err := c.TaskAudit(cmd.Context(), task.ID, 10)
	if err != nil || len(entries) == 0 {
		return nil
	}
	fmt.Println("\nHistory:")
	for _, e := range entries {
		fmt.Printf("  %s  %-10s %s\n", e.Timestamp.Local().Format("01-02 15:04:05"), e.Action, e.Details)
	}
	return nil
}

func runTaskEdit(cmd *cobra.Command, args []string) error {
	var req client.EditTaskRequest
	flags := cmd.Flags()
	if flags.Changed("title") {
		req.Title = &editTitle
	}
	if flags.Changed("note") {
		req.Note = &taskNote
	}
	if flags.Changed("every") {
		req.Recurrence = &taskEvery
	}
	if taskAt != "" {
		at, err := parseLocalTime(taskAt)
		if err != nil {
			return err
		}
		req.RemindAt = at
	}
	req.ClearRemind = clearRemind
	req.ClearRecurrence = clearRecurring

	task, err := newAPIClient().EditTask(cmd.Context(), args[0], req)
	if err != nil {
		return err
	}
	fmt.Printf("Updated task %s: %s (%s)\n", chat.ShortID(task.ID), task.Title, task.Status)
	return nil
}

func transitionCmd(verb string, fn func(*client.Client, context.Context, string) (*models.Task, error)) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		task, err := fn(newAPIClient(), cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Printf("%s: %s (%s)\n", verb, task.Title, chat.ShortID(task.ID))
		return nil
	}
}

func runAck(cmd *cobra.Command, args []string) error {
	res, err := newAPIClient().Acknowledge(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Printf("Acknowledged %d task(s)\n", len(res.Tasks))
	for _, t := range res.Tasks {
		fmt.Printf("  • %s (%s)\n", t.Title, chat.ShortID(t.ID))
	}
	return nil
}

// --- Helpers ---

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
