package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"vidscribe/internal/api"
	"vidscribe/internal/tasks"
)

func newTaskCommands(ctx *commandContext) []*cobra.Command {
	var submitLang string
	var submitWait bool
	submitCmd := &cobra.Command{
		Use:   "submit <url>",
		Short: "Submit a video URL for transcription and summary",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := ctx.client()
			sub, err := client.Submit(cmd.Context(), strings.TrimSpace(args[0]), strings.TrimSpace(submitLang))
			if err != nil {
				return ctx.wrapClientError(err)
			}
			stdout := cmd.OutOrStdout()
			fmt.Fprintf(stdout, "%s: %s\n", sub.TaskID, sub.Message)
			if !submitWait {
				return nil
			}
			task, err := followTask(cmd.Context(), client, sub.TaskID, stdout)
			if err != nil {
				return ctx.wrapClientError(err)
			}
			return finishedTaskError(task)
		},
	}
	submitCmd.Flags().StringVarP(&submitLang, "lang", "l", "", "Summary language (default tasks.default_language)")
	submitCmd.Flags().BoolVarP(&submitWait, "wait", "w", false, "Follow progress until the task finishes")

	var showJSON bool
	showCmd := &cobra.Command{
		Use:   "show <task-id>",
		Short: "Show one task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			task, err := ctx.client().Task(cmd.Context(), args[0])
			if err != nil {
				return ctx.wrapClientError(err)
			}
			if showJSON {
				return writeJSON(cmd, task)
			}
			stdout := cmd.OutOrStdout()
			printTaskDetail(stdout, task, shouldColorize(stdout))
			return nil
		},
	}
	showCmd.Flags().BoolVar(&showJSON, "json", false, "Output as JSON")

	var listJSON bool
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List stored tasks, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			list, err := ctx.client().Tasks(cmd.Context())
			if err != nil {
				return ctx.wrapClientError(err)
			}
			if listJSON {
				return writeJSON(cmd, list)
			}
			stdout := cmd.OutOrStdout()
			if len(list) == 0 {
				fmt.Fprintln(stdout, "No tasks")
				return nil
			}
			fmt.Fprint(stdout, renderTable(taskColumns(), taskRows(list)))
			return nil
		},
	}
	listCmd.Flags().BoolVar(&listJSON, "json", false, "Output as JSON")

	var activeJSON bool
	activeCmd := &cobra.Command{
		Use:   "active",
		Short: "Show running tasks and claimed URLs",
		RunE: func(cmd *cobra.Command, args []string) error {
			active, err := ctx.client().Active(cmd.Context())
			if err != nil {
				return ctx.wrapClientError(err)
			}
			if activeJSON {
				return writeJSON(cmd, active)
			}
			stdout := cmd.OutOrStdout()
			fmt.Fprintf(stdout, "Active tasks: %d\n", active.ActiveTasks)
			for _, url := range active.ProcessingURLs {
				fmt.Fprintf(stdout, "  %s\n", url)
			}
			return nil
		},
	}
	activeCmd.Flags().BoolVar(&activeJSON, "json", false, "Output as JSON")

	watchCmd := &cobra.Command{
		Use:   "watch <task-id>",
		Short: "Follow a task's progress until it finishes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			task, err := followTask(cmd.Context(), ctx.client(), args[0], cmd.OutOrStdout())
			if err != nil {
				return ctx.wrapClientError(err)
			}
			return finishedTaskError(task)
		},
	}

	cancelCmd := &cobra.Command{
		Use:     "cancel <task-id>",
		Aliases: []string{"rm"},
		Short:   "Cancel and remove a task",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := ctx.client().Cancel(cmd.Context(), args[0])
			if err != nil {
				return ctx.wrapClientError(err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", resp.TaskID, resp.Message)
			return nil
		},
	}

	return []*cobra.Command{submitCmd, showCmd, listCmd, activeCmd, watchCmd, cancelCmd}
}

// followTask prints one line per progress change and returns the last
// snapshot seen. A zero task means the task was removed while streaming.
func followTask(ctx context.Context, client *api.Client, id string, out io.Writer) (tasks.Task, error) {
	colorize := shouldColorize(out)
	var last tasks.Task
	err := client.Stream(ctx, id, func(ev api.StreamEvent) error {
		if ev.Heartbeat {
			return nil
		}
		task := ev.Task
		if task.Progress != last.Progress || task.Stage != last.Stage || task.Message != last.Message {
			fmt.Fprintln(out, paint(progressLine(task), taskStatusKind(task.Status), colorize))
		}
		last = task
		return nil
	})
	if err != nil {
		return last, err
	}
	if last.ID == "" || !last.IsTerminal() {
		// stream ended without a terminal snapshot: the task was cancelled
		return tasks.Task{}, nil
	}
	if last.Result != nil {
		for _, name := range last.Result.Files.Names() {
			fmt.Fprintf(out, "  %s\n", name)
		}
	}
	return last, nil
}

func finishedTaskError(task tasks.Task) error {
	switch {
	case task.ID == "":
		return fmt.Errorf("task was cancelled")
	case task.Status == tasks.StatusError:
		return fmt.Errorf("task %s failed: %s", task.ID, task.Error)
	}
	return nil
}

func progressLine(task tasks.Task) string {
	return fmt.Sprintf("[%3d%%] %-12s %s", task.Progress, task.Stage, task.Message)
}

func taskColumns() []column {
	return []column{
		{header: "ID"},
		{header: "Status"},
		{header: "Stage"},
		{header: "Progress", align: alignRight},
		{header: "Title", maxWidth: 40},
		{header: "Lang"},
		{header: "Updated"},
	}
}

func taskRows(list []tasks.Task) [][]string {
	rows := make([][]string, 0, len(list))
	for _, t := range list {
		title := t.Title
		if title == "" {
			title = t.URL
		}
		rows = append(rows, []string{
			t.ID,
			string(t.Status),
			string(t.Stage),
			fmt.Sprintf("%d%%", t.Progress),
			title,
			t.SummaryLanguage,
			formatAge(t.UpdatedAt),
		})
	}
	return rows
}

func printTaskDetail(out io.Writer, t tasks.Task, colorize bool) {
	fmt.Fprintln(out, renderStatusLine("Task", taskStatusKind(t.Status), fmt.Sprintf("%s (%s)", t.ID, t.Status), colorize))
	fmt.Fprintln(out, renderStatusLine("Stage", statusInfo, fmt.Sprintf("%s %d%%", t.Stage, t.Progress), colorize))
	if t.Message != "" {
		fmt.Fprintln(out, renderStatusLine("Message", statusInfo, t.Message, colorize))
	}
	fmt.Fprintln(out, renderStatusLine("URL", statusInfo, t.URL, colorize))
	if t.Title != "" {
		fmt.Fprintln(out, renderStatusLine("Title", statusInfo, t.Title, colorize))
	}
	fmt.Fprintln(out, renderStatusLine("Language", statusInfo, t.SummaryLanguage, colorize))
	if t.Error != "" {
		fmt.Fprintln(out, renderStatusLine("Error", statusError, t.Error, colorize))
	}
	if t.Result != nil {
		if t.Result.DetectedLanguage != "" {
			fmt.Fprintln(out, renderStatusLine("Detected", statusInfo, t.Result.DetectedLanguage, colorize))
		}
		for _, name := range t.Result.Files.Names() {
			fmt.Fprintln(out, renderStatusLine("File", statusOK, name, colorize))
		}
	}
	fmt.Fprintln(out, renderStatusLine("Created", statusInfo, t.CreatedAt.Local().Format(time.DateTime), colorize))
	fmt.Fprintln(out, renderStatusLine("Updated", statusInfo, formatAge(t.UpdatedAt), colorize))
}

func formatAge(ts time.Time) string {
	if ts.IsZero() {
		return ""
	}
	d := time.Since(ts)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return ts.Local().Format(time.DateOnly)
	}
}
