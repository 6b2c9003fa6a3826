package main

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"vidscribe/internal/api"
	"vidscribe/internal/logging"
)

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var (
		taskID string
		limit  int
		follow bool
	)
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show recent daemon log events",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := ctx.client()
			stdout := cmd.OutOrStdout()
			colorize := shouldColorize(stdout)

			resp, err := client.Logs(cmd.Context(), api.LogQuery{TaskID: taskID, Limit: limit})
			if err != nil {
				return ctx.wrapClientError(err)
			}
			printLogEvents(stdout, resp.Events, colorize)
			if !follow {
				return nil
			}

			since := resp.Next
			for {
				resp, err := client.Logs(cmd.Context(), api.LogQuery{Since: since, TaskID: taskID, Limit: limit, Follow: true})
				if err != nil {
					if cmd.Context().Err() != nil {
						return nil
					}
					return ctx.wrapClientError(err)
				}
				printLogEvents(stdout, resp.Events, colorize)
				if resp.Next > since {
					since = resp.Next
				}
			}
		},
	}
	cmd.Flags().StringVarP(&taskID, "task", "t", "", "Only show events for this task")
	cmd.Flags().IntVarP(&limit, "limit", "n", 100, "Maximum events per request")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep printing new events")
	return cmd
}

func printLogEvents(out io.Writer, events []logging.LogEvent, colorize bool) {
	for _, evt := range events {
		fmt.Fprintln(out, paint(formatLogEvent(evt), logLevelKind(evt.Level), colorize))
	}
}

func formatLogEvent(evt logging.LogEvent) string {
	var b strings.Builder
	b.WriteString(evt.Timestamp.Local().Format(time.TimeOnly))
	b.WriteString(" ")
	b.WriteString(fmt.Sprintf("%-5s", evt.Level))
	if evt.Component != "" {
		b.WriteString(" [" + evt.Component + "]")
	}
	if evt.TaskID != "" {
		b.WriteString(" " + evt.TaskID)
	}
	b.WriteString(" " + evt.Message)
	if len(evt.Fields) > 0 {
		keys := make([]string, 0, len(evt.Fields))
		for k := range evt.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			b.WriteString(" " + k + "=" + evt.Fields[k])
		}
	}
	return b.String()
}

func logLevelKind(level string) statusKind {
	switch strings.ToUpper(level) {
	case "ERROR":
		return statusError
	case "WARN":
		return statusWarn
	case "DEBUG":
		return statusInfo
	default:
		return statusOK
	}
}
