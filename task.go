package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/globus-go/internal/ledger"
	"github.com/tonimelisma/globus-go/internal/transfer"
)

const defaultHistoryLimit = 20

func newTaskCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "task",
		Short: "Inspect transfer and delete tasks",
	}

	cmd.AddCommand(newTaskShowCmd())
	cmd.AddCommand(newTaskWaitCmd())
	cmd.AddCommand(newTaskListCmd())
	cmd.AddCommand(newTaskHistoryCmd())

	return cmd
}

func newTaskShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show TASK_ID",
		Short: "Show one task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc := mustCLIContext(cmd.Context())
			ctx := cmd.Context()

			client, err := cc.transferClient(ctx)
			if err != nil {
				return err
			}

			task, err := client.GetTask(ctx, args[0])
			if err != nil {
				return err
			}

			updateLedgerStatus(ctx, cc, task)

			return printTask(cc, task)
		},
	}
}

func newTaskWaitCmd() *cobra.Command {
	var timeout, interval time.Duration

	cmd := &cobra.Command{
		Use:   "wait TASK_ID",
		Short: "Wait for a task to finish",
		Long: `Poll a task until it succeeds or fails. Exits non-zero when the task
failed or is still running at the timeout.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc := mustCLIContext(cmd.Context())
			ctx := cmd.Context()

			client, err := cc.transferClient(ctx)
			if err != nil {
				return err
			}

			return waitForTask(ctx, cc, client, args[0], timeout, interval)
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 0, "give up after this long (default transfer.wait_timeout)")
	cmd.Flags().DurationVar(&interval, "interval", 0, "poll interval (default transfer.poll_interval)")

	return cmd
}

func newTaskListCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List your most recent tasks on the service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc := mustCLIContext(cmd.Context())
			ctx := cmd.Context()

			client, err := cc.transferClient(ctx)
			if err != nil {
				return err
			}

			tasks, err := client.TaskList(ctx, limit)
			if err != nil {
				return err
			}

			if cc.Flags.JSON {
				if tasks == nil {
					tasks = []transfer.Task{}
				}

				return cc.PrintJSON(tasks)
			}

			rows := make([][]string, 0, len(tasks))
			for _, t := range tasks {
				rows = append(rows, []string{t.TaskID, t.Type, t.Status, formatTime(t.RequestTime.Local()), t.Label})
			}

			printTable(cc.Out, []string{"TASK ID", "TYPE", "STATUS", "REQUESTED", "LABEL"}, rows)

			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", defaultHistoryLimit, "maximum number of tasks")

	return cmd
}

func newTaskHistoryCmd() *cobra.Command {
	var (
		limit   int
		refresh bool
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List tasks submitted by this tool",
		Long: `List the tasks recorded in the local task ledger, newest first. With
--refresh, unfinished tasks are looked up on the service and their status
updated.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runTaskHistory(cmd, limit, refresh)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", defaultHistoryLimit, "maximum number of tasks (0 for all)")
	cmd.Flags().BoolVar(&refresh, "refresh", false, "refresh the status of unfinished tasks")

	return cmd
}

func runTaskHistory(cmd *cobra.Command, limit int, refresh bool) error {
	cc := mustCLIContext(cmd.Context())
	ctx := cmd.Context()

	l, err := cc.openLedger(ctx)
	if err != nil {
		return err
	}
	defer l.Close()

	entries, err := l.List(ctx, limit)
	if err != nil {
		return err
	}

	if refresh {
		if err := refreshEntries(ctx, cc, l, entries); err != nil {
			return err
		}
	}

	if cc.Flags.JSON {
		if entries == nil {
			entries = []ledger.Entry{}
		}

		return cc.PrintJSON(entries)
	}

	printTable(cc.Out, []string{"TASK ID", "KIND", "STATUS", "SUBMITTED", "LABEL"}, historyRows(entries))

	return nil
}

func historyRows(entries []ledger.Entry) [][]string {
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, []string{e.TaskID, e.Kind, e.Status, formatTime(e.SubmittedAt.Local()), e.Label})
	}

	return rows
}

// refreshEntries fetches the live status of unfinished entries and stores it.
func refreshEntries(ctx context.Context, cc *CLIContext, l *ledger.Ledger, entries []ledger.Entry) error {
	client, err := cc.transferClient(ctx)
	if err != nil {
		return err
	}

	for i := range entries {
		e := &entries[i]
		if e.Status == transfer.StatusSucceeded || e.Status == transfer.StatusFailed {
			continue
		}

		task, err := client.GetTask(ctx, e.TaskID)
		if errors.Is(err, transfer.ErrNotFound) {
			continue
		}

		if err != nil {
			return err
		}

		if task.Status == e.Status {
			continue
		}

		if err := l.UpdateStatus(ctx, e.TaskID, task.Status); err != nil {
			return err
		}

		e.Status = task.Status
	}

	return nil
}

// updateLedgerStatus stores a fetched task's status if the ledger knows the
// task. Tasks submitted elsewhere are ignored.
func updateLedgerStatus(ctx context.Context, cc *CLIContext, task *transfer.Task) {
	l, err := cc.openLedger(ctx)
	if err != nil {
		cc.Logger.Debug("ledger unavailable", slog.String("error", err.Error()))
		return
	}
	defer l.Close()

	err = l.UpdateStatus(ctx, task.TaskID, task.Status)
	if err != nil && !errors.Is(err, ledger.ErrNotFound) {
		cc.Logger.Warn("updating ledger failed",
			slog.String("task_id", task.TaskID),
			slog.String("error", err.Error()),
		)
	}
}

func printTask(cc *CLIContext, t *transfer.Task) error {
	if cc.Flags.JSON {
		return cc.PrintJSON(t)
	}

	rows := [][]string{
		{"Task ID", t.TaskID},
		{"Type", t.Type},
		{"Status", t.Status},
	}

	if t.NiceStatus != "" {
		rows = append(rows, []string{"Detail", t.NiceStatus})
	}

	if t.Label != "" {
		rows = append(rows, []string{"Label", t.Label})
	}

	rows = append(rows,
		[]string{"Source", endpointLabel(t.SourceEndpointDisplayName, t.SourceEndpointID)},
	)

	if t.DestinationEndpointID != "" {
		rows = append(rows, []string{"Destination", endpointLabel(t.DestinationEndpointDisplayName, t.DestinationEndpointID)})
	}

	rows = append(rows,
		[]string{"Requested", formatTime(t.RequestTime.Local())},
		[]string{"Completed", formatTime(t.CompletionTime.Local())},
		[]string{"Files", strconv.Itoa(t.FilesTransferred) + "/" + strconv.Itoa(t.Files)},
		[]string{"Bytes", formatSize(t.BytesTransferred)},
	)

	if t.SubtasksFailed > 0 {
		rows = append(rows, []string{"Failures", strconv.Itoa(t.SubtasksFailed)})
	}

	for _, r := range rows {
		fmt.Fprintf(cc.Out, "%-12s %s\n", r[0]+":", r[1])
	}

	return nil
}

func endpointLabel(display, id string) string {
	if display == "" || display == id {
		return id
	}

	return display + " (" + id + ")"
}
