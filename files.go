package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/globus-go/internal/config"
	"github.com/tonimelisma/globus-go/internal/ledger"
	"github.com/tonimelisma/globus-go/internal/transfer"
)

func newLsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ls ENDPOINT[:PATH]",
		Short: "List a directory on an endpoint",
		Long: `List a directory on an endpoint. ENDPOINT is a UUID or an alias from the
[endpoints] config section; PATH defaults to the home directory (/~/).`,
		Args: cobra.ExactArgs(1),
		RunE: runLs,
	}
}

func newMkdirCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mkdir ENDPOINT:PATH",
		Short: "Create a directory on an endpoint",
		Args:  cobra.ExactArgs(1),
		RunE:  runMkdir,
	}
}

type submitFlags struct {
	label     string
	recursive bool
	wait      bool
	syncLevel string
}

func newTransferCmd() *cobra.Command {
	var f submitFlags

	cmd := &cobra.Command{
		Use:   "transfer SOURCE DESTINATION",
		Short: "Submit a transfer task",
		Long: `Submit a transfer task from SOURCE to DESTINATION, both given as
ENDPOINT:PATH. The task is recorded in the local task ledger.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTransfer(cmd, args, f)
		},
	}

	cmd.Flags().StringVar(&f.label, "label", "", "task label (default transfer.label)")
	cmd.Flags().BoolVarP(&f.recursive, "recursive", "r", false, "transfer a directory")
	cmd.Flags().BoolVar(&f.wait, "wait", false, "wait for the task to finish")
	cmd.Flags().StringVar(&f.syncLevel, "sync-level", "", "exists, size, mtime or checksum (default transfer.sync_level)")

	return cmd
}

func newRmCmd() *cobra.Command {
	var f submitFlags

	cmd := &cobra.Command{
		Use:   "rm ENDPOINT:PATH...",
		Short: "Submit a delete task",
		Long: `Submit one delete task for the given paths. All paths must be on the same
endpoint. Directories need --recursive.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRm(cmd, args, f)
		},
	}

	cmd.Flags().StringVar(&f.label, "label", "", "task label (default transfer.label)")
	cmd.Flags().BoolVarP(&f.recursive, "recursive", "r", false, "delete directories and their contents")
	cmd.Flags().BoolVar(&f.wait, "wait", false, "wait for the task to finish")

	return cmd
}

// lsEntry is the JSON schema for `ls --json`.
type lsEntry struct {
	Name         string `json:"name"`
	Type         string `json:"type"`
	Size         int64  `json:"size"`
	LastModified string `json:"last_modified"`
	Permissions  string `json:"permissions,omitempty"`
}

func runLs(cmd *cobra.Command, args []string) error {
	cc := mustCLIContext(cmd.Context())
	ctx := cmd.Context()

	ep, err := cc.endpointPath(args[0])
	if err != nil {
		return err
	}

	client, err := cc.transferClient(ctx)
	if err != nil {
		return err
	}

	entries, err := client.Ls(ctx, ep.Endpoint, ep.Path)
	if err != nil {
		return fmt.Errorf("listing %s: %w", ep, err)
	}

	if cc.Flags.JSON {
		out := make([]lsEntry, 0, len(entries))
		for _, e := range entries {
			out = append(out, lsEntry{
				Name:         e.Name,
				Type:         e.Type,
				Size:         e.Size,
				LastModified: e.LastModified,
				Permissions:  e.Permissions,
			})
		}

		return cc.PrintJSON(out)
	}

	printTable(cc.Out, []string{"SIZE", "MODIFIED", "NAME"}, lsRows(entries))

	return nil
}

func lsRows(entries []transfer.FileEntry) [][]string {
	rows := make([][]string, 0, len(entries))

	for _, e := range entries {
		name, size := e.Name, formatSize(e.Size)

		switch e.Type {
		case transfer.EntryDir:
			name += "/"
			size = "-"
		case transfer.EntryLink:
			if e.LinkTarget != "" {
				name += " -> " + e.LinkTarget
			}
		}

		rows = append(rows, []string{size, formatListingTime(e.LastModified), name})
	}

	return rows
}

func runMkdir(cmd *cobra.Command, args []string) error {
	cc := mustCLIContext(cmd.Context())
	ctx := cmd.Context()

	ep, err := cc.endpointPath(args[0])
	if err != nil {
		return err
	}

	client, err := cc.transferClient(ctx)
	if err != nil {
		return err
	}

	if err := client.Mkdir(ctx, ep.Endpoint, ep.Path); err != nil {
		return fmt.Errorf("creating %s: %w", ep, err)
	}

	cc.Statusf("Created %s\n", ep)

	return nil
}

func runTransfer(cmd *cobra.Command, args []string, f submitFlags) error {
	cc := mustCLIContext(cmd.Context())
	ctx := cmd.Context()

	src, err := cc.endpointPath(args[0])
	if err != nil {
		return err
	}

	dst, err := cc.endpointPath(args[1])
	if err != nil {
		return err
	}

	levelName := f.syncLevel
	if levelName == "" {
		levelName = cc.Cfg.Transfer.SyncLevel
	}

	level, err := transfer.ParseSyncLevel(levelName)
	if err != nil {
		return err
	}

	label := labelOr(f.label, cc.Cfg.Transfer.Label)

	data := transfer.NewTransferData(src.Endpoint, dst.Endpoint, label)
	data.AddItem(src.Path, dst.Path, f.recursive)
	data.SetSyncLevel(level)

	client, err := cc.transferClient(ctx)
	if err != nil {
		return err
	}

	res, err := client.SubmitTransfer(ctx, data)
	if err != nil {
		return fmt.Errorf("submitting transfer: %w", err)
	}

	cc.recordTask(ctx, &ledger.Entry{
		TaskID:              res.TaskID,
		Kind:                ledger.KindTransfer,
		Label:               label,
		SourceEndpoint:      src.Endpoint,
		SourcePath:          src.Path,
		DestinationEndpoint: dst.Endpoint,
		DestinationPath:     dst.Path,
	})

	return reportSubmitted(ctx, cc, client, res.TaskID, f.wait)
}

func runRm(cmd *cobra.Command, args []string, f submitFlags) error {
	cc := mustCLIContext(cmd.Context())
	ctx := cmd.Context()

	targets := make([]transfer.EndpointPath, 0, len(args))

	for _, a := range args {
		ep, err := cc.endpointPath(a)
		if err != nil {
			return err
		}

		if len(targets) > 0 && ep.Endpoint != targets[0].Endpoint {
			return fmt.Errorf("all paths must be on one endpoint (%s vs %s)", targets[0].Endpoint, ep.Endpoint)
		}

		targets = append(targets, ep)
	}

	label := labelOr(f.label, cc.Cfg.Transfer.Label)

	data := transfer.NewDeleteData(targets[0].Endpoint, label, f.recursive)
	for _, t := range targets {
		data.AddItem(t.Path)
	}

	client, err := cc.transferClient(ctx)
	if err != nil {
		return err
	}

	res, err := client.SubmitDelete(ctx, data)
	if err != nil {
		return fmt.Errorf("submitting delete: %w", err)
	}

	e := &ledger.Entry{
		TaskID:         res.TaskID,
		Kind:           ledger.KindDelete,
		Label:          label,
		SourceEndpoint: targets[0].Endpoint,
	}
	if len(targets) == 1 {
		e.SourcePath = targets[0].Path
	}

	cc.recordTask(ctx, e)

	return reportSubmitted(ctx, cc, client, res.TaskID, f.wait)
}

// reportSubmitted prints the new task and optionally waits for it.
func reportSubmitted(ctx context.Context, cc *CLIContext, client *transfer.Client, taskID string, wait bool) error {
	if cc.Flags.JSON && !wait {
		return cc.PrintJSON(map[string]string{"task_id": taskID, "url": transfer.ActivityURL(taskID)})
	}

	fmt.Fprintf(cc.Out, "Task ID: %s\n", taskID)
	cc.Statusf("Monitor it at %s\n", transfer.ActivityURL(taskID))

	if !wait {
		return nil
	}

	return waitForTask(ctx, cc, client, taskID, 0, 0)
}

// waitForTask polls a task until it finishes, the timeout passes or ctx is
// canceled, then prints its final state. Zero durations take the
// [transfer] config values.
func waitForTask(ctx context.Context, cc *CLIContext, client *transfer.Client, taskID string, timeout, interval time.Duration) error {
	if timeout <= 0 {
		timeout = config.Duration(cc.Cfg.Transfer.WaitTimeout)
	}

	if interval <= 0 {
		interval = config.Duration(cc.Cfg.Transfer.PollInterval)
	}

	cc.Statusf("Waiting for task %s (timeout %s)\n", taskID, timeout)

	done, err := client.TaskWait(ctx, taskID, timeout, interval)
	if err != nil {
		return fmt.Errorf("waiting for task %s: %w", taskID, err)
	}

	task, err := client.GetTask(ctx, taskID)
	if err != nil {
		return fmt.Errorf("fetching task %s: %w", taskID, err)
	}

	updateLedgerStatus(ctx, cc, task)

	if err := printTask(cc, task); err != nil {
		return err
	}

	if !done {
		return fmt.Errorf("task %s still %s after %s", taskID, task.Status, timeout)
	}

	if task.Status == transfer.StatusFailed {
		return fmt.Errorf("task %s failed", taskID)
	}

	return nil
}

func labelOr(label, fallback string) string {
	if label != "" {
		return label
	}

	return fallback
}
