package main

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/globus-go/internal/foldersync"
	"github.com/tonimelisma/globus-go/internal/transfer"
)

type syncFlags struct {
	label     string
	syncLevel string
	noCreate  bool
}

func newSyncCmd() *cobra.Command {
	var f syncFlags

	cmd := &cobra.Command{
		Use:   "sync [SOURCE DESTINATION]",
		Short: "Mirror a folder to another endpoint (safe to run from cron)",
		Long: `Submit a recursive transfer that only copies files whose checksums differ.
SOURCE and DESTINATION are ENDPOINT:PATH; without them the [sync] config
section is used.

A run is skipped (exit status 1) while the previous transfer for the same pair
is still in progress, so the command can be scheduled more often than a sync
takes.`,
		Args: func(_ *cobra.Command, args []string) error {
			if len(args) != 0 && len(args) != 2 {
				return errSyncArgs
			}

			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(cmd, args, f)
		},
	}

	cmd.Flags().StringVar(&f.label, "label", "", "task label (default sync.label)")
	cmd.Flags().StringVar(&f.syncLevel, "sync-level", "", "exists, size, mtime or checksum (default sync.sync_level)")
	cmd.Flags().BoolVar(&f.noCreate, "no-create", false, "fail instead of creating a missing destination")

	return cmd
}

var errSyncArgs = errors.New("sync takes both SOURCE and DESTINATION or neither")

// syncRequest builds the request from arguments, or from the [sync]
// section when there are none.
func syncRequest(cc *CLIContext, args []string, f syncFlags) (foldersync.Request, error) {
	sc := cc.Cfg.Sync

	req := foldersync.Request{
		Source:            transfer.EndpointPath{Endpoint: cc.Cfg.ResolveEndpoint(sc.SourceEndpoint), Path: sc.SourcePath},
		Destination:       transfer.EndpointPath{Endpoint: cc.Cfg.ResolveEndpoint(sc.DestinationEndpoint), Path: sc.DestinationPath},
		Label:             firstNonEmpty(f.label, sc.Label),
		SyncLevel:         firstNonEmpty(f.syncLevel, sc.SyncLevel),
		CreateDestination: sc.CreateDestination && !f.noCreate,
	}

	if len(args) == 2 {
		var err error

		if req.Source, err = cc.endpointPath(args[0]); err != nil {
			return req, err
		}

		if req.Destination, err = cc.endpointPath(args[1]); err != nil {
			return req, err
		}
	}

	return req, nil
}

func runSync(cmd *cobra.Command, args []string, f syncFlags) error {
	cc := mustCLIContext(cmd.Context())
	ctx := cmd.Context()

	req, err := syncRequest(cc, args, f)
	if err != nil {
		return err
	}

	client, err := cc.transferClient(ctx)
	if err != nil {
		return err
	}

	l, err := cc.openLedger(ctx)
	if err != nil {
		return err
	}
	defer l.Close()

	res, err := foldersync.New(client, l, cc.textOut(), cc.Logger).Sync(ctx, req)
	if err != nil {
		return err
	}

	if cc.Flags.JSON {
		return cc.PrintJSON(map[string]string{
			"task_id":          res.TaskID,
			"previous_task_id": res.PreviousTaskID,
			"url":              res.URL,
		})
	}

	return nil
}
