package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/globus-go/internal/auth"
	"github.com/tonimelisma/globus-go/internal/cleanup"
	"github.com/tonimelisma/globus-go/internal/config"
	"github.com/tonimelisma/globus-go/internal/ledger"
)

type cleanupFlags struct {
	sourceEndpoint string
	window         time.Duration
	dryRun         bool
	schedule       string
	stop           bool
}

func newCleanupCmd() *cobra.Command {
	var f cleanupFlags

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete data that recent outbound transfers copied out of a cache endpoint",
		Long: `Find transfers out of the source endpoint that succeeded within the window,
delete what each one transferred and remove the access rule that let the
requester read it. Use this on a shared "cache" endpoint that users pull data
from once.

The app needs the Access Manager and Activity Manager roles on the endpoint,
which is why this command is normally run with --auth client-credentials.

With --schedule (or cleanup.schedule in the config) the command stays running
and cleans up on every activation of the cron expression. Only one scheduled
cleanup can run at a time; --stop ends it.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCleanup(cmd, f)
		},
	}

	fl := cmd.Flags()
	fl.StringVar(&f.sourceEndpoint, "source-endpoint", "", "cache endpoint to clean (default cleanup.source_endpoint)")
	fl.DurationVar(&f.window, "window", 0, "look back this far for completed transfers (default cleanup.window)")
	fl.BoolVar(&f.dryRun, "dry-run", false, "report what would be deleted without deleting")
	fl.StringVar(&f.schedule, "schedule", "", `run on a cron schedule, e.g. "@hourly" or "*/30 * * * *"`)
	fl.BoolVar(&f.stop, "stop", false, "stop the running scheduled cleanup")

	return cmd
}

// cleanupOptions layers the flags over the [cleanup] config section.
func cleanupOptions(cc *CLIContext, f cleanupFlags) cleanup.Options {
	cfg := cc.Cfg.Config

	window := f.window
	if window <= 0 {
		window = config.Duration(cfg.Cleanup.Window)
	}

	return cleanup.Options{
		SourceEndpoint: cfg.ResolveEndpoint(firstNonEmpty(f.sourceEndpoint, cfg.Cleanup.SourceEndpoint)),
		ClientID:       firstNonEmpty(cfg.Auth.ClientID, auth.DefaultClientID),
		Window:         window,
		DryRun:         f.dryRun,
		Out:            cc.textOut(),
		Logger:         cc.Logger,
	}
}

func runCleanup(cmd *cobra.Command, f cleanupFlags) error {
	cc := mustCLIContext(cmd.Context())
	ctx := cmd.Context()

	if f.stop {
		pid, err := stopScheduled(cc.Cfg.PIDPath)
		if err != nil {
			return err
		}

		cc.Statusf("Stopped scheduled cleanup (PID %d).\n", pid)

		return nil
	}

	client, err := cc.transferClient(ctx)
	if err != nil {
		return err
	}

	opts := cleanupOptions(cc, f)

	cleaner, err := cleanup.New(client, opts)
	if err != nil {
		return err
	}

	once := func(ctx context.Context) error {
		rep, err := cleaner.Run(ctx)
		if err != nil {
			return err
		}

		recordCleanup(ctx, cc, opts.SourceEndpoint, rep)

		if cc.Flags.JSON {
			return cc.PrintJSON(rep)
		}

		return nil
	}

	spec := firstNonEmpty(f.schedule, cc.Cfg.Cleanup.Schedule)
	if spec == "" {
		return once(ctx)
	}

	release, err := writePIDFile(cc.Cfg.PIDPath)
	if err != nil {
		return err
	}
	defer release()

	cc.Logger.Info("scheduled cleanup started",
		slog.String("schedule", spec),
		slog.String("pid_file", cc.Cfg.PIDPath),
	)
	cc.Statusf("Cleaning up on schedule %q, press Ctrl-C to stop.\n", spec)

	if err := cleanup.RunScheduled(ctx, spec, once, cc.Logger); err != nil {
		return fmt.Errorf("scheduled cleanup: %w", err)
	}

	return nil
}

// recordCleanup stores the delete tasks a run submitted.
func recordCleanup(ctx context.Context, cc *CLIContext, endpoint string, rep *cleanup.Report) {
	for _, o := range rep.Outcomes {
		if o.DeleteTaskID == "" {
			continue
		}

		cc.recordTask(ctx, &ledger.Entry{
			TaskID:         o.DeleteTaskID,
			Kind:           ledger.KindDelete,
			Label:          "deletion of " + o.TaskID,
			SourceEndpoint: endpoint,
			SourcePath:     o.CommonDir,
		})
	}
}
