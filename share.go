package main

import (
	"github.com/spf13/cobra"

	"github.com/tonimelisma/globus-go/internal/config"
	"github.com/tonimelisma/globus-go/internal/ledger"
	"github.com/tonimelisma/globus-go/internal/share"
	"github.com/tonimelisma/globus-go/internal/transfer"
)

type shareFlags struct {
	sourceEndpoint  string
	sharedEndpoint  string
	sourcePath      string
	destinationPath string
	user            string
	group           string
	label           string
	syncLevel       string
	delete          bool
}

func newShareCmd() *cobra.Command {
	var f shareFlags

	cmd := &cobra.Command{
		Use:   "share",
		Short: "Copy a directory to a shared endpoint and grant read access",
		Long: `Copy SOURCE_PATH from the source endpoint into DESTINATION_PATH on a shared
endpoint and give a user and/or group read access to the copy.

The copy lands in a directory named after the last element of the source path.
If that directory already exists the command stops, unless --delete is given,
in which case it is deleted first and the command waits for the delete.

Defaults come from the [share] config section.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runShare(cmd, f)
		},
	}

	fl := cmd.Flags()
	fl.StringVar(&f.sourceEndpoint, "source-endpoint", "", "endpoint where the data is stored")
	fl.StringVar(&f.sharedEndpoint, "shared-endpoint", "", "shared endpoint to copy the data to")
	fl.StringVar(&f.sourcePath, "source-path", "", "absolute directory path on the source endpoint")
	fl.StringVar(&f.destinationPath, "destination-path", "", "absolute directory path on the shared endpoint")
	fl.StringVar(&f.user, "user", "", "identity UUID or username to share with")
	fl.StringVar(&f.group, "group", "", "group UUID to share with")
	fl.StringVar(&f.label, "label", "", "task label")
	fl.StringVar(&f.syncLevel, "sync-level", "", "sync level for the copy (default: plain copy)")
	fl.BoolVar(&f.delete, "delete", false, "delete the destination directory first if it exists")

	fl.StringVar(&f.user, "user-uuid", "", "alias of --user")
	fl.StringVar(&f.group, "group-uuid", "", "alias of --group")
	_ = fl.MarkHidden("user-uuid")
	_ = fl.MarkHidden("group-uuid")

	return cmd
}

// shareRequest layers the flags over the [share] config section.
func shareRequest(cfg *config.Config, f shareFlags) share.Request {
	sc := cfg.Share

	return share.Request{
		SourceEndpoint:  cfg.ResolveEndpoint(firstNonEmpty(f.sourceEndpoint, sc.SourceEndpoint)),
		SharedEndpoint:  cfg.ResolveEndpoint(firstNonEmpty(f.sharedEndpoint, sc.SharedEndpoint)),
		SourcePath:      firstNonEmpty(f.sourcePath, sc.SourcePath),
		DestinationPath: firstNonEmpty(f.destinationPath, sc.DestinationPath),
		User:            f.user,
		Group:           f.group,
		Label:           firstNonEmpty(f.label, sc.Label),
		Delete:          f.delete,
		SyncLevel:       f.syncLevel,
		WaitTimeout:     config.Duration(cfg.Transfer.WaitTimeout),
		PollInterval:    config.Duration(cfg.Transfer.PollInterval),
	}
}

func runShare(cmd *cobra.Command, f shareFlags) error {
	cc := mustCLIContext(cmd.Context())
	ctx := cmd.Context()

	req := shareRequest(cc.Cfg.Config, f)

	client, err := cc.transferClient(ctx)
	if err != nil {
		return err
	}

	var resolver share.Resolver

	if _, idErr := transfer.CanonicalID(req.User); req.User != "" && idErr != nil {
		ic, err := cc.identityClient(ctx)
		if err != nil {
			return err
		}

		resolver = ic
	}

	res, err := share.New(client, resolver, cc.textOut(), cc.Logger).Share(ctx, req)
	if err != nil {
		return err
	}

	if res.DeleteTaskID != "" {
		cc.recordTask(ctx, &ledger.Entry{
			TaskID:         res.DeleteTaskID,
			Kind:           ledger.KindDelete,
			Label:          req.Label,
			SourceEndpoint: req.SharedEndpoint,
			SourcePath:     res.DestinationDir,
		})
	}

	cc.recordTask(ctx, &ledger.Entry{
		TaskID:              res.TaskID,
		Kind:                ledger.KindShare,
		Label:               req.Label,
		SourceEndpoint:      req.SourceEndpoint,
		SourcePath:          req.SourcePath,
		DestinationEndpoint: req.SharedEndpoint,
		DestinationPath:     res.DestinationDir,
	})

	if cc.Flags.JSON {
		return cc.PrintJSON(res)
	}

	return nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}

	return ""
}
