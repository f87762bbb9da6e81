package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/tonimelisma/globus-go/internal/config"
)

// version is set at build time via ldflags.
var version = "dev"

// logMaxSizeMB is the size at which the log file rotates.
const logMaxSizeMB = 20

// CLIFlags holds the persistent flags shared by every command.
type CLIFlags struct {
	ConfigPath string
	AuthMode   string
	TokenFile  string
	JSON       bool
	Verbose    bool
	Quiet      bool
}

// CLIContext is what PersistentPreRunE hands to each command: the layered
// config, the logger and the output stream.
type CLIContext struct {
	Flags  CLIFlags
	Cfg    *config.Resolved
	Logger *slog.Logger
	Out    io.Writer

	logCloser io.Closer
}

type cliContextKey struct{}

func withCLIContext(ctx context.Context, cc *CLIContext) context.Context {
	return context.WithValue(ctx, cliContextKey{}, cc)
}

func cliContextFrom(ctx context.Context) *CLIContext {
	if ctx == nil {
		return nil
	}

	cc, _ := ctx.Value(cliContextKey{}).(*CLIContext)

	return cc
}

// mustCLIContext returns the CLIContext stored by the root pre-run. Panics
// if a command runs without it, which is a wiring bug.
func mustCLIContext(ctx context.Context) *CLIContext {
	cc := cliContextFrom(ctx)
	if cc == nil {
		panic("globus-go: command ran without CLI context")
	}

	return cc
}

// newRootCmd builds and returns the fully-assembled root command with all
// subcommands registered. Called once from main().
func newRootCmd() *cobra.Command {
	var flags CLIFlags

	cmd := &cobra.Command{
		Use:   "globus-go",
		Short: "Globus Transfer command line tools",
		Long: `Move, share, mirror and index data on Globus endpoints.

Authenticate once with 'globus-go login' (or a confidential client with
--auth client-credentials), then list, transfer and share data, keep a folder
in sync from cron, clean up a shared cache and publish directory indexes.`,
		Version:       version,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cc, err := newCLIContext(flags, cmd.OutOrStdout())
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			// Every command gets a context that the first SIGINT/SIGTERM
			// cancels.
			ctx = shutdownContext(ctx, cc.Logger)
			cmd.SetContext(withCLIContext(ctx, cc))

			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			if cc := cliContextFrom(cmd.Context()); cc != nil && cc.logCloser != nil {
				return cc.logCloser.Close()
			}

			return nil
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&flags.ConfigPath, "config", "", "config file path")
	pf.StringVar(&flags.AuthMode, "auth", "", "auth mode: native or client-credentials")
	pf.StringVar(&flags.TokenFile, "token-file", "", "token cache path")
	pf.BoolVar(&flags.JSON, "json", false, "output in JSON format")
	pf.BoolVarP(&flags.Verbose, "verbose", "v", false, "enable debug logging")
	pf.BoolVarP(&flags.Quiet, "quiet", "q", false, "suppress informational output")

	cmd.AddCommand(newLoginCmd())
	cmd.AddCommand(newLogoutCmd())
	cmd.AddCommand(newWhoamiCmd())
	cmd.AddCommand(newIdentityCmd())
	cmd.AddCommand(newLsCmd())
	cmd.AddCommand(newMkdirCmd())
	cmd.AddCommand(newTransferCmd())
	cmd.AddCommand(newRmCmd())
	cmd.AddCommand(newTaskCmd())
	cmd.AddCommand(newACLCmd())
	cmd.AddCommand(newShareCmd())
	cmd.AddCommand(newSyncCmd())
	cmd.AddCommand(newCleanupCmd())
	cmd.AddCommand(newIndexCmd())

	return cmd
}

// newCLIContext resolves the effective configuration from the four-layer
// override chain and builds the logger.
func newCLIContext(flags CLIFlags, out io.Writer) (*CLIContext, error) {
	cli := config.CLIOverrides{
		ConfigPath: flags.ConfigPath,
		AuthMode:   flags.AuthMode,
		TokenFile:  flags.TokenFile,
	}

	resolved, err := config.Resolve(config.ReadEnvOverrides(), cli)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	logger, closer, err := buildLogger(&resolved.Logging, flags)
	if err != nil {
		return nil, err
	}

	logger.Debug("config resolved",
		slog.String("config_path", resolved.ConfigPath),
		slog.String("auth_mode", resolved.Auth.Mode),
	)

	return &CLIContext{
		Flags:     flags,
		Cfg:       resolved,
		Logger:    logger,
		Out:       out,
		logCloser: closer,
	}, nil
}

// buildLogger creates an slog.Logger configured by the resolved config and
// CLI flags. Config-file log level provides the baseline; --verbose and
// --quiet override it. With logging.log_file set, records go to a rotated
// file instead of stderr and the returned closer must be closed.
func buildLogger(lc *config.LoggingConfig, flags CLIFlags) (*slog.Logger, io.Closer, error) {
	level := slog.LevelInfo

	if lc != nil {
		switch lc.LogLevel {
		case "debug":
			level = slog.LevelDebug
		case "warn":
			level = slog.LevelWarn
		case "error":
			level = slog.LevelError
		}
	}

	if flags.Verbose {
		level = slog.LevelDebug
	}

	if flags.Quiet {
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}

	if lc == nil || lc.LogFile == "" {
		return slog.New(slog.NewTextHandler(os.Stderr, opts)), nil, nil
	}

	if err := os.MkdirAll(filepath.Dir(lc.LogFile), 0o755); err != nil {
		return nil, nil, fmt.Errorf("creating log directory: %w", err)
	}

	lj := &lumberjack.Logger{
		Filename: lc.LogFile,
		MaxSize:  logMaxSizeMB,
		MaxAge:   lc.LogRetentionDays,
		Compress: true,
	}

	return slog.New(slog.NewTextHandler(lj, opts)), lj, nil
}

// newHTTPClient returns the client shared by the REST APIs: a dial timeout
// from network.connect_timeout and an overall request timeout from
// network.data_timeout.
func newHTTPClient(nc config.NetworkConfig) *http.Client {
	dialer := &net.Dialer{Timeout: config.Duration(nc.ConnectTimeout)}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = dialer.DialContext
	transport.TLSHandshakeTimeout = dialer.Timeout

	return &http.Client{
		Transport: transport,
		Timeout:   config.Duration(nc.DataTimeout),
	}
}
