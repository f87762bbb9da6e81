// Package foldersync mirrors a folder from one endpoint to another with a
// checksum-level sync transfer. It is meant to run from cron: a run is
// skipped while the previous transfer for the same pair is still going.
package foldersync

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/tonimelisma/globus-go/internal/ledger"
	"github.com/tonimelisma/globus-go/internal/transfer"
)

// DefaultLabel labels sync transfers.
const DefaultLabel = "Folder Sync Example"

var (
	// ErrPreviousRunning means the last transfer for the pair has not
	// finished yet.
	ErrPreviousRunning = errors.New("foldersync: previous transfer still running")

	// ErrTokenExpired means the service rejected the stored credentials.
	ErrTokenExpired = errors.New("foldersync: refresh token has expired, run 'globus-go login' and try again")
)

// Client is the subset of the Transfer API a sync needs.
type Client interface {
	Autoactivate(ctx context.Context, endpointID string) (*transfer.ActivationResult, error)
	Ls(ctx context.Context, endpointID, path string) ([]transfer.FileEntry, error)
	Mkdir(ctx context.Context, endpointID, path string) error
	GetTask(ctx context.Context, taskID string) (*transfer.Task, error)
	SubmitTransfer(ctx context.Context, data *transfer.TransferData) (*transfer.SubmitResult, error)
}

// Ledger stores the tasks earlier runs submitted. *ledger.Ledger satisfies it.
type Ledger interface {
	Latest(ctx context.Context, kind, key string) (*ledger.Entry, error)
	Record(ctx context.Context, e *ledger.Entry) error
	UpdateStatus(ctx context.Context, taskID, status string) error
}

// Request describes one sync.
type Request struct {
	Source      transfer.EndpointPath
	Destination transfer.EndpointPath
	Label       string

	// SyncLevel defaults to checksum.
	SyncLevel string

	// CreateDestination creates a missing destination directory instead of
	// failing.
	CreateDestination bool
}

// Result reports a submitted sync.
type Result struct {
	TaskID         string
	PreviousTaskID string
	URL            string
}

// Syncer runs folder syncs.
type Syncer struct {
	client Client
	ledger Ledger
	out    io.Writer
	logger *slog.Logger
}

// New returns a Syncer. A nil ledger disables the previous-run guard.
func New(client Client, l Ledger, out io.Writer, logger *slog.Logger) *Syncer {
	if out == nil {
		out = io.Discard
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Syncer{client: client, ledger: l, out: out, logger: logger}
}

// Sync submits one sync transfer after checking both sides.
func (s *Syncer) Sync(ctx context.Context, req Request) (*Result, error) {
	var err error

	if req.Source.Endpoint, err = transfer.CanonicalID(req.Source.Endpoint); err != nil {
		return nil, fmt.Errorf("foldersync: source endpoint: %w", err)
	}

	if req.Destination.Endpoint, err = transfer.CanonicalID(req.Destination.Endpoint); err != nil {
		return nil, fmt.Errorf("foldersync: destination endpoint: %w", err)
	}

	if req.Label == "" {
		req.Label = DefaultLabel
	}

	if req.SyncLevel == "" {
		req.SyncLevel = "checksum"
	}

	level, err := transfer.ParseSyncLevel(req.SyncLevel)
	if err != nil {
		return nil, fmt.Errorf("foldersync: %w", err)
	}

	res := &Result{}
	key := ledger.PairKey(req.Source.Endpoint, req.Source.Path, req.Destination.Endpoint, req.Destination.Path)

	prev, err := s.checkPrevious(ctx, key)
	if err != nil {
		return nil, err
	}

	res.PreviousTaskID = prev

	for _, ep := range []string{req.Source.Endpoint, req.Destination.Endpoint} {
		if _, err := s.client.Autoactivate(ctx, ep); err != nil {
			if errors.Is(err, transfer.ErrUnauthorized) {
				return nil, fmt.Errorf("%w: %w", ErrTokenExpired, err)
			}

			return nil, fmt.Errorf("foldersync: activating %s: %w", ep, err)
		}
	}

	if err := s.checkPath(ctx, req.Source); err != nil {
		return nil, err
	}

	if req.CreateDestination {
		if err := s.ensureDestination(ctx, req.Destination); err != nil {
			return nil, err
		}
	} else if err := s.checkPath(ctx, req.Destination); err != nil {
		return nil, err
	}

	data := transfer.NewTransferData(req.Source.Endpoint, req.Destination.Endpoint, req.Label)
	data.SetSyncLevel(level)
	data.AddItem(req.Source.Path, req.Destination.Path, true)

	task, err := s.client.SubmitTransfer(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("foldersync: submitting transfer: %w", err)
	}

	res.TaskID = task.TaskID
	res.URL = transfer.TransferPageURL(req.Source, req.Destination)

	if s.ledger != nil {
		err := s.ledger.Record(ctx, &ledger.Entry{
			TaskID:              task.TaskID,
			Kind:                ledger.KindSync,
			Key:                 key,
			Label:               req.Label,
			SourceEndpoint:      req.Source.Endpoint,
			SourcePath:          req.Source.Path,
			DestinationEndpoint: req.Destination.Endpoint,
			DestinationPath:     req.Destination.Path,
			Status:              transfer.StatusActive,
		})
		if err != nil {
			// The transfer is already running; losing the record only
			// weakens the next run's guard.
			s.logger.Warn("recording sync task failed",
				slog.String("task_id", task.TaskID),
				slog.String("error", err.Error()),
			)
		}
	}

	s.printf("Transfer has been started from\n  %s\nto\n  %s\n", req.Source, req.Destination)
	s.printf("Visit the link below to see the changes:\n%s\n", res.URL)

	return res, nil
}

// checkPrevious returns the ID of the last task for the pair, or
// ErrPreviousRunning when that task is not finished.
func (s *Syncer) checkPrevious(ctx context.Context, key string) (string, error) {
	if s.ledger == nil {
		return "", nil
	}

	prev, err := s.ledger.Latest(ctx, ledger.KindSync, key)
	if errors.Is(err, ledger.ErrNotFound) {
		return "", nil
	}

	if err != nil {
		return "", fmt.Errorf("foldersync: reading ledger: %w", err)
	}

	task, err := s.client.GetTask(ctx, prev.TaskID)
	if errors.Is(err, transfer.ErrNotFound) {
		s.logger.Info("previous sync task no longer known to the service", slog.String("task_id", prev.TaskID))
		return prev.TaskID, nil
	}

	if err != nil {
		if errors.Is(err, transfer.ErrUnauthorized) {
			return "", fmt.Errorf("%w: %w", ErrTokenExpired, err)
		}

		return "", fmt.Errorf("foldersync: checking previous task %s: %w", prev.TaskID, err)
	}

	if task.Status != prev.Status {
		if err := s.ledger.UpdateStatus(ctx, prev.TaskID, task.Status); err != nil {
			s.logger.Warn("updating ledger failed", slog.String("error", err.Error()))
		}
	}

	if !task.Done() {
		s.printf("The last transfer status is %s, skipping run...\n", task.Status)
		return "", fmt.Errorf("%w (task %s is %s)", ErrPreviousRunning, prev.TaskID, task.Status)
	}

	return prev.TaskID, nil
}

func (s *Syncer) checkPath(ctx context.Context, ep transfer.EndpointPath) error {
	if _, err := s.client.Ls(ctx, ep.Endpoint, ep.Path); err != nil {
		return fmt.Errorf("foldersync: failed to query endpoint %q: %w", ep.Endpoint, err)
	}

	return nil
}

// ensureDestination creates the destination directory when listing it
// fails.
func (s *Syncer) ensureDestination(ctx context.Context, ep transfer.EndpointPath) error {
	_, err := s.client.Ls(ctx, ep.Endpoint, ep.Path)
	if err == nil {
		return nil
	}

	s.logger.Debug("destination not listable, creating",
		slog.String("path", ep.Path),
		slog.String("error", err.Error()),
	)

	if err := s.client.Mkdir(ctx, ep.Endpoint, ep.Path); err != nil {
		return fmt.Errorf("foldersync: failed to start transfer, has %s been granted write access? %w", ep, err)
	}

	s.printf("Created directory: %s\n", ep.Path)

	return nil
}

func (s *Syncer) printf(format string, args ...any) {
	fmt.Fprintf(s.out, format, args...)
}
