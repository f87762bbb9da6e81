// Package share copies a directory from a private endpoint to a shared one
// and grants a user and/or group read access to the copy.
package share

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/tonimelisma/globus-go/internal/transfer"
)

// DefaultLabel labels the delete and transfer tasks of a share.
const DefaultLabel = "Share Data Example"

// Wait defaults for the pre-transfer delete.
const (
	DefaultWaitTimeout  = 10 * time.Minute
	DefaultPollInterval = 15 * time.Second
)

// Sentinel errors for conditions the caller may want to report specially.
var (
	ErrDestinationExists = errors.New("share: destination directory exists, delete the directory or use --delete")
	ErrDeleteTimeout     = errors.New("share: delete of existing destination did not finish in time")
)

// Client is the subset of the Transfer API a share needs.
type Client interface {
	Ls(ctx context.Context, endpointID, path string) ([]transfer.FileEntry, error)
	Mkdir(ctx context.Context, endpointID, path string) error
	SubmitDelete(ctx context.Context, data *transfer.DeleteData) (*transfer.SubmitResult, error)
	TaskWait(ctx context.Context, taskID string, timeout, interval time.Duration) (bool, error)
	AddACLRule(ctx context.Context, endpointID string, rule transfer.ACLRule) (string, error)
	SubmitTransfer(ctx context.Context, data *transfer.TransferData) (*transfer.SubmitResult, error)
}

// Resolver turns a username or identity UUID into an identity UUID.
// *auth.IdentityClient satisfies it.
type Resolver interface {
	ResolvePrincipal(ctx context.Context, v string) (string, error)
}

// Request describes one share.
type Request struct {
	SourceEndpoint  string
	SharedEndpoint  string
	SourcePath      string
	DestinationPath string

	// User is an identity UUID or a Globus username; Group is a group UUID.
	User  string
	Group string

	Label  string
	Delete bool

	// SyncLevel is a sync level name (exists, size, mtime, checksum), empty
	// for a plain copy.
	SyncLevel    string
	WaitTimeout  time.Duration
	PollInterval time.Duration
}

// Result reports what the share did.
type Result struct {
	DestinationDir string   `json:"destination_dir"`
	DeleteTaskID   string   `json:"delete_task_id,omitempty"`
	RuleIDs        []string `json:"rule_ids,omitempty"`
	TaskID         string   `json:"task_id"`
}

// Sharer runs shares.
type Sharer struct {
	client   Client
	resolver Resolver
	out      io.Writer
	logger   *slog.Logger
}

// New returns a Sharer. resolver may be nil when users are always given as
// UUIDs.
func New(client Client, resolver Resolver, out io.Writer, logger *slog.Logger) *Sharer {
	if out == nil {
		out = io.Discard
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Sharer{client: client, resolver: resolver, out: out, logger: logger}
}

// DestinationDir is where the source directory lands on the shared endpoint:
// its last path element under the destination path, with a trailing slash.
func DestinationDir(sourcePath, destinationPath string) string {
	leaf := path.Base(strings.TrimRight(sourcePath, "/"))
	if leaf == "/" || leaf == "." {
		leaf = ""
	}

	return strings.TrimRight(path.Join(destinationPath, leaf), "/") + "/"
}

func (r *Request) validate() error {
	var err error

	if r.SourceEndpoint, err = transfer.CanonicalID(r.SourceEndpoint); err != nil {
		return fmt.Errorf("share: source endpoint: %w", err)
	}

	if r.SharedEndpoint, err = transfer.CanonicalID(r.SharedEndpoint); err != nil {
		return fmt.Errorf("share: shared endpoint: %w", err)
	}

	if !strings.HasPrefix(r.SourcePath, "/") {
		return fmt.Errorf("share: source path must be absolute")
	}

	if !strings.HasPrefix(r.DestinationPath, "/") {
		return fmt.Errorf("share: destination path must be absolute")
	}

	if _, err := transfer.ParseSyncLevel(r.SyncLevel); err != nil {
		return fmt.Errorf("share: %w", err)
	}

	if r.Group != "" {
		if r.Group, err = transfer.CanonicalID(r.Group); err != nil {
			return fmt.Errorf("share: group: %w", err)
		}
	}

	return nil
}

// Share runs the whole procedure. It stops at the first failure; steps
// already done (a delete, a created directory, granted rules) are not
// rolled back.
func (s *Sharer) Share(ctx context.Context, req Request) (*Result, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	if req.Label == "" {
		req.Label = DefaultLabel
	}

	ep := req.SharedEndpoint

	if _, err := s.client.Ls(ctx, ep, req.DestinationPath); err != nil {
		return nil, fmt.Errorf("share: checking destination %s: %w", req.DestinationPath, err)
	}

	res := &Result{DestinationDir: DestinationDir(req.SourcePath, req.DestinationPath)}
	dest := res.DestinationDir

	// Resolve the user before touching anything so a typo fails cleanly.
	userID, err := s.resolveUser(ctx, req.User)
	if err != nil {
		return nil, err
	}

	if err := s.clearDestination(ctx, req, res); err != nil {
		return nil, err
	}

	s.printf("Creating destination directory %s\n", dest)

	if err := s.client.Mkdir(ctx, ep, dest); err != nil {
		return nil, fmt.Errorf("share: creating %s: %w", dest, err)
	}

	if userID != "" {
		s.printf("Granting user, %s, read access to the destination directory\n", req.User)

		if err := s.grant(ctx, ep, transfer.PrincipalIdentity, userID, dest, res); err != nil {
			return nil, err
		}
	}

	if req.Group != "" {
		s.printf("Granting group, %s, read access to the destination directory\n", req.Group)

		if err := s.grant(ctx, ep, transfer.PrincipalGroup, req.Group, dest, res); err != nil {
			return nil, err
		}
	}

	data := transfer.NewTransferData(req.SourceEndpoint, ep, req.Label)
	data.AddItem(req.SourcePath, dest, true)
	level, _ := transfer.ParseSyncLevel(req.SyncLevel)
	data.SetSyncLevel(level)

	s.printf("Submitting a transfer task\n")

	task, err := s.client.SubmitTransfer(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("share: submitting transfer: %w", err)
	}

	res.TaskID = task.TaskID
	s.printf("\ttask_id: %s\n", task.TaskID)
	s.printf("You can monitor the transfer task programmatically using the Transfer API"+
		", or go to the Web UI, %s.\n", transfer.ActivityURL(task.TaskID))

	s.logger.Info("share submitted",
		slog.String("task_id", task.TaskID),
		slog.String("destination", dest),
	)

	return res, nil
}

// clearDestination fails when the destination directory already exists,
// unless the request allows deleting it first.
func (s *Sharer) clearDestination(ctx context.Context, req Request, res *Result) error {
	dest := res.DestinationDir
	ep := req.SharedEndpoint

	_, err := s.client.Ls(ctx, ep, dest)

	switch {
	case errors.Is(err, transfer.ErrNotFound):
		return nil
	case err != nil:
		return fmt.Errorf("share: checking %s: %w", dest, err)
	case !req.Delete:
		return ErrDestinationExists
	}

	s.printf("Destination directory, %s, exists and will be deleted\n", dest)

	del := transfer.NewDeleteData(ep, req.Label, true)
	del.AddItem(dest)

	s.printf("Submitting a delete task\n")

	task, err := s.client.SubmitDelete(ctx, del)
	if err != nil {
		return fmt.Errorf("share: deleting %s: %w", dest, err)
	}

	res.DeleteTaskID = task.TaskID
	s.printf("\ttask_id: %s\n", task.TaskID)

	timeout, interval := req.WaitTimeout, req.PollInterval
	if timeout <= 0 {
		timeout = DefaultWaitTimeout
	}

	if interval <= 0 {
		interval = DefaultPollInterval
	}

	done, err := s.client.TaskWait(ctx, task.TaskID, timeout, interval)
	if err != nil {
		return fmt.Errorf("share: waiting for delete %s: %w", task.TaskID, err)
	}

	if !done {
		return fmt.Errorf("%w (task %s)", ErrDeleteTimeout, task.TaskID)
	}

	return nil
}

func (s *Sharer) resolveUser(ctx context.Context, user string) (string, error) {
	if user == "" {
		return "", nil
	}

	if id, err := transfer.CanonicalID(user); err == nil {
		return id, nil
	}

	if s.resolver == nil {
		return "", fmt.Errorf("share: %q is not an identity UUID and no identity lookup is available", user)
	}

	id, err := s.resolver.ResolvePrincipal(ctx, user)
	if err != nil {
		return "", fmt.Errorf("share: resolving user %q: %w", user, err)
	}

	return id, nil
}

// grant adds a read rule. A rule that already exists counts as granted.
func (s *Sharer) grant(ctx context.Context, ep, principalType, principal, dest string, res *Result) error {
	id, err := s.client.AddACLRule(ctx, ep, transfer.ACLRule{
		PrincipalType: principalType,
		Principal:     principal,
		Path:          dest,
		Permissions:   "r",
	})
	if errors.Is(err, transfer.ErrExists) {
		s.logger.Debug("access rule already exists", slog.String("principal", principal))
		return nil
	}

	if err != nil {
		return fmt.Errorf("share: granting %s %s read access: %w", principalType, principal, err)
	}

	res.RuleIDs = append(res.RuleIDs, id)

	return nil
}

func (s *Sharer) printf(format string, args ...any) {
	fmt.Fprintf(s.out, format, args...)
}
