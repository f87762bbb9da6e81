// Package cleanup deletes data that was shared out of a staging endpoint once
// it has been picked up. For every transfer that left the endpoint inside
// the time window it removes the common directory of the transferred files
// and the access rule that exposed it.
package cleanup

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

// DefaultWindow is how far back completed transfers are considered.
const DefaultWindow = 24 * time.Hour

// ErrPermissionDenied is returned when the client identity lacks the
// endpoint roles needed to read other users' tasks.
var ErrPermissionDenied = errors.New("cleanup: permission denied listing endpoint tasks")

var taskFields = []string{
	"task_id", "type", "status",
	"source_endpoint_id", "destination_endpoint_id",
	"source_endpoint_display_name", "destination_endpoint_display_name",
	"owner_string", "completion_time",
}

// Client is the subset of the Transfer API a cleanup run needs.
type Client interface {
	Autoactivate(ctx context.Context, endpointID string) (*transfer.ActivationResult, error)
	ManagerTaskList(ctx context.Context, filter transfer.TaskFilter) ([]transfer.Task, error)
	ManagerSuccessfulTransfers(ctx context.Context, taskID string) ([]transfer.SuccessfulTransfer, error)
	Ls(ctx context.Context, endpointID, path string) ([]transfer.FileEntry, error)
	SubmitDelete(ctx context.Context, data *transfer.DeleteData) (*transfer.SubmitResult, error)
	ManagerACLList(ctx context.Context, endpointID string) ([]transfer.ACLRule, error)
	DeleteACLRule(ctx context.Context, endpointID, ruleID string) error
}

// Options configure one cleanup run.
type Options struct {
	SourceEndpoint string
	// ClientID names the client identity in the permission error message.
	ClientID string
	Window   time.Duration
	DryRun   bool
	Out      io.Writer
	Logger   *slog.Logger
	Now      func() time.Time
}

// Outcome records what happened to one source task.
type Outcome struct {
	TaskID       string   `json:"task_id"`
	CommonDir    string   `json:"common_dir,omitempty"`
	Files        []string `json:"files,omitempty"`
	DeleteTaskID string   `json:"delete_task_id,omitempty"`
	ACLRuleID    string   `json:"acl_rule_id,omitempty"`
	ACLRemoved   bool     `json:"acl_removed"`
	// Skipped explains why nothing was deleted, empty when a delete was
	// submitted (or planned, in dry-run mode).
	Skipped string `json:"skipped,omitempty"`
}

// Report summarizes a run.
type Report struct {
	Range    string    `json:"range"`
	Found    int       `json:"found"`
	Outcomes []Outcome `json:"outcomes"`
}

// Cleaner runs cleanups against one source endpoint.
type Cleaner struct {
	client Client
	opts   Options
}

// New returns a Cleaner. Window defaults to DefaultWindow.
func New(client Client, opts Options) (*Cleaner, error) {
	ep, err := transfer.CanonicalID(opts.SourceEndpoint)
	if err != nil {
		return nil, fmt.Errorf("cleanup: source endpoint: %w", err)
	}

	opts.SourceEndpoint = ep

	if opts.Window <= 0 {
		opts.Window = DefaultWindow
	}

	if opts.Out == nil {
		opts.Out = io.Discard
	}

	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Cleaner{client: client, opts: opts}, nil
}

// Run performs one cleanup pass. Per-task failures are reported and do not
// stop the pass; only failing to list tasks is fatal.
func (c *Cleaner) Run(ctx context.Context) (*Report, error) {
	ep := c.opts.SourceEndpoint
	now := c.opts.Now().UTC().Truncate(time.Second)
	from := now.Add(-c.opts.Window)

	rep := &Report{Range: transfer.CompletionRange(from, now)}
	c.printf("Cleaning up source endpoint %s \nfor outbound transfers completed in range %s\n\n", ep, rep.Range)

	if _, err := c.client.Autoactivate(ctx, ep); err != nil {
		return nil, fmt.Errorf("cleanup: activating %s: %w", ep, err)
	}

	tasks, err := c.client.ManagerTaskList(ctx, transfer.TaskFilter{
		Status:        []string{transfer.StatusSucceeded},
		Endpoint:      ep,
		CompletedFrom: from,
		CompletedTo:   now,
		Fields:        taskFields,
	})
	if errors.Is(err, transfer.ErrPermissionDenied) {
		return nil, fmt.Errorf("%w: give the app access at \"globus.org/app/endpoints/%s/roles\" "+
			"by adding \"%s@clients.auth.globus.org\" under Identity/E-mail as an "+
			"\"Access Manager\" and \"Activity Manager\"", ErrPermissionDenied, ep, c.opts.ClientID)
	}

	if err != nil {
		return nil, fmt.Errorf("cleanup: listing tasks: %w", err)
	}

	rep.Found = len(tasks)
	window := humanWindow(c.opts.Window)

	if len(tasks) == 0 {
		c.printf("No transfers from %s found in the last %s, nothing to clean up\n", ep, window)
		return rep, nil
	}

	c.printf("%d total transfers found from %s in the last %s, some may not be of type TRANSFER\n", len(tasks), ep, window)

	for i := range tasks {
		task := &tasks[i]
		if task.Type != transfer.TaskTypeTransfer || !strings.EqualFold(task.SourceEndpointID, ep) {
			continue
		}

		if err := ctx.Err(); err != nil {
			return rep, err
		}

		rep.Outcomes = append(rep.Outcomes, c.cleanTask(ctx, task))
	}

	return rep, nil
}

func (c *Cleaner) cleanTask(ctx context.Context, task *transfer.Task) Outcome {
	out := Outcome{TaskID: task.TaskID}
	logger := c.opts.Logger.With(slog.String("task_id", task.TaskID))

	c.printf("Transfer Task(%s): %s -> %s\n was submitted by %s\n\n",
		task.TaskID, endpointName(task.SourceEndpointDisplayName, task.SourceEndpointID),
		endpointName(task.DestinationEndpointDisplayName, task.DestinationEndpointID), task.OwnerString)

	transfers, err := c.client.ManagerSuccessfulTransfers(ctx, task.TaskID)
	if err != nil {
		out.Skipped = "listing transferred files failed"
		c.printf("Could not list files of task %s: %s\n", task.TaskID, message(err))
		logger.Warn("listing successful transfers failed", slog.String("error", err.Error()))

		return out
	}

	for _, t := range transfers {
		out.Files = append(out.Files, t.SourcePath)
	}

	if len(out.Files) == 0 {
		out.Skipped = "no files transferred"
		c.printf("Task %s transferred no files, nothing to delete\n", task.TaskID)

		return out
	}

	out.CommonDir = CommonDir(out.Files)
	ep := c.opts.SourceEndpoint

	if out.CommonDir != "" {
		if _, err := c.client.Ls(ctx, ep, out.CommonDir); err != nil {
			if errors.Is(err, transfer.ErrNotFound) {
				out.Skipped = "directory no longer present"
				c.printf("Directory %s no longer present on source endpoint, there is nothing to delete\n\n", out.CommonDir)
			} else {
				out.Skipped = "directory check failed"
				c.printf("Could not delete directory '%s': %s\n", out.CommonDir, message(err))
			}

			return out
		}
	}

	data := DeleteRequest(ep, task.TaskID, out.CommonDir, out.Files)

	if c.opts.DryRun {
		c.printf("Dry run: would delete %s\n", describeDelete(data))
		c.lookupACL(ctx, &out)

		return out
	}

	res, err := c.client.SubmitDelete(ctx, data)
	if err != nil {
		out.Skipped = "delete submission failed"
		c.printf("Could not delete directory '%s': %s\n", out.CommonDir, message(err))
		logger.Warn("submitting delete failed", slog.String("error", err.Error()))

		return out
	}

	out.DeleteTaskID = res.TaskID
	c.printf("Job to delete data has been submitted\n")
	logger.Info("delete submitted", slog.String("delete_task_id", res.TaskID), slog.String("dir", out.CommonDir))

	if !c.lookupACL(ctx, &out) {
		return out
	}

	if err := c.client.DeleteACLRule(ctx, ep, out.ACLRuleID); err != nil {
		c.printf("Couldn't delete acl rule %s\n", out.ACLRuleID)
		logger.Warn("deleting access rule failed", slog.String("rule_id", out.ACLRuleID), slog.String("error", err.Error()))

		return out
	}

	out.ACLRemoved = true
	c.printf("Acl deleted for directory %s/\n", out.CommonDir)

	return out
}

// lookupACL finds the rule exposing the common directory and stores its ID.
func (c *Cleaner) lookupACL(ctx context.Context, out *Outcome) bool {
	if out.CommonDir == "" {
		return false
	}

	ep := c.opts.SourceEndpoint

	rules, err := c.client.ManagerACLList(ctx, ep)
	if err != nil {
		c.printf("Couldn't get acl list for endpoint %s\n", ep)
		c.opts.Logger.Warn("listing access rules failed", slog.String("error", err.Error()))

		return false
	}

	want := out.CommonDir + "/"
	for _, r := range rules {
		if r.Path == want {
			out.ACLRuleID = r.ID
			if c.opts.DryRun {
				c.printf("Dry run: would delete acl rule %s for directory %s\n", r.ID, want)
			}

			return true
		}
	}

	c.printf("No acl found for directory %s\n", want)

	return false
}

// DeleteRequest builds the delete task for one source task: a recursive
// delete of the common directory, or every file individually when the
// files share no directory below the root.
func DeleteRequest(endpoint, taskID, commonDir string, files []string) *transfer.DeleteData {
	label := "deletion of " + taskID

	if commonDir != "" {
		data := transfer.NewDeleteData(endpoint, label, true)
		data.AddItem(commonDir)

		return data
	}

	data := transfer.NewDeleteData(endpoint, label, false)
	for _, f := range files {
		data.AddItem(f)
	}

	return data
}

// CommonDir returns the directory containing every path: the parent of
// their longest common string prefix. The prefix is compared character by
// character, so "/data/run1" and "/data/run2" give "/data" even though
// "/data/run" is no directory. An empty result (nothing in common, or only
// the root in common) means the files must be deleted one by one.
func CommonDir(paths []string) string {
	if len(paths) == 0 {
		return ""
	}

	prefix := paths[0]
	for _, p := range paths[1:] {
		n := 0
		for n < len(prefix) && n < len(p) && prefix[n] == p[n] {
			n++
		}

		prefix = prefix[:n]
	}

	dir := path.Dir(prefix)
	if prefix == "" || !strings.Contains(prefix, "/") {
		return ""
	}

	if dir == "/" || dir == "/~" || dir == "." {
		return ""
	}

	return dir
}

func describeDelete(d *transfer.DeleteData) string {
	paths := make([]string, 0, len(d.Items))
	for _, it := range d.Items {
		paths = append(paths, it.Path)
	}

	mode := "files"
	if d.Recursive {
		mode = "recursively"
	}

	return fmt.Sprintf("%s (%s) on %s", strings.Join(paths, ", "), mode, d.Endpoint)
}

func endpointName(display, id string) string {
	if display != "" {
		return display
	}

	return id
}

// message prefers the API's own message over the wrapped error chain.
func message(err error) string {
	var apiErr *transfer.APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}

	return err.Error()
}

func humanWindow(d time.Duration) string {
	if d%time.Hour == 0 {
		return fmt.Sprintf("%d hours", int(d/time.Hour))
	}

	return d.String()
}

func (c *Cleaner) printf(format string, args ...any) {
	fmt.Fprintf(c.opts.Out, format, args...)
}
