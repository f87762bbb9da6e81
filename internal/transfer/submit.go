package transfer

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Sync levels for transfer tasks. A file is skipped when the destination
// already matches at the given level.
const (
	SyncExists   = 0
	SyncSize     = 1
	SyncMtime    = 2
	SyncChecksum = 3
)

var syncLevels = map[string]int{
	"exists":   SyncExists,
	"size":     SyncSize,
	"mtime":    SyncMtime,
	"checksum": SyncChecksum,
}

// ParseSyncLevel converts a sync level name into its numeric value. An empty
// name returns -1, meaning no sync level.
func ParseSyncLevel(name string) (int, error) {
	if name == "" {
		return -1, nil
	}

	level, ok := syncLevels[strings.ToLower(name)]
	if !ok {
		return 0, fmt.Errorf("transfer: unknown sync level %q (want exists, size, mtime, or checksum)", name)
	}

	return level, nil
}

// TransferItem is one source/destination pair in a transfer task.
type TransferItem struct {
	DataType        string `json:"DATA_TYPE"`
	SourcePath      string `json:"source_path"`
	DestinationPath string `json:"destination_path"`
	Recursive       bool   `json:"recursive"`
}

// TransferData is the body of a transfer submission.
type TransferData struct {
	DataType            string         `json:"DATA_TYPE"`
	SubmissionID        string         `json:"submission_id"`
	SourceEndpoint      string         `json:"source_endpoint"`
	DestinationEndpoint string         `json:"destination_endpoint"`
	Label               string         `json:"label,omitempty"`
	SyncLevel           *int           `json:"sync_level,omitempty"`
	Deadline            string         `json:"deadline,omitempty"`
	Items               []TransferItem `json:"DATA"`
}

// NewTransferData starts a transfer submission between two endpoints.
func NewTransferData(source, destination, label string) *TransferData {
	return &TransferData{
		DataType:            "transfer",
		SourceEndpoint:      source,
		DestinationEndpoint: destination,
		Label:               label,
	}
}

// AddItem appends a source/destination pair.
func (t *TransferData) AddItem(sourcePath, destinationPath string, recursive bool) {
	t.Items = append(t.Items, TransferItem{
		DataType:        "transfer_item",
		SourcePath:      sourcePath,
		DestinationPath: destinationPath,
		Recursive:       recursive,
	})
}

// SetSyncLevel sets the sync level; negative values clear it.
func (t *TransferData) SetSyncLevel(level int) {
	if level < 0 {
		t.SyncLevel = nil
		return
	}

	t.SyncLevel = &level
}

// SetDeadline sets the time after which the task is canceled.
func (t *TransferData) SetDeadline(deadline time.Time) {
	t.Deadline = formatDeadline(deadline)
}

// DeleteItem is one path in a delete task.
type DeleteItem struct {
	DataType string `json:"DATA_TYPE"`
	Path     string `json:"path"`
}

// DeleteData is the body of a delete submission.
type DeleteData struct {
	DataType     string       `json:"DATA_TYPE"`
	SubmissionID string       `json:"submission_id"`
	Endpoint     string       `json:"endpoint"`
	Label        string       `json:"label,omitempty"`
	Recursive    bool         `json:"recursive"`
	Deadline     string       `json:"deadline,omitempty"`
	Items        []DeleteItem `json:"DATA"`
}

// NewDeleteData starts a delete submission on one endpoint. Recursive must
// be set when any of the items is a directory.
func NewDeleteData(endpoint, label string, recursive bool) *DeleteData {
	return &DeleteData{
		DataType:  "delete",
		Endpoint:  endpoint,
		Label:     label,
		Recursive: recursive,
	}
}

// AddItem appends a path to delete.
func (d *DeleteData) AddItem(path string) {
	d.Items = append(d.Items, DeleteItem{DataType: "delete_item", Path: path})
}

// SetDeadline sets the time after which the task is canceled.
func (d *DeleteData) SetDeadline(deadline time.Time) {
	d.Deadline = formatDeadline(deadline)
}

func formatDeadline(t time.Time) string {
	if t.IsZero() {
		return ""
	}

	return t.UTC().Format("2006-01-02T15:04:05Z")
}

// SubmissionID fetches a fresh submission ID. Submitting twice with the same
// ID creates at most one task.
func (c *Client) SubmissionID(ctx context.Context) (string, error) {
	var out struct {
		Value string `json:"value"`
	}

	if err := c.getJSON(ctx, "/submission_id", nil, &out); err != nil {
		return "", fmt.Errorf("transfer: getting submission id: %w", err)
	}

	return out.Value, nil
}

// SubmitTransfer submits a transfer task, fetching a submission ID first when
// the data has none.
func (c *Client) SubmitTransfer(ctx context.Context, data *TransferData) (*SubmitResult, error) {
	if len(data.Items) == 0 {
		return nil, fmt.Errorf("transfer: refusing to submit transfer with no items")
	}

	if data.SubmissionID == "" {
		id, err := c.SubmissionID(ctx)
		if err != nil {
			return nil, err
		}

		data.SubmissionID = id
	}

	var out SubmitResult
	if err := c.doJSON(ctx, http.MethodPost, "/transfer", nil, data, &out); err != nil {
		return nil, fmt.Errorf("transfer: submitting transfer: %w", err)
	}

	c.logger.Info("transfer submitted", "task_id", out.TaskID, "items", len(data.Items))

	return &out, nil
}

// SubmitDelete submits a delete task, fetching a submission ID first when the
// data has none.
func (c *Client) SubmitDelete(ctx context.Context, data *DeleteData) (*SubmitResult, error) {
	if len(data.Items) == 0 {
		return nil, fmt.Errorf("transfer: refusing to submit delete with no items")
	}

	if data.SubmissionID == "" {
		id, err := c.SubmissionID(ctx)
		if err != nil {
			return nil, err
		}

		data.SubmissionID = id
	}

	var out SubmitResult
	if err := c.doJSON(ctx, http.MethodPost, "/delete", nil, data, &out); err != nil {
		return nil, fmt.Errorf("transfer: submitting delete: %w", err)
	}

	c.logger.Info("delete submitted", "task_id", out.TaskID, "items", len(data.Items))

	return &out, nil
}
