package transfer

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// GetTask fetches one task by ID.
func (c *Client) GetTask(ctx context.Context, taskID string) (*Task, error) {
	if err := ValidateID(taskID); err != nil {
		return nil, err
	}

	var t Task
	if err := c.getJSON(ctx, "/task/"+taskID, nil, &t); err != nil {
		return nil, fmt.Errorf("transfer: getting task %s: %w", taskID, err)
	}

	return &t, nil
}

// TaskWait polls a task every interval until it reaches a terminal status or
// timeout elapses. Returns true when the task finished in time.
func (c *Client) TaskWait(ctx context.Context, taskID string, timeout, interval time.Duration) (bool, error) {
	if interval <= 0 {
		interval = time.Second
	}

	deadline := time.Now().Add(timeout)

	for {
		t, err := c.GetTask(ctx, taskID)
		if err != nil {
			return false, err
		}

		if t.Done() {
			return true, nil
		}

		if !time.Now().Add(interval).Before(deadline) {
			return false, nil
		}

		c.logger.Debug("waiting for task", "task_id", taskID, "status", t.Status)

		if err := c.sleepFunc(ctx, interval); err != nil {
			return false, fmt.Errorf("transfer: waiting for task %s: %w", taskID, err)
		}
	}
}

// TaskList returns the caller's most recent tasks, newest first.
func (c *Client) TaskList(ctx context.Context, limit int) ([]Task, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}

	q.Set("orderby", "request_time DESC")

	var out struct {
		Data []Task `json:"DATA"`
	}

	if err := c.getJSON(ctx, "/task_list", q, &out); err != nil {
		return nil, fmt.Errorf("transfer: listing tasks: %w", err)
	}

	return out.Data, nil
}

// TaskFilter narrows an endpoint-manager task list.
type TaskFilter struct {
	Status   []string
	Endpoint string
	// CompletedFrom and CompletedTo bound the completion time; both zero
	// means no bound.
	CompletedFrom time.Time
	CompletedTo   time.Time
	Fields        []string
	PageSize      int
}

// CompletionRange formats a completion-time window the way the task list
// filter expects: two UTC ISO timestamps without fractional seconds,
// joined by a comma.
func CompletionRange(from, to time.Time) string {
	const layout = "2006-01-02T15:04:05"
	return from.UTC().Truncate(time.Second).Format(layout) + "," + to.UTC().Truncate(time.Second).Format(layout)
}

func (f TaskFilter) query() url.Values {
	q := url.Values{}
	if len(f.Status) > 0 {
		q.Set("filter_status", strings.Join(f.Status, ","))
	}

	if f.Endpoint != "" {
		q.Set("filter_endpoint", f.Endpoint)
	}

	if !f.CompletedFrom.IsZero() || !f.CompletedTo.IsZero() {
		q.Set("filter_completion_time", CompletionRange(f.CompletedFrom, f.CompletedTo))
	}

	if len(f.Fields) > 0 {
		q.Set("fields", strings.Join(f.Fields, ","))
	}

	if f.PageSize > 0 {
		q.Set("limit", strconv.Itoa(f.PageSize))
	}

	return q
}

// ManagerTaskList lists tasks on endpoints the caller manages, following
// last_key pagination to the end.
func (c *Client) ManagerTaskList(ctx context.Context, filter TaskFilter) ([]Task, error) {
	q := filter.query()

	var all []Task

	for {
		var page struct {
			Data        []Task `json:"DATA"`
			HasNextPage bool   `json:"has_next_page"`
			LastKey     string `json:"last_key"`
		}

		if err := c.getJSON(ctx, "/endpoint_manager/task_list", q, &page); err != nil {
			return nil, fmt.Errorf("transfer: listing managed tasks: %w", err)
		}

		all = append(all, page.Data...)

		if !page.HasNextPage || page.LastKey == "" {
			return all, nil
		}

		q.Set("last_key", page.LastKey)
	}
}

// ManagerSuccessfulTransfers lists the files a managed task transferred,
// following next_marker pagination to the end.
func (c *Client) ManagerSuccessfulTransfers(ctx context.Context, taskID string) ([]SuccessfulTransfer, error) {
	if err := ValidateID(taskID); err != nil {
		return nil, err
	}

	q := url.Values{}
	path := "/endpoint_manager/task/" + taskID + "/successful_transfers"

	var all []SuccessfulTransfer

	for {
		var page struct {
			Data       []SuccessfulTransfer `json:"DATA"`
			NextMarker string               `json:"next_marker"`
		}

		if err := c.getJSON(ctx, path, q, &page); err != nil {
			return nil, fmt.Errorf("transfer: listing successful transfers of %s: %w", taskID, err)
		}

		all = append(all, page.Data...)

		if page.NextMarker == "" {
			return all, nil
		}

		q.Set("marker", page.NextMarker)
	}
}
