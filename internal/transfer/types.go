package transfer

import "time"

// Task statuses reported by the Transfer API.
const (
	StatusActive    = "ACTIVE"
	StatusInactive  = "INACTIVE"
	StatusSucceeded = "SUCCEEDED"
	StatusFailed    = "FAILED"
)

// Task types.
const (
	TaskTypeTransfer = "TRANSFER"
	TaskTypeDelete   = "DELETE"
)

// File entry types returned by ls.
const (
	EntryDir  = "dir"
	EntryFile = "file"
	EntryLink = "link"
)

// Endpoint is a Globus collection or endpoint.
type Endpoint struct {
	ID             string `json:"id"`
	DisplayName    string `json:"display_name"`
	OwnerString    string `json:"owner_string"`
	HostEndpointID string `json:"host_endpoint_id,omitempty"`
	Activated      bool   `json:"activated"`
	ExpiresIn      int    `json:"expires_in"`
}

// Shared reports whether the endpoint is a shared endpoint hosted on another.
func (e *Endpoint) Shared() bool {
	return e.HostEndpointID != ""
}

// Task is one transfer or delete task.
type Task struct {
	TaskID                         string    `json:"task_id"`
	Type                           string    `json:"type"`
	Status                         string    `json:"status"`
	Label                          string    `json:"label,omitempty"`
	SourceEndpointID               string    `json:"source_endpoint_id,omitempty"`
	DestinationEndpointID          string    `json:"destination_endpoint_id,omitempty"`
	SourceEndpointDisplayName      string    `json:"source_endpoint_display_name,omitempty"`
	DestinationEndpointDisplayName string    `json:"destination_endpoint_display_name,omitempty"`
	OwnerString                    string    `json:"owner_string,omitempty"`
	RequestTime                    time.Time `json:"request_time"`
	CompletionTime                 time.Time `json:"completion_time"`
	Files                          int       `json:"files"`
	FilesTransferred               int       `json:"files_transferred"`
	FilesSkipped                   int       `json:"files_skipped"`
	SubtasksFailed                 int       `json:"subtasks_failed"`
	BytesTransferred               int64     `json:"bytes_transferred"`
	NiceStatus                     string    `json:"nice_status,omitempty"`
}

// Done reports whether the task reached a terminal status.
func (t *Task) Done() bool {
	return t.Status == StatusSucceeded || t.Status == StatusFailed
}

// FileEntry is one row of a directory listing.
type FileEntry struct {
	Name         string `json:"name"`
	Type         string `json:"type"`
	Size         int64  `json:"size"`
	LastModified string `json:"last_modified"`
	Permissions  string `json:"permissions,omitempty"`
	User         string `json:"user,omitempty"`
	Group        string `json:"group,omitempty"`
	LinkTarget   string `json:"link_target,omitempty"`
}

// IsDir reports whether the entry is a directory.
func (f FileEntry) IsDir() bool {
	return f.Type == EntryDir
}

// Principal types for access rules.
const (
	PrincipalIdentity      = "identity"
	PrincipalGroup         = "group"
	PrincipalAuthenticated = "all_authenticated_users"
	PrincipalAnonymous     = "anonymous"
)

// ACLRule is one access rule on a shared endpoint.
type ACLRule struct {
	DataType      string `json:"DATA_TYPE"`
	ID            string `json:"id,omitempty"`
	PrincipalType string `json:"principal_type"`
	Principal     string `json:"principal"`
	Path          string `json:"path"`
	Permissions   string `json:"permissions"`
}

// SuccessfulTransfer is one file transferred by a task.
type SuccessfulTransfer struct {
	SourcePath      string `json:"source_path"`
	DestinationPath string `json:"destination_path"`
}

// SubmitResult is the response to a transfer or delete submission.
type SubmitResult struct {
	TaskID       string `json:"task_id"`
	SubmissionID string `json:"submission_id"`
	Code         string `json:"code"`
	Message      string `json:"message"`
	RequestID    string `json:"request_id"`
}
