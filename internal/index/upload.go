package index

import (
	"context"
	"fmt"
	"path"
	"path/filepath"

	"github.com/tonimelisma/globus-go/internal/transfer"
)

// UploadLabel labels the transfer task that publishes generated indexes.
const UploadLabel = "Upload index html files"

// Submitter submits transfer tasks. *transfer.Client satisfies it.
type Submitter interface {
	SubmitTransfer(ctx context.Context, data *transfer.TransferData) (*transfer.SubmitResult, error)
}

// UploadPlan is the set of (local, remote) pairs for one upload task.
type UploadPlan struct {
	Data  *transfer.TransferData
	Items []transfer.TransferItem
}

// PlanUpload maps each generated file to its place on the shared endpoint.
// localDir is the output directory as seen by the local endpoint; files are
// relative to it and land at the same relative path under remoteRoot.
func PlanUpload(localEndpoint, sharedEndpoint, localDir, remoteRoot string, files []string) (*UploadPlan, error) {
	if localEndpoint == "" {
		return nil, fmt.Errorf("index: upload needs a local endpoint")
	}

	if sharedEndpoint == "" {
		return nil, fmt.Errorf("index: upload needs a shared endpoint")
	}

	if len(files) == 0 {
		return nil, fmt.Errorf("index: nothing to upload")
	}

	abs, err := filepath.Abs(localDir)
	if err != nil {
		return nil, fmt.Errorf("index: resolving %s: %w", localDir, err)
	}

	data := transfer.NewTransferData(localEndpoint, sharedEndpoint, UploadLabel)

	for _, rel := range files {
		data.AddItem(
			filepath.ToSlash(filepath.Join(abs, filepath.FromSlash(rel))),
			path.Join(cleanDir(remoteRoot), rel),
			false,
		)
	}

	return &UploadPlan{Data: data, Items: data.Items}, nil
}

// Upload submits the plan and returns the task result.
func Upload(ctx context.Context, sub Submitter, plan *UploadPlan) (*transfer.SubmitResult, error) {
	res, err := sub.SubmitTransfer(ctx, plan.Data)
	if err != nil {
		return nil, fmt.Errorf("index: submitting upload: %w", err)
	}

	return res, nil
}
