package foldersync

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/globus-go/internal/ledger"
	"github.com/tonimelisma/globus-go/internal/transfer"
)

const (
	srcEP = "ddb59aef-6d04-11e5-ba46-22000b92c6ec"
	dstEP = "ddb59af0-6d04-11e5-ba46-22000b92c6ec"
)

type fakeClient struct {
	activateErr error
	existing    map[string]bool
	mkdirErr    error
	taskStatus  map[string]string
	nextTaskID  string
	calls       []string
	submitted   []*transfer.TransferData
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		existing:   map[string]bool{srcEP + ":/share/godata/": true},
		taskStatus: map[string]string{},
		nextTaskID: "task-1",
	}
}

func (f *fakeClient) Autoactivate(_ context.Context, ep string) (*transfer.ActivationResult, error) {
	f.calls = append(f.calls, "activate "+ep)
	if f.activateErr != nil {
		return nil, f.activateErr
	}

	return &transfer.ActivationResult{Code: "AlreadyActivated"}, nil
}

func (f *fakeClient) Ls(_ context.Context, ep, path string) ([]transfer.FileEntry, error) {
	f.calls = append(f.calls, "ls "+ep+":"+path)
	if !f.existing[ep+":"+path] {
		return nil, &transfer.APIError{StatusCode: 404, Code: transfer.CodeNotFound, Message: "not found", Err: transfer.ErrNotFound}
	}

	return nil, nil
}

func (f *fakeClient) Mkdir(_ context.Context, ep, path string) error {
	f.calls = append(f.calls, "mkdir "+ep+":"+path)
	if f.mkdirErr != nil {
		return f.mkdirErr
	}

	f.existing[ep+":"+path] = true

	return nil
}

func (f *fakeClient) GetTask(_ context.Context, taskID string) (*transfer.Task, error) {
	f.calls = append(f.calls, "get "+taskID)

	status, ok := f.taskStatus[taskID]
	if !ok {
		return nil, &transfer.APIError{StatusCode: 404, Code: "TaskNotFound", Err: transfer.ErrNotFound}
	}

	return &transfer.Task{TaskID: taskID, Status: status}, nil
}

func (f *fakeClient) SubmitTransfer(_ context.Context, data *transfer.TransferData) (*transfer.SubmitResult, error) {
	f.calls = append(f.calls, "submit")
	f.submitted = append(f.submitted, data)

	return &transfer.SubmitResult{TaskID: f.nextTaskID}, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestLedger(t *testing.T) *ledger.Ledger {
	t.Helper()

	l, err := ledger.Open(context.Background(), filepath.Join(t.TempDir(), "ledger.db"), discardLogger())
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })

	return l
}

func baseRequest() Request {
	return Request{
		Source:            transfer.EndpointPath{Endpoint: srcEP, Path: "/share/godata/"},
		Destination:       transfer.EndpointPath{Endpoint: dstEP, Path: "/~/sync-demo/"},
		CreateDestination: true,
	}
}

func TestSync_FirstRunCreatesDestination(t *testing.T) {
	fc := newFakeClient()
	l := newTestLedger(t)

	var out bytes.Buffer
	s := New(fc, l, &out, discardLogger())

	res, err := s.Sync(context.Background(), baseRequest())
	require.NoError(t, err)

	assert.Equal(t, "task-1", res.TaskID)
	assert.Empty(t, res.PreviousTaskID)
	assert.Contains(t, res.URL, "origin_id="+srcEP)
	assert.Contains(t, res.URL, "destination_path=%2F~%2Fsync-demo%2F")

	assert.Equal(t, []string{
		"activate " + srcEP,
		"activate " + dstEP,
		"ls " + srcEP + ":/share/godata/",
		"ls " + dstEP + ":/~/sync-demo/",
		"mkdir " + dstEP + ":/~/sync-demo/",
		"submit",
	}, fc.calls)

	require.Len(t, fc.submitted, 1)
	td := fc.submitted[0]
	assert.Equal(t, DefaultLabel, td.Label)
	require.NotNil(t, td.SyncLevel)
	assert.Equal(t, transfer.SyncChecksum, *td.SyncLevel)
	assert.True(t, td.Items[0].Recursive)

	text := out.String()
	assert.Contains(t, text, "Created directory: /~/sync-demo/")
	assert.Contains(t, text, "Transfer has been started from\n  "+srcEP+":/share/godata/\nto\n  "+dstEP+":/~/sync-demo/\n")
	assert.Contains(t, text, "Visit the link below to see the changes:\nhttps://globus.org/app/transfer?")

	key := ledger.PairKey(srcEP, "/share/godata/", dstEP, "/~/sync-demo/")
	e, err := l.Latest(context.Background(), ledger.KindSync, key)
	require.NoError(t, err)
	assert.Equal(t, "task-1", e.TaskID)
}

func TestSync_SkipsWhilePreviousActive(t *testing.T) {
	fc := newFakeClient()
	l := newTestLedger(t)

	var out bytes.Buffer
	s := New(fc, l, &out, discardLogger())

	_, err := s.Sync(context.Background(), baseRequest())
	require.NoError(t, err)

	fc.taskStatus["task-1"] = transfer.StatusActive
	fc.nextTaskID = "task-2"
	fc.calls = nil

	_, err = s.Sync(context.Background(), baseRequest())
	assert.ErrorIs(t, err, ErrPreviousRunning)
	assert.Equal(t, []string{"get task-1"}, fc.calls)
	assert.Contains(t, out.String(), "The last transfer status is ACTIVE, skipping run...")
}

func TestSync_GuardMatchesOtherSpellings(t *testing.T) {
	fc := newFakeClient()
	l := newTestLedger(t)
	s := New(fc, l, nil, discardLogger())

	_, err := s.Sync(context.Background(), baseRequest())
	require.NoError(t, err)

	fc.taskStatus["task-1"] = transfer.StatusActive
	fc.calls = nil

	req := baseRequest()
	req.Source = transfer.EndpointPath{Endpoint: "DDB59AEF6D0411E5BA4622000B92C6EC", Path: "/share/godata"}
	req.Destination = transfer.EndpointPath{Endpoint: "{" + dstEP + "}", Path: "/~//sync-demo"}

	_, err = s.Sync(context.Background(), req)
	assert.ErrorIs(t, err, ErrPreviousRunning)
	assert.Equal(t, []string{"get task-1"}, fc.calls)
}

func TestSync_RunsAfterPreviousFinished(t *testing.T) {
	for _, status := range []string{transfer.StatusSucceeded, transfer.StatusFailed} {
		t.Run(status, func(t *testing.T) {
			fc := newFakeClient()
			l := newTestLedger(t)
			s := New(fc, l, nil, discardLogger())

			_, err := s.Sync(context.Background(), baseRequest())
			require.NoError(t, err)

			fc.taskStatus["task-1"] = status
			fc.nextTaskID = "task-2"

			res, err := s.Sync(context.Background(), baseRequest())
			require.NoError(t, err)
			assert.Equal(t, "task-1", res.PreviousTaskID)
			assert.Equal(t, "task-2", res.TaskID)

			prev, err := l.Get(context.Background(), "task-1")
			require.NoError(t, err)
			assert.Equal(t, status, prev.Status)
		})
	}
}

func TestSync_PreviousTaskUnknown(t *testing.T) {
	fc := newFakeClient()
	l := newTestLedger(t)
	s := New(fc, l, nil, discardLogger())

	require.NoError(t, l.Record(context.Background(), &ledger.Entry{
		TaskID: "gone", Kind: ledger.KindSync,
		Key: ledger.PairKey(srcEP, "/share/godata/", dstEP, "/~/sync-demo/"),
	}))

	res, err := s.Sync(context.Background(), baseRequest())
	require.NoError(t, err)
	assert.Equal(t, "gone", res.PreviousTaskID)
}

func TestSync_DifferentPairNotBlocked(t *testing.T) {
	fc := newFakeClient()
	l := newTestLedger(t)
	s := New(fc, l, nil, discardLogger())

	_, err := s.Sync(context.Background(), baseRequest())
	require.NoError(t, err)

	fc.taskStatus["task-1"] = transfer.StatusActive

	req := baseRequest()
	req.Destination.Path = "/~/other/"

	_, err = s.Sync(context.Background(), req)
	require.NoError(t, err)
}

func TestSync_ExpiredToken(t *testing.T) {
	fc := newFakeClient()
	fc.activateErr = &transfer.APIError{StatusCode: 401, Code: "AuthenticationFailed", Err: transfer.ErrUnauthorized}

	_, err := New(fc, nil, nil, discardLogger()).Sync(context.Background(), baseRequest())
	assert.ErrorIs(t, err, ErrTokenExpired)
	assert.ErrorIs(t, err, transfer.ErrUnauthorized)
}

func TestSync_SourceMissing(t *testing.T) {
	fc := newFakeClient()
	fc.existing = map[string]bool{}

	_, err := New(fc, nil, nil, discardLogger()).Sync(context.Background(), baseRequest())
	require.Error(t, err)
	assert.Contains(t, err.Error(), `failed to query endpoint "`+srcEP+`"`)
	assert.NotContains(t, fc.calls, "submit")
}

func TestSync_DestinationMustExistWhenNotCreating(t *testing.T) {
	fc := newFakeClient()

	req := baseRequest()
	req.CreateDestination = false

	_, err := New(fc, nil, nil, discardLogger()).Sync(context.Background(), req)
	require.Error(t, err)
	assert.ErrorIs(t, err, transfer.ErrNotFound)
	assert.NotContains(t, fc.calls, "mkdir "+dstEP+":/~/sync-demo/")
}

func TestSync_MkdirFailure(t *testing.T) {
	fc := newFakeClient()
	fc.mkdirErr = &transfer.APIError{StatusCode: 403, Code: transfer.CodePermissionDenied, Err: transfer.ErrPermissionDenied}

	_, err := New(fc, nil, nil, discardLogger()).Sync(context.Background(), baseRequest())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "been granted write access")
}

func TestSync_InvalidInput(t *testing.T) {
	s := New(newFakeClient(), nil, nil, discardLogger())

	req := baseRequest()
	req.Source.Endpoint = "tutorial1"
	_, err := s.Sync(context.Background(), req)
	require.Error(t, err)

	req = baseRequest()
	req.SyncLevel = "fast"
	_, err = s.Sync(context.Background(), req)
	require.Error(t, err)
}
