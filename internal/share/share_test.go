package share

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/globus-go/internal/transfer"
)

const (
	srcEP    = "ddb59aef-6d04-11e5-ba46-22000b92c6ec"
	sharedEP = "97235036-3749-11e7-bcdc-22000b9a448b"
	userID   = "aaaaaaaa-bbbb-cccc-dddd-eeeeeeeeeeee"
	groupID  = "12345678-1234-1234-1234-123456789abc"
)

type fakeClient struct {
	existing  map[string]bool
	lsErr     map[string]error
	mkdirErr  error
	aclErr    error
	waitDone  bool
	waitErr   error
	calls     []string
	deletes   []*transfer.DeleteData
	rules     []transfer.ACLRule
	transfers []*transfer.TransferData
	waited    []time.Duration
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		existing: map[string]bool{"/projects": true},
		lsErr:    map[string]error{},
		waitDone: true,
	}
}

func notFound() error {
	return &transfer.APIError{StatusCode: 404, Code: transfer.CodeNotFound, Err: transfer.ErrNotFound}
}

func (f *fakeClient) Ls(_ context.Context, _, path string) ([]transfer.FileEntry, error) {
	f.calls = append(f.calls, "ls "+path)
	if err := f.lsErr[path]; err != nil {
		return nil, err
	}

	if !f.existing[path] {
		return nil, notFound()
	}

	return nil, nil
}

func (f *fakeClient) Mkdir(_ context.Context, _, path string) error {
	f.calls = append(f.calls, "mkdir "+path)
	return f.mkdirErr
}

func (f *fakeClient) SubmitDelete(_ context.Context, data *transfer.DeleteData) (*transfer.SubmitResult, error) {
	f.calls = append(f.calls, "delete")
	f.deletes = append(f.deletes, data)

	return &transfer.SubmitResult{TaskID: "delete-task"}, nil
}

func (f *fakeClient) TaskWait(_ context.Context, taskID string, timeout, interval time.Duration) (bool, error) {
	f.calls = append(f.calls, "wait "+taskID)
	f.waited = append(f.waited, timeout, interval)

	return f.waitDone, f.waitErr
}

func (f *fakeClient) AddACLRule(_ context.Context, _ string, rule transfer.ACLRule) (string, error) {
	f.calls = append(f.calls, "acl "+rule.PrincipalType)
	if f.aclErr != nil {
		return "", f.aclErr
	}

	f.rules = append(f.rules, rule)

	return "rule-" + rule.PrincipalType, nil
}

func (f *fakeClient) SubmitTransfer(_ context.Context, data *transfer.TransferData) (*transfer.SubmitResult, error) {
	f.calls = append(f.calls, "transfer")
	f.transfers = append(f.transfers, data)

	return &transfer.SubmitResult{TaskID: "transfer-task"}, nil
}

type fakeResolver struct {
	ids map[string]string
}

func (r fakeResolver) ResolvePrincipal(_ context.Context, v string) (string, error) {
	if id, ok := r.ids[v]; ok {
		return id, nil
	}

	return "", errors.New("no such identity")
}

func baseRequest() Request {
	return Request{
		SourceEndpoint:  srcEP,
		SharedEndpoint:  sharedEP,
		SourcePath:      "/share/godata/",
		DestinationPath: "/projects",
	}
}

func newTestSharer(c Client, r Resolver) (*Sharer, *bytes.Buffer) {
	var out bytes.Buffer
	return New(c, r, &out, slog.New(slog.NewTextHandler(io.Discard, nil))), &out
}

func TestDestinationDir(t *testing.T) {
	assert.Equal(t, "/projects/godata/", DestinationDir("/share/godata/", "/projects"))
	assert.Equal(t, "/projects/godata/", DestinationDir("/share/godata", "/projects/"))
	assert.Equal(t, "/godata/", DestinationDir("/share/godata", "/"))
	assert.Equal(t, "/projects/", DestinationDir("/", "/projects"))
}

func TestShare_FullFlow(t *testing.T) {
	fc := newFakeClient()
	s, out := newTestSharer(fc, fakeResolver{ids: map[string]string{"alice@globusid.org": userID}})

	req := baseRequest()
	req.User = "alice@globusid.org"
	req.Group = groupID

	res, err := s.Share(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, "/projects/godata/", res.DestinationDir)
	assert.Equal(t, "transfer-task", res.TaskID)
	assert.Equal(t, []string{"rule-identity", "rule-group"}, res.RuleIDs)
	assert.Empty(t, res.DeleteTaskID)

	assert.Equal(t, []string{
		"ls /projects",
		"ls /projects/godata/",
		"mkdir /projects/godata/",
		"acl identity",
		"acl group",
		"transfer",
	}, fc.calls)

	require.Len(t, fc.rules, 2)
	assert.Equal(t, userID, fc.rules[0].Principal)
	assert.Equal(t, "/projects/godata/", fc.rules[0].Path)
	assert.Equal(t, "r", fc.rules[0].Permissions)
	assert.Equal(t, groupID, fc.rules[1].Principal)

	require.Len(t, fc.transfers, 1)
	td := fc.transfers[0]
	assert.Equal(t, DefaultLabel, td.Label)
	assert.Nil(t, td.SyncLevel)
	require.Len(t, td.Items, 1)
	assert.Equal(t, "/share/godata/", td.Items[0].SourcePath)
	assert.Equal(t, "/projects/godata/", td.Items[0].DestinationPath)
	assert.True(t, td.Items[0].Recursive)

	assert.Contains(t, out.String(), "Creating destination directory /projects/godata/")
	assert.Contains(t, out.String(), "Granting user, alice@globusid.org, read access")
	assert.Contains(t, out.String(), "\ttask_id: transfer-task")
	assert.Contains(t, out.String(), "https://www.globus.org/app/activity/transfer-task")
}

func TestShare_RelativePaths(t *testing.T) {
	s, _ := newTestSharer(newFakeClient(), nil)

	req := baseRequest()
	req.SourcePath = "share/godata"
	_, err := s.Share(context.Background(), req)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "source path must be absolute")

	req = baseRequest()
	req.DestinationPath = "projects"
	_, err = s.Share(context.Background(), req)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "destination path must be absolute")
}

func TestShare_DestinationMissing(t *testing.T) {
	fc := newFakeClient()
	fc.existing = map[string]bool{}

	s, _ := newTestSharer(fc, nil)

	_, err := s.Share(context.Background(), baseRequest())
	require.Error(t, err)
	assert.ErrorIs(t, err, transfer.ErrNotFound)
	assert.Equal(t, []string{"ls /projects"}, fc.calls)
}

func TestShare_ExistingWithoutDelete(t *testing.T) {
	fc := newFakeClient()
	fc.existing["/projects/godata/"] = true

	s, _ := newTestSharer(fc, nil)

	_, err := s.Share(context.Background(), baseRequest())
	assert.ErrorIs(t, err, ErrDestinationExists)
	assert.NotContains(t, fc.calls, "delete")
}

func TestShare_ExistingWithDeleteWaits(t *testing.T) {
	fc := newFakeClient()
	fc.existing["/projects/godata/"] = true

	s, out := newTestSharer(fc, nil)

	req := baseRequest()
	req.Delete = true
	req.WaitTimeout = time.Minute
	req.PollInterval = time.Second

	res, err := s.Share(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, "delete-task", res.DeleteTaskID)
	require.Len(t, fc.deletes, 1)
	assert.True(t, fc.deletes[0].Recursive)
	assert.Equal(t, "/projects/godata/", fc.deletes[0].Items[0].Path)
	assert.Equal(t, []time.Duration{time.Minute, time.Second}, fc.waited)
	assert.Contains(t, out.String(), "Destination directory, /projects/godata/, exists and will be deleted")
	assert.Contains(t, out.String(), "Submitting a delete task")
}

func TestShare_DeleteTimeout(t *testing.T) {
	fc := newFakeClient()
	fc.existing["/projects/godata/"] = true
	fc.waitDone = false

	s, _ := newTestSharer(fc, nil)

	req := baseRequest()
	req.Delete = true

	_, err := s.Share(context.Background(), req)
	assert.ErrorIs(t, err, ErrDeleteTimeout)
	assert.Equal(t, []time.Duration{DefaultWaitTimeout, DefaultPollInterval}, fc.waited)
	assert.NotContains(t, fc.calls, "transfer")
}

func TestShare_ExistingRuleIsFine(t *testing.T) {
	fc := newFakeClient()
	fc.aclErr = &transfer.APIError{StatusCode: 409, Code: transfer.CodeExists, Err: transfer.ErrExists}

	s, _ := newTestSharer(fc, nil)

	req := baseRequest()
	req.User = userID

	res, err := s.Share(context.Background(), req)
	require.NoError(t, err)
	assert.Empty(t, res.RuleIDs)
	assert.Equal(t, "transfer-task", res.TaskID)
}

func TestShare_RuleErrorAborts(t *testing.T) {
	fc := newFakeClient()
	fc.aclErr = &transfer.APIError{StatusCode: 403, Code: transfer.CodePermissionDenied, Err: transfer.ErrPermissionDenied}

	s, _ := newTestSharer(fc, nil)

	req := baseRequest()
	req.Group = groupID

	_, err := s.Share(context.Background(), req)
	assert.ErrorIs(t, err, transfer.ErrPermissionDenied)
	assert.NotContains(t, fc.calls, "transfer")
}

func TestShare_UsernameWithoutResolver(t *testing.T) {
	fc := newFakeClient()
	s, _ := newTestSharer(fc, nil)

	req := baseRequest()
	req.User = "alice@globusid.org"

	_, err := s.Share(context.Background(), req)
	require.Error(t, err)
	assert.NotContains(t, fc.calls, "mkdir /projects/godata/")
}

func TestShare_UnknownUsername(t *testing.T) {
	fc := newFakeClient()
	s, _ := newTestSharer(fc, fakeResolver{})

	req := baseRequest()
	req.User = "nobody@example.org"

	_, err := s.Share(context.Background(), req)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "resolving user")
}

func TestShare_SyncLevel(t *testing.T) {
	fc := newFakeClient()
	s, _ := newTestSharer(fc, nil)

	req := baseRequest()
	req.SyncLevel = "checksum"

	_, err := s.Share(context.Background(), req)
	require.NoError(t, err)
	require.NotNil(t, fc.transfers[0].SyncLevel)
	assert.Equal(t, transfer.SyncChecksum, *fc.transfers[0].SyncLevel)

	req.SyncLevel = "bogus"
	_, err = s.Share(context.Background(), req)
	require.Error(t, err)
}

func TestShare_InvalidGroup(t *testing.T) {
	s, _ := newTestSharer(newFakeClient(), nil)

	req := baseRequest()
	req.Group = "admins"

	_, err := s.Share(context.Background(), req)
	require.Error(t, err)
}

func TestShare_NonCanonicalIDs(t *testing.T) {
	fc := newFakeClient()
	s, _ := newTestSharer(fc, nil)

	req := baseRequest()
	req.SourceEndpoint = "DDB59AEF6D0411E5BA4622000B92C6EC"
	req.SharedEndpoint = "urn:uuid:" + sharedEP
	req.User = "{AAAAAAAA-BBBB-CCCC-DDDD-EEEEEEEEEEEE}"
	req.Group = "12345678123412341234123456789ABC"

	_, err := s.Share(context.Background(), req)
	require.NoError(t, err)

	require.Len(t, fc.rules, 2)
	assert.Equal(t, userID, fc.rules[0].Principal)
	assert.Equal(t, groupID, fc.rules[1].Principal)

	require.Len(t, fc.transfers, 1)
	assert.Equal(t, srcEP, fc.transfers[0].SourceEndpoint)
	assert.Equal(t, sharedEP, fc.transfers[0].DestinationEndpoint)
}
