package tokenfile

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

const (
	rsTransfer = "transfer.api.globus.org"
	rsAuth     = "auth.globus.org"
)

func testToken(access string) *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  access,
		RefreshToken: "refresh-" + access,
		TokenType:    "Bearer",
		Expiry:       time.Now().Add(time.Hour),
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	tf, err := Load("/nonexistent/path/tokens.json")
	assert.Nil(t, tf)
	assert.NoError(t, err)
}

func TestLoad_ValidFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tokens.json")

	expiry := time.Date(2099, 1, 1, 0, 0, 0, 0, time.UTC)
	tf := New()
	tf.Put(rsTransfer, &oauth2.Token{
		AccessToken:  "access-123",
		RefreshToken: "refresh-456",
		TokenType:    "Bearer",
		Expiry:       expiry,
	})
	tf.Put(rsAuth, testToken("auth"))
	tf.Meta = map[string]string{"username": "alice@example.org"}

	require.NoError(t, Save(path, tf))

	loaded, err := Load(path)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, CurrentVersion, loaded.Version)

	tok := loaded.Token(rsTransfer)
	require.NotNil(t, tok)
	assert.Equal(t, "access-123", tok.AccessToken)
	assert.Equal(t, "refresh-456", tok.RefreshToken)
	assert.True(t, tok.Expiry.Equal(expiry))
	assert.Equal(t, "auth", loaded.Token(rsAuth).AccessToken)
	assert.Equal(t, "alice@example.org", loaded.Meta["username"])
	assert.ElementsMatch(t, []string{rsTransfer, rsAuth}, loaded.ResourceServers())
}

func TestLoad_LegacyScriptFormat(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "refresh-tokens.json")

	// The by-resource-server dump the old scripts wrote.
	legacy := `{"transfer.api.globus.org":{"access_token":"a","refresh_token":"r","expires_at_seconds":1}}`
	require.NoError(t, os.WriteFile(path, []byte(legacy), 0o600))

	tf, err := Load(path)
	assert.Nil(t, tf)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "re-login required")
}

func TestLoad_FutureVersion(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tokens.json")

	require.NoError(t, os.WriteFile(path, []byte(`{"version":99,"tokens":{}}`), 0o600))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported version")
}

func TestLoad_InvalidJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tokens.json")

	require.NoError(t, os.WriteFile(path, []byte(`{not json}`), 0o600))

	tf, err := Load(path)
	assert.Nil(t, tf)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decoding")
}

func TestToken_NilFile(t *testing.T) {
	var tf *File
	assert.Nil(t, tf.Token(rsTransfer))
	assert.Nil(t, tf.ResourceServers())
}

func TestSave_CreatesDirectoryWithPermissions(t *testing.T) {
	dir := t.TempDir()
	nested := filepath.Join(dir, "sub", "dir", "tokens.json")

	tf := New()
	tf.Put(rsTransfer, testToken("a"))

	require.NoError(t, Save(nested, tf))

	info, err := os.Stat(nested)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(FilePerms), info.Mode().Perm())

	dirInfo, err := os.Stat(filepath.Dir(nested))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(DirPerms), dirInfo.Mode().Perm())
}

func TestSave_NilFile(t *testing.T) {
	err := Save(filepath.Join(t.TempDir(), "tokens.json"), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "refusing to save nil")
}

func TestSave_NoTempFilesLeft(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tokens.json")

	tf := New()
	tf.Put(rsTransfer, testToken("a"))
	require.NoError(t, Save(path, tf))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "tokens.json", entries[0].Name())
}

func TestUpdateToken_KeepsOtherResourceServers(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tokens.json")

	tf := New()
	tf.Put(rsTransfer, testToken("old-transfer"))
	tf.Put(rsAuth, testToken("auth"))
	require.NoError(t, Save(path, tf))

	require.NoError(t, UpdateToken(path, rsTransfer, testToken("new-transfer")))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "new-transfer", loaded.Token(rsTransfer).AccessToken)
	assert.Equal(t, "auth", loaded.Token(rsAuth).AccessToken)
}

func TestUpdateToken_CreatesCache(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tokens.json")

	require.NoError(t, UpdateToken(path, rsTransfer, testToken("fresh")))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "fresh", loaded.Token(rsTransfer).AccessToken)
}

func TestMergeMeta(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tokens.json")

	tf := New()
	tf.Put(rsTransfer, testToken("a"))
	tf.Meta = map[string]string{"username": "old", "identity_id": "id-1"}
	require.NoError(t, Save(path, tf))

	require.NoError(t, MergeMeta(path, map[string]string{"username": "new", "name": "Alice"}))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "new", loaded.Meta["username"])
	assert.Equal(t, "id-1", loaded.Meta["identity_id"])
	assert.Equal(t, "Alice", loaded.Meta["name"])
}

func TestMergeMeta_FileNotFound(t *testing.T) {
	err := MergeMeta("/nonexistent/path/tokens.json", map[string]string{"k": "v"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no token cache")
}
