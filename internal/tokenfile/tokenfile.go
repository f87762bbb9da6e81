// Package tokenfile handles reading and writing the token cache. Globus Auth
// issues one token per resource server (transfer.api.globus.org,
// auth.globus.org, ...), so the cache stores a map of OAuth2 tokens keyed by
// resource server alongside cached identity metadata.
// This is a leaf package imported by both config/ and auth/.
package tokenfile

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"os"
	"path/filepath"

	"golang.org/x/oauth2"
)

// FilePerms restricts token files to owner-only read/write.
const FilePerms = 0o600

// DirPerms is used when creating the token directory.
const DirPerms = 0o700

// CurrentVersion is the schema version written by Save.
const CurrentVersion = 1

// File is the on-disk format for the token cache.
type File struct {
	Version int                      `json:"version"`
	Tokens  map[string]*oauth2.Token `json:"tokens"`
	Meta    map[string]string        `json:"meta,omitempty"`
}

// New returns an empty File at the current schema version.
func New() *File {
	return &File{
		Version: CurrentVersion,
		Tokens:  make(map[string]*oauth2.Token),
	}
}

// Token returns the cached token for a resource server, or nil.
func (f *File) Token(resourceServer string) *oauth2.Token {
	if f == nil || f.Tokens == nil {
		return nil
	}

	return f.Tokens[resourceServer]
}

// Put stores a token for a resource server, replacing any previous one.
func (f *File) Put(resourceServer string, tok *oauth2.Token) {
	if f.Tokens == nil {
		f.Tokens = make(map[string]*oauth2.Token)
	}

	f.Tokens[resourceServer] = tok
}

// ResourceServers returns the resource servers that have a cached token.
func (f *File) ResourceServers() []string {
	if f == nil {
		return nil
	}

	out := make([]string, 0, len(f.Tokens))
	for rs := range f.Tokens {
		out = append(out, rs)
	}

	return out
}

// Load reads a token cache from disk. Returns (nil, nil) if the file does not
// exist. Files written by other tools (no version or no tokens map) are
// rejected so that a stale ad hoc cache is never half-used.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil //nolint:nilnil // sentinel for "not found"
	}

	if err != nil {
		return nil, fmt.Errorf("tokenfile: reading %s: %w", path, err)
	}

	var tf File
	if err := json.Unmarshal(data, &tf); err != nil {
		return nil, fmt.Errorf("tokenfile: decoding %s: %w", path, err)
	}

	if tf.Version == 0 || tf.Tokens == nil {
		return nil, fmt.Errorf("tokenfile: %s missing version or tokens (re-login required)", path)
	}

	if tf.Version > CurrentVersion {
		return nil, fmt.Errorf("tokenfile: %s has unsupported version %d", path, tf.Version)
	}

	return &tf, nil
}

// Save writes a token cache to disk atomically (write-to-temp + rename)
// with 0600 permissions. Never logs token values.
func Save(path string, tf *File) error {
	if tf == nil {
		return fmt.Errorf("tokenfile: refusing to save nil token cache")
	}

	if tf.Version == 0 {
		tf.Version = CurrentVersion
	}

	data, err := json.MarshalIndent(tf, "", "  ")
	if err != nil {
		return fmt.Errorf("tokenfile: encoding: %w", err)
	}

	dir := filepath.Dir(path)
	if mkErr := os.MkdirAll(dir, DirPerms); mkErr != nil {
		return fmt.Errorf("tokenfile: creating directory %s: %w", dir, mkErr)
	}

	// Same directory guarantees same filesystem for rename(2).
	tmp, err := os.CreateTemp(dir, ".tokens-*.tmp")
	if err != nil {
		return fmt.Errorf("tokenfile: creating temp file: %w", err)
	}

	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = os.Remove(tmpPath)
		}
	}()

	if err := os.Chmod(tmpPath, FilePerms); err != nil {
		tmp.Close()
		return fmt.Errorf("tokenfile: setting permissions: %w", err)
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("tokenfile: writing: %w", err)
	}

	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("tokenfile: syncing: %w", err)
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("tokenfile: closing: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("tokenfile: renaming: %w", err)
	}

	success = true

	return nil
}

// UpdateToken loads the cache at path (or starts a new one), replaces the
// token for resourceServer, and saves. Used by the refresh callback so a
// refresh of one resource server never drops the others.
func UpdateToken(path, resourceServer string, tok *oauth2.Token) error {
	tf, err := Load(path)
	if err != nil {
		return err
	}

	if tf == nil {
		tf = New()
	}

	tf.Put(resourceServer, tok)

	return Save(path, tf)
}

// MergeMeta reads the current cache, merges new metadata keys (new keys
// overwrite existing), and saves. Returns an error if there is no cache.
func MergeMeta(path string, meta map[string]string) error {
	tf, err := Load(path)
	if err != nil {
		return fmt.Errorf("reading token cache for metadata update: %w", err)
	}

	if tf == nil {
		return fmt.Errorf("no token cache at %s", path)
	}

	if tf.Meta == nil {
		tf.Meta = make(map[string]string, len(meta))
	}

	maps.Copy(tf.Meta, meta)

	return Save(path, tf)
}
