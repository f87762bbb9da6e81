package index

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"path/filepath"

	"github.com/goccy/go-json"
	"github.com/spf13/afero"
)

// ManifestName is the hidden file in the output directory listing the pages
// the previous run wrote. Only those are removed before regenerating, so an
// output directory shared with other files keeps them.
const ManifestName = ".globus-go-index"

// clearPrevious removes the files named in the output directory's manifest
// and any directories left empty by that. Entries that escape the output
// directory or name a directory are ignored.
func (g *Generator) clearPrevious() error {
	fsys := g.fs()
	manifest := filepath.Join(g.OutputDir, ManifestName)

	data, err := afero.ReadFile(fsys, manifest)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}

	if err != nil {
		return fmt.Errorf("index: reading %s: %w", manifest, err)
	}

	var files []string
	if err := json.Unmarshal(data, &files); err != nil {
		g.logger().Warn("ignoring unreadable index manifest",
			slog.String("path", manifest),
			slog.String("error", err.Error()),
		)

		return nil
	}

	for _, rel := range files {
		rel = path.Clean(rel)
		if rel == "." || !fs.ValidPath(rel) {
			continue
		}

		full := filepath.Join(g.OutputDir, filepath.FromSlash(rel))

		info, err := fsys.Stat(full)
		if err != nil || info.IsDir() {
			continue
		}

		if err := fsys.Remove(full); err != nil {
			return fmt.Errorf("index: removing %s: %w", full, err)
		}

		g.pruneEmpty(path.Dir(rel))
	}

	if err := fsys.Remove(manifest); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("index: removing %s: %w", manifest, err)
	}

	return nil
}

// pruneEmpty removes rel and its parents while they are empty, stopping at
// the output directory.
func (g *Generator) pruneEmpty(rel string) {
	fsys := g.fs()

	for rel != "." && rel != "/" {
		full := filepath.Join(g.OutputDir, filepath.FromSlash(rel))

		empty, err := afero.IsEmpty(fsys, full)
		if err != nil || !empty {
			return
		}

		if err := fsys.Remove(full); err != nil {
			return
		}

		rel = path.Dir(rel)
	}
}

func (g *Generator) writeManifest(files []string) error {
	data, err := json.Marshal(files)
	if err != nil {
		return fmt.Errorf("index: encoding manifest: %w", err)
	}

	manifest := filepath.Join(g.OutputDir, ManifestName)
	if err := afero.WriteFile(g.fs(), manifest, data, outputFilePerms); err != nil {
		return fmt.Errorf("index: writing %s: %w", manifest, err)
	}

	return nil
}
