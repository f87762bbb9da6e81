package index

import (
	"bytes"
	"fmt"
	"log/slog"
	"path"
	"path/filepath"
	"time"

	"github.com/goccy/go-json"
	"github.com/spf13/afero"

	"github.com/tonimelisma/globus-go/internal/transfer"
)

// Generation modes.
const (
	ModePerDir = "per-dir"
	ModeFlat   = "flat"
)

const (
	outputFilePerms = 0o644
	outputDirPerms  = 0o755
)

// CatalogEntry records one indexed file and the directory it lives in.
type CatalogEntry struct {
	Dir  string             `json:"dir"`
	File transfer.FileEntry `json:"file"`
}

// Generator writes index files for a crawled tree.
type Generator struct {
	Fs        afero.Fs
	OutputDir string
	Format    string
	Mode      string

	// FlatName overrides the output file name in flat mode.
	FlatName string

	// LinkPrefix is prepended to file links in flat mode.
	LinkPrefix string

	// CatalogPath, when set, receives the JSON catalog. It is written on Fs
	// but outside OutputDir so it is never uploaded.
	CatalogPath string

	Footer string
	Now    func() time.Time
	Logger *slog.Logger
}

// Result describes what Generate wrote.
type Result struct {
	// Files are the generated index files, slash-separated and relative to
	// OutputDir.
	Files   []string       `json:"files"`
	Catalog []CatalogEntry `json:"catalog"`
}

// Generate writes the index files for root into OutputDir. Pages left by a
// previous run are removed first; nothing else in OutputDir is touched.
func (g *Generator) Generate(root *Dir) (*Result, error) {
	fsys := g.fs()

	switch g.Mode {
	case ModeFlat, ModePerDir, "":
	default:
		return nil, fmt.Errorf("index: unknown mode %q", g.Mode)
	}

	if err := g.clearPrevious(); err != nil {
		return nil, err
	}

	if err := fsys.MkdirAll(g.OutputDir, outputDirPerms); err != nil {
		return nil, fmt.Errorf("index: creating %s: %w", g.OutputDir, err)
	}

	opts := RenderOptions{Footer: g.Footer, Now: g.now()}
	res := &Result{Catalog: BuildCatalog(root)}

	switch g.Mode {
	case ModeFlat:
		name := g.FlatName
		if name == "" {
			name = IndexName(g.Format)
		}

		if err := g.write(name, FlatPage(root, g.LinkPrefix), opts); err != nil {
			return nil, err
		}

		res.Files = append(res.Files, name)
	default:
		err := root.Walk(func(d *Dir) error {
			rel := path.Join(relDir(root.Path, d.Path), IndexName(g.Format))
			if err := g.write(rel, DirPage(d, g.Format), opts); err != nil {
				return err
			}

			res.Files = append(res.Files, rel)

			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	if err := g.writeManifest(res.Files); err != nil {
		return nil, err
	}

	if g.CatalogPath != "" {
		if err := WriteCatalog(fsys, g.CatalogPath, res.Catalog); err != nil {
			return nil, err
		}
	}

	g.logger().Info("index generated",
		slog.String("root", root.Path),
		slog.Int("files", len(res.Files)),
		slog.Int("catalog_entries", len(res.Catalog)),
	)

	return res, nil
}

func (g *Generator) write(rel string, p Page, opts RenderOptions) error {
	var buf bytes.Buffer
	if err := Render(&buf, p, g.Format, opts); err != nil {
		return err
	}

	full := filepath.Join(g.OutputDir, filepath.FromSlash(rel))
	fsys := g.fs()

	if err := fsys.MkdirAll(filepath.Dir(full), outputDirPerms); err != nil {
		return fmt.Errorf("index: creating %s: %w", filepath.Dir(full), err)
	}

	if err := afero.WriteFile(fsys, full, buf.Bytes(), outputFilePerms); err != nil {
		return fmt.Errorf("index: writing %s: %w", full, err)
	}

	g.logger().Debug("wrote index", slog.String("path", full))

	return nil
}

// relDir returns dir relative to root, mirroring the remote layout under
// the output directory. The output for root itself is "".
func relDir(root, dir string) string {
	if root == "/" {
		return dir[1:]
	}

	rel := dir[len(root):]
	if rel != "" && rel[0] == '/' {
		rel = rel[1:]
	}

	return rel
}

// BuildCatalog lists every file in the tree with its directory.
func BuildCatalog(root *Dir) []CatalogEntry {
	out := []CatalogEntry{}

	_ = root.Walk(func(d *Dir) error {
		for _, f := range d.Files() {
			out = append(out, CatalogEntry{Dir: d.Path, File: f})
		}

		return nil
	})

	return out
}

// WriteCatalog writes entries as a JSON array.
func WriteCatalog(fsys afero.Fs, name string, entries []CatalogEntry) error {
	data, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("index: encoding catalog: %w", err)
	}

	if dir := filepath.Dir(name); dir != "." {
		if err := fsys.MkdirAll(dir, outputDirPerms); err != nil {
			return fmt.Errorf("index: creating %s: %w", dir, err)
		}
	}

	if err := afero.WriteFile(fsys, name, data, outputFilePerms); err != nil {
		return fmt.Errorf("index: writing catalog %s: %w", name, err)
	}

	return nil
}

// ReadCatalog loads a catalog written by WriteCatalog.
func ReadCatalog(fsys afero.Fs, name string) ([]CatalogEntry, error) {
	data, err := afero.ReadFile(fsys, name)
	if err != nil {
		return nil, fmt.Errorf("index: reading catalog %s: %w", name, err)
	}

	var out []CatalogEntry
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("index: decoding catalog %s: %w", name, err)
	}

	return out, nil
}

func (g *Generator) fs() afero.Fs {
	if g.Fs == nil {
		g.Fs = afero.NewOsFs()
	}

	return g.Fs
}

func (g *Generator) now() time.Time {
	if g.Now == nil {
		return time.Now()
	}

	return g.Now()
}

func (g *Generator) logger() *slog.Logger {
	if g.Logger == nil {
		return slog.Default()
	}

	return g.Logger
}
