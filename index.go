package main

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/tonimelisma/globus-go/internal/config"
	"github.com/tonimelisma/globus-go/internal/index"
	"github.com/tonimelisma/globus-go/internal/ledger"
	"github.com/tonimelisma/globus-go/internal/transfer"
)

// indexFlags mirror the [index] config section.
type indexFlags struct {
	sharedEndpoint string
	localEndpoint  string
	directory      string
	outputDir      string
	format         string
	mode           string
	include        []string
	exclude        []string
	ignoreCase     bool
	parallel       int
	catalog        string
	flatName       string
	linkPrefix     string
	footer         string
	upload         bool
	watch          bool
}

func newIndexCmd() *cobra.Command {
	var f indexFlags

	cmd := &cobra.Command{
		Use:   "index",
		Short: "Generate directory index pages for a shared endpoint",
		Long: `Recursively list a directory on a shared endpoint and write an index page for
every directory (or one flat page) into the output directory, plus a JSON
catalog of every file found. With --upload, the generated pages are transferred
from the local endpoint back to the shared endpoint so its HTTPS server can
serve them.

Defaults come from the [index] config section.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runIndexRemote(cmd, f)
		},
	}

	addIndexFlags(cmd, &f)
	cmd.Flags().StringVar(&f.sharedEndpoint, "shared-endpoint", "", "shared endpoint to index")
	cmd.Flags().StringVar(&f.localEndpoint, "local-endpoint", "", "endpoint on this machine, needed by --upload")
	cmd.Flags().StringVar(&f.directory, "directory", "", `directory to start from (default "/")`)
	cmd.Flags().BoolVar(&f.upload, "upload", false, "upload the generated pages to the shared endpoint")

	cmd.AddCommand(newIndexLocalCmd())

	return cmd
}

func newIndexLocalCmd() *cobra.Command {
	var f indexFlags

	cmd := &cobra.Command{
		Use:   "local DIR",
		Short: "Generate index pages for a local directory tree",
		Long: `Write index pages for a local directory tree, for example to publish a docs
examples folder. With --watch, keep running and regenerate whenever the tree
changes.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIndexLocal(cmd, args[0], f)
		},
	}

	addIndexFlags(cmd, &f)
	cmd.Flags().BoolVar(&f.watch, "watch", false, "regenerate on every change until interrupted")

	return cmd
}

func addIndexFlags(cmd *cobra.Command, f *indexFlags) {
	fl := cmd.Flags()
	fl.StringVarP(&f.outputDir, "output-dir", "o", "", "directory the pages are written to; only pages from an earlier run are replaced")
	fl.StringVar(&f.format, "format", "", "html or markdown")
	fl.StringVar(&f.mode, "mode", "", "per-dir (a page per directory) or flat (one page)")
	fl.StringSliceVar(&f.include, "include", nil, "only index names matching these globs")
	fl.StringSliceVar(&f.exclude, "exclude", nil, "skip names matching these globs")
	fl.BoolVar(&f.ignoreCase, "ignore-case", false, "match globs case-insensitively")
	fl.IntVar(&f.parallel, "parallel", 0, "directory listings in flight")
	fl.StringVar(&f.catalog, "catalog", "", "JSON catalog path, \"-\" to skip")
	fl.StringVar(&f.flatName, "flat-name", "", "file name of the flat page")
	fl.StringVar(&f.linkPrefix, "link-prefix", "", "prefix for file links on the flat page")
	fl.StringVar(&f.footer, "footer", "", "footer text of HTML pages")
}

// indexSettings is the [index] section with flags applied.
type indexSettings struct {
	config.IndexConfig
	FlatName   string
	LinkPrefix string
}

func resolveIndex(cfg *config.Config, f indexFlags) indexSettings {
	ix := cfg.Index

	ix.SharedEndpoint = cfg.ResolveEndpoint(firstNonEmpty(f.sharedEndpoint, ix.SharedEndpoint))
	ix.LocalEndpoint = cfg.ResolveEndpoint(firstNonEmpty(f.localEndpoint, ix.LocalEndpoint))
	ix.Directory = firstNonEmpty(f.directory, ix.Directory, "/")
	ix.OutputDir = firstNonEmpty(f.outputDir, ix.OutputDir)
	ix.Format = firstNonEmpty(f.format, ix.Format, index.FormatHTML)
	ix.Mode = firstNonEmpty(f.mode, ix.Mode, index.ModePerDir)
	ix.Footer = firstNonEmpty(f.footer, ix.Footer)
	ix.Catalog = firstNonEmpty(f.catalog, ix.Catalog)

	if f.include != nil {
		ix.Include = f.include
	}

	if f.exclude != nil {
		ix.Exclude = f.exclude
	}

	ix.IgnoreCase = ix.IgnoreCase || f.ignoreCase

	if f.parallel > 0 {
		ix.ParallelListings = f.parallel
	}

	if ix.Catalog == "-" {
		ix.Catalog = ""
	}

	return indexSettings{IndexConfig: ix, FlatName: f.flatName, LinkPrefix: f.linkPrefix}
}

func (s indexSettings) generator(cc *CLIContext) *index.Generator {
	return &index.Generator{
		Fs:          afero.NewOsFs(),
		OutputDir:   s.OutputDir,
		Format:      s.Format,
		Mode:        s.Mode,
		FlatName:    s.FlatName,
		LinkPrefix:  s.LinkPrefix,
		CatalogPath: s.Catalog,
		Footer:      s.Footer,
		Logger:      cc.Logger,
	}
}

func (s indexSettings) crawler(cc *CLIContext, lister index.Lister, endpoint string, filter *index.Filter, progress io.Writer) *index.Crawler {
	var mu sync.Mutex

	return &index.Crawler{
		Lister:   lister,
		Endpoint: endpoint,
		Filter:   filter,
		Parallel: s.ParallelListings,
		Attempts: s.ListAttempts,
		Logger:   cc.Logger,
		OnDir: func(p string) {
			mu.Lock()
			defer mu.Unlock()

			fmt.Fprintf(progress, "Listing %s\n", p)
		},
	}
}

func runIndexRemote(cmd *cobra.Command, f indexFlags) error {
	cc := mustCLIContext(cmd.Context())
	ctx := cmd.Context()
	s := resolveIndex(cc.Cfg.Config, f)

	var err error

	if s.SharedEndpoint, err = transfer.CanonicalID(s.SharedEndpoint); err != nil {
		return fmt.Errorf("invalid shared endpoint: %w", err)
	}

	if f.upload {
		if s.LocalEndpoint, err = transfer.CanonicalID(s.LocalEndpoint); err != nil {
			return fmt.Errorf("invalid local endpoint: %w", err)
		}
	}

	filter, err := index.NewFilter(s.Include, s.Exclude, s.IgnoreCase)
	if err != nil {
		return err
	}

	client, err := cc.transferClient(ctx)
	if err != nil {
		return err
	}

	out := cc.textOut()
	fmt.Fprintf(out, "Generating %s files recursively...\n", index.IndexName(s.Format))

	root, err := s.crawler(cc, client, s.SharedEndpoint, filter, out).Crawl(ctx, s.Directory)
	if err != nil {
		return err
	}

	res, err := s.generator(cc).Generate(root)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Wrote %d index files to %s, %d catalog entries\n", len(res.Files), s.OutputDir, len(res.Catalog))

	if !f.upload {
		if cc.Flags.JSON {
			return cc.PrintJSON(res)
		}

		return nil
	}

	return uploadIndex(ctx, cc, client, s, res)
}

func uploadIndex(ctx context.Context, cc *CLIContext, client *transfer.Client, s indexSettings, res *index.Result) error {
	plan, err := index.PlanUpload(s.LocalEndpoint, s.SharedEndpoint, s.OutputDir, s.Directory, res.Files)
	if err != nil {
		return err
	}

	out := cc.textOut()
	for _, it := range plan.Items {
		fmt.Fprintf(out, "%s:%s -> %s:%s\n", s.LocalEndpoint, it.SourcePath, s.SharedEndpoint, it.DestinationPath)
	}

	fmt.Fprintf(out, "Submitting a transfer task...\n")

	task, err := index.Upload(ctx, client, plan)
	if err != nil {
		return err
	}

	cc.recordTask(ctx, &ledger.Entry{
		TaskID:              task.TaskID,
		Kind:                ledger.KindIndex,
		Label:               index.UploadLabel,
		SourceEndpoint:      s.LocalEndpoint,
		SourcePath:          s.OutputDir,
		DestinationEndpoint: s.SharedEndpoint,
		DestinationPath:     s.Directory,
	})

	if cc.Flags.JSON {
		return cc.PrintJSON(map[string]any{"files": res.Files, "task_id": task.TaskID})
	}

	fmt.Fprintf(out, "\ttask_id: %s\n", task.TaskID)
	fmt.Fprintf(out, "You can monitor the transfer task programmatically using the Transfer API"+
		", or go to the Web UI, %s.\n", transfer.ActivityURL(task.TaskID))

	return nil
}

// watchIgnore skips events caused by writing the pages. An output directory
// inside the tree is skipped whole; otherwise the pages share directories
// with watched files and are matched by name.
func (s indexSettings) watchIgnore(outAbs string, outInside bool) func(string) bool {
	if outInside {
		return func(p string) bool {
			return p == outAbs || strings.HasPrefix(p, outAbs+string(filepath.Separator))
		}
	}

	pages := map[string]bool{index.IndexName(s.Format): true, index.ManifestName: true}
	if s.Mode == index.ModeFlat && s.FlatName != "" {
		pages[s.FlatName] = true
	}

	return func(p string) bool {
		return pages[filepath.Base(p)]
	}
}

func runIndexLocal(cmd *cobra.Command, dir string, f indexFlags) error {
	cc := mustCLIContext(cmd.Context())
	ctx := cmd.Context()
	s := resolveIndex(cc.Cfg.Config, f)

	root, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("resolving %s: %w", dir, err)
	}

	outAbs, err := filepath.Abs(s.OutputDir)
	if err != nil {
		return fmt.Errorf("resolving %s: %w", s.OutputDir, err)
	}

	// The output must not index itself.
	exclude := s.Exclude
	outInside := false
	if rel, relErr := filepath.Rel(root, outAbs); relErr == nil && rel != "." && !strings.HasPrefix(rel, "..") {
		exclude = append(append([]string(nil), exclude...), strings.Split(filepath.ToSlash(rel), "/")[0])
		outInside = true
	}

	filter, err := index.NewFilter(s.Include, exclude, s.IgnoreCase)
	if err != nil {
		return err
	}

	lister := &index.LocalLister{Fs: afero.NewOsFs(), Root: root}

	generate := func(ctx context.Context) error {
		tree, err := s.crawler(cc, lister, "", filter, io.Discard).Crawl(ctx, "/")
		if err != nil {
			return err
		}

		res, err := s.generator(cc).Generate(tree)
		if err != nil {
			return err
		}

		cc.Statusf("Wrote %d index files to %s\n", len(res.Files), s.OutputDir)

		return nil
	}

	if err := generate(ctx); err != nil {
		return err
	}

	if !f.watch {
		return nil
	}

	w, err := index.NewFsWatcher()
	if err != nil {
		return err
	}

	lw := &index.LocalWatcher{
		Root:       root,
		Regenerate: generate,
		Ignore: s.watchIgnore(outAbs, outInside),
		Logger: cc.Logger,
	}

	cc.Statusf("Watching %s, press Ctrl-C to stop.\n", root)

	return lw.Run(ctx, w)
}
