// Package index crawls a directory tree on an endpoint (or the local disk)
// and renders static HTML or Markdown directory listings for it. Globus HTTPS
// servers do not list directories, so the generated index.html files are
// uploaded next to the data to make a shared endpoint browsable.
package index

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"slices"
	"time"

	"github.com/avast/retry-go"
	"github.com/maruel/natural"
	"golang.org/x/sync/errgroup"

	"github.com/tonimelisma/globus-go/internal/transfer"
)

// Crawl defaults.
const (
	DefaultParallel = 4
	DefaultAttempts = 5
	defaultDelay    = time.Second
)

// Lister lists one directory on an endpoint. *transfer.Client satisfies it.
type Lister interface {
	Ls(ctx context.Context, endpointID, path string) ([]transfer.FileEntry, error)
}

// Dir is one crawled directory with its filtered entries, sorted by name in
// natural order.
type Dir struct {
	Path     string
	Entries  []transfer.FileEntry
	Children []*Dir
}

// Files returns the non-directory entries.
func (d *Dir) Files() []transfer.FileEntry {
	var out []transfer.FileEntry

	for _, e := range d.Entries {
		if e.Type == transfer.EntryFile {
			out = append(out, e)
		}
	}

	return out
}

// Walk calls fn for d and every descendant, parents before children.
func (d *Dir) Walk(fn func(*Dir) error) error {
	if err := fn(d); err != nil {
		return err
	}

	for _, c := range d.Children {
		if err := c.Walk(fn); err != nil {
			return err
		}
	}

	return nil
}

// Crawler lists a tree breadth-first, one level at a time, with at most
// Parallel listings in flight.
type Crawler struct {
	Lister   Lister
	Endpoint string
	Filter   *Filter
	Parallel int
	Attempts int
	Delay    time.Duration
	Logger   *slog.Logger

	// OnDir is called with each directory path before it is listed.
	OnDir func(path string)
}

// Crawl lists root and everything below it that passes the filter.
func (c *Crawler) Crawl(ctx context.Context, root string) (*Dir, error) {
	if c.Lister == nil {
		return nil, fmt.Errorf("index: crawler has no lister")
	}

	top := &Dir{Path: cleanDir(root)}
	level := []*Dir{top}

	for len(level) > 0 {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(c.parallel())

		for _, d := range level {
			g.Go(func() error {
				return c.fill(gctx, d)
			})
		}

		if err := g.Wait(); err != nil {
			return nil, err
		}

		var next []*Dir
		for _, d := range level {
			next = append(next, d.Children...)
		}

		level = next
	}

	return top, nil
}

func (c *Crawler) fill(ctx context.Context, d *Dir) error {
	if c.OnDir != nil {
		c.OnDir(d.Path)
	}

	entries, err := c.list(ctx, d.Path)
	if err != nil {
		return fmt.Errorf("index: listing %s: %w", d.Path, err)
	}

	kept := make([]transfer.FileEntry, 0, len(entries))

	for _, e := range entries {
		if !c.Filter.Match(e.Name) {
			continue
		}

		kept = append(kept, e)
	}

	slices.SortFunc(kept, func(a, b transfer.FileEntry) int {
		switch {
		case natural.Less(a.Name, b.Name):
			return -1
		case natural.Less(b.Name, a.Name):
			return 1
		default:
			return 0
		}
	})

	d.Entries = kept

	for _, e := range kept {
		if e.IsDir() {
			d.Children = append(d.Children, &Dir{Path: path.Join(d.Path, e.Name)})
		}
	}

	return nil
}

// list retries transient failures. Missing directories and permission
// errors are final.
func (c *Crawler) list(ctx context.Context, dir string) ([]transfer.FileEntry, error) {
	var entries []transfer.FileEntry

	err := retry.Do(
		func() error {
			var err error
			entries, err = c.Lister.Ls(ctx, c.Endpoint, dir)

			return err
		},
		retry.Context(ctx),
		retry.Attempts(uint(c.attempts())),
		retry.Delay(c.delay()),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(retryableListError),
		retry.OnRetry(func(n uint, err error) {
			c.logger().Warn("listing failed, retrying",
				slog.String("path", dir),
				slog.Uint64("attempt", uint64(n+1)),
				slog.String("error", err.Error()),
			)
		}),
	)

	return entries, err
}

func retryableListError(err error) bool {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return false
	case errors.Is(err, transfer.ErrNotFound),
		errors.Is(err, transfer.ErrPermissionDenied),
		errors.Is(err, transfer.ErrBadRequest),
		errors.Is(err, transfer.ErrUnauthorized):
		return false
	default:
		return true
	}
}

func (c *Crawler) parallel() int {
	if c.Parallel <= 0 {
		return DefaultParallel
	}

	return c.Parallel
}

func (c *Crawler) attempts() int {
	if c.Attempts <= 0 {
		return DefaultAttempts
	}

	return c.Attempts
}

func (c *Crawler) delay() time.Duration {
	if c.Delay <= 0 {
		return defaultDelay
	}

	return c.Delay
}

func (c *Crawler) logger() *slog.Logger {
	if c.Logger == nil {
		return slog.Default()
	}

	return c.Logger
}

// cleanDir turns a user-supplied directory into an absolute, slash-separated
// path without a trailing slash (except the root).
func cleanDir(dir string) string {
	if dir == "" {
		return "/"
	}

	return path.Clean("/" + dir)
}
