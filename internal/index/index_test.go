package index

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/globus-go/internal/transfer"
)

const testEndpoint = "97235036-3749-11e7-bcdc-22000b9a448b"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func dir(name string) transfer.FileEntry {
	return transfer.FileEntry{Name: name, Type: transfer.EntryDir, LastModified: "2024-01-02 03:04:05+00:00"}
}

func file(name string, size int64) transfer.FileEntry {
	return transfer.FileEntry{Name: name, Type: transfer.EntryFile, Size: size, LastModified: "2024-01-02 03:04:05+00:00"}
}

// fakeLister serves listings from a map and can fail a path a set number of
// times before succeeding.
type fakeLister struct {
	mu       sync.Mutex
	tree     map[string][]transfer.FileEntry
	failures map[string]int
	errs     map[string]error
	calls    map[string]int
	inFlight atomic.Int32
	maxSeen  atomic.Int32
}

func newFakeLister(tree map[string][]transfer.FileEntry) *fakeLister {
	return &fakeLister{
		tree:     tree,
		failures: map[string]int{},
		errs:     map[string]error{},
		calls:    map[string]int{},
	}
}

func (f *fakeLister) Ls(_ context.Context, endpoint, path string) ([]transfer.FileEntry, error) {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)

	for {
		cur := f.maxSeen.Load()
		if n <= cur || f.maxSeen.CompareAndSwap(cur, n) {
			break
		}
	}

	time.Sleep(time.Millisecond)

	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls[path]++

	if endpoint != testEndpoint {
		return nil, fmt.Errorf("unexpected endpoint %s", endpoint)
	}

	if err, ok := f.errs[path]; ok {
		return nil, err
	}

	if f.failures[path] > 0 {
		f.failures[path]--
		return nil, &transfer.APIError{StatusCode: 502, Code: "ExternalError", Err: transfer.ErrServerError}
	}

	entries, ok := f.tree[path]
	if !ok {
		return nil, &transfer.APIError{StatusCode: 404, Code: transfer.CodeNotFound, Err: transfer.ErrNotFound}
	}

	return entries, nil
}

func sampleTree() map[string][]transfer.FileEntry {
	return map[string][]transfer.FileEntry{
		"/": {
			file("readme.txt", 1536),
			dir("data"),
			dir(".hidden"),
			file("index.html", 10),
			file("file10.dat", 10),
			file("file2.dat", 2),
		},
		"/data": {
			dir("raw"),
			file("b.csv", 1000),
			file("a.csv", 999),
		},
		"/data/raw": {
			file("x.bin", 10240),
			file("notes.tmp", 1),
		},
	}
}

func newTestCrawler(l Lister, f *Filter) *Crawler {
	return &Crawler{
		Lister:   l,
		Endpoint: testEndpoint,
		Filter:   f,
		Parallel: 2,
		Attempts: 3,
		Delay:    time.Millisecond,
		Logger:   discardLogger(),
	}
}

func names(entries []transfer.FileEntry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Name)
	}

	return out
}

func TestCrawl_BuildsSortedFilteredTree(t *testing.T) {
	l := newFakeLister(sampleTree())

	var visited []string
	var mu sync.Mutex

	c := newTestCrawler(l, nil)
	c.OnDir = func(p string) {
		mu.Lock()
		visited = append(visited, p)
		mu.Unlock()
	}

	root, err := c.Crawl(context.Background(), "/")
	require.NoError(t, err)

	assert.Equal(t, "/", root.Path)
	assert.Equal(t, []string{"data", "file2.dat", "file10.dat", "readme.txt"}, names(root.Entries))
	require.Len(t, root.Children, 1)
	assert.Equal(t, "/data", root.Children[0].Path)
	assert.Equal(t, []string{"a.csv", "b.csv", "raw"}, names(root.Children[0].Entries))
	require.Len(t, root.Children[0].Children, 1)
	assert.Equal(t, "/data/raw", root.Children[0].Children[0].Path)

	assert.ElementsMatch(t, []string{"/", "/data", "/data/raw"}, visited)
	assert.Zero(t, l.calls["/.hidden"])
}

func TestCrawl_FilterAppliesToDirectories(t *testing.T) {
	l := newFakeLister(sampleTree())

	f, err := NewFilter(nil, []string{"raw", "*.tmp"}, false)
	require.NoError(t, err)

	root, err := newTestCrawler(l, f).Crawl(context.Background(), "/")
	require.NoError(t, err)

	assert.Empty(t, root.Children[0].Children)
	assert.Zero(t, l.calls["/data/raw"])
}

func TestCrawl_RetriesTransientErrors(t *testing.T) {
	l := newFakeLister(sampleTree())
	l.failures["/data"] = 2

	root, err := newTestCrawler(l, nil).Crawl(context.Background(), "/")
	require.NoError(t, err)

	assert.Equal(t, 3, l.calls["/data"])
	assert.Len(t, root.Children[0].Entries, 3)
}

func TestCrawl_GivesUpAfterAttempts(t *testing.T) {
	l := newFakeLister(sampleTree())
	l.failures["/data"] = 10

	_, err := newTestCrawler(l, nil).Crawl(context.Background(), "/")
	require.Error(t, err)
	assert.ErrorIs(t, err, transfer.ErrServerError)
	assert.Equal(t, 3, l.calls["/data"])
}

func TestCrawl_NotFoundIsNotRetried(t *testing.T) {
	l := newFakeLister(sampleTree())

	_, err := newTestCrawler(l, nil).Crawl(context.Background(), "/missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, transfer.ErrNotFound)
	assert.Equal(t, 1, l.calls["/missing"])
}

func TestCrawl_BoundedParallelism(t *testing.T) {
	tree := map[string][]transfer.FileEntry{"/": nil}
	for i := range 10 {
		name := fmt.Sprintf("d%d", i)
		tree["/"] = append(tree["/"], dir(name))
		tree["/"+name] = []transfer.FileEntry{file("f", 1)}
	}

	l := newFakeLister(tree)

	_, err := newTestCrawler(l, nil).Crawl(context.Background(), "/")
	require.NoError(t, err)

	assert.LessOrEqual(t, l.maxSeen.Load(), int32(2))
}

func TestCrawl_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	l := newFakeLister(sampleTree())
	l.failures["/"] = 100

	_, err := newTestCrawler(l, nil).Crawl(ctx, "/")
	require.Error(t, err)
}

func TestCrawl_NoLister(t *testing.T) {
	_, err := (&Crawler{}).Crawl(context.Background(), "/")
	require.Error(t, err)
}

func TestCleanDir(t *testing.T) {
	assert.Equal(t, "/", cleanDir(""))
	assert.Equal(t, "/", cleanDir("/"))
	assert.Equal(t, "/a/b", cleanDir("a/b/"))
	assert.Equal(t, "/~", cleanDir("/~/"))
}
