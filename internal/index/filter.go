package index

import (
	"fmt"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// Filter decides which directory entries appear in an index. Hidden names
// and generated index files are always skipped. Exclude wins over include,
// and an empty include list admits everything.
type Filter struct {
	include    []string
	exclude    []string
	ignoreCase bool
}

// NewFilter compiles include/exclude patterns. Each pattern is either an
// exact name or a doublestar glob.
func NewFilter(include, exclude []string, ignoreCase bool) (*Filter, error) {
	f := &Filter{ignoreCase: ignoreCase}

	var err error

	if f.include, err = f.prepare(include); err != nil {
		return nil, err
	}

	if f.exclude, err = f.prepare(exclude); err != nil {
		return nil, err
	}

	return f, nil
}

func (f *Filter) prepare(patterns []string) ([]string, error) {
	out := make([]string, 0, len(patterns))

	for _, p := range patterns {
		if p == "" {
			continue
		}

		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("index: invalid pattern %q", p)
		}

		out = append(out, f.normalize(p))
	}

	return out, nil
}

func (f *Filter) normalize(s string) string {
	s = norm.NFC.String(s)
	if f.ignoreCase {
		// A Caser holds state, so Match from concurrent crawl workers
		// needs its own.
		s = cases.Fold().String(s)
	}

	return s
}

// Match reports whether name belongs in the index.
func (f *Filter) Match(name string) bool {
	if name == "" || strings.HasPrefix(name, ".") || isIndexFile(name) {
		return false
	}

	if f == nil {
		return true
	}

	n := f.normalize(name)

	if matchAny(f.exclude, n) {
		return false
	}

	return len(f.include) == 0 || matchAny(f.include, n)
}

func matchAny(patterns []string, name string) bool {
	for _, p := range patterns {
		if p == name {
			return true
		}

		// Patterns were validated in prepare, so Match cannot fail here.
		if ok, _ := doublestar.Match(p, name); ok {
			return true
		}
	}

	return false
}

func isIndexFile(name string) bool {
	return name == htmlIndexName || name == markdownIndexName
}
