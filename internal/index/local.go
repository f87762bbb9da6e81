package index

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/tonimelisma/globus-go/internal/transfer"
)

// localTimeLayout matches the last_modified format of Transfer listings.
const localTimeLayout = "2006-01-02 15:04:05-07:00"

// LocalLister lists directories on a local filesystem rooted at Root, so the
// crawler and renderers work on a checkout as well as on an endpoint. The
// endpoint argument of Ls is ignored.
type LocalLister struct {
	Fs   afero.Fs
	Root string
}

// Ls lists dir, a slash-separated path relative to Root.
func (l *LocalLister) Ls(ctx context.Context, _ string, dir string) ([]transfer.FileEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	full := filepath.Join(l.Root, filepath.FromSlash(dir))

	infos, err := afero.ReadDir(l.fs(), full)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("index: %s: %w", full, transfer.ErrNotFound)
	}

	if err != nil {
		return nil, fmt.Errorf("index: reading %s: %w", full, err)
	}

	out := make([]transfer.FileEntry, 0, len(infos))

	for _, info := range infos {
		e := transfer.FileEntry{
			Name:         info.Name(),
			Type:         transfer.EntryFile,
			Size:         info.Size(),
			LastModified: info.ModTime().UTC().Format(localTimeLayout),
			Permissions:  fmt.Sprintf("%04o", info.Mode().Perm()),
		}

		switch {
		case info.IsDir():
			e.Type = transfer.EntryDir
			e.Size = 0
		case info.Mode()&fs.ModeSymlink != 0:
			e.Type = transfer.EntryLink
		}

		out = append(out, e)
	}

	return out, nil
}

func (l *LocalLister) fs() afero.Fs {
	if l.Fs == nil {
		return afero.NewOsFs()
	}

	return l.Fs
}
