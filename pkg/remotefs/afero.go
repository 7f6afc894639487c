package remotefs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path"
	"path/filepath"

	"github.com/spf13/afero"
)

// Afero serves shares out of an afero filesystem. Each share is a top level
// directory of the filesystem.
type Afero struct {
	fs afero.Fs
}

// NewAfero wraps an existing afero filesystem
func NewAfero(fsys afero.Fs) *Afero {
	return &Afero{fs: fsys}
}

// NewLocal serves shares from a directory on disk, such as a copy of a
// domain controller's SYSVOL taken for offline review
func NewLocal(root string) *Afero {
	return NewAfero(afero.NewReadOnlyFs(afero.NewBasePathFs(afero.NewOsFs(), root)))
}

func (a *Afero) resolve(share, name string) string {
	return filepath.FromSlash("/" + path.Join(Clean(share), Clean(name)))
}

// List implements FS
func (a *Afero) List(ctx context.Context, share, dir string) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	infos, err := afero.ReadDir(a.fs, a.resolve(share, dir))
	if err != nil {
		return nil, &PathError{Op: "list", Share: share, Path: dir, Err: classifyOS(err)}
	}

	entries := make([]Entry, 0, len(infos))
	for _, info := range infos {
		entries = append(entries, Entry{
			Name:  info.Name(),
			IsDir: info.IsDir(),
			Size:  info.Size(),
		})
	}

	return entries, nil
}

// Open implements FS
func (a *Afero) Open(ctx context.Context, share, name string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f, err := a.fs.Open(a.resolve(share, name))
	if err != nil {
		return nil, &PathError{Op: "open", Share: share, Path: name, Err: classifyOS(err)}
	}

	if info, err := f.Stat(); err == nil && info.IsDir() {
		_ = f.Close()
		return nil, &PathError{Op: "open", Share: share, Path: name, Err: ErrNotFound}
	}

	return f, nil
}

// Search implements FS
func (a *Afero) Search(ctx context.Context, share, root, pattern string) ([]string, error) {
	return SearchWalk(ctx, a, share, root, pattern)
}

func classifyOS(err error) error {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	case errors.Is(err, fs.ErrPermission):
		return fmt.Errorf("%w: %w", ErrAccessDenied, err)
	default:
		return fmt.Errorf("%w: %w", ErrTransport, err)
	}
}
