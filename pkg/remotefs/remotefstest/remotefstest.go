// Package remotefstest provides in-memory shares for tests
package remotefstest

import (
	"context"
	"io"
	"path"
	"strings"
	"sync"

	"github.com/spf13/afero"

	"github.com/leaktk/sysvolscan/pkg/remotefs"
)

// NewMemFS builds an in-memory share set from a map of "SHARE/path" to file
// contents
func NewMemFS(files map[string]string) *remotefs.Afero {
	mem := afero.NewMemMapFs()
	for name, content := range files {
		name = "/" + remotefs.Clean(name)
		if err := mem.MkdirAll(path.Dir(name), 0o755); err != nil {
			panic(err)
		}

		if err := afero.WriteFile(mem, name, []byte(content), 0o644); err != nil {
			panic(err)
		}
	}

	return remotefs.NewAfero(mem)
}

// Faulty wraps an FS and fails operations on selected paths
type Faulty struct {
	remotefs.FS

	mu sync.Mutex
	// ListErr maps lower cased "share/dir" to the error List returns
	ListErr map[string]error
	// OpenErr maps lower cased "share/path" to the error Open returns
	OpenErr map[string]error
	// OnOpen is called before every Open
	OnOpen func(share, name string)
	opened []string
}

// NewFaulty wraps fsys
func NewFaulty(fsys remotefs.FS) *Faulty {
	return &Faulty{
		FS:      fsys,
		ListErr: make(map[string]error),
		OpenErr: make(map[string]error),
	}
}

func key(share, p string) string {
	return strings.ToLower(remotefs.Join(share, p))
}

// List implements remotefs.FS
func (f *Faulty) List(ctx context.Context, share, dir string) ([]remotefs.Entry, error) {
	if err, ok := f.ListErr[key(share, dir)]; ok {
		return nil, &remotefs.PathError{Op: "list", Share: share, Path: dir, Err: err}
	}

	return f.FS.List(ctx, share, dir)
}

// Open implements remotefs.FS
func (f *Faulty) Open(ctx context.Context, share, name string) (io.ReadCloser, error) {
	if f.OnOpen != nil {
		f.OnOpen(share, name)
	}

	f.mu.Lock()
	f.opened = append(f.opened, remotefs.Join(share, name))
	f.mu.Unlock()

	if err, ok := f.OpenErr[key(share, name)]; ok {
		return nil, &remotefs.PathError{Op: "open", Share: share, Path: name, Err: err}
	}

	return f.FS.Open(ctx, share, name)
}

// Search implements remotefs.FS using the wrapper's List
func (f *Faulty) Search(ctx context.Context, share, root, pattern string) ([]string, error) {
	return remotefs.SearchWalk(ctx, f, share, root, pattern)
}

// Opened returns the paths passed to Open so far
func (f *Faulty) Opened() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]string(nil), f.opened...)
}
