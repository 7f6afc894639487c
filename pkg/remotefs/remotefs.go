// Package remotefs abstracts the file share the policy volume is read from.
// Paths are always forward slash separated and relative to the share root.
package remotefs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
)

var (
	// ErrNotFound means the path doesn't exist on the share
	ErrNotFound = errors.New("not found")
	// ErrAccessDenied means the credentials can't read the path
	ErrAccessDenied = errors.New("access denied")
	// ErrTransport covers anything else going wrong on the wire
	ErrTransport = errors.New("transport error")
)

// Entry is a single item in a directory listing
type Entry struct {
	Name  string
	IsDir bool
	Size  int64
}

// FS is a read-only view of a set of shares
type FS interface {
	// List returns the entries of dir on share
	List(ctx context.Context, share, dir string) ([]Entry, error)
	// Open returns a reader for the file at name on share
	Open(ctx context.Context, share, name string) (io.ReadCloser, error)
	// Search returns every file under root whose base name matches the glob
	// pattern, case insensitively. A partial result may come back alongside
	// an error when parts of the tree couldn't be listed.
	Search(ctx context.Context, share, root, pattern string) ([]string, error)
}

// PathError records the share and path an operation failed on
type PathError struct {
	Op    string
	Share string
	Path  string
	Err   error
}

// Error is defined to implement the error interface
func (e *PathError) Error() string {
	return fmt.Sprintf("%s //%s/%s: %v", e.Op, e.Share, e.Path, e.Err)
}

// Unwrap exposes the underlying classification
func (e *PathError) Unwrap() error {
	return e.Err
}

// Classify maps err to one of the package level error kinds
func Classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrNotFound):
		return ErrNotFound
	case errors.Is(err, ErrAccessDenied):
		return ErrAccessDenied
	default:
		return ErrTransport
	}
}

// Clean normalizes a share relative path to forward slashes with no leading
// or trailing separators
func Clean(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	p = path.Clean("/" + p)
	return strings.Trim(p, "/")
}

// Join cleans and joins path elements
func Join(elem ...string) string {
	return Clean(path.Join(elem...))
}

// Match reports whether name matches the glob pattern ignoring case
func Match(pattern, name string) bool {
	ok, err := path.Match(strings.ToLower(pattern), strings.ToLower(name))
	return err == nil && ok
}
