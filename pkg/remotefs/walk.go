package remotefs

import (
	"context"
	"errors"
	"io/fs"
)

// SkipDir can be returned from a WalkFunc to skip a directory
var SkipDir = fs.SkipDir

// WalkFunc is called for every entry found under the walk root. err is set
// when dir couldn't be listed, in which case entry is the zero value.
type WalkFunc func(p string, entry Entry, err error) error

// Walk visits every entry under root depth first in listing order. Listing
// failures are reported to fn and the walk keeps going unless fn returns an
// error. Context cancellation stops the walk.
func Walk(ctx context.Context, fsys FS, share, root string, fn WalkFunc) error {
	root = Clean(root)
	err := walk(ctx, fsys, share, root, fn)
	if errors.Is(err, SkipDir) {
		return nil
	}

	return err
}

func walk(ctx context.Context, fsys FS, share, dir string, fn WalkFunc) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	entries, err := fsys.List(ctx, share, dir)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		return fn(dir, Entry{}, err)
	}

	for _, entry := range entries {
		p := Join(dir, entry.Name)
		if err := fn(p, entry, nil); err != nil {
			if errors.Is(err, SkipDir) {
				if entry.IsDir {
					continue
				}

				return nil
			}

			return err
		}

		if entry.IsDir {
			if err := walk(ctx, fsys, share, p, fn); err != nil && !errors.Is(err, SkipDir) {
				return err
			}
		}
	}

	return nil
}

// SearchWalk implements FS.Search on top of List for backends that have no
// native search
func SearchWalk(ctx context.Context, fsys FS, share, root, pattern string) ([]string, error) {
	var matches []string
	var errs []error

	err := Walk(ctx, fsys, share, root, func(p string, entry Entry, err error) error {
		if err != nil {
			errs = append(errs, err)
			return nil
		}

		if !entry.IsDir && Match(pattern, entry.Name) {
			matches = append(matches, p)
		}

		return nil
	})

	if err != nil {
		errs = append(errs, err)
	}

	return matches, errors.Join(errs...)
}
