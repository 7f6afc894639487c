package fetch

import (
	"context"
	"fmt"
	"io"

	"github.com/leaktk/sysvolscan/pkg/logger"
	"github.com/leaktk/sysvolscan/pkg/remotefs"
	"github.com/leaktk/sysvolscan/pkg/sysvol"
)

// DefaultMaxSize caps how much of a single file is read
const DefaultMaxSize int64 = 4 * 1024 * 1024

// FetchedFile is the decoded content of a candidate
type FetchedFile struct {
	Candidate sysvol.CandidatePath
	Text      string
	// Size is the number of bytes read, which is at most the max size
	Size      int64
	Truncated bool
	// DecodeFailure is set when Text was recovered through a fallback
	DecodeFailure bool
	// Err is set when the file couldn't be read at all, in which case Text is
	// empty
	Err error
}

// Failed reports whether the file couldn't be read
func (f *FetchedFile) Failed() bool {
	return f.Err != nil
}

// Options tune the fetcher
type Options struct {
	// MaxSize in bytes, DefaultMaxSize when zero
	MaxSize int64
	// FallbackEncoding is tried before replacement characters when a file
	// isn't valid UTF-8
	FallbackEncoding string
}

// Fetcher reads candidates off a share
type Fetcher struct {
	fs   remotefs.FS
	opts Options
}

// New returns a fetcher reading from fsys
func New(fsys remotefs.FS, opts Options) *Fetcher {
	if opts.MaxSize <= 0 {
		opts.MaxSize = DefaultMaxSize
	}

	return &Fetcher{fs: fsys, opts: opts}
}

// Fetch reads and decodes a single candidate. It never returns nil; read
// errors are reported on the result.
func (f *Fetcher) Fetch(ctx context.Context, candidate sysvol.CandidatePath) *FetchedFile {
	file := &FetchedFile{Candidate: candidate}

	r, err := f.fs.Open(ctx, candidate.Share, candidate.Path)
	if err != nil {
		file.Err = err
		return file
	}
	defer r.Close()

	data, err := io.ReadAll(io.LimitReader(r, f.opts.MaxSize+1))
	if err != nil {
		file.Err = &remotefs.PathError{
			Op:    "read",
			Share: candidate.Share,
			Path:  candidate.Path,
			Err:   fmt.Errorf("%w: %w", remotefs.Classify(err), err),
		}
		return file
	}

	if int64(len(data)) > f.opts.MaxSize {
		logger.Warning("file exceeds max size and was truncated: path=%q max_size=%d", candidate.String(), f.opts.MaxSize)
		data = Truncate(data, int(f.opts.MaxSize))
		file.Truncated = true
	}

	file.Size = int64(len(data))
	file.Text, file.DecodeFailure = Decode(data, f.opts.FallbackEncoding)

	return file
}
