package discover

import (
	"context"
	"errors"
	"path"
	"strings"

	"github.com/leaktk/sysvolscan/pkg/logger"
	"github.com/leaktk/sysvolscan/pkg/remotefs"
	"github.com/leaktk/sysvolscan/pkg/report"
	"github.com/leaktk/sysvolscan/pkg/sysvol"
)

// DefaultScriptExtensions are the file types a policy can run at logon,
// logoff, startup or shutdown
var DefaultScriptExtensions = []string{
	".bat", ".cmd", ".ps1", ".vbs", ".vbe", ".js", ".jse", ".wsf", ".kix",
}

// Options tune discovery
type Options struct {
	// Share holding the policy volume, SYSVOL when empty
	Share string
	// Extensions limits the files the direct walk yields, all when empty
	Extensions []string
	// ScriptExtensions decide which scripts.ini values name a script
	ScriptExtensions []string
}

// Discoverer finds candidate script files for a domain
type Discoverer struct {
	fs   remotefs.FS
	opts Options
}

// New returns a discoverer reading from fsys
func New(fsys remotefs.FS, opts Options) *Discoverer {
	if len(opts.Share) == 0 {
		opts.Share = "SYSVOL"
	}

	if len(opts.ScriptExtensions) == 0 {
		opts.ScriptExtensions = DefaultScriptExtensions
	}

	return &Discoverer{fs: fsys, opts: opts}
}

// run holds the state of a single Discover call
type run struct {
	*Discoverer
	domain     string
	issues     []report.Issue
	seen       map[string]struct{}
	candidates []sysvol.CandidatePath
	listings   map[string][]remotefs.Entry
}

// Discover returns the deduplicated candidate set for domain along with the
// problems hit along the way. Direct walk results come first so they win over
// a policy reference to the same file. The order is otherwise whatever the
// share lists.
func (d *Discoverer) Discover(ctx context.Context, domain string) ([]sysvol.CandidatePath, []report.Issue) {
	r := &run{
		Discoverer: d,
		domain:     domain,
		seen:       make(map[string]struct{}),
		listings:   make(map[string][]remotefs.Entry),
	}

	r.directWalk(ctx)
	if ctx.Err() == nil {
		r.policyReferences(ctx)
	}

	logger.Info("discovery complete: domain=%q candidates=%d issues=%d", domain, len(r.candidates), len(r.issues))
	return r.candidates, r.issues
}

func (r *run) add(candidate sysvol.CandidatePath) {
	candidate.Share = r.opts.Share
	candidate.Path = remotefs.Clean(candidate.Path)
	if _, ok := r.seen[candidate.Key()]; ok {
		return
	}

	r.seen[candidate.Key()] = struct{}{}
	r.candidates = append(r.candidates, candidate)
}

func (r *run) issue(code report.IssueCode, p, msg string, args ...any) {
	issue := report.NewIssue(code, r.opts.Share, p, msg, args...)
	logger.Warning("%s", issue)
	r.issues = append(r.issues, issue)
}

// issueFromErr records one issue per path that failed inside err
func (r *run) issueFromErr(code report.IssueCode, fallbackPath string, err error) {
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		for _, e := range joined.Unwrap() {
			r.issueFromErr(code, fallbackPath, e)
		}

		return
	}

	var pathErr *remotefs.PathError
	if errors.As(err, &pathErr) {
		r.issue(code, pathErr.Path, "could not %s directory: %s", pathErr.Op, remotefs.Classify(err))
		return
	}

	r.issue(code, fallbackPath, "%v", err)
}

// unusableRoot records why a directory discovery starts from can't be read.
// Listing failures keep their classified cause.
func (r *run) unusableRoot(ctx context.Context, p, name string, err error) {
	if ctx.Err() != nil {
		return
	}

	if errors.Is(err, remotefs.ErrNotFound) {
		r.issue(report.DiscoveryError, p, "%s not found", name)
		return
	}

	r.issueFromErr(report.DiscoveryError, p, err)
}

func hasExtension(name string, extensions []string) bool {
	ext := strings.ToLower(path.Ext(name))
	for _, e := range extensions {
		if strings.ToLower(e) == ext {
			return true
		}
	}

	return false
}

// directWalk lists everything under the classic scripts directory
func (r *run) directWalk(ctx context.Context) {
	root, err := r.resolve(ctx, "", sysvol.ScriptsRoot(r.domain))
	if err != nil {
		r.unusableRoot(ctx, sysvol.ScriptsRoot(r.domain), "scripts directory", err)
		return
	}

	err = remotefs.Walk(ctx, r.fs, r.opts.Share, root, func(p string, entry remotefs.Entry, err error) error {
		if err != nil {
			r.issueFromErr(report.DiscoveryError, p, err)
			return nil
		}

		if entry.IsDir {
			return nil
		}

		if len(r.opts.Extensions) > 0 && !hasExtension(entry.Name, r.opts.Extensions) {
			return nil
		}

		r.add(sysvol.CandidatePath{Path: p, Origin: sysvol.DirectWalk})
		return nil
	})

	if err != nil && ctx.Err() == nil {
		r.issueFromErr(report.DiscoveryError, root, err)
	}
}

// list returns the listing of dir, which must be an exact path, caching the
// result for the rest of the run
func (r *run) list(ctx context.Context, dir string) ([]remotefs.Entry, error) {
	key := strings.ToLower(dir)
	if entries, ok := r.listings[key]; ok {
		return entries, nil
	}

	entries, err := r.fs.List(ctx, r.opts.Share, dir)
	if err != nil {
		return nil, err
	}

	r.listings[key] = entries
	return entries, nil
}

// resolve finds rel under base, which must be an exact path, matching each
// element case insensitively the way the server would. It returns the path
// with the case the share reports. A missing element gives an error wrapping
// remotefs.ErrNotFound; a failed listing gives the listing's error.
func (r *run) resolve(ctx context.Context, base, rel string) (string, error) {
	current := remotefs.Clean(base)
	rel = remotefs.Clean(rel)
	if len(rel) == 0 {
		return current, nil
	}

	for _, elem := range strings.Split(rel, "/") {
		entries, err := r.list(ctx, current)
		if err != nil {
			return "", err
		}

		found := false
		for _, entry := range entries {
			if strings.EqualFold(entry.Name, elem) {
				current = remotefs.Join(current, entry.Name)
				found = true
				break
			}
		}

		if !found {
			return "", &remotefs.PathError{
				Op:    "resolve",
				Share: r.opts.Share,
				Path:  remotefs.Join(current, elem),
				Err:   remotefs.ErrNotFound,
			}
		}
	}

	return current, nil
}
