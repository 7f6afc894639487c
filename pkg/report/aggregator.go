package report

import (
	"strings"
	"sync"
)

// FileResult is the per file outcome handed to the aggregator alongside the
// findings from that file
type FileResult struct {
	Share         string
	Path          string
	Unreadable    bool
	DecodeWarning bool
	Truncated     bool
}

type fileKey struct {
	share string
	path  string
}

func newFileKey(share, path string) fileKey {
	return fileKey{share: strings.ToLower(share), path: strings.ToLower(path)}
}

// Aggregator collects results from concurrent workers. It is safe for
// concurrent use.
type Aggregator struct {
	mu       sync.Mutex
	report   Report
	seen     map[Key]struct{}
	scripts  map[fileKey]struct{}
	recorded map[fileKey]struct{}
}

// NewAggregator returns an empty aggregator
func NewAggregator() *Aggregator {
	return &Aggregator{
		seen:     make(map[Key]struct{}),
		scripts:  make(map[fileKey]struct{}),
		recorded: make(map[fileKey]struct{}),
	}
}

// AddScripts registers discovered candidate files. Duplicates are ignored.
func (a *Aggregator) AddScripts(scripts ...Script) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for _, script := range scripts {
		k := newFileKey(script.Share, script.Path)
		if _, ok := a.scripts[k]; ok {
			continue
		}

		a.scripts[k] = struct{}{}
		a.report.Scripts = append(a.report.Scripts, script)
	}

	a.report.Stats.Candidates = len(a.report.Scripts)
}

// AddIssue records a non-fatal problem
func (a *Aggregator) AddIssue(issues ...Issue) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.report.Issues = append(a.report.Issues, issues...)
}

// Record stores the outcome of a single file. Findings that don't belong to
// a known script are dropped, as are duplicates of findings already recorded.
// Recording the same file twice doesn't change the counters.
func (a *Aggregator) Record(result FileResult, findings []Finding) {
	a.mu.Lock()
	defer a.mu.Unlock()

	fk := newFileKey(result.Share, result.Path)
	if _, ok := a.scripts[fk]; !ok {
		a.report.Stats.Skipped++
		return
	}

	if _, ok := a.recorded[fk]; !ok {
		a.recorded[fk] = struct{}{}

		switch {
		case result.Unreadable:
			a.report.Stats.FilesUnreadable++
		default:
			a.report.Stats.FilesScanned++
		}

		if result.DecodeWarning {
			a.report.Stats.DecodeWarnings++
		}

		if result.Truncated {
			a.report.Stats.Truncated++
		}
	}

	for _, finding := range findings {
		if newFileKey(finding.Share, finding.Path) != fk {
			a.report.Stats.Skipped++
			continue
		}

		k := finding.Key()
		if _, ok := a.seen[k]; ok {
			continue
		}

		a.seen[k] = struct{}{}
		if len(finding.ID) == 0 {
			finding = finding.WithID()
		}
		a.report.Findings = append(a.report.Findings, finding)
	}

	a.report.Stats.Findings = len(a.report.Findings)
}

// Snapshot returns a copy of the current report that shares no memory with
// the aggregator
func (a *Aggregator) Snapshot() *Report {
	a.mu.Lock()
	defer a.mu.Unlock()

	r := a.report
	r.Scripts = append([]Script(nil), a.report.Scripts...)
	r.Findings = append([]Finding(nil), a.report.Findings...)
	r.Issues = append([]Issue(nil), a.report.Issues...)

	return &r
}
