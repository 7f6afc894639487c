package scanner

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/fatih/semgroup"

	"github.com/leaktk/sysvolscan/pkg/config"
	"github.com/leaktk/sysvolscan/pkg/discover"
	"github.com/leaktk/sysvolscan/pkg/extract"
	"github.com/leaktk/sysvolscan/pkg/fetch"
	"github.com/leaktk/sysvolscan/pkg/id"
	"github.com/leaktk/sysvolscan/pkg/logger"
	"github.com/leaktk/sysvolscan/pkg/remotefs"
	"github.com/leaktk/sysvolscan/pkg/report"
	"github.com/leaktk/sysvolscan/pkg/rules"
	"github.com/leaktk/sysvolscan/pkg/sysvol"
)

// Scanner holds the config and state for the scanner processes
type Scanner struct {
	discoverer *discover.Discoverer
	extractor  *extract.Extractor
	fetcher    *fetch.Fetcher
	timeout    time.Duration
	workers    int
}

// NewScanner returns a scanner reading from fsys. Extra rules named in the
// config are loaded on top of the built in ones.
func NewScanner(fsys remotefs.FS, cfg *config.Config) (*Scanner, error) {
	set := rules.Default()

	if path := cfg.Scanner.Rules.ExtraRulesPath; len(path) > 0 {
		extra, err := rules.LoadGitleaksConfig(path)
		if err != nil {
			return nil, err
		}

		if set, err = set.Extend(extra); err != nil {
			return nil, fmt.Errorf("could not add extra rules: path=%q error=%w", path, err)
		}

		logger.Debug("loaded extra rules: path=%q rules=%d", path, len(extra.Rules))
	}

	workers := cfg.Scanner.Workers
	if workers < 1 {
		workers = 1
	}

	return &Scanner{
		discoverer: discover.New(fsys, discover.Options{
			Share:            cfg.Scanner.Share,
			Extensions:       cfg.Scanner.Extensions,
			ScriptExtensions: cfg.Scanner.ScriptExtensions,
		}),
		extractor: extract.New(set),
		fetcher: fetch.New(fsys, fetch.Options{
			MaxSize:          cfg.Scanner.MaxFileSize,
			FallbackEncoding: cfg.Scanner.FallbackEncoding,
		}),
		timeout: time.Duration(cfg.Scanner.Timeout) * time.Second,
		workers: workers,
	}, nil
}

// Scan discovers the logon scripts of domain and, in Extract mode, pulls the
// credentials out of them. Cancelling ctx or hitting the configured timeout
// stops new fetches and returns what was collected so far. The report is
// marked Partial only when discovery was cut short or a candidate was skipped.
func (s *Scanner) Scan(ctx context.Context, domain string, mode Mode) *report.Report {
	startedAt := time.Now()

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	logger.Info("starting scan: domain=%q mode=%s workers=%d", domain, mode, s.workers)

	agg := report.NewAggregator()
	candidates, issues := s.discoverer.Discover(ctx, domain)
	agg.AddIssue(issues...)
	partial := ctx.Err() != nil

	for _, candidate := range candidates {
		agg.AddScripts(report.Script{
			Share:     candidate.Share,
			Path:      candidate.Path,
			Origin:    candidate.Origin.String(),
			Source:    candidate.Source,
			Reference: candidate.Reference,
		})
	}

	if mode == Extract {
		if scanned := s.extractAll(ctx, agg, candidates); scanned < len(candidates) {
			logger.Warning("skipped candidates: domain=%q skipped=%d", domain, len(candidates)-scanned)
			partial = true
		}
	}

	r := agg.Snapshot()
	r.ID = id.ID()
	r.Domain = domain
	r.Mode = mode.String()
	r.Partial = partial
	r.StartedAt = startedAt
	r.FinishedAt = time.Now()

	if r.Partial {
		logger.Warning("scan stopped early: domain=%q error=%q", domain, ctx.Err())
	}

	logger.Info(
		"scan complete: domain=%q candidates=%d scanned=%d unreadable=%d findings=%d",
		domain, r.Stats.Candidates, r.Stats.FilesScanned, r.Stats.FilesUnreadable, r.Stats.Findings,
	)

	return r
}

// extractAll returns how many candidates were recorded
func (s *Scanner) extractAll(ctx context.Context, agg *report.Aggregator, candidates []sysvol.CandidatePath) int {
	var scanned atomic.Int64
	sg := semgroup.NewGroup(ctx, int64(s.workers))

	for _, candidate := range candidates {
		sg.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}

			if s.scanFile(ctx, agg, candidate) {
				scanned.Add(1)
			}
			return nil
		})
	}

	if err := sg.Wait(); err != nil {
		logger.Debug("worker pool stopped: %v", err)
	}

	return int(scanned.Load())
}

func (s *Scanner) scanFile(ctx context.Context, agg *report.Aggregator, candidate sysvol.CandidatePath) bool {
	file := s.fetcher.Fetch(ctx, candidate)
	result := report.FileResult{
		Share:         candidate.Share,
		Path:          candidate.Path,
		Unreadable:    file.Failed(),
		DecodeWarning: file.DecodeFailure,
		Truncated:     file.Truncated,
	}

	if file.Failed() {
		if ctx.Err() != nil {
			return false
		}

		agg.AddIssue(report.NewIssue(
			report.FetchError, candidate.Share, candidate.Path,
			"could not read file: %s", remotefs.Classify(file.Err),
		))
		logger.Warning("could not read file: path=%q error=%q", candidate.String(), file.Err)
		agg.Record(result, nil)
		return true
	}

	if file.DecodeFailure {
		agg.AddIssue(report.NewIssue(
			report.DecodeWarning, candidate.Share, candidate.Path,
			"file is not valid text in the expected encoding and was recovered with replacements",
		))
	}

	findings := s.extractor.Extract(file)
	logger.Debug("scanned file: path=%q findings=%d", candidate.String(), len(findings))
	agg.Record(result, findings)
	return true
}
