package report

import (
	"strings"
	"time"

	"github.com/leaktk/sysvolscan/pkg/id"
)

type (
	// Finding is a credential extracted from a script
	Finding struct {
		ID     string `json:"id" toml:"id" yaml:"id"`
		Share  string `json:"share" toml:"share" yaml:"share"`
		Path   string `json:"path" toml:"path" yaml:"path"`
		RuleID string `json:"rule" toml:"rule" yaml:"rule"`
		// User is the account the secret belongs to when the rule can tell
		User   string `json:"user,omitempty" toml:"user,omitempty" yaml:"user,omitempty"`
		Secret string `json:"secret" toml:"secret" yaml:"secret"`
		// Context is the line the secret was found on. It is informational only
		// and isn't part of the finding's identity.
		Context string `json:"context" toml:"context" yaml:"context"`
		Line    int    `json:"line" toml:"line" yaml:"line"`
		Origin  string `json:"origin" toml:"origin" yaml:"origin"`
	}

	// Script is a discovered candidate file
	Script struct {
		Share  string `json:"share" toml:"share" yaml:"share"`
		Path   string `json:"path" toml:"path" yaml:"path"`
		Origin string `json:"origin" toml:"origin" yaml:"origin"`
		// Source and Reference name the policy file that pointed at the script
		// and the value it used
		Source    string `json:"source,omitempty" toml:"source,omitempty" yaml:"source,omitempty"`
		Reference string `json:"reference,omitempty" toml:"reference,omitempty" yaml:"reference,omitempty"`
	}

	// Stats summarizes how complete the run was
	Stats struct {
		Candidates      int `json:"candidates" toml:"candidates" yaml:"candidates"`
		FilesScanned    int `json:"files_scanned" toml:"files_scanned" yaml:"files_scanned"`
		FilesUnreadable int `json:"files_unreadable" toml:"files_unreadable" yaml:"files_unreadable"`
		DecodeWarnings  int `json:"decode_warnings" toml:"decode_warnings" yaml:"decode_warnings"`
		Truncated       int `json:"truncated" toml:"truncated" yaml:"truncated"`
		Findings        int `json:"findings" toml:"findings" yaml:"findings"`
		Skipped         int `json:"skipped" toml:"skipped" yaml:"skipped"`
	}

	// Report is the read-only result of a run
	Report struct {
		ID         string    `json:"id" toml:"id" yaml:"id"`
		Domain     string    `json:"domain" toml:"domain" yaml:"domain"`
		Mode       string    `json:"mode" toml:"mode" yaml:"mode"`
		Partial    bool      `json:"partial" toml:"partial" yaml:"partial"`
		StartedAt  time.Time `json:"started_at" toml:"started_at" yaml:"started_at"`
		FinishedAt time.Time `json:"finished_at" toml:"finished_at" yaml:"finished_at"`
		Stats      Stats     `json:"stats" toml:"stats" yaml:"stats"`
		Scripts    []Script  `json:"scripts" toml:"scripts" yaml:"scripts"`
		Findings   []Finding `json:"findings" toml:"findings" yaml:"findings"`
		Issues     []Issue   `json:"issues" toml:"issues" yaml:"issues"`
	}

	// Key is the identity of a finding used for deduplication
	Key struct {
		Share  string
		Path   string
		RuleID string
		Secret string
	}

	// FetchStats carries the per-run fetch counters into Aggregate
	FetchStats struct {
		Fetched        int
		Unreadable     int
		DecodeWarnings int
		Truncated      int
	}
)

// Key returns the identity of the finding. Share and path are compared case
// insensitively since SMB paths are.
func (f Finding) Key() Key {
	return Key{
		Share:  strings.ToLower(f.Share),
		Path:   strings.ToLower(f.Path),
		RuleID: f.RuleID,
		Secret: f.Secret,
	}
}

// WithID fills in the stable ID derived from the finding's identity
func (f Finding) WithID() Finding {
	k := f.Key()
	f.ID = id.ID(k.Share, k.Path, k.RuleID, k.Secret)
	return f
}

// Aggregate merges findings into a report, dropping duplicate identities and
// computing the counters from the fetch stats. Running it again over the same
// findings yields the same set.
func Aggregate(findings []Finding, stats FetchStats) *Report {
	r := &Report{
		Stats: Stats{
			FilesScanned:    stats.Fetched - stats.Unreadable,
			FilesUnreadable: stats.Unreadable,
			DecodeWarnings:  stats.DecodeWarnings,
			Truncated:       stats.Truncated,
		},
	}

	seen := make(map[Key]struct{}, len(findings))
	for _, finding := range findings {
		if _, ok := seen[finding.Key()]; ok {
			continue
		}

		seen[finding.Key()] = struct{}{}
		if len(finding.ID) == 0 {
			finding = finding.WithID()
		}
		r.Findings = append(r.Findings, finding)
	}

	r.Stats.Findings = len(r.Findings)
	return r
}
