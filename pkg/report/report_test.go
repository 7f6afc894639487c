package report

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func finding(path, rule, secret string) Finding {
	return Finding{
		Share:   "SYSVOL",
		Path:    path,
		RuleID:  rule,
		Secret:  secret,
		Context: "line with " + secret,
		Line:    1,
		Origin:  "DirectWalk",
	}
}

func TestIssueCode(t *testing.T) {
	assert.Equal(t, "DiscoveryError", DiscoveryError.String())
	assert.Equal(t, "ConfigError", ConfigError.String())
	assert.Equal(t, "UnknownIssue", IssueCode(42).String())

	issue := NewIssue(FetchError, "SYSVOL", "corp.local/scripts/a.bat", "could not read: %s", "denied")
	assert.Equal(t, `FetchError: share="SYSVOL" path="corp.local/scripts/a.bat": could not read: denied`, issue.Error())
}

func TestFindingKey(t *testing.T) {
	a := finding("corp.local/scripts/Map.bat", "net_use_credential", "P@ss")
	b := finding("CORP.LOCAL/SCRIPTS/map.bat", "net_use_credential", "P@ss")
	b.Context = "different"
	b.Line = 7

	assert.Equal(t, a.Key(), b.Key())
	assert.Equal(t, a.WithID().ID, b.WithID().ID)

	c := finding("corp.local/scripts/map.bat", "net_use_credential", "p@ss")
	assert.NotEqual(t, a.Key(), c.Key())
}

func TestAggregate(t *testing.T) {
	findings := []Finding{
		finding("corp.local/scripts/a.bat", "net_use_credential", "one"),
		finding("corp.local/scripts/a.bat", "net_use_credential", "one"),
		finding("corp.local/scripts/a.bat", "generic_secret_assignment", "one"),
		finding("corp.local/scripts/b.bat", "net_use_credential", "one"),
	}

	r := Aggregate(findings, FetchStats{Fetched: 5, Unreadable: 1, DecodeWarnings: 2, Truncated: 1})
	require.Len(t, r.Findings, 3)
	assert.Equal(t, 3, r.Stats.Findings)
	assert.Equal(t, 4, r.Stats.FilesScanned)
	assert.Equal(t, 1, r.Stats.FilesUnreadable)
	assert.Equal(t, 2, r.Stats.DecodeWarnings)
	assert.Equal(t, 1, r.Stats.Truncated)

	for _, f := range r.Findings {
		assert.Len(t, f.ID, 16)
	}

	again := Aggregate(r.Findings, FetchStats{Fetched: 5, Unreadable: 1})
	assert.Equal(t, r.Findings, again.Findings)
}

func TestAggregator(t *testing.T) {
	t.Run("DropsOrphans", func(t *testing.T) {
		agg := NewAggregator()
		agg.AddScripts(Script{Share: "SYSVOL", Path: "corp.local/scripts/a.bat", Origin: "DirectWalk"})

		agg.Record(FileResult{Share: "SYSVOL", Path: "corp.local/scripts/unknown.bat"}, []Finding{
			finding("corp.local/scripts/unknown.bat", "net_use_credential", "x"),
		})
		agg.Record(FileResult{Share: "SYSVOL", Path: "corp.local/scripts/a.bat"}, []Finding{
			finding("corp.local/scripts/a.bat", "net_use_credential", "x"),
			finding("corp.local/scripts/other.bat", "net_use_credential", "y"),
		})

		r := agg.Snapshot()
		require.Len(t, r.Findings, 1)
		assert.Equal(t, "x", r.Findings[0].Secret)
		assert.Equal(t, 2, r.Stats.Skipped)
		assert.Equal(t, 1, r.Stats.FilesScanned)
	})

	t.Run("Counters", func(t *testing.T) {
		agg := NewAggregator()
		agg.AddScripts(
			Script{Share: "SYSVOL", Path: "corp.local/scripts/a.bat"},
			Script{Share: "SYSVOL", Path: "corp.local/scripts/b.bat"},
			Script{Share: "SYSVOL", Path: "corp.local/scripts/c.bat"},
			Script{Share: "SYSVOL", Path: "CORP.LOCAL/scripts/c.bat"},
		)

		agg.Record(FileResult{Share: "SYSVOL", Path: "corp.local/scripts/a.bat", DecodeWarning: true}, nil)
		agg.Record(FileResult{Share: "SYSVOL", Path: "corp.local/scripts/b.bat", Unreadable: true}, nil)
		agg.Record(FileResult{Share: "SYSVOL", Path: "corp.local/scripts/c.bat", Truncated: true}, nil)
		agg.Record(FileResult{Share: "SYSVOL", Path: "corp.local/scripts/c.bat", Truncated: true}, nil)
		agg.AddIssue(NewIssue(FetchError, "SYSVOL", "corp.local/scripts/b.bat", "denied"))

		r := agg.Snapshot()
		assert.Equal(t, 3, r.Stats.Candidates)
		assert.Equal(t, 2, r.Stats.FilesScanned)
		assert.Equal(t, 1, r.Stats.FilesUnreadable)
		assert.Equal(t, 1, r.Stats.DecodeWarnings)
		assert.Equal(t, 1, r.Stats.Truncated)
		assert.Len(t, r.Issues, 1)
	})

	t.Run("SnapshotIsACopy", func(t *testing.T) {
		agg := NewAggregator()
		agg.AddScripts(Script{Share: "SYSVOL", Path: "corp.local/scripts/a.bat"})
		agg.Record(FileResult{Share: "SYSVOL", Path: "corp.local/scripts/a.bat"}, []Finding{
			finding("corp.local/scripts/a.bat", "net_use_credential", "x"),
		})

		r := agg.Snapshot()
		r.Findings[0].Secret = "changed"
		assert.Equal(t, "x", agg.Snapshot().Findings[0].Secret)
	})

	t.Run("Concurrent", func(t *testing.T) {
		agg := NewAggregator()
		for i := 0; i < 50; i++ {
			agg.AddScripts(Script{Share: "SYSVOL", Path: fmt.Sprintf("corp.local/scripts/%d.bat", i)})
		}

		var wg sync.WaitGroup
		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				path := fmt.Sprintf("corp.local/scripts/%d.bat", i)
				agg.Record(FileResult{Share: "SYSVOL", Path: path}, []Finding{
					finding(path, "net_use_credential", "shared"),
				})
			}(i)
		}
		wg.Wait()

		r := agg.Snapshot()
		assert.Len(t, r.Findings, 50)
		assert.Equal(t, 50, r.Stats.FilesScanned)
	})
}
