package export

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mholt/archives"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leaktk/sysvolscan/pkg/report"
)

func mockReport() *report.Report {
	return &report.Report{
		ID:     "0123456789abcdef",
		Domain: "corp.local",
		Mode:   "extract",
		Scripts: []report.Script{
			{Share: "SYSVOL", Path: "corp.local/scripts/map.bat", Origin: "DirectWalk"},
			{
				Share:     "SYSVOL",
				Path:      "corp.local/Policies/{A}/User/Scripts/Logon/deploy.PS1",
				Origin:    "PolicyReference",
				Source:    "corp.local/Policies/{A}/User/Scripts/scripts.ini",
				Reference: "deploy.PS1",
			},
		},
		Findings: []report.Finding{
			{
				ID:      "fedcba9876543210",
				Share:   "SYSVOL",
				Path:    "corp.local/scripts/map.bat",
				RuleID:  "net_use_credential",
				User:    `CORP\bob`,
				Secret:  "hunter2",
				Context: `net use \\fs01\share$ /user:CORP\bob hunter2`,
				Line:    2,
				Origin:  "DirectWalk",
			},
		},
	}
}

func readCSV(t *testing.T, p string) [][]string {
	t.Helper()

	f, err := os.Open(p)
	require.NoError(t, err)
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return records
}

func TestWriteDir(t *testing.T) {
	ctx := context.Background()

	t.Run("Files", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "out")
		result, err := WriteDir(ctx, dir, mockReport(), Options{})
		require.NoError(t, err)
		assert.Len(t, result.Files, 3)
		assert.Empty(t, result.Bundle)

		credentials := readCSV(t, filepath.Join(dir, CredentialsFile))
		require.Len(t, credentials, 2)
		assert.Equal(t, "hunter2", credentials[1][5])

		scripts := readCSV(t, filepath.Join(dir, ScriptsFile))
		assert.Equal(t, [][]string{
			{"type", "share", "path", "origin", "source", "reference"},
			{"bat", "SYSVOL", "corp.local/scripts/map.bat", "DirectWalk", "", ""},
			{"ps1", "SYSVOL", "corp.local/Policies/{A}/User/Scripts/Logon/deploy.PS1", "PolicyReference", "corp.local/Policies/{A}/User/Scripts/scripts.ini", "deploy.PS1"},
		}, scripts)

		data, err := os.ReadFile(filepath.Join(dir, ReportFile))
		require.NoError(t, err)

		var decoded report.Report
		require.NoError(t, json.Unmarshal(data, &decoded))
		assert.Equal(t, "corp.local", decoded.Domain)
		assert.Len(t, decoded.Findings, 1)
	})

	t.Run("Bundle", func(t *testing.T) {
		dir := t.TempDir()
		result, err := WriteDir(ctx, dir, mockReport(), Options{Bundle: true})
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(dir, "sysvolscan-0123456789abcdef.tar.gz"), result.Bundle)

		fsys, err := archives.FileSystem(ctx, result.Bundle, nil)
		require.NoError(t, err)

		data, err := fs.ReadFile(fsys, CredentialsFile)
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(string(data), "id,share,path,rule,user,secret,context,line,origin\n"))

		_, err = fs.Stat(fsys, ScriptsFile)
		assert.NoError(t, err)
	})

	t.Run("BadDir", func(t *testing.T) {
		file := filepath.Join(t.TempDir(), "file")
		require.NoError(t, os.WriteFile(file, nil, 0o600))

		_, err := WriteDir(ctx, filepath.Join(file, "out"), mockReport(), Options{})
		assert.Error(t, err)
	})
}
