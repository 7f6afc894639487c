package export

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/mholt/archives"

	"github.com/leaktk/sysvolscan/pkg/formatter"
	"github.com/leaktk/sysvolscan/pkg/fs"
	"github.com/leaktk/sysvolscan/pkg/logger"
	"github.com/leaktk/sysvolscan/pkg/report"
)

const (
	// CredentialsFile holds one row per finding
	CredentialsFile = "credentials.csv"
	// ScriptsFile holds one row per discovered script
	ScriptsFile = "logon_scripts.csv"
	// ReportFile holds the full report as JSON
	ReportFile = "report.json"
)

// Options for WriteDir
type Options struct {
	// Bundle also packs the files into a single tar.gz
	Bundle bool
}

// Result lists what was written
type Result struct {
	Files  []string
	Bundle string
}

// WriteDir writes the report's findings, script list and full JSON into dir,
// creating it if needed
func WriteDir(ctx context.Context, dir string, r *report.Report, opts Options) (*Result, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("could not create output dir: path=%q error=%w", dir, err)
	}

	writers := []struct {
		name  string
		write func(*os.File) error
	}{
		{CredentialsFile, func(f *os.File) error { return formatter.WriteFindingsCSV(f, r) }},
		{ScriptsFile, func(f *os.File) error { return writeScriptsCSV(f, r) }},
		{ReportFile, func(f *os.File) error { return writeJSON(f, r) }},
	}

	result := &Result{}
	for _, w := range writers {
		p, err := writeFile(dir, w.name, w.write)
		if err != nil {
			return result, err
		}

		logger.Info("wrote export file: path=%q", p)
		result.Files = append(result.Files, p)
	}

	if opts.Bundle {
		bundle, err := writeBundle(ctx, dir, r, result.Files)
		if err != nil {
			return result, err
		}

		logger.Info("wrote export bundle: path=%q", bundle)
		result.Bundle = bundle
	}

	return result, nil
}

func writeFile(dir, name string, write func(*os.File) error) (string, error) {
	p, err := fs.CleanJoin(dir, name)
	if err != nil {
		return "", err
	}

	f, err := os.OpenFile(p, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return "", fmt.Errorf("could not create export file: path=%q error=%w", p, err)
	}

	if err := write(f); err != nil {
		_ = f.Close()
		return "", fmt.Errorf("could not write export file: path=%q error=%w", p, err)
	}

	return p, f.Close()
}

// ScriptFields provides the column labels of ScriptsFile
func ScriptFields() []string {
	return []string{"type", "share", "path", "origin", "source", "reference"}
}

func writeScriptsCSV(f *os.File, r *report.Report) error {
	writer := csv.NewWriter(f)

	if err := writer.Write(ScriptFields()); err != nil {
		return err
	}

	for _, script := range r.Scripts {
		scriptType := strings.TrimPrefix(strings.ToLower(path.Ext(script.Path)), ".")
		row := []string{scriptType, script.Share, script.Path, script.Origin, script.Source, script.Reference}
		if err := writer.Write(row); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

func writeJSON(f *os.File, r *report.Report) error {
	encoder := json.NewEncoder(f)
	encoder.SetIndent("", "  ")
	return encoder.Encode(r)
}

func writeBundle(ctx context.Context, dir string, r *report.Report, paths []string) (string, error) {
	filenames := make(map[string]string, len(paths))
	for _, p := range paths {
		filenames[p] = filepath.Base(p)
	}

	files, err := archives.FilesFromDisk(ctx, nil, filenames)
	if err != nil {
		return "", fmt.Errorf("could not collect export files: %w", err)
	}

	bundle, err := fs.CleanJoin(dir, fmt.Sprintf("sysvolscan-%s.tar.gz", r.ID))
	if err != nil {
		return "", err
	}

	out, err := os.OpenFile(bundle, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return "", fmt.Errorf("could not create bundle: path=%q error=%w", bundle, err)
	}

	format := archives.CompressedArchive{
		Compression: archives.Gz{},
		Archival:    archives.Tar{},
	}

	if err := format.Archive(ctx, out, files); err != nil {
		_ = out.Close()
		return "", fmt.Errorf("could not write bundle: path=%q error=%w", bundle, err)
	}

	return bundle, out.Close()
}
