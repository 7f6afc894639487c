package formatter

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/leaktk/sysvolscan/pkg/config"
	"github.com/leaktk/sysvolscan/pkg/kind"
	"github.com/leaktk/sysvolscan/pkg/logger"
	"github.com/leaktk/sysvolscan/pkg/report"
)

// OutputFormat is the code(int) for each format
type OutputFormat int

const (
	// JSON displays the output in JSON format
	JSON OutputFormat = iota
	// HUMAN displays the output in a way that's nice for humans to read
	HUMAN
	// TOML displays the output in TOML format
	TOML
	// YAML displays the output in YAML format
	YAML
	// CSV displays the findings in CSV format
	CSV
)

var outputFormats = map[string]OutputFormat{
	"JSON":  JSON,
	"HUMAN": HUMAN,
	"TOML":  TOML,
	"YAML":  YAML,
	"CSV":   CSV,
}

// Formatter renders reports
type Formatter struct {
	format   OutputFormat
	truncate int
}

// NewFormatter creates new formatter
func NewFormatter(cfg config.Formatter) (*Formatter, error) {
	format, err := GetOutputFormat(cfg.Format)
	if err != nil {
		return nil, err
	}

	return &Formatter{format: format, truncate: cfg.Truncate}, nil
}

// GetOutputFormat takes the string and returns OutputFormat or an error
func GetOutputFormat(format string) (OutputFormat, error) {
	if outputFormat, ok := kind.Lookup(format, outputFormats); ok {
		return outputFormat, nil
	}

	return JSON, fmt.Errorf("invalid output format option: format=%q", format)
}

// Format renders a report to the set format as a string
func (f *Formatter) Format(r *report.Report) string {
	var output string

	switch f.format {
	case JSON:
		output = f.formatJSON(r)
	case HUMAN:
		output = f.formatHuman(r)
	case TOML:
		output = f.formatTOML(r)
	case YAML:
		output = f.formatYAML(r)
	case CSV:
		output = f.formatCSV(r)
	}

	return output
}

func (f *Formatter) formatJSON(r *report.Report) string {
	out, err := json.Marshal(r)
	if err != nil {
		logger.Error("could not marshal report: error=%q", err)
	}

	return string(out)
}

func (f *Formatter) formatHuman(r *report.Report) string {
	var out strings.Builder

	_, _ = fmt.Fprintf(&out, "%-16s: %s\n", "DOMAIN", r.Domain)
	_, _ = fmt.Fprintf(&out, "%-16s: %s\n", "MODE", r.Mode)
	_, _ = fmt.Fprintf(&out, "%-16s: %d\n", "CANDIDATES", r.Stats.Candidates)
	_, _ = fmt.Fprintf(&out, "%-16s: %d\n", "FILES SCANNED", r.Stats.FilesScanned)
	_, _ = fmt.Fprintf(&out, "%-16s: %d\n", "FILES UNREADABLE", r.Stats.FilesUnreadable)
	_, _ = fmt.Fprintf(&out, "%-16s: %d\n", "FINDINGS", r.Stats.Findings)
	_, _ = fmt.Fprintf(&out, "%-16s: %t\n", "PARTIAL", r.Partial)
	_, _ = fmt.Fprintf(&out, "%-16s: %s\n", "DURATION", r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond))
	out.WriteRune('\n')

	if r.Mode == "enumerate" {
		for _, script := range r.Scripts {
			_, _ = fmt.Fprintf(&out, "%-16s: //%s/%s", script.Origin, script.Share, script.Path)
			if len(script.Source) > 0 {
				_, _ = fmt.Fprintf(&out, " (from //%s/%s as %q)", script.Share, script.Source, script.Reference)
			}
			out.WriteRune('\n')
		}

		if len(r.Scripts) > 0 {
			out.WriteRune('\n')
		}
	}

	headers := FindingFields()
	truncated := []int{}
	if f.truncate > 0 {
		truncated = truncatableFindingFields()
	}

	for _, row := range FlattenFindings(r) {
		for i, entry := range row {
			if slices.Contains(truncated, i) && len(entry) > f.truncate {
				_, _ = fmt.Fprintf(&out, "%-16s: %s...\n", strings.ToUpper(headers[i]), entry[:f.truncate])
			} else {
				_, _ = fmt.Fprintf(&out, "%-16s: %s\n", strings.ToUpper(headers[i]), entry)
			}
		}
		out.WriteRune('\n')
	}

	for _, issue := range r.Issues {
		_, _ = fmt.Fprintf(&out, "%-16s: %s\n", "ISSUE", issue)
	}

	return out.String()
}

func (f *Formatter) formatTOML(r *report.Report) string {
	var buf bytes.Buffer

	if err := toml.NewEncoder(&buf).Encode(r); err != nil {
		logger.Error("could not marshal report: error=%q", err)
	}

	return buf.String()
}

func (f *Formatter) formatYAML(r *report.Report) string {
	out, err := yaml.Marshal(r)
	if err != nil {
		logger.Error("could not marshal report: error=%q", err)
	}

	return string(out)
}

func (f *Formatter) formatCSV(r *report.Report) string {
	var buf bytes.Buffer

	if err := WriteFindingsCSV(&buf, r); err != nil {
		logger.Error("could not write report: error=%q", err)
	}

	return buf.String()
}

// WriteFindingsCSV writes a header row and one row per finding
func WriteFindingsCSV(w io.Writer, r *report.Report) error {
	writer := csv.NewWriter(w)

	if err := writer.Write(FindingFields()); err != nil {
		return err
	}

	return writer.WriteAll(FlattenFindings(r))
}

// FindingFields provides the column labels for a flattened finding
func FindingFields() []string {
	return []string{"id", "share", "path", "rule", "user", "secret", "context", "line", "origin"}
}

// truncatableFindingFields lists the columns shortened in HUMAN output
func truncatableFindingFields() []int {
	truncatableFields := []string{"secret", "context"}
	var fields []int

	for i, entry := range FindingFields() {
		if slices.Contains(truncatableFields, entry) {
			fields = append(fields, i)
		}
	}

	return fields
}

// FlattenFindings returns a row per finding in FindingFields order
func FlattenFindings(r *report.Report) [][]string {
	flattened := make([][]string, 0, len(r.Findings))

	for _, finding := range r.Findings {
		flattened = append(flattened, sanitizeEntry([]string{
			finding.ID,
			finding.Share,
			finding.Path,
			finding.RuleID,
			finding.User,
			finding.Secret,
			finding.Context,
			strconv.Itoa(finding.Line),
			finding.Origin,
		}))
	}

	return flattened
}

// sanitizeEntry keeps every record on a single line
func sanitizeEntry(value []string) []string {
	output := make([]string, 0, len(value))

	for _, entry := range value {
		entry = strings.ReplaceAll(entry, "\r", " ")
		entry = strings.ReplaceAll(entry, "\n", " ")
		output = append(output, entry)
	}

	return output
}
