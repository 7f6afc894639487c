package extract

import (
	"strings"

	"github.com/zricethezav/gitleaks/v8/regexp"

	"github.com/leaktk/sysvolscan/pkg/fetch"
	"github.com/leaktk/sysvolscan/pkg/report"
	"github.com/leaktk/sysvolscan/pkg/rules"
)

var commentPrefixes = []string{"#", ";", "//", "::"}

// variableRef matches secrets that are only a reference to a value set
// elsewhere such as %PASS%, !PASS!, %1, $pass or ${pass}
var variableRef = regexp.MustCompile(`^(?:%~?\w+%?|!\w+!|\$\{?[\w:]+\}?)$`)

// Extractor applies a rule set to fetched files
type Extractor struct {
	set   *rules.Set
	rules []*rules.Rule
}

// New returns an extractor using set, or the built in rules when set is nil
func New(set *rules.Set) *Extractor {
	if set == nil {
		set = rules.Default()
	}

	return &Extractor{set: set, rules: set.Rules()}
}

// IsComment reports whether the trimmed line is a comment in any of the
// script languages found on the share
func IsComment(line string) bool {
	line = strings.TrimSpace(line)
	for _, prefix := range commentPrefixes {
		if strings.HasPrefix(line, prefix) {
			return true
		}
	}

	lower := strings.ToLower(line)
	return lower == "rem" || strings.HasPrefix(lower, "rem ") || strings.HasPrefix(lower, "@rem ") || strings.HasPrefix(lower, "rem\t")
}

// Normalize trims whitespace and surrounding quotes from a captured secret
func Normalize(secret string) string {
	return strings.TrimSpace(strings.Trim(strings.TrimSpace(secret), `"'`))
}

func (e *Extractor) keep(secret string) bool {
	switch {
	case len(secret) == 0, secret == "*":
		return false
	case variableRef.MatchString(secret):
		return false
	default:
		return !e.set.Allowed(secret)
	}
}

// Extract runs every rule over every line of the file. A line matching
// several rules yields one finding per rule. Files that couldn't be read
// yield nothing.
func (e *Extractor) Extract(file *fetch.FetchedFile) []report.Finding {
	if file == nil || file.Failed() {
		return nil
	}

	var findings []report.Finding
	candidate := file.Candidate

	for i, line := range strings.Split(file.Text, "\n") {
		line = strings.TrimRight(line, "\r")
		if len(strings.TrimSpace(line)) == 0 || IsComment(line) {
			continue
		}

		lower := strings.ToLower(line)
		for _, rule := range e.rules {
			if !rule.Applies(lower) {
				continue
			}

			for _, match := range rule.Regex.FindAllStringSubmatch(line, -1) {
				secret := Normalize(rule.Capture(match))
				if !e.keep(secret) {
					continue
				}

				var user string
				if rule.User != nil {
					user = Normalize(rule.User(match))
				}

				findings = append(findings, report.Finding{
					Share:   candidate.Share,
					Path:    candidate.Path,
					RuleID:  rule.ID,
					User:    user,
					Secret:  secret,
					Context: strings.TrimSpace(line),
					Line:    i + 1,
					Origin:  candidate.Origin.String(),
				}.WithID())
			}
		}
	}

	return findings
}
