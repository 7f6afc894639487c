package report

import "fmt"

// IssueCode defines the set of codes that can be set on an Issue
type IssueCode int

const (
	// DiscoveryError means a directory or policy file could not be listed or
	// opened, or a referenced script could not be resolved
	DiscoveryError IssueCode = iota
	// FetchError means a candidate file could not be read
	FetchError
	// DecodeWarning means the text was recovered through fallback decoding
	DecodeWarning
	// ConfigError means a policy reference file was malformed
	ConfigError
)

var issueNames = [...]string{"DiscoveryError", "FetchError", "DecodeWarning", "ConfigError"}

// String returns the name of the code
func (c IssueCode) String() string {
	if c < 0 || int(c) >= len(issueNames) {
		return "UnknownIssue"
	}

	return issueNames[c]
}

// MarshalText renders the code by name in JSON, TOML and YAML output
func (c IssueCode) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// Issue records something the scan skipped or had to work around. None of
// them are fatal to the run.
type Issue struct {
	Code    IssueCode `json:"code" toml:"code" yaml:"code"`
	Share   string    `json:"share" toml:"share" yaml:"share"`
	Path    string    `json:"path" toml:"path" yaml:"path"`
	Message string    `json:"message" toml:"message" yaml:"message"`
}

// NewIssue builds an issue for share/path with a printf style message
func NewIssue(code IssueCode, share, path, msg string, args ...any) Issue {
	return Issue{
		Code:    code,
		Share:   share,
		Path:    path,
		Message: fmt.Sprintf(msg, args...),
	}
}

// Error is defined to implement the error interface
func (i Issue) Error() string {
	return i.String()
}

// String provides a string representation of the issue
func (i Issue) String() string {
	return fmt.Sprintf("%s: share=%q path=%q: %s", i.Code, i.Share, i.Path, i.Message)
}
