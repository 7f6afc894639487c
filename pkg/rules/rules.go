package rules

import (
	"fmt"
	"strings"

	"github.com/zricethezav/gitleaks/v8/regexp"
)

// Capture pulls the secret out of a regex match. match is the result of
// FindStringSubmatch, so match[0] is the full match.
type Capture func(match []string) string

// Rule is a single detection pattern
type Rule struct {
	ID          string
	Description string
	Regex       *regexp.Regexp
	Capture     Capture
	// User optionally pulls the account the secret belongs to
	User Capture
	// Keywords are lower case strings one of which must appear in a line for
	// the rule to be tried on it. No keywords means always try.
	Keywords []string
}

// Applies reports whether the lower cased line contains one of the rule's
// keywords
func (r *Rule) Applies(lowerLine string) bool {
	if len(r.Keywords) == 0 {
		return true
	}

	for _, keyword := range r.Keywords {
		if strings.Contains(lowerLine, keyword) {
			return true
		}
	}

	return false
}

// CaptureGroup returns the first non-empty group out of groups
func CaptureGroup(groups ...int) Capture {
	return func(match []string) string {
		for _, g := range groups {
			if g < len(match) && len(match[g]) > 0 {
				return match[g]
			}
		}

		return ""
	}
}

// CaptureLastToken splits group on whitespace, honoring double quotes, and
// returns the last token that isn't a /flag
func CaptureLastToken(group int) Capture {
	return func(match []string) string {
		if group >= len(match) {
			return ""
		}

		tokens := Tokenize(match[group])
		for i := len(tokens) - 1; i >= 0; i-- {
			if !strings.HasPrefix(tokens[i], "/") {
				return tokens[i]
			}
		}

		return ""
	}
}

// CaptureFlagValue returns the value of the first of flags found among the
// tokens of group. A flag ending in ':' carries its value inline, such as
// /user:CORP\admin, any other flag takes the following token as its value.
func CaptureFlagValue(group int, flags ...string) Capture {
	return func(match []string) string {
		if group >= len(match) {
			return ""
		}

		tokens := Tokenize(match[group])
		for i, token := range tokens {
			lower := strings.ToLower(token)
			for _, flag := range flags {
				switch {
				case strings.HasSuffix(flag, ":") && strings.HasPrefix(lower, flag):
					return token[len(flag):]
				case lower == flag && i+1 < len(tokens):
					return tokens[i+1]
				}
			}
		}

		return ""
	}
}

// Tokenize splits s on whitespace keeping double quoted runs together. The
// quotes are kept on the token.
func Tokenize(s string) []string {
	var tokens []string
	var current strings.Builder
	quoted := false

	for _, r := range s {
		switch {
		case r == '"':
			quoted = !quoted
			current.WriteRune(r)
		case !quoted && (r == ' ' || r == '\t'):
			if current.Len() > 0 {
				tokens = append(tokens, current.String())
				current.Reset()
			}
		default:
			current.WriteRune(r)
		}
	}

	if current.Len() > 0 {
		tokens = append(tokens, current.String())
	}

	return tokens
}

// Set is an ordered, immutable collection of rules plus the allowlists that
// apply to all of them
type Set struct {
	rules      []*Rule
	allowlists []*regexp.Regexp
	stopWords  []string
}

// NewSet builds a set from rules, which must have unique IDs
func NewSet(rules ...*Rule) (*Set, error) {
	seen := make(map[string]struct{}, len(rules))
	for _, rule := range rules {
		if len(rule.ID) == 0 || rule.Regex == nil || rule.Capture == nil {
			return nil, fmt.Errorf("incomplete rule: rule_id=%q", rule.ID)
		}

		if _, ok := seen[rule.ID]; ok {
			return nil, fmt.Errorf("duplicate rule: rule_id=%q", rule.ID)
		}

		seen[rule.ID] = struct{}{}
	}

	return &Set{rules: append([]*Rule(nil), rules...)}, nil
}

// Rules returns the rules in priority order
func (s *Set) Rules() []*Rule {
	return append([]*Rule(nil), s.rules...)
}

// Len returns the number of rules in the set
func (s *Set) Len() int {
	return len(s.rules)
}

// Allowed reports whether the secret is allowlisted and should be dropped
func (s *Set) Allowed(secret string) bool {
	for _, re := range s.allowlists {
		if re.MatchString(secret) {
			return true
		}
	}

	lower := strings.ToLower(secret)
	for _, word := range s.stopWords {
		if strings.Contains(lower, word) {
			return true
		}
	}

	return false
}

// Extend returns a new set with the extra rules appended after the current
// ones and the allowlists merged
func (s *Set) Extend(extra *Extra) (*Set, error) {
	set, err := NewSet(append(s.Rules(), extra.Rules...)...)
	if err != nil {
		return nil, err
	}

	set.allowlists = append(append([]*regexp.Regexp(nil), s.allowlists...), extra.Allowlists...)
	set.stopWords = append([]string(nil), s.stopWords...)
	for _, word := range extra.StopWords {
		set.stopWords = append(set.stopWords, strings.ToLower(word))
	}

	return set, nil
}
