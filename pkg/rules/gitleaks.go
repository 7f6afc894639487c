package rules

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/zricethezav/gitleaks/v8/config"
	"github.com/zricethezav/gitleaks/v8/regexp"
)

// Extra holds rules and allowlists loaded from a gitleaks formatted config
type Extra struct {
	Rules      []*Rule
	Allowlists []*regexp.Regexp
	StopWords  []string
}

// ParseGitleaksConfig reads the rules and global allowlists out of a gitleaks
// config. Only the regex, secretGroup and keywords of each rule and the
// regexes and stopwords of each allowlist are used.
func ParseGitleaksConfig(rawConfig string) (extra *Extra, err error) {
	var vc config.ViperConfig

	defer func() {
		if r := recover(); r != nil {
			extra, err = nil, fmt.Errorf("gitleaks config is invalid: %v", r)
		}
	}()

	if _, err = toml.Decode(rawConfig, &vc); err != nil {
		return nil, err
	}

	cfg, err := vc.Translate()
	if err != nil {
		return nil, fmt.Errorf("error loading config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	extra = &Extra{}
	ids := make([]string, 0, len(cfg.Rules))
	for id := range cfg.Rules {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		rule := cfg.Rules[id]
		if rule.Regex == nil {
			continue
		}

		capture := CaptureGroup(0)
		if rule.SecretGroup > 0 {
			capture = CaptureGroup(rule.SecretGroup)
		}

		keywords := make([]string, 0, len(rule.Keywords))
		for _, keyword := range rule.Keywords {
			keywords = append(keywords, strings.ToLower(keyword))
		}

		extra.Rules = append(extra.Rules, &Rule{
			ID:          rule.RuleID,
			Description: rule.Description,
			Regex:       rule.Regex,
			Capture:     capture,
			Keywords:    keywords,
		})
	}

	for _, a := range cfg.Allowlists {
		extra.Allowlists = append(extra.Allowlists, a.Regexes...)
		extra.StopWords = append(extra.StopWords, a.StopWords...)
	}

	return extra, nil
}

// LoadGitleaksConfig reads a gitleaks config from disk
func LoadGitleaksConfig(path string) (*Extra, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("could not read rules: path=%q error=%w", path, err)
	}

	return ParseGitleaksConfig(string(data))
}

func validate(cfg *config.Config) error {
	if len(cfg.Rules) == 0 && len(cfg.Allowlists) == 0 {
		return errors.New("no rules or allowlists")
	}

	for _, a := range cfg.Allowlists {
		if len(a.Regexes) == 0 && len(a.StopWords) == 0 {
			return errors.New("an allowlist exists that doesn't allow any secrets")
		}
	}

	return nil
}
