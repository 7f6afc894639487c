package discover

import (
	"context"
	"errors"
	"io"
	"path"
	"strings"

	"gopkg.in/ini.v1"

	"github.com/leaktk/sysvolscan/pkg/fetch"
	"github.com/leaktk/sysvolscan/pkg/logger"
	"github.com/leaktk/sysvolscan/pkg/remotefs"
	"github.com/leaktk/sysvolscan/pkg/report"
	"github.com/leaktk/sysvolscan/pkg/rules"
	"github.com/leaktk/sysvolscan/pkg/sysvol"
)

// policyFilePattern matches scripts.ini and psscripts.ini
const policyFilePattern = "*scripts.ini"

// maxPolicyFileSize is far above anything a policy editor writes
const maxPolicyFileSize = 1024 * 1024

var strictLoadOptions = ini.LoadOptions{
	IgnoreInlineComment: true,
	IgnoreContinuation:  true,
}

var lenientLoadOptions = ini.LoadOptions{
	IgnoreInlineComment:     true,
	IgnoreContinuation:      true,
	SkipUnrecognizableLines: true,
}

// policyReferences finds the scripts named by every policy's scripts.ini
func (r *run) policyReferences(ctx context.Context) {
	root, err := r.resolve(ctx, "", sysvol.PoliciesRoot(r.domain))
	if err != nil {
		r.unusableRoot(ctx, sysvol.PoliciesRoot(r.domain), "policies directory", err)
		return
	}

	files, err := r.fs.Search(ctx, r.opts.Share, root, policyFilePattern)
	if err != nil && ctx.Err() == nil {
		r.issueFromErr(report.DiscoveryError, root, err)
	}

	for _, file := range files {
		if ctx.Err() != nil {
			return
		}

		r.policyFile(ctx, file)
	}
}

func (r *run) readPolicyFile(ctx context.Context, p string) (string, error) {
	rc, err := r.fs.Open(ctx, r.opts.Share, p)
	if err != nil {
		return "", err
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, maxPolicyFileSize))
	if err != nil {
		return "", err
	}

	text, _ := fetch.Decode(data, "")
	return text, nil
}

func (r *run) policyFile(ctx context.Context, p string) {
	text, err := r.readPolicyFile(ctx, p)
	if err != nil {
		r.issue(report.DiscoveryError, p, "could not read policy file: %s", remotefs.Classify(err))
		return
	}

	cfg, err := ini.LoadSources(strictLoadOptions, []byte(text))
	if err != nil {
		r.issue(report.ConfigError, p, "malformed policy file: %v", err)

		cfg, err = ini.LoadSources(lenientLoadOptions, []byte(text))
		if err != nil {
			return
		}
	}

	iniDir := path.Dir(p)
	for _, section := range cfg.Sections() {
		for _, key := range section.Keys() {
			name := strings.ToLower(key.Name())

			var values []string
			switch {
			case strings.HasSuffix(name, "cmdline"):
				values = []string{key.Value()}
			case strings.HasSuffix(name, "parameters"):
				values = rules.Tokenize(key.Value())
			default:
				continue
			}

			for _, raw := range values {
				value := strings.Trim(strings.TrimSpace(raw), `"'`)
				if !hasExtension(value, r.opts.ScriptExtensions) {
					continue
				}

				r.reference(ctx, p, iniDir, section.Name(), raw, value)
			}
		}
	}
}

// reference resolves a script named in a policy file. UNC paths must point
// at the policy volume. Bare names are looked up next to the policy file, in
// the folder named after the section and finally in the scripts directory.
func (r *run) reference(ctx context.Context, iniPath, iniDir, section, raw, value string) {
	if strings.HasPrefix(value, `\\`) || strings.HasPrefix(value, "//") {
		r.uncReference(ctx, iniPath, raw, value)
		return
	}

	if len(value) > 1 && value[1] == ':' {
		r.issue(report.DiscoveryError, iniPath, "referenced script is a local path: value=%q", value)
		return
	}

	var bases []string
	if section != ini.DefaultSection {
		bases = append(bases, remotefs.Join(iniDir, section))
	}
	bases = append(bases, iniDir)
	if root, err := r.resolve(ctx, "", sysvol.ScriptsRoot(r.domain)); err == nil {
		bases = append(bases, root)
	}

	var lastErr error
	for _, base := range bases {
		found, err := r.resolve(ctx, "", remotefs.Join(base, value))
		if err == nil {
			logger.Debug("resolved policy reference: policy=%q value=%q path=%q", iniPath, value, found)
			r.addReference(found, iniPath, raw)
			return
		}

		if !errors.Is(err, remotefs.ErrNotFound) {
			lastErr = err
		}
	}

	r.unresolved(iniPath, value, lastErr)
}

// unresolved records a reference that couldn't be followed, keeping the
// classified cause when a listing failed on the way
func (r *run) unresolved(iniPath, value string, err error) {
	if err == nil || errors.Is(err, remotefs.ErrNotFound) {
		r.issue(report.DiscoveryError, iniPath, "referenced script not found: value=%q", value)
		return
	}

	r.issue(report.DiscoveryError, iniPath, "could not resolve referenced script: value=%q error=%q", value, remotefs.Classify(err))
}

func (r *run) uncReference(ctx context.Context, iniPath, raw, value string) {
	parts := strings.SplitN(remotefs.Clean(value), "/", 3)
	if len(parts) < 3 {
		r.issue(report.DiscoveryError, iniPath, "referenced script has an incomplete unc path: value=%q", value)
		return
	}

	var rel string
	switch share := parts[1]; {
	case strings.EqualFold(share, r.opts.Share):
		rel = parts[2]
	case strings.EqualFold(share, "NETLOGON"):
		rel = remotefs.Join(sysvol.ScriptsRoot(r.domain), parts[2])
	default:
		r.issue(report.DiscoveryError, iniPath, "referenced script is on another share: value=%q", value)
		return
	}

	found, err := r.resolve(ctx, "", rel)
	if err != nil {
		r.unresolved(iniPath, value, err)
		return
	}

	r.addReference(found, iniPath, raw)
}

func (r *run) addReference(p, iniPath, raw string) {
	r.add(sysvol.CandidatePath{
		Path:      p,
		Origin:    sysvol.PolicyReference,
		Source:    iniPath,
		Reference: strings.TrimSpace(raw),
	})
}
