package rules

import (
	"sync"

	"github.com/zricethezav/gitleaks/v8/regexp"
)

// The built in rules in priority order
var builtin = []*Rule{
	{
		ID:          "net_use_credential",
		Description: "Drive mapping with an inline password",
		Regex:       regexp.MustCompile(`(?i)\bnet(?:\.exe)?\s+use\s+(?:[a-z]:\s+|\*\s+)?\\\\\S+(.*\s/u(?:ser)?:.*)`),
		Capture:     CaptureLastToken(1),
		User:        CaptureFlagValue(1, "/user:", "/u:"),
		Keywords:    []string{"net"},
	},
	{
		ID:          "powershell_plaintext",
		Description: "Literal converted to a SecureString with -AsPlainText",
		Regex:       regexp.MustCompile(`(?i)(?:(?:"([^"]+)"|'([^']+)')\s*\|\s*ConvertTo-SecureString\b.*-AsPlainText|ConvertTo-SecureString\s+(?:-String\s+)?(?:"([^"]+)"|'([^']+)').*-AsPlainText|ConvertTo-SecureString\b.*?-AsPlainText(?:\s+-(?:Force|String)\b)*\s+(?:"([^"]+)"|'([^']+)'|([^\s"'$;|()-][^\s;|)]*)))`),
		Capture:     CaptureGroup(1, 2, 3, 4, 5, 6, 7),
		Keywords:    []string{"convertto-securestring"},
	},
	{
		ID:          "generic_secret_assignment",
		Description: "Quoted literal assigned to a password like variable",
		Regex:       regexp.MustCompile(`(?i)\b[\w.]*(?:pass|pwd|secret)\w*\s*=\s*(?:"([^"]*)"|'([^']*)')`),
		Capture:     CaptureGroup(1, 2),
		Keywords:    []string{"pass", "pwd", "secret"},
	},
	{
		ID:          "batch_set_password",
		Description: "Batch variable holding a password",
		Regex:       regexp.MustCompile(`(?i)^\s*@?set\s+"?(\w*(?:pass|pwd)\w*)=([^"\r\n]*)`),
		Capture:     CaptureGroup(2),
		Keywords:    []string{"set"},
	},
	{
		ID:          "connection_string_password",
		Description: "Password embedded in a connection string",
		Regex:       regexp.MustCompile(`(?i)(?:;\s*(?:password|pwd)\s*=\s*([^;"'\r\n]*[^;"'\s])|["']\s*(?:password|pwd)\s*=\s*([^;"'\r\n]*[^;"'\s])\s*;)`),
		Capture:     CaptureGroup(1, 2),
		Keywords:    []string{"password", "pwd"},
	},
	{
		ID:          "net_user_password",
		Description: "Local or domain account created or reset with an inline password",
		Regex:       regexp.MustCompile(`(?i)\bnet(?:\.exe)?\s+user\s+("[^"]+"|[^\s/"]+)\s+("[^"]+"|[^\s/*"]\S*)`),
		Capture:     CaptureGroup(2),
		User:        CaptureGroup(1),
		Keywords:    []string{"net"},
	},
	{
		ID:          "psexec_credential",
		Description: "PsExec invoked with -p",
		Regex:       regexp.MustCompile(`(?i)\bpsexec(?:64)?(?:\.exe)?\s+(.*)`),
		Capture:     CaptureFlagValue(1, "-p"),
		User:        CaptureFlagValue(1, "-u"),
		Keywords:    []string{"psexec"},
	},
	{
		ID:          "schtasks_password",
		Description: "Scheduled task registered with /rp",
		Regex:       regexp.MustCompile(`(?i)\bschtasks(?:\.exe)?\s+(.*)`),
		Capture:     CaptureFlagValue(1, "/rp"),
		User:        CaptureFlagValue(1, "/ru"),
		Keywords:    []string{"schtasks"},
	},
	{
		ID:          "vbs_map_network_drive",
		Description: "MapNetworkDrive called with a password argument",
		Regex:       regexp.MustCompile(`(?i)\.MapNetworkDrive\s*\(?\s*"[^"]*"\s*,\s*"[^"]*"\s*,\s*[^,]+,\s*"([^"]*)"\s*,\s*"([^"]*)"`),
		Capture:     CaptureGroup(2),
		User:        CaptureGroup(1),
		Keywords:    []string{"mapnetworkdrive"},
	},
	{
		ID:          "cmdkey_password",
		Description: "Stored credential added with cmdkey /pass",
		Regex:       regexp.MustCompile(`(?i)\bcmdkey(?:\.exe)?\s+(.*)`),
		Capture:     CaptureFlagValue(1, "/pass:"),
		User:        CaptureFlagValue(1, "/user:"),
		Keywords:    []string{"cmdkey"},
	},
}

var (
	defaultOnce sync.Once
	defaultSet  *Set
)

// Default returns the process wide built in rule set. It is built once and
// never modified.
func Default() *Set {
	defaultOnce.Do(func() {
		set, err := NewSet(builtin...)
		if err != nil {
			panic(err)
		}

		defaultSet = set
	})

	return defaultSet
}
