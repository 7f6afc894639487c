package extract

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leaktk/sysvolscan/pkg/fetch"
	"github.com/leaktk/sysvolscan/pkg/report"
	"github.com/leaktk/sysvolscan/pkg/rules"
	"github.com/leaktk/sysvolscan/pkg/sysvol"
)

func fetched(text string) *fetch.FetchedFile {
	return &fetch.FetchedFile{
		Candidate: sysvol.CandidatePath{
			Share:  "SYSVOL",
			Path:   "corp.local/scripts/logon.bat",
			Origin: sysvol.DirectWalk,
		},
		Text: text,
		Size: int64(len(text)),
	}
}

func TestRules(t *testing.T) {
	tests := []struct {
		name   string
		line   string
		rule   string
		secret string
		user   string
	}{
		{
			name:   "NetUse",
			line:   `net use \\fs01\share$ /user:CORP\bob hunter2`,
			rule:   "net_use_credential",
			secret: "hunter2",
			user:   `CORP\bob`,
		},
		{
			name:   "NetUseDriveLetterPasswordFirst",
			line:   `NET USE Z: \\fs01\data "Spr1ng 2024" /USER:CORP\alice /persistent:no`,
			rule:   "net_use_credential",
			secret: "Spr1ng 2024",
			user:   `CORP\alice`,
		},
		{
			name:   "PowerShellPipe",
			line:   `$cred = "Sup3r$ecret!" | ConvertTo-SecureString -AsPlainText -Force`,
			rule:   "powershell_plaintext",
			secret: "Sup3r$ecret!",
		},
		{
			name:   "PowerShellArgument",
			line:   `$pw = ConvertTo-SecureString -String 'Winter2024' -AsPlainText -Force`,
			rule:   "powershell_plaintext",
			secret: "Winter2024",
		},
		{
			name:   "PowerShellLiteralAfterAsPlainText",
			line:   `$pw = ConvertTo-SecureString -AsPlainText "Winter2024!" -Force`,
			rule:   "powershell_plaintext",
			secret: "Winter2024!",
		},
		{
			name:   "PowerShellForceThenString",
			line:   `$pw = ConvertTo-SecureString -AsPlainText -Force -String 'Winter2024!'`,
			rule:   "powershell_plaintext",
			secret: "Winter2024!",
		},
		{
			name:   "PowerShellUnquotedLiteral",
			line:   `$pw = ConvertTo-SecureString -AsPlainText Winter2024 -Force`,
			rule:   "powershell_plaintext",
			secret: "Winter2024",
		},
		{
			name:   "GenericAssignment",
			line:   `strPassword = "Adm1nPass"`,
			rule:   "generic_secret_assignment",
			secret: "Adm1nPass",
		},
		{
			name:   "BatchSet",
			line:   `set DB_PASSWORD=Passw0rd!`,
			rule:   "batch_set_password",
			secret: "Passw0rd!",
		},
		{
			name:   "ConnectionString",
			line:   `$conn = "Server=sql01;Database=hr;User Id=sa;Password=Sql!2019;"`,
			rule:   "connection_string_password",
			secret: "Sql!2019",
		},
		{
			name:   "NetUser",
			line:   `net user svc_backup B@ckup2024 /add /domain`,
			rule:   "net_user_password",
			secret: "B@ckup2024",
			user:   "svc_backup",
		},
		{
			name:   "PsExec",
			line:   `psexec \\srv01 -u CORP\admin -p "Adm!n 1" cmd.exe`,
			rule:   "psexec_credential",
			secret: "Adm!n 1",
			user:   `CORP\admin`,
		},
		{
			name:   "Schtasks",
			line:   `schtasks /create /tn Backup /tr backup.bat /ru CORP\svc /rp Sch3dul3d! /sc daily`,
			rule:   "schtasks_password",
			secret: "Sch3dul3d!",
			user:   `CORP\svc`,
		},
		{
			name:   "MapNetworkDrive",
			line:   `objNetwork.MapNetworkDrive "Z:", "\\fs01\data", False, "CORP\jdoe", "Dr1veP@ss"`,
			rule:   "vbs_map_network_drive",
			secret: "Dr1veP@ss",
			user:   `CORP\jdoe`,
		},
		{
			name:   "Cmdkey",
			line:   `cmdkey /add:fs01 /user:CORP\bob /pass:Cmdk3y!`,
			rule:   "cmdkey_password",
			secret: "Cmdk3y!",
			user:   `CORP\bob`,
		},
	}

	extractor := New(nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			findings := extractor.Extract(fetched(tt.line))
			require.Len(t, findings, 1)

			finding := findings[0]
			assert.Equal(t, tt.rule, finding.RuleID)
			assert.Equal(t, tt.secret, finding.Secret)
			assert.Equal(t, tt.user, finding.User)
			assert.Equal(t, 1, finding.Line)
			assert.Equal(t, tt.line, finding.Context)
			assert.Equal(t, "DirectWalk", finding.Origin)
			assert.Equal(t, "SYSVOL", finding.Share)
			assert.NotEmpty(t, finding.ID)
		})
	}
}

func TestExtract(t *testing.T) {
	extractor := New(nil)

	t.Run("CRLF", func(t *testing.T) {
		findings := extractor.Extract(fetched("@echo off\r\nnet use \\\\fs01\\share /user:CORP\\bob hunter2\r\nexit\r\n"))
		require.Len(t, findings, 1)
		assert.Equal(t, "hunter2", findings[0].Secret)
		assert.Equal(t, 2, findings[0].Line)
	})

	t.Run("OneFindingPerRule", func(t *testing.T) {
		findings := extractor.Extract(fetched(`$password = "Hunter2"; net use \\srv\share /user:bob "Hunter2"`))
		require.Len(t, findings, 2)

		ids := []string{findings[0].RuleID, findings[1].RuleID}
		assert.ElementsMatch(t, []string{"net_use_credential", "generic_secret_assignment"}, ids)
		assert.Equal(t, "Hunter2", findings[0].Secret)
		assert.Equal(t, "Hunter2", findings[1].Secret)
	})

	t.Run("Comments", func(t *testing.T) {
		text := "REM net use \\\\srv\\share /user:bob pw1\n" +
			"  :: net use \\\\srv\\share /user:bob pw2\n" +
			"# $password = \"pw3\"\n" +
			"; password = \"pw4\"\n" +
			"// password = \"pw5\"\n" +
			"@rem set PASS=pw6\n"
		assert.Empty(t, extractor.Extract(fetched(text)))
	})

	t.Run("VariableReferences", func(t *testing.T) {
		text := "net use \\\\srv\\share /user:%USER% %PASS%\n" +
			"set PASSWORD=!SECRET!\n" +
			"$password = \"$env:SVC_PASS\"\n" +
			"net user bob * /add\n" +
			"schtasks /create /tn x /ru SYSTEM /rp *\n" +
			"set PASSWORD=\n"
		assert.Empty(t, extractor.Extract(fetched(text)))
	})

	t.Run("Allowlist", func(t *testing.T) {
		extra, err := rules.ParseGitleaksConfig("[allowlist]\nregexes = ['''^changeme$''']\n")
		require.NoError(t, err)

		set, err := rules.Default().Extend(extra)
		require.NoError(t, err)

		findings := New(set).Extract(fetched("set PASSWORD=changeme\nset PASSWORD=Hunter2\n"))
		require.Len(t, findings, 1)
		assert.Equal(t, "Hunter2", findings[0].Secret)
	})

	t.Run("FailedFile", func(t *testing.T) {
		file := fetched("set PASSWORD=Hunter2")
		file.Err = errors.New("access denied")
		assert.Nil(t, extractor.Extract(file))
		assert.Nil(t, extractor.Extract(nil))
	})

	t.Run("DecodeFailureStillScanned", func(t *testing.T) {
		file := fetched("set PASSWORD=caf\uFFFD1")
		file.DecodeFailure = true

		findings := extractor.Extract(file)
		require.Len(t, findings, 1)
		assert.Equal(t, "caf\uFFFD1", findings[0].Secret)
	})

	t.Run("StableIDs", func(t *testing.T) {
		a := extractor.Extract(fetched("set PASSWORD=Hunter2"))
		b := extractor.Extract(fetched("\n\nset PASSWORD=Hunter2"))
		require.Len(t, a, 1)
		require.Len(t, b, 1)
		assert.Equal(t, a[0].ID, b[0].ID)
		assert.Equal(t, a[0].Key(), b[0].Key())
		assert.NotEqual(t, a[0].Line, b[0].Line)
	})
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "pass word", Normalize(` "pass word" `))
	assert.Equal(t, "x", Normalize(`'x'`))
	assert.Equal(t, "", Normalize(`""`))
}

func TestAggregateExtracted(t *testing.T) {
	extractor := New(nil)
	text := "set PASSWORD=Hunter2\nset PASSWORD=Hunter2\n"
	r := report.Aggregate(extractor.Extract(fetched(text)), report.FetchStats{Fetched: 1})
	assert.Len(t, r.Findings, 1)
	assert.Equal(t, 1, r.Stats.FilesScanned)
}
