package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/leaktk/sysvolscan/pkg/config"
	"github.com/leaktk/sysvolscan/pkg/export"
	"github.com/leaktk/sysvolscan/pkg/fetch"
	"github.com/leaktk/sysvolscan/pkg/formatter"
	"github.com/leaktk/sysvolscan/pkg/fs"
	"github.com/leaktk/sysvolscan/pkg/logger"
	"github.com/leaktk/sysvolscan/pkg/remotefs"
	"github.com/leaktk/sysvolscan/pkg/report"
	"github.com/leaktk/sysvolscan/pkg/scanner"
	"github.com/leaktk/sysvolscan/version"
)

const cliLong = `Name:
  sysvolscan - Audit domain logon scripts for stored credentials

Description:
  sysvolscan reads the SYSVOL share of a domain controller, finds the logon
  scripts that live there or are referenced from group policy scripts.ini
  files, and reports the credentials written into them. The "enumerate" mode
  only lists the scripts without reading them.
`

const configDescription = `config file path
order of precedence:
1. --config/-c
2. env var SYSVOLSCAN_CONFIG
3. ${XDG_CONFIG_HOME}/sysvolscan/config.toml
4. /etc/sysvolscan/config.toml
5. The default config
`

const passwordEnv = "SYSVOLSCAN_PASSWORD"

// scanOptions are the per run values that don't belong in the config file
type scanOptions struct {
	Domain    string
	LocalRoot string
	OutputDir string
	Bundle    bool
	SMB       remotefs.SMBOptions
}

func runHelp(cmd *cobra.Command, args []string) {
	_ = cmd.Help()
}

// rootCommand provides a built Command for the app to use
func rootCommand() *cobra.Command {
	rootCommand := &cobra.Command{
		Use:   "sysvolscan",
		Short: "Find credentials in domain logon scripts",
		Long:  cliLong,
		Run:   runHelp,
	}

	flags := rootCommand.PersistentFlags()
	flags.StringP("config", "c", "", configDescription)

	rootCommand.AddCommand(scanCommand())
	rootCommand.AddCommand(sharesCommand())
	rootCommand.AddCommand(versionCommand())

	return rootCommand
}

func addConnectionFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringP("domain", "d", "", "domain name, also the folder under the share (required)")
	flags.String("host", "", "domain controller to connect to (defaults to the domain)")
	flags.StringP("username", "u", "", "account used to authenticate")
	flags.StringP("password", "p", "", "password for the account (or env var "+passwordEnv+")")
	flags.String("nt-hash", "", "hex encoded NT hash used instead of the password")
}

func scanCommand() *cobra.Command {
	scanCommand := &cobra.Command{
		Use:   "scan",
		Short: "Scan the logon scripts of a domain",
		Args:  cobra.NoArgs,
		Run:   runScan,
	}

	addConnectionFlags(scanCommand)

	flags := scanCommand.Flags()
	flags.String("local-root", "", "read shares from sub directories of this local path instead of SMB")
	flags.String("share", "", "share holding the policy volume (defaults to SYSVOL)")
	flags.StringP("mode", "m", "", "extract or enumerate")
	flags.StringP("format", "f", "", "output format: JSON, HUMAN, TOML, YAML or CSV")
	flags.StringP("output-dir", "o", "", "also write credentials.csv, logon_scripts.csv and report.json here")
	flags.Bool("bundle", false, "pack the files in --output-dir into a tar.gz")
	flags.Int("workers", 0, "number of scripts fetched at once")
	flags.Duration("timeout", 0, "stop the scan after this long and report what was found")
	flags.StringSlice("ext", nil, "only walk files with these extensions under the scripts folder")

	return scanCommand
}

func sharesCommand() *cobra.Command {
	sharesCommand := &cobra.Command{
		Use:   "shares",
		Short: "List the shares the domain controller exposes",
		Args:  cobra.NoArgs,
		Run:   runShares,
	}

	addConnectionFlags(sharesCommand)

	return sharesCommand
}

func versionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Display the scanner version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			version.PrintVersion(cmd.OutOrStdout())
		},
	}
}

func scanCommandToOptions(cmd *cobra.Command) (*scanOptions, error) {
	flags := cmd.Flags()
	opts := &scanOptions{}

	opts.Domain, _ = flags.GetString("domain")
	opts.Domain = strings.TrimSpace(opts.Domain)
	if len(opts.Domain) == 0 {
		return nil, errors.New("missing required field: field=\"domain\"")
	}

	opts.SMB.Host, _ = flags.GetString("host")
	if len(opts.SMB.Host) == 0 {
		opts.SMB.Host = opts.Domain
	}

	opts.SMB.Domain = opts.Domain
	opts.SMB.User, _ = flags.GetString("username")
	opts.SMB.Password, _ = flags.GetString("password")
	if len(opts.SMB.Password) == 0 {
		opts.SMB.Password = os.Getenv(passwordEnv)
	}
	opts.SMB.NTHash, _ = flags.GetString("nt-hash")

	if flags.Lookup("local-root") != nil {
		opts.LocalRoot, _ = flags.GetString("local-root")
		opts.OutputDir, _ = flags.GetString("output-dir")
		opts.Bundle, _ = flags.GetBool("bundle")
	}

	if len(opts.LocalRoot) == 0 && len(opts.SMB.User) == 0 {
		return nil, errors.New("missing required field: field=\"username\"")
	}

	if len(opts.LocalRoot) > 0 && !fs.DirExists(opts.LocalRoot) {
		return nil, fmt.Errorf("local root is not a directory: path=%q", opts.LocalRoot)
	}

	if opts.Bundle && len(opts.OutputDir) == 0 {
		return nil, errors.New("--bundle requires --output-dir")
	}

	return opts, nil
}

// applyScanFlags overrides config values with the flags that were set
func applyScanFlags(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()

	if flags.Changed("share") {
		cfg.Scanner.Share, _ = flags.GetString("share")
	}

	if flags.Changed("mode") {
		cfg.Scanner.Mode, _ = flags.GetString("mode")
	}

	if flags.Changed("format") {
		cfg.Formatter.Format, _ = flags.GetString("format")
	}

	if flags.Changed("workers") {
		cfg.Scanner.Workers, _ = flags.GetInt("workers")
	}

	if flags.Changed("timeout") {
		// Round up so a short timeout never turns into no timeout
		timeout, _ := flags.GetDuration("timeout")
		cfg.Scanner.Timeout = int((timeout + time.Second - 1) / time.Second)
	}

	if flags.Changed("ext") {
		cfg.Scanner.Extensions, _ = flags.GetStringSlice("ext")
	}

	if len(cfg.Scanner.FallbackEncoding) > 0 && !fetch.ValidEncoding(cfg.Scanner.FallbackEncoding) {
		return fmt.Errorf("invalid fallback encoding: encoding=%q", cfg.Scanner.FallbackEncoding)
	}

	return cfg.Validate()
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	var path string
	if flag := cmd.Flag("config"); flag != nil {
		path = flag.Value.String()
	}

	return config.LocateAndLoadConfig(path)
}

func dial(ctx context.Context, cfg *config.Config, opts remotefs.SMBOptions) (*remotefs.SMB, error) {
	opts.Port = cfg.SMB.Port
	opts.DialTimeout = time.Duration(cfg.SMB.DialTimeout) * time.Second

	ctx, cancel := context.WithTimeout(ctx, opts.DialTimeout)
	defer cancel()

	return remotefs.DialSMB(ctx, opts)
}

// exitCode maps a finished report to the process exit code
func exitCode(r *report.Report) int {
	if len(r.Findings) > 0 {
		return config.ExitCodeLeakFound
	}

	if r.Partial || len(r.Issues) > 0 {
		return config.ExitCodeGeneralError
	}

	return 0
}

func runScan(cmd *cobra.Command, args []string) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := scan(ctx, cmd)
	stop()

	if code != 0 {
		os.Exit(code)
	}
}

func scan(ctx context.Context, cmd *cobra.Command) int {
	opts, err := scanCommandToOptions(cmd)
	if err != nil {
		logger.Error("%v", err)
		return config.ExitCodeBlockingError
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		logger.Error("could not load config: error=%q", err)
		return config.ExitCodeBlockingError
	}

	if err := applyScanFlags(cmd, cfg); err != nil {
		logger.Error("%v", err)
		return config.ExitCodeBlockingError
	}

	mode, err := scanner.ParseMode(cfg.Scanner.Mode)
	if err != nil {
		logger.Error("%v", err)
		return config.ExitCodeBlockingError
	}

	out, err := formatter.NewFormatter(cfg.Formatter)
	if err != nil {
		logger.Error("%v", err)
		return config.ExitCodeBlockingError
	}

	logger.Debug("starting scan: version=%q domain=%q mode=%q", version.ShortVersion(), opts.Domain, mode)

	var fsys remotefs.FS
	if len(opts.LocalRoot) > 0 {
		fsys = remotefs.NewLocal(opts.LocalRoot)
	} else {
		client, err := dial(ctx, cfg, opts.SMB)
		if err != nil {
			logger.Error("could not open smb session: error=%q", err)
			return config.ExitCodeBlockingError
		}
		defer func() {
			if err := client.Close(); err != nil {
				logger.Debug("could not close smb session: error=%q", err)
			}
		}()
		fsys = client
	}

	s, err := scanner.NewScanner(fsys, cfg)
	if err != nil {
		logger.Error("could not create scanner: error=%q", err)
		return config.ExitCodeBlockingError
	}

	r := s.Scan(ctx, opts.Domain, mode)
	fmt.Fprintln(cmd.OutOrStdout(), out.Format(r))

	if len(opts.OutputDir) > 0 {
		if _, err := export.WriteDir(context.WithoutCancel(ctx), opts.OutputDir, r, export.Options{Bundle: opts.Bundle}); err != nil {
			logger.Error("could not export report: error=%q", err)
			return config.ExitCodeBlockingError
		}
	}

	return exitCode(r)
}

func runShares(cmd *cobra.Command, args []string) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts, err := scanCommandToOptions(cmd)
	if err != nil {
		logger.Fatal("%v", err)
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		logger.Fatal("could not load config: error=%q", err)
	}

	client, err := dial(ctx, cfg, opts.SMB)
	if err != nil {
		logger.Fatal("could not open smb session: error=%q", err)
	}
	defer client.Close()

	names, err := client.Shares(ctx)
	if err != nil {
		logger.Error("could not list shares: error=%q", err)
		return
	}

	for _, name := range names {
		fmt.Fprintln(cmd.OutOrStdout(), name)
	}
}

// Execute the command and parse the args
func Execute() {
	if err := rootCommand().Execute(); err != nil {
		if strings.Contains(err.Error(), "unknown flag") {
			os.Exit(config.ExitCodeBlockingError)
		}
		logger.Fatal("%v", err)
	}
}
