package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/adrg/xdg"
	"github.com/go-playground/validator/v10"

	"github.com/leaktk/sysvolscan/pkg/fs"
	"github.com/leaktk/sysvolscan/pkg/logger"
)

type (
	// Config provides a general structure to capture the config options
	// for the scanner
	Config struct {
		Formatter Formatter `toml:"formatter"`
		Logger    Logger    `toml:"logger"`
		Scanner   Scanner   `toml:"scanner"`
		SMB       SMB       `toml:"smb"`
	}

	// Formatter configures how the report is rendered on stdout
	Formatter struct {
		Format   string `toml:"format" validate:"oneof=JSON HUMAN TOML YAML CSV"`
		Truncate int    `toml:"truncate" validate:"gte=0"`
	}

	// Logger provides general logging config
	Logger struct {
		Level  string `toml:"level" validate:"oneof=NOTSET DEBUG INFO WARNING ERROR CRITICAL"`
		Format string `toml:"format" validate:"oneof=JSON HUMAN"`
		// File sends logs to a rotated file instead of stderr when set
		File string `toml:"file"`
	}

	// Scanner provides scanner specific config
	Scanner struct {
		// Share holding the policy volume
		Share string `toml:"share" validate:"required"`
		// Mode is either "extract" or "enumerate"
		Mode    string `toml:"mode" validate:"required"`
		Workers int    `toml:"workers" validate:"min=1,max=256"`
		// MaxFileSize in bytes, larger files are truncated
		MaxFileSize int64 `toml:"max_file_size" validate:"min=1"`
		// Timeout in seconds for the whole run (0 means no timeout)
		Timeout int `toml:"timeout" validate:"gte=0"`
		// Extensions limits the files the direct walk yields (empty means all)
		Extensions []string `toml:"extensions"`
		// ScriptExtensions decide which scripts.ini values look like scripts
		ScriptExtensions []string `toml:"script_extensions" validate:"min=1"`
		// FallbackEncoding is used when a file isn't valid UTF-8
		FallbackEncoding string `toml:"fallback_encoding"`
		Rules            Rules  `toml:"rules"`
	}

	// Rules configures additional detection rules
	Rules struct {
		// ExtraRulesPath points to a gitleaks formatted TOML file
		ExtraRulesPath string `toml:"extra_rules_path"`
	}

	// SMB configures the remote file share transport
	SMB struct {
		Port int `toml:"port" validate:"min=1,max=65535"`
		// DialTimeout in seconds
		DialTimeout int `toml:"dial_timeout" validate:"min=1"`
	}
)

var localConfigDir = filepath.Join(xdg.ConfigHome, "sysvolscan")

var validate = validator.New(validator.WithRequiredStructEnabled())

// DefaultConfig provides a fully usable instance of Config with default
// values provided
func DefaultConfig() *Config {
	return &Config{
		Formatter: Formatter{
			Format:   "HUMAN",
			Truncate: 0,
		},
		Logger: Logger{
			Level:  "INFO",
			Format: "HUMAN",
		},
		Scanner: Scanner{
			Share:       "SYSVOL",
			Mode:        "extract",
			Workers:     8,
			MaxFileSize: 4 * 1024 * 1024,
			Timeout:     0,
			ScriptExtensions: []string{
				".bat", ".cmd", ".ps1", ".vbs", ".vbe", ".js", ".jse", ".wsf", ".kix",
			},
		},
		SMB: SMB{
			Port:        445,
			DialTimeout: 10,
		},
	}
}

// Validate checks the config values and normalizes the enum like fields
func (c *Config) Validate() error {
	c.Formatter.Format = strings.ToUpper(c.Formatter.Format)
	c.Logger.Level = strings.ToUpper(c.Logger.Level)
	c.Logger.Format = strings.ToUpper(c.Logger.Format)

	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	return nil
}

// LoadConfigFromFile provides a config object with default values set plus any
// custom values pulled in from the config file
func LoadConfigFromFile(path string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := toml.DecodeFile(filepath.Clean(path), cfg); err != nil {
		return nil, fmt.Errorf("could not decode config: path=%q error=%w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if err := ApplyLogger(cfg.Logger); err != nil {
		return nil, err
	}

	return cfg, nil
}

// ApplyLogger configures the global logger from the logger section
func ApplyLogger(cfg Logger) error {
	if err := logger.SetLoggerLevel(cfg.Level); err != nil {
		return err
	}

	format, err := logger.GetLoggerFormat(cfg.Format)
	if err != nil {
		return err
	}

	if err := logger.SetLoggerFormat(format); err != nil {
		return err
	}

	if len(cfg.File) > 0 {
		logger.SetLoggerFile(cfg.File)
	}

	return nil
}

// LocateAndLoadConfig looks through the possible places for the config
// favoring the provided path if it is set
func LocateAndLoadConfig(path string) (*Config, error) {
	if len(path) > 0 {
		return LoadConfigFromFile(path)
	}

	if path = os.Getenv("SYSVOLSCAN_CONFIG"); len(path) > 0 {
		return LoadConfigFromFile(path)
	}

	path = filepath.Join(localConfigDir, "config.toml")
	if fs.FileExists(path) {
		return LoadConfigFromFile(path)
	}

	path = "/etc/sysvolscan/config.toml"
	if fs.FileExists(path) {
		return LoadConfigFromFile(path)
	}

	return DefaultConfig(), nil
}
