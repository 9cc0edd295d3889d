package app

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/mitchellh/go-homedir"

	"bathygrade/internal/report"
	"bathygrade/internal/suites"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "BATHYGRADE_"

// Config controls one grading invocation.
type Config struct {
	WorkDir     string        `env:"WORKDIR"`
	Suite       string        `env:"SUITE"`
	SandboxMode string        `env:"SANDBOX"`
	Image       string        `env:"IMAGE"`
	Timeout     time.Duration `env:"TIMEOUT"`
	DataDir     string        `env:"DATA_DIR"`
	LogPath     string        `env:"LOG"`
	KeepScratch bool          `env:"KEEP_SCRATCH"`
	// HistoryPath enables the run history database when set.
	HistoryPath string `env:"HISTORY"`
	Format      string `env:"FORMAT"`
	Verbose     bool   `env:"VERBOSE"`

	// MissingModules makes the mock kernel fail these imports.
	MissingModules []string `env:"MOCK_MISSING_MODULES"`
}

func DefaultConfig() Config {
	return Config{
		WorkDir:     ".",
		Suite:       suites.BuiltinName,
		SandboxMode: "auto",
		Format:      report.FormatText,
	}
}

// LoadEnv overlays BATHYGRADE_* environment variables onto c.
func (c *Config) LoadEnv() error {
	if err := env.ParseWithOptions(c, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("environment: %w", err)
	}
	return nil
}

func (c *Config) Validate() error {
	switch c.SandboxMode {
	case "", "auto", "local", "mock", "docker", "podman":
	default:
		return fmt.Errorf("invalid sandbox mode %q", c.SandboxMode)
	}
	if c.SandboxMode == "" {
		c.SandboxMode = "auto"
	}
	switch c.Format {
	case "":
		c.Format = report.FormatText
	case report.FormatText, report.FormatJSON, report.FormatMarkdown:
	default:
		return fmt.Errorf("invalid format %q (want one of %s)", c.Format, strings.Join(report.Formats(), ", "))
	}
	if c.Timeout < 0 {
		return fmt.Errorf("invalid timeout %s", c.Timeout)
	}
	if c.WorkDir == "" {
		c.WorkDir = "."
	}
	if c.Suite == "" {
		c.Suite = suites.BuiltinName
	}

	var err error
	for _, p := range []*string{&c.WorkDir, &c.DataDir, &c.LogPath, &c.HistoryPath} {
		if *p, err = expand(*p); err != nil {
			return err
		}
	}
	if c.Suite != suites.BuiltinName {
		if c.Suite, err = expand(c.Suite); err != nil {
			return err
		}
	}

	if c.DataDir == "" {
		home, err := homedir.Dir()
		if err != nil {
			return errors.New("cannot resolve user home directory")
		}
		c.DataDir = filepath.Join(home, ".local", "share", "bathygrade")
	}
	return nil
}

// HistoryFile is the history database used by the history command.
func (c Config) HistoryFile() string {
	if c.HistoryPath != "" {
		return c.HistoryPath
	}
	return filepath.Join(c.DataDir, "history.db")
}

func expand(p string) (string, error) {
	if p == "" {
		return "", nil
	}
	out, err := homedir.Expand(p)
	if err != nil {
		return "", fmt.Errorf("expand %s: %w", p, err)
	}
	return out, nil
}
