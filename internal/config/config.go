package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains the directory layout for staging and logs.
type Paths struct {
	StagingDir string `toml:"staging_dir"`
	LogDir     string `toml:"log_dir"`
}

// MovingPay contains configuration for the source platform (report exports).
type MovingPay struct {
	BaseURL    string `toml:"base_url"`
	ReportsURL string `toml:"reports_url"`
	Email      string `toml:"email"`
	Password   string `toml:"password"`
	Origin     string `toml:"origin"`
}

// Gueno contains configuration for the destination platform (KYT imports).
type Gueno struct {
	BaseURL   string `toml:"base_url"`
	Email     string `toml:"email"`
	Password  string `toml:"password"`
	ClientKey string `toml:"client_key"`
	Product   string `toml:"product"`
}

// HTTP contains timeout and retry settings for the resilient client.
type HTTP struct {
	ConnectTimeoutSeconds int `toml:"connect_timeout_seconds"`
	RequestTimeoutSeconds int `toml:"request_timeout_seconds"`
	RetryAttempts         int `toml:"retry_attempts"`
	RetryWaitSeconds      int `toml:"retry_wait_seconds"`
}

// Workflow contains pipeline timing settings.
type Workflow struct {
	// ArtifactGraceSeconds is how long to wait after submitting a report
	// request before the first listing probe. Reports take roughly a minute
	// to materialize.
	ArtifactGraceSeconds int `toml:"artifact_grace_seconds"`
	// ArtifactPollInitialSeconds is the first poll interval; subsequent
	// intervals back off exponentially.
	ArtifactPollInitialSeconds int `toml:"artifact_poll_initial_seconds"`
	// ArtifactPollMaxElapsedSeconds bounds the total time spent polling for
	// one artifact before the run fails as not-ready.
	ArtifactPollMaxElapsedSeconds int `toml:"artifact_poll_max_elapsed_seconds"`
	// MinFreeMB is the staging volume free-space floor checked before a
	// download begins.
	MinFreeMB int `toml:"min_free_mb"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for reportbridge.
type Config struct {
	Paths     Paths     `toml:"paths"`
	MovingPay MovingPay `toml:"movingpay"`
	Gueno     Gueno     `toml:"gueno"`
	HTTP      HTTP      `toml:"http"`
	Workflow  Workflow  `toml:"workflow"`
	Logging   Logging   `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/reportbridge/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and credential environment overrides
// applied. The boolean reports whether a config file was actually found.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}
	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}

	projectPath, err := filepath.Abs("reportbridge.toml")
	if err != nil {
		return "", false, err
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// SampleConfig returns the embedded annotated sample configuration.
func SampleConfig() string {
	return sampleConfig
}

// EnsureDirectories creates the staging and log directories if needed.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		c.Paths.StagingDir,
		c.Paths.LogDir,
		c.AccountingDir(),
		c.CapturesDir(),
		c.RegistrationDir(),
	}
	for _, dir := range dirs {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

// AccountingDir is the staging subdirectory for the transactions flow.
func (c *Config) AccountingDir() string {
	return filepath.Join(c.Paths.StagingDir, "contabil")
}

// CapturesDir is the staging subdirectory for capture data in the files flow.
func (c *Config) CapturesDir() string {
	return filepath.Join(c.Paths.StagingDir, "capturas")
}

// RegistrationDir is the staging subdirectory for registration data in the files flow.
func (c *Config) RegistrationDir() string {
	return filepath.Join(c.Paths.StagingDir, "ficha_cadastral")
}

// ManifestPath is the stage hand-off manifest written by exports and read by imports.
func (c *Config) ManifestPath() string {
	return filepath.Join(c.Paths.StagingDir, "manifest.toml")
}

// LockPath is the single-instance lock file guarding the staging root.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.StagingDir, "reportbridge.lock")
}

// LogFilePath is the rolling log file location under the log directory.
func (c *Config) LogFilePath() string {
	return filepath.Join(c.Paths.LogDir, "reportbridge.log")
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}
