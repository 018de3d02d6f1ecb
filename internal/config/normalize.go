package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeMovingPay()
	c.normalizeGueno()
	c.normalizeHTTP()
	c.normalizeWorkflow()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.StagingDir) == "" {
		c.Paths.StagingDir = defaultStagingDir
	}
	if c.Paths.StagingDir, err = expandPath(c.Paths.StagingDir); err != nil {
		return fmt.Errorf("paths.staging_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeMovingPay() {
	c.MovingPay.BaseURL = trimURL(c.MovingPay.BaseURL, defaultMovingPayBaseURL)
	c.MovingPay.ReportsURL = trimURL(c.MovingPay.ReportsURL, defaultMovingPayReportsURL)
	if strings.TrimSpace(c.MovingPay.Origin) == "" {
		c.MovingPay.Origin = defaultMovingPayOrigin
	}
	c.MovingPay.Email = envOverride("MOVINGPAY_EMAIL", c.MovingPay.Email)
	c.MovingPay.Password = envOverride("MOVINGPAY_PASSWORD", c.MovingPay.Password)
}

func (c *Config) normalizeGueno() {
	c.Gueno.BaseURL = trimURL(c.Gueno.BaseURL, defaultGuenoBaseURL)
	if strings.TrimSpace(c.Gueno.Product) == "" {
		c.Gueno.Product = defaultGuenoProduct
	}
	c.Gueno.Email = envOverride("GUENO_EMAIL", c.Gueno.Email)
	c.Gueno.Password = envOverride("GUENO_PASSWORD", c.Gueno.Password)
	c.Gueno.ClientKey = envOverride("GUENO_CLIENT_KEY", c.Gueno.ClientKey)
}

func (c *Config) normalizeHTTP() {
	if c.HTTP.ConnectTimeoutSeconds <= 0 {
		c.HTTP.ConnectTimeoutSeconds = defaultConnectTimeoutSeconds
	}
	if c.HTTP.RequestTimeoutSeconds <= 0 {
		c.HTTP.RequestTimeoutSeconds = defaultRequestTimeoutSeconds
	}
	if c.HTTP.RetryAttempts <= 0 {
		c.HTTP.RetryAttempts = defaultRetryAttempts
	}
	if c.HTTP.RetryWaitSeconds < 0 {
		c.HTTP.RetryWaitSeconds = defaultRetryWaitSeconds
	}
}

func (c *Config) normalizeWorkflow() {
	if c.Workflow.ArtifactGraceSeconds < 0 {
		c.Workflow.ArtifactGraceSeconds = defaultArtifactGraceSeconds
	}
	if c.Workflow.ArtifactPollInitialSeconds <= 0 {
		c.Workflow.ArtifactPollInitialSeconds = defaultArtifactPollInitialSeconds
	}
	if c.Workflow.ArtifactPollMaxElapsedSeconds <= 0 {
		c.Workflow.ArtifactPollMaxElapsedSeconds = defaultArtifactPollMaxElapsedSeconds
	}
	if c.Workflow.MinFreeMB < 0 {
		c.Workflow.MinFreeMB = defaultMinFreeMB
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

// envOverride prefers an environment value when the config field is empty,
// so credentials can stay out of the config file entirely.
func envOverride(name, current string) string {
	if strings.TrimSpace(current) != "" {
		return current
	}
	if value, ok := os.LookupEnv(name); ok {
		return strings.TrimSpace(value)
	}
	return current
}

func trimURL(value, fallback string) string {
	trimmed := strings.TrimRight(strings.TrimSpace(value), "/")
	if trimmed == "" {
		return fallback
	}
	return trimmed
}
