package config

import (
	"errors"
	"fmt"

	"reportbridge/internal/services"
)

// Validate ensures the configuration is structurally usable. Credential
// presence is checked separately per platform so export-only and import-only
// invocations each validate exactly what they need before any network call.
func (c *Config) Validate() error {
	if c.Paths.StagingDir == "" {
		return errors.New("paths.staging_dir must be set")
	}
	if c.Paths.LogDir == "" {
		return errors.New("paths.log_dir must be set")
	}
	if c.HTTP.RetryAttempts < 1 {
		return errors.New("http.retry_attempts must be at least 1")
	}
	switch c.Logging.Format {
	case "text", "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	return nil
}

// ValidateMovingPayCredentials confirms the source platform credentials are
// present. Returns a configuration-tagged error naming the missing field.
func (c *Config) ValidateMovingPayCredentials() error {
	if c.MovingPay.Email == "" {
		return missingCredential("movingpay.email", "MOVINGPAY_EMAIL")
	}
	if c.MovingPay.Password == "" {
		return missingCredential("movingpay.password", "MOVINGPAY_PASSWORD")
	}
	return nil
}

// ValidateGuenoCredentials confirms the destination platform credentials are
// present. Returns a configuration-tagged error naming the missing field.
func (c *Config) ValidateGuenoCredentials() error {
	if c.Gueno.Email == "" {
		return missingCredential("gueno.email", "GUENO_EMAIL")
	}
	if c.Gueno.Password == "" {
		return missingCredential("gueno.password", "GUENO_PASSWORD")
	}
	if c.Gueno.ClientKey == "" {
		return missingCredential("gueno.client_key", "GUENO_CLIENT_KEY")
	}
	return nil
}

func missingCredential(field, env string) error {
	return services.Wrap(services.ErrConfiguration, "", "",
		fmt.Sprintf("%s is required; set it in the config file or via the %s environment variable", field, env), nil)
}
