package config

const (
	defaultStagingDir = "~/.local/share/reportbridge/staging"
	defaultLogDir     = "~/.local/share/reportbridge/logs"

	defaultMovingPayBaseURL    = "https://api.movingpay.com.br"
	defaultMovingPayReportsURL = "https://api-reports.movingpay.com.br"
	defaultMovingPayOrigin     = "web"

	defaultGuenoBaseURL = "https://api-gueno.prd.gueno.com"
	defaultGuenoProduct = "DASHBOARD"

	defaultConnectTimeoutSeconds = 10
	defaultRequestTimeoutSeconds = 60
	defaultRetryAttempts         = 3
	defaultRetryWaitSeconds      = 5

	defaultArtifactGraceSeconds          = 60
	defaultArtifactPollInitialSeconds    = 15
	defaultArtifactPollMaxElapsedSeconds = 600
	defaultMinFreeMB                     = 512

	defaultLogFormat = "text"
	defaultLogLevel  = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StagingDir: defaultStagingDir,
			LogDir:     defaultLogDir,
		},
		MovingPay: MovingPay{
			BaseURL:    defaultMovingPayBaseURL,
			ReportsURL: defaultMovingPayReportsURL,
			Origin:     defaultMovingPayOrigin,
		},
		Gueno: Gueno{
			BaseURL: defaultGuenoBaseURL,
			Product: defaultGuenoProduct,
		},
		HTTP: HTTP{
			ConnectTimeoutSeconds: defaultConnectTimeoutSeconds,
			RequestTimeoutSeconds: defaultRequestTimeoutSeconds,
			RetryAttempts:         defaultRetryAttempts,
			RetryWaitSeconds:      defaultRetryWaitSeconds,
		},
		Workflow: Workflow{
			ArtifactGraceSeconds:          defaultArtifactGraceSeconds,
			ArtifactPollInitialSeconds:    defaultArtifactPollInitialSeconds,
			ArtifactPollMaxElapsedSeconds: defaultArtifactPollMaxElapsedSeconds,
			MinFreeMB:                     defaultMinFreeMB,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
