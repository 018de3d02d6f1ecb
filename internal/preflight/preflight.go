// Package preflight verifies the local environment before a pipeline run
// touches either platform: directory access, free disk space, and required
// credentials.
package preflight

import (
	"reportbridge/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes every environment check for the given config. Network
// credentials are validated by the config layer; these checks cover the
// filesystem side.
func RunAll(cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	var results []Result
	results = append(results, CheckDirectoryAccess("Staging directory", cfg.Paths.StagingDir))
	results = append(results, CheckDirectoryAccess("Log directory", cfg.Paths.LogDir))
	results = append(results, CheckFreeSpace("Staging free space", cfg.Paths.StagingDir, cfg.Workflow.MinFreeMB))
	return results
}

// Passed reports whether every result passed.
func Passed(results []Result) bool {
	for _, result := range results {
		if !result.Passed {
			return false
		}
	}
	return true
}
