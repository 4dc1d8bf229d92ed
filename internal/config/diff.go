package config

import (
	"github.com/shinelabs/shine/internal/analysis"
	"github.com/shinelabs/shine/internal/detect"
)

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked; anything else
// (listen address, store backend, analyzer provider) needs a restart.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	DetectorChanged bool
	NewDetector     detect.Config

	AnalysisChanged bool
	NewAnalysis     analysis.Config
}

// Any reports whether the diff carries at least one change.
func (d ConfigDiff) Any() bool {
	return d.LogLevelChanged || d.DetectorChanged || d.AnalysisChanged
}

// Diff compares old and new configs and returns what changed.
// Only tracks changes that are safe to apply without restart.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if old.Detector != new.Detector {
		d.DetectorChanged = true
		d.NewDetector = new.Detector
	}

	if old.Analysis != new.Analysis {
		d.AnalysisChanged = true
		d.NewAnalysis = new.Analysis
	}

	return d
}
