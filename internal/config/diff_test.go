package config

import (
	"testing"
	"time"

	"github.com/shinelabs/shine/internal/analysis"
	"github.com/shinelabs/shine/internal/detect"
)

func baseConfig() *Config {
	return &Config{
		Server: ServerConfig{ListenAddr: ":8080", LogLevel: LogInfo},
		Detector: detect.Config{
			SpeechThreshold:  0.03,
			SpikeRatio:       1.8,
			MinSpikeDuration: 150 * time.Millisecond,
			EmitCooldown:     3 * time.Second,
		},
		Analysis: analysis.Config{Cadence: 4 * time.Minute},
	}
}

func TestDiff_NoChanges(t *testing.T) {
	t.Parallel()

	old, new := baseConfig(), baseConfig()
	if d := Diff(old, new); d.Any() {
		t.Errorf("Diff() = %+v, want no changes", d)
	}
}

func TestDiff_LogLevel(t *testing.T) {
	t.Parallel()

	old, new := baseConfig(), baseConfig()
	new.Server.LogLevel = LogDebug

	d := Diff(old, new)
	if !d.LogLevelChanged || d.NewLogLevel != LogDebug {
		t.Errorf("Diff() = %+v, want log level change to debug", d)
	}
	if d.DetectorChanged || d.AnalysisChanged {
		t.Errorf("Diff() flagged unrelated sections: %+v", d)
	}
}

func TestDiff_Detector(t *testing.T) {
	t.Parallel()

	old, new := baseConfig(), baseConfig()
	new.Detector.EmitCooldown = 5 * time.Second

	d := Diff(old, new)
	if !d.DetectorChanged || d.NewDetector != new.Detector {
		t.Errorf("Diff() = %+v, want detector change", d)
	}
}

func TestDiff_Analysis(t *testing.T) {
	t.Parallel()

	old, new := baseConfig(), baseConfig()
	new.Analysis.Cadence = 2 * time.Minute

	d := Diff(old, new)
	if !d.AnalysisChanged || d.NewAnalysis.Cadence != 2*time.Minute {
		t.Errorf("Diff() = %+v, want analysis change", d)
	}
}

func TestDiff_IgnoresRestartOnlyFields(t *testing.T) {
	t.Parallel()

	old, new := baseConfig(), baseConfig()
	new.Server.ListenAddr = ":9090"
	new.Store.Backend = StorePostgres
	new.Analyzer.Name = "anthropic"

	if d := Diff(old, new); d.Any() {
		t.Errorf("Diff() = %+v, restart-only fields must not be hot-reloadable", d)
	}
}
