package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidAnalyzerNames lists known analyzer provider names. Used by [Validate]
// to warn about unrecognised names (a typo would otherwise only surface when
// the registry lookup fails at startup).
var ValidAnalyzerNames = []string{
	"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq",
	"openai-sdk", "mock",
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Store
	if cfg.Store.Backend != "" && !cfg.Store.Backend.IsValid() {
		errs = append(errs, fmt.Errorf("store.backend %q is invalid; valid values: postgres, memory", cfg.Store.Backend))
	}
	if cfg.Store.Backend == StorePostgres && cfg.Store.PostgresDSN == "" {
		errs = append(errs, errors.New("store.postgres_dsn is required when store.backend is postgres"))
	}

	// Analyzer
	if cfg.Analyzer.Name == "" {
		slog.Warn("analyzer.name is empty; nudge analysis and reports will be unavailable")
	} else if !slices.Contains(ValidAnalyzerNames, cfg.Analyzer.Name) {
		slog.Warn("unknown analyzer name, may be a typo or third-party provider",
			"name", cfg.Analyzer.Name,
			"known", ValidAnalyzerNames,
		)
	}
	if len(cfg.AnalyzerFallbacks) > 0 && cfg.Analyzer.Name == "" {
		errs = append(errs, errors.New("analyzer_fallbacks requires a primary analyzer"))
	}
	for i, fb := range cfg.AnalyzerFallbacks {
		if fb.Name == "" {
			errs = append(errs, fmt.Errorf("analyzer_fallbacks[%d].name must not be empty", i))
		}
	}

	// Detector. Zero fields fall back to defaults; explicit nonsense is an error.
	if cfg.Detector.SpeechThreshold < 0 || cfg.Detector.SpeechThreshold >= 1 {
		errs = append(errs, fmt.Errorf("detector.speech_threshold %.3f is out of range [0, 1)", cfg.Detector.SpeechThreshold))
	}
	if cfg.Detector.SpikeRatio != 0 && cfg.Detector.SpikeRatio <= 1 {
		errs = append(errs, fmt.Errorf("detector.spike_ratio %.2f must be greater than 1", cfg.Detector.SpikeRatio))
	}
	if cfg.Detector.MinSpikeDuration < 0 {
		errs = append(errs, fmt.Errorf("detector.min_spike_duration %s must not be negative", cfg.Detector.MinSpikeDuration))
	}
	if cfg.Detector.EmitCooldown < 0 {
		errs = append(errs, fmt.Errorf("detector.emit_cooldown %s must not be negative", cfg.Detector.EmitCooldown))
	}

	// Analysis
	if cfg.Analysis.Cadence < 0 {
		errs = append(errs, fmt.Errorf("analysis.cadence %s must not be negative", cfg.Analysis.Cadence))
	}
	if cfg.Analysis.Window < 0 {
		errs = append(errs, fmt.Errorf("analysis.window %s must not be negative", cfg.Analysis.Window))
	}

	// Notify
	if cfg.Notify.PollInterval < 0 {
		errs = append(errs, fmt.Errorf("notify.poll_interval %s must not be negative", cfg.Notify.PollInterval))
	}

	return errors.Join(errs...)
}
