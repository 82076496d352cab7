// Package config handles activity tracker configuration loading.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// searchPathsFunc is overridden in tests to avoid picking up real config
// files on developer machines.
var searchPathsFunc = DefaultSearchPaths

// DefaultSearchPaths returns the config file search order.
// An explicit path (from -config flag) is checked first.
// Then: ./config.yaml, ~/.config/activity-tracker/config.yaml,
// /etc/activity-tracker/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"config.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "activity-tracker", "config.yaml"))
	}

	paths = append(paths, "/etc/activity-tracker/config.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches the search path and returns the first that exists.
// Returns the path found, or an error if nothing was found.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	paths := searchPathsFunc()
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", paths)
}

// Config holds all activity tracker configuration.
type Config struct {
	Capture       CaptureConfig       `yaml:"capture"`
	AFK           AFKConfig           `yaml:"afk"`
	Summarization SummarizationConfig `yaml:"summarization"`
	Storage       StorageConfig       `yaml:"storage"`
	Privacy       PrivacyConfig       `yaml:"privacy"`
	Tracking      TrackingConfig      `yaml:"tracking"`
	LogLevel      string              `yaml:"log_level"`
}

// CaptureConfig controls the screenshot capture loop (C3).
type CaptureConfig struct {
	IntervalSeconds      int  `yaml:"interval_seconds"`
	SkipTransientWindows bool `yaml:"skip_transient_windows"`
}

// AFKConfig controls the AFK detector (C5) and session manager (C7).
type AFKConfig struct {
	TimeoutSeconds    int `yaml:"timeout_seconds"`
	PollSeconds       int `yaml:"poll_seconds"`
	MinSessionMinutes int `yaml:"min_session_minutes"`
}

// SummarizationConfig controls the summarizer worker (C8) and LLM client (C9).
type SummarizationConfig struct {
	Enabled               bool   `yaml:"enabled"`
	Model                 string `yaml:"model"`
	OllamaHost            string `yaml:"ollama_host"`
	FrequencyMinutes      int    `yaml:"frequency_minutes"`
	IncludeFocusContext   bool   `yaml:"include_focus_context"`
	IncludeScreenshots    bool   `yaml:"include_screenshots"`
	IncludeOCR            bool   `yaml:"include_ocr"`
	IncludePreviousSummary bool  `yaml:"include_previous_summary"`
	MaxSamples            int    `yaml:"max_samples"`
	CropToWindow           bool   `yaml:"crop_to_window"`
	FocusWeightedSampling  bool   `yaml:"focus_weighted_sampling"`
	SampleIntervalMinutes  int    `yaml:"sample_interval_minutes"`
}

// StorageConfig controls where files and the database live.
type StorageConfig struct {
	DataDir string `yaml:"data_dir"`
}

// PrivacyConfig excludes specific apps/titles from focus and capture.
type PrivacyConfig struct {
	ExcludedApps   []string `yaml:"excluded_apps"`
	ExcludedTitles []string `yaml:"excluded_titles"`
}

// TrackingConfig controls focus-watcher policy (C6).
type TrackingConfig struct {
	MinFocusDuration       float64  `yaml:"min_focus_duration"`
	TransientWindowClasses []string `yaml:"transient_window_classes"`
}

// Load reads configuration from a YAML file, expands environment
// variables, applies defaults for any unset fields, and validates
// the result. After Load returns successfully, all fields are usable
// without additional nil/empty checks. Unknown keys are ignored.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables (e.g., ${HOME}). Convenience for
	// container deployments; values may also be placed directly in the
	// config file.
	expanded := os.ExpandEnv(string(data))

	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// applyDefaults fills in zero-value fields with sensible defaults.
// Called automatically by Load. After this, callers can read any field
// without checking for empty strings or zero values.
func (c *Config) applyDefaults() {
	if c.Capture.IntervalSeconds == 0 {
		c.Capture.IntervalSeconds = 30
	}
	if c.AFK.TimeoutSeconds == 0 {
		c.AFK.TimeoutSeconds = 180
	}
	if c.AFK.PollSeconds == 0 {
		c.AFK.PollSeconds = 5
	}
	if c.AFK.MinSessionMinutes == 0 {
		c.AFK.MinSessionMinutes = 1
	}
	if c.Summarization.Model == "" {
		c.Summarization.Model = "llava"
	}
	if c.Summarization.OllamaHost == "" {
		c.Summarization.OllamaHost = "http://localhost:11434"
	}
	if c.Summarization.FrequencyMinutes == 0 {
		c.Summarization.FrequencyMinutes = 15
	}
	if c.Summarization.MaxSamples == 0 {
		c.Summarization.MaxSamples = 6
	}
	if c.Storage.DataDir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			c.Storage.DataDir = filepath.Join(home, "activity-tracker-data")
		} else {
			c.Storage.DataDir = "./activity-tracker-data"
		}
	}
	if c.Tracking.MinFocusDuration == 0 {
		c.Tracking.MinFocusDuration = 1.0
	}
	if len(c.Tracking.TransientWindowClasses) == 0 {
		c.Tracking.TransientWindowClasses = []string{"notification", "trayicon", "overlay"}
	}
}

// Validate checks that the configuration is internally consistent.
// It runs after applyDefaults, so it can assume defaults are populated.
// Returns an error describing the first problem found, or nil.
func (c *Config) Validate() error {
	if c.Capture.IntervalSeconds < 1 {
		return fmt.Errorf("capture.interval_seconds must be positive, got %d", c.Capture.IntervalSeconds)
	}
	if c.AFK.TimeoutSeconds < 1 {
		return fmt.Errorf("afk.timeout_seconds must be positive, got %d", c.AFK.TimeoutSeconds)
	}
	if c.AFK.PollSeconds < 1 {
		return fmt.Errorf("afk.poll_seconds must be positive, got %d", c.AFK.PollSeconds)
	}
	if c.Summarization.FrequencyMinutes < 1 {
		return fmt.Errorf("summarization.frequency_minutes must be positive, got %d", c.Summarization.FrequencyMinutes)
	}
	if c.Summarization.MaxSamples < 0 {
		return fmt.Errorf("summarization.max_samples must not be negative, got %d", c.Summarization.MaxSamples)
	}
	if c.LogLevel != "" {
		if _, err := ParseLogLevel(c.LogLevel); err != nil {
			return err
		}
	}
	return nil
}

// Default returns a default configuration suitable for local development
// with Ollama. All defaults are already applied.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}
