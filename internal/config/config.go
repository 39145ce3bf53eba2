package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
)

// Config represents the roadmap configuration.
type Config struct {
	Provider            string        `json:"provider"`
	Model               string        `json:"model"`
	MaxTokens           int           `json:"maxTokens"`
	ExpansionRounds     int           `json:"expansionRounds"`
	MaxFetchSpan        int           `json:"maxFetchSpan"`
	FetchRetries        int           `json:"fetchRetries"`
	FetchTimeoutSeconds int           `json:"fetchTimeoutSeconds"`
	ModelTimeoutSeconds int           `json:"modelTimeoutSeconds"`
	MaxDiffBytes        int           `json:"maxDiffBytes"`
	PromptTokenBudget   int           `json:"promptTokenBudget"`
	RequestsPerSecond   float64       `json:"requestsPerSecond"`
	RequestBurst        int           `json:"requestBurst"`
	Privacy             PrivacyConfig `json:"privacy"`
}

// PrivacyConfig controls secret redaction of prompt material.
type PrivacyConfig struct {
	RedactSecrets bool `json:"redactSecrets"`
}

// Default returns a Config with all defaults applied.
func Default() Config {
	return Config{
		Provider:            "anthropic",
		Model:               "claude-sonnet-4-20250514",
		MaxTokens:           4096,
		ExpansionRounds:     2,
		MaxFetchSpan:        400,
		FetchRetries:        3,
		FetchTimeoutSeconds: 30,
		ModelTimeoutSeconds: 300,
		MaxDiffBytes:        500000,
		PromptTokenBudget:   16000,
		RequestsPerSecond:   5,
		RequestBurst:        5,
		Privacy: PrivacyConfig{
			RedactSecrets: true,
		},
	}
}

// ConfigDir returns the platform-appropriate config directory for roadmap.
func ConfigDir() (string, error) {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "roadmap"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "roadmap"), nil
	case "windows":
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, "roadmap"), nil
		}
		return filepath.Join(home, "AppData", "Roaming", "roadmap"), nil
	default:
		return filepath.Join(home, ".config", "roadmap"), nil
	}
}

// ConfigPath returns the full path to the config file.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// LoadFile loads config from the config file. Returns zero Config and nil error if file doesn't exist.
func LoadFile() (Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return Config{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Config{}, nil
		}
		return Config{}, fmt.Errorf("reading config file: %w", err)
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parsing config file: %w", err)
	}
	return cfg, nil
}

// Save writes the config to the config file.
func Save(cfg Config) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// Load builds the effective config by merging: defaults <- file <- env <- overrides.
// The overrides map comes from CLI flags (only non-zero values should be set).
func Load(overrides map[string]string) (Config, error) {
	cfg := Default()

	fileCfg, err := LoadFile()
	if err != nil {
		return Config{}, err
	}
	mergeFile(&cfg, fileCfg)
	mergeEnv(&cfg)
	mergeOverrides(&cfg, overrides)

	return cfg, nil
}

func mergeFile(dst *Config, src Config) {
	if src.Provider != "" {
		dst.Provider = src.Provider
	}
	if src.Model != "" {
		dst.Model = src.Model
	}
	if src.MaxTokens > 0 {
		dst.MaxTokens = src.MaxTokens
	}
	if src.ExpansionRounds > 0 {
		dst.ExpansionRounds = src.ExpansionRounds
	}
	if src.MaxFetchSpan > 0 {
		dst.MaxFetchSpan = src.MaxFetchSpan
	}
	if src.FetchRetries > 0 {
		dst.FetchRetries = src.FetchRetries
	}
	if src.FetchTimeoutSeconds > 0 {
		dst.FetchTimeoutSeconds = src.FetchTimeoutSeconds
	}
	if src.ModelTimeoutSeconds > 0 {
		dst.ModelTimeoutSeconds = src.ModelTimeoutSeconds
	}
	if src.MaxDiffBytes > 0 {
		dst.MaxDiffBytes = src.MaxDiffBytes
	}
	if src.PromptTokenBudget > 0 {
		dst.PromptTokenBudget = src.PromptTokenBudget
	}
	if src.RequestsPerSecond > 0 {
		dst.RequestsPerSecond = src.RequestsPerSecond
	}
	if src.RequestBurst > 0 {
		dst.RequestBurst = src.RequestBurst
	}
	// Bool fields from file: JSON zero value for bool is false, so a simple
	// merge cannot distinguish unset from false. Redaction stays on unless
	// turned off by flag.
	dst.Privacy.RedactSecrets = src.Privacy.RedactSecrets || dst.Privacy.RedactSecrets
}

func mergeEnv(cfg *Config) {
	if v := os.Getenv("ROADMAP_PROVIDER"); v != "" {
		cfg.Provider = v
	}
	if v := os.Getenv("ROADMAP_MODEL"); v != "" {
		cfg.Model = v
	}
	if v := os.Getenv("ROADMAP_EXPANSION_ROUNDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.ExpansionRounds = n
		}
	}
	if v := os.Getenv("ROADMAP_MAX_FETCH_SPAN"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxFetchSpan = n
		}
	}
	if v := os.Getenv("ROADMAP_MAX_DIFF_BYTES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxDiffBytes = n
		}
	}
	if v := os.Getenv("ROADMAP_PROMPT_TOKEN_BUDGET"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.PromptTokenBudget = n
		}
	}
}

func mergeOverrides(cfg *Config, overrides map[string]string) {
	if overrides == nil {
		return
	}
	if v, ok := overrides["provider"]; ok && v != "" {
		cfg.Provider = v
	}
	if v, ok := overrides["model"]; ok && v != "" {
		cfg.Model = v
	}
	if v, ok := overrides["expansionRounds"]; ok && v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.ExpansionRounds = n
		}
	}
	if v, ok := overrides["maxFetchSpan"]; ok && v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxFetchSpan = n
		}
	}
	if v, ok := overrides["maxDiffBytes"]; ok && v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxDiffBytes = n
		}
	}
	if v, ok := overrides["promptTokenBudget"]; ok && v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.PromptTokenBudget = n
		}
	}
}

// SetField sets a single config field by key name. Returns error if key is unknown.
func SetField(cfg *Config, key, value string) error {
	intField := func(dst *int) error {
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("%s must be an integer: %w", key, err)
		}
		*dst = n
		return nil
	}
	switch key {
	case "provider":
		cfg.Provider = value
	case "model":
		cfg.Model = value
	case "maxTokens":
		return intField(&cfg.MaxTokens)
	case "expansionRounds":
		return intField(&cfg.ExpansionRounds)
	case "maxFetchSpan":
		return intField(&cfg.MaxFetchSpan)
	case "fetchRetries":
		return intField(&cfg.FetchRetries)
	case "fetchTimeoutSeconds":
		return intField(&cfg.FetchTimeoutSeconds)
	case "modelTimeoutSeconds":
		return intField(&cfg.ModelTimeoutSeconds)
	case "maxDiffBytes":
		return intField(&cfg.MaxDiffBytes)
	case "promptTokenBudget":
		return intField(&cfg.PromptTokenBudget)
	case "requestsPerSecond":
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("requestsPerSecond must be a number: %w", err)
		}
		cfg.RequestsPerSecond = f
	case "requestBurst":
		return intField(&cfg.RequestBurst)
	default:
		return fmt.Errorf("unknown config key: %s", key)
	}
	return nil
}
