package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const (
	globalConfigDir  = ".seance"
	projectConfigDir = ".seance"
	configFileName   = "config.yaml"
)

// Loader handles loading and merging configuration files
type Loader struct {
	globalPath  string
	projectPath string
}

// NewLoader creates a new configuration loader
func NewLoader(projectDir string) (*Loader, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get home directory: %w", err)
	}

	if projectDir == "" {
		projectDir, err = os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get working directory: %w", err)
		}
	}

	return &Loader{
		globalPath:  filepath.Join(homeDir, globalConfigDir, configFileName),
		projectPath: filepath.Join(projectDir, projectConfigDir, configFileName),
	}, nil
}

// Load merges defaults, the global config, the project config and the
// environment, in that order of increasing precedence.
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	globalCfg, err := l.loadFile(l.globalPath)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load global config: %w", err)
	}
	if globalCfg != nil {
		cfg = mergeConfigs(cfg, globalCfg)
	}

	projectCfg, err := l.loadFile(l.projectPath)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load project config: %w", err)
	}
	if projectCfg != nil {
		cfg = mergeConfigs(cfg, projectCfg)
	}

	applyEnv(cfg)
	return cfg, nil
}

// LoadFromFile loads configuration from a specific file, still applying
// environment overrides.
func (l *Loader) LoadFromFile(path string) (*Config, error) {
	cfg, err := l.loadFile(path)
	if err != nil {
		return nil, err
	}
	merged := mergeConfigs(DefaultConfig(), cfg)
	applyEnv(merged)
	return merged, nil
}

func (l *Loader) loadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	return &cfg, nil
}

// applyEnv lets environment variables override file-sourced credentials.
// SEANCE_API_KEY wins over OPENAI_API_KEY; a file-sourced key is kept when
// neither is set.
func applyEnv(cfg *Config) {
	if v := os.Getenv("SEANCE_API_KEY"); v != "" {
		cfg.Advisor.APIKey = v
	} else if cfg.Advisor.APIKey == "" {
		cfg.Advisor.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if v := os.Getenv("SEANCE_MODEL"); v != "" {
		cfg.Advisor.Model = v
	}
}

// mergeConfigs merges two configurations, with override taking precedence
func mergeConfigs(base, override *Config) *Config {
	result := &Config{
		Version: coalesce(override.Version, base.Version),
		Settings: Settings{
			LogLevel: coalesce(override.Settings.LogLevel, base.Settings.LogLevel),
			LogFile:  coalesce(override.Settings.LogFile, base.Settings.LogFile),
			DataDir:  coalesce(override.Settings.DataDir, base.Settings.DataDir),
		},
		Advisor: Advisor{
			APIKey:     coalesce(override.Advisor.APIKey, base.Advisor.APIKey),
			Model:      coalesce(override.Advisor.Model, base.Advisor.Model),
			BaseURL:    coalesce(override.Advisor.BaseURL, base.Advisor.BaseURL),
			MaxTokens:  coalesceInt(override.Advisor.MaxTokens, base.Advisor.MaxTokens),
			TimeoutSec: coalesceInt(override.Advisor.TimeoutSec, base.Advisor.TimeoutSec),
			MaxRetries: coalesceInt(override.Advisor.MaxRetries, base.Advisor.MaxRetries),
		},
		Session: Session{
			ResponseDelaySec: coalesceInt(override.Session.ResponseDelaySec, base.Session.ResponseDelaySec),
			StartupDelaySec:  coalesceInt(override.Session.StartupDelaySec, base.Session.StartupDelaySec),
			CooldownSec:      coalesceInt(override.Session.CooldownSec, base.Session.CooldownSec),
			TypeDelayMs:      coalesceInt(override.Session.TypeDelayMs, base.Session.TypeDelayMs),
			ContextLines:     coalesceInt(override.Session.ContextLines, base.Session.ContextLines),
			TailLines:        coalesceInt(override.Session.TailLines, base.Session.TailLines),
		},
		Detect: Detect{
			ExtraPatterns: mergePatterns(base.Detect.ExtraPatterns, override.Detect.ExtraPatterns),
		},
	}

	return result
}

// mergePatterns appends override patterns after base patterns, dropping
// duplicates. Extra patterns extend the rule table, they never replace it.
func mergePatterns(base, override []PatternRule) []PatternRule {
	if len(override) == 0 {
		return base
	}
	if len(base) == 0 {
		return override
	}

	seen := make(map[string]bool, len(base))
	result := make([]PatternRule, 0, len(base)+len(override))
	for _, p := range base {
		seen[p.Pattern] = true
		result = append(result, p)
	}
	for _, p := range override {
		if seen[p.Pattern] {
			continue
		}
		seen[p.Pattern] = true
		result = append(result, p)
	}
	return result
}

func coalesce(a, b string) string {
	if a != "" {
		return a
	}
	return b
}

func coalesceInt(a, b int) int {
	if a != 0 {
		return a
	}
	return b
}

// GlobalConfigPath returns the path to the global config file
func (l *Loader) GlobalConfigPath() string {
	return l.globalPath
}

// ProjectConfigPath returns the path to the project config file
func (l *Loader) ProjectConfigPath() string {
	return l.projectPath
}

// Exists checks if a config file exists at the given path
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// WriteStarter writes the default configuration to path as a starting point
// for editing. Parent directories are created; an existing file is an error.
func WriteStarter(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if Exists(path) {
		return fmt.Errorf("config file already exists: %s", path)
	}

	data, err := yaml.Marshal(DefaultConfig())
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	header := []byte("# seance configuration\n# Set advisor.api_key here or export SEANCE_API_KEY.\n")
	return os.WriteFile(path, append(header, data...), 0644)
}
