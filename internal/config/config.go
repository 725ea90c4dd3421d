package config

import (
	"errors"
	"os"
	"path/filepath"
	"time"
)

// Config represents the complete seance configuration
type Config struct {
	Version  string   `yaml:"version"`
	Settings Settings `yaml:"settings"`
	Advisor  Advisor  `yaml:"advisor"`
	Session  Session  `yaml:"session"`
	Detect   Detect   `yaml:"detect"`
}

// Settings contains global configuration settings
type Settings struct {
	LogLevel string `yaml:"log_level"`
	LogFile  string `yaml:"log_file,omitempty"`

	// DataDir holds the transcript buffer, session history database,
	// system prompt file and session logs. Defaults to ~/.seance.
	DataDir string `yaml:"data_dir,omitempty"`
}

// Advisor configures the external chat-completion API.
type Advisor struct {
	APIKey     string `yaml:"api_key,omitempty"`
	Model      string `yaml:"model"`
	BaseURL    string `yaml:"base_url,omitempty"`
	MaxTokens  int    `yaml:"max_tokens"`
	TimeoutSec int    `yaml:"timeout_sec"`
	MaxRetries int    `yaml:"max_retries"`
}

// Session configures the watch/autopilot loop.
type Session struct {
	// ResponseDelaySec is how long to wait after receiving an answer
	// before typing it into the child.
	ResponseDelaySec int `yaml:"response_delay_sec"`

	// StartupDelaySec suppresses question detection while the child
	// prints its startup banner.
	StartupDelaySec int `yaml:"startup_delay_sec"`

	// CooldownSec suppresses re-detection after an answer has been
	// typed, so the echo of the answer cannot trigger another round.
	CooldownSec int `yaml:"cooldown_sec"`

	// TypeDelayMs is the inter-key pacing when typing an answer.
	TypeDelayMs int `yaml:"type_delay_ms"`

	// ContextLines is how many trailing transcript lines accompany a
	// question to the advisor.
	ContextLines int `yaml:"context_lines"`

	// TailLines bounds the in-memory transcript tail.
	TailLines int `yaml:"tail_lines"`
}

// Detect configures question detection.
type Detect struct {
	// ExtraPatterns extends (never replaces) the built-in rule table.
	ExtraPatterns []PatternRule `yaml:"extra_patterns,omitempty"`
}

// PatternRule is a single detection heuristic.
type PatternRule struct {
	Pattern string `yaml:"pattern"`
	Kind    string `yaml:"kind"` // "question" or "skip"
}

// ErrNoAPIKey is returned when a consultation is attempted without a
// configured credential.
var ErrNoAPIKey = errors.New("advisor API key is not set (set advisor.api_key or SEANCE_API_KEY)")

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Version: "1",
		Settings: Settings{
			LogLevel: "info",
		},
		Advisor: Advisor{
			Model:      "gpt-4o",
			BaseURL:    "https://api.openai.com/v1/chat/completions",
			MaxTokens:  500,
			TimeoutSec: 30,
			MaxRetries: 2,
		},
		Session: Session{
			ResponseDelaySec: 2,
			StartupDelaySec:  5,
			CooldownSec:      5,
			TypeDelayMs:      15,
			ContextLines:     100,
			TailLines:        200,
		},
	}
}

// DataDir returns the configured data directory, defaulting to ~/.seance.
func (c *Config) DataDir() string {
	if c.Settings.DataDir != "" {
		return c.Settings.DataDir
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ".seance"
	}
	return filepath.Join(homeDir, ".seance")
}

// BufferPath returns the transcript buffer file path.
func (c *Config) BufferPath() string {
	return filepath.Join(c.DataDir(), "buffer.txt")
}

// HistoryPath returns the session history database path.
func (c *Config) HistoryPath() string {
	return filepath.Join(c.DataDir(), "sessions.db")
}

// SystemPromptPath returns the system prompt file path.
func (c *Config) SystemPromptPath() string {
	return filepath.Join(c.DataDir(), "system_prompt.txt")
}

// RequireAPIKey fails fast when no credential is configured.
func (c *Config) RequireAPIKey() error {
	if c.Advisor.APIKey == "" {
		return ErrNoAPIKey
	}
	return nil
}

func (c *Config) AdvisorTimeout() time.Duration {
	return time.Duration(c.Advisor.TimeoutSec) * time.Second
}

func (c *Config) ResponseDelay() time.Duration {
	return time.Duration(c.Session.ResponseDelaySec) * time.Second
}

func (c *Config) StartupDelay() time.Duration {
	return time.Duration(c.Session.StartupDelaySec) * time.Second
}

func (c *Config) Cooldown() time.Duration {
	return time.Duration(c.Session.CooldownSec) * time.Second
}

func (c *Config) TypeDelay() time.Duration {
	return time.Duration(c.Session.TypeDelayMs) * time.Millisecond
}
