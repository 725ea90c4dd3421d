// Package prompts holds the advisor system prompt. A user-editable copy
// lives in the data directory; the embedded default is the fallback and the
// template written on first run.
package prompts

import (
	_ "embed"
	"os"
)

//go:embed default_system_prompt.txt
var defaultSystemPrompt string

// Default returns the built-in system prompt.
func Default() string {
	return defaultSystemPrompt
}

// Load reads the system prompt from path, falling back to the embedded
// default when the file is missing or empty.
func Load(path string) string {
	data, err := os.ReadFile(path)
	if err != nil || len(data) == 0 {
		return defaultSystemPrompt
	}
	return string(data)
}

// WriteDefault writes the embedded default to path unless it already exists.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	return os.WriteFile(path, []byte(defaultSystemPrompt), 0644)
}
