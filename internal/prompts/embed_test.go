package prompts

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultIsNotEmpty(t *testing.T) {
	if Default() == "" {
		t.Fatal("embedded default prompt is empty")
	}
}

func TestLoadFallsBackToDefault(t *testing.T) {
	if got := Load(filepath.Join(t.TempDir(), "missing.txt")); got != Default() {
		t.Error("missing file did not fall back to the default")
	}

	empty := filepath.Join(t.TempDir(), "empty.txt")
	if err := os.WriteFile(empty, nil, 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if got := Load(empty); got != Default() {
		t.Error("empty file did not fall back to the default")
	}
}

func TestLoadReadsCustomPrompt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prompt.txt")
	if err := os.WriteFile(path, []byte("answer in haiku"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if got := Load(path); got != "answer in haiku" {
		t.Errorf("Load = %q", got)
	}
}

func TestWriteDefaultDoesNotClobber(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prompt.txt")

	if err := WriteDefault(path); err != nil {
		t.Fatalf("WriteDefault() error: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != Default() {
		t.Error("written prompt differs from the default")
	}

	// A user-edited prompt survives later runs.
	if err := os.WriteFile(path, []byte("edited"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := WriteDefault(path); err != nil {
		t.Fatalf("WriteDefault() error: %v", err)
	}
	data, _ = os.ReadFile(path)
	if string(data) != "edited" {
		t.Error("WriteDefault clobbered an existing prompt")
	}
}
