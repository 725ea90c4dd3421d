package session

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ihavespoons/seance/internal/logger"
	"github.com/ihavespoons/seance/internal/transcript"
)

func init() {
	logger.InitQuiet()
}

func newTestTranscript(t *testing.T) *transcript.Buffer {
	t.Helper()
	buf, err := transcript.Open(filepath.Join(t.TempDir(), "buffer.txt"), 200)
	if err != nil {
		t.Fatalf("transcript.Open() error: %v", err)
	}
	t.Cleanup(func() { _ = buf.Close() })
	return buf
}

// pipeSession builds a session whose PTY side is a plain pipe, enough to
// exercise typing and relaying without a real child process.
func pipeSession(t *testing.T, ptySide *os.File) *Session {
	t.Helper()
	s := &Session{
		ptmx:   ptySide,
		buffer: newTestTranscript(t),
		stdout: io.Discard,
		chunks: make(chan string, 64),
		done:   make(chan struct{}),
	}
	s.state.Store(int32(StateRunning))
	return s
}

func TestTypeWritesBytesInOrder(t *testing.T) {
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	defer func() { _ = r.Close() }()

	s := pipeSession(t, w)

	var got bytes.Buffer
	read := make(chan struct{})
	go func() {
		defer close(read)
		_, _ = io.Copy(&got, r)
	}()

	if err := s.Type("yes, use Fastify"); err != nil {
		t.Fatalf("Type() error: %v", err)
	}
	_ = w.Close()
	<-read

	if got.String() != "yes, use Fastify\r" {
		t.Errorf("typed bytes = %q", got.String())
	}
}

func TestTypePacesKeys(t *testing.T) {
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	defer func() { _ = r.Close() }()

	s := pipeSession(t, w)
	s.typeDelay = 5 * time.Millisecond

	go func() { _, _ = io.Copy(io.Discard, r) }()

	start := time.Now()
	if err := s.Type("abcd"); err != nil {
		t.Fatalf("Type() error: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 20*time.Millisecond {
		t.Errorf("typing 4 keys at 5ms took %v, pacing not applied", elapsed)
	}
	_ = w.Close()
}

func TestTypeFailsWhenNotRunning(t *testing.T) {
	_, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	defer func() { _ = w.Close() }()

	s := pipeSession(t, w)
	s.state.Store(int32(StateExited))

	if err := s.Type("too late"); !errors.Is(err, ErrNotRunning) {
		t.Errorf("expected ErrNotRunning, got %v", err)
	}

	s.state.Store(int32(StateKilled))
	if err := s.Type("still too late"); !errors.Is(err, ErrNotRunning) {
		t.Errorf("expected ErrNotRunning after kill, got %v", err)
	}
}

func TestRelayPublishesAndRecords(t *testing.T) {
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}

	s := pipeSession(t, r)

	var received atomic.Int32
	collected := make(chan string, 1)
	go func() {
		var all bytes.Buffer
		for chunk := range s.Output() {
			received.Add(1)
			all.WriteString(chunk)
		}
		collected <- all.String()
	}()

	go s.Relay()

	if _, err := w.WriteString("\x1b[32mShould I continue?\x1b[0m\n"); err != nil {
		t.Fatalf("write: %v", err)
	}
	_ = w.Close()

	select {
	case all := <-collected:
		// Consumers see the raw bytes; cleaning is the transcript's business.
		if all != "\x1b[32mShould I continue?\x1b[0m\n" {
			t.Errorf("relayed output = %q", all)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("relay did not drain after pipe close")
	}

	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("Done not closed after relay finished")
	}

	if s.State() != StateExited {
		t.Errorf("state = %s, expected exited", s.State())
	}
	if got := s.buffer.TailString(10); got != "Should I continue?" {
		t.Errorf("transcript tail = %q", got)
	}
}

func TestCleanChunkNormalizesEveryLine(t *testing.T) {
	in := "\x1b[1mline one\x1b[0m\nprogress 10%\rprogress 99%\nplain"
	expected := "line one\nprogress 99%\nplain"
	if got := cleanChunk(in); got != expected {
		t.Errorf("cleanChunk = %q, expected %q", got, expected)
	}
}

func TestSpawnRunsShellCommandLine(t *testing.T) {
	buf := newTestTranscript(t)

	sess, err := Spawn([]string{"echo one && echo two"}, buf, 0)
	if err != nil {
		t.Fatalf("Spawn() error: %v", err)
	}
	defer func() { _ = sess.Close() }()
	sess.stdout = io.Discard

	go func() {
		for range sess.Output() {
		}
	}()
	go sess.Relay()

	select {
	case <-sess.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("child did not exit")
	}

	if code := sess.ExitCode(); code != 0 {
		t.Errorf("exit code = %d", code)
	}
	tail := buf.TailString(10)
	if !strings.Contains(tail, "one") || !strings.Contains(tail, "two") {
		t.Errorf("shell command output missing from transcript: %q", tail)
	}
}

func TestCleanChunkKeepsCRLFLines(t *testing.T) {
	// PTYs in ONLCR mode emit \r\n line endings; the transcript copy must
	// keep the text, not collapse every line to empty.
	in := "Compiling 14 packages\r\nShould I continue?\r\n"
	expected := "Compiling 14 packages\nShould I continue?\n"
	if got := cleanChunk(in); got != expected {
		t.Errorf("cleanChunk = %q, expected %q", got, expected)
	}
}

func TestStateString(t *testing.T) {
	tests := []struct {
		state    State
		expected string
	}{
		{StateStarting, "starting"},
		{StateRunning, "running"},
		{StateExited, "exited"},
		{StateKilled, "killed"},
		{State(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.expected {
			t.Errorf("State(%d).String() = %q, expected %q", tt.state, got, tt.expected)
		}
	}
}
