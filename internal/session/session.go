// Package session owns the pseudo-terminal boundary: it spawns the watched
// command on a PTY, relays its output to the real terminal and the
// transcript, and injects synthesized keystrokes on request. It is the only
// genuinely concurrent component; everything else is synchronous per call.
package session

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/creack/pty"
	"golang.org/x/term"

	"github.com/ihavespoons/seance/internal/detect"
	"github.com/ihavespoons/seance/internal/logger"
	"github.com/ihavespoons/seance/internal/transcript"
)

// State is the session lifecycle state. There is no way back to Running
// once the child has gone.
type State int32

const (
	StateStarting State = iota
	StateRunning
	StateExited
	StateKilled
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateExited:
		return "exited"
	case StateKilled:
		return "killed"
	default:
		return "unknown"
	}
}

// ErrNotRunning is returned by Type once the child has exited.
var ErrNotRunning = errors.New("session is not running")

// Session is one watched child process attached to a PTY.
type Session struct {
	cmd  *exec.Cmd
	ptmx *os.File

	state atomic.Int32

	// writeMu serializes keystroke injection; the input side of the PTY
	// has exactly one writer at a time.
	writeMu   sync.Mutex
	typeDelay time.Duration

	buffer *transcript.Buffer
	stdout io.Writer

	chunks   chan string
	done     chan struct{}
	exitCode int
	exitErr  error

	stopResize func()
}

// Spawn allocates a pseudo-terminal and starts the command on it. The
// controlling terminal's window size is propagated to the child.
func Spawn(command []string, buf *transcript.Buffer, typeDelay time.Duration) (*Session, error) {
	if len(command) == 0 {
		return nil, errors.New("no command given")
	}

	// A single argument with spaces is a shell command line, so
	// `watch "npm run dev"` works as documented.
	argv := command
	if len(argv) == 1 && strings.ContainsAny(argv[0], " \t") {
		argv = []string{"/bin/sh", "-c", argv[0]}
	}

	s := &Session{
		cmd:       exec.Command(argv[0], argv[1:]...),
		typeDelay: typeDelay,
		buffer:    buf,
		stdout:    os.Stdout,
		chunks:    make(chan string, 64),
		done:      make(chan struct{}),
	}
	s.state.Store(int32(StateStarting))

	ptmx, err := pty.Start(s.cmd)
	if err != nil {
		return nil, fmt.Errorf("failed to start %q on a PTY: %w", command[0], err)
	}
	s.ptmx = ptmx

	if term.IsTerminal(int(os.Stdin.Fd())) {
		if cols, rows, err := term.GetSize(int(os.Stdin.Fd())); err == nil {
			_ = pty.Setsize(ptmx, &pty.Winsize{Rows: uint16(rows), Cols: uint16(cols)})
		}
		s.stopResize = watchResize(ptmx)
	}

	s.state.Store(int32(StateRunning))
	logger.Debug().
		Int("pid", s.cmd.Process.Pid).
		Str("command", strings.Join(command, " ")).
		Msg("Spawned child on PTY")

	return s, nil
}

// Output returns the channel of relayed output chunks. It is closed when
// the child exits and the relay drains.
func (s *Session) Output() <-chan string {
	return s.chunks
}

// Done is closed once the child has exited and the relay has finished.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	return State(s.state.Load())
}

// ExitCode returns the child's exit code, valid once Done is closed.
func (s *Session) ExitCode() int {
	return s.exitCode
}

// Relay reads the PTY master until the child exits, writing every byte to
// the real terminal in arrival order, appending a cleaned copy to the
// transcript, and publishing chunks for detection. Run it in its own
// goroutine; it is the sole appender to the transcript.
func (s *Session) Relay() {
	defer func() {
		close(s.chunks)
		s.reap()
		close(s.done)
	}()

	buf := make([]byte, 4096)
	for {
		n, err := s.ptmx.Read(buf)
		if n > 0 {
			chunk := string(buf[:n])

			// The human sees the raw bytes; the transcript gets the
			// cleaned copy so heuristics and "last N" stay readable.
			if _, werr := s.stdout.Write(buf[:n]); werr != nil {
				logger.Error().Err(werr).Msg("Failed to write to terminal")
			}
			s.buffer.Append(cleanChunk(chunk))

			s.chunks <- chunk
		}
		if err != nil {
			// A closed PTY surfaces as EOF or EIO depending on the
			// platform; both mean the child is gone.
			return
		}
	}
}

// Type writes text to the PTY master as if typed by a human, pacing the
// keys, then submits with a carriage return. Only valid while Running.
func (s *Session) Type(text string) error {
	if s.State() != StateRunning {
		return fmt.Errorf("%w (state: %s)", ErrNotRunning, s.State())
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	for _, r := range text {
		if _, err := s.ptmx.WriteString(string(r)); err != nil {
			return fmt.Errorf("failed to type into session: %w", err)
		}
		if s.typeDelay > 0 {
			time.Sleep(s.typeDelay)
		}
	}

	if _, err := s.ptmx.WriteString("\r"); err != nil {
		return fmt.Errorf("failed to submit input: %w", err)
	}

	return nil
}

// Kill terminates the child if it is still running.
func (s *Session) Kill() {
	if s.State() != StateRunning {
		return
	}
	s.state.Store(int32(StateKilled))
	if s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
	}
}

// Close terminates the child if needed and releases the PTY. Safe to call
// more than once.
func (s *Session) Close() error {
	s.Kill()
	if s.stopResize != nil {
		s.stopResize()
		s.stopResize = nil
	}
	if s.ptmx != nil {
		err := s.ptmx.Close()
		s.ptmx = nil
		return err
	}
	return nil
}

// reap collects the child's exit status after the relay has drained.
func (s *Session) reap() {
	if s.cmd == nil {
		if s.State() == StateRunning {
			s.state.Store(int32(StateExited))
		}
		return
	}

	err := s.cmd.Wait()
	s.exitErr = err

	if s.State() == StateRunning {
		s.state.Store(int32(StateExited))
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		s.exitCode = exitErr.ExitCode()
	} else if err != nil {
		s.exitCode = -1
	}

	logger.Debug().
		Int("exit_code", s.exitCode).
		Str("state", s.State().String()).
		Msg("Child exited")
}

// cleanChunk normalizes a relayed chunk line by line for the transcript.
func cleanChunk(chunk string) string {
	lines := strings.Split(chunk, "\n")
	for i, line := range lines {
		lines[i] = detect.Clean(line)
	}
	return strings.Join(lines, "\n")
}
