// Package transcript maintains the durable record of everything a watched
// child process has printed, plus a bounded in-memory tail used to build
// advisor context without re-reading the file.
package transcript

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/ihavespoons/seance/internal/logger"
)

// Buffer is the append-only transcript. The relay goroutine is the only
// writer; readers take the same mutex so a partial line is never observed.
type Buffer struct {
	path      string
	tailLimit int

	mu      sync.Mutex
	file    *os.File
	tail    []string
	partial string
	diskOK  bool
}

// Open opens (creating if needed) the transcript buffer at path. tailLimit
// bounds the in-memory tail; values < 1 fall back to 200 lines.
func Open(path string, tailLimit int) (*Buffer, error) {
	if tailLimit < 1 {
		tailLimit = 200
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create buffer directory: %w", err)
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open buffer file: %w", err)
	}

	return &Buffer{
		path:      path,
		tailLimit: tailLimit,
		file:      file,
		diskOK:    true,
	}, nil
}

// Path returns the buffer file path.
func (b *Buffer) Path() string {
	return b.path
}

// Append writes chunk to the persisted log and to the in-memory tail. A
// failed disk write is reported once and the in-memory tail still updates;
// the watch loop must keep running on a full disk.
func (b *Buffer) Append(chunk string) {
	if chunk == "" {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.file != nil {
		if _, err := b.file.WriteString(chunk); err != nil {
			if b.diskOK {
				b.diskOK = false
				logger.Error().Err(err).Str("path", b.path).Msg("Transcript write failed, in-memory tail only")
			}
		} else if !b.diskOK {
			b.diskOK = true
		}
	}

	b.appendTailLocked(chunk)
}

// AppendLine appends a single line, adding the trailing newline.
func (b *Buffer) AppendLine(line string) {
	b.Append(line + "\n")
}

func (b *Buffer) appendTailLocked(chunk string) {
	b.partial += chunk
	for {
		idx := strings.IndexByte(b.partial, '\n')
		if idx < 0 {
			break
		}
		b.tail = append(b.tail, b.partial[:idx])
		b.partial = b.partial[idx+1:]
	}

	if len(b.tail) > b.tailLimit {
		b.tail = b.tail[len(b.tail)-b.tailLimit:]
	}
}

// Tail returns up to n of the most recent lines, oldest first. It reads from
// the persisted file so "last N" works across restarts; when the file is
// unreadable it falls back to the in-memory tail.
func (b *Buffer) Tail(n int) []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	if n < 1 {
		return nil
	}

	lines, err := readLastLines(b.path, n)
	if err == nil {
		return lines
	}

	if len(b.tail) <= n {
		out := make([]string, len(b.tail))
		copy(out, b.tail)
		return out
	}
	out := make([]string, n)
	copy(out, b.tail[len(b.tail)-n:])
	return out
}

// TailString returns the last n lines joined with newlines.
func (b *Buffer) TailString(n int) string {
	return strings.Join(b.Tail(n), "\n")
}

// Clear truncates both the persisted log and the in-memory state. Idempotent.
func (b *Buffer) Clear() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.tail = nil
	b.partial = ""

	if b.file != nil {
		_ = b.file.Close()
	}
	file, err := os.OpenFile(b.path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		b.file = nil
		return fmt.Errorf("failed to truncate buffer: %w", err)
	}
	b.file = file
	b.diskOK = true
	return nil
}

// IsEmpty reports whether the transcript has no content at all.
func (b *Buffer) IsEmpty() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.tail) > 0 || b.partial != "" {
		return false
	}

	info, err := os.Stat(b.path)
	if err != nil {
		return true
	}
	return info.Size() == 0
}

// Stats returns the persisted line count and byte size.
func (b *Buffer) Stats() (lines int, size int64, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	info, err := os.Stat(b.path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, 0, nil
		}
		return 0, 0, err
	}

	file, err := os.Open(b.path)
	if err != nil {
		return 0, info.Size(), err
	}
	defer func() { _ = file.Close() }()

	buf := make([]byte, 32*1024)
	for {
		n, readErr := file.Read(buf)
		lines += bytes.Count(buf[:n], []byte{'\n'})
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return lines, info.Size(), readErr
		}
	}

	return lines, info.Size(), nil
}

// Close flushes and closes the underlying file.
func (b *Buffer) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.file == nil {
		return nil
	}
	err := b.file.Close()
	b.file = nil
	return err
}

// readLastLines reads the final n lines of the file at path without loading
// the whole file, scanning backwards in fixed-size blocks.
func readLastLines(path string, n int) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = file.Close() }()

	info, err := file.Stat()
	if err != nil {
		return nil, err
	}

	size := info.Size()
	if size == 0 {
		return nil, nil
	}

	const blockSize = 32 * 1024
	var collected []byte
	offset := size

	for offset > 0 {
		readSize := int64(blockSize)
		if offset < readSize {
			readSize = offset
		}
		offset -= readSize

		block := make([]byte, readSize)
		if _, err := file.ReadAt(block, offset); err != nil {
			return nil, err
		}
		collected = append(block, collected...)

		// +1: the final newline terminates the last line rather than
		// delimiting an extra one.
		if bytes.Count(collected, []byte{'\n'}) > n {
			break
		}
	}

	text := strings.TrimSuffix(string(collected), "\n")
	if text == "" {
		return nil, nil
	}
	lines := strings.Split(text, "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return lines, nil
}
