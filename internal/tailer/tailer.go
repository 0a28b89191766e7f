// Package tailer follows a text file that another process appends to,
// yielding each complete line exactly once.
package tailer

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/harrison/driftwatch/internal/logger"
)

// DefaultPollInterval is how often the file is checked for new content.
const DefaultPollInterval = 500 * time.Millisecond

// Tailer reads newly appended lines from a file by polling. It tracks the
// byte offset of everything consumed and holds back a trailing partial line
// until its newline arrives. It is used by a single goroutine.
type Tailer struct {
	path         string
	pollInterval time.Duration
	notify       bool
	log          logger.Logger

	file    *os.File
	offset  int64
	pending []byte
}

// Option configures a Tailer.
type Option func(*Tailer)

// WithPollInterval overrides DefaultPollInterval.
func WithPollInterval(d time.Duration) Option {
	return func(t *Tailer) {
		if d > 0 {
			t.pollInterval = d
		}
	}
}

// WithNotify enables an fsnotify watch on the file's directory; a write to
// the file triggers an early poll. The ticker keeps running either way.
func WithNotify(enabled bool) Option {
	return func(t *Tailer) { t.notify = enabled }
}

// WithLogger sets the diagnostic logger.
func WithLogger(l logger.Logger) Option {
	return func(t *Tailer) {
		if l != nil {
			t.log = l
		}
	}
}

// New creates a Tailer for path starting at offset 0.
func New(path string, opts ...Option) *Tailer {
	t := &Tailer{
		path:         path,
		pollInterval: DefaultPollInterval,
		log:          logger.Nop{},
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Path returns the followed file.
func (t *Tailer) Path() string {
	return t.path
}

// Offset returns the number of bytes consumed so far.
func (t *Tailer) Offset() int64 {
	return t.offset
}

// PollInterval returns the polling period.
func (t *Tailer) PollInterval() time.Duration {
	return t.pollInterval
}

// Poll performs one read cycle and returns the complete lines appended since
// the previous cycle. A trailing line without a newline is kept for the next
// cycle. On error the handle is dropped and reopened on the next call; no
// consumed bytes are lost.
func (t *Tailer) Poll() ([]string, error) {
	if err := t.ensureOpen(); err != nil {
		return nil, err
	}

	info, err := t.file.Stat()
	if err != nil {
		t.closeFile()
		return nil, fmt.Errorf("stat %s: %w", t.path, err)
	}

	if t.replaced(info) {
		t.log.LogWarn(fmt.Sprintf("%s was replaced; reading new file from the start", t.path))
		t.closeFile()
		t.reset()
		if err := t.ensureOpen(); err != nil {
			return nil, err
		}
		if info, err = t.file.Stat(); err != nil {
			t.closeFile()
			return nil, fmt.Errorf("stat %s: %w", t.path, err)
		}
	}

	size := info.Size()
	if size < t.offset {
		t.log.LogWarn(fmt.Sprintf("%s was truncated (size %d < offset %d); reading from the start", t.path, size, t.offset))
		t.reset()
	}
	if size == t.offset {
		return nil, nil
	}

	if _, err := t.file.Seek(t.offset, io.SeekStart); err != nil {
		t.closeFile()
		return nil, fmt.Errorf("seek %s: %w", t.path, err)
	}
	chunk, err := io.ReadAll(io.LimitReader(t.file, size-t.offset))
	if err != nil {
		t.closeFile()
		return nil, fmt.Errorf("read %s: %w", t.path, err)
	}
	t.offset += int64(len(chunk))

	return t.split(chunk), nil
}

// Follow polls until ctx is done, passing each new line to handle in file
// order. Cancellation is checked between cycles, so the lines of the cycle in
// flight are always delivered. Read errors are logged and retried. Follow
// returns nil once ctx is done.
func (t *Tailer) Follow(ctx context.Context, handle func(line string)) error {
	defer t.Close()

	wake, stop := t.watch()
	defer stop()

	ticker := time.NewTicker(t.pollInterval)
	defer ticker.Stop()

	for {
		lines, err := t.Poll()
		if err != nil {
			t.log.LogWarn(fmt.Sprintf("Error reading log file: %v", err))
		}
		for _, line := range lines {
			handle(line)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		case <-wake:
		}
	}
}

// Drain returns and clears the held-back partial line. It is used at end of
// input, when no newline will follow.
func (t *Tailer) Drain() string {
	line := string(bytes.TrimRight(t.pending, "\r"))
	t.pending = nil
	if len(bytes.TrimSpace([]byte(line))) == 0 {
		return ""
	}
	return line
}

// Close releases the file handle. The offset is kept.
func (t *Tailer) Close() error {
	if t.file == nil {
		return nil
	}
	err := t.file.Close()
	t.file = nil
	return err
}

func (t *Tailer) ensureOpen() error {
	if t.file != nil {
		return nil
	}
	f, err := os.OpenFile(t.path, os.O_RDONLY|os.O_CREATE, 0644)
	if err != nil {
		return fmt.Errorf("open %s: %w", t.path, err)
	}
	t.file = f
	return nil
}

func (t *Tailer) closeFile() {
	if t.file != nil {
		t.file.Close()
		t.file = nil
	}
}

func (t *Tailer) reset() {
	t.offset = 0
	t.pending = nil
}

// replaced reports whether the path now names a different file than the
// open handle (rotation or delete-and-recreate).
func (t *Tailer) replaced(open os.FileInfo) bool {
	current, err := os.Stat(t.path)
	if err != nil {
		return false
	}
	return !os.SameFile(open, current)
}

// split prefixes the held-back partial line, returns every complete
// non-empty line and keeps the remainder.
func (t *Tailer) split(chunk []byte) []string {
	data := chunk
	if len(t.pending) > 0 {
		data = append(t.pending, chunk...)
		t.pending = nil
	}

	var lines []string
	for {
		i := bytes.IndexByte(data, '\n')
		if i < 0 {
			break
		}
		line := bytes.TrimRight(data[:i], "\r")
		data = data[i+1:]
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		lines = append(lines, string(line))
	}

	if len(data) > 0 {
		t.pending = append([]byte(nil), data...)
	}
	return lines
}

// watch starts the optional fsnotify watch. The returned channel is nil (never
// ready) when notifications are disabled or unavailable.
func (t *Tailer) watch() (<-chan struct{}, func()) {
	if !t.notify {
		return nil, func() {}
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		t.log.LogWarn(fmt.Sprintf("File notifications unavailable, polling only: %v", err))
		return nil, func() {}
	}
	dir := filepath.Dir(t.path)
	if err := w.Add(dir); err != nil {
		t.log.LogWarn(fmt.Sprintf("Cannot watch %s, polling only: %v", dir, err))
		w.Close()
		return nil, func() {}
	}

	target := filepath.Clean(t.path)
	wake := make(chan struct{}, 1)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-done:
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != target || !ev.Has(fsnotify.Write|fsnotify.Create) {
					continue
				}
				select {
				case wake <- struct{}{}:
				default:
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				t.log.LogDebug(fmt.Sprintf("file notification error: %v", err))
			}
		}
	}()

	return wake, func() {
		close(done)
		w.Close()
	}
}
