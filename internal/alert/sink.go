package alert

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
)

// ErrLedgerWrite marks an Emit failure that happened after the alert was
// already printed and appended to the alert log.
var ErrLedgerWrite = errors.New("alert ledger write failed")

// Sink delivers alerts. Every alert is printed to the console writer and
// appended as one line to the alert log; the log is opened in append mode
// and written without buffering, so lines are durable as soon as Emit
// returns. When a Ledger is attached the alert is also recorded there.
type Sink struct {
	mu      sync.Mutex
	out     io.Writer
	color   bool
	log     *os.File
	logPath string
	ledger  *Ledger
	count   int
}

// SinkOption configures a Sink.
type SinkOption func(*Sink)

// WithConsole overrides the console writer (default os.Stdout).
func WithConsole(w io.Writer) SinkOption {
	return func(s *Sink) {
		s.out = w
		s.color = isTerminal(w)
	}
}

// WithLedger records each alert in l. The sink does not close l.
func WithLedger(l *Ledger) SinkOption {
	return func(s *Sink) { s.ledger = l }
}

// NewSink opens the alert log at logPath, creating it and its directory if
// needed. Existing content is never truncated.
func NewSink(logPath string, opts ...SinkOption) (*Sink, error) {
	if dir := filepath.Dir(logPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create alert log directory: %w", err)
		}
	}
	f, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("open alert log: %w", err)
	}

	s := &Sink{
		out:     os.Stdout,
		color:   isTerminal(os.Stdout),
		log:     f,
		logPath: logPath,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func isTerminal(w io.Writer) bool {
	if color.NoColor {
		return false
	}
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// Emit prints a and appends it to the alert log. A console write failure is
// ignored and a failed log append is returned. A failed ledger insert is
// returned wrapped in ErrLedgerWrite; the alert itself was delivered.
func (s *Sink) Emit(ctx context.Context, a Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.log == nil {
		return fmt.Errorf("alert sink %s is closed", s.logPath)
	}
	msg := a.Message()

	if s.out != nil {
		if s.color {
			c := color.New(color.FgRed, color.Bold)
			c.EnableColor()
			fmt.Fprintln(s.out, c.Sprint(msg))
		} else {
			fmt.Fprintln(s.out, msg)
		}
	}

	if _, err := s.log.WriteString(msg + "\n"); err != nil {
		return fmt.Errorf("append to alert log %s: %w", s.logPath, err)
	}
	s.count++

	if s.ledger != nil {
		if _, err := s.ledger.Record(ctx, a); err != nil {
			return fmt.Errorf("%w: %w", ErrLedgerWrite, err)
		}
	}
	return nil
}

// Count returns the number of alerts written to the log.
func (s *Sink) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

// LogPath returns the alert log location.
func (s *Sink) LogPath() string {
	return s.logPath
}

// Close closes the alert log.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.log == nil {
		return nil
	}
	err := s.log.Close()
	s.log = nil
	return err
}

// TailLog returns the last n lines of the alert log at path, oldest first.
// A missing file yields no lines.
func TailLog(path string, n int) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open alert log: %w", err)
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if scanner.Text() == "" {
			continue
		}
		lines = append(lines, scanner.Text())
		if n > 0 && len(lines) > n {
			lines = lines[1:]
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read alert log: %w", err)
	}
	return lines, nil
}
