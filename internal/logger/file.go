package logger

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"
)

// RotationConfig controls rotation of the diagnostic log file.
type RotationConfig struct {
	MaxSizeMB  int // Rotate once the file reaches this size (default: 10)
	MaxBackups int // Rotated files to keep (default: 3)
	MaxAgeDays int // Days to keep rotated files (default: 28)
	Compress   bool
}

// DefaultRotationConfig returns the default rotation settings.
func DefaultRotationConfig() RotationConfig {
	return RotationConfig{
		MaxSizeMB:  10,
		MaxBackups: 3,
		MaxAgeDays: 28,
	}
}

// FileLogger is a ConsoleLogger over a size-rotated file. It is meant for
// diagnostics only; the alert log is never rotated.
type FileLogger struct {
	*ConsoleLogger
	out  *lumberjack.Logger
	path string
}

// NewFileLogger opens (or creates) path for diagnostics at logLevel, rotating
// it according to rc.
func NewFileLogger(path string, logLevel string, rc RotationConfig) (*FileLogger, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	out := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    rc.MaxSizeMB,
		MaxBackups: rc.MaxBackups,
		MaxAge:     rc.MaxAgeDays,
		LocalTime:  true,
		Compress:   rc.Compress,
	}

	return &FileLogger{
		ConsoleLogger: NewConsoleLogger(out, logLevel),
		out:           out,
		path:          path,
	}, nil
}

// Path returns the log file path.
func (fl *FileLogger) Path() string {
	return fl.path
}

// Close flushes and closes the underlying file.
func (fl *FileLogger) Close() error {
	return fl.out.Close()
}
