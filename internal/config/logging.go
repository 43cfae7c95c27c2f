package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the application logger. The TUI owns the terminal, so it writes
// to a file once InitLogger has run.
//
//nolint:gochecknoglobals // application-wide structured logging
var Logger = zerolog.Nop()

var (
	logMu   sync.Mutex
	logFile *os.File
)

// InitLogger points Logger at path (or at w when path is empty) with the
// given level. Unknown levels fall back to info.
func InitLogger(level, path string, w io.Writer) error {
	logMu.Lock()
	defer logMu.Unlock()

	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}

	closeLogFileLocked()

	out := w
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return fmt.Errorf("create log dir: %w", err)
		}
		f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		logFile = f
		out = f
	}
	if out == nil {
		out = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	}

	Logger = zerolog.New(out).
		Level(lvl).
		With().
		Timestamp().
		Logger()
	return nil
}

// CloseLogFile closes the log file, if any, and silences Logger.
func CloseLogFile() {
	logMu.Lock()
	defer logMu.Unlock()
	closeLogFileLocked()
}

func closeLogFileLocked() {
	if logFile != nil {
		_ = logFile.Close()
		logFile = nil
		Logger = zerolog.Nop()
	}
}
