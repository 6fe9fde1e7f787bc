// Package applog provides the single process-wide diagnostics logger for
// git-lfs-synology. The agent's stdout is the Git LFS protocol channel
// (internal/lfsproto), so all diagnostics go to a day-stamped file instead,
// never to stdout and never, outside of CLI subcommands, to stderr either.
package applog

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/ucsd-e4e/git-lfs-synology/internal/config"
)

// Init opens (creating if needed) today's log file under config.ConfigDir
// and returns a *slog.Logger writing text-handler records to it, plus the
// *os.File the caller should Close on exit. A file sink rather than stderr,
// since stderr is left free for interactive CLI subcommand prompts and
// errors, and stdout is reserved entirely for the protocol stream.
func Init(level slog.Level) (*slog.Logger, io.Closer, error) {
	path := config.LogFilePath(time.Now().Format("2006-01-02"))
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, nil, fmt.Errorf("applog: create log dir: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, nil, fmt.Errorf("applog: open log file: %w", err)
	}

	handler := slog.NewTextHandler(f, &slog.HandlerOptions{Level: level})
	return slog.New(handler), f, nil
}

// Discard returns a logger that drops all records, for tests and any code
// path that runs before Init (or chooses not to log).
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
