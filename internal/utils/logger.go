package utils

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/encodeous/tint"
	slogmulti "github.com/samber/slog-multi"
)

// NewLogger logs to stderr in colour and, when logDir is set, to a
// timestamped text file in logDir. The returned closer flushes that file.
func NewLogger(level slog.Level, logDir string) (*slog.Logger, io.Closer, error) {
	return newLogger(os.Stderr, level, logDir, time.Now())
}

func newLogger(console io.Writer, level slog.Level, logDir string, now time.Time) (*slog.Logger, io.Closer, error) {
	handlers := []slog.Handler{
		tint.NewHandler(console, &tint.Options{
			Level:      level,
			AddSource:  false,
			TimeFormat: "15:04:05.000",
		}),
	}
	var closer io.Closer = nopCloser{}
	if logDir != "" {
		if err := os.MkdirAll(logDir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("create log dir: %w", err)
		}
		name := filepath.Join(logDir, "log_"+now.Format("2006-01-02_15-04-05")+".log")
		f, err := os.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		handlers = append(handlers, slog.NewTextHandler(f, &slog.HandlerOptions{Level: level}))
		closer = f
	}
	return slog.New(slogmulti.Fanout(handlers...)), closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
