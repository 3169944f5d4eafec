package logging

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"nova_bridge/pkg/config"

	"gopkg.in/natefinch/lumberjack.v2"
)

// LevelTrace sits below debug and is used for full payload dumps.
const LevelTrace = slog.Level(-8)

const defaultLogFile = "nova_bridge.log"
const (
	maxLogSizeMB  = 5
	maxLogBackups = 5
	maxLogAgeDays = 14
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// Init configures slog from the config and installs it as the default logger.
// With verbose logging disabled every entry is discarded. log_file "-" writes
// to stderr instead of a rotating file. The returned closer releases the file.
func Init(cfg config.Config) (*slog.Logger, io.Closer, error) {
	level := parseLogLevel(cfg.LogLevel)
	handlerOptions := &slog.HandlerOptions{Level: level}

	if !cfg.VerboseLogging {
		logger := slog.New(newHandler(cfg.LogFormat, io.Discard, handlerOptions))
		slog.SetDefault(logger)
		return logger, nopCloser{}, nil
	}

	logPath := strings.TrimSpace(cfg.LogFile)
	if logPath == "-" {
		logger := slog.New(newHandler(cfg.LogFormat, os.Stderr, handlerOptions))
		slog.SetDefault(logger)
		return logger, nopCloser{}, nil
	}
	if logPath == "" {
		logPath = defaultLogPath()
	}
	if err := os.MkdirAll(filepath.Dir(logPath), 0700); err != nil {
		logger := slog.New(newHandler(cfg.LogFormat, io.Discard, handlerOptions))
		slog.SetDefault(logger)
		return logger, nopCloser{}, err
	}

	writer := &lumberjack.Logger{
		Filename:   logPath,
		MaxSize:    maxLogSizeMB,
		MaxBackups: maxLogBackups,
		MaxAge:     maxLogAgeDays,
		Compress:   true,
	}

	logger := slog.New(newHandler(cfg.LogFormat, writer, handlerOptions))
	slog.SetDefault(logger)
	return logger, writer, nil
}

// Discard returns a logger that drops every entry.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func defaultLogPath() string {
	return filepath.Join(config.Dir(), "logs", defaultLogFile)
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace":
		return LevelTrace
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func newHandler(format string, out io.Writer, opts *slog.HandlerOptions) slog.Handler {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "text":
		return slog.NewTextHandler(out, opts)
	default:
		return slog.NewJSONHandler(out, opts)
	}
}
