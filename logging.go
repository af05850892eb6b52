package main

import (
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// newLogger builds the process logger. The TUI owns the terminal, so it logs
// to the configured file; other commands log to stderr.
func newLogger(config *Config, toFile bool) (*logrus.Logger, io.Closer, error) {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, DisableColors: toFile})

	level, err := logrus.ParseLevel(config.LogLevel)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "log level %q", config.LogLevel)
	}
	logger.SetLevel(level)

	if !toFile || config.LogFile == "" {
		logger.SetOutput(os.Stderr)
		return logger, io.NopCloser(nil), nil
	}
	if err := os.MkdirAll(filepath.Dir(config.LogFile), 0o755); err != nil {
		return nil, nil, errors.Wrap(err, "create log directory")
	}
	f, err := os.OpenFile(config.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, errors.Wrap(err, "open log file")
	}
	logger.SetOutput(f)
	return logger, f, nil
}
