// Package logging configures the process-wide logrus logger.
package logging

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/skyline93/bundlecache/internal/config"
)

// Setup applies cfg to the standard logger. When the log file cannot be
// prepared the logger falls back to stderr and the problem is logged.
func Setup(cfg config.Log) (*log.Logger, error) {
	level, err := log.ParseLevel(cfg.Level)
	if err != nil {
		return nil, errors.Wrap(err, "parse log level")
	}

	formatter, err := newFormatter(cfg.Format)
	if err != nil {
		return nil, err
	}

	output, outErr := buildOutput(cfg)

	logger := log.StandardLogger()
	logger.SetLevel(level)
	logger.SetFormatter(formatter)
	logger.SetOutput(output)

	if outErr != nil {
		logger.WithField("path", cfg.File).Warnf("logging to stderr: %v", outErr)
	}
	return logger, nil
}

func newFormatter(format string) (log.Formatter, error) {
	switch strings.ToLower(format) {
	case "", "text":
		return &log.TextFormatter{FullTimestamp: true, TimestampFormat: time.RFC3339}, nil
	case "json":
		return &log.JSONFormatter{TimestampFormat: time.RFC3339Nano}, nil
	default:
		return nil, errors.Errorf("unknown log format %q", format)
	}
}

func buildOutput(cfg config.Log) (io.Writer, error) {
	if cfg.File == "" {
		return os.Stderr, nil
	}

	if err := os.MkdirAll(filepath.Dir(cfg.File), 0o755); err != nil {
		return os.Stderr, errors.Wrap(err, "create log directory")
	}

	return &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSize,
		MaxBackups: cfg.MaxBackups,
		Compress:   cfg.Compress,
		LocalTime:  true,
	}, nil
}
