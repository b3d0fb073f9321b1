// Package logging configures the process-wide logrus logger.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/mrzeku2000XTTT/FluxKmail/internal/model"
)

// Setup points logrus at cfg.File (or fallback when File is empty) and
// sets the level. The returned closer releases the log file.
func Setup(cfg model.LogConfig, fallback io.Writer) (io.Closer, error) {
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
		DisableColors: cfg.File != "",
	})

	if cfg.File == "" {
		logrus.SetOutput(fallback)
		return io.NopCloser(nil), nil
	}

	if err := os.MkdirAll(filepath.Dir(cfg.File), 0o755); err != nil {
		return nil, fmt.Errorf("creating log directory: %w", err)
	}
	f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("opening log file %s: %w", cfg.File, err)
	}
	logrus.SetOutput(f)
	return f, nil
}

// Error logs err with its category and extra fields.
func Error(errorType string, err error, fields logrus.Fields) {
	entry := logrus.WithFields(logrus.Fields{
		"error_type": errorType,
		"error":      err.Error(),
	})
	entry.WithFields(fields).Error("operation failed")
}
