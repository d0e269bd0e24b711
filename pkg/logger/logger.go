// Package logger provides structured logging construction for the token
// service binaries with configurable level, format, and destination.
package logger

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
)

const timestampFormat = "2006-01-02T15:04:05.000Z07:00"

// New creates a configured logrus logger. level is one of
// trace/debug/info/warn/error (unknown values fall back to info), format
// selects "json" or "text", and output selects "stdout", "stderr", or a
// file path opened for appending.
func New(level, format, output string) *logrus.Logger {
	log := logrus.New()

	logLevel, err := logrus.ParseLevel(strings.ToLower(level))
	if err != nil {
		logLevel = logrus.InfoLevel
	}
	log.SetLevel(logLevel)

	if strings.EqualFold(format, "text") {
		log.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: timestampFormat,
		})
	} else {
		log.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: timestampFormat,
		})
	}

	setOutput(log, output)
	return log
}

func setOutput(log *logrus.Logger, output string) {
	switch strings.ToLower(output) {
	case "", "stdout":
		log.SetOutput(os.Stdout)
	case "stderr":
		log.SetOutput(os.Stderr)
	default:
		// Reject paths that escape the working directory.
		cleanPath := filepath.Clean(output)
		if strings.Contains(cleanPath, "..") {
			log.SetOutput(os.Stderr)
			log.Warn("Log file path contains '..', using stderr")
			return
		}

		file, fileErr := os.OpenFile(cleanPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if fileErr != nil {
			log.SetOutput(os.Stderr)
			log.WithError(fileErr).Warn("Failed to open log file, using stderr")
			return
		}
		log.SetOutput(file)
	}
}
