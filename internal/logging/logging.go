// Package logging configures the process-wide zerolog logger.
//
// Console output goes to stderr; when a data directory is known, a JSON
// copy of everything at debug level and above is appended to
// <dataDir>/logs/geoai.log so unattended scrape runs can be audited later.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const logFileName = "geoai.log"

// Setup initializes the global logger. Verbose lowers the console level to
// debug. dataDir may be empty, in which case only the console writer is
// installed.
func Setup(dataDir string, verbose bool) error {
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}

	console := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}

	writers := []io.Writer{console}
	if dataDir != "" {
		logDir := filepath.Join(dataDir, "logs")
		if err := os.MkdirAll(logDir, 0o755); err != nil {
			return fmt.Errorf("failed to create log directory: %w", err)
		}
		f, err := os.OpenFile(filepath.Join(logDir, logFileName), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		writers = append(writers, f)
	}

	log.Logger = zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(level).
		With().Timestamp().Logger()
	return nil
}

// Component returns a sublogger tagged with a component name, the way every
// internal package obtains its logger.
func Component(name string) zerolog.Logger {
	return log.With().Str("component", name).Logger()
}
