// Package logging configures the process-wide zerolog logger.
package logging

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Init builds the service logger with dual sinks: a console writer on stderr
// and a rotating file under logDir. An empty logDir disables the file sink.
func Init(verbose bool, logDir string) zerolog.Logger {
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}

	isTerminal := isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd())
	console := zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.RFC3339,
		NoColor:    !isTerminal,
	}

	var sink io.Writer = console
	if logDir != "" {
		if err := os.MkdirAll(logDir, 0o755); err == nil {
			file := &lumberjack.Logger{
				Filename:   filepath.Join(logDir, "driftsync.log"),
				MaxSize:    16, // megabytes
				MaxBackups: 8,
				MaxAge:     90, // days
				Compress:   true,
			}
			sink = zerolog.MultiLevelWriter(console, file)
		}
	}

	return zerolog.New(sink).Level(level).With().Timestamp().Logger()
}
