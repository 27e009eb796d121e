// Package wkblog configures the process-wide zerolog logger.
package wkblog

import (
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Init sets up console-formatted logging on stderr with unix timestamps,
// mirroring the bootstrap sequence of the supervised desktop workbench.
func Init(debug bool) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
}

// InitWith redirects output to an arbitrary writer, used by tests that want
// to capture log lines instead of writing to stderr.
func InitWith(w io.Writer) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = zerolog.New(w).With().Timestamp().Logger()
}

// For returns a child logger scoped to a subsystem component name.
func For(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}
