// Package logging builds the zerolog logger shared by the CLI and engine.
package logging

import (
	"io"
	"time"

	"github.com/rs/zerolog"
)

// New returns a console-formatted logger writing to w.
// Verbose lowers the level to debug, which includes per-query provider logs.
func New(w io.Writer, verbose bool) zerolog.Logger {
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}

	cw := zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}
	return zerolog.New(cw).Level(level).With().Timestamp().Logger()
}
