// Package logging wires the proxy's shared zerolog logger using a
// console-writer + DEBUG-toggle pattern, with the level additionally
// settable from --debug rather than only the environment.
package logging

import (
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// New builds the base logger. debug forces DebugLevel; otherwise the DEBUG
// environment variable is honoured, then InfoLevel.
func New(debug bool) zerolog.Logger {
	level := zerolog.InfoLevel
	if debug || strings.EqualFold(os.Getenv("DEBUG"), "true") {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}).
		Level(level).
		With().
		Timestamp().
		Logger()
}
