// Package logging configures the process-wide zerolog logger.
package logging

import (
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// New returns a JSON logger writing to stdout at the given level.
// Unknown levels fall back to info.
func New(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(os.Stdout).Level(lvl).With().Timestamp().Logger()
}
