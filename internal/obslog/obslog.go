// Package obslog configures the zerolog logger shared by every package,
// replacing the teacher's stdlib log.Printf/log/slog usage with the
// structured logger the rest of the example pack reaches for
// (gmonarque-lighthouse's relay server).
package obslog

import (
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// New builds the process-wide zerolog.Logger. levelName is typically sourced
// from an env var (e.g. "debug", "info"); an unrecognized or empty value
// falls back to info.
func New(levelName string) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(levelName))
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}
