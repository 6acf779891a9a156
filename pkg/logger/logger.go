package logger

import (
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// New creates a structured logger that writes to stdout. Development builds get
// a human readable console writer.
func New(appEnv, level string) zerolog.Logger {
	lvl := zerolog.InfoLevel
	if parsed, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level))); err == nil && parsed != zerolog.NoLevel {
		lvl = parsed
	} else if strings.EqualFold(appEnv, "development") {
		lvl = zerolog.DebugLevel
	}

	log := zerolog.New(os.Stdout).
		Level(lvl).
		With().
		Timestamp().
		Str("service", "studio").
		Logger()

	if strings.EqualFold(appEnv, "development") {
		log = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	}
	return log
}
