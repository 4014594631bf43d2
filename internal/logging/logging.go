package logging

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

// New builds the root logger. Dev gets a console writer, everything else
// emits JSON for log shipping.
func New(env, service string) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339

	var logger zerolog.Logger
	if env == "dev" {
		out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}
		logger = zerolog.New(out)
	} else {
		logger = zerolog.New(os.Stderr)
	}

	return logger.With().
		Timestamp().
		Str("service", service).
		Logger()
}
