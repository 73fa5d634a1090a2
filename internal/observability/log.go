// Package observability wires structured logging and Prometheus
// metrics for every steamSentry process.
package observability

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// InitLogging configures the global zerolog logger. Pretty console
// output in development, JSON lines in production — toggled by an
// env var the process's main() reads once at startup.
func InitLogging(component string, pretty bool) {
	zerolog.TimeFieldFormat = time.RFC3339

	var logger zerolog.Logger
	if pretty {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.Kitchen})
	} else {
		logger = zerolog.New(os.Stdout)
	}
	log.Logger = logger.With().Timestamp().Str("component", component).Logger()
}
