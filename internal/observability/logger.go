package observability

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

// NewLogger creates the root structured logger for a service binary.
// Unknown levels fall back to info.
func NewLogger(service, level string) zerolog.Logger {
	return newLogger(os.Stdout, service, level)
}

func newLogger(w io.Writer, service, level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(w).
		Level(lvl).
		With().
		Timestamp().
		Str("service", service).
		Logger()
}

// CronLogger adapts a zerolog.Logger to the cron.Logger interface
type CronLogger struct {
	log zerolog.Logger
}

// NewCronLogger wraps log for use with cron.WithLogger and cron job wrappers
func NewCronLogger(log zerolog.Logger) CronLogger {
	return CronLogger{log: log.With().Str("component", "cron").Logger()}
}

// Info logs routine scheduler messages at debug level; cron is chatty
func (l CronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug().Fields(keysAndValues).Msg(msg)
}

// Error logs scheduler errors
func (l CronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
