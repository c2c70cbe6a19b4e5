package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/term"
)

// Setup builds the process logger.
//   - level: trace, debug, info, warn, error, fatal or panic (unknown falls back to info)
//   - format: "pretty" for console output during development, "auto" picks pretty
//     when stdout is a terminal, anything else emits JSON
func Setup(level, format string) zerolog.Logger {
	var out io.Writer = os.Stdout
	if format == "auto" && term.IsTerminal(int(os.Stdout.Fd())) {
		format = "pretty"
	}
	if format == "pretty" {
		out = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}

	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)

	return zerolog.New(out).With().Timestamp().Caller().Str("service", "lms-backend").Logger()
}

// Component derives the sub-logger used by one service, worker or handler.
func Component(log zerolog.Logger, name string) zerolog.Logger {
	return log.With().Str("component", name).Logger()
}
