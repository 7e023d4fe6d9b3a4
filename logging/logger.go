package logging

import (
	"os"

	"github.com/rs/zerolog"
)

// EnvLevel names the environment variable holding the initial log level.
const EnvLevel = "CONTRACTSIM_LOG"

var RootLogger zerolog.Logger = zerolog.New(
	zerolog.NewConsoleWriter(
		func(w *zerolog.ConsoleWriter) { w.Out = os.Stderr },
		func(w *zerolog.ConsoleWriter) { w.TimeFormat = "15:04:05.000" })).Level(levelFromEnv()).
	With().Timestamp().Logger()

func levelFromEnv() zerolog.Level {
	level, err := zerolog.ParseLevel(os.Getenv(EnvLevel))
	if err != nil || level == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return level
}

// SetLevel changes the level of RootLogger, e.g. "debug" or "warn". Loggers
// derived from RootLogger before the call keep their level.
func SetLevel(name string) error {
	level, err := zerolog.ParseLevel(name)
	if err != nil {
		return err
	}
	RootLogger = RootLogger.Level(level)
	return nil
}
