// Package logger provides the process-wide structured logger.
package logger

import (
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	defaultLogger zerolog.Logger
	once          sync.Once
	debugMode     bool
)

// Init initializes the default logger. With debug enabled it writes
// human-readable console output at debug level; otherwise JSON at info level.
// It ensures that the logger is initialized only once.
func Init(debug bool) {
	once.Do(func() {
		debugMode = debug
		zerolog.TimeFieldFormat = time.RFC3339
		if debug {
			defaultLogger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
				Level(zerolog.DebugLevel).
				With().Timestamp().Logger()
		} else {
			defaultLogger = zerolog.New(os.Stderr).
				Level(zerolog.InfoLevel).
				With().Timestamp().Logger()
		}
	})
}

// Get returns the initialized default logger.
// It calls Init() to ensure the logger is ready before returning it.
func Get() *zerolog.Logger {
	Init(debugMode)
	return &defaultLogger
}

// Info logs an informational message with alternating key/value args.
func Info(msg string, args ...any) {
	event := Get().Info()
	applyFields(event, args).Msg(msg)
}

// Warn logs a warning message.
func Warn(msg string, args ...any) {
	event := Get().Warn()
	applyFields(event, args).Msg(msg)
}

// Error logs an error message with the error attached.
func Error(msg string, err error, args ...any) {
	event := Get().Error().Err(err)
	applyFields(event, args).Msg(msg)
}

// Debug logs a debug message.
func Debug(msg string, args ...any) {
	event := Get().Debug()
	applyFields(event, args).Msg(msg)
}

func applyFields(event *zerolog.Event, args []any) *zerolog.Event {
	for i := 0; i+1 < len(args); i += 2 {
		key, ok := args[i].(string)
		if !ok {
			continue
		}
		event = event.Interface(key, args[i+1])
	}
	return event
}
