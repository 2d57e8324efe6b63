// Package log provides structured logging for the indexer.
package log

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the global logger instance.
var Logger zerolog.Logger

// Component loggers for each part of the indexing pipeline.
var (
	Indexer     zerolog.Logger
	Fetcher     zerolog.Logger
	RPC         zerolog.Logger
	Inscription zerolog.Logger
	BRC20       zerolog.Logger
	BRC20S      zerolog.Logger
	Storage     zerolog.Logger
	API         zerolog.Logger
)

func init() {
	Logger = NewConsoleLogger(os.Stdout, "info")
	initComponentLoggers()
}

// Init initializes the logger with the given configuration. When file is
// non-empty, logs go to both the console (colored or JSON per jsonOutput)
// and the file (always JSON, for machine parsing).
func Init(level string, jsonOutput bool, file string) error {
	if file != "" {
		f, err := os.OpenFile(file, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return err
		}

		lvl := parseLevel(level)

		var consoleWriter io.Writer
		if jsonOutput {
			consoleWriter = os.Stdout
		} else {
			consoleWriter = zerolog.ConsoleWriter{
				Out:        os.Stdout,
				TimeFormat: "15:04:05",
				NoColor:    false,
			}
		}

		multi := zerolog.MultiLevelWriter(consoleWriter, f)
		Logger = zerolog.New(multi).
			Level(lvl).
			With().
			Timestamp().
			Logger()
	} else if jsonOutput {
		Logger = NewJSONLogger(os.Stdout, level)
	} else {
		Logger = NewConsoleLogger(os.Stdout, level)
	}

	initComponentLoggers()
	return nil
}

// NewConsoleLogger creates a colored console logger.
func NewConsoleLogger(w io.Writer, level string) zerolog.Logger {
	output := zerolog.ConsoleWriter{
		Out:        w,
		TimeFormat: "15:04:05",
		NoColor:    false,
	}
	return zerolog.New(output).
		Level(parseLevel(level)).
		With().
		Timestamp().
		Logger()
}

// NewJSONLogger creates a structured JSON logger.
func NewJSONLogger(w io.Writer, level string) zerolog.Logger {
	return zerolog.New(w).
		Level(parseLevel(level)).
		With().
		Timestamp().
		Logger()
}

func parseLevel(level string) zerolog.Level {
	switch level {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

func initComponentLoggers() {
	Indexer = Logger.With().Str("component", "indexer").Logger()
	Fetcher = Logger.With().Str("component", "fetcher").Logger()
	RPC = Logger.With().Str("component", "rpc").Logger()
	Inscription = Logger.With().Str("component", "inscription").Logger()
	BRC20 = Logger.With().Str("component", "brc20").Logger()
	BRC20S = Logger.With().Str("component", "brc20s").Logger()
	Storage = Logger.With().Str("component", "storage").Logger()
	API = Logger.With().Str("component", "api").Logger()
}

// WithComponent returns a logger tagged with an arbitrary component name.
func WithComponent(name string) zerolog.Logger {
	return Logger.With().Str("component", name).Logger()
}

// Debug logs a debug message.
func Debug() *zerolog.Event { return Logger.Debug() }

// Info logs an info message.
func Info() *zerolog.Event { return Logger.Info() }

// Warn logs a warning message.
func Warn() *zerolog.Event { return Logger.Warn() }

// Error logs an error message.
func Error() *zerolog.Event { return Logger.Error() }

// Fatal logs a fatal message and exits.
func Fatal() *zerolog.Event { return Logger.Fatal() }

// Benchmark times an operation, logging its duration when the returned
// func is called.
func Benchmark(name string) func() {
	start := time.Now()
	return func() {
		Logger.Debug().
			Str("operation", name).
			Dur("duration", time.Since(start)).
			Msg("benchmark")
	}
}
