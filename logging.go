package stratadb

import (
	"log/slog"
	"os"
)

var logLevel = new(slog.LevelVar)

// ConfigureLogging sets up the default slog logger with a TextHandler, honoring
// the STRATADB_LOG_LEVEL environment variable (DEBUG, WARN, ERROR; default INFO).
// Applications wire this at startup; tests generally leave the default logger alone.
func ConfigureLogging() {
	logLevel.Set(slog.LevelInfo)
	switch os.Getenv("STRATADB_LOG_LEVEL") {
	case "DEBUG":
		logLevel.Set(slog.LevelDebug)
	case "WARN":
		logLevel.Set(slog.LevelWarn)
	case "ERROR":
		logLevel.Set(slog.LevelError)
	}
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	slog.SetDefault(slog.New(handler))
}

// SetLogLevel overrides the level configured by ConfigureLogging.
func SetLogLevel(level slog.Level) {
	logLevel.Set(level)
}
