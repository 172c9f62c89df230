package cell

import "log/slog"

// defaultLogger is used by cells created without WithLogger.
// nil means slog.Default().
var defaultLogger *slog.Logger

// SetLogger sets the logger used by cells that were not given one.
// Call it at startup, before cells start notifying.
func SetLogger(l *slog.Logger) {
	defaultLogger = l
}

func resolveLogger(l *slog.Logger) *slog.Logger {
	if l != nil {
		return l
	}
	if defaultLogger != nil {
		return defaultLogger
	}
	return slog.Default()
}
