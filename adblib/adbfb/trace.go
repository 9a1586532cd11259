package adbfb

import "log/slog"

var debug = slog.New(slog.DiscardHandler)

// Trace enables debug logging to the specified logger.
func Trace(logger *slog.Logger) {
	debug = logger
}
