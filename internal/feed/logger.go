package feed

import "log/slog"

// Logger is what the store logs through. Arguments after msg are slog
// key/value pairs, so a *slog.Logger can be passed as is.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

var _ Logger = (*slog.Logger)(nil)

// discardLogger is the store's logger when Options.Logger is nil.
func discardLogger() Logger {
	return slog.New(slog.DiscardHandler)
}
