// Package log defines the Logger interface used across settld and the
// context plumbing that carries a configured instance from bootstrap down to
// every handler, worker and reducer boundary. Call sites depend only on this
// interface; the concrete implementation (see zap.go) is constructed once in
// cmd/server and cmd/worker.
package log

import "context"

// Logger is the common logging interface. Every component that needs to log
// takes one of these rather than importing a concrete logging library.
type Logger interface {
	Info(args ...any)
	Infof(format string, args ...any)
	Infoln(args ...any)

	Error(args ...any)
	Errorf(format string, args ...any)
	Errorln(args ...any)

	Warn(args ...any)
	Warnf(format string, args ...any)
	Warnln(args ...any)

	Debug(args ...any)
	Debugf(format string, args ...any)
	Debugln(args ...any)

	Fatal(args ...any)
	Fatalf(format string, args ...any)
	Fatalln(args ...any)

	// WithFields returns a derived Logger that annotates every subsequent
	// entry with the given key/value pairs (args are taken alternately as
	// key, value, matching zap.SugaredLogger.With's convention).
	WithFields(fields ...any) Logger

	Sync() error
}

type contextKey string

const loggerContextKey contextKey = "settld_logger"

// ContextWithLogger returns a context carrying logger as its Logger value.
func ContextWithLogger(ctx context.Context, logger Logger) context.Context {
	return context.WithValue(ctx, loggerContextKey, logger)
}

// FromContext extracts the Logger previously stored by ContextWithLogger. If
// none was stored it returns a NoneLogger so call sites never need a nil
// check.
func FromContext(ctx context.Context) Logger {
	if v := ctx.Value(loggerContextKey); v != nil {
		if l, ok := v.(Logger); ok {
			return l
		}
	}

	return &NoneLogger{}
}
