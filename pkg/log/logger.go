// Package log provides structured logging for croptrain training runs.
//
// The package is built on log/slog with a handler that knows how to extract
// cockroachdb/errors stack traces, plus a zerolog bridge for the library-wide
// warning system in pkg/errors. Attribute keys for the convergence domain are
// defined in attributes.go so run logs stay greppable across drivers.
package log

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/rs/zerolog"

	"github.com/RALE0/croptrain/pkg/errors"
)

// SetupLogger installs a JSON slog default logger at the given level.
func SetupLogger(loglevel string) {
	ops := slog.HandlerOptions{
		AddSource: true,
		Level:     ToLogLevel(loglevel),
	}
	handler := slog.NewJSONHandler(os.Stdout, &ops)
	errFmtHandler := WrapByErrFmtHandler(handler)
	slog.SetDefault(slog.New(errFmtHandler))
}

// ToLogLevel converts a level name to a slog.Level.
func ToLogLevel(level string) slog.Level {
	switch level {
	case "info":
		return slog.LevelInfo
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		panic(fmt.Sprintf("invalid log level :%s", level))
	}
}

const (
	ErrAttrKey        = "error"
	StacktraceAttrKey = "stacktrace"
)

// ErrAttr is a wrapper to pass err to slog.
func ErrAttr(err error) slog.Attr {
	return slog.Any(ErrAttrKey, err)
}

// InstallWarningBridge routes pkg/errors warnings into the given zerolog
// logger. Warning types that implement zerolog.LogObjectMarshaler are emitted
// as structured objects; anything else falls back to the error message.
func InstallWarningBridge(logger zerolog.Logger) {
	errors.SetZerologWarnFunc(func(warning error) {
		ev := logger.Warn()
		if obj, ok := warning.(zerolog.LogObjectMarshaler); ok {
			ev.Object("warning", obj).Msg(warning.Error())
			return
		}
		ev.Err(warning).Msg("training warning")
	})
}
