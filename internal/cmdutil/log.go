// internal/cmdutil/log.go
package cmdutil

import (
	"fmt"
	"io"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger returns a console logger writing to w. verbose enables debug
// output; quiet keeps only errors. quiet wins over verbose.
func NewLogger(w io.Writer, verbose, quiet bool) *zap.Logger {
	level := zapcore.InfoLevel
	switch {
	case quiet:
		level = zapcore.ErrorLevel
	case verbose:
		level = zapcore.DebugLevel
	}
	enc := zap.NewDevelopmentEncoderConfig()
	enc.TimeKey = ""
	enc.CallerKey = ""
	enc.StacktraceKey = ""
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(enc), zapcore.AddSync(w), level)
	return zap.New(core)
}

// Warnf logs a formatted warning unless quiet is set.
func Warnf(log *zap.Logger, quiet bool, format string, a ...any) {
	if quiet || log == nil {
		return
	}
	log.Warn(fmt.Sprintf(format, a...))
}
