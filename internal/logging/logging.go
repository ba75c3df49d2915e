// Package logging builds the zap logger shared by the CLI and the server.
package logging

import (
	"io"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ParseLevel turns a user-provided level string into a zapcore.Level,
// falling back to info for blank or unknown values.
func ParseLevel(levelStr string) zapcore.Level {
	if levelStr == "" {
		return zapcore.InfoLevel
	}
	lvl, err := zapcore.ParseLevel(strings.ToLower(levelStr))
	if err != nil {
		return zapcore.InfoLevel
	}
	return lvl
}

// New creates a console-encoded logger writing to w. It does not replace the
// global logger, allowing for isolated logger instances.
func New(w io.Writer, levelStr string) *zap.Logger {
	encCfg := zap.NewDevelopmentEncoderConfig()
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
	encCfg.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")

	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encCfg),
		zapcore.AddSync(w),
		zap.NewAtomicLevelAt(ParseLevel(levelStr)),
	)
	return zap.New(core)
}
