// Package logging builds the zap logger shared by the CLI commands.
//
// Logs go to stderr so stdout stays free for command output such as the
// device listing and the self-test report. Messages are snake_case event
// names with structured fields:
//
//	logger.Info("session_state", zap.String("state", "playing"))
package logging

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	FormatConsole = "console"
	FormatJSON    = "json"
)

// ParseLevel maps a level name to a zap level. Empty means info. The
// second result is false for unknown names, which also map to info.
func ParseLevel(raw string) (zapcore.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "info":
		return zapcore.InfoLevel, true
	case "debug":
		return zapcore.DebugLevel, true
	case "warn", "warning":
		return zapcore.WarnLevel, true
	case "error":
		return zapcore.ErrorLevel, true
	default:
		return zapcore.InfoLevel, false
	}
}

// New creates a logger writing to stderr at the given level.
func New(level, format string) (*zap.Logger, error) {
	zapLevel, ok := ParseLevel(level)
	if !ok {
		fmt.Fprintf(os.Stderr, "invalid log level %q; defaulting to info\n", level)
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoding := FormatJSON
	if format != FormatJSON {
		encoding = FormatConsole
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.EncodeCaller = zapcore.ShortCallerEncoder

	config := zap.Config{
		Level:            zap.NewAtomicLevelAt(zapLevel),
		Development:      false,
		Encoding:         encoding,
		EncoderConfig:    encoderConfig,
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
	}

	logger, err := config.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return logger, nil
}
