// Package logger builds the zap loggers shared by the server, worker,
// and CLI binaries, plus sanitizers for user-supplied log fields.
package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New creates the service logger. env "development" selects console
// encoding for local work; anything else selects production JSON with
// stack traces on error-level entries.
func New(env string, debugMode bool) (*zap.Logger, error) {
	if env == "development" {
		config := zap.NewDevelopmentConfig()
		config.Level = levelFor(debugMode)
		return config.Build()
	}

	config := zap.NewProductionConfig()
	config.Level = levelFor(debugMode)
	config.Encoding = "json"
	config.EncoderConfig = zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		FunctionKey:    zapcore.OmitKey,
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.SecondsDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
	config.DisableStacktrace = false

	return config.Build()
}

func levelFor(debugMode bool) zap.AtomicLevel {
	if debugMode {
		return zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	return zap.NewAtomicLevelAt(zapcore.InfoLevel)
}

// Sync flushes any buffered log entries. Safe to call multiple times;
// call before application exit.
func Sync(logger *zap.Logger) error {
	if logger == nil {
		return nil
	}
	return logger.Sync()
}
