// Package logger provides structured logging for the mentorship session core.
//
// This package wraps Uber's zap logger. A package-level Log is installed by
// InitLogger at process start; until then it is a no-op logger, so library
// code and tests can log without any setup.
//
// # Configuration
//
// The log level is configured via the LOG_LEVEL environment variable (see the
// config package) or directly via InitLogger:
//
//	logger.InitLogger("debug") // Options: debug, info, warn, error
//
// # Usage
//
// Components take a child logger named after themselves:
//
//	log := logger.Named("session")
//	log.Info("session resolved",
//	    zap.String("principal_id", id),
//	    zap.String("role", string(role)),
//	)
package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var Log = zap.NewNop()

func InitLogger(level string) {
	var zapLevel zapcore.Level
	if err := zapLevel.UnmarshalText([]byte(level)); err != nil {
		zapLevel = zap.InfoLevel
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapLevel)
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	l, err := cfg.Build()
	if err != nil {
		panic(err)
	}
	Log = l
}

// Named returns a child of Log tagged with the component name.
func Named(component string) *zap.Logger {
	return Log.Named(component)
}
