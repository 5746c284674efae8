// Package logger holds the process-wide structured logger plus field
// helpers that keep caller phone numbers out of log output.
package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Log is the shared logger. Init replaces it; tests swap in zap.NewNop.
var Log *zap.Logger

// Init configures the global logger. Production gets JSON with service
// metadata for log shipping; anything else gets the readable console
// encoder for local work.
func Init(level string, env string) error {
	var config zap.Config

	if env == "production" {
		config = zap.NewProductionConfig()
		config.EncoderConfig.TimeKey = "ts"
		config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	} else {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	config.Level = zap.NewAtomicLevelAt(parseLevel(level))

	logger, err := config.Build(zap.Fields(
		zap.String("service", "dialler"),
		zap.String("env", env),
	))
	if err != nil {
		return err
	}

	Log = logger
	return nil
}

func parseLevel(level string) zapcore.Level {
	switch level {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// Sync flushes buffered entries on shutdown
func Sync() {
	if Log != nil {
		_ = Log.Sync()
	}
}
