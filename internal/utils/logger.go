package utils

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LoggerOptions tunes the application logger.
type LoggerOptions struct {
	// Debug lowers the level to debug and keeps timestamps for request tracing.
	Debug bool
	// JSON switches the console encoder to JSON, used by the long running server.
	JSON bool
}

// NewApplicationLogger constructs a zap logger configured for human-readable console output.
func NewApplicationLogger(options LoggerOptions) (*zap.Logger, error) {
	config := zap.NewProductionConfig()
	config.Encoding = "console"
	if options.JSON {
		config.Encoding = "json"
	}
	config.DisableCaller = true
	config.DisableStacktrace = true
	config.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	config.EncoderConfig.TimeKey = ""
	config.EncoderConfig.NameKey = ""
	config.EncoderConfig.CallerKey = ""
	config.EncoderConfig.MessageKey = "message"
	config.EncoderConfig.StacktraceKey = ""
	if options.Debug {
		config.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
		config.EncoderConfig.TimeKey = "time"
		config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}
	return config.Build()
}
