// Package logging builds the zap logger used across audiograph.
package logging

import (
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/shaban/audiograph/config"
)

// ParseLevel maps a config level to a zap level. Unknown levels are info.
func ParseLevel(s string) zapcore.Level {
	switch strings.ToLower(s) {
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

// New builds a JSON production logger, or a console logger in development
// mode. Output goes to stderr so stdout stays free for command results.
func New(cfg config.LogConfig) (*zap.Logger, error) {
	var encoderConfig zapcore.EncoderConfig
	encoding := "json"
	if cfg.Development {
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoding = "console"
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	zapConfig := zap.Config{
		Level:            zap.NewAtomicLevelAt(ParseLevel(cfg.Level)),
		Development:      cfg.Development,
		Encoding:         encoding,
		EncoderConfig:    encoderConfig,
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
	}
	return zapConfig.Build(zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))
}

// Must is New that falls back to a production logger.
func Must(cfg config.LogConfig) *zap.Logger {
	logger, err := New(cfg)
	if err != nil {
		logger, _ = zap.NewProduction()
	}
	return logger
}
