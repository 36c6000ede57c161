package config

import (
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// activeLogger is the process-wide logger handed out by InitLogger so that
// Cleanup can flush it on shutdown.
var activeLogger *zap.Logger

// InitLogger builds the development-style console logger used across the
// service. Unknown level strings fall back to info so a typo in the config
// file never prevents startup.
func InitLogger(levelStr string) (*zap.Logger, error) {
	level := parseLogLevel(levelStr)

	zapCfg := zap.NewDevelopmentConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return nil, err
	}
	activeLogger = logger
	return logger, nil
}

func parseLogLevel(s string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// Cleanup flushes buffered log entries. Call it on shutdown, after the rest
// of the service has stopped writing.
func Cleanup() {
	if activeLogger != nil {
		_ = activeLogger.Sync()
	}
}
