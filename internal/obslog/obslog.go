// Package obslog owns the process-wide zap logger. Console and file
// outputs can be enabled independently via environment variables.
package obslog

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var globalLogger = zap.NewNop()

// L returns the global logger.
func L() *zap.Logger { return globalLogger }

// SetForTest swaps the global logger, returning a restore func.
func SetForTest(l *zap.Logger) func() {
	prev := globalLogger
	globalLogger = l
	return func() { globalLogger = prev }
}

// InitFromEnv configures the global logger from LOG_LEVEL, LOG_FORMAT
// (console|json), LOG_TO_CONSOLE, LOG_TO_FILE and LOG_FILE.
func InitFromEnv() error {
	level := parseLevel(getenvDefault("LOG_LEVEL", "info"))
	console := strings.EqualFold(getenvDefault("LOG_TO_CONSOLE", "true"), "true")
	toFile := strings.EqualFold(getenvDefault("LOG_TO_FILE", "false"), "true")
	format := strings.ToLower(strings.TrimSpace(getenvDefault("LOG_FORMAT", "console")))
	if format != "console" && format != "json" {
		format = "console"
	}

	newEncoder := func() zapcore.Encoder {
		cfg := zap.NewProductionEncoderConfig()
		cfg.EncodeTime = zapcore.ISO8601TimeEncoder
		if format == "json" {
			cfg.EncodeLevel = zapcore.LowercaseLevelEncoder
			return zapcore.NewJSONEncoder(cfg)
		}
		cfg.EncodeLevel = zapcore.CapitalLevelEncoder
		return zapcore.NewConsoleEncoder(cfg)
	}

	var cores []zapcore.Core
	if console {
		cores = append(cores, zapcore.NewCore(newEncoder(), zapcore.AddSync(os.Stdout), level))
	}
	if toFile {
		path := strings.TrimSpace(getenvDefault("LOG_FILE", filepath.Join("logs", "arena.log")))
		if dir := filepath.Dir(path); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("log dir: %w", err)
			}
		}
		f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		cores = append(cores, zapcore.NewCore(newEncoder(), zapcore.AddSync(f), level))
	}
	if len(cores) == 0 {
		cores = append(cores, zapcore.NewCore(newEncoder(), zapcore.AddSync(os.Stdout), level))
	}

	globalLogger = zap.New(zapcore.NewTee(cores...), zap.AddStacktrace(zapcore.ErrorLevel))
	return nil
}

func parseLevel(s string) zapcore.Level {
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

func getenvDefault(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}
