// Package logging builds the process logger: slog API, privacy sanitizer, zap core.
package logging

import (
	"fmt"
	"log/slog"
	"strings"

	"aetos-counter/go-backend/internal/platform/privacylog"

	"go.uber.org/zap"
	"go.uber.org/zap/exp/zapslog"
	"go.uber.org/zap/zapcore"
)

const (
	FormatJSON    = "json"
	FormatConsole = "console"
)

type Config struct {
	Level  string `yaml:"level" env:"COUNTER_LOG_LEVEL"`
	Format string `yaml:"format" env:"COUNTER_LOG_FORMAT"`
	File   string `yaml:"file" env:"COUNTER_LOG_FILE"`
}

func DefaultConfig() Config {
	return Config{Level: "info", Format: FormatJSON}
}

// New returns a sanitizing slog logger backed by zap and a flush func for shutdown.
func New(cfg Config, verbose bool) (*slog.Logger, func(), error) {
	zc := zap.NewProductionConfig()
	if strings.EqualFold(strings.TrimSpace(cfg.Format), FormatConsole) {
		zc.Encoding = FormatConsole
		zc.EncoderConfig = zap.NewDevelopmentEncoderConfig()
	}
	level := zapcore.InfoLevel
	if raw := strings.TrimSpace(cfg.Level); raw != "" {
		parsed, err := zapcore.ParseLevel(raw)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid log level %q: %w", raw, err)
		}
		level = parsed
	}
	if verbose {
		level = zapcore.DebugLevel
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	if file := strings.TrimSpace(cfg.File); file != "" {
		zc.OutputPaths = []string{file}
		zc.ErrorOutputPaths = []string{file}
	}

	zl, err := zc.Build()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	handler := privacylog.WrapHandler(zapslog.NewHandler(zl.Core()))
	flush := func() { _ = zl.Sync() }
	return slog.New(handler), flush, nil
}
