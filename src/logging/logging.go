// Package logging builds the zap loggers used by the binaries.
package logging

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New returns a JSON logger at level writing to path. An empty path means
// stderr; the TUI passes a file because the terminal belongs to the UI.
func New(level, path string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(strings.TrimSpace(level))
	if err != nil {
		return nil, fmt.Errorf("log level %q: %w", level, err)
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.Sampling = nil
	out := "stderr"
	if path != "" {
		out = path
	}
	cfg.OutputPaths = []string{out}
	cfg.ErrorOutputPaths = []string{out}
	return cfg.Build()
}
