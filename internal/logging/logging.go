// Package logging builds the process-wide zap.Logger, following the
// production-config-with-explicit-level pattern the pack reaches for
// (loom's cmd/loom.NewProductionConfig + AddStacktrace(ErrorLevel)) rather
// than zap.NewExample or a bare io.Writer logger.
package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/toolforge/agentgraph/internal/config"
)

// New builds a logger for cfg.Env, with cfg.LogLevel overriding the
// profile's default level when set. Development mode uses a console
// encoder and debug level for local readability; production uses JSON and
// info level for ingestion by a log pipeline, with stack traces attached
// only to error-and-above entries.
func New(cfg *config.Config) (*zap.Logger, error) {
	var zc zap.Config
	if cfg.Env == "development" {
		zc = zap.NewDevelopmentConfig()
	} else {
		zc = zap.NewProductionConfig()
	}

	if cfg.LogLevel != "" {
		level, err := zapcore.ParseLevel(cfg.LogLevel)
		if err != nil {
			return nil, fmt.Errorf("invalid LOG_LEVEL %q: %w", cfg.LogLevel, err)
		}
		zc.Level = zap.NewAtomicLevelAt(level)
	}

	logger, err := zc.Build(zap.AddStacktrace(zap.ErrorLevel))
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return logger, nil
}
