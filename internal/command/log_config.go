package command

import (
	"cmp"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/joeycumines/js-debug-bridge/internal/config"
	"github.com/joeycumines/js-debug-bridge/internal/scripting"
)

// logConfig holds resolved logging configuration.
type logConfig struct {
	level      slog.Level
	logFile    io.WriteCloser // nil if no file logging
	bufferSize int
}

// resolveLogConfig resolves logging from flags, falling back to config (or
// its env vars) and then schema defaults. The caller closes lc.logFile.
func resolveLogConfig(flagPath, flagLevel string, flagBufferSize int, cfg *config.Config) (lc logConfig, err error) {
	if cfg == nil {
		cfg = config.NewConfig()
	}
	schema := config.DefaultSchema()
	resolveInt := func(key string, fallback int) int {
		if v := cfg.GetInt(key); v > 0 {
			return v
		}
		return fallback
	}

	levelStr := cmp.Or(flagLevel, schema.Resolve(cfg, config.KeyLogLevel), "info")
	if err := lc.level.UnmarshalText([]byte(strings.ToLower(levelStr))); err != nil {
		return lc, fmt.Errorf("invalid log level: %s", levelStr)
	}

	lc.bufferSize = flagBufferSize
	if lc.bufferSize <= 0 {
		lc.bufferSize = resolveInt(config.KeyLogBufferSize, 1000)
	}

	if logPath := cmp.Or(flagPath, schema.Resolve(cfg, config.KeyLogFile)); logPath != "" {
		maxFiles := 5
		if v, ok := cfg.GetGlobalOption(config.KeyLogMaxFiles); ok && v != "" {
			// zero keeps no backups
			maxFiles = max(cfg.GetInt(config.KeyLogMaxFiles), 0)
		}
		w, err := scripting.NewRotatingFileWriter(logPath, resolveInt(config.KeyLogMaxSizeMB, 10), maxFiles)
		if err != nil {
			return lc, fmt.Errorf("failed to open log file %s: %w", logPath, err)
		}
		lc.logFile = w
	}

	return lc, nil
}

// newLogger builds the command logger: a ring buffer of recent records,
// forwarding JSON lines to the log file when one is configured.
func (lc logConfig) newLogger() (*slog.Logger, *scripting.RingHandler) {
	var next slog.Handler
	if lc.logFile != nil {
		next = slog.NewJSONHandler(lc.logFile, &slog.HandlerOptions{Level: lc.level})
	}
	ring := scripting.NewRingHandler(lc.bufferSize, lc.level, next)
	return slog.New(ring), ring
}
