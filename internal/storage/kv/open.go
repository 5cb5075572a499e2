package kv

import (
	"fmt"
	"log/slog"
	"strings"
)

// Open creates the backend selected by cfg.Engine.
func Open(cfg Config, logger *slog.Logger) (Backend, error) {
	switch strings.ToLower(cfg.Engine) {
	case "", EngineMemory:
		return NewMemory(WithQuota(cfg.QuotaBytes)), nil
	case EngineFile:
		return NewFile(cfg.Dir, cfg.QuotaBytes, logger)
	case EngineBadger:
		return NewBadger(cfg, logger)
	default:
		return nil, fmt.Errorf("kv: unknown engine %q", cfg.Engine)
	}
}
