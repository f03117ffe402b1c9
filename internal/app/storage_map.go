package app

import (
	"fmt"
	"strings"
	"time"

	"nudge/internal/config"
	"nudge/internal/effects"
	"nudge/internal/storage"
	logx "nudge/pkg/logx"
)

func mapStorageConfig(cfg *config.Config) (storage.Config, bool, error) {
	if cfg == nil || cfg.Storage == nil {
		return storage.Config{}, false, nil
	}
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	if driver == "" || driver == "none" {
		return storage.Config{}, false, nil
	}
	path := strings.TrimSpace(sc.Path)

	switch driver {
	case "file":
		if path == "" {
			path = "./nudge_store"
		}
		return storage.Config{Driver: "file", Path: path, HistoryLimit: sc.HistoryLimit}, true, nil
	case "sqlite", "sqlite3":
		if path == "" {
			return storage.Config{}, false, fmt.Errorf("storage.path is required when storage.driver=sqlite")
		}
		busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, time.Second)
		if err != nil {
			return storage.Config{}, false, err
		}
		return storage.Config{Driver: "sqlite", Path: path, BusyTimeout: busy, HistoryLimit: sc.HistoryLimit}, true, nil
	default:
		return storage.Config{}, false, fmt.Errorf("unknown storage.driver: %s", sc.Driver)
	}
}

// mapEffectsConfig resolves the effects section: rate 0 keeps the default of
// 2/s, a negative rate disables limiting.
func mapEffectsConfig(cfg *config.Config) (effects.Config, time.Duration, error) {
	ec := cfg.Effects
	out := effects.Config{RatePerSec: ec.RatePerSec, Burst: ec.Burst}
	switch {
	case out.RatePerSec == 0:
		out.RatePerSec = 2
	case out.RatePerSec < 0:
		out.RatePerSec = 0
	}
	if out.Burst <= 0 {
		out.Burst = 3
	}
	var err error
	if out.Timeout, err = config.ParseDurationOrDefault("effects.timeout", ec.Timeout, 5*time.Second); err != nil {
		return effects.Config{}, 0, err
	}
	ttl, err := config.ParseDurationOrDefault("effects.live_ttl", ec.LiveTTL, effects.DefaultLiveTTL)
	if err != nil {
		return effects.Config{}, 0, err
	}
	return out, ttl, nil
}

func mapLogConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}
