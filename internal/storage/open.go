package storage

import (
	"context"
	"fmt"
	"strings"

	"nudge/internal/engine"
	logx "nudge/pkg/logx"
)

// Store is the persistence API used by the engine and the history recorder.
type Store interface {
	engine.SettingsStore
	AppendHistory(ctx context.Context, e HistoryEntry) error
	// RecentHistory returns up to n entries, newest first.
	RecentHistory(ctx context.Context, n int) ([]HistoryEntry, error)
	Close() error
}

// Open initializes the configured store.
// It returns (nil, nil) if storage is disabled.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" || driver == "none" {
		return nil, nil
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = DefaultHistoryLimit
	}
	log = log.With(logx.String("comp", "storage"), logx.String("driver", driver))

	switch driver {
	case "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, fmt.Errorf("unknown storage driver: %s", driver)
	}
}
