package storage

import (
	"errors"
	"time"
)

var (
	ErrDisabled = errors.New("storage disabled")
	ErrClosed   = errors.New("storage closed")
)

// DefaultHistoryLimit bounds how many history entries are kept.
const DefaultHistoryLimit = 500

// Config configures storage.
type Config struct {
	Driver       string
	Path         string
	BusyTimeout  time.Duration // sqlite only; 0 means default
	HistoryLimit int
}

// HistoryEntry records one released notification.
type HistoryEntry struct {
	At        time.Time `json:"at"`
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Level     string    `json:"level"`
	Cause     string    `json:"cause"`
	ActionID  string    `json:"action_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	ActiveMS  int64     `json:"active_ms"`
}
