package engine

import (
	"time"

	"nudge/internal/templates"
)

// State is where a request is in its lifecycle.
type State int

const (
	StateQueued State = iota
	StateActive
	StateReleased
	// StateCancelled ends a request that never became active.
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateQueued:
		return "queued"
	case StateActive:
		return "active"
	case StateReleased:
		return "released"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Cause says why an active request was released.
type Cause string

const (
	CauseExpired      Cause = "expired"
	CauseClosed       Cause = "closed"
	CauseAction       Cause = "action"
	CauseRenderFailed Cause = "render_failed"
	CauseEvicted      Cause = "evicted"
	CauseShutdown     Cause = "shutdown"
)

// Request is one admitted notification with every presentation field resolved.
type Request struct {
	ID         string
	Type       templates.Type
	Title      string
	Message    string
	Icon       string
	Level      templates.Level
	Priority   int
	Duration   time.Duration
	Persistent bool
	Animation  templates.Animation
	SoundID    string
	Vibration  []time.Duration
	Actions    []templates.Action
	Target     string

	DedupKey  uint64
	CreatedAt time.Time
	Seq       uint64
}

// Content is the caller-supplied part of a request. Empty fields fall back to
// the template; Vars fill {key} placeholders in Title and Message.
type Content struct {
	Title   string
	Message string
	Icon    string
	Vars    map[string]string
}

// Stats is a point-in-time view of the engine.
type Stats struct {
	Active        int  `json:"active"`
	Queued        int  `json:"queued"`
	MaxConcurrent int  `json:"max_concurrent"`
	Enabled       bool `json:"enabled"`
	Running       bool `json:"running"`
}
