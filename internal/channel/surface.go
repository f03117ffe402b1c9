// Package channel selects a rendering surface for an active notification and
// manages that surface's mount/unmount lifecycle.
//
// Surfaces form a closed set keyed by templates.Level. Each surface receives
// an Interactions value and reports every terminal user interaction through
// it; the engine turns those reports into exactly one release per notification.
package channel

import (
	"errors"
	"time"

	"nudge/internal/templates"
)

var (
	// ErrRenderFailure wraps every mount failure.
	ErrRenderFailure = errors.New("render failure")
	ErrNoSurface     = errors.New("no surface registered for level")
	ErrUnknownHandle = errors.New("unknown surface handle")
)

// Handle is an opaque reference to mounted content.
type Handle string

// Content is what a surface renders.
type Content struct {
	ID         string
	Type       templates.Type
	Level      templates.Level
	Title      string
	Message    string
	Icon       string
	Priority   int
	Animation  templates.Animation
	Actions    []templates.Action
	Duration   time.Duration
	Persistent bool

	// Position is where globally positioned surfaces stack (toast, banner).
	Position string
	Theme    string
	// Target names the caller-supplied slot for inline content.
	Target string
}

// Interactions receives terminal user interactions from a surface.
type Interactions interface {
	// Dismiss reports a close affordance, backdrop click, escape or click outside.
	Dismiss(id string)
	// Action reports an action button press.
	Action(id, actionID string)
}

// Surface renders one Level.
type Surface interface {
	Mount(c Content, in Interactions) (Handle, error)
	Unmount(h Handle) error
}

// Mounted identifies rendered content so it can be unmounted later.
type Mounted struct {
	Level  templates.Level
	Handle Handle
}
