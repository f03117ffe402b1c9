package engine

import (
	"time"

	"nudge/internal/templates"
)

// Event types published on the bus.
const (
	EventQueued        = "notification.queued"
	EventSuperseded    = "notification.superseded"
	EventCancelled     = "notification.cancelled"
	EventActivated     = "notification.activated"
	EventActionInvoked = "notification.action"
	EventReleased      = "notification.released"
	EventRejected      = "notification.rejected"
	EventSettings      = "notification.settings"
)

// EventTypes lists every type the engine publishes.
var EventTypes = []string{
	EventQueued, EventSuperseded, EventCancelled, EventActivated,
	EventActionInvoked, EventReleased, EventRejected, EventSettings,
}

type Queued struct {
	ID       string
	Type     templates.Type
	Priority int
}

// Superseded is published when a newer identical request replaces a queued one.
type Superseded struct {
	ID   string
	By   string
	Type templates.Type
}

type Cancelled struct {
	ID   string
	Type templates.Type
}

type Activated struct {
	ID       string
	Type     templates.Type
	Level    templates.Level
	Priority int
}

// ActionInvoked is published for every button press, including those that
// release the request.
type ActionInvoked struct {
	ID       string
	Type     templates.Type
	ActionID string
	Closes   bool
}

// Released is published exactly once per activated request.
type Released struct {
	ID        string
	Type      templates.Type
	Level     templates.Level
	Cause     Cause
	ActionID  string
	CreatedAt time.Time
	ActiveFor time.Duration
}

type Rejected struct {
	Type   templates.Type
	Reason string
}

type SettingsChanged struct {
	Settings Settings
}
