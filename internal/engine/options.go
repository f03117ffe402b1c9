package engine

import (
	"time"

	"nudge/internal/templates"
)

// Option overrides a template default for a single Show call.
type Option func(*overrides)

type overrides struct {
	level      *templates.Level
	priority   *int
	duration   *time.Duration
	persistent *bool
	animation  *templates.Animation
	sound      *string
	vibration  []time.Duration
	vibSet     bool
	actions    []templates.Action
	actionsSet bool
	target     string
}

func WithLevel(l templates.Level) Option {
	return func(o *overrides) { o.level = &l }
}

// WithPriority is clamped to 1..5.
func WithPriority(p int) Option {
	return func(o *overrides) {
		p = templates.ClampPriority(p)
		o.priority = &p
	}
}

// WithDuration sets the display time. Zero makes the request persistent.
func WithDuration(d time.Duration) Option {
	return func(o *overrides) {
		if d < 0 {
			d = 0
		}
		o.duration = &d
	}
}

// WithPersistent(false) only matters when a duration resolves; a request
// without one is always persistent.
func WithPersistent(v bool) Option {
	return func(o *overrides) { o.persistent = &v }
}

func WithAnimation(a templates.Animation) Option {
	return func(o *overrides) { o.animation = &a }
}

// WithSound replaces the sound id; "" silences the request.
func WithSound(id string) Option {
	return func(o *overrides) { o.sound = &id }
}

func WithVibration(pattern ...time.Duration) Option {
	return func(o *overrides) {
		o.vibration = append([]time.Duration(nil), pattern...)
		o.vibSet = true
	}
}

// WithActions replaces the template actions. No arguments removes them.
func WithActions(actions ...templates.Action) Option {
	return func(o *overrides) {
		o.actions = append([]templates.Action(nil), actions...)
		o.actionsSet = true
	}
}

// WithTarget names the slot inline content renders into.
func WithTarget(slot string) Option {
	return func(o *overrides) { o.target = slot }
}
