package channel

import (
	"fmt"
	"sync"

	"nudge/internal/templates"
	logx "nudge/pkg/logx"
)

// Dispatcher maps a Level to its registered Surface.
type Dispatcher struct {
	mu       sync.RWMutex
	surfaces map[templates.Level]Surface
	log      logx.Logger
}

func NewDispatcher(log logx.Logger) *Dispatcher {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Dispatcher{surfaces: map[templates.Level]Surface{}, log: log}
}

// Register installs s for level, replacing any previous surface.
func (d *Dispatcher) Register(level templates.Level, s Surface) error {
	if !level.Valid() {
		return fmt.Errorf("channel: invalid level %q", level)
	}
	if s == nil {
		return fmt.Errorf("channel: nil surface for %s", level)
	}
	d.mu.Lock()
	d.surfaces[level] = s
	d.mu.Unlock()
	return nil
}

// Registered reports whether level has a surface.
func (d *Dispatcher) Registered(level templates.Level) bool {
	d.mu.RLock()
	_, ok := d.surfaces[level]
	d.mu.RUnlock()
	return ok
}

// Render mounts c on the surface for c.Level. Every failure, including a
// panicking surface, is returned wrapped in ErrRenderFailure.
func (d *Dispatcher) Render(c Content, in Interactions) (m Mounted, err error) {
	d.mu.RLock()
	s, ok := d.surfaces[c.Level]
	d.mu.RUnlock()
	if !ok {
		return Mounted{}, fmt.Errorf("%w: %w %s", ErrRenderFailure, ErrNoSurface, c.Level)
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %s surface panicked: %v", ErrRenderFailure, c.Level, r)
		}
	}()
	h, err := s.Mount(c, in)
	if err != nil {
		return Mounted{}, fmt.Errorf("%w: %s: %w", ErrRenderFailure, c.Level, err)
	}
	d.log.Debug("surface mounted", logx.String("id", c.ID), logx.String("level", string(c.Level)), logx.String("handle", string(h)))
	return Mounted{Level: c.Level, Handle: h}, nil
}

// Unmount removes previously rendered content.
func (d *Dispatcher) Unmount(m Mounted) error {
	d.mu.RLock()
	s, ok := d.surfaces[m.Level]
	d.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w %s", ErrNoSurface, m.Level)
	}
	return s.Unmount(m.Handle)
}
