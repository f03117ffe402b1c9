// Package engine admits, schedules and releases notifications.
//
// Requests pass the admission filter (global and per-type toggles, template
// lookup, dedup), wait in a priority queue and are promoted while the number
// of active requests is below Settings.MaxConcurrent. An active request stays
// on its surface until it expires, is closed, an action dismisses it, it is
// evicted by a smaller MaxConcurrent, or the engine shuts down. Every
// activation ends in exactly one Released event.
//
// Show only enqueues. Promotion runs on a drain tick armed by admission,
// release and settings changes, so requests admitted together are promoted
// strictly by priority and back-to-back duplicates collapse while queued.
//
// All queue and active-set mutations happen under Engine.mu. Surfaces are
// mounted and unmounted outside the lock so they may call back into the
// engine through channel.Interactions.
package engine

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"nudge/internal/channel"
	"nudge/internal/device"
	"nudge/internal/effects"
	"nudge/internal/eventbus"
	"nudge/internal/runtime/clock"
	"nudge/internal/runtime/supervisor"
	"nudge/internal/templates"
	logx "nudge/pkg/logx"
)

// DefaultDedupWindow is how long a queued request can be replaced by an
// identical one.
const DefaultDedupWindow = 10 * time.Second

// Renderer mounts content on the surface for its level.
type Renderer interface {
	Render(c channel.Content, in channel.Interactions) (channel.Mounted, error)
	Unmount(m channel.Mounted) error
}

// EffectFirer fires sound, haptics and announcements for an activation.
type EffectFirer interface {
	Fire(e effects.Effect)
}

type Options struct {
	Registry *templates.Registry
	Renderer Renderer
	Effects  EffectFirer
	Store    SettingsStore
	Bus      eventbus.Bus
	Clock    clock.Clock
	Log      logx.Logger

	Settings     Settings
	Capabilities device.Capabilities
	DedupWindow  time.Duration
	// NewID defaults to uuid.NewString.
	NewID func() string
}

type Engine struct {
	registry *templates.Registry
	renderer Renderer
	effects  EffectFirer
	store    SettingsStore
	bus      eventbus.Bus
	clock    clock.Clock
	log      logx.Logger
	window   time.Duration
	newID    func() string

	mu       sync.Mutex
	settings Settings
	caps     device.Capabilities
	running  bool
	stopped  bool
	seq      uint64
	queue    queue
	queued   map[string]*entry
	active   map[string]*entry
	recent   map[uint64]*entry
	draining bool
	again    bool
	tick     clock.Timer

	sup *supervisor.Supervisor
}

type entry struct {
	req         Request
	state       State
	index       int
	timer       clock.Timer
	mounted     *channel.Mounted
	activatedAt time.Time
}

func New(opts Options) (*Engine, error) {
	if opts.Registry == nil {
		return nil, ErrNoRegistry
	}
	if opts.Renderer == nil {
		return nil, ErrNoRenderer
	}
	settings := opts.Settings
	if settings.MaxConcurrent == 0 && settings.Position == "" && settings.Language == "" {
		settings = DefaultSettings()
	}
	settings, err := settings.Validate()
	if err != nil {
		return nil, err
	}
	e := &Engine{
		registry: opts.Registry,
		renderer: opts.Renderer,
		effects:  opts.Effects,
		store:    opts.Store,
		bus:      opts.Bus,
		clock:    opts.Clock,
		log:      opts.Log,
		window:   opts.DedupWindow,
		newID:    opts.NewID,
		settings: settings,
		caps:     opts.Capabilities,
		queued:   map[string]*entry{},
		active:   map[string]*entry{},
		recent:   map[uint64]*entry{},
	}
	if e.clock == nil {
		e.clock = clock.Real()
	}
	if e.log.IsZero() {
		e.log = logx.Nop()
	}
	if e.window <= 0 {
		e.window = DefaultDedupWindow
	}
	if e.newID == nil {
		e.newID = uuid.NewString
	}
	if e.bus == nil {
		e.bus = eventbus.New()
	}
	return e, nil
}

// Start loads persisted settings and opens intake. Persisted settings win
// over the ones passed to New.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return ErrStopped
	}
	if e.running {
		e.mu.Unlock()
		return nil
	}
	e.mu.Unlock()

	var loaded *Settings
	if e.store != nil {
		s, err := e.store.LoadSettings(ctx)
		if err != nil {
			e.log.Warn("load settings failed; using defaults", logx.Err(err))
		} else if s != nil {
			if v, err := s.Validate(); err != nil {
				e.log.Warn("persisted settings invalid; ignored", logx.Err(err))
			} else {
				loaded = &v
			}
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if loaded != nil {
		e.settings = *loaded
	}
	e.sup = supervisor.New(ctx, supervisor.WithLogger(e.log))
	e.running = true
	e.log.Info("engine started",
		logx.Int("max_concurrent", e.settings.MaxConcurrent),
		logx.Bool("enabled", e.settings.Enabled),
		logx.String("language", e.settings.Language),
	)
	return nil
}

// Shutdown stops intake, drops the queue and releases every active request
// with CauseShutdown. It waits for background work until ctx is done.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	if !e.running {
		e.stopped = true
		e.mu.Unlock()
		return nil
	}
	e.running = false
	e.stopped = true
	if e.tick != nil {
		e.tick.Stop()
		e.tick = nil
	}

	for e.queue.Len() > 0 {
		e.cancelLocked(e.queue.pop())
	}
	var unmount []channel.Mounted
	for _, ent := range e.activeByAge() {
		if m := e.releaseLocked(ent, CauseShutdown, ""); m != nil {
			unmount = append(unmount, *m)
		}
	}
	sup := e.sup
	e.mu.Unlock()

	e.unmountAll(unmount)
	e.log.Info("engine stopped", logx.Int("released", len(unmount)))
	if sup == nil {
		return nil
	}
	return sup.Stop(ctx)
}

func (e *Engine) Settings() Settings {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.settings.clone()
}

func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Stats{
		Active:        len(e.active),
		Queued:        e.queue.Len(),
		MaxConcurrent: e.settings.MaxConcurrent,
		Enabled:       e.settings.Enabled,
		Running:       e.running,
	}
}

// Active returns the active requests, oldest activation first.
func (e *Engine) Active() []Request {
	e.mu.Lock()
	defer e.mu.Unlock()
	ents := e.activeByAge()
	out := make([]Request, 0, len(ents))
	for _, ent := range ents {
		out = append(out, ent.req)
	}
	return out
}

// Subscribe delivers engine events. Slow subscribers drop events.
func (e *Engine) Subscribe(buffer int) (<-chan eventbus.Event, func()) {
	return e.bus.Subscribe(buffer, EventTypes...)
}

// SetCapabilities replaces the host capabilities used for new requests.
func (e *Engine) SetCapabilities(c device.Capabilities) {
	e.mu.Lock()
	e.caps = c
	e.mu.Unlock()
}

// UpdateSettings validates and applies p. Shrinking MaxConcurrent below the
// active count evicts the lowest-priority, most recent requests. The result is
// saved to the store in the background.
func (e *Engine) UpdateSettings(p SettingsPatch) (Settings, error) {
	e.mu.Lock()
	next, err := e.settings.Apply(p).Validate()
	if err != nil {
		cur := e.settings.clone()
		e.mu.Unlock()
		return cur, err
	}
	e.settings = next

	var unmount []channel.Mounted
	for len(e.active) > next.MaxConcurrent {
		victim := e.evictionCandidate()
		if m := e.releaseLocked(victim, CauseEvicted, ""); m != nil {
			unmount = append(unmount, *m)
		}
	}
	e.publish(EventSettings, SettingsChanged{Settings: next.clone()})
	saved := next.clone()
	sup := e.sup
	e.mu.Unlock()

	e.unmountAll(unmount)
	e.persist(sup, saved)
	e.kick()
	return saved, nil
}

func (e *Engine) persist(sup *supervisor.Supervisor, s Settings) {
	if e.store == nil {
		return
	}
	save := func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := e.store.SaveSettings(ctx, s); err != nil {
			e.log.Warn("save settings failed", logx.Err(err))
		}
	}
	if sup == nil {
		save(context.Background())
		return
	}
	sup.Go0("engine.persist", save)
}

func (e *Engine) publish(typ string, data any) {
	e.bus.Publish(eventbus.Event{Type: typ, Time: e.clock.Now(), Data: data})
}
