// Package effects fires the side effects that accompany an activated
// notification: a sound, a haptic pattern and an assistive announcement.
//
// Every effect is best-effort. Failures and panics are logged and swallowed;
// nothing here blocks or delays the engine.
package effects

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"nudge/internal/runtime/supervisor"
	logx "nudge/pkg/logx"
)

var ErrNoHost = errors.New("no effect host")

// Player plays a named sound.
type Player interface {
	Play(ctx context.Context, soundID string) error
}

// Haptics plays an on/off vibration pattern.
type Haptics interface {
	Vibrate(ctx context.Context, pattern []time.Duration) error
}

// Announcer receives assistive-technology announcements.
type Announcer interface {
	Announce(text string)
}

// Effect describes what to fire for one activation. Sound and Vibrate carry
// the settings gates at activation time.
type Effect struct {
	ID        string
	Type      string
	Title     string
	Message   string
	SoundID   string
	Vibration []time.Duration
	Sound     bool
	Vibrate   bool
}

const (
	KindSound   = "sound"
	KindHaptics = "haptics"
)

type Config struct {
	// RatePerSec and Burst size the bucket shared by sound and haptics.
	// RatePerSec <= 0 disables limiting.
	RatePerSec float64
	Burst      int
	// Timeout bounds one host call.
	Timeout time.Duration
}

type Options struct {
	Player    Player
	Haptics   Haptics
	Announcer Announcer
	Sup       *supervisor.Supervisor
	Log       logx.Logger
	// OnSkipped is called with the effect kind when the bucket is empty.
	OnSkipped func(kind string)
}

type Triggers struct {
	player    Player
	haptics   Haptics
	announcer Announcer
	sup       *supervisor.Supervisor
	log       logx.Logger
	onSkipped func(kind string)

	limiter atomic.Pointer[rate.Limiter]
	timeout atomic.Int64

	fired   atomic.Uint64
	skipped atomic.Uint64
	failed  atomic.Uint64
}

func New(cfg Config, opts Options) *Triggers {
	t := &Triggers{
		player:    opts.Player,
		haptics:   opts.Haptics,
		announcer: opts.Announcer,
		sup:       opts.Sup,
		log:       opts.Log,
		onSkipped: opts.OnSkipped,
	}
	if t.log.IsZero() {
		t.log = logx.Nop()
	}
	t.Apply(cfg)
	return t
}

// Apply swaps the rate limiter and timeout at runtime.
func (t *Triggers) Apply(cfg Config) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	t.timeout.Store(int64(cfg.Timeout))
	if cfg.RatePerSec <= 0 {
		t.limiter.Store(nil)
		return
	}
	if cfg.Burst <= 0 {
		cfg.Burst = int(cfg.RatePerSec)
		if cfg.Burst < 1 {
			cfg.Burst = 1
		}
	}
	t.limiter.Store(rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.Burst))
}

type Counters struct {
	Fired   uint64 `json:"fired"`
	Skipped uint64 `json:"skipped"`
	Failed  uint64 `json:"failed"`
}

func (t *Triggers) Counters() Counters {
	return Counters{Fired: t.fired.Load(), Skipped: t.skipped.Load(), Failed: t.failed.Load()}
}

// Fire never blocks on a host call.
func (t *Triggers) Fire(e Effect) {
	if t == nil {
		return
	}
	if e.Sound && e.SoundID != "" && t.player != nil && t.allow(KindSound) {
		id := e.SoundID
		t.async(KindSound, e.ID, func(ctx context.Context) error { return t.player.Play(ctx, id) })
	}
	if e.Vibrate && len(e.Vibration) > 0 && t.haptics != nil && t.allow(KindHaptics) {
		pattern := append([]time.Duration(nil), e.Vibration...)
		t.async(KindHaptics, e.ID, func(ctx context.Context) error { return t.haptics.Vibrate(ctx, pattern) })
	}
	if t.announcer != nil {
		t.announce(e)
	}
}

func (t *Triggers) allow(kind string) bool {
	lim := t.limiter.Load()
	if lim == nil || lim.Allow() {
		return true
	}
	t.skipped.Add(1)
	if t.onSkipped != nil {
		t.onSkipped(kind)
	}
	t.log.Debug("effect skipped by rate limit", logx.String("kind", kind))
	return false
}

func (t *Triggers) announce(e Effect) {
	defer func() {
		if r := recover(); r != nil {
			t.failed.Add(1)
			t.log.Warn("announcement panicked", logx.String("id", e.ID), logx.Any("panic", r))
		}
	}()
	text := strings.TrimSpace(e.Message)
	if text == "" {
		text = strings.TrimSpace(e.Title)
	}
	if text == "" {
		return
	}
	t.announcer.Announce(text)
}

func (t *Triggers) async(kind, id string, fn func(ctx context.Context) error) {
	t.fired.Add(1)
	run := func(parent context.Context) {
		defer func() {
			if r := recover(); r != nil {
				t.failed.Add(1)
				t.log.Warn("effect panicked", logx.String("kind", kind), logx.String("id", id), logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
			}
		}()
		ctx, cancel := context.WithTimeout(parent, time.Duration(t.timeout.Load()))
		defer cancel()
		if err := fn(ctx); err != nil {
			t.failed.Add(1)
			t.log.Debug("effect failed", logx.String("kind", kind), logx.String("id", id), logx.Err(err))
		}
	}
	if t.sup != nil {
		t.sup.Go0(fmt.Sprintf("effects.%s", kind), run)
		return
	}
	go run(context.Background())
}
