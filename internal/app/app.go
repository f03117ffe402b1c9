// Package app wires the notification engine to its surfaces, side effects,
// storage, reminders, metrics and config hot reload.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"nudge/internal/channel"
	"nudge/internal/channel/term"
	"nudge/internal/config"
	"nudge/internal/device"
	"nudge/internal/effects"
	"nudge/internal/engine"
	"nudge/internal/eventbus"
	"nudge/internal/metrics"
	"nudge/internal/observability"
	"nudge/internal/reminders"
	"nudge/internal/runtime/clock"
	"nudge/internal/runtime/supervisor"
	"nudge/internal/storage"
	"nudge/internal/templates"
	logx "nudge/pkg/logx"
)

type Options struct {
	ConfigPath string
	// In feeds console commands; nil disables the console.
	In io.Reader
	// Out receives the terminal frame and console output. Defaults to stdout.
	Out io.Writer
}

type App struct {
	cfgm *config.Manager
	sup  *supervisor.Supervisor
	quit chan struct{}

	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus

	store    storage.Store
	registry *templates.Registry
	prober   *device.Prober
	screen   *term.Screen
	live     *effects.LiveRegion
	effects  *effects.Triggers
	engine   *engine.Engine
	metrics  *metrics.Metrics
	promReg  *prometheus.Registry
	remind   *reminders.Service
	obs      *observability.Service
	console  *Console

	in  io.Reader
	out io.Writer
}

func New(opts Options) (*App, error) {
	cfgm := config.NewManager(opts.ConfigPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	if err := reminders.Validate(cfg.Reminders); err != nil {
		return nil, err
	}
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}

	logSvc, log := logx.New(mapLogConfig(cfg))
	appLog := log.With(logx.String("comp", "app"))

	a := &App{
		cfgm: cfgm,
		quit: make(chan struct{}),
		log:  appLog,
		logs: logSvc,
		bus:  eventbus.New(),
		in:   opts.In,
		out:  out,
	}
	// Background work belongs to the app supervisor; Start ties it to the caller's ctx.
	a.sup = supervisor.New(context.Background(),
		supervisor.WithLogger(appLog),
		supervisor.WithCancelOnError(true),
	)

	if sc, enabled, err := mapStorageConfig(cfg); err != nil {
		return nil, err
	} else if enabled {
		st, err := storage.Open(sc, log)
		if err != nil {
			return nil, err
		}
		a.store = st
		appLog.Info("storage enabled", logx.String("driver", sc.Driver))
	}

	var catalog *templates.Catalog
	if path := strings.TrimSpace(cfg.Templates.Catalog); path != "" {
		if catalog, err = templates.LoadCatalog(path); err != nil {
			return nil, fmt.Errorf("templates.catalog: %w", err)
		}
	}
	if a.registry, err = templates.NewRegistry(catalog); err != nil {
		return nil, err
	}

	a.prober = device.NewProber()
	caps := a.prober.Probe(cfg.Device.Overrides())

	a.screen = term.NewScreen(term.Options{Out: out, Width: cfg.Terminal.Width})
	dispatcher := channel.NewDispatcher(log.With(logx.String("comp", "channel")))
	if err := a.screen.Register(dispatcher); err != nil {
		return nil, err
	}

	a.promReg = prometheus.NewRegistry()
	a.promReg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.metrics = metrics.New(a.promReg)
	a.metrics.TrackDropped(a.bus.Dropped)

	fxCfg, liveTTL, err := mapEffectsConfig(cfg)
	if err != nil {
		return nil, err
	}
	fxLog := log.With(logx.String("comp", "effects"))
	a.live = effects.NewLiveRegion(clock.Real(), liveTTL, func(items []string) {
		fxLog.Debug("live region", logx.Any("items", items))
	})
	var player effects.Player
	if config.Enabled(cfg.Terminal.Bell, true) {
		player = effects.NewBellPlayer(out)
	}
	a.effects = effects.New(fxCfg, effects.Options{
		Player:    player,
		Haptics:   effects.LogHaptics{Log: fxLog},
		Announcer: a.live,
		Sup:       a.sup,
		Log:       fxLog,
		OnSkipped: a.metrics.EffectSkipped,
	})

	settings, err := cfg.Engine.Settings()
	if err != nil {
		return nil, err
	}
	window, err := cfg.Engine.DedupWindowOrDefault()
	if err != nil {
		return nil, err
	}
	engOpts := engine.Options{
		Registry:     a.registry,
		Renderer:     dispatcher,
		Effects:      a.effects,
		Bus:          a.bus,
		Log:          log.With(logx.String("comp", "engine")),
		Settings:     settings,
		Capabilities: caps,
		DedupWindow:  window,
	}
	if a.store != nil {
		engOpts.Store = a.store
	}
	if a.engine, err = engine.New(engOpts); err != nil {
		return nil, err
	}

	if a.remind, err = reminders.New(cfg.Reminders, a.engine, log.With(logx.String("comp", "reminders"))); err != nil {
		return nil, err
	}

	obsCfg, err := observability.FromConfig(cfg.Observability)
	if err != nil {
		return nil, err
	}
	a.obs = observability.New(obsCfg, observability.Sources{
		Gatherer: a.promReg,
		Stats:    a.snapshot,
		Health:   a.health,
	}, log.With(logx.String("comp", "observability")))

	if a.in != nil && config.Enabled(cfg.Terminal.Console, true) {
		a.console = &Console{
			Engine:    a.engine,
			Screen:    a.screen,
			Store:     a.store,
			Reminders: a.remind,
			Effects:   a.effects,
			Out:       out,
			Log:       log.With(logx.String("comp", "console")),
		}
	}
	return a, nil
}

func (a *App) Engine() *engine.Engine { return a.engine }

// Done is closed when the app supervisor stops (fatal error or Stop).
func (a *App) Done() <-chan struct{} { return a.sup.Context().Done() }

// Quit is closed when the console "quit" command runs.
func (a *App) Quit() <-chan struct{} { return a.quit }

// Err returns the first fatal error observed by the supervisor.
func (a *App) Err() error { return a.sup.Err() }

// snapshot backs /stats.
func (a *App) snapshot() any {
	return struct {
		Engine     engine.Stats        `json:"engine"`
		Settings   engine.Settings     `json:"settings"`
		Effects    effects.Counters    `json:"effects"`
		Reminders  []reminders.Entry   `json:"reminders"`
		Supervisor supervisor.Counters `json:"supervisor"`
		Mounted    []channel.Content   `json:"mounted"`
	}{
		Engine:     a.engine.Stats(),
		Settings:   a.engine.Settings(),
		Effects:    a.effects.Counters(),
		Reminders:  a.remind.Entries(),
		Supervisor: a.sup.Counters(),
		Mounted:    a.screen.Mounted(),
	}
}

func (a *App) health() error {
	if !a.engine.Stats().Running {
		return errors.New("engine not running")
	}
	return a.sup.Err()
}

func (a *App) validate(_ context.Context, cfg *config.Config) error {
	if err := config.Validate(cfg); err != nil {
		return err
	}
	if err := reminders.Validate(cfg.Reminders); err != nil {
		return err
	}
	if _, _, err := mapStorageConfig(cfg); err != nil {
		return err
	}
	_, _, err := mapEffectsConfig(cfg)
	return err
}

func (a *App) Start(ctx context.Context) error {
	stop := context.AfterFunc(ctx, a.sup.Cancel)
	go func() {
		<-a.sup.Context().Done()
		stop()
	}()

	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(a.validate)

	if err := a.engine.Start(a.sup.Context()); err != nil {
		return err
	}

	events, unsubMetrics := a.engine.Subscribe(256)
	a.sup.Go0("metrics", func(c context.Context) {
		defer unsubMetrics()
		a.metrics.Run(c, events, a.engine.Stats)
	})

	if a.store != nil {
		released, unsubHistory := a.bus.Subscribe(historyBuffer, engine.EventReleased)
		hlog := a.log.With(logx.String("comp", "history"))
		a.sup.Go0("history", func(c context.Context) {
			defer unsubHistory()
			recordHistory(c, released, a.store, hlog)
		})
	}

	debug, unsubDebug := a.engine.Subscribe(128)
	a.sup.Go0("eventbus.log", func(c context.Context) {
		defer unsubDebug()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-debug:
				if !ok {
					return
				}
				a.log.Debug("event", logx.String("type", e.Type), logx.Any("data", e.Data))
			}
		}
	})

	a.remind.Start(a.sup.Context())
	if err := a.obs.Start(a.sup.Context()); err != nil {
		a.log.Warn("observability not started", logx.Err(err))
	}

	if a.console != nil {
		a.sup.Go0("console", func(c context.Context) {
			if a.console.Run(c, a.in) {
				close(a.quit)
			}
		})
	}

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		last := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case next, ok := <-sub:
				if !ok {
					return
				}
				// Coalesce bursts: keep only the latest config.
			drain:
				for {
					select {
					case newer := <-sub:
						if newer != nil {
							next = newer
						}
					default:
						break drain
					}
				}
				a.applyConfig(c, last, next)
				last = next
			}
		}
	})

	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	a.log.Info("app started")
	return nil
}

// applyConfig pushes a validated reload into the running services. Engine
// settings are applied as a patch of the fields that changed in the file, so
// runtime changes made through the console survive unrelated edits.
func (a *App) applyConfig(ctx context.Context, prev, next *config.Config) {
	sections, attrs := config.SummarizeConfigChange(prev, next)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	changed := map[string]bool{}
	for _, s := range sections {
		changed[s] = true
	}
	if changed["storage"] || changed["templates"] {
		a.log.Warn("storage or templates config changed; restart required for changes to take effect")
	}

	a.logs.Apply(mapLogConfig(next))

	if changed["engine"] {
		before, errPrev := prev.Engine.Settings()
		after, errNext := next.Engine.Settings()
		if errPrev == nil && errNext == nil {
			if patch := before.Diff(after); !patch.Empty() {
				if _, err := a.engine.UpdateSettings(patch); err != nil {
					a.log.Warn("engine settings rejected", logx.Err(err))
				}
			}
		}
	}
	if changed["device"] || changed["terminal"] {
		a.engine.SetCapabilities(a.prober.Probe(next.Device.Overrides()))
		a.screen.SetWidth(next.Terminal.Width)
	}
	if changed["effects"] {
		if fx, _, err := mapEffectsConfig(next); err == nil {
			a.effects.Apply(fx)
		}
	}
	if changed["reminders"] {
		if err := a.remind.Apply(next.Reminders); err != nil {
			a.log.Warn("invalid reminders config; keeping previous", logx.Err(err))
		}
	}
	if changed["observability"] {
		if oc, err := observability.FromConfig(next.Observability); err != nil {
			a.log.Warn("invalid observability config; keeping previous", logx.Err(err))
		} else {
			a.obs.Reconfigure(ctx, oc)
		}
	}

	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	a.log.Info("stopping", logx.String("reason", string(reason)))

	// step bounds one shutdown stage so a stuck component cannot stall the rest.
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		stepCtx, cancel := context.WithTimeout(ctx, max)
		defer cancel()
		start := time.Now()
		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()
		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)", logx.String("name", name), logx.Err(stepCtx.Err()))
		}
	}

	step("reminders", 2*time.Second, func(c context.Context) error { a.remind.Stop(c); return nil })
	step("engine", 2*time.Second, a.engine.Shutdown)
	step("observability", time.Second, func(c context.Context) error { a.obs.Stop(c); return nil })

	a.sup.Cancel()
	step("supervisor", 2*time.Second, a.sup.Wait)
	step("storage", time.Second, func(context.Context) error {
		if a.store != nil {
			return a.store.Close()
		}
		return nil
	})

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}
