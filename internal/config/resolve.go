package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"nudge/internal/device"
	"nudge/internal/engine"
	"nudge/internal/templates"
)

// Settings resolves the engine section into validated engine settings.
func (c EngineConfig) Settings() (engine.Settings, error) {
	s := engine.DefaultSettings()
	if c.Enabled != nil {
		s.Enabled = *c.Enabled
	}
	if v := strings.TrimSpace(c.DefaultLevel); v != "" {
		s.DefaultLevel = templates.Level(strings.ToLower(v))
	}
	if c.EnableSound != nil {
		s.EnableSound = *c.EnableSound
	}
	if c.EnableVibration != nil {
		s.EnableVibration = *c.EnableVibration
	}
	if c.EnableAnimations != nil {
		s.EnableAnimations = *c.EnableAnimations
	}
	if c.MaxConcurrent != 0 {
		s.MaxConcurrent = c.MaxConcurrent
	}
	if c.AutoClose != nil {
		s.AutoClose = *c.AutoClose
	}
	if c.Position != "" {
		s.Position = c.Position
	}
	if c.Theme != "" {
		s.Theme = c.Theme
	}
	if c.Language != "" {
		s.Language = c.Language
	}
	for _, raw := range c.DisabledTypes {
		typ := templates.ParseType(raw)
		if typ == "" {
			continue
		}
		if s.DisabledTypes == nil {
			s.DisabledTypes = map[templates.Type]bool{}
		}
		s.DisabledTypes[typ] = true
	}
	s, err := s.Validate()
	if err != nil {
		return s, fmt.Errorf("engine: %w", err)
	}
	return s, nil
}

// DedupWindowOrDefault parses engine.dedup_window.
func (c EngineConfig) DedupWindowOrDefault() (time.Duration, error) {
	return ParseDurationOrDefault("engine.dedup_window", c.DedupWindow, engine.DefaultDedupWindow)
}

func (c DeviceConfig) Overrides() device.Overrides {
	return device.Overrides{HasVibration: c.HasVibration, HasAudio: c.HasAudio, SmallScreen: c.SmallScreen}
}

// Enabled reports whether an optional bool is on, defaulting to def.
func Enabled(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}

// Validate checks every section that can be checked without side effects.
// All problems are reported together.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []error
	if _, err := cfg.Engine.Settings(); err != nil {
		errs = append(errs, err)
	}
	if _, err := cfg.Engine.DedupWindowOrDefault(); err != nil {
		errs = append(errs, err)
	}
	for _, f := range []struct{ path, raw string }{
		{"effects.timeout", cfg.Effects.Timeout},
		{"effects.live_ttl", cfg.Effects.LiveTTL},
	} {
		if _, err := ParseDurationField(f.path, f.raw); err != nil {
			errs = append(errs, err)
		}
	}
	if s := cfg.Storage; s != nil {
		switch strings.ToLower(strings.TrimSpace(s.Driver)) {
		case "", "none", "file", "sqlite", "sqlite3":
		default:
			errs = append(errs, fmt.Errorf("storage.driver: unknown driver %q", s.Driver))
		}
		if _, err := ParseDurationField("storage.busy_timeout", s.BusyTimeout); err != nil {
			errs = append(errs, err)
		}
	}
	if cfg.Reminders.Timezone != "" {
		if _, err := time.LoadLocation(cfg.Reminders.Timezone); err != nil {
			errs = append(errs, fmt.Errorf("reminders.timezone: %w", err))
		}
	}
	seen := map[string]bool{}
	for i, j := range cfg.Reminders.Jobs {
		name := strings.TrimSpace(j.Name)
		if name == "" {
			errs = append(errs, fmt.Errorf("reminders.jobs[%d]: name is required", i))
		} else if seen[name] {
			errs = append(errs, fmt.Errorf("reminders.jobs[%d]: duplicate name %q", i, name))
		}
		seen[name] = true
		if strings.TrimSpace(j.Spec) == "" {
			errs = append(errs, fmt.Errorf("reminders.jobs[%d]: spec is required", i))
		}
		if templates.ParseType(j.Type) == "" {
			errs = append(errs, fmt.Errorf("reminders.jobs[%d]: type is required", i))
		}
	}
	if o := cfg.Observability; o != nil {
		for _, f := range []struct{ path, raw string }{
			{"observability.read_timeout", o.ReadTimeout},
			{"observability.write_timeout", o.WriteTimeout},
			{"observability.idle_timeout", o.IdleTimeout},
		} {
			if _, err := ParseDurationField(f.path, f.raw); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
