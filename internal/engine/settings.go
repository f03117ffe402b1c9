package engine

import (
	"context"
	"fmt"
	"strings"

	"nudge/internal/templates"
)

// Positions accepted for globally positioned surfaces.
var Positions = []string{"top-right", "top-left", "top-center", "bottom-right", "bottom-left", "bottom-center"}

// Themes accepted for surface palettes.
var Themes = []string{"auto", "light", "dark"}

// Settings is the process-wide engine configuration. It only changes through
// Engine.UpdateSettings.
type Settings struct {
	Enabled          bool                    `json:"enabled"`
	DefaultLevel     templates.Level         `json:"default_level"`
	EnableSound      bool                    `json:"enable_sound"`
	EnableVibration  bool                    `json:"enable_vibration"`
	EnableAnimations bool                    `json:"enable_animations"`
	MaxConcurrent    int                     `json:"max_concurrent"`
	AutoClose        bool                    `json:"auto_close"`
	Position         string                  `json:"position"`
	Theme            string                  `json:"theme"`
	Language         string                  `json:"language"`
	DisabledTypes    map[templates.Type]bool `json:"disabled_types,omitempty"`
}

func DefaultSettings() Settings {
	return Settings{
		Enabled:          true,
		DefaultLevel:     templates.LevelToast,
		EnableSound:      true,
		EnableVibration:  true,
		EnableAnimations: true,
		MaxConcurrent:    3,
		AutoClose:        true,
		Position:         "top-right",
		Theme:            "auto",
		Language:         "en",
	}
}

// TypeEnabled reports whether typ may be shown.
func (s Settings) TypeEnabled(typ templates.Type) bool {
	return !s.DisabledTypes[typ]
}

func (s Settings) clone() Settings {
	if s.DisabledTypes != nil {
		m := make(map[templates.Type]bool, len(s.DisabledTypes))
		for k, v := range s.DisabledTypes {
			m[k] = v
		}
		s.DisabledTypes = m
	}
	return s
}

// Validate checks s and fills empty optional fields with defaults.
func (s Settings) Validate() (Settings, error) {
	d := DefaultSettings()
	if s.DefaultLevel == "" {
		s.DefaultLevel = d.DefaultLevel
	}
	if !s.DefaultLevel.Valid() {
		return s, fmt.Errorf("%w: default_level %q", ErrInvalidSettings, s.DefaultLevel)
	}
	if s.MaxConcurrent < 1 {
		return s, fmt.Errorf("%w: max_concurrent must be >= 1 (got %d)", ErrInvalidSettings, s.MaxConcurrent)
	}
	s.Position = strings.ToLower(strings.TrimSpace(s.Position))
	if s.Position == "" {
		s.Position = d.Position
	}
	if !oneOf(s.Position, Positions) {
		return s, fmt.Errorf("%w: position %q", ErrInvalidSettings, s.Position)
	}
	s.Theme = strings.ToLower(strings.TrimSpace(s.Theme))
	if s.Theme == "" {
		s.Theme = d.Theme
	}
	if !oneOf(s.Theme, Themes) {
		return s, fmt.Errorf("%w: theme %q", ErrInvalidSettings, s.Theme)
	}
	s.Language = strings.TrimSpace(s.Language)
	if s.Language == "" {
		s.Language = d.Language
	}
	return s, nil
}

func oneOf(v string, set []string) bool {
	for _, s := range set {
		if v == s {
			return true
		}
	}
	return false
}

// SettingsPatch is a partial update; nil fields are left unchanged.
// DisabledTypes entries are merged key by key.
type SettingsPatch struct {
	Enabled          *bool
	DefaultLevel     *templates.Level
	EnableSound      *bool
	EnableVibration  *bool
	EnableAnimations *bool
	MaxConcurrent    *int
	AutoClose        *bool
	Position         *string
	Theme            *string
	Language         *string
	DisabledTypes    map[templates.Type]bool
}

// Apply returns s with p merged in.
func (s Settings) Apply(p SettingsPatch) Settings {
	s = s.clone()
	if p.Enabled != nil {
		s.Enabled = *p.Enabled
	}
	if p.DefaultLevel != nil {
		s.DefaultLevel = *p.DefaultLevel
	}
	if p.EnableSound != nil {
		s.EnableSound = *p.EnableSound
	}
	if p.EnableVibration != nil {
		s.EnableVibration = *p.EnableVibration
	}
	if p.EnableAnimations != nil {
		s.EnableAnimations = *p.EnableAnimations
	}
	if p.MaxConcurrent != nil {
		s.MaxConcurrent = *p.MaxConcurrent
	}
	if p.AutoClose != nil {
		s.AutoClose = *p.AutoClose
	}
	if p.Position != nil {
		s.Position = *p.Position
	}
	if p.Theme != nil {
		s.Theme = *p.Theme
	}
	if p.Language != nil {
		s.Language = *p.Language
	}
	for typ, off := range p.DisabledTypes {
		if s.DisabledTypes == nil {
			s.DisabledTypes = map[templates.Type]bool{}
		}
		if off {
			s.DisabledTypes[typ] = true
		} else {
			delete(s.DisabledTypes, typ)
		}
	}
	return s
}

// Diff builds the patch that turns s into next.
func (s Settings) Diff(next Settings) SettingsPatch {
	var p SettingsPatch
	if s.Enabled != next.Enabled {
		p.Enabled = &next.Enabled
	}
	if s.DefaultLevel != next.DefaultLevel {
		p.DefaultLevel = &next.DefaultLevel
	}
	if s.EnableSound != next.EnableSound {
		p.EnableSound = &next.EnableSound
	}
	if s.EnableVibration != next.EnableVibration {
		p.EnableVibration = &next.EnableVibration
	}
	if s.EnableAnimations != next.EnableAnimations {
		p.EnableAnimations = &next.EnableAnimations
	}
	if s.MaxConcurrent != next.MaxConcurrent {
		p.MaxConcurrent = &next.MaxConcurrent
	}
	if s.AutoClose != next.AutoClose {
		p.AutoClose = &next.AutoClose
	}
	if s.Position != next.Position {
		p.Position = &next.Position
	}
	if s.Theme != next.Theme {
		p.Theme = &next.Theme
	}
	if s.Language != next.Language {
		p.Language = &next.Language
	}
	for typ := range s.DisabledTypes {
		if !next.DisabledTypes[typ] {
			if p.DisabledTypes == nil {
				p.DisabledTypes = map[templates.Type]bool{}
			}
			p.DisabledTypes[typ] = false
		}
	}
	for typ, off := range next.DisabledTypes {
		if off && !s.DisabledTypes[typ] {
			if p.DisabledTypes == nil {
				p.DisabledTypes = map[templates.Type]bool{}
			}
			p.DisabledTypes[typ] = true
		}
	}
	return p
}

// Empty reports whether p changes nothing.
func (p SettingsPatch) Empty() bool {
	return p.Enabled == nil && p.DefaultLevel == nil && p.EnableSound == nil &&
		p.EnableVibration == nil && p.EnableAnimations == nil && p.MaxConcurrent == nil &&
		p.AutoClose == nil && p.Position == nil && p.Theme == nil && p.Language == nil &&
		len(p.DisabledTypes) == 0
}

// SettingsStore persists settings outside the process.
// LoadSettings returns nil, nil when nothing was saved yet.
type SettingsStore interface {
	LoadSettings(ctx context.Context) (*Settings, error)
	SaveSettings(ctx context.Context, s Settings) error
}
