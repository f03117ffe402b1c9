package templates

import (
	"fmt"
	"os"
	"strings"
	"time"

	yaml "go.yaml.in/yaml/v3"
)

// Catalog is the on-disk YAML form of template overrides.
//
// Example:
//
//	default_language: en
//	overrides:
//	  ROOM_FULL: { level: popup, priority: 5, duration: 4s }
//	languages:
//	  zh-CN:
//	    ROOM_FULL: { title: "房间已满", message: "这个房间已经有两个人了" }
type Catalog struct {
	DefaultLanguage string                   `yaml:"default_language"`
	Overrides       map[Type]Override        `yaml:"overrides"`
	Languages       map[string]map[Type]Text `yaml:"languages"`
}

// Override replaces presentation fields of a built-in template. Empty fields keep the default.
type Override struct {
	Title     string   `yaml:"title"`
	Message   string   `yaml:"message"`
	Icon      string   `yaml:"icon"`
	Level     Level    `yaml:"level"`
	Priority  int      `yaml:"priority"`
	Duration  string   `yaml:"duration"`
	Animation string   `yaml:"animation"`
	SoundID   string   `yaml:"sound"`
	Vibration []string `yaml:"vibration"`
	Actions   []Action `yaml:"actions"`
}

// Text is a translation of the user-visible strings of a template.
type Text struct {
	Title   string `yaml:"title"`
	Message string `yaml:"message"`
}

// LoadCatalog reads a YAML catalog from path.
func LoadCatalog(path string) (*Catalog, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseCatalog(b)
}

// ParseCatalog decodes a YAML catalog. Unknown keys are rejected.
func ParseCatalog(b []byte) (*Catalog, error) {
	var c Catalog
	dec := yaml.NewDecoder(strings.NewReader(string(b)))
	dec.KnownFields(true)
	if err := dec.Decode(&c); err != nil {
		return nil, fmt.Errorf("template catalog: %w", err)
	}
	return &c, nil
}

func (r *Registry) apply(c *Catalog) error {
	if l := strings.TrimSpace(c.DefaultLanguage); l != "" {
		r.defaultLang = l
	}
	for typ, o := range c.Overrides {
		t, ok := r.base[typ]
		if !ok {
			return fmt.Errorf("template catalog: override for %w: %s", ErrTemplateNotFound, typ)
		}
		merged, err := o.applyTo(t)
		if err != nil {
			return fmt.Errorf("template catalog: %s: %w", typ, err)
		}
		r.base[typ] = merged
	}
	for lang, texts := range c.Languages {
		lang = strings.TrimSpace(lang)
		if lang == "" {
			continue
		}
		m := make(map[Type]Text, len(texts))
		for typ, tx := range texts {
			if _, ok := r.base[typ]; !ok {
				return fmt.Errorf("template catalog: %s translation for %w: %s", lang, ErrTemplateNotFound, typ)
			}
			m[typ] = tx
		}
		r.localized[lang] = m
	}
	return nil
}

func (o Override) applyTo(t Template) (Template, error) {
	if o.Title != "" {
		t.Title = o.Title
	}
	if o.Message != "" {
		t.Message = o.Message
	}
	if o.Icon != "" {
		t.Icon = o.Icon
	}
	if o.Level != "" {
		if !o.Level.Valid() {
			return t, fmt.Errorf("invalid level %q", o.Level)
		}
		t.Level = o.Level
	}
	if o.Priority != 0 {
		if o.Priority < PriorityMin || o.Priority > PriorityCritical {
			return t, fmt.Errorf("priority %d out of range 1..5", o.Priority)
		}
		t.Priority = o.Priority
	}
	if s := strings.TrimSpace(o.Duration); s != "" {
		d, err := time.ParseDuration(s)
		if err != nil || d < 0 {
			return t, fmt.Errorf("invalid duration %q", o.Duration)
		}
		t.Duration = d
	}
	if o.Animation != "" {
		t.Animation = Animation(strings.ToLower(o.Animation))
	}
	if o.SoundID != "" {
		t.SoundID = o.SoundID
	}
	if len(o.Vibration) > 0 {
		pattern := make([]time.Duration, 0, len(o.Vibration))
		for _, raw := range o.Vibration {
			d, err := time.ParseDuration(strings.TrimSpace(raw))
			if err != nil || d < 0 {
				return t, fmt.Errorf("invalid vibration interval %q", raw)
			}
			pattern = append(pattern, d)
		}
		t.Vibration = pattern
	}
	if len(o.Actions) > 0 {
		t.Actions = append([]Action(nil), o.Actions...)
	}
	return t, nil
}
