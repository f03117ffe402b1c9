package config

// Config is the daemon configuration file (JSON, or YAML by extension).
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
type Config struct {
	Logging       LoggingConfig        `json:"logging"`
	Engine        EngineConfig         `json:"engine"`
	Device        DeviceConfig         `json:"device,omitempty"`
	Effects       EffectsConfig        `json:"effects,omitempty"`
	Terminal      TerminalConfig       `json:"terminal,omitempty"`
	Templates     TemplatesConfig      `json:"templates,omitempty"`
	Storage       *StorageConfig       `json:"storage,omitempty"`
	Reminders     RemindersConfig      `json:"reminders,omitempty"`
	Observability *ObservabilityConfig `json:"observability,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// EngineConfig seeds the engine settings. Pointer fields distinguish
// "omitted" (use the default) from an explicit false.
//
// Settings saved by the engine at runtime take precedence at startup; a
// config reload re-applies only the fields that changed in the file.
type EngineConfig struct {
	Enabled          *bool    `json:"enabled,omitempty"`
	DefaultLevel     string   `json:"default_level,omitempty"`
	EnableSound      *bool    `json:"enable_sound,omitempty"`
	EnableVibration  *bool    `json:"enable_vibration,omitempty"`
	EnableAnimations *bool    `json:"enable_animations,omitempty"`
	MaxConcurrent    int      `json:"max_concurrent,omitempty"`
	AutoClose        *bool    `json:"auto_close,omitempty"`
	Position         string   `json:"position,omitempty"`
	Theme            string   `json:"theme,omitempty"`
	Language         string   `json:"language,omitempty"`
	DisabledTypes    []string `json:"disabled_types,omitempty"`
	// DedupWindow defaults to 10s.
	DedupWindow string `json:"dedup_window,omitempty"`
}

// DeviceConfig pins host capabilities; omitted fields are probed.
type DeviceConfig struct {
	HasVibration *bool `json:"has_vibration,omitempty"`
	HasAudio     *bool `json:"has_audio,omitempty"`
	SmallScreen  *bool `json:"small_screen,omitempty"`
}

// EffectsConfig tunes side effects.
//
// Defaults:
//   - rate_per_sec: 2 (0 keeps the default; negative disables limiting)
//   - burst: 3
//   - timeout: "5s"
//   - live_ttl: "1s"
type EffectsConfig struct {
	RatePerSec float64 `json:"rate_per_sec,omitempty"`
	Burst      int     `json:"burst,omitempty"`
	Timeout    string  `json:"timeout,omitempty"`
	LiveTTL    string  `json:"live_ttl,omitempty"`
}

// TerminalConfig controls the terminal surfaces.
type TerminalConfig struct {
	// Width overrides the detected terminal width.
	Width int `json:"width,omitempty"`
	// Bell rings the terminal bell for sounds (default true).
	Bell *bool `json:"bell,omitempty"`
	// Console enables stdin control commands (default true).
	Console *bool `json:"console,omitempty"`
}

// TemplatesConfig points at an optional YAML catalog layered over the
// built-in templates.
type TemplatesConfig struct {
	Catalog string `json:"catalog,omitempty"`
}

// StorageConfig controls the optional persistence layer.
//
// Example:
//
//	"storage": { "driver": "file", "path": "./nudge_store" }
type StorageConfig struct {
	Driver       string `json:"driver"`
	Path         string `json:"path"`
	BusyTimeout  string `json:"busy_timeout,omitempty"` // sqlite
	HistoryLimit int    `json:"history_limit,omitempty"`
}

// RemindersConfig schedules notifications with cron expressions.
type RemindersConfig struct {
	Enabled  bool          `json:"enabled"`
	Timezone string        `json:"timezone,omitempty"`
	Jobs     []ReminderJob `json:"jobs,omitempty"`
}

// ReminderJob shows one notification on a schedule.
//
// Spec accepts standard 5-field cron, an optional seconds field, and
// descriptors such as "@daily" or "@every 30m".
type ReminderJob struct {
	Name     string            `json:"name"`
	Spec     string            `json:"spec"`
	Type     string            `json:"type"`
	Title    string            `json:"title,omitempty"`
	Message  string            `json:"message,omitempty"`
	Vars     map[string]string `json:"vars,omitempty"`
	Priority int               `json:"priority,omitempty"`
	Disabled bool              `json:"disabled,omitempty"`
}

// ObservabilityConfig controls the optional HTTP server exposing /metrics,
// /healthz, /stats and pprof.
//
// Security note:
//   - Prefer binding to localhost (e.g. "127.0.0.1:9464").
//   - If you bind to a non-loopback address, set a token or explicitly allow_insecure.
type ObservabilityConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr,omitempty"`  // default: "127.0.0.1:9464"
	Token         string `json:"token,omitempty"` // optional bearer token (do not log)
	AllowInsecure bool   `json:"allow_insecure,omitempty"`
	Pprof         bool   `json:"pprof,omitempty"`

	// Server timeouts. WriteTimeout defaults to 0 (disabled) so /debug/pprof/profile
	// (which can take 30s+) works reliably.
	ReadTimeout  string `json:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty"`
	IdleTimeout  string `json:"idle_timeout,omitempty"`

	// Runtime profiling rates. Leave 0 to keep Go defaults.
	MutexProfileFraction int `json:"mutex_profile_fraction,omitempty"`
	BlockProfileRate     int `json:"block_profile_rate,omitempty"`
}
