package config

import (
	"reflect"
	"sort"
	"strings"

	logx "nudge/pkg/logx"
)

// SummarizeConfigChange returns the changed sections and safe structured
// fields for logging. Secrets such as the observability token are never
// included; only whether one is set.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 8)
	attrs := make([]logx.Field, 0, 24)

	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	if !reflect.DeepEqual(oldCfg.Engine, newCfg.Engine) {
		changed = append(changed, "engine")
		e := newCfg.Engine
		attrs = append(attrs,
			logx.Bool("engine.enabled", Enabled(e.Enabled, true)),
			logx.Int("engine.max_concurrent", e.MaxConcurrent),
			logx.String("engine.position", e.Position),
			logx.String("engine.theme", e.Theme),
			logx.String("engine.language", e.Language),
			logx.Int("engine.disabled_types", len(e.DisabledTypes)),
		)
	}

	if !reflect.DeepEqual(oldCfg.Device, newCfg.Device) {
		changed = append(changed, "device")
	}

	if !reflect.DeepEqual(oldCfg.Effects, newCfg.Effects) {
		changed = append(changed, "effects")
		attrs = append(attrs,
			logx.Any("effects.rate_per_sec", newCfg.Effects.RatePerSec),
			logx.Int("effects.burst", newCfg.Effects.Burst),
		)
	}

	if !reflect.DeepEqual(oldCfg.Terminal, newCfg.Terminal) {
		changed = append(changed, "terminal")
	}

	if strings.TrimSpace(oldCfg.Templates.Catalog) != strings.TrimSpace(newCfg.Templates.Catalog) {
		changed = append(changed, "templates")
		attrs = append(attrs, logx.Bool("templates.catalog_set", strings.TrimSpace(newCfg.Templates.Catalog) != ""))
	}

	var oS, nS StorageConfig
	if oldCfg.Storage != nil {
		oS = *oldCfg.Storage
	}
	if newCfg.Storage != nil {
		nS = *newCfg.Storage
	}
	if oS != nS {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", strings.TrimSpace(nS.Driver)),
			logx.Bool("storage.path_set", strings.TrimSpace(nS.Path) != ""),
			logx.Int("storage.history_limit", nS.HistoryLimit),
		)
	}

	if !reflect.DeepEqual(oldCfg.Reminders, newCfg.Reminders) {
		changed = append(changed, "reminders")
		attrs = append(attrs,
			logx.Bool("reminders.enabled", newCfg.Reminders.Enabled),
			logx.String("reminders.timezone", newCfg.Reminders.Timezone),
			logx.Int("reminders.jobs", len(newCfg.Reminders.Jobs)),
		)
	}

	var oO, nO ObservabilityConfig
	if oldCfg.Observability != nil {
		oO = *oldCfg.Observability
	}
	if newCfg.Observability != nil {
		nO = *newCfg.Observability
	}
	if oO != nO {
		changed = append(changed, "observability")
		attrs = append(attrs,
			logx.Bool("observability.enabled", nO.Enabled),
			logx.String("observability.addr", strings.TrimSpace(nO.Addr)),
			logx.Bool("observability.pprof", nO.Pprof),
			logx.Bool("observability.token_set", strings.TrimSpace(nO.Token) != ""),
			logx.Bool("observability.allow_insecure", nO.AllowInsecure),
		)
	}

	sort.Strings(changed)
	return changed, attrs
}
