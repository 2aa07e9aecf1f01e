package config

import (
	"reflect"
	"slices"

	"github.com/MrWong99/kojo/internal/moderation"
)

// ConfigDiff describes what changed between two configs. Hot-reloadable
// fields are reported individually; everything else is collected in
// RestartRequired so the operator can be warned.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// PolicyChanged is true when the policy table or the low-confidence
	// threshold differ.
	PolicyChanged     bool
	ChangedCategories []moderation.Category
	ThresholdChanged  bool

	RateLimitChanged bool

	// RestartRequired names config sections that changed but are only read
	// at startup.
	RestartRequired []string
}

// Empty reports whether nothing changed.
func (d ConfigDiff) Empty() bool {
	return !d.LogLevelChanged && !d.PolicyChanged && !d.RateLimitChanged && len(d.RestartRequired) == 0
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	om, nm := old.Moderation, new.Moderation
	if om.LowConfidenceThreshold != nm.LowConfidenceThreshold {
		d.ThresholdChanged = true
		d.PolicyChanged = true
	}
	for _, c := range moderation.Categories {
		oe, oOK := om.Policy[c]
		ne, nOK := nm.Policy[c]
		if oOK != nOK || oe != ne {
			d.ChangedCategories = append(d.ChangedCategories, c)
			d.PolicyChanged = true
		}
	}
	if om.RequestsPerSecond != nm.RequestsPerSecond || om.Burst != nm.Burst {
		d.RateLimitChanged = true
	}

	if old.Server.ListenAddr != new.Server.ListenAddr {
		d.RestartRequired = append(d.RestartRequired, "server.listen_addr")
	}
	if old.Discord != new.Discord {
		d.RestartRequired = append(d.RestartRequired, "discord")
	}
	if old.Voice != new.Voice {
		d.RestartRequired = append(d.RestartRequired, "voice")
	}
	if !providersEqual(old.Providers, new.Providers) {
		d.RestartRequired = append(d.RestartRequired, "providers")
	}
	if old.Media != new.Media {
		d.RestartRequired = append(d.RestartRequired, "media")
	}
	if old.Cache != new.Cache {
		d.RestartRequired = append(d.RestartRequired, "cache")
	}

	return d
}

func providersEqual(a, b ProvidersConfig) bool {
	return entryEqual(a.LLM, b.LLM) && entryEqual(a.STT, b.STT) &&
		slices.EqualFunc(a.LLMFallbacks, b.LLMFallbacks, entryEqual) &&
		slices.EqualFunc(a.STTFallbacks, b.STTFallbacks, entryEqual)
}

func entryEqual(a, b ProviderEntry) bool {
	if a.Name != b.Name || a.APIKey != b.APIKey || a.BaseURL != b.BaseURL || a.Model != b.Model {
		return false
	}
	return reflect.DeepEqual(a.Options, b.Options)
}
