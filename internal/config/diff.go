package config

import "github.com/MrWong99/modelmixer/pkg/mixer"

// ConfigDiff describes what changed between two configs.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// MixerChanged is true if anything in the mixer section other than
	// runtime statistics differs.
	MixerChanged    bool
	StrategyChanged bool
	EnabledChanged  bool
	LoggingChanged  bool
	ProviderChanges []ProviderDiff

	// RestartRequired lists changed settings that only take effect after a
	// restart.
	RestartRequired []string
}

// ProviderDiff describes a change to a single provider, keyed by id.
type ProviderDiff struct {
	ID       string
	Added    bool
	Removed  bool
	Modified bool
}

// Diff compares old and new configs and returns what changed. Provider
// changes are reported in old-list order followed by additions in new-list
// order.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if old.Server.ListenAddr != new.Server.ListenAddr {
		d.RestartRequired = append(d.RestartRequired, "server.listen_addr")
	}
	if old.Server.LogFormat != new.Server.LogFormat {
		d.RestartRequired = append(d.RestartRequired, "server.log_format")
	}
	if old.Server.StatsPushInterval != new.Server.StatsPushInterval {
		d.RestartRequired = append(d.RestartRequired, "server.stats_push_interval")
	}
	if old.Telemetry != new.Telemetry {
		d.RestartRequired = append(d.RestartRequired, "telemetry")
	}
	if old.MCP != new.MCP {
		d.RestartRequired = append(d.RestartRequired, "mcp")
	}

	om, nm := &old.Mixer, &new.Mixer
	d.StrategyChanged = om.Strategy != nm.Strategy
	d.EnabledChanged = om.Enabled != nm.Enabled
	d.LoggingChanged = om.Logging != nm.Logging

	oldByID := make(map[string]mixer.Provider, len(om.Providers))
	for _, p := range om.Providers {
		oldByID[p.ID] = p
	}
	newByID := make(map[string]mixer.Provider, len(nm.Providers))
	for _, p := range nm.Providers {
		newByID[p.ID] = p
	}

	for _, p := range om.Providers {
		np, ok := newByID[p.ID]
		switch {
		case !ok:
			d.ProviderChanges = append(d.ProviderChanges, ProviderDiff{ID: p.ID, Removed: true})
		case withoutStats(p) != withoutStats(np):
			d.ProviderChanges = append(d.ProviderChanges, ProviderDiff{ID: p.ID, Modified: true})
		}
	}
	for _, p := range nm.Providers {
		if _, ok := oldByID[p.ID]; !ok {
			d.ProviderChanges = append(d.ProviderChanges, ProviderDiff{ID: p.ID, Added: true})
		}
	}

	d.MixerChanged = d.StrategyChanged || d.EnabledChanged || d.LoggingChanged ||
		len(d.ProviderChanges) > 0 || providerOrder(om) != providerOrder(nm)
	return d
}

// withoutStats returns p with its runtime statistics cleared.
func withoutStats(p mixer.Provider) mixer.Provider {
	p.LastUsed = 0
	p.SuccessCount = 0
	p.ErrorCount = 0
	p.AvgResponseTime = 0
	return p
}

// providerOrder fingerprints the id order, which round-robin and fallback
// depend on.
func providerOrder(c *mixer.Config) string {
	var s string
	for _, p := range c.Providers {
		s += p.ID + "\x00"
	}
	return s
}
