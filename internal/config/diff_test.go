package config_test

import (
	"reflect"
	"slices"
	"testing"

	"github.com/MrWong99/modelmixer/internal/config"
	"github.com/MrWong99/modelmixer/pkg/mixer"
)

func baseDiffConfig() *config.Config {
	cfg := config.Defaults()
	cfg.Mixer.Enabled = true
	a := mixer.NewProvider("a")
	a.Endpoint = "http://a.invalid"
	b := mixer.NewProvider("b")
	b.Endpoint = "http://b.invalid"
	cfg.Mixer.Providers = []mixer.Provider{a, b}
	return cfg
}

func cloneConfig(c *config.Config) *config.Config {
	out := *c
	out.Mixer = c.Mixer.Clone()
	return &out
}

func TestDiff_NoChange(t *testing.T) {
	t.Parallel()
	old := baseDiffConfig()
	d := config.Diff(old, cloneConfig(old))
	if !reflect.DeepEqual(d, config.ConfigDiff{}) {
		t.Errorf("diff = %+v, want empty", d)
	}
}

func TestDiff_StatsAreIgnored(t *testing.T) {
	t.Parallel()
	old := baseDiffConfig()
	next := cloneConfig(old)
	next.Mixer.Providers[0].SuccessCount = 9
	next.Mixer.Providers[0].AvgResponseTime = 12.5

	if d := config.Diff(old, next); d.MixerChanged {
		t.Errorf("statistics counted as a change: %+v", d)
	}
}

func TestDiff_LogLevel(t *testing.T) {
	t.Parallel()
	old := baseDiffConfig()
	next := cloneConfig(old)
	next.Server.LogLevel = config.LogDebug

	d := config.Diff(old, next)
	if !d.LogLevelChanged || d.NewLogLevel != config.LogDebug {
		t.Errorf("diff = %+v", d)
	}
	if d.MixerChanged || len(d.RestartRequired) != 0 {
		t.Errorf("unexpected extra changes: %+v", d)
	}
}

func TestDiff_Providers(t *testing.T) {
	t.Parallel()
	old := baseDiffConfig()
	next := cloneConfig(old)
	next.Mixer.Providers[1].Weight = 5 // b modified
	c := mixer.NewProvider("c")
	c.Endpoint = "http://c.invalid"
	next.Mixer.Providers = append(next.Mixer.Providers[1:], c) // a removed, c added

	d := config.Diff(old, next)
	want := []config.ProviderDiff{
		{ID: "a", Removed: true},
		{ID: "b", Modified: true},
		{ID: "c", Added: true},
	}
	if !reflect.DeepEqual(d.ProviderChanges, want) {
		t.Errorf("provider changes = %+v, want %+v", d.ProviderChanges, want)
	}
	if !d.MixerChanged {
		t.Error("MixerChanged = false")
	}
}

func TestDiff_ProviderReorder(t *testing.T) {
	t.Parallel()
	old := baseDiffConfig()
	next := cloneConfig(old)
	slices.Reverse(next.Mixer.Providers)

	d := config.Diff(old, next)
	if !d.MixerChanged || len(d.ProviderChanges) != 0 {
		t.Errorf("diff = %+v, want order-only mixer change", d)
	}
}

func TestDiff_StrategyAndSwitches(t *testing.T) {
	t.Parallel()
	old := baseDiffConfig()
	next := cloneConfig(old)
	next.Mixer.Strategy.Type = mixer.StrategyWeighted
	next.Mixer.Enabled = false
	next.Mixer.Logging = false

	d := config.Diff(old, next)
	if !d.StrategyChanged || !d.EnabledChanged || !d.LoggingChanged || !d.MixerChanged {
		t.Errorf("diff = %+v", d)
	}
}

func TestDiff_RestartRequired(t *testing.T) {
	t.Parallel()
	old := baseDiffConfig()
	next := cloneConfig(old)
	next.Server.ListenAddr = ":9999"
	next.Server.LogFormat = config.LogFormatPretty
	next.MCP.Enabled = true

	d := config.Diff(old, next)
	want := []string{"server.listen_addr", "server.log_format", "mcp"}
	if !reflect.DeepEqual(d.RestartRequired, want) {
		t.Errorf("RestartRequired = %v, want %v", d.RestartRequired, want)
	}
}
