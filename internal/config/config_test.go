package config_test

import (
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/MrWong99/modelmixer/internal/config"
	"github.com/MrWong99/modelmixer/pkg/mixer"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestDefaults(t *testing.T) {
	t.Parallel()
	cfg := config.Defaults()

	if cfg.Server.ListenAddr != ":8080" || cfg.Server.LogLevel != config.LogInfo || cfg.Server.LogFormat != config.LogFormatText {
		t.Errorf("server = %+v", cfg.Server)
	}
	if cfg.Server.StatsPushInterval != 5*time.Second {
		t.Errorf("stats_push_interval = %s", cfg.Server.StatsPushInterval)
	}
	if cfg.Telemetry.ServiceName != "modelmixer" || cfg.Telemetry.MetricsPath != "/metrics" {
		t.Errorf("telemetry = %+v", cfg.Telemetry)
	}
	if cfg.MCP.Enabled || cfg.MCP.Path != "/mcp" {
		t.Errorf("mcp = %+v", cfg.MCP)
	}
	if cfg.Mixer.Strategy != mixer.DefaultConfig().Strategy {
		t.Errorf("mixer strategy = %+v", cfg.Mixer.Strategy)
	}
	if err := config.Validate(cfg); err != nil {
		t.Errorf("defaults do not validate: %v", err)
	}
}

func TestApplyDefaults_FillsOnlyZeroFields(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{
		Server:    config.ServerConfig{ListenAddr: "127.0.0.1:7000"},
		Telemetry: config.TelemetryConfig{MetricsPath: "/prom"},
	}
	if err := config.ApplyDefaults(cfg); err != nil {
		t.Fatalf("ApplyDefaults: %v", err)
	}
	if cfg.Server.ListenAddr != "127.0.0.1:7000" || cfg.Server.LogLevel != config.LogInfo {
		t.Errorf("server = %+v", cfg.Server)
	}
	if cfg.Telemetry.MetricsPath != "/prom" || cfg.Telemetry.ServiceName != "modelmixer" {
		t.Errorf("telemetry = %+v", cfg.Telemetry)
	}
	if cfg.MCP.Path != "/mcp" {
		t.Errorf("mcp.path = %q", cfg.MCP.Path)
	}
}

func TestLogLevel_IsValid(t *testing.T) {
	t.Parallel()
	for _, l := range []config.LogLevel{config.LogDebug, config.LogInfo, config.LogWarn, config.LogError} {
		if !l.IsValid() {
			t.Errorf("%q reported invalid", l)
		}
	}
	if config.LogLevel("trace").IsValid() {
		t.Error("trace reported valid")
	}
}

func TestLogFormat_IsValid(t *testing.T) {
	t.Parallel()
	for _, f := range []config.LogFormat{config.LogFormatText, config.LogFormatJSON, config.LogFormatPretty} {
		if !f.IsValid() {
			t.Errorf("%q reported invalid", f)
		}
	}
	if config.LogFormat("logfmt").IsValid() {
		t.Error("logfmt reported valid")
	}
}
