// Package config provides the configuration schema, loader, hot-reload
// watcher and diffing for the modelmixer service.
package config

import (
	"time"

	"github.com/MrWong99/modelmixer/pkg/mixer"
)

// LogLevel controls log verbosity for the modelmixer server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// LogFormat selects the log handler.
type LogFormat string

const (
	LogFormatText   LogFormat = "text"
	LogFormatJSON   LogFormat = "json"
	LogFormatPretty LogFormat = "pretty"
)

// IsValid reports whether f is a recognised log format.
func (f LogFormat) IsValid() bool {
	switch f {
	case LogFormatText, LogFormatJSON, LogFormatPretty:
		return true
	}
	return false
}

// Config is the root configuration structure for modelmixer. It is loaded
// from a YAML or TOML file using [Load].
type Config struct {
	Server    ServerConfig    `yaml:"server" toml:"server"`
	Telemetry TelemetryConfig `yaml:"telemetry" toml:"telemetry"`
	MCP       MCPConfig       `yaml:"mcp" toml:"mcp"`

	// Mixer uses the same camelCase field names as the JSON export document.
	Mixer mixer.Config `yaml:"mixer" toml:"mixer"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the HTTP API listens on. Default ":8080".
	ListenAddr string `yaml:"listen_addr" toml:"listen_addr"`

	// LogLevel controls verbosity. Hot-reloadable. Default "info".
	LogLevel LogLevel `yaml:"log_level" toml:"log_level"`

	// LogFormat selects text, json or pretty output. Default "text".
	LogFormat LogFormat `yaml:"log_format" toml:"log_format"`

	// StatsPushInterval is the period of the WebSocket stats stream.
	// Default 5s.
	StatsPushInterval time.Duration `yaml:"stats_push_interval" toml:"stats_push_interval"`
}

// TelemetryConfig configures metrics and tracing.
type TelemetryConfig struct {
	// ServiceName is reported in telemetry resources. Default "modelmixer".
	ServiceName string `yaml:"service_name" toml:"service_name"`

	// MetricsPath is where the Prometheus scrape handler is mounted.
	// Default "/metrics".
	MetricsPath string `yaml:"metrics_path" toml:"metrics_path"`
}

// MCPConfig configures the Model Context Protocol endpoint.
type MCPConfig struct {
	Enabled bool `yaml:"enabled" toml:"enabled"`

	// Path is where the streamable HTTP handler is mounted. Default "/mcp".
	Path string `yaml:"path" toml:"path"`
}

var (
	defaultServer = ServerConfig{
		ListenAddr:        ":8080",
		LogLevel:          LogInfo,
		LogFormat:         LogFormatText,
		StatsPushInterval: 5 * time.Second,
	}
	defaultTelemetry = TelemetryConfig{
		ServiceName: "modelmixer",
		MetricsPath: "/metrics",
	}
	defaultMCP = MCPConfig{
		Path: "/mcp",
	}
)

// Defaults returns a complete configuration with every default applied and
// the default mixer configuration.
func Defaults() *Config {
	return &Config{
		Server:    defaultServer,
		Telemetry: defaultTelemetry,
		MCP:       defaultMCP,
		Mixer:     mixer.DefaultConfig(),
	}
}
