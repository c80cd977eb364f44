package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"dario.cat/mergo"
	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/MrWong99/modelmixer/pkg/mixer"
)

// Format is a config file encoding.
type Format int

const (
	FormatYAML Format = iota
	FormatTOML
)

func (f Format) String() string {
	if f == FormatTOML {
		return "toml"
	}
	return "yaml"
}

// FormatFor picks the encoding from the file extension: ".toml" is TOML,
// anything else YAML.
func FormatFor(path string) Format {
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		return FormatTOML
	}
	return FormatYAML
}

// Load reads the configuration file at path and returns a validated [Config].
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	cfg, err := Parse(data, FormatFor(path))
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
func LoadFromReader(r io.Reader) (*Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("config: read: %w", err)
	}
	return Parse(data, FormatYAML)
}

// Parse decodes data, applies defaults and validates the result. Unknown
// keys are rejected in both formats.
//
// The mixer section is decoded on top of [mixer.DefaultConfig], so fields
// left out of the file keep their defaults while explicit values, including
// false and 0, are honoured.
func Parse(data []byte, f Format) (*Config, error) {
	cfg := &Config{Mixer: mixer.DefaultConfig()}

	switch f {
	case FormatTOML:
		md, err := toml.Decode(string(data), cfg)
		if err != nil {
			return nil, fmt.Errorf("config: decode toml: %w", err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, len(undecoded))
			for i, k := range undecoded {
				keys[i] = k.String()
			}
			return nil, fmt.Errorf("config: decode toml: unknown keys %s", strings.Join(keys, ", "))
		}
	default:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("config: decode yaml: %w", err)
		}
	}

	if err := ApplyDefaults(cfg); err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyDefaults fills zero-valued server, telemetry and mcp fields. The
// mixer section is left alone: a zero bool there is a real setting.
func ApplyDefaults(cfg *Config) error {
	if err := mergo.Merge(&cfg.Server, defaultServer); err != nil {
		return fmt.Errorf("config: server defaults: %w", err)
	}
	if err := mergo.Merge(&cfg.Telemetry, defaultTelemetry); err != nil {
		return fmt.Errorf("config: telemetry defaults: %w", err)
	}
	if err := mergo.Merge(&cfg.MCP, defaultMCP); err != nil {
		return fmt.Errorf("config: mcp defaults: %w", err)
	}
	return nil
}

// inertNotice is logged at most once per process.
var inertNotice sync.Once

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.LogFormat != "" && !cfg.Server.LogFormat.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_format %q is invalid; valid values: text, json, pretty", cfg.Server.LogFormat))
	}
	if cfg.Server.StatsPushInterval < 0 {
		errs = append(errs, fmt.Errorf("server.stats_push_interval %s must not be negative", cfg.Server.StatsPushInterval))
	}

	// Mount points
	if p := cfg.Telemetry.MetricsPath; p != "" && !strings.HasPrefix(p, "/") {
		errs = append(errs, fmt.Errorf("telemetry.metrics_path %q must start with /", p))
	}
	if p := cfg.MCP.Path; p != "" && !strings.HasPrefix(p, "/") {
		errs = append(errs, fmt.Errorf("mcp.path %q must start with /", p))
	}

	errs = append(errs, validateMixer(&cfg.Mixer)...)
	return errors.Join(errs...)
}

func validateMixer(m *mixer.Config) []error {
	var errs []error

	if !m.Strategy.Type.IsValid() {
		errs = append(errs, fmt.Errorf("mixer.strategy.type %q is invalid; valid values: round-robin, weighted, priority, failover, load-balance", m.Strategy.Type))
	}

	inert := m.Strategy.MaxConcurrent != 0 || m.Strategy.RetryDelay != 0

	seen := make(map[string]int, len(m.Providers))
	for i, p := range m.Providers {
		prefix := fmt.Sprintf("mixer.providers[%d]", i)
		if p.ID == "" {
			errs = append(errs, fmt.Errorf("%s.id is required", prefix))
		} else {
			if prev, ok := seen[p.ID]; ok {
				errs = append(errs, fmt.Errorf("%s.id %q is a duplicate of mixer.providers[%d]", prefix, p.ID, prev))
			}
			seen[p.ID] = i
		}
		if !p.Type.IsValid() {
			errs = append(errs, fmt.Errorf("%s.type %q is invalid; valid values: cloud, local", prefix, p.Type))
		}
		if p.Enabled && p.Endpoint == "" {
			errs = append(errs, fmt.Errorf("%s.endpoint is required for an enabled provider", prefix))
		}
		if p.Weight < 0 {
			errs = append(errs, fmt.Errorf("%s.weight %d must not be negative", prefix, p.Weight))
		}
		if p.Timeout < 0 {
			errs = append(errs, fmt.Errorf("%s.timeout %d must not be negative", prefix, p.Timeout))
		}
		if p.MaxRetries != 0 || p.RateLimit != 0 {
			inert = true
		}
	}

	if inert {
		inertNotice.Do(func() {
			slog.Info("mixer settings maxRetries, rateLimit, maxConcurrent and retryDelay are accepted but not enforced")
		})
	}
	return errs
}
