package mixer

import (
	"encoding/json"
	"slices"
)

// StrategyType selects how a provider is chosen for a call.
type StrategyType string

const (
	StrategyRoundRobin  StrategyType = "round-robin"
	StrategyWeighted    StrategyType = "weighted"
	StrategyPriority    StrategyType = "priority"
	StrategyFailover    StrategyType = "failover"
	StrategyLoadBalance StrategyType = "load-balance"
)

// IsValid reports whether s is a recognised strategy type.
func (s StrategyType) IsValid() bool {
	switch s {
	case StrategyRoundRobin, StrategyWeighted, StrategyPriority, StrategyFailover, StrategyLoadBalance:
		return true
	}
	return false
}

// Strategy is the active dispatch policy.
type Strategy struct {
	Type StrategyType `json:"type" yaml:"type" toml:"type"`

	// FallbackEnabled lets a failed single-provider attempt move on to the
	// remaining enabled providers. Ignored by the failover strategy, which
	// always walks the full priority order.
	FallbackEnabled bool `json:"fallbackEnabled" yaml:"fallbackEnabled" toml:"fallbackEnabled"`

	// MaxConcurrent and RetryDelay (ms) are stored but not enforced.
	MaxConcurrent int `json:"maxConcurrent" yaml:"maxConcurrent" toml:"maxConcurrent"`
	RetryDelay    int `json:"retryDelay" yaml:"retryDelay" toml:"retryDelay"`

	// HealthCheckInterval is the time between health sweeps in milliseconds.
	// A non-positive value disables health checking.
	HealthCheckInterval int `json:"healthCheckInterval" yaml:"healthCheckInterval" toml:"healthCheckInterval"`
}

// Config is the aggregate root owned by a [Mixer]. Provider order matters for
// round-robin and for fallback order.
type Config struct {
	Providers []Provider `json:"providers" yaml:"providers" toml:"providers"`
	Strategy  Strategy   `json:"strategy" yaml:"strategy" toml:"strategy"`

	// Enabled is the global kill switch for Call.
	Enabled bool `json:"enabled" yaml:"enabled" toml:"enabled"`

	// Logging gates per-attempt diagnostics.
	Logging bool `json:"logging" yaml:"logging" toml:"logging"`
}

// DefaultConfig returns a disabled mixer with no providers, round-robin
// dispatch with fallback, and a one minute health sweep.
func DefaultConfig() Config {
	return Config{
		Providers: []Provider{},
		Strategy: Strategy{
			Type:                StrategyRoundRobin,
			FallbackEnabled:     true,
			MaxConcurrent:       3,
			RetryDelay:          1000,
			HealthCheckInterval: 60000,
		},
		Enabled: false,
		Logging: true,
	}
}

// Clone returns a deep copy of c.
func (c Config) Clone() Config {
	c.Providers = slices.Clone(c.Providers)
	return c
}

// Provider returns a copy of the provider with the given id.
func (c Config) Provider(id string) (Provider, bool) {
	for _, p := range c.Providers {
		if p.ID == id {
			return p, true
		}
	}
	return Provider{}, false
}

// MarshalConfig renders c as the pretty-printed export document.
func MarshalConfig(c Config) ([]byte, error) {
	return json.MarshalIndent(c, "", "  ")
}

// UnmarshalConfig parses an export document. Any decoding failure is
// reported as an [*ImportError].
func UnmarshalConfig(data []byte) (Config, error) {
	var c Config
	if err := json.Unmarshal(data, &c); err != nil {
		return Config{}, &ImportError{Err: err}
	}
	return c, nil
}
