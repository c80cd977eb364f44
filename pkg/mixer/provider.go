package mixer

import "time"

// DefaultTimeout is applied to providers whose Timeout is not positive.
const DefaultTimeout = 30 * time.Second

// Kind classifies where a provider runs. It is informational only and never
// influences dispatch.
type Kind string

const (
	KindCloud Kind = "cloud"
	KindLocal Kind = "local"
)

// IsValid reports whether k is a recognised provider kind.
func (k Kind) IsValid() bool {
	return k == KindCloud || k == KindLocal
}

// Provider is a configured upstream endpoint together with its runtime
// statistics.
//
// The JSON field names are part of the import/export contract and must not
// change.
type Provider struct {
	ID       string `json:"id" yaml:"id" toml:"id"`
	Name     string `json:"name" yaml:"name" toml:"name"`
	Type     Kind   `json:"type" yaml:"type" toml:"type"`
	Endpoint string `json:"endpoint" yaml:"endpoint" toml:"endpoint"`
	APIKey   string `json:"apiKey,omitempty" yaml:"apiKey,omitempty" toml:"apiKey,omitempty"`
	Model    string `json:"model" yaml:"model" toml:"model"`

	// Enabled gates participation in every strategy and in health sweeps.
	Enabled bool `json:"enabled" yaml:"enabled" toml:"enabled"`

	// Weight is the relative share used by the weighted strategy.
	Weight int `json:"weight" yaml:"weight" toml:"weight"`

	// Priority orders providers for the priority and failover strategies.
	// Higher wins.
	Priority int `json:"priority" yaml:"priority" toml:"priority"`

	// Timeout bounds a single attempt, in milliseconds.
	Timeout int `json:"timeout" yaml:"timeout" toml:"timeout"`

	// MaxRetries and RateLimit are stored but not enforced.
	MaxRetries int `json:"maxRetries" yaml:"maxRetries" toml:"maxRetries"`
	RateLimit  int `json:"rateLimit" yaml:"rateLimit" toml:"rateLimit"`

	// LastUsed is the Unix millisecond timestamp at which the most recent
	// attempt started.
	LastUsed     int64 `json:"lastUsed" yaml:"lastUsed" toml:"lastUsed"`
	SuccessCount int64 `json:"successCount" yaml:"successCount" toml:"successCount"`
	ErrorCount   int64 `json:"errorCount" yaml:"errorCount" toml:"errorCount"`

	// AvgResponseTime is a smoothed response time in milliseconds.
	AvgResponseTime float64 `json:"avgResponseTime" yaml:"avgResponseTime" toml:"avgResponseTime"`
}

// TimeoutDuration returns the per-attempt deadline for p.
func (p *Provider) TimeoutDuration() time.Duration {
	if p.Timeout <= 0 {
		return DefaultTimeout
	}
	return time.Duration(p.Timeout) * time.Millisecond
}

// Attempts returns the number of recorded attempts.
func (p *Provider) Attempts() int64 {
	return p.SuccessCount + p.ErrorCount
}

// SuccessRate returns SuccessCount / Attempts, or 0 when nothing has been
// attempted yet.
func (p *Provider) SuccessRate() float64 {
	total := p.Attempts()
	if total == 0 {
		return 0
	}
	return float64(p.SuccessCount) / float64(total)
}

// resetStats clears the runtime statistics of p.
func (p *Provider) resetStats() {
	p.LastUsed = 0
	p.SuccessCount = 0
	p.ErrorCount = 0
	p.AvgResponseTime = 0
}

// recordSuccess applies a successful attempt. responseMs is ignored when it
// is not positive.
func (p *Provider) recordSuccess(responseMs float64) {
	p.SuccessCount++
	if responseMs <= 0 {
		return
	}
	if p.AvgResponseTime != 0 {
		p.AvgResponseTime = (p.AvgResponseTime + responseMs) / 2
	} else {
		p.AvgResponseTime = responseMs
	}
}

// recordFailure applies a failed attempt.
func (p *Provider) recordFailure() {
	p.ErrorCount++
}
