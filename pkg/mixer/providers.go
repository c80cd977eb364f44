package mixer

import (
	"errors"
	"fmt"
	"slices"
)

var (
	// ErrUnknownProvider is returned when no provider has the given id.
	ErrUnknownProvider = errors.New("unknown provider")

	// ErrDuplicateProvider is returned when adding a provider whose id is
	// already configured.
	ErrDuplicateProvider = errors.New("duplicate provider id")
)

// NewProvider returns a provider with id and the defaults used for freshly
// added entries: an enabled cloud provider with weight and priority 1, a 30s
// timeout, 3 retries and 60 requests per unit of rate limit.
func NewProvider(id string) Provider {
	return Provider{
		ID:         id,
		Name:       "New provider",
		Type:       KindCloud,
		Enabled:    true,
		Weight:     1,
		Priority:   1,
		Timeout:    int(DefaultTimeout.Milliseconds()),
		MaxRetries: 3,
		RateLimit:  60,
	}
}

// ProviderPatch is a partial provider update. Nil fields are left unchanged.
// Runtime statistics cannot be patched.
type ProviderPatch struct {
	Name       *string `json:"name,omitempty"`
	Type       *Kind   `json:"type,omitempty"`
	Endpoint   *string `json:"endpoint,omitempty"`
	APIKey     *string `json:"apiKey,omitempty"`
	Model      *string `json:"model,omitempty"`
	Enabled    *bool   `json:"enabled,omitempty"`
	Weight     *int    `json:"weight,omitempty"`
	Priority   *int    `json:"priority,omitempty"`
	Timeout    *int    `json:"timeout,omitempty"`
	MaxRetries *int    `json:"maxRetries,omitempty"`
	RateLimit  *int    `json:"rateLimit,omitempty"`
}

// Apply copies the non-nil fields of pp onto p.
func (pp ProviderPatch) Apply(p *Provider) {
	set(&p.Name, pp.Name)
	set(&p.Type, pp.Type)
	set(&p.Endpoint, pp.Endpoint)
	set(&p.APIKey, pp.APIKey)
	set(&p.Model, pp.Model)
	set(&p.Enabled, pp.Enabled)
	set(&p.Weight, pp.Weight)
	set(&p.Priority, pp.Priority)
	set(&p.Timeout, pp.Timeout)
	set(&p.MaxRetries, pp.MaxRetries)
	set(&p.RateLimit, pp.RateLimit)
}

func set[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}

// AddProvider appends p to the provider list.
func (m *Mixer) AddProvider(p Provider) error {
	return m.modify(func(c *Config) error {
		if _, ok := c.Provider(p.ID); ok {
			return fmt.Errorf("mixer: add %q: %w", p.ID, ErrDuplicateProvider)
		}
		c.Providers = append(c.Providers, p)
		return nil
	})
}

// PatchProvider applies patch to the provider with id and returns the
// updated provider. Its statistics are preserved.
func (m *Mixer) PatchProvider(id string, patch ProviderPatch) (Provider, error) {
	var updated Provider
	err := m.modify(func(c *Config) error {
		i := slices.IndexFunc(c.Providers, func(p Provider) bool { return p.ID == id })
		if i < 0 {
			return fmt.Errorf("mixer: patch %q: %w", id, ErrUnknownProvider)
		}
		patch.Apply(&c.Providers[i])
		updated = c.Providers[i]
		return nil
	})
	return updated, err
}

// RemoveProvider deletes the provider with id. Attempts in flight against it
// finish normally but their statistics are discarded.
func (m *Mixer) RemoveProvider(id string) error {
	return m.modify(func(c *Config) error {
		i := slices.IndexFunc(c.Providers, func(p Provider) bool { return p.ID == id })
		if i < 0 {
			return fmt.Errorf("mixer: remove %q: %w", id, ErrUnknownProvider)
		}
		c.Providers = slices.Delete(c.Providers, i, i+1)
		return nil
	})
}

// SetStrategy replaces the dispatch strategy and leaves providers untouched.
func (m *Mixer) SetStrategy(s Strategy) {
	_ = m.modify(func(c *Config) error {
		c.Strategy = s
		return nil
	})
}

// SetEnabled flips the global switch.
func (m *Mixer) SetEnabled(enabled bool) {
	_ = m.modify(func(c *Config) error {
		c.Enabled = enabled
		return nil
	})
}
