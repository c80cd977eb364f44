package mixer

// ProviderStats is the per-provider view returned by [Mixer.Stats].
type ProviderStats struct {
	ID              string  `json:"id"`
	Name            string  `json:"name"`
	Type            Kind    `json:"type"`
	Enabled         bool    `json:"enabled"`
	SuccessCount    int64   `json:"successCount"`
	ErrorCount      int64   `json:"errorCount"`
	SuccessRate     float64 `json:"successRate"`
	AvgResponseTime float64 `json:"avgResponseTime"`
	LastUsed        int64   `json:"lastUsed"`
}

// Stats is a point-in-time snapshot of every configured provider.
type Stats struct {
	Providers []ProviderStats `json:"providers"`
	Strategy  Strategy        `json:"strategy"`
	Enabled   bool            `json:"enabled"`

	// TotalCalls sums successes and errors over all providers, enabled or
	// not.
	TotalCalls int64 `json:"totalCalls"`
}

// Stats returns a statistics snapshot in provider list order.
func (m *Mixer) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := Stats{
		Providers: make([]ProviderStats, 0, len(m.reg.providers)),
		Strategy:  m.cfg.Strategy,
		Enabled:   m.cfg.Enabled,
	}
	for i := range m.reg.providers {
		p := &m.reg.providers[i]
		s.Providers = append(s.Providers, ProviderStats{
			ID:              p.ID,
			Name:            p.Name,
			Type:            p.Type,
			Enabled:         p.Enabled,
			SuccessCount:    p.SuccessCount,
			ErrorCount:      p.ErrorCount,
			SuccessRate:     p.SuccessRate(),
			AvgResponseTime: p.AvgResponseTime,
			LastUsed:        p.LastUsed,
		})
		s.TotalCalls += p.Attempts()
	}
	return s
}
