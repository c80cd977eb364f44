package mixer

// candidate is an enabled provider snapshot together with its slot in the
// registry it was taken from.
type candidate struct {
	slot     int
	provider Provider
}

// registry is the ordered provider list owned by a Mixer. Providers are
// addressed by slot; gen changes whenever the list is replaced so stale
// slots from an earlier snapshot are detected and resolved by id instead.
type registry struct {
	providers []Provider
	gen       uint64
}

// replace swaps in a new provider list.
func (r *registry) replace(ps []Provider) {
	r.providers = ps
	r.gen++
}

// listEnabled returns snapshots of the enabled providers in list order. The
// result is empty, never nil-with-meaning; callers must treat an empty
// result as a dispatch error.
func (r *registry) listEnabled() []candidate {
	out := make([]candidate, 0, len(r.providers))
	for i, p := range r.providers {
		if p.Enabled {
			out = append(out, candidate{slot: i, provider: p})
		}
	}
	return out
}

// lookup resolves a snapshot taken at generation gen back to the live
// provider. It returns nil when the provider no longer exists.
func (r *registry) lookup(gen uint64, c candidate) *Provider {
	if gen == r.gen && c.slot < len(r.providers) && r.providers[c.slot].ID == c.provider.ID {
		return &r.providers[c.slot]
	}
	for i := range r.providers {
		if r.providers[i].ID == c.provider.ID {
			return &r.providers[i]
		}
	}
	return nil
}
