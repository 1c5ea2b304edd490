package conversation

import (
	"strings"
	"sync"
)

// Roster is the append-only set of known partners, shared between the
// registry poller and the conversation loop.
type Roster struct {
	self     string
	order    []string
	partners map[string]Partner
	mu       sync.RWMutex
}

// NewRoster creates an empty roster. Partners whose id contains self are
// never added.
func NewRoster(self string) *Roster {
	return &Roster{
		self:     self,
		partners: make(map[string]Partner),
	}
}

// Merge adds partners not seen before and returns how many were added.
// Known partners keep their original entry except for an empty URL being filled in.
func (r *Roster) Merge(partners []Partner) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	added := 0
	for _, p := range partners {
		if p.ID == "" || (r.self != "" && strings.Contains(p.ID, r.self)) {
			continue
		}
		if existing, ok := r.partners[p.ID]; ok {
			if existing.URL == "" && p.URL != "" {
				existing.URL = p.URL
				r.partners[p.ID] = existing
			}
			continue
		}
		r.partners[p.ID] = p
		r.order = append(r.order, p.ID)
		added++
	}
	return added
}

// Partners returns a copy of the roster in registration order.
func (r *Roster) Partners() []Partner {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Partner, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.partners[id])
	}
	return out
}

// Get returns a partner by id.
func (r *Roster) Get(id string) (Partner, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.partners[id]
	return p, ok
}

// Len returns the number of known partners.
func (r *Roster) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}
