package registry

import (
	"context"
	"sync"

	"github.com/nidhogg/xoxo/internal/a2a"
	"github.com/nidhogg/xoxo/internal/conversation"
)

// StaticRegistry serves a fixed partner list, for deployments without a
// shared directory. Registered cards are listed alongside the fixed ones.
type StaticRegistry struct {
	mu    sync.RWMutex
	cards []*a2a.AgentCard
}

// NewStaticRegistry creates a registry listing the given partners.
func NewStaticRegistry(partners ...conversation.Partner) *StaticRegistry {
	s := &StaticRegistry{}
	for _, p := range partners {
		s.cards = append(s.cards, &a2a.AgentCard{Name: p.ID, URL: p.URL, Description: p.Description})
	}
	return s
}

func (s *StaticRegistry) Register(_ context.Context, card *a2a.AgentCard) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, c := range s.cards {
		if c.Name == card.Name && c.URL == card.URL {
			s.cards[i] = card
			return nil
		}
	}
	s.cards = append(s.cards, card)
	return nil
}

func (s *StaticRegistry) ListPartners(_ context.Context) ([]conversation.Partner, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]conversation.Partner, 0, len(s.cards))
	for _, c := range s.cards {
		out = append(out, PartnerFromCard(c))
	}
	return out, nil
}
