// Package registry discovers conversation partners through a shared agent
// directory and keeps this agent's own card listed there.
package registry

import (
	"context"
	"time"

	"github.com/nidhogg/xoxo/internal/a2a"
	"github.com/nidhogg/xoxo/internal/conversation"
)

// DefaultActiveWindow is how recently an agent must have registered to be listed.
const DefaultActiveWindow = time.Hour

// Registry is a directory of agent cards.
type Registry interface {
	Register(ctx context.Context, card *a2a.AgentCard) error
	ListPartners(ctx context.Context) ([]conversation.Partner, error)
}

// PartnerFromCard converts a directory card into a roster entry. The card
// name is the partner id.
func PartnerFromCard(c *a2a.AgentCard) conversation.Partner {
	return conversation.Partner{
		ID:          c.Name,
		DisplayName: c.Name,
		URL:         c.URL,
		Description: c.Description,
	}
}
