package provider

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Router tries providers in order until one answers. It is itself a Provider.
type Router struct {
	chain  []Provider
	logger *zap.Logger
}

// NewRouter creates a router over the given providers; the first is primary.
func NewRouter(logger *zap.Logger, providers ...Provider) *Router {
	return &Router{chain: providers, logger: logger}
}

func (r *Router) ID() string {
	if len(r.chain) == 0 {
		return "router"
	}
	return r.chain[0].ID()
}

// Chat sends req to the primary provider and falls back down the chain.
func (r *Router) Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	if len(r.chain) == 0 {
		return nil, fmt.Errorf("no provider configured")
	}
	var err error
	for i, p := range r.chain {
		var resp *ChatResponse
		resp, err = p.Chat(ctx, req)
		if err == nil {
			return resp, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if i < len(r.chain)-1 {
			r.logger.Warn("provider failed, trying fallback",
				zap.String("provider", p.ID()), zap.Error(err))
		}
	}
	return nil, fmt.Errorf("all providers failed: %w", err)
}

// HealthCheck reports healthy if any provider is.
func (r *Router) HealthCheck(ctx context.Context) error {
	var err error
	for _, p := range r.chain {
		if err = p.HealthCheck(ctx); err == nil {
			return nil
		}
	}
	if err == nil {
		return fmt.Errorf("no provider configured")
	}
	return err
}

// Len returns the number of providers in the chain.
func (r *Router) Len() int { return len(r.chain) }
