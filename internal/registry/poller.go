package registry

import (
	"context"
	"time"

	"github.com/nidhogg/xoxo/internal/a2a"
	"github.com/nidhogg/xoxo/internal/conversation"
	"go.uber.org/zap"
)

// PollConfig controls how often the directory is read.
type PollConfig struct {
	Interval   time.Duration
	RetryDelay time.Duration
}

// Poller keeps the self card registered and merges newly listed agents
// into the roster.
type Poller struct {
	registry Registry
	roster   *conversation.Roster
	self     *a2a.AgentCard
	cfg      PollConfig
	logger   *zap.Logger
	onChange func(size int)
}

// NewPoller creates a poller. Zero intervals default to 300s and 60s.
func NewPoller(reg Registry, roster *conversation.Roster, self *a2a.AgentCard, cfg PollConfig, logger *zap.Logger) *Poller {
	if cfg.Interval == 0 {
		cfg.Interval = 300 * time.Second
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = 60 * time.Second
	}
	return &Poller{registry: reg, roster: roster, self: self, cfg: cfg, logger: logger}
}

// OnRosterChange registers a callback invoked with the roster size after
// each poll that added partners.
func (p *Poller) OnRosterChange(fn func(size int)) {
	p.onChange = fn
}

// Poll refreshes the self registration and merges the active listing.
// A failed self registration is logged; a failed listing is returned.
func (p *Poller) Poll(ctx context.Context) (int, error) {
	if p.self != nil {
		if err := p.registry.Register(ctx, p.self); err != nil {
			p.logger.Warn("self registration failed", zap.Error(err))
		}
	}

	partners, err := p.registry.ListPartners(ctx)
	if err != nil {
		return 0, err
	}
	added := p.roster.Merge(partners)
	if added > 0 {
		p.logger.Info("partners discovered",
			zap.Int("added", added),
			zap.Int("roster", p.roster.Len()))
		if p.onChange != nil {
			p.onChange(p.roster.Len())
		}
	}
	return added, nil
}

// Run polls until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) error {
	for {
		wait := p.cfg.Interval
		if _, err := p.Poll(ctx); err != nil {
			p.logger.Error("registry poll failed", zap.Error(err))
			wait = p.cfg.RetryDelay
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
