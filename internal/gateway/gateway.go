package gateway

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/nidhogg/xoxo/internal/conversation"
	"go.uber.org/zap"
)

type target struct {
	adapter Adapter
	channel string
}

// Gateway mirrors completed turns to every registered platform channel.
// Each partner gets its own thread per platform where threads exist.
type Gateway struct {
	targets map[string]target
	threads map[string]string // platform:partner -> thread id
	mu      sync.Mutex
	logger  *zap.Logger
}

// NewGateway creates a gateway with no adapters.
func NewGateway(logger *zap.Logger) *Gateway {
	return &Gateway{
		targets: make(map[string]target),
		threads: make(map[string]string),
		logger:  logger,
	}
}

// Register adds an adapter posting into channelID.
func (g *Gateway) Register(adapter Adapter, channelID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.targets[adapter.Platform()] = target{adapter: adapter, channel: channelID}
	g.logger.Info("registered gateway adapter",
		zap.String("platform", adapter.Platform()),
		zap.String("channel", channelID))
}

// ConnectAll starts every adapter. Adapters that fail are removed.
func (g *Gateway) ConnectAll(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	var errs []error
	for platform, t := range g.targets {
		if err := t.adapter.Connect(ctx); err != nil {
			g.logger.Error("adapter connect failed",
				zap.String("platform", platform), zap.Error(err))
			errs = append(errs, fmt.Errorf("connect %s: %w", platform, err))
			delete(g.targets, platform)
			continue
		}
		g.logger.Info("adapter connected", zap.String("platform", platform))
	}
	return errors.Join(errs...)
}

// ObserveTurn posts the outgoing message and the reply. It implements
// conversation.TurnObserver.
func (g *Gateway) ObserveTurn(ctx context.Context, turn *conversation.Turn) error {
	g.mu.Lock()
	targets := make(map[string]target, len(g.targets))
	for k, v := range g.targets {
		targets[k] = v
	}
	g.mu.Unlock()

	var errs []error
	for platform, t := range targets {
		if err := g.mirror(ctx, platform, t, turn); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (g *Gateway) mirror(ctx context.Context, platform string, t target, turn *conversation.Turn) error {
	key := platform + ":" + turn.Partner.ID
	g.mu.Lock()
	thread := g.threads[key]
	g.mu.Unlock()

	lines := []OutboundMessage{{Speaker: turn.Self, Content: turn.Outgoing}}
	if turn.Reply != "" {
		lines = append(lines, OutboundMessage{Speaker: turn.Partner.ID, Content: turn.Reply})
	}

	for _, line := range lines {
		line.Platform = platform
		line.ChannelID = t.channel
		line.ThreadID = thread
		id, err := t.adapter.Send(ctx, &line)
		if err != nil {
			return fmt.Errorf("mirror to %s: %w", platform, err)
		}
		if thread == "" && id != "" {
			thread = id
			g.mu.Lock()
			g.threads[key] = id
			g.mu.Unlock()
		}
	}
	return nil
}

// Announce posts a standalone message to every channel, outside any
// partner thread.
func (g *Gateway) Announce(ctx context.Context, speaker, text string) error {
	g.mu.Lock()
	targets := make(map[string]target, len(g.targets))
	for k, v := range g.targets {
		targets[k] = v
	}
	g.mu.Unlock()

	var errs []error
	for platform, t := range targets {
		msg := &OutboundMessage{Platform: platform, ChannelID: t.channel, Speaker: speaker, Content: text}
		if _, err := t.adapter.Send(ctx, msg); err != nil {
			errs = append(errs, fmt.Errorf("announce to %s: %w", platform, err))
		}
	}
	return errors.Join(errs...)
}

// Close shuts down all adapters.
func (g *Gateway) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	for platform, t := range g.targets {
		if err := t.adapter.Close(); err != nil {
			g.logger.Error("adapter close failed",
				zap.String("platform", platform), zap.Error(err))
		}
	}
	return nil
}

// Adapters returns the registered platform names, sorted.
func (g *Gateway) Adapters() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	names := make([]string, 0, len(g.targets))
	for p := range g.targets {
		names = append(names, p)
	}
	sort.Strings(names)
	return names
}
