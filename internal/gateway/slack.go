package gateway

import (
	"context"
	"fmt"
	"sync"

	"github.com/slack-go/slack"
	"go.uber.org/zap"
)

// SlackAdapter posts to Slack through the Web API.
type SlackAdapter struct {
	client   *slack.Client
	personas map[string]*Persona // speaker -> persona
	mu       sync.RWMutex
	logger   *zap.Logger
}

// NewSlackAdapter creates a Slack adapter for a bot token (xoxb-...).
// Extra options are passed to the slack client.
func NewSlackAdapter(botToken string, logger *zap.Logger, opts ...slack.Option) *SlackAdapter {
	return &SlackAdapter{
		client:   slack.New(botToken, opts...),
		personas: make(map[string]*Persona),
		logger:   logger,
	}
}

func (a *SlackAdapter) Platform() string { return "slack" }

// SetPersona registers how a speaker is displayed.
func (a *SlackAdapter) SetPersona(speaker string, p *Persona) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.personas[speaker] = p
}

// Connect verifies the token.
func (a *SlackAdapter) Connect(ctx context.Context) error {
	resp, err := a.client.AuthTestContext(ctx)
	if err != nil {
		return fmt.Errorf("slack auth: %w", err)
	}
	a.logger.Info("slack adapter connected",
		zap.String("team", resp.Team), zap.String("user", resp.User))
	return nil
}

// Send posts a message, threaded under msg.ThreadID when set.
func (a *SlackAdapter) Send(ctx context.Context, msg *OutboundMessage) (string, error) {
	opts := []slack.MsgOption{slack.MsgOptionText(msg.Content, false)}
	if msg.ThreadID != "" {
		opts = append(opts, slack.MsgOptionTS(msg.ThreadID))
	}
	opts = append(opts, a.personaOpts(msg.Speaker)...)

	_, ts, err := a.client.PostMessageContext(ctx, msg.ChannelID, opts...)
	if err != nil {
		a.logger.Error("slack send failed",
			zap.String("channel", msg.ChannelID), zap.Error(err))
		return "", fmt.Errorf("slack send: %w", err)
	}
	return ts, nil
}

// personaOpts shows the speaker's name and icon. Unknown speakers get their
// name only.
func (a *SlackAdapter) personaOpts(speaker string) []slack.MsgOption {
	if speaker == "" {
		return nil
	}
	a.mu.RLock()
	p, ok := a.personas[speaker]
	a.mu.RUnlock()
	if !ok {
		return []slack.MsgOption{slack.MsgOptionUsername(speaker)}
	}

	opts := []slack.MsgOption{slack.MsgOptionUsername(p.Name)}
	if p.IconURL != "" {
		opts = append(opts, slack.MsgOptionIconURL(p.IconURL))
	} else if p.Emoji != "" {
		opts = append(opts, slack.MsgOptionIconEmoji(p.Emoji))
	}
	return opts
}

func (a *SlackAdapter) Close() error { return nil }
