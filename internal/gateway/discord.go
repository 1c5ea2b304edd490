package gateway

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

// DiscordAdapter posts to Discord through the bot REST API. A channel
// webhook, when set, lets each speaker appear under its own name.
type DiscordAdapter struct {
	token    string
	session  *discordgo.Session
	personas map[string]*Persona // speaker -> persona
	webhooks map[string]string   // channelID -> webhook URL
	mu       sync.RWMutex
	logger   *zap.Logger
}

// NewDiscordAdapter creates a Discord adapter for a bot token.
func NewDiscordAdapter(token string, logger *zap.Logger) *DiscordAdapter {
	return &DiscordAdapter{
		token:    token,
		personas: make(map[string]*Persona),
		webhooks: make(map[string]string),
		logger:   logger,
	}
}

func (a *DiscordAdapter) Platform() string { return "discord" }

// SetPersona registers how a speaker is displayed.
func (a *DiscordAdapter) SetPersona(speaker string, p *Persona) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.personas[speaker] = p
}

// SetWebhook registers a webhook URL for a channel.
func (a *DiscordAdapter) SetWebhook(channelID, webhookURL string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.webhooks[channelID] = webhookURL
}

// Connect creates the REST session and checks the bot identity.
func (a *DiscordAdapter) Connect(_ context.Context) error {
	session, err := discordgo.New("Bot " + a.token)
	if err != nil {
		return fmt.Errorf("discord session: %w", err)
	}
	user, err := session.User("@me")
	if err != nil {
		return fmt.Errorf("discord identity: %w", err)
	}
	a.session = session
	a.logger.Info("discord adapter connected", zap.String("user", user.Username))
	return nil
}

// Send posts a message. Discord has no reply threads here, so ThreadID is
// ignored and the returned id is empty.
func (a *DiscordAdapter) Send(ctx context.Context, msg *OutboundMessage) (string, error) {
	if a.session == nil {
		return "", fmt.Errorf("discord adapter not connected")
	}
	a.mu.RLock()
	webhookURL := a.webhooks[msg.ChannelID]
	persona, hasPersona := a.personas[msg.Speaker]
	a.mu.RUnlock()

	if webhookURL != "" {
		name := msg.Speaker
		avatar := ""
		if hasPersona {
			name, avatar = persona.Name, persona.IconURL
		}
		return "", a.sendViaWebhook(ctx, webhookURL, name, avatar, msg.Content)
	}

	_, err := a.session.ChannelMessageSend(msg.ChannelID, FormatDiscord(msg.Speaker, msg.Content),
		discordgo.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("discord send: %w", err)
	}
	return "", nil
}

// FormatDiscord prefixes content with the speaker in bold.
func FormatDiscord(speaker, content string) string {
	if speaker == "" {
		return content
	}
	return fmt.Sprintf("**[%s]** %s", speaker, content)
}

func (a *DiscordAdapter) sendViaWebhook(ctx context.Context, webhookURL, name, avatar, content string) error {
	id, token, ok := ParseWebhookURL(webhookURL)
	if !ok {
		return fmt.Errorf("discord webhook: malformed url")
	}
	params := &discordgo.WebhookParams{Content: content, Username: name, AvatarURL: avatar}
	if _, err := a.session.WebhookExecute(id, token, false, params, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("discord webhook execute: %w", err)
	}
	return nil
}

// Close shuts down the Discord session.
func (a *DiscordAdapter) Close() error {
	if a.session != nil {
		return a.session.Close()
	}
	return nil
}

// ParseWebhookURL extracts the id and token from
// https://discord.com/api/webhooks/{id}/{token}.
func ParseWebhookURL(raw string) (id, token string, ok bool) {
	_, rest, found := strings.Cut(raw, "/webhooks/")
	if !found {
		return "", "", false
	}
	id, token, found = strings.Cut(strings.TrimSuffix(rest, "/"), "/")
	if !found || id == "" || token == "" || strings.Contains(token, "/") {
		return "", "", false
	}
	return id, token, true
}
