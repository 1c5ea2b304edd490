package a2a

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/nidhogg/xoxo/internal/persona"
	"github.com/nidhogg/xoxo/internal/provider"
	"go.uber.org/zap"
)

// Responder produces the agent's answer to an inbound message.
type Responder interface {
	Respond(ctx context.Context, sessionID string, in *Message) (string, error)
}

// CannedResponder always answers with the persona's inbound reply.
type CannedResponder struct {
	reply string
}

// NewCannedResponder creates a responder for p.
func NewCannedResponder(p *persona.Profile) *CannedResponder {
	reply := p.InboundReply
	if reply == "" {
		reply = p.Fallback
	}
	return &CannedResponder{reply: reply}
}

func (r *CannedResponder) Respond(_ context.Context, _ string, _ *Message) (string, error) {
	return r.reply, nil
}

const defaultHistoryLimit = 20

// LLMResponder answers through a chat provider, speaking as the persona.
// Each session keeps its own bounded history.
type LLMResponder struct {
	provider provider.Provider
	model    string
	system   string
	limit    int
	logger   *zap.Logger

	mu       sync.Mutex
	sessions map[string][]provider.Message
}

// NewLLMResponder creates a responder backed by prov. A limit of zero keeps
// the last 20 messages per session.
func NewLLMResponder(prov provider.Provider, model string, p *persona.Profile, limit int, logger *zap.Logger) *LLMResponder {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	return &LLMResponder{
		provider: prov,
		model:    model,
		system:   p.SystemPrompt,
		limit:    limit,
		logger:   logger,
		sessions: make(map[string][]provider.Message),
	}
}

func (r *LLMResponder) Respond(ctx context.Context, sessionID string, in *Message) (string, error) {
	text := in.Text()
	if text == "" {
		return "", fmt.Errorf("empty message")
	}

	r.mu.Lock()
	history := append(slices.Clone(r.sessions[sessionID]), provider.Message{Role: "user", Content: text})
	msgs := make([]provider.Message, 0, len(history)+1)
	msgs = append(msgs, provider.Message{Role: "system", Content: r.system})
	msgs = append(msgs, history...)
	r.mu.Unlock()

	resp, err := r.provider.Chat(ctx, &provider.ChatRequest{
		Model:       r.model,
		Messages:    msgs,
		Temperature: 0.7,
	})
	if err != nil {
		return "", fmt.Errorf("llm chat: %w", err)
	}

	r.mu.Lock()
	history = append(history, provider.Message{Role: "assistant", Content: resp.Content})
	if len(history) > r.limit {
		history = history[len(history)-r.limit:]
	}
	r.sessions[sessionID] = history
	r.mu.Unlock()

	r.logger.Debug("llm reply",
		zap.String("session", sessionID),
		zap.Int("tokens", resp.Usage.TotalTokens))
	return resp.Content, nil
}

// Forget drops a session's history.
func (r *LLMResponder) Forget(sessionID string) {
	r.mu.Lock()
	delete(r.sessions, sessionID)
	r.mu.Unlock()
}
