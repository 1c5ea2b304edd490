package conversation

import (
	"fmt"
	"strings"
	"sync"

	"github.com/nidhogg/xoxo/internal/persona"
	"go.uber.org/zap"
)

const (
	// recentWindow is how many of our own latest messages are checked before
	// a topic or ongoing reply is reused.
	recentWindow = 6
	// topicEvery makes ongoing conversations inject a new topic when the
	// history length is a multiple of it.
	topicEvery = 3
)

// RandSource picks an index in [0, n). *rand.Rand from math/rand/v2 satisfies it.
type RandSource interface {
	IntN(n int) int
}

// Generator produces the next outgoing message for a persona. It is safe for
// concurrent use; draws from the random source are serialised.
type Generator struct {
	profile    *persona.Profile
	logger     *zap.Logger
	onFallback func(partnerID string)

	mu  sync.Mutex
	rnd RandSource
}

// NewGenerator creates a message generator for the given persona.
func NewGenerator(profile *persona.Profile, rnd RandSource, logger *zap.Logger) *Generator {
	return &Generator{profile: profile, rnd: rnd, logger: logger}
}

// OnFallback registers a hook called whenever generation falls back.
func (g *Generator) OnFallback(fn func(partnerID string)) {
	g.onFallback = fn
}

// detected holds the tags found in a partner's messages.
type detected struct {
	interests map[string]bool
	topics    map[string]bool
}

func (d detected) has(c persona.Condition) bool {
	var set map[string]bool
	if c.Source == persona.SourceTopic {
		set = d.topics
	} else {
		set = d.interests
	}
	return set[c.Tag] != c.Absent
}

// Generate returns the next message to send to partnerID. It never fails:
// any fault while building the message yields the persona fallback.
func (g *Generator) Generate(partnerID string, history []Entry, pos Position) (msg string) {
	defer func() {
		if r := recover(); r != nil {
			g.logger.Error("message generation failed, using fallback",
				zap.String("partner", partnerID),
				zap.String("stage", pos.String()),
				zap.Any("panic", r))
			msg = g.render(g.profile.Fallback, partnerID)
			if g.onFallback != nil {
				g.onFallback(partnerID)
			}
		}
	}()
	return g.render(g.pick(partnerID, history, pos, g.draw), partnerID)
}

// Preview returns the message Generate would build without touching the
// random source or the fallback hook. Where Generate would pick a topic at
// random, Preview shows the first unused one.
func (g *Generator) Preview(partnerID string, history []Entry, pos Position) (msg string) {
	defer func() {
		if r := recover(); r != nil {
			msg = g.render(g.profile.Fallback, partnerID)
		}
	}()
	return g.render(g.pick(partnerID, history, pos, firstIndex), partnerID)
}

func (g *Generator) draw(n int) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.rnd.IntN(n)
}

func firstIndex(int) int { return 0 }

// Fallback renders the persona fallback message for a partner.
func (g *Generator) Fallback(partnerID string) string {
	return g.render(g.profile.Fallback, partnerID)
}

func (g *Generator) pick(partnerID string, history []Entry, pos Position, draw func(n int) int) string {
	tags := g.detect(partnerID, history)

	switch pos.Stage {
	case StageGreeting:
		return g.profile.Greeting
	case StageFollowup1, StageFollowup2, StageFollowup3:
		table := g.profile.Followups[int(pos.Stage)-int(StageFollowup1)]
		for _, rule := range table.Rules {
			if tags.has(rule.When) {
				return rule.Text
			}
		}
		return table.Default
	case StageOngoing:
		return g.ongoing(history, tags, draw)
	default:
		panic(fmt.Sprintf("unknown stage %d", pos.Stage))
	}
}

func (g *Generator) ongoing(history []Entry, tags detected, draw func(n int) int) string {
	recent := g.recentSelfMessages(history)

	if len(history)%topicEvery == 0 {
		if available := unusedTopics(g.profile.Topics, recent); len(available) > 0 {
			return available[draw(len(available))]
		}
	}

	for _, rule := range g.profile.Ongoing {
		if tags.has(rule.When) && !mentioned(recent, rule.Guard) {
			return rule.Text
		}
	}
	return g.profile.Continuation
}

// detect scans the partner's messages for persona keywords.
func (g *Generator) detect(partnerID string, history []Entry) detected {
	d := detected{interests: map[string]bool{}, topics: map[string]bool{}}
	for _, e := range history {
		if !strings.Contains(e.Speaker, partnerID) {
			continue
		}
		text := strings.ToLower(e.Text)
		for _, kw := range g.profile.Keywords {
			if !mentioned([]string{text}, kw.Keywords...) {
				continue
			}
			if kw.Source == persona.SourceTopic {
				d.topics[kw.Tag] = true
			} else {
				d.interests[kw.Tag] = true
			}
		}
	}
	return d
}

// recentSelfMessages returns our last recentWindow messages, lower-cased.
func (g *Generator) recentSelfMessages(history []Entry) []string {
	var recent []string
	for i := len(history) - 1; i >= 0 && len(recent) < recentWindow; i-- {
		if strings.Contains(history[i].Speaker, g.profile.Name) {
			recent = append(recent, strings.ToLower(history[i].Text))
		}
	}
	return recent
}

func unusedTopics(topics, recent []string) []string {
	var out []string
	for _, t := range topics {
		if !mentioned(recent, strings.ToLower(t)) {
			out = append(out, t)
		}
	}
	return out
}

// mentioned reports whether any needle occurs in any of the texts.
func mentioned(texts []string, needles ...string) bool {
	for _, t := range texts {
		for _, n := range needles {
			if n != "" && strings.Contains(t, n) {
				return true
			}
		}
	}
	return false
}

func (g *Generator) render(tmpl, partnerID string) string {
	return strings.ReplaceAll(tmpl, "{partner}", partnerID)
}
