package a2a

import (
	"strings"

	"github.com/nidhogg/xoxo/internal/persona"
)

// Capabilities advertises optional protocol features.
type Capabilities struct {
	Streaming         bool `json:"streaming" bson:"streaming"`
	PushNotifications bool `json:"pushNotifications" bson:"push_notifications"`
}

// Skill describes something an agent can be asked about.
type Skill struct {
	ID          string   `json:"id" bson:"id"`
	Name        string   `json:"name" bson:"name"`
	Description string   `json:"description" bson:"description"`
	Tags        []string `json:"tags" bson:"tags"`
	Examples    []string `json:"examples,omitempty" bson:"examples,omitempty"`
}

// AgentCard is the public description other agents discover an agent by.
type AgentCard struct {
	Name               string       `json:"name" bson:"name"`
	Description        string       `json:"description" bson:"description"`
	URL                string       `json:"url" bson:"url"`
	Version            string       `json:"version" bson:"version"`
	DefaultInputModes  []string     `json:"defaultInputModes" bson:"default_input_modes"`
	DefaultOutputModes []string     `json:"defaultOutputModes" bson:"default_output_modes"`
	Capabilities       Capabilities `json:"capabilities" bson:"capabilities"`
	Skills             []Skill      `json:"skills" bson:"skills"`
}

// CardFromProfile builds the card for a persona served at url.
func CardFromProfile(p *persona.Profile, url string) *AgentCard {
	return &AgentCard{
		Name:               p.DisplayName(),
		Description:        p.Description,
		URL:                url,
		Version:            "1.0.0",
		DefaultInputModes:  []string{"text"},
		DefaultOutputModes: []string{"text"},
		Capabilities:       Capabilities{Streaming: false},
		Skills: []Skill{{
			ID:          "have_conversation",
			Name:        "Have a Conversation",
			Description: "Chat with " + p.Name,
			Tags:        p.Tags,
			Examples:    p.Examples,
		}},
	}
}

// MatchScore counts how many of the given interests show up in the card's
// description or skill tags.
func MatchScore(c *AgentCard, interests []string) int {
	haystack := strings.ToLower(c.Description)
	for _, s := range c.Skills {
		haystack += " " + strings.ToLower(strings.Join(s.Tags, " "))
	}
	score := 0
	for _, in := range interests {
		if len(in) < 2 {
			continue
		}
		if strings.Contains(haystack, strings.ToLower(in)) {
			score++
		}
	}
	return score
}
