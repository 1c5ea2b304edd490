package persona

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// TagSource says which detected set a keyword hit lands in.
type TagSource string

const (
	SourceInterest TagSource = "interest"
	SourceTopic    TagSource = "topic"
)

// KeywordRule maps a set of keywords found in a partner message to a tag.
type KeywordRule struct {
	Keywords []string  `json:"keywords"`
	Tag      string    `json:"tag"`
	Source   TagSource `json:"source"`
}

// Condition tests a detected tag. With Absent set the condition holds when
// the tag was not detected.
type Condition struct {
	Tag    string    `json:"tag"`
	Source TagSource `json:"source"`
	Absent bool      `json:"absent,omitempty"`
}

// Rule is a canned reply guarded by a condition.
type Rule struct {
	When Condition `json:"when"`
	Text string    `json:"text"`
}

// StageTable holds the canned replies for one scripted follow-up stage.
type StageTable struct {
	Rules   []Rule `json:"rules"`
	Default string `json:"default"`
}

// OngoingRule is a reply used after the scripted stages. Guard is a keyword
// that must not appear in any recent self-authored message.
type OngoingRule struct {
	When  Condition `json:"when"`
	Guard string    `json:"guard"`
	Text  string    `json:"text"`
}

// Profile is the full personality of an agent: identity, prompts and reply tables.
// Templates may contain {partner}, replaced with the partner id.
type Profile struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	ShortName    string        `json:"short_name"`
	CardName     string        `json:"card_name"`
	Description  string        `json:"description"`
	SystemPrompt string        `json:"system_prompt"`
	Tags         []string      `json:"tags"`
	Examples     []string      `json:"examples"`
	Interests    []string      `json:"interests"`
	Greeting     string        `json:"greeting"`
	Fallback     string        `json:"fallback"`
	Continuation string        `json:"continuation"`
	InboundReply string        `json:"inbound_reply"`
	Keywords     []KeywordRule `json:"keywords"`
	Followups    [3]StageTable `json:"followups"`
	Topics       []string      `json:"topics"`
	Ongoing      []OngoingRule `json:"ongoing"`
}

// Validate checks that the templates the conversation loop cannot do without are set.
func (p *Profile) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("persona: name is required")
	}
	if p.Greeting == "" {
		return fmt.Errorf("persona %s: greeting is required", p.Name)
	}
	if p.Fallback == "" {
		return fmt.Errorf("persona %s: fallback is required", p.Name)
	}
	for _, kw := range p.Keywords {
		if kw.Source != SourceInterest && kw.Source != SourceTopic {
			return fmt.Errorf("persona %s: keyword tag %q has unknown source %q", p.Name, kw.Tag, kw.Source)
		}
	}
	return nil
}

// Short returns the lower-case short name used in transcript file names.
func (p *Profile) Short() string {
	if p.ShortName != "" {
		return strings.ToLower(p.ShortName)
	}
	return ShortName(p.Name)
}

// DisplayName is the name other agents see in the registry.
func (p *Profile) DisplayName() string {
	if p.CardName != "" {
		return p.CardName
	}
	return p.Name
}

// ShortName returns the lower-cased first word of an agent name,
// e.g. "Irvin - Turkish Chef" -> "irvin".
func ShortName(name string) string {
	fields := strings.Fields(strings.ToLower(name))
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

// Load reads a JSON profile from disk.
func Load(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read persona %s: %w", path, err)
	}
	var p Profile
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse persona %s: %w", path, err)
	}
	if p.ID == "" {
		p.ID = ShortName(p.Name)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Resolve returns the built-in persona with the given id, or loads nameOrPath
// as a profile file.
func Resolve(nameOrPath string) (*Profile, error) {
	if p, ok := Builtin(nameOrPath); ok {
		return p, nil
	}
	if strings.HasSuffix(nameOrPath, ".json") {
		return Load(nameOrPath)
	}
	return nil, fmt.Errorf("unknown persona %q", nameOrPath)
}
