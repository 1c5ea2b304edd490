package gateway

import "context"

// Adapter posts conversation messages to one chat platform.
type Adapter interface {
	Platform() string
	Connect(ctx context.Context) error
	// Send posts msg and returns the platform id of the posted message.
	Send(ctx context.Context, msg *OutboundMessage) (string, error)
	Close() error
}

// OutboundMessage is a message posted to a platform channel.
type OutboundMessage struct {
	Platform  string `json:"platform"`
	ChannelID string `json:"channel_id"`
	Speaker   string `json:"speaker"`
	Content   string `json:"content"`
	ThreadID  string `json:"thread_id,omitempty"`
}

// Persona defines how a speaker appears on a platform.
type Persona struct {
	Name    string `json:"name"`
	IconURL string `json:"icon_url"`
	Emoji   string `json:"emoji"` // fallback if no icon_url, e.g. ":robot_face:"
}
