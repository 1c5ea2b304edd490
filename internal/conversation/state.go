package conversation

import (
	"time"
)

// Partner is a remote agent the driver can talk to.
type Partner struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	URL         string `json:"url,omitempty"`
	Description string `json:"description,omitempty"`
}

// Entry is one logged message of a conversation.
type Entry struct {
	Speaker   string    `json:"speaker"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// PartnerState is the turn-taking state kept for a single partner.
// History is append-only and MessageCount only grows.
type PartnerState struct {
	PartnerID    string    `json:"partner_id"`
	MessageCount int       `json:"message_count"`
	ThreadID     string    `json:"thread_id,omitempty"`
	History      []Entry   `json:"history"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// NewPartnerState returns an empty state for a partner.
func NewPartnerState(partnerID string) *PartnerState {
	return &PartnerState{PartnerID: partnerID}
}

// Position returns the current conversation position for this partner.
func (s *PartnerState) Position() Position {
	return SelectStage(s.MessageCount)
}

// Advance records a completed turn: the outgoing message, then the reply if
// one was received.
func (s *PartnerState) Advance(self, outgoing, reply string, at time.Time) {
	s.History = append(s.History, Entry{Speaker: self, Text: outgoing, Timestamp: at})
	if reply != "" {
		s.History = append(s.History, Entry{Speaker: s.PartnerID, Text: reply, Timestamp: at})
	}
	s.MessageCount++
	s.UpdatedAt = at
}

// Clone returns a deep copy safe to hand to readers outside the driver loop.
func (s *PartnerState) Clone() *PartnerState {
	c := *s
	c.History = make([]Entry, len(s.History))
	copy(c.History, s.History)
	return &c
}
