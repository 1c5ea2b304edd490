package a2a

import (
	"fmt"
	"time"
)

// TaskState is the lifecycle state of an A2A task.
type TaskState string

const (
	StateSubmitted     TaskState = "submitted"
	StateWorking       TaskState = "working"
	StateInputRequired TaskState = "input-required"
	StateCompleted     TaskState = "completed"
	StateCanceled      TaskState = "canceled"
	StateFailed        TaskState = "failed"
	StateUnknown       TaskState = "unknown"
)

// Part is one piece of message content. Only text parts are produced here.
type Part struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// Message is a role-tagged list of parts.
type Message struct {
	Role     string            `json:"role"`
	Parts    []Part            `json:"parts"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// TextMessage builds a single-part text message.
func TextMessage(role, text string, metadata map[string]string) *Message {
	return &Message{Role: role, Parts: []Part{{Type: "text", Text: text}}, Metadata: metadata}
}

// Text returns the first non-empty text part.
func (m *Message) Text() string {
	if m == nil {
		return ""
	}
	for _, p := range m.Parts {
		if p.Text != "" {
			return p.Text
		}
	}
	return ""
}

// TaskStatus is the current state of a task with an optional agent message.
type TaskStatus struct {
	State     TaskState `json:"state"`
	Message   *Message  `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Artifact is output attached to a task.
type Artifact struct {
	Parts []Part `json:"parts"`
	Index int    `json:"index"`
}

// Task is a unit of conversation exchanged between agents.
type Task struct {
	ID        string     `json:"id"`
	SessionID string     `json:"sessionId"`
	Status    TaskStatus `json:"status"`
	Artifacts []Artifact `json:"artifacts,omitempty"`
	History   []*Message `json:"history,omitempty"`
}

// Final reports whether s ends an exchange.
func (s TaskState) Final() bool {
	switch s {
	case StateCompleted, StateCanceled, StateFailed, StateUnknown:
		return true
	}
	return false
}

// validTransitions defines allowed state transitions.
var validTransitions = map[TaskState][]TaskState{
	StateSubmitted:     {StateWorking, StateCanceled},
	StateWorking:       {StateCompleted, StateFailed, StateCanceled, StateInputRequired},
	StateInputRequired: {StateWorking, StateCanceled},
	StateCompleted:     {StateWorking},
	StateFailed:        {StateWorking},
}

// Transition validates and returns nil if from→to is a legal transition.
// A completed or failed task may be reopened by a follow-up message in the
// same thread.
func Transition(from, to TaskState) error {
	allowed, ok := validTransitions[from]
	if !ok {
		return fmt.Errorf("no transitions from %q", from)
	}
	for _, s := range allowed {
		if s == to {
			return nil
		}
	}
	return fmt.Errorf("invalid transition %q → %q", from, to)
}
