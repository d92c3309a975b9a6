package model

import (
	"time"
)

// EventType represents the type of session event.
type EventType string

const (
	EventTypeSessionStarted  EventType = "session_started"
	EventTypeMessageAppended EventType = "message_appended"
	EventTypePolicySignal    EventType = "policy_signal"
	EventTypeSessionFinished EventType = "session_finished"
)

// SessionEvent is published to external sinks while a session runs.
type SessionEvent struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Identity  string    `json:"identity"`
	Persona   string    `json:"persona"`
	Type      EventType `json:"type"`
	Message   *Message  `json:"message,omitempty"`
	Outcome   Outcome   `json:"outcome,omitempty"`
	Signal    string    `json:"signal,omitempty"`
	Turn      int       `json:"turn"`
	CreatedAt time.Time `json:"created_at"`
}
