package model

import (
	"time"
)

// Role represents the speaker of a message in an interview transcript.
type Role string

const (
	RoleSystem      Role = "system"
	RoleInterviewer Role = "interviewer"
	RoleRespondent  Role = "respondent"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleInterviewer, RoleRespondent:
		return true
	}
	return false
}

// Counterpart returns the other party of the interview.
func (r Role) Counterpart() Role {
	switch r {
	case RoleInterviewer:
		return RoleRespondent
	case RoleRespondent:
		return RoleInterviewer
	default:
		return RoleSystem
	}
}

// Message is one utterance in a conversation. Messages are never modified
// after they are appended.
type Message struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// CloneMessages returns a copy of msgs that shares no backing array.
func CloneMessages(msgs []Message) []Message {
	out := make([]Message, len(msgs))
	copy(out, msgs)
	return out
}
