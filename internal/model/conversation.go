// Package model defines data structures for simulated interviews.
package model

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrConversationClosed is returned when appending to an inactive conversation.
var ErrConversationClosed = errors.New("conversation is no longer active")

// Persona is a pre-authored respondent profile.
type Persona struct {
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description" json:"description"`
}

// Outcome describes how a session ended.
type Outcome string

const (
	// OutcomeSignaled means the interviewer emitted a halting termination code.
	OutcomeSignaled Outcome = "signaled"
	// OutcomeBudgetExhausted means the turn limit was reached without a code.
	OutcomeBudgetExhausted Outcome = "budget_exhausted"
	// OutcomeAborted means an upstream call failed and the session was cut short.
	OutcomeAborted Outcome = "aborted"
)

// PolicySignal records a non-halting code detected during a session.
type PolicySignal struct {
	Turn   int               `json:"turn"`
	Code   string            `json:"code"`
	Signal TerminationSignal `json:"signal"`
}

// ConversationState is the mutable state of one interview session. It is
// owned by a single controller run and is not safe for concurrent use.
type ConversationState struct {
	SessionID     string
	Identity      string
	Persona       Persona
	Messages      []Message
	Turn          int
	MaxTurns      int
	Active        bool
	StartedAt     time.Time
	PolicySignals []PolicySignal
}

// NewConversationState creates an active conversation for persona.
func NewConversationState(identity string, persona Persona, maxTurns int, now time.Time) *ConversationState {
	return &ConversationState{
		SessionID: uuid.Must(uuid.NewV7()).String(),
		Identity:  identity,
		Persona:   persona,
		MaxTurns:  maxTurns,
		Active:    true,
		StartedAt: now,
	}
}

// Append adds a message to an active conversation.
func (s *ConversationState) Append(role Role, content string, now time.Time) (Message, error) {
	if !s.Active {
		return Message{}, ErrConversationClosed
	}
	msg := Message{Role: role, Content: content, CreatedAt: now}
	s.Messages = append(s.Messages, msg)
	return msg, nil
}

// Close deactivates the conversation and appends its final closing message.
// Only the first call has any effect.
func (s *ConversationState) Close(role Role, content string, now time.Time) (Message, error) {
	if !s.Active {
		return Message{}, ErrConversationClosed
	}
	msg := Message{Role: role, Content: content, CreatedAt: now}
	s.Messages = append(s.Messages, msg)
	s.Active = false
	return msg, nil
}

// Stop deactivates the conversation without appending anything.
func (s *ConversationState) Stop() {
	s.Active = false
}

// BeginTurn advances the turn counter. It reports false once the budget is spent.
func (s *ConversationState) BeginTurn() bool {
	if s.Turn >= s.MaxTurns {
		return false
	}
	s.Turn++
	return true
}

// Last returns the most recent message, if any.
func (s *ConversationState) Last() (Message, bool) {
	if len(s.Messages) == 0 {
		return Message{}, false
	}
	return s.Messages[len(s.Messages)-1], true
}

// Snapshot returns a copy of the message history.
func (s *ConversationState) Snapshot() []Message {
	return CloneMessages(s.Messages)
}
