package middleware

import (
	"errors"
	"strconv"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/capitalize-ai/interview-sim/internal/transcript"
)

const maxIdentityLength = 255

// ValidateIdentity validates a transcript identity taken from a URL.
func ValidateIdentity(identity string) error {
	if len(identity) > maxIdentityLength {
		return errors.New("identity exceeds maximum length")
	}
	if !utf8.ValidString(identity) {
		return errors.New("identity must be valid UTF-8")
	}
	return transcript.ValidateIdentity(identity)
}

// ValidateSessionID validates a session ID.
func ValidateSessionID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return errors.New("invalid session ID format")
	}
	return nil
}

// ParseLimit parses a positive page size, falling back to def and capping at ceiling.
func ParseLimit(raw string, def, ceiling int) int {
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return def
	}
	if n > ceiling {
		return ceiling
	}
	return n
}
