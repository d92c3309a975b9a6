package model

import "fmt"

// TerminationSignal names a protocol-level stop condition emitted by the interviewer.
type TerminationSignal string

const (
	SignalProblematicContent TerminationSignal = "PROBLEMATIC_CONTENT"
	SignalEndOfInterview     TerminationSignal = "END_OF_INTERVIEW"
	// SignalDepressionCue never halts a session.
	SignalDepressionCue TerminationSignal = "DEPRESSION_CUE"
)

// ParseSignal validates a signal name.
func ParseSignal(s string) (TerminationSignal, error) {
	switch sig := TerminationSignal(s); sig {
	case SignalProblematicContent, SignalEndOfInterview, SignalDepressionCue:
		return sig, nil
	}
	return "", fmt.Errorf("unknown termination signal %q", s)
}
