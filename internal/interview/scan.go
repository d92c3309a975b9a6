package interview

import (
	"strings"

	"github.com/capitalize-ai/interview-sim/internal/model"
)

// MatchMode records how a code was found in a reply.
type MatchMode string

const (
	// MatchExact means the whole reply, trimmed, was the code token.
	MatchExact MatchMode = "exact"
	// MatchSubstring means the code appeared somewhere inside a longer reply.
	MatchSubstring MatchMode = "substring"
)

// Detection is a code found in an interviewer reply.
type Detection struct {
	Rule model.CodeRule
	Mode MatchMode
}

// Scanner looks for protocol codes in interviewer replies. Rules are tried
// in configured order, so the first listed code wins when several match.
type Scanner struct {
	rules             []model.CodeRule
	substringFallback bool
}

// NewScanner builds a scanner over rules. Non-halting policy rules are only
// scanned for when detectPolicy is set.
func NewScanner(rules []model.CodeRule, substringFallback, detectPolicy bool) *Scanner {
	active := make([]model.CodeRule, 0, len(rules))
	for _, r := range rules {
		if r.Code == "" {
			continue
		}
		if !r.Halts && !detectPolicy {
			continue
		}
		active = append(active, r)
	}
	return &Scanner{rules: active, substringFallback: substringFallback}
}

// Scan returns the first matching rule for reply. Whole-message equality is
// checked across all rules before any substring match is considered.
func (s *Scanner) Scan(reply string) (Detection, bool) {
	token := normalizeToken(reply)
	for _, r := range s.rules {
		if token == r.Code {
			return Detection{Rule: r, Mode: MatchExact}, true
		}
	}
	if !s.substringFallback {
		return Detection{}, false
	}
	for _, r := range s.rules {
		if strings.Contains(reply, r.Code) {
			return Detection{Rule: r, Mode: MatchSubstring}, true
		}
	}
	return Detection{}, false
}

// normalizeToken strips whitespace and the quote marks models tend to wrap
// a bare code in.
func normalizeToken(s string) string {
	return strings.Trim(strings.TrimSpace(s), "\"'`‘’“” \t\r\n")
}
