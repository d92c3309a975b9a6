package transcript

import (
	"strings"

	"github.com/capitalize-ai/interview-sim/internal/model"
)

// Parse reads a transcript written by FormatTranscript back into messages.
// A line opens a new message when it starts with a known role prefix; any
// other line continues the previous message, so multi-line content survives
// unless a continuation line itself looks like a role prefix.
func Parse(data []byte) []model.Message {
	text := strings.TrimSuffix(string(data), "\n")
	if text == "" {
		return nil
	}

	var out []model.Message
	for _, line := range strings.Split(text, "\n") {
		if role, content, ok := splitRoleLine(line); ok {
			out = append(out, model.Message{Role: role, Content: content})
			continue
		}
		if len(out) == 0 {
			out = append(out, model.Message{Content: line})
			continue
		}
		out[len(out)-1].Content += "\n" + line
	}
	return out
}

func splitRoleLine(line string) (model.Role, string, bool) {
	prefix, content, ok := strings.Cut(line, ": ")
	if !ok {
		return "", "", false
	}
	role := model.Role(prefix)
	if !role.Valid() {
		return "", "", false
	}
	return role, content, true
}
