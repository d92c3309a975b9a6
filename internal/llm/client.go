// Package llm provides the model gateway used by interview sessions.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/capitalize-ai/interview-sim/internal/model"
)

// ErrUnknownBackend is returned when a model id matches no supported backend.
var ErrUnknownBackend = errors.New("model does not contain 'gpt' or 'claude'; unable to determine API")

// ChatMessage represents a chat message for LLM.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// GenerateRequest asks a backend for the next utterance of Perspective.
type GenerateRequest struct {
	History           []model.Message
	SystemInstruction string
	Perspective       model.Role
}

// CompletionResponse represents a completion response.
type CompletionResponse struct {
	Content    string
	Model      string
	TokensIn   int
	TokensOut  int
	StopReason string
	LatencyMs  int64
}

// Gateway is a single best-effort call to a language model backend.
type Gateway interface {
	// Generate returns the reply for req.Perspective given the shared history.
	Generate(ctx context.Context, req *GenerateRequest) (*CompletionResponse, error)

	// Name returns the provider name.
	Name() string
}

// Params are the per-call generation settings shared by every backend.
type Params struct {
	Model       string
	MaxTokens   int
	Temperature *float64
	// OpeningSeed is sent as a leading user turn to backends that require
	// conversations to start with one. It never enters the transcript.
	OpeningSeed string
}

// Credentials holds API keys and optional endpoint overrides.
type Credentials struct {
	OpenAIAPIKey     string
	OpenAIBaseURL    string
	AnthropicAPIKey  string
	AnthropicBaseURL string
}

// Provider is the type of LLM provider.
type Provider string

const (
	ProviderAnthropic Provider = "anthropic"
	ProviderOpenAI    Provider = "openai"
)

// DetectProvider picks the backend protocol by inspecting the model id.
func DetectProvider(modelID string) (Provider, error) {
	m := strings.ToLower(modelID)
	switch {
	case strings.Contains(m, "gpt"):
		return ProviderOpenAI, nil
	case strings.Contains(m, "claude"):
		return ProviderAnthropic, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownBackend, modelID)
	}
}

// NewGateway creates the gateway matching params.Model.
func NewGateway(creds Credentials, params Params) (Gateway, error) {
	provider, err := DetectProvider(params.Model)
	if err != nil {
		return nil, err
	}
	switch provider {
	case ProviderOpenAI:
		return NewOpenAIGateway(creds.OpenAIAPIKey, creds.OpenAIBaseURL, params)
	default:
		return NewAnthropicGateway(creds.AnthropicAPIKey, creds.AnthropicBaseURL, params)
	}
}

// Translate maps the shared history onto user/assistant roles as seen by
// perspective: its own messages become "assistant", the other party's
// become "user". System messages are transcript annotations and are dropped.
func Translate(history []model.Message, perspective model.Role) []ChatMessage {
	out := make([]ChatMessage, 0, len(history))
	for _, msg := range history {
		switch msg.Role {
		case perspective:
			out = append(out, ChatMessage{Role: "assistant", Content: msg.Content})
		case perspective.Counterpart():
			out = append(out, ChatMessage{Role: "user", Content: msg.Content})
		}
	}
	return out
}

func maxTokensOrDefault(n int) int {
	if n <= 0 {
		return 2048
	}
	return n
}
