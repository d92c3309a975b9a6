package llm

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/sashabaranov/go-openai"
)

// OpenAIGateway talks to chat-completion style backends: the system
// instruction travels as the first message of a flat list.
type OpenAIGateway struct {
	client *openai.Client
	params Params
}

// NewOpenAIGateway creates a new OpenAI gateway.
func NewOpenAIGateway(apiKey, baseURL string, params Params) (*OpenAIGateway, error) {
	if apiKey == "" {
		return nil, errors.New("OpenAI API key is required")
	}

	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}

	return &OpenAIGateway{
		client: openai.NewClientWithConfig(cfg),
		params: params,
	}, nil
}

// Name returns the provider name.
func (g *OpenAIGateway) Name() string {
	return string(ProviderOpenAI)
}

// openAITemperature converts a configured temperature for the wire. The
// request field is omitempty, so an explicit 0 is sent as the smallest
// positive float32 instead of being dropped for the provider default.
func openAITemperature(t float64) float32 {
	if t == 0 {
		return math.SmallestNonzeroFloat32
	}
	return float32(t)
}

// Generate sends a single chat completion request.
func (g *OpenAIGateway) Generate(ctx context.Context, req *GenerateRequest) (*CompletionResponse, error) {
	start := time.Now()

	creq := openai.ChatCompletionRequest{
		Model:     g.params.Model,
		Messages:  buildOpenAIMessages(req),
		MaxTokens: maxTokensOrDefault(g.params.MaxTokens),
	}
	if g.params.Temperature != nil {
		creq.Temperature = openAITemperature(*g.params.Temperature)
	}

	resp, err := g.client.CreateChatCompletion(ctx, creq)
	if err != nil {
		return nil, classifyOpenAIError(err)
	}
	if len(resp.Choices) == 0 {
		return nil, &BackendError{Provider: ProviderOpenAI, Kind: KindOther, Err: errors.New("response has no choices")}
	}

	return &CompletionResponse{
		Content:    resp.Choices[0].Message.Content,
		Model:      resp.Model,
		TokensIn:   resp.Usage.PromptTokens,
		TokensOut:  resp.Usage.CompletionTokens,
		StopReason: string(resp.Choices[0].FinishReason),
		LatencyMs:  time.Since(start).Milliseconds(),
	}, nil
}

func buildOpenAIMessages(req *GenerateRequest) []openai.ChatCompletionMessage {
	history := Translate(req.History, req.Perspective)
	messages := make([]openai.ChatCompletionMessage, 0, len(history)+1)
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: req.SystemInstruction,
	})
	for _, msg := range history {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    msg.Role,
			Content: msg.Content,
		})
	}
	return messages
}

func classifyOpenAIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		be := newBackendError(ProviderOpenAI, apiErr.HTTPStatusCode, err)
		// Quota exhaustion shares the 429 status but will not clear with time.
		if code, ok := apiErr.Code.(string); ok && code == "insufficient_quota" {
			be.Kind = KindOther
		}
		return be
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return newBackendError(ProviderOpenAI, reqErr.HTTPStatusCode, err)
	}
	return newBackendError(ProviderOpenAI, 0, err)
}
