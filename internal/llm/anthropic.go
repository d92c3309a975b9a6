package llm

import (
	"context"
	"errors"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// statusOverloaded is Anthropic's transient capacity status.
const statusOverloaded = 529

// AnthropicGateway talks to system-plus-messages style backends: the system
// instruction is sent out of band.
type AnthropicGateway struct {
	client *anthropic.Client
	params Params
}

// NewAnthropicGateway creates a new Anthropic gateway. The SDK's built-in
// retries are disabled; retrying is the caller's concern.
func NewAnthropicGateway(apiKey, baseURL string, params Params) (*AnthropicGateway, error) {
	if apiKey == "" {
		return nil, errors.New("Anthropic API key is required")
	}

	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}

	return &AnthropicGateway{
		client: anthropic.NewClient(opts...),
		params: params,
	}, nil
}

// Name returns the provider name.
func (g *AnthropicGateway) Name() string {
	return string(ProviderAnthropic)
}

// Generate sends a single messages request.
func (g *AnthropicGateway) Generate(ctx context.Context, req *GenerateRequest) (*CompletionResponse, error) {
	start := time.Now()

	body := anthropic.MessageNewParams{
		Model:     anthropic.F(g.params.Model),
		MaxTokens: anthropic.F(int64(maxTokensOrDefault(g.params.MaxTokens))),
		Messages:  anthropic.F(buildAnthropicMessages(req, g.params.OpeningSeed)),
		System: anthropic.F([]anthropic.TextBlockParam{
			{
				Type: anthropic.F(anthropic.TextBlockParamTypeText),
				Text: anthropic.F(req.SystemInstruction),
			},
		}),
	}
	if g.params.Temperature != nil {
		body.Temperature = anthropic.F(*g.params.Temperature)
	}

	resp, err := g.client.Messages.New(ctx, body)
	if err != nil {
		return nil, classifyAnthropicError(err)
	}

	// Extract content
	var content string
	for _, block := range resp.Content {
		if block.Type == anthropic.ContentBlockTypeText {
			content += block.Text
		}
	}

	return &CompletionResponse{
		Content:    content,
		Model:      resp.Model,
		TokensIn:   int(resp.Usage.InputTokens),
		TokensOut:  int(resp.Usage.OutputTokens),
		StopReason: string(resp.StopReason),
		LatencyMs:  time.Since(start).Milliseconds(),
	}, nil
}

// seededHistory returns the translated history, prefixed with a user seed
// turn when the backend would otherwise see an assistant turn (or nothing) first.
func seededHistory(req *GenerateRequest, seed string) []ChatMessage {
	history := Translate(req.History, req.Perspective)
	if len(history) > 0 && history[0].Role == "user" {
		return history
	}
	if seed == "" {
		seed = "Hi"
	}
	return append([]ChatMessage{{Role: "user", Content: seed}}, history...)
}

func buildAnthropicMessages(req *GenerateRequest, seed string) []anthropic.MessageParam {
	history := seededHistory(req, seed)
	messages := make([]anthropic.MessageParam, len(history))
	for i, msg := range history {
		messages[i] = anthropic.MessageParam{
			Role: anthropic.F(anthropic.MessageParamRole(msg.Role)),
			Content: anthropic.F([]anthropic.ContentBlockParamUnion{
				anthropic.TextBlockParam{
					Type: anthropic.F(anthropic.TextBlockParamTypeText),
					Text: anthropic.F(msg.Content),
				},
			}),
		}
	}
	return messages
}

func classifyAnthropicError(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		be := newBackendError(ProviderAnthropic, apiErr.StatusCode, err)
		if apiErr.StatusCode == statusOverloaded {
			be.Kind = KindRateLimited
		}
		return be
	}
	return newBackendError(ProviderAnthropic, 0, err)
}
