package llm

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/interview-sim/internal/model"
)

func TestDetectProvider(t *testing.T) {
	tests := []struct {
		model   string
		want    Provider
		wantErr bool
	}{
		{model: "gpt-4o-2024-05-13", want: ProviderOpenAI},
		{model: "GPT-4-turbo", want: ProviderOpenAI},
		{model: "claude-3-5-sonnet-20240620", want: ProviderAnthropic},
		{model: "anthropic/Claude-3-opus", want: ProviderAnthropic},
		{model: "llama-3-70b", wantErr: true},
		{model: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			got, err := DetectProvider(tt.model)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrUnknownBackend)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewGateway(t *testing.T) {
	creds := Credentials{OpenAIAPIKey: "sk-test", AnthropicAPIKey: "ak-test"}

	gw, err := NewGateway(creds, Params{Model: "gpt-4o"})
	require.NoError(t, err)
	assert.Equal(t, "openai", gw.Name())

	gw, err = NewGateway(creds, Params{Model: "claude-3-haiku"})
	require.NoError(t, err)
	assert.Equal(t, "anthropic", gw.Name())

	_, err = NewGateway(creds, Params{Model: "mistral-large"})
	assert.ErrorIs(t, err, ErrUnknownBackend)

	_, err = NewGateway(Credentials{}, Params{Model: "gpt-4o"})
	assert.Error(t, err, "missing key")
}

func conversation() []model.Message {
	return []model.Message{
		{Role: model.RoleInterviewer, Content: "Welcome. How long have you been at the firm?"},
		{Role: model.RoleRespondent, Content: "About three years."},
		{Role: model.RoleInterviewer, Content: "What does integrity mean to you?"},
	}
}

func TestTranslate(t *testing.T) {
	history := conversation()

	asInterviewer := Translate(history, model.RoleInterviewer)
	assert.Equal(t, []ChatMessage{
		{Role: "assistant", Content: history[0].Content},
		{Role: "user", Content: history[1].Content},
		{Role: "assistant", Content: history[2].Content},
	}, asInterviewer)

	asRespondent := Translate(history, model.RoleRespondent)
	assert.Equal(t, []ChatMessage{
		{Role: "user", Content: history[0].Content},
		{Role: "assistant", Content: history[1].Content},
		{Role: "user", Content: history[2].Content},
	}, asRespondent)
}

func TestTranslate_DropsSystemMessages(t *testing.T) {
	history := append(conversation(), model.Message{Role: model.RoleSystem, Content: "aborted"})
	got := Translate(history, model.RoleRespondent)
	assert.Len(t, got, 3)
	for _, m := range got {
		assert.NotEqual(t, "aborted", m.Content)
	}
}

func TestTranslate_Empty(t *testing.T) {
	assert.Empty(t, Translate(nil, model.RoleInterviewer))
}

func TestBackendError(t *testing.T) {
	cause := errors.New("too many requests")
	err := fmt.Errorf("generate: %w", newBackendError(ProviderOpenAI, 429, cause))

	assert.True(t, IsRateLimited(err))
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "status 429")

	assert.False(t, IsRateLimited(newBackendError(ProviderOpenAI, 401, cause)))
	assert.False(t, IsRateLimited(newBackendError(ProviderOpenAI, 0, cause)))
	assert.False(t, IsRateLimited(cause))
}

func TestMaxTokensOrDefault(t *testing.T) {
	assert.Equal(t, 2048, maxTokensOrDefault(0))
	assert.Equal(t, 2048, maxTokensOrDefault(-5))
	assert.Equal(t, 512, maxTokensOrDefault(512))
}
