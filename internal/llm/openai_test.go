package llm

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/interview-sim/internal/model"
)

func TestBuildOpenAIMessages(t *testing.T) {
	req := &GenerateRequest{
		History:           conversation(),
		SystemInstruction: "You are a respondent.",
		Perspective:       model.RoleRespondent,
	}

	got := buildOpenAIMessages(req)
	require.Len(t, got, 4)
	assert.Equal(t, openai.ChatMessageRoleSystem, got[0].Role)
	assert.Equal(t, "You are a respondent.", got[0].Content)
	assert.Equal(t, []string{"user", "assistant", "user"}, []string{got[1].Role, got[2].Role, got[3].Role})
}

func TestBuildOpenAIMessages_Opening(t *testing.T) {
	got := buildOpenAIMessages(&GenerateRequest{SystemInstruction: "Interview.", Perspective: model.RoleInterviewer})
	require.Len(t, got, 1)
	assert.Equal(t, openai.ChatMessageRoleSystem, got[0].Role)
}

type openAIStub struct {
	status int
	body   string
	calls  atomic.Int32
	last   openai.ChatCompletionRequest
	raw    map[string]json.RawMessage
}

func (s *openAIStub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.calls.Add(1)
	body, _ := io.ReadAll(r.Body)
	_ = json.Unmarshal(body, &s.last)
	_ = json.Unmarshal(body, &s.raw)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(s.status)
	_, _ = w.Write([]byte(s.body))
}

func newOpenAITestGateway(t *testing.T, stub *openAIStub) *OpenAIGateway {
	t.Helper()
	temp := 0.7
	return newOpenAITestGatewayWithTemp(t, stub, &temp)
}

func newOpenAITestGatewayWithTemp(t *testing.T, stub *openAIStub, temp *float64) *OpenAIGateway {
	t.Helper()
	srv := httptest.NewServer(stub)
	t.Cleanup(srv.Close)

	gw, err := NewOpenAIGateway("sk-test", srv.URL+"/v1", Params{Model: "gpt-4o", MaxTokens: 256, Temperature: temp})
	require.NoError(t, err)
	return gw
}

const openAIOKBody = `{
	"id": "chatcmpl-1",
	"object": "chat.completion",
	"model": "gpt-4o",
	"choices": [{"index": 0, "message": {"role": "assistant", "content": "ok"}, "finish_reason": "stop"}],
	"usage": {"prompt_tokens": 1, "completion_tokens": 1, "total_tokens": 2}
}`

func TestOpenAIGateway_Temperature(t *testing.T) {
	zero := 0.0
	tests := []struct {
		name    string
		temp    *float64
		present bool
	}{
		{name: "unset uses provider default", temp: nil, present: false},
		{name: "explicit zero is sent", temp: &zero, present: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			stub := &openAIStub{status: http.StatusOK, body: openAIOKBody}
			gw := newOpenAITestGatewayWithTemp(t, stub, tc.temp)

			_, err := gw.Generate(context.Background(), &GenerateRequest{Perspective: model.RoleInterviewer})
			require.NoError(t, err)

			raw, ok := stub.raw["temperature"]
			require.Equal(t, tc.present, ok)
			if ok {
				var got float64
				require.NoError(t, json.Unmarshal(raw, &got))
				assert.InDelta(t, 0, got, 1e-6)
			}
		})
	}
}

func TestOpenAITemperature(t *testing.T) {
	assert.Greater(t, openAITemperature(0), float32(0))
	assert.Less(t, openAITemperature(0), float32(1e-6))
	assert.InDelta(t, 0.7, openAITemperature(0.7), 1e-6)
}

func TestOpenAIGateway_Generate(t *testing.T) {
	stub := &openAIStub{status: http.StatusOK, body: `{
		"id": "chatcmpl-1",
		"object": "chat.completion",
		"model": "gpt-4o",
		"choices": [{"index": 0, "message": {"role": "assistant", "content": "Tell me more."}, "finish_reason": "stop"}],
		"usage": {"prompt_tokens": 12, "completion_tokens": 4, "total_tokens": 16}
	}`}
	gw := newOpenAITestGateway(t, stub)

	resp, err := gw.Generate(context.Background(), &GenerateRequest{
		History:           conversation()[:2],
		SystemInstruction: "You are the interviewer.",
		Perspective:       model.RoleInterviewer,
	})
	require.NoError(t, err)

	assert.Equal(t, "Tell me more.", resp.Content)
	assert.Equal(t, 12, resp.TokensIn)
	assert.Equal(t, 4, resp.TokensOut)
	assert.Equal(t, "stop", resp.StopReason)

	assert.Equal(t, "gpt-4o", stub.last.Model)
	assert.Equal(t, 256, stub.last.MaxTokens)
	require.Len(t, stub.last.Messages, 3)
	assert.Equal(t, "system", stub.last.Messages[0].Role)
	assert.Equal(t, "assistant", stub.last.Messages[1].Role)
	assert.Equal(t, "user", stub.last.Messages[2].Role)
}

func TestOpenAIGateway_ErrorClassification(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		body        string
		rateLimited bool
	}{
		{
			name:        "rate limited",
			status:      http.StatusTooManyRequests,
			body:        `{"error": {"message": "Rate limit reached", "type": "requests", "code": "rate_limit_exceeded"}}`,
			rateLimited: true,
		},
		{
			name:   "quota exhausted",
			status: http.StatusTooManyRequests,
			body:   `{"error": {"message": "You exceeded your current quota", "type": "insufficient_quota", "code": "insufficient_quota"}}`,
		},
		{
			name:   "unauthorized",
			status: http.StatusUnauthorized,
			body:   `{"error": {"message": "Incorrect API key", "type": "invalid_request_error", "code": "invalid_api_key"}}`,
		},
		{
			name:   "server error",
			status: http.StatusInternalServerError,
			body:   `{"error": {"message": "boom", "type": "server_error"}}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stub := &openAIStub{status: tt.status, body: tt.body}
			gw := newOpenAITestGateway(t, stub)

			_, err := gw.Generate(context.Background(), &GenerateRequest{Perspective: model.RoleInterviewer})
			require.Error(t, err)

			var be *BackendError
			require.ErrorAs(t, err, &be)
			assert.Equal(t, ProviderOpenAI, be.Provider)
			assert.Equal(t, tt.status, be.StatusCode)
			assert.Equal(t, tt.rateLimited, IsRateLimited(err))
			assert.Equal(t, int32(1), stub.calls.Load(), "gateway makes exactly one attempt")
		})
	}
}

func TestOpenAIGateway_NoChoices(t *testing.T) {
	stub := &openAIStub{status: http.StatusOK, body: `{"id": "x", "object": "chat.completion", "model": "gpt-4o", "choices": []}`}
	gw := newOpenAITestGateway(t, stub)

	_, err := gw.Generate(context.Background(), &GenerateRequest{Perspective: model.RoleInterviewer})
	require.Error(t, err)
	assert.False(t, IsRateLimited(err))
}
