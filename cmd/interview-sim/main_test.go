package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/interview-sim/internal/config"
	"github.com/capitalize-ai/interview-sim/internal/handler"
	"github.com/capitalize-ai/interview-sim/internal/interview"
	"github.com/capitalize-ai/interview-sim/internal/middleware"
	"github.com/capitalize-ai/interview-sim/internal/model"
	"github.com/capitalize-ai/interview-sim/pkg/logger"
)

// execute runs the root command with fresh flag state.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	rootFlags.protocol, rootFlags.variant, rootFlags.logLevel = "", "", ""
	personasFlags.repeat = 0

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func isolateEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("DATA_DIR", dir)
	t.Setenv("INTERVIEW_PROTOCOL_FILE", "")
	t.Setenv("INTERVIEW_VARIANT", "")
	return dir
}

func TestInterviewProtocol(t *testing.T) {
	p, err := config.LoadProtocol("")
	require.NoError(t, err)

	v, err := p.Variant("integrity-culture-pilot")
	require.NoError(t, err)

	got := interviewProtocol(v)
	assert.Equal(t, v.SystemPrompt, got.SystemPrompt)
	assert.Equal(t, v.RespondentTemplate, got.RespondentTemplate)
	assert.Equal(t, v.Codes, got.Codes)
	assert.True(t, got.DetectPolicyCodes)
	assert.False(t, got.SubstringFallback)
	assert.NotEmpty(t, got.AbortedMessage)

	params := gatewayParams(v)
	assert.Equal(t, "claude-3-5-sonnet-20240620", params.Model)
	assert.Equal(t, 1024, params.MaxTokens)
	assert.Equal(t, "Hi", params.OpeningSeed)
}

func TestValidateCommand_Embedded(t *testing.T) {
	isolateEnv(t)

	out, err := execute(t, "validate")
	require.NoError(t, err)
	assert.Contains(t, out, "(embedded): ok")
	assert.Contains(t, out, "integrity-culture: model=gpt-4o-2024-05-13 (openai) personas=10 max_turns=25")
	assert.Contains(t, out, "integrity-culture-pilot: model=claude-3-5-sonnet-20240620 (anthropic)")
}

func TestValidateCommand_InvalidFile(t *testing.T) {
	isolateEnv(t)
	path := filepath.Join(t.TempDir(), "broken.yaml")
	require.NoError(t, os.WriteFile(path, []byte("variants: {}\n"), 0o644))

	out, err := execute(t, "validate", path)
	require.Error(t, err)
	assert.Contains(t, out, path+": INVALID")
}

func TestPersonasCommand_ShowsRecordedState(t *testing.T) {
	isolateEnv(t)
	cfg := config.Load()
	rec := newRecorder(cfg)
	start := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, rec.Persist("David_Chen_(Partner)_1", []model.Message{
		{Role: model.RoleInterviewer, Content: "Hello", CreatedAt: start},
	}, start))

	out, err := execute(t, "personas", "--variant", "integrity-culture-pilot")
	require.NoError(t, err)
	assert.Contains(t, out, "Variant: integrity-culture-pilot (10 personas, 1 interviews each)")

	recorded := map[string]string{}
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Fields(line)
		if len(fields) >= 2 && strings.HasSuffix(fields[len(fields)-2], "_1") {
			recorded[fields[len(fields)-2]] = fields[len(fields)-1]
		}
	}
	assert.Equal(t, "yes", recorded["David_Chen_(Partner)_1"])
	assert.Equal(t, "no", recorded["Olivia_Martinez_(New_Hire)_1"])
	assert.Len(t, recorded, 10)
}

func TestPersonasCommand_UnknownVariant(t *testing.T) {
	isolateEnv(t)
	_, err := execute(t, "personas", "--variant", "nope")
	require.ErrorIs(t, err, config.ErrUnknownVariant)
}

const routerSecret = "router-secret"

func bearer(t *testing.T, scopes ...string) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, middleware.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "analyst",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Scopes: scopes,
	}).SignedString([]byte(routerSecret))
	require.NoError(t, err)
	return "Bearer " + s
}

func TestRouter(t *testing.T) {
	isolateEnv(t)
	t.Setenv("JWT_SECRET", routerSecret)
	cfg := config.Load()

	rec := newRecorder(cfg)
	start := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, rec.Persist("Emily_White_(Associate)_1", []model.Message{
		{Role: model.RoleInterviewer, Content: "Hello", CreatedAt: start},
		{Role: model.RoleRespondent, Content: "Hi there", CreatedAt: start},
	}, start))

	router := newRouter(cfg, logger.Nop(), routerDeps{
		store: rec,
		checks: map[string]handler.Check{
			"nats": func() error { return errors.New("not connected") },
		},
	})

	get := func(path, auth string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		if auth != "" {
			req.Header.Set("Authorization", auth)
		}
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	t.Run("health is public", func(t *testing.T) {
		w := get("/health", "")
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	})

	t.Run("ready reports failed checks", func(t *testing.T) {
		assert.Equal(t, http.StatusServiceUnavailable, get("/ready", "").Code)
	})

	t.Run("api requires a token", func(t *testing.T) {
		assert.Equal(t, http.StatusUnauthorized, get("/api/v1/transcripts", "").Code)
	})

	t.Run("api requires the read scope", func(t *testing.T) {
		assert.Equal(t, http.StatusForbidden, get("/api/v1/transcripts", bearer(t)).Code)
	})

	t.Run("lists and reads transcripts", func(t *testing.T) {
		auth := bearer(t, middleware.ScopeTranscriptsRead)

		w := get("/api/v1/transcripts", auth)
		require.Equal(t, http.StatusOK, w.Code)
		var list handler.TranscriptListResponse
		require.NoError(t, json.NewDecoder(w.Body).Decode(&list))
		assert.Equal(t, []string{"Emily_White_(Associate)_1"}, list.Identities)

		w = get("/api/v1/transcripts/Emily_White_(Associate)_1", auth)
		require.Equal(t, http.StatusOK, w.Code)
		var tr handler.TranscriptResponse
		require.NoError(t, json.NewDecoder(w.Body).Decode(&tr))
		require.Len(t, tr.Messages, 2)
		assert.Equal(t, "Hi there", tr.Messages[1].Content)
		assert.Contains(t, tr.Timing, "Start time (UTC)")

		w = get("/api/v1/transcripts/Emily_White_(Associate)_1/time", auth)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("events unavailable without NATS", func(t *testing.T) {
		w := get("/api/v1/sessions/0190b6a1-6d1e-7c3a-9a55-2f7d3c1b0e42/events", bearer(t, middleware.ScopeTranscriptsRead))
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	})
}

func TestPrintSummary(t *testing.T) {
	var buf bytes.Buffer
	printSummary(&buf, &interview.Summary{
		Attempted: 2, Signaled: 1, Aborted: 1, Skipped: 1,
		Sessions: []interview.SessionSummary{
			{Identity: "A_1", Outcome: model.OutcomeSignaled, Signal: model.SignalEndOfInterview, Turns: 4},
			{Identity: "B_1", Outcome: model.OutcomeAborted, Turns: 1},
			{Identity: "C_1", Skipped: true},
		},
	})

	out := buf.String()
	assert.Contains(t, out, "END_OF_INTERVIEW")
	assert.Contains(t, out, "skipped")
	assert.Contains(t, out, "2 attempted: 1 signaled, 0 exhausted, 1 aborted; 1 skipped, 0 failed to save")
}

func TestFirstPositive(t *testing.T) {
	assert.Equal(t, 3, firstPositive(0, 3, 5))
	assert.Equal(t, 7, firstPositive(7, 3))
	assert.Equal(t, 0, firstPositive(0, -1))
}
