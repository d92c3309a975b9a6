package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{"DATA_DIR", "TRANSCRIPTS_DIR", "TIMES_DIR", "BACKUPS_DIR", "CALL_DELAY", "NATS_URL", "LOG_LEVEL", "PORT"} {
		t.Setenv(key, "")
	}

	cfg := Load()

	assert.Equal(t, filepath.Join("data", "transcripts"), cfg.TranscriptsDir)
	assert.Equal(t, filepath.Join("data", "times"), cfg.TimesDir)
	assert.Equal(t, filepath.Join("data", "backups"), cfg.BackupsDir)
	assert.Equal(t, time.Second, cfg.CallDelay)
	assert.Empty(t, cfg.NATSURL)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "8080", cfg.ServerPort)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("DATA_DIR", "/srv/interviews")
	t.Setenv("TIMES_DIR", "/tmp/times")
	t.Setenv("CALL_DELAY", "250ms")
	t.Setenv("RATE_LIMIT_REQUESTS", "5")
	t.Setenv("TRACING_ENABLED", "true")
	t.Setenv("OPENAI_API_KEY", "sk-1")
	t.Setenv("OPENAI_BASE_URL", "http://localhost:9999/v1")

	cfg := Load()

	assert.Equal(t, filepath.Join("/srv/interviews", "transcripts"), cfg.TranscriptsDir)
	assert.Equal(t, "/tmp/times", cfg.TimesDir)
	assert.Equal(t, 250*time.Millisecond, cfg.CallDelay)
	assert.Equal(t, 5, cfg.RateLimitRequests)
	assert.True(t, cfg.TracingEnabled)

	creds := cfg.Credentials()
	assert.Equal(t, "sk-1", creds.OpenAIAPIKey)
	assert.Equal(t, "http://localhost:9999/v1", creds.OpenAIBaseURL)
}

func TestLoad_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("CALL_DELAY", "soon")
	t.Setenv("RATE_LIMIT_REQUESTS", "lots")
	t.Setenv("TRACING_ENABLED", "maybe")

	cfg := Load()

	assert.Equal(t, time.Second, cfg.CallDelay)
	assert.Equal(t, 60, cfg.RateLimitRequests)
	assert.False(t, cfg.TracingEnabled)
}
