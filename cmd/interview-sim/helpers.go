package main

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/capitalize-ai/interview-sim/internal/config"
	"github.com/capitalize-ai/interview-sim/internal/interview"
	"github.com/capitalize-ai/interview-sim/internal/llm"
	natsclient "github.com/capitalize-ai/interview-sim/internal/nats"
	"github.com/capitalize-ai/interview-sim/internal/transcript"
	"github.com/capitalize-ai/interview-sim/pkg/logger"
	"github.com/capitalize-ai/interview-sim/pkg/tracing"
)

const serviceName = "interview-sim"

// loadConfig reads the environment, then applies the persistent flags.
func loadConfig() *config.Config {
	cfg := config.Load()
	if rootFlags.protocol != "" {
		cfg.ProtocolFile = rootFlags.protocol
	}
	if rootFlags.variant != "" {
		cfg.Variant = rootFlags.variant
	}
	if rootFlags.logLevel != "" {
		cfg.LogLevel = rootFlags.logLevel
	}
	return cfg
}

func loadVariant(cfg *config.Config) (*config.Variant, error) {
	p, err := config.LoadProtocol(cfg.ProtocolFile)
	if err != nil {
		return nil, err
	}
	return p.Variant(cfg.Variant)
}

func newLogger(cfg *config.Config) (*logger.Logger, error) {
	log, err := logger.NewForEnv(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	logger.SetGlobal(log)
	return log, nil
}

func newRecorder(cfg *config.Config) *transcript.Recorder {
	return transcript.NewRecorder(transcript.Dirs{
		Transcripts: cfg.TranscriptsDir,
		Times:       cfg.TimesDir,
		Backups:     cfg.BackupsDir,
	})
}

// interviewProtocol maps a configured variant onto the controller's protocol.
func interviewProtocol(v *config.Variant) interview.Protocol {
	return interview.Protocol{
		SystemPrompt:       v.SystemPrompt,
		RespondentTemplate: v.RespondentTemplate,
		AbortedMessage:     v.AbortedMessage,
		Codes:              v.Codes,
		DetectPolicyCodes:  v.DetectPolicyCodes,
		SubstringFallback:  v.UseSubstringFallback(),
	}
}

func gatewayParams(v *config.Variant) llm.Params {
	return llm.Params{
		Model:       v.Model,
		MaxTokens:   v.MaxOutputTokens,
		Temperature: v.Temperature,
		OpeningSeed: v.OpeningSeed,
	}
}

// startTracing installs the OTLP exporter when tracing is enabled. The
// returned func flushes it.
func startTracing(ctx context.Context, cfg *config.Config, log *logger.Logger) func() {
	if !cfg.TracingEnabled {
		return func() {}
	}
	tp, err := tracing.InitTracer(ctx, serviceName, cfg.TracingEndpoint)
	if err != nil {
		log.Warn("tracing disabled", zap.Error(err))
		return func() {}
	}
	log.Info("tracing enabled", zap.String("endpoint", cfg.TracingEndpoint))
	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracing.Shutdown(shutdownCtx, tp); err != nil {
			log.Warn("tracer shutdown failed", zap.Error(err))
		}
	}
}

// connectEvents connects to NATS and ensures the event stream exists. Both
// results are nil when no NATS URL is configured.
func connectEvents(ctx context.Context, cfg *config.Config, log *logger.Logger) (*natsclient.Client, *natsclient.EventStream, error) {
	if cfg.NATSURL == "" {
		return nil, nil, nil
	}

	client, err := natsclient.Connect(ctx, natsclient.Config{
		URL:      cfg.NATSURL,
		CAFile:   cfg.NATSCAFile,
		CertFile: cfg.NATSCertFile,
		KeyFile:  cfg.NATSKeyFile,
		Token:    cfg.NATSToken,
	}, log)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	events := natsclient.NewEventStream(client)
	if err := events.EnsureStream(ctx); err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("failed to ensure event stream: %w", err)
	}
	log.Info("publishing session events", zap.String("stream", natsclient.StreamName))
	return client, events, nil
}
