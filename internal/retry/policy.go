// Package retry bounds model gateway calls with a fixed backoff schedule.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"

	"github.com/capitalize-ai/interview-sim/internal/llm"
	"github.com/capitalize-ai/interview-sim/pkg/logger"
	"github.com/capitalize-ai/interview-sim/pkg/metrics"
)

// DefaultDelays is the backoff schedule used when none is configured.
var DefaultDelays = []time.Duration{1 * time.Second, 10 * time.Second, 30 * time.Second}

// Call is one attempt against the gateway.
type Call func(ctx context.Context) (string, error)

// Policy retries rate-limited calls once per configured delay. Each Invoke
// makes at most len(Delays)+1 attempts.
type Policy struct {
	Delays []time.Duration
	// Provider labels metrics and logs.
	Provider string
	Logger   *logger.Logger
}

// New creates a policy with the given schedule.
func New(delays []time.Duration, provider string, log *logger.Logger) *Policy {
	if log == nil {
		log = logger.Nop()
	}
	return &Policy{
		Delays:   append([]time.Duration(nil), delays...),
		Provider: provider,
		Logger:   log,
	}
}

// Invoke runs call until it succeeds, fails fatally, or the schedule is
// exhausted. The boolean is false on any unrecoverable failure; errors are
// logged here and never returned.
func (p *Policy) Invoke(ctx context.Context, call Call) (string, bool) {
	var (
		reply   string
		attempt int
	)

	err := retry.Do(ctx, p.backoff(), func(ctx context.Context) error {
		attempt++
		out, err := call(ctx)
		if err == nil {
			reply = out
			return nil
		}
		if llm.IsRateLimited(err) {
			p.Logger.Warn("gateway rate limited",
				zap.String("provider", p.Provider),
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
			return retry.RetryableError(err)
		}
		return err
	})
	if err == nil {
		return reply, true
	}

	status := "fatal"
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		status = "canceled"
	case llm.IsRateLimited(err):
		status = "exhausted"
	}
	p.Logger.Error("gateway call failed",
		zap.String("provider", p.Provider),
		zap.String("status", status),
		zap.Int("attempts", attempt),
		zap.Error(err),
	)
	return "", false
}

// backoff hands out the configured delays in order, once each.
func (p *Policy) backoff() retry.Backoff {
	remaining := append([]time.Duration(nil), p.Delays...)
	return retry.BackoffFunc(func() (time.Duration, bool) {
		if len(remaining) == 0 {
			return 0, true
		}
		next := remaining[0]
		remaining = remaining[1:]
		metrics.LLMRetriesTotal.WithLabelValues(p.Provider).Inc()
		return next, false
	})
}
