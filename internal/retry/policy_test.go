package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/capitalize-ai/interview-sim/internal/llm"
)

var shortDelays = []time.Duration{time.Millisecond, 2 * time.Millisecond, 3 * time.Millisecond}

func rateLimited() error {
	return &llm.BackendError{Provider: llm.ProviderOpenAI, Kind: llm.KindRateLimited, StatusCode: 429, Err: errors.New("slow down")}
}

func TestInvoke_SucceedsFirstTry(t *testing.T) {
	p := New(shortDelays, "stub", nil)
	calls := 0

	reply, ok := p.Invoke(context.Background(), func(ctx context.Context) (string, error) {
		calls++
		return "hello", nil
	})

	assert.True(t, ok)
	assert.Equal(t, "hello", reply)
	assert.Equal(t, 1, calls)
}

func TestInvoke_AlwaysRateLimited(t *testing.T) {
	p := New(shortDelays, "stub", nil)
	calls := 0

	reply, ok := p.Invoke(context.Background(), func(ctx context.Context) (string, error) {
		calls++
		return "", rateLimited()
	})

	assert.False(t, ok)
	assert.Empty(t, reply)
	assert.Equal(t, len(shortDelays)+1, calls)
}

func TestInvoke_RecoversAfterRateLimit(t *testing.T) {
	p := New(shortDelays, "stub", nil)
	calls := 0

	reply, ok := p.Invoke(context.Background(), func(ctx context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", rateLimited()
		}
		return "finally", nil
	})

	assert.True(t, ok)
	assert.Equal(t, "finally", reply)
	assert.Equal(t, 3, calls)
}

func TestInvoke_FatalIsNotRetried(t *testing.T) {
	p := New(shortDelays, "stub", nil)
	calls := 0

	_, ok := p.Invoke(context.Background(), func(ctx context.Context) (string, error) {
		calls++
		return "", &llm.BackendError{Provider: llm.ProviderAnthropic, Kind: llm.KindOther, StatusCode: 401, Err: errors.New("bad key")}
	})

	assert.False(t, ok)
	assert.Equal(t, 1, calls)
}

func TestInvoke_UnclassifiedErrorIsFatal(t *testing.T) {
	p := New(shortDelays, "stub", nil)
	calls := 0

	_, ok := p.Invoke(context.Background(), func(ctx context.Context) (string, error) {
		calls++
		return "", errors.New("boom")
	})

	assert.False(t, ok)
	assert.Equal(t, 1, calls)
}

func TestInvoke_DelaysConsumedInOrderPerInvocation(t *testing.T) {
	p := New([]time.Duration{time.Millisecond}, "stub", nil)

	for i := 0; i < 2; i++ {
		calls := 0
		_, ok := p.Invoke(context.Background(), func(ctx context.Context) (string, error) {
			calls++
			return "", rateLimited()
		})
		assert.False(t, ok)
		assert.Equal(t, 2, calls, "invocation %d", i)
	}
}

func TestInvoke_NoDelaysMeansSingleAttempt(t *testing.T) {
	p := New(nil, "stub", nil)
	calls := 0

	_, ok := p.Invoke(context.Background(), func(ctx context.Context) (string, error) {
		calls++
		return "", rateLimited()
	})

	assert.False(t, ok)
	assert.Equal(t, 1, calls)
}

func TestInvoke_CanceledContextStopsBackoff(t *testing.T) {
	p := New([]time.Duration{time.Hour}, "stub", nil)
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0

	done := make(chan bool)
	go func() {
		_, ok := p.Invoke(ctx, func(ctx context.Context) (string, error) {
			calls++
			return "", rateLimited()
		})
		done <- ok
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case ok := <-done:
		assert.False(t, ok)
		assert.Equal(t, 1, calls)
	case <-time.After(5 * time.Second):
		t.Fatal("Invoke did not return after cancellation")
	}
}
