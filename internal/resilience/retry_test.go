package resilience

import (
	"context"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func transientCfg(attempts int) RetryConfig {
	return RetryConfig{
		MaxAttempts: attempts,
		Delay:       time.Millisecond,
	}
}

func TestDoVal_SucceedsFirstTry(t *testing.T) {
	calls := 0
	val, err := DoVal(context.Background(), transientCfg(3), func(ctx context.Context) (string, error) {
		calls++
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", val)
	assert.Equal(t, 1, calls)
}

func TestDoVal_RetriesTransientUpToCap(t *testing.T) {
	calls := 0
	_, err := DoVal(context.Background(), transientCfg(3), func(ctx context.Context) (string, error) {
		calls++
		return "", &StatusError{Service: "test", StatusCode: 503}
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)
}

func TestDoVal_RecoversOnRetry(t *testing.T) {
	calls := 0
	val, err := DoVal(context.Background(), transientCfg(2), func(ctx context.Context) (int, error) {
		calls++
		if calls == 1 {
			return 0, &StatusError{Service: "test", StatusCode: 429}
		}
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, val)
	assert.Equal(t, 2, calls)
}

func TestDoVal_NonRetryableFailsFast(t *testing.T) {
	calls := 0
	_, err := DoVal(context.Background(), transientCfg(3), func(ctx context.Context) (string, error) {
		calls++
		return "", eris.New("schema validation failed")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDoVal_CustomShouldRetry(t *testing.T) {
	cfg := RetryConfig{
		MaxAttempts: 2,
		Delay:       time.Millisecond,
		ShouldRetry: IsRateLimited,
	}

	calls := 0
	_, err := DoVal(context.Background(), cfg, func(ctx context.Context) (string, error) {
		calls++
		return "", &StatusError{Service: "test", StatusCode: 503}
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls, "503 is not a rate limit under IsRateLimited")
}

func TestDoVal_ContextCancelledDuringDelay(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	cfg := RetryConfig{MaxAttempts: 3, Delay: time.Minute}
	calls := 0
	start := time.Now()
	_, err := DoVal(ctx, cfg, func(ctx context.Context) (string, error) {
		calls++
		cancel()
		return "", &StatusError{Service: "test", StatusCode: 503}
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.Less(t, time.Since(start), time.Second, "cancellation must cut the cooldown short")
}

func TestDoVal_OnRetryCallback(t *testing.T) {
	var attempts []int
	cfg := RetryConfig{
		MaxAttempts: 3,
		Delay:       time.Millisecond,
		OnRetry:     func(attempt int, err error) { attempts = append(attempts, attempt) },
	}

	_, _ = DoVal(context.Background(), cfg, func(ctx context.Context) (string, error) {
		return "", &StatusError{Service: "test", StatusCode: 500}
	})
	assert.Equal(t, []int{1, 2}, attempts)
}

func TestDo(t *testing.T) {
	calls := 0
	err := Do(context.Background(), transientCfg(2), func(ctx context.Context) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}
