package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDo_SucceedsFirstAttempt(t *testing.T) {
	calls := 0
	err := Do(context.Background(), func(ctx context.Context) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestDo_RetriesRetryableErrors(t *testing.T) {
	transient := errors.New("transient")
	calls := 0

	err := Do(context.Background(), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return Retryable(transient)
		}
		return nil
	},
		WithMaxAttempts(5),
		WithInitialDelay(time.Millisecond),
	)

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_PlainErrorsAreNotRetried(t *testing.T) {
	calls := 0
	boom := errors.New("boom")

	err := Do(context.Background(), func(ctx context.Context) error {
		calls++
		return boom
	}, WithMaxAttempts(5), WithInitialDelay(time.Millisecond))

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}

func TestDo_PermanentErrorStopsImmediately(t *testing.T) {
	calls := 0
	fatal := errors.New("fatal")

	err := Do(context.Background(), func(ctx context.Context) error {
		calls++
		return Permanent(fatal)
	},
		WithMaxAttempts(5),
		WithInitialDelay(time.Millisecond),
		WithRetryIf(func(err error) bool { return true }),
	)

	assert.ErrorIs(t, err, fatal)
	assert.Equal(t, 1, calls)
}

func TestDo_ExhaustsAttempts(t *testing.T) {
	transient := errors.New("transient")
	calls := 0

	err := Do(context.Background(), func(ctx context.Context) error {
		calls++
		return Retryable(transient)
	}, WithMaxAttempts(3), WithInitialDelay(time.Millisecond))

	assert.ErrorIs(t, err, transient)
	assert.Equal(t, 3, calls)
}

func TestDo_RetryIfOverridesClassification(t *testing.T) {
	plain := errors.New("plain but transient")
	calls := 0

	err := Do(context.Background(), func(ctx context.Context) error {
		calls++
		if calls < 2 {
			return plain
		}
		return nil
	},
		WithMaxAttempts(3),
		WithInitialDelay(time.Millisecond),
		WithRetryIf(func(err error) bool { return true }),
	)

	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestDo_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := Do(ctx, func(ctx context.Context) error {
		calls++
		return Retryable(errors.New("transient"))
	})

	assert.Error(t, err)
	assert.Equal(t, 0, calls)
}

func TestDo_OnRetryCallback(t *testing.T) {
	var attempts []int
	_ = Do(context.Background(), func(ctx context.Context) error {
		return Retryable(errors.New("transient"))
	},
		WithMaxAttempts(3),
		WithInitialDelay(time.Millisecond),
		WithOnRetry(func(attempt int, err error, delay time.Duration) {
			attempts = append(attempts, attempt)
		}),
	)

	assert.Equal(t, []int{1, 2}, attempts)
}

func TestErrorWrappers(t *testing.T) {
	base := errors.New("base")

	assert.True(t, IsRetryable(Retryable(base)))
	assert.False(t, IsRetryable(base))
	assert.True(t, IsPermanent(Permanent(base)))
	assert.False(t, IsPermanent(base))
	assert.Nil(t, Retryable(nil))
	assert.Nil(t, Permanent(nil))
	assert.ErrorIs(t, Retryable(base), base)
}
