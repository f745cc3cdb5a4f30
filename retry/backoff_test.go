package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastPolicy() *Policy {
	return &Policy{
		MaxRetries:   3,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2.0,
	}
}

func TestBackoffRetryer_SucceedsFirstTry(t *testing.T) {
	t.Parallel()

	r := NewBackoffRetryer(fastPolicy(), nil)
	calls := 0
	err := r.Do(context.Background(), func() error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestBackoffRetryer_RetriesUntilSuccess(t *testing.T) {
	t.Parallel()

	r := NewBackoffRetryer(fastPolicy(), nil)
	calls := 0
	err := r.Do(context.Background(), func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestBackoffRetryer_ExhaustsRetries(t *testing.T) {
	t.Parallel()

	r := NewBackoffRetryer(fastPolicy(), nil)
	calls := 0
	sentinel := errors.New("always fails")
	err := r.Do(context.Background(), func() error {
		calls++
		return sentinel
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, sentinel)
	assert.Equal(t, 4, calls) // 1 次初始 + 3 次重试
}

func TestBackoffRetryer_NonRetryableStopsImmediately(t *testing.T) {
	t.Parallel()

	permanent := errors.New("permanent")
	transient := errors.New("transient")

	policy := fastPolicy()
	policy.RetryableErrors = []error{transient}

	r := NewBackoffRetryer(policy, nil)
	calls := 0
	err := r.Do(context.Background(), func() error {
		calls++
		return permanent
	})
	require.ErrorIs(t, err, permanent)
	assert.Equal(t, 1, calls)
}

func TestBackoffRetryer_ClassifyOverridesList(t *testing.T) {
	t.Parallel()

	policy := fastPolicy()
	policy.Classify = func(err error) bool { return false }

	r := NewBackoffRetryer(policy, nil)
	calls := 0
	err := r.Do(context.Background(), func() error {
		calls++
		return errors.New("boom")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestBackoffRetryer_ContextCancellation(t *testing.T) {
	t.Parallel()

	policy := fastPolicy()
	policy.InitialDelay = time.Second
	policy.MaxDelay = time.Second

	r := NewBackoffRetryer(policy, nil)
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	err := r.Do(ctx, func() error {
		calls++
		return errors.New("transient")
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestBackoffRetryer_OnRetryCallback(t *testing.T) {
	t.Parallel()

	var attempts []int
	policy := fastPolicy()
	policy.OnRetry = func(attempt int, err error, delay time.Duration) {
		attempts = append(attempts, attempt)
	}

	r := NewBackoffRetryer(policy, nil)
	_ = r.Do(context.Background(), func() error {
		return errors.New("transient")
	})
	assert.Equal(t, []int{1, 2, 3}, attempts)
}

func TestCalculateDelay_Bounds(t *testing.T) {
	t.Parallel()

	policy := &Policy{
		MaxRetries:   5,
		InitialDelay: 10 * time.Millisecond,
		MaxDelay:     40 * time.Millisecond,
		Multiplier:   2.0,
	}
	r := NewBackoffRetryer(policy, nil).(*backoffRetryer)

	assert.Equal(t, 10*time.Millisecond, r.calculateDelay(1))
	assert.Equal(t, 20*time.Millisecond, r.calculateDelay(2))
	assert.Equal(t, 40*time.Millisecond, r.calculateDelay(3))
	// 超过上限后收敛到 MaxDelay
	assert.Equal(t, 40*time.Millisecond, r.calculateDelay(5))
}

func TestCalculateDelay_JitterStaysInRange(t *testing.T) {
	t.Parallel()

	policy := &Policy{
		MaxRetries:   3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     time.Second,
		Multiplier:   2.0,
		Jitter:       true,
	}
	r := NewBackoffRetryer(policy, nil).(*backoffRetryer)

	for i := 0; i < 100; i++ {
		d := r.calculateDelay(2)
		assert.GreaterOrEqual(t, d, 100*time.Millisecond)
		assert.LessOrEqual(t, d, 250*time.Millisecond)
	}
}
