package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_DerivesCategoryAndSeverity(t *testing.T) {
	tests := []struct {
		code      string
		category  Category
		severity  Severity
		retryable bool
	}{
		{ErrCodeConfigInvalid, CategoryConfig, SeverityError, false},
		{ErrCodeIndexLocked, CategoryIO, SeverityFatal, false},
		{ErrCodeCorruptIndex, CategoryIO, SeverityError, false},
		{ErrCodeProviderTransient, CategoryNetwork, SeverityWarning, true},
		{ErrCodeInvalidInput, CategoryValidation, SeverityError, false},
		{ErrCodeCycleFailed, CategoryInternal, SeverityError, false},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			err := New(tt.code, "boom", nil)
			assert.Equal(t, tt.category, err.Category)
			assert.Equal(t, tt.severity, err.Severity)
			assert.Equal(t, tt.retryable, err.Retryable)
		})
	}
}

func TestSentinels_MatchThroughWrapping(t *testing.T) {
	// Given: a locked error wrapped by fmt.Errorf
	err := fmt.Errorf("rebuild: %w", IndexLockedError("/data/index", nil))

	// Then: errors.Is matches by code and the other sentinels do not
	assert.True(t, stderrors.Is(err, ErrIndexLocked))
	assert.False(t, stderrors.Is(err, ErrCorruptIndex))
	assert.True(t, IsFatal(err))
	assert.Equal(t, ErrCodeIndexLocked, GetCode(err))
}

func TestIsRetryable_SeesWrappedTransient(t *testing.T) {
	inner := TransientProviderError("rate limited", stderrors.New("429"))
	assert.True(t, IsRetryable(fmt.Errorf("batch 3: %w", inner)))
	assert.False(t, IsRetryable(stderrors.New("plain")))
	assert.False(t, IsRetryable(nil))
}

func TestError_IncludesCause(t *testing.T) {
	err := CorruptIndexError("count mismatch", stderrors.New("V=100 M=1000"))
	assert.Contains(t, err.Error(), "ERR_205_CORRUPT_INDEX")
	assert.Contains(t, err.Error(), "V=100 M=1000")

	wrapped := Wrap(ErrCodeInternal, stderrors.New("same"))
	assert.Equal(t, "[ERR_501_INTERNAL] same", wrapped.Error())
	assert.Nil(t, Wrap(ErrCodeInternal, nil))
}

func TestFormatForCLI(t *testing.T) {
	out := FormatForCLI(IndexLockedError("/x", nil))
	assert.Contains(t, out, "Error: index is locked")
	assert.Contains(t, out, "Hint: Close other processes")
	assert.Contains(t, out, "Code: ERR_207_INDEX_LOCKED")

	assert.Contains(t, FormatForCLI(stderrors.New("plain")), "ERR_501_INTERNAL")
	assert.Empty(t, FormatForCLI(nil))
}

func TestLogAttrs(t *testing.T) {
	attrs := LogAttrs(FilesystemPermissionError("/root/secret", nil))
	assert.Contains(t, attrs, "detail_path")
	assert.Contains(t, attrs, "/root/secret")
	assert.Equal(t, []any{"error", "plain"}, LogAttrs(stderrors.New("plain")))
}

func TestRetry_SucceedsAfterTransientError(t *testing.T) {
	// Given: a function that fails twice then succeeds
	attempts := 0
	fn := func() error {
		attempts++
		if attempts < 3 {
			return TransientProviderError("timeout", nil)
		}
		return nil
	}

	cfg := DefaultRetryConfig().TransientOnly()
	cfg.InitialDelay = 5 * time.Millisecond

	// When
	err := Retry(context.Background(), cfg, fn)

	// Then: succeeds on the third attempt
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetry_FailsAfterMaxRetries(t *testing.T) {
	attempts := 0
	cfg := RetryConfig{MaxRetries: 2, InitialDelay: time.Millisecond, MaxDelay: 4 * time.Millisecond, Multiplier: 2}

	err := Retry(context.Background(), cfg, func() error {
		attempts++
		return stderrors.New("persistent error")
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 2 retries")
	assert.Equal(t, 3, attempts) // initial + 2 retries
}

func TestRetry_TransientOnlyStopsOnPermanentError(t *testing.T) {
	attempts := 0
	cfg := DefaultRetryConfig().TransientOnly()
	cfg.InitialDelay = time.Millisecond

	permanent := New(ErrCodeProviderRejected, "bad request", nil)
	err := Retry(context.Background(), cfg, func() error {
		attempts++
		return permanent
	})

	assert.Equal(t, 1, attempts)
	assert.Same(t, permanent, err)
}

func TestRetry_ContextCancelledDuringWait(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := RetryConfig{MaxRetries: 5, InitialDelay: time.Hour, Multiplier: 2}

	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	err := Retry(ctx, cfg, func() error { return stderrors.New("fail") })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRetryWithResult_ReturnsValue(t *testing.T) {
	calls := 0
	v, err := RetryWithResult(context.Background(), RetryConfig{MaxRetries: 1, InitialDelay: time.Millisecond, Multiplier: 2},
		func() (int, error) {
			calls++
			if calls == 1 {
				return 0, stderrors.New("first")
			}
			return 42, nil
		})
	require.NoError(t, err)
	assert.Equal(t, 42, v)
}
