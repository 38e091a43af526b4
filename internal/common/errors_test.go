package common

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	base := errors.New("dial tcp: refused")
	err := E(KindClassifierUnavailable, "engine.Start", base)

	assert.Equal(t, KindClassifierUnavailable, KindOf(err))
	assert.True(t, errors.Is(err, base))
	assert.Equal(t, "engine.Start: dial tcp: refused", err.Error())

	wrapped := fmt.Errorf("classify: %w", err)
	assert.True(t, IsKind(wrapped, KindClassifierUnavailable))
	assert.False(t, IsKind(wrapped, KindNotFound))

	assert.Equal(t, KindUnknown, KindOf(base))
	assert.False(t, IsKind(nil, KindUnknown))
	assert.Equal(t, "review.Approve: forbidden", E(KindForbidden, "review.Approve", nil).Error())
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(ErrRateLimit))
	assert.True(t, IsRetryable(fmt.Errorf("call: %w", context.DeadlineExceeded)))
	assert.True(t, IsRetryable(&RetryableError{Err: errors.New("503"), Retryable: true}))
	assert.False(t, IsRetryable(&RetryableError{Err: errors.New("400"), Retryable: false}))
	assert.False(t, IsRetryable(context.Canceled))
}

func TestUserError(t *testing.T) {
	inner := errors.New("no such file")
	err := NewUserError("Could not open database", inner)
	assert.Equal(t, "Could not open database: no such file", err.Error())
	assert.ErrorIs(t, err, inner)
}
