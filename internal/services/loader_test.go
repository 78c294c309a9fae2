package services

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsTransient(t *testing.T) {
	assert.True(t, IsTransient(&TransientError{Err: errors.New("timeout")}))
	assert.True(t, IsTransient(fmt.Errorf("load: %w", &TransientError{Err: errors.New("x")})))
	assert.True(t, IsTransient(errors.New("database is locked (5) (SQLITE_BUSY)")))
	assert.False(t, IsTransient(errors.New("no such table")))
	assert.False(t, IsTransient(nil))
}

func TestRetryRecoversFromTransientErrors(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), time.Second, func() error {
		calls++
		if calls < 3 {
			return &TransientError{Err: errors.New("busy")}
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryStopsOnPermanentErrors(t *testing.T) {
	calls := 0
	boom := errors.New("corrupt row")
	err := Retry(context.Background(), time.Second, func() error {
		calls++
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}

func TestRetryHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Retry(ctx, time.Minute, func() error {
		return &TransientError{Err: errors.New("busy")}
	})
	assert.Error(t, err)
}
