package cli

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finny/internal/config"
	"finny/internal/log"
)

func TestSetupLoggerFallsBackToInfo(t *testing.T) {
	cfg := &config.Config{LogLevel: "verbose", LogFormat: "json"}
	logger := SetupLogger(cfg, log.ComponentWorker)
	require.NotNil(t, logger)
	assert.Equal(t, log.ComponentWorker, logger.Component())
}

func TestKeepConsumingResubscribes(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	calls := 0
	err := KeepConsuming(ctx, log.New(log.DefaultConfig()), "test", func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("channel closed")
		}
		cancel()
		return context.Canceled
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestKeepConsumingStopsWithContext(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := KeepConsuming(ctx, log.New(log.DefaultConfig()), "test", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
