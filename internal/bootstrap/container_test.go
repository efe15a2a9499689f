package bootstrap

import (
	"context"
	"testing"
	"time"

	"github.com/ams/backend/internal/infrastructure/config"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEngineConfig(t *testing.T) {
	t.Run("maps every field", func(t *testing.T) {
		got, err := EngineConfig(config.JobsConfig{
			Parallelism:          4,
			BatchSize:            500,
			LockTTL:              time.Minute,
			LockWait:             2 * time.Second,
			MaxFailureAttempts:   5,
			RenewalLookaheadDays: 90,
			ReminderTTL:          24 * time.Hour,
			ApprovalThreshold:    "250.50",
		})
		require.NoError(t, err)
		assert.Equal(t, 4, got.Parallelism)
		assert.Equal(t, 500, got.BatchSize)
		assert.Equal(t, time.Minute, got.LockTTL)
		assert.Equal(t, 5, got.MaxFailureAttempts)
		assert.Equal(t, 90, got.RenewalLookaheadDays)
		assert.True(t, got.ApprovalThreshold.Equal(decimal.RequireFromString("250.50")))
	})

	t.Run("empty threshold disables approval by amount", func(t *testing.T) {
		got, err := EngineConfig(config.JobsConfig{})
		require.NoError(t, err)
		assert.True(t, got.ApprovalThreshold.IsZero())
	})

	t.Run("bad threshold", func(t *testing.T) {
		_, err := EngineConfig(config.JobsConfig{ApprovalThreshold: "a lot"})
		assert.ErrorContains(t, err, "approval_threshold")
	})
}

func TestContainerCloseOrder(t *testing.T) {
	c := &Container{}
	var order []string
	for _, name := range []string{"db", "bus", "scheduler"} {
		name := name
		c.onClose(func(context.Context) error {
			order = append(order, name)
			return nil
		})
	}

	require.NoError(t, c.Close(context.Background()))
	assert.Equal(t, []string{"scheduler", "bus", "db"}, order)
	// Second close is a no-op
	require.NoError(t, c.Close(context.Background()))
	assert.Len(t, order, 3)
}
