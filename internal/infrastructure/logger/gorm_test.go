package logger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var _ gormlogger.Interface = (*GormLogger)(nil)

func newObservedGorm(level gormlogger.LogLevel, opts ...GormLoggerOption) (*GormLogger, *observer.ObservedLogs) {
	core, recorded := observer.New(zapcore.DebugLevel)
	return NewGormLogger(zap.New(core), level, opts...), recorded
}

func sqlFn(sql string, rows int64) func() (string, int64) {
	return func() (string, int64) { return sql, rows }
}

func TestGormLogger_LogModeClones(t *testing.T) {
	l, _ := newObservedGorm(gormlogger.Info)
	warn := l.LogMode(gormlogger.Warn).(*GormLogger)
	assert.Equal(t, gormlogger.Info, l.level)
	assert.Equal(t, gormlogger.Warn, warn.level)
}

func TestGormLogger_Messages(t *testing.T) {
	l, recorded := newObservedGorm(gormlogger.Warn)
	l.Info(context.Background(), "hidden %d", 1)
	l.Warn(context.Background(), "pool %s", "saturated")
	l.Error(context.Background(), "dial %s", "refused")

	entries := recorded.All()
	require.Len(t, entries, 2)
	assert.Equal(t, "pool saturated", entries[0].Message)
	assert.Equal(t, "dial refused", entries[1].Message)
}

func TestGormLogger_Trace(t *testing.T) {
	ctx := WithJobRunID(context.Background(), "run-1")

	t.Run("error is logged with correlation", func(t *testing.T) {
		l, recorded := newObservedGorm(gormlogger.Warn)
		l.Trace(ctx, time.Now(), sqlFn("UPDATE subscriptions", 0), errors.New("deadlock"))
		entries := recorded.FilterMessage("sql error").All()
		require.Len(t, entries, 1)
		assert.Equal(t, "run-1", entries[0].ContextMap()["job_run_id"])
		assert.Equal(t, "UPDATE subscriptions", entries[0].ContextMap()["sql"])
	})

	t.Run("not found is not an error", func(t *testing.T) {
		l, recorded := newObservedGorm(gormlogger.Warn)
		l.Trace(ctx, time.Now(), sqlFn("SELECT 1", 0), gorm.ErrRecordNotFound)
		assert.Empty(t, recorded.All())
	})

	t.Run("slow query", func(t *testing.T) {
		l, recorded := newObservedGorm(gormlogger.Warn, WithSlowThreshold(time.Millisecond), WithSQL(false))
		l.Trace(ctx, time.Now().Add(-time.Second), sqlFn("SELECT * FROM renewal_events", 3), nil)
		entries := recorded.FilterMessage("slow sql").All()
		require.Len(t, entries, 1)
		assert.NotContains(t, entries[0].ContextMap(), "sql")
	})

	t.Run("normal query only at info", func(t *testing.T) {
		l, recorded := newObservedGorm(gormlogger.Warn)
		l.Trace(ctx, time.Now(), sqlFn("SELECT 1", 1), nil)
		assert.Empty(t, recorded.All())

		l, recorded = newObservedGorm(gormlogger.Info)
		l.Trace(ctx, time.Now(), sqlFn("SELECT 1", 1), nil)
		assert.Len(t, recorded.FilterMessage("sql").All(), 1)
	})

	t.Run("silent", func(t *testing.T) {
		l, recorded := newObservedGorm(gormlogger.Silent)
		l.Trace(ctx, time.Now(), sqlFn("SELECT 1", 1), errors.New("x"))
		assert.Empty(t, recorded.All())
	})
}

func TestMapGormLogLevel(t *testing.T) {
	assert.Equal(t, gormlogger.Silent, MapGormLogLevel("silent"))
	assert.Equal(t, gormlogger.Error, MapGormLogLevel("error"))
	assert.Equal(t, gormlogger.Info, MapGormLogLevel("debug"))
	assert.Equal(t, gormlogger.Warn, MapGormLogLevel(""))
}
