package subscription

import (
	"time"

	"github.com/shopspring/decimal"
)

// EngineConfig tunes the lifecycle, renewal and recognition engines
type EngineConfig struct {
	// Parallelism bounds concurrent per-record work inside one batch run
	Parallelism int
	// LockTTL is how long a per-subscription lock lives if never released
	LockTTL time.Duration
	// LockWait is how long to wait for a held lock before giving up
	LockWait time.Duration
	// MaxFailureAttempts before a failure waits for an operator
	MaxFailureAttempts int
	// BatchSize caps the rows fetched per query in a batch run
	BatchSize int
	// RenewalLookaheadDays bounds how far ahead of paid-through dates the
	// renewal run looks (must cover the largest reminder offset)
	RenewalLookaheadDays int
	// ReminderTTL is how long sent-reminder keys are remembered
	ReminderTTL time.Duration
	// ApprovalThreshold flags plan changes whose net adjustment exceeds it
	ApprovalThreshold decimal.Decimal
}

// DefaultEngineConfig returns default configuration
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		Parallelism:          8,
		LockTTL:              30 * time.Second,
		LockWait:             5 * time.Second,
		MaxFailureAttempts:   5,
		BatchSize:            10000,
		RenewalLookaheadDays: 120,
		ReminderTTL:          400 * 24 * time.Hour,
		ApprovalThreshold:    decimal.NewFromInt(1000),
	}
}

func (c EngineConfig) withDefaults() EngineConfig {
	d := DefaultEngineConfig()
	if c.Parallelism <= 0 {
		c.Parallelism = d.Parallelism
	}
	if c.LockTTL <= 0 {
		c.LockTTL = d.LockTTL
	}
	if c.LockWait <= 0 {
		c.LockWait = d.LockWait
	}
	if c.MaxFailureAttempts <= 0 {
		c.MaxFailureAttempts = d.MaxFailureAttempts
	}
	if c.BatchSize <= 0 {
		c.BatchSize = d.BatchSize
	}
	if c.RenewalLookaheadDays <= 0 {
		c.RenewalLookaheadDays = d.RenewalLookaheadDays
	}
	if c.ReminderTTL <= 0 {
		c.ReminderTTL = d.ReminderTTL
	}
	return c
}
