package subscription

import (
	"context"
	"errors"
	"fmt"

	"github.com/ams/backend/internal/domain/shared"
	"github.com/google/uuid"
)

func subscriptionLockKey(id uuid.UUID) string {
	return "subscription:" + id.String()
}

// withSubscriptionLock runs fn while holding the subscription's exclusive lock.
// A nil locker runs fn unguarded.
func withSubscriptionLock(ctx context.Context, locker shared.Locker, cfg EngineConfig, id uuid.UUID, fn func(ctx context.Context) error) error {
	if locker == nil {
		return fn(ctx)
	}
	release, err := locker.Acquire(ctx, subscriptionLockKey(id), cfg.LockTTL, cfg.LockWait)
	if err != nil {
		if errors.Is(err, shared.ErrLockNotAcquired) {
			return shared.NewConcurrencyError(fmt.Sprintf("Subscription %s is being changed by another process", id))
		}
		return shared.NewProcessingError("LOCK_FAILED", "acquire subscription lock", err)
	}
	defer release()
	return fn(ctx)
}

// retryOnConflict re-runs fn once when it lost an optimistic-lock race.
// fn must re-read its aggregate.
func retryOnConflict(ctx context.Context, fn func(ctx context.Context) error) error {
	err := fn(ctx)
	if shared.IsConcurrency(err) {
		return fn(ctx)
	}
	return err
}
