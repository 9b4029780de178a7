package credits

import (
	"context"
	"errors"
	"fmt"

	fiberlog "github.com/gofiber/fiber/v2/log"

	"github.com/appforge-ai/appforge-backend/internal/models"
	"golang.org/x/sync/singleflight"
)

// UnlimitedThreshold marks a balance as effectively unlimited. Enterprise
// accounts are granted at least this many credits and are never decremented.
const UnlimitedThreshold = 9999

// Store is the durable side of the ledger as the coordinator sees it
type Store interface {
	GetBalance(ctx context.Context, userID string) (*models.UserCredit, error)
	Deduct(ctx context.Context, params DeductParams) (*models.CreditTransaction, error)
	Grant(ctx context.Context, params GrantParams) (*models.UserCredit, error)
}

// Cache is the fast-path balance cache as the coordinator sees it
type Cache interface {
	Get(ctx context.Context, userID string) (int64, bool, error)
	Set(ctx context.Context, userID string, balance int64) error
	DecrBy(ctx context.Context, userID string, n int64) (int64, bool, error)
	AddIfPresent(ctx context.Context, userID string, delta int64) error
	Del(ctx context.Context, userID string) error
}

// Coordinator mediates every credit read and state change. Admission checks
// and deductions run against the cache; the durable store is the source of
// truth the cache hydrates from and every deduction must commit to.
type Coordinator struct {
	store Store
	cache Cache
	sf    singleflight.Group
}

func NewCoordinator(store Store, cache Cache) *Coordinator {
	return &Coordinator{store: store, cache: cache}
}

// ensureCached returns the user's balance for the deduction path, hydrating
// the cache from the durable store when no entry exists. Cache errors fail
// closed here: a deduction must not proceed without its serialization point.
func (c *Coordinator) ensureCached(ctx context.Context, userID string) (int64, error) {
	balance, ok, err := c.cache.Get(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrCacheUnavailable, err)
	}
	if ok {
		return balance, nil
	}
	return c.hydrate(ctx, userID)
}

// hydrate reads the durable balance and seeds the cache. Concurrent
// hydrations for the same user collapse into a single store read. The Set is
// best-effort; callers that need the entry present observe its absence on the
// next guarded cache operation.
func (c *Coordinator) hydrate(ctx context.Context, userID string) (int64, error) {
	val, err, _ := c.sf.Do(userID, func() (any, error) {
		credit, err := c.store.GetBalance(ctx, userID)
		if err != nil {
			return nil, err
		}
		if err := c.cache.Set(ctx, userID, credit.Available); err != nil {
			fiberlog.Warnf("failed to cache balance for user %s: %v", userID, err)
		}
		return credit.Available, nil
	})
	if err != nil {
		return 0, err
	}

	return val.(int64), nil
}

// readBalance serves the read paths. An unreachable cache is logged and the
// durable store answers directly, so a cache outage never blocks a read.
func (c *Coordinator) readBalance(ctx context.Context, userID string) (int64, error) {
	balance, ok, err := c.cache.Get(ctx, userID)
	if err != nil {
		fiberlog.Warnf("credit cache unreachable, reading durable balance for user %s: %v", userID, err)
		credit, storeErr := c.store.GetBalance(ctx, userID)
		if storeErr != nil {
			return 0, storeErr
		}
		return credit.Available, nil
	}
	if ok {
		return balance, nil
	}
	return c.hydrate(ctx, userID)
}

// GetBalance returns the user's current balance, serving from the cache when
// warm
func (c *Coordinator) GetBalance(ctx context.Context, userID string) (int64, error) {
	return c.readBalance(ctx, userID)
}

// HasCredits is the admission check run before generation starts. It reserves
// nothing; the deduction after generation is what settles.
func (c *Coordinator) HasCredits(ctx context.Context, userID string) (bool, error) {
	balance, err := c.readBalance(ctx, userID)
	if err != nil {
		return false, err
	}
	return balance > 0, nil
}

// Unlimited reports whether a balance is above the unlimited threshold
func Unlimited(balance int64) bool {
	return balance >= UnlimitedThreshold
}

// DeductCredit settles one generation. The cached DECR is the serialization
// point: of N concurrent deductions against a balance of B, exactly B observe
// a non-negative result and proceed to the durable write; the rest roll the
// cache back and fail with ErrInsufficientCredits.
func (c *Coordinator) DeductCredit(ctx context.Context, params DeductParams) (*models.DeductResult, error) {
	if params.Amount <= 0 {
		params.Amount = 1
	}

	balance, err := c.ensureCached(ctx, params.UserID)
	if err != nil {
		return nil, err
	}

	if Unlimited(balance) {
		return &models.DeductResult{RemainingCredits: balance, Unlimited: true}, nil
	}

	remaining, ok, err := c.cache.DecrBy(ctx, params.UserID, params.Amount)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCacheUnavailable, err)
	}
	if !ok {
		// The entry expired between the read and the decrement. Rehydrate
		// and retry once against the fresh entry.
		if _, err := c.hydrate(ctx, params.UserID); err != nil {
			return nil, err
		}
		remaining, ok, err = c.cache.DecrBy(ctx, params.UserID, params.Amount)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrCacheUnavailable, err)
		}
		if !ok {
			return nil, fmt.Errorf("%w: balance entry missing after hydration", ErrCacheUnavailable)
		}
	}
	if remaining < 0 {
		c.rollback(ctx, params.UserID, params.Amount)
		return nil, ErrInsufficientCredits
	}

	if _, err := c.store.Deduct(ctx, params); err != nil {
		c.rollback(ctx, params.UserID, params.Amount)

		if errors.Is(err, ErrInsufficientCredits) || errors.Is(err, ErrAccountNotFound) {
			// Cache drifted from the durable store; drop it so the next
			// read hydrates the real balance
			if delErr := c.cache.Del(ctx, params.UserID); delErr != nil {
				fiberlog.Warnf("failed to invalidate drifted balance for user %s: %v", params.UserID, delErr)
			}
			return nil, err
		}

		return nil, fmt.Errorf("%w: %w", ErrLedgerWriteFailed, err)
	}

	return &models.DeductResult{RemainingCredits: remaining}, nil
}

// rollback returns reserved units to the cached balance after a failed
// deduction. An entry that expired since the decrement is left missing; the
// next read hydrates the durable balance, which the failed deduction never
// changed.
func (c *Coordinator) rollback(ctx context.Context, userID string, units int64) {
	if err := c.cache.AddIfPresent(ctx, userID, units); err != nil {
		fiberlog.Errorf("failed to roll back cached balance for user %s: %v", userID, err)
	}
}

// GrantCredits applies a top-up to the durable store, then nudges the cached
// balance best-effort. A cold cache is left cold.
func (c *Coordinator) GrantCredits(ctx context.Context, params GrantParams) (*models.GrantResult, error) {
	if params.Amount <= 0 {
		return nil, fmt.Errorf("grant amount must be positive, got %d", params.Amount)
	}

	credit, err := c.store.Grant(ctx, params)
	if err != nil {
		return nil, err
	}

	if err := c.cache.AddIfPresent(ctx, params.UserID, params.Amount); err != nil {
		fiberlog.Warnf("failed to apply grant to cached balance for user %s: %v", params.UserID, err)
	}

	return &models.GrantResult{Available: credit.Available, Total: credit.Total}, nil
}

// InvalidateCache drops the cached balance for a user. The next read
// rehydrates from the durable store.
func (c *Coordinator) InvalidateCache(ctx context.Context, userID string) error {
	if err := c.cache.Del(ctx, userID); err != nil {
		return fmt.Errorf("%w: %w", ErrCacheUnavailable, err)
	}
	return nil
}
