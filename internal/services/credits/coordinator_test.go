package credits

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/appforge-ai/appforge-backend/internal/models"
)

// fakeCache is an in-memory stand-in for the Redis balance cache. All
// operations are atomic under a single mutex, matching the serialization
// Redis provides for single-key commands.
type fakeCache struct {
	mu      sync.Mutex
	values  map[string]int64
	getErr  error
	decrErr error
	setErr  error

	// dropAfterGet expires the entry right after the next successful Get,
	// simulating a TTL firing between the read and the decrement
	dropAfterGet bool

	setCalls int64
}

func newFakeCache() *fakeCache {
	return &fakeCache{values: map[string]int64{}}
}

func (f *fakeCache) Get(_ context.Context, userID string) (int64, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return 0, false, f.getErr
	}
	v, ok := f.values[userID]
	if ok && f.dropAfterGet {
		f.dropAfterGet = false
		delete(f.values, userID)
	}
	return v, ok, nil
}

func (f *fakeCache) Set(_ context.Context, userID string, balance int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.setErr != nil {
		return f.setErr
	}
	f.setCalls++
	f.values[userID] = balance
	return nil
}

func (f *fakeCache) DecrBy(_ context.Context, userID string, n int64) (int64, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.decrErr != nil {
		return 0, false, f.decrErr
	}
	if _, ok := f.values[userID]; !ok {
		return 0, false, nil
	}
	f.values[userID] -= n
	return f.values[userID], true, nil
}

func (f *fakeCache) AddIfPresent(_ context.Context, userID string, delta int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.values[userID]; ok {
		f.values[userID] += delta
	}
	return nil
}

func (f *fakeCache) Del(_ context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.values, userID)
	return nil
}

func (f *fakeCache) balance(userID string) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.values[userID]
}

// fakeStore is an in-memory durable ledger with the same guarded-update
// semantics as the real one.
type fakeStore struct {
	mu        sync.Mutex
	balances  map[string]int64
	totals    map[string]int64
	log       []models.CreditTransaction
	deductErr error
	getCalls  int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{balances: map[string]int64{}, totals: map[string]int64{}}
}

func (f *fakeStore) GetBalance(_ context.Context, userID string) (*models.UserCredit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getCalls++
	b, ok := f.balances[userID]
	if !ok {
		return nil, ErrAccountNotFound
	}
	return &models.UserCredit{UserID: userID, Available: b, Total: f.totals[userID]}, nil
}

func (f *fakeStore) Deduct(_ context.Context, params DeductParams) (*models.CreditTransaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deductErr != nil {
		return nil, f.deductErr
	}
	b, ok := f.balances[params.UserID]
	if !ok {
		return nil, ErrAccountNotFound
	}
	if b < params.Amount {
		return nil, ErrInsufficientCredits
	}
	f.balances[params.UserID] = b - params.Amount
	tx := models.CreditTransaction{
		UserID:       params.UserID,
		ProjectID:    params.ProjectID,
		Kind:         params.Action.Kind(),
		Amount:       -params.Amount,
		BalanceAfter: b - params.Amount,
	}
	f.log = append(f.log, tx)
	return &tx, nil
}

func (f *fakeStore) Grant(_ context.Context, params GrantParams) (*models.UserCredit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.balances[params.UserID] += params.Amount
	f.totals[params.UserID] += params.Amount
	f.log = append(f.log, models.CreditTransaction{
		UserID:       params.UserID,
		Kind:         params.Kind,
		Amount:       params.Amount,
		BalanceAfter: f.balances[params.UserID],
	})
	return &models.UserCredit{
		UserID:    params.UserID,
		Available: f.balances[params.UserID],
		Total:     f.totals[params.UserID],
	}, nil
}

func (f *fakeStore) logLen() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.log)
}

func (f *fakeStore) balance(userID string) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.balances[userID]
}

func TestDeductCreditConcurrent(t *testing.T) {
	const (
		initial = int64(5)
		workers = 10
	)

	store := newFakeStore()
	store.balances["user-1"] = initial
	cache := newFakeCache()
	coord := NewCoordinator(store, cache)

	var wg sync.WaitGroup
	results := make([]error, workers)
	for i := range workers {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := coord.DeductCredit(context.Background(), DeductParams{
				UserID: "user-1",
				Amount: 1,
				Action: models.ActionEdit,
			})
			results[i] = err
		}(i)
	}
	wg.Wait()

	var succeeded, insufficient int
	for _, err := range results {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, ErrInsufficientCredits):
			insufficient++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}

	if succeeded != int(initial) {
		t.Errorf("expected exactly %d successful deductions, got %d", initial, succeeded)
	}
	if insufficient != workers-int(initial) {
		t.Errorf("expected %d insufficient-credit failures, got %d", workers-int(initial), insufficient)
	}
	if got := store.balance("user-1"); got != 0 {
		t.Errorf("expected durable balance 0, got %d", got)
	}
	if got := cache.balance("user-1"); got != 0 {
		t.Errorf("expected cached balance 0, got %d", got)
	}
	if got := store.logLen(); got != int(initial) {
		t.Errorf("expected %d ledger entries, got %d", initial, got)
	}
}

func TestDeductCredit(t *testing.T) {
	t.Run("hydrates cold cache before deducting", func(t *testing.T) {
		store := newFakeStore()
		store.balances["user-1"] = 3
		cache := newFakeCache()
		coord := NewCoordinator(store, cache)

		res, err := coord.DeductCredit(context.Background(), DeductParams{
			UserID: "user-1", Amount: 1, Action: models.ActionNewProject,
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if res.RemainingCredits != 2 {
			t.Errorf("expected 2 remaining, got %d", res.RemainingCredits)
		}
		if cache.balance("user-1") != 2 {
			t.Errorf("expected cached balance 2, got %d", cache.balance("user-1"))
		}
	})

	t.Run("insufficient balance rolls the cache back", func(t *testing.T) {
		store := newFakeStore()
		store.balances["user-1"] = 0
		cache := newFakeCache()
		coord := NewCoordinator(store, cache)

		_, err := coord.DeductCredit(context.Background(), DeductParams{
			UserID: "user-1", Amount: 1, Action: models.ActionEdit,
		})
		if !errors.Is(err, ErrInsufficientCredits) {
			t.Fatalf("expected ErrInsufficientCredits, got %v", err)
		}
		if got := cache.balance("user-1"); got != 0 {
			t.Errorf("expected cached balance restored to 0, got %d", got)
		}
		if store.logLen() != 0 {
			t.Errorf("expected no ledger entries, got %d", store.logLen())
		}
	})

	t.Run("ledger write failure rolls the cache back", func(t *testing.T) {
		store := newFakeStore()
		store.balances["user-1"] = 3
		store.deductErr = errors.New("connection reset")
		cache := newFakeCache()
		coord := NewCoordinator(store, cache)

		_, err := coord.DeductCredit(context.Background(), DeductParams{
			UserID: "user-1", Amount: 1, Action: models.ActionEdit,
		})
		if !errors.Is(err, ErrLedgerWriteFailed) {
			t.Fatalf("expected ErrLedgerWriteFailed, got %v", err)
		}
		if got := cache.balance("user-1"); got != 3 {
			t.Errorf("expected cached balance restored to 3, got %d", got)
		}
		if store.logLen() != 0 {
			t.Errorf("expected no ledger entries, got %d", store.logLen())
		}
	})

	t.Run("cache unavailable fails closed", func(t *testing.T) {
		store := newFakeStore()
		store.balances["user-1"] = 3
		cache := newFakeCache()
		cache.getErr = errors.New("dial tcp: connection refused")
		coord := NewCoordinator(store, cache)

		_, err := coord.DeductCredit(context.Background(), DeductParams{
			UserID: "user-1", Amount: 1, Action: models.ActionEdit,
		})
		if !errors.Is(err, ErrCacheUnavailable) {
			t.Fatalf("expected ErrCacheUnavailable, got %v", err)
		}
		if store.logLen() != 0 {
			t.Errorf("expected no ledger entries, got %d", store.logLen())
		}
	})

	t.Run("entry expiring mid-deduction is rehydrated, not recreated", func(t *testing.T) {
		store := newFakeStore()
		store.balances["user-1"] = 3
		cache := newFakeCache()
		cache.values["user-1"] = 3
		cache.dropAfterGet = true
		coord := NewCoordinator(store, cache)

		res, err := coord.DeductCredit(context.Background(), DeductParams{
			UserID: "user-1", Amount: 1, Action: models.ActionEdit,
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if res.RemainingCredits != 2 {
			t.Errorf("expected 2 remaining, got %d", res.RemainingCredits)
		}
		// The decrement must never recreate the expired entry at a negative
		// value; it lands on the rehydrated balance instead
		if got := cache.balance("user-1"); got != 2 {
			t.Errorf("expected cached balance 2, got %d", got)
		}
		if got := store.balance("user-1"); got != 2 {
			t.Errorf("expected durable balance 2, got %d", got)
		}
	})

	t.Run("unlimited balance is never decremented", func(t *testing.T) {
		store := newFakeStore()
		store.balances["user-1"] = UnlimitedThreshold
		cache := newFakeCache()
		coord := NewCoordinator(store, cache)

		res, err := coord.DeductCredit(context.Background(), DeductParams{
			UserID: "user-1", Amount: 1, Action: models.ActionEdit,
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !res.Unlimited {
			t.Error("expected unlimited result")
		}
		if res.RemainingCredits != UnlimitedThreshold {
			t.Errorf("expected remaining %d, got %d", UnlimitedThreshold, res.RemainingCredits)
		}
		if cache.balance("user-1") != UnlimitedThreshold {
			t.Errorf("expected cached balance untouched, got %d", cache.balance("user-1"))
		}
		if store.logLen() != 0 {
			t.Errorf("expected no ledger entries, got %d", store.logLen())
		}
	})

	t.Run("drifted cache is invalidated", func(t *testing.T) {
		store := newFakeStore()
		store.balances["user-1"] = 0
		cache := newFakeCache()
		cache.values["user-1"] = 2 // stale
		coord := NewCoordinator(store, cache)

		_, err := coord.DeductCredit(context.Background(), DeductParams{
			UserID: "user-1", Amount: 1, Action: models.ActionEdit,
		})
		if !errors.Is(err, ErrInsufficientCredits) {
			t.Fatalf("expected ErrInsufficientCredits, got %v", err)
		}
		if _, ok := cache.values["user-1"]; ok {
			t.Error("expected drifted cache entry to be dropped")
		}
	})

	t.Run("unknown user", func(t *testing.T) {
		coord := NewCoordinator(newFakeStore(), newFakeCache())

		_, err := coord.DeductCredit(context.Background(), DeductParams{
			UserID: "ghost", Amount: 1, Action: models.ActionEdit,
		})
		if !errors.Is(err, ErrAccountNotFound) {
			t.Fatalf("expected ErrAccountNotFound, got %v", err)
		}
	})
}

func TestHasCredits(t *testing.T) {
	store := newFakeStore()
	store.balances["rich"] = 3
	store.balances["broke"] = 0
	coord := NewCoordinator(store, newFakeCache())

	ok, err := coord.HasCredits(context.Background(), "rich")
	if err != nil || !ok {
		t.Errorf("expected rich user admitted, got ok=%v err=%v", ok, err)
	}

	ok, err = coord.HasCredits(context.Background(), "broke")
	if err != nil || ok {
		t.Errorf("expected broke user refused, got ok=%v err=%v", ok, err)
	}

	t.Run("cache outage does not block admission", func(t *testing.T) {
		store := newFakeStore()
		store.balances["user-1"] = 3
		cache := newFakeCache()
		cache.getErr = errors.New("dial tcp: connection refused")
		coord := NewCoordinator(store, cache)

		ok, err := coord.HasCredits(context.Background(), "user-1")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !ok {
			t.Error("expected user with a durable balance to be admitted")
		}
	})
}

func TestGetBalance(t *testing.T) {
	t.Run("serves warm cache without a store read", func(t *testing.T) {
		store := newFakeStore()
		cache := newFakeCache()
		cache.values["user-1"] = 7
		coord := NewCoordinator(store, cache)

		balance, err := coord.GetBalance(context.Background(), "user-1")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if balance != 7 {
			t.Errorf("expected balance 7, got %d", balance)
		}
		if store.getCalls != 0 {
			t.Errorf("expected no store reads, got %d", store.getCalls)
		}
	})

	t.Run("cache outage falls back to the durable store", func(t *testing.T) {
		store := newFakeStore()
		store.balances["user-1"] = 3
		cache := newFakeCache()
		cache.getErr = errors.New("dial tcp: connection refused")
		coord := NewCoordinator(store, cache)

		balance, err := coord.GetBalance(context.Background(), "user-1")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if balance != 3 {
			t.Errorf("expected balance 3, got %d", balance)
		}
	})

	t.Run("hydration write failure does not fail the read", func(t *testing.T) {
		store := newFakeStore()
		store.balances["user-1"] = 3
		cache := newFakeCache()
		cache.setErr = errors.New("dial tcp: connection refused")
		coord := NewCoordinator(store, cache)

		balance, err := coord.GetBalance(context.Background(), "user-1")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if balance != 3 {
			t.Errorf("expected balance 3, got %d", balance)
		}
	})

	t.Run("unknown user", func(t *testing.T) {
		coord := NewCoordinator(newFakeStore(), newFakeCache())

		_, err := coord.GetBalance(context.Background(), "ghost")
		if !errors.Is(err, ErrAccountNotFound) {
			t.Fatalf("expected ErrAccountNotFound, got %v", err)
		}
	})
}

func TestGrantCredits(t *testing.T) {
	t.Run("updates warm cache", func(t *testing.T) {
		store := newFakeStore()
		store.balances["user-1"] = 1
		store.totals["user-1"] = 3
		cache := newFakeCache()
		cache.values["user-1"] = 1
		coord := NewCoordinator(store, cache)

		res, err := coord.GrantCredits(context.Background(), GrantParams{
			UserID: "user-1", Amount: 50, Kind: models.CreditTransactionPurchase,
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if res.Available != 51 {
			t.Errorf("expected available 51, got %d", res.Available)
		}
		if res.Total != 53 {
			t.Errorf("expected total 53, got %d", res.Total)
		}
		if got := cache.balance("user-1"); got != 51 {
			t.Errorf("expected cached balance 51, got %d", got)
		}
	})

	t.Run("leaves cold cache cold", func(t *testing.T) {
		store := newFakeStore()
		store.balances["user-1"] = 1
		cache := newFakeCache()
		coord := NewCoordinator(store, cache)

		if _, err := coord.GrantCredits(context.Background(), GrantParams{
			UserID: "user-1", Amount: 50, Kind: models.CreditTransactionPurchase,
		}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if _, ok := cache.values["user-1"]; ok {
			t.Error("expected no cache entry to be created by a grant")
		}
	})

	t.Run("rejects non-positive amounts", func(t *testing.T) {
		coord := NewCoordinator(newFakeStore(), newFakeCache())

		if _, err := coord.GrantCredits(context.Background(), GrantParams{
			UserID: "user-1", Amount: 0,
		}); err == nil {
			t.Fatal("expected error for zero grant")
		}
	})
}

func TestInvalidateCache(t *testing.T) {
	store := newFakeStore()
	store.balances["user-1"] = 4
	cache := newFakeCache()
	cache.values["user-1"] = 9
	coord := NewCoordinator(store, cache)

	if err := coord.InvalidateCache(context.Background(), "user-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	balance, err := coord.GetBalance(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if balance != 4 {
		t.Errorf("expected rehydrated balance 4, got %d", balance)
	}
}
