package credits

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/appforge-ai/appforge-backend/internal/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestStore(t *testing.T) *LedgerStore {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "ledger.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	store := NewLedgerStore(db)
	if err := store.AutoMigrate(); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return store
}

func TestSeed(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.Seed(ctx, "user-1", 3); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// A retried signup must not grant twice
	if err := store.Seed(ctx, "user-1", 3); err != nil {
		t.Fatalf("unexpected error on repeat seed: %v", err)
	}

	credit, err := store.GetBalance(ctx, "user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if credit.Available != 3 || credit.Total != 3 {
		t.Errorf("expected available=3 total=3, got available=%d total=%d", credit.Available, credit.Total)
	}

	history, err := store.TransactionHistory(ctx, "user-1", 0, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(history) != 1 {
		t.Errorf("expected exactly one seed transaction, got %d", len(history))
	}
}

func TestStoreDeduct(t *testing.T) {
	t.Run("records the balance update and log entry together", func(t *testing.T) {
		store := newTestStore(t)
		ctx := context.Background()

		if err := store.Seed(ctx, "user-1", 3); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		tx, err := store.Deduct(ctx, DeductParams{
			UserID:    "user-1",
			ProjectID: "proj-1",
			Amount:    1,
			Action:    models.ActionNewProject,
			Details:   "landing page",
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if tx.Amount != -1 {
			t.Errorf("expected amount -1, got %d", tx.Amount)
		}
		if tx.BalanceAfter != 2 {
			t.Errorf("expected balance_after 2, got %d", tx.BalanceAfter)
		}
		if tx.Kind != models.CreditTransactionGeneration {
			t.Errorf("expected kind generation, got %s", tx.Kind)
		}

		credit, err := store.GetBalance(ctx, "user-1")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if credit.Available != 2 {
			t.Errorf("expected available 2, got %d", credit.Available)
		}
	})

	t.Run("edit action is logged as a modification", func(t *testing.T) {
		store := newTestStore(t)
		ctx := context.Background()

		if err := store.Seed(ctx, "user-1", 3); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		tx, err := store.Deduct(ctx, DeductParams{
			UserID: "user-1", Amount: 1, Action: models.ActionEdit,
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if tx.Kind != models.CreditTransactionModification {
			t.Errorf("expected kind modification, got %s", tx.Kind)
		}
	})

	t.Run("refuses to take the balance negative", func(t *testing.T) {
		store := newTestStore(t)
		ctx := context.Background()

		if err := store.Seed(ctx, "user-1", 1); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if _, err := store.Deduct(ctx, DeductParams{UserID: "user-1", Amount: 1, Action: models.ActionEdit}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		_, err := store.Deduct(ctx, DeductParams{UserID: "user-1", Amount: 1, Action: models.ActionEdit})
		if !errors.Is(err, ErrInsufficientCredits) {
			t.Fatalf("expected ErrInsufficientCredits, got %v", err)
		}

		history, err := store.TransactionHistory(ctx, "user-1", 0, 0)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		// seed + one successful deduction, nothing for the refusal
		if len(history) != 2 {
			t.Errorf("expected 2 transactions, got %d", len(history))
		}
	})

	t.Run("unknown user", func(t *testing.T) {
		store := newTestStore(t)

		_, err := store.Deduct(context.Background(), DeductParams{
			UserID: "ghost", Amount: 1, Action: models.ActionEdit,
		})
		if !errors.Is(err, ErrAccountNotFound) {
			t.Fatalf("expected ErrAccountNotFound, got %v", err)
		}
	})
}

func TestStoreGrant(t *testing.T) {
	t.Run("tops up an existing balance", func(t *testing.T) {
		store := newTestStore(t)
		ctx := context.Background()

		if err := store.Seed(ctx, "user-1", 3); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		credit, err := store.Grant(ctx, GrantParams{
			UserID:  "user-1",
			Amount:  50,
			Kind:    models.CreditTransactionPurchase,
			Details: "starter plan",
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if credit.Available != 53 {
			t.Errorf("expected available 53, got %d", credit.Available)
		}
		if credit.Total != 53 {
			t.Errorf("expected total 53, got %d", credit.Total)
		}
	})

	t.Run("creates the record for an unseen user", func(t *testing.T) {
		store := newTestStore(t)

		credit, err := store.Grant(context.Background(), GrantParams{
			UserID: "user-2", Amount: 150, Kind: models.CreditTransactionPurchase,
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if credit.Available != 150 {
			t.Errorf("expected available 150, got %d", credit.Available)
		}
	})
}

func TestSetBalance(t *testing.T) {
	t.Run("renewal replaces the leftover balance", func(t *testing.T) {
		store := newTestStore(t)
		ctx := context.Background()

		if err := store.Seed(ctx, "user-1", 3); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if _, err := store.Deduct(ctx, DeductParams{UserID: "user-1", Amount: 1, Action: models.ActionEdit}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		credit, err := store.SetBalance(ctx, "user-1", 50, "starter plan renewal")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if credit.Available != 50 {
			t.Errorf("expected available 50, got %d", credit.Available)
		}
		if credit.Total != 51 {
			t.Errorf("expected total 51, got %d", credit.Total)
		}
		if credit.LastReset.IsZero() {
			t.Error("expected last_reset to be set")
		}

		history, err := store.TransactionHistory(ctx, "user-1", 1, 0)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if history[0].Kind != models.CreditTransactionPurchase {
			t.Errorf("expected kind purchase, got %s", history[0].Kind)
		}
		if history[0].Amount != 48 {
			t.Errorf("expected amount 48, got %d", history[0].Amount)
		}
	})

	t.Run("downgrade is logged as a refund", func(t *testing.T) {
		store := newTestStore(t)
		ctx := context.Background()

		if err := store.Seed(ctx, "user-1", 150); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		credit, err := store.SetBalance(ctx, "user-1", 50, "downgrade to starter")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if credit.Available != 50 {
			t.Errorf("expected available 50, got %d", credit.Available)
		}
		// Lifetime total never shrinks
		if credit.Total != 150 {
			t.Errorf("expected total 150, got %d", credit.Total)
		}

		history, err := store.TransactionHistory(ctx, "user-1", 1, 0)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if history[0].Kind != models.CreditTransactionRefund {
			t.Errorf("expected kind refund, got %s", history[0].Kind)
		}
		if history[0].Amount != -100 {
			t.Errorf("expected amount -100, got %d", history[0].Amount)
		}
	})
}

func TestRecordBillingEvent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	fresh, err := store.RecordBillingEvent(ctx, "evt_123", "checkout.session.completed", "user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !fresh {
		t.Error("expected first delivery to be fresh")
	}

	fresh, err = store.RecordBillingEvent(ctx, "evt_123", "checkout.session.completed", "user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fresh {
		t.Error("expected redelivery to be deduplicated")
	}
}

func TestTransactionHistory(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.Seed(ctx, "user-1", 5); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for range 3 {
		if _, err := store.Deduct(ctx, DeductParams{UserID: "user-1", Amount: 1, Action: models.ActionEdit}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	history, err := store.TransactionHistory(ctx, "user-1", 2, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 transactions, got %d", len(history))
	}
	if history[0].BalanceAfter != 2 {
		t.Errorf("expected newest entry first with balance_after 2, got %d", history[0].BalanceAfter)
	}
}
