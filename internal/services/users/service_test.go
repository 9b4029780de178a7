package users

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/appforge-ai/appforge-backend/internal/services/credits"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestService(t *testing.T) (*Service, *credits.LedgerStore) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "users.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	ledger := credits.NewLedgerStore(db)
	if err := ledger.AutoMigrate(); err != nil {
		t.Fatalf("failed to migrate ledger: %v", err)
	}

	svc := NewService(db, ledger)
	if err := svc.AutoMigrate(); err != nil {
		t.Fatalf("failed to migrate users: %v", err)
	}
	return svc, ledger
}

func TestRegister(t *testing.T) {
	t.Run("seeds the signup grant", func(t *testing.T) {
		svc, ledger := newTestService(t)
		ctx := context.Background()

		user, err := svc.Register(ctx, "Ada", "Ada@Example.com", "hunter22")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if user.Email != "ada@example.com" {
			t.Errorf("expected normalized email, got %s", user.Email)
		}
		if user.PasswordHash == "hunter22" {
			t.Error("expected password to be hashed")
		}

		credit, err := ledger.GetBalance(ctx, user.ID)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if credit.Available != 3 {
			t.Errorf("expected 3 signup credits, got %d", credit.Available)
		}
	})

	t.Run("duplicate email", func(t *testing.T) {
		svc, _ := newTestService(t)
		ctx := context.Background()

		if _, err := svc.Register(ctx, "Ada", "ada@example.com", "hunter22"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if _, err := svc.Register(ctx, "Eve", "ada@example.com", "hunter22"); !errors.Is(err, ErrEmailTaken) {
			t.Fatalf("expected ErrEmailTaken, got %v", err)
		}
	})

	t.Run("short password", func(t *testing.T) {
		svc, _ := newTestService(t)
		if _, err := svc.Register(context.Background(), "Ada", "ada@example.com", "abc"); err == nil {
			t.Fatal("expected error")
		}
	})
}

func TestLogin(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	registered, err := svc.Register(ctx, "Ada", "ada@example.com", "hunter22")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	t.Run("valid credentials", func(t *testing.T) {
		user, err := svc.Login(ctx, "ada@example.com", "hunter22")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if user.ID != registered.ID {
			t.Errorf("expected user %s, got %s", registered.ID, user.ID)
		}
	})

	t.Run("wrong password", func(t *testing.T) {
		if _, err := svc.Login(ctx, "ada@example.com", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("expected ErrInvalidCredentials, got %v", err)
		}
	})

	t.Run("unknown email", func(t *testing.T) {
		if _, err := svc.Login(ctx, "ghost@example.com", "hunter22"); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("expected ErrInvalidCredentials, got %v", err)
		}
	})
}

func TestEnsureProvisioned(t *testing.T) {
	svc, ledger := newTestService(t)
	ctx := context.Background()

	// Redelivered webhooks must not grant twice
	for range 2 {
		if _, err := svc.EnsureProvisioned(ctx, "clerk-user-1", "ada@example.com", "Ada"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	credit, err := ledger.GetBalance(ctx, "clerk-user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if credit.Available != 3 || credit.Total != 3 {
		t.Errorf("expected single signup grant, got available=%d total=%d", credit.Available, credit.Total)
	}

	history, err := ledger.TransactionHistory(ctx, "clerk-user-1", 0, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(history) != 1 {
		t.Errorf("expected one grant transaction, got %d", len(history))
	}
}
