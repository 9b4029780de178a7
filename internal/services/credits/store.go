package credits

import (
	"context"
	"errors"
	"fmt"

	"github.com/appforge-ai/appforge-backend/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DeductParams describes a single-generation settlement against a user's balance.
type DeductParams struct {
	UserID    string
	ProjectID string
	Amount    int64
	Action    models.GenerationAction
	Details   string
}

// GrantParams describes a credit top-up (purchase, plan renewal, refund).
type GrantParams struct {
	UserID  string
	Amount  int64
	Kind    models.CreditTransactionKind
	Details string
}

// LedgerStore is the durable side of the credit ledger. Every state change
// commits the balance update and its append-only transaction row in one
// database transaction.
type LedgerStore struct {
	db *gorm.DB
}

func NewLedgerStore(db *gorm.DB) *LedgerStore {
	return &LedgerStore{db: db}
}

// AutoMigrate runs database migrations for credit tables
func (s *LedgerStore) AutoMigrate() error {
	return s.db.AutoMigrate(
		&models.UserCredit{},
		&models.CreditTransaction{},
		&models.BillingEvent{},
	)
}

// GetBalance retrieves the durable credit record for a user
func (s *LedgerStore) GetBalance(ctx context.Context, userID string) (*models.UserCredit, error) {
	var credit models.UserCredit

	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		First(&credit).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get user credit: %w", ErrStoreUnavailable, err)
	}

	return &credit, nil
}

// Seed creates the credit record for a new user with an initial grant.
// Calling it again for the same user is a no-op, so a retried signup can
// never grant twice.
func (s *LedgerStore) Seed(ctx context.Context, userID string, initial int64) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		credit := models.UserCredit{
			UserID:      userID,
			Available:   initial,
			Total:       initial,
			ResetPeriod: models.ResetNone,
		}

		result := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoNothing: true,
		}).Create(&credit)
		if result.Error != nil {
			return fmt.Errorf("%w: failed to seed user credit: %w", ErrStoreUnavailable, result.Error)
		}
		if result.RowsAffected == 0 {
			return nil
		}

		transaction := models.CreditTransaction{
			UserID:       userID,
			Kind:         models.CreditTransactionPurchase,
			Amount:       initial,
			BalanceAfter: initial,
			Status:       models.CreditTransactionCompleted,
			Details:      "signup grant",
		}
		if err := tx.Create(&transaction).Error; err != nil {
			return fmt.Errorf("%w: failed to create seed transaction: %w", ErrStoreUnavailable, err)
		}

		return nil
	})
}

// Deduct removes credits from a user's balance. The balance row is locked for
// the duration of the transaction and the guarded update refuses to take the
// balance negative.
func (s *LedgerStore) Deduct(ctx context.Context, params DeductParams) (*models.CreditTransaction, error) {
	var transaction models.CreditTransaction

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var credit models.UserCredit
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("user_id = ?", params.UserID).
			First(&credit).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrAccountNotFound
			}
			return fmt.Errorf("%w: failed to lock user credit: %w", ErrStoreUnavailable, err)
		}

		if credit.Available < params.Amount {
			return ErrInsufficientCredits
		}

		newBalance := credit.Available - params.Amount
		if err := tx.Model(&credit).Update("available", newBalance).Error; err != nil {
			return fmt.Errorf("%w: failed to update credit balance: %w", ErrStoreUnavailable, err)
		}

		transaction = models.CreditTransaction{
			UserID:       params.UserID,
			ProjectID:    params.ProjectID,
			Kind:         params.Action.Kind(),
			Amount:       -params.Amount,
			BalanceAfter: newBalance,
			Status:       models.CreditTransactionCompleted,
			Details:      params.Details,
		}

		if err := tx.Create(&transaction).Error; err != nil {
			return fmt.Errorf("%w: failed to create credit transaction: %w", ErrStoreUnavailable, err)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return &transaction, nil
}

// Grant adds credits to a user's balance, creating the record if it doesn't
// exist. Total grows by the same amount so lifetime grants stay auditable.
func (s *LedgerStore) Grant(ctx context.Context, params GrantParams) (*models.UserCredit, error) {
	var updated models.UserCredit

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var credit models.UserCredit
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("user_id = ?", params.UserID).
			First(&credit).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				credit = models.UserCredit{
					UserID:      params.UserID,
					ResetPeriod: models.ResetNone,
				}
				if err := tx.Create(&credit).Error; err != nil {
					return fmt.Errorf("%w: failed to create user credit: %w", ErrStoreUnavailable, err)
				}
			} else {
				return fmt.Errorf("%w: failed to lock user credit: %w", ErrStoreUnavailable, err)
			}
		}

		newBalance := credit.Available + params.Amount
		newTotal := credit.Total + params.Amount

		if err := tx.Model(&credit).Updates(map[string]any{
			"available": newBalance,
			"total":     newTotal,
		}).Error; err != nil {
			return fmt.Errorf("%w: failed to update credit balance: %w", ErrStoreUnavailable, err)
		}

		transaction := models.CreditTransaction{
			UserID:       params.UserID,
			Kind:         params.Kind,
			Amount:       params.Amount,
			BalanceAfter: newBalance,
			Status:       models.CreditTransactionCompleted,
			Details:      params.Details,
		}

		if err := tx.Create(&transaction).Error; err != nil {
			return fmt.Errorf("%w: failed to create credit transaction: %w", ErrStoreUnavailable, err)
		}

		credit.Available = newBalance
		credit.Total = newTotal
		updated = credit
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &updated, nil
}

// SetBalance overwrites a user's balance to an absolute value, used by plan
// renewals where the new period replaces rather than tops up the old balance.
func (s *LedgerStore) SetBalance(ctx context.Context, userID string, balance int64, details string) (*models.UserCredit, error) {
	var updated models.UserCredit

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var credit models.UserCredit
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("user_id = ?", userID).
			First(&credit).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				credit = models.UserCredit{
					UserID:      userID,
					ResetPeriod: models.ResetNone,
				}
				if err := tx.Create(&credit).Error; err != nil {
					return fmt.Errorf("%w: failed to create user credit: %w", ErrStoreUnavailable, err)
				}
			} else {
				return fmt.Errorf("%w: failed to lock user credit: %w", ErrStoreUnavailable, err)
			}
		}

		delta := balance - credit.Available
		newTotal := credit.Total
		if delta > 0 {
			newTotal += delta
		}

		if err := tx.Model(&credit).Updates(map[string]any{
			"available":  balance,
			"total":      newTotal,
			"last_reset": tx.NowFunc(),
		}).Error; err != nil {
			return fmt.Errorf("%w: failed to reset credit balance: %w", ErrStoreUnavailable, err)
		}

		// A renewal that lowers the balance is a return of credits, not a
		// purchase
		kind := models.CreditTransactionPurchase
		if delta < 0 {
			kind = models.CreditTransactionRefund
		}

		transaction := models.CreditTransaction{
			UserID:       userID,
			Kind:         kind,
			Amount:       delta,
			BalanceAfter: balance,
			Status:       models.CreditTransactionCompleted,
			Details:      details,
		}

		if err := tx.Create(&transaction).Error; err != nil {
			return fmt.Errorf("%w: failed to create credit transaction: %w", ErrStoreUnavailable, err)
		}

		credit.Available = balance
		credit.Total = newTotal
		updated = credit
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &updated, nil
}

// RecordBillingEvent inserts a webhook event ID for deduplication. It returns
// false when the event was already processed.
func (s *LedgerStore) RecordBillingEvent(ctx context.Context, eventID, eventType, userID string) (bool, error) {
	event := models.BillingEvent{
		EventID: eventID,
		Type:    eventType,
		UserID:  userID,
	}

	result := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "event_id"}},
		DoNothing: true,
	}).Create(&event)
	if result.Error != nil {
		return false, fmt.Errorf("%w: failed to record billing event: %w", ErrStoreUnavailable, result.Error)
	}

	return result.RowsAffected > 0, nil
}

// TransactionHistory retrieves the transaction log for a user, newest first
func (s *LedgerStore) TransactionHistory(ctx context.Context, userID string, limit, offset int) ([]models.CreditTransaction, error) {
	var transactions []models.CreditTransaction

	query := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC, id DESC")

	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}

	if err := query.Find(&transactions).Error; err != nil {
		return nil, fmt.Errorf("%w: failed to get transaction history: %w", ErrStoreUnavailable, err)
	}

	return transactions, nil
}
