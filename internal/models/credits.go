package models

import "time"

type CreditTransactionKind string

const (
	CreditTransactionGeneration   CreditTransactionKind = "generation"
	CreditTransactionModification CreditTransactionKind = "modification"
	CreditTransactionPurchase     CreditTransactionKind = "purchase"
	CreditTransactionRefund       CreditTransactionKind = "refund"
)

type CreditTransactionStatus string

const (
	CreditTransactionPending   CreditTransactionStatus = "pending"
	CreditTransactionCompleted CreditTransactionStatus = "completed"
	CreditTransactionFailed    CreditTransactionStatus = "failed"
)

// GenerationAction tags what kind of generation a deduction settles
type GenerationAction string

const (
	ActionNewProject GenerationAction = "new_project"
	ActionEdit       GenerationAction = "edit"
)

// Kind maps a generation action to its transaction kind
func (a GenerationAction) Kind() CreditTransactionKind {
	if a == ActionNewProject {
		return CreditTransactionGeneration
	}
	return CreditTransactionModification
}

// UserCredit is the authoritative per-user balance record. Available never
// goes negative; Total only grows.
type UserCredit struct {
	ID          uint              `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID      string            `gorm:"uniqueIndex;not null" json:"user_id"`
	Available   int64             `gorm:"not null;default:0" json:"available"`
	Total       int64             `gorm:"not null;default:0" json:"total"`
	LastReset   time.Time         `json:"last_reset"`
	ResetPeriod CreditResetPeriod `gorm:"default:none" json:"reset_period"`
	CreatedAt   time.Time         `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time         `gorm:"not null;autoUpdateTime" json:"updated_at"`
}

// CreditTransaction is the append-only ledger log. Rows are created exactly
// once per state-changing operation and never mutated.
type CreditTransaction struct {
	ID           uint                    `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID       string                  `gorm:"index;not null" json:"user_id"`
	ProjectID    string                  `gorm:"index" json:"project_id,omitzero"`
	Kind         CreditTransactionKind   `gorm:"index;not null" json:"kind"`
	Amount       int64                   `gorm:"not null" json:"amount"`
	BalanceAfter int64                   `gorm:"not null" json:"balance_after"`
	Status       CreditTransactionStatus `gorm:"default:completed" json:"status"`
	Details      string                  `json:"details,omitzero"`
	CreatedAt    time.Time               `gorm:"autoCreateTime;index" json:"created_at"`
}

// BillingEvent deduplicates provider webhook deliveries. The unique index on
// EventID makes a redelivered event a no-op before any credits are granted.
type BillingEvent struct {
	ID          uint      `gorm:"primaryKey;autoIncrement"`
	EventID     string    `gorm:"uniqueIndex;not null"`
	Type        string    `gorm:"index"`
	UserID      string    `gorm:"index"`
	ProcessedAt time.Time `gorm:"autoCreateTime"`
}

// DeductResult is returned by a successful credit settlement
type DeductResult struct {
	RemainingCredits int64 `json:"remaining_credits"`
	Unlimited        bool  `json:"unlimited"`
}

// GrantResult reports the balance after a credit grant
type GrantResult struct {
	Available int64 `json:"available"`
	Total     int64 `json:"total"`
}
