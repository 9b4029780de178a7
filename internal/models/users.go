package models

import "time"

type SubscriptionPlanID string

const (
	PlanFree       SubscriptionPlanID = "free"
	PlanStarter    SubscriptionPlanID = "starter"
	PlanPro        SubscriptionPlanID = "pro"
	PlanEnterprise SubscriptionPlanID = "enterprise"
)

type CreditResetPeriod string

const (
	ResetNone    CreditResetPeriod = "none"
	ResetDaily   CreditResetPeriod = "daily"
	ResetMonthly CreditResetPeriod = "monthly"
)

// User is an account on the platform. Subscription state is embedded; the
// credit ledger itself lives in UserCredit and is owned by the credits
// coordinator.
type User struct {
	ID           string    `gorm:"primaryKey" json:"id"`
	Name         string    `gorm:"not null" json:"name"`
	Email        string    `gorm:"uniqueIndex;not null" json:"email"`
	PasswordHash string    `gorm:"not null" json:"-"`
	AvatarURL    string    `json:"avatar_url,omitzero"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"-"`

	// Subscription bookkeeping (system of record is Stripe; this mirrors it)
	IsPremium            bool               `gorm:"not null;default:false" json:"is_premium"`
	Plan                 SubscriptionPlanID `gorm:"default:free" json:"plan"`
	StripeCustomerID     string             `gorm:"index" json:"-"`
	StripeSubscriptionID string             `gorm:"index" json:"-"`
	CurrentPeriodStart   *time.Time         `json:"current_period_start,omitempty"`
	CurrentPeriodEnd     *time.Time         `json:"current_period_end,omitempty"`
	CancelAtPeriodEnd    bool               `gorm:"not null;default:false" json:"cancel_at_period_end"`

	TotalProjects    int64 `gorm:"not null;default:0" json:"total_projects"`
	TotalGenerations int64 `gorm:"not null;default:0" json:"total_generations"`
}
