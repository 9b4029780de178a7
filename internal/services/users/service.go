package users

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/appforge-ai/appforge-backend/internal/models"
	"github.com/appforge-ai/appforge-backend/internal/services/billing"
	"github.com/appforge-ai/appforge-backend/internal/services/credits"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

var (
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrUserNotFound       = errors.New("user not found")
)

// Service owns account lifecycle. Registration seeds the signup credit
// grant exactly once per account.
type Service struct {
	db     *gorm.DB
	ledger *credits.LedgerStore
}

func NewService(db *gorm.DB, ledger *credits.LedgerStore) *Service {
	return &Service{db: db, ledger: ledger}
}

// AutoMigrate runs database migrations for account tables
func (s *Service) AutoMigrate() error {
	return s.db.AutoMigrate(&models.User{})
}

// Register creates an account and seeds its free credits
func (s *Service) Register(ctx context.Context, name, email, password string) (*models.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if name == "" || email == "" || len(password) < 6 {
		return nil, fmt.Errorf("name, email and a password of at least 6 characters are required")
	}

	var count int64
	if err := s.db.WithContext(ctx).Model(&models.User{}).
		Where("email = ?", email).Count(&count).Error; err != nil {
		return nil, fmt.Errorf("failed to check email: %w", err)
	}
	if count > 0 {
		return nil, ErrEmailTaken
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := models.User{
		ID:           uuid.New().String(),
		Name:         name,
		Email:        email,
		PasswordHash: string(hash),
		Plan:         models.PlanFree,
	}
	if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	if err := s.ledger.Seed(ctx, user.ID, billing.InitialCredits); err != nil {
		return nil, err
	}

	return &user, nil
}

// Login checks credentials and returns the account
func (s *Service) Login(ctx context.Context, email, password string) (*models.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	var user models.User
	err := s.db.WithContext(ctx).Where("email = ?", email).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return nil, ErrInvalidCredentials
	}

	return &user, nil
}

// Get loads an account by ID
func (s *Service) Get(ctx context.Context, userID string) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).First(&user, "id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	return &user, nil
}

// EnsureProvisioned creates an account for an externally managed identity
// (Clerk). Safe to call on every webhook delivery; the signup grant still
// lands only once.
func (s *Service) EnsureProvisioned(ctx context.Context, userID, email, name string) (*models.User, error) {
	user := models.User{
		ID:           userID,
		Name:         name,
		Email:        strings.ToLower(strings.TrimSpace(email)),
		PasswordHash: "external",
		Plan:         models.PlanFree,
	}

	err := s.db.WithContext(ctx).
		Where("id = ?", userID).
		FirstOrCreate(&user).Error
	if err != nil {
		return nil, fmt.Errorf("failed to provision user: %w", err)
	}

	if err := s.ledger.Seed(ctx, user.ID, billing.InitialCredits); err != nil {
		return nil, err
	}

	return &user, nil
}
