package auth

import (
	"fmt"
	"time"

	"github.com/appforge-ai/appforge-backend/internal/models"
	"github.com/golang-jwt/jwt/v5"
)

const (
	defaultCookieName = "token"
	defaultTTLHours   = 168 // 7 days
)

// JWTService issues and validates the session tokens set as HTTP-only
// cookies at login.
type JWTService struct {
	secret     []byte
	cookieName string
	ttl        time.Duration
}

func NewJWTService(cfg *models.JWTAuthConfig) *JWTService {
	cookieName := cfg.CookieName
	if cookieName == "" {
		cookieName = defaultCookieName
	}
	ttlHours := cfg.TTLHours
	if ttlHours <= 0 {
		ttlHours = defaultTTLHours
	}

	return &JWTService{
		secret:     []byte(cfg.Secret),
		cookieName: cookieName,
		ttl:        time.Duration(ttlHours) * time.Hour,
	}
}

func (s *JWTService) CookieName() string {
	return s.cookieName
}

func (s *JWTService) TTL() time.Duration {
	return s.ttl
}

// IssueToken signs a session token for a user
func (s *JWTService) IssueToken(userID string) (string, time.Time, error) {
	expiresAt := time.Now().Add(s.ttl)

	claims := jwt.RegisteredClaims{
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}

	return token, expiresAt, nil
}

// ValidateToken checks a session token and returns the user it belongs to
func (s *JWTService) ValidateToken(tokenString string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenString, &jwt.RegisteredClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return "", fmt.Errorf("invalid token: %w", err)
	}

	claims, ok := token.Claims.(*jwt.RegisteredClaims)
	if !ok || !token.Valid || claims.Subject == "" {
		return "", fmt.Errorf("invalid token claims")
	}

	return claims.Subject, nil
}
