package auth

import (
	"context"
	"fmt"

	"github.com/clerk/clerk-sdk-go/v2"
	clerkjwt "github.com/clerk/clerk-sdk-go/v2/jwt"
)

// ClerkAuthProvider validates Clerk-issued session tokens, used when the
// frontend authenticates through Clerk instead of the built-in JWT flow.
type ClerkAuthProvider struct {
	secretKey string
}

func NewClerkAuthProvider(secretKey string) *ClerkAuthProvider {
	clerk.SetKey(secretKey)

	return &ClerkAuthProvider{secretKey: secretKey}
}

func (p *ClerkAuthProvider) ValidateToken(ctx context.Context, token string) (*clerk.SessionClaims, error) {
	claims, err := clerkjwt.Verify(ctx, &clerkjwt.VerifyParams{
		Token: token,
	})
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}

	return claims, nil
}
