package auth

import (
	"context"
	"fmt"

	"github.com/clerkinc/clerk-sdk-go/clerk"
)

// ClerkVerifier verifies Clerk session tokens and looks up the primary email.
type ClerkVerifier struct {
	client clerk.Client
}

// NewClerkVerifier creates a verifier backed by the Clerk API
func NewClerkVerifier(secretKey string) (*ClerkVerifier, error) {
	client, err := clerk.NewClient(secretKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create Clerk client: %w", err)
	}

	return &ClerkVerifier{client: client}, nil
}

func (v *ClerkVerifier) Verify(_ context.Context, token string) (Identity, error) {
	claims, err := v.client.VerifyToken(token)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	if claims.Subject == "" {
		return Identity{}, fmt.Errorf("%w: empty subject", ErrInvalidToken)
	}

	user, err := v.client.Users().Read(claims.Subject)
	if err != nil {
		return Identity{}, fmt.Errorf("failed to read clerk user: %w", err)
	}

	return Identity{UserID: claims.Subject, Email: PrimaryEmail(user)}, nil
}

// PrimaryEmail returns the primary address of a Clerk user, or the first one.
func PrimaryEmail(u *clerk.User) string {
	if u.PrimaryEmailAddressID != nil {
		for _, e := range u.EmailAddresses {
			if e.ID == *u.PrimaryEmailAddressID {
				return e.EmailAddress
			}
		}
	}

	// no primary set, fall back to the first address
	if len(u.EmailAddresses) > 0 {
		return u.EmailAddresses[0].EmailAddress
	}

	return ""
}
