package models

import (
	"context"
	"time"
)

// Plan is the billing tier stored on a profile.
type Plan string

const (
	PlanFree     Plan = "free"
	PlanPro      Plan = "pro"
	PlanBusiness Plan = "business"
)

// Profile is the per-user record holding plan, billing and CRM state.
type Profile struct {
	UserID            string
	Plan              Plan
	StripeCustomerID  string
	CancelAtPeriodEnd bool
	CurrentPeriodEnd  int64 // unix seconds, as reported by Stripe
	CRM               CRM
}

// ProfileRepository manages profile records. Every method returns ErrNotFound
// when the profile does not exist; profiles are never created or deleted here.
type ProfileRepository interface {
	Get(ctx context.Context, userID string) (Profile, error)
	UpdateSubscription(ctx context.Context, userID string, cancelAtPeriodEnd bool, currentPeriodEnd int64) error
	// SetCRM replaces the whole CRM sub-record. Implementations must call CRM.Validate first.
	SetCRM(ctx context.Context, userID string, crm CRM) error
	TouchCRMSync(ctx context.Context, userID string, at time.Time) error
}
