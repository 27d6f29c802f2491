package subscription

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/gosom/invoice-reminder/models"
	stripeClient "github.com/gosom/invoice-reminder/stripe"
)

// ServiceInterface defines the subscription service interface
type ServiceInterface interface {
	CancelSubscription(ctx context.Context, userID string) (*CancelResult, error)
	CreateBillingPortalSession(ctx context.Context, userID string) (string, error)
}

// CancelResult describes a subscription scheduled to end.
type CancelResult struct {
	SubscriptionID   string
	CurrentPeriodEnd int64
}

// Service handles subscription business logic
type Service struct {
	stripeClient stripeClient.Client
	profiles     models.ProfileRepository
	returnURL    string
	logger       *zap.Logger
}

var _ ServiceInterface = (*Service)(nil)

// NewService creates a new subscription service. returnURL is where the
// billing portal sends the user back to.
func NewService(
	stripeClient stripeClient.Client,
	profiles models.ProfileRepository,
	returnURL string,
	logger *zap.Logger,
) *Service {
	return &Service{
		stripeClient: stripeClient,
		profiles:     profiles,
		returnURL:    returnURL,
		logger:       logger,
	}
}

func (s *Service) customerID(ctx context.Context, userID string) (string, error) {
	profile, err := s.profiles.Get(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("failed to get profile: %w", err)
	}

	if profile.StripeCustomerID == "" {
		return "", models.ErrNoCustomerID
	}

	return profile.StripeCustomerID, nil
}

// CancelSubscription schedules the user's active subscription to end at the
// close of the current period. Only the first active subscription is touched.
func (s *Service) CancelSubscription(ctx context.Context, userID string) (*CancelResult, error) {
	customerID, err := s.customerID(ctx, userID)
	if err != nil {
		return nil, err
	}

	subs, err := s.stripeClient.ListActiveSubscriptions(ctx, customerID, 1)
	if err != nil {
		return nil, err
	}

	if len(subs) == 0 {
		return nil, models.ErrNoActiveSubscription
	}

	sub, err := s.stripeClient.CancelSubscription(ctx, subs[0].ID)
	if err != nil {
		return nil, err
	}

	if err := s.profiles.UpdateSubscription(ctx, userID, true, sub.CurrentPeriodEnd); err != nil {
		return nil, fmt.Errorf("failed to update profile: %w", err)
	}

	s.logger.Info("subscription cancelled at period end",
		zap.String("user_id", userID),
		zap.String("subscription_id", sub.ID),
		zap.Int64("current_period_end", sub.CurrentPeriodEnd))

	return &CancelResult{SubscriptionID: sub.ID, CurrentPeriodEnd: sub.CurrentPeriodEnd}, nil
}

// CreateBillingPortalSession returns the URL of a hosted billing portal session
func (s *Service) CreateBillingPortalSession(ctx context.Context, userID string) (string, error) {
	customerID, err := s.customerID(ctx, userID)
	if err != nil {
		return "", err
	}

	sess, err := s.stripeClient.CreateBillingPortalSession(ctx, customerID, s.returnURL)
	if err != nil {
		return "", err
	}

	return sess.URL, nil
}
