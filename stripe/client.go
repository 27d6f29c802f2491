package stripe

import (
	"context"
	"fmt"

	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/billingportal/session"
	"github.com/stripe/stripe-go/v81/subscription"
)

// Client interface for Stripe operations
type Client interface {
	ListActiveSubscriptions(ctx context.Context, customerID string, limit int64) ([]*stripe.Subscription, error)
	CancelSubscription(ctx context.Context, subscriptionID string) (*stripe.Subscription, error)
	CreateBillingPortalSession(ctx context.Context, customerID, returnURL string) (*stripe.BillingPortalSession, error)
}

// Option configures the client
type Option func(*stripe.BackendConfig)

// WithURL points the client at a different API host. Used by tests.
func WithURL(url string) Option {
	return func(c *stripe.BackendConfig) {
		c.URL = stripe.String(url)
	}
}

// client implements the Client interface
type client struct {
	subscriptions subscription.Client
	portal        session.Client
}

// NewClient creates a new Stripe client. Network retries are disabled: a failed
// call is reported to the caller immediately.
func NewClient(apiKey string, opts ...Option) Client {
	cfg := &stripe.BackendConfig{
		MaxNetworkRetries: stripe.Int64(0),
	}

	for _, o := range opts {
		o(cfg)
	}

	backend := stripe.GetBackendWithConfig(stripe.APIBackend, cfg)

	return &client{
		subscriptions: subscription.Client{B: backend, Key: apiKey},
		portal:        session.Client{B: backend, Key: apiKey},
	}
}

// ListActiveSubscriptions returns at most limit active subscriptions of a customer
func (c *client) ListActiveSubscriptions(ctx context.Context, customerID string, limit int64) ([]*stripe.Subscription, error) {
	params := &stripe.SubscriptionListParams{
		Customer: stripe.String(customerID),
		Status:   stripe.String(string(stripe.SubscriptionStatusActive)),
	}
	params.Context = ctx
	params.Limit = stripe.Int64(limit)
	params.Single = true

	var subs []*stripe.Subscription

	it := c.subscriptions.List(params)
	for it.Next() {
		subs = append(subs, it.Subscription())
	}

	if err := it.Err(); err != nil {
		return nil, fmt.Errorf("failed to list subscriptions: %w", err)
	}

	return subs, nil
}

// CancelSubscription cancels a subscription at the end of the current period
func (c *client) CancelSubscription(ctx context.Context, subscriptionID string) (*stripe.Subscription, error) {
	params := &stripe.SubscriptionParams{
		CancelAtPeriodEnd: stripe.Bool(true),
	}
	params.Context = ctx

	sub, err := c.subscriptions.Update(subscriptionID, params)
	if err != nil {
		return nil, fmt.Errorf("failed to cancel subscription: %w", err)
	}

	return sub, nil
}

// CreateBillingPortalSession creates a billing portal session
func (c *client) CreateBillingPortalSession(ctx context.Context, customerID, returnURL string) (*stripe.BillingPortalSession, error) {
	params := &stripe.BillingPortalSessionParams{
		Customer:  stripe.String(customerID),
		ReturnURL: stripe.String(returnURL),
	}
	params.Context = ctx

	sess, err := c.portal.New(params)
	if err != nil {
		return nil, fmt.Errorf("failed to create billing portal session: %w", err)
	}

	return sess, nil
}
