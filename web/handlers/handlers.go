package handlers

import (
	"context"

	"go.uber.org/zap"

	"github.com/gosom/invoice-reminder/models"
	"github.com/gosom/invoice-reminder/subscription"
)

// Dependencies aggregates shared services used by handlers.
type Dependencies struct {
	Logger        *zap.Logger
	Subscriptions subscription.ServiceInterface
	CRM           CRMService
}

// HandlerGroup groups all handler categories for routing setup.
type HandlerGroup struct {
	Billing     *BillingHandlers
	Integration *IntegrationHandlers
	Health      *HealthHandlers
}

// NewHandlerGroup constructs a HandlerGroup with initialized handlers.
func NewHandlerGroup(deps Dependencies) *HandlerGroup {
	return &HandlerGroup{
		Billing:     &BillingHandlers{Deps: deps},
		Integration: &IntegrationHandlers{Deps: deps},
		Health:      &HealthHandlers{},
	}
}

// BillingHandlers contains the subscription and billing portal routes.
type BillingHandlers struct{ Deps Dependencies }

// IntegrationHandlers contains the CRM routes.
type IntegrationHandlers struct{ Deps Dependencies }

// CRMService is the minimal interface needed by handlers to manage CRM connections.
type CRMService interface {
	ConnectMock(ctx context.Context, userID, email string) error
	AuthorizeURL(ctx context.Context, userID, email string) (string, error)
	Disconnect(ctx context.Context, userID string) error
	CompleteOAuth(ctx context.Context, code, state string) error
	Sync(ctx context.Context, userID, email string, req models.SyncRequest) (models.SyncResult, error)
}
