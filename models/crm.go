package models

import (
	"context"
	"fmt"
	"time"

	"github.com/gosom/invoice-reminder/pkg/encryption"
)

// CRMProvider identifies the system a profile's CRM connection points at.
type CRMProvider string

const (
	CRMProviderHubSpot CRMProvider = "hubspot"
	CRMProviderMock    CRMProvider = "mock"
)

// CRMTokens are the encrypted OAuth credentials of a real provider connection.
type CRMTokens struct {
	AccessToken  encryption.Envelope
	RefreshToken encryption.Envelope
	ExpiresAt    *time.Time
}

// CRM is the CRM sub-record of a profile. It is either disconnected (zero value)
// or connected to a provider. Build it with DisconnectedCRM or ConnectedCRM.
type CRM struct {
	Provider     CRMProvider
	Connected    bool
	Tokens       *CRMTokens
	LastSyncedAt *time.Time
}

// DisconnectedCRM returns the state with every CRM field cleared.
func DisconnectedCRM() CRM {
	return CRM{}
}

// ConnectedCRM returns a connected state. tokens may be nil for providers
// that do not use OAuth (mock).
func ConnectedCRM(provider CRMProvider, tokens *CRMTokens, syncedAt time.Time) CRM {
	return CRM{
		Provider:     provider,
		Connected:    true,
		Tokens:       tokens,
		LastSyncedAt: &syncedAt,
	}
}

// Validate rejects partial states.
func (c CRM) Validate() error {
	if !c.Connected {
		if c.Provider != "" || c.Tokens != nil || c.LastSyncedAt != nil {
			return fmt.Errorf("%w: disconnected record carries connection fields", ErrInvalidCRMState)
		}

		return nil
	}

	switch c.Provider {
	case CRMProviderHubSpot:
		if c.Tokens == nil {
			return fmt.Errorf("%w: hubspot connection without tokens", ErrInvalidCRMState)
		}
	case CRMProviderMock:
	default:
		return fmt.Errorf("%w: unknown provider %q", ErrInvalidCRMState, c.Provider)
	}

	if c.LastSyncedAt == nil {
		return fmt.Errorf("%w: connected record without sync timestamp", ErrInvalidCRMState)
	}

	return nil
}

// Contact is a CRM contact kept under a user's namespace, keyed by ID.
type Contact struct {
	ID        string
	Email     string
	FirstName string
	LastName  string
	Phone     string
	Source    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Deal statuses
const (
	DealStatusOpen      = "open"
	DealStatusClosedWon = "closed-won"
)

// Deal mirrors one invoice and is keyed by the invoice id.
type Deal struct {
	InvoiceID     string
	InvoiceNumber string
	Amount        any
	DueDate       string
	Description   string
	ContactEmail  string
	Status        string
	Source        string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Activity is an append-only log entry for a reminder sent about a deal.
type Activity struct {
	ContactEmail string
	DealID       string
	Type         string
	Note         string
	Channel      string
	Timestamp    time.Time
	CreatedAt    time.Time
}

// CRMRepository stores the mock CRM records under a user's namespace.
type CRMRepository interface {
	// UpsertContact merges the contact into the record keyed by contact.ID.
	UpsertContact(ctx context.Context, userID string, contact Contact) error
	// UpsertDeal merges the deal into the record keyed by deal.InvoiceID.
	UpsertDeal(ctx context.Context, userID string, deal Deal) error
	// CloseDeal marks an existing deal closed-won. Returns ErrNotFound if absent.
	CloseDeal(ctx context.Context, userID, dealID string, at time.Time) error
	// AppendActivity stores a new activity and returns its generated id.
	AppendActivity(ctx context.Context, userID string, activity Activity) (string, error)
}
