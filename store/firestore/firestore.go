// Package firestore stores profiles and CRM records in Cloud Firestore under
// artifacts/{appID}/users/{uid}.
package firestore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/gosom/invoice-reminder/models"
	"github.com/gosom/invoice-reminder/pkg/encryption"
)

const (
	collArtifacts  = "artifacts"
	collUsers      = "users"
	collProfile    = "profile"
	docProfileData = "data"
	collContacts   = "crmContacts"
	collDeals      = "crmDeals"
	collActivities = "crmActivities"
)

var (
	_ models.ProfileRepository = (*Store)(nil)
	_ models.CRMRepository     = (*Store)(nil)
)

type profileDoc struct {
	Plan              string  `firestore:"plan"`
	StripeCustomerID  string  `firestore:"stripeCustomerId"`
	CancelAtPeriodEnd bool    `firestore:"cancel_at_period_end"`
	CurrentPeriodEnd  int64   `firestore:"current_period_end"`
	CRM               *crmDoc `firestore:"crm"`
}

type crmDoc struct {
	Provider     *string              `firestore:"provider"`
	Connected    bool                 `firestore:"connected"`
	AccessToken  *encryption.Envelope `firestore:"accessToken"`
	RefreshToken *encryption.Envelope `firestore:"refreshToken"`
	ExpiresAt    *int64               `firestore:"expiresAt"` // unix milliseconds
	LastSyncedAt *time.Time           `firestore:"lastSyncedAt"`
}

type Store struct {
	client *firestore.Client
	appID  string
}

func New(client *firestore.Client, appID string) *Store {
	return &Store{client: client, appID: appID}
}

func (s *Store) userDoc(userID string) *firestore.DocumentRef {
	return s.client.Collection(collArtifacts).Doc(s.appID).Collection(collUsers).Doc(userID)
}

func (s *Store) profileRef(userID string) *firestore.DocumentRef {
	return s.userDoc(userID).Collection(collProfile).Doc(docProfileData)
}

func (s *Store) Get(ctx context.Context, userID string) (models.Profile, error) {
	snap, err := s.profileRef(userID).Get(ctx)
	if err != nil {
		return models.Profile{}, translate(err)
	}

	var doc profileDoc
	if err := snap.DataTo(&doc); err != nil {
		return models.Profile{}, fmt.Errorf("failed to decode profile: %w", err)
	}

	return models.Profile{
		UserID:            userID,
		Plan:              models.Plan(doc.Plan),
		StripeCustomerID:  doc.StripeCustomerID,
		CancelAtPeriodEnd: doc.CancelAtPeriodEnd,
		CurrentPeriodEnd:  doc.CurrentPeriodEnd,
		CRM:               doc.CRM.toModel(),
	}, nil
}

func (s *Store) UpdateSubscription(ctx context.Context, userID string, cancelAtPeriodEnd bool, currentPeriodEnd int64) error {
	_, err := s.profileRef(userID).Update(ctx, []firestore.Update{
		{Path: "cancel_at_period_end", Value: cancelAtPeriodEnd},
		{Path: "current_period_end", Value: currentPeriodEnd},
	})

	return translate(err)
}

// SetCRM writes all six CRM fields in one update so the record never holds a
// mix of old and new connection data.
func (s *Store) SetCRM(ctx context.Context, userID string, crm models.CRM) error {
	if err := crm.Validate(); err != nil {
		return err
	}

	var (
		provider, accessToken, refreshToken, expiresAt, lastSyncedAt any
	)

	if crm.Connected {
		provider = string(crm.Provider)
		lastSyncedAt = *crm.LastSyncedAt
	}

	if crm.Tokens != nil {
		accessToken = crm.Tokens.AccessToken
		refreshToken = crm.Tokens.RefreshToken

		if crm.Tokens.ExpiresAt != nil {
			expiresAt = crm.Tokens.ExpiresAt.UnixMilli()
		}
	}

	_, err := s.profileRef(userID).Update(ctx, []firestore.Update{
		{Path: "crm.provider", Value: provider},
		{Path: "crm.connected", Value: crm.Connected},
		{Path: "crm.accessToken", Value: accessToken},
		{Path: "crm.refreshToken", Value: refreshToken},
		{Path: "crm.expiresAt", Value: expiresAt},
		{Path: "crm.lastSyncedAt", Value: lastSyncedAt},
	})

	return translate(err)
}

func (s *Store) TouchCRMSync(ctx context.Context, userID string, at time.Time) error {
	_, err := s.profileRef(userID).Update(ctx, []firestore.Update{
		{Path: "crm.lastSyncedAt", Value: at},
	})

	return translate(err)
}

func (s *Store) UpsertContact(ctx context.Context, userID string, contact models.Contact) error {
	ref := s.userDoc(userID).Collection(collContacts).Doc(contact.ID)

	_, err := ref.Set(ctx, map[string]any{
		"email":     contact.Email,
		"firstName": contact.FirstName,
		"lastName":  contact.LastName,
		"phone":     contact.Phone,
		"createdAt": contact.CreatedAt,
		"updatedAt": contact.UpdatedAt,
		"source":    contact.Source,
	}, firestore.MergeAll)
	if err != nil {
		return fmt.Errorf("failed to upsert contact: %w", err)
	}

	return nil
}

func (s *Store) UpsertDeal(ctx context.Context, userID string, deal models.Deal) error {
	ref := s.userDoc(userID).Collection(collDeals).Doc(deal.InvoiceID)

	_, err := ref.Set(ctx, map[string]any{
		"invoiceId":     deal.InvoiceID,
		"invoiceNumber": deal.InvoiceNumber,
		"amount":        deal.Amount,
		"dueDate":       deal.DueDate,
		"description":   deal.Description,
		"contactEmail":  deal.ContactEmail,
		"status":        deal.Status,
		"createdAt":     deal.CreatedAt,
		"updatedAt":     deal.UpdatedAt,
		"source":        deal.Source,
	}, firestore.MergeAll)
	if err != nil {
		return fmt.Errorf("failed to upsert deal: %w", err)
	}

	return nil
}

func (s *Store) CloseDeal(ctx context.Context, userID, dealID string, at time.Time) error {
	ref := s.userDoc(userID).Collection(collDeals).Doc(dealID)

	_, err := ref.Update(ctx, []firestore.Update{
		{Path: "status", Value: models.DealStatusClosedWon},
		{Path: "closedAt", Value: at},
		{Path: "updatedAt", Value: at},
	})

	return translate(err)
}

func (s *Store) AppendActivity(ctx context.Context, userID string, activity models.Activity) (string, error) {
	ref := s.userDoc(userID).Collection(collActivities).NewDoc()

	_, err := ref.Create(ctx, map[string]any{
		"contactEmail": activity.ContactEmail,
		"dealId":       activity.DealID,
		"type":         activity.Type,
		"note":         activity.Note,
		"channel":      activity.Channel,
		"timestamp":    activity.Timestamp,
		"createdAt":    activity.CreatedAt,
	})
	if err != nil {
		return "", fmt.Errorf("failed to create activity: %w", err)
	}

	return ref.ID, nil
}

func (d *crmDoc) toModel() models.CRM {
	if d == nil || !d.Connected {
		return models.DisconnectedCRM()
	}

	crm := models.CRM{
		Connected:    true,
		LastSyncedAt: d.LastSyncedAt,
	}

	if d.Provider != nil {
		crm.Provider = models.CRMProvider(*d.Provider)
	}

	if d.AccessToken != nil && d.RefreshToken != nil {
		crm.Tokens = &models.CRMTokens{
			AccessToken:  *d.AccessToken,
			RefreshToken: *d.RefreshToken,
		}

		if d.ExpiresAt != nil {
			exp := time.UnixMilli(*d.ExpiresAt)
			crm.Tokens.ExpiresAt = &exp
		}
	}

	return crm
}

func translate(err error) error {
	if err == nil {
		return nil
	}

	if status.Code(err) == codes.NotFound {
		return errors.Join(models.ErrNotFound, err)
	}

	return err
}
