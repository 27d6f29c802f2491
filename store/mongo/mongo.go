// Package mongo stores profiles and CRM records in MongoDB. It is an
// alternative to the Firestore backend with the same document shapes.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/gosom/invoice-reminder/models"
	"github.com/gosom/invoice-reminder/pkg/encryption"
)

const (
	collProfiles   = "profiles"
	collContacts   = "crm_contacts"
	collDeals      = "crm_deals"
	collActivities = "crm_activities"
)

var (
	_ models.ProfileRepository = (*Store)(nil)
	_ models.CRMRepository     = (*Store)(nil)
)

type profileDoc struct {
	ID                string  `bson:"_id"`
	Plan              string  `bson:"plan"`
	StripeCustomerID  string  `bson:"stripeCustomerId"`
	CancelAtPeriodEnd bool    `bson:"cancel_at_period_end"`
	CurrentPeriodEnd  int64   `bson:"current_period_end"`
	CRM               *crmDoc `bson:"crm,omitempty"`
}

type crmDoc struct {
	Provider     *string              `bson:"provider"`
	Connected    bool                 `bson:"connected"`
	AccessToken  *encryption.Envelope `bson:"accessToken"`
	RefreshToken *encryption.Envelope `bson:"refreshToken"`
	ExpiresAt    *int64               `bson:"expiresAt"`
	LastSyncedAt *time.Time           `bson:"lastSyncedAt"`
}

type Store struct {
	db *mongo.Database
}

func New(db *mongo.Database) *Store {
	return &Store{db: db}
}

func (s *Store) Get(ctx context.Context, userID string) (models.Profile, error) {
	var doc profileDoc

	err := s.db.Collection(collProfiles).FindOne(ctx, bson.M{"_id": userID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.Profile{}, models.ErrNotFound
	}

	if err != nil {
		return models.Profile{}, fmt.Errorf("failed to get profile: %w", err)
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

func (s *Store) updateProfile(ctx context.Context, userID string, set bson.M) error {
	res, err := s.db.Collection(collProfiles).UpdateOne(ctx, bson.M{"_id": userID}, bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("failed to update profile: %w", err)
	}

	if res.MatchedCount == 0 {
		return models.ErrNotFound
	}

	return nil
}

func (s *Store) UpdateSubscription(ctx context.Context, userID string, cancelAtPeriodEnd bool, currentPeriodEnd int64) error {
	return s.updateProfile(ctx, userID, bson.M{
		"cancel_at_period_end": cancelAtPeriodEnd,
		"current_period_end":   currentPeriodEnd,
	})
}

func (s *Store) SetCRM(ctx context.Context, userID string, crm models.CRM) error {
	if err := crm.Validate(); err != nil {
		return err
	}

	return s.updateProfile(ctx, userID, bson.M{"crm": fromModel(crm)})
}

func (s *Store) TouchCRMSync(ctx context.Context, userID string, at time.Time) error {
	return s.updateProfile(ctx, userID, bson.M{"crm.lastSyncedAt": at})
}

func (s *Store) upsert(ctx context.Context, coll string, filter, set bson.M) error {
	_, err := s.db.Collection(coll).UpdateOne(ctx, filter, bson.M{"$set": set}, options.UpdateOne().SetUpsert(true))

	return err
}

func (s *Store) UpsertContact(ctx context.Context, userID string, contact models.Contact) error {
	err := s.upsert(ctx, collContacts,
		bson.M{"userId": userID, "contactId": contact.ID},
		bson.M{
			"email":     contact.Email,
			"firstName": contact.FirstName,
			"lastName":  contact.LastName,
			"phone":     contact.Phone,
			"createdAt": contact.CreatedAt,
			"updatedAt": contact.UpdatedAt,
			"source":    contact.Source,
		})
	if err != nil {
		return fmt.Errorf("failed to upsert contact: %w", err)
	}

	return nil
}

func (s *Store) UpsertDeal(ctx context.Context, userID string, deal models.Deal) error {
	err := s.upsert(ctx, collDeals,
		bson.M{"userId": userID, "invoiceId": deal.InvoiceID},
		bson.M{
			"invoiceNumber": deal.InvoiceNumber,
			"amount":        deal.Amount,
			"dueDate":       deal.DueDate,
			"description":   deal.Description,
			"contactEmail":  deal.ContactEmail,
			"status":        deal.Status,
			"createdAt":     deal.CreatedAt,
			"updatedAt":     deal.UpdatedAt,
			"source":        deal.Source,
		})
	if err != nil {
		return fmt.Errorf("failed to upsert deal: %w", err)
	}

	return nil
}

func (s *Store) CloseDeal(ctx context.Context, userID, dealID string, at time.Time) error {
	res, err := s.db.Collection(collDeals).UpdateOne(ctx,
		bson.M{"userId": userID, "invoiceId": dealID},
		bson.M{"$set": bson.M{
			"status":    models.DealStatusClosedWon,
			"closedAt":  at,
			"updatedAt": at,
		}})
	if err != nil {
		return fmt.Errorf("failed to close deal: %w", err)
	}

	if res.MatchedCount == 0 {
		return models.ErrNotFound
	}

	return nil
}

func (s *Store) AppendActivity(ctx context.Context, userID string, activity models.Activity) (string, error) {
	id := uuid.New().String()

	_, err := s.db.Collection(collActivities).InsertOne(ctx, bson.M{
		"_id":          id,
		"userId":       userID,
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

	return id, nil
}

func fromModel(crm models.CRM) crmDoc {
	doc := crmDoc{
		Connected:    crm.Connected,
		LastSyncedAt: crm.LastSyncedAt,
	}

	if crm.Connected {
		p := string(crm.Provider)
		doc.Provider = &p
	}

	if crm.Tokens != nil {
		access, refresh := crm.Tokens.AccessToken, crm.Tokens.RefreshToken
		doc.AccessToken = &access
		doc.RefreshToken = &refresh

		if crm.Tokens.ExpiresAt != nil {
			ms := crm.Tokens.ExpiresAt.UnixMilli()
			doc.ExpiresAt = &ms
		}
	}

	return doc
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
