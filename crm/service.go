// Package crm connects a user's profile to a CRM provider and mirrors
// invoices, reminders and payments into the user's CRM records.
package crm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/gosom/invoice-reminder/hubspot"
	"github.com/gosom/invoice-reminder/models"
	"github.com/gosom/invoice-reminder/pkg/encryption"
)

const (
	recordSource = "crm_sync"
	activityType = "reminder"
)

var ErrMissingOAuthParams = errors.New("missing authorization code or state")

// OAuthProvider is the authorization-code flow of a real CRM provider.
type OAuthProvider interface {
	Configured() bool
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (*oauth2.Token, error)
}

var _ OAuthProvider = (*hubspot.OAuth)(nil)

type Config struct {
	Profiles    models.ProfileRepository
	Records     models.CRMRepository
	OAuth       OAuthProvider
	Cipher      *encryption.Cipher
	Logger      *zap.Logger
	// BypassEmail is granted CRM access regardless of plan. Empty disables it.
	BypassEmail string
	// Now defaults to time.Now.
	Now         func() time.Time
}

type Service struct {
	profiles    models.ProfileRepository
	records     models.CRMRepository
	oauth       OAuthProvider
	cipher      *encryption.Cipher
	bypassEmail string
	logger      *zap.Logger
	now         func() time.Time
	validate    *validator.Validate
}

func NewService(cfg Config) *Service {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Service{
		profiles:    cfg.Profiles,
		records:     cfg.Records,
		oauth:       cfg.OAuth,
		cipher:      cfg.Cipher,
		bypassEmail: cfg.BypassEmail,
		logger:      cfg.Logger,
		now:         now,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
	}
}

// authorize loads the profile and checks the caller may use the CRM features.
func (s *Service) authorize(ctx context.Context, userID, email string) (models.Profile, error) {
	profile, err := s.profiles.Get(ctx, userID)
	if err != nil {
		return models.Profile{}, err
	}

	if s.bypassEmail != "" && email == s.bypassEmail {
		return profile, nil
	}

	if profile.Plan != models.PlanBusiness {
		return models.Profile{}, models.ErrPlanRequired
	}

	return profile, nil
}

// ConnectMock marks the user's CRM as connected to the mock provider.
func (s *Service) ConnectMock(ctx context.Context, userID, email string) error {
	if _, err := s.authorize(ctx, userID, email); err != nil {
		return err
	}

	if err := s.profiles.SetCRM(ctx, userID, models.ConnectedCRM(models.CRMProviderMock, nil, s.now())); err != nil {
		return fmt.Errorf("failed to connect mock crm: %w", err)
	}

	s.logger.Info("mock crm connected", zap.String("user_id", userID))

	return nil
}

// AuthorizeURL returns the HubSpot consent URL for the user. The user id is
// carried as the OAuth state and read back by CompleteOAuth.
func (s *Service) AuthorizeURL(ctx context.Context, userID, email string) (string, error) {
	if _, err := s.authorize(ctx, userID, email); err != nil {
		return "", err
	}

	if !s.oauth.Configured() {
		return "", hubspot.ErrNotConfigured
	}

	return s.oauth.AuthCodeURL(userID), nil
}

// Disconnect clears every CRM field of the profile. Calling it on an already
// disconnected profile is a no-op write.
func (s *Service) Disconnect(ctx context.Context, userID string) error {
	if err := s.profiles.SetCRM(ctx, userID, models.DisconnectedCRM()); err != nil {
		return err
	}

	s.logger.Info("crm disconnected", zap.String("user_id", userID))

	return nil
}

// CompleteOAuth exchanges the authorization code and stores the encrypted
// tokens on the profile named by state.
//
// state is trusted as the user id. It is not signed, so anyone who can get a
// victim to follow a crafted callback can bind their own HubSpot account.
func (s *Service) CompleteOAuth(ctx context.Context, code, state string) error {
	if code == "" || state == "" {
		return ErrMissingOAuthParams
	}

	if !s.oauth.Configured() {
		return hubspot.ErrNotConfigured
	}

	tok, err := s.oauth.Exchange(ctx, code)
	if err != nil {
		return err
	}

	access, err := s.cipher.Encrypt(tok.AccessToken)
	if err != nil {
		return fmt.Errorf("failed to encrypt access token: %w", err)
	}

	refresh, err := s.cipher.Encrypt(tok.RefreshToken)
	if err != nil {
		return fmt.Errorf("failed to encrypt refresh token: %w", err)
	}

	tokens := &models.CRMTokens{AccessToken: access, RefreshToken: refresh}
	if !tok.Expiry.IsZero() {
		exp := tok.Expiry
		tokens.ExpiresAt = &exp
	}

	crm := models.ConnectedCRM(models.CRMProviderHubSpot, tokens, s.now())
	if err := s.profiles.SetCRM(ctx, state, crm); err != nil {
		return fmt.Errorf("failed to store hubspot connection: %w", err)
	}

	s.logger.Info("hubspot connected", zap.String("user_id", state))

	return nil
}

// Sync applies one sync action to the user's CRM records and stamps the
// profile's last sync time.
func (s *Service) Sync(ctx context.Context, userID, email string, req models.SyncRequest) (models.SyncResult, error) {
	profile, err := s.authorize(ctx, userID, email)
	if err != nil {
		return models.SyncResult{}, err
	}

	if err := s.validate.Struct(req); err != nil {
		return models.SyncResult{}, models.ErrMissingAction
	}

	if !profile.CRM.Connected {
		return models.SyncResult{}, models.ErrCRMNotConnected
	}

	var result models.SyncResult

	switch req.Action {
	case models.SyncActionInvoiceUpsert:
		result, err = s.upsertInvoice(ctx, userID, req.Payload)
	case models.SyncActionReminderLog:
		result, err = s.logReminder(ctx, userID, req.Payload)
	case models.SyncActionInvoicePaid:
		result, err = s.markPaid(ctx, userID, req.Payload)
	case models.SyncActionFullSync:
		result = models.SyncResult{Message: "Full sync completed"}
	default:
		return models.SyncResult{}, models.ErrInvalidAction
	}

	if err != nil {
		return models.SyncResult{}, err
	}

	if err := s.profiles.TouchCRMSync(ctx, userID, s.now()); err != nil {
		return models.SyncResult{}, fmt.Errorf("failed to update last sync time: %w", err)
	}

	s.logger.Info("crm sync completed",
		zap.String("user_id", userID),
		zap.String("action", string(req.Action)),
		zap.String("deal_id", result.DealID))

	return result, nil
}

func (s *Service) upsertInvoice(ctx context.Context, userID string, p models.SyncPayload) (models.SyncResult, error) {
	if p.Invoice == nil || p.Invoice.ID == "" {
		return models.SyncResult{}, models.ErrMissingInvoiceID
	}

	contact, err := s.upsertContact(ctx, userID, p.Client)
	if err != nil {
		return models.SyncResult{}, err
	}

	dealID, err := s.upsertDeal(ctx, userID, contact, p.Invoice)
	if err != nil {
		return models.SyncResult{}, err
	}

	return models.SyncResult{ContactID: contact.ID, DealID: dealID}, nil
}

func (s *Service) logReminder(ctx context.Context, userID string, p models.SyncPayload) (models.SyncResult, error) {
	result, err := s.upsertInvoice(ctx, userID, p)
	if err != nil {
		return models.SyncResult{}, err
	}

	var reminder models.ReminderPayload
	if p.Reminder != nil {
		reminder = *p.Reminder
	}

	now := s.now()

	_, err = s.records.AppendActivity(ctx, userID, models.Activity{
		ContactEmail: result.ContactID,
		DealID:       result.DealID,
		Type:         activityType,
		Note:         reminder.Note,
		Channel:      reminder.Channel,
		Timestamp:    now,
		CreatedAt:    now,
	})
	if err != nil {
		return models.SyncResult{}, fmt.Errorf("failed to log reminder: %w", err)
	}

	return result, nil
}

// markPaid upserts the deal then closes it. The two writes are not atomic.
func (s *Service) markPaid(ctx context.Context, userID string, p models.SyncPayload) (models.SyncResult, error) {
	result, err := s.upsertInvoice(ctx, userID, p)
	if err != nil {
		return models.SyncResult{}, err
	}

	if err := s.records.CloseDeal(ctx, userID, result.DealID, s.now()); err != nil {
		return models.SyncResult{}, fmt.Errorf("failed to close deal: %w", err)
	}

	return result, nil
}

func (s *Service) upsertContact(ctx context.Context, userID string, client *models.ClientPayload) (models.Contact, error) {
	var c models.ClientPayload
	if client != nil {
		c = *client
	}

	id := c.Email
	if id == "" {
		id = generateContactID(s.now())
	}

	email := c.Email
	if email == "" {
		email = "no-email-" + id + "@placeholder.local"
	}

	now := s.now()
	contact := models.Contact{
		ID:        id,
		Email:     email,
		FirstName: c.FirstName,
		LastName:  c.LastName,
		Phone:     c.Phone,
		Source:    recordSource,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.records.UpsertContact(ctx, userID, contact); err != nil {
		return models.Contact{}, fmt.Errorf("failed to upsert contact: %w", err)
	}

	return contact, nil
}

// upsertDeal stores the invoice as a deal linked to the contact. The contact
// reference is the contact's key, which is its email when one was given.
func (s *Service) upsertDeal(ctx context.Context, userID string, contact models.Contact, inv *models.InvoicePayload) (string, error) {
	status := models.DealStatusOpen
	if inv.Status == "paid" {
		status = models.DealStatusClosedWon
	}

	now := s.now()
	deal := models.Deal{
		InvoiceID:     string(inv.ID),
		InvoiceNumber: invoiceNumber(inv),
		Amount:        dealAmount(inv.Amount),
		DueDate:       inv.DueDate,
		Description:   inv.Description,
		ContactEmail:  contact.ID,
		Status:        status,
		Source:        recordSource,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := s.records.UpsertDeal(ctx, userID, deal); err != nil {
		return "", fmt.Errorf("failed to upsert deal: %w", err)
	}

	return string(inv.ID), nil
}

// dealAmount keeps numbers and strings as sent. Anything else, and empty
// values, become zero.
func dealAmount(v any) any {
	switch a := v.(type) {
	case float64:
		return a
	case string:
		if a != "" {
			return a
		}
	}

	return float64(0)
}

func invoiceNumber(inv *models.InvoicePayload) string {
	if inv.Number != "" {
		return string(inv.Number)
	}

	id := string(inv.ID)
	if id == "" {
		return "UNKNOWN"
	}

	if len(id) > 6 {
		id = id[len(id)-6:]
	}

	return strings.ToUpper(id)
}

func generateContactID(now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:9]

	return fmt.Sprintf("contact-%d-%s", now.UnixMilli(), suffix)
}
