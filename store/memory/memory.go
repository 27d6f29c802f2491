// Package memory keeps profiles and CRM records in process memory.
// It backs local runs and tests.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gosom/invoice-reminder/models"
)

var (
	_ models.ProfileRepository = (*Store)(nil)
	_ models.CRMRepository     = (*Store)(nil)
)

// DealRecord is a stored deal plus its close timestamp.
type DealRecord struct {
	models.Deal
	ClosedAt *time.Time
}

type namespace struct {
	contacts   map[string]models.Contact
	deals      map[string]DealRecord
	activities map[string]models.Activity
}

type Store struct {
	mu       sync.RWMutex
	profiles map[string]models.Profile
	users    map[string]*namespace
}

func New() *Store {
	return &Store{
		profiles: make(map[string]models.Profile),
		users:    make(map[string]*namespace),
	}
}

// PutProfile creates or replaces a profile. Profiles are provisioned outside
// the functions, so this is only used for seeding.
func (s *Store) PutProfile(p models.Profile) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.profiles[p.UserID] = p
}

func (s *Store) Get(_ context.Context, userID string) (models.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.profiles[userID]
	if !ok {
		return models.Profile{}, models.ErrNotFound
	}

	return p, nil
}

func (s *Store) UpdateSubscription(_ context.Context, userID string, cancelAtPeriodEnd bool, currentPeriodEnd int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.profiles[userID]
	if !ok {
		return models.ErrNotFound
	}

	p.CancelAtPeriodEnd = cancelAtPeriodEnd
	p.CurrentPeriodEnd = currentPeriodEnd
	s.profiles[userID] = p

	return nil
}

func (s *Store) SetCRM(_ context.Context, userID string, crm models.CRM) error {
	if err := crm.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.profiles[userID]
	if !ok {
		return models.ErrNotFound
	}

	p.CRM = crm
	s.profiles[userID] = p

	return nil
}

func (s *Store) TouchCRMSync(_ context.Context, userID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.profiles[userID]
	if !ok {
		return models.ErrNotFound
	}

	if !p.CRM.Connected {
		return models.ErrCRMNotConnected
	}

	p.CRM.LastSyncedAt = &at
	s.profiles[userID] = p

	return nil
}

func (s *Store) ns(userID string) *namespace {
	n, ok := s.users[userID]
	if !ok {
		n = &namespace{
			contacts:   make(map[string]models.Contact),
			deals:      make(map[string]DealRecord),
			activities: make(map[string]models.Activity),
		}
		s.users[userID] = n
	}

	return n
}

func (s *Store) UpsertContact(_ context.Context, userID string, contact models.Contact) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ns(userID).contacts[contact.ID] = contact

	return nil
}

func (s *Store) UpsertDeal(_ context.Context, userID string, deal models.Deal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := s.ns(userID)
	rec := n.deals[deal.InvoiceID]
	rec.Deal = deal
	n.deals[deal.InvoiceID] = rec

	return nil
}

func (s *Store) CloseDeal(_ context.Context, userID, dealID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := s.ns(userID)

	rec, ok := n.deals[dealID]
	if !ok {
		return models.ErrNotFound
	}

	rec.Status = models.DealStatusClosedWon
	rec.UpdatedAt = at
	rec.ClosedAt = &at
	n.deals[dealID] = rec

	return nil
}

func (s *Store) AppendActivity(_ context.Context, userID string, activity models.Activity) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := uuid.New().String()
	s.ns(userID).activities[id] = activity

	return id, nil
}

// Contacts returns a copy of the user's contacts keyed by id.
func (s *Store) Contacts(userID string) map[string]models.Contact {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]models.Contact)
	if n, ok := s.users[userID]; ok {
		for k, v := range n.contacts {
			out[k] = v
		}
	}

	return out
}

// Deals returns a copy of the user's deals keyed by invoice id.
func (s *Store) Deals(userID string) map[string]DealRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]DealRecord)
	if n, ok := s.users[userID]; ok {
		for k, v := range n.deals {
			out[k] = v
		}
	}

	return out
}

// Activities returns a copy of the user's activity log.
func (s *Store) Activities(userID string) []models.Activity {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n, ok := s.users[userID]
	if !ok {
		return nil
	}

	out := make([]models.Activity, 0, len(n.activities))
	for _, v := range n.activities {
		out = append(out, v)
	}

	return out
}
