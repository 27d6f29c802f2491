package web_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v81"
	"go.uber.org/zap"

	"github.com/gosom/invoice-reminder/crm"
	"github.com/gosom/invoice-reminder/hubspot"
	"github.com/gosom/invoice-reminder/models"
	"github.com/gosom/invoice-reminder/pkg/encryption"
	"github.com/gosom/invoice-reminder/store/memory"
	"github.com/gosom/invoice-reminder/subscription"
	"github.com/gosom/invoice-reminder/web"
	"github.com/gosom/invoice-reminder/web/auth"
	"github.com/gosom/invoice-reminder/web/handlers"
)

type tokenVerifier map[string]auth.Identity

func (v tokenVerifier) Verify(_ context.Context, token string) (auth.Identity, error) {
	id, ok := v[token]
	if !ok {
		return auth.Identity{}, auth.ErrInvalidToken
	}

	return id, nil
}

type countingStripe struct {
	calls int
	subs  []*stripe.Subscription
	err   error
}

func (s *countingStripe) ListActiveSubscriptions(context.Context, string, int64) ([]*stripe.Subscription, error) {
	s.calls++
	return s.subs, s.err
}

func (s *countingStripe) CancelSubscription(_ context.Context, id string) (*stripe.Subscription, error) {
	s.calls++
	for _, sub := range s.subs {
		if sub.ID == id {
			return sub, nil
		}
	}

	return nil, errors.New("no such subscription")
}

func (s *countingStripe) CreateBillingPortalSession(_ context.Context, customerID, _ string) (*stripe.BillingPortalSession, error) {
	s.calls++
	return &stripe.BillingPortalSession{URL: "https://billing.example.com/" + customerID}, nil
}

type env struct {
	handler http.Handler
	store   *memory.Store
	stripe  *countingStripe
}

func newEnv(t *testing.T, oauth crm.OAuthProvider) *env {
	t.Helper()

	store := memory.New()
	st := &countingStripe{}

	cipher, err := encryption.New("secret")
	require.NoError(t, err)

	if oauth == nil {
		oauth = hubspot.NewOAuth("", "", "")
	}

	logger := zap.NewNop()

	group := handlers.NewHandlerGroup(handlers.Dependencies{
		Logger:        logger,
		Subscriptions: subscription.NewService(st, store, "https://site.example.com/settings/billing?portal=done", logger),
		CRM: crm.NewService(crm.Config{
			Profiles: store,
			Records:  store,
			OAuth:    oauth,
			Cipher:   cipher,
			Logger:   logger,
		}),
	})

	verifier := tokenVerifier{"good": {UserID: "u1", Email: "u1@example.com"}}

	return &env{
		handler: web.NewRouter(group, auth.NewMiddleware(verifier, logger), logger),
		store:   store,
		stripe:  st,
	}
}

func (e *env) do(t *testing.T, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()

	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, http.NoBody)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}

	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)

	return rec
}

var postRoutes = []string{
	"/functions/cancel-subscription",
	"/functions/create-portal-link",
	"/functions/crm-disconnect",
	"/functions/crm-mock-start",
	"/functions/crm-hubspot-authorize",
	"/functions/crm-sync",
}

func TestRouter_Preflight(t *testing.T) {
	e := newEnv(t, nil)

	for _, path := range postRoutes {
		rec := e.do(t, http.MethodOptions, path, "", "")

		assert.Equal(t, http.StatusOK, rec.Code, path)
		assert.Empty(t, rec.Body.String(), path)
		assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, "Content-Type, Authorization", rec.Header().Get("Access-Control-Allow-Headers"))
		assert.Equal(t, "POST, OPTIONS", rec.Header().Get("Access-Control-Allow-Methods"))
	}
}

func TestRouter_MethodNotAllowed(t *testing.T) {
	e := newEnv(t, nil)

	rec := e.do(t, http.MethodGet, "/functions/cancel-subscription", "good", "")

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.JSONEq(t, `{"error":"Method not allowed"}`, rec.Body.String())
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "POST, OPTIONS", rec.Header().Get("Access-Control-Allow-Methods"))

	rec = e.do(t, http.MethodPost, "/functions/crm-hubspot-callback", "", "")

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, "GET, OPTIONS", rec.Header().Get("Access-Control-Allow-Methods"))
	assert.Equal(t, "GET, OPTIONS", rec.Header().Get("Allow"))

	rec = e.do(t, http.MethodDelete, "/healthz", "", "")

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, "GET, OPTIONS", rec.Header().Get("Access-Control-Allow-Methods"))
}

func TestRouter_AuthGate(t *testing.T) {
	e := newEnv(t, nil)
	e.store.PutProfile(models.Profile{UserID: "u1", StripeCustomerID: "cus_1", Plan: models.PlanBusiness})

	for _, path := range postRoutes {
		rec := e.do(t, http.MethodPost, path, "", "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code, path)
		assert.JSONEq(t, `{"error":"Unauthorized"}`, rec.Body.String())

		rec = e.do(t, http.MethodPost, path, "forged", "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code, path)
		assert.JSONEq(t, `{"error":"Invalid token"}`, rec.Body.String())
	}

	assert.Zero(t, e.stripe.calls)

	p, err := e.store.Get(context.Background(), "u1")
	require.NoError(t, err)
	assert.False(t, p.CRM.Connected)
}

func TestCancelSubscription(t *testing.T) {
	t.Run("user not found", func(t *testing.T) {
		e := newEnv(t, nil)

		rec := e.do(t, http.MethodPost, "/functions/cancel-subscription", "good", "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.JSONEq(t, `{"error":"User not found"}`, rec.Body.String())
	})

	t.Run("no customer id", func(t *testing.T) {
		e := newEnv(t, nil)
		e.store.PutProfile(models.Profile{UserID: "u1", Plan: models.PlanFree})

		rec := e.do(t, http.MethodPost, "/functions/cancel-subscription", "good", "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.JSONEq(t, `{"error":"No Stripe customer ID found"}`, rec.Body.String())
		assert.Zero(t, e.stripe.calls)
	})

	t.Run("no active subscription", func(t *testing.T) {
		e := newEnv(t, nil)
		e.store.PutProfile(models.Profile{UserID: "u1", StripeCustomerID: "cus_1"})

		rec := e.do(t, http.MethodPost, "/functions/cancel-subscription", "good", "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.JSONEq(t, `{"error":"No active subscription found"}`, rec.Body.String())
	})

	t.Run("upstream failure", func(t *testing.T) {
		e := newEnv(t, nil)
		e.store.PutProfile(models.Profile{UserID: "u1", StripeCustomerID: "cus_1"})
		e.stripe.err = errors.New("stripe is down")

		rec := e.do(t, http.MethodPost, "/functions/cancel-subscription", "good", "")
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.JSONEq(t, `{"error":"Internal server error","message":"stripe is down"}`, rec.Body.String())
	})

	t.Run("success", func(t *testing.T) {
		e := newEnv(t, nil)
		e.store.PutProfile(models.Profile{UserID: "u1", StripeCustomerID: "cus_1", Plan: models.PlanPro})
		e.stripe.subs = []*stripe.Subscription{{ID: "sub_1", CurrentPeriodEnd: 1735689600, CancelAtPeriodEnd: true}}

		rec := e.do(t, http.MethodPost, "/functions/cancel-subscription", "good", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t,
			`{"success":true,"message":"Subscription cancelled successfully","cancel_at_period_end":1735689600}`,
			rec.Body.String())

		p, err := e.store.Get(context.Background(), "u1")
		require.NoError(t, err)
		assert.True(t, p.CancelAtPeriodEnd)
		assert.Equal(t, int64(1735689600), p.CurrentPeriodEnd)
	})
}

func TestCreatePortalLink(t *testing.T) {
	e := newEnv(t, nil)
	e.store.PutProfile(models.Profile{UserID: "u1"})

	rec := e.do(t, http.MethodPost, "/functions/create-portal-link", "good", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"No Stripe customer ID found. Please upgrade to a paid plan first."}`, rec.Body.String())
	assert.Zero(t, e.stripe.calls)

	e.store.PutProfile(models.Profile{UserID: "u1", StripeCustomerID: "cus_1"})

	rec = e.do(t, http.MethodPost, "/functions/create-portal-link", "good", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"url":"https://billing.example.com/cus_1"}`, rec.Body.String())
}

func TestDisconnect(t *testing.T) {
	e := newEnv(t, nil)

	rec := e.do(t, http.MethodPost, "/functions/crm-disconnect", "good", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	e.store.PutProfile(models.Profile{
		UserID: "u1",
		Plan:   models.PlanBusiness,
		CRM:    models.ConnectedCRM(models.CRMProviderMock, nil, time.Now()),
	})

	for range 2 {
		rec = e.do(t, http.MethodPost, "/functions/crm-disconnect", "good", "")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"message":"CRM disconnected successfully"}`, rec.Body.String())

		p, err := e.store.Get(context.Background(), "u1")
		require.NoError(t, err)
		assert.Equal(t, models.DisconnectedCRM(), p.CRM)
	}
}

func TestConnectMock(t *testing.T) {
	e := newEnv(t, nil)

	rec := e.do(t, http.MethodPost, "/functions/crm-mock-start", "good", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.JSONEq(t, `{"error":"User profile not found"}`, rec.Body.String())

	e.store.PutProfile(models.Profile{UserID: "u1", Plan: models.PlanPro})

	rec = e.do(t, http.MethodPost, "/functions/crm-mock-start", "good", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.JSONEq(t, `{"error":"CRM integration requires Business plan"}`, rec.Body.String())

	e.store.PutProfile(models.Profile{UserID: "u1", Plan: models.PlanBusiness})

	rec = e.do(t, http.MethodPost, "/functions/crm-mock-start", "good", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"message":"Mock CRM connected successfully","connected":true}`, rec.Body.String())
}

func TestSync(t *testing.T) {
	e := newEnv(t, nil)
	e.store.PutProfile(models.Profile{UserID: "u1", Plan: models.PlanBusiness})

	rec := e.do(t, http.MethodPost, "/functions/crm-sync", "good", `{"action":"full_sync"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.JSONEq(t, `{"error":"CRM not connected"}`, rec.Body.String())

	rec = e.do(t, http.MethodPost, "/functions/crm-mock-start", "good", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = e.do(t, http.MethodPost, "/functions/crm-sync", "good", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"Action is required"}`, rec.Body.String())

	rec = e.do(t, http.MethodPost, "/functions/crm-sync", "good", `{"action":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	before, err := e.store.Get(context.Background(), "u1")
	require.NoError(t, err)

	rec = e.do(t, http.MethodPost, "/functions/crm-sync", "good", `{"action":"bogus"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"Invalid action"}`, rec.Body.String())

	after, err := e.store.Get(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, before.CRM.LastSyncedAt, after.CRM.LastSyncedAt)

	rec = e.do(t, http.MethodPost, "/functions/crm-sync", "good",
		`{"action":"reminder_log","payload":{"client":{"email":"a@b.c"},"invoice":{"id":"inv1"},"reminder":{"note":"x","channel":"email"}}}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var res models.SyncResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, "a@b.c", res.ContactID)
	assert.Equal(t, "inv1", res.DealID)
	assert.Len(t, e.store.Activities("u1"), 1)

	rec = e.do(t, http.MethodPost, "/functions/crm-sync", "good",
		`{"action":"invoice_paid","payload":{"client":{"email":"a@b.c"},"invoice":{"id":"inv1"}}}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.DealStatusClosedWon, e.store.Deals("u1")["inv1"].Status)

	rec = e.do(t, http.MethodPost, "/functions/crm-sync", "good", `{"action":"full_sync"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"message":"Full sync completed"}`, rec.Body.String())
}

func TestSync_LooselyTypedInvoice(t *testing.T) {
	e := newEnv(t, nil)
	e.store.PutProfile(models.Profile{UserID: "u1", Plan: models.PlanBusiness})

	rec := e.do(t, http.MethodPost, "/functions/crm-mock-start", "good", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = e.do(t, http.MethodPost, "/functions/crm-sync", "good",
		`{"action":"invoice_upsert","payload":{"client":{"email":"a@b.com"},"invoice":{"id":"inv1","number":1001,"amount":"250.00"}}}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	deal := e.store.Deals("u1")["inv1"]
	assert.Equal(t, "1001", deal.InvoiceNumber)
	assert.Equal(t, "250.00", deal.Amount)
	assert.Contains(t, e.store.Contacts("u1"), "a@b.com")

	rec = e.do(t, http.MethodPost, "/functions/crm-sync", "good",
		`{"action":"invoice_upsert","payload":{"invoice":{"id":42,"number":"INV-7","amount":99.5}}}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	deal = e.store.Deals("u1")["42"]
	assert.Equal(t, "INV-7", deal.InvoiceNumber)
	assert.Equal(t, 99.5, deal.Amount)

	rec = e.do(t, http.MethodPost, "/functions/crm-sync", "good",
		`{"action":"invoice_upsert","payload":{"invoice":{"id":"inv2","number":true}}}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHubSpotCallback(t *testing.T) {
	t.Run("missing code writes nothing", func(t *testing.T) {
		e := newEnv(t, nil)
		e.store.PutProfile(models.Profile{UserID: "u1", Plan: models.PlanBusiness})

		rec := e.do(t, http.MethodGet, "/functions/crm-hubspot-callback?state=u1", "", "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
		assert.Contains(t, rec.Body.String(), "CRM Connection Failed")
		assert.Contains(t, rec.Body.String(), "Missing authorization code or state parameter.")
		assert.Contains(t, rec.Body.String(), "window.close()")

		p, err := e.store.Get(context.Background(), "u1")
		require.NoError(t, err)
		assert.False(t, p.CRM.Connected)
	})

	t.Run("not configured", func(t *testing.T) {
		e := newEnv(t, nil)

		rec := e.do(t, http.MethodGet, "/functions/crm-hubspot-callback?code=c&state=u1", "", "")
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Contains(t, rec.Body.String(), "HubSpot credentials not configured.")
	})

	tokens := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		w.Header().Set("Content-Type", "application/json")

		if r.PostForm.Get("code") != "good-code" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"status":"BAD_AUTH_CODE"}`))

			return
		}

		_, _ = w.Write([]byte(`{"access_token":"at","refresh_token":"rt","expires_in":1800,"token_type":"bearer"}`))
	}))
	defer tokens.Close()

	oauth := hubspot.NewOAuth("id", "secret", "https://app.example.com/functions/crm-hubspot-callback",
		hubspot.WithTokenURL(tokens.URL))

	t.Run("exchange failure", func(t *testing.T) {
		e := newEnv(t, oauth)
		e.store.PutProfile(models.Profile{UserID: "u1"})

		rec := e.do(t, http.MethodGet, "/functions/crm-hubspot-callback?code=bad&state=u1", "", "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "Failed to exchange authorization code for tokens.")
	})

	t.Run("unknown state", func(t *testing.T) {
		e := newEnv(t, oauth)

		rec := e.do(t, http.MethodGet, "/functions/crm-hubspot-callback?code=good-code&state=nobody", "", "")
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Contains(t, rec.Body.String(), "An error occurred while connecting to HubSpot.")
	})

	t.Run("success", func(t *testing.T) {
		e := newEnv(t, oauth)
		e.store.PutProfile(models.Profile{UserID: "u1", Plan: models.PlanBusiness})

		rec := e.do(t, http.MethodGet, "/functions/crm-hubspot-callback?code=good-code&state=u1", "", "")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "CRM Connected Successfully!")

		p, err := e.store.Get(context.Background(), "u1")
		require.NoError(t, err)
		assert.True(t, p.CRM.Connected)
		assert.Equal(t, models.CRMProviderHubSpot, p.CRM.Provider)
		require.NotNil(t, p.CRM.Tokens)
	})
}

func TestAuthorizeHubSpot(t *testing.T) {
	e := newEnv(t, hubspot.NewOAuth("id", "secret", "https://app.example.com/cb"))
	e.store.PutProfile(models.Profile{UserID: "u1", Plan: models.PlanBusiness})

	rec := e.do(t, http.MethodPost, "/functions/crm-hubspot-authorize", "good", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body models.PortalLinkResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, strings.HasPrefix(body.URL, hubspot.AuthURL))
	assert.Contains(t, body.URL, "state=u1")
}

func TestHealthz(t *testing.T) {
	e := newEnv(t, nil)

	rec := e.do(t, http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}
