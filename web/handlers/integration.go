package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/gosom/invoice-reminder/crm"
	"github.com/gosom/invoice-reminder/hubspot"
	"github.com/gosom/invoice-reminder/models"
	"github.com/gosom/invoice-reminder/web/auth"
)

// planCases are the answers shared by every route gated on the Business plan.
var planCases = []errorCase{
	{models.ErrNotFound, http.StatusForbidden, "User profile not found"},
	{models.ErrPlanRequired, http.StatusForbidden, "CRM integration requires Business plan"},
}

// Disconnect handles POST /functions/crm-disconnect
func (h *IntegrationHandlers) Disconnect(w http.ResponseWriter, r *http.Request) {
	userID, err := auth.GetUserID(r.Context())
	if err != nil {
		renderError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	if err := h.Deps.CRM.Disconnect(r.Context(), userID); err != nil {
		renderServiceError(w, r, h.Deps.Logger, err,
			errorCase{models.ErrNotFound, http.StatusNotFound, "User profile not found"},
		)

		return
	}

	renderJSON(w, http.StatusOK, models.MessageResponse{Message: "CRM disconnected successfully"})
}

// ConnectMock handles POST /functions/crm-mock-start
func (h *IntegrationHandlers) ConnectMock(w http.ResponseWriter, r *http.Request) {
	id, err := auth.IdentityFrom(r.Context())
	if err != nil {
		renderError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	if err := h.Deps.CRM.ConnectMock(r.Context(), id.UserID, id.Email); err != nil {
		renderServiceError(w, r, h.Deps.Logger, err, planCases...)
		return
	}

	renderJSON(w, http.StatusOK, models.ConnectResponse{
		Message:   "Mock CRM connected successfully",
		Connected: true,
	})
}

// AuthorizeHubSpot handles POST /functions/crm-hubspot-authorize and returns
// the consent URL the browser should open.
func (h *IntegrationHandlers) AuthorizeHubSpot(w http.ResponseWriter, r *http.Request) {
	id, err := auth.IdentityFrom(r.Context())
	if err != nil {
		renderError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	u, err := h.Deps.CRM.AuthorizeURL(r.Context(), id.UserID, id.Email)
	if err != nil {
		cases := append([]errorCase{
			{hubspot.ErrNotConfigured, http.StatusInternalServerError, "HubSpot credentials not configured"},
		}, planCases...)
		renderServiceError(w, r, h.Deps.Logger, err, cases...)

		return
	}

	renderJSON(w, http.StatusOK, models.PortalLinkResponse{URL: u})
}

// HubSpotCallback handles GET /functions/crm-hubspot-callback. It answers
// with an HTML page that closes the OAuth popup.
func (h *IntegrationHandlers) HubSpotCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	err := h.Deps.CRM.CompleteOAuth(r.Context(), q.Get("code"), q.Get("state"))

	switch {
	case err == nil:
		renderPage(w, http.StatusOK, pageData{
			Heading:      "CRM Connected Successfully!",
			Message:      "Your HubSpot account has been connected. You can now close this window.",
			CloseAfterMS: 2000,
		})
	case errors.Is(err, crm.ErrMissingOAuthParams):
		renderFailurePage(w, http.StatusBadRequest, "Missing authorization code or state parameter.")
	case errors.Is(err, hubspot.ErrNotConfigured):
		h.Deps.Logger.Error("hubspot credentials not configured")
		renderFailurePage(w, http.StatusInternalServerError, "HubSpot credentials not configured.")
	case errors.Is(err, hubspot.ErrTokenExchange):
		h.Deps.Logger.Warn("hubspot token exchange failed", zap.Error(err))
		renderFailurePage(w, http.StatusBadRequest, "Failed to exchange authorization code for tokens.")
	default:
		h.Deps.Logger.Error("hubspot callback failed", zap.Error(err))
		renderFailurePage(w, http.StatusInternalServerError, "An error occurred while connecting to HubSpot.")
	}
}

// Sync handles POST /functions/crm-sync
func (h *IntegrationHandlers) Sync(w http.ResponseWriter, r *http.Request) {
	id, err := auth.IdentityFrom(r.Context())
	if err != nil {
		renderError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var req models.SyncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		renderError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	res, err := h.Deps.CRM.Sync(r.Context(), id.UserID, id.Email, req)
	if err != nil {
		cases := append([]errorCase{
			{models.ErrMissingAction, http.StatusBadRequest, "Action is required"},
			{models.ErrCRMNotConnected, http.StatusForbidden, "CRM not connected"},
			{models.ErrInvalidAction, http.StatusBadRequest, "Invalid action"},
			{models.ErrMissingInvoiceID, http.StatusBadRequest, "Invoice id is required"},
		}, planCases...)
		renderServiceError(w, r, h.Deps.Logger, err, cases...)

		return
	}

	renderJSON(w, http.StatusOK, res)
}
