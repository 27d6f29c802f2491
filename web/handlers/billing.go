package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/gosom/invoice-reminder/models"
	"github.com/gosom/invoice-reminder/web/auth"
)

// CancelSubscription handles POST /functions/cancel-subscription
func (h *BillingHandlers) CancelSubscription(w http.ResponseWriter, r *http.Request) {
	userID, err := auth.GetUserID(r.Context())
	if err != nil {
		renderError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	res, err := h.Deps.Subscriptions.CancelSubscription(r.Context(), userID)
	if err != nil {
		renderServiceError(w, r, h.Deps.Logger, err,
			errorCase{models.ErrNotFound, http.StatusNotFound, "User not found"},
			errorCase{models.ErrNoCustomerID, http.StatusBadRequest, "No Stripe customer ID found"},
			errorCase{models.ErrNoActiveSubscription, http.StatusBadRequest, "No active subscription found"},
		)

		return
	}

	h.Deps.Logger.Debug("subscription cancel handled", zap.String("user_id", userID))

	renderJSON(w, http.StatusOK, models.CancelSubscriptionResponse{
		Success:           true,
		Message:           "Subscription cancelled successfully",
		CancelAtPeriodEnd: res.CurrentPeriodEnd,
	})
}

// CreatePortalLink handles POST /functions/create-portal-link
func (h *BillingHandlers) CreatePortalLink(w http.ResponseWriter, r *http.Request) {
	userID, err := auth.GetUserID(r.Context())
	if err != nil {
		renderError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	portalURL, err := h.Deps.Subscriptions.CreateBillingPortalSession(r.Context(), userID)
	if err != nil {
		renderServiceError(w, r, h.Deps.Logger, err,
			errorCase{models.ErrNotFound, http.StatusNotFound, "User not found"},
			errorCase{models.ErrNoCustomerID, http.StatusBadRequest, "No Stripe customer ID found. Please upgrade to a paid plan first."},
		)

		return
	}

	renderJSON(w, http.StatusOK, models.PortalLinkResponse{URL: portalURL})
}
