package web

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/gosom/invoice-reminder/models"
	"github.com/gosom/invoice-reminder/web/auth"
	"github.com/gosom/invoice-reminder/web/handlers"
	"github.com/gosom/invoice-reminder/web/middleware"
)

// FunctionsPrefix is the path every function route lives under.
const FunctionsPrefix = "/functions"

// NewRouter wires the function routes. Each POST route answers preflight
// requests before authentication runs.
func NewRouter(h *handlers.HandlerGroup, authn *auth.Middleware, logger *zap.Logger) http.Handler {
	router := mux.NewRouter()

	// allowed records the non-preflight method of every path for 405 responses
	allowed := map[string]string{"/healthz": http.MethodGet}
	router.MethodNotAllowedHandler = methodNotAllowed(allowed)

	router.HandleFunc("/healthz", h.Health.Healthz).Methods(http.MethodGet)

	fn := router.PathPrefix(FunctionsPrefix).Subrouter()

	post := func(path string, hf http.HandlerFunc) {
		allowed[FunctionsPrefix+path] = http.MethodPost
		fn.Handle(path, middleware.Chain(hf,
			middleware.CORS(http.MethodPost),
			authn.Authenticate,
		)).Methods(http.MethodPost, http.MethodOptions)
	}

	post("/cancel-subscription", h.Billing.CancelSubscription)
	post("/create-portal-link", h.Billing.CreatePortalLink)
	post("/crm-disconnect", h.Integration.Disconnect)
	post("/crm-mock-start", h.Integration.ConnectMock)
	post("/crm-hubspot-authorize", h.Integration.AuthorizeHubSpot)
	post("/crm-sync", h.Integration.Sync)

	// the OAuth redirect carries no bearer token
	allowed[FunctionsPrefix+"/crm-hubspot-callback"] = http.MethodGet
	fn.Handle("/crm-hubspot-callback", middleware.Chain(
		http.HandlerFunc(h.Integration.HubSpotCallback),
		middleware.CORS(http.MethodGet),
	)).Methods(http.MethodGet, http.MethodOptions)

	return middleware.Chain(router,
		middleware.RequestLogger(logger),
		middleware.Recover(logger),
	)
}

func methodNotAllowed(allowed map[string]string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method, ok := allowed[r.URL.Path]
		if !ok {
			method = http.MethodPost
		}

		middleware.SetCORSHeaders(w.Header(), method)
		w.Header().Set("Allow", method+", "+http.MethodOptions)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusMethodNotAllowed)
		_ = json.NewEncoder(w).Encode(models.APIError{Error: "Method not allowed"})
	})
}
