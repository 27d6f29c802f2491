package runner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	firebase "firebase.google.com/go/v4"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/gosom/invoice-reminder/config"
	"github.com/gosom/invoice-reminder/crm"
	"github.com/gosom/invoice-reminder/hubspot"
	"github.com/gosom/invoice-reminder/models"
	"github.com/gosom/invoice-reminder/pkg/encryption"
	"github.com/gosom/invoice-reminder/pkg/logging"
	"github.com/gosom/invoice-reminder/store/firestore"
	"github.com/gosom/invoice-reminder/store/memory"
	"github.com/gosom/invoice-reminder/store/mongo"
	"github.com/gosom/invoice-reminder/stripe"
	"github.com/gosom/invoice-reminder/subscription"
	"github.com/gosom/invoice-reminder/web"
	"github.com/gosom/invoice-reminder/web/auth"
	"github.com/gosom/invoice-reminder/web/handlers"
)

// App holds the collaborators shared by every request. It is built once at
// process start.
type App struct {
	Handler http.Handler
	Logger  *zap.Logger

	closers []func(context.Context) error
}

type repositories interface {
	models.ProfileRepository
	models.CRMRepository
}

// NewApp builds the logger, stores, identity verifier and external clients
// selected by cfg and wires them into the HTTP router.
func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, err
	}

	app := &App{Logger: logger}

	if cfg.UsesDefaultEncryptionKey() {
		logger.Warn("ENCRYPTION_KEY is not set, CRM tokens are encrypted with the default key")
	}

	cipher, err := encryption.New(cfg.EncryptionKey)
	if err != nil {
		return nil, err
	}

	var fb *firebase.App

	if cfg.AuthProvider == "firebase" || cfg.StoreBackend == "firestore" {
		fb, err = newFirebaseApp(ctx, cfg)
		if err != nil {
			return nil, err
		}
	}

	repos, err := app.newRepositories(ctx, cfg, fb)
	if err != nil {
		_ = app.Close(ctx)
		return nil, err
	}

	verifier, err := newVerifier(ctx, cfg, fb)
	if err != nil {
		_ = app.Close(ctx)
		return nil, err
	}

	oauth := hubspot.NewOAuth(cfg.HubSpotClientID, cfg.HubSpotClientSecret, cfg.RedirectURI(),
		hubspot.WithScopes(cfg.HubSpotScopes...))
	if !oauth.Configured() {
		logger.Warn("HubSpot credentials not configured, OAuth callback will fail")
	}

	group := handlers.NewHandlerGroup(handlers.Dependencies{
		Logger: logger,
		Subscriptions: subscription.NewService(
			stripe.NewClient(cfg.StripeSecretKey),
			repos,
			cfg.PortalReturnURL(),
			logger,
		),
		CRM: crm.NewService(crm.Config{
			Profiles:    repos,
			Records:     repos,
			OAuth:       oauth,
			Cipher:      cipher,
			Logger:      logger,
			BypassEmail: cfg.CRMBypassEmail,
		}),
	})

	app.Handler = web.NewRouter(group, auth.NewMiddleware(verifier, logger), logger)

	logger.Info("app initialized",
		zap.String("auth_provider", cfg.AuthProvider),
		zap.String("store_backend", cfg.StoreBackend),
		zap.String("app_id", cfg.AppID))

	return app, nil
}

// Close releases the store connections and flushes the logger.
func (a *App) Close(ctx context.Context) error {
	var errs []error

	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i](ctx))
	}

	_ = a.Logger.Sync()

	return errors.Join(errs...)
}

func newFirebaseApp(ctx context.Context, cfg *config.Config) (*firebase.App, error) {
	var opts []option.ClientOption

	// without explicit credentials the SDK falls back to application default credentials
	if cfg.FirebaseClientEmail != "" && cfg.FirebasePrivateKey != "" {
		creds, err := json.Marshal(map[string]string{
			"type":         "service_account",
			"project_id":   cfg.FirebaseProjectID,
			"client_email": cfg.FirebaseClientEmail,
			"private_key":  cfg.FirebasePrivateKeyPEM(),
			"token_uri":    "https://oauth2.googleapis.com/token",
		})
		if err != nil {
			return nil, err
		}

		opts = append(opts, option.WithCredentialsJSON(creds))
	}

	fb, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: cfg.FirebaseProjectID}, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize firebase: %w", err)
	}

	return fb, nil
}

func (a *App) newRepositories(ctx context.Context, cfg *config.Config, fb *firebase.App) (repositories, error) {
	switch cfg.StoreBackend {
	case "firestore":
		client, err := fb.Firestore(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to create firestore client: %w", err)
		}

		a.closers = append(a.closers, func(context.Context) error { return client.Close() })

		return firestore.New(client, cfg.AppID), nil
	case "mongo":
		client, err := mongo.Connect(ctx, mongo.Config{
			ConnectionURL:  cfg.Mongo.ConnectionURL,
			ConnectTimeout: cfg.Mongo.ConnectTimeout,
			RetryAttempts:  cfg.Mongo.RetryAttempts,
			RetryInterval:  cfg.Mongo.RetryInterval,
		})
		if err != nil {
			return nil, err
		}

		a.closers = append(a.closers, client.Disconnect)

		return mongo.New(client.Database(cfg.Mongo.Database)), nil
	case "memory":
		a.Logger.Warn("using the in-memory store, profiles are lost on restart")

		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}

func newVerifier(ctx context.Context, cfg *config.Config, fb *firebase.App) (auth.Verifier, error) {
	switch cfg.AuthProvider {
	case "firebase":
		client, err := fb.Auth(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to create firebase auth client: %w", err)
		}

		return auth.NewFirebaseVerifier(client), nil
	case "clerk":
		return auth.NewClerkVerifier(cfg.ClerkSecretKey)
	default:
		return nil, fmt.Errorf("unknown auth provider %q", cfg.AuthProvider)
	}
}
