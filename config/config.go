// Package config loads the process configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// DefaultEncryptionKey is used when ENCRYPTION_KEY is unset. Tokens encrypted
// with it are only as secret as this source file.
const DefaultEncryptionKey = "default-key-change-in-production"

const callbackPath = "/functions/crm-hubspot-callback"

var ErrParsingConfig = errors.New("failed to parse config")

type Config struct {
	StripeSecretKey string `env:"STRIPE_SECRET_KEY"`

	FirebaseProjectID   string `env:"FIREBASE_PROJECT_ID"`
	FirebaseClientEmail string `env:"FIREBASE_CLIENT_EMAIL"`
	FirebasePrivateKey  string `env:"FIREBASE_PRIVATE_KEY"`

	HubSpotClientID     string   `env:"HUBSPOT_CLIENT_ID"`
	HubSpotClientSecret string   `env:"HUBSPOT_CLIENT_SECRET"`
	HubSpotRedirectURI  string   `env:"HUBSPOT_REDIRECT_URI"`
	HubSpotScopes       []string `env:"HUBSPOT_SCOPES" envSeparator:" " envDefault:"crm.objects.contacts.write crm.objects.deals.write oauth"`

	AppBaseURL    string `env:"APP_BASE_URL"`
	SiteURL       string `env:"SITE_URL" envDefault:"https://your-domain.netlify.app"`
	EncryptionKey string `env:"ENCRYPTION_KEY" envDefault:"default-key-change-in-production"`
	AppID         string `env:"APP_ID" envDefault:"invoice-reminder"`

	// CRMBypassEmail gets CRM access without a Business plan. Debug aid.
	CRMBypassEmail string `env:"CRM_BYPASS_EMAIL"`

	AuthProvider   string `env:"AUTH_PROVIDER" envDefault:"firebase"`
	ClerkSecretKey string `env:"CLERK_SECRET_KEY"`
	StoreBackend   string `env:"STORE_BACKEND" envDefault:"firestore"`
	Mongo          MongoConfig

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`
}

// MongoConfig holds the settings of the mongo store backend.
type MongoConfig struct {
	ConnectionURL  string        `env:"MONGODB_URL"`
	Database       string        `env:"MONGODB_DATABASE" envDefault:"invoice-reminder"`
	ConnectTimeout time.Duration `env:"MONGODB_CONNECT_TIMEOUT" envDefault:"10s"`
	RetryAttempts  int           `env:"MONGODB_RETRY_ATTEMPTS" envDefault:"3"`
	RetryInterval  time.Duration `env:"MONGODB_RETRY_INTERVAL" envDefault:"2s"`
}

// Load reads .env when present, then the environment.
func Load() (Config, error) {
	// the .env file is optional
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, errors.Join(ErrParsingConfig, err)
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (c Config) validate() error {
	switch c.AuthProvider {
	case "firebase":
	case "clerk":
		if c.ClerkSecretKey == "" {
			return fmt.Errorf("%w: CLERK_SECRET_KEY is required for the clerk auth provider", ErrParsingConfig)
		}
	default:
		return fmt.Errorf("%w: unknown AUTH_PROVIDER %q", ErrParsingConfig, c.AuthProvider)
	}

	switch c.StoreBackend {
	case "firestore", "memory":
	case "mongo":
		if c.Mongo.ConnectionURL == "" {
			return fmt.Errorf("%w: MONGODB_URL is required for the mongo store", ErrParsingConfig)
		}
	default:
		return fmt.Errorf("%w: unknown STORE_BACKEND %q", ErrParsingConfig, c.StoreBackend)
	}

	return nil
}

// RedirectURI is the HubSpot OAuth callback URL.
func (c Config) RedirectURI() string {
	if c.HubSpotRedirectURI != "" {
		return c.HubSpotRedirectURI
	}

	return strings.TrimRight(c.AppBaseURL, "/") + callbackPath
}

// PortalReturnURL is where the Stripe billing portal sends users back to.
func (c Config) PortalReturnURL() string {
	return strings.TrimRight(c.SiteURL, "/") + "/settings/billing?portal=done"
}

// FirebasePrivateKeyPEM undoes the \n escaping hosting dashboards apply to
// multi-line values.
func (c Config) FirebasePrivateKeyPEM() string {
	return strings.ReplaceAll(c.FirebasePrivateKey, `\n`, "\n")
}

// UsesDefaultEncryptionKey reports whether ENCRYPTION_KEY was left unset.
func (c Config) UsesDefaultEncryptionKey() bool {
	return c.EncryptionKey == DefaultEncryptionKey
}
