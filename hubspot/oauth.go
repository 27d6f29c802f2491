// Package hubspot wraps the HubSpot OAuth endpoints used to connect a user's CRM.
package hubspot

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/oauth2"
)

const (
	AuthURL  = "https://app.hubspot.com/oauth/authorize"
	TokenURL = "https://api.hubapi.com/oauth/v1/token"
)

var (
	ErrNotConfigured = errors.New("hubspot credentials not configured")
	ErrTokenExchange = errors.New("failed to exchange authorization code for tokens")
)

// OAuth performs the authorization-code exchange against HubSpot.
type OAuth struct {
	cfg *oauth2.Config
}

type Option func(*oauth2.Config)

// WithTokenURL overrides the token endpoint. Used by tests.
func WithTokenURL(u string) Option {
	return func(c *oauth2.Config) {
		c.Endpoint.TokenURL = u
	}
}

func WithScopes(scopes ...string) Option {
	return func(c *oauth2.Config) {
		c.Scopes = scopes
	}
}

// NewOAuth builds the OAuth client. HubSpot expects the client credentials in
// the form body rather than in a basic auth header.
func NewOAuth(clientID, clientSecret, redirectURL string, opts ...Option) *OAuth {
	cfg := &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURL,
		Endpoint: oauth2.Endpoint{
			AuthURL:   AuthURL,
			TokenURL:  TokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}

	for _, o := range opts {
		o(cfg)
	}

	return &OAuth{cfg: cfg}
}

// Configured reports whether client id and secret are present.
func (o *OAuth) Configured() bool {
	return o.cfg.ClientID != "" && o.cfg.ClientSecret != ""
}

// AuthCodeURL returns the consent screen URL carrying state.
func (o *OAuth) AuthCodeURL(state string) string {
	return o.cfg.AuthCodeURL(state)
}

// Exchange trades an authorization code for access and refresh tokens.
func (o *OAuth) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	if !o.Configured() {
		return nil, ErrNotConfigured
	}

	tok, err := o.cfg.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTokenExchange, err)
	}

	return tok, nil
}
