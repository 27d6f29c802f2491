package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

// ContextKey is used to store user information in the request context
type ContextKey string

const (
	// IdentityKey is the context key for storing the verified identity
	IdentityKey ContextKey = "identity"
	// userSlotKey holds a *string that Authenticate fills with the user ID
	userSlotKey ContextKey = "user_slot"
	// AuthHeaderName is the name of the authentication header
	AuthHeaderName = "Authorization"
)

var (
	ErrMissingToken     = errors.New("missing bearer token")
	ErrInvalidToken     = errors.New("invalid token")
	ErrNotAuthenticated = errors.New("user not authenticated")
)

// Identity is what a verified token tells us about the caller.
type Identity struct {
	UserID string
	Email  string
}

// Verifier checks an ID token with the identity provider.
type Verifier interface {
	Verify(ctx context.Context, token string) (Identity, error)
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, error) {
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || scheme != "Bearer" {
		return "", ErrMissingToken
	}

	token = strings.TrimSpace(token)
	if token == "" {
		return "", ErrMissingToken
	}

	return token, nil
}

// Middleware verifies bearer tokens and puts the caller identity on the context.
type Middleware struct {
	verifier Verifier
	logger   *zap.Logger
}

func NewMiddleware(verifier Verifier, logger *zap.Logger) *Middleware {
	return &Middleware{verifier: verifier, logger: logger}
}

// Authenticate rejects the request with 401 before the wrapped handler runs
// unless the token verifies.
func (m *Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := BearerToken(r.Header.Get(AuthHeaderName))
		if err != nil {
			unauthorized(w, "Unauthorized")
			return
		}

		id, err := m.verifier.Verify(r.Context(), token)
		if err != nil {
			m.logger.Debug("token verification failed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Error(err))
			unauthorized(w, "Invalid token")

			return
		}

		if slot, ok := r.Context().Value(userSlotKey).(*string); ok {
			*slot = id.UserID
		}

		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
	})
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)

	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// WithIdentity returns a copy of ctx carrying id.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, IdentityKey, id)
}

// TrackUser returns a copy of ctx in which a successful Authenticate stores
// the user ID into dst. Outer middlewares use it to learn who made the request.
func TrackUser(ctx context.Context, dst *string) context.Context {
	return context.WithValue(ctx, userSlotKey, dst)
}

// IdentityFrom extracts the verified identity from the request context
func IdentityFrom(ctx context.Context) (Identity, error) {
	id, ok := ctx.Value(IdentityKey).(Identity)
	if !ok || id.UserID == "" {
		return Identity{}, ErrNotAuthenticated
	}

	return id, nil
}

// GetUserID extracts the user ID from the request context
func GetUserID(ctx context.Context) (string, error) {
	id, err := IdentityFrom(ctx)
	if err != nil {
		return "", err
	}

	return id.UserID, nil
}
