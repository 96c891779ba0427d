// Package auth provides HMAC-based API key authentication for the gRPC and
// HTTP transports.
package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// HeaderName carries the API key in HTTP headers and gRPC metadata.
const HeaderName = "x-api-key"

// contextKey is a typed key for context values to avoid collisions.
type contextKey string

const apiKeyIDKey = contextKey("api_key_id")

// Queries defines database operations needed for authentication.
// Implemented by *db.Queries.
type Queries interface {
	Get(ctx context.Context, name string, dest any, args ...any) error
	Exec(ctx context.Context, name string, args ...any) (sql.Result, error)
}

// Authenticator validates API keys using HMAC-SHA256 signatures.
// Holds in-memory secret map for O(1) lookup and queries for key verification.
type Authenticator struct {
	secrets map[string][]byte
	queries Queries
	now     func() time.Time
}

// NewAuthenticator creates an authenticator with HMAC secrets and query interface.
func NewAuthenticator(secrets map[string][]byte, queries Queries) *Authenticator {
	return &Authenticator{
		secrets: secrets,
		queries: queries,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Enabled reports whether any secret is configured. Without secrets the
// transports run unauthenticated.
func (a *Authenticator) Enabled() bool {
	return a != nil && len(a.secrets) > 0
}

// Authenticate validates an API key and returns its api_key_id.
func (a *Authenticator) Authenticate(ctx context.Context, apiKey string) (string, error) {
	secretID, _, err := ParseAPIKey(apiKey)
	if err != nil {
		return "", err
	}

	secret, ok := a.secrets[secretID]
	if !ok {
		return "", ErrUnknownKey
	}

	var result struct {
		APIKeyID   string       `db:"api_key_id"`
		Name       string       `db:"name"`
		RevokedAt  sql.NullTime `db:"revoked_at"`
		LastUsedAt sql.NullTime `db:"last_used_at"`
	}

	// key_hash is unique, so at most one row matches.
	err = a.queries.Get(ctx, "get-api-key-by-hash", &result, HashAPIKey(secret, apiKey))
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrInvalidKey
	}
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrBackend, err)
	}

	if result.RevokedAt.Valid {
		return "", ErrKeyRevoked
	}

	// 1-minute throttle keeps active clients from writing on every request.
	if shouldUpdateLastUsed(result.LastUsedAt, a.now()) {
		_, _ = a.queries.Exec(ctx, "update-last-used", a.now(), result.APIKeyID)
	}

	return result.APIKeyID, nil
}

func shouldUpdateLastUsed(lastUsed sql.NullTime, now time.Time) bool {
	if !lastUsed.Valid {
		return true
	}
	return now.Sub(lastUsed.Time) > time.Minute
}

// CreateKey mints and stores a new API key under the lowest configured
// secret_id. The plaintext key is returned once and never stored.
func (a *Authenticator) CreateKey(ctx context.Context, name string) (id, key string, err error) {
	if !a.Enabled() {
		return "", "", ErrNoSecrets
	}

	ids := make([]string, 0, len(a.secrets))
	for sid := range a.secrets {
		ids = append(ids, sid)
	}
	sort.Strings(ids)
	secretID := ids[0]

	key, err = GenerateAPIKey(secretID)
	if err != nil {
		return "", "", err
	}

	id = uuid.Must(uuid.NewV7()).String()
	if strings.TrimSpace(name) == "" {
		name = "default"
	}

	_, err = a.queries.Exec(ctx, "create-api-key", id, name, secretID, HashAPIKey(a.secrets[secretID], key), a.now())
	if err != nil {
		return "", "", fmt.Errorf("store api key: %w", err)
	}
	return id, key, nil
}

// Revoke marks a key revoked. Returns ErrInvalidKey when no active key has id.
func (a *Authenticator) Revoke(ctx context.Context, id string) error {
	res, err := a.queries.Exec(ctx, "revoke-api-key", a.now(), id)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBackend, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrInvalidKey
	}
	return nil
}

// StatusError maps an authentication error onto a gRPC status.
func StatusError(err error) error {
	switch {
	case errors.Is(err, ErrKeyRevoked):
		return status.Error(codes.PermissionDenied, err.Error())
	case errors.Is(err, ErrBackend):
		return status.Error(codes.Unavailable, err.Error())
	default:
		return status.Error(codes.Unauthenticated, err.Error())
	}
}

// UnaryInterceptor returns gRPC interceptor that authenticates requests.
// Methods under skipPrefixes (health checks) pass through.
func (a *Authenticator) UnaryInterceptor(skipPrefixes ...string) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		for _, p := range skipPrefixes {
			if strings.HasPrefix(info.FullMethod, p) {
				return handler(ctx, req)
			}
		}

		md, ok := metadata.FromIncomingContext(ctx)
		if !ok {
			return nil, status.Error(codes.Unauthenticated, "missing metadata")
		}

		apiKeys := md.Get(HeaderName)
		if len(apiKeys) == 0 {
			return nil, status.Error(codes.Unauthenticated, ErrMissingKey.Error())
		}

		keyID, err := a.Authenticate(ctx, apiKeys[0])
		if err != nil {
			return nil, StatusError(err)
		}

		return handler(WithAPIKeyID(ctx, keyID), req)
	}
}

// WithAPIKeyID stores the authenticated key id in ctx.
func WithAPIKeyID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, apiKeyIDKey, id)
}

// APIKeyIDFromContext extracts the authenticated key id.
// Returns empty string if not found.
func APIKeyIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(apiKeyIDKey).(string); ok {
		return id
	}
	return ""
}
