package auth

import "errors"

// Authentication errors. Missing and invalid keys map to UNAUTHENTICATED
// (401) without confirming the key exists; revoked keys map to
// PERMISSION_DENIED (403).
var (
	ErrMissingKey       = errors.New("API key required in x-api-key header")
	ErrInvalidKeyFormat = errors.New("invalid API key format")
	ErrUnknownKey       = errors.New("unknown secret ID")
	ErrInvalidKey       = errors.New("invalid API key")
	ErrKeyRevoked       = errors.New("API key has been revoked")
	ErrNoSecrets        = errors.New("no HMAC secret configured (set SK_HMAC_SECRET)")
	ErrBackend          = errors.New("key store unavailable")
)
