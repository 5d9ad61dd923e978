// Package token provides opaque capability tokens and their hashing.
//
// It is the single source of truth for how scanner session tokens and the organizer
// API token are generated, hashed for storage, and compared.
//
// Design goals:
// - Default dev mode: SHA-256(token) when no HMAC key is configured.
// - Production-enforced mode: HMAC-SHA256(token, key) when policy requires it.
// - Stable 64-char hex output for storage and constant-time comparison.
//
// Environment:
// - GG_TOKEN_HMAC_KEY: when set, enables HMAC mode.
package token
