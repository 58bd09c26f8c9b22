// Package session maps cookie-carried session identifiers to the user
// profile captured during the OAuth2 callback. The cookie itself is a signed
// JWT wrapping the opaque session id; the profile lives server-side in a
// Store.
package session

import (
	"context"
	"errors"

	"github.com/Dev-Aaron27/premium/internal/discord"
)

var (
	// ErrSessionNotFound indicates no record matched the session id.
	ErrSessionNotFound = errors.New("session_store.not_found")
	// ErrSessionExpired indicates the record outlived its TTL.
	ErrSessionExpired = errors.New("session_store.expired")
	// ErrEmptySessionID indicates a lookup with an empty identifier.
	ErrEmptySessionID = errors.New("session_store.empty_id")
)

// Record associates a session id with the profile fetched at login time.
type Record struct {
	SessionID    string
	Profile      discord.UserProfile
	IssuedAtUnix int64
	ExpiresUnix  int64
}

// Store persists session records. Implementations own expiry; a Get after
// the record's TTL returns ErrSessionExpired.
type Store interface {
	Put(ctx context.Context, record Record) error
	Get(ctx context.Context, sessionID string) (Record, error)
	Delete(ctx context.Context, sessionID string) error
}
