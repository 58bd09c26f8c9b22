// Package sessionpg persists session records in PostgreSQL through a pgx
// pool, for deployments that prefer direct SQL over the GORM-backed store.
package sessionpg

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Dev-Aaron27/premium/internal/discord"
	"github.com/Dev-Aaron27/premium/internal/session"
)

// PostgresSessionStore persists session records in PostgreSQL.
type PostgresSessionStore struct {
	pool *pgxpool.Pool
}

// NewPostgresSessionStore constructs a Postgres store.
func NewPostgresSessionStore(pool *pgxpool.Pool) *PostgresSessionStore {
	return &PostgresSessionStore{pool: pool}
}

// Put upserts a session row keyed by session id.
func (store *PostgresSessionStore) Put(ctx context.Context, record session.Record) error {
	if record.SessionID == "" {
		return fmt.Errorf("session_store.put.pgx: %w", session.ErrEmptySessionID)
	}
	encoded, encodeErr := json.Marshal(record.Profile)
	if encodeErr != nil {
		return fmt.Errorf("session_store.put.pgx: %w", encodeErr)
	}
	_, execErr := store.pool.Exec(ctx, `
INSERT INTO sessions (session_id, profile_json, issued_at_unix, expires_unix)
VALUES ($1, $2, $3, $4)
ON CONFLICT (session_id) DO UPDATE
SET profile_json = EXCLUDED.profile_json,
    issued_at_unix = EXCLUDED.issued_at_unix,
    expires_unix = EXCLUDED.expires_unix
`, record.SessionID, string(encoded), record.IssuedAtUnix, record.ExpiresUnix)
	if execErr != nil {
		return fmt.Errorf("session_store.put.pgx: %w", execErr)
	}
	return nil
}

// Get loads a session row, enforcing expiry.
func (store *PostgresSessionStore) Get(ctx context.Context, sessionID string) (session.Record, error) {
	if sessionID == "" {
		return session.Record{}, fmt.Errorf("session_store.get.pgx: %w", session.ErrEmptySessionID)
	}
	var profileJSON string
	var issuedAtUnix, expiresUnix int64
	scanErr := store.pool.QueryRow(ctx, `
SELECT profile_json, issued_at_unix, expires_unix FROM sessions WHERE session_id = $1
`, sessionID).Scan(&profileJSON, &issuedAtUnix, &expiresUnix)
	if scanErr != nil {
		if errors.Is(scanErr, pgx.ErrNoRows) {
			return session.Record{}, fmt.Errorf("session_store.get.pgx: %w", session.ErrSessionNotFound)
		}
		return session.Record{}, fmt.Errorf("session_store.get.pgx: %w", scanErr)
	}
	if expiresUnix != 0 && time.Unix(expiresUnix, 0).Before(time.Now().UTC()) {
		return session.Record{}, fmt.Errorf("session_store.get.pgx: %w", session.ErrSessionExpired)
	}
	var profile discord.UserProfile
	if decodeErr := json.Unmarshal([]byte(profileJSON), &profile); decodeErr != nil {
		return session.Record{}, fmt.Errorf("session_store.get.pgx: %w", decodeErr)
	}
	return session.Record{
		SessionID:    sessionID,
		Profile:      profile,
		IssuedAtUnix: issuedAtUnix,
		ExpiresUnix:  expiresUnix,
	}, nil
}

// Delete removes a session row; deleting an absent row is not an error.
func (store *PostgresSessionStore) Delete(ctx context.Context, sessionID string) error {
	_, execErr := store.pool.Exec(ctx, `DELETE FROM sessions WHERE session_id = $1`, sessionID)
	if execErr != nil {
		return fmt.Errorf("session_store.delete.pgx: %w", execErr)
	}
	return nil
}
