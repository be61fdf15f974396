// Package session maps opaque tokens to authenticated user identities.
// Tokens are 256-bit random values generated fresh per login -- never reused
// across sessions and never derived from the user id. Sessions are removed
// by explicit logout; a deployment may additionally set a fixed TTL, in
// which case expiry is enforced by the backing ephemeral store.
package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/codebyjuno/slotcal/internal/apperror"
	"github.com/codebyjuno/slotcal/internal/ephemeral"
)

// tokenBytes is the number of random bytes in a session token.
// 32 bytes = 256 bits of entropy, hex-encoded to 64 characters.
const tokenBytes = 32

// Session is the payload bound to a token.
type Session struct {
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Registry issues, resolves, and revokes session tokens.
type Registry struct {
	store ephemeral.Store[Session]
	ttl   time.Duration
}

// NewRegistry creates a registry over the given store. A zero ttl means
// sessions never expire (revoke-only policy).
func NewRegistry(store ephemeral.Store[Session], ttl time.Duration) *Registry {
	return &Registry{store: store, ttl: ttl}
}

// Issue mints a fresh token bound to userID.
func (r *Registry) Issue(ctx context.Context, userID string) (string, error) {
	token, err := generateToken()
	if err != nil {
		return "", apperror.NewInternal(fmt.Errorf("generating session token: %w", err))
	}

	sess := Session{UserID: userID, CreatedAt: time.Now().UTC()}
	if err := r.store.Put(ctx, token, sess, r.ttl); err != nil {
		return "", apperror.NewDependency(fmt.Errorf("storing session: %w", err))
	}
	return token, nil
}

// Lookup resolves a token to the user id it was issued for.
func (r *Registry) Lookup(ctx context.Context, token string) (string, error) {
	sess, ok, err := r.store.Get(ctx, token)
	if err != nil {
		return "", apperror.NewDependency(fmt.Errorf("reading session: %w", err))
	}
	if !ok {
		return "", apperror.NewUnauthorized("invalid session token")
	}
	return sess.UserID, nil
}

// Revoke removes a token. Revoking an unknown token is not an error --
// logout is idempotent.
func (r *Registry) Revoke(ctx context.Context, token string) error {
	if err := r.store.Delete(ctx, token); err != nil {
		return apperror.NewDependency(fmt.Errorf("deleting session: %w", err))
	}
	return nil
}

// generateToken creates a cryptographically random hex-encoded token.
func generateToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
