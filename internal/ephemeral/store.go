// Package ephemeral implements the short-lived keyed record store backing
// captcha challenges, pending registrations, pending logins, and sessions.
//
// A record that has outlived its TTL is logically absent even if it is still
// physically present: every read path enforces expiry, not just the
// background sweep. Take is the one-shot primitive -- get-and-delete as a
// single indivisible operation, so under concurrent retries or double
// submits exactly one caller observes the payload.
package ephemeral

import (
	"context"
	"time"
)

// Store is a keyed store of short-lived records of type T.
//
// A ttl of zero means the record never expires and is removed only by an
// explicit Take or Delete (used by the session registry).
type Store[T any] interface {
	// Put stores payload under key, replacing any previous record.
	Put(ctx context.Context, key string, payload T, ttl time.Duration) error

	// Get returns the payload for key. The second return is false when the
	// record is absent or expired.
	Get(ctx context.Context, key string) (T, bool, error)

	// Take atomically reads and deletes the record. Concurrent Take calls
	// on one key are linearizable: exactly one caller observes the payload.
	Take(ctx context.Context, key string) (T, bool, error)

	// Delete removes the record if present. Deleting an absent key is not
	// an error.
	Delete(ctx context.Context, key string) error

	// Close releases any background resources (sweep goroutines).
	Close() error
}
