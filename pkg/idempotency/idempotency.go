package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"
)

// Status of a key in the store.
type Status string

const (
	StatusNone      Status = ""
	StatusInFlight  Status = "in_flight"
	StatusCompleted Status = "completed"
)

var ErrNotInFlight = errors.New("idempotency: key not in flight")

// Store guards side-effecting operations against duplicate execution.
// Begin is the single point of mutual exclusion: it must mark the key
// in-flight and report prior existence in one atomic operation.
type Store interface {
	// Begin atomically marks the key in-flight with the given TTL. It returns
	// false when the key is already in-flight or completed.
	Begin(ctx context.Context, key string, ttl time.Duration) (bool, error)
	// Complete records the result for the key, replacing the in-flight mark.
	Complete(ctx context.Context, key string, result string, ttl time.Duration) error
	// Release drops an in-flight mark so a failed operation can be retried.
	Release(ctx context.Context, key string) error
	// Get reports the key status and, when completed, the stored result.
	Get(ctx context.Context, key string) (Status, string, error)
}

// Key derives the deterministic idempotency key for an operation from its
// identifying parts.
func Key(parts ...string) string {
	h := sha256.New()
	for i, p := range parts {
		if i > 0 {
			h.Write([]byte{'|'})
		}
		h.Write([]byte(p))
	}
	return hex.EncodeToString(h.Sum(nil))
}
