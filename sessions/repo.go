package sessions

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a session does not exist or has expired.
var ErrNotFound = errors.New("session not found")

// Repo is the durable session store used by the bridges.
type Repo interface {
	// Upsert writes the session with the given time-to-live.
	Upsert(ctx context.Context, session *Session, ttl time.Duration) error
	// Get returns the session with the given ID, or ErrNotFound.
	Get(ctx context.Context, id string) (*Session, error)
	// Delete removes the session. Deleting a missing session is not an error.
	Delete(ctx context.Context, id string) error
}
