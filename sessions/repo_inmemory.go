package sessions

import (
	"context"
	"sync"
	"time"
)

var _ Repo = (*MemoryRepo)(nil)

type memoryEntry struct {
	session Session
	expires time.Time
}

// MemoryRepo is an in-process session store. Suitable for single-instance
// deployments and tests; a multi-instance deployment needs the Redis store.
type MemoryRepo struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	nowTime func() time.Time
}

// NewMemoryRepo creates an in-memory session store.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		entries: make(map[string]memoryEntry),
		nowTime: time.Now,
	}
}

func (r *MemoryRepo) Upsert(_ context.Context, session *Session, ttl time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[session.ID] = memoryEntry{
		session: *session,
		expires: r.nowTime().Add(ttl),
	}
	return nil
}

func (r *MemoryRepo) Get(_ context.Context, id string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.entries[id]
	if !ok || r.nowTime().After(entry.expires) {
		return nil, ErrNotFound
	}
	session := entry.session
	return &session, nil
}

func (r *MemoryRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, id)
	return nil
}
