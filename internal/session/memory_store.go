package session

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryStore is an in-memory session store for dev runs and tests.
type MemoryStore struct {
	mutex   sync.Mutex
	records map[string]Record
	now     func() time.Time
}

// NewMemoryStore constructs an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]Record),
		now:     time.Now,
	}
}

// Put inserts or replaces a session record.
func (store *MemoryStore) Put(ctx context.Context, record Record) error {
	if record.SessionID == "" {
		return fmt.Errorf("session_store.put: %w", ErrEmptySessionID)
	}
	store.mutex.Lock()
	defer store.mutex.Unlock()
	store.purgeExpiredLocked()
	store.records[record.SessionID] = record
	return nil
}

// Get returns the record for a session id, enforcing expiry.
func (store *MemoryStore) Get(ctx context.Context, sessionID string) (Record, error) {
	if sessionID == "" {
		return Record{}, fmt.Errorf("session_store.get: %w", ErrEmptySessionID)
	}
	store.mutex.Lock()
	defer store.mutex.Unlock()
	record, ok := store.records[sessionID]
	if !ok {
		return Record{}, fmt.Errorf("session_store.get: %w", ErrSessionNotFound)
	}
	if record.ExpiresUnix != 0 && time.Unix(record.ExpiresUnix, 0).Before(store.now().UTC()) {
		delete(store.records, sessionID)
		return Record{}, fmt.Errorf("session_store.get: %w", ErrSessionExpired)
	}
	return record, nil
}

// Delete removes a session record; deleting an absent record is not an error.
func (store *MemoryStore) Delete(ctx context.Context, sessionID string) error {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	delete(store.records, sessionID)
	return nil
}

func (store *MemoryStore) purgeExpiredLocked() {
	if len(store.records) == 0 {
		return
	}
	now := store.now().UTC()
	for sessionID, record := range store.records {
		if record.ExpiresUnix != 0 && time.Unix(record.ExpiresUnix, 0).Before(now) {
			delete(store.records, sessionID)
		}
	}
}
