package persistence

import (
	"context"
	"sync"

	"github.com/talgya/realm-market/internal/snapshot"
)

// MemoryStore keeps the last saved snapshot in its encoded form, so loads
// go through the same validation as the durable backends.
type MemoryStore struct {
	mu  sync.Mutex
	raw []byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Load(ctx context.Context) (*snapshot.Snapshot, error) {
	s.mu.Lock()
	raw := s.raw
	s.mu.Unlock()

	if raw == nil {
		return nil, snapshot.ErrNotFound
	}
	return decodeRaw(BackendMemory, raw)
}

func (s *MemoryStore) Save(ctx context.Context, snap *snapshot.Snapshot) error {
	raw, err := snapshot.Encode(snap)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.raw = raw
	s.mu.Unlock()
	return nil
}

// SetRaw replaces the stored bytes as-is.
func (s *MemoryStore) SetRaw(raw []byte) {
	s.mu.Lock()
	s.raw = append([]byte(nil), raw...)
	s.mu.Unlock()
}

func (s *MemoryStore) Close() error { return nil }
