package draft

import (
	"context"
	"sync"
	"time"
)

// Store persists drafts keyed by conversation. Load returns nil, nil when the
// conversation has no draft.
type Store interface {
	Load(ctx context.Context, conversationID string) (*Draft, error)
	Save(ctx context.Context, d *Draft) error
	Clear(ctx context.Context, conversationID string) error
}

// MemoryStore keeps drafts in process memory. It backs tests and the remote
// store mode, where the server owns durable state.
type MemoryStore struct {
	mu     sync.RWMutex
	drafts map[string]*Draft
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{drafts: map[string]*Draft{}}
}

func (s *MemoryStore) Load(ctx context.Context, conversationID string) (*Draft, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.drafts[conversationID]
	if !ok {
		return nil, nil
	}
	copied := *d
	return &copied, nil
}

func (s *MemoryStore) Save(ctx context.Context, d *Draft) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *d
	if copied.UpdatedAt.IsZero() {
		copied.UpdatedAt = time.Now().UTC()
	}
	s.drafts[copied.ConversationID] = &copied
	return nil
}

func (s *MemoryStore) Clear(ctx context.Context, conversationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.drafts, conversationID)
	return nil
}
