package draft

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"loreweave/internal/lore"
)

// Manager serializes draft updates per conversation. Concurrent turns in the
// same conversation go through a read-merge-write under one lock, so neither
// turn's fields are lost.
type Manager struct {
	store Store
	log   *zap.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewManager(store Store, log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{store: store, log: log, locks: map[string]*sync.Mutex{}}
}

func (m *Manager) lockFor(conversationID string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	lock, ok := m.locks[conversationID]
	if !ok {
		lock = &sync.Mutex{}
		m.locks[conversationID] = lock
	}
	return lock
}

// MergeAndSave merges the turn's package into the stored draft and persists
// the result, returning the merged package.
func (m *Manager) MergeAndSave(ctx context.Context, conversationID string, pkg *lore.ContextPackage) (*lore.ContextPackage, error) {
	lock := m.lockFor(conversationID)
	lock.Lock()
	defer lock.Unlock()

	existing, err := m.store.Load(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("loading draft for merge: %w", err)
	}

	var previous *lore.ContextPackage
	if existing != nil {
		previous = existing.Package
	}
	merged := Merge(previous, pkg)
	if merged == nil {
		return nil, nil
	}

	if err := m.store.Save(ctx, &Draft{
		ConversationID: conversationID,
		Package:        merged,
		UpdatedAt:      time.Now().UTC(),
	}); err != nil {
		return nil, fmt.Errorf("saving merged draft: %w", err)
	}

	m.log.Debug("draft merged",
		zap.String("conversation_id", conversationID),
		zap.String("entry_type", merged.EntryType),
		zap.Int("missing_required", len(merged.MissingRequired)))

	return merged, nil
}

// Load returns the current draft package, or nil when none exists.
func (m *Manager) Load(ctx context.Context, conversationID string) (*lore.ContextPackage, error) {
	d, err := m.store.Load(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("loading draft: %w", err)
	}
	if d == nil {
		return nil, nil
	}
	return d.Package, nil
}

// Clear drops the conversation's draft.
func (m *Manager) Clear(ctx context.Context, conversationID string) error {
	lock := m.lockFor(conversationID)
	lock.Lock()
	defer lock.Unlock()
	return m.store.Clear(ctx, conversationID)
}
