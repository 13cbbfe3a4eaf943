package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"property-ingest/models"
	"property-ingest/utils"
)

// MemoryAdapter is the ephemeral backend: the corpus lives in process memory
// and is mirrored to a client-local DocumentStore after every mutation.
// Mirror failures are logged, never returned; memory stays authoritative.
type MemoryAdapter struct {
	mu       sync.RWMutex
	listings []*models.Listing
	history  []*models.HistoryEntry

	mirror DocumentStore
	logger *utils.Logger
	opts   options
}

var _ Adapter = (*MemoryAdapter)(nil)

// NewMemoryAdapter creates the ephemeral backend, restoring any state the
// mirror holds. mirror may be nil.
func NewMemoryAdapter(ctx context.Context, mirror DocumentStore, logger *utils.Logger, opts ...Option) *MemoryAdapter {
	m := &MemoryAdapter{
		listings: make([]*models.Listing, 0),
		history:  make([]*models.HistoryEntry, 0),
		mirror:   mirror,
		logger:   logger,
		opts:     buildOptions(opts),
	}
	m.restore(ctx)
	return m
}

func (m *MemoryAdapter) restore(ctx context.Context) {
	if m.mirror == nil {
		return
	}
	if body, err := m.mirror.Load(ctx, recordsDocument); err != nil {
		m.logger.Warn("[storage] Mirror restore of records failed: %v", err)
	} else if len(body) > 0 {
		var listings []*models.Listing
		if err := json.Unmarshal(body, &listings); err != nil {
			m.logger.Warn("[storage] Mirror records unreadable, starting empty: %v", err)
		} else {
			m.listings = cloneListings(listings)
		}
	}
	if body, err := m.mirror.Load(ctx, historyDocument); err != nil {
		m.logger.Warn("[storage] Mirror restore of history failed: %v", err)
	} else if len(body) > 0 {
		var history []*models.HistoryEntry
		if err := json.Unmarshal(body, &history); err != nil {
			m.logger.Warn("[storage] Mirror history unreadable, starting empty: %v", err)
		} else {
			m.history = cloneHistory(history)
		}
	}
	m.logger.Debug("[storage] Restored %d listings and %d history entries from mirror",
		len(m.listings), len(m.history))
}

// mirrorLocked writes one document to the mirror. Callers hold m.mu.
func (m *MemoryAdapter) mirrorLocked(ctx context.Context, name string, v any) {
	if m.mirror == nil {
		return
	}
	body, err := json.Marshal(v)
	if err != nil {
		m.logger.Warn("[storage] Mirror encode of %s failed: %v", name, err)
		return
	}
	if err := m.mirror.Save(ctx, name, body); err != nil {
		m.logger.Warn("[storage] Mirror write of %s failed: %v", name, err)
	}
}

func (m *MemoryAdapter) ListRecords(_ context.Context) ([]*models.Listing, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return cloneListings(m.listings), nil
}

func (m *MemoryAdapter) ReplaceAll(ctx context.Context, listings []*models.Listing) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listings = cloneListings(listings)
	m.mirrorLocked(ctx, recordsDocument, m.listings)
	return nil
}

func (m *MemoryAdapter) UpsertOne(ctx context.Context, listing *models.Listing) error {
	if listing == nil {
		return fmt.Errorf("storage: upsert: nil listing")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	next, err := upsertListing(cloneListings(m.listings), listing)
	if err != nil {
		return fmt.Errorf("storage: upsert %q: %w", listing.ID, err)
	}
	m.listings = next
	m.mirrorLocked(ctx, recordsDocument, m.listings)
	return nil
}

func (m *MemoryAdapter) DeleteOne(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	next, found := removeListing(m.listings, id)
	if !found {
		m.logger.Warn("[storage] Delete of unknown listing %q ignored", id)
		return nil
	}
	m.listings = next
	m.mirrorLocked(ctx, recordsDocument, m.listings)
	return nil
}

func (m *MemoryAdapter) DeleteMany(ctx context.Context, ids []string) (models.DeleteResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept, res := removeListings(m.listings, ids)
	if res.DeletedCount > 0 {
		m.listings = kept
		m.mirrorLocked(ctx, recordsDocument, m.listings)
	}
	return res, nil
}

func (m *MemoryAdapter) ListHistory(_ context.Context) ([]*models.HistoryEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return cloneHistory(m.history), nil
}

func (m *MemoryAdapter) AppendHistory(ctx context.Context, entry *models.HistoryEntry) (*models.HistoryEntry, error) {
	if entry == nil {
		return nil, fmt.Errorf("storage: append history: nil entry")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	next, stamped := prependHistory(m.history, entry, m.opts)
	m.history = next
	m.mirrorLocked(ctx, historyDocument, m.history)
	c := *stamped
	return &c, nil
}

func (m *MemoryAdapter) ClearHistory(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.history = make([]*models.HistoryEntry, 0)
	m.mirrorLocked(ctx, historyDocument, m.history)
	return nil
}

func (m *MemoryAdapter) Stats(_ context.Context) (models.StorageStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return models.StorageStats{RecordCount: len(m.listings), HistoryCount: len(m.history)}, nil
}

func (m *MemoryAdapter) Close() error {
	if m.mirror == nil {
		return nil
	}
	return m.mirror.Close()
}
