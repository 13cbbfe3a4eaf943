package storage

import (
	"context"
	"errors"
	"fmt"

	"property-ingest/models"
)

// ErrNotFound is returned by UpsertOne when no listing has the given id.
var ErrNotFound = errors.New("storage: listing not found")

// AdapterError wraps an I/O failure from a storage backend.
type AdapterError struct {
	Op  string
	Err error
}

func (e *AdapterError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *AdapterError) Unwrap() error { return e.Err }

func wrapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &AdapterError{Op: op, Err: err}
}

// Adapter is the interface every storage backend must satisfy. Backends
// must behave identically for identical call sequences.
//
// Listings are kept most-recent-first; ReplaceAll stores the given order as-is.
// A single writer per process is assumed.
type Adapter interface {
	ListRecords(ctx context.Context) ([]*models.Listing, error)
	ReplaceAll(ctx context.Context, listings []*models.Listing) error
	UpsertOne(ctx context.Context, listing *models.Listing) error
	DeleteOne(ctx context.Context, id string) error
	DeleteMany(ctx context.Context, ids []string) (models.DeleteResult, error)

	ListHistory(ctx context.Context) ([]*models.HistoryEntry, error)
	AppendHistory(ctx context.Context, entry *models.HistoryEntry) (*models.HistoryEntry, error)
	ClearHistory(ctx context.Context) error

	Stats(ctx context.Context) (models.StorageStats, error)
	Close() error
}

// DocumentStore persists whole named documents. Load returns (nil, nil)
// when the document does not exist yet.
type DocumentStore interface {
	Load(ctx context.Context, name string) ([]byte, error)
	Save(ctx context.Context, name string, body []byte) error
	Close() error
}

// Document names, one per entity type.
const (
	recordsDocument = "records"
	historyDocument = "history"
)
