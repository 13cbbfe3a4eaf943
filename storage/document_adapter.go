package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"property-ingest/models"
	"property-ingest/utils"
)

// DocumentAdapter is the durable backend. Listings and history each live in
// one serialized document that is rewritten wholesale on every mutation.
type DocumentAdapter struct {
	store  DocumentStore
	logger *utils.Logger
	opts   options
}

var _ Adapter = (*DocumentAdapter)(nil)

// NewDocumentAdapter wraps a DocumentStore (file, Postgres or Mongo).
func NewDocumentAdapter(store DocumentStore, logger *utils.Logger, opts ...Option) *DocumentAdapter {
	return &DocumentAdapter{store: store, logger: logger, opts: buildOptions(opts)}
}

func (a *DocumentAdapter) loadRecords(ctx context.Context) ([]*models.Listing, error) {
	body, err := a.store.Load(ctx, recordsDocument)
	if err != nil {
		return nil, wrapErr("load records", err)
	}
	listings := make([]*models.Listing, 0)
	if len(body) == 0 {
		return listings, nil
	}
	if err := json.Unmarshal(body, &listings); err != nil {
		return nil, wrapErr("decode records", err)
	}
	return cloneListings(listings), nil
}

func (a *DocumentAdapter) saveRecords(ctx context.Context, listings []*models.Listing) error {
	if listings == nil {
		listings = []*models.Listing{}
	}
	body, err := json.MarshalIndent(listings, "", "  ")
	if err != nil {
		return wrapErr("encode records", err)
	}
	return wrapErr("save records", a.store.Save(ctx, recordsDocument, body))
}

func (a *DocumentAdapter) loadHistory(ctx context.Context) ([]*models.HistoryEntry, error) {
	body, err := a.store.Load(ctx, historyDocument)
	if err != nil {
		return nil, wrapErr("load history", err)
	}
	history := make([]*models.HistoryEntry, 0)
	if len(body) == 0 {
		return history, nil
	}
	if err := json.Unmarshal(body, &history); err != nil {
		return nil, wrapErr("decode history", err)
	}
	return cloneHistory(history), nil
}

func (a *DocumentAdapter) saveHistory(ctx context.Context, history []*models.HistoryEntry) error {
	if history == nil {
		history = []*models.HistoryEntry{}
	}
	body, err := json.MarshalIndent(history, "", "  ")
	if err != nil {
		return wrapErr("encode history", err)
	}
	return wrapErr("save history", a.store.Save(ctx, historyDocument, body))
}

func (a *DocumentAdapter) ListRecords(ctx context.Context) ([]*models.Listing, error) {
	return a.loadRecords(ctx)
}

func (a *DocumentAdapter) ReplaceAll(ctx context.Context, listings []*models.Listing) error {
	return a.saveRecords(ctx, cloneListings(listings))
}

func (a *DocumentAdapter) UpsertOne(ctx context.Context, listing *models.Listing) error {
	if listing == nil {
		return fmt.Errorf("storage: upsert: nil listing")
	}
	listings, err := a.loadRecords(ctx)
	if err != nil {
		return err
	}
	listings, err = upsertListing(listings, listing)
	if err != nil {
		return fmt.Errorf("storage: upsert %q: %w", listing.ID, err)
	}
	return a.saveRecords(ctx, listings)
}

func (a *DocumentAdapter) DeleteOne(ctx context.Context, id string) error {
	listings, err := a.loadRecords(ctx)
	if err != nil {
		return err
	}
	listings, found := removeListing(listings, id)
	if !found {
		a.logger.Warn("[storage] Delete of unknown listing %q ignored", id)
		return nil
	}
	return a.saveRecords(ctx, listings)
}

func (a *DocumentAdapter) DeleteMany(ctx context.Context, ids []string) (models.DeleteResult, error) {
	listings, err := a.loadRecords(ctx)
	if err != nil {
		return models.DeleteResult{}, err
	}
	kept, res := removeListings(listings, ids)
	if res.DeletedCount == 0 {
		return res, nil
	}
	if err := a.saveRecords(ctx, kept); err != nil {
		return models.DeleteResult{}, err
	}
	return res, nil
}

func (a *DocumentAdapter) ListHistory(ctx context.Context) ([]*models.HistoryEntry, error) {
	return a.loadHistory(ctx)
}

func (a *DocumentAdapter) AppendHistory(ctx context.Context, entry *models.HistoryEntry) (*models.HistoryEntry, error) {
	if entry == nil {
		return nil, fmt.Errorf("storage: append history: nil entry")
	}
	history, err := a.loadHistory(ctx)
	if err != nil {
		return nil, err
	}
	history, stamped := prependHistory(history, entry, a.opts)
	if err := a.saveHistory(ctx, history); err != nil {
		return nil, err
	}
	c := *stamped
	return &c, nil
}

func (a *DocumentAdapter) ClearHistory(ctx context.Context) error {
	return a.saveHistory(ctx, nil)
}

func (a *DocumentAdapter) Stats(ctx context.Context) (models.StorageStats, error) {
	listings, err := a.loadRecords(ctx)
	if err != nil {
		return models.StorageStats{}, err
	}
	history, err := a.loadHistory(ctx)
	if err != nil {
		return models.StorageStats{}, err
	}
	return models.StorageStats{RecordCount: len(listings), HistoryCount: len(history)}, nil
}

func (a *DocumentAdapter) Close() error {
	return a.store.Close()
}
