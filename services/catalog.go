package services

import (
	"context"
	"fmt"

	"property-ingest/models"
	"property-ingest/storage"
	"property-ingest/utils"
)

// FilterDeleteResult reports a delete-by-filter.
type FilterDeleteResult struct {
	DeletedCount   int `json:"deleted_count"`
	RemainingCount int `json:"remaining_count"`
}

// Catalog is the management surface over the stored corpus.
type Catalog struct {
	store    storage.Adapter
	images   *ImageDownloader
	enhancer Enhancer
	logger   *utils.Logger
}

// NewCatalog creates a Catalog. images and enhancer may be nil, which
// disables RepairImages and Reenhance respectively.
func NewCatalog(store storage.Adapter, images *ImageDownloader, enhancer Enhancer, logger *utils.Logger) *Catalog {
	return &Catalog{store: store, images: images, enhancer: enhancer, logger: logger}
}

// List returns the listings matching f, most recent first.
func (c *Catalog) List(ctx context.Context, f models.Filter) ([]*models.Listing, error) {
	all, err := c.store.ListRecords(ctx)
	if err != nil {
		return nil, err
	}
	if f.IsEmpty() {
		return all, nil
	}
	return FilterListings(all, f)
}

// Get returns one listing or storage.ErrNotFound.
func (c *Catalog) Get(ctx context.Context, id string) (*models.Listing, error) {
	all, err := c.store.ListRecords(ctx)
	if err != nil {
		return nil, err
	}
	for _, l := range all {
		if l.ID == id {
			return l, nil
		}
	}
	return nil, fmt.Errorf("catalog: get %q: %w", id, storage.ErrNotFound)
}

// Update replaces a stored listing wholesale.
func (c *Catalog) Update(ctx context.Context, l *models.Listing) error {
	return c.store.UpsertOne(ctx, l)
}

// Delete removes one listing. An unknown id is not an error.
func (c *Catalog) Delete(ctx context.Context, id string) error {
	return c.store.DeleteOne(ctx, id)
}

// DeleteMany removes listings by id.
func (c *Catalog) DeleteMany(ctx context.Context, ids []string) (models.DeleteResult, error) {
	res, err := c.store.DeleteMany(ctx, ids)
	if err != nil {
		return res, err
	}
	c.logger.Info("[catalog] Deleted %d listing(s), %d not found", res.DeletedCount, res.NotFoundCount)
	return res, nil
}

// DeleteByFilter removes every listing matching f. An empty filter is
// rejected rather than wiping the corpus.
func (c *Catalog) DeleteByFilter(ctx context.Context, f models.Filter) (FilterDeleteResult, error) {
	if f.IsEmpty() {
		return FilterDeleteResult{}, fmt.Errorf("%w: delete by filter needs at least one predicate", ErrValidation)
	}
	all, err := c.store.ListRecords(ctx)
	if err != nil {
		return FilterDeleteResult{}, err
	}
	matched, err := FilterListings(all, f)
	if err != nil {
		return FilterDeleteResult{}, err
	}
	if len(matched) == 0 {
		return FilterDeleteResult{RemainingCount: len(all)}, nil
	}

	drop := make(map[string]struct{}, len(matched))
	for _, l := range matched {
		drop[l.ID] = struct{}{}
	}
	kept := make([]*models.Listing, 0, len(all)-len(matched))
	for _, l := range all {
		if _, ok := drop[l.ID]; !ok {
			kept = append(kept, l)
		}
	}
	if err := c.store.ReplaceAll(ctx, kept); err != nil {
		return FilterDeleteResult{}, err
	}

	res := FilterDeleteResult{DeletedCount: len(matched), RemainingCount: len(kept)}
	c.logger.Info("[catalog] Deleted %d listing(s) by filter, %d remain", res.DeletedCount, res.RemainingCount)
	return res, nil
}

// Reenhance runs the enhancer over a listing's original text again and
// stores the result. Unlike ingestion, a failing enhancer is an error here.
func (c *Catalog) Reenhance(ctx context.Context, id string) (*models.Listing, error) {
	if c.enhancer == nil {
		return nil, fmt.Errorf("catalog: reenhance: no enhancer configured")
	}
	l, err := c.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	title, desc, err := c.enhancer.Enhance(ctx, l.OriginalTitle, l.OriginalDescription)
	if err != nil {
		return nil, fmt.Errorf("catalog: reenhance %q: %w", id, err)
	}
	l.EnhancedTitle, l.EnhancedDescription = title, desc
	if err := c.store.UpsertOne(ctx, l); err != nil {
		return nil, err
	}
	return l, nil
}

// RepairImages re-downloads the remote images of a listing. Local images are
// kept; remote ones that still fail are dropped.
func (c *Catalog) RepairImages(ctx context.Context, id string) (*models.Listing, *ImageResult, error) {
	if c.images == nil {
		return nil, nil, fmt.Errorf("catalog: repair images: no downloader configured")
	}
	l, err := c.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	var local, remote []string
	for _, ref := range l.Images {
		switch {
		case ref == models.PlaceholderImage:
		case IsLocalImage(ref):
			local = append(local, ref)
		default:
			remote = append(remote, ref)
		}
	}
	if len(remote) == 0 {
		return l, &ImageResult{References: l.Images}, nil
	}

	res := c.images.Download(ctx, l.ID, remote, OmitFailed)
	images := append([]string(nil), local...)
	for _, ref := range res.References {
		if ref != models.PlaceholderImage {
			images = append(images, ref)
		}
	}
	if len(images) == 0 {
		images = []string{models.PlaceholderImage}
	}
	l.Images = images
	l.PrimaryImage = images[0]

	if err := c.store.UpsertOne(ctx, l); err != nil {
		return nil, nil, err
	}
	return l, res, nil
}

// History returns the ingestion history, most recent first.
func (c *Catalog) History(ctx context.Context) ([]*models.HistoryEntry, error) {
	return c.store.ListHistory(ctx)
}

// ClearHistory drops all history entries.
func (c *Catalog) ClearHistory(ctx context.Context) error {
	return c.store.ClearHistory(ctx)
}

// Stats returns the size of each stored collection.
func (c *Catalog) Stats(ctx context.Context) (models.StorageStats, error) {
	return c.store.Stats(ctx)
}
