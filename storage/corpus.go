package storage

import (
	"time"

	"github.com/google/uuid"

	"property-ingest/models"
)

// The helpers below hold the mutation rules shared by every backend, so the
// backends differ only in where the resulting slices are kept.

// Option configures an adapter.
type Option func(*options)

type options struct {
	historyLimit int
	now          func() time.Time
	newID        func() string
}

func defaultOptions() options {
	return options{
		historyLimit: models.DefaultHistoryLimit,
		now:          func() time.Time { return time.Now().UTC() },
		newID:        uuid.NewString,
	}
}

// WithHistoryLimit sets how many history entries are retained.
func WithHistoryLimit(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.historyLimit = n
		}
	}
}

// WithClock overrides the timestamp source used for history entries.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithIDGenerator overrides how history entry ids are generated.
func WithIDGenerator(gen func() string) Option {
	return func(o *options) {
		if gen != nil {
			o.newID = gen
		}
	}
}

func buildOptions(opts []Option) options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func cloneListings(in []*models.Listing) []*models.Listing {
	out := make([]*models.Listing, 0, len(in))
	for _, l := range in {
		if l == nil {
			continue
		}
		out = append(out, l.Clone())
	}
	return out
}

func cloneHistory(in []*models.HistoryEntry) []*models.HistoryEntry {
	out := make([]*models.HistoryEntry, 0, len(in))
	for _, h := range in {
		if h == nil {
			continue
		}
		c := *h
		out = append(out, &c)
	}
	return out
}

// upsertListing replaces the listing with the same id in place.
func upsertListing(listings []*models.Listing, listing *models.Listing) ([]*models.Listing, error) {
	for i, l := range listings {
		if l.ID == listing.ID {
			listings[i] = listing.Clone()
			return listings, nil
		}
	}
	return listings, ErrNotFound
}

// removeListing drops the listing with id, reporting whether it existed.
func removeListing(listings []*models.Listing, id string) ([]*models.Listing, bool) {
	for i, l := range listings {
		if l.ID == id {
			return append(listings[:i:i], listings[i+1:]...), true
		}
	}
	return listings, false
}

// removeListings drops every listing whose id is in ids. Repeated ids count
// as not found after their first hit.
func removeListings(listings []*models.Listing, ids []string) ([]*models.Listing, models.DeleteResult) {
	present := make(map[string]bool, len(listings))
	for _, l := range listings {
		present[l.ID] = true
	}

	var res models.DeleteResult
	drop := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if present[id] {
			present[id] = false
			drop[id] = struct{}{}
			res.DeletedCount++
			continue
		}
		res.NotFoundCount++
	}

	if len(drop) == 0 {
		return listings, res
	}
	kept := make([]*models.Listing, 0, len(listings)-len(drop))
	for _, l := range listings {
		if _, ok := drop[l.ID]; ok {
			continue
		}
		kept = append(kept, l)
	}
	return kept, res
}

// prependHistory stamps entry with an id and timestamp, puts it first and
// evicts the oldest entries beyond limit.
func prependHistory(history []*models.HistoryEntry, entry *models.HistoryEntry, o options) ([]*models.HistoryEntry, *models.HistoryEntry) {
	stamped := &models.HistoryEntry{
		ID:            o.newID(),
		Kind:          entry.Kind,
		Details:       entry.Details,
		PropertyCount: entry.PropertyCount,
		Timestamp:     o.now(),
	}

	next := make([]*models.HistoryEntry, 0, len(history)+1)
	next = append(next, stamped)
	next = append(next, history...)
	if len(next) > o.historyLimit {
		next = next[:o.historyLimit]
	}
	return next, stamped
}
