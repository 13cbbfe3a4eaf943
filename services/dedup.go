package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"property-ingest/models"
	"property-ingest/storage"
	"property-ingest/utils"
)

// ErrAllDuplicates is returned when every candidate of a non-empty batch
// already exists in the corpus.
var ErrAllDuplicates = errors.New("all candidates already exist in the corpus")

const titlePrefixLen = 50

// fingerprint kinds
const (
	fpSourceTitle = iota
	fpComposite
	fpEnhancedTitle
	fpOriginalTitle
	fpReference
	fpPermit
)

var (
	rawModeKinds = []int{fpComposite, fpEnhancedTitle, fpOriginalTitle, fpReference, fpPermit}
	urlModeKinds = []int{fpSourceTitle, fpComposite, fpReference, fpPermit}
)

// Deduplicator decides which candidates are new, by several independent
// fingerprints instead of a single key.
type Deduplicator struct {
	logger *utils.Logger
}

// NewDeduplicator creates a Deduplicator.
func NewDeduplicator(logger *utils.Logger) *Deduplicator {
	return &Deduplicator{logger: logger}
}

// fingerprint returns the key of the given kind for l, or "" when the
// fields it needs are absent.
func fingerprint(l *models.Listing, kind int) string {
	switch kind {
	case fpSourceTitle:
		if l.SourceURL == "" {
			return ""
		}
		return l.SourceURL + "::" + l.OriginalTitle
	case fpComposite:
		if l.Location == "" && l.Price == "" && l.Bedrooms == "" && l.Bathrooms == "" {
			return ""
		}
		return l.Location + "::" + l.Price + "::" + l.Bedrooms + "::" + l.Bathrooms
	case fpEnhancedTitle:
		if l.EnhancedTitle == "" {
			return ""
		}
		return "enhanced:" + titlePrefix(l.EnhancedTitle)
	case fpOriginalTitle:
		if l.OriginalTitle == "" {
			return ""
		}
		return "original:" + titlePrefix(l.OriginalTitle)
	case fpReference:
		if l.ReferenceID == "" {
			return ""
		}
		return "ref:" + l.ReferenceID
	case fpPermit:
		if l.PermitNumber == "" {
			return ""
		}
		return "permit:" + l.PermitNumber
	}
	return ""
}

func titlePrefix(s string) string {
	r := []rune(s)
	if len(r) > titlePrefixLen {
		r = r[:titlePrefixLen]
	}
	return strings.ToLower(string(r))
}

// Fingerprints returns every fingerprint of l that applies.
func Fingerprints(l *models.Listing) []string {
	out := make([]string, 0, 6)
	for kind := fpSourceTitle; kind <= fpPermit; kind++ {
		if fp := fingerprint(l, kind); fp != "" {
			out = append(out, fp)
		}
	}
	return out
}

func kindsFor(mode models.ScrapeMode) []int {
	if mode == models.ScrapeModeRaw {
		return rawModeKinds
	}
	return urlModeKinds
}

// Filter returns the candidates that match no existing listing, preserving
// their order. Accepted candidates join the fingerprint set, so a repeat
// within the same batch is dropped too.
func (d *Deduplicator) Filter(existing, candidates []*models.Listing) []*models.Listing {
	seen := make(map[string]struct{}, len(existing)*4)
	for _, l := range existing {
		for _, fp := range Fingerprints(l) {
			seen[fp] = struct{}{}
		}
	}

	accepted := make([]*models.Listing, 0, len(candidates))
	for _, c := range candidates {
		if hit := matchFingerprint(seen, c); hit != "" {
			d.logger.Info("[dedup] Skipping duplicate %q (matched %s)", c.DisplayTitle(), hit)
			continue
		}
		accepted = append(accepted, c)
		for _, fp := range Fingerprints(c) {
			seen[fp] = struct{}{}
		}
	}
	return accepted
}

func matchFingerprint(seen map[string]struct{}, c *models.Listing) string {
	for _, kind := range kindsFor(c.ScrapeMode) {
		fp := fingerprint(c, kind)
		if fp == "" {
			continue
		}
		if _, ok := seen[fp]; ok {
			return fp
		}
	}
	return ""
}

// Select filters candidates against the stored corpus. It returns the
// survivors along with the corpus they were checked against. An empty batch
// yields nothing; a non-empty batch with no survivors fails with
// ErrAllDuplicates.
func (d *Deduplicator) Select(ctx context.Context, store storage.Adapter, candidates []*models.Listing) (accepted, existing []*models.Listing, err error) {
	if len(candidates) == 0 {
		return nil, nil, nil
	}

	existing, err = store.ListRecords(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("dedup: list records: %w", err)
	}

	accepted = d.Filter(existing, candidates)
	if len(accepted) == 0 {
		return nil, existing, fmt.Errorf("dedup: %d candidate(s): %w", len(candidates), ErrAllDuplicates)
	}
	d.logger.Info("[dedup] Accepted %d of %d candidates", len(accepted), len(candidates))
	return accepted, existing, nil
}

// Persist writes accepted in front of existing.
func (d *Deduplicator) Persist(ctx context.Context, store storage.Adapter, accepted, existing []*models.Listing) error {
	if len(accepted) == 0 {
		return nil
	}
	next := make([]*models.Listing, 0, len(accepted)+len(existing))
	next = append(next, accepted...)
	next = append(next, existing...)
	if err := store.ReplaceAll(ctx, next); err != nil {
		return fmt.Errorf("dedup: persist: %w", err)
	}
	d.logger.Debug("[dedup] Corpus now %d listing(s)", len(next))
	return nil
}

// Commit runs Select then Persist.
func (d *Deduplicator) Commit(ctx context.Context, store storage.Adapter, candidates []*models.Listing) ([]*models.Listing, error) {
	accepted, existing, err := d.Select(ctx, store, candidates)
	if err != nil || len(accepted) == 0 {
		return nil, err
	}
	if err := d.Persist(ctx, store, accepted, existing); err != nil {
		return nil, err
	}
	return accepted, nil
}
