package services

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"property-ingest/models"
	"property-ingest/scraper"
	"property-ingest/storage"
	"property-ingest/utils"
)

// ErrValidation marks empty or malformed input to an ingestion entry point.
var ErrValidation = errors.New("invalid input")

// Extractor turns raw page content into candidate listings. It never fails:
// on any internal error it returns an empty slice.
type Extractor interface {
	Extract(ctx context.Context, content, sourceURL string) []*models.RawListing
}

// Enhancer rewrites a title and description. Callers keep the originals
// when it returns an error.
type Enhancer interface {
	Enhance(ctx context.Context, title, description string) (string, string, error)
}

// State is a step of one ingestion cycle.
type State string

const (
	StateFetching            State = "fetching"
	StateExtracting          State = "extracting"
	StatePerRecordProcessing State = "processing"
	StateDeduplicating       State = "deduplicating"
	StatePersisting          State = "persisting"
	StateDone                State = "done"
	StateFailed              State = "failed"
)

// IngestResult is the outcome of a single or raw ingestion.
type IngestResult struct {
	Listings []*models.Listing
	History  *models.HistoryEntry
}

// BulkResult aggregates a bulk ingestion. Failures never abort the batch.
type BulkResult struct {
	Succeeded  int
	Duplicates int
	Failed     int
	Skipped    int
	Listings   []*models.Listing
	Errors     map[string]error
	History    *models.HistoryEntry
}

// Ingestor drives fetch, extraction, per-record processing, deduplication
// and persistence.
type Ingestor struct {
	store     storage.Adapter
	fetcher   scraper.Fetcher
	extractor Extractor
	enhancer  Enhancer
	images    *ImageDownloader
	dedup     *Deduplicator
	cleaner   *Cleaner
	logger    *utils.Logger

	workers  int
	urlPause time.Duration
	now      func() time.Time
	newID    func() string
}

// IngestorConfig carries the collaborators of an Ingestor. Enhancer may be nil.
type IngestorConfig struct {
	Store     storage.Adapter
	Fetcher   scraper.Fetcher
	Extractor Extractor
	Enhancer  Enhancer
	Images    *ImageDownloader

	// Workers bounds how many records are processed at once.
	Workers int
	// URLPause is the delay between URLs of a bulk ingestion.
	URLPause time.Duration
}

// NewIngestor wires an Ingestor.
func NewIngestor(c IngestorConfig, logger *utils.Logger) *Ingestor {
	workers := c.Workers
	if workers < 1 {
		workers = 1
	}
	return &Ingestor{
		store:     c.Store,
		fetcher:   c.Fetcher,
		extractor: c.Extractor,
		enhancer:  c.Enhancer,
		images:    c.Images,
		dedup:     NewDeduplicator(logger),
		cleaner:   NewCleaner(logger),
		logger:    logger,
		workers:   workers,
		urlPause:  c.URLPause,
		now:       func() time.Time { return time.Now().UTC() },
		newID:     uuid.NewString,
	}
}

func (in *Ingestor) state(cycle string, s State, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	if s == StateFailed {
		in.logger.Warn("[ingest] %s: %s: %s", cycle, s, msg)
		return
	}
	in.logger.Debug("[ingest] %s: %s: %s", cycle, s, msg)
}

// validatePageURL checks that s is an absolute http(s) URL.
func validatePageURL(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", fmt.Errorf("%w: empty url", ErrValidation)
	}
	u, err := url.Parse(s)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return "", fmt.Errorf("%w: malformed url %q", ErrValidation, s)
	}
	return u.String(), nil
}

// IngestURL fetches one page, extracts its listings and stores the new ones.
func (in *Ingestor) IngestURL(ctx context.Context, pageURL string) (*IngestResult, error) {
	pageURL, err := validatePageURL(pageURL)
	if err != nil {
		return nil, err
	}
	accepted, err := in.ingestPage(ctx, pageURL)
	if err != nil {
		return nil, in.fail(ctx, models.HistorySingle, pageURL, err)
	}
	return in.finish(ctx, models.HistorySingle, pageURL, accepted)
}

// IngestRaw ingests pasted page content. sourceURL is optional and only used
// to resolve relative image URLs and as provenance.
func (in *Ingestor) IngestRaw(ctx context.Context, content, sourceURL string) (*IngestResult, error) {
	if strings.TrimSpace(content) == "" {
		return nil, fmt.Errorf("%w: empty content", ErrValidation)
	}
	if strings.TrimSpace(sourceURL) != "" {
		var err error
		if sourceURL, err = validatePageURL(sourceURL); err != nil {
			return nil, err
		}
	}

	cycle := "raw"
	if sourceURL != "" {
		cycle = "raw " + sourceURL
	}
	details := fmt.Sprintf("raw content (%d chars)", len(content))
	if sourceURL != "" {
		details += " from " + sourceURL
	}

	accepted, err := in.process(ctx, cycle, content, sourceURL, models.ScrapeModeRaw)
	if err != nil {
		return nil, in.fail(ctx, models.HistoryRaw, details, err)
	}
	return in.finish(ctx, models.HistoryRaw, details, accepted)
}

// IngestBulk ingests each URL in turn. One URL's cycle completes before the
// next begins; a failing URL is logged and counted, never fatal.
func (in *Ingestor) IngestBulk(ctx context.Context, urls []string) (*BulkResult, error) {
	targets := make([]string, 0, len(urls))
	for _, u := range urls {
		if strings.TrimSpace(u) != "" {
			targets = append(targets, strings.TrimSpace(u))
		}
	}
	if len(targets) == 0 {
		return nil, fmt.Errorf("%w: no urls given", ErrValidation)
	}

	res := &BulkResult{Errors: make(map[string]error)}
	visited := utils.NewURLSet()
	pacer := utils.NewWorkerPool(1, int(in.urlPause/time.Millisecond))
	attempted := 0

	for i, raw := range targets {
		pageURL, err := validatePageURL(raw)
		if err != nil {
			res.Failed++
			res.Errors[raw] = err
			in.logger.Warn("[ingest] bulk %d/%d: %v", i+1, len(targets), err)
			continue
		}
		if !visited.Add(pageURL) {
			res.Skipped++
			in.logger.Info("[ingest] bulk %d/%d: %s already processed in this batch", i+1, len(targets), pageURL)
			continue
		}

		if ctx.Err() != nil {
			in.logger.Warn("[ingest] bulk cancelled after %d URL(s)", attempted)
			break
		}
		attempted++

		in.logger.Info("[ingest] bulk %d/%d: %s", i+1, len(targets), pageURL)
		var accepted []*models.Listing
		pacer.Submit(func() {
			accepted, err = in.ingestPage(ctx, pageURL)
		})
		pacer.Wait()
		switch {
		case errors.Is(err, ErrAllDuplicates):
			res.Duplicates++
		case err != nil:
			res.Failed++
			res.Errors[pageURL] = err
			in.logger.Error("[ingest] bulk %s failed: %v", pageURL, err)
		default:
			res.Succeeded++
			res.Listings = append(res.Listings, accepted...)
		}
	}

	details := fmt.Sprintf("%d URL(s): %d succeeded, %d duplicate, %d failed, %d skipped",
		len(targets), res.Succeeded, res.Duplicates, res.Failed, res.Skipped)
	entry, err := in.store.AppendHistory(ctx, &models.HistoryEntry{
		Kind:          models.HistoryBulk,
		Details:       details,
		PropertyCount: len(res.Listings),
	})
	if err != nil {
		return res, fmt.Errorf("ingest: record history: %w", err)
	}
	res.History = entry
	in.logger.Info("[ingest] Bulk done: %s, %d distinct URL(s), %d new listing(s)", details, visited.Size(), len(res.Listings))
	return res, nil
}

func (in *Ingestor) ingestPage(ctx context.Context, pageURL string) ([]*models.Listing, error) {
	in.state(pageURL, StateFetching, "GET")
	content, err := in.fetcher.Fetch(ctx, pageURL)
	if err != nil {
		in.state(pageURL, StateFailed, "%v", err)
		return nil, err
	}
	return in.process(ctx, pageURL, content, pageURL, models.ScrapeModeURL)
}

// process runs the cycle from extraction to persistence for one piece of
// content.
func (in *Ingestor) process(ctx context.Context, cycle, content, sourceURL string, mode models.ScrapeMode) ([]*models.Listing, error) {
	in.state(cycle, StateExtracting, "%d bytes", len(content))
	candidates := in.cleaner.Clean(in.extractor.Extract(ctx, content, sourceURL))
	if len(candidates) == 0 {
		in.logger.Info("[ingest] %s: nothing extracted", cycle)
		in.state(cycle, StateDone, "no candidates")
		return nil, nil
	}

	in.state(cycle, StatePerRecordProcessing, "%d candidate(s)", len(candidates))
	listings := in.processRecords(ctx, candidates, sourceURL, mode)

	in.state(cycle, StateDeduplicating, "%d listing(s)", len(listings))
	accepted, existing, err := in.dedup.Select(ctx, in.store, listings)
	if err != nil {
		in.state(cycle, StateFailed, "%v", err)
		return nil, err
	}

	in.state(cycle, StatePersisting, "%d new listing(s)", len(accepted))
	if err := in.dedup.Persist(ctx, in.store, accepted, existing); err != nil {
		in.state(cycle, StateFailed, "%v", err)
		return nil, err
	}

	in.state(cycle, StateDone, "%d stored", len(accepted))
	return accepted, nil
}

// processRecords builds a listing per candidate. Image acquisition and text
// enhancement run concurrently for each record and across records; results
// keep the candidate order.
func (in *Ingestor) processRecords(ctx context.Context, candidates []*models.RawListing, sourceURL string, mode models.ScrapeMode) []*models.Listing {
	out := make([]*models.Listing, len(candidates))
	pool := utils.NewWorkerPool(in.workers, 0)
	for i, c := range candidates {
		i, c := i, c
		pool.Submit(func() {
			out[i] = in.processRecord(ctx, c, sourceURL, mode)
		})
	}
	pool.Wait()
	return out
}

func (in *Ingestor) processRecord(ctx context.Context, c *models.RawListing, pageURL string, mode models.ScrapeMode) *models.Listing {
	l := in.newListing(c, pageURL, mode)
	base := l.SourceURL
	if pageURL != "" {
		base = pageURL
	}
	imageURLs := ResolveImageURLs(base, c.Images)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		if in.images == nil {
			l.Images = imageURLs
			return
		}
		l.Images = in.images.Download(ctx, l.ID, imageURLs, FallbackToSource).References
	}()
	go func() {
		defer wg.Done()
		l.EnhancedTitle, l.EnhancedDescription = in.enhance(ctx, l.OriginalTitle, l.OriginalDescription)
	}()
	wg.Wait()

	if len(l.Images) == 0 {
		l.Images = []string{models.PlaceholderImage}
	}
	l.PrimaryImage = l.Images[0]
	return l
}

// enhance returns the enhanced pair, or the original pair when there is no
// enhancer or it fails.
func (in *Ingestor) enhance(ctx context.Context, title, description string) (string, string) {
	if in.enhancer == nil {
		return title, description
	}
	t, d, err := in.enhancer.Enhance(ctx, title, description)
	if err != nil {
		in.logger.Warn("[ingest] Enhancement of %q failed, keeping original text: %v", title, err)
		return title, description
	}
	if strings.TrimSpace(t) == "" {
		t = title
	}
	if strings.TrimSpace(d) == "" {
		d = description
	}
	return t, d
}

func (in *Ingestor) newListing(c *models.RawListing, pageURL string, mode models.ScrapeMode) *models.Listing {
	source := c.SourceURL
	if source != "" && pageURL != "" {
		if base, err := url.Parse(pageURL); err == nil {
			if ref, err := url.Parse(source); err == nil {
				source = base.ResolveReference(ref).String()
			}
		}
	}
	if source == "" {
		source = pageURL
	}

	return &models.Listing{
		ID:                  in.newID(),
		SourceURL:           source,
		ScrapedAt:           in.now(),
		ScrapeMode:          mode,
		OriginalTitle:       c.Title,
		OriginalDescription: c.Description,
		PropertyType:        c.PropertyType,
		TransactionType:     c.TransactionType,
		Furnishing:          c.Furnishing,
		TenancyTerms:        c.TenancyTerms,
		Price:               c.Price,
		Area:                c.Area,
		Bedrooms:            c.Bedrooms,
		Bathrooms:           c.Bathrooms,
		Location:            c.Location,
		City:                c.City,
		County:              c.County,
		Neighborhood:        c.Neighborhood,
		PermitNumber:        c.PermitNumber,
		LicenseNumber:       c.LicenseNumber,
		RegistrationNumber:  c.RegistrationNumber,
		ReferenceID:         c.ReferenceID,
		AgentName:           c.AgentName,
		AgentPhone:          c.AgentPhone,
		AgentEmail:          c.AgentEmail,
	}
}

// finish records the history entry for a single or raw ingestion, including
// runs that extracted nothing.
func (in *Ingestor) finish(ctx context.Context, kind models.HistoryKind, details string, accepted []*models.Listing) (*IngestResult, error) {
	res := &IngestResult{Listings: accepted}
	entry, err := in.store.AppendHistory(ctx, &models.HistoryEntry{
		Kind:          kind,
		Details:       details,
		PropertyCount: len(accepted),
	})
	if err != nil {
		return res, fmt.Errorf("ingest: record history: %w", err)
	}
	res.History = entry
	in.logger.Info("[ingest] Stored %d new listing(s) from %s", len(accepted), details)
	return res, nil
}

// fail passes err through. A run rejected as all duplicates still completed,
// so it gets a history entry with no listings.
func (in *Ingestor) fail(ctx context.Context, kind models.HistoryKind, details string, err error) error {
	if !errors.Is(err, ErrAllDuplicates) {
		return err
	}
	if _, herr := in.store.AppendHistory(ctx, &models.HistoryEntry{Kind: kind, Details: details}); herr != nil {
		in.logger.Warn("[ingest] Could not record history for %s: %v", details, herr)
	}
	return err
}
