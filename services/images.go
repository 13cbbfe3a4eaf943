package services

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"property-ingest/config"
	"property-ingest/models"
	"property-ingest/utils"
)

// FailurePolicy decides what a failed download contributes to the result.
type FailurePolicy int

const (
	// FallbackToSource keeps the original absolute URL in place of a failed
	// download. Used on ingestion.
	FallbackToSource FailurePolicy = iota
	// OmitFailed drops failed downloads. Used when repairing stored listings.
	OmitFailed
)

func (p FailurePolicy) String() string {
	if p == OmitFailed {
		return "omit-failed"
	}
	return "fallback-to-source"
}

// ImageResult is the outcome of one Download call.
type ImageResult struct {
	References []string
	Succeeded  int
	Failed     int
}

// ImageDownloader fetches listing images into one directory per listing.
// All downloads made through one ImageDownloader share a single cap on
// in-flight requests, however many listings are processed at once.
type ImageDownloader struct {
	client     *http.Client
	root       string
	urlPrefix  string
	batchSize  int
	timeout    time.Duration
	jitter     time.Duration
	batchDelay time.Duration
	userAgent  string
	inFlight   *utils.Semaphore
	logger     *utils.Logger
}

// NewImageDownloader builds a downloader from the image settings in cfg.
func NewImageDownloader(cfg *config.Config, logger *utils.Logger) *ImageDownloader {
	batch := cfg.ImageBatchSize
	if batch < 1 {
		batch = 5
	}
	timeout := time.Duration(cfg.ImageTimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &ImageDownloader{
		client:     &http.Client{},
		root:       cfg.ImageDir,
		urlPrefix:  strings.TrimRight(cfg.ImageURLPrefix, "/"),
		batchSize:  batch,
		timeout:    timeout,
		jitter:     time.Duration(cfg.ImageJitterMs) * time.Millisecond,
		batchDelay: time.Duration(cfg.ImageBatchDelayMs) * time.Millisecond,
		userAgent:  cfg.UserAgent,
		inFlight:   utils.NewSemaphore(batch),
		logger:     logger,
	}
}

// Download fetches urls for the listing recordID in batches. References keep
// the input order of the items that produced one; with no references left the
// result is the single placeholder image.
//
// Cancelling ctx stops further batches from starting. Requests already in
// flight run to completion or to their own timeout.
func (d *ImageDownloader) Download(ctx context.Context, recordID string, urls []string, policy FailurePolicy) *ImageResult {
	refs := make([]string, len(urls))
	ok := make([]bool, len(urls))
	var succeeded, failed int64

	for start := 0; start < len(urls); start += d.batchSize {
		if start > 0 {
			if !utils.Sleep(ctx, d.batchDelay) {
				d.logger.Warn("[images] %s: cancelled with %d image(s) not attempted", recordID, len(urls)-start)
				failed += int64(len(urls) - start)
				break
			}
		}

		end := min(start+d.batchSize, len(urls))
		pool := utils.NewWorkerPool(d.batchSize, 0)
		for i := start; i < end; i++ {
			i := i
			pool.Submit(func() {
				ref, err := d.downloadOne(ctx, recordID, urls[i])
				if err != nil {
					d.logger.Warn("[images] %s: %v", recordID, err)
					atomic.AddInt64(&failed, 1)
					return
				}
				refs[i], ok[i] = ref, true
				atomic.AddInt64(&succeeded, 1)
			})
		}
		pool.Wait()
	}

	result := &ImageResult{Succeeded: int(succeeded), Failed: int(failed)}
	for i, u := range urls {
		switch {
		case ok[i]:
			result.References = append(result.References, refs[i])
		case policy == FallbackToSource:
			result.References = append(result.References, u)
		}
	}
	if len(result.References) == 0 {
		result.References = []string{models.PlaceholderImage}
	}

	if len(urls) > 0 {
		d.logger.Info("[images] %s: %d downloaded, %d failed (%s)", recordID, result.Succeeded, result.Failed, policy)
	}
	return result
}

func (d *ImageDownloader) downloadOne(ctx context.Context, recordID, src string) (string, error) {
	if !utils.Sleep(ctx, utils.RandomDelay(d.jitter)) {
		return "", fmt.Errorf("%s: cancelled", src)
	}
	if !d.inFlight.Acquire(ctx) {
		return "", fmt.Errorf("%s: cancelled", src)
	}
	defer d.inFlight.Release()

	reqCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, src, nil)
	if err != nil {
		return "", fmt.Errorf("%s: %w", src, err)
	}
	req.Header.Set("User-Agent", d.userAgent)
	req.Header.Set("Accept", "image/*")

	resp, err := d.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%s: %w", src, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("%s: HTTP %d", src, resp.StatusCode)
	}

	dir := filepath.Join(d.root, recordID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create image dir: %w", err)
	}
	name := uuid.NewString() + imageExtension(resp.Header.Get("Content-Type"), src)
	dest := filepath.Join(dir, name)

	f, err := os.Create(dest)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", dest, err)
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		_ = f.Close()
		_ = os.Remove(dest)
		return "", fmt.Errorf("%s: write: %w", src, err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(dest)
		return "", fmt.Errorf("%s: close: %w", src, err)
	}

	return path.Join(d.urlPrefix, recordID, name), nil
}

var imageExtensions = map[string]string{
	"image/jpeg":    ".jpg",
	"image/jpg":     ".jpg",
	"image/pjpeg":   ".jpg",
	"image/png":     ".png",
	"image/gif":     ".gif",
	"image/webp":    ".webp",
	"image/avif":    ".avif",
	"image/svg+xml": ".svg",
	"image/bmp":     ".bmp",
}

// imageExtension picks a file extension from the content type, then the URL
// path, then falls back to .jpg.
func imageExtension(contentType, src string) string {
	if mt, _, err := mime.ParseMediaType(contentType); err == nil {
		if ext, ok := imageExtensions[strings.ToLower(mt)]; ok {
			return ext
		}
	}
	if u, err := url.Parse(src); err == nil {
		ext := strings.ToLower(path.Ext(u.Path))
		if ext == ".jpeg" {
			return ".jpg"
		}
		for _, known := range imageExtensions {
			if ext == known {
				return ext
			}
		}
	}
	return ".jpg"
}

// IsLocalImage reports whether ref points into the local image store.
func IsLocalImage(ref string) bool {
	return !strings.HasPrefix(ref, "http://") && !strings.HasPrefix(ref, "https://")
}

// ResolveImageURLs makes image URLs absolute against base and drops the ones
// that cannot be fetched (data URIs, relative URLs without a base). Order is
// kept and repeats are removed.
func ResolveImageURLs(base string, raw []string) []string {
	var baseURL *url.URL
	if base != "" {
		if u, err := url.Parse(base); err == nil && u.IsAbs() {
			baseURL = u
		}
	}

	seen := make(map[string]struct{}, len(raw))
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		r = strings.TrimSpace(r)
		if r == "" || strings.HasPrefix(r, "data:") {
			continue
		}
		u, err := url.Parse(r)
		if err != nil {
			continue
		}
		if !u.IsAbs() {
			if baseURL == nil {
				continue
			}
			u = baseURL.ResolveReference(u)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			continue
		}
		abs := u.String()
		if _, dup := seen[abs]; dup {
			continue
		}
		seen[abs] = struct{}{}
		out = append(out, abs)
	}
	return out
}
