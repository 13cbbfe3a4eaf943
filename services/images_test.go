package services

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"property-ingest/config"
	"property-ingest/models"
)

func newTestDownloader(t *testing.T) *ImageDownloader {
	t.Helper()
	return NewImageDownloader(&config.Config{
		ImageDir:        t.TempDir(),
		ImageURLPrefix:  "/images",
		ImageBatchSize:  5,
		ImageTimeoutSec: 5,
		UserAgent:       "property-ingest-test",
	}, newTestLogger())
}

// gaugeServer serves a tiny image for every path except /missing, and
// records the highest number of requests it ever served at once.
type gaugeServer struct {
	*httptest.Server
	current int32
	peak    int32
	hits    int32
}

func newGaugeServer(hold time.Duration) *gaugeServer {
	g := &gaugeServer{}
	g.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&g.hits, 1)
		n := atomic.AddInt32(&g.current, 1)
		defer atomic.AddInt32(&g.current, -1)
		for {
			p := atomic.LoadInt32(&g.peak)
			if n <= p || atomic.CompareAndSwapInt32(&g.peak, p, n) {
				break
			}
		}
		time.Sleep(hold)

		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte("\x89PNG fake"))
	}))
	return g
}

func TestImageDownloaderNeverExceedsCap(t *testing.T) {
	srv := newGaugeServer(20 * time.Millisecond)
	defer srv.Close()

	urls := make([]string, 23)
	for i := range urls {
		urls[i] = fmt.Sprintf("%s/img/%d.png", srv.URL, i)
	}

	d := newTestDownloader(t)
	res := d.Download(context.Background(), "rec-1", urls, FallbackToSource)

	if res.Succeeded != 23 || res.Failed != 0 {
		t.Errorf("counts: got %d ok / %d failed, want 23 / 0", res.Succeeded, res.Failed)
	}
	if peak := atomic.LoadInt32(&srv.peak); peak > 5 {
		t.Errorf("peak in-flight downloads: got %d, want <= 5", peak)
	}
	if len(res.References) != 23 {
		t.Errorf("references: got %d, want 23", len(res.References))
	}
}

func TestImageDownloaderCapIsSharedAcrossListings(t *testing.T) {
	srv := newGaugeServer(20 * time.Millisecond)
	defer srv.Close()

	d := newTestDownloader(t)
	var wg sync.WaitGroup
	for r := 0; r < 4; r++ {
		r := r
		wg.Add(1)
		go func() {
			defer wg.Done()
			urls := make([]string, 7)
			for i := range urls {
				urls[i] = fmt.Sprintf("%s/%d/%d.jpg", srv.URL, r, i)
			}
			d.Download(context.Background(), fmt.Sprintf("rec-%d", r), urls, OmitFailed)
		}()
	}
	wg.Wait()

	if peak := atomic.LoadInt32(&srv.peak); peak > 5 {
		t.Errorf("peak in-flight downloads across listings: got %d, want <= 5", peak)
	}
	if hits := atomic.LoadInt32(&srv.hits); hits != 28 {
		t.Errorf("hits: got %d, want 28", hits)
	}
}

func TestImageDownloaderWritesFilesPerListing(t *testing.T) {
	srv := newGaugeServer(0)
	defer srv.Close()

	d := newTestDownloader(t)
	res := d.Download(context.Background(), "rec-9", []string{srv.URL + "/a"}, OmitFailed)
	if len(res.References) != 1 {
		t.Fatalf("references: got %v", res.References)
	}

	ref := res.References[0]
	if !strings.HasPrefix(ref, "/images/rec-9/") || !strings.HasSuffix(ref, ".png") {
		t.Errorf("reference: got %q, want /images/rec-9/<token>.png", ref)
	}
	body, err := os.ReadFile(filepath.Join(d.root, "rec-9", filepath.Base(ref)))
	if err != nil {
		t.Fatalf("read image: %v", err)
	}
	if string(body) != "\x89PNG fake" {
		t.Errorf("file contents: got %q", body)
	}
}

func TestImageDownloaderFailurePolicies(t *testing.T) {
	srv := newGaugeServer(0)
	defer srv.Close()

	urls := []string{srv.URL + "/one.jpg", srv.URL + "/missing", srv.URL + "/two.jpg"}

	d := newTestDownloader(t)
	fallback := d.Download(context.Background(), "rec-a", urls, FallbackToSource)
	if len(fallback.References) != 3 {
		t.Fatalf("fallback references: got %v", fallback.References)
	}
	if fallback.References[1] != srv.URL+"/missing" {
		t.Errorf("failed item should keep its source URL, got %q", fallback.References[1])
	}
	if !IsLocalImage(fallback.References[0]) || !IsLocalImage(fallback.References[2]) {
		t.Errorf("successful items should be local: %v", fallback.References)
	}
	if fallback.Succeeded != 2 || fallback.Failed != 1 {
		t.Errorf("counts: got %d / %d, want 2 / 1", fallback.Succeeded, fallback.Failed)
	}

	omit := d.Download(context.Background(), "rec-b", urls, OmitFailed)
	if len(omit.References) != 2 {
		t.Errorf("omit references: got %v", omit.References)
	}
}

func TestImageDownloaderPlaceholder(t *testing.T) {
	srv := newGaugeServer(0)
	defer srv.Close()

	d := newTestDownloader(t)
	tests := []struct {
		name string
		urls []string
	}{
		{"no urls", nil},
		{"all failed", []string{srv.URL + "/missing"}},
	}
	for _, tt := range tests {
		res := d.Download(context.Background(), "rec-p", tt.urls, OmitFailed)
		if len(res.References) != 1 || res.References[0] != models.PlaceholderImage {
			t.Errorf("%s: got %v, want only the placeholder", tt.name, res.References)
		}
	}
}

func TestImageExtension(t *testing.T) {
	tests := []struct {
		contentType, src, want string
	}{
		{"image/webp", "https://x/y", ".webp"},
		{"image/jpeg; charset=binary", "https://x/y.png", ".jpg"},
		{"application/octet-stream", "https://x/photo.PNG?w=300", ".png"},
		{"", "https://x/photo.jpeg", ".jpg"},
		{"", "https://x/photo", ".jpg"},
	}
	for _, tt := range tests {
		if got := imageExtension(tt.contentType, tt.src); got != tt.want {
			t.Errorf("imageExtension(%q, %q) = %q; want %q", tt.contentType, tt.src, got, tt.want)
		}
	}
}

func TestResolveImageURLs(t *testing.T) {
	got := ResolveImageURLs("https://agency.example/listings/42", []string{
		"/media/a.jpg",
		"b.jpg",
		"https://cdn.example/c.jpg",
		"//cdn.example/d.jpg",
		"data:image/png;base64,AAAA",
		"/media/a.jpg",
		"",
	})
	want := []string{
		"https://agency.example/media/a.jpg",
		"https://agency.example/listings/b.jpg",
		"https://cdn.example/c.jpg",
		"https://cdn.example/d.jpg",
	}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("got %v, want %v", got, want)
	}

	noBase := ResolveImageURLs("", []string{"/rel.jpg", "https://cdn.example/abs.jpg"})
	if len(noBase) != 1 || noBase[0] != "https://cdn.example/abs.jpg" {
		t.Errorf("without base: got %v", noBase)
	}
}
