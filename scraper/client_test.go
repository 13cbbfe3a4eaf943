package scraper

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"property-ingest/config"
	"property-ingest/utils"
)

func newTestClient(respectRobots bool) *Client {
	c := NewClient(&config.Config{
		FetchTimeoutSec: 5,
		MaxRetries:      2,
		UserAgent:       "property-ingest-test",
		RespectRobots:   respectRobots,
	}, utils.NewDiscardLogger())
	c.retry.BaseDelay = time.Millisecond
	return c
}

func TestClientFetchDecodesCharset(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("User-Agent"); got != "property-ingest-test" {
			t.Errorf("user agent: got %q", got)
		}
		w.Header().Set("Content-Type", "text/html; charset=iso-8859-1")
		_, _ = w.Write([]byte("<html><body>Caf\xe9 near the sea</body></html>"))
	}))
	defer srv.Close()

	body, err := newTestClient(false).Fetch(context.Background(), srv.URL+"/listing/1")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if !strings.Contains(body, "Café near the sea") {
		t.Errorf("body not decoded to UTF-8: %q", body)
	}
}

func TestClientDoesNotRetryClientErrors(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	_, err := newTestClient(false).Fetch(context.Background(), srv.URL+"/gone")
	var ne *NetworkError
	if !errors.As(err, &ne) {
		t.Fatalf("got %v, want *NetworkError", err)
	}
	if ne.StatusCode != http.StatusNotFound {
		t.Errorf("status: got %d, want 404", ne.StatusCode)
	}
	if hits != 1 {
		t.Errorf("hits: got %d, want 1", hits)
	}
}

func TestClientRetriesServerErrors(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte("<html>ok</html>"))
	}))
	defer srv.Close()

	body, err := newTestClient(false).Fetch(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if body != "<html>ok</html>" {
		t.Errorf("body: got %q", body)
	}
	if hits != 2 {
		t.Errorf("hits: got %d, want 2", hits)
	}
}

func TestClientHonoursRobots(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			_, _ = w.Write([]byte("User-agent: *\nDisallow: /private\n"))
			return
		}
		_, _ = w.Write([]byte("<html>page</html>"))
	}))
	defer srv.Close()

	c := newTestClient(true)
	_, err := c.Fetch(context.Background(), srv.URL+"/private/listing")
	if !errors.Is(err, ErrDisallowed) {
		t.Errorf("private path: got %v, want ErrDisallowed", err)
	}
	if _, err := c.Fetch(context.Background(), srv.URL+"/public/listing"); err != nil {
		t.Errorf("public path: %v", err)
	}
}

func TestClientRejectsInvalidURL(t *testing.T) {
	_, err := newTestClient(false).Fetch(context.Background(), "not a url")
	var ne *NetworkError
	if !errors.As(err, &ne) {
		t.Fatalf("got %v, want *NetworkError", err)
	}
}
