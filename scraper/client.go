package scraper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/temoto/robotstxt"
	"golang.org/x/net/html/charset"

	"property-ingest/config"
	"property-ingest/utils"
)

// maxPageBytes caps how much of a page body is read.
const maxPageBytes = 10 << 20

// ErrDisallowed is wrapped in a NetworkError when robots.txt forbids a URL.
var ErrDisallowed = errors.New("disallowed by robots.txt")

// Fetcher retrieves the raw markup of a page.
type Fetcher interface {
	Fetch(ctx context.Context, pageURL string) (string, error)
}

// NetworkError reports a failed page fetch: a transport error, a timeout or a
// non-2xx status.
type NetworkError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *NetworkError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("scraper: fetch %s: HTTP %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("scraper: fetch %s: %v", e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// Client fetches pages over plain HTTP and decodes them to UTF-8.
type Client struct {
	http          *http.Client
	userAgent     string
	respectRobots bool
	retry         *utils.RetryConfig
	logger        *utils.Logger

	robotsMu sync.Mutex
	robots   map[string]*robotstxt.Group
}

var _ Fetcher = (*Client)(nil)

// NewClient builds an HTTP fetcher from the fetch settings in cfg.
func NewClient(cfg *config.Config, logger *utils.Logger) *Client {
	timeout := time.Duration(cfg.FetchTimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		http:          &http.Client{Timeout: timeout},
		userAgent:     cfg.UserAgent,
		respectRobots: cfg.RespectRobots,
		retry: &utils.RetryConfig{
			MaxAttempts: cfg.MaxRetries,
			BaseDelay:   2 * time.Second,
			Logger:      logger,
		},
		logger: logger,
		robots: make(map[string]*robotstxt.Group),
	}
}

// Fetch downloads pageURL. Server errors and transport failures are retried;
// 4xx responses and robots.txt refusals are not.
func (c *Client) Fetch(ctx context.Context, pageURL string) (string, error) {
	u, err := url.Parse(pageURL)
	if err != nil || u.Host == "" {
		return "", &NetworkError{URL: pageURL, Err: fmt.Errorf("invalid url")}
	}

	if c.respectRobots && !c.allowed(ctx, u) {
		return "", &NetworkError{URL: pageURL, Err: ErrDisallowed}
	}

	var body string
	err = c.retry.Do(ctx, "fetch "+pageURL, func() error {
		b, ferr := c.fetchOnce(ctx, pageURL)
		if ferr != nil {
			var ne *NetworkError
			if errors.As(ferr, &ne) && ne.StatusCode >= 400 && ne.StatusCode < 500 {
				return utils.Permanent(ferr)
			}
			return ferr
		}
		body = b
		return nil
	})
	if err != nil {
		var ne *NetworkError
		if errors.As(err, &ne) {
			return "", err
		}
		return "", &NetworkError{URL: pageURL, Err: err}
	}

	c.logger.Debug("[fetch] %s: %d bytes", pageURL, len(body))
	return body, nil
}

func (c *Client) fetchOnce(ctx context.Context, pageURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", &NetworkError{URL: pageURL, Err: err}
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", &NetworkError{URL: pageURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &NetworkError{URL: pageURL, StatusCode: resp.StatusCode}
	}

	reader, err := charset.NewReader(resp.Body, resp.Header.Get("Content-Type"))
	if err != nil {
		reader = resp.Body
	}
	b, err := io.ReadAll(io.LimitReader(reader, maxPageBytes))
	if err != nil {
		return "", &NetworkError{URL: pageURL, Err: fmt.Errorf("read body: %w", err)}
	}
	return string(b), nil
}

// allowed consults robots.txt for u's host, caching the result per host.
// An unreachable or unparsable robots.txt allows everything.
func (c *Client) allowed(ctx context.Context, u *url.URL) bool {
	host := u.Scheme + "://" + u.Host

	c.robotsMu.Lock()
	group, cached := c.robots[host]
	c.robotsMu.Unlock()

	if !cached {
		group = c.loadRobots(ctx, host)
		c.robotsMu.Lock()
		c.robots[host] = group
		c.robotsMu.Unlock()
	}

	if group == nil {
		return true
	}
	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	return group.Test(path)
}

func (c *Client) loadRobots(ctx context.Context, host string) *robotstxt.Group {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, host+"/robots.txt", nil)
	if err != nil {
		return nil
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Debug("[fetch] robots.txt for %s unavailable: %v", host, err)
		return nil
	}
	defer resp.Body.Close()

	data, err := robotstxt.FromResponse(resp)
	if err != nil {
		c.logger.Warn("[fetch] robots.txt for %s unparsable: %v", host, err)
		return nil
	}
	return data.FindGroup(c.userAgent)
}
