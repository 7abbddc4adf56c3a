// Package scraper fetches a web page and extracts the text a business
// profile can use.
package scraper

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/html/charset"
	"golang.org/x/time/rate"
)

const maxBodyBytes = 2 << 20

// Extractor fetches and parses a URL.
type Extractor interface {
	Extract(ctx context.Context, url string) (*Page, error)
}

// Options configures a Scraper.
type Options struct {
	Timeout    time.Duration
	UserAgent  string
	RatePerSec float64
	Client     *http.Client
	Logger     *slog.Logger
}

// Scraper is the HTTP-backed Extractor.
type Scraper struct {
	client    *http.Client
	timeout   time.Duration
	userAgent string
	limiter   *rate.Limiter
	logger    *slog.Logger
}

var _ Extractor = (*Scraper)(nil)

// New creates a Scraper. Zero options fall back to a 12s timeout and no throttling.
func New(opts Options) *Scraper {
	if opts.Timeout <= 0 {
		opts.Timeout = 12 * time.Second
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "Mozilla/5.0 (compatible; DatasynthBot/1.0)"
	}
	if opts.Client == nil {
		opts.Client = &http.Client{Timeout: opts.Timeout}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	limit := rate.Inf
	if opts.RatePerSec > 0 {
		limit = rate.Limit(opts.RatePerSec)
	}

	return &Scraper{
		client:    opts.Client,
		timeout:   opts.Timeout,
		userAgent: opts.UserAgent,
		limiter:   rate.NewLimiter(limit, 1),
		logger:    opts.Logger,
	}
}

// Extract fetches url and parses it. Every failure is a *FetchError.
func (s *Scraper) Extract(ctx context.Context, url string) (*Page, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.limiter.Wait(ctx); err != nil {
		return nil, &FetchError{Kind: KindTimeout, URL: url, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &FetchError{Kind: KindOther, URL: url, Err: err}
	}
	req.Header.Set("User-Agent", s.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")

	start := time.Now()
	resp, err := s.client.Do(req)
	if err != nil {
		kind := classify(err)
		s.logger.Warn("Page fetch failed", "url", url, "kind", kind.String(), "error", err)
		return nil, &FetchError{Kind: kind, URL: url, Err: err}
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			s.logger.Debug("Failed to close response body", "url", url, "error", closeErr)
		}
	}()

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, &FetchError{
			Kind:       KindOther,
			URL:        url,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("unexpected status %s", resp.Status),
		}
	}

	var body io.Reader = io.LimitReader(resp.Body, maxBodyBytes)
	if decoded, cerr := charset.NewReader(body, resp.Header.Get("Content-Type")); cerr == nil {
		body = decoded
	} else {
		s.logger.Debug("Unknown page encoding, parsing raw bytes", "url", url, "error", cerr)
	}
	page, err := Parse(body)
	if err != nil {
		return nil, &FetchError{Kind: classify(err), URL: url, Err: fmt.Errorf("parse html: %w", err)}
	}
	page.URL = url
	page.Title = strings.TrimSpace(page.Title)

	s.logger.Info("Page extracted",
		"url", url,
		"title", page.Title,
		"headings", len(page.Headings),
		"body_chars", len(page.BodyText),
		"duration", time.Since(start))
	return page, nil
}
