// Package websearch queries an HTML search endpoint as the external
// fallback source when the knowledge base cannot answer on its own.
package websearch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// ErrUnavailable reports that the search provider could not be reached or
// did not answer in time. Callers compose without external material.
var ErrUnavailable = errors.New("websearch: provider unavailable")

// maxResponseSize bounds how much HTML we read from the provider.
const maxResponseSize = 2 << 20

const userAgent = "medigenius/1.0"

// Result is one external search hit.
type Result struct {
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
	URL     string `json:"url"`
}

// Config controls the search client.
type Config struct {
	// BaseURL is the HTML search endpoint, e.g. https://html.duckduckgo.com/html/.
	BaseURL string

	// Timeout bounds one search round trip.
	Timeout time.Duration

	// MaxResults caps how many hits are returned.
	MaxResults int

	// HTTPClient overrides the transport, mainly for tests.
	HTTPClient *http.Client
}

func (c *Config) validate() error {
	if c.BaseURL == "" {
		return errors.New("websearch: base URL is required")
	}
	if _, err := url.Parse(c.BaseURL); err != nil {
		return fmt.Errorf("websearch: invalid base URL: %w", err)
	}
	if c.Timeout <= 0 {
		c.Timeout = 8 * time.Second
	}
	if c.MaxResults <= 0 {
		c.MaxResults = 5
	}
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{}
	}
	return nil
}

// Client scrapes search results from a DuckDuckGo-style HTML endpoint.
// It is safe for concurrent use.
type Client struct {
	cfg    Config
	logger *slog.Logger
}

// New creates a search client.
func New(cfg Config, logger *slog.Logger) (*Client, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{cfg: cfg, logger: logger}, nil
}

// Search runs one query and returns hits in page order. Network errors,
// timeouts, and non-200 answers all map to ErrUnavailable. An answer page
// with no results is a valid empty slice.
func (c *Client) Search(ctx context.Context, query string) ([]Result, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	reqURL := c.cfg.BaseURL + "?q=" + url.QueryEscape(query)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("websearch: build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.cfg.HTTPClient.Do(req)
	if err != nil {
		c.logger.Warn("search request failed", "error", err)
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		c.logger.Warn("search provider answered with error", "status", resp.StatusCode)
		return nil, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("%w: parse response: %v", ErrUnavailable, err)
	}

	results := c.parseResults(doc)
	c.logger.Debug("search completed", "query_length", len(query), "results", len(results))
	return results, nil
}

func (c *Client) parseResults(doc *goquery.Document) []Result {
	var results []Result
	doc.Find(".result").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		anchor := s.Find(".result__a").First()
		title := strings.TrimSpace(anchor.Text())
		if title == "" {
			return true
		}
		href, _ := anchor.Attr("href")
		results = append(results, Result{
			Title:   title,
			Snippet: strings.TrimSpace(s.Find(".result__snippet").First().Text()),
			URL:     resolveRedirect(href),
		})
		return len(results) < c.cfg.MaxResults
	})
	return results
}

// resolveRedirect unwraps DuckDuckGo's /l/?uddg=<target> redirect links.
func resolveRedirect(href string) string {
	u, err := url.Parse(href)
	if err != nil {
		return href
	}
	if target := u.Query().Get("uddg"); target != "" {
		return target
	}
	return href
}
