package api

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ka2n/mcp-servers/api/cache"
	"github.com/ka2n/mcp-servers/log"
	"github.com/morikuni/failure/v2"
	"golang.org/x/time/rate"
)

const (
	DefaultAPIURL  = "https://export.arxiv.org/api/query"
	DefaultHTMLURL = "https://arxiv.org/html/"

	// maxHTMLSize bounds the size of a downloaded HTML rendering
	maxHTMLSize = 64 << 20
)

// Client talks to the arXiv export API and to arxiv.org HTML renderings.
// All requests share one rate limiter, arXiv asks for one request every
// three seconds.
type Client struct {
	httpClient *http.Client
	apiURL     string
	htmlURL    string
	limiter    *rate.Limiter
	maxResults int

	searches *cache.Cache[SearchResult]
	papers   *cache.Cache[Paper]
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the HTTP client
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.httpClient = c
	}
}

// WithHTMLURL sets the base URL of HTML renderings
func WithHTMLURL(u string) Option {
	return func(cl *Client) {
		cl.htmlURL = u
	}
}

// WithRequestInterval sets the minimum delay between requests. Zero disables limiting.
func WithRequestInterval(d time.Duration) Option {
	return func(cl *Client) {
		if d <= 0 {
			cl.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		cl.limiter = rate.NewLimiter(rate.Every(d), 1)
	}
}

// WithCache caches search results and paper lookups in backend
func WithCache(backend cache.Backend, ttl time.Duration) Option {
	return func(cl *Client) {
		cl.searches = cache.New[SearchResult](backend, "search", ttl)
		cl.papers = cache.New[Paper](backend, "paper", ttl)
	}
}

// WithMaxResults caps the number of results of a single search
func WithMaxResults(n int) Option {
	return func(cl *Client) {
		cl.maxResults = n
	}
}

// NewClient creates a client for the export API at apiURL
func NewClient(apiURL string, opts ...Option) *Client {
	if apiURL == "" {
		apiURL = DefaultAPIURL
	}
	c := &Client{
		httpClient: &http.Client{Transport: log.Transport(nil), Timeout: time.Minute},
		apiURL:     apiURL,
		htmlURL:    DefaultHTMLURL,
		limiter:    rate.NewLimiter(rate.Every(3*time.Second), 1),
		maxResults: 50,
	}
	for _, opt := range opts {
		opt(c)
	}
	if !strings.HasSuffix(c.htmlURL, "/") {
		c.htmlURL += "/"
	}
	return c
}

// MaxResults returns the cap applied to SearchQuery.MaxResults
func (c *Client) MaxResults() int {
	return c.maxResults
}

// Search runs a query against the export API
func (c *Client) Search(ctx context.Context, q SearchQuery) (SearchResult, error) {
	if c.maxResults > 0 && q.MaxResults > c.maxResults {
		q.MaxResults = c.maxResults
	}
	params, err := q.Values()
	if err != nil {
		return SearchResult{}, err
	}

	values := url.Values{}
	for k, v := range params {
		values.Set(k, v)
	}

	fetch := func() (SearchResult, error) {
		return c.query(ctx, values)
	}
	if c.searches == nil {
		return fetch()
	}
	return c.searches.GetOrSet(ctx, values.Encode(), fetch, false)
}

// Fetch looks up the metadata of a single paper
func (c *Client) Fetch(ctx context.Context, id ID) (Paper, error) {
	fetch := func() (Paper, error) {
		values := url.Values{}
		values.Set("id_list", id.String())
		values.Set("max_results", "1")

		result, err := c.query(ctx, values)
		if err != nil {
			return Paper{}, err
		}
		if len(result.Papers) == 0 || result.Papers[0].Title == "" {
			return Paper{}, failure.New(ErrPaperNotFound,
				failure.Message("Paper not found on arXiv: "+id.String()),
				failure.Context{"id": id.String()},
			)
		}
		return result.Papers[0], nil
	}
	if c.papers == nil {
		return fetch()
	}
	return c.papers.GetOrSet(ctx, id.String(), fetch, false)
}

// FetchHTML downloads the HTML rendering of a paper.
// Papers without a rendering report ErrHTMLUnavailable.
func (c *Client) FetchHTML(ctx context.Context, id ID) (string, error) {
	u := c.htmlURL + id.String()

	resp, err := c.get(ctx, u)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return "", failure.New(ErrHTMLUnavailable,
			failure.Message("No HTML rendering available for "+id.String()),
			failure.Context{"id": id.String(), "url": u},
		)
	case resp.StatusCode != http.StatusOK:
		return "", statusError(resp, u)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxHTMLSize))
	if err != nil {
		return "", failure.Wrap(err, failure.WithCode(ErrUpstream))
	}
	return string(body), nil
}

func (c *Client) query(ctx context.Context, values url.Values) (SearchResult, error) {
	u := c.apiURL + "?" + values.Encode()

	resp, err := c.get(ctx, u)
	if err != nil {
		return SearchResult{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return SearchResult{}, statusError(resp, u)
	}

	return parseFeed(resp.Body)
}

func (c *Client) get(ctx context.Context, u string) (*http.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, failure.Wrap(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, failure.Wrap(err)
	}
	req.Header.Set("User-Agent", UserAgent())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, failure.Wrap(err, failure.WithCode(ErrUpstream),
			failure.Message("Failed to reach arxiv.org"),
			failure.Context{"url": u},
		)
	}
	return resp, nil
}

func statusError(resp *http.Response, u string) error {
	return failure.New(ErrUpstream,
		failure.Message("arxiv.org responded with "+resp.Status),
		failure.Context{
			"url":    u,
			"status": resp.Status,
		},
	)
}
