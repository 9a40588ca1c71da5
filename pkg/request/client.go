package request

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"geoquery/pkg/cache"
	"geoquery/pkg/tracker"
	"geoquery/pkg/version"
)

var defaultUserAgent = fmt.Sprintf("geoquery/%s (geospatial QA service)", version.Version)

// ErrStatus carries a non-2xx upstream status code.
type ErrStatus struct {
	Code int
}

func (e *ErrStatus) Error() string {
	return fmt.Sprintf("api error: status %d", e.Code)
}

// StatusCode extracts the upstream status from an error chain, or 0.
func StatusCode(err error) int {
	var se *ErrStatus
	if errors.As(err, &se) {
		return se.Code
	}
	return 0
}

// Client handles outbound HTTP with per-provider queuing, backoff,
// caching, and tracking. One instance is shared by all collaborator
// clients (geocoder, LLM, imagery backend, web search) and is safe for
// concurrent use.
type Client struct {
	httpClient *http.Client
	cache      cache.Cacher
	tracker    *tracker.Tracker
	backoff    *ProviderBackoff
	retries    int

	// Queues per provider (domain)
	queues map[string]chan job
	mu     sync.Mutex // Protects queues map
}

// job represents a queued request.
type job struct {
	req      *http.Request
	headers  map[string]string
	cacheKey string
	respChan chan jobResult
}

type jobResult struct {
	body []byte
	err  error
}

// New creates a new Client.
func New(c cache.Cacher, t *tracker.Tracker, timeout time.Duration, retries int, backoff *ProviderBackoff) *Client {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	if retries <= 0 {
		retries = 3
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		cache:      c,
		tracker:    t,
		backoff:    backoff,
		retries:    retries,
		queues:     make(map[string]chan job),
	}
}

// Get performs a GET request with queuing and caching if key is provided.
func (c *Client) Get(ctx context.Context, u, cacheKey string) ([]byte, error) {
	return c.GetWithHeaders(ctx, u, nil, cacheKey)
}

// GetWithHeaders performs a GET request with custom headers and optional caching.
func (c *Client) GetWithHeaders(ctx context.Context, u string, headers map[string]string, cacheKey string) ([]byte, error) {
	provider, err := providerFor(u)
	if err != nil {
		return nil, err
	}

	if cacheKey != "" {
		if val, hit := c.cache.GetCache(ctx, cacheKey); hit {
			c.tracker.TrackCacheHit(provider)
			return val, nil
		}
		c.tracker.TrackCacheMiss(provider)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	return c.enqueue(ctx, provider, job{req: req, headers: headers, cacheKey: cacheKey, respChan: make(chan jobResult, 1)})
}

// Post performs a POST request with queuing.
func (c *Client) Post(ctx context.Context, u string, body []byte, headers map[string]string) ([]byte, error) {
	return c.PostWithCache(ctx, u, body, headers, "")
}

// PostWithCache performs a POST request with queuing and optional caching.
func (c *Client) PostWithCache(ctx context.Context, u string, body []byte, headers map[string]string, cacheKey string) ([]byte, error) {
	provider, err := providerFor(u)
	if err != nil {
		return nil, err
	}

	if cacheKey != "" {
		if val, hit := c.cache.GetCache(ctx, cacheKey); hit {
			c.tracker.TrackCacheHit(provider)
			return val, nil
		}
		c.tracker.TrackCacheMiss(provider)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	return c.enqueue(ctx, provider, job{req: req, headers: headers, cacheKey: cacheKey, respChan: make(chan jobResult, 1)})
}

func (c *Client) enqueue(ctx context.Context, provider string, j job) ([]byte, error) {
	c.dispatch(provider, j)

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-j.respChan:
		return res.body, res.err
	}
}

func providerFor(u string) (string, error) {
	parsed, err := url.Parse(u)
	if err != nil {
		return "", fmt.Errorf("invalid url: %w", err)
	}
	return normalizeProvider(parsed.Host), nil
}

// normalizeProvider groups hosts into logical providers so queueing and
// backoff apply per upstream service, not per subdomain.
func normalizeProvider(host string) string {
	switch {
	case strings.Contains(host, "nominatim") || strings.HasSuffix(host, "openstreetmap.org"):
		return "nominatim"
	case strings.Contains(host, "openrouter.ai"):
		return "openrouter"
	case strings.Contains(host, "earthengine"):
		return "earthengine"
	case strings.HasSuffix(host, "googleapis.com"):
		return "google"
	case strings.Contains(host, "tavily"):
		return "tavily"
	}
	return host
}

// dispatch sends the job to the provider's queue, creating the queue/worker if needed.
func (c *Client) dispatch(provider string, j job) {
	c.mu.Lock()
	defer c.mu.Unlock()

	q, ok := c.queues[provider]
	if !ok {
		q = make(chan job, 100)
		c.queues[provider] = q
		go c.worker(provider, q)
	}

	// Blocking here throttles the caller when the queue is full.
	select {
	case q <- j:
	case <-j.req.Context().Done():
		j.respChan <- jobResult{err: j.req.Context().Err()}
	}
}

// worker processes requests for a specific provider sequentially.
func (c *Client) worker(provider string, q <-chan job) {
	for j := range q {
		if j.req.Context().Err() != nil {
			j.respChan <- jobResult{err: j.req.Context().Err()}
			continue
		}

		uaSet := false
		for k, v := range j.headers {
			j.req.Header.Set(k, v)
			if http.CanonicalHeaderKey(k) == "User-Agent" {
				uaSet = true
			}
		}
		if !uaSet {
			j.req.Header.Set("User-Agent", defaultUserAgent)
		}

		if c.backoff != nil {
			c.backoff.Wait(provider)
		}

		start := time.Now()
		body, err := c.executeWithRetry(j.req)
		elapsed := time.Since(start)

		switch {
		case err == nil:
			c.tracker.TrackAPISuccess(provider, elapsed)
			if c.backoff != nil {
				c.backoff.RecordSuccess(provider)
			}
			if j.cacheKey != "" {
				if cerr := c.cache.SetCache(context.Background(), j.cacheKey, body); cerr != nil {
					slog.Error("Failed to cache response", "url", j.req.URL, "error", cerr)
				}
			}
		case errors.Is(err, context.DeadlineExceeded):
			c.tracker.TrackAPITimeout(provider)
		default:
			c.tracker.TrackAPIFailure(provider)
			if c.backoff != nil {
				c.backoff.RecordFailure(provider)
			}
		}

		j.respChan <- jobResult{body: body, err: err}
	}
}

// executeWithRetry attempts the request with exponential backoff on
// retryable errors (network failures, 429, 5xx).
func (c *Client) executeWithRetry(req *http.Request) ([]byte, error) {
	baseDelay := 500 * time.Millisecond

	var lastErr error
	for attempt := 0; attempt < c.retries; attempt++ {
		if req.Context().Err() != nil {
			return nil, req.Context().Err()
		}

		// Rewind the body for retried POSTs.
		if attempt > 0 && req.GetBody != nil {
			b, err := req.GetBody()
			if err != nil {
				return nil, fmt.Errorf("failed to rewind request body: %w", err)
			}
			req.Body = b
		}

		slog.Debug("Network Request", "host", req.URL.Host, "path", req.URL.Path, "attempt", attempt+1)
		resp, err := c.httpClient.Do(req)
		if err != nil {
			if req.Context().Err() != nil {
				return nil, req.Context().Err()
			}
			lastErr = err
			slog.Warn("Request failed, retrying", "url", req.URL, "attempt", attempt+1, "error", err)
			if werr := sleepBackoff(req.Context(), attempt, baseDelay); werr != nil {
				return nil, werr
			}
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests || (resp.StatusCode >= 500 && resp.StatusCode < 600) {
			resp.Body.Close()
			lastErr = &ErrStatus{Code: resp.StatusCode}
			if resp.StatusCode == http.StatusTooManyRequests {
				// Quota errors surface immediately; retrying burns budget.
				return nil, lastErr
			}
			slog.Warn("API Backoff", "status", resp.StatusCode, "url", req.URL, "attempt", attempt+1)
			if werr := sleepBackoff(req.Context(), attempt, baseDelay); werr != nil {
				return nil, werr
			}
			continue
		}

		if resp.StatusCode >= 400 {
			resp.Body.Close()
			return nil, &ErrStatus{Code: resp.StatusCode}
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("read error: %w", err)
		}
		return body, nil
	}

	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}

func sleepBackoff(ctx context.Context, attempt int, base time.Duration) error {
	d := base << attempt
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
