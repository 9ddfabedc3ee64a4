// Package forgeclient is the paginated, rate-limited HTTP client shared by
// every agent that talks to a GitLab source or a GitHub destination. It owns
// retry/backoff, credential redaction, and discovery-only API budget
// accounting; everything above it (discovery, analyzer, export, apply) talks
// to forges exclusively through this package.
package forgeclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	maxRetries        = 5
	maxBackoff        = 60 * time.Second
	defaultMinInterval = 100 * time.Millisecond
)

// Forge distinguishes the two header/auth conventions forgeclient speaks.
type Forge int

const (
	ForgeGitLab Forge = iota
	ForgeGitHub
)

// Client is a thin, instrumented wrapper around *http.Client. It is safe
// for concurrent use by multiple goroutines — the deep analyzer's worker
// pool shares one Client across workers.
type Client struct {
	forge      Forge
	baseURL    string
	token      string
	httpClient *http.Client
	stats      *Stats
	budget     *Budget // nil outside discovery

	minInterval time.Duration
	lastCallAt  time.Time
	notBefore   time.Time
}

// NewGitLabClient builds a Client speaking GitLab's PRIVATE-TOKEN convention.
// budget may be nil when the caller does not want call accounting enforced
// (export and apply construct clients without a budget; only discovery
// passes one).
func NewGitLabClient(baseURL, token string, budget *Budget) *Client {
	return &Client{
		forge:       ForgeGitLab,
		baseURL:     strings.TrimRight(baseURL, "/"),
		token:       token,
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		stats:       &Stats{},
		budget:      budget,
		minInterval: defaultMinInterval,
	}
}

// NewGitHubClient builds a Client speaking GitHub's Bearer convention.
func NewGitHubClient(baseURL, token string) *Client {
	return &Client{
		forge:       ForgeGitHub,
		baseURL:     strings.TrimRight(baseURL, "/"),
		token:       token,
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		stats:       &Stats{},
		minInterval: defaultMinInterval,
	}
}

// Stats exposes the running call-accounting record.
func (c *Client) Stats() *Stats { return c.stats }

// SetMinInterval overrides the minimum spacing enforced between requests.
// The 100ms default is a conservative courtesy delay; callers with a known
// max_requests_per_minute budget should derive and set a tighter interval.
func (c *Client) SetMinInterval(d time.Duration) { c.minInterval = d }

func (c *Client) authHeader(req *http.Request) {
	switch c.forge {
	case ForgeGitLab:
		req.Header.Set("PRIVATE-TOKEN", c.token)
	case ForgeGitHub:
		req.Header.Set("Authorization", "Bearer "+c.token)
		req.Header.Set("Accept", "application/vnd.github+json")
	}
}

// waitForSlot blocks (respecting ctx) until both the minimum call interval
// and any server-imposed Retry-After window have elapsed. It never calls
// time.Sleep directly; it is built on a non-blocking timer so ctx
// cancellation is observed promptly instead of monopolizing the caller.
func (c *Client) waitForSlot(ctx context.Context) error {
	now := time.Now()
	wait := time.Duration(0)
	if d := c.notBefore.Sub(now); d > wait {
		wait = d
	}
	if d := c.lastCallAt.Add(c.minInterval).Sub(now); d > wait {
		wait = d
	}
	if wait <= 0 {
		return nil
	}
	t := time.NewTimer(wait)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// do executes one HTTP round trip with retry-on-429/5xx, exponential
// backoff capped at maxBackoff, and Retry-After honoring. step labels the
// call for error reporting and budget bookkeeping (e.g. "list_projects").
func (c *Client) do(ctx context.Context, step, method, path string, params url.Values, body io.Reader) (*http.Response, []byte, error) {
	if c.budget != nil {
		if !c.budget.RegisterCall() {
			return nil, nil, &Error{Kind: KindRateLimited, Step: step, Err: fmt.Errorf("api call budget exhausted")}
		}
	}

	full := c.baseURL + path
	if len(params) > 0 {
		full += "?" + params.Encode()
	}

	var lastErr error
	backoff := time.Second

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			c.stats.recordRetry()
		}
		if err := c.waitForSlot(ctx); err != nil {
			return nil, nil, err
		}

		req, err := http.NewRequestWithContext(ctx, method, full, body)
		if err != nil {
			return nil, nil, newTransportError(step, err)
		}
		c.authHeader(req)
		req.Header.Set("Content-Type", "application/json")

		c.stats.recordAttempt()
		c.lastCallAt = time.Now()
		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = newTransportError(step, err)
			c.stats.recordFailure()
			if !sleepBackoff(ctx, &backoff) {
				return nil, nil, lastErr
			}
			continue
		}

		data, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			lastErr = newTransportError(step, readErr)
			c.stats.recordFailure()
			if !sleepBackoff(ctx, &backoff) {
				return nil, nil, lastErr
			}
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			lastErr = newStatusError(step, resp.StatusCode, RedactMessage(string(data)))
			c.stats.recordFailure()
			if ra := resp.Header.Get("Retry-After"); ra != "" {
				if secs, perr := strconv.Atoi(ra); perr == nil {
					c.notBefore = time.Now().Add(time.Duration(secs) * time.Second)
				}
			}
			if !sleepBackoff(ctx, &backoff) {
				return nil, nil, lastErr
			}
			continue
		}

		if resp.StatusCode >= 400 {
			c.stats.recordFailure()
			return resp, data, newStatusError(step, resp.StatusCode, RedactMessage(string(data)))
		}

		c.stats.recordSuccess()
		return resp, data, nil
	}

	return nil, nil, lastErr
}

// sleepBackoff waits `*backoff` (doubling it, capped at maxBackoff)
// observing ctx cancellation, and reports whether the caller should retry.
func sleepBackoff(ctx context.Context, backoff *time.Duration) bool {
	t := time.NewTimer(*backoff)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
		return false
	}
	*backoff *= 2
	if *backoff > maxBackoff {
		*backoff = maxBackoff
	}
	return true
}

// Get performs a single GET and unmarshals the JSON body into out.
func (c *Client) Get(ctx context.Context, step, path string, params url.Values, out any) (*http.Response, error) {
	resp, data, err := c.do(ctx, step, http.MethodGet, path, params, nil)
	if err != nil {
		return resp, err
	}
	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return resp, newTransportError(step, fmt.Errorf("decode response: %w", err))
		}
	}
	return resp, nil
}

// Post performs a single POST/PUT-style call with a JSON-encoded payload.
func (c *Client) Post(ctx context.Context, step, method, path string, payload any, out any) (*http.Response, error) {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, newTransportError(step, err)
		}
		body = bytes.NewReader(raw)
	}
	resp, data, err := c.do(ctx, step, method, path, nil, body)
	if err != nil {
		return resp, err
	}
	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return resp, newTransportError(step, fmt.Errorf("decode response: %w", err))
		}
	}
	return resp, nil
}

// Paginate walks a GitLab-style X-Next-Page'd listing, invoking pageFn once
// per page with the raw JSON array body. It stops when X-Next-Page is
// absent/empty or maxItems is reached (0 means unbounded).
func (c *Client) Paginate(ctx context.Context, step, path string, params url.Values, perPage, maxItems int, pageFn func(raw json.RawMessage) (int, error)) error {
	if params == nil {
		params = url.Values{}
	}
	if perPage <= 0 {
		perPage = 100
	}
	params.Set("per_page", strconv.Itoa(perPage))
	page := "1"
	seen := 0

	for page != "" {
		pageParams := cloneValues(params)
		pageParams.Set("page", page)

		resp, data, err := c.do(ctx, step, http.MethodGet, path, pageParams, nil)
		if err != nil {
			return err
		}
		n, err := pageFn(json.RawMessage(data))
		if err != nil {
			return err
		}
		seen += n
		if maxItems > 0 && seen >= maxItems {
			return nil
		}
		page = resp.Header.Get("X-Next-Page")
	}
	return nil
}

// PaginatedCount returns the total item count for a listing using GitLab's
// X-Total header when present, falling back to a per_page=1 probe and,
// failing that, a bounded 1000-item walk reported as a ceiling count (the
// "light mode" counting rule: report ">N" rather than enumerate forever).
func (c *Client) PaginatedCount(ctx context.Context, step, path string, params url.Values) (total int, isCeiling bool, err error) {
	if params == nil {
		params = url.Values{}
	}
	probe := cloneValues(params)
	probe.Set("per_page", "1")
	probe.Set("page", "1")

	resp, _, err := c.do(ctx, step, http.MethodGet, path, probe, nil)
	if err != nil {
		return 0, false, err
	}
	if h := resp.Header.Get("X-Total"); h != "" {
		if n, perr := strconv.Atoi(h); perr == nil {
			return n, false, nil
		}
	}

	const ceiling = 1000
	counted := 0
	walkErr := c.Paginate(ctx, step, path, params, 100, ceiling, func(raw json.RawMessage) (int, error) {
		var arr []json.RawMessage
		if err := json.Unmarshal(raw, &arr); err != nil {
			return 0, err
		}
		counted += len(arr)
		return len(arr), nil
	})
	if walkErr != nil {
		return 0, false, walkErr
	}
	if counted >= ceiling {
		return ceiling, true, nil
	}
	return counted, false, nil
}

func cloneValues(v url.Values) url.Values {
	out := make(url.Values, len(v))
	for k, vs := range v {
		cp := make([]string, len(vs))
		copy(cp, vs)
		out[k] = cp
	}
	return out
}
