package fetch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"strconv"
	"time"
)

// Kind classifies a terminal fetch outcome.
type Kind string

const (
	KindRateLimited Kind = "rate_limited" // 429 after exhausting retries
	KindServerError Kind = "server_error" // 5xx after exhausting retries
	KindTransport   Kind = "transport"    // connection reset, timeout, DNS
	KindPermanent   Kind = "permanent"    // 4xx other than 429, malformed payload
)

// Failure is the terminal outcome of a fetch that did not succeed.
// Retry decisions are fully owned by the Client; callers only ever see this.
type Failure struct {
	Kind     Kind
	Attempts int
	Err      error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("fetch failed (%s) after %d attempt(s): %v", f.Kind, f.Attempts, f.Err)
}

func (f *Failure) Unwrap() error { return f.Err }

// Retryable reports whether the failure kind would have been retried
// had attempts remained.
func (f *Failure) Retryable() bool { return f.Kind != KindPermanent }

// RetryPolicy bounds the retry loop.
type RetryPolicy struct {
	MaxAttempts int           // total attempts including the first
	BaseDelay   time.Duration // first backoff step
	MaxDelay    time.Duration // backoff cap
}

// DefaultRetryPolicy mirrors the upstream API's observed tolerance:
// 5 attempts, 500ms doubling up to 10s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 5, BaseDelay: 500 * time.Millisecond, MaxDelay: 10 * time.Second}
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	d := DefaultRetryPolicy()
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = d.MaxAttempts
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = d.BaseDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = d.MaxDelay
	}
	return p
}

// Client wraps an *http.Client with bounded exponential backoff and jitter.
// It retries 429, all 5xx and transport-level errors; any other 4xx is
// treated as permanent. A server-supplied Retry-After (seconds) overrides
// the computed backoff. Safe for concurrent use; each in-flight request
// backs off independently.
type Client struct {
	HTTP      *http.Client
	Policy    RetryPolicy
	UserAgent string
	Logger    *slog.Logger
}

// NewClient creates a Client with the given policy and a 60s request timeout.
func NewClient(policy RetryPolicy) *Client {
	return &Client{
		HTTP:      &http.Client{Timeout: 60 * time.Second},
		Policy:    policy.withDefaults(),
		UserAgent: "quranstore/1.0 (+https://api.quran.com)",
	}
}

// Get fetches url and returns the response body. On terminal failure the
// returned error is a *Failure carrying the kind and attempt count.
func (c *Client) Get(ctx context.Context, url string) ([]byte, error) {
	policy := c.Policy.withDefaults()

	var lastErr error
	var lastKind Kind

	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		body, retryAfter, kind, err := c.once(ctx, url)
		if err == nil {
			return body, nil
		}
		lastErr = err
		lastKind = kind

		if kind == KindPermanent {
			return nil, &Failure{Kind: kind, Attempts: attempt, Err: err}
		}
		if attempt == policy.MaxAttempts {
			break
		}

		delay := backoff(policy, attempt)
		if retryAfter > 0 {
			delay = retryAfter
		}
		if c.Logger != nil {
			c.Logger.Debug("retrying fetch",
				"url", url, "attempt", attempt, "kind", string(kind), "delay", delay)
		}
		if err := sleepCtx(ctx, delay); err != nil {
			return nil, &Failure{Kind: KindTransport, Attempts: attempt, Err: err}
		}
	}

	return nil, &Failure{Kind: lastKind, Attempts: policy.MaxAttempts, Err: lastErr}
}

// once performs a single request and classifies the result.
func (c *Client) once(ctx context.Context, url string) (body []byte, retryAfter time.Duration, kind Kind, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, KindPermanent, err
	}
	if c.UserAgent != "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}

	httpc := c.HTTP
	if httpc == nil {
		httpc = http.DefaultClient
	}
	resp, err := httpc.Do(req)
	if err != nil {
		return nil, 0, KindTransport, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		b, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, 0, KindTransport, fmt.Errorf("read body: %w", err)
		}
		return b, 0, "", nil
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, parseRetryAfter(resp.Header.Get("Retry-After")), KindRateLimited,
			fmt.Errorf("status %s", resp.Status)
	case resp.StatusCode >= 500:
		return nil, parseRetryAfter(resp.Header.Get("Retry-After")), KindServerError,
			fmt.Errorf("status %s", resp.Status)
	default:
		// 4xx other than 429: malformed request or missing resource.
		return nil, 0, KindPermanent, fmt.Errorf("status %s", resp.Status)
	}
}

// backoff computes the exponential delay for the given 1-based attempt,
// capped at MaxDelay, with jitter in the upper half of the window.
func backoff(p RetryPolicy, attempt int) time.Duration {
	d := p.BaseDelay << (attempt - 1)
	if d > p.MaxDelay || d <= 0 {
		d = p.MaxDelay
	}
	half := d / 2
	return half + rand.N(half+1)
}

func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
