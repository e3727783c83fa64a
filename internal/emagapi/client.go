// Package emagapi is the authenticated REST client for the eMAG marketplace
// API (spec §4.2, component C2). One Client is constructed per seller
// account; it wraps every call with rate limiting, exponential backoff with
// jitter, a per-account circuit breaker, and envelope error classification.
package emagapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/emagerp/synccore/internal/emagerr"
	"github.com/emagerp/synccore/internal/ratelimit"
)

// Account identifies which credentials/base URL this client speaks with.
type Account struct {
	Name    string
	BaseURL string
	APIUser string
	APIKey  string
}

// Config bounds the client's retry/timeout/breaker behavior (spec §4.2).
type Config struct {
	ConnectTimeout   time.Duration
	TotalTimeout     time.Duration
	MaxAttempts      int
	BackoffBase      time.Duration
	RetryBudget      time.Duration
	FailureThreshold int
	OpenDuration     time.Duration
}

// Client is the per-account API handle.
type Client struct {
	account Account
	cfg     Config
	http    *http.Client
	limiter *ratelimit.Limiter
	breaker *breaker

	now   func() time.Time
	sleep func(time.Duration)
	rng   *rand.Rand
}

// Option customizes a Client, mainly for deterministic tests.
type Option func(*Client)

func WithClock(now func() time.Time) Option { return func(c *Client) { c.now = now } }
func WithSleep(sleep func(time.Duration)) Option {
	return func(c *Client) { c.sleep = sleep }
}
func WithRNG(rng *rand.Rand) Option { return func(c *Client) { c.rng = rng } }
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// New builds a Client for one seller account, sharing limiter across every
// client constructed against the same process (spec §4.1 "one limiter
// instance per process, shared across every account and task").
func New(account Account, cfg Config, limiter *ratelimit.Limiter, opts ...Option) *Client {
	c := &Client{
		account: account,
		cfg:     cfg,
		limiter: limiter,
		now:     time.Now,
		sleep:   time.Sleep,
		rng:     rand.New(rand.NewSource(1)),
		http: &http.Client{
			Timeout: cfg.TotalTimeout,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	c.breaker = newBreaker(cfg.FailureThreshold, cfg.OpenDuration, c.now)
	return c
}

// paginationInfo mirrors the envelope's pagination block verbatim (spec
// §6.1: `"pagination": {"total": N, "page": P, "itemsPerPage": I}`).
type paginationInfo struct {
	Total        int `json:"total"`
	CurrentPage  int `json:"page"`
	ItemsPerPage int `json:"itemsPerPage"`
}

// Page is the decoded pagination block eMAG attaches to list endpoints.
type Page struct {
	TotalItems   int
	CurrentPage  int
	ItemsPerPage int
}

// Call performs one rate-limited, retried, circuit-broken request against
// endpoint, with the given rate-limit class, sending body (if
// non-nil) as the JSON payload, and decodes the "results" array into out.
func (c *Client) Call(ctx context.Context, class ratelimit.Class, method, endpoint string, body interface{}, out interface{}) (*Page, error) {
	if !c.breaker.Allow() {
		return nil, emagerr.New(emagerr.KindCircuitOpen, fmt.Sprintf("circuit open for account %s", c.account.Name))
	}

	budgetDeadline := c.now().Add(c.cfg.RetryBudget)
	var lastErr error

	for attempt := 1; attempt <= c.cfg.MaxAttempts; attempt++ {
		if err := c.limiter.Acquire(ctx, class); err != nil {
			return nil, emagerr.Wrap(emagerr.KindCancelled, "rate limiter wait cancelled", err)
		}

		page, retryAfter, err := c.do(ctx, method, endpoint, body, out)
		if err == nil {
			c.breaker.RecordSuccess()
			return page, nil
		}
		lastErr = err

		kind, _ := emagerr.KindOf(err)
		if !kind.Retryable() {
			c.breaker.RecordFailure()
			return nil, err
		}

		if attempt == c.cfg.MaxAttempts || c.now().After(budgetDeadline) {
			c.breaker.RecordFailure()
			break
		}

		wait := retryAfter
		if wait <= 0 {
			backoff := c.cfg.BackoffBase * time.Duration(1<<(attempt-1))
			jitter := time.Duration(c.rng.Float64() * float64(backoff) * 0.25)
			wait = backoff + jitter
		}

		log.Warn().
			Str("account", c.account.Name).
			Str("endpoint", endpoint).
			Int("attempt", attempt).
			Dur("backoff", wait).
			Err(err).
			Msg("emagapi: retrying after transient failure")

		select {
		case <-ctx.Done():
			return nil, emagerr.Wrap(emagerr.KindCancelled, "context cancelled during backoff", ctx.Err())
		default:
		}
		c.sleep(wait)
	}

	return nil, lastErr
}

// do performs one HTTP attempt, returning the decoded page info and the
// server-requested retry delay, if any (spec §4.2 "honor Retry-After when
// the remote sends one, in preference to the jittered backoff schedule").
func (c *Client) do(ctx context.Context, method, endpoint string, body interface{}, out interface{}) (*Page, time.Duration, error) {
	var reqBody io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, 0, emagerr.Wrap(emagerr.KindClient, "marshal request body", err)
		}
		reqBody = bytes.NewReader(b)
	}

	url := c.account.BaseURL + endpoint
	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return nil, 0, emagerr.Wrap(emagerr.KindClient, "build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(c.account.APIUser, c.account.APIKey)

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, 0, emagerr.Wrap(emagerr.KindTimeout, "request timed out", err)
		}
		return nil, 0, emagerr.Wrap(emagerr.KindNetwork, "request failed", err)
	}
	defer resp.Body.Close()

	retryAfter := parseRetryAfter(resp.Header.Get("Retry-After"), c.now())

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, retryAfter, emagerr.Wrap(emagerr.KindNetwork, "read response body", err)
	}

	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return nil, retryAfter, emagerr.New(emagerr.KindAuth, fmt.Sprintf("auth rejected: %d", resp.StatusCode))
	case http.StatusTooManyRequests:
		return nil, retryAfter, emagerr.New(emagerr.KindRateLimited, "remote rate limit hit")
	}
	if resp.StatusCode >= 500 {
		return nil, retryAfter, emagerr.New(emagerr.KindNetwork, fmt.Sprintf("server error: %d", resp.StatusCode))
	}

	var env struct {
		IsError  bool            `json:"isError"`
		Messages []string        `json:"messages"`
		Results  json.RawMessage `json:"results"`
		Pagination *paginationInfo `json:"pagination"`
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, retryAfter, emagerr.Wrap(emagerr.KindClient, "decode envelope", err)
	}
	if env.IsError {
		msg := "remote validation error"
		if len(env.Messages) > 0 {
			msg = env.Messages[0]
		}
		return nil, retryAfter, emagerr.New(emagerr.KindRemoteValidation, msg)
	}

	if out != nil && len(env.Results) > 0 {
		if err := json.Unmarshal(env.Results, out); err != nil {
			return nil, retryAfter, emagerr.Wrap(emagerr.KindClient, "decode results", err)
		}
	}

	var page *Page
	if env.Pagination != nil {
		page = &Page{
			TotalItems:   env.Pagination.Total,
			CurrentPage:  env.Pagination.CurrentPage,
			ItemsPerPage: env.Pagination.ItemsPerPage,
		}
	}
	return page, retryAfter, nil
}

// parseRetryAfter decodes an HTTP Retry-After header, which is either a
// delay in seconds or an HTTP-date, returning 0 when absent or unparseable.
func parseRetryAfter(header string, now time.Time) time.Duration {
	if header == "" {
		return 0
	}
	if secs, err := strconv.Atoi(header); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if when, err := http.ParseTime(header); err == nil {
		if d := when.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}
