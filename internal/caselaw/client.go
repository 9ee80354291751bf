package caselaw

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"legal-researcher/internal/cache"
	"legal-researcher/internal/config"
	"legal-researcher/internal/helper"
	"legal-researcher/internal/models"

	"github.com/cespare/xxhash/v2"
	"github.com/rs/zerolog/log"
)

const maxBodyBytes = 4 << 20

// StatusError is a non-2xx answer from a search service.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("search returned HTTP %d: %s", e.Code, e.Body)
}

// Client queries an Indian Kanoon compatible search endpoint for precedents.
type Client struct {
	baseURL    string
	apiKey     string
	scheme     string
	maxResults int
	timeout    time.Duration
	maxRetries int
	retryWait  time.Duration
	http       *http.Client
	cache      cache.Cache
}

func NewClient(cfg config.Config, c cache.Cache) *Client {
	if c == nil {
		c = cache.Noop{}
	}
	scheme := cfg.CaseLaw.AuthScheme
	if scheme == "" {
		scheme = "Bearer"
	}
	return &Client{
		baseURL:    cfg.CaseLaw.BaseURL,
		apiKey:     cfg.CaseLaw.APIKey,
		scheme:     scheme,
		maxResults: cfg.CaseLaw.MaxResults,
		timeout:    cfg.CaseLaw.Timeout,
		maxRetries: cfg.Pipeline.MaxRetries,
		retryWait:  cfg.Pipeline.RetryInterval,
		http:       &http.Client{},
		cache:      c,
	}
}

// Enabled reports whether a credential is configured.
func (c *Client) Enabled() bool {
	return c.apiKey != ""
}

// Search returns precedents for query. maxResults <= 0 uses the configured
// default. Elements of the response that fail validation are dropped.
func (c *Client) Search(ctx context.Context, query string, maxResults int) ([]models.RetrievalHit, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("%w: INDIAN_KANOON_API_KEY is not set", models.ErrMissingCredential)
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("%w: empty query", models.ErrInvalidQuery)
	}
	if maxResults <= 0 {
		maxResults = c.maxResults
	}

	key := cacheKey(query, maxResults)
	body, err := c.cache.Get(ctx, key)
	fromCache := err == nil
	if err != nil && !errors.Is(err, cache.ErrMiss) {
		log.Warn().Err(err).Msg("case-law cache unavailable")
	}
	if !fromCache {
		if body, err = c.fetch(ctx, query, maxResults); err != nil {
			return nil, err
		}
	}

	hits, dropped, err := ParseHits(body, models.SourceIndianKanoon)
	if err != nil {
		return nil, err
	}
	if len(hits) > maxResults {
		hits = hits[:maxResults]
	}
	if !fromCache {
		if err := c.cache.Set(ctx, key, body); err != nil {
			log.Warn().Err(err).Msg("failed to cache case-law response")
		}
	}
	log.Debug().Str("query", query).Int("hits", len(hits)).Int("dropped", dropped).Bool("cached", fromCache).Msg("precedent search")
	return hits, nil
}

func (c *Client) fetch(ctx context.Context, query string, maxResults int) ([]byte, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid case-law base url: %w", err)
	}
	params := u.Query()
	params.Set("formInput", query)
	params.Set("maxresults", strconv.Itoa(maxResults))
	u.RawQuery = params.Encode()
	endpoint := u.String()

	return send(ctx, c.http, "caselaw", c.maxRetries, c.retryWait, c.timeout, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", c.scheme+" "+c.apiKey)
		req.Header.Set("Accept", "application/json")
		return req, nil
	})
}

// send performs the request built by newReq with retries. 429 and 5xx
// answers are retried, other non-2xx answers are not. Exhausted retries map
// to models.ErrTimeout or models.ErrUnavailable.
func send(ctx context.Context, client *http.Client, name string, maxRetries int, wait, timeout time.Duration, newReq func(context.Context) (*http.Request, error)) ([]byte, error) {
	var body []byte
	err := helper.Retry(ctx, name, maxRetries, wait, timeout, func(ctx context.Context) error {
		req, err := newReq(ctx)
		if err != nil {
			return helper.Permanent(err)
		}
		resp, err := client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		if err != nil {
			return err
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			statusErr := &StatusError{Code: resp.StatusCode, Body: snippet(data)}
			if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
				return statusErr
			}
			return helper.Permanent(statusErr)
		}
		body = data
		return nil
	})
	switch {
	case err == nil:
		return body, nil
	case errors.Is(err, context.Canceled):
		return nil, err
	case errors.Is(err, context.DeadlineExceeded):
		return nil, fmt.Errorf("%w: %s: %v", models.ErrTimeout, name, err)
	default:
		return nil, fmt.Errorf("%w: %w", models.ErrUnavailable, err)
	}
}

func cacheKey(query string, maxResults int) string {
	return fmt.Sprintf("caselaw:%d:%016x", maxResults, xxhash.Sum64String(strings.ToLower(query)))
}

func snippet(data []byte) string {
	s, _ := helper.TruncateRunes(strings.TrimSpace(string(data)), 200)
	return s
}
