package caselaw

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"legal-researcher/internal/cache"
	"legal-researcher/internal/config"
	"legal-researcher/internal/models"

	"github.com/cespare/xxhash/v2"
	"github.com/rs/zerolog/log"
)

// WebSearch queries a Serper compatible endpoint for legal news, articles
// and recent judgments that the case-law service does not index.
type WebSearch struct {
	baseURL    string
	apiKey     string
	maxResults int
	timeout    time.Duration
	maxRetries int
	retryWait  time.Duration
	http       *http.Client
	cache      cache.Cache
}

func NewWebSearch(cfg config.Config, c cache.Cache) *WebSearch {
	if c == nil {
		c = cache.Noop{}
	}
	return &WebSearch{
		baseURL:    cfg.WebSearch.BaseURL,
		apiKey:     cfg.WebSearch.APIKey,
		maxResults: cfg.WebSearch.MaxResults,
		timeout:    cfg.WebSearch.Timeout,
		maxRetries: cfg.Pipeline.MaxRetries,
		retryWait:  cfg.Pipeline.RetryInterval,
		http:       &http.Client{},
		cache:      c,
	}
}

// Enabled reports whether an API key is configured.
func (w *WebSearch) Enabled() bool {
	return w.apiKey != ""
}

// Search returns organic web results for query, at most maxResults of them.
// maxResults <= 0 uses the configured default.
func (w *WebSearch) Search(ctx context.Context, query string, maxResults int) ([]models.RetrievalHit, error) {
	if !w.Enabled() {
		return nil, fmt.Errorf("%w: SERPER_API_KEY is not set", models.ErrMissingCredential)
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("%w: empty query", models.ErrInvalidQuery)
	}
	if maxResults <= 0 {
		maxResults = w.maxResults
	}

	key := fmt.Sprintf("web:%d:%016x", maxResults, xxhash.Sum64String(strings.ToLower(query)))
	body, err := w.cache.Get(ctx, key)
	fromCache := err == nil
	if err != nil && !errors.Is(err, cache.ErrMiss) {
		log.Warn().Err(err).Msg("web search cache unavailable")
	}
	if !fromCache {
		payload, err := json.Marshal(map[string]any{"q": query, "num": maxResults})
		if err != nil {
			return nil, err
		}
		body, err = send(ctx, w.http, "web_search", w.maxRetries, w.retryWait, w.timeout, func(ctx context.Context) (*http.Request, error) {
			req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.baseURL, bytes.NewReader(payload))
			if err != nil {
				return nil, err
			}
			req.Header.Set("X-API-KEY", w.apiKey)
			req.Header.Set("Content-Type", "application/json")
			return req, nil
		})
		if err != nil {
			return nil, err
		}
	}

	if !hasOrganic(body) {
		log.Debug().Str("query", query).Msg("web search found nothing")
		return []models.RetrievalHit{}, nil
	}
	hits, dropped, err := ParseHits(body, models.SourceWeb)
	if err != nil {
		return nil, err
	}
	if len(hits) > maxResults {
		hits = hits[:maxResults]
	}
	if !fromCache {
		if err := w.cache.Set(ctx, key, body); err != nil {
			log.Warn().Err(err).Msg("failed to cache web search response")
		}
	}
	log.Debug().Str("query", query).Int("hits", len(hits)).Int("dropped", dropped).Bool("cached", fromCache).Msg("web search")
	return hits, nil
}

// hasOrganic is false for a well formed answer that simply found nothing.
func hasOrganic(body []byte) bool {
	var env map[string]json.RawMessage
	if err := json.Unmarshal(body, &env); err != nil {
		return true
	}
	_, ok := env["organic"]
	return ok
}
