package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"legal-researcher/internal/glossary"
	"legal-researcher/internal/llmservice"
)

var (
	_ llmservice.Tool = (*ragTool)(nil)
	_ llmservice.Tool = (*caselawTool)(nil)
	_ llmservice.Tool = (*webSearchTool)(nil)
	_ llmservice.Tool = dictionaryTool{}
)

type searchInput struct {
	Query string `json:"query"`
	Limit int    `json:"limit"`
}

// decodeSearch accepts {"query": "...", "limit": n} or a bare JSON string.
func decodeSearch(input json.RawMessage) (searchInput, error) {
	var in searchInput
	var s string
	if err := json.Unmarshal(input, &s); err == nil {
		in.Query = s
	} else if err := json.Unmarshal(input, &in); err != nil {
		return in, fmt.Errorf("input must be {\"query\": \"...\"}: %w", err)
	}
	in.Query = strings.TrimSpace(in.Query)
	if in.Query == "" {
		return in, fmt.Errorf("query is required")
	}
	return in, nil
}

type ragTool struct {
	engine StatuteSearcher
	topK   int

	mu          sync.Mutex
	resourceErr error
}

func (t *ragTool) Name() string { return "rag_search" }

func (t *ragTool) Description() string {
	return `search the local statute corpus; input {"query": "<issue or section>", "limit": <optional count>}`
}

func (t *ragTool) Call(ctx context.Context, input json.RawMessage) (string, error) {
	in, err := decodeSearch(input)
	if err != nil {
		return "", err
	}
	limit := t.topK
	if in.Limit > 0 && in.Limit < limit {
		limit = in.Limit
	}
	hits, err := t.engine.Search(ctx, in.Query, limit)
	if err != nil {
		if isIndexProblem(err) {
			t.mu.Lock()
			t.resourceErr = err
			t.mu.Unlock()
		}
		return "", err
	}
	data, err := json.Marshal(hits)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// resourceError is the index problem seen by any call, if one occurred.
func (t *ragTool) resourceError() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.resourceErr
}

type caselawTool struct {
	client     PrecedentSearcher
	maxResults int
}

func (t *caselawTool) Name() string { return "caselaw_search" }

func (t *caselawTool) Description() string {
	return `search reported judgments; input {"query": "<legal issue>", "limit": <optional count>}`
}

func (t *caselawTool) Call(ctx context.Context, input json.RawMessage) (string, error) {
	in, err := decodeSearch(input)
	if err != nil {
		return "", err
	}
	limit := t.maxResults
	if in.Limit > 0 && in.Limit < limit {
		limit = in.Limit
	}
	hits, err := t.client.Search(ctx, in.Query, limit)
	if err != nil {
		return "", err
	}
	data, err := json.Marshal(hits)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

type webSearchTool struct {
	searcher   WebSearcher
	maxResults int
}

func (t *webSearchTool) Name() string { return "web_search" }

func (t *webSearchTool) Description() string {
	return `search the web for recent judgments, legal news and commentary; input {"query": "<search terms>", "limit": <optional count>}`
}

// Call answers with a notice instead of failing when no key is configured, so
// the researcher keeps working from its other tools.
func (t *webSearchTool) Call(ctx context.Context, input json.RawMessage) (string, error) {
	in, err := decodeSearch(input)
	if err != nil {
		return "", err
	}
	if t.searcher == nil || !t.searcher.Enabled() {
		return fmt.Sprintf("Web search is not configured (set SERPER_API_KEY). Search manually for %q.", in.Query), nil
	}
	limit := t.maxResults
	if in.Limit > 0 && (limit <= 0 || in.Limit < limit) {
		limit = in.Limit
	}
	hits, err := t.searcher.Search(ctx, in.Query, limit)
	if err != nil {
		return "", err
	}
	if len(hits) == 0 {
		return "No results found.", nil
	}
	data, err := json.Marshal(hits)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

type dictionaryTool struct{}

func (dictionaryTool) Name() string { return "legal_dictionary" }

func (dictionaryTool) Description() string {
	return `define a legal term or Latin maxim; input {"term": "<term>"}`
}

func (dictionaryTool) Call(_ context.Context, input json.RawMessage) (string, error) {
	var in struct {
		Term string `json:"term"`
	}
	if err := json.Unmarshal(input, &in.Term); err != nil {
		if err := json.Unmarshal(input, &in); err != nil {
			return "", fmt.Errorf("input must be {\"term\": \"...\"}: %w", err)
		}
	}
	entry, ok := glossary.Lookup(in.Term)
	if !ok {
		return fmt.Sprintf("No definition found for %q.", in.Term), nil
	}
	return fmt.Sprintf("%s: %s", entry.Term, entry.Definition), nil
}
