package caselaw

import (
	"encoding/json"
	"fmt"
	"html"
	"math"
	"regexp"
	"strconv"
	"strings"

	"legal-researcher/internal/helper"
	"legal-researcher/internal/models"
	"legal-researcher/internal/parser"

	"github.com/rs/zerolog/log"
)

const docURLFormat = "https://indiankanoon.org/doc/%s/"

var tagRegex = regexp.MustCompile(`<[^>]*>`)

// known keys are lifted into hit fields; everything else lands in Metadata.
var knownKeys = map[string]bool{
	"source":   true,
	"title":    true,
	"citation": true,
	"year":     true,
	"snippet":  true,
	"headline": true,
	"link":     true,
	"doc_url":  true,
	"url":      true,
	"score":    true,
	"metadata": true,
}

// ParseHits decodes a hit list response. The body may be a JSON array or an
// object carrying the array under "results", "docs" or "organic". Elements that are not
// objects, lack a title, or carry a wrongly typed field are dropped and
// counted; the remaining hits keep their response order.
func ParseHits(data []byte, defaultSource string) ([]models.RetrievalHit, int, error) {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, 0, fmt.Errorf("%w: %v", models.ErrMalformedResponse, err)
	}
	var items []any
	switch v := raw.(type) {
	case []any:
		items = v
	case map[string]any:
		var list []any
		ok := false
		for _, key := range []string{"results", "docs", "organic"} {
			if list, ok = v[key].([]any); ok {
				break
			}
		}
		if !ok {
			if msg, isErr := v["error"].(string); isErr {
				return nil, 0, fmt.Errorf("%w: service error: %s", models.ErrMalformedResponse, msg)
			}
			return nil, 0, fmt.Errorf("%w: object has no results list", models.ErrMalformedResponse)
		}
		items = list
	default:
		return nil, 0, fmt.Errorf("%w: expected a list, got %T", models.ErrMalformedResponse, raw)
	}

	hits := make([]models.RetrievalHit, 0, len(items))
	dropped := 0
	for i, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			dropped++
			continue
		}
		hit, err := normalizeHit(obj, defaultSource)
		if err != nil {
			log.Debug().Err(err).Int("element", i).Msg("dropping malformed hit")
			dropped++
			continue
		}
		hits = append(hits, hit)
	}
	return hits, dropped, nil
}

// ParseHitsText finds the hit list inside free model text, accepting a fenced
// or bare JSON array or object.
func ParseHitsText(text, defaultSource string) ([]models.RetrievalHit, int, error) {
	text = helper.StripThinking(text)
	candidate := helper.ExtractJSON(text, '[')
	if candidate == "" {
		candidate = helper.ExtractJSON(text, '{')
	}
	if candidate == "" {
		return nil, 0, fmt.Errorf("%w: no JSON list in answer", models.ErrMalformedResponse)
	}
	return ParseHits([]byte(candidate), defaultSource)
}

func normalizeHit(obj map[string]any, defaultSource string) (models.RetrievalHit, error) {
	hit := models.RetrievalHit{Source: defaultSource}

	title, err := optString(obj, "title")
	if err != nil {
		return hit, err
	}
	if title == nil || strings.TrimSpace(cleanMarkup(*title)) == "" {
		return hit, fmt.Errorf("missing title")
	}
	hit.Title = strings.TrimSpace(cleanMarkup(*title))

	if src, err := optString(obj, "source"); err != nil {
		return hit, err
	} else if src != nil && strings.TrimSpace(*src) != "" {
		hit.Source = strings.TrimSpace(*src)
	}

	if hit.Citation, err = optString(obj, "citation"); err != nil {
		return hit, err
	}
	if hit.Year, err = optYear(obj); err != nil {
		return hit, err
	}
	if hit.Snippet, err = firstString(obj, "snippet", "headline"); err != nil {
		return hit, err
	}
	if hit.Snippet != nil {
		s := strings.TrimSpace(cleanMarkup(*hit.Snippet))
		hit.Snippet = &s
	}
	if hit.URL, err = firstString(obj, "link", "doc_url", "url"); err != nil {
		return hit, err
	}
	if hit.URL == nil {
		if tid := docID(obj["tid"]); tid != "" {
			hit.URL = models.StringPtr(fmt.Sprintf(docURLFormat, tid))
		}
	}
	if hit.Score, err = optNumber(obj, "score"); err != nil {
		return hit, err
	}

	for k, v := range obj {
		if knownKeys[k] || v == nil {
			continue
		}
		if hit.Metadata == nil {
			hit.Metadata = map[string]any{}
		}
		hit.Metadata[k] = v
	}
	if nested, ok := obj["metadata"].(map[string]any); ok {
		if hit.Metadata == nil {
			hit.Metadata = map[string]any{}
		}
		for k, v := range nested {
			if _, taken := hit.Metadata[k]; !taken {
				hit.Metadata[k] = v
			}
		}
	}

	return hit, hit.Validate()
}

func optString(obj map[string]any, key string) (*string, error) {
	v, ok := obj[key]
	if !ok || v == nil {
		return nil, nil
	}
	s, ok := v.(string)
	if !ok {
		return nil, fmt.Errorf("%s: expected string, got %T", key, v)
	}
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	return &s, nil
}

func firstString(obj map[string]any, keys ...string) (*string, error) {
	for _, k := range keys {
		s, err := optString(obj, k)
		if err != nil {
			return nil, err
		}
		if s != nil {
			return s, nil
		}
	}
	return nil, nil
}

func optNumber(obj map[string]any, key string) (*float64, error) {
	v, ok := obj[key]
	if !ok || v == nil {
		return nil, nil
	}
	f, ok := v.(float64)
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, fmt.Errorf("%s: expected number, got %T", key, v)
	}
	return &f, nil
}

const (
	minYear = 1000
	maxYear = 9999
)

// optYear reads "year" as an integer or a numeric string, falling back to the
// leading year of "publishdate". Years must have four digits.
func optYear(obj map[string]any) (*int, error) {
	switch v := obj["year"].(type) {
	case nil:
	case float64:
		if v != math.Trunc(v) {
			return nil, fmt.Errorf("year: not an integer: %v", v)
		}
		if v < minYear || v > maxYear {
			return nil, fmt.Errorf("year: out of range: %v", v)
		}
		return models.IntPtr(int(v)), nil
	case string:
		if strings.TrimSpace(v) == "" {
			break
		}
		y := parser.ParseYear(v)
		if y == nil {
			return nil, fmt.Errorf("year: unparseable %q", v)
		}
		return y, nil
	default:
		return nil, fmt.Errorf("year: expected number, got %T", v)
	}
	if date, ok := obj["publishdate"].(string); ok {
		return parser.ParseYear(date), nil
	}
	return nil, nil
}

func docID(v any) string {
	switch id := v.(type) {
	case float64:
		if id > 0 && id == math.Trunc(id) {
			return strconv.FormatInt(int64(id), 10)
		}
	case string:
		return strings.TrimSpace(id)
	}
	return ""
}

// cleanMarkup removes the highlight tags search services put in titles and
// headlines.
func cleanMarkup(s string) string {
	return html.UnescapeString(tagRegex.ReplaceAllString(s, ""))
}
