package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"legal-researcher/internal/helper"
	"legal-researcher/internal/llmservice"
	"legal-researcher/internal/models"
	"legal-researcher/internal/parser"

	"github.com/rs/zerolog/log"
)

// Extract asks the model for parties, case type and issues and validates the
// reply strictly. A reply that is not the expected JSON object fails with
// models.ErrExtractionParse.
func (p *Pipeline) Extract(ctx context.Context, in models.CaseInput) (*models.EntityExtraction, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	text, truncated := helper.TruncateRunes(strings.TrimSpace(in.Text), p.textLimit)
	if truncated {
		log.Warn().Str("case_id", in.CaseID).Int("limit", p.textLimit).Msg("case text truncated for extraction")
	}

	prompt := fmt.Sprintf(models.ExtractionTaskTemplate, orUnspecified(in.Jurisdiction), extractionHints(in.Hints, text), text)

	agent := llmservice.NewAgent(p.llm, models.EntityExtractorPersona, p.iterations.Extraction)
	res, err := agent.Run(ctx, prompt)
	if err != nil {
		return nil, err
	}
	entities, err := ParseExtraction(res.Answer)
	if err != nil {
		log.Debug().Str("case_id", in.CaseID).Str("reply", res.Answer).Msg("unparseable extraction")
		return nil, err
	}
	return entities, nil
}

// extractionHints joins the caller's hints with the dates and money amounts
// found in the case text.
func extractionHints(hints []string, text string) string {
	parts := append([]string(nil), hints...)
	if dates := parser.Dates(text); len(dates) > 0 {
		parts = append(parts, "dates mentioned: "+strings.Join(dates, "; "))
	}
	if amounts := parser.Amounts(text); len(amounts) > 0 {
		parts = append(parts, "amounts mentioned: "+strings.Join(amounts, "; "))
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, ", ")
}

// ParseExtraction decodes an extraction reply. The reply must be a single
// JSON object, optionally inside a code fence. parties and issues must be
// arrays of strings; case_type may be a string, null or absent.
func ParseExtraction(reply string) (*models.EntityExtraction, error) {
	body := helper.StripCodeFence(reply)

	var raw map[string]json.RawMessage
	if err := json.Unmarshal([]byte(body), &raw); err != nil {
		return nil, fmt.Errorf("%w: reply is not a JSON object: %v", models.ErrExtractionParse, err)
	}

	parties, err := stringList(raw, "parties")
	if err != nil {
		return nil, err
	}
	issues, err := stringList(raw, "issues")
	if err != nil {
		return nil, err
	}

	out := &models.EntityExtraction{Parties: parties, Issues: issues}
	if v, ok := raw["case_type"]; ok && !isNull(v) {
		var caseType string
		if err := json.Unmarshal(v, &caseType); err != nil {
			return nil, fmt.Errorf("%w: case_type must be a string or null", models.ErrExtractionParse)
		}
		if caseType = strings.TrimSpace(caseType); caseType != "" {
			out.CaseType = &caseType
		}
	}
	return out, nil
}

func stringList(raw map[string]json.RawMessage, key string) ([]string, error) {
	v, ok := raw[key]
	if !ok || isNull(v) {
		return nil, fmt.Errorf("%w: %s is missing", models.ErrExtractionParse, key)
	}
	var list []string
	if err := json.Unmarshal(v, &list); err != nil {
		return nil, fmt.Errorf("%w: %s must be an array of strings", models.ErrExtractionParse, key)
	}
	out := make([]string, 0, len(list))
	for _, s := range list {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out, nil
}

func isNull(v json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(v), []byte("null"))
}

func orUnspecified(s string) string {
	if s = strings.TrimSpace(s); s == "" {
		return "unspecified"
	}
	return s
}
