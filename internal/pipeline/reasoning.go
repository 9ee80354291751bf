package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"legal-researcher/internal/helper"
	"legal-researcher/internal/llmservice"
	"legal-researcher/internal/models"

	"github.com/rs/zerolog/log"
)

type reasoningPayload struct {
	Entities   *models.EntityExtraction `json:"entities"`
	Retrievals *models.RetrievalBundle  `json:"retrievals"`
}

// Reason asks for an analysis of the entities against the retrieved hits.
// Only model transport failures are errors; the analysis is always the raw
// reply.
func (p *Pipeline) Reason(ctx context.Context, entities *models.EntityExtraction, bundle *models.RetrievalBundle) (*models.ReasoningOutput, error) {
	payload, err := json.MarshalIndent(reasoningPayload{Entities: entities, Retrievals: bundle}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode reasoning payload: %w", err)
	}
	agent := llmservice.NewAgent(p.llm, models.LegalReasonerPersona, p.iterations.Reasoning)
	res, err := agent.Run(ctx, fmt.Sprintf(models.ReasoningTaskTemplate, payload))
	if err != nil {
		return nil, err
	}
	out := ParseReasoning(res.Answer)
	log.Debug().Int("principles", len(out.Principles)).Int("interpretations", len(out.LikelyInterpretations)).Msg("reasoning parsed")
	return out, nil
}

// ParseReasoning keeps reply as the analysis and recovers the principles and
// likely interpretations from the first JSON object that carries either key.
// A missing or malformed block leaves both lists empty.
func ParseReasoning(reply string) *models.ReasoningOutput {
	out := &models.ReasoningOutput{
		Analysis:              reply,
		Principles:            []string{},
		LikelyInterpretations: []string{},
	}
	rest := reply
	for {
		block := helper.ExtractJSON(rest, '{')
		if block == "" {
			return out
		}
		var raw map[string]json.RawMessage
		if err := json.Unmarshal([]byte(block), &raw); err == nil {
			_, hasP := raw["principles"]
			_, hasI := raw["likely_interpretations"]
			if hasP || hasI {
				var lists struct {
					Principles            []string `json:"principles"`
					LikelyInterpretations []string `json:"likely_interpretations"`
				}
				if err := json.Unmarshal([]byte(block), &lists); err != nil {
					log.Debug().Err(err).Msg("reasoning block is malformed")
					return out
				}
				out.Principles = nonEmpty(lists.Principles)
				out.LikelyInterpretations = nonEmpty(lists.LikelyInterpretations)
				return out
			}
		}
		i := strings.Index(rest, block)
		if i < 0 {
			return out
		}
		rest = rest[i+len(block):]
	}
}

func nonEmpty(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
