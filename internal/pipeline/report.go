package pipeline

import (
	"context"
	"encoding/json"
	"fmt"

	"legal-researcher/internal/helper"
	"legal-researcher/internal/llmservice"
	"legal-researcher/internal/models"
)

type reportPayload struct {
	CaseID     string                   `json:"case_id"`
	Entities   *models.EntityExtraction `json:"entities"`
	Retrievals *models.RetrievalBundle  `json:"retrievals"`
	Reasoning  *models.ReasoningOutput  `json:"reasoning"`
}

// Compose asks for the markdown report. The reply is returned as-is apart
// from an enclosing code fence.
func (p *Pipeline) Compose(ctx context.Context, caseID string, entities *models.EntityExtraction, bundle *models.RetrievalBundle, reasoning *models.ReasoningOutput) (string, error) {
	payload, err := json.MarshalIndent(reportPayload{
		CaseID:     caseID,
		Entities:   entities,
		Retrievals: bundle,
		Reasoning:  reasoning,
	}, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode report payload: %w", err)
	}
	agent := llmservice.NewAgent(p.llm, models.ReportWriterPersona, p.iterations.Report)
	res, err := agent.Run(ctx, fmt.Sprintf(models.ReportTaskTemplate, caseID, payload))
	if err != nil {
		return "", err
	}
	return helper.StripCodeFence(res.Answer), nil
}
