package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

const (
	SourceLocal        = "local"
	SourceIndianKanoon = "IndianKanoon"
	SourceWeb          = "web"
)

var validate = validator.New()

type CaseInput struct {
	CaseID       string   `json:"case_id" validate:"required"`
	Text         string   `json:"case_text" validate:"required"`
	Jurisdiction string   `json:"jurisdiction,omitempty"`
	Hints        []string `json:"hints,omitempty"`
}

func (c CaseInput) Validate() error {
	c.CaseID = strings.TrimSpace(c.CaseID)
	c.Text = strings.TrimSpace(c.Text)
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidCase, err)
	}
	return nil
}

// EntityExtraction is what the extraction stage recovers from the case text.
// CaseType is nil when the model did not commit to a label.
type EntityExtraction struct {
	Parties  []string `json:"parties"`
	CaseType *string  `json:"case_type"`
	Issues   []string `json:"issues"`
}

// RetrievalHit is the common shape for statute and precedent results.
// Optional fields stay nil when the source did not supply them.
type RetrievalHit struct {
	Source   string         `json:"source" validate:"required"`
	Title    string         `json:"title" validate:"required"`
	Citation *string        `json:"citation,omitempty"`
	Year     *int           `json:"year,omitempty"`
	Snippet  *string        `json:"snippet,omitempty"`
	URL      *string        `json:"url,omitempty"`
	Score    *float64       `json:"score,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

func (h RetrievalHit) Validate() error {
	h.Source = strings.TrimSpace(h.Source)
	h.Title = strings.TrimSpace(h.Title)
	return validate.Struct(h)
}

type RetrievalBundle struct {
	Statutes   []RetrievalHit `json:"statutes"`
	Precedents []RetrievalHit `json:"precedents"`
}

type ReasoningOutput struct {
	Analysis              string   `json:"analysis"`
	Principles            []string `json:"principles"`
	LikelyInterpretations []string `json:"likely_interpretations"`
}

// Report is the final aggregate of one case run. Recommendations and
// ExecutiveSummary are only filled when a caller requests them as fields;
// the composed markdown is kept as-is in Markdown.
type Report struct {
	CaseID           string           `json:"case_id"`
	RunID            string           `json:"run_id"`
	Entities         EntityExtraction `json:"entities"`
	Retrievals       RetrievalBundle  `json:"retrievals"`
	Reasoning        ReasoningOutput  `json:"reasoning"`
	Recommendations  []string         `json:"recommendations"`
	ExecutiveSummary string           `json:"executive_summary"`
	Markdown         string           `json:"report_markdown"`
	Notices          []string         `json:"notices,omitempty"`
	GeneratedAt      time.Time        `json:"generated_at"`
}

// CaseResult pairs a batch input with its outcome.
type CaseResult struct {
	CaseID string
	Report *Report
	Err    error
}

func StringPtr(s string) *string { return &s }

func IntPtr(i int) *int { return &i }

func Float64Ptr(f float64) *float64 { return &f }
