package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"legal-researcher/internal/config"
	"legal-researcher/internal/helper"
	"legal-researcher/internal/llmservice"
	"legal-researcher/internal/models"
	"legal-researcher/internal/parser"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// StatuteSearcher is the local retrieval engine.
type StatuteSearcher interface {
	Search(ctx context.Context, query string, topK int) ([]models.RetrievalHit, error)
}

// PrecedentSearcher is the external case-law service.
type PrecedentSearcher interface {
	Enabled() bool
	Search(ctx context.Context, query string, maxResults int) ([]models.RetrievalHit, error)
}

// WebSearcher is the general web search service.
type WebSearcher interface {
	Enabled() bool
	Search(ctx context.Context, query string, maxResults int) ([]models.RetrievalHit, error)
}

// Option adjusts a Pipeline built by New.
type Option func(*Pipeline)

// WithWebSearch gives the precedent researcher a web_search tool.
func WithWebSearch(w WebSearcher, maxResults int) Option {
	return func(p *Pipeline) {
		p.web = w
		p.webResults = maxResults
	}
}

// Pipeline runs one case through extraction, retrieval, reasoning and report
// composition. It holds no per-case state and may run many cases at once.
type Pipeline struct {
	llm        *llmservice.Client
	statutes   StatuteSearcher
	precedents PrecedentSearcher
	web        WebSearcher

	webResults    int
	textLimit     int
	topK          int
	maxResults    int
	maxHits       int
	sequential    bool
	mode          string
	iterations    config.IterationConfig
	batchParallel int
}

func New(cfg config.Config, llm *llmservice.Client, statutes StatuteSearcher, precedents PrecedentSearcher, opts ...Option) *Pipeline {
	p := &Pipeline{
		llm:           llm,
		statutes:      statutes,
		precedents:    precedents,
		textLimit:     cfg.Pipeline.CaseTextLimit,
		topK:          cfg.RAG.TopK,
		maxResults:    cfg.CaseLaw.MaxResults,
		maxHits:       cfg.Pipeline.MaxHitsPerSource,
		sequential:    cfg.Pipeline.SequentialRetrieval,
		mode:          cfg.Pipeline.RetrievalMode,
		iterations:    cfg.Pipeline.MaxIterations,
		batchParallel: cfg.Pipeline.BatchConcurrency,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run executes every stage for one case. Any fatal failure is returned as a
// *models.StageError; degraded but successful stages are listed in
// Report.Notices.
func (p *Pipeline) Run(ctx context.Context, in models.CaseInput) (*models.Report, error) {
	runID := helper.NewRunID()
	logger := log.With().Str("case_id", in.CaseID).Str("run_id", runID).Logger()
	start := time.Now()

	if err := in.Validate(); err != nil {
		return nil, &models.StageError{Stage: models.StageExtraction, Err: err}
	}

	var notices []string
	if n := utf8.RuneCountInString(strings.TrimSpace(in.Text)); n > p.textLimit {
		notices = append(notices, fmt.Sprintf("Case text was truncated from %d to %d characters before extraction.", n, p.textLimit))
	}

	logger.Info().Str("stage", string(models.StageExtraction)).Msg("stage started")
	entities, err := p.Extract(ctx, in)
	if err != nil {
		return nil, p.fail(logger, models.StageExtraction, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, p.fail(logger, models.StageRetrieval, err)
	}

	logger.Info().Str("stage", string(models.StageRetrieval)).Int("issues", len(entities.Issues)).Msg("stage started")
	hints := mergeHints(in.Hints, parser.CaseReferences(in.Text))
	bundle, retrievalNotices := p.Retrieve(ctx, entities, in.Jurisdiction, hints)
	notices = append(notices, retrievalNotices...)
	if err := ctx.Err(); err != nil {
		return nil, p.fail(logger, models.StageRetrieval, err)
	}

	logger.Info().Str("stage", string(models.StageReasoning)).Int("statutes", len(bundle.Statutes)).
		Int("precedents", len(bundle.Precedents)).Msg("stage started")
	reasoning, err := p.Reason(ctx, entities, bundle)
	if err != nil {
		return nil, p.fail(logger, models.StageReasoning, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, p.fail(logger, models.StageReport, err)
	}

	logger.Info().Str("stage", string(models.StageReport)).Msg("stage started")
	markdown, err := p.Compose(ctx, in.CaseID, entities, bundle, reasoning)
	if err != nil {
		return nil, p.fail(logger, models.StageReport, err)
	}

	report := &models.Report{
		CaseID:          in.CaseID,
		RunID:           runID,
		Entities:        *entities,
		Retrievals:      *bundle,
		Reasoning:       *reasoning,
		Recommendations: []string{},
		Markdown:        AppendNotices(markdown, notices),
		Notices:         notices,
		GeneratedAt:     time.Now().UTC(),
	}
	logger.Info().Dur("elapsed", time.Since(start)).Int("notices", len(notices)).Msg("case completed")
	return report, nil
}

func (p *Pipeline) fail(logger zerolog.Logger, stage models.Stage, err error) error {
	logger.Error().Err(err).Str("stage", string(stage)).Str("kind", models.ErrorKind(err)).Msg("stage failed")
	return &models.StageError{Stage: stage, Err: err}
}

// RunBatch runs every case independently with at most concurrency cases in
// flight. Results keep the input order; one failure never stops the others.
func (p *Pipeline) RunBatch(ctx context.Context, cases []models.CaseInput, concurrency int) []models.CaseResult {
	if concurrency < 1 {
		concurrency = p.batchParallel
	}
	if concurrency < 1 {
		concurrency = 1
	}
	results := make([]models.CaseResult, len(cases))
	seen := make(map[string]int, len(cases))

	var g errgroup.Group
	g.SetLimit(concurrency)
	for i, in := range cases {
		results[i].CaseID = in.CaseID
		id := strings.TrimSpace(in.CaseID)
		if first, dup := seen[id]; dup && id != "" {
			results[i].Err = &models.StageError{
				Stage: models.StageExtraction,
				Err:   fmt.Errorf("%w: case_id %q repeats case %d", models.ErrInvalidCase, id, first+1),
			}
			continue
		}
		seen[id] = i
		g.Go(func() error {
			results[i].Report, results[i].Err = p.Run(ctx, in)
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
		}
	}
	log.Info().Int("cases", len(cases)).Int("failed", failed).Msg("batch finished")
	return results
}

// AppendNotices adds a Notices section listing every degraded state.
func AppendNotices(markdown string, notices []string) string {
	if len(notices) == 0 {
		return markdown
	}
	var b strings.Builder
	b.WriteString(strings.TrimRight(markdown, "\n"))
	b.WriteString("\n\n## Notices\n\n")
	for _, n := range notices {
		b.WriteString("- ")
		b.WriteString(n)
		b.WriteString("\n")
	}
	return b.String()
}

// mergeHints returns the caller's hints followed by statute references found
// in the case text, without duplicates.
func mergeHints(hints, refs []string) []string {
	seen := make(map[string]bool, len(hints)+len(refs))
	var out []string
	for _, h := range append(append([]string{}, hints...), refs...) {
		h = strings.TrimSpace(h)
		key := strings.ToLower(h)
		if h == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, h)
	}
	return out
}
