package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"legal-researcher/internal/caselaw"
	"legal-researcher/internal/llmservice"
	"legal-researcher/internal/models"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// Retrieve searches statutes and precedents for the extracted issues and the
// hints. It never fails: every problem with either source becomes a notice
// and an empty or shorter hit list.
func (p *Pipeline) Retrieve(ctx context.Context, entities *models.EntityExtraction, jurisdiction string, hints []string) (*models.RetrievalBundle, []string) {
	queries := searchQueries(entities, hints)
	bundle := &models.RetrievalBundle{
		Statutes:   []models.RetrievalHit{},
		Precedents: []models.RetrievalHit{},
	}
	if len(queries) == 0 {
		return bundle, []string{"No issues or hints were available to search statutes and precedents."}
	}

	var statuteNotices, precedentNotices []string
	searchStatutes := func(ctx context.Context) {
		if p.mode == "agent" {
			bundle.Statutes, statuteNotices = p.statutesByAgent(ctx, jurisdiction, queries)
		} else {
			bundle.Statutes, statuteNotices = p.statutesDirect(ctx, queries)
		}
	}
	searchPrecedents := func(ctx context.Context) {
		if p.precedents == nil || !p.precedents.Enabled() {
			precedentNotices = []string{"Precedent search was skipped: no case-law API credential is configured (INDIAN_KANOON_API_KEY)."}
			return
		}
		if p.mode == "agent" {
			bundle.Precedents, precedentNotices = p.precedentsByAgent(ctx, jurisdiction, queries)
		} else {
			bundle.Precedents, precedentNotices = p.precedentsDirect(ctx, queries)
		}
	}

	if p.sequential {
		searchStatutes(ctx)
		searchPrecedents(ctx)
	} else {
		var g errgroup.Group
		g.Go(func() error { searchStatutes(ctx); return nil })
		g.Go(func() error { searchPrecedents(ctx); return nil })
		_ = g.Wait()
	}

	if bundle.Statutes == nil {
		bundle.Statutes = []models.RetrievalHit{}
	}
	if bundle.Precedents == nil {
		bundle.Precedents = []models.RetrievalHit{}
	}
	return bundle, append(statuteNotices, precedentNotices...)
}

func (p *Pipeline) statutesDirect(ctx context.Context, queries []string) ([]models.RetrievalHit, []string) {
	var (
		hits    []models.RetrievalHit
		notices []string
	)
	for _, q := range queries {
		if ctx.Err() != nil {
			break
		}
		found, err := p.statutes.Search(ctx, q, p.topK)
		if err != nil {
			if isIndexProblem(err) {
				return nil, []string{fmt.Sprintf("Statute search was unavailable (%s): %v", models.ErrorKind(err), err)}
			}
			log.Warn().Err(err).Str("query", q).Msg("statute search failed")
			notices = append(notices, fmt.Sprintf("Statute search for %q failed: %v", q, err))
			continue
		}
		hits = append(hits, found...)
	}
	return mergeHits(hits, p.maxHits), notices
}

func (p *Pipeline) precedentsDirect(ctx context.Context, queries []string) ([]models.RetrievalHit, []string) {
	var (
		hits    []models.RetrievalHit
		notices []string
	)
	for _, q := range queries {
		if ctx.Err() != nil {
			break
		}
		found, err := p.precedents.Search(ctx, q, p.maxResults)
		if err != nil {
			log.Warn().Err(err).Str("query", q).Msg("precedent search failed")
			if errors.Is(err, models.ErrMalformedResponse) {
				notices = append(notices, fmt.Sprintf("Precedent search for %q returned an unparseable response.", q))
			} else {
				notices = append(notices, fmt.Sprintf("Precedent search for %q failed: %v", q, err))
			}
			continue
		}
		hits = append(hits, found...)
	}
	return mergeHits(hits, p.maxHits), notices
}

func (p *Pipeline) statutesByAgent(ctx context.Context, jurisdiction string, queries []string) ([]models.RetrievalHit, []string) {
	rag := &ragTool{engine: p.statutes, topK: p.topK}
	agent := llmservice.NewAgent(p.llm, models.StatuteResearcherPersona, p.iterations.Statutes, rag, dictionaryTool{})
	task := fmt.Sprintf(models.StatuteTaskTemplate, orUnspecified(jurisdiction), bulletList(queries))

	hits, notices := p.runResearcher(ctx, agent, task, "Statute", models.SourceLocal)
	if err := rag.resourceError(); err != nil {
		return nil, []string{fmt.Sprintf("Statute search was unavailable (%s): %v", models.ErrorKind(err), err)}
	}
	return hits, notices
}

func (p *Pipeline) precedentsByAgent(ctx context.Context, jurisdiction string, queries []string) ([]models.RetrievalHit, []string) {
	tools := []llmservice.Tool{&caselawTool{client: p.precedents, maxResults: p.maxResults}}
	if p.web != nil {
		tools = append(tools, &webSearchTool{searcher: p.web, maxResults: p.webResults})
	}
	tools = append(tools, dictionaryTool{})
	agent := llmservice.NewAgent(p.llm, models.PrecedentResearcherPersona, p.iterations.Precedents, tools...)
	task := fmt.Sprintf(models.PrecedentTaskTemplate, orUnspecified(jurisdiction), bulletList(queries))
	return p.runResearcher(ctx, agent, task, "Precedent", models.SourceIndianKanoon)
}

func (p *Pipeline) runResearcher(ctx context.Context, agent *llmservice.Agent, task, label, source string) ([]models.RetrievalHit, []string) {
	res, err := agent.Run(ctx, task)
	if err != nil {
		return nil, []string{fmt.Sprintf("%s research failed (%s): %v", label, models.ErrorKind(err), err)}
	}
	var notices []string
	if err := res.Err(); err != nil {
		log.Warn().Err(err).Str("researcher", label).Msg("researcher stopped early")
		notices = append(notices, fmt.Sprintf("%s researcher reached its limit of %d iterations (%s); its partial answer was used.", label, res.Iterations, models.ErrorKind(err)))
	}
	hits, dropped, err := caselaw.ParseHitsText(res.Answer, source)
	if err != nil {
		return nil, append(notices, fmt.Sprintf("%s researcher returned an unparseable answer.", label))
	}
	if dropped > 0 {
		log.Debug().Str("researcher", label).Int("dropped", dropped).Msg("dropped malformed hits")
	}
	return mergeHits(hits, p.maxHits), notices
}

// searchQueries is one query per issue followed by the hints.
func searchQueries(entities *models.EntityExtraction, hints []string) []string {
	var all []string
	if entities != nil {
		all = append(all, entities.Issues...)
	}
	return mergeHints(all, hints)
}

// mergeHits removes repeated hits, keeping each at its best score, then
// orders by score, highest first. Hits without a score follow scored ones;
// ties keep first-seen order.
func mergeHits(hits []models.RetrievalHit, limit int) []models.RetrievalHit {
	index := make(map[string]int, len(hits))
	out := make([]models.RetrievalHit, 0, len(hits))
	for _, h := range hits {
		key := hitKey(h)
		if i, ok := index[key]; ok {
			if scoreOf(h) > scoreOf(out[i]) {
				out[i].Score = h.Score
			}
			continue
		}
		index[key] = len(out)
		out = append(out, h)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return scoreOf(out[i]) > scoreOf(out[j])
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func hitKey(h models.RetrievalHit) string {
	if id, ok := h.Metadata["chunk_id"].(string); ok && id != "" {
		return "chunk:" + id
	}
	if h.URL != nil {
		return "url:" + *h.URL
	}
	key := "title:" + strings.ToLower(h.Title)
	if h.Citation != nil {
		key += "|" + strings.ToLower(*h.Citation)
	}
	return key
}

func scoreOf(h models.RetrievalHit) float64 {
	if h.Score == nil {
		return math.Inf(-1)
	}
	return *h.Score
}

func isIndexProblem(err error) bool {
	return errors.Is(err, models.ErrIndexNotFound) ||
		errors.Is(err, models.ErrIndexCorrupt) ||
		errors.Is(err, models.ErrEmbeddingMismatch)
}

func bulletList(items []string) string {
	var b strings.Builder
	for _, it := range items {
		b.WriteString("- ")
		b.WriteString(it)
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
