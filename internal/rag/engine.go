package rag

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"legal-researcher/internal/chromemdb"
	"legal-researcher/internal/config"
	"legal-researcher/internal/embedding"
	"legal-researcher/internal/helper"
	"legal-researcher/internal/models"

	"github.com/rs/zerolog/log"
)

// Engine answers similarity searches against the current index snapshot.
// One Engine may serve many concurrent pipelines; the loaded snapshot is
// never mutated, only replaced by Reload.
type Engine struct {
	store      *chromemdb.VectorDBManager
	embedder   embedding.Embedder
	snippetLen int

	mu   sync.RWMutex
	snap *chromemdb.Snapshot
}

func NewEngine(store *chromemdb.VectorDBManager, embedder embedding.Embedder, cfg config.RAGConfig) *Engine {
	snippetLen := cfg.SnippetLength
	if snippetLen <= 0 {
		snippetLen = 500
	}
	return &Engine{store: store, embedder: embedder, snippetLen: snippetLen}
}

// Reload swaps in the snapshot CURRENT points at. Searches already running
// finish against the snapshot they started with.
func (e *Engine) Reload(ctx context.Context) error {
	snap, err := e.store.Open(ctx, e.embedder.Identity())
	if err != nil {
		return err
	}
	e.mu.Lock()
	e.snap = snap
	e.mu.Unlock()
	log.Info().Str("snapshot", snap.SnapshotID).Int("chunks", snap.Chunks).Msg("retrieval index loaded")
	return nil
}

func (e *Engine) snapshot(ctx context.Context) (*chromemdb.Snapshot, error) {
	e.mu.RLock()
	snap := e.snap
	e.mu.RUnlock()
	if snap != nil {
		return snap, nil
	}
	if err := e.Reload(ctx); err != nil {
		return nil, err
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.snap, nil
}

// Search returns the topK chunks closest to query, most similar first.
func (e *Engine) Search(ctx context.Context, query string, topK int) ([]models.RetrievalHit, error) {
	if topK <= 0 {
		return nil, fmt.Errorf("%w: top_k must be positive, got %d", models.ErrInvalidQuery, topK)
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("%w: empty query", models.ErrInvalidQuery)
	}

	snap, err := e.snapshot(ctx)
	if err != nil {
		return nil, err
	}

	vector, err := e.embedder.EmbedQuery(ctx, query)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: embedding query: %v", models.ErrTimeout, err)
		}
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	results, err := snap.Query(ctx, vector, topK)
	if err != nil {
		return nil, err
	}

	hits := make([]models.RetrievalHit, 0, len(results))
	for _, r := range results {
		snippet, _ := helper.TruncateRunes(r.Content, e.snippetLen)
		hit := models.RetrievalHit{
			Source:  models.SourceLocal,
			Title:   r.Metadata[MetaTitle],
			Snippet: &snippet,
			Score:   models.Float64Ptr(float64(r.Similarity)),
			Metadata: map[string]any{
				"chunk_id":        r.ID,
				"source_document": r.Metadata[MetaSource],
				"snapshot_id":     snap.SnapshotID,
			},
		}
		if hit.Title == "" {
			hit.Title = r.Metadata[MetaSource]
		}
		if c := r.Metadata[MetaCitation]; c != "" {
			hit.Citation = &c
		}
		if y, err := strconv.Atoi(r.Metadata[MetaYear]); err == nil {
			hit.Year = &y
		}
		if n, err := strconv.Atoi(r.Metadata[MetaStartIndex]); err == nil {
			hit.Metadata["start_index"] = n
		}
		hits = append(hits, hit)
	}
	log.Debug().Str("query", query).Int("top_k", topK).Int("hits", len(hits)).Msg("statute search")
	return hits, nil
}
