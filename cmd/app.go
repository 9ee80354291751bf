package main

import (
	"context"
	"fmt"

	"legal-researcher/internal/cache"
	"legal-researcher/internal/caselaw"
	"legal-researcher/internal/chromemdb"
	"legal-researcher/internal/config"
	"legal-researcher/internal/db"
	"legal-researcher/internal/embedding"
	"legal-researcher/internal/helper"
	"legal-researcher/internal/llmservice"
	"legal-researcher/internal/models"
	"legal-researcher/internal/output"
	"legal-researcher/internal/pipeline"
	"legal-researcher/internal/rag"
	"legal-researcher/internal/storage"

	"github.com/rs/zerolog/log"
	"github.com/uptrace/bun"
)

// app holds the long-lived services one command needs.
type app struct {
	cfg      config.Config
	embedder embedding.Embedder
	index    *chromemdb.VectorDBManager
	engine   *rag.Engine
	cache    cache.Cache
	pipeline *pipeline.Pipeline
	writer   *output.Writer
	store    storage.Store
	ledger   *bun.DB
}

func newRetrievalApp(cfg config.Config) (*app, error) {
	embedder, err := embedding.New(cfg.EmbedLLM)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}
	index := chromemdb.NewVectorDBManager(cfg.Index)
	return &app{
		cfg:      cfg,
		embedder: embedder,
		index:    index,
		engine:   rag.NewEngine(index, embedder, cfg.RAG),
	}, nil
}

func (a *app) ingestor() *rag.Ingestor {
	return rag.NewIngestor(a.cfg, a.embedder, a.index)
}

func newResearchApp(ctx context.Context, cfg config.Config) (*app, error) {
	a, err := newRetrievalApp(cfg)
	if err != nil {
		return nil, err
	}
	llm, err := llmservice.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize language model: %w", err)
	}
	if a.cache, err = cache.New(ctx, cfg.Cache); err != nil {
		return nil, err
	}
	precedents := caselaw.NewClient(cfg, a.cache)
	if !precedents.Enabled() {
		log.Warn().Msg("INDIAN_KANOON_API_KEY is not set, precedent search will be skipped")
	}
	web := caselaw.NewWebSearch(cfg, a.cache)
	if !web.Enabled() {
		log.Info().Msg("SERPER_API_KEY is not set, web_search will only return a notice")
	}
	a.pipeline = pipeline.New(cfg, llm, a.engine, precedents, pipeline.WithWebSearch(web, cfg.WebSearch.MaxResults))

	if a.store, err = storage.New(ctx, cfg.Output); err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to initialize artifact store: %w", err)
	}
	a.writer = output.NewWriter(a.store, cfg.Output.RenderHTML)

	if cfg.Database.DSN != "" {
		if a.ledger, err = openLedger(ctx, cfg.Database); err != nil {
			a.Close()
			return nil, err
		}
	}
	return a, nil
}

func openLedger(ctx context.Context, dc config.DatabaseConfig) (*bun.DB, error) {
	sqldb, err := db.ConnectDB(&dc)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	ledger := db.NewDB(sqldb, dc.Debug)
	if err := db.InitDB(ctx, ledger); err != nil {
		ledger.Close()
		return nil, err
	}
	return ledger, nil
}

// finish writes the artifacts of a successful run and records the outcome.
// It returns the artifact locations, or the first error that should fail the
// command.
func (a *app) finish(ctx context.Context, caseID string, report *models.Report, runErr error) (output.Artifacts, error) {
	var arts output.Artifacts
	if runErr == nil {
		arts, runErr = a.writer.Write(ctx, report)
	}
	if a.ledger != nil {
		run := db.NewCaseRun(caseID, helper.NewRunID(), report, runErr)
		run.ArtifactPath = arts.Markdown
		if err := db.RecordRun(ctx, a.ledger, run); err != nil {
			log.Warn().Err(err).Str("case_id", caseID).Msg("failed to record run")
		}
	}
	return arts, runErr
}

func (a *app) Close() {
	if a.cache != nil {
		a.cache.Close()
	}
	if a.ledger != nil {
		a.ledger.Close()
	}
}
