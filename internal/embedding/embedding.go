package embedding

import (
	"context"
	"fmt"
	"strings"
	"time"

	"legal-researcher/internal/config"
	"legal-researcher/internal/models"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/googleai"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

const defaultBatchSize = 64

// Embedder produces vectors and names the function that produced them. The
// identity is stamped on every index snapshot.
type Embedder interface {
	embeddings.Embedder
	Identity() string
}

type namedEmbedder struct {
	impl     embeddings.Embedder
	identity string
	timeout  time.Duration
}

// New builds the embedder described by cfg.
func New(cfg config.LLMConfig) (Embedder, error) {
	log.Debug().Str("provider", cfg.Provider).Str("model", cfg.Model).Str("base_url", cfg.BaseURL).Msg("creating embedder")

	var client embeddings.EmbedderClient
	identity := cfg.Provider + ":" + cfg.Model
	switch cfg.Provider {
	case "openai":
		opts := []openai.Option{
			openai.WithToken(strings.TrimPrefix(cfg.Key, "Bearer ")),
			openai.WithEmbeddingModel(cfg.Model),
		}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		llm, err := openai.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to init openai embedder: %w", err)
		}
		client = llm
	case "ollama":
		llm, err := ollama.New(
			ollama.WithServerURL(cfg.BaseURL),
			ollama.WithModel(cfg.Model),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to init ollama embedder: %w", err)
		}
		client = llm
	case "googleai":
		if cfg.Key == "" {
			return nil, fmt.Errorf("%w: no API key for %s", models.ErrMissingCredential, cfg.Provider)
		}
		llm, err := googleai.New(context.Background(),
			googleai.WithAPIKey(cfg.Key),
			googleai.WithDefaultEmbeddingModel(cfg.Model),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to init googleai embedder: %w", err)
		}
		client = llm
	case "hash":
		h := NewHashEmbedder(cfg.Dimension)
		client = h
		identity = h.Identity()
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}

	impl, err := embeddings.NewEmbedder(client, embeddings.WithBatchSize(defaultBatchSize))
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}
	return &namedEmbedder{impl: impl, identity: identity, timeout: cfg.Timeout}, nil
}

func (e *namedEmbedder) Identity() string { return e.identity }

func (e *namedEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	ctx, cancel := e.withTimeout(ctx)
	defer cancel()
	return e.impl.EmbedDocuments(ctx, texts)
}

func (e *namedEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	ctx, cancel := e.withTimeout(ctx)
	defer cancel()
	return e.impl.EmbedQuery(ctx, text)
}

func (e *namedEmbedder) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, e.timeout)
}

// GenerateEmbeddings embeds chunks in order and checks that every vector has
// the same, non-zero dimension.
func GenerateEmbeddings(ctx context.Context, embedder Embedder, chunks []models.Chunk) ([][]float32, error) {
	if len(chunks) == 0 {
		log.Info().Msg("No chunks to embed")
		return nil, nil
	}
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}
	vectors, err := embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("failed to embed %d chunks: %w", len(chunks), err)
	}
	if len(vectors) != len(chunks) {
		return nil, fmt.Errorf("%w: embedder returned %d vectors for %d chunks", models.ErrEmbeddingMismatch, len(vectors), len(chunks))
	}
	dim := len(vectors[0])
	for i, v := range vectors {
		if len(v) == 0 || len(v) != dim {
			return nil, fmt.Errorf("%w: chunk %s has dimension %d, expected %d", models.ErrEmbeddingMismatch, chunks[i].ID, len(v), dim)
		}
	}
	return vectors, nil
}
