package rag

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"legal-researcher/internal/chromemdb"
	"legal-researcher/internal/config"
	"legal-researcher/internal/embedding"
	"legal-researcher/internal/helper"
	"legal-researcher/internal/models"
	"legal-researcher/internal/parser"

	"github.com/rs/zerolog/log"
)

const embedBatchSize = 64

// Chunk metadata keys stored alongside each vector.
const (
	MetaSource     = "source"
	MetaTitle      = "title"
	MetaStartIndex = "start_index"
	MetaChunkIndex = "chunk_index"
	MetaCitation   = "citation"
	MetaYear       = "year"
)

// Ingestor builds index snapshots from a corpus directory.
type Ingestor struct {
	embedder   embedding.Embedder
	store      *chromemdb.VectorDBManager
	splitter   *parser.Splitter
	maxRetries int
	retryWait  time.Duration
}

func NewIngestor(cfg config.Config, embedder embedding.Embedder, store *chromemdb.VectorDBManager) *Ingestor {
	return &Ingestor{
		embedder:   embedder,
		store:      store,
		splitter:   parser.NewSplitter(cfg.RAG.ChunkSize, cfg.RAG.ChunkOverlap),
		maxRetries: cfg.Pipeline.MaxRetries,
		retryWait:  cfg.Pipeline.RetryInterval,
	}
}

// Ingest chunks, embeds and snapshots every corpus file under corpusDir.
// Unreadable files are reported in the result and skipped; the run fails only
// when no file could be read. Nothing is written on failure.
func (in *Ingestor) Ingest(ctx context.Context, corpusDir string) (*models.IndexBuildResult, error) {
	files, err := discover(corpusDir)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: no text files under %s", models.ErrEmptyCorpus, corpusDir)
	}
	log.Info().Str("corpus", corpusDir).Int("files", len(files)).Msg("ingesting corpus")

	var (
		chunks   []models.Chunk
		readErrs []error
		failed   []string
		docCount int
	)
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rel, err := filepath.Rel(corpusDir, path)
		if err != nil {
			rel = filepath.Base(path)
		}
		doc, err := parser.LoadDocument(path, rel)
		if err != nil {
			readErr := &models.DocumentReadError{Path: rel, Err: err}
			log.Warn().Err(err).Str("file", rel).Msg("skipping unreadable document")
			readErrs = append(readErrs, readErr)
			failed = append(failed, readErr.Error())
			continue
		}
		docChunks, err := in.splitter.Split(doc)
		if err != nil {
			readErr := &models.DocumentReadError{Path: rel, Err: err}
			readErrs = append(readErrs, readErr)
			failed = append(failed, readErr.Error())
			continue
		}
		if len(docChunks) == 0 {
			log.Warn().Str("file", rel).Msg("document has no text after cleaning")
			continue
		}
		docCount++
		chunks = append(chunks, docChunks...)
		log.Debug().Str("file", rel).Int("chunks", len(docChunks)).Msg("document chunked")
	}

	if len(readErrs) == len(files) {
		return nil, fmt.Errorf("all %d corpus files failed: %w", len(files), errors.Join(readErrs...))
	}
	if len(chunks) == 0 {
		return nil, fmt.Errorf("%w: corpus files under %s contain no text", models.ErrEmptyCorpus, corpusDir)
	}

	docs, err := in.embedChunks(ctx, chunks)
	if err != nil {
		return nil, err
	}

	snapshotID := helper.NewRunID()
	manifest, err := in.store.WriteSnapshot(ctx, snapshotID, in.embedder.Identity(), docs)
	if err != nil {
		return nil, fmt.Errorf("failed to write index snapshot: %w", err)
	}
	log.Info().Str("snapshot", snapshotID).Int("documents", docCount).Int("chunks", len(chunks)).
		Int("failed", len(failed)).Msg("index snapshot written")

	return &models.IndexBuildResult{
		SnapshotID: manifest.SnapshotID,
		Embedder:   manifest.Embedder,
		Dimension:  manifest.Dimension,
		Documents:  docCount,
		Chunks:     manifest.Chunks,
		Failed:     failed,
		CreatedAt:  manifest.CreatedAt,
	}, nil
}

func (in *Ingestor) embedChunks(ctx context.Context, chunks []models.Chunk) ([]chromemdb.Document, error) {
	docs := make([]chromemdb.Document, 0, len(chunks))
	dim := 0
	for start := 0; start < len(chunks); start += embedBatchSize {
		batch := chunks[start:min(start+embedBatchSize, len(chunks))]
		var vectors [][]float32
		err := helper.Retry(ctx, "embed", in.maxRetries, in.retryWait, 0, func(ctx context.Context) error {
			var err error
			vectors, err = embedding.GenerateEmbeddings(ctx, in.embedder, batch)
			if errors.Is(err, models.ErrEmbeddingMismatch) {
				return helper.Permanent(err)
			}
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("failed to embed chunks %d-%d: %w", start, start+len(batch)-1, err)
		}
		if dim == 0 {
			dim = len(vectors[0])
		}
		for i, c := range batch {
			if len(vectors[i]) != dim {
				return nil, fmt.Errorf("%w: chunk %s has dimension %d, expected %d", models.ErrEmbeddingMismatch, c.ID, len(vectors[i]), dim)
			}
			docs = append(docs, chromemdb.Document{
				ID:        c.ID,
				Content:   c.Content,
				Metadata:  chunkMetadata(c, start+i),
				Embedding: vectors[i],
			})
		}
	}
	return docs, nil
}

func chunkMetadata(c models.Chunk, seq int) map[string]string {
	md := map[string]string{
		MetaSource:        c.DocumentID,
		MetaTitle:         c.Title,
		MetaStartIndex:    strconv.Itoa(c.StartIndex),
		MetaChunkIndex:    strconv.Itoa(c.ChunkIndex),
		chromemdb.MetaSeq: chromemdb.FormatSeq(seq),
	}
	if c.Citation != "" {
		md[MetaCitation] = c.Citation
	}
	if c.Year != nil {
		md[MetaYear] = strconv.Itoa(*c.Year)
	}
	return md
}

// discover lists supported corpus files under dir in lexical order.
func discover(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return err
			}
			log.Warn().Err(err).Str("path", path).Msg("skipping unreadable path")
			return nil
		}
		if d.IsDir() {
			if path != dir && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if parser.IsSupported(path) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan corpus %s: %w", dir, err)
	}
	return files, nil
}
