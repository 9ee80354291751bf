package chromemdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"time"

	"legal-researcher/internal/config"
	"legal-researcher/internal/models"

	"github.com/philippgille/chromem-go"
	"github.com/rs/zerolog/log"
)

const (
	manifestFile  = "CURRENT"
	snapshotDir   = "snapshots"
	formatVersion = 1

	// MetaSeq holds the zero-padded insertion order of a chunk.
	MetaSeq = "seq"
)

// Document represents our data structure with content and metadata
type Document struct {
	ID        string
	Content   string
	Metadata  map[string]string
	Embedding []float32
}

// Manifest is the CURRENT pointer of an index directory. Replacing it is the
// only step that makes a new snapshot visible.
type Manifest struct {
	Version    int       `json:"version"`
	SnapshotID string    `json:"snapshot_id"`
	File       string    `json:"file"`
	Collection string    `json:"collection"`
	Embedder   string    `json:"embedder"`
	Dimension  int       `json:"dimension"`
	Chunks     int       `json:"chunks"`
	Compressed bool      `json:"compressed"`
	Encrypted  bool      `json:"encrypted"`
	CreatedAt  time.Time `json:"created_at"`
}

// VectorDBManager writes and opens index snapshots under one directory.
type VectorDBManager struct {
	dir           string
	collection    string
	compress      bool
	encryptionKey string
	keep          int
}

func NewVectorDBManager(cfg config.IndexConfig) *VectorDBManager {
	keep := cfg.KeepSnapshots
	if keep < 1 {
		keep = 1
	}
	return &VectorDBManager{
		dir:           cfg.Dir,
		collection:    cfg.Collection,
		compress:      cfg.Compress,
		encryptionKey: cfg.EncryptionKey,
		keep:          keep,
	}
}

// precomputedOnly is installed as the collection embedding func; every
// document and query arrives with its vector already computed.
func precomputedOnly(context.Context, string) ([]float32, error) {
	return nil, errors.New("chromemdb: embeddings must be precomputed")
}

// WriteSnapshot stores docs as a new snapshot and then points CURRENT at it.
// Readers holding the previous snapshot keep working; it is only removed once
// it falls outside the retention window.
func (m *VectorDBManager) WriteSnapshot(ctx context.Context, snapshotID, embedder string, docs []Document) (*Manifest, error) {
	if len(docs) == 0 {
		return nil, fmt.Errorf("refusing to write empty snapshot: %w", models.ErrEmptyCorpus)
	}
	dim := len(docs[0].Embedding)

	db := chromem.NewDB()
	c, err := db.CreateCollection(m.collection, map[string]string{"embedder": embedder}, precomputedOnly)
	if err != nil {
		return nil, fmt.Errorf("failed to create collection: %w", err)
	}
	chromemDocs := make([]chromem.Document, len(docs))
	for i, doc := range docs {
		if len(doc.Embedding) != dim {
			return nil, fmt.Errorf("%w: document %s has dimension %d, expected %d", models.ErrEmbeddingMismatch, doc.ID, len(doc.Embedding), dim)
		}
		chromemDocs[i] = chromem.Document{
			ID:        doc.ID,
			Content:   doc.Content,
			Metadata:  doc.Metadata,
			Embedding: doc.Embedding,
		}
	}
	if err := c.AddDocuments(ctx, chromemDocs, runtime.NumCPU()); err != nil {
		return nil, fmt.Errorf("failed to add documents: %w", err)
	}

	if err := os.MkdirAll(filepath.Join(m.dir, snapshotDir), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create index dir: %w", err)
	}
	name := snapshotID + ".gob"
	if m.compress {
		name += ".gz"
	}
	if m.encryptionKey != "" {
		name += ".enc"
	}
	rel := filepath.Join(snapshotDir, name)
	final := filepath.Join(m.dir, rel)
	tmp := final + ".tmp"

	log.Debug().Str("collection", m.collection).Str("file", final).Bool("compress", m.compress).Msg("exporting snapshot")
	if err := db.ExportToFile(tmp, m.compress, m.encryptionKey, m.collection); err != nil {
		_ = os.Remove(tmp)
		return nil, fmt.Errorf("failed to export snapshot: %w", err)
	}
	if err := os.Rename(tmp, final); err != nil {
		_ = os.Remove(tmp)
		return nil, fmt.Errorf("failed to finalize snapshot: %w", err)
	}

	manifest := &Manifest{
		Version:    formatVersion,
		SnapshotID: snapshotID,
		File:       filepath.ToSlash(rel),
		Collection: m.collection,
		Embedder:   embedder,
		Dimension:  dim,
		Chunks:     len(docs),
		Compressed: m.compress,
		Encrypted:  m.encryptionKey != "",
		CreatedAt:  time.Now().UTC(),
	}
	if err := m.swapManifest(manifest); err != nil {
		return nil, err
	}
	m.prune(name)
	return manifest, nil
}

// swapManifest replaces CURRENT via write-to-temp and rename.
func (m *VectorDBManager) swapManifest(manifest *Manifest) error {
	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode manifest: %w", err)
	}
	f, err := os.CreateTemp(m.dir, manifestFile+"-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create manifest: %w", err)
	}
	tmp := f.Name()
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("failed to sync manifest: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to close manifest: %w", err)
	}
	if err := os.Rename(tmp, filepath.Join(m.dir, manifestFile)); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to swap manifest: %w", err)
	}
	return nil
}

// prune removes the oldest snapshots beyond the retention count. Snapshot IDs
// are time ordered, so name order is age order.
func (m *VectorDBManager) prune(current string) {
	entries, err := os.ReadDir(filepath.Join(m.dir, snapshotDir))
	if err != nil {
		log.Warn().Err(err).Msg("failed to list snapshots for pruning")
		return
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || e.Name() == current || strings.HasSuffix(e.Name(), ".tmp") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	for len(names) > m.keep-1 {
		path := filepath.Join(m.dir, snapshotDir, names[0])
		if err := os.Remove(path); err != nil {
			log.Warn().Err(err).Str("file", path).Msg("failed to remove old snapshot")
		} else {
			log.Debug().Str("file", path).Msg("removed old snapshot")
		}
		names = names[1:]
	}
}

// ReadManifest returns the CURRENT manifest.
func (m *VectorDBManager) ReadManifest() (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(m.dir, manifestFile))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: no snapshot in %s, run ingest first", models.ErrIndexNotFound, m.dir)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	var manifest Manifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("%w: manifest: %v", models.ErrIndexCorrupt, err)
	}
	if manifest.Version != formatVersion || manifest.File == "" {
		return nil, fmt.Errorf("%w: unsupported manifest version %d", models.ErrIndexCorrupt, manifest.Version)
	}
	return &manifest, nil
}

// Open loads the current snapshot into memory. The snapshot must have been
// built by the embedder named wantEmbedder.
func (m *VectorDBManager) Open(ctx context.Context, wantEmbedder string) (*Snapshot, error) {
	manifest, err := m.ReadManifest()
	if err != nil {
		return nil, err
	}
	if manifest.Embedder != wantEmbedder {
		return nil, fmt.Errorf("%w: snapshot %s was built with %q, configured embedder is %q; re-run ingest",
			models.ErrEmbeddingMismatch, manifest.SnapshotID, manifest.Embedder, wantEmbedder)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path := filepath.Join(m.dir, filepath.FromSlash(manifest.File))
	db := chromem.NewDB()
	if err := db.ImportFromFile(path, m.encryptionKey, manifest.Collection); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", models.ErrIndexCorrupt, manifest.File, err)
	}
	c := db.GetCollection(manifest.Collection, precomputedOnly)
	if c == nil {
		return nil, fmt.Errorf("%w: collection %q missing from %s", models.ErrIndexCorrupt, manifest.Collection, manifest.File)
	}
	if c.Count() != manifest.Chunks {
		return nil, fmt.Errorf("%w: %s holds %d chunks, manifest says %d", models.ErrIndexCorrupt, manifest.File, c.Count(), manifest.Chunks)
	}
	log.Debug().Str("snapshot", manifest.SnapshotID).Int("chunks", manifest.Chunks).Msg("snapshot loaded")
	return &Snapshot{Manifest: *manifest, collection: c}, nil
}

// Snapshot is a loaded, read-only index. It is safe for concurrent queries.
type Snapshot struct {
	Manifest
	collection *chromem.Collection
}

// Query returns the topK most similar chunks. Equal similarities are ordered
// by insertion sequence so results are stable and a smaller topK is always a
// prefix of a larger one.
func (s *Snapshot) Query(ctx context.Context, vector []float32, topK int) ([]chromem.Result, error) {
	if len(vector) != s.Dimension {
		return nil, fmt.Errorf("%w: query has dimension %d, snapshot %d", models.ErrEmbeddingMismatch, len(vector), s.Dimension)
	}
	n := s.collection.Count()
	if n == 0 || topK <= 0 {
		return nil, nil
	}
	results, err := s.collection.QueryEmbedding(ctx, vector, n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to query by similarity: %w", err)
	}
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Similarity != results[j].Similarity {
			return results[i].Similarity > results[j].Similarity
		}
		return seqOf(results[i]) < seqOf(results[j])
	})
	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

func seqOf(r chromem.Result) int {
	n, err := strconv.Atoi(r.Metadata[MetaSeq])
	if err != nil {
		return int(^uint(0) >> 1)
	}
	return n
}

// FormatSeq renders an insertion sequence number for MetaSeq.
func FormatSeq(i int) string {
	return fmt.Sprintf("%09d", i)
}
