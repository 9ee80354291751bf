package chromemdb

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"legal-researcher/internal/config"
	"legal-researcher/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testEmbedder = "test:unit"

func newManager(t *testing.T, mutate ...func(*config.IndexConfig)) (*VectorDBManager, string) {
	t.Helper()
	cfg := config.IndexConfig{
		Dir:           t.TempDir(),
		Collection:    "statutes",
		Compress:      true,
		KeepSnapshots: 2,
	}
	for _, f := range mutate {
		f(&cfg)
	}
	return NewVectorDBManager(cfg), cfg.Dir
}

func doc(i int, content string, v ...float32) Document {
	return Document{
		ID:        "doc.txt#" + string(rune('a'+i)),
		Content:   content,
		Metadata:  map[string]string{MetaSeq: FormatSeq(i), "title": "doc.txt"},
		Embedding: v,
	}
}

func sampleDocs() []Document {
	return []Document{
		doc(0, "east", 1, 0, 0),
		doc(1, "north-east", 1, 1, 0),
		doc(2, "north", 0, 1, 0),
		doc(3, "east again", 1, 0, 0), // ties with 0
		doc(4, "up", 0, 0, 1),
	}
}

func TestWriteAndOpenSnapshot(t *testing.T) {
	m, dir := newManager(t)
	ctx := context.Background()

	manifest, err := m.WriteSnapshot(ctx, "snap-1", testEmbedder, sampleDocs())
	require.NoError(t, err)
	assert.Equal(t, 5, manifest.Chunks)
	assert.Equal(t, 3, manifest.Dimension)
	assert.FileExists(t, filepath.Join(dir, manifestFile))
	assert.FileExists(t, filepath.Join(dir, "snapshots", "snap-1.gob.gz"))

	snap, err := m.Open(ctx, testEmbedder)
	require.NoError(t, err)
	assert.Equal(t, "snap-1", snap.SnapshotID)

	results, err := snap.Query(ctx, []float32{1, 0, 0}, 3)
	require.NoError(t, err)
	require.Len(t, results, 3)
	// exact ties resolve by insertion order
	assert.Equal(t, "east", results[0].Content)
	assert.Equal(t, "east again", results[1].Content)
	assert.Equal(t, "north-east", results[2].Content)
}

func TestQuery_SmallerTopKIsPrefix(t *testing.T) {
	m, _ := newManager(t)
	ctx := context.Background()
	_, err := m.WriteSnapshot(ctx, "snap-1", testEmbedder, sampleDocs())
	require.NoError(t, err)
	snap, err := m.Open(ctx, testEmbedder)
	require.NoError(t, err)

	query := []float32{0.9, 0.5, 0.1}
	all, err := snap.Query(ctx, query, 10)
	require.NoError(t, err)
	require.Len(t, all, 5)
	for k := 1; k <= 5; k++ {
		got, err := snap.Query(ctx, query, k)
		require.NoError(t, err)
		assert.Equal(t, all[:k], got, "top_k=%d", k)
	}
	for i := 1; i < len(all); i++ {
		assert.GreaterOrEqual(t, all[i-1].Similarity, all[i].Similarity)
	}
}

func TestQuery_DimensionMismatch(t *testing.T) {
	m, _ := newManager(t)
	ctx := context.Background()
	_, err := m.WriteSnapshot(ctx, "snap-1", testEmbedder, sampleDocs())
	require.NoError(t, err)
	snap, err := m.Open(ctx, testEmbedder)
	require.NoError(t, err)

	_, err = snap.Query(ctx, []float32{1, 0}, 1)
	assert.ErrorIs(t, err, models.ErrEmbeddingMismatch)
}

func TestOpen_NotFound(t *testing.T) {
	m, _ := newManager(t)
	_, err := m.Open(context.Background(), testEmbedder)
	assert.ErrorIs(t, err, models.ErrIndexNotFound)
}

func TestOpen_EmbedderMismatch(t *testing.T) {
	m, _ := newManager(t)
	ctx := context.Background()
	_, err := m.WriteSnapshot(ctx, "snap-1", testEmbedder, sampleDocs())
	require.NoError(t, err)

	_, err = m.Open(ctx, "openai:text-embedding-3-small")
	assert.ErrorIs(t, err, models.ErrEmbeddingMismatch)
}

func TestOpen_CorruptManifestAndSnapshot(t *testing.T) {
	m, dir := newManager(t)
	ctx := context.Background()

	require.NoError(t, os.WriteFile(filepath.Join(dir, manifestFile), []byte("{not json"), 0o600))
	_, err := m.Open(ctx, testEmbedder)
	assert.ErrorIs(t, err, models.ErrIndexCorrupt)

	_, err = m.WriteSnapshot(ctx, "snap-1", testEmbedder, sampleDocs())
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "snapshots", "snap-1.gob.gz"), []byte("garbage"), 0o600))
	_, err = m.Open(ctx, testEmbedder)
	assert.ErrorIs(t, err, models.ErrIndexCorrupt)
}

func TestWriteSnapshot_RejectsMixedDimensions(t *testing.T) {
	m, dir := newManager(t)
	docs := []Document{doc(0, "a", 1, 0), doc(1, "b", 1, 0, 0)}
	_, err := m.WriteSnapshot(context.Background(), "snap-1", testEmbedder, docs)
	assert.ErrorIs(t, err, models.ErrEmbeddingMismatch)
	assert.NoFileExists(t, filepath.Join(dir, manifestFile))
}

func TestWriteSnapshot_Empty(t *testing.T) {
	m, dir := newManager(t)
	_, err := m.WriteSnapshot(context.Background(), "snap-1", testEmbedder, nil)
	assert.ErrorIs(t, err, models.ErrEmptyCorpus)
	assert.NoFileExists(t, filepath.Join(dir, manifestFile))
}

func TestSwap_OpenSnapshotSurvivesRebuild(t *testing.T) {
	m, dir := newManager(t)
	ctx := context.Background()

	_, err := m.WriteSnapshot(ctx, "snap-1", testEmbedder, sampleDocs())
	require.NoError(t, err)
	old, err := m.Open(ctx, testEmbedder)
	require.NoError(t, err)

	_, err = m.WriteSnapshot(ctx, "snap-2", testEmbedder, []Document{doc(0, "only", 0, 0, 1)})
	require.NoError(t, err)
	_, err = m.WriteSnapshot(ctx, "snap-3", testEmbedder, []Document{doc(0, "newest", 0, 1, 0)})
	require.NoError(t, err)

	// the in-memory snapshot is untouched by rebuilds
	results, err := old.Query(ctx, []float32{1, 0, 0}, 1)
	require.NoError(t, err)
	assert.Equal(t, "east", results[0].Content)

	fresh, err := m.Open(ctx, testEmbedder)
	require.NoError(t, err)
	assert.Equal(t, "snap-3", fresh.SnapshotID)
	assert.Equal(t, 1, fresh.Chunks)

	// keep=2 retains the current snapshot and one predecessor
	assert.NoFileExists(t, filepath.Join(dir, "snapshots", "snap-1.gob.gz"))
	assert.FileExists(t, filepath.Join(dir, "snapshots", "snap-2.gob.gz"))
	assert.FileExists(t, filepath.Join(dir, "snapshots", "snap-3.gob.gz"))
}

func TestEncryptedSnapshot(t *testing.T) {
	key := "0123456789abcdef0123456789abcdef"
	m, dir := newManager(t, func(c *config.IndexConfig) { c.EncryptionKey = key })
	ctx := context.Background()

	manifest, err := m.WriteSnapshot(ctx, "snap-1", testEmbedder, sampleDocs())
	require.NoError(t, err)
	assert.True(t, manifest.Encrypted)
	assert.FileExists(t, filepath.Join(dir, "snapshots", "snap-1.gob.gz.enc"))

	snap, err := m.Open(ctx, testEmbedder)
	require.NoError(t, err)
	assert.Equal(t, 5, snap.Chunks)

	wrongKey := NewVectorDBManager(config.IndexConfig{Dir: dir, Collection: "statutes", EncryptionKey: "ffffffffffffffffffffffffffffffff"})
	_, err = wrongKey.Open(ctx, testEmbedder)
	assert.ErrorIs(t, err, models.ErrIndexCorrupt)
}
