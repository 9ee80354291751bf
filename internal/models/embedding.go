package models

import "time"

// CorpusDocument is a source file as read from the corpus directory.
type CorpusDocument struct {
	Path    string // corpus-relative, slash separated
	Title   string
	Content string
}

// Chunk is a contiguous slice of a document's cleaned text. StartIndex is a
// rune offset into that cleaned text.
type Chunk struct {
	ID         string
	DocumentID string
	Title      string
	Content    string
	StartIndex int
	ChunkIndex int
	Citation   string
	Year       *int
}

// IndexBuildResult describes a snapshot written by an ingest run.
type IndexBuildResult struct {
	SnapshotID string    `json:"snapshot_id"`
	Embedder   string    `json:"embedder"`
	Dimension  int       `json:"dimension"`
	Documents  int       `json:"documents"`
	Chunks     int       `json:"chunks"`
	Failed     []string  `json:"failed,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}
