package output

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"legal-researcher/internal/models"
	"legal-researcher/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleReport() *models.Report {
	return &models.Report{
		CaseID: "case-7",
		RunID:  "run-1",
		Entities: models.EntityExtraction{
			Parties: []string{"State", "Accused"},
			Issues:  []string{"theft of a motorcycle"},
		},
		Retrievals: models.RetrievalBundle{
			Statutes:   []models.RetrievalHit{},
			Precedents: []models.RetrievalHit{},
		},
		Reasoning: models.ReasoningOutput{
			Analysis:              "Dishonest removal of movable property.",
			Principles:            []string{},
			LikelyInterpretations: []string{},
		},
		Recommendations: []string{},
		Markdown:        "# Report\n\n| Section | Act |\n|---|---|\n| 379 | IPC |\n\nline one\nline two",
		GeneratedAt:     time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func TestWriter_WritesAllArtifacts(t *testing.T) {
	dir := t.TempDir()
	store, err := storage.NewLocalStore(dir)
	require.NoError(t, err)
	w := NewWriter(store, true)

	arts, err := w.Write(context.Background(), sampleReport())
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "case-7", "run-1", "report.md"), arts.Markdown)
	assert.Equal(t, filepath.Join(dir, "case-7", "run-1", "report.json"), arts.JSON)
	assert.Equal(t, filepath.Join(dir, "case-7", "run-1", "report.html"), arts.HTML)

	md, err := os.ReadFile(arts.Markdown)
	require.NoError(t, err)
	assert.Equal(t, sampleReport().Markdown, string(md))

	page, err := os.ReadFile(arts.HTML)
	require.NoError(t, err)
	assert.Contains(t, string(page), "<h1>Report</h1>")
	assert.Contains(t, string(page), "<table>")
	assert.Contains(t, string(page), "line one<br>")
	assert.Contains(t, string(page), "<title>Legal research report: case-7</title>")
}

func TestWriter_SkipsHTMLWhenDisabled(t *testing.T) {
	dir := t.TempDir()
	store, err := storage.NewLocalStore(dir)
	require.NoError(t, err)

	arts, err := NewWriter(store, false).Write(context.Background(), sampleReport())
	require.NoError(t, err)
	assert.Empty(t, arts.HTML)
	_, err = os.Stat(filepath.Join(dir, "case-7", "run-1", "report.html"))
	assert.True(t, os.IsNotExist(err))
}

func TestWriter_NeverOverwrites(t *testing.T) {
	store, err := storage.NewLocalStore(t.TempDir())
	require.NoError(t, err)
	w := NewWriter(store, false)

	_, err = w.Write(context.Background(), sampleReport())
	require.NoError(t, err)
	_, err = w.Write(context.Background(), sampleReport())
	assert.ErrorIs(t, err, models.ErrArtifactExists)
}

func TestRead_RoundTrip(t *testing.T) {
	store, err := storage.NewLocalStore(t.TempDir())
	require.NoError(t, err)
	_, err = NewWriter(store, false).Write(context.Background(), sampleReport())
	require.NoError(t, err)

	got, err := Read(context.Background(), store, "case-7", "run-1")
	require.NoError(t, err)
	assert.Equal(t, sampleReport(), got)

	_, err = Read(context.Background(), store, "case-7", "run-2")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestRenderHTML_EscapesTitle(t *testing.T) {
	r := sampleReport()
	r.CaseID = "<b>x</b>"
	page, err := NewWriter(nil, true).RenderHTML(r)
	require.NoError(t, err)
	assert.Contains(t, string(page), "&lt;b&gt;x&lt;/b&gt;")
}
