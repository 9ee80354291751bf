package output

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"strings"

	"legal-researcher/internal/models"
	"legal-researcher/internal/storage"

	"github.com/rs/zerolog/log"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	gmhtml "github.com/yuin/goldmark/renderer/html"
)

const (
	MarkdownFile = "report.md"
	JSONFile     = "report.json"
	HTMLFile     = "report.html"
)

// Artifacts are the locations a report was written to. HTML is empty when
// rendering is disabled.
type Artifacts struct {
	Markdown string `json:"markdown"`
	JSON     string `json:"json"`
	HTML     string `json:"html,omitempty"`
}

type Writer struct {
	store      storage.Store
	renderHTML bool
	md         goldmark.Markdown
}

func NewWriter(store storage.Store, renderHTML bool) *Writer {
	return &Writer{
		store:      store,
		renderHTML: renderHTML,
		md: goldmark.New(
			goldmark.WithExtensions(extension.GFM),
			goldmark.WithRendererOptions(
				gmhtml.WithHardWraps(),
			),
		),
	}
}

// Write stores the markdown and JSON forms of r, and the HTML form when
// enabled, under <case_id>/<run_id>/. Existing artifacts are never replaced.
func (w *Writer) Write(ctx context.Context, r *models.Report) (Artifacts, error) {
	var out Artifacts
	if r == nil {
		return out, fmt.Errorf("report is nil")
	}

	loc, err := w.store.Put(ctx, storage.ArtifactKey(r.CaseID, r.RunID, MarkdownFile), []byte(r.Markdown))
	if err != nil {
		return out, fmt.Errorf("failed to write markdown report: %w", err)
	}
	out.Markdown = loc

	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return out, fmt.Errorf("failed to encode report: %w", err)
	}
	if out.JSON, err = w.store.Put(ctx, storage.ArtifactKey(r.CaseID, r.RunID, JSONFile), data); err != nil {
		return out, fmt.Errorf("failed to write json report: %w", err)
	}

	if w.renderHTML {
		page, err := w.RenderHTML(r)
		if err != nil {
			return out, err
		}
		if out.HTML, err = w.store.Put(ctx, storage.ArtifactKey(r.CaseID, r.RunID, HTMLFile), page); err != nil {
			return out, fmt.Errorf("failed to write html report: %w", err)
		}
	}

	log.Info().Str("case_id", r.CaseID).Str("run_id", r.RunID).Str("markdown", out.Markdown).Msg("report written")
	return out, nil
}

// RenderHTML converts the report markdown into a standalone page.
func (w *Writer) RenderHTML(r *models.Report) ([]byte, error) {
	var body bytes.Buffer
	if err := w.md.Convert([]byte(r.Markdown), &body); err != nil {
		return nil, fmt.Errorf("failed to render report html: %w", err)
	}

	var page bytes.Buffer
	page.WriteString("<!DOCTYPE html>\n<html lang=\"en\">\n<head>\n<meta charset=\"utf-8\">\n")
	fmt.Fprintf(&page, "<title>Legal research report: %s</title>\n", html.EscapeString(r.CaseID))
	page.WriteString("</head>\n<body>\n")
	page.WriteString(strings.Trim(body.String(), " \t\n\r"))
	page.WriteString("\n</body>\n</html>\n")
	return page.Bytes(), nil
}

// Read loads a previously written report.
func Read(ctx context.Context, store storage.Store, caseID, runID string) (*models.Report, error) {
	rc, err := store.Get(ctx, storage.ArtifactKey(caseID, runID, JSONFile))
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("failed to read report: %w", err)
	}
	var r models.Report
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to decode report: %w", err)
	}
	return &r, nil
}
