package parser

import (
	"fmt"
	"html"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"legal-researcher/internal/models"

	"github.com/ledongthuc/pdf"
	"github.com/nguyenthenguyen/docx"
)

var (
	horizontalSpaceRe = regexp.MustCompile(`[^\S\n]+`)
	newlineRunRe      = regexp.MustCompile(`\s*\n\s*`)
	xmlTagRe          = regexp.MustCompile(`<[^>]+>`)
)

// SupportedExtensions lists the corpus file types LoadDocument understands.
var SupportedExtensions = map[string]bool{
	".txt":  true,
	".text": true,
	".md":   true,
	".pdf":  true,
	".docx": true,
}

func IsSupported(path string) bool {
	return SupportedExtensions[strings.ToLower(filepath.Ext(path))]
}

// LoadDocument reads a corpus file and returns its raw text. relPath becomes
// the document identifier.
func LoadDocument(path, relPath string) (models.CorpusDocument, error) {
	var (
		text string
		err  error
	)
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".pdf":
		text, err = parsePDF(path)
	case ".docx":
		text, err = parseDOCX(path)
	case ".txt", ".text", ".md":
		text, err = parseText(path)
	default:
		return models.CorpusDocument{}, fmt.Errorf("%w: %s", models.ErrUnsupportedFormat, ext)
	}
	if err != nil {
		return models.CorpusDocument{}, err
	}
	return models.CorpusDocument{
		Path:    filepath.ToSlash(relPath),
		Title:   filepath.Base(path),
		Content: text,
	}, nil
}

// CleanText collapses horizontal whitespace to one space and newline runs to
// one newline, then trims the result.
func CleanText(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = horizontalSpaceRe.ReplaceAllString(text, " ")
	text = newlineRunRe.ReplaceAllString(text, "\n")
	return strings.TrimSpace(text)
}

func parsePDF(filePath string) (string, error) {
	f, reader, err := pdf.Open(filePath)
	if err != nil {
		return "", err
	}
	defer f.Close()

	var pages []string
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("page %d: %w", i, err)
		}
		pages = append(pages, pageText)
	}
	return strings.Join(pages, "\n\n"), nil
}

func parseDOCX(filePath string) (string, error) {
	r, err := docx.ReadDocxFile(filePath)
	if err != nil {
		return "", err
	}
	defer r.Close()

	return extractTextFromXML(r.Editable().GetContent()), nil
}

func parseText(filePath string) (string, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return "", err
	}
	return strings.ToValidUTF8(string(data), ""), nil
}

// extractTextFromXML keeps the text runs of a WordprocessingML body, one
// paragraph per line.
func extractTextFromXML(xmlContent string) string {
	xmlContent = strings.ReplaceAll(xmlContent, "</w:p>", "\n")
	xmlContent = strings.ReplaceAll(xmlContent, "<w:tab/>", " ")
	return html.UnescapeString(xmlTagRe.ReplaceAllString(xmlContent, ""))
}
