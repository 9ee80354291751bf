package parser

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"legal-researcher/internal/models"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/textsplitter"
)

const (
	defaultChunkSize    = 1200 // runes
	defaultChunkOverlap = 200  // runes
)

// Separators are tried in order: paragraph, line, sentence, word, character.
var Separators = []string{"\n\n", "\n", ". ", " ", ""}

type Splitter struct {
	chunkSize    int
	chunkOverlap int
	splitter     textsplitter.RecursiveCharacter
}

func NewSplitter(chunkSize, chunkOverlap int) *Splitter {
	if chunkSize <= 0 {
		chunkSize = defaultChunkSize
	}
	if chunkOverlap < 0 || chunkOverlap >= chunkSize {
		chunkOverlap = min(defaultChunkOverlap, chunkSize/2)
	}
	return &Splitter{
		chunkSize:    chunkSize,
		chunkOverlap: chunkOverlap,
		splitter: textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(chunkSize),
			textsplitter.WithChunkOverlap(chunkOverlap),
			textsplitter.WithSeparators(Separators),
			textsplitter.WithLenFunc(utf8.RuneCountInString),
			textsplitter.WithKeepSeparator(true),
		),
	}
}

// Split cleans doc and cuts it into chunks. Each chunk records its rune offset
// in the cleaned text, the statute heading it falls under and the act year.
// Separators stay in the text; only whitespace may fall between two chunks.
func (s *Splitter) Split(doc models.CorpusDocument) ([]models.Chunk, error) {
	text := CleanText(doc.Content)
	if text == "" {
		return nil, nil
	}
	pieces, err := s.splitter.SplitText(text)
	if err != nil {
		return nil, fmt.Errorf("failed to split %s: %w", doc.Path, err)
	}

	headings := FindHeadings(text)
	year := ActYear(text)

	spans := s.locate(doc.Path, text, pieces)
	chunks := make([]models.Chunk, 0, len(spans))
	prevByte, prevRune := 0, 0
	for _, sp := range spans {
		if sp.start < prevByte {
			prevByte, prevRune = 0, 0
		}
		runeOff := prevRune + utf8.RuneCountInString(text[prevByte:sp.start])
		prevByte, prevRune = sp.start, runeOff

		chunk := models.Chunk{
			ID:         fmt.Sprintf("%s#%d", doc.Path, len(chunks)),
			DocumentID: doc.Path,
			Title:      doc.Title,
			Content:    text[sp.start:sp.end],
			StartIndex: runeOff,
			ChunkIndex: len(chunks),
			Year:       year,
		}
		if h, ok := headingFor(headings, sp.start, sp.end); ok {
			chunk.Citation = h.Citation
		}
		chunks = append(chunks, chunk)
	}
	return chunks, nil
}

// span is a byte range of the cleaned text.
type span struct {
	start, end int
}

// locate finds each piece in text. A piece the splitter opened with a
// sentence separator hands its period back to the preceding chunk when that
// chunk ends right there and still has room.
func (s *Splitter) locate(path, text string, pieces []string) []span {
	spans := make([]span, 0, len(pieces))
	prevByte, prevEnd := 0, 0
	for _, piece := range pieces {
		if piece == "" {
			continue
		}
		// a chunk starts after its predecessor and reuses at most the overlap
		from := prevByte
		if len(spans) > 0 {
			from = max(prevByte+1, backRunes(text, prevEnd, s.chunkOverlap))
		}
		byteOff := -1
		if from <= len(text) {
			if i := strings.Index(text[from:], piece); i >= 0 {
				byteOff = from + i
			}
		}
		if byteOff < 0 {
			// the previous end still bounds what has been covered
			if i := strings.Index(text[min(prevByte, len(text)):], piece); i >= 0 {
				byteOff = prevByte + i
			} else {
				log.Warn().Str("document", path).Int("chunk", len(spans)).Msg("chunk not found in cleaned text, reusing previous offset")
				byteOff = prevByte
			}
		}
		sp := span{start: byteOff, end: min(byteOff+len(piece), len(text))}

		if n := len(spans); n > 0 && text[sp.start] == '.' {
			prev := &spans[n-1]
			if prev.end == sp.start && utf8.RuneCountInString(text[prev.start:prev.end])+1 <= s.chunkSize {
				prev.end++
				sp.start = skipSpace(text, sp.start+1)
			}
		}
		prevEnd = max(prevEnd, sp.end)
		if sp.start >= sp.end {
			continue
		}
		prevByte = sp.start
		spans = append(spans, sp)
	}
	return spans
}

func skipSpace(text string, pos int) int {
	for pos < len(text) && (text[pos] == ' ' || text[pos] == '\n') {
		pos++
	}
	return pos
}

// backRunes moves pos back by n runes within text.
func backRunes(text string, pos, n int) int {
	for ; n > 0 && pos > 0; n-- {
		_, size := utf8.DecodeLastRuneInString(text[:pos])
		pos -= size
	}
	return pos
}
