package chunker

import (
	"strings"
	"unicode/utf8"

	"github.com/dshills/pdfquery-mcp/pkg/types"
)

// Section is a run of Markdown text sharing the same enclosing headings
type Section struct {
	Content string
	Header1 string
	Header2 string
}

// DefaultMaxSectionRunes bounds a chunk well below common embedding input limits
const DefaultMaxSectionRunes = 4000

// Chunker splits converted Markdown into heading-scoped chunks
type Chunker struct {
	maxRunes int
}

// New creates a Chunker with the default section size limit
func New() *Chunker {
	return NewWithLimit(DefaultMaxSectionRunes)
}

// NewWithLimit creates a Chunker whose sections hold at most maxRunes runes.
// A non-positive limit selects the default.
func NewWithLimit(maxRunes int) *Chunker {
	if maxRunes <= 0 {
		maxRunes = DefaultMaxSectionRunes
	}
	return &Chunker{maxRunes: maxRunes}
}

// ChunkDocument splits markdown into chunks attributed to documentName.
// Chunk hashes are computed; IDs are left for storage to assign.
func (c *Chunker) ChunkDocument(documentName, markdown string) []*types.Chunk {
	sections := Limit(Split(markdown), c.maxRunes)
	chunks := make([]*types.Chunk, 0, len(sections))
	for i, sec := range sections {
		chunk := &types.Chunk{
			Content:        sec.Content,
			SourceDocument: documentName,
			Header1:        sec.Header1,
			Header2:        sec.Header2,
			Ordinal:        i,
		}
		chunk.ComputeContentHash()
		chunks = append(chunks, chunk)
	}
	return chunks
}

// header levels recognised as split points
var headers = []struct {
	marker string
	level  int
}{
	// longest marker first so "##" is not read as "#"
	{"##", 2},
	{"#", 1},
}

// Split divides markdown at level-1 and level-2 ATX headings.
//
// Heading lines are not part of any section. A level-1 heading clears the
// level-2 heading. Deeper headings and lines inside fenced code blocks are
// ordinary content. Paragraphs of one section are joined with a blank line
// and sections without non-blank text are dropped.
func Split(markdown string) []Section {
	var (
		sections   []Section
		paragraph  []string
		paragraphs []string
		h1, h2     string
		fence      string
	)

	flushParagraph := func() {
		if len(paragraph) > 0 {
			paragraphs = append(paragraphs, strings.Join(paragraph, "\n"))
			paragraph = paragraph[:0]
		}
	}
	flushSection := func() {
		flushParagraph()
		if len(paragraphs) > 0 {
			sections = append(sections, Section{
				Content: strings.Join(paragraphs, "\n\n"),
				Header1: h1,
				Header2: h2,
			})
			paragraphs = paragraphs[:0]
		}
	}

	for _, line := range strings.Split(markdown, "\n") {
		trimmed := strings.TrimSpace(line)

		if fence != "" {
			// Inside a code block lines are kept verbatim, blank ones included
			paragraph = append(paragraph, strings.TrimRight(line, " \t\r"))
			if strings.HasPrefix(trimmed, fence) {
				fence = ""
			}
			continue
		}

		if f := openingFence(trimmed); f != "" {
			fence = f
			paragraph = append(paragraph, trimmed)
			continue
		}

		if level, name, ok := parseHeader(trimmed); ok {
			flushSection()
			switch level {
			case 1:
				h1, h2 = name, ""
			case 2:
				h2 = name
			}
			continue
		}

		if trimmed == "" {
			flushParagraph()
			continue
		}
		paragraph = append(paragraph, trimmed)
	}
	flushSection()

	return sections
}

// parseHeader reports whether line is a split-point heading
func parseHeader(line string) (level int, name string, ok bool) {
	for _, h := range headers {
		if !strings.HasPrefix(line, h.marker) {
			continue
		}
		rest := line[len(h.marker):]
		if rest == "" || rest[0] == ' ' || rest[0] == '\t' {
			return h.level, strings.TrimSpace(rest), true
		}
		// "###" and deeper fall through to content
		return 0, "", false
	}
	return 0, "", false
}

func openingFence(line string) string {
	for _, f := range []string{"```", "~~~"} {
		if strings.HasPrefix(line, f) {
			return f
		}
	}
	return ""
}

// Limit breaks sections longer than maxRunes into consecutive pieces under
// the same headings. Text without headings, such as extracted PDF pages, would
// otherwise become one chunk per document.
func Limit(sections []Section, maxRunes int) []Section {
	out := make([]Section, 0, len(sections))
	for _, sec := range sections {
		if utf8.RuneCountInString(sec.Content) <= maxRunes {
			out = append(out, sec)
			continue
		}
		for _, piece := range splitLong(sec.Content, maxRunes) {
			out = append(out, Section{Content: piece, Header1: sec.Header1, Header2: sec.Header2})
		}
	}
	return out
}

// splitLong packs paragraphs into pieces of at most maxRunes runes. A
// paragraph that alone exceeds the limit is packed word by word.
func splitLong(text string, maxRunes int) []string {
	var (
		pieces []string
		cur    strings.Builder
		curLen int
	)
	emit := func() {
		if curLen > 0 {
			pieces = append(pieces, cur.String())
			cur.Reset()
			curLen = 0
		}
	}
	add := func(part, sep string) {
		n := utf8.RuneCountInString(part)
		if curLen > 0 && curLen+len(sep)+n > maxRunes {
			emit()
		}
		if curLen > 0 {
			cur.WriteString(sep)
			curLen += len(sep)
		}
		cur.WriteString(part)
		curLen += n
	}

	for _, para := range strings.Split(text, "\n\n") {
		if utf8.RuneCountInString(para) <= maxRunes {
			add(para, "\n\n")
			continue
		}
		emit()
		for _, word := range strings.Fields(para) {
			for _, w := range cutRunes(word, maxRunes) {
				add(w, " ")
			}
		}
		emit()
	}
	emit()
	return pieces
}

func cutRunes(s string, maxRunes int) []string {
	runes := []rune(s)
	if len(runes) <= maxRunes {
		return []string{s}
	}
	parts := make([]string, 0, len(runes)/maxRunes+1)
	for len(runes) > maxRunes {
		parts = append(parts, string(runes[:maxRunes]))
		runes = runes[maxRunes:]
	}
	return append(parts, string(runes))
}
