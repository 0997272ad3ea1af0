package chunker

import (
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/pdfquery-mcp/pkg/types"
)

func TestNew(t *testing.T) {
	assert.NotNil(t, New())
}

func TestSplit(t *testing.T) {
	tests := []struct {
		name     string
		markdown string
		want     []Section
	}{
		{
			name:     "empty document",
			markdown: "",
			want:     nil,
		},
		{
			name:     "whitespace only",
			markdown: "  \n\n\t\n",
			want:     nil,
		},
		{
			name:     "no headings",
			markdown: "Just some text.\nSecond line.",
			want: []Section{
				{Content: "Just some text.\nSecond line."},
			},
		},
		{
			name: "preamble then sections",
			markdown: `Intro text.

# Install
Run the installer.

## Linux
Use the package.

## Windows
Use the exe.

# Usage
Start it.`,
			want: []Section{
				{Content: "Intro text."},
				{Content: "Run the installer.", Header1: "Install"},
				{Content: "Use the package.", Header1: "Install", Header2: "Linux"},
				{Content: "Use the exe.", Header1: "Install", Header2: "Windows"},
				{Content: "Start it.", Header1: "Usage"},
			},
		},
		{
			name:     "level-1 heading clears level-2",
			markdown: "# A\n## B\ntext b\n# C\ntext c",
			want: []Section{
				{Content: "text b", Header1: "A", Header2: "B"},
				{Content: "text c", Header1: "C"},
			},
		},
		{
			name:     "level-2 without level-1",
			markdown: "## Only Two\nbody",
			want: []Section{
				{Content: "body", Header2: "Only Two"},
			},
		},
		{
			name:     "deeper headings are content",
			markdown: "# Top\n### Detail\nmore",
			want: []Section{
				{Content: "### Detail\nmore", Header1: "Top"},
			},
		},
		{
			name:     "paragraphs joined with blank line",
			markdown: "# Top\nfirst para\n\n\nsecond para\nline two",
			want: []Section{
				{Content: "first para\n\nsecond para\nline two", Header1: "Top"},
			},
		},
		{
			name:     "empty sections dropped",
			markdown: "# Empty\n\n# Full\ncontent",
			want: []Section{
				{Content: "content", Header1: "Full"},
			},
		},
		{
			name:     "hash without space is not a heading",
			markdown: "#hashtag text",
			want: []Section{
				{Content: "#hashtag text"},
			},
		},
		{
			name:     "heading inside code fence",
			markdown: "# Code\n```bash\n# comment\n\n  echo hi\n```\nafter",
			want: []Section{
				{Content: "```bash\n# comment\n\n  echo hi\n```\nafter", Header1: "Code"},
			},
		},
		{
			name:     "tilde fence",
			markdown: "~~~\n## not a heading\n~~~",
			want: []Section{
				{Content: "~~~\n## not a heading\n~~~"},
			},
		},
		{
			name:     "crlf line endings",
			markdown: "# Title\r\nbody\r\n",
			want: []Section{
				{Content: "body", Header1: "Title"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Split(tt.markdown))
		})
	}
}

func TestChunkDocument(t *testing.T) {
	c := New()
	chunks := c.ChunkDocument("guide.pdf", "preface\n# One\nalpha\n## Two\nbeta")

	require.Len(t, chunks, 3)
	for i, chunk := range chunks {
		assert.Equal(t, "guide.pdf", chunk.SourceDocument)
		assert.Equal(t, i, chunk.Ordinal)
		assert.Nil(t, chunk.PageNumber)
		assert.Equal(t, types.HashContent(chunk.Content), chunk.ContentHash)
		assert.NoError(t, chunk.Validate())
	}

	assert.Empty(t, chunks[0].HeadingPath())
	assert.Equal(t, []string{"One"}, chunks[1].HeadingPath())
	assert.Equal(t, []string{"One", "Two"}, chunks[2].HeadingPath())
}

func TestChunkDocument_Deterministic(t *testing.T) {
	md := "# A\nx\n## B\ny\n# C\nz"
	c := New()
	assert.Equal(t, c.ChunkDocument("d", md), c.ChunkDocument("d", md))
}

func TestChunkDocument_LongTextWithoutHeadings(t *testing.T) {
	var pages []string
	for p := 0; p < 20; p++ {
		var words []string
		for w := 0; w < 150; w++ {
			words = append(words, fmt.Sprintf("p%dw%d", p, w))
		}
		pages = append(pages, strings.Join(words, " "))
	}
	text := strings.Join(pages, "\n\n")

	c := NewWithLimit(500)
	chunks := c.ChunkDocument("scan.pdf", text)

	require.Greater(t, len(chunks), 20)
	var words []string
	for i, chunk := range chunks {
		assert.LessOrEqual(t, utf8.RuneCountInString(chunk.Content), 500)
		assert.Equal(t, i, chunk.Ordinal)
		assert.Nil(t, chunk.PageNumber)
		assert.Empty(t, chunk.HeadingPath())
		words = append(words, strings.Fields(chunk.Content)...)
	}
	assert.Equal(t, strings.Fields(text), words, "no text may be lost or reordered")
}

func TestLimit(t *testing.T) {
	tests := []struct {
		name    string
		section Section
		max     int
		want    []string
	}{
		{"short kept", Section{Content: "alpha beta"}, 20, []string{"alpha beta"}},
		{"paragraphs packed", Section{Content: "aaaa\n\nbbbb\n\ncccc"}, 10, []string{"aaaa\n\nbbbb", "cccc"}},
		{"long paragraph by words", Section{Content: "one two three four"}, 8, []string{"one two", "three", "four"}},
		{"long word cut", Section{Content: "abcdefghij"}, 4, []string{"abcd", "efgh", "ij"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.section.Header1 = "H"
			got := Limit([]Section{tt.section}, tt.max)
			var contents []string
			for _, sec := range got {
				assert.Equal(t, "H", sec.Header1)
				contents = append(contents, sec.Content)
			}
			assert.Equal(t, tt.want, contents)
		})
	}
}

func TestNewWithLimit_Default(t *testing.T) {
	assert.Equal(t, DefaultMaxSectionRunes, NewWithLimit(0).maxRunes)
}
