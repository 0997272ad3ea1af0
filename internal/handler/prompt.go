package handler

import (
	"fmt"
	"strings"

	"github.com/dshills/pdfquery-mcp/pkg/types"
)

// SystemPrompt instructs the model to stay within the retrieved context
const SystemPrompt = `You are a helpful assistant that answers questions based on the provided document context.

Instructions:
- Answer the question using ONLY the information from the provided context
- If the context doesn't contain enough information, say so clearly
- Be concise and accurate
- Cite specific sources when possible
- Do not make up information not present in the context`

// NoMatchAnswer is returned without calling the generator when retrieval is empty
const NoMatchAnswer = "I couldn't find any relevant information in the documents to answer your question."

// BuildContext renders chunks as numbered source blocks
func BuildContext(chunks []types.ScoredChunk) string {
	blocks := make([]string, len(chunks))
	for i, c := range chunks {
		blocks[i] = fmt.Sprintf("[Source %d: %s]\n%s\n", i+1, c.SourceDocument, c.Content)
	}
	return strings.Join(blocks, "\n")
}

// UserPrompt combines the context blocks and the question
func UserPrompt(context, question string) string {
	return fmt.Sprintf("Context from documents:\n%s\n\nQuestion: %s\n\nAnswer:", context, question)
}

// Preview truncates text to at most n runes, marking the cut with "..."
func Preview(text string, n int) string {
	runes := []rune(text)
	if len(runes) <= n {
		return text
	}
	return string(runes[:n]) + "..."
}

type sourceKey struct {
	name    string
	page    int
	hasPage bool
}

// BuildSources returns one citation per (document, page) in first-seen order
func BuildSources(chunks []types.ScoredChunk, previewLength int) []types.Source {
	seen := make(map[sourceKey]struct{}, len(chunks))
	sources := make([]types.Source, 0, len(chunks))

	for _, c := range chunks {
		key := sourceKey{name: c.SourceDocument}
		if c.PageNumber != nil {
			key.page = *c.PageNumber
			key.hasPage = true
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}

		sources = append(sources, types.Source{
			DocumentName: c.SourceDocument,
			PageNumber:   c.PageNumber,
			ChunkPreview: Preview(c.Content, previewLength),
		})
	}
	return sources
}
