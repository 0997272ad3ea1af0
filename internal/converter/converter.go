package converter

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dshills/pdfquery-mcp/pkg/types"
)

// Converter produces Markdown from a document on disk
type Converter interface {
	// Convert reads the document at path and returns its Markdown rendering
	Convert(ctx context.Context, path string) (string, error)

	// Name identifies the conversion method; cached output is keyed by it
	Name() string
}

// MarkdownConverter returns Markdown and plain text files as they are
type MarkdownConverter struct{}

// NewMarkdownConverter creates a passthrough converter
func NewMarkdownConverter() *MarkdownConverter {
	return &MarkdownConverter{}
}

func (m *MarkdownConverter) Convert(ctx context.Context, path string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", types.WrapError(types.ErrDocumentConversion, "converter.markdown", err)
	}
	return string(data), nil
}

func (m *MarkdownConverter) Name() string {
	return "markdown"
}

// Router dispatches to a converter by lowercase file extension
type Router struct {
	byExt map[string]Converter
}

// NewRouter creates an empty router
func NewRouter() *Router {
	return &Router{byExt: make(map[string]Converter)}
}

// Register binds converter c to the given extensions (with or without dot)
func (r *Router) Register(c Converter, exts ...string) *Router {
	for _, ext := range exts {
		ext = strings.ToLower(ext)
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		r.byExt[ext] = c
	}
	return r
}

// For returns the converter registered for path's extension
func (r *Router) For(path string) (Converter, bool) {
	c, ok := r.byExt[strings.ToLower(filepath.Ext(path))]
	return c, ok
}

func (r *Router) Convert(ctx context.Context, path string) (string, error) {
	c, ok := r.For(path)
	if !ok {
		return "", types.NewError(types.ErrDocumentConversion, "converter.route",
			fmt.Sprintf("no converter for %q", filepath.Ext(path)))
	}
	return c.Convert(ctx, path)
}

func (r *Router) Name() string {
	return "router"
}

// DefaultRouter handles Markdown and plain text directly and PDFs with pdf.
// A nil pdf falls back to the plain text PDF reader.
func DefaultRouter(pdf Converter) *Router {
	if pdf == nil {
		pdf = NewPDFConverter()
	}
	md := NewMarkdownConverter()
	return NewRouter().
		Register(md, ".md", ".markdown", ".txt").
		Register(pdf, ".pdf")
}
