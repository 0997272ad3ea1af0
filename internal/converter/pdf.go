package converter

import (
	"context"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/dshills/pdfquery-mcp/pkg/types"
)

// PDFConverter extracts the plain text layer of a PDF, one paragraph block
// per page. It performs no OCR or layout analysis, so scanned pages yield
// nothing.
type PDFConverter struct{}

// NewPDFConverter creates a plain text PDF converter
func NewPDFConverter() *PDFConverter {
	return &PDFConverter{}
}

func (p *PDFConverter) Name() string {
	return "pdf-text"
}

func (p *PDFConverter) Convert(ctx context.Context, path string) (markdown string, err error) {
	// The reader panics on some malformed files
	defer func() {
		if r := recover(); r != nil {
			markdown = ""
			err = types.NewError(types.ErrDocumentConversion, "converter.pdf", fmt.Sprintf("malformed pdf: %v", r))
		}
	}()

	f, rdr, err := pdf.Open(path)
	if err != nil {
		return "", types.WrapError(types.ErrDocumentConversion, "converter.pdf", err)
	}
	defer func() { _ = f.Close() }()

	pages := make([]string, 0, rdr.NumPage())
	for i := 1; i <= rdr.NumPage(); i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		page := rdr.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return "", types.WrapError(types.ErrDocumentConversion, "converter.pdf",
				fmt.Errorf("page %d: %w", i, err))
		}
		if text = strings.TrimSpace(text); text != "" {
			pages = append(pages, text)
		}
	}

	return strings.Join(pages, "\n\n"), nil
}
