package converter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dshills/pdfquery-mcp/pkg/types"
)

// DefaultDoclingPath is the docling-serve synchronous file conversion route
const DefaultDoclingPath = "/v1/convert/file"

const defaultDoclingTimeout = 5 * time.Minute

// DoclingConverter posts documents to a docling-serve compatible service and
// returns the Markdown rendering it produces
type DoclingConverter struct {
	endpoint   string
	httpClient *http.Client
}

// DoclingConfig configures the HTTP converter
type DoclingConfig struct {
	BaseURL string
	Path    string        // DefaultDoclingPath when empty
	Timeout time.Duration // Five minutes when zero
}

// NewDoclingConverter creates an HTTP converter
func NewDoclingConverter(cfg DoclingConfig) (*DoclingConverter, error) {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		return nil, types.NewError(types.ErrConfiguration, "converter.docling", "base URL is required")
	}
	path := cfg.Path
	if path == "" {
		path = DefaultDoclingPath
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultDoclingTimeout
	}
	return &DoclingConverter{
		endpoint:   base + path,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

func (d *DoclingConverter) Name() string {
	return "docling"
}

type doclingResponse struct {
	Document struct {
		Filename  string `json:"filename"`
		MDContent string `json:"md_content"`
	} `json:"document"`
	Status string            `json:"status"`
	Errors []json.RawMessage `json:"errors"`
}

func (d *DoclingConverter) Convert(ctx context.Context, path string) (string, error) {
	body, contentType, err := d.buildForm(path)
	if err != nil {
		return "", types.WrapError(types.ErrDocumentConversion, "converter.docling", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.endpoint, body)
	if err != nil {
		return "", types.WrapError(types.ErrDocumentConversion, "converter.docling", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return "", types.WrapError(types.ErrDocumentConversion, "converter.docling", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", types.NewError(types.ErrDocumentConversion, "converter.docling",
			fmt.Sprintf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))))
	}

	var out doclingResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", types.WrapError(types.ErrDocumentConversion, "converter.docling", fmt.Errorf("decode response: %w", err))
	}
	if out.Status != "" && out.Status != "success" && out.Status != "partial_success" {
		return "", types.NewError(types.ErrDocumentConversion, "converter.docling",
			fmt.Sprintf("conversion status %s", out.Status))
	}
	return out.Document.MDContent, nil
}

// buildForm encodes the file and conversion options as multipart form data.
// OCR is disabled; only the embedded text layer is used.
func (d *DoclingConverter) buildForm(path string) (io.Reader, string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, "", err
	}
	defer func() { _ = f.Close() }()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	part, err := w.CreateFormFile("files", filepath.Base(path))
	if err != nil {
		return nil, "", err
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, "", err
	}

	fields := [][2]string{
		{"to_formats", "md"},
		{"do_ocr", "false"},
		{"do_table_structure", "false"},
	}
	for _, kv := range fields {
		if err := w.WriteField(kv[0], kv[1]); err != nil {
			return nil, "", err
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}
