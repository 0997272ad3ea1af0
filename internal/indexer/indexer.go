package indexer

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/pdfquery-mcp/internal/chunker"
	"github.com/dshills/pdfquery-mcp/internal/converter"
	"github.com/dshills/pdfquery-mcp/internal/embedder"
	"github.com/dshills/pdfquery-mcp/internal/storage"
	"github.com/dshills/pdfquery-mcp/pkg/types"
)

// Builder coordinates the corpus pipeline:
// discover -> convert -> split -> dedup -> embed -> replace
type Builder struct {
	converter converter.Converter
	chunker   *chunker.Chunker
	embedder  embedder.Embedder
	storage   storage.Storage
	logger    *slog.Logger
}

// Config contains configuration for a build
type Config struct {
	Root      string   // Documents directory
	Include   []string // doublestar patterns (default: DefaultInclude)
	Exclude   []string
	Workers   int // Concurrent conversions (default: runtime.NumCPU())
	BatchSize int // Texts per embedding request (default: embedder.DefaultBatchSize)
}

// Stage names a phase reported to a ProgressFunc
type Stage string

const (
	StageConvert Stage = "convert"
	StageEmbed   Stage = "embed"
)

// ProgressFunc receives progress updates. It may be called from several
// goroutines during conversion.
type ProgressFunc func(stage Stage, processed, total int)

// Statistics contains statistics about a build
type Statistics struct {
	BuildID           string
	DocumentsFound    int
	DocumentsIndexed  int
	DocumentsFailed   int
	DocumentsEmpty    int
	CandidateChunks   int
	DuplicatesDropped int
	ChunksStored      int
	Duration          time.Duration
	ErrorMessages     []string
}

// New creates a new Builder
func New(conv converter.Converter, emb embedder.Embedder, store storage.Storage, logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{
		converter: conv,
		chunker:   chunker.New(),
		embedder:  emb,
		storage:   store,
		logger:    logger,
	}
}

// conversion is the outcome of converting one document
type conversion struct {
	markdown string
	hash     [32]byte
	err      error
}

// Build rebuilds the whole corpus from the documents under config.Root. The
// stored corpus is replaced only when every step succeeds; otherwise the
// previous corpus is left untouched.
func (b *Builder) Build(ctx context.Context, config *Config, progress ProgressFunc) (*Statistics, error) {
	if config == nil || config.Root == "" {
		return nil, types.NewError(types.ErrConfiguration, "indexer.build", "documents directory is required")
	}
	if progress == nil {
		progress = func(Stage, int, int) {}
	}

	workers := config.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	batchSize := config.BatchSize
	if batchSize <= 0 {
		batchSize = embedder.DefaultBatchSize
	}
	if batchSize > embedder.MaxBatchSize {
		batchSize = embedder.MaxBatchSize
	}

	startTime := time.Now()
	stats := &Statistics{
		BuildID:       uuid.NewString(),
		ErrorMessages: make([]string, 0),
	}

	files, err := Discover(config.Root, config.Include, config.Exclude)
	if err != nil {
		return nil, types.WrapError(types.ErrConfiguration, "indexer.discover", err)
	}
	stats.DocumentsFound = len(files)
	if len(files) == 0 {
		return nil, types.NewError(types.ErrEmptyCorpus, "indexer.build",
			fmt.Sprintf("no documents found in %s", config.Root))
	}
	b.logger.Info("documents_discovered", "root", config.Root, "documents", len(files))

	results, err := b.convertAll(ctx, files, workers, progress)
	if err != nil {
		return nil, err
	}

	snap, texts := b.assemble(files, results, stats)
	if stats.ChunksStored == 0 {
		return nil, types.NewError(types.ErrEmptyCorpus, "indexer.build", "no chunks were produced from any document")
	}

	vectors, err := b.embedAll(ctx, texts, batchSize, progress)
	if err != nil {
		return nil, err
	}

	// Hand the vectors back to their documents in order
	next := 0
	for _, sd := range snap.Documents {
		sd.Vectors = vectors[next : next+len(sd.Chunks)]
		next += len(sd.Chunks)
	}

	snap.Corpus = &storage.Corpus{
		BuildID:            stats.BuildID,
		EmbeddingProvider:  b.embedder.Provider(),
		EmbeddingModel:     b.embedder.Model(),
		EmbeddingDimension: b.embedder.Dimension(),
		DuplicateCount:     stats.DuplicatesDropped,
		BuiltAt:            time.Now().UTC(),
	}

	if err := storage.ReplaceCorpus(ctx, b.storage, snap); err != nil {
		return nil, fmt.Errorf("failed to store corpus: %w", err)
	}

	stats.Duration = time.Since(startTime)
	b.logger.Info("corpus_built",
		"build_id", stats.BuildID,
		"documents", stats.DocumentsIndexed,
		"failed", stats.DocumentsFailed,
		"chunks", stats.ChunksStored,
		"duplicates", stats.DuplicatesDropped,
		"duration_ms", stats.Duration.Milliseconds(),
	)
	return stats, nil
}

// convertAll converts documents concurrently. Results are indexed like files,
// so downstream processing stays in discovery order.
func (b *Builder) convertAll(ctx context.Context, files []DocumentFile, workers int, progress ProgressFunc) ([]conversion, error) {
	results := make([]conversion, len(files))
	var done atomic.Int32

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i, file := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			hash, err := computeFileHash(file.Path)
			if err != nil {
				results[i] = conversion{err: err}
			} else {
				md, err := b.converter.Convert(gctx, file.Path)
				results[i] = conversion{markdown: md, hash: hash, err: err}
			}

			progress(StageConvert, int(done.Add(1)), len(files))
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

// assemble splits converted documents into chunks and drops any chunk whose
// content hash was already seen in this build. The first occurrence wins.
func (b *Builder) assemble(files []DocumentFile, results []conversion, stats *Statistics) (*storage.Snapshot, []string) {
	snap := &storage.Snapshot{Documents: make([]*storage.SnapshotDocument, 0, len(files))}
	seen := make(map[[32]byte]struct{})
	var texts []string

	for i, file := range files {
		res := results[i]
		doc := &storage.Document{
			Path:        file.RelPath,
			Name:        file.Name,
			ContentHash: res.hash,
			SizeBytes:   file.Size,
			Status:      storage.DocumentIndexed,
		}
		sd := &storage.SnapshotDocument{Document: doc}
		snap.Documents = append(snap.Documents, sd)

		if res.err != nil {
			b.recordFailure(stats, doc, storage.DocumentFailed, res.err)
			continue
		}

		chunks := b.chunker.ChunkDocument(file.Name, res.markdown)
		if len(chunks) == 0 {
			b.recordFailure(stats, doc, storage.DocumentEmpty,
				types.NewError(types.ErrDocumentConversion, "indexer.split", "no text extracted"))
			continue
		}

		stats.CandidateChunks += len(chunks)
		for _, c := range chunks {
			if _, dup := seen[c.ContentHash]; dup {
				stats.DuplicatesDropped++
				continue
			}
			seen[c.ContentHash] = struct{}{}
			sd.Chunks = append(sd.Chunks, storage.FromTypesChunk(*c, 0))
			texts = append(texts, c.Content)
		}

		stats.DocumentsIndexed++
		stats.ChunksStored += len(sd.Chunks)
		b.logger.Debug("document_processed", "document", file.Name, "chunks", len(chunks), "kept", len(sd.Chunks))
	}

	return snap, texts
}

func (b *Builder) recordFailure(stats *Statistics, doc *storage.Document, status string, err error) {
	if !errors.Is(err, types.ErrDocumentConversion) {
		err = types.WrapError(types.ErrDocumentConversion, "indexer.convert", err)
	}
	msg := err.Error()
	doc.Status = status
	doc.Error = &msg

	if status == storage.DocumentEmpty {
		stats.DocumentsEmpty++
	}
	stats.DocumentsFailed++
	stats.ErrorMessages = append(stats.ErrorMessages, fmt.Sprintf("%s: %s", doc.Path, msg))
	b.logger.Warn("document_failed", "document", doc.Path, "status", status, "error", msg)
}

// embedAll embeds texts in batches, preserving order
func (b *Builder) embedAll(ctx context.Context, texts []string, batchSize int, progress ProgressFunc) ([][]float32, error) {
	vectors := make([][]float32, 0, len(texts))
	dimension := b.embedder.Dimension()

	for start := 0; start < len(texts); start += batchSize {
		end := min(start+batchSize, len(texts))

		resp, err := b.embedder.GenerateBatch(ctx, embedder.BatchEmbeddingRequest{Texts: texts[start:end]})
		if err != nil {
			return nil, types.WrapError(types.ErrExternalService, "indexer.embed", err)
		}
		if len(resp.Embeddings) != end-start {
			return nil, types.NewError(types.ErrExternalService, "indexer.embed",
				fmt.Sprintf("expected %d embeddings, got %d", end-start, len(resp.Embeddings)))
		}

		for _, emb := range resp.Embeddings {
			if len(emb.Vector) != dimension {
				return nil, types.NewError(types.ErrExternalService, "indexer.embed",
					fmt.Sprintf("embedding dimension %d, want %d", len(emb.Vector), dimension))
			}
			vectors = append(vectors, emb.Vector)
		}
		progress(StageEmbed, end, len(texts))
	}

	return vectors, nil
}

// computeFileHash computes SHA-256 hash of a file
func computeFileHash(filePath string) ([32]byte, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return [32]byte{}, err
	}
	defer func() { _ = file.Close() }()

	hash := sha256.New()
	if _, err := io.Copy(hash, file); err != nil {
		return [32]byte{}, err
	}

	var result [32]byte
	copy(result[:], hash.Sum(nil))
	return result, nil
}

// Summary renders statistics as a short multi-line report
func (s *Statistics) Summary() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Build %s\n", s.BuildID)
	fmt.Fprintf(&sb, "  Documents: %d found, %d indexed, %d failed\n", s.DocumentsFound, s.DocumentsIndexed, s.DocumentsFailed)
	fmt.Fprintf(&sb, "  Chunks: %d stored, %d duplicates dropped\n", s.ChunksStored, s.DuplicatesDropped)
	fmt.Fprintf(&sb, "  Duration: %s\n", s.Duration.Round(time.Millisecond))
	for _, msg := range s.ErrorMessages {
		fmt.Fprintf(&sb, "  ! %s\n", msg)
	}
	return sb.String()
}
