package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/pdfquery-mcp/internal/embedder"
	"github.com/dshills/pdfquery-mcp/internal/indexer"
	"github.com/dshills/pdfquery-mcp/internal/metrics"
	"github.com/dshills/pdfquery-mcp/internal/storage"
	"github.com/dshills/pdfquery-mcp/pkg/types"
)

// mockBuilder is a CorpusBuilder with a swappable build function
type mockBuilder struct {
	calls   atomic.Int32
	buildFn func(ctx context.Context) (*indexer.Statistics, error)
}

func (m *mockBuilder) Build(ctx context.Context, _ *indexer.Config, _ indexer.ProgressFunc) (*indexer.Statistics, error) {
	n := m.calls.Add(1)
	if m.buildFn != nil {
		return m.buildFn(ctx)
	}
	return &indexer.Statistics{
		BuildID:          fmt.Sprintf("build-%d", n),
		DocumentsIndexed: 1,
		ChunksStored:     2,
	}, nil
}

// mockRetriever records the build IDs it is given
type mockRetriever struct {
	mu       sync.Mutex
	buildIDs []string
	calls    atomic.Int32
}

func (m *mockRetriever) Retrieve(_ context.Context, query string, limit int) (*types.RetrievalResult, error) {
	m.calls.Add(1)
	return &types.RetrievalResult{Outcome: types.OutcomeEmpty, Chunks: []types.ScoredChunk{}}, nil
}

func (m *mockRetriever) SetBuildID(buildID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.buildIDs = append(m.buildIDs, buildID)
}

func (m *mockRetriever) lastBuildID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.buildIDs) == 0 {
		return ""
	}
	return m.buildIDs[len(m.buildIDs)-1]
}

type fixture struct {
	engine    *Engine
	builder   *mockBuilder
	retriever *mockRetriever
	store     storage.Storage
	embedder  embedder.Embedder
}

func newFixture(t *testing.T, reuse bool) *fixture {
	t.Helper()

	store, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	emb, err := embedder.NewLocalProvider(embedder.Config{Dimension: 4}, nil)
	require.NoError(t, err)

	f := &fixture{
		builder:   &mockBuilder{},
		retriever: &mockRetriever{},
		store:     store,
		embedder:  emb,
	}
	f.engine, err = New(Options{
		Storage:       store,
		Builder:       f.builder,
		Retriever:     f.retriever,
		Embedder:      emb,
		ReuseExisting: reuse,
		Metrics:       metrics.New(),
	})
	require.NoError(t, err)
	return f
}

// storeCorpus persists a one-chunk corpus embedded with the given identity
func storeCorpus(t *testing.T, store storage.Storage, provider, model string, dimension int) {
	t.Helper()

	content := "Hold the reset button for ten seconds."
	snap := &storage.Snapshot{
		Corpus: &storage.Corpus{
			BuildID:            "persisted",
			EmbeddingProvider:  provider,
			EmbeddingModel:     model,
			EmbeddingDimension: dimension,
			BuiltAt:            time.Now().UTC(),
		},
		Documents: []*storage.SnapshotDocument{{
			Document: &storage.Document{
				Path:        "/docs/manual.md",
				Name:        "manual.md",
				ContentHash: types.HashContent("manual"),
				Status:      storage.DocumentIndexed,
			},
			Chunks: []*storage.Chunk{{
				Content:     content,
				ContentHash: types.HashContent(content),
				Header1:     "Reset",
			}},
			Vectors: [][]float32{make([]float32, dimension)},
		}},
	}
	require.NoError(t, storage.ReplaceCorpus(context.Background(), store, snap))
}

func TestNew_RequiresDependencies(t *testing.T) {
	_, err := New(Options{})
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrConfiguration)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "uninitialized", StateUninitialized.String())
	assert.Equal(t, "building", StateBuilding.String())
	assert.Equal(t, "ready", StateReady.String())
	assert.Equal(t, "failed", StateFailed.String())
}

func TestRetrieve_NotReadyBeforeBuild(t *testing.T) {
	f := newFixture(t, false)

	_, err := f.engine.Retrieve(context.Background(), "reset", 5)
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrRetrieverNotReady)
	assert.True(t, types.IsRetryable(err))
	assert.Equal(t, int32(0), f.retriever.calls.Load())
	assert.Equal(t, StateUninitialized, f.engine.State())
}

func TestEnsureReady_ConcurrentCallersShareOneBuild(t *testing.T) {
	f := newFixture(t, false)
	f.builder.buildFn = func(ctx context.Context) (*indexer.Statistics, error) {
		time.Sleep(20 * time.Millisecond)
		return &indexer.Statistics{BuildID: "only", ChunksStored: 1}, nil
	}

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = f.engine.EnsureReady(context.Background())
		}()
	}
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, int32(1), f.builder.calls.Load())
	assert.Equal(t, StateReady, f.engine.State())
	assert.Equal(t, "only", f.retriever.lastBuildID())

	// Ready is a fast path
	require.NoError(t, f.engine.EnsureReady(context.Background()))
	assert.Equal(t, int32(1), f.builder.calls.Load())

	_, err := f.engine.Retrieve(context.Background(), "reset", 5)
	require.NoError(t, err)
}

func TestEnsureReady_FailedRetries(t *testing.T) {
	f := newFixture(t, false)
	var fail atomic.Bool
	fail.Store(true)
	f.builder.buildFn = func(ctx context.Context) (*indexer.Statistics, error) {
		if fail.Load() {
			return nil, types.NewError(types.ErrEmptyCorpus, "indexer.build", "no documents found")
		}
		return &indexer.Statistics{BuildID: "second"}, nil
	}

	err := f.engine.EnsureReady(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrEmptyCorpus)
	assert.Equal(t, StateFailed, f.engine.State())

	status, err := f.engine.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "failed", status.State)
	assert.Contains(t, status.LastError, "empty corpus")

	fail.Store(false)
	require.NoError(t, f.engine.EnsureReady(context.Background()))
	assert.Equal(t, StateReady, f.engine.State())
	assert.Equal(t, int32(2), f.builder.calls.Load())
}

func TestRebuild_ConcurrentRebuildRejected(t *testing.T) {
	f := newFixture(t, false)
	require.NoError(t, f.engine.EnsureReady(context.Background()))

	started := make(chan struct{})
	release := make(chan struct{})
	f.builder.buildFn = func(ctx context.Context) (*indexer.Statistics, error) {
		close(started)
		<-release
		return &indexer.Statistics{BuildID: "rebuilt"}, nil
	}

	done := make(chan error, 1)
	go func() {
		_, err := f.engine.Rebuild(context.Background(), nil)
		done <- err
	}()
	<-started

	_, err := f.engine.Rebuild(context.Background(), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrBuildInProgress)
	assert.True(t, types.IsRetryable(err))

	assert.Equal(t, StateBuilding, f.engine.State())
	_, err = f.engine.Retrieve(context.Background(), "reset", 5)
	assert.ErrorIs(t, err, types.ErrRetrieverNotReady)

	err = f.engine.EnsureReady(context.Background())
	assert.ErrorIs(t, err, types.ErrRetrieverNotReady)

	status, err := f.engine.Status(context.Background())
	require.NoError(t, err)
	assert.True(t, status.BuildInProgress)

	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, StateReady, f.engine.State())
	assert.Equal(t, "rebuilt", f.retriever.lastBuildID())
}

func TestRetrieve_FailsFastDuringRebuild(t *testing.T) {
	f := newFixture(t, false)
	require.NoError(t, f.engine.EnsureReady(context.Background()))

	started := make(chan struct{})
	release := make(chan struct{})
	f.builder.buildFn = func(ctx context.Context) (*indexer.Statistics, error) {
		close(started)
		<-release
		return &indexer.Statistics{BuildID: "rebuilt"}, nil
	}
	done := make(chan error, 1)
	go func() {
		_, err := f.engine.Rebuild(context.Background(), nil)
		done <- err
	}()
	<-started
	defer func() {
		close(release)
		require.NoError(t, <-done)
	}()

	result := make(chan error, 1)
	go func() {
		_, err := f.engine.Retrieve(context.Background(), "reset", 5)
		result <- err
	}()

	select {
	case err := <-result:
		assert.ErrorIs(t, err, types.ErrRetrieverNotReady)
	case <-time.After(500 * time.Millisecond):
		t.Fatal("Retrieve waited for the rebuild to finish")
	}
	assert.Equal(t, int32(0), f.retriever.calls.Load())
}

func TestRetrieve_NotReadyWhileQueryLockHeldForBuild(t *testing.T) {
	f := newFixture(t, false)
	require.NoError(t, f.engine.EnsureReady(context.Background()))

	// State still reads Ready while a build is waiting for the write lock
	f.engine.queryMu.Lock()
	_, err := f.engine.Retrieve(context.Background(), "reset", 5)
	f.engine.queryMu.Unlock()

	assert.ErrorIs(t, err, types.ErrRetrieverNotReady)
	_, err = f.engine.Retrieve(context.Background(), "reset", 5)
	assert.NoError(t, err)
}

func TestEnsureReady_NotReadyWhenBuildLockTaken(t *testing.T) {
	f := newFixture(t, true)
	storeCorpus(t, f.store, f.embedder.Provider(), f.embedder.Model(), f.embedder.Dimension())

	require.True(t, f.engine.lock.TryAcquire())
	err := f.engine.EnsureReady(context.Background())
	f.engine.lock.Release()

	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrRetrieverNotReady)
	assert.NotErrorIs(t, err, types.ErrBuildInProgress)
	assert.Equal(t, StateUninitialized, f.engine.State())
	assert.Equal(t, int32(0), f.builder.calls.Load())

	require.NoError(t, f.engine.EnsureReady(context.Background()))
	assert.Equal(t, StateReady, f.engine.State())
}

func TestRebuild_FailureKeepsPreviousCorpusServing(t *testing.T) {
	f := newFixture(t, false)
	require.NoError(t, f.engine.EnsureReady(context.Background()))
	before := f.retriever.lastBuildID()

	f.builder.buildFn = func(ctx context.Context) (*indexer.Statistics, error) {
		return nil, types.WrapError(types.ErrExternalService, "indexer.embed", errors.New("provider down"))
	}
	_, err := f.engine.Rebuild(context.Background(), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrExternalService)

	assert.Equal(t, StateReady, f.engine.State())
	assert.Equal(t, before, f.retriever.lastBuildID())
	_, err = f.engine.Retrieve(context.Background(), "reset", 5)
	assert.NoError(t, err)
}

func TestEnsureReady_ReusesCompatibleCorpus(t *testing.T) {
	f := newFixture(t, true)
	storeCorpus(t, f.store, f.embedder.Provider(), f.embedder.Model(), f.embedder.Dimension())

	require.NoError(t, f.engine.EnsureReady(context.Background()))
	assert.Equal(t, StateReady, f.engine.State())
	assert.Equal(t, int32(0), f.builder.calls.Load())
	assert.Equal(t, "persisted", f.retriever.lastBuildID())
}

func TestEnsureReady_IncompatibleCorpusIsConfigurationError(t *testing.T) {
	f := newFixture(t, true)
	storeCorpus(t, f.store, "openai", "text-embedding-3-small", 4)

	err := f.engine.EnsureReady(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrConfiguration)
	assert.Contains(t, err.Error(), "rebuild the index")
	assert.Equal(t, StateFailed, f.engine.State())
	assert.Equal(t, int32(0), f.builder.calls.Load())
}

func TestEnsureReady_ReuseWithoutCorpusBuilds(t *testing.T) {
	f := newFixture(t, true)

	require.NoError(t, f.engine.EnsureReady(context.Background()))
	assert.Equal(t, int32(1), f.builder.calls.Load())
}

func TestCheckCompatible(t *testing.T) {
	emb, err := embedder.NewLocalProvider(embedder.Config{Dimension: 8}, nil)
	require.NoError(t, err)

	tests := []struct {
		name    string
		corpus  storage.Corpus
		wantErr bool
	}{
		{"match", storage.Corpus{EmbeddingProvider: "local", EmbeddingModel: embedder.DefaultLocalModel, EmbeddingDimension: 8}, false},
		{"provider", storage.Corpus{EmbeddingProvider: "jina", EmbeddingModel: embedder.DefaultLocalModel, EmbeddingDimension: 8}, true},
		{"model", storage.Corpus{EmbeddingProvider: "local", EmbeddingModel: "other", EmbeddingDimension: 8}, true},
		{"dimension", storage.Corpus{EmbeddingProvider: "local", EmbeddingModel: embedder.DefaultLocalModel, EmbeddingDimension: 16}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckCompatible(&tt.corpus, emb)
			if tt.wantErr {
				assert.ErrorIs(t, err, types.ErrConfiguration)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestStatus_ReportsStoredCorpus(t *testing.T) {
	f := newFixture(t, true)
	storeCorpus(t, f.store, f.embedder.Provider(), f.embedder.Model(), f.embedder.Dimension())
	require.NoError(t, f.engine.EnsureReady(context.Background()))

	status, err := f.engine.Status(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "ready", status.State)
	assert.False(t, status.BuildInProgress)
	require.NotNil(t, status.Corpus)
	assert.Equal(t, "persisted", status.Corpus.BuildID)
	assert.Equal(t, 1, status.Statistics.Chunks)
	assert.True(t, status.Health.DatabaseAccessible)
	require.Len(t, status.Documents, 1)
	assert.Equal(t, "manual.md", status.Documents[0].Name)
	assert.Equal(t, storage.DocumentIndexed, status.Documents[0].Status)
	assert.Nil(t, status.LastBuild)
}
