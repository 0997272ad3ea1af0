package storage

import (
	"context"
	"fmt"
)

// Snapshot is a complete corpus ready to be persisted
type Snapshot struct {
	Corpus    *Corpus
	Documents []*SnapshotDocument
}

// SnapshotDocument is a document together with the chunks it contributed.
// Vectors[i] is the embedding of Chunks[i].
type SnapshotDocument struct {
	Document *Document
	Chunks   []*Chunk
	Vectors  [][]float32
}

// ReplaceCorpus swaps the stored corpus for snap in a single transaction.
// On any failure the transaction is rolled back and the previous corpus stays
// intact. Chunk IDs are assigned in snapshot order.
func ReplaceCorpus(ctx context.Context, s Storage, snap *Snapshot) (err error) {
	if snap == nil || snap.Corpus == nil {
		return fmt.Errorf("replace corpus: snapshot is incomplete")
	}

	tx, err := s.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = tx.ClearCorpus(ctx); err != nil {
		return err
	}

	chunkCount := 0
	for _, sd := range snap.Documents {
		if len(sd.Vectors) != len(sd.Chunks) {
			return fmt.Errorf("document %s: %d chunks but %d vectors", sd.Document.Path, len(sd.Chunks), len(sd.Vectors))
		}

		sd.Document.ChunkCount = len(sd.Chunks)
		if err = tx.InsertDocument(ctx, sd.Document); err != nil {
			return err
		}

		for i, chunk := range sd.Chunks {
			chunk.DocumentID = sd.Document.ID
			chunk.DocumentName = sd.Document.Name
			if err = tx.InsertChunk(ctx, chunk); err != nil {
				return err
			}

			emb := &Embedding{
				ChunkID:   chunk.ID,
				Vector:    serializeVector(sd.Vectors[i]),
				Dimension: len(sd.Vectors[i]),
			}
			if err = tx.InsertEmbedding(ctx, emb); err != nil {
				return err
			}
			chunkCount++
		}
	}

	snap.Corpus.ChunkCount = chunkCount
	snap.Corpus.DocumentCount = len(snap.Documents)
	if err = tx.SaveCorpus(ctx, snap.Corpus); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit corpus: %w", err)
	}
	return nil
}
