package vectorstore

import (
	"context"
	"fmt"
	"sort"
	"sync/atomic"

	"go.uber.org/zap"

	apperrors "diary-assistant/errors"
)

// Embedder converts text into the vectors the index is keyed by.
type Embedder interface {
	EmbedOne(ctx context.Context, text string) ([]float32, error)
}

// Store is the persistence layer over a similarity index: upsert by id,
// nearest-neighbor retrieval, metadata filtering. Embeddings are recomputed
// on every upsert; the embedder's memo cache only affects cost, never the
// stored result.
type Store struct {
	embedder Embedder
	index    Index
	logger   *zap.Logger
	nextSeq  atomic.Int64
}

func New(ctx context.Context, embedder Embedder, index Index, logger *zap.Logger) (*Store, error) {
	maxSeq, err := index.MaxSeq(ctx)
	if err != nil {
		return nil, fmt.Errorf("read index sequence: %w", err)
	}
	store := &Store{embedder: embedder, index: index, logger: logger}
	store.nextSeq.Store(maxSeq)
	return store, nil
}

// Upsert stores text under a caller-chosen id. Re-submitting an existing id
// overwrites the stored entry, never duplicates it.
func (s *Store) Upsert(ctx context.Context, id, text string, metadata map[string]string) error {
	embedding, err := s.embedder.EmbedOne(ctx, text)
	if err != nil {
		return fmt.Errorf("embed document %s: %w", id, err)
	}

	doc := Document{
		ID:        id,
		Content:   text,
		Metadata:  metadata,
		Embedding: embedding,
		Seq:       s.nextSeq.Add(1),
	}
	if err := s.index.Upsert(ctx, doc); err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrStorePersistence, err)
	}

	s.logger.Debug("Upserted document", zap.String("id", id))
	return nil
}

// Query returns up to k nearest entries for the text, ranked by similarity
// score descending. k is clamped to [0, stored count]: asking for more
// neighbors than exist returns all available rather than erroring. Equal
// scores rank by insertion order, first-inserted first, so retrieval stays
// deterministic.
func (s *Store) Query(ctx context.Context, text string, k int, filter map[string]string) ([]Result, error) {
	count, err := s.index.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("count stored documents: %w", err)
	}
	if k > count {
		k = count
	}
	if k <= 0 {
		return nil, nil
	}

	embedding, err := s.embedder.EmbedOne(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	results, err := s.index.Query(ctx, embedding, k, filter)
	if err != nil {
		return nil, err
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Seq < results[j].Seq
	})
	return results, nil
}

// Count reports the number of stored entries.
func (s *Store) Count(ctx context.Context) (int, error) {
	return s.index.Count(ctx)
}

// Flush forces any deferred persistence to complete before returning.
func (s *Store) Flush(ctx context.Context) error {
	return s.index.Flush(ctx)
}

// Close flushes and releases the underlying index.
func (s *Store) Close(ctx context.Context) error {
	return s.index.Close(ctx)
}
