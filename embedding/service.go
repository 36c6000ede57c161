package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	lru "github.com/hashicorp/golang-lru"
	"go.uber.org/zap"
)

// Backend is the embedding endpoint contract: a batch of strings in, one
// fixed-length vector per string out, order-preserving.
type Backend interface {
	Embed(ctx context.Context, model string, texts []string) ([][]float32, error)
}

// Service turns text into fixed-length vectors, memoizing per-text results
// in a bounded cache. Cache behavior is an optimization only: eviction never
// changes results, just recomputation cost.
type Service struct {
	backend   Backend
	model     string
	dimension int
	memo      *lru.Cache
	logger    *zap.Logger
}

// New constructs the service and probes the backend once. A failed probe is
// fatal: an embedding model that cannot be loaded is not recoverable
// per-call. The probe also fixes the vector dimension, which is later used
// to produce a degenerate zero vector for empty input.
func New(ctx context.Context, backend Backend, model string, cacheSize int, logger *zap.Logger) (*Service, error) {
	if cacheSize <= 0 {
		cacheSize = 512
	}
	memo, err := lru.New(cacheSize)
	if err != nil {
		return nil, fmt.Errorf("create embedding memo cache: %w", err)
	}

	probe, err := backend.Embed(ctx, model, []string{"ping"})
	if err != nil {
		return nil, fmt.Errorf("embedding model %q unavailable: %w", model, err)
	}
	if len(probe) == 0 || len(probe[0]) == 0 {
		return nil, fmt.Errorf("embedding model %q returned an empty probe vector", model)
	}

	return &Service{
		backend:   backend,
		model:     model,
		dimension: len(probe[0]),
		memo:      memo,
		logger:    logger,
	}, nil
}

// Dimension returns the fixed vector length produced by the backend model.
func (s *Service) Dimension() int {
	return s.dimension
}

// EmbedOne embeds a single text. Empty input is legal and yields a zero
// vector of the probed dimension rather than an error.
func (s *Service) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	vectors, err := s.EmbedMany(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedMany embeds a batch of texts, order-preserving. Memoized entries are
// served locally; only misses hit the backend.
func (s *Service) EmbedMany(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))

	var missTexts []string
	var missIdx []int
	for i, text := range texts {
		if text == "" {
			vectors[i] = make([]float32, s.dimension)
			continue
		}
		if cached, ok := s.memo.Get(memoKey(text)); ok {
			vectors[i] = cached.([]float32)
			continue
		}
		missTexts = append(missTexts, text)
		missIdx = append(missIdx, i)
	}

	if len(missTexts) == 0 {
		return vectors, nil
	}

	computed, err := s.backend.Embed(ctx, s.model, missTexts)
	if err != nil {
		return nil, err
	}
	if len(computed) != len(missTexts) {
		return nil, fmt.Errorf("embedding backend returned %d vectors for %d texts", len(computed), len(missTexts))
	}

	for j, vec := range computed {
		vectors[missIdx[j]] = vec
		s.memo.Add(memoKey(missTexts[j]), vec)
	}

	s.logger.Debug("Computed embeddings",
		zap.Int("requested", len(texts)),
		zap.Int("misses", len(missTexts)))

	return vectors, nil
}

func memoKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
