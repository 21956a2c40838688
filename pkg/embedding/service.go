package embedding

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/andestx/rubromatch/pkg/normalizers"
	"github.com/andestx/rubromatch/pkg/tracing"
)

// ServiceConfig holds batching and concurrency settings for the service
type ServiceConfig struct {
	BatchSize    int
	Workers      int
	BatchTimeout time.Duration
}

// Service coordinates embedding generation: preprocessing, cache lookups,
// batching across a worker pool and L2 normalization of results.
type Service struct {
	embedder Embedder
	cache    Cache
	logger   ectologger.Logger
	config   ServiceConfig
}

// NewService creates an embedding service. cache may be nil to disable
// caching.
func NewService(embedder Embedder, cache Cache, logger ectologger.Logger, config ServiceConfig) *Service {
	if config.BatchSize <= 0 {
		config.BatchSize = 32
	}
	if config.Workers <= 0 {
		config.Workers = 4
	}
	return &Service{
		embedder: embedder,
		cache:    cache,
		logger:   logger,
		config:   config,
	}
}

// Dimensions returns the dimensionality of produced vectors
func (s *Service) Dimensions() int {
	return s.embedder.Dimensions()
}

// Model returns the backing model identifier
func (s *Service) Model() string {
	return s.embedder.Model()
}

// Close releases the backing embedder
func (s *Service) Close() error {
	return s.embedder.Close()
}

// Embed produces one unit-length vector per input text, in order.
// Any backend failure fails the whole call; use EmbedEach when partial
// results are acceptable.
func (s *Service) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	vectors, errs := s.EmbedEach(ctx, texts)
	for i, err := range errs {
		if err != nil {
			return nil, fmt.Errorf("embedding text %d: %w", i, err)
		}
	}
	return vectors, nil
}

// EmbedEach produces one unit-length vector per input text along with a
// per-item error slice. A failed backend batch fails only the items it
// contained.
func (s *Service) EmbedEach(ctx context.Context, texts []string) ([][]float32, []error) {
	ctx, span := tracing.StartSpan(ctx, "embedding.Service.EmbedEach")
	defer span.End()

	vectors := make([][]float32, len(texts))
	errs := make([]error, len(texts))

	// Preprocess and resolve cache hits; collect the rest for the backend.
	var pending []int
	cacheHits := 0
	for i, text := range texts {
		normalized := normalizers.NormalizeDescription(text)
		if normalized == "" {
			vectors[i] = ZeroVector(s.embedder.Dimensions())
			continue
		}
		if s.cache != nil {
			if vec, ok := s.cache.Get(ctx, Key(s.embedder.Model(), normalized)); ok {
				vectors[i] = vec
				cacheHits++
				continue
			}
		}
		pending = append(pending, i)
	}

	if len(pending) == 0 {
		return vectors, errs
	}

	// Fan pending batches out over the worker pool. Each batch is
	// independent; order is preserved through the index slices.
	batches := make(chan []int)
	var wg sync.WaitGroup
	for w := 0; w < s.config.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for batch := range batches {
				s.embedBatch(ctx, texts, batch, vectors, errs)
			}
		}()
	}

	for start := 0; start < len(pending); start += s.config.BatchSize {
		end := start + s.config.BatchSize
		if end > len(pending) {
			end = len(pending)
		}
		batches <- pending[start:end]
	}
	close(batches)
	wg.Wait()

	s.logger.WithContext(ctx).WithFields(map[string]any{
		"total":      len(texts),
		"cache_hits": cacheHits,
		"embedded":   len(pending),
	}).Debug("Embedded texts")

	return vectors, errs
}

// embedBatch embeds one batch of indices, writing into the shared result
// slices. Indices never overlap between batches.
func (s *Service) embedBatch(ctx context.Context, texts []string, indices []int, vectors [][]float32, errs []error) {
	batchCtx := ctx
	if s.config.BatchTimeout > 0 {
		var cancel context.CancelFunc
		batchCtx, cancel = context.WithTimeout(ctx, s.config.BatchTimeout)
		defer cancel()
	}

	inputs := make([]string, len(indices))
	for i, idx := range indices {
		inputs[i] = normalizers.NormalizeDescription(texts[idx])
	}

	results, err := s.embedder.Generate(batchCtx, inputs)
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"batch_size": len(indices),
		}).Warn("Embedding batch failed")
		for _, idx := range indices {
			errs[idx] = err
		}
		return
	}

	for i, idx := range indices {
		vec := NormalizeL2(results[i])
		vectors[idx] = vec
		if s.cache != nil {
			if err := s.cache.Put(ctx, Key(s.embedder.Model(), inputs[i]), vec); err != nil {
				// Cache writes are advisory; the vector is already in hand.
				s.logger.WithContext(ctx).WithError(err).Warn("Failed to cache embedding")
			}
		}
	}
}
