// Package matching implements semantic matching of extracted rubros against the WBS catalog
package matching

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/andestx/rubromatch/pkg/embedding"
	"github.com/andestx/rubromatch/pkg/models"
	"github.com/andestx/rubromatch/pkg/normalizers"
	"github.com/andestx/rubromatch/pkg/scoring"
	"github.com/andestx/rubromatch/pkg/tracing"
	"github.com/andestx/rubromatch/pkg/vectorindex"
)

// maxAlternatives is how many runner-up references an outcome carries
const maxAlternatives = 3

// EngineConfig contains configuration for the match engine
type EngineConfig struct {
	MatchThreshold        float64 // Score at or above which a match is accepted (default: 0.75)
	AmbiguityMargin       float64 // Margin under which two top scores are ambiguous (default: 0.05)
	ManualReviewThreshold float64 // Floor for routing to manual review (default: 0.50)
	TopK                  int     // Candidates retrieved from the index per rubro (default: 5)
	ApproxThreshold       int     // Catalog size above which the index goes approximate (default: 1000)
	WorkerCount           int     // Concurrent workers for batch matching (default: 4)
}

// DefaultConfig returns default engine configuration
func DefaultConfig() EngineConfig {
	return EngineConfig{
		MatchThreshold:        0.75,
		AmbiguityMargin:       0.05,
		ManualReviewThreshold: 0.50,
		TopK:                  5,
		ApproxThreshold:       1000,
		WorkerCount:           4,
	}
}

// Validate rejects configurations that cannot classify consistently
func (c EngineConfig) Validate() error {
	if c.MatchThreshold <= 0 || c.MatchThreshold > 1 {
		return fmt.Errorf("match threshold %f out of range (0,1]", c.MatchThreshold)
	}
	if c.AmbiguityMargin < 0 || c.AmbiguityMargin >= c.MatchThreshold {
		return fmt.Errorf("ambiguity margin %f must be in [0, match threshold)", c.AmbiguityMargin)
	}
	if c.ManualReviewThreshold < 0 || c.ManualReviewThreshold > c.MatchThreshold {
		return fmt.Errorf("manual review threshold %f must be in [0, match threshold]", c.ManualReviewThreshold)
	}
	if c.TopK < 1 {
		return fmt.Errorf("top k must be at least 1, got %d", c.TopK)
	}
	return nil
}

// Engine matches extracted rubros against an indexed reference catalog.
// BuildIndex must complete before any Match call; queries never mutate
// the index, so batch matching is safe to run concurrently.
type Engine struct {
	logger     ectologger.Logger
	embeddings *embedding.Service
	scorer     *scoring.Scorer
	config     EngineConfig

	mu     sync.RWMutex
	index  vectorindex.Index
	refs   []models.ReferenceRubro
	byCode map[string][]int
}

// NewEngine creates a match engine
func NewEngine(
	logger ectologger.Logger,
	embeddings *embedding.Service,
	scorer *scoring.Scorer,
	config EngineConfig,
) *Engine {
	return &Engine{
		logger:     logger,
		embeddings: embeddings,
		scorer:     scorer,
		config:     config,
	}
}

// BuildIndex embeds the reference catalog and constructs the vector
// index. Any embedding failure aborts the build; a half-built index is
// never installed.
func (e *Engine) BuildIndex(ctx context.Context, refs []models.ReferenceRubro) error {
	ctx, span := tracing.StartSpan(ctx, "matching.Engine.BuildIndex")
	defer span.End()

	log := e.logger.WithContext(ctx).WithFields(map[string]any{
		"catalog_size": len(refs),
	})

	if len(refs) == 0 {
		return fmt.Errorf("cannot build index from an empty catalog")
	}

	start := time.Now()

	texts := make([]string, len(refs))
	for i, ref := range refs {
		texts[i] = ref.Description
	}

	vectors, err := e.embeddings.Embed(ctx, texts)
	if err != nil {
		return fmt.Errorf("failed to embed reference catalog: %w", err)
	}

	indexed := make([]models.ReferenceRubro, len(refs))
	byCode := make(map[string][]int)
	for i, ref := range refs {
		ref.Embedding = vectors[i]
		indexed[i] = ref
		if code := normalizers.NormalizeCode(ref.WBSCode); code != "" {
			byCode[code] = append(byCode[code], i)
		}
	}

	idx := vectorindex.Build(vectors, e.config.ApproxThreshold)

	e.mu.Lock()
	e.index = idx
	e.refs = indexed
	e.byCode = byCode
	e.mu.Unlock()

	log.WithFields(map[string]any{
		"duration_ms": time.Since(start).Milliseconds(),
		"approximate": len(refs) > e.config.ApproxThreshold,
	}).Info("Built catalog index")

	return nil
}

// Ready reports whether the index has been built
func (e *Engine) Ready() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.index != nil
}

// CatalogSize returns the number of indexed references
func (e *Engine) CatalogSize() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.index == nil {
		return 0
	}
	return e.index.Size()
}

// MatchOne matches a single rubro against the catalog
func (e *Engine) MatchOne(ctx context.Context, rubro *models.Rubro) (*models.MatchOutcome, error) {
	ctx, span := tracing.StartSpan(ctx, "matching.Engine.MatchOne")
	defer span.End()

	if !e.Ready() {
		return nil, fmt.Errorf("catalog index not built")
	}

	vectors, errs := e.embeddings.EmbedEach(ctx, []string{rubro.Descripcion})
	if errs[0] != nil {
		e.logger.WithContext(ctx).WithError(errs[0]).WithFields(map[string]any{
			"rubro_id": rubro.ID,
		}).Warn("Embedding failed, forcing NO_MATCH")
		return embeddingFailedOutcome(rubro), nil
	}

	return e.matchEmbedded(ctx, rubro, vectors[0]), nil
}

// MatchBatch matches a batch of rubros across the worker pool.
// Outcomes are returned in input order. Rubros whose embedding failed
// come back NO_MATCH with the embedding_failed flag set; the batch
// always completes.
func (e *Engine) MatchBatch(ctx context.Context, rubros []models.Rubro) ([]models.MatchOutcome, error) {
	ctx, span := tracing.StartSpan(ctx, "matching.Engine.MatchBatch")
	defer span.End()

	if !e.Ready() {
		return nil, fmt.Errorf("catalog index not built")
	}

	log := e.logger.WithContext(ctx).WithFields(map[string]any{
		"batch_size": len(rubros),
	})
	log.Debug("Matching rubro batch")

	texts := make([]string, len(rubros))
	for i := range rubros {
		texts[i] = rubros[i].Descripcion
	}
	vectors, errs := e.embeddings.EmbedEach(ctx, texts)

	outcomes := make([]models.MatchOutcome, len(rubros))

	workers := e.config.WorkerCount
	if workers < 1 {
		workers = 1
	}

	indices := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range indices {
				if errs[i] != nil {
					outcomes[i] = *embeddingFailedOutcome(&rubros[i])
					continue
				}
				outcomes[i] = *e.matchEmbedded(ctx, &rubros[i], vectors[i])
			}
		}()
	}
	for i := range rubros {
		indices <- i
	}
	close(indices)
	wg.Wait()

	var stats models.MatchStats
	for i := range outcomes {
		stats.Count(outcomes[i].Status)
	}
	log.WithFields(map[string]any{
		"matched":       stats.Matched,
		"ambiguous":     stats.Ambiguous,
		"manual_review": stats.ManualReview,
		"no_match":      stats.NoMatch,
	}).Info("Matched rubro batch")

	return outcomes, nil
}

// matchEmbedded walks one rubro through retrieval, scoring and
// classification once its embedding is in hand
func (e *Engine) matchEmbedded(ctx context.Context, rubro *models.Rubro, vec []float32) *models.MatchOutcome {
	e.mu.RLock()
	idx := e.index
	refs := e.refs
	byCode := e.byCode
	e.mu.RUnlock()

	// Retrieve candidates: top-k by similarity plus every reference
	// sharing the rubro's normalized code, even outside the top-k.
	hits := idx.Query(vec, e.config.TopK)

	similarities := make(map[int]float64, len(hits))
	positions := make([]int, 0, len(hits))
	for _, hit := range hits {
		similarities[hit.Position] = hit.Similarity
		positions = append(positions, hit.Position)
	}

	if code := normalizers.NormalizeCode(rubro.Codigo); code != "" {
		for _, pos := range byCode[code] {
			if _, seen := similarities[pos]; !seen {
				similarities[pos] = embedding.Dot(vec, refs[pos].Embedding)
				positions = append(positions, pos)
			}
		}
	}

	// Score every candidate.
	evidence := make([]models.MatchEvidence, 0, len(positions))
	for _, pos := range positions {
		evidence = append(evidence, e.scorer.Score(rubro, &refs[pos], similarities[pos]))
	}
	rankEvidence(evidence)

	return e.classify(rubro, evidence)
}

// rankEvidence orders evidence by combined score descending, ties by
// method precedence, then reference id for full determinism
func rankEvidence(evidence []models.MatchEvidence) {
	sort.Slice(evidence, func(i, j int) bool {
		if evidence[i].CombinedScore != evidence[j].CombinedScore {
			return evidence[i].CombinedScore > evidence[j].CombinedScore
		}
		if evidence[i].Method.Rank() != evidence[j].Method.Rank() {
			return evidence[i].Method.Rank() < evidence[j].Method.Rank()
		}
		return evidence[i].ReferenceID < evidence[j].ReferenceID
	})
}

// classify turns ranked evidence into a match outcome
func (e *Engine) classify(rubro *models.Rubro, evidence []models.MatchEvidence) *models.MatchOutcome {
	outcome := &models.MatchOutcome{
		RubroID:   rubro.ID,
		MatchedAt: time.Now().UTC(),
	}

	if len(evidence) == 0 {
		outcome.Status = models.MatchStatusNoMatch
		return outcome
	}

	best := evidence[0]

	// Confidence is the best combined score; outcomes without best
	// evidence carry zero.
	switch {
	case best.CombinedScore >= e.config.MatchThreshold:
		if len(evidence) > 1 && best.CombinedScore-evidence[1].CombinedScore < e.config.AmbiguityMargin {
			outcome.Status = models.MatchStatusAmbiguous
		} else {
			outcome.Status = models.MatchStatusMatched
		}
		outcome.Best = &best
		outcome.Confidence = best.CombinedScore
	case best.CombinedScore >= e.config.ManualReviewThreshold:
		outcome.Status = models.MatchStatusManualReview
		outcome.Best = &best
		outcome.Confidence = best.CombinedScore
	default:
		outcome.Status = models.MatchStatusNoMatch
	}

	// Runner-up references travel with the outcome regardless of status
	// so reviewers can see near misses.
	start := 0
	if outcome.Best != nil {
		start = 1
	}
	for i := start; i < len(evidence) && len(outcome.Alternatives) < maxAlternatives; i++ {
		outcome.Alternatives = append(outcome.Alternatives, evidence[i])
	}

	return outcome
}

// embeddingFailedOutcome is the NO_MATCH outcome for a rubro whose
// embedding could not be produced
func embeddingFailedOutcome(rubro *models.Rubro) *models.MatchOutcome {
	return &models.MatchOutcome{
		RubroID:         rubro.ID,
		Status:          models.MatchStatusNoMatch,
		EmbeddingFailed: true,
		MatchedAt:       time.Now().UTC(),
	}
}
