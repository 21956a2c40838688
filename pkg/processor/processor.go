// Package processor orchestrates processing runs: catalog loading, index
// construction, deduplication, matching and event emission.
package processor

import (
	"context"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/andestx/rubromatch/config"
	"github.com/andestx/rubromatch/pkg/catalog"
	"github.com/andestx/rubromatch/pkg/dedupe"
	"github.com/andestx/rubromatch/pkg/events"
	"github.com/andestx/rubromatch/pkg/kafka"
	"github.com/andestx/rubromatch/pkg/matching"
	"github.com/andestx/rubromatch/pkg/models"
	"github.com/andestx/rubromatch/pkg/normalizers"
	"github.com/andestx/rubromatch/pkg/tracing"
)

// RunReport summarizes one processing run
type RunReport struct {
	RunID       string                  `json:"run_id"`
	DocumentID  string                  `json:"document_id,omitempty"`
	Input       int                     `json:"input"`
	Outcomes    []models.MatchOutcome   `json:"outcomes"`
	Rubros      []models.Rubro          `json:"rubros"`
	Groups      []models.DuplicateGroup `json:"groups,omitempty"`
	MatchStats  models.MatchStats       `json:"match_stats"`
	DedupeStats models.DedupeStats      `json:"dedupe_stats"`
	DurationMs  int64                   `json:"duration_ms"`
}

// Processor runs incoming rubro batches through deduplication and
// matching, then emits the results
type Processor struct {
	logger       ectologger.Logger
	loader       *catalog.Loader
	matchEngine  *matching.Engine
	dedupeEngine *dedupe.Engine
	emitter      *events.Emitter
	config       config.Config
}

// NewProcessor creates a processor. emitter may be nil when event
// emission is disabled.
func NewProcessor(
	logger ectologger.Logger,
	loader *catalog.Loader,
	matchEngine *matching.Engine,
	dedupeEngine *dedupe.Engine,
	emitter *events.Emitter,
	cfg config.Config,
) *Processor {
	return &Processor{
		logger:       logger,
		loader:       loader,
		matchEngine:  matchEngine,
		dedupeEngine: dedupeEngine,
		emitter:      emitter,
		config:       cfg,
	}
}

// Initialize loads the reference catalog and builds the match index.
// It must complete before any batch is processed.
func (p *Processor) Initialize(ctx context.Context) error {
	ctx, span := tracing.StartSpan(ctx, "processor.Processor.Initialize")
	defer span.End()

	log := p.logger.WithContext(ctx)

	if p.config.UnitSynonymsPath != "" {
		if err := normalizers.LoadUnitSynonyms(p.config.UnitSynonymsPath); err != nil {
			return fmt.Errorf("failed to load unit synonyms: %w", err)
		}
		log.WithFields(map[string]any{"path": p.config.UnitSynonymsPath}).Info("Loaded unit synonyms")
	}

	opts := catalog.DefaultOptions()
	opts.CodeColumn = p.config.CatalogCodeColumn
	opts.DescriptionColumn = p.config.CatalogDescriptionColumn
	opts.UnitColumn = p.config.CatalogUnitColumn
	opts.CategoryColumn = p.config.CatalogCategoryColumn

	refs, rowErrs, err := p.loader.LoadFile(ctx, p.config.CatalogPath, opts)
	if err != nil {
		return fmt.Errorf("failed to load catalog: %w", err)
	}
	for _, rowErr := range rowErrs {
		log.WithFields(map[string]any{"row": rowErr.Row}).Warn("Skipped catalog row: " + rowErr.Message)
	}

	if err := p.matchEngine.BuildIndex(ctx, refs); err != nil {
		return err
	}

	log.WithFields(map[string]any{
		"catalog_size": len(refs),
	}).Info("Processor initialized")
	return nil
}

// HandleMessage is the Kafka handler for extracted rubro batches
func (p *Processor) HandleMessage(ctx context.Context, msg *kafka.IncomingMessage) error {
	ctx, span := tracing.StartSpan(ctx, "processor.Processor.HandleMessage")
	defer span.End()

	report, err := p.ProcessBatch(ctx, msg.GetRunID(), msg.GetDocumentID(), msg.Batch.Rubros)
	if err != nil {
		if p.emitter != nil {
			// Best effort; the consumer will retry the batch either way.
			if emitErr := p.emitter.EmitRunFailed(ctx, msg.GetRunID(), msg.GetDocumentID(), err.Error()); emitErr != nil {
				p.logger.WithContext(ctx).WithError(emitErr).Error("Failed to emit run.failed event")
			}
		}
		return err
	}

	p.logger.WithContext(ctx).WithFields(map[string]any{
		"run_id":  report.RunID,
		"input":   report.Input,
		"matched": report.MatchStats.Matched,
	}).Info("Processed rubro batch")
	return nil
}

// ProcessBatch runs one batch through validation, deduplication and
// matching, emitting events along the way
func (p *Processor) ProcessBatch(ctx context.Context, runID, documentID string, rubros []models.Rubro) (*RunReport, error) {
	ctx, span := tracing.StartSpan(ctx, "processor.Processor.ProcessBatch")
	defer span.End()

	if runID == "" {
		runID = uuid.NewString()
	}
	start := time.Now()

	log := p.logger.WithContext(ctx).WithFields(map[string]any{
		"run_id": runID,
		"input":  len(rubros),
	})
	log.Debug("Processing rubro batch")

	valid := make([]models.Rubro, 0, len(rubros))
	for i := range rubros {
		if rubros[i].ID == "" {
			rubros[i].ID = uuid.NewString()
		}
		if err := rubros[i].Validate(); err != nil {
			log.WithError(err).Warn("Dropping invalid rubro")
			continue
		}
		valid = append(valid, rubros[i])
	}
	if len(valid) == 0 {
		return nil, fmt.Errorf("batch %s contains no valid rubros", runID)
	}

	dedupeResult, err := p.dedupeEngine.Resolve(ctx, valid)
	if err != nil {
		return nil, fmt.Errorf("dedupe failed for run %s: %w", runID, err)
	}

	outcomes, err := p.matchEngine.MatchBatch(ctx, dedupeResult.Rubros)
	if err != nil {
		return nil, fmt.Errorf("matching failed for run %s: %w", runID, err)
	}

	report := &RunReport{
		RunID:       runID,
		DocumentID:  documentID,
		Input:       len(rubros),
		Outcomes:    outcomes,
		Rubros:      dedupeResult.Rubros,
		Groups:      dedupeResult.Groups,
		DedupeStats: dedupeResult.Stats,
	}
	for i := range outcomes {
		report.MatchStats.Count(outcomes[i].Status)
	}
	report.DurationMs = time.Since(start).Milliseconds()

	if p.emitter != nil {
		if err := p.emitter.EmitDedupeResolved(ctx, runID, dedupeResult.Groups, dedupeResult.Stats); err != nil {
			return nil, err
		}
		if err := p.emitter.EmitMatchOutcomes(ctx, runID, outcomes); err != nil {
			return nil, err
		}
		if err := p.emitter.EmitRunCompleted(ctx, runID, documentID, report.MatchStats, report.DedupeStats, time.Since(start)); err != nil {
			return nil, err
		}
	}

	return report, nil
}
