// Package events handles event emission for match and dedupe results
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/andestx/rubromatch/pkg/kafka"
	"github.com/andestx/rubromatch/pkg/models"
	"github.com/andestx/rubromatch/pkg/tracing"
)

// SchemaVersion is the current event schema version
const SchemaVersion = "1.0"

// Emitter handles event emission for rubromatch
type Emitter struct {
	producer *kafka.Producer
	logger   ectologger.Logger
}

// NewEmitter creates a new event emitter
func NewEmitter(producer *kafka.Producer, logger ectologger.Logger) *Emitter {
	return &Emitter{
		producer: producer,
		logger:   logger,
	}
}

// EmitMatchOutcomes emits a match.classified event per outcome as one
// producer batch
func (e *Emitter) EmitMatchOutcomes(ctx context.Context, runID string, outcomes []models.MatchOutcome) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitMatchOutcomes")
	defer span.End()

	if len(outcomes) == 0 {
		return nil
	}

	batch := make([]*kafka.RubroEvent, 0, len(outcomes))
	for i := range outcomes {
		outcome := &outcomes[i]
		payload := MatchClassifiedEvent{
			BaseEvent:       NewBaseEvent(EventTypeMatchClassified, runID),
			RubroID:         outcome.RubroID,
			Status:          outcome.Status,
			Best:            outcome.Best,
			Alternatives:    outcome.Alternatives,
			Confidence:      outcome.Confidence,
			EmbeddingFailed: outcome.EmbeddingFailed,
		}
		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		batch = append(batch, &kafka.RubroEvent{
			EventType:     string(EventTypeMatchClassified),
			RunID:         runID,
			RubroID:       outcome.RubroID,
			SchemaVersion: SchemaVersion,
			Data:          data,
		})
	}

	if err := e.producer.PublishRubroEvents(ctx, batch); err != nil {
		e.logger.WithContext(ctx).WithError(err).Error("Failed to emit match.classified events")
		return err
	}
	return nil
}

// EmitDedupeResolved emits a dedupe.resolved event for a batch
func (e *Emitter) EmitDedupeResolved(ctx context.Context, runID string, groups []models.DuplicateGroup, stats models.DedupeStats) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitDedupeResolved")
	defer span.End()

	payload := DedupeResolvedEvent{
		BaseEvent: NewBaseEvent(EventTypeDedupeResolved, runID),
		Groups:    groups,
		Stats:     stats,
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	event := &kafka.RubroEvent{
		EventType:     string(EventTypeDedupeResolved),
		RunID:         runID,
		SchemaVersion: SchemaVersion,
		Data:          data,
	}

	if err := e.producer.PublishRubroEvent(ctx, event); err != nil {
		e.logger.WithContext(ctx).WithError(err).Error("Failed to emit dedupe.resolved event")
		return err
	}
	return nil
}

// EmitRunCompleted emits a run.completed event
func (e *Emitter) EmitRunCompleted(ctx context.Context, runID, documentID string, matchStats models.MatchStats, dedupeStats models.DedupeStats, duration time.Duration) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitRunCompleted")
	defer span.End()

	payload := RunCompletedEvent{
		BaseEvent:   NewBaseEvent(EventTypeRunCompleted, runID),
		DocumentID:  documentID,
		MatchStats:  matchStats,
		DedupeStats: dedupeStats,
		DurationMs:  duration.Milliseconds(),
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	event := &kafka.RubroEvent{
		EventType:     string(EventTypeRunCompleted),
		RunID:         runID,
		SchemaVersion: SchemaVersion,
		Data:          data,
	}

	if err := e.producer.PublishRubroEvent(ctx, event); err != nil {
		e.logger.WithContext(ctx).WithError(err).Error("Failed to emit run.completed event")
		return err
	}
	return nil
}

// EmitRunFailed emits a run.failed event
func (e *Emitter) EmitRunFailed(ctx context.Context, runID, documentID, reason string) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitRunFailed")
	defer span.End()

	payload := RunFailedEvent{
		BaseEvent:  NewBaseEvent(EventTypeRunFailed, runID),
		DocumentID: documentID,
		Reason:     reason,
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	event := &kafka.RubroEvent{
		EventType:     string(EventTypeRunFailed),
		RunID:         runID,
		SchemaVersion: SchemaVersion,
		Data:          data,
	}

	if err := e.producer.PublishRubroEvent(ctx, event); err != nil {
		e.logger.WithContext(ctx).WithError(err).Error("Failed to emit run.failed event")
		return err
	}
	return nil
}
