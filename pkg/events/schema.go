package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/andestx/rubromatch/pkg/models"
)

// EventType defines the type of event
type EventType string

const (
	// Match events
	EventTypeMatchClassified EventType = "match.classified"

	// Dedupe events
	EventTypeDedupeResolved EventType = "dedupe.resolved"

	// Run events
	EventTypeRunCompleted EventType = "run.completed"
	EventTypeRunFailed    EventType = "run.failed"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventType     EventType `json:"event_type"`
	SchemaVersion string    `json:"schema_version"`
	RunID         string    `json:"run_id"`
	Timestamp     time.Time `json:"timestamp"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

// MatchClassifiedEvent is emitted for each classified rubro
type MatchClassifiedEvent struct {
	BaseEvent
	RubroID         string                 `json:"rubro_id"`
	Status          models.MatchStatus     `json:"status"`
	Best            *models.MatchEvidence  `json:"best,omitempty"`
	Alternatives    []models.MatchEvidence `json:"alternatives,omitempty"`
	Confidence      float64                `json:"confidence"`
	EmbeddingFailed bool                   `json:"embedding_failed,omitempty"`
}

// DedupeResolvedEvent is emitted when a batch has been deduplicated
type DedupeResolvedEvent struct {
	BaseEvent
	Groups []models.DuplicateGroup `json:"groups,omitempty"`
	Stats  models.DedupeStats      `json:"stats"`
}

// RunCompletedEvent is emitted when a processing run finishes
type RunCompletedEvent struct {
	BaseEvent
	DocumentID  string             `json:"document_id,omitempty"`
	MatchStats  models.MatchStats  `json:"match_stats"`
	DedupeStats models.DedupeStats `json:"dedupe_stats"`
	DurationMs  int64              `json:"duration_ms"`
}

// RunFailedEvent is emitted when a processing run aborts
type RunFailedEvent struct {
	BaseEvent
	DocumentID string `json:"document_id,omitempty"`
	Reason     string `json:"reason"`
}

// NewBaseEvent creates a base event with common fields
func NewBaseEvent(eventType EventType, runID string) BaseEvent {
	return BaseEvent{
		EventType:     eventType,
		SchemaVersion: SchemaVersion,
		RunID:         runID,
		Timestamp:     time.Now().UTC(),
		CorrelationID: uuid.New().String(),
	}
}
