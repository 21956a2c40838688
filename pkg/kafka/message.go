package kafka

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/andestx/rubromatch/pkg/models"
)

// IncomingMessage wraps a raw Kafka message with parsed headers
type IncomingMessage struct {
	Key       string
	Value     []byte
	Headers   map[string]string
	Partition int
	Offset    int64
	Timestamp time.Time
	Topic     string

	// Parsed content
	Batch *models.RubroBatch
}

// ParseBatch parses the message value as an extracted rubro batch
func (m *IncomingMessage) ParseBatch() error {
	var batch models.RubroBatch
	if err := json.Unmarshal(m.Value, &batch); err != nil {
		return fmt.Errorf("failed to parse rubro batch: %w", err)
	}
	if len(batch.Rubros) == 0 {
		return fmt.Errorf("rubro batch contains no rubros")
	}
	m.Batch = &batch
	return nil
}

// GetRunID returns the run identifier, falling back to headers and the
// message key
func (m *IncomingMessage) GetRunID() string {
	if m.Batch != nil && m.Batch.RunID != "" {
		return m.Batch.RunID
	}
	if runID := m.Headers["run_id"]; runID != "" {
		return runID
	}
	return m.Key
}

// GetDocumentID returns the source document identifier, if present
func (m *IncomingMessage) GetDocumentID() string {
	if m.Batch != nil && m.Batch.DocumentID != "" {
		return m.Batch.DocumentID
	}
	return m.Headers["document_id"]
}
