// Package models defines the shared data model for rubro matching and deduplication
package models

import (
	"fmt"
	"time"
)

// MaxSnippetLength is the longest source snippet carried on a rubro
const MaxSnippetLength = 500

// Rubro represents a work item extracted from a technical specification document
type Rubro struct {
	ID          string    `json:"id"`
	Codigo      string    `json:"codigo"`
	Descripcion string    `json:"descripcion" validate:"required"`
	Unidad      string    `json:"unidad,omitempty"`
	SourcePages []int     `json:"source_pages,omitempty"`
	Confidence  float64   `json:"confidence" validate:"gte=0,lte=1"`
	Snippet     string    `json:"snippet,omitempty"`
	MergedFrom  []string  `json:"merged_from,omitempty"`
	Conflicts   []string  `json:"conflicts,omitempty"`
	ExtractedAt time.Time `json:"extracted_at,omitempty"`
}

// Validate checks invariants that struct tags cannot express
func (r *Rubro) Validate() error {
	if r.Descripcion == "" {
		return fmt.Errorf("rubro %s: descripcion is required", r.ID)
	}
	if r.Confidence < 0 || r.Confidence > 1 {
		return fmt.Errorf("rubro %s: confidence %f out of range [0,1]", r.ID, r.Confidence)
	}
	if len(r.Snippet) > MaxSnippetLength {
		return fmt.Errorf("rubro %s: snippet exceeds %d characters", r.ID, MaxSnippetLength)
	}
	return nil
}

// ReferenceRubro represents one entry of the canonical WBS catalog
type ReferenceRubro struct {
	ID          string            `json:"id"`
	WBSCode     string            `json:"wbs_code"`
	Description string            `json:"description" validate:"required"`
	Unit        string            `json:"unit,omitempty"`
	Category    string            `json:"category,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`

	// Embedding is attached when the catalog index is built; it is not
	// part of the catalog file and is omitted from JSON.
	Embedding []float32 `json:"-"`
}

// Validate checks catalog row invariants
func (r *ReferenceRubro) Validate() error {
	if r.Description == "" {
		return fmt.Errorf("reference %s: description is required", r.ID)
	}
	return nil
}

// RubroBatch is an ingested batch of extracted rubros for one document run
type RubroBatch struct {
	RunID      string    `json:"run_id"`
	DocumentID string    `json:"document_id,omitempty"`
	Rubros     []Rubro   `json:"rubros" validate:"required"`
	ReceivedAt time.Time `json:"received_at,omitempty"`
}
