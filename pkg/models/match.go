package models

import "time"

// MatchStatus classifies the outcome of matching one rubro against the catalog
type MatchStatus string

const (
	MatchStatusMatched      MatchStatus = "MATCHED"
	MatchStatusAmbiguous    MatchStatus = "AMBIGUOUS"
	MatchStatusManualReview MatchStatus = "MANUAL_REVIEW"
	MatchStatusNoMatch      MatchStatus = "NO_MATCH"
)

// MatchMethod names the dominant signal behind a piece of evidence
type MatchMethod string

const (
	MatchMethodExactCode MatchMethod = "exact_code"
	MatchMethodFuzzy     MatchMethod = "fuzzy"
	MatchMethodSemantic  MatchMethod = "semantic"
	MatchMethodHybrid    MatchMethod = "hybrid"
)

// methodRank orders methods for deterministic tie-breaking, strongest first
var methodRank = map[MatchMethod]int{
	MatchMethodExactCode: 0,
	MatchMethodFuzzy:     1,
	MatchMethodHybrid:    2,
	MatchMethodSemantic:  3,
}

// Rank returns the precedence rank of the method (lower is stronger)
func (m MatchMethod) Rank() int {
	if r, ok := methodRank[m]; ok {
		return r
	}
	return len(methodRank)
}

// MatchEvidence records how one catalog reference scored against a rubro.
// Evidence is immutable once produced.
type MatchEvidence struct {
	ReferenceID   string      `json:"reference_id"`
	WBSCode       string      `json:"wbs_code,omitempty"`
	Description   string      `json:"description,omitempty"`
	SemanticScore float64     `json:"semantic_score"`
	FuzzyScore    float64     `json:"fuzzy_score"`
	CodeScore     float64     `json:"code_score"`
	UnitScore     float64     `json:"unit_score"`
	CombinedScore float64     `json:"combined_score"`
	Method        MatchMethod `json:"method"`
}

// MatchOutcome is the final classification for one rubro
type MatchOutcome struct {
	RubroID      string          `json:"rubro_id"`
	Status       MatchStatus     `json:"status"`
	Best         *MatchEvidence  `json:"best,omitempty"`
	Alternatives []MatchEvidence `json:"alternatives,omitempty"`
	Confidence   float64         `json:"confidence"`

	// EmbeddingFailed marks outcomes forced to NO_MATCH because the
	// rubro embedding could not be produced.
	EmbeddingFailed bool      `json:"embedding_failed,omitempty"`
	MatchedAt       time.Time `json:"matched_at,omitempty"`
}

// MatchRequest is the request body for matching a batch of rubros
type MatchRequest struct {
	Rubros []Rubro `json:"rubros" validate:"required,min=1,dive"`
}

// MatchResponse is the response for a batch match request
type MatchResponse struct {
	Outcomes []MatchOutcome `json:"outcomes"`
	Stats    MatchStats     `json:"stats"`
}

// MatchStats summarizes a batch match run
type MatchStats struct {
	Total        int `json:"total"`
	Matched      int `json:"matched"`
	Ambiguous    int `json:"ambiguous"`
	ManualReview int `json:"manual_review"`
	NoMatch      int `json:"no_match"`
}

// Count tallies one outcome into the stats
func (s *MatchStats) Count(status MatchStatus) {
	s.Total++
	switch status {
	case MatchStatusMatched:
		s.Matched++
	case MatchStatusAmbiguous:
		s.Ambiguous++
	case MatchStatusManualReview:
		s.ManualReview++
	case MatchStatusNoMatch:
		s.NoMatch++
	}
}
