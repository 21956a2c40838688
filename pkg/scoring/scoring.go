// Package scoring implements the multi-signal similarity scoring for rubro matching
package scoring

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/andestx/rubromatch/pkg/models"
	"github.com/andestx/rubromatch/pkg/normalizers"
)

// Weights holds the contribution of each signal to the combined score
type Weights struct {
	Semantic float64 `json:"semantic"`
	Fuzzy    float64 `json:"fuzzy"`
	Code     float64 `json:"code"`
	Unit     float64 `json:"unit"`
}

// DefaultWeights returns the standard signal weights
func DefaultWeights() Weights {
	return Weights{
		Semantic: 0.70,
		Fuzzy:    0.20,
		Code:     0.05,
		Unit:     0.05,
	}
}

// weightSumTolerance allows for floating point drift when validating weights
const weightSumTolerance = 0.01

// Validate rejects weight sets that do not sum to 1.0
func (w Weights) Validate() error {
	for name, v := range map[string]float64{
		"semantic": w.Semantic,
		"fuzzy":    w.Fuzzy,
		"code":     w.Code,
		"unit":     w.Unit,
	} {
		if v < 0 {
			return fmt.Errorf("weight %s must not be negative, got %f", name, v)
		}
	}

	sum := w.Semantic + w.Fuzzy + w.Code + w.Unit
	if math.Abs(sum-1.0) > weightSumTolerance {
		return fmt.Errorf("weights must sum to 1.0, got %f", sum)
	}
	return nil
}

// partialCodeScore is awarded when codes share a two-segment prefix
const partialCodeScore = 0.5

// Scorer computes per-signal and combined similarity scores
type Scorer struct {
	weights            Weights
	fuzzyHighThreshold float64
}

// NewScorer creates a scorer with the given weights.
// fuzzyHighThreshold is on the 0-100 fuzzy scale.
func NewScorer(weights Weights, fuzzyHighThreshold float64) *Scorer {
	return &Scorer{
		weights:            weights,
		fuzzyHighThreshold: fuzzyHighThreshold,
	}
}

// Weights returns the scorer's weight set
func (s *Scorer) Weights() Weights {
	return s.weights
}

// Score produces match evidence for a rubro against one catalog reference.
// cosine is the raw cosine similarity between their embeddings in [-1, 1].
func (s *Scorer) Score(rubro *models.Rubro, ref *models.ReferenceRubro, cosine float64) models.MatchEvidence {
	semantic := s.SemanticScore(cosine)
	fuzzy := s.TokenSetRatio(rubro.Descripcion, ref.Description)
	code := s.CodeScore(rubro.Codigo, ref.WBSCode)
	unit := s.UnitScore(rubro.Unidad, ref.Unit)

	combined := s.CombinedScore(semantic, fuzzy, code, unit)

	return models.MatchEvidence{
		ReferenceID:   ref.ID,
		WBSCode:       ref.WBSCode,
		Description:   ref.Description,
		SemanticScore: semantic,
		FuzzyScore:    fuzzy,
		CodeScore:     code,
		UnitScore:     unit,
		CombinedScore: combined,
		Method:        s.Method(code, fuzzy, semantic),
	}
}

// SemanticScore rescales cosine similarity from [-1, 1] to [0, 1]
func (s *Scorer) SemanticScore(cosine float64) float64 {
	return clamp01((cosine + 1) / 2)
}

// CombinedScore computes the weighted sum of all signals.
// fuzzy is on the 0-100 scale and is normalized before weighting.
func (s *Scorer) CombinedScore(semantic, fuzzy, code, unit float64) float64 {
	combined := s.weights.Semantic*semantic +
		s.weights.Fuzzy*(fuzzy/100.0) +
		s.weights.Code*code +
		s.weights.Unit*unit
	return clamp01(combined)
}

// Method determines the dominant signal behind a score
func (s *Scorer) Method(code, fuzzy, semantic float64) models.MatchMethod {
	switch {
	case code == 1.0:
		return models.MatchMethodExactCode
	case fuzzy >= s.fuzzyHighThreshold:
		return models.MatchMethodFuzzy
	case semantic > fuzzy/100.0+0.1:
		return models.MatchMethodSemantic
	default:
		return models.MatchMethodHybrid
	}
}

// CodeScore compares two rubro codes after normalization.
// Exact matches score 1.0; codes sharing their first two hierarchy
// segments score partial credit; anything else scores 0.
func (s *Scorer) CodeScore(a, b string) float64 {
	na := normalizers.NormalizeCode(a)
	nb := normalizers.NormalizeCode(b)
	if na == "" || nb == "" {
		return 0.0
	}
	if na == nb {
		return 1.0
	}

	segA := normalizers.SplitCode(na)
	segB := normalizers.SplitCode(nb)
	if len(segA) >= 2 && len(segB) >= 2 && segA[0] == segB[0] && segA[1] == segB[1] {
		return partialCodeScore
	}
	return 0.0
}

// UnitScore compares units of measure.
// Identical or synonymous units score 1.0. A missing unit on either side
// is neutral and scores 0.5, so unitless rubros are not penalized.
func (s *Scorer) UnitScore(a, b string) float64 {
	na := normalizers.NormalizeUnit(a)
	nb := normalizers.NormalizeUnit(b)
	if na == "" || nb == "" {
		return 0.5
	}
	if na == nb {
		return 1.0
	}
	return 0.0
}

// TokenSetRatio calculates token-set similarity between two strings on a
// 0-100 scale. Token order and repeated tokens are ignored; the score is
// the best Levenshtein ratio over the intersection/difference token
// combinations.
func (s *Scorer) TokenSetRatio(a, b string) float64 {
	tokensA := tokenSet(a)
	tokensB := tokenSet(b)
	if len(tokensA) == 0 || len(tokensB) == 0 {
		if len(tokensA) == 0 && len(tokensB) == 0 {
			return 100.0
		}
		return 0.0
	}

	var intersection, onlyA, onlyB []string
	for token := range tokensA {
		if tokensB[token] {
			intersection = append(intersection, token)
		} else {
			onlyA = append(onlyA, token)
		}
	}
	for token := range tokensB {
		if !tokensA[token] {
			onlyB = append(onlyB, token)
		}
	}
	sort.Strings(intersection)
	sort.Strings(onlyA)
	sort.Strings(onlyB)

	common := strings.Join(intersection, " ")
	combinedA := joinNonEmpty(common, strings.Join(onlyA, " "))
	combinedB := joinNonEmpty(common, strings.Join(onlyB, " "))

	best := levenshteinRatio(common, combinedA)
	if r := levenshteinRatio(common, combinedB); r > best {
		best = r
	}
	if r := levenshteinRatio(combinedA, combinedB); r > best {
		best = r
	}
	return best
}

// tokenSet splits normalized text into its unique tokens
func tokenSet(s string) map[string]bool {
	normalized := normalizers.NormalizeDescription(s)
	tokens := make(map[string]bool)
	for _, token := range strings.Fields(normalized) {
		tokens[token] = true
	}
	return tokens
}

func joinNonEmpty(a, b string) string {
	if a == "" {
		return b
	}
	if b == "" {
		return a
	}
	return a + " " + b
}

// levenshteinRatio converts edit distance to a 0-100 similarity
func levenshteinRatio(a, b string) float64 {
	if a == b {
		return 100.0
	}
	lensum := len(a) + len(b)
	if lensum == 0 {
		return 100.0
	}
	dist := levenshteinDistance(a, b)
	return float64(lensum-dist) / float64(lensum) * 100.0
}

// levenshteinDistance calculates the edit distance between two strings
func levenshteinDistance(a, b string) int {
	if a == b {
		return 0
	}
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	// Two rows for dynamic programming
	row := make([]int, len(b)+1)
	prevRow := make([]int, len(b)+1)

	for j := 0; j <= len(b); j++ {
		prevRow[j] = j
	}

	for i := 1; i <= len(a); i++ {
		row[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 0
			if a[i-1] != b[j-1] {
				cost = 1
			}
			row[j] = min(min(row[j-1]+1, prevRow[j]+1), prevRow[j-1]+cost)
		}
		row, prevRow = prevRow, row
	}

	return prevRow[len(b)]
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
