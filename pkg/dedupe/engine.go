// Package dedupe implements duplicate resolution for extracted rubros
package dedupe

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/Gobusters/ectologger"

	"github.com/andestx/rubromatch/pkg/fingerprint"
	"github.com/andestx/rubromatch/pkg/models"
	"github.com/andestx/rubromatch/pkg/normalizers"
	"github.com/andestx/rubromatch/pkg/scoring"
	"github.com/andestx/rubromatch/pkg/tracing"
)

// splitSeparator joins a code and its split suffix (e.g. "04.02.01#A")
const splitSeparator = "#"

// noCodeKeyPrefix keys un-hashed code-less rubros into singleton groups
const noCodeKeyPrefix = "__NO_CODE_"

// EngineConfig contains configuration for the dedupe engine
type EngineConfig struct {
	EnableMerge bool
	EnableSplit bool
	EnableHash  bool

	// NearDuplicateMerge extends MERGE to descriptions whose similarity
	// is at or above SimilarityThreshold. Off by default; the standard
	// criterion is exact equality after normalization.
	NearDuplicateMerge  bool
	SimilarityThreshold float64

	WorkerCount int
}

// DefaultConfig returns default engine configuration
func DefaultConfig() EngineConfig {
	return EngineConfig{
		EnableMerge:         true,
		EnableSplit:         true,
		EnableHash:          true,
		NearDuplicateMerge:  false,
		SimilarityThreshold: 0.95,
		WorkerCount:         4,
	}
}

// Result is the output of one deduplication pass
type Result struct {
	Rubros []models.Rubro
	Groups []models.DuplicateGroup
	Stats  models.DedupeStats
}

// Engine resolves duplicate rubros through MERGE, SPLIT and HASH
// strategies. Group formation is sequential; group resolution runs
// across a worker pool since groups are independent.
type Engine struct {
	logger ectologger.Logger
	scorer *scoring.Scorer
	config EngineConfig
}

// NewEngine creates a dedupe engine. scorer is only consulted for
// near-duplicate merging and may be nil when that option is off.
func NewEngine(logger ectologger.Logger, scorer *scoring.Scorer, config EngineConfig) *Engine {
	return &Engine{
		logger: logger,
		scorer: scorer,
		config: config,
	}
}

// group is one set of rubros sharing a group key
type group struct {
	key     string
	members []models.Rubro
	order   int
	hashed  int
}

// Resolve deduplicates a batch of rubros. Running Resolve over an
// already-resolved set returns it unchanged.
func (e *Engine) Resolve(ctx context.Context, rubros []models.Rubro) (*Result, error) {
	ctx, span := tracing.StartSpan(ctx, "dedupe.Engine.Resolve")
	defer span.End()

	log := e.logger.WithContext(ctx).WithFields(map[string]any{
		"input": len(rubros),
	})
	log.Debug("Resolving duplicates")

	groups := e.formGroups(ctx, rubros)

	// Resolve groups concurrently; each group writes only its own slot.
	resolved := make([]*groupResult, len(groups))
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
				resolved[i] = e.resolveGroup(ctx, groups[i])
			}
		}()
	}
	for i := range groups {
		indices <- i
	}
	close(indices)
	wg.Wait()

	result := &Result{}
	result.Stats.Input = len(rubros)
	for i, gr := range resolved {
		result.Rubros = append(result.Rubros, gr.rubros...)
		if len(groups[i].members) > 1 || groups[i].hashed > 0 {
			result.Groups = append(result.Groups, gr.group)
		}
		result.Stats.Merged += gr.merged
		result.Stats.Split += gr.split
		result.Stats.Hashed += groups[i].hashed
	}
	result.Stats.Output = len(result.Rubros)
	result.Stats.Removed = result.Stats.Input - result.Stats.Output

	log.WithFields(map[string]any{
		"output": result.Stats.Output,
		"merged": result.Stats.Merged,
		"split":  result.Stats.Split,
		"hashed": result.Stats.Hashed,
	}).Info("Resolved duplicates")

	return result, nil
}

// formGroups assigns hash codes to code-less rubros and groups the batch
// by group key, preserving first-seen order
func (e *Engine) formGroups(ctx context.Context, rubros []models.Rubro) []*group {
	byKey := make(map[string]*group)
	var ordered []*group

	for _, rubro := range rubros {
		hashed := false
		codeless := false
		if normalizers.NormalizeCode(rubro.Codigo) == "" && !fingerprint.IsHashCode(rubro.Codigo) {
			if e.config.EnableHash {
				rubro.Codigo = fingerprint.HashCode(rubro.Descripcion)
				hashed = true
			} else {
				codeless = true
				e.logger.WithContext(ctx).WithFields(map[string]any{
					"rubro_id": rubro.ID,
				}).Warn("HASH strategy disabled, passing through code-less rubro")
			}
		}

		key := groupKey(rubro.Codigo)
		if codeless {
			// Code-less rubros never group with each other; a disabled
			// HASH strategy passes each one through as a singleton.
			key = noCodeKeyPrefix + rubro.ID
		}
		g, ok := byKey[key]
		if !ok {
			g = &group{key: key, order: len(ordered)}
			byKey[key] = g
			ordered = append(ordered, g)
		}
		g.members = append(g.members, rubro)
		if hashed {
			g.hashed++
		}
	}

	return ordered
}

// groupKey canonicalizes a code for grouping. Synthetic hash codes and
// already-split codes are grouping keys verbatim so a second pass over
// resolved output regroups nothing.
func groupKey(code string) string {
	if code == "" {
		return ""
	}
	if fingerprint.IsHashCode(code) || strings.Contains(code, splitSeparator) {
		return code
	}
	if normalized := normalizers.NormalizeCode(code); normalized != "" {
		return normalized
	}
	return code
}

// groupResult carries the resolved rubros and audit record for one group
type groupResult struct {
	rubros []models.Rubro
	group  models.DuplicateGroup
	merged int
	split  int
}

// resolveGroup applies the appropriate strategy to one group
func (e *Engine) resolveGroup(ctx context.Context, g *group) *groupResult {
	memberIDs := make([]string, len(g.members))
	for i, m := range g.members {
		memberIDs[i] = m.ID
	}

	gr := &groupResult{
		group: models.DuplicateGroup{
			GroupKey:  g.key,
			MemberIDs: memberIDs,
		},
	}

	// Hash-assigned codes are renames even for singletons.
	if g.hashed > 0 {
		gr.group.Strategy = models.DedupeStrategyHash
		gr.group.Renames = make(map[string]string, len(g.members))
		for _, m := range g.members {
			gr.group.Renames[m.ID] = m.Codigo
		}
	}

	if len(g.members) == 1 {
		if gr.group.Strategy == "" {
			gr.group.Strategy = models.DedupeStrategyNone
		}
		gr.rubros = g.members
		gr.group.ResultIDs = []string{g.members[0].ID}
		return gr
	}

	if e.mergeable(g.members) {
		if !e.config.EnableMerge {
			e.logger.WithContext(ctx).WithFields(map[string]any{
				"group_key": g.key,
				"members":   len(g.members),
			}).Warn("MERGE strategy disabled, passing duplicates through")
			gr.group.Strategy = models.DedupeStrategyNone
			gr.rubros = g.members
			gr.group.ResultIDs = memberIDs
			return gr
		}

		merged := mergeMembers(g.members)
		if gr.group.Strategy != models.DedupeStrategyHash {
			gr.group.Strategy = models.DedupeStrategyMerge
		}
		gr.group.ResultIDs = []string{merged.ID}
		gr.rubros = []models.Rubro{merged}
		gr.merged = 1
		return gr
	}

	// Conflicting members: split under suffixed codes.
	conflicts := conflictKinds(g.members)
	gr.group.Conflicts = conflicts

	if !e.config.EnableSplit {
		e.logger.WithContext(ctx).WithFields(map[string]any{
			"group_key": g.key,
			"members":   len(g.members),
		}).Warn("SPLIT strategy disabled, passing conflicting duplicates through")
		gr.group.Strategy = models.DedupeStrategyNone
		gr.rubros = g.members
		gr.group.ResultIDs = memberIDs
		return gr
	}

	gr.group.Strategy = models.DedupeStrategySplit
	if gr.group.Renames == nil {
		gr.group.Renames = make(map[string]string, len(g.members))
	}
	for i, member := range g.members {
		member.Codigo = g.key + splitSeparator + splitSuffix(i)
		member.Conflicts = conflictNames(conflicts)
		gr.group.Renames[member.ID] = member.Codigo
		gr.group.ResultIDs = append(gr.group.ResultIDs, member.ID)
		gr.rubros = append(gr.rubros, member)
	}
	gr.split = 1
	return gr
}

// mergeable reports whether every member of a group is a duplicate of
// the first under the configured criterion
func (e *Engine) mergeable(members []models.Rubro) bool {
	first := members[0]
	firstSig := fingerprint.Signature("", first.Descripcion, first.Unidad)
	for _, m := range members[1:] {
		if fingerprint.Signature("", m.Descripcion, m.Unidad) == firstSig {
			continue
		}
		if e.config.NearDuplicateMerge && e.scorer != nil &&
			normalizers.NormalizeUnit(first.Unidad) == normalizers.NormalizeUnit(m.Unidad) &&
			e.scorer.TokenSetRatio(first.Descripcion, m.Descripcion) >= e.config.SimilarityThreshold*100 {
			continue
		}
		return false
	}
	return true
}

// mergeMembers folds a group of duplicates into its first-seen member:
// source pages are unioned and sorted, extraction confidence is the
// mean, and provenance is kept in MergedFrom
func mergeMembers(members []models.Rubro) models.Rubro {
	merged := members[0]

	pages := make(map[int]bool)
	var confidence float64
	var from []string
	for _, m := range members {
		for _, p := range m.SourcePages {
			pages[p] = true
		}
		confidence += m.Confidence
		from = append(from, m.ID)
		from = append(from, m.MergedFrom...)
	}

	merged.SourcePages = sortedPages(pages)
	merged.Confidence = confidence / float64(len(members))
	merged.MergedFrom = from
	return merged
}

func sortedPages(pages map[int]bool) []int {
	if len(pages) == 0 {
		return nil
	}
	out := make([]int, 0, len(pages))
	for p := range pages {
		out = append(out, p)
	}
	sort.Ints(out)
	return out
}

// conflictKinds inspects a group and names why it cannot merge
func conflictKinds(members []models.Rubro) []models.ConflictKind {
	first := members[0]
	var kinds []models.ConflictKind
	descConflict := false
	unitConflict := false
	for _, m := range members[1:] {
		if normalizers.NormalizeDescription(m.Descripcion) != normalizers.NormalizeDescription(first.Descripcion) {
			descConflict = true
		}
		if normalizers.NormalizeUnit(m.Unidad) != normalizers.NormalizeUnit(first.Unidad) {
			unitConflict = true
		}
	}
	if descConflict {
		kinds = append(kinds, models.ConflictDescription)
	}
	if unitConflict {
		kinds = append(kinds, models.ConflictUnit)
	}
	return kinds
}

func conflictNames(kinds []models.ConflictKind) []string {
	names := make([]string, len(kinds))
	for i, k := range kinds {
		names[i] = string(k)
	}
	return names
}

// splitSuffix yields A, B, ..., Z, AA, AB, ... for split members in
// first-seen order
func splitSuffix(i int) string {
	var suffix string
	for {
		suffix = string(rune('A'+i%26)) + suffix
		i = i/26 - 1
		if i < 0 {
			break
		}
	}
	return suffix
}
