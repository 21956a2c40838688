package dedupe

import (
	"context"
	"strings"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andestx/rubromatch/pkg/fingerprint"
	"github.com/andestx/rubromatch/pkg/models"
	"github.com/andestx/rubromatch/pkg/scoring"
)

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

func newTestEngine(cfg EngineConfig) *Engine {
	return NewEngine(testLogger(), scoring.NewScorer(scoring.DefaultWeights(), 80), cfg)
}

func TestResolveMerge(t *testing.T) {
	e := newTestEngine(DefaultConfig())

	rubros := []models.Rubro{
		{ID: "r1", Codigo: "04.02.01", Descripcion: "Hormigon simple", Unidad: "m3", SourcePages: []int{3, 1}, Confidence: 0.8},
		{ID: "r2", Codigo: "4-2-1", Descripcion: "HORMIGON Simple", Unidad: "m3", SourcePages: []int{2, 3}, Confidence: 0.6},
	}

	result, err := e.Resolve(context.Background(), rubros)
	require.NoError(t, err)

	require.Len(t, result.Rubros, 1)
	merged := result.Rubros[0]
	assert.Equal(t, "r1", merged.ID)
	assert.Equal(t, []int{1, 2, 3}, merged.SourcePages)
	assert.InDelta(t, 0.7, merged.Confidence, 1e-9)
	assert.Equal(t, []string{"r1", "r2"}, merged.MergedFrom)

	require.Len(t, result.Groups, 1)
	group := result.Groups[0]
	assert.Equal(t, "04.02.01", group.GroupKey)
	assert.Equal(t, models.DedupeStrategyMerge, group.Strategy)
	assert.Equal(t, []string{"r1", "r2"}, group.MemberIDs)
	assert.Equal(t, []string{"r1"}, group.ResultIDs)

	assert.Equal(t, 2, result.Stats.Input)
	assert.Equal(t, 1, result.Stats.Output)
	assert.Equal(t, 1, result.Stats.Merged)
	assert.Equal(t, 1, result.Stats.Removed)
}

func TestResolveSplit(t *testing.T) {
	e := newTestEngine(DefaultConfig())

	rubros := []models.Rubro{
		{ID: "r1", Codigo: "04.02.01", Descripcion: "Hormigon simple", Unidad: "m3"},
		{ID: "r2", Codigo: "04.02.01", Descripcion: "Hormigon armado", Unidad: "m3"},
		{ID: "r3", Codigo: "04.02.01", Descripcion: "Hormigon ciclopeo", Unidad: "m3"},
	}

	result, err := e.Resolve(context.Background(), rubros)
	require.NoError(t, err)

	require.Len(t, result.Rubros, 3)
	assert.Equal(t, "04.02.01#A", result.Rubros[0].Codigo)
	assert.Equal(t, "04.02.01#B", result.Rubros[1].Codigo)
	assert.Equal(t, "04.02.01#C", result.Rubros[2].Codigo)
	assert.Equal(t, []string{"description"}, result.Rubros[0].Conflicts)

	require.Len(t, result.Groups, 1)
	group := result.Groups[0]
	assert.Equal(t, models.DedupeStrategySplit, group.Strategy)
	assert.Equal(t, []models.ConflictKind{models.ConflictDescription}, group.Conflicts)
	assert.Equal(t, "04.02.01#B", group.Renames["r2"])

	assert.Equal(t, 1, result.Stats.Split)
	assert.Zero(t, result.Stats.Removed)
}

func TestResolveSplitUnitConflict(t *testing.T) {
	e := newTestEngine(DefaultConfig())

	rubros := []models.Rubro{
		{ID: "r1", Codigo: "07.01.01", Descripcion: "Malla electrosoldada", Unidad: "m2"},
		{ID: "r2", Codigo: "07.01.01", Descripcion: "Malla electrosoldada", Unidad: "kg"},
	}

	result, err := e.Resolve(context.Background(), rubros)
	require.NoError(t, err)

	require.Len(t, result.Groups, 1)
	assert.Equal(t, []models.ConflictKind{models.ConflictUnit}, result.Groups[0].Conflicts)
}

func TestResolveHash(t *testing.T) {
	e := newTestEngine(DefaultConfig())

	t.Run("code-less rubro gets a synthetic code", func(t *testing.T) {
		rubros := []models.Rubro{
			{ID: "r1", Descripcion: "Limpieza final de obra", Unidad: "glb"},
		}

		result, err := e.Resolve(context.Background(), rubros)
		require.NoError(t, err)

		require.Len(t, result.Rubros, 1)
		assert.True(t, fingerprint.IsHashCode(result.Rubros[0].Codigo))

		require.Len(t, result.Groups, 1)
		group := result.Groups[0]
		assert.Equal(t, models.DedupeStrategyHash, group.Strategy)
		assert.Equal(t, result.Rubros[0].Codigo, group.Renames["r1"])
		assert.Equal(t, 1, result.Stats.Hashed)
	})

	t.Run("hash collisions merge", func(t *testing.T) {
		rubros := []models.Rubro{
			{ID: "r1", Descripcion: "Limpieza final de obra", Unidad: "glb", SourcePages: []int{1}},
			{ID: "r2", Descripcion: "LIMPIEZA final de obra", Unidad: "glb", SourcePages: []int{9}},
		}

		result, err := e.Resolve(context.Background(), rubros)
		require.NoError(t, err)

		require.Len(t, result.Rubros, 1)
		assert.True(t, fingerprint.IsHashCode(result.Rubros[0].Codigo))
		assert.Equal(t, []int{1, 9}, result.Rubros[0].SourcePages)
		assert.Equal(t, 2, result.Stats.Hashed)
		assert.Equal(t, 1, result.Stats.Removed)

		require.Len(t, result.Groups, 1)
		assert.Equal(t, models.DedupeStrategyHash, result.Groups[0].Strategy)
	})
}

func TestResolveDisabledStrategies(t *testing.T) {
	ctx := context.Background()

	t.Run("merge disabled passes duplicates through", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.EnableMerge = false
		e := newTestEngine(cfg)

		result, err := e.Resolve(ctx, []models.Rubro{
			{ID: "r1", Codigo: "04.02.01", Descripcion: "Hormigon simple", Unidad: "m3"},
			{ID: "r2", Codigo: "04.02.01", Descripcion: "Hormigon simple", Unidad: "m3"},
		})
		require.NoError(t, err)

		assert.Len(t, result.Rubros, 2)
		require.Len(t, result.Groups, 1)
		assert.Equal(t, models.DedupeStrategyNone, result.Groups[0].Strategy)
		assert.Zero(t, result.Stats.Merged)
	})

	t.Run("split disabled passes conflicts through", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.EnableSplit = false
		e := newTestEngine(cfg)

		result, err := e.Resolve(ctx, []models.Rubro{
			{ID: "r1", Codigo: "04.02.01", Descripcion: "Hormigon simple", Unidad: "m3"},
			{ID: "r2", Codigo: "04.02.01", Descripcion: "Hormigon armado", Unidad: "m3"},
		})
		require.NoError(t, err)

		assert.Len(t, result.Rubros, 2)
		assert.Equal(t, "04.02.01", result.Rubros[0].Codigo)
		require.Len(t, result.Groups, 1)
		assert.Equal(t, models.DedupeStrategyNone, result.Groups[0].Strategy)
		assert.NotEmpty(t, result.Groups[0].Conflicts)
	})

	t.Run("hash disabled keeps empty codes", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.EnableHash = false
		e := newTestEngine(cfg)

		result, err := e.Resolve(ctx, []models.Rubro{
			{ID: "r1", Descripcion: "Limpieza final de obra"},
		})
		require.NoError(t, err)

		require.Len(t, result.Rubros, 1)
		assert.Empty(t, result.Rubros[0].Codigo)
		assert.Zero(t, result.Stats.Hashed)
		assert.Empty(t, result.Groups)
	})

	t.Run("hash disabled never groups code-less rubros", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.EnableHash = false
		e := newTestEngine(cfg)

		rubros := []models.Rubro{
			{ID: "r1", Descripcion: "Limpieza final de obra", Unidad: "glb"},
			{ID: "r2", Descripcion: "Desalojo de escombros", Unidad: "m3"},
		}

		result, err := e.Resolve(ctx, rubros)
		require.NoError(t, err)

		// Unrelated code-less rubros are singletons, never split members.
		assert.Equal(t, rubros, result.Rubros)
		assert.Empty(t, result.Groups)
		assert.Zero(t, result.Stats.Merged)
		assert.Zero(t, result.Stats.Split)
		assert.Zero(t, result.Stats.Removed)
	})
}

func TestResolveNearDuplicateMerge(t *testing.T) {
	ctx := context.Background()

	rubros := []models.Rubro{
		{ID: "r1", Codigo: "04.02.01", Descripcion: "Hormigon simple", Unidad: "m3"},
		{ID: "r2", Codigo: "04.02.01", Descripcion: "Hormigon simple f'c=210", Unidad: "m3"},
	}

	t.Run("off by default", func(t *testing.T) {
		e := newTestEngine(DefaultConfig())
		result, err := e.Resolve(ctx, rubros)
		require.NoError(t, err)
		assert.Len(t, result.Rubros, 2)
		assert.Equal(t, models.DedupeStrategySplit, result.Groups[0].Strategy)
	})

	t.Run("merges token subsets when enabled", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.NearDuplicateMerge = true
		e := newTestEngine(cfg)

		result, err := e.Resolve(ctx, rubros)
		require.NoError(t, err)
		require.Len(t, result.Rubros, 1)
		assert.Equal(t, "r1", result.Rubros[0].ID)
		assert.Equal(t, models.DedupeStrategyMerge, result.Groups[0].Strategy)
	})

	t.Run("unit conflict still splits", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.NearDuplicateMerge = true
		e := newTestEngine(cfg)

		result, err := e.Resolve(ctx, []models.Rubro{
			{ID: "r1", Codigo: "04.02.01", Descripcion: "Hormigon simple", Unidad: "m3"},
			{ID: "r2", Codigo: "04.02.01", Descripcion: "Hormigon simple", Unidad: "m2"},
		})
		require.NoError(t, err)
		assert.Len(t, result.Rubros, 2)
	})
}

func TestResolveIsIdempotent(t *testing.T) {
	e := newTestEngine(DefaultConfig())
	ctx := context.Background()

	rubros := []models.Rubro{
		{ID: "r1", Codigo: "04.02.01", Descripcion: "Hormigon simple", Unidad: "m3"},
		{ID: "r2", Codigo: "04.02.01", Descripcion: "Hormigon simple", Unidad: "m3"},
		{ID: "r3", Codigo: "05.01.01", Descripcion: "Acero de refuerzo", Unidad: "kg"},
		{ID: "r4", Codigo: "05.01.01", Descripcion: "Acero estructural", Unidad: "kg"},
		{ID: "r5", Descripcion: "Limpieza final de obra"},
	}

	first, err := e.Resolve(ctx, rubros)
	require.NoError(t, err)

	second, err := e.Resolve(ctx, first.Rubros)
	require.NoError(t, err)

	assert.Equal(t, first.Rubros, second.Rubros)
	assert.Zero(t, second.Stats.Merged)
	assert.Zero(t, second.Stats.Split)
	assert.Zero(t, second.Stats.Hashed)
	assert.Zero(t, second.Stats.Removed)
}

func TestGroupKey(t *testing.T) {
	assert.Equal(t, "04.02.01", groupKey("4-2-1"))
	assert.Equal(t, "04.02.01#A", groupKey("04.02.01#A"))
	assert.Equal(t, "", groupKey(""))

	hash := fingerprint.HashCode("algo")
	assert.Equal(t, hash, groupKey(hash))
}

func TestSplitSuffix(t *testing.T) {
	assert.Equal(t, "A", splitSuffix(0))
	assert.Equal(t, "B", splitSuffix(1))
	assert.Equal(t, "Z", splitSuffix(25))
	assert.Equal(t, "AA", splitSuffix(26))
	assert.Equal(t, "AB", splitSuffix(27))

	for i := 0; i < 100; i++ {
		assert.False(t, strings.Contains(splitSuffix(i), "#"))
	}
}
