package embedding

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

// stubEmbedder returns fixed vectors keyed by input text and records how
// many texts reached the backend.
type stubEmbedder struct {
	mu      sync.Mutex
	vectors map[string][]float32
	calls   int
	err     error
}

func newStubEmbedder(vectors map[string][]float32) *stubEmbedder {
	return &stubEmbedder{vectors: vectors}
}

func (s *stubEmbedder) Generate(_ context.Context, texts []string) ([][]float32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls += len(texts)
	if s.err != nil {
		return nil, s.err
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec, ok := s.vectors[text]
		if !ok {
			return nil, errors.New("unknown text: " + text)
		}
		out[i] = append([]float32(nil), vec...)
	}
	return out, nil
}

func (s *stubEmbedder) Dimensions() int { return 3 }
func (s *stubEmbedder) Model() string   { return "stub-model" }
func (s *stubEmbedder) Close() error    { return nil }

func (s *stubEmbedder) backendCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func TestKey(t *testing.T) {
	t.Run("deterministic", func(t *testing.T) {
		assert.Equal(t, Key("m", "hormigon"), Key("m", "hormigon"))
	})

	t.Run("model is part of the key", func(t *testing.T) {
		assert.NotEqual(t, Key("model-a", "hormigon"), Key("model-b", "hormigon"))
	})

	t.Run("text changes the key", func(t *testing.T) {
		assert.NotEqual(t, Key("m", "hormigon"), Key("m", "acero"))
	})
}

func TestNormalizeL2(t *testing.T) {
	t.Run("scales to unit length", func(t *testing.T) {
		vec := NormalizeL2([]float32{3, 4})
		assert.InDelta(t, 0.6, vec[0], 1e-6)
		assert.InDelta(t, 0.8, vec[1], 1e-6)
		assert.InDelta(t, 1.0, math.Sqrt(Dot(vec, vec)), 1e-6)
	})

	t.Run("zero vector unchanged", func(t *testing.T) {
		vec := NormalizeL2([]float32{0, 0, 0})
		assert.Equal(t, []float32{0, 0, 0}, vec)
	})
}

func TestDot(t *testing.T) {
	assert.InDelta(t, 1.0, Dot([]float32{1, 0}, []float32{1, 0}), 1e-9)
	assert.InDelta(t, 0.0, Dot([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.InDelta(t, -1.0, Dot([]float32{1, 0}, []float32{-1, 0}), 1e-9)
}

func TestDiskCache(t *testing.T) {
	ctx := context.Background()

	t.Run("roundtrip through disk", func(t *testing.T) {
		dir := t.TempDir()
		cache, err := NewDiskCache(dir)
		require.NoError(t, err)

		vec := []float32{0.1, -0.2, 0.3}
		require.NoError(t, cache.Put(ctx, Key("m", "hormigon"), vec))

		// A fresh cache over the same directory must see the vector.
		fresh, err := NewDiskCache(dir)
		require.NoError(t, err)
		got, ok := fresh.Get(ctx, Key("m", "hormigon"))
		require.True(t, ok)
		assert.Equal(t, vec, got)
		assert.Equal(t, 1, fresh.Len())
	})

	t.Run("miss", func(t *testing.T) {
		cache, err := NewDiskCache(t.TempDir())
		require.NoError(t, err)
		_, ok := cache.Get(ctx, Key("m", "nope"))
		assert.False(t, ok)
	})

	t.Run("memory only", func(t *testing.T) {
		cache, err := NewDiskCache("")
		require.NoError(t, err)

		vec := []float32{1, 2}
		require.NoError(t, cache.Put(ctx, "abc", vec))
		got, ok := cache.Get(ctx, "abc")
		require.True(t, ok)
		assert.Equal(t, vec, got)
	})
}

func TestServiceEmbed(t *testing.T) {
	ctx := context.Background()

	backend := newStubEmbedder(map[string][]float32{
		"hormigon simple":   {3, 0, 0},
		"acero de refuerzo": {0, 4, 0},
	})
	svc := NewService(backend, nil, testLogger(), ServiceConfig{BatchSize: 2, Workers: 2})

	vectors, err := svc.Embed(ctx, []string{"Hormigon   SIMPLE", "Acero de refuerzo"})
	require.NoError(t, err)
	require.Len(t, vectors, 2)

	// Results are L2 normalized and keyed to the normalized input.
	assert.InDelta(t, 1.0, vectors[0][0], 1e-6)
	assert.InDelta(t, 1.0, vectors[1][1], 1e-6)
}

func TestServiceEmbedEmptyText(t *testing.T) {
	backend := newStubEmbedder(nil)
	svc := NewService(backend, nil, testLogger(), ServiceConfig{})

	vectors, err := svc.Embed(context.Background(), []string{"   "})
	require.NoError(t, err)
	require.Len(t, vectors, 1)
	assert.Equal(t, ZeroVector(backend.Dimensions()), vectors[0])
	assert.Zero(t, backend.backendCalls())
}

func TestServiceCacheHitSkipsBackend(t *testing.T) {
	ctx := context.Background()

	backend := newStubEmbedder(map[string][]float32{"hormigon simple": {1, 0, 0}})
	cache, err := NewDiskCache("")
	require.NoError(t, err)
	svc := NewService(backend, cache, testLogger(), ServiceConfig{})

	_, err = svc.Embed(ctx, []string{"hormigon simple"})
	require.NoError(t, err)
	first := backend.backendCalls()
	assert.Equal(t, 1, first)

	_, err = svc.Embed(ctx, []string{"HORMIGON Simple"})
	require.NoError(t, err)
	assert.Equal(t, first, backend.backendCalls())
}

func TestServiceEmbedEach(t *testing.T) {
	ctx := context.Background()

	t.Run("per item errors", func(t *testing.T) {
		backend := newStubEmbedder(map[string][]float32{"conocido": {1, 0, 0}})
		svc := NewService(backend, nil, testLogger(), ServiceConfig{BatchSize: 1, Workers: 1})

		vectors, errs := svc.EmbedEach(ctx, []string{"conocido", "desconocido"})
		require.Len(t, vectors, 2)
		require.Len(t, errs, 2)
		assert.NoError(t, errs[0])
		assert.NotNil(t, vectors[0])
		assert.Error(t, errs[1])
	})

	t.Run("embed fails on any error", func(t *testing.T) {
		backend := newStubEmbedder(nil)
		backend.err = errors.New("backend down")
		svc := NewService(backend, nil, testLogger(), ServiceConfig{})

		_, err := svc.Embed(ctx, []string{"hormigon"})
		assert.Error(t, err)
	})
}
