package normalizers

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeCode(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"already normalized", "04.02.01", "04.02.01"},
		{"single digit segments padded", "4.2.1", "04.02.01"},
		{"dash separators", "04-02-01", "04.02.01"},
		{"space separators", "04 02 01", "04.02.01"},
		{"underscore separators", "04_02_01", "04.02.01"},
		{"ocr capital o", "O4.02.01", "04.02.01"},
		{"ocr lowercase l", "04.0l.02", "04.01.02"},
		{"ocr capital i", "04.I2.01", "04.12.01"},
		{"truncated to three levels", "04.02.01.07.03", "04.02.01"},
		{"surrounding noise stripped", " 04. 02 .01 ", "04.02.01"},
		{"empty", "", ""},
		{"no digits", "abc", ""},
		{"single segment", "4", "04"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizeCode(tt.input))
		})
	}
}

func TestSplitCode(t *testing.T) {
	assert.Equal(t, []string{"04", "02", "01"}, SplitCode("04.02.01"))
	assert.Nil(t, SplitCode(""))
}

func TestExtractCode(t *testing.T) {
	t.Run("finds embedded code", func(t *testing.T) {
		assert.Equal(t, "04.02.01", ExtractCode("rubro 04.02.01 hormigon simple"))
	})

	t.Run("dash separated", func(t *testing.T) {
		assert.Equal(t, "04.02.01", ExtractCode("item 4-2-1: excavacion"))
	})

	t.Run("no code present", func(t *testing.T) {
		assert.Equal(t, "", ExtractCode("hormigon simple f'c=210"))
	})
}

func TestNormalizeDescription(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"lowercases", "HORMIGON Simple", "hormigon simple"},
		{"collapses whitespace", "hormigon   simple\t f'c=210", "hormigon simple f'c=210"},
		{"strips control chars", "hormigon\x00simple", "hormigon simple"},
		{"nfkc folds fullwidth", "ｈｏｒｍｉｇｏｎ", "hormigon"},
		{"empty", "   ", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizeDescription(tt.input))
		})
	}
}

func TestNormalizeUnit(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"m2", "m²"},
		{"M2", "m²"},
		{"mt2", "m²"},
		{"m3", "m³"},
		{"und", "u"},
		{"UNIDAD", "u"},
		{"c/u", "u"},
		{"kgs", "kg"},
		{"und.", "u"},
		{"gl", "glb"},
		{"zzz", "zzz"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizeUnit(tt.input))
		})
	}
}

func TestUnitsCompatible(t *testing.T) {
	assert.True(t, UnitsCompatible("m2", "M²"))
	assert.True(t, UnitsCompatible("und", "unidad"))
	assert.False(t, UnitsCompatible("m2", "m3"))
	assert.False(t, UnitsCompatible("", "m2"))
}

func TestLoadUnitSynonyms(t *testing.T) {
	path := filepath.Join(t.TempDir(), "units.yaml")
	content := []byte("units:\n  saco:\n    - costal\n    - funda\n")
	require.NoError(t, os.WriteFile(path, content, 0o644))

	require.NoError(t, LoadUnitSynonyms(path))

	assert.Equal(t, "saco", NormalizeUnit("costal"))
	assert.Equal(t, "saco", NormalizeUnit("FUNDA"))
	assert.True(t, UnitsCompatible("costal", "saco"))
}

func TestLoadUnitSynonymsMissingFile(t *testing.T) {
	err := LoadUnitSynonyms(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestApplyChain(t *testing.T) {
	assert.Equal(t, "hormigon simple", ApplyChain("  HORMIGON   Simple ", "ndescription"))
	assert.Equal(t, "unknown stays", Apply("unknown stays", "not_registered"))
}
