package normalizers

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/goccy/go-yaml"
)

// unitSynonyms maps unit spellings seen in extracted documents to their
// canonical form. Keys are lowercase with whitespace and dots stripped.
var unitSynonyms = map[string]string{
	"m2":       "m²",
	"mt2":      "m²",
	"m²":       "m²",
	"m3":       "m³",
	"mt3":      "m³",
	"m³":       "m³",
	"ml":       "ml",
	"mtl":      "ml",
	"m":        "m",
	"mt":       "m",
	"mts":      "m",
	"u":        "u",
	"un":       "u",
	"und":      "u",
	"unid":     "u",
	"unidad":   "u",
	"unidades": "u",
	"c/u":      "u",
	"kg":       "kg",
	"kgs":      "kg",
	"kilo":     "kg",
	"kilos":    "kg",
	"t":        "t",
	"ton":      "t",
	"tn":       "t",
	"l":        "l",
	"lt":       "l",
	"lts":      "l",
	"litro":    "l",
	"litros":   "l",
	"glb":      "glb",
	"gl":       "glb",
	"global":   "glb",
	"ha":       "ha",
	"has":      "ha",
	"hr":       "h",
	"hrs":      "h",
	"h":        "h",
	"hora":     "h",
	"horas":    "h",
	"dia":      "d",
	"dias":     "d",
	"d":        "d",
	"mes":      "mes",
	"meses":    "mes",
	"pto":      "pto",
	"punto":    "pto",
	"puntos":   "pto",
	"saco":     "saco",
	"sacos":    "saco",
	"bolsa":    "saco",
	"km":       "km",
	"pulg":     "in",
	"in":       "in",
}

var unitMu sync.RWMutex

// NormalizeUnit canonicalizes a unit of measure. Unknown units are
// lowercased and trimmed but otherwise kept as-is.
func NormalizeUnit(unit string) string {
	key := strings.ToLower(strings.TrimSpace(unit))
	key = strings.TrimSuffix(key, ".")
	key = strings.ReplaceAll(key, " ", "")
	if key == "" {
		return ""
	}

	unitMu.RLock()
	canonical, ok := unitSynonyms[key]
	unitMu.RUnlock()
	if ok {
		return canonical
	}
	return key
}

// UnitsCompatible reports whether two units canonicalize to the same form.
// Callers decide how to treat missing units; this returns false if either
// side is empty.
func UnitsCompatible(a, b string) bool {
	na := NormalizeUnit(a)
	nb := NormalizeUnit(b)
	if na == "" || nb == "" {
		return false
	}
	return na == nb
}

// unitSynonymFile is the YAML shape for extending the synonym table
type unitSynonymFile struct {
	Units map[string][]string `yaml:"units"`
}

// LoadUnitSynonyms extends the synonym table from a YAML file mapping
// canonical units to their spellings:
//
//	units:
//	  m²: [m2, mt2]
//	  u: [und, unid]
func LoadUnitSynonyms(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read unit synonyms file: %w", err)
	}

	var file unitSynonymFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to parse unit synonyms file: %w", err)
	}

	unitMu.Lock()
	defer unitMu.Unlock()
	for canonical, spellings := range file.Units {
		canonical = strings.ToLower(strings.TrimSpace(canonical))
		for _, spelling := range spellings {
			key := strings.ToLower(strings.TrimSpace(spelling))
			key = strings.ReplaceAll(key, " ", "")
			if key == "" {
				continue
			}
			unitSynonyms[key] = canonical
		}
		unitSynonyms[canonical] = canonical
	}

	return nil
}
