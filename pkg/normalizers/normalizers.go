// Package normalizers provides text normalization for rubro codes, units and descriptions
package normalizers

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Normalizer is a function that normalizes a string value
type Normalizer func(string) string

// registry holds all registered normalizers
var registry = make(map[string]Normalizer)

func init() {
	Register("lowercase", Lowercase)
	Register("trim", Trim)
	Register("collapse_whitespace", CollapseWhitespace)
	Register("ncode", NormalizeCode)
	Register("nunit", NormalizeUnit)
	Register("ndescription", NormalizeDescription)
}

// Register adds a normalizer to the registry
func Register(name string, fn Normalizer) {
	registry[name] = fn
}

// Get retrieves a normalizer by name
func Get(name string) (Normalizer, bool) {
	fn, ok := registry[name]
	return fn, ok
}

// Apply applies a named normalizer to a value
func Apply(value, normalizer string) string {
	fn, ok := registry[normalizer]
	if !ok {
		return value
	}
	return fn(value)
}

// ApplyChain applies multiple normalizers in sequence
func ApplyChain(value string, normalizers ...string) string {
	result := value
	for _, name := range normalizers {
		result = Apply(result, name)
	}
	return result
}

// Lowercase converts string to lowercase
func Lowercase(s string) string {
	return strings.ToLower(s)
}

// Trim removes leading and trailing whitespace
func Trim(s string) string {
	return strings.TrimSpace(s)
}

var spaceRe = regexp.MustCompile(`\s+`)

// CollapseWhitespace folds runs of whitespace into a single space
func CollapseWhitespace(s string) string {
	return strings.TrimSpace(spaceRe.ReplaceAllString(s, " "))
}

// NormalizeDescription normalizes a rubro description for comparison and embedding
// - NFKC unicode normalization
// - Lowercase
// - Control characters removed
// - Whitespace collapsed
func NormalizeDescription(s string) string {
	s = norm.NFKC.String(s)
	s = strings.ToLower(s)

	var result strings.Builder
	for _, r := range s {
		if unicode.IsControl(r) {
			result.WriteRune(' ')
			continue
		}
		result.WriteRune(r)
	}

	return CollapseWhitespace(result.String())
}

// ocrDigitFixes repairs characters commonly misread inside numeric codes
var ocrDigitFixes = strings.NewReplacer("O", "0", "o", "0", "l", "1", "I", "1")

// codeSeparators unifies the separators seen in extracted codes
var codeSeparators = strings.NewReplacer("-", ".", "_", ".", ",", ".", " ", ".")

// maxCodeSegments caps normalized codes at three hierarchy levels
const maxCodeSegments = 3

// NormalizeCode canonicalizes a rubro code:
// OCR digit repair, separator unification, zero-padded 2-digit segments,
// truncated to the first three hierarchy levels.
// Returns "" when no digits survive normalization.
func NormalizeCode(code string) string {
	code = strings.TrimSpace(code)
	if code == "" {
		return ""
	}

	code = ocrDigitFixes.Replace(code)
	code = codeSeparators.Replace(code)

	parts := strings.Split(code, ".")
	segments := make([]string, 0, maxCodeSegments)
	for _, part := range parts {
		part = strings.TrimFunc(part, func(r rune) bool { return !unicode.IsDigit(r) })
		if part == "" {
			continue
		}
		if len(part) == 1 {
			part = "0" + part
		}
		segments = append(segments, part)
		if len(segments) == maxCodeSegments {
			break
		}
	}

	if len(segments) == 0 {
		return ""
	}
	return strings.Join(segments, ".")
}

// SplitCode returns the hierarchy segments of a normalized code
func SplitCode(code string) []string {
	if code == "" {
		return nil
	}
	return strings.Split(code, ".")
}

// codeRe matches a rubro code embedded in free text (e.g. "04.02.01" or "4-2-1")
var codeRe = regexp.MustCompile(`\b\d{1,3}(?:[.\-]\d{1,3}){1,4}\b`)

// ExtractCode finds the first rubro code inside free text and normalizes it
func ExtractCode(text string) string {
	raw := codeRe.FindString(text)
	if raw == "" {
		return ""
	}
	return NormalizeCode(raw)
}
