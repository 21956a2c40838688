// Package fingerprint provides deterministic content hashing for rubros
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/andestx/rubromatch/pkg/normalizers"
)

// hashCodePrefix marks synthetic codes assigned to code-less rubros
const hashCodePrefix = "HASH_"

// hashCodeLength is the number of hex characters kept in a synthetic code
const hashCodeLength = 8

// ContentHash returns the SHA256 hex digest of normalized text
func ContentHash(text string) string {
	normalized := normalizers.NormalizeDescription(text)
	hash := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(hash[:])
}

// HashCode derives a synthetic code for a rubro without one.
// Two rubros with the same normalized description always receive the
// same synthetic code.
func HashCode(description string) string {
	digest := ContentHash(description)
	return hashCodePrefix + strings.ToUpper(digest[:hashCodeLength])
}

// IsHashCode reports whether a code was synthesized by HashCode
func IsHashCode(code string) bool {
	return strings.HasPrefix(code, hashCodePrefix)
}

// Signature produces a deterministic fingerprint of a rubro's identity
// fields. Rubros with equal signatures are exact duplicates after
// normalization.
func Signature(code, description, unit string) string {
	canonical := normalizers.NormalizeCode(code) + "\x1f" +
		normalizers.NormalizeDescription(description) + "\x1f" +
		normalizers.NormalizeUnit(unit)
	hash := sha256.Sum256([]byte(canonical))
	return hex.EncodeToString(hash[:])
}

// HasChanged compares two fingerprints to detect changes
func HasChanged(oldFingerprint, newFingerprint string) bool {
	return oldFingerprint != newFingerprint
}
