package ingest

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var foldChain = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// fold canonicalizes a fingerprint component: diacritics stripped,
// lowercased, trimmed, inner whitespace collapsed. Original casing is
// preserved elsewhere for storage and display.
func fold(s string) string {
	folded, _, err := transform.String(foldChain, s)
	if err != nil {
		folded = s
	}
	return strings.Join(strings.Fields(strings.ToLower(folded)), " ")
}

// Fingerprint derives the canonical posting identity from the normalized
// (title, company, location, source) tuple. Stable across adapters: two
// boards listing the same offer under different casing or spacing collide
// here, which is exactly the point.
func Fingerprint(title, company, location, source string) string {
	h := sha256.New()
	for _, part := range []string{fold(title), fold(company), fold(location), fold(source)} {
		h.Write([]byte(part))
		h.Write([]byte{0}) // field separator so ("ab","c") != ("a","bc")
	}
	return hex.EncodeToString(h.Sum(nil))
}
