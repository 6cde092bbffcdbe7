package ingest_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"jobpilot/automation-service/internal/ingest"
)

func TestFingerprint_Stable(t *testing.T) {
	a := ingest.Fingerprint("Backend Engineer", "Acme", "Berlin", "adzuna")
	b := ingest.Fingerprint("Backend Engineer", "Acme", "Berlin", "adzuna")
	assert.Equal(t, a, b)
	assert.Len(t, a, 64) // hex-encoded sha256
}

func TestFingerprint_CaseAndWhitespaceInsensitive(t *testing.T) {
	a := ingest.Fingerprint("Backend Engineer", "Acme", "Berlin", "adzuna")
	b := ingest.Fingerprint("  backend   ENGINEER ", "acme", " berlin", "ADZUNA")
	assert.Equal(t, a, b)
}

func TestFingerprint_DiacriticsFolded(t *testing.T) {
	a := ingest.Fingerprint("Développeur Backend", "Société Générale", "Zürich", "jooble")
	b := ingest.Fingerprint("Developpeur Backend", "Societe Generale", "Zurich", "jooble")
	assert.Equal(t, a, b)
}

func TestFingerprint_FieldsAreSeparated(t *testing.T) {
	// Content sliding across a field boundary must not collide.
	a := ingest.Fingerprint("ab", "c", "x", "s")
	b := ingest.Fingerprint("a", "bc", "x", "s")
	assert.NotEqual(t, a, b)
}

func TestFingerprint_DistinctInputsDiffer(t *testing.T) {
	base := ingest.Fingerprint("Backend Engineer", "Acme", "Berlin", "adzuna")
	assert.NotEqual(t, base, ingest.Fingerprint("Frontend Engineer", "Acme", "Berlin", "adzuna"))
	assert.NotEqual(t, base, ingest.Fingerprint("Backend Engineer", "Globex", "Berlin", "adzuna"))
	assert.NotEqual(t, base, ingest.Fingerprint("Backend Engineer", "Acme", "Munich", "adzuna"))
	assert.NotEqual(t, base, ingest.Fingerprint("Backend Engineer", "Acme", "Berlin", "jooble"))
}
