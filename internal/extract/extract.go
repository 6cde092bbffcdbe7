// Package extract analyzes free text for skills and keywords.
//
// The external extraction service and the text generator are collaborators
// that may be unavailable; both degrade to the deterministic offline
// Heuristic so the pipeline never blocks on them.
package extract

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// ErrServiceUnavailable signals that an external collaborator cannot serve
// requests right now. Callers fall back to the offline heuristic.
var ErrServiceUnavailable = errors.New("extraction service unavailable")

// Analysis is the result of analyzing one piece of text (a job description
// or a resume). All entries are lowercased.
type Analysis struct {
	TechnicalSkills []string `json:"technicalSkills"`
	SoftSkills      []string `json:"softSkills"`
	ActionWords     []string `json:"actionWords"`
	RequiredSkills  []string `json:"requiredSkills"`
	PreferredSkills []string `json:"preferredSkills"`
	Keywords        []string `json:"keywords"`
	ExperienceYears int      `json:"experienceYears"`
}

// Extractor analyzes text for skills and keywords.
type Extractor interface {
	Extract(ctx context.Context, text string) (*Analysis, error)
}

// Generator produces text from a prompt (cover letters).
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// ─── Offline heuristic ──────────────────────────────────────────────────────

var (
	requiredSectionRe  = regexp.MustCompile(`(?is)(?:requirements?|required|must have):(.+?)(?:responsibilities|qualifications|preferred|nice to have|bonus:|$)`)
	preferredSectionRe = regexp.MustCompile(`(?is)(?:preferred|nice to have|bonus):(.+?)(?:responsibilities|requirements|$)`)
	experienceRe       = regexp.MustCompile(`(?i)(\d+)\+?\s*years?`)
)

// Heuristic is a deterministic, dictionary-based extractor and template
// generator. Safe for concurrent use.
type Heuristic struct {
	dicts    Dictionaries
	patterns map[string]*regexp.Regexp
}

// NewHeuristic compiles word-boundary patterns for every dictionary entry.
func NewHeuristic(dicts Dictionaries) *Heuristic {
	h := &Heuristic{dicts: dicts, patterns: make(map[string]*regexp.Regexp)}
	for _, list := range [][]string{dicts.TechnicalSkills, dicts.SoftSkills, dicts.ActionVerbs} {
		for _, term := range list {
			if _, ok := h.patterns[term]; !ok {
				h.patterns[term] = wordPattern(term)
			}
		}
	}
	return h
}

// wordPattern builds a case-insensitive word-boundary pattern for a term.
// Terms ending in a non-word rune (e.g. "c++") cannot use \b on that side.
func wordPattern(term string) *regexp.Regexp {
	quoted := regexp.QuoteMeta(term)
	prefix, suffix := `\b`, `\b`
	if !isWordByte(term[0]) {
		prefix = ``
	}
	if !isWordByte(term[len(term)-1]) {
		suffix = ``
	}
	return regexp.MustCompile(`(?i)` + prefix + quoted + suffix)
}

func isWordByte(b byte) bool {
	return b == '_' || ('a' <= b && b <= 'z') || ('A' <= b && b <= 'Z') || ('0' <= b && b <= '9')
}

// Extract scans text against the dictionaries. Never returns an error.
func (h *Heuristic) Extract(_ context.Context, text string) (*Analysis, error) {
	a := &Analysis{
		TechnicalSkills: h.scan(text, h.dicts.TechnicalSkills),
		SoftSkills:      h.scan(text, h.dicts.SoftSkills),
		ActionWords:     h.scan(text, h.dicts.ActionVerbs),
		ExperienceYears: extractExperienceYears(text),
	}

	if m := requiredSectionRe.FindStringSubmatch(text); m != nil {
		a.RequiredSkills = h.scan(m[1], h.dicts.TechnicalSkills)
	}
	if m := preferredSectionRe.FindStringSubmatch(text); m != nil {
		a.PreferredSkills = h.scan(m[1], h.dicts.TechnicalSkills)
	}

	seen := make(map[string]bool)
	for _, list := range [][]string{a.TechnicalSkills, a.SoftSkills, a.ActionWords} {
		for _, kw := range list {
			if !seen[kw] {
				seen[kw] = true
				a.Keywords = append(a.Keywords, kw)
			}
		}
	}
	sort.Strings(a.Keywords)

	return a, nil
}

// scan returns the dictionary terms present in text, sorted for
// deterministic output.
func (h *Heuristic) scan(text string, terms []string) []string {
	var found []string
	for _, term := range terms {
		if h.patterns[term].MatchString(text) {
			found = append(found, term)
		}
	}
	sort.Strings(found)
	return found
}

func extractExperienceYears(text string) int {
	years := 0
	for _, m := range experienceRe.FindAllStringSubmatch(text, -1) {
		if v, err := strconv.Atoi(m[1]); err == nil && v > years && v < 60 {
			years = v
		}
	}
	return years
}

// Generate fills a plain cover-letter template. The prompt is expected to
// carry "role @ company" context; anything else is inserted verbatim.
func (h *Heuristic) Generate(_ context.Context, prompt string) (string, error) {
	subject := strings.TrimSpace(prompt)
	if subject == "" {
		subject = "the advertised position"
	}
	return fmt.Sprintf(
		"Dear Hiring Manager,\n\n"+
			"I am writing to express my interest in %s. My background closely "+
			"matches the requirements outlined in the posting, and I would "+
			"welcome the opportunity to discuss how I can contribute to your team.\n\n"+
			"Thank you for your consideration.\n", subject), nil
}
