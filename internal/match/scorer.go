// Package match computes compatibility scores between a candidate profile
// and a job posting.
//
// Scoring is a pure function of its inputs: no randomness, no external
// calls, identical inputs always yield an identical Result including
// suggestion order. Safe to call concurrently.
package match

import (
	"math"
	"regexp"
	"sort"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"

	"jobpilot/automation-service/internal/model"
)

// Category weights. They sum to 1.0.
const (
	weightTechnical = 0.40
	weightRequired  = 0.30
	weightSoft      = 0.15
	weightAction    = 0.15
)

// SuggestionLevel controls how aggressively missing skills are surfaced.
type SuggestionLevel string

const (
	LevelConservative SuggestionLevel = "conservative"
	LevelBalanced     SuggestionLevel = "balanced"
	LevelAggressive   SuggestionLevel = "aggressive"
)

// suggestion profiles: cap on emitted suggestions and the minimum number of
// times a skill must appear in the posting description to qualify.
var levelProfiles = map[SuggestionLevel]struct {
	cap   int
	floor int
}{
	LevelConservative: {cap: 5, floor: 2},
	LevelBalanced:     {cap: 10, floor: 1},
	LevelAggressive:   {cap: 20, floor: 0},
}

// CategoryScores carries the weighted contribution of each category on the
// 0-100 scale.
type CategoryScores struct {
	Technical   float64 `json:"technical"`
	Required    float64 `json:"required"`
	Soft        float64 `json:"soft"`
	ActionWords float64 `json:"actionWords"`
}

// Result is the scored comparison between a profile and a posting.
// Derived state: safe to discard and recompute.
type Result struct {
	Score           int            `json:"score"` // 0-100
	Breakdown       CategoryScores `json:"breakdown"`
	MatchingSkills  []string       `json:"matchingSkills"`
	MissingRequired []string       `json:"missingRequired"`
	Suggestions     []string       `json:"suggestions"`
}

// Scorer scores profile/posting pairs with a fixed suggestion level.
type Scorer struct {
	level SuggestionLevel
}

// NewScorer returns a Scorer. Unknown levels fall back to balanced.
func NewScorer(level SuggestionLevel) *Scorer {
	if _, ok := levelProfiles[level]; !ok {
		level = LevelBalanced
	}
	return &Scorer{level: level}
}

// Score computes the weighted overlap between profile and posting.
//
// A category whose posting-side list is empty contributes its full weight:
// listing no soft skills means there is no soft-skill requirement to fail,
// not a division by zero.
func (s *Scorer) Score(profile *model.Profile, posting *model.Posting) *Result {
	profileTech := lowerSet(profile.TechnicalSkills)
	profileSoft := lowerSet(profile.SoftSkills)
	profileActions := lowerSet(profile.ActionWords)

	postingTech := lowerSet(posting.TechnicalSkills).
		Union(lowerSet(posting.RequiredSkills)).
		Union(lowerSet(posting.PreferredSkills))
	postingRequired := lowerSet(posting.RequiredSkills)
	postingSoft := lowerSet(posting.SoftSkills)
	postingActions := lowerSet(posting.ActionWords)

	breakdown := CategoryScores{
		Technical:   100 * weightTechnical * overlap(profileTech, postingTech),
		Required:    100 * weightRequired * overlap(profileTech, postingRequired),
		Soft:        100 * weightSoft * overlap(profileSoft, postingSoft),
		ActionWords: 100 * weightAction * overlap(profileActions, postingActions),
	}

	total := breakdown.Technical + breakdown.Required + breakdown.Soft + breakdown.ActionWords

	return &Result{
		Score:           int(math.Round(total)),
		Breakdown:       breakdown,
		MatchingSkills:  sortedSlice(profileTech.Intersect(postingTech)),
		MissingRequired: sortedSlice(postingRequired.Difference(profileTech)),
		Suggestions:     s.suggestions(profileTech.Union(profileSoft), postingTech.Union(postingSoft), posting.Description),
	}
}

// overlap returns |candidate ∩ required| / |required| in [0,1], or 1.0 when
// the posting lists nothing in the category.
func overlap(candidate, required mapset.Set[string]) float64 {
	if required.Cardinality() == 0 {
		return 1.0
	}
	return float64(candidate.Intersect(required).Cardinality()) / float64(required.Cardinality())
}

// suggestions emits posting skills absent from the candidate's lists,
// ordered by descending frequency in the description with an alphabetical
// tie-break, filtered by the level's frequency floor and cap.
func (s *Scorer) suggestions(candidate, postingSkills mapset.Set[string], description string) []string {
	profile := levelProfiles[s.level]
	missing := sortedSlice(postingSkills.Difference(candidate))

	type ranked struct {
		skill string
		freq  int
	}
	var candidates []ranked
	lowerDesc := strings.ToLower(description)
	for _, skill := range missing {
		freq := countOccurrences(lowerDesc, skill)
		if freq >= profile.floor {
			candidates = append(candidates, ranked{skill: skill, freq: freq})
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].freq != candidates[j].freq {
			return candidates[i].freq > candidates[j].freq
		}
		return candidates[i].skill < candidates[j].skill
	})

	if len(candidates) > profile.cap {
		candidates = candidates[:profile.cap]
	}

	out := make([]string, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, c.skill)
	}
	return out
}

// countOccurrences counts word-boundary occurrences of term in lowered text.
// Terms with non-word edge runes (e.g. "c++") drop the boundary on that side.
func countOccurrences(loweredText, term string) int {
	term = strings.ToLower(term)
	if term == "" {
		return 0
	}
	prefix, suffix := `\b`, `\b`
	if !isWordByte(term[0]) {
		prefix = ``
	}
	if !isWordByte(term[len(term)-1]) {
		suffix = ``
	}
	re := regexp.MustCompile(prefix + regexp.QuoteMeta(term) + suffix)
	return len(re.FindAllStringIndex(loweredText, -1))
}

func isWordByte(b byte) bool {
	return b == '_' || ('a' <= b && b <= 'z') || ('A' <= b && b <= 'Z') || ('0' <= b && b <= '9')
}

func lowerSet(items []string) mapset.Set[string] {
	set := mapset.NewThreadUnsafeSet[string]()
	for _, item := range items {
		item = strings.TrimSpace(strings.ToLower(item))
		if item != "" {
			set.Add(item)
		}
	}
	return set
}

func sortedSlice(set mapset.Set[string]) []string {
	out := set.ToSlice()
	sort.Strings(out)
	return out
}
