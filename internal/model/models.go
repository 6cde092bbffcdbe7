// Package model defines the shared data structures of the automation pipeline.
package model

import "time"

// RawPosting is an offer as returned by a single job board, before
// normalisation and dedup. Field casing is preserved for display; the
// ingestion engine derives the canonical fingerprint from folded copies.
type RawPosting struct {
	ExternalID  string
	Title       string
	Company     string
	Location    string
	Description string
	SalaryMin   float64
	SalaryMax   float64
	SourceURL   string
	PostedAt    time.Time
}

// SearchCriteria narrows a job-board search. RedFlags are exclusion terms —
// any match in title+company+description discards the offer before persist.
type SearchCriteria struct {
	Keywords string
	Location string
	RedFlags []string
	Limit    int
}

// Posting is a normalised, deduplicated job listing. The fingerprint is the
// canonical identity across all sources: two adapters returning the same
// offer yield one Posting.
type Posting struct {
	Fingerprint string
	Title       string
	Company     string
	Location    string
	Description string

	// Skill sets populated by the extractor before the posting is persisted,
	// so scoring never blocks on extraction. All entries are lowercased.
	RequiredSkills  []string
	PreferredSkills []string
	TechnicalSkills []string
	SoftSkills      []string
	ActionWords     []string

	SalaryMin float64
	SalaryMax float64
	Source    string
	SourceURL string
	PostedAt  time.Time
	Active    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Profile is a candidate's search profile. Owned by the candidate and
// written by the API layer; read-only to this subsystem.
type Profile struct {
	CandidateID     string
	TargetRoles     []string
	Locations       []string
	RedFlags        []string
	TechnicalSkills []string
	SoftSkills      []string
	ActionWords     []string
	ExperienceYears int
	ResumePath      string
}
