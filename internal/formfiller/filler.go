// Package formfiller populates application forms on destination job boards.
//
// The contract explicitly excludes the final submit step: a filler prepares
// the form and captures an artifact for human confirmation, nothing more.
package formfiller

import "context"

// FillRequest identifies one form-fill attempt. The contact fields are
// optional; fillers skip what is empty.
type FillRequest struct {
	PostingURL  string
	ResumePath  string
	CoverLetter string
	FullName    string
	Email       string
	Phone       string
}

// FillResult reports a completed attempt. Filled=false with a Message is a
// normal failure outcome (no apply button, form not recognized), not an
// infrastructure error.
type FillResult struct {
	Filled       bool
	ArtifactPath string
	Message      string
}

// Filler is the collaborator interface the queue worker drives.
type Filler interface {
	Fill(ctx context.Context, req FillRequest) (*FillResult, error)
}
