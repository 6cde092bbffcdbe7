// Package source implements job-board adapters.
//
// Every provider implements the Source interface; the ingestion engine holds
// them in a name-keyed registry, so adding a provider never changes the
// engine. Adapter failures are classified as transient (retry next sweep)
// or credential errors (scheduler disables the adapter).
package source

import (
	"context"
	"fmt"

	"jobpilot/automation-service/internal/model"
)

// Source is the capability interface every job-board adapter implements.
type Source interface {
	// Search fetches raw postings matching the criteria. Implementations
	// must honor ctx cancellation and bound every request with a timeout.
	Search(ctx context.Context, criteria model.SearchCriteria) ([]model.RawPosting, error)

	// Name is the provider name used for registry keys and fingerprints.
	Name() string
}

// TransientError marks a failure worth retrying on the next sweep
// (network trouble, 5xx, rate limiting upstream).
type TransientError struct {
	Source string
	Err    error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("%s: transient failure: %v", e.Source, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// CredentialsError marks a terminal configuration failure (bad or rejected
// credentials). The scheduler disables the adapter for the process lifetime.
type CredentialsError struct {
	Source string
	Err    error
}

func (e *CredentialsError) Error() string {
	return fmt.Sprintf("%s: credentials rejected: %v", e.Source, e.Err)
}

func (e *CredentialsError) Unwrap() error { return e.Err }

// Registry maps provider names to adapters.
type Registry map[string]Source

// NewRegistry builds a Registry from adapters, keyed by Name().
func NewRegistry(sources ...Source) Registry {
	reg := make(Registry, len(sources))
	for _, s := range sources {
		reg[s.Name()] = s
	}
	return reg
}
