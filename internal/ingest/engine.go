// Package ingest merges raw postings from all configured job boards,
// deduplicates them by fingerprint and persists net-new postings.
package ingest

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"jobpilot/automation-service/internal/extract"
	"jobpilot/automation-service/internal/model"
	"jobpilot/automation-service/internal/source"
)

// UpsertOutcome reports what the store did with one posting.
type UpsertOutcome int

const (
	OutcomeInserted UpsertOutcome = iota
	OutcomeSkippedActive
	OutcomeReactivated
)

// PostingStore persists postings. Upsert must be atomic per fingerprint:
// two sweeps racing to insert the same new posting resolve through the
// store's uniqueness constraint, never as a duplicate row.
// DeactivateOlderThan returns the fingerprints it deactivated so the seen
// cache can drop them.
type PostingStore interface {
	Upsert(ctx context.Context, p *model.Posting) (UpsertOutcome, error)
	DeactivateOlderThan(ctx context.Context, cutoff time.Time) ([]string, error)
}

// SeenCache short-circuits re-ingestion of fingerprints seen recently.
// Purely an optimization layer in front of the store; a miss always falls
// through to the authoritative upsert. Entries are never refreshed on a
// cache hit, so a deactivated posting becomes visible to the store again
// within one TTL even if a board keeps listing it.
type SeenCache interface {
	IsSeen(ctx context.Context, fingerprint string) bool
	MarkSeen(ctx context.Context, fingerprints []string)
	Invalidate(ctx context.Context, fingerprints []string)
}

// SourceError captures one adapter's failure during a sweep. Non-fatal:
// included in the Result instead of aborting the other adapters.
type SourceError struct {
	Source string
	Err    error
}

func (e *SourceError) Error() string { return fmt.Sprintf("source %s: %v", e.Source, e.Err) }

func (e *SourceError) Unwrap() error { return e.Err }

// Result is the accounting of one ingestion sweep. For every raw posting
// fetched, exactly one of Added/Skipped/Reactivated/Filtered is incremented.
type Result struct {
	Added       int
	Skipped     int
	Reactivated int
	Filtered    int
	Errors      []SourceError
}

// Engine runs ingestion sweeps and posting cleanup.
type Engine struct {
	mu        sync.Mutex
	sources   source.Registry
	store     PostingStore
	extractor extract.Extractor
	seen      SeenCache // optional
	retention time.Duration
	timeout   time.Duration // per-adapter search timeout
}

// NewEngine constructs an Engine over the adapter registry.
func NewEngine(sources source.Registry, store PostingStore, extractor extract.Extractor, retention time.Duration) *Engine {
	return &Engine{
		sources:   sources,
		store:     store,
		extractor: extractor,
		retention: retention,
		timeout:   2 * time.Minute,
	}
}

// SetSeenCache enables the recently-seen fingerprint cache.
func (e *Engine) SetSeenCache(c SeenCache) { e.seen = c }

// Disable removes an adapter from the registry, typically after a
// credentials error. Irreversible for the process lifetime.
func (e *Engine) Disable(name string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.sources[name]; ok {
		delete(e.sources, name)
		log.Printf("[ingest] Source %q disabled", name)
	}
}

// snapshot returns the adapters in deterministic order.
func (e *Engine) snapshot() []source.Source {
	e.mu.Lock()
	defer e.mu.Unlock()
	names := make([]string, 0, len(e.sources))
	for name := range e.sources {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]source.Source, 0, len(names))
	for _, name := range names {
		out = append(out, e.sources[name])
	}
	return out
}

// Ingest fans out the criteria to every adapter concurrently, then merges,
// deduplicates and persists the results. One adapter's failure never aborts
// the others; it lands in Result.Errors as a SourceError.
func (e *Engine) Ingest(ctx context.Context, criteria model.SearchCriteria) (*Result, error) {
	runID := uuid.NewString()
	adapters := e.snapshot()
	log.Printf("[ingest] Sweep %s started: keywords=%q location=%q sources=%d",
		runID, criteria.Keywords, criteria.Location, len(adapters))

	type fetched struct {
		source string
		raws   []model.RawPosting
	}

	var (
		mu      sync.Mutex
		batches []fetched
		result  Result
	)

	g, gctx := errgroup.WithContext(ctx)
	for _, adapter := range adapters {
		g.Go(func() error {
			searchCtx, cancel := context.WithTimeout(gctx, e.timeout)
			defer cancel()

			raws, err := adapter.Search(searchCtx, criteria)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Errors = append(result.Errors, SourceError{Source: adapter.Name(), Err: err})
				return nil // isolate: never abort sibling adapters
			}
			batches = append(batches, fetched{source: adapter.Name(), raws: raws})
			return nil
		})
	}
	_ = g.Wait() // adapter errors are collected, never returned

	// Deterministic merge order regardless of adapter completion order.
	sort.Slice(batches, func(i, j int) bool { return batches[i].source < batches[j].source })

	// The merge step is sequential on purpose: writes are serialized per
	// fingerprint and the store's uniqueness constraint backs it up.
	var newlySeen []string
	for _, batch := range batches {
		for _, raw := range batch.raws {
			outcome, fp, err := e.persist(ctx, batch.source, raw, criteria.RedFlags)
			if err != nil {
				result.Errors = append(result.Errors, SourceError{Source: batch.source, Err: err})
				continue
			}
			switch outcome {
			case outcomeFiltered:
				result.Filtered++
				continue
			case outcomeSkippedCached:
				// Already cached; re-marking would refresh the TTL and
				// keep an inactive posting invisible to the store forever.
				result.Skipped++
				continue
			case outcomeSkipped:
				result.Skipped++
			case outcomeReactivated:
				result.Reactivated++
			case outcomeAdded:
				result.Added++
			}
			newlySeen = append(newlySeen, fp)
		}
	}

	if e.seen != nil && len(newlySeen) > 0 {
		e.seen.MarkSeen(ctx, newlySeen)
	}

	log.Printf("[ingest] Sweep %s done — added=%d skipped=%d reactivated=%d filtered=%d errors=%d",
		runID, result.Added, result.Skipped, result.Reactivated, result.Filtered, len(result.Errors))
	return &result, nil
}

type persistOutcome int

const (
	outcomeAdded persistOutcome = iota
	outcomeSkipped
	outcomeSkippedCached
	outcomeReactivated
	outcomeFiltered
)

func (e *Engine) persist(ctx context.Context, sourceName string, raw model.RawPosting, redFlags []string) (persistOutcome, string, error) {
	if containsAny(raw.Title+" "+raw.Company+" "+raw.Description, redFlags) {
		return outcomeFiltered, "", nil
	}

	fp := Fingerprint(raw.Title, raw.Company, raw.Location, sourceName)

	if e.seen != nil && e.seen.IsSeen(ctx, fp) {
		return outcomeSkippedCached, fp, nil
	}

	// Skills are populated before persisting so scoring never blocks on
	// extraction later.
	analysis, err := e.extractor.Extract(ctx, raw.Description)
	if err != nil {
		return 0, "", fmt.Errorf("extract skills: %w", err)
	}

	posting := &model.Posting{
		Fingerprint:     fp,
		Title:           raw.Title,
		Company:         raw.Company,
		Location:        raw.Location,
		Description:     raw.Description,
		RequiredSkills:  analysis.RequiredSkills,
		PreferredSkills: analysis.PreferredSkills,
		TechnicalSkills: analysis.TechnicalSkills,
		SoftSkills:      analysis.SoftSkills,
		ActionWords:     analysis.ActionWords,
		SalaryMin:       raw.SalaryMin,
		SalaryMax:       raw.SalaryMax,
		Source:          sourceName,
		SourceURL:       raw.SourceURL,
		PostedAt:        raw.PostedAt,
		Active:          true,
	}

	outcome, err := e.store.Upsert(ctx, posting)
	if err != nil {
		return 0, "", fmt.Errorf("upsert posting: %w", err)
	}

	switch outcome {
	case OutcomeSkippedActive:
		return outcomeSkipped, fp, nil
	case OutcomeReactivated:
		return outcomeReactivated, fp, nil
	default:
		return outcomeAdded, fp, nil
	}
}

// Cleanup deactivates postings older than the retention window and drops
// their seen-cache entries, so a board still listing one of them triggers a
// reactivation on the next sweep. Run on a fixed schedule, never during
// ingestion.
func (e *Engine) Cleanup(ctx context.Context) (int64, error) {
	cutoff := time.Now().UTC().Add(-e.retention)
	fingerprints, err := e.store.DeactivateOlderThan(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("cleanup postings: %w", err)
	}
	if e.seen != nil && len(fingerprints) > 0 {
		e.seen.Invalidate(ctx, fingerprints)
	}
	log.Printf("[ingest] Cleanup deactivated %d stale posting(s)", len(fingerprints))
	return int64(len(fingerprints)), nil
}

// containsAny reports whether any exclusion term appears (case-insensitive)
// anywhere in the combined text.
func containsAny(text string, terms []string) bool {
	if len(terms) == 0 {
		return false
	}
	combined := strings.ToLower(text)
	for _, term := range terms {
		if term == "" {
			continue
		}
		if strings.Contains(combined, strings.ToLower(term)) {
			return true
		}
	}
	return false
}
