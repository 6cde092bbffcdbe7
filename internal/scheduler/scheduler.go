// Package scheduler wires up the recurring jobs of the pipeline: the
// ingestion sweep, the daily posting cleanup, and the worker kick at the
// day boundary. Scheduler ticks are independent of request traffic; missed
// ticks after a restart are simply skipped.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"jobpilot/automation-service/internal/ingest"
	"jobpilot/automation-service/internal/model"
	"jobpilot/automation-service/internal/queue"
	"jobpilot/automation-service/internal/source"
)

// maxRolesPerSweep caps how many target roles one candidate contributes to
// a single sweep.
const maxRolesPerSweep = 3

// ProfileStore lists candidates eligible for the ingestion sweep.
type ProfileStore interface {
	// ListActive returns profiles with at least one target role configured.
	ListActive(ctx context.Context) ([]model.Profile, error)
}

// Notifier receives sweep summaries. Optional.
type Notifier interface {
	NotifySweep(added, skipped, failed int)
}

// Scheduler owns the process-wide cron and its lifecycle.
type Scheduler struct {
	cron     *cron.Cron
	engine   *ingest.Engine
	profiles ProfileStore
	worker   *queue.Worker
	notifier Notifier // optional
	spec     string   // ingest spec, e.g. "@every 6h"
	limit    int      // per-adapter result cap per search
}

// New creates a Scheduler firing the ingestion sweep every intervalHours.
// Cleanup and the worker kick run on the given location's clock.
func New(engine *ingest.Engine, profiles ProfileStore, worker *queue.Worker, loc *time.Location, intervalHours, searchLimit int) *Scheduler {
	return &Scheduler{
		cron:     cron.New(cron.WithLocation(loc), cron.WithLogger(cron.DefaultLogger)),
		engine:   engine,
		profiles: profiles,
		worker:   worker,
		spec:     fmt.Sprintf("@every %dh", intervalHours),
		limit:    searchLimit,
	}
}

// SetNotifier enables sweep summaries.
func (s *Scheduler) SetNotifier(n Notifier) { s.notifier = n }

// Start registers the jobs and starts the cron. Also runs one sweep
// immediately so the feed is populated without waiting for the first tick.
func (s *Scheduler) Start(ctx context.Context) error {
	if _, err := s.cron.AddFunc(s.spec, func() { s.runSweep(ctx) }); err != nil {
		return fmt.Errorf("cron.AddFunc sweep: %w", err)
	}

	// Daily cleanup at 02:00 — never during ingestion.
	if _, err := s.cron.AddFunc("0 2 * * *", func() { s.runCleanup(ctx) }); err != nil {
		return fmt.Errorf("cron.AddFunc cleanup: %w", err)
	}

	// Midnight kick so a quota-parked worker resumes after the rollover.
	if _, err := s.cron.AddFunc("0 0 * * *", s.worker.Kick); err != nil {
		return fmt.Errorf("cron.AddFunc kick: %w", err)
	}

	s.cron.Start()
	log.Printf("[scheduler] Cron started — sweep spec: %s", s.spec)

	go s.runSweep(ctx)

	return nil
}

// Stop gracefully shuts down the scheduler.
func (s *Scheduler) Stop() {
	s.cron.Stop()
	log.Println("[scheduler] Cron stopped")
}

// runSweep ingests for every candidate with target roles. One candidate's
// failure never blocks the others.
func (s *Scheduler) runSweep(ctx context.Context) {
	log.Println("[scheduler] Ingestion sweep started")

	profiles, err := s.profiles.ListActive(ctx)
	if err != nil {
		log.Printf("[scheduler] ListActive error: %v", err)
		return
	}
	if len(profiles) == 0 {
		log.Println("[scheduler] No candidates with target roles — nothing to ingest")
		return
	}

	var added, skipped, failed int
	for _, profile := range profiles {
		roles := profile.TargetRoles
		if len(roles) > maxRolesPerSweep {
			roles = roles[:maxRolesPerSweep]
		}
		location := ""
		if len(profile.Locations) > 0 {
			location = profile.Locations[0]
		}

		for _, role := range roles {
			result, err := s.engine.Ingest(ctx, model.SearchCriteria{
				Keywords: role,
				Location: location,
				RedFlags: profile.RedFlags,
				Limit:    s.limit,
			})
			if err != nil {
				log.Printf("[scheduler] Ingest error for candidate %s role %q: %v — continuing",
					profile.CandidateID, role, err)
				failed++
				continue
			}
			added += result.Added
			skipped += result.Skipped
			s.handleSourceErrors(result.Errors)
		}
	}

	log.Printf("[scheduler] Sweep complete — candidates=%d added=%d skipped=%d failed=%d",
		len(profiles), added, skipped, failed)
	if s.notifier != nil {
		s.notifier.NotifySweep(added, skipped, failed)
	}
}

// handleSourceErrors disables adapters with rejected credentials; transient
// failures are left alone to retry next cycle.
func (s *Scheduler) handleSourceErrors(errs []ingest.SourceError) {
	for i := range errs {
		var credErr *source.CredentialsError
		if errors.As(errs[i].Err, &credErr) {
			log.Printf("[scheduler] Source %s credentials rejected — disabling: %v",
				errs[i].Source, credErr)
			s.engine.Disable(errs[i].Source)
		} else {
			log.Printf("[scheduler] Source %s failed (will retry next cycle): %v",
				errs[i].Source, errs[i].Err)
		}
	}
}

func (s *Scheduler) runCleanup(ctx context.Context) {
	if _, err := s.engine.Cleanup(ctx); err != nil {
		log.Printf("[scheduler] Cleanup error: %v", err)
	}
}
