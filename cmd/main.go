// jobpilot automation-service
//
// Background pipeline for the application workflow:
//   - periodic ingestion sweeps across the configured job boards,
//     deduplicated by posting fingerprint
//   - a persisted FIFO queue of auto-apply tasks drained by a single
//     human-paced worker
//   - a daily application budget enforced at execution time
//   - read-only status endpoints for the gateway
//
// Publishes EVENT_TASK_* to Redis for the Gateway SSE forward.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"jobpilot/automation-service/internal/config"
	"jobpilot/automation-service/internal/db"
	"jobpilot/automation-service/internal/extract"
	"jobpilot/automation-service/internal/formfiller"
	"jobpilot/automation-service/internal/ingest"
	"jobpilot/automation-service/internal/postgres"
	"jobpilot/automation-service/internal/queue"
	"jobpilot/automation-service/internal/ratelimit"
	"jobpilot/automation-service/internal/reporter"
	"jobpilot/automation-service/internal/scheduler"
	"jobpilot/automation-service/internal/source"
	"jobpilot/automation-service/internal/status"
)

const version = "1.0.0"

// seenTTL is how long a fingerprint stays in the recently-seen cache.
const seenTTL = 24 * time.Hour

func main() {
	// ── Config ──────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[automation-service] Config error: %v", err)
	}

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		log.Fatalf("[automation-service] Invalid TIMEZONE %q: %v", cfg.Timezone, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ── PostgreSQL ───────────────────────────────────────────────────────────
	log.Println("[automation-service] Connecting to PostgreSQL…")
	pool, err := db.NewPostgresPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("[automation-service] PostgreSQL: %v", err)
	}
	defer pool.Close()

	repo := postgres.NewRepository(pool)
	if err := repo.EnsureSchema(ctx); err != nil {
		log.Fatalf("[automation-service] Schema: %v", err)
	}
	log.Println("[automation-service] PostgreSQL connected ✓")

	// ── Redis ────────────────────────────────────────────────────────────────
	log.Println("[automation-service] Connecting to Redis…")
	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		log.Fatalf("[automation-service] Redis: %v", err)
	}
	defer rdb.Close()
	log.Println("[automation-service] Redis connected ✓")

	// ── Skill extraction ─────────────────────────────────────────────────────
	dicts := extract.DefaultDictionaries()
	if cfg.SkillsFile != "" {
		if dicts, err = extract.LoadDictionaries(cfg.SkillsFile); err != nil {
			log.Fatalf("[automation-service] Skills file: %v", err)
		}
	}
	heuristic := extract.NewHeuristic(dicts)

	var primary extract.Extractor
	if cfg.ExtractorURL != "" {
		primary = extract.NewHTTPExtractor(cfg.ExtractorURL)
	}
	extractor := extract.NewFallbackExtractor(primary, heuristic)
	generator := extract.NewFallbackGenerator(nil, heuristic)

	// ── Job board adapters ───────────────────────────────────────────────────
	registry := source.NewRegistry(
		source.NewAdzuna(cfg.AdzunaAppID, cfg.AdzunaAppKey, cfg.AdzunaCountry),
		source.NewJooble(cfg.JoobleAPIKey),
	)

	// ── Ingestion engine ─────────────────────────────────────────────────────
	engine := ingest.NewEngine(registry, repo, extractor,
		time.Duration(cfg.RetentionDays)*24*time.Hour)
	engine.SetSeenCache(ingest.NewRedisSeenCache(rdb, seenTTL))

	// ── Rate limiter ─────────────────────────────────────────────────────────
	var limiterOpts []ratelimit.Option
	if cfg.GlobalBudget {
		limiterOpts = append(limiterOpts, ratelimit.WithGlobalBudget())
	}
	limiter := ratelimit.NewLimiter(repo, cfg.DailyLimit, loc, limiterOpts...)

	// ── Queue, worker, form filler ───────────────────────────────────────────
	filler, err := formfiller.NewPlaywrightFiller(cfg.Headless, cfg.ArtifactDir)
	if err != nil {
		log.Fatalf("[automation-service] Playwright: %v", err)
	}

	worker := queue.NewWorker(repo, limiter, filler, queue.WorkerConfig{
		DelayMin:    time.Duration(cfg.DelayMinSec) * time.Second,
		DelayMax:    time.Duration(cfg.DelayMaxSec) * time.Second,
		FillTimeout: time.Duration(cfg.FillTimeoutSec) * time.Second,
	})
	worker.SetEvents(rdb)

	service := queue.NewService(repo, limiter)
	service.SetGenerator(generator)
	service.SetWaker(worker)

	// ── Telegram reporting (optional) ────────────────────────────────────────
	sched := scheduler.New(engine, repo, worker, loc, cfg.FetchIntervalHours, cfg.SearchResultLimit)
	if cfg.TelegramToken != "" && cfg.TelegramChatID != 0 {
		tg, err := reporter.NewTelegram(cfg.TelegramToken, cfg.TelegramChatID)
		if err != nil {
			log.Printf("[automation-service] Telegram disabled: %v", err)
		} else {
			worker.SetNotifier(tg)
			sched.SetNotifier(tg)
			log.Println("[automation-service] Telegram reporting enabled")
		}
	}

	// Orphaned IN_PROGRESS tasks from a previous run fail before the worker
	// picks up anything new.
	if _, err := worker.RecoverInterrupted(ctx); err != nil {
		log.Fatalf("[automation-service] Recovery: %v", err)
	}

	go worker.Run(ctx)

	if err := sched.Start(ctx); err != nil {
		log.Fatalf("[automation-service] Scheduler: %v", err)
	}
	defer sched.Stop()

	// ── HTTP server ──────────────────────────────────────────────────────────
	mux := http.NewServeMux()
	status.NewHandler(limiter, service, version).RegisterRoutes(mux)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("[automation-service] v%s listening on :%s", version, cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("[automation-service] HTTP server error: %v", err)
		}
	}()

	// ── Graceful shutdown ────────────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("[automation-service] Shutting down…")
	cancel() // stops the worker loop

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("[automation-service] Shutdown error: %v", err)
	}
	log.Println("[automation-service] Stopped.")
}
