package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/redis/go-redis/v9"

	"jobpilot/automation-service/internal/formfiller"
	"jobpilot/automation-service/internal/ratelimit"
)

// Notifier receives terminal task outcomes (telegram reporter). Optional.
type Notifier interface {
	NotifyTask(t *Task)
}

// WorkerConfig bounds the worker's pacing and timeouts.
type WorkerConfig struct {
	// DelayMin/DelayMax bound the uniform random pause between two
	// consecutive task executions, so the destination system never sees a
	// mechanically regular request pattern.
	DelayMin time.Duration
	DelayMax time.Duration

	// FillTimeout bounds one form-fill attempt.
	FillTimeout time.Duration

	// PollInterval is how often an idle worker re-checks the queue when
	// nobody kicked it.
	PollInterval time.Duration
}

func (c *WorkerConfig) applyDefaults() {
	if c.DelayMin <= 0 {
		c.DelayMin = 20 * time.Second
	}
	if c.DelayMax < c.DelayMin {
		c.DelayMax = 90 * time.Second
	}
	if c.FillTimeout <= 0 {
		c.FillTimeout = 2 * time.Minute
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 30 * time.Second
	}
}

// Worker drains the queue. Single-flight by construction: one Worker, one
// goroutine, so at most one task is IN_PROGRESS system-wide. That mirrors
// the destination system's expectation of one human-paced actor and is a
// correctness requirement, not a performance choice.
type Worker struct {
	store    TaskStore
	limiter  *ratelimit.Limiter
	filler   formfiller.Filler
	cfg      WorkerConfig
	rdb      *redis.Client // optional event publishing
	notifier Notifier      // optional
	wake     chan struct{}
}

// NewWorker constructs a Worker.
func NewWorker(store TaskStore, limiter *ratelimit.Limiter, filler formfiller.Filler, cfg WorkerConfig) *Worker {
	cfg.applyDefaults()
	return &Worker{
		store:   store,
		limiter: limiter,
		filler:  filler,
		cfg:     cfg,
		wake:    make(chan struct{}, 1),
	}
}

// SetEvents enables task-transition events on Redis pub/sub.
func (w *Worker) SetEvents(rdb *redis.Client) { w.rdb = rdb }

// SetNotifier enables outcome notifications.
func (w *Worker) SetNotifier(n Notifier) { w.notifier = n }

// Kick nudges a parked worker. Safe from any goroutine; coalesces.
func (w *Worker) Kick() {
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

// RecoverInterrupted fails tasks orphaned in IN_PROGRESS by a previous run.
// Called once at startup before Run: the external side effect's completion
// is unknown, so orphans are never silently resumed.
func (w *Worker) RecoverInterrupted(ctx context.Context) (int64, error) {
	n, err := w.store.RecoverInterrupted(ctx)
	if err != nil {
		return 0, fmt.Errorf("recover interrupted tasks: %w", err)
	}
	if n > 0 {
		log.Printf("[worker] Recovered %d interrupted task(s) as FAILED", n)
	}
	return n, nil
}

// Run drains the queue until ctx is cancelled. On quota denial the current
// task is requeued and the worker parks until kicked (the scheduler kicks it
// after the day rollover) instead of busy-polling the limiter.
func (w *Worker) Run(ctx context.Context) {
	log.Printf("[worker] Started (delay %s–%s, fill timeout %s)",
		w.cfg.DelayMin, w.cfg.DelayMax, w.cfg.FillTimeout)

	for {
		if ctx.Err() != nil {
			log.Println("[worker] Stopped")
			return
		}

		task, err := w.store.NextQueued(ctx)
		if err != nil {
			log.Printf("[worker] NextQueued error: %v", err)
			w.idle(ctx)
			continue
		}
		if task == nil {
			w.idle(ctx)
			continue
		}

		haltForQuota := w.process(ctx, task)
		if haltForQuota {
			log.Println("[worker] Daily quota exhausted — parking until next day or kick")
			w.park(ctx)
			continue
		}

		w.pause(ctx)
	}
}

// process runs one task through the state machine. Returns true when the
// worker should halt because the rate limiter denied the slot.
func (w *Worker) process(ctx context.Context, task *Task) bool {
	if err := w.store.SetState(ctx, task.ID, StateQueued, StateInProgress, "", ""); err != nil {
		// Another actor (cancel) got there first; nothing to do.
		log.Printf("[worker] Task %d not started: %v", task.ID, err)
		return false
	}
	w.publish(ctx, "EVENT_TASK_STARTED", task, "")

	decision, err := w.limiter.TryAcquire(ctx, task.CandidateID)
	if err != nil {
		log.Printf("[worker] Rate limiter error for task %d: %v — requeueing", task.ID, err)
		w.requeue(ctx, task)
		return false
	}
	if !decision.Allowed {
		// Requeue without consuming anything; the slot check failed, not
		// the task.
		w.requeue(ctx, task)
		return true
	}

	log.Printf("[worker] Filling application for task %d (candidate %s, %d slot(s) left today)",
		task.ID, task.CandidateID, decision.Remaining)

	fillCtx, cancel := context.WithTimeout(ctx, w.cfg.FillTimeout)
	result, err := w.filler.Fill(fillCtx, formfiller.FillRequest{
		PostingURL:  task.PostingURL,
		ResumePath:  task.ResumePath,
		CoverLetter: task.CoverLetter,
	})
	cancel()

	switch {
	case err != nil:
		w.finish(ctx, task, StateFailed, err.Error(), "")
	case !result.Filled:
		w.finish(ctx, task, StateFailed, result.Message, "")
	default:
		w.finish(ctx, task, StateCompleted, "", result.ArtifactPath)
	}
	return false
}

func (w *Worker) requeue(ctx context.Context, task *Task) {
	if err := w.store.SetState(ctx, task.ID, StateInProgress, StateQueued, "", ""); err != nil {
		log.Printf("[worker] Requeue of task %d failed: %v", task.ID, err)
	}
}

// finish moves a task to a terminal state. Failed tasks are never retried
// automatically; they stay queryable with their reason.
func (w *Worker) finish(ctx context.Context, task *Task, state State, reason, artifact string) {
	if err := w.store.SetState(ctx, task.ID, StateInProgress, state, reason, artifact); err != nil {
		log.Printf("[worker] Finishing task %d failed: %v", task.ID, err)
		return
	}
	task.State = state
	task.FailureReason = reason
	task.ArtifactPath = artifact

	if state == StateCompleted {
		log.Printf("[worker] Task %d completed", task.ID)
		w.publish(ctx, "EVENT_TASK_COMPLETED", task, "")
	} else {
		log.Printf("[worker] Task %d failed: %s", task.ID, reason)
		w.publish(ctx, "EVENT_TASK_FAILED", task, reason)
	}

	if w.notifier != nil {
		w.notifier.NotifyTask(task)
	}
}

// publish sends a task event to Redis for the gateway's SSE forward.
// Non-fatal.
func (w *Worker) publish(ctx context.Context, channel string, task *Task, reason string) {
	if w.rdb == nil {
		return
	}
	event, _ := json.Marshal(map[string]string{
		"type":        channel,
		"taskId":      fmt.Sprintf("%d", task.ID),
		"candidateId": task.CandidateID,
		"fingerprint": task.Fingerprint,
		"reason":      reason,
	})
	if err := w.rdb.Publish(ctx, channel, event).Err(); err != nil {
		slog.Warn("publish task event failed", "channel", channel, "err", err)
	}
}

// pause sleeps a uniform random duration from the configured interval.
func (w *Worker) pause(ctx context.Context) {
	delay := w.cfg.DelayMin
	if span := w.cfg.DelayMax - w.cfg.DelayMin; span > 0 {
		delay += rand.N(span)
	}
	select {
	case <-ctx.Done():
	case <-time.After(delay):
	}
}

// idle waits for a kick or the next poll tick.
func (w *Worker) idle(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-w.wake:
	case <-time.After(w.cfg.PollInterval):
	}
}

// park waits for a kick only (quota halt — no busy-polling).
func (w *Worker) park(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-w.wake:
	}
}
