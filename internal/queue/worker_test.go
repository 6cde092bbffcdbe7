package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobpilot/automation-service/internal/formfiller"
	"jobpilot/automation-service/internal/ratelimit"
)

type fakeFiller struct {
	mu     sync.Mutex
	result *formfiller.FillResult
	err    error
	calls  int
}

func (f *fakeFiller) Fill(_ context.Context, _ formfiller.FillRequest) (*formfiller.FillResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.result, f.err
}

func (f *fakeFiller) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func testWorkerConfig() WorkerConfig {
	return WorkerConfig{
		DelayMin:     time.Millisecond,
		DelayMax:     2 * time.Millisecond,
		FillTimeout:  time.Second,
		PollInterval: 10 * time.Millisecond,
	}
}

func enqueueN(t *testing.T, store *memTaskStore, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		task := &Task{
			CandidateID: "cand-1",
			Fingerprint: "fp",
			PostingURL:  "https://example.org/job",
			ResumePath:  "/resumes/cand-1.pdf",
		}
		require.NoError(t, store.Insert(context.Background(), task))
	}
}

// ── process ────────────────────────────────────────────────────────────────

func TestProcess_CompletesTask(t *testing.T) {
	store := newMemTaskStore()
	limiter := ratelimit.NewLimiter(newMemBudgetStore(), 50, time.UTC)
	filler := &fakeFiller{result: &formfiller.FillResult{
		Filled:       true,
		ArtifactPath: "/artifacts/fill-1.png",
	}}
	worker := NewWorker(store, limiter, filler, testWorkerConfig())
	ctx := context.Background()

	enqueueN(t, store, 1)
	task, err := store.NextQueued(ctx)
	require.NoError(t, err)

	halt := worker.process(ctx, task)
	assert.False(t, halt)

	got, err := store.Get(ctx, "cand-1", task.ID)
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, got.State)
	assert.Equal(t, "/artifacts/fill-1.png", got.ArtifactPath)
	assert.NotNil(t, got.StartedAt)
	assert.NotNil(t, got.CompletedAt)
}

func TestProcess_FillerReportsFailure(t *testing.T) {
	store := newMemTaskStore()
	limiter := ratelimit.NewLimiter(newMemBudgetStore(), 50, time.UTC)
	filler := &fakeFiller{result: &formfiller.FillResult{
		Filled:  false,
		Message: "no apply button on posting page",
	}}
	worker := NewWorker(store, limiter, filler, testWorkerConfig())
	ctx := context.Background()

	enqueueN(t, store, 1)
	task, err := store.NextQueued(ctx)
	require.NoError(t, err)

	halt := worker.process(ctx, task)
	assert.False(t, halt)

	got, err := store.Get(ctx, "cand-1", task.ID)
	require.NoError(t, err)
	assert.Equal(t, StateFailed, got.State)
	assert.Equal(t, "no apply button on posting page", got.FailureReason)
}

func TestProcess_FillerError(t *testing.T) {
	store := newMemTaskStore()
	limiter := ratelimit.NewLimiter(newMemBudgetStore(), 50, time.UTC)
	filler := &fakeFiller{err: errors.New("browser crashed")}
	worker := NewWorker(store, limiter, filler, testWorkerConfig())
	ctx := context.Background()

	enqueueN(t, store, 1)
	task, err := store.NextQueued(ctx)
	require.NoError(t, err)

	worker.process(ctx, task)

	got, err := store.Get(ctx, "cand-1", task.ID)
	require.NoError(t, err)
	assert.Equal(t, StateFailed, got.State)
	assert.Equal(t, "browser crashed", got.FailureReason)
}

func TestProcess_QuotaDeniedRequeuesAndHalts(t *testing.T) {
	store := newMemTaskStore()
	budget := newMemBudgetStore()
	limiter := ratelimit.NewLimiter(budget, 1, time.UTC)
	filler := &fakeFiller{result: &formfiller.FillResult{Filled: true}}
	worker := NewWorker(store, limiter, filler, testWorkerConfig())
	ctx := context.Background()

	// Exhaust the budget before the task runs.
	_, err := limiter.TryAcquire(ctx, "cand-1")
	require.NoError(t, err)

	enqueueN(t, store, 1)
	task, err := store.NextQueued(ctx)
	require.NoError(t, err)

	halt := worker.process(ctx, task)
	assert.True(t, halt)
	assert.Zero(t, filler.callCount(), "a denied slot must never reach the filler")

	got, err := store.Get(ctx, "cand-1", task.ID)
	require.NoError(t, err)
	assert.Equal(t, StateQueued, got.State, "denied task goes back to the queue")

	st, err := limiter.Status(ctx, "cand-1")
	require.NoError(t, err)
	assert.Equal(t, 1, st.Used, "denial must not consume budget")
}

func TestProcess_DrainStopsAtDailyLimit(t *testing.T) {
	store := newMemTaskStore()
	limiter := ratelimit.NewLimiter(newMemBudgetStore(), 2, time.UTC)
	filler := &fakeFiller{result: &formfiller.FillResult{Filled: true}}
	worker := NewWorker(store, limiter, filler, testWorkerConfig())
	ctx := context.Background()

	enqueueN(t, store, 3)

	var halted bool
	for i := 0; i < 3; i++ {
		task, err := store.NextQueued(ctx)
		require.NoError(t, err)
		require.NotNil(t, task)
		if worker.process(ctx, task) {
			halted = true
			break
		}
	}

	assert.True(t, halted, "third task must hit the exhausted budget")
	assert.Equal(t, 2, filler.callCount())

	completed, err := store.CountByState(ctx, StateCompleted, "")
	require.NoError(t, err)
	queued, err := store.CountByState(ctx, StateQueued, "")
	require.NoError(t, err)
	assert.Equal(t, 2, completed)
	assert.Equal(t, 1, queued)
}

func TestProcess_CancelledTaskIsSkipped(t *testing.T) {
	store := newMemTaskStore()
	limiter := ratelimit.NewLimiter(newMemBudgetStore(), 50, time.UTC)
	filler := &fakeFiller{result: &formfiller.FillResult{Filled: true}}
	worker := NewWorker(store, limiter, filler, testWorkerConfig())
	ctx := context.Background()

	enqueueN(t, store, 1)
	task, err := store.NextQueued(ctx)
	require.NoError(t, err)

	// Cancel between dequeue and start.
	require.NoError(t, store.Delete(ctx, "cand-1", task.ID, StateQueued))

	halt := worker.process(ctx, task)
	assert.False(t, halt)
	assert.Zero(t, filler.callCount())
}

// ── RecoverInterrupted ─────────────────────────────────────────────────────

func TestRecoverInterrupted_FailsOrphanedTasks(t *testing.T) {
	store := newMemTaskStore()
	limiter := ratelimit.NewLimiter(newMemBudgetStore(), 50, time.UTC)
	worker := NewWorker(store, limiter, &fakeFiller{}, testWorkerConfig())
	ctx := context.Background()

	enqueueN(t, store, 2)
	require.NoError(t, store.SetState(ctx, 1, StateQueued, StateInProgress, "", ""))

	n, err := worker.RecoverInterrupted(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	orphan, err := store.Get(ctx, "cand-1", 1)
	require.NoError(t, err)
	assert.Equal(t, StateFailed, orphan.State)
	assert.Equal(t, ReasonInterrupted, orphan.FailureReason)

	untouched, err := store.Get(ctx, "cand-1", 2)
	require.NoError(t, err)
	assert.Equal(t, StateQueued, untouched.State)
}

// ── Run ────────────────────────────────────────────────────────────────────

func TestRun_DrainsQueue(t *testing.T) {
	store := newMemTaskStore()
	limiter := ratelimit.NewLimiter(newMemBudgetStore(), 50, time.UTC)
	filler := &fakeFiller{result: &formfiller.FillResult{Filled: true}}
	worker := NewWorker(store, limiter, filler, testWorkerConfig())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	enqueueN(t, store, 2)

	done := make(chan struct{})
	go func() { worker.Run(ctx); close(done) }()

	require.Eventually(t, func() bool {
		n, err := store.CountByState(context.Background(), StateCompleted, "")
		return err == nil && n == 2
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	<-done
}

func TestRun_ParksOnQuotaAndResumesOnKick(t *testing.T) {
	store := newMemTaskStore()
	budget := newMemBudgetStore()

	now := time.Date(2026, 3, 14, 23, 0, 0, 0, time.UTC)
	var clockMu sync.Mutex
	clock := func() time.Time {
		clockMu.Lock()
		defer clockMu.Unlock()
		return now
	}

	limiter := ratelimit.NewLimiter(budget, 1, time.UTC, ratelimit.WithClock(clock))
	filler := &fakeFiller{result: &formfiller.FillResult{Filled: true}}
	worker := NewWorker(store, limiter, filler, testWorkerConfig())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Exhaust today's budget before the worker sees the task.
	_, err := limiter.TryAcquire(ctx, "cand-1")
	require.NoError(t, err)

	enqueueN(t, store, 1)

	done := make(chan struct{})
	go func() { worker.Run(ctx); close(done) }()

	// The worker dequeues once, is denied, requeues the task and parks.
	require.Eventually(t, func() bool {
		queued, err := store.CountByState(context.Background(), StateQueued, "")
		return err == nil && queued == 1 && budget.acquireAttempts() == 2
	}, 2*time.Second, 5*time.Millisecond)

	// Parked means parked: no further limiter polling, no filler calls.
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, 2, budget.acquireAttempts(), "parked worker must not poll the limiter")
	assert.Zero(t, filler.callCount())

	// Midnight passes and the scheduler kicks the worker.
	clockMu.Lock()
	now = now.Add(2 * time.Hour)
	clockMu.Unlock()
	worker.Kick()

	require.Eventually(t, func() bool {
		n, err := store.CountByState(context.Background(), StateCompleted, "")
		return err == nil && n == 1
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	<-done
}

// ── pause ──────────────────────────────────────────────────────────────────

func TestPause_RespectsDelayBounds(t *testing.T) {
	store := newMemTaskStore()
	limiter := ratelimit.NewLimiter(newMemBudgetStore(), 50, time.UTC)
	worker := NewWorker(store, limiter, &fakeFiller{}, WorkerConfig{
		DelayMin:    20 * time.Millisecond,
		DelayMax:    40 * time.Millisecond,
		FillTimeout: time.Second,
	})

	for i := 0; i < 5; i++ {
		start := time.Now()
		worker.pause(context.Background())
		elapsed := time.Since(start)
		assert.GreaterOrEqual(t, elapsed, 20*time.Millisecond)
		assert.Less(t, elapsed, 500*time.Millisecond)
	}
}

// ── Kick ───────────────────────────────────────────────────────────────────

func TestKick_Coalesces(t *testing.T) {
	store := newMemTaskStore()
	limiter := ratelimit.NewLimiter(newMemBudgetStore(), 50, time.UTC)
	worker := NewWorker(store, limiter, &fakeFiller{}, testWorkerConfig())

	// Many kicks while parked collapse into one pending wake-up.
	for i := 0; i < 10; i++ {
		worker.Kick()
	}
	assert.Len(t, worker.wake, 1)
}
