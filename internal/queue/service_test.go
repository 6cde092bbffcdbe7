package queue

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobpilot/automation-service/internal/ratelimit"
)

// ── in-memory fakes ────────────────────────────────────────────────────────

// memTaskStore implements TaskStore with the same guard semantics as the
// SQL implementation.
type memTaskStore struct {
	mu     sync.Mutex
	nextID int64
	tasks  map[int64]*Task
}

func newMemTaskStore() *memTaskStore {
	return &memTaskStore{tasks: make(map[int64]*Task)}
}

func (s *memTaskStore) Insert(_ context.Context, t *Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	t.ID = s.nextID
	t.State = StateQueued
	t.EnqueuedAt = time.Now().UTC()
	cp := *t
	s.tasks[t.ID] = &cp
	return nil
}

func (s *memTaskStore) Get(_ context.Context, candidateID string, id int64) (*Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok || (candidateID != "" && t.CandidateID != candidateID) {
		return nil, ErrTaskNotFound
	}
	cp := *t
	return &cp, nil
}

func (s *memTaskStore) List(_ context.Context, candidateID string) ([]*Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Task
	for _, t := range s.tasks {
		if t.CandidateID == candidateID {
			cp := *t
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (s *memTaskStore) NextQueued(_ context.Context) (*Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var next *Task
	for _, t := range s.tasks {
		if t.State != StateQueued {
			continue
		}
		if next == nil || t.ID < next.ID {
			next = t
		}
	}
	if next == nil {
		return nil, nil
	}
	cp := *next
	return &cp, nil
}

func (s *memTaskStore) SetState(_ context.Context, id int64, from, to State, reason, artifact string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok || t.State != from {
		return ErrStateConflict
	}
	if !IsTransitionAllowed(from, to) {
		return ErrStateConflict
	}
	t.State = to
	if reason != "" {
		t.FailureReason = reason
	}
	if artifact != "" {
		t.ArtifactPath = artifact
	}
	now := time.Now().UTC()
	if to == StateInProgress {
		t.StartedAt = &now
	}
	if IsTerminal(to) {
		t.CompletedAt = &now
	}
	return nil
}

func (s *memTaskStore) Delete(_ context.Context, candidateID string, id int64, onlyState State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok || t.CandidateID != candidateID {
		return ErrTaskNotFound
	}
	if t.State != onlyState {
		return ErrNotCancellable
	}
	delete(s.tasks, id)
	return nil
}

func (s *memTaskStore) CountByState(_ context.Context, state State, candidateID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, t := range s.tasks {
		if t.State == state && (candidateID == "" || t.CandidateID == candidateID) {
			n++
		}
	}
	return n, nil
}

func (s *memTaskStore) QueuePosition(_ context.Context, id int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, t := range s.tasks {
		if t.State == StateQueued && t.ID <= id {
			n++
		}
	}
	return n, nil
}

func (s *memTaskStore) RecoverInterrupted(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	now := time.Now().UTC()
	for _, t := range s.tasks {
		if t.State == StateInProgress {
			t.State = StateFailed
			t.FailureReason = ReasonInterrupted
			t.CompletedAt = &now
			n++
		}
	}
	return n, nil
}

type memBudgetStore struct {
	mu        sync.Mutex
	used      map[string]int
	incrCalls int
}

func newMemBudgetStore() *memBudgetStore { return &memBudgetStore{used: make(map[string]int)} }

func (s *memBudgetStore) Used(_ context.Context, key, day string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.used[key+"/"+day], nil
}

func (s *memBudgetStore) IncrementIfBelow(_ context.Context, key, day string, limit int) (int, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.incrCalls++
	k := key + "/" + day
	if s.used[k] >= limit {
		return s.used[k], false, nil
	}
	s.used[k]++
	return s.used[k], true, nil
}

func (s *memBudgetStore) acquireAttempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.incrCalls
}

type fakeGenerator struct {
	text string
}

func (g *fakeGenerator) Generate(_ context.Context, _ string) (string, error) {
	return g.text, nil
}

func newTestService(limit int) (*Service, *memTaskStore) {
	store := newMemTaskStore()
	limiter := ratelimit.NewLimiter(newMemBudgetStore(), limit, time.UTC)
	return NewService(store, limiter), store
}

// ── Enqueue ────────────────────────────────────────────────────────────────

func TestEnqueue_AssignsFIFOPositions(t *testing.T) {
	service, _ := newTestService(50)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		res, err := service.Enqueue(ctx, EnqueueRequest{
			CandidateID: "cand-1",
			Fingerprint: "fp",
			PostingURL:  "https://example.org/job",
			ResumePath:  "/resumes/cand-1.pdf",
		})
		require.NoError(t, err)
		assert.Equal(t, i, res.QueuePosition)
	}
}

func TestEnqueue_RejectsWhenBudgetExhausted(t *testing.T) {
	store := newMemTaskStore()
	budget := newMemBudgetStore()
	limiter := ratelimit.NewLimiter(budget, 1, time.UTC)
	service := NewService(store, limiter)
	ctx := context.Background()

	_, err := limiter.TryAcquire(ctx, "cand-1")
	require.NoError(t, err)

	_, err = service.Enqueue(ctx, EnqueueRequest{CandidateID: "cand-1", Fingerprint: "fp"})
	assert.ErrorIs(t, err, ErrQuotaExceeded)
}

func TestEnqueue_GeneratesCoverLetterWhenMissing(t *testing.T) {
	service, store := newTestService(50)
	service.SetGenerator(&fakeGenerator{text: "Dear Hiring Manager,"})
	ctx := context.Background()

	res, err := service.Enqueue(ctx, EnqueueRequest{
		CandidateID:    "cand-1",
		Fingerprint:    "fp",
		GeneratePrompt: "Backend Engineer @ Acme",
	})
	require.NoError(t, err)

	task, err := store.Get(ctx, "cand-1", res.TaskID)
	require.NoError(t, err)
	assert.Equal(t, "Dear Hiring Manager,", task.CoverLetter)
}

func TestEnqueue_KeepsProvidedCoverLetter(t *testing.T) {
	service, store := newTestService(50)
	service.SetGenerator(&fakeGenerator{text: "generated"})
	ctx := context.Background()

	res, err := service.Enqueue(ctx, EnqueueRequest{
		CandidateID:    "cand-1",
		Fingerprint:    "fp",
		CoverLetter:    "my own letter",
		GeneratePrompt: "Backend Engineer @ Acme",
	})
	require.NoError(t, err)

	task, err := store.Get(ctx, "cand-1", res.TaskID)
	require.NoError(t, err)
	assert.Equal(t, "my own letter", task.CoverLetter)
}

// ── Cancel ─────────────────────────────────────────────────────────────────

func TestCancel_QueuedTask(t *testing.T) {
	service, store := newTestService(50)
	ctx := context.Background()

	res, err := service.Enqueue(ctx, EnqueueRequest{CandidateID: "cand-1", Fingerprint: "fp"})
	require.NoError(t, err)

	require.NoError(t, service.Cancel(ctx, "cand-1", res.TaskID))

	_, err = store.Get(ctx, "cand-1", res.TaskID)
	assert.ErrorIs(t, err, ErrTaskNotFound)
}

func TestCancel_InProgressTaskRefused(t *testing.T) {
	service, store := newTestService(50)
	ctx := context.Background()

	res, err := service.Enqueue(ctx, EnqueueRequest{CandidateID: "cand-1", Fingerprint: "fp"})
	require.NoError(t, err)
	require.NoError(t, store.SetState(ctx, res.TaskID, StateQueued, StateInProgress, "", ""))

	assert.ErrorIs(t, service.Cancel(ctx, "cand-1", res.TaskID), ErrNotCancellable)
}

func TestCancel_ForeignTaskNotFound(t *testing.T) {
	service, _ := newTestService(50)
	ctx := context.Background()

	res, err := service.Enqueue(ctx, EnqueueRequest{CandidateID: "cand-1", Fingerprint: "fp"})
	require.NoError(t, err)

	assert.ErrorIs(t, service.Cancel(ctx, "cand-2", res.TaskID), ErrTaskNotFound)
}

// ── Status ─────────────────────────────────────────────────────────────────

func TestStatus_ReportsQueueAndBudget(t *testing.T) {
	service, store := newTestService(10)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := service.Enqueue(ctx, EnqueueRequest{CandidateID: "cand-1", Fingerprint: "fp"})
		require.NoError(t, err)
	}
	require.NoError(t, store.SetState(ctx, 1, StateQueued, StateInProgress, "", ""))

	st, err := service.Status(ctx, "cand-1")
	require.NoError(t, err)

	assert.Equal(t, 2, st.QueueLength)
	assert.True(t, st.CurrentlyProcessing)
	assert.Equal(t, 10, st.RemainingToday)
}
