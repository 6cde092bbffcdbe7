package queue

import (
	"context"
	"fmt"
	"log"

	"jobpilot/automation-service/internal/extract"
	"jobpilot/automation-service/internal/ratelimit"
)

// Waker nudges the worker after an enqueue so it does not wait for the next
// poll tick.
type Waker interface {
	Kick()
}

// Service is the enqueue/cancel/status surface of the application queue.
// Transport-agnostic: used by the status handlers and the API layer.
type Service struct {
	store     TaskStore
	limiter   *ratelimit.Limiter
	generator extract.Generator // optional cover-letter generation
	waker     Waker             // optional
}

// NewService returns a configured Service.
func NewService(store TaskStore, limiter *ratelimit.Limiter) *Service {
	return &Service{store: store, limiter: limiter}
}

// SetGenerator enables cover-letter generation for enqueues without one.
func (s *Service) SetGenerator(g extract.Generator) { s.generator = g }

// SetWaker wires the worker nudge.
func (s *Service) SetWaker(w Waker) { s.waker = w }

// EnqueueRequest describes one auto-apply intent.
type EnqueueRequest struct {
	CandidateID string
	Fingerprint string
	PostingURL  string
	ResumePath  string
	CoverLetter string

	// GeneratePrompt, when set and CoverLetter is empty, asks the text
	// generator for a cover letter (degrading to the offline template).
	GeneratePrompt string
}

// EnqueueResult reports the accepted task.
type EnqueueResult struct {
	TaskID        int64 `json:"taskId"`
	QueuePosition int   `json:"queuePosition"`
}

// Enqueue persists a new QUEUED task. It rejects with ErrQuotaExceeded when
// the budget currently reports zero remaining slots; the authoritative check
// still happens at execution time.
func (s *Service) Enqueue(ctx context.Context, req EnqueueRequest) (*EnqueueResult, error) {
	status, err := s.limiter.Status(ctx, req.CandidateID)
	if err != nil {
		return nil, fmt.Errorf("enqueue quota check: %w", err)
	}
	if status.Remaining == 0 {
		return nil, ErrQuotaExceeded
	}

	coverLetter := req.CoverLetter
	if coverLetter == "" && req.GeneratePrompt != "" && s.generator != nil {
		text, err := s.generator.Generate(ctx, req.GeneratePrompt)
		if err != nil {
			// Generation is best-effort; the task proceeds without a letter.
			log.Printf("[queue] cover letter generation failed: %v", err)
		} else {
			coverLetter = text
		}
	}

	task := &Task{
		CandidateID: req.CandidateID,
		Fingerprint: req.Fingerprint,
		PostingURL:  req.PostingURL,
		ResumePath:  req.ResumePath,
		CoverLetter: coverLetter,
		State:       StateQueued,
	}
	if err := s.store.Insert(ctx, task); err != nil {
		return nil, fmt.Errorf("enqueue insert: %w", err)
	}

	position, err := s.store.QueuePosition(ctx, task.ID)
	if err != nil {
		return nil, fmt.Errorf("enqueue position: %w", err)
	}

	if s.waker != nil {
		s.waker.Kick()
	}

	log.Printf("[queue] Task %d enqueued for candidate %s (position %d)",
		task.ID, task.CandidateID, position)
	return &EnqueueResult{TaskID: task.ID, QueuePosition: position}, nil
}

// Cancel removes a task that has not started yet. An IN_PROGRESS task cannot
// be cancelled mid-flight; terminal tasks stay queryable.
func (s *Service) Cancel(ctx context.Context, candidateID string, taskID int64) error {
	return s.store.Delete(ctx, candidateID, taskID, StateQueued)
}

// Get returns one of the candidate's tasks, including failed ones with
// their reason.
func (s *Service) Get(ctx context.Context, candidateID string, taskID int64) (*Task, error) {
	return s.store.Get(ctx, candidateID, taskID)
}

// List returns the candidate's tasks, newest first.
func (s *Service) List(ctx context.Context, candidateID string) ([]*Task, error) {
	return s.store.List(ctx, candidateID)
}

// QueueStatus is the read-only queue summary consumed by the UI layer.
type QueueStatus struct {
	QueueLength         int  `json:"queueLength"`
	CurrentlyProcessing bool `json:"currentlyProcessing"`
	RemainingToday      int  `json:"remainingToday"`
}

// Status reports queue depth and remaining budget. An empty candidateID
// reports across all candidates.
func (s *Service) Status(ctx context.Context, candidateID string) (*QueueStatus, error) {
	queued, err := s.store.CountByState(ctx, StateQueued, candidateID)
	if err != nil {
		return nil, fmt.Errorf("queue status: %w", err)
	}

	// Single-flight worker: system-wide at most one task is in progress.
	inProgress, err := s.store.CountByState(ctx, StateInProgress, "")
	if err != nil {
		return nil, fmt.Errorf("queue status: %w", err)
	}

	budget, err := s.limiter.Status(ctx, candidateID)
	if err != nil {
		return nil, fmt.Errorf("queue status: %w", err)
	}

	return &QueueStatus{
		QueueLength:         queued,
		CurrentlyProcessing: inProgress > 0,
		RemainingToday:      budget.Remaining,
	}, nil
}
