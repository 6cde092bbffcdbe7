package queue

import (
	"context"
	"errors"
	"time"
)

// Task is one candidate's intent to apply to one posting. Task ids are
// assigned by the store and increase monotonically, which makes them the
// FIFO tie-break for equal enqueue timestamps.
type Task struct {
	ID            int64
	CandidateID   string
	Fingerprint   string
	PostingURL    string
	ResumePath    string
	CoverLetter   string
	State         State
	FailureReason string
	ArtifactPath  string
	EnqueuedAt    time.Time
	StartedAt     *time.Time
	CompletedAt   *time.Time
}

// Sentinel errors surfaced to the API layer.
var (
	// ErrQuotaExceeded rejects an enqueue when the daily budget reports zero
	// remaining slots. An early-reject convenience: the authoritative check
	// happens again at execution time.
	ErrQuotaExceeded = errors.New("daily application quota exceeded")

	// ErrTaskNotFound is returned when a task is missing or does not belong
	// to the candidate.
	ErrTaskNotFound = errors.New("task not found")

	// ErrNotCancellable is returned when cancelling a task that already left
	// the QUEUED state.
	ErrNotCancellable = errors.New("task is no longer cancellable")

	// ErrStateConflict signals a guarded transition whose from-state no
	// longer matches (another actor moved the task first).
	ErrStateConflict = errors.New("task state changed concurrently")
)

// ReasonInterrupted marks tasks orphaned in IN_PROGRESS by a crash. The
// external side effect's completion is unknown, so they are failed, never
// silently resumed.
const ReasonInterrupted = "interrupted"

// TaskStore persists tasks. Implementations must make Insert assign a
// monotonically increasing id and keep SetState atomic with respect to the
// from-state guard.
type TaskStore interface {
	// Insert persists a new task in state QUEUED and fills in its ID and
	// EnqueuedAt.
	Insert(ctx context.Context, t *Task) error

	// Get returns a task by id, scoped to the candidate when candidateID is
	// non-empty. Returns ErrTaskNotFound when absent.
	Get(ctx context.Context, candidateID string, id int64) (*Task, error)

	// List returns the candidate's tasks, newest first.
	List(ctx context.Context, candidateID string) ([]*Task, error)

	// NextQueued returns the oldest QUEUED task (enqueue time ascending, id
	// ascending), or nil when the queue is empty.
	NextQueued(ctx context.Context) (*Task, error)

	// SetState transitions a task from → to, recording reason and artifact
	// on terminal states. Returns ErrStateConflict when the task is no
	// longer in the from state.
	SetState(ctx context.Context, id int64, from, to State, reason, artifact string) error

	// Delete removes a task only while it is in onlyState. Returns
	// ErrNotCancellable when the state guard fails, ErrTaskNotFound when the
	// task does not exist for the candidate.
	Delete(ctx context.Context, candidateID string, id int64, onlyState State) error

	// CountByState counts tasks in a state; empty candidateID counts all.
	CountByState(ctx context.Context, state State, candidateID string) (int, error)

	// QueuePosition returns the 1-based FIFO position of a queued task.
	QueuePosition(ctx context.Context, id int64) (int, error)

	// RecoverInterrupted fails every IN_PROGRESS task with
	// ReasonInterrupted and returns how many were recovered.
	RecoverInterrupted(ctx context.Context) (int64, error)
}
