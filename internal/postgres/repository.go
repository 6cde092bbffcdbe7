// Package postgres implements the pipeline's storage ports on PostgreSQL.
//
// All persisted state lives here: postings keyed by fingerprint, tasks with
// a state index for efficient dequeue, and rate budgets keyed by
// (budget key, day). Atomicity-sensitive operations (posting upsert,
// guarded task transitions, budget increment) are single statements so the
// database closes the races, not the callers.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"jobpilot/automation-service/internal/ingest"
	"jobpilot/automation-service/internal/model"
	"jobpilot/automation-service/internal/queue"
)

// Schema is the DDL this repository expects. Idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS postings (
    fingerprint      TEXT PRIMARY KEY,
    title            TEXT NOT NULL,
    company          TEXT NOT NULL,
    location         TEXT NOT NULL DEFAULT '',
    description      TEXT NOT NULL DEFAULT '',
    required_skills  TEXT[] NOT NULL DEFAULT '{}',
    preferred_skills TEXT[] NOT NULL DEFAULT '{}',
    technical_skills TEXT[] NOT NULL DEFAULT '{}',
    soft_skills      TEXT[] NOT NULL DEFAULT '{}',
    action_words     TEXT[] NOT NULL DEFAULT '{}',
    salary_min       DOUBLE PRECISION NOT NULL DEFAULT 0,
    salary_max       DOUBLE PRECISION NOT NULL DEFAULT 0,
    source           TEXT NOT NULL,
    source_url       TEXT NOT NULL DEFAULT '',
    posted_at        TIMESTAMPTZ NOT NULL,
    active           BOOLEAN NOT NULL DEFAULT true,
    created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_postings_active_posted ON postings (active, posted_at);

CREATE TABLE IF NOT EXISTS tasks (
    id             BIGSERIAL PRIMARY KEY,
    candidate_id   TEXT NOT NULL,
    fingerprint    TEXT NOT NULL,
    posting_url    TEXT NOT NULL DEFAULT '',
    resume_path    TEXT NOT NULL,
    cover_letter   TEXT NOT NULL DEFAULT '',
    state          TEXT NOT NULL DEFAULT 'QUEUED'
                   CHECK (state IN ('QUEUED', 'IN_PROGRESS', 'COMPLETED', 'FAILED')),
    failure_reason TEXT NOT NULL DEFAULT '',
    artifact_path  TEXT NOT NULL DEFAULT '',
    enqueued_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    started_at     TIMESTAMPTZ,
    completed_at   TIMESTAMPTZ,
    updated_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_tasks_state_fifo ON tasks (state, enqueued_at, id);
CREATE INDEX IF NOT EXISTS idx_tasks_candidate ON tasks (candidate_id);

CREATE TABLE IF NOT EXISTS rate_budgets (
    budget_key TEXT NOT NULL,
    day        TEXT NOT NULL,
    used       INTEGER NOT NULL DEFAULT 0,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    PRIMARY KEY (budget_key, day)
);

CREATE TABLE IF NOT EXISTS profiles (
    candidate_id     TEXT PRIMARY KEY,
    target_roles     TEXT[] NOT NULL DEFAULT '{}',
    locations        TEXT[] NOT NULL DEFAULT '{}',
    red_flags        TEXT[] NOT NULL DEFAULT '{}',
    technical_skills TEXT[] NOT NULL DEFAULT '{}',
    soft_skills      TEXT[] NOT NULL DEFAULT '{}',
    action_words     TEXT[] NOT NULL DEFAULT '{}',
    experience_years INTEGER NOT NULL DEFAULT 0,
    resume_path      TEXT NOT NULL DEFAULT '',
    active           BOOLEAN NOT NULL DEFAULT true,
    updated_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`

// Repository implements ingest.PostingStore, queue.TaskStore,
// ratelimit.BudgetStore and scheduler.ProfileStore.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository wraps an existing connection pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// EnsureSchema applies the idempotent DDL.
func (r *Repository) EnsureSchema(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// ─── Postings ───────────────────────────────────────────────────────────────

const postingColumns = `fingerprint, title, company, location, description,
	required_skills, preferred_skills, technical_skills, soft_skills, action_words,
	salary_min, salary_max, source, source_url, posted_at, active, created_at, updated_at`

// Upsert inserts a posting, reactivates an inactive duplicate, or skips an
// active one — in one statement, so two sweeps racing on the same
// fingerprint resolve through the primary key.
//
// Outcome detection: the DO UPDATE only fires for inactive rows; a conflict
// with an active row yields no row at all. (xmax = 0) distinguishes a fresh
// insert from a reactivating update.
func (r *Repository) Upsert(ctx context.Context, p *model.Posting) (ingest.UpsertOutcome, error) {
	var inserted bool
	err := r.pool.QueryRow(ctx,
		`INSERT INTO postings (fingerprint, title, company, location, description,
		        required_skills, preferred_skills, technical_skills, soft_skills, action_words,
		        salary_min, salary_max, source, source_url, posted_at, active)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, true)
		 ON CONFLICT (fingerprint) DO UPDATE SET
		        title            = EXCLUDED.title,
		        company          = EXCLUDED.company,
		        location         = EXCLUDED.location,
		        description      = EXCLUDED.description,
		        required_skills  = EXCLUDED.required_skills,
		        preferred_skills = EXCLUDED.preferred_skills,
		        technical_skills = EXCLUDED.technical_skills,
		        soft_skills      = EXCLUDED.soft_skills,
		        action_words     = EXCLUDED.action_words,
		        salary_min       = EXCLUDED.salary_min,
		        salary_max       = EXCLUDED.salary_max,
		        source_url       = EXCLUDED.source_url,
		        posted_at        = EXCLUDED.posted_at,
		        active           = true,
		        updated_at       = NOW()
		 WHERE postings.active = false
		 RETURNING (xmax = 0)`,
		p.Fingerprint, p.Title, p.Company, p.Location, p.Description,
		emptyIfNil(p.RequiredSkills), emptyIfNil(p.PreferredSkills),
		emptyIfNil(p.TechnicalSkills), emptyIfNil(p.SoftSkills), emptyIfNil(p.ActionWords),
		p.SalaryMin, p.SalaryMax, p.Source, p.SourceURL, p.PostedAt,
	).Scan(&inserted)

	if errors.Is(err, pgx.ErrNoRows) {
		return ingest.OutcomeSkippedActive, nil
	}
	if err != nil {
		return 0, fmt.Errorf("upsert posting: %w", err)
	}
	if inserted {
		return ingest.OutcomeInserted, nil
	}
	return ingest.OutcomeReactivated, nil
}

// GetPosting returns a posting by fingerprint.
func (r *Repository) GetPosting(ctx context.Context, fingerprint string) (*model.Posting, error) {
	var p model.Posting
	err := r.pool.QueryRow(ctx,
		`SELECT `+postingColumns+` FROM postings WHERE fingerprint = $1`,
		fingerprint,
	).Scan(
		&p.Fingerprint, &p.Title, &p.Company, &p.Location, &p.Description,
		&p.RequiredSkills, &p.PreferredSkills, &p.TechnicalSkills, &p.SoftSkills, &p.ActionWords,
		&p.SalaryMin, &p.SalaryMax, &p.Source, &p.SourceURL, &p.PostedAt,
		&p.Active, &p.CreatedAt, &p.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("posting %s not found", fingerprint)
	}
	if err != nil {
		return nil, fmt.Errorf("get posting: %w", err)
	}
	return &p, nil
}

// DeactivateOlderThan flips active=false on postings older than cutoff and
// returns their fingerprints.
func (r *Repository) DeactivateOlderThan(ctx context.Context, cutoff time.Time) ([]string, error) {
	rows, err := r.pool.Query(ctx,
		`UPDATE postings SET active = false, updated_at = NOW()
		 WHERE active = true AND posted_at < $1
		 RETURNING fingerprint`,
		cutoff,
	)
	if err != nil {
		return nil, fmt.Errorf("deactivate postings: %w", err)
	}
	defer rows.Close()

	var fingerprints []string
	for rows.Next() {
		var fp string
		if err := rows.Scan(&fp); err != nil {
			return nil, fmt.Errorf("scan deactivated fingerprint: %w", err)
		}
		fingerprints = append(fingerprints, fp)
	}
	return fingerprints, rows.Err()
}

// ─── Tasks ──────────────────────────────────────────────────────────────────

const taskColumns = `id, candidate_id, fingerprint, posting_url, resume_path, cover_letter,
	state, failure_reason, artifact_path, enqueued_at, started_at, completed_at`

// Insert persists a new QUEUED task, filling in ID and EnqueuedAt.
func (r *Repository) Insert(ctx context.Context, t *queue.Task) error {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO tasks (candidate_id, fingerprint, posting_url, resume_path, cover_letter, state)
		 VALUES ($1, $2, $3, $4, $5, 'QUEUED')
		 RETURNING id, enqueued_at`,
		t.CandidateID, t.Fingerprint, t.PostingURL, t.ResumePath, t.CoverLetter,
	).Scan(&t.ID, &t.EnqueuedAt)
	if err != nil {
		return fmt.Errorf("insert task: %w", err)
	}
	t.State = queue.StateQueued
	return nil
}

// Get returns a task by id, scoped to the candidate when given.
func (r *Repository) Get(ctx context.Context, candidateID string, id int64) (*queue.Task, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+taskColumns+` FROM tasks
		 WHERE id = $1 AND ($2 = '' OR candidate_id = $2)`,
		id, candidateID,
	)
	t, err := scanTask(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, queue.ErrTaskNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	return t, nil
}

// List returns the candidate's tasks, newest first.
func (r *Repository) List(ctx context.Context, candidateID string) ([]*queue.Task, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+taskColumns+` FROM tasks
		 WHERE candidate_id = $1 ORDER BY enqueued_at DESC, id DESC`,
		candidateID,
	)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*queue.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// NextQueued returns the oldest QUEUED task (FIFO, id tie-break) or nil.
func (r *Repository) NextQueued(ctx context.Context) (*queue.Task, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+taskColumns+` FROM tasks
		 WHERE state = 'QUEUED'
		 ORDER BY enqueued_at ASC, id ASC
		 LIMIT 1`,
	)
	t, err := scanTask(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("next queued task: %w", err)
	}
	return t, nil
}

// SetState transitions a task, guarded by both the state machine and the
// stored from-state so concurrent actors cannot double-apply a transition.
func (r *Repository) SetState(ctx context.Context, id int64, from, to queue.State, reason, artifact string) error {
	if !queue.IsTransitionAllowed(from, to) {
		return fmt.Errorf("transition %s → %s is not allowed", from, to)
	}

	tag, err := r.pool.Exec(ctx,
		`UPDATE tasks SET
		        state          = $3,
		        failure_reason = CASE WHEN $4 <> '' THEN $4 ELSE failure_reason END,
		        artifact_path  = CASE WHEN $5 <> '' THEN $5 ELSE artifact_path END,
		        started_at     = CASE WHEN $3 = 'IN_PROGRESS' THEN NOW() ELSE started_at END,
		        completed_at   = CASE WHEN $3 IN ('COMPLETED', 'FAILED') THEN NOW() ELSE completed_at END,
		        updated_at     = NOW()
		 WHERE id = $1 AND state = $2`,
		id, string(from), string(to), reason, artifact,
	)
	if err != nil {
		return fmt.Errorf("set task state: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return queue.ErrStateConflict
	}
	return nil
}

// Delete removes a task only while it is in onlyState (cancellation).
func (r *Repository) Delete(ctx context.Context, candidateID string, id int64, onlyState queue.State) error {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM tasks WHERE id = $1 AND candidate_id = $2 AND state = $3`,
		id, candidateID, string(onlyState),
	)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Distinguish "gone" from "already running/terminal".
		if _, err := r.Get(ctx, candidateID, id); err != nil {
			return queue.ErrTaskNotFound
		}
		return queue.ErrNotCancellable
	}
	return nil
}

// CountByState counts tasks in a state; empty candidateID counts all.
func (r *Repository) CountByState(ctx context.Context, state queue.State, candidateID string) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM tasks
		 WHERE state = $1 AND ($2 = '' OR candidate_id = $2)`,
		string(state), candidateID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count tasks: %w", err)
	}
	return n, nil
}

// QueuePosition returns the 1-based FIFO position of a queued task.
func (r *Repository) QueuePosition(ctx context.Context, id int64) (int, error) {
	var position int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM tasks
		 WHERE state = 'QUEUED'
		   AND (enqueued_at, id) <= (SELECT enqueued_at, id FROM tasks WHERE id = $1)`,
		id,
	).Scan(&position)
	if err != nil {
		return 0, fmt.Errorf("queue position: %w", err)
	}
	return position, nil
}

// RecoverInterrupted fails tasks orphaned IN_PROGRESS by a previous run.
func (r *Repository) RecoverInterrupted(ctx context.Context) (int64, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE tasks SET
		        state          = 'FAILED',
		        failure_reason = $1,
		        completed_at   = NOW(),
		        updated_at     = NOW()
		 WHERE state = 'IN_PROGRESS'`,
		queue.ReasonInterrupted,
	)
	if err != nil {
		return 0, fmt.Errorf("recover interrupted: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ─── Rate budgets ───────────────────────────────────────────────────────────

// Used returns the consumed count for (key, day); 0 when no row exists.
func (r *Repository) Used(ctx context.Context, key, day string) (int, error) {
	var used int
	err := r.pool.QueryRow(ctx,
		`SELECT used FROM rate_budgets WHERE budget_key = $1 AND day = $2`,
		key, day,
	).Scan(&used)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("budget used: %w", err)
	}
	return used, nil
}

// IncrementIfBelow is the atomic check-and-increment behind TryAcquire.
// The conditional upsert either creates the day's row at used=1 or bumps it
// while used < limit; a denied call returns no row and mutates nothing.
func (r *Repository) IncrementIfBelow(ctx context.Context, key, day string, limit int) (int, bool, error) {
	if limit <= 0 {
		used, err := r.Used(ctx, key, day)
		return used, false, err
	}

	var used int
	err := r.pool.QueryRow(ctx,
		`INSERT INTO rate_budgets (budget_key, day, used) VALUES ($1, $2, 1)
		 ON CONFLICT (budget_key, day) DO UPDATE SET
		        used       = rate_budgets.used + 1,
		        updated_at = NOW()
		 WHERE rate_budgets.used < $3
		 RETURNING used`,
		key, day, limit,
	).Scan(&used)

	if errors.Is(err, pgx.ErrNoRows) {
		used, err := r.Used(ctx, key, day)
		return used, false, err
	}
	if err != nil {
		return 0, false, fmt.Errorf("budget increment: %w", err)
	}
	return used, true, nil
}

// ─── Profiles ───────────────────────────────────────────────────────────────

const profileColumns = `candidate_id, target_roles, locations, red_flags,
	technical_skills, soft_skills, action_words, experience_years, resume_path`

// ListActive returns profiles with at least one target role configured.
func (r *Repository) ListActive(ctx context.Context) ([]model.Profile, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+profileColumns+` FROM profiles
		 WHERE active = true AND cardinality(target_roles) > 0`,
	)
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	defer rows.Close()

	var profiles []model.Profile
	for rows.Next() {
		var p model.Profile
		if err := rows.Scan(
			&p.CandidateID, &p.TargetRoles, &p.Locations, &p.RedFlags,
			&p.TechnicalSkills, &p.SoftSkills, &p.ActionWords,
			&p.ExperienceYears, &p.ResumePath,
		); err != nil {
			return nil, fmt.Errorf("scan profile: %w", err)
		}
		profiles = append(profiles, p)
	}
	return profiles, rows.Err()
}

// GetProfile returns one candidate's profile.
func (r *Repository) GetProfile(ctx context.Context, candidateID string) (*model.Profile, error) {
	var p model.Profile
	err := r.pool.QueryRow(ctx,
		`SELECT `+profileColumns+` FROM profiles WHERE candidate_id = $1`,
		candidateID,
	).Scan(
		&p.CandidateID, &p.TargetRoles, &p.Locations, &p.RedFlags,
		&p.TechnicalSkills, &p.SoftSkills, &p.ActionWords,
		&p.ExperienceYears, &p.ResumePath,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("profile %s not found", candidateID)
	}
	if err != nil {
		return nil, fmt.Errorf("get profile: %w", err)
	}
	return &p, nil
}

// ─── helpers ────────────────────────────────────────────────────────────────

func scanTask(row pgx.Row) (*queue.Task, error) {
	var (
		t     queue.Task
		state string
	)
	err := row.Scan(
		&t.ID, &t.CandidateID, &t.Fingerprint, &t.PostingURL, &t.ResumePath, &t.CoverLetter,
		&state, &t.FailureReason, &t.ArtifactPath, &t.EnqueuedAt, &t.StartedAt, &t.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	parsed, err := queue.ParseState(state)
	if err != nil {
		return nil, err
	}
	t.State = parsed
	return &t, nil
}

func emptyIfNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
