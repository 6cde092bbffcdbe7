// Package ratelimit implements the daily application budget.
//
// The limiter is a pure counting gate: it has no knowledge of why a slot is
// consumed. Check-and-increment is serialized through an in-process mutex
// and, underneath, the BudgetStore's atomic conditional increment, so two
// concurrent TryAcquire calls can never both win the last slot.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// dayFormat keys budget rows by calendar day. Day rollover is recomputed
// from this persisted date, not from elapsed in-memory time, so it holds
// across process restarts.
const dayFormat = "2006-01-02"

// globalKey is used when the budget is one shared counter instead of
// per-candidate counters.
const globalKey = "global"

// BudgetStore persists daily usage counters.
type BudgetStore interface {
	// Used returns the consumed count for (key, day); 0 when no row exists.
	Used(ctx context.Context, key, day string) (int, error)

	// IncrementIfBelow atomically increments the counter for (key, day) if
	// used < limit, creating the row at 1 when absent. It returns the
	// post-call used count and whether the increment happened. A denied call
	// must not mutate state.
	IncrementIfBelow(ctx context.Context, key, day string, limit int) (used int, ok bool, err error)
}

// Decision is the outcome of one TryAcquire call.
type Decision struct {
	Allowed   bool
	Remaining int
}

// Status reports the current budget window.
type Status struct {
	Limit     int       `json:"limit"`
	Used      int       `json:"used"`
	Remaining int       `json:"remaining"`
	ResetAt   time.Time `json:"resetAt"`
}

// Limiter gates actions against a daily budget.
type Limiter struct {
	mu     sync.Mutex
	store  BudgetStore
	limit  int
	loc    *time.Location
	global bool
	now    func() time.Time
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithGlobalBudget makes all candidates share one counter.
func WithGlobalBudget() Option {
	return func(l *Limiter) { l.global = true }
}

// WithClock overrides the wall clock. Used by tests to simulate rollover.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// NewLimiter builds a Limiter over store with the given daily limit.
// Rollover happens at midnight in loc.
func NewLimiter(store BudgetStore, limit int, loc *time.Location, opts ...Option) *Limiter {
	l := &Limiter{
		store: store,
		limit: limit,
		loc:   loc,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// TryAcquire consumes one slot for the candidate if the daily budget allows
// it. The day check precedes the acquire: using today's date as part of the
// storage key resets the window the instant the calendar date changes.
func (l *Limiter) TryAcquire(ctx context.Context, candidateID string) (Decision, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	key := l.key(candidateID)
	day := l.today()

	used, ok, err := l.store.IncrementIfBelow(ctx, key, day, l.limit)
	if err != nil {
		return Decision{}, fmt.Errorf("ratelimit acquire: %w", err)
	}

	remaining := l.limit - used
	if remaining < 0 {
		remaining = 0
	}
	return Decision{Allowed: ok, Remaining: remaining}, nil
}

// Status reports the budget window for the candidate without consuming a slot.
func (l *Limiter) Status(ctx context.Context, candidateID string) (*Status, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	used, err := l.store.Used(ctx, l.key(candidateID), l.today())
	if err != nil {
		return nil, fmt.Errorf("ratelimit status: %w", err)
	}

	remaining := l.limit - used
	if remaining < 0 {
		remaining = 0
	}
	return &Status{
		Limit:     l.limit,
		Used:      used,
		Remaining: remaining,
		ResetAt:   l.resetAt(),
	}, nil
}

func (l *Limiter) key(candidateID string) string {
	if l.global || candidateID == "" {
		return globalKey
	}
	return candidateID
}

func (l *Limiter) today() string {
	return l.now().In(l.loc).Format(dayFormat)
}

// resetAt is the next midnight in the configured location.
func (l *Limiter) resetAt() time.Time {
	now := l.now().In(l.loc)
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, l.loc).AddDate(0, 0, 1)
}
