// Package ratelimit implements fixed window quotas, kept either in process memory or in the database.
package ratelimit

import (
	"context"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sidereusnuntius/fedhost/internal/db"
)

// SweepProbability is the chance that a request also deletes the expired windows.
const SweepProbability = 0.01

// Policy is a quota of Max requests per Window.
type Policy struct {
	Window time.Duration
	Max    int
	// Strict keys the window on the source address even when the request carries credentials.
	Strict bool
	// DB keeps the counters in the database, so they survive restarts.
	DB bool
}

func (p Policy) Enabled() bool {
	return p.Window > 0 && p.Max > 0
}

// Decision is the outcome of counting one request.
type Decision struct {
	Allowed bool
	Count   int64
	Limit   int
	ResetAt time.Time
}

// RetryAfter is the number of whole seconds until the window resets, rounded up.
func (d Decision) RetryAfter(now time.Time) int {
	left := d.ResetAt.Sub(now)
	if left <= 0 {
		return 0
	}
	return int(math.Ceil(left.Seconds()))
}

func (d Decision) Remaining() int64 {
	if r := int64(d.Limit) - d.Count; r > 0 {
		return r
	}
	return 0
}

// Limiter counts a request of principal against endpoint.
type Limiter interface {
	Hit(ctx context.Context, principal, endpoint string, p Policy) (Decision, error)
}

type window struct {
	count   int64
	resetAt time.Time
}

// Memory keeps its windows in a map. It suits high rate paths such as logins, where a database write per request
// would be wasteful.
type Memory struct {
	mu      sync.Mutex
	windows map[string]*window
	now     func() time.Time
	chance  func() float64
}

func NewMemory() *Memory {
	return &Memory{
		windows: map[string]*window{},
		now:     time.Now,
		chance:  rand.Float64,
	}
}

func (m *Memory) Hit(_ context.Context, principal, endpoint string, p Policy) (Decision, error) {
	now := m.now()
	key := endpoint + "\x00" + principal

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.chance() < SweepProbability {
		m.sweep(now)
	}

	w, ok := m.windows[key]
	if !ok || !now.Before(w.resetAt) {
		w = &window{resetAt: now.Add(p.Window)}
		m.windows[key] = w
	}
	w.count++

	return Decision{
		Allowed: w.count <= int64(p.Max),
		Count:   w.count,
		Limit:   p.Max,
		ResetAt: w.resetAt,
	}, nil
}

func (m *Memory) sweep(now time.Time) {
	for k, w := range m.windows {
		if !now.Before(w.resetAt) {
			delete(m.windows, k)
		}
	}
}

// Len is the number of live and expired windows held.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.windows)
}

// Store keeps one counter row per (principal, endpoint).
type Store struct {
	db     db.RateLimits
	now    func() time.Time
	chance func() float64
}

func NewStore(d db.RateLimits) *Store {
	return &Store{
		db:     d,
		now:    time.Now,
		chance: rand.Float64,
	}
}

func (s *Store) Hit(ctx context.Context, principal, endpoint string, p Policy) (Decision, error) {
	now := s.now()
	if s.chance() < SweepProbability {
		if n, err := s.db.SweepRateLimits(ctx, now); err != nil {
			log.Warn().Err(err).Msg("failed to sweep rate limit counters")
		} else if n > 0 {
			log.Debug().Int64("deleted", n).Msg("swept rate limit counters")
		}
	}

	count, resetAt, err := s.db.HitRateLimit(ctx, principal, endpoint, now, p.Window)
	if err != nil {
		return Decision{}, err
	}
	return Decision{
		Allowed: count <= int64(p.Max),
		Count:   count,
		Limit:   p.Max,
		ResetAt: resetAt,
	}, nil
}

// Set picks the memory or the database limiter according to the policy.
type Set struct {
	Memory *Memory
	Store  *Store
}

func NewSet(d db.RateLimits) *Set {
	return &Set{Memory: NewMemory(), Store: NewStore(d)}
}

func (s *Set) For(p Policy) Limiter {
	if p.DB && s.Store != nil {
		return s.Store
	}
	return s.Memory
}
