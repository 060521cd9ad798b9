// Package tracking keeps a short-lived cache of the task identifiers that
// timewarrior is currently tracking.
package tracking

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

const (
	DefaultTTL     = 5 * time.Second
	DefaultTimeout = 5 * time.Second
)

// Querier returns every task identifier currently being tracked, in one call.
type Querier interface {
	TrackedIDs(ctx context.Context) ([]uuid.UUID, error)
}

type snapshot struct {
	ids       map[uuid.UUID]struct{}
	refreshed time.Time
	stale     bool
}

// Cache answers membership queries from the last refreshed set. Reads never
// call out; MaybeRefresh is the only place a query happens, and concurrent
// callers within one TTL window share a single query.
type Cache struct {
	querier Querier
	ttl     time.Duration
	timeout time.Duration
	logger  *slog.Logger

	mu      sync.Mutex
	current atomic.Pointer[snapshot]
}

// NewCache builds a cache refreshed through q. Each query is bounded by
// timeout.
func NewCache(q Querier, ttl, timeout time.Duration, logger *slog.Logger) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{querier: q, ttl: ttl, timeout: timeout, logger: logger}
}

func (c *Cache) TTL() time.Duration { return c.ttl }

func (c *Cache) IsTracked(id uuid.UUID) bool {
	s := c.current.Load()
	if s == nil {
		return false
	}
	_, ok := s.ids[id]
	return ok
}

// Tracked returns a copy of the cached set.
func (c *Cache) Tracked() []uuid.UUID {
	s := c.current.Load()
	if s == nil {
		return nil
	}
	out := make([]uuid.UUID, 0, len(s.ids))
	for id := range s.ids {
		out = append(out, id)
	}
	return out
}

func (c *Cache) Expired(now time.Time) bool {
	s := c.current.Load()
	return s == nil || s.stale || now.Sub(s.refreshed) >= c.ttl
}

// MaybeRefresh queries the tracker if the cached set is older than the TTL
// and reports whether a query was issued. A failed query empties the set and
// still counts as a refresh, so the TTL applies before the next attempt.
func (c *Cache) MaybeRefresh(ctx context.Context, now time.Time) bool {
	if c.querier == nil || !c.Expired(now) {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.Expired(now) {
		return false
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	ids, err := c.querier.TrackedIDs(ctx)
	next := &snapshot{ids: make(map[uuid.UUID]struct{}, len(ids)), refreshed: now}
	if err != nil {
		c.logger.Warn("tracking refresh failed", "error", err)
		c.current.Store(next)
		return true
	}
	for _, id := range ids {
		next.ids[id] = struct{}{}
	}
	c.current.Store(next)
	return true
}

// Invalidate forces the next MaybeRefresh to query while keeping the last
// known set readable until then.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	prev := c.current.Load()
	if prev == nil {
		return
	}
	c.current.Store(&snapshot{ids: prev.ids, refreshed: prev.refreshed, stale: true})
}
